// Package api defines the transport types shared between the daemon's HTTP
// server and its clients, plus the HTTP/SSE client the CLI is built on.
package api
