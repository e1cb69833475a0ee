// Package daemon assembles the long-running process: single-instance
// locking, the HTTP API, and the background janitor, wired over the job
// supervisor.
package daemon
