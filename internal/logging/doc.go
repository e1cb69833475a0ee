// Package logging builds the shared slog logger and provides attribute
// helpers so components emit consistently keyed structured logs.
package logging
