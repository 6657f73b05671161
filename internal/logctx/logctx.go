// Package logctx provides a per-task logger in the terse, unadorned
// style the firmware's own log.c uses: a task-name prefix and plain
// Printf-style lines, no structured fields or levels baked into the
// type.
package logctx

import (
	"log"
	"os"
)

// Logger is a task-prefixed line logger.
type Logger struct {
	*log.Logger
}

// New returns a Logger that prefixes every line with the task name.
func New(task string) *Logger {
	return &Logger{log.New(os.Stderr, "["+task+"] ", log.Ltime)}
}
