// Package safego launches background goroutines that survive panics.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn in a new goroutine. A panic inside fn is recovered and logged under task
// instead of taking the process down.
func Go(task string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background task",
					"task", task, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
