// Package safego provides a panic-recovering goroutine launcher for background work.
package safego

import (
	"log/slog"
	"runtime/debug"

	"github.com/task-manager/task-manager/internal/telemetry"
)

// Go launches fn in a new goroutine. A panic in fn is recovered, logged with its stack
// and counted under name instead of crashing the process. Use it for every
// fire-and-forget goroutine.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				telemetry.BackgroundPanicsTotal.WithLabelValues(name).Inc()
				slog.Error("recovered panic in background goroutine",
					"task", name,
					"panic", r,
					"stack", string(debug.Stack()),
				)
			}
		}()
		fn()
	}()
}
