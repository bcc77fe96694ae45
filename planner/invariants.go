package planner

import (
	"fmt"
	"log/slog"
)

// invariantViolated handles an internal attempt to break a core invariant.
// Builds tagged plannerdebug panic; other builds log and let the caller
// clamp the write.
func invariantViolated(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if failFast {
		panic("planner invariant violated: " + msg)
	}
	slog.Warn("planner invariant violated, write clamped", "component", "planner", "detail", msg)
}
