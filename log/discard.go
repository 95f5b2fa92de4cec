package log

import "io"

// Discard returns a no-op handler that will silently drop all generated
// output. Useful as the default logger for tests and short-lived tooling.
func Discard() Logger {
	return WithZero(ZeroOptions{Sink: io.Discard})
}
