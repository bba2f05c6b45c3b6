package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Counter is a named monotonic counter. Failures recovered locally (frame
// validation, decode errors, dropped chunks) are counted here so that no
// error disappears without at least a structured, countable trace.
type Counter struct {
	name string
	n    atomic.Uint64
}

// NewCounter returns a counter with the given name.
func NewCounter(name string) *Counter {
	return &Counter{name: name}
}

// Add increments the counter by delta.
func (c *Counter) Add(delta uint64) {
	c.n.Add(delta)
}

// Value returns the current count.
func (c *Counter) Value() uint64 {
	return c.n.Load()
}

// Name returns the counter name.
func (c *Counter) Name() string {
	return c.name
}
