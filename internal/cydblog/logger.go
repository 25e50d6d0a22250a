// Package cydblog wraps logrus with the component-scoped entries the
// storage core uses for its operational log lines.
package cydblog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	base     *logrus.Logger
	baseOnce sync.Once
)

// Base returns the process-wide logger, created lazily with a plain
// text formatter writing to stderr. Callers that need a different
// sink (tests redirecting to a buffer, a host wiring structured JSON)
// should call SetOutput/SetFormatter rather than constructing their
// own logger.
func Base() *logrus.Logger {
	baseOnce.Do(func() {
		base = logrus.New()
		base.SetOutput(os.Stderr)
		base.SetLevel(logrus.InfoLevel)
	})
	return base
}

// For returns a logger entry scoped to a named component, e.g.
// cydblog.For("bufferpool").Warnf("evicted dirty page %d", id).
func For(component string) *logrus.Entry {
	return Base().WithField("component", component)
}

// SetLevel adjusts the base logger's verbosity.
func SetLevel(level logrus.Level) {
	Base().SetLevel(level)
}
