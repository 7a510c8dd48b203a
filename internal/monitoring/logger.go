// Package monitoring holds the process-wide diagnostic logger.
//
// Every component logs through Logf so tests or embedding code can redirect
// or mute output with a single SetLogger call. Component loggers prefix
// lines with a bracketed tag, e.g. "[Orchestrator] goal accepted".
package monitoring

import (
	"log"
	"sync/atomic"
)

// LogFunc is the printf-style signature used for all diagnostics.
type LogFunc func(format string, v ...interface{})

var current atomic.Value

func init() {
	current.Store(LogFunc(log.Printf))
}

// Logf writes a diagnostic line through the installed logger. It defaults to
// log.Printf. Safe for concurrent use with SetLogger.
func Logf(format string, v ...interface{}) {
	current.Load().(LogFunc)(format, v...)
}

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f LogFunc) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	current.Store(f)
}

// Component returns a logger that prefixes every line with "[name] ".
// The returned function always resolves the logger installed at call time.
func Component(name string) LogFunc {
	prefix := "[" + name + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
