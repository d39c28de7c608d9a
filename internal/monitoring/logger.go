// Package monitoring holds the process-wide diagnostic logger shared by the
// pipeline stages and the estimator. The default sink is the standard
// library logger; batch tools and tests can redirect or mute it.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}

// Component returns a logging function that tags every line with the given
// component name, keeping log lines greppable per stage.
func Component(name string) func(format string, v ...any) {
	prefix := "[" + name + "] "
	return func(format string, v ...any) {
		Logf(prefix+format, v...)
	}
}
