package monitoring

import "log"

// Logf is the process-wide diagnostic logger. It defaults to log.Printf and is
// swapped out by SetLogger; tests usually mute or capture it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that tags each line with "[component] ".
// Logf is resolved on every call so a later SetLogger still takes effect.
func Prefixed(component string) func(format string, v ...interface{}) {
	prefix := "[" + component + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
