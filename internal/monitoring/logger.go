// Package monitoring provides the gateway's package-level diagnostic logger.
package monitoring

import (
	"fmt"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger. Tests redirect it to capture or silence
// output; production code may redirect it to a file or syslog writer.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Tagged returns a logging func that prefixes every line with a subsystem
// tag, e.g. Tagged("locator:navico")("joined %s", group). Every long-lived
// task in the concurrency model (data/report/sender per session, one per
// locator-group-per-interface, the interface monitor) uses a distinct tag so
// log output stays greppable under load.
func Tagged(tag string) func(format string, v ...interface{}) {
	prefix := fmt.Sprintf("[%s] ", tag)
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
