// Package logging defines the leveled logger used across the reporter.
package logging

// Logger denotes a generic leveled logger
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// NullLogger discards everything except Fatalf, which panics so that a fatal
// condition is never silently ignored.
type NullLogger struct{}

func (NullLogger) Debugf(string, ...interface{}) {}
func (NullLogger) Infof(string, ...interface{})  {}
func (NullLogger) Warnf(string, ...interface{})  {}
func (NullLogger) Errorf(string, ...interface{}) {}

func (NullLogger) Fatalf(format string, args ...interface{}) {
	panic("fatal: " + format)
}
