//go:build tinygo

package logging

import "fmt"

type printLogger struct {
	debug bool
}

// NewDefaultLogger instantiates a logger writing to the console UART
func NewDefaultLogger(debug bool) Logger {
	return printLogger{debug: debug}
}

func (l printLogger) Debugf(format string, args ...interface{}) {
	if l.debug {
		l.printf("DEBUG", format, args...)
	}
}

func (l printLogger) Infof(format string, args ...interface{}) { l.printf("INFO", format, args...) }
func (l printLogger) Warnf(format string, args ...interface{}) { l.printf("WARN", format, args...) }
func (l printLogger) Errorf(format string, args ...interface{}) {
	l.printf("ERROR", format, args...)
}

// Fatalf prints the message and halts the control loop.
func (l printLogger) Fatalf(format string, args ...interface{}) {
	l.printf("FATAL", format, args...)
	for {
	}
}

func (printLogger) printf(level, format string, args ...interface{}) {
	fmt.Printf(level+" "+format+"\r\n", args...)
}
