// Package logging is Valet's leveled logger: one colored line per entry,
// printf formatting, a global level gate. Everything below the gate is
// dropped before formatting.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level orders log severities.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

func (l Level) color() string {
	switch l {
	case DEBUG:
		return "\033[36m"
	case INFO:
		return "\033[32m"
	case WARN:
		return "\033[33m"
	case ERROR:
		return "\033[31m"
	}
	return "\033[0m"
}

var std = struct {
	mu    sync.Mutex
	level Level
	out   io.Writer
}{level: INFO, out: os.Stdout}

// SetLevel sets the global level gate.
func SetLevel(level Level) {
	std.mu.Lock()
	std.level = level
	std.mu.Unlock()
}

// SetOutput redirects log output, for tests.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	std.out = w
	std.mu.Unlock()
}

func emit(level Level, format string, args ...any) {
	std.mu.Lock()
	defer std.mu.Unlock()
	if level < std.level {
		return
	}

	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	fmt.Fprintf(std.out, "%s %s[%s]\033[0m %s\n",
		time.Now().Format("15:04:05"), level.color(), level, msg)
}

// Debug logs at DEBUG level.
func Debug(format string, args ...any) { emit(DEBUG, format, args...) }

// Info logs at INFO level.
func Info(format string, args ...any) { emit(INFO, format, args...) }

// Warn logs at WARN level.
func Warn(format string, args ...any) { emit(WARN, format, args...) }

// Error logs at ERROR level.
func Error(format string, args ...any) { emit(ERROR, format, args...) }
