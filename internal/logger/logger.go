package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var (
	currentLevel = LevelInfo
	mu           sync.RWMutex
)

// SetLevel sets the global log level.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = l
}

// ParseLevel maps a flag value ("error", "warn", "info", "debug") to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "error":
		return LevelError, nil
	case "warn":
		return LevelWarn, nil
	case "info", "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Setup initializes the standard logger output.
func Setup(w io.Writer) {
	log.SetOutput(w)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
}

func enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel >= l
}

// Debug logs per-item detail, e.g. every retrieval candidate.
func Debug(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		output("DEBUG: "+format, v...)
	}
}

// Info logs informative messages if the level allows.
func Info(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		output("INFO: "+format, v...)
	}
}

// Warn logs recoverable problems.
func Warn(format string, v ...interface{}) {
	if enabled(LevelWarn) {
		output("WARN: "+format, v...)
	}
}

// Error logs error messages.
func Error(format string, v ...interface{}) {
	if enabled(LevelError) {
		output("ERROR: "+format, v...)
	}
}

// Fatal logs independent of error level and exits.
func Fatal(format string, v ...interface{}) {
	output("FATAL: "+format, v...)
	os.Exit(1)
}

func output(format string, v ...interface{}) {
	// Calldepth 3 to skip this function, Info/Error, and get to caller
	log.Output(3, fmt.Sprintf(format, v...))
}
