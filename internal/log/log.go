// Package log is a small leveled logger used across geographer packages:
// a handful of package-level functions backed by the standard library
// logger rather than a structured logging framework.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Level controls which calls actually write output.
type Level int

// Levels, from least to most verbose.
const (
	ErrorLevel Level = iota
	WarnLevel
	InfoLevel
	DebugLevel
)

var (
	mu     sync.Mutex
	level  = InfoLevel
	logger = log.New(os.Stderr, "", log.LstdFlags)
)

// SetLevel changes the process-wide minimum level that gets written.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetOutput redirects where log lines are written; primarily for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(w, "", log.LstdFlags)
}

func write(l Level, prefix, format string, v ...interface{}) {
	mu.Lock()
	cur := level
	lg := logger
	mu.Unlock()
	if l > cur {
		return
	}
	if len(v) == 0 {
		lg.Print(prefix + format)
		return
	}
	lg.Printf(prefix+format, v...)
}

func Error(args ...interface{})                 { write(ErrorLevel, "ERROR ", fmtArgs(args)) }
func Errorf(format string, args ...interface{}) { write(ErrorLevel, "ERROR ", format, args...) }
func Warn(args ...interface{})                  { write(WarnLevel, "WARN ", fmtArgs(args)) }
func Warnf(format string, args ...interface{})  { write(WarnLevel, "WARN ", format, args...) }
func Info(args ...interface{})                  { write(InfoLevel, "INFO ", fmtArgs(args)) }
func Infof(format string, args ...interface{})  { write(InfoLevel, "INFO ", format, args...) }
func Debug(args ...interface{})                 { write(DebugLevel, "DEBUG ", fmtArgs(args)) }
func Debugf(format string, args ...interface{}) { write(DebugLevel, "DEBUG ", format, args...) }

func fmtArgs(args []interface{}) string {
	if len(args) == 1 {
		if s, ok := args[0].(string); ok {
			return s
		}
	}
	return fmt.Sprint(args...)
}
