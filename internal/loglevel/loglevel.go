// Package loglevel gates the process's stdlib log output behind an
// atomically updatable level, consulted by GET /api/log and every call site
// that logs below Error severity.
package loglevel

import (
	"fmt"
	"log"
	"sync/atomic"
)

// Level is the severity names GET /api/log accepts.
type Level int32

const (
	Off Level = iota
	Error
	Warn
	Info
	Debug
	Trace
)

var names = [...]string{"Off", "Error", "Warn", "Info", "Debug", "Trace"}

func (l Level) String() string {
	if l < Off || l > Trace {
		return "Unknown"
	}
	return names[l]
}

// Parse maps a level name to a Level, case-sensitive per the names the
// endpoint documents.
func Parse(name string) (Level, error) {
	for i, n := range names {
		if n == name {
			return Level(i), nil
		}
	}
	return Off, fmt.Errorf("loglevel: unrecognised level %q", name)
}

var current atomic.Int32

func init() {
	current.Store(int32(Info))
}

// Set updates the active level. Safe for concurrent callers.
func Set(l Level) {
	current.Store(int32(l))
}

// Current returns the active level.
func Current() Level {
	return Level(current.Load())
}

// Logf writes to the standard logger iff l is at or below the active
// level.
func Logf(l Level, format string, args ...any) {
	if l <= Current() {
		log.Printf(format, args...)
	}
}
