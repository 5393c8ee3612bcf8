// Package log defines the injectable logging interface used by the server
// core, plus a colored console implementation of it. The client core does
// not log.
package log

import (
	"os"
	"strings"

	"github.com/fatih/color"
)

// Logger is the logging seam the server takes as a dependency instead of
// reaching for package-level state. Implementations
// need not be safe for concurrent use unless documented otherwise;
// ColorLogger is.
type Logger interface {
	// InfoMsg logs a normal operational message.
	InfoMsg(format string, a ...interface{})
	// ErrorMsg logs a failure.
	ErrorMsg(format string, a ...interface{})
	// VerboseMsg logs a message only surfaced in verbose/debug mode.
	VerboseMsg(format string, a ...interface{})
}

// NopLogger discards everything, for callers (such as tests) that want a
// Server to produce no output.
type NopLogger struct{}

func (NopLogger) InfoMsg(string, ...interface{})    {}
func (NopLogger) ErrorMsg(string, ...interface{})   {}
func (NopLogger) VerboseMsg(string, ...interface{}) {}

var (
	red  = color.New(color.FgRed).FprintfFunc()
	blue = color.New(color.FgBlue).FprintfFunc()
	gray = color.New(color.FgHiBlack).FprintfFunc()
)

// ColorLogger writes InfoMsg in blue, ErrorMsg in red, and VerboseMsg (when
// enabled) in gray, all to stderr. This is the server core's default.
type ColorLogger struct {
	verbose bool
}

// NewColorLogger builds a ColorLogger; verbose gates VerboseMsg output.
func NewColorLogger(verbose bool) *ColorLogger {
	return &ColorLogger{verbose: verbose}
}

func withNewline(format string) string {
	if !strings.HasSuffix(format, "\n") {
		return format + "\n"
	}
	return format
}

// VerboseMsg logs a message only if verbose mode is enabled. Safe to call
// on a nil *ColorLogger.
func (l *ColorLogger) VerboseMsg(format string, a ...interface{}) {
	if l == nil || !l.verbose {
		return
	}
	gray(os.Stderr, "[v] "+withNewline(format), a...)
}

// ErrorMsg prints an error message to stderr in red.
func (l *ColorLogger) ErrorMsg(format string, a ...interface{}) {
	red(os.Stderr, "[!] "+withNewline(format), a...)
}

// InfoMsg prints an informational message to stderr in blue.
func (l *ColorLogger) InfoMsg(format string, a ...interface{}) {
	blue(os.Stderr, "[+] "+withNewline(format), a...)
}
