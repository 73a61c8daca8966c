// Package log provides human-friendly logging for hostprobe.
//
// Probes fail all the time on real hosts. Most of that is noise, so denied
// and missing sources log at debug level and only timeouts surface by default.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log verbosity.
type Level int

const (
	LevelQuiet   Level = iota // Errors only
	LevelNormal               // Default - key events
	LevelVerbose              // Extra detail
	LevelDebug                // Everything
)

// ANSI color codes
const (
	reset  = "\033[0m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	blue   = "\033[34m"
	cyan   = "\033[36m"
)

// Symbols for quick visual scanning
const (
	symOK    = "+"
	symFail  = "!"
	symWarn  = "~"
	symInfo  = "-"
	symStart = ">"
	symWait  = "."
	symSkip  = "/"
)

// Logger is the main logging interface.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  Level
	color  bool
	prefix string
}

var (
	std   = New(os.Stderr)
	stdMu sync.RWMutex
)

// New creates a logger.
func New(out io.Writer) *Logger {
	return &Logger{
		out:   out,
		level: LevelNormal,
		color: isTTY(out),
	}
}

// SetLevel sets the global log level.
func SetLevel(l Level) {
	stdMu.Lock()
	std.level = l
	stdMu.Unlock()
}

// GetLevel returns the global log level.
func GetLevel() Level {
	stdMu.RLock()
	defer stdMu.RUnlock()
	return std.level
}

// SetOutput sets the global output.
func SetOutput(w io.Writer) {
	stdMu.Lock()
	std.out = w
	std.color = isTTY(w)
	stdMu.Unlock()
}

// SetColor forces color on/off.
func SetColor(on bool) {
	stdMu.Lock()
	std.color = on
	stdMu.Unlock()
}

// WithPrefix returns a logger with a prefix.
func WithPrefix(prefix string) *Logger {
	stdMu.RLock()
	l := &Logger{
		out:    std.out,
		level:  std.level,
		color:  std.color,
		prefix: prefix,
	}
	stdMu.RUnlock()
	return l
}

// --- Core logging methods ---

// OK logs a success.
func OK(format string, args ...any) {
	std.log(LevelNormal, symOK, green, format, args...)
}

// Fail logs a failure. Shown even in quiet mode.
func Fail(format string, args ...any) {
	std.log(LevelQuiet, symFail, red, format, args...)
}

// Warn logs a warning. Heads up, but not fatal.
func Warn(format string, args ...any) {
	std.log(LevelNormal, symWarn, yellow, format, args...)
}

// Info logs information.
func Info(format string, args ...any) {
	std.log(LevelNormal, symInfo, blue, format, args...)
}

// Start logs the beginning of something.
func Start(format string, args ...any) {
	std.log(LevelVerbose, symStart, cyan, format, args...)
}

// Wait logs waiting/in-progress.
func Wait(format string, args ...any) {
	std.log(LevelVerbose, symWait, dim, format, args...)
}

// Skip logs a source that was skipped (denied or unavailable).
func Skip(format string, args ...any) {
	std.log(LevelDebug, symSkip, dim, format, args...)
}

// Debug logs debug info.
func Debug(format string, args ...any) {
	std.log(LevelDebug, " ", dim, format, args...)
}

// V returns true if verbose logging is enabled.
func V() bool {
	stdMu.RLock()
	v := std.level >= LevelVerbose
	stdMu.RUnlock()
	return v
}

// Logger methods mirror the package functions for prefixed loggers.

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelNormal, symWarn, yellow, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelNormal, symInfo, blue, format, args...)
}

func (l *Logger) Skip(format string, args ...any) {
	l.log(LevelDebug, symSkip, dim, format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.log(LevelDebug, " ", dim, format, args...)
}

// --- Probe logging ---

// ProbeEvent describes one external command run by the executor.
type ProbeEvent struct {
	Name     string
	Args     []string
	Duration time.Duration
	ExitCode int
	TimedOut bool
	Error    error
}

// LogProbe logs a probe result. Timeouts are reported at normal level
// because they usually mean a hung dependency; everything else is verbose.
func LogProbe(e ProbeEvent) {
	dur := formatDuration(e.Duration)
	name := truncate(strings.TrimSpace(e.Name+" "+strings.Join(e.Args, " ")), 60)
	switch {
	case e.TimedOut:
		Warn("%s timed out after %s", name, dur)
	case e.Error != nil:
		std.log(LevelDebug, symSkip, dim, "%s unavailable: %v", name, e.Error)
	case e.ExitCode != 0:
		std.log(LevelVerbose, symWarn, dim, "%s exited %d %s", name, e.ExitCode, dur)
	default:
		std.log(LevelVerbose, symOK, dim, "%s %s", name, dur)
	}
}

// --- Internal ---

func (l *Logger) log(minLevel Level, sym, color, format string, args ...any) {
	// The package logger's level is guarded by stdMu, everything else by l.mu.
	if l == std {
		stdMu.RLock()
		defer stdMu.RUnlock()
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.level < minLevel {
		return
	}

	msg := fmt.Sprintf(format, args...)

	var line string
	if l.color {
		prefix := ""
		if l.prefix != "" {
			prefix = dim + l.prefix + " " + reset
		}
		line = fmt.Sprintf("%s%s%s%s %s%s\n", prefix, color, sym, reset, msg, reset)
	} else {
		prefix := ""
		if l.prefix != "" {
			prefix = l.prefix + " "
		}
		line = fmt.Sprintf("%s%s %s\n", prefix, sym, msg)
	}

	l.out.Write([]byte(line))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.0fus", float64(d.Microseconds()))
	case d < time.Second:
		return fmt.Sprintf("%.0fms", float64(d.Milliseconds()))
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}

// FormatDuration renders a duration the way log lines do.
func FormatDuration(d time.Duration) string {
	return formatDuration(d)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func isTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		fi, err := f.Stat()
		if err != nil {
			return false
		}
		return fi.Mode()&os.ModeCharDevice != 0
	}
	return false
}
