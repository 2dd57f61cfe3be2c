// Package log provides a verbosity-gated logger. Each message is tagged with a tier; a message is
// written only when the logger's threshold is at least the tier's numeric value, so raising the
// threshold progressively exposes calls, return values, bodies and raw HTTP exchanges.
//
// Output is rendered by zerolog. The package-level functions use a default logger writing to
// stderr; components that need independent verbosity hold their own *Logger.
package log

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type Level uint8

const (
	LevelAlways   Level = 0   // Written regardless of threshold.
	LevelError    Level = 1   // Failures returned to the caller.
	LevelCall     Level = 2   // Entry into a public operation.
	LevelReturn   Level = 3   // Completion of a public operation.
	LevelBody     Level = 4   // Decoded request and response payloads.
	LevelRequest  Level = 5   // Outbound HTTP requests.
	LevelResponse Level = 6   // Inbound HTTP responses.
	LevelAll      Level = 255 // Everything.
)

var labels = map[Level]string{
	LevelAlways:   "always",
	LevelError:    "error",
	LevelCall:     "call",
	LevelReturn:   "return",
	LevelBody:     "body",
	LevelRequest:  "request",
	LevelResponse: "response",
	LevelAll:      "all",
}

func (l Level) String() string {
	if s, ok := labels[l]; ok {
		return s
	}
	return strconv.Itoa(int(l))
}

// ParseLevel accepts either a tier name ("call", "body", ...) or a number in [0, 255].
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LevelAlways, nil
	}
	for level, label := range labels {
		if s == label {
			return level, nil
		}
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return LevelAlways, fmt.Errorf("invalid log level %q", s)
	}
	return Level(n), nil
}

// Logger writes tiered messages to a zerolog sink. It is safe for concurrent use.
type Logger struct {
	threshold atomic.Uint32
	sink      zerolog.Logger
}

// New returns a Logger that writes JSON lines to w.
func New(w io.Writer, threshold Level) *Logger {
	l := &Logger{sink: zerolog.New(w).Level(zerolog.TraceLevel).With().Timestamp().Logger()}
	l.SetLevel(threshold)
	return l
}

// NewConsole returns a Logger that writes human-readable lines to w.
func NewConsole(w io.Writer, threshold Level) *Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return New(out, threshold)
}

func (l *Logger) SetLevel(threshold Level) {
	l.threshold.Store(uint32(threshold))
}

func (l *Logger) Level() Level {
	return Level(l.threshold.Load())
}

// Enabled reports whether a message at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return l.Level() >= level
}

func (l *Logger) Log(level Level, format string, a ...interface{}) {
	if l == nil || !l.Enabled(level) {
		return
	}
	var ev *zerolog.Event
	switch level {
	case LevelAlways:
		ev = l.sink.Info()
	case LevelError:
		ev = l.sink.Error()
	default:
		ev = l.sink.Debug()
	}
	ev.Str("tier", level.String()).Msgf(format, a...)
}

func (l *Logger) Always(format string, a ...interface{})   { l.Log(LevelAlways, format, a...) }
func (l *Logger) Error(format string, a ...interface{})    { l.Log(LevelError, format, a...) }
func (l *Logger) Call(format string, a ...interface{})     { l.Log(LevelCall, format, a...) }
func (l *Logger) Return(format string, a ...interface{})   { l.Log(LevelReturn, format, a...) }
func (l *Logger) Body(format string, a ...interface{})     { l.Log(LevelBody, format, a...) }
func (l *Logger) Request(format string, a ...interface{})  { l.Log(LevelRequest, format, a...) }
func (l *Logger) Response(format string, a ...interface{}) { l.Log(LevelResponse, format, a...) }

var defaultLogger = NewConsole(os.Stderr, LevelAlways)

// Default returns the process-wide logger used by the package-level functions.
func Default() *Logger {
	return defaultLogger
}

func SetLevel(threshold Level) {
	defaultLogger.SetLevel(threshold)
}

func GetLevel() Level {
	return defaultLogger.Level()
}

func Always(format string, a ...interface{}) {
	defaultLogger.Log(LevelAlways, format, a...)
}
func Error(format string, a ...interface{}) {
	defaultLogger.Log(LevelError, format, a...)
}
func Call(format string, a ...interface{}) {
	defaultLogger.Log(LevelCall, format, a...)
}
func Return(format string, a ...interface{}) {
	defaultLogger.Log(LevelReturn, format, a...)
}
func Body(format string, a ...interface{}) {
	defaultLogger.Log(LevelBody, format, a...)
}
func Request(format string, a ...interface{}) {
	defaultLogger.Log(LevelRequest, format, a...)
}
func Response(format string, a ...interface{}) {
	defaultLogger.Log(LevelResponse, format, a...)
}
