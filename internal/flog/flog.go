// Package flog is a small leveled logger over logfmt, used by
// fragment, fraginfo, and vfs in place of ad hoc fmt.Println/log
// calls.
package flog

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-logfmt/logfmt"
)

// Level is a log severity.
type Level int

// Level constants, ordered by increasing severity.
const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Logger writes logfmt-encoded lines to an underlying writer, guarded
// by a mutex so concurrent callers never interleave a single line.
type Logger struct {
	mu      *sync.Mutex // shared with every Logger derived via With
	enc     *logfmt.Encoder
	minimum Level
	static  []interface{}
}

// New returns a Logger writing to w, filtering out lines below
// minimum. Pass os.Stderr for w in most cases.
func New(w io.Writer, minimum Level) *Logger {
	return &Logger{mu: &sync.Mutex{}, enc: logfmt.NewEncoder(w), minimum: minimum}
}

// Default is a ready-to-use Logger at Info level writing to stderr.
var Default = New(os.Stderr, Info)

// With returns a derived Logger that prepends kvs to every line it
// emits, without mutating the receiver.
func (l *Logger) With(kvs ...interface{}) *Logger {
	child := &Logger{mu: l.mu, enc: l.enc, minimum: l.minimum}
	child.static = append(append([]interface{}{}, l.static...), kvs...)
	return child
}

func (l *Logger) log(level Level, msg string, kvs []interface{}) {
	if level < l.minimum {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.enc.EncodeKeyval("ts", time.Now().UTC().Format(time.RFC3339Nano))
	_ = l.enc.EncodeKeyval("level", level.String())
	_ = l.enc.EncodeKeyval("msg", msg)
	for i := 0; i < len(l.static); i += 2 {
		_ = l.enc.EncodeKeyval(l.static[i], l.static[i+1])
	}
	for i := 0; i < len(kvs); i += 2 {
		_ = l.enc.EncodeKeyval(kvs[i], kvs[i+1])
	}
	_ = l.enc.EndRecord()
}

// Debugf logs at Debug level.
func (l *Logger) Debugf(msg string, kvs ...interface{}) { l.log(Debug, msg, kvs) }

// Infof logs at Info level.
func (l *Logger) Infof(msg string, kvs ...interface{}) { l.log(Info, msg, kvs) }

// Warnf logs at Warn level.
func (l *Logger) Warnf(msg string, kvs ...interface{}) { l.log(Warn, msg, kvs) }

// Errorf logs at Error level.
func (l *Logger) Errorf(msg string, kvs ...interface{}) { l.log(Error, msg, kvs) }
