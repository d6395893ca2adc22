// Package logging defines the small structured logger used by the flashing
// engines and an adapter for github.com/golang/glog.
//
// The engines never require a logger. Any framework can be plugged in by
// implementing Logger:
//
//	type MyLogger struct{ l *log.Logger }
//
//	func (m *MyLogger) Debug(msg string, kv ...interface{}) { m.l.Println("DEBUG:", msg, kv) }
//	func (m *MyLogger) Info(msg string, kv ...interface{})  { m.l.Println("INFO:", msg, kv) }
//	func (m *MyLogger) Error(msg string, kv ...interface{}) { m.l.Println("ERROR:", msg, kv) }
package logging

import (
	"fmt"
	"strings"

	"github.com/golang/glog"
)

// Logger logs a message with optional key-value pairs.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) Debug(string, ...interface{}) {}
func (Nop) Info(string, ...interface{})  {}
func (Nop) Error(string, ...interface{}) {}

// Glog forwards to glog. Debug messages are emitted at verbosity DebugLevel.
type Glog struct {
	// DebugLevel is the glog -v level for Debug; zero means 2.
	DebugLevel glog.Level

	// Prefix is prepended to every message, e.g. a session id.
	Prefix string
}

func (g Glog) Debug(msg string, kv ...interface{}) {
	lvl := g.DebugLevel
	if lvl == 0 {
		lvl = 2
	}
	if v := glog.V(lvl); v {
		v.InfoDepth(1, g.format(msg, kv))
	}
}

func (g Glog) Info(msg string, kv ...interface{}) {
	glog.InfoDepth(1, g.format(msg, kv))
}

func (g Glog) Error(msg string, kv ...interface{}) {
	glog.ErrorDepth(1, g.format(msg, kv))
}

func (g Glog) format(msg string, kv []interface{}) string {
	var b strings.Builder
	if g.Prefix != "" {
		b.WriteString(g.Prefix)
		b.WriteByte(' ')
	}
	b.WriteString(msg)
	b.WriteString(FormatKV(kv...))
	return b.String()
}

// FormatKV renders key-value pairs as " k1=v1 k2=v2". A trailing key without
// a value is rendered as "k=<missing>".
func FormatKV(kv ...interface{}) string {
	var b strings.Builder
	for i := 0; i < len(kv); i += 2 {
		b.WriteByte(' ')
		fmt.Fprint(&b, kv[i])
		b.WriteByte('=')
		if i+1 < len(kv) {
			fmt.Fprint(&b, kv[i+1])
		} else {
			b.WriteString("<missing>")
		}
	}
	return b.String()
}

// With returns a Logger that appends kv to every call.
func With(l Logger, kv ...interface{}) Logger {
	if l == nil {
		return nil
	}
	return &withLogger{l: l, kv: kv}
}

type withLogger struct {
	l  Logger
	kv []interface{}
}

func (w *withLogger) Debug(msg string, kv ...interface{}) { w.l.Debug(msg, w.merge(kv)...) }
func (w *withLogger) Info(msg string, kv ...interface{})  { w.l.Info(msg, w.merge(kv)...) }
func (w *withLogger) Error(msg string, kv ...interface{}) { w.l.Error(msg, w.merge(kv)...) }

func (w *withLogger) merge(kv []interface{}) []interface{} {
	out := make([]interface{}, 0, len(w.kv)+len(kv))
	out = append(out, w.kv...)
	return append(out, kv...)
}
