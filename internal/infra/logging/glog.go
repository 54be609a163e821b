// Package logging adapts github.com/golang/glog to the structured Logger
// interface used by the engine and the reference server.
package logging

import (
	"fmt"
	"strings"

	"github.com/golang/glog"
)

// DebugLevel is the glog verbosity Debug messages are emitted at.
const DebugLevel glog.Level = 2

// Glog writes messages through glog. Key-value args are rendered as
// key=value pairs after the message.
type Glog struct {
	prefix string
}

// NewGlog returns a logger whose lines start with "[component]". An empty
// component omits the tag.
func NewGlog(component string) *Glog {
	if component == "" {
		return &Glog{}
	}
	return &Glog{prefix: "[" + component + "]"}
}

func (l *Glog) Debug(msg string, args ...any) {
	if glog.V(DebugLevel) {
		glog.InfoDepth(1, l.line(msg, args))
	}
}

func (l *Glog) Info(msg string, args ...any)  { glog.InfoDepth(1, l.line(msg, args)) }
func (l *Glog) Warn(msg string, args ...any)  { glog.WarningDepth(1, l.line(msg, args)) }
func (l *Glog) Error(msg string, args ...any) { glog.ErrorDepth(1, l.line(msg, args)) }

func (l *Glog) line(msg string, args []any) string {
	return l.prefix + Format(msg, args...)
}

// Format renders msg followed by key=value pairs. A trailing key without a
// value is rendered as key=MISSING.
func Format(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		b.WriteByte(' ')
		fmt.Fprint(&b, args[i])
		b.WriteByte('=')
		if i+1 >= len(args) {
			b.WriteString("MISSING")
			continue
		}
		v := fmt.Sprint(args[i+1])
		if strings.ContainsAny(v, " \t\n\"") {
			v = fmt.Sprintf("%q", v)
		}
		b.WriteString(v)
	}
	return b.String()
}

// Flush flushes pending glog output; call it before the process exits.
func Flush() { glog.Flush() }
