// Package logging provides the stdlib-backed structured-ish logger used
// throughout the pipeline. No third-party logging library appears anywhere
// in the reference corpus this module was grown from, so the component
// convention here is the same plain log.Printf("[Component] ...") style
// every collaborator package already uses.
package logging

import (
	"fmt"
	"log"
)

// Logger prefixes every line with a component tag.
type Logger struct {
	component string
}

// New returns a Logger tagged with component, e.g. "[Orchestrator]".
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) prefix() string {
	return "[" + l.component + "] "
}

func (l *Logger) Infof(format string, args ...interface{}) {
	log.Printf(l.prefix()+format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	log.Printf(l.prefix()+"WARN: "+format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	log.Printf(l.prefix()+"ERROR: "+format, args...)
}

// Fields renders a compact key=value suffix, for the occasional line that
// wants structure without pulling in a structured-logging dependency.
func Fields(kv ...interface{}) string {
	s := ""
	for i := 0; i+1 < len(kv); i += 2 {
		s += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	return s
}
