// Package logging configures the logiface logger used by the binaries.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// New creates a logger writing newline-delimited JSON to w, or to stderr if
// w is nil (stdout is reserved for program output).
func New(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	if w == nil {
		w = os.Stderr
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(w),
			stumpy.WithTimeField(`time`),
		),
		stumpy.L.WithLevel(level),
	).Logger()
}

// ParseLevel converts a level name to a logiface.Level. Both the syslog
// keywords returned by logiface.Level.String, and common aliases such as
// "error" and "warn", are accepted, ignoring case.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case `trace`:
		return logiface.LevelTrace, nil
	case `debug`:
		return logiface.LevelDebug, nil
	case `info`, `informational`, ``:
		return logiface.LevelInformational, nil
	case `notice`:
		return logiface.LevelNotice, nil
	case `warning`, `warn`:
		return logiface.LevelWarning, nil
	case `err`, `error`:
		return logiface.LevelError, nil
	case `crit`, `critical`:
		return logiface.LevelCritical, nil
	case `alert`:
		return logiface.LevelAlert, nil
	case `emerg`, `emergency`:
		return logiface.LevelEmergency, nil
	case `disabled`, `off`, `none`:
		return logiface.LevelDisabled, nil
	default:
		return logiface.LevelDisabled, fmt.Errorf(`logging: unknown level %q`, s)
	}
}
