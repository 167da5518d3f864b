// Package geolog provides the structured logger shared by every Geology
// component, the same role the teacher gives pkg/log: a single injected
// logger rather than a package-level global mutated by init().
package geolog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger handed to the Kernel Context at boot and
// threaded through every component from there. Components never construct
// their own logrus.Logger; they receive one (or a *logrus.Entry scoped with
// component-specific fields) from their constructor.
type Logger = logrus.FieldLogger

// New builds the root Logger. format is "text" (default) or "json",
// mirroring -log-format in the teacher's runsc/config/flags.go.
func New(out io.Writer, format string, debug bool) *logrus.Logger {
	l := logrus.New()
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)
	if debug {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	switch format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

// Component returns a logger scoped to name, e.g. geolog.Component(root,
// "geofs").
func Component(l Logger, name string) Logger {
	return l.WithField("component", name)
}
