// Package diag builds the structured logger and the error-tracking sink used
// for failures that are swallowed rather than returned.
package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger writing to out (stderr if nil) at the given
// level. format is "text" or "json".
func NewLogger(level, format string, out io.Writer) (*logrus.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	return log, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// Tracker receives errors that were handled locally but should still be
// reported.
type Tracker interface {
	TrackError(err error, props map[string]string)
}

// NopTracker ignores everything.
type NopTracker struct{}

func (NopTracker) TrackError(error, map[string]string) {}

// LogTracker reports tracked errors as log entries tagged error_tracking=true.
type LogTracker struct {
	Logger logrus.FieldLogger
}

// TrackError implements Tracker.
func (t LogTracker) TrackError(err error, props map[string]string) {
	fields := logrus.Fields{"error_tracking": true}
	for k, v := range props {
		fields[k] = v
	}
	t.Logger.WithFields(fields).WithError(err).Warn("tracked error")
}

// TrackedError is one call to Recorder.TrackError.
type TrackedError struct {
	Err   error
	Props map[string]string
}

// Recorder keeps every tracked error in memory.
type Recorder struct {
	mu     sync.Mutex
	errors []TrackedError
}

// TrackError implements Tracker.
func (r *Recorder) TrackError(err error, props map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, TrackedError{Err: err, Props: props})
}

// Errors returns a copy of everything recorded so far.
func (r *Recorder) Errors() []TrackedError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TrackedError(nil), r.errors...)
}
