// Package monitoring holds the logging used across motion.report.
package monitoring

import (
	"errors"
	"io"
	"log"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logf is the process-wide diagnostic logger. Messages carry a bracketed
// component tag such as "[session]" or "[db]". It writes through log.Printf
// until SetLogger replaces it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger installs f as Logf; nil discards all output.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
}

// RotationOptions bound the size and retention of a rotating log file.
type RotationOptions struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultRotationOptions keeps five 10 MB files for up to 28 days.
func DefaultRotationOptions() RotationOptions {
	return RotationOptions{MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 28, Compress: true}
}

// NewRotatingLogger returns a Logf-compatible function writing to path through
// a size-rotated file. The returned closer releases the file.
func NewRotatingLogger(path string, opts RotationOptions) (func(format string, v ...interface{}), io.Closer, error) {
	if path == "" {
		return nil, nil, errors.New("log file path is empty")
	}
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
		LocalTime:  false,
	}
	l := log.New(w, "", log.LstdFlags|log.LUTC)
	return l.Printf, w, nil
}
