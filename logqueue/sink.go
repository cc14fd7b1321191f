// File: logqueue/sink.go
// License: Apache-2.0
package logqueue

import (
	"io"
	"time"

	"github.com/agilira/lethe"
)

// SinkConfig configures the rotating file sink the flusher writes to.
// The zero value is invalid; use NewRotatingSink.
type SinkConfig struct {
	// Filename is the active log file path; rotated files are suffixed
	// the way lethe names backups.
	Filename string
	// MaxSizeStr is a human size ("100MB") before rotation.
	MaxSizeStr string
	MaxBackups int
	MaxFileAge time.Duration
	Compress   bool
}

// NewRotatingSink builds an io.Writer backed by a lethe.Logger. It is the
// sink the async log queue's Flush writes entries to; lethe already owns
// its own internal buffering and rotation, so logqueue only needs to hand
// it fully formatted lines.
func NewRotatingSink(cfg SinkConfig) io.Writer {
	return &lethe.Logger{
		Filename:   cfg.Filename,
		MaxSizeStr: cfg.MaxSizeStr,
		MaxBackups: cfg.MaxBackups,
		MaxFileAge: cfg.MaxFileAge,
		Compress:   cfg.Compress,
	}
}
