package cdr

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Sink appends finalized CDR lines to a file. Writes are serialized so
// concurrent logical requests never interleave within one line.
type Sink struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// OpenSink opens (or creates) the CDR line sink at path, creating parent
// directories as needed.
func OpenSink(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating cdr directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("opening cdr sink: %w", err)
	}
	slog.Info("cdr sink opened", "path", path)
	return &Sink{f: f, path: path}, nil
}

// Append writes one record line. Emission never fails the signalling path:
// write errors are logged, not returned.
func (s *Sink) Append(rec *Record) {
	line := rec.Line()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.WriteString(line + "\n"); err != nil {
		slog.Error("failed to append cdr line",
			"path", s.path,
			"record_id", rec.ID,
			"error", err,
		)
	}
}

// Close flushes and closes the sink file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.f.Sync(); err != nil {
		slog.Warn("cdr sink sync failed", "path", s.path, "error", err)
	}
	return s.f.Close()
}
