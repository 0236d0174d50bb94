package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/skaphos/mirrorkeeper/internal/model"
)

// AuditEvent records one repo-level decision for an AuditSink.
type AuditEvent struct {
	At       time.Time
	TargetID string
	RepoID   string
	State    model.RepoState
	Error    string
}

// AuditSink receives a record of every repo outcome as the engine produces
// it, so a caller can persist an audit trail without the engine knowing
// anything about where that trail is stored.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent)
}

// NoopAuditSink discards every event. It is the Engine's default so that
// audit logging is opt-in.
type NoopAuditSink struct{}

// Record implements AuditSink.
func (NoopAuditSink) Record(context.Context, AuditEvent) {}

// FileAuditSink appends one JSON line per event to a file, for the
// `--audit-repo` CLI flag. It serializes writes with a mutex since the
// engine fans repos out across a worker pool.
type FileAuditSink struct {
	mu sync.Mutex
	f  *os.File
}

// NewFileAuditSink opens (creating if needed) path for append and returns a
// sink that writes one JSON object per line to it.
func NewFileAuditSink(path string) (*FileAuditSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &FileAuditSink{f: f}, nil
}

// Record implements AuditSink.
func (s *FileAuditSink) Record(_ context.Context, event AuditEvent) {
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.f.Write(append(line, '\n'))
}

// Close flushes and closes the underlying file.
func (s *FileAuditSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
