package confsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSyncer is the local-engine variant: the engine runs on this host and
// reads its configuration from a local path. Writes go through a temp file
// and rename so the engine never observes a torn config.
type FileSyncer struct {
	path string
}

func NewFileSyncer(path string) *FileSyncer {
	return &FileSyncer{path: path}
}

func (s *FileSyncer) Target() string {
	return s.path
}

func (s *FileSyncer) Push(_ context.Context, doc []byte) error {
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &SyncError{Target: s.path, Err: fmt.Errorf("creating config dir: %w", err)}
	}
	if err := os.WriteFile(tmp, doc, 0o644); err != nil {
		return &SyncError{Target: s.path, Err: fmt.Errorf("writing temp file: %w", err)}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return &SyncError{Target: s.path, Err: fmt.Errorf("replacing config: %w", err)}
	}
	return nil
}
