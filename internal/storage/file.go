package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "bumpbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// The whole state lives in one JSON document ({"next_fire_at": <unix ms>|null}).
// Writes go to <path>.tmp, are fsynced, then renamed over <path>.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	path   string
	closed bool
}

type fileState struct {
	NextFireAt *int64 `json:"next_fire_at"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	// Leftover from an interrupted write; the previous document is still intact.
	_ = os.Remove(path + ".tmp")
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) NextFire(ctx context.Context) (time.Time, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return time.Time{}, false, ErrClosed
	}
	st, err := s.readLocked()
	if err != nil {
		return time.Time{}, false, err
	}
	if st.NextFireAt == nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(*st.NextFireAt), true, nil
}

func (s *fileStore) PutNextFire(ctx context.Context, at time.Time) error {
	_ = ctx
	ms := at.UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.writeLocked(fileState{NextFireAt: &ms})
}

func (s *fileStore) ClearNextFire(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) readLocked() (fileState, error) {
	var st fileState
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return fileState{}, err
	}
	return st, nil
}

func (s *fileStore) writeLocked(st fileState) error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(st); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
