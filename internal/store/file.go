package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"pmbot/pkg/logx"
)

var docName = regexp.MustCompile(`^[a-z0-9_-]+$`)

// fileStore keeps one <name>.json per document under a directory.
// Writes go through a temp file + rename so a crash mid-write never leaves
// a truncated document behind.
type fileStore struct {
	dir string
	log logx.Logger

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{dir: dir, log: log}, nil
}

func (s *fileStore) path(name string) (string, error) {
	if !docName.MatchString(name) {
		return "", errors.New("invalid document name: " + name)
	}
	return filepath.Join(s.dir, name+".json"), nil
}

func (s *fileStore) Load(ctx context.Context, name string, v any) (bool, error) {
	_ = ctx
	p, err := s.path(name)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStore) Save(ctx context.Context, name string, v any) error {
	_ = ctx
	p, err := s.path(name)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := p + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
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
	return os.Rename(tmp, p)
}

func (s *fileStore) Close() error { return nil }
