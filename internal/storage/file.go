package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "rimetick/pkg/logx"
)

// fileStore appends records to <prefix>.history.jsonl and keeps the newest
// MaxRecords in memory. When the file holds twice that many lines it is
// rewritten with the in-memory tail.
type fileStore struct {
	log  logx.Logger
	path string
	keep int

	// rename is os.Rename outside tests.
	rename func(oldpath, newpath string) error

	mu    sync.Mutex
	f     *os.File
	tail  []Record
	lines int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: filepath.Join(dir, base) + ".history.jsonl", keep: cfg.maxRecords(), rename: os.Rename}
	if err := s.replay(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("history replay failed", logx.String("path", s.path), logx.Err(err))
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.f = f
	log.Info("history store opened", logx.String("driver", "file"), logx.String("path", s.path), logx.Int("records", len(s.tail)))
	return s, nil
}

func (s *fileStore) replay() error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s.lines++
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Task == "" {
			continue
		}
		s.push(r)
	}
	return sc.Err()
}

func (s *fileStore) push(r Record) {
	s.tail = append(s.tail, r)
	if len(s.tail) > s.keep {
		s.tail = s.tail[len(s.tail)-s.keep:]
	}
}

func (s *fileStore) Append(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.f).Encode(r); err != nil {
		return err
	}
	s.lines++
	s.push(r)
	if s.lines >= 2*s.keep {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("history compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) Recent(_ context.Context, n int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		return nil, nil
	}
	if n > len(s.tail) {
		n = len(s.tail)
	}
	out := make([]Record, n)
	copy(out, s.tail[len(s.tail)-n:])
	return out, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// compactLocked rewrites the file with the in-memory tail through a rename.
func (s *fileStore) compactLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range s.tail {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	// From here on the append handle is always reopened, on the old file if
	// the rename failed.
	closeErr := s.f.Close()
	s.f = nil
	renameErr := s.rename(tmp, s.path)
	if renameErr != nil {
		_ = os.Remove(tmp)
	}
	nf, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Join(closeErr, renameErr, err)
	}
	s.f = nf
	if renameErr != nil || closeErr != nil {
		return errors.Join(closeErr, renameErr)
	}
	s.lines = len(s.tail)
	return nil
}
