package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "rimetick/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		if _, err := Open(Config{Driver: driver}, logx.Nop()); !errors.Is(err, ErrDisabled) {
			t.Fatalf("driver %q: expected ErrDisabled, got %v", driver, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path, MaxRecords: 3}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		r := Record{At: now, Tick: uint64(i), Task: "t", Kind: "sync", Outcome: "executed"}
		if err := st.Append(ctx, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, _ := st.Recent(ctx, 10)
	if len(got) != 3 || got[0].Tick != 2 || got[2].Tick != 4 {
		t.Fatalf("unexpected tail %+v", got)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.Append(ctx, Record{Task: "late"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	// compaction kept the file bounded
	data, err := os.ReadFile(filepath.Join(filepath.Dir(path), "state.history.jsonl"))
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines >= 6 {
		t.Fatalf("expected compacted file, got %d lines", lines)
	}

	reopened, err := Open(Config{Driver: "file", Path: path, MaxRecords: 3}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, _ = reopened.Recent(ctx, 2)
	if len(got) != 2 || got[1].Tick != 4 || !got[1].At.Equal(now) {
		t.Fatalf("replayed tail %+v", got)
	}
}

func TestFileStoreSurvivesFailedCompaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := openFile(Config{Path: filepath.Join(t.TempDir(), "state.db"), MaxRecords: 2}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	fs := st.(*fileStore)
	fs.rename = func(string, string) error { return errors.New("rename refused") }

	// the fourth append crosses 2*MaxRecords and attempts a compaction
	for i := 0; i < 6; i++ {
		if err := st.Append(ctx, Record{Tick: uint64(i), Task: "t", Outcome: "ok"}); err != nil {
			t.Fatalf("Append %d after failed compaction: %v", i, err)
		}
	}
	got, _ := st.Recent(ctx, 2)
	if len(got) != 2 || got[1].Tick != 5 {
		t.Fatalf("unexpected tail %+v", got)
	}
	data, err := os.ReadFile(fs.path)
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 6 {
		t.Fatalf("expected every record on disk, got %d lines", lines)
	}
	if _, err := os.Stat(fs.path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file left behind: %v", err)
	}
}
