package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type lineSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *lineSink) handle(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *lineSink) get() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func appendFile(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(data); err != nil {
		t.Fatal(err)
	}
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFileWatcher_ReadsExistingThenAppended(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")
	appendFile(t, path, "one\r\n\ntwo\n")

	sink := &lineSink{}
	w := NewFileWatcher(path, sink.handle, zap.NewNop())
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := sink.get(); !equalLines(got, []string{"one", "two"}) {
		t.Fatalf("initial lines = %q", got)
	}

	w.Tick()
	if got := sink.get(); len(got) != 2 {
		t.Fatalf("Tick without changes fed %q", got)
	}

	appendFile(t, path, "three\nfour\n")
	w.Tick()
	if got := sink.get(); !equalLines(got, []string{"one", "two", "three", "four"}) {
		t.Errorf("lines = %q", got)
	}
}

func TestFileWatcher_HoldsPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")
	sink := &lineSink{}
	w := NewFileWatcher(path, sink.handle, zap.NewNop())
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	appendFile(t, path, "tool call fai")
	w.Tick()
	if got := sink.get(); len(got) != 0 {
		t.Fatalf("partial line fed early: %q", got)
	}
	appendFile(t, path, "led\n")
	w.Tick()
	if got := sink.get(); !equalLines(got, []string{"tool call failed"}) {
		t.Errorf("lines = %q", got)
	}
}

func TestFileWatcher_TruncationRestartsAtZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")
	appendFile(t, path, "a long first line\n")
	sink := &lineSink{}
	w := NewFileWatcher(path, sink.handle, zap.NewNop())
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := os.WriteFile(path, []byte("new\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w.Tick()
	if got := sink.get(); !equalLines(got, []string{"a long first line", "new"}) {
		t.Errorf("lines = %q", got)
	}
}

func TestFileWatcher_CreatesMissingTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "logs", "openclaw.log")
	w := NewFileWatcher(path, func(string) {}, zap.NewNop())
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() != 0 {
		t.Errorf("expected an empty file at %s (err %v)", path, err)
	}
}

func TestFileWatcher_DirectoryPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	appendFile(t, filepath.Join(dir, "a.log"), "from a\n")
	appendFile(t, filepath.Join(dir, "ignored.json"), "{}\n")

	sink := &lineSink{}
	w := NewFileWatcher(dir, sink.handle, zap.NewNop())
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := sink.get(); !equalLines(got, []string{"from a"}) {
		t.Fatalf("initial lines = %q", got)
	}

	appendFile(t, filepath.Join(dir, "b.txt"), "from b\n")
	w.Tick()
	if got := sink.get(); !equalLines(got, []string{"from a", "from b"}) {
		t.Errorf("lines = %q", got)
	}
	if files := w.Files(); len(files) != 2 {
		t.Errorf("tailed files = %v", files)
	}
}

func TestFileWatcher_RunPicksUpAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")
	sink := &lineSink{}
	w := NewFileWatcher(path, sink.handle, zap.NewNop())
	w.interval = 20 * time.Millisecond
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	appendFile(t, path, "hello\n")

	deadline := time.After(3 * time.Second)
	for len(sink.get()) == 0 {
		select {
		case <-deadline:
			t.Fatal("appended line never delivered")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}
