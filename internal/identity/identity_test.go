package identity

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s := New(dir, zap.NewNop())
	s.hostname = func() (string, error) { return "box", nil }
	s.newUUID = func() uuid.UUID { return uuid.MustParse("0123abcd-0000-4000-8000-000000000000") }
	return s
}

func TestGetOrCreateBotID_ExplicitIsNotPersisted(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)

	if got := s.GetOrCreateBotID("my-bot"); got != "my-bot" {
		t.Errorf("got %q, want my-bot", got)
	}
	if _, err := os.Stat(s.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("explicit id must not create %s (stat err = %v)", s.Path(), err)
	}
}

func TestGetOrCreateBotID_CreatesAndReuses(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	s := newTestStore(t, dir)

	first := s.GetOrCreateBotID("")
	if first != "box-0123abcd" {
		t.Errorf("got %q, want box-0123abcd", first)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("record not written: %v", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.BotID != first || !strings.HasPrefix(rec.UUID, "0123abcd") {
		t.Errorf("record = %+v", rec)
	}

	other := New(dir, zap.NewNop())
	other.newUUID = func() uuid.UUID { return uuid.MustParse("ffffffff-0000-4000-8000-000000000000") }
	if got := other.GetOrCreateBotID(""); got != first {
		t.Errorf("second store returned %q, want stored %q", got, first)
	}
}

func TestGetOrCreateBotID_CorruptRecordIsReplaced(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := s.GetOrCreateBotID(""); got != "box-0123abcd" {
		t.Errorf("got %q", got)
	}
}

func TestGetOrCreateBotID_UnwritableDirStillReturnsID(t *testing.T) {
	file := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	// A regular file where the state dir should be makes MkdirAll fail.
	s := newTestStore(t, filepath.Join(file, "state"))

	if got := s.GetOrCreateBotID(""); got != "box-0123abcd" {
		t.Errorf("got %q", got)
	}
}

func TestNew_DefaultDir(t *testing.T) {
	t.Setenv("MOLTSOC_STATE_DIR", "/tmp/moltsoc-state")
	t.Setenv("APPDATA", "")
	s := New("", zap.NewNop())
	if want := filepath.Join("/tmp/moltsoc-state", FileName); s.Path() != want {
		t.Errorf("Path = %q, want %q", s.Path(), want)
	}
}
