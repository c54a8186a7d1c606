// Package identity persists the collector's bot identifier across restarts.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FileName is the identity record's file name inside the state directory.
const FileName = "state.json"

// Record is the on-disk identity.
type Record struct {
	BotID string `json:"bot_id"`
	UUID  string `json:"uuid"`
}

// Store reads and lazily creates the identity record. Every filesystem or
// JSON failure is treated as "no record"; the store never returns errors.
type Store struct {
	dir      string
	hostname func() (string, error)
	newUUID  func() uuid.UUID
	logger   *zap.Logger
}

// New creates a Store rooted at dir. An empty dir means DefaultDir().
func New(dir string, logger *zap.Logger) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Store{
		dir:      dir,
		hostname: os.Hostname,
		newUUID:  uuid.New,
		logger:   logger,
	}
}

// DefaultDir returns the per-OS state directory: %APPDATA%\MoltSOC on
// Windows, otherwise MOLTSOC_STATE_DIR or ./.moltsoc.
func DefaultDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "MoltSOC")
		}
	}
	if dir := os.Getenv("MOLTSOC_STATE_DIR"); dir != "" {
		return dir
	}
	return ".moltsoc"
}

// Path returns the identity record path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

// GetOrCreateBotID returns explicit when set (without persisting it), else
// the stored bot id, else a new "<hostname>-<uuid prefix>" id which is
// persisted best-effort.
func (s *Store) GetOrCreateBotID(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if rec, err := s.load(); err == nil && rec.BotID != "" {
		return rec.BotID
	} else if err != nil {
		s.logger.Debug("identity record unavailable", zap.String("path", s.Path()), zap.Error(err))
	}

	host, err := s.hostname()
	if err != nil || host == "" {
		host = "host"
	}
	id := s.newUUID().String()
	rec := Record{BotID: host + "-" + id[:8], UUID: id}

	if err := s.save(rec); err != nil {
		s.logger.Debug("identity record not persisted", zap.String("path", s.Path()), zap.Error(err))
	}
	return rec.BotID
}

func (s *Store) load() (Record, error) {
	var rec Record
	data, err := os.ReadFile(s.Path())
	if err != nil {
		return rec, fmt.Errorf("read identity: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode identity: %w", err)
	}
	return rec, nil
}

func (s *Store) save(rec Record) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := os.WriteFile(s.Path(), data, 0o644); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}
