package watcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	// DefaultTickInterval is the fallback re-check period when no file
	// notification arrives.
	DefaultTickInterval = 3 * time.Second

	// maxPartialLine bounds a line still waiting for its newline.
	maxPartialLine = 1 << 20
)

// LineHandler receives one complete, non-empty line.
type LineHandler func(line string)

// FileWatcher tails a log file, or every .log/.txt file in a directory.
type FileWatcher struct {
	target   string
	handle   LineHandler
	interval time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	isDir bool
	files map[string]*tailedFile
}

type tailedFile struct {
	path    string
	offset  int64
	partial []byte
}

// NewFileWatcher creates a watcher for target. Call Start before Run.
func NewFileWatcher(target string, handle LineHandler, logger *zap.Logger) *FileWatcher {
	return &FileWatcher{
		target:   filepath.Clean(target),
		handle:   handle,
		interval: DefaultTickInterval,
		logger:   logger,
		files:    make(map[string]*tailedFile),
	}
}

// IsLogFile reports whether name has a tailed extension.
func IsLogFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".log" || ext == ".txt"
}

// Start creates a missing target file (and its parents), then feeds every
// line already present.
func (w *FileWatcher) Start() error {
	info, err := os.Stat(w.target)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(w.target), 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		f, createErr := os.OpenFile(w.target, os.O_CREATE|os.O_WRONLY, 0o644)
		if createErr != nil {
			return fmt.Errorf("create log file: %w", createErr)
		}
		f.Close()
		info, err = os.Stat(w.target)
	}
	if err != nil {
		return fmt.Errorf("stat log target: %w", err)
	}

	w.mu.Lock()
	w.isDir = info.IsDir()
	if !w.isDir {
		w.files[w.target] = &tailedFile{path: w.target}
	}
	w.mu.Unlock()

	w.logger.Info("tailing logs", zap.String("target", w.target), zap.Bool("directory", info.IsDir()))
	w.Tick()
	return nil
}

// Run re-checks the target on file notifications and on the fallback
// ticker until ctx is done. Notifications are best-effort; the ticker alone
// is enough to make progress.
func (w *FileWatcher) Run(ctx context.Context) error {
	var events <-chan fsnotify.Event
	var errs <-chan error

	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("file notifications unavailable, polling only", zap.Error(err))
	} else {
		defer notifier.Close()
		if err := notifier.Add(w.watchDir()); err != nil {
			w.logger.Warn("cannot watch log directory, polling only",
				zap.String("dir", w.watchDir()),
				zap.Error(err),
			)
		} else {
			events, errs = notifier.Events, notifier.Errors
		}
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Tick()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if w.relevant(ev.Name) {
				w.Tick()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("file notification error", zap.Error(err))
		}
	}
}

func (w *FileWatcher) watchDir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isDir {
		return w.target
	}
	return filepath.Dir(w.target)
}

func (w *FileWatcher) relevant(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isDir {
		return IsLogFile(name)
	}
	return filepath.Clean(name) == w.target
}

// Tick reads whatever was appended since the last call and feeds complete
// lines. It is idempotent when nothing changed.
func (w *FileWatcher) Tick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isDir {
		w.scanDir()
	}
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		w.readAppended(w.files[p])
	}
}

// scanDir starts tailing log files that appeared in the target directory.
func (w *FileWatcher) scanDir() {
	entries, err := os.ReadDir(w.target)
	if err != nil {
		w.logger.Warn("read log directory failed", zap.String("dir", w.target), zap.Error(err))
		return
	}
	for _, e := range entries {
		if e.IsDir() || !IsLogFile(e.Name()) {
			continue
		}
		p := filepath.Join(w.target, e.Name())
		if _, ok := w.files[p]; !ok {
			w.files[p] = &tailedFile{path: p}
		}
	}
}

func (w *FileWatcher) readAppended(tf *tailedFile) {
	f, err := os.Open(tf.path)
	if err != nil {
		w.logger.Debug("open log file failed", zap.String("path", tf.path), zap.Error(err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		w.logger.Debug("stat log file failed", zap.String("path", tf.path), zap.Error(err))
		return
	}
	size := info.Size()
	if size < tf.offset {
		w.logger.Info("log file shrank, reading from start", zap.String("path", tf.path))
		tf.offset = 0
		tf.partial = nil
	}
	if size == tf.offset {
		return
	}

	buf := make([]byte, size-tf.offset)
	n, err := f.ReadAt(buf, tf.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		w.logger.Warn("read log file failed", zap.String("path", tf.path), zap.Error(err))
		return
	}
	tf.offset += int64(n)

	data := append(tf.partial, buf[:n]...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		w.emit(data[:i])
		data = data[i+1:]
	}
	if len(data) > maxPartialLine {
		w.emit(data)
		data = nil
	}
	tf.partial = append([]byte(nil), data...)
}

func (w *FileWatcher) emit(raw []byte) {
	line := strings.TrimRight(string(raw), "\r")
	if line == "" {
		return
	}
	w.handle(line)
}

// Files returns the paths currently tailed.
func (w *FileWatcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for p := range w.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
