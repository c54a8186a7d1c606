package engine

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/securityjoes/MoltSoc/internal/event"
	"golang.org/x/crypto/blake2b"
)

const (
	// SignaturePrefix is the number of characters of a line kept in its signature.
	SignaturePrefix = 200
	// DefaultSignatureCapacity bounds the number of distinct signatures tracked.
	DefaultSignatureCapacity = 500
)

var digitRun = regexp.MustCompile(`\d+`)

type signatureKey [16]byte

// Signature normalizes line for loop detection: the first SignaturePrefix
// characters with every digit run collapsed to "0".
func Signature(line string) string {
	if utf8.RuneCountInString(line) > SignaturePrefix {
		n := 0
		for i := range line {
			if n == SignaturePrefix {
				line = line[:i]
				break
			}
			n++
		}
	}
	return digitRun.ReplaceAllString(line, "0")
}

// SignatureTracker keeps one sliding window per line signature. Keys are
// BLAKE2b-128 digests of the signature so no raw log text is retained.
// When full, a new signature evicts the oldest-inserted one.
type SignatureTracker struct {
	capacity int
	window   time.Duration
	windows  map[signatureKey]*Window
	order    []signatureKey // insertion order, oldest first
}

// NewSignatureTracker creates a tracker holding at most capacity signatures,
// each with a window of the given size.
func NewSignatureTracker(capacity int, window time.Duration) *SignatureTracker {
	if capacity <= 0 {
		capacity = DefaultSignatureCapacity
	}
	return &SignatureTracker{
		capacity: capacity,
		window:   window,
		windows:  make(map[signatureKey]*Window, capacity),
	}
}

// Observe records line at now and returns the count in its signature's window.
func (s *SignatureTracker) Observe(line string, now time.Time) int {
	key := digest(Signature(line))
	w, ok := s.windows[key]
	if !ok {
		if len(s.windows) >= s.capacity {
			oldest := s.order[0]
			s.order = append(s.order[:0], s.order[1:]...)
			delete(s.windows, oldest)
		}
		w = NewWindow(s.window)
		s.windows[key] = w
		s.order = append(s.order, key)
	}
	return w.Add(now)
}

// Len returns the number of tracked signatures.
func (s *SignatureTracker) Len() int {
	return len(s.windows)
}

func digest(sig string) signatureKey {
	var key signatureKey
	h, _ := blake2b.New(len(key), nil) // only fails for bad sizes or keys
	h.Write([]byte(sig))
	copy(key[:], h.Sum(nil))
	return key
}

// Window is a sliding window of observation times. Entries strictly older
// than the newest observation minus the window size are dropped.
type Window struct {
	size  time.Duration
	times []time.Time
}

// NewWindow creates an empty window spanning size.
func NewWindow(size time.Duration) *Window {
	return &Window{size: size}
}

// Add records an observation at now, trims, and returns the window size.
func (w *Window) Add(now time.Time) int {
	w.times = append(w.times, now)
	w.Trim(now)
	return len(w.times)
}

// Trim drops entries with t < now - size. An entry exactly on the edge stays.
func (w *Window) Trim(now time.Time) {
	cutoff := now.Add(-w.size)
	i := 0
	for i < len(w.times) && w.times[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}

// Len returns the number of entries currently held.
func (w *Window) Len() int {
	return len(w.times)
}

// Evidence renders the held timestamps in the event wire format.
func (w *Window) Evidence() []string {
	out := make([]string, len(w.times))
	for i, t := range w.times {
		out[i] = event.FormatTimestamp(t)
	}
	return out
}

// FormatWindow renders a window size as "5m" or "30s".
func FormatWindow(d time.Duration) string {
	if d > 0 && d%time.Minute == 0 {
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	return fmt.Sprintf("%ds", d/time.Second)
}
