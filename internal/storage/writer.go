package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/securityjoes/MoltSoc/internal/event"
	"go.uber.org/zap"
)

const (
	// DefaultCapacity is the number of events kept in memory when unset.
	DefaultCapacity = 10_000
	// MinCapacity is the floor applied to any configured capacity.
	MinCapacity = 1_000
)

// Writer is the single owner of the in-memory event buffer, the persisted
// NDJSON stream and the subscriber set. Every Submit is applied atomically:
// redact, persist, buffer, evict, notify.
type Writer struct {
	mu   sync.Mutex
	ring *ringBuffer
	out  io.Writer // nil = no persistence

	subMu  sync.Mutex
	subs   []subscriber
	sinks  []subscriber
	nextID uint64

	logger *zap.Logger
}

type subscriber struct {
	id uint64
	fn func(event.Event)
}

// NewWriter creates a Writer that appends to out (may be nil) and buffers up
// to capacity events. Capacity is clamped like SetCapacity.
func NewWriter(out io.Writer, capacity int, logger *zap.Logger) *Writer {
	return &Writer{
		ring:   newRingBuffer(clampCapacity(capacity)),
		out:    out,
		logger: logger,
	}
}

// OpenLog opens path for appending, creating it and its parent directories.
func OpenLog(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("open event log: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	return f, nil
}

func clampCapacity(n int) int {
	if n <= 0 {
		return DefaultCapacity
	}
	if n < MinCapacity {
		return MinCapacity
	}
	return n
}

// Submit records ev and returns the finalized record. The caller keeps
// ownership of ev; the stored copy is detached from it. The timestamp is
// truncated to the millisecond precision of the wire format, so a client
// passing an event's own ts back as since never sees that event again.
// When redact is true, raw text fields never leave this function unhashed.
func (w *Writer) Submit(ev event.Event, redact bool) event.Event {
	rec := ev.Clone()
	rec.Timestamp = rec.Timestamp.Truncate(time.Millisecond)
	if redact {
		event.Redact(rec.Details)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.persist(rec)
	w.ring.push(rec)
	w.notify(rec)
	return rec
}

// persist appends rec as one JSON line. Failures are logged, never returned.
func (w *Writer) persist(rec event.Event) {
	if w.out == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		w.logger.Warn("event marshal failed", zap.String("type", string(rec.Type)), zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.out.Write(data); err != nil {
		w.logger.Warn("event log write failed", zap.Error(err))
	}
}

func (w *Writer) notify(rec event.Event) {
	w.subMu.Lock()
	subs := make([]subscriber, 0, len(w.sinks)+len(w.subs))
	subs = append(subs, w.sinks...)
	subs = append(subs, w.subs...)
	w.subMu.Unlock()

	for _, s := range subs {
		w.deliver(s, rec)
	}
}

// deliver isolates one subscriber: a panic is logged and swallowed.
func (w *Writer) deliver(s subscriber, rec event.Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("event subscriber panicked",
				zap.Uint64("subscriber", s.id),
				zap.Any("panic", r),
			)
		}
	}()
	s.fn(rec)
}

// Subscribe registers fn to receive every event submitted from now on, in
// submission order. fn runs on the submitting goroutine while the writer is
// locked, so it must not block and must not call Submit. The returned
// function removes the subscription; calling it more than once is a no-op.
func (w *Writer) Subscribe(fn func(event.Event)) (unsubscribe func()) {
	return w.register(&w.subs, fn)
}

// Attach mirrors every submitted event into sink. Sinks receive each event
// before subscribers and are not counted by Subscribers.
func (w *Writer) Attach(sink Sink) (detach func()) {
	return w.register(&w.sinks, sink.Write)
}

func (w *Writer) register(list *[]subscriber, fn func(event.Event)) func() {
	w.subMu.Lock()
	w.nextID++
	id := w.nextID
	*list = append(*list, subscriber{id: id, fn: fn})
	w.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.subMu.Lock()
			defer w.subMu.Unlock()
			for i, s := range *list {
				if s.id == id {
					*list = append((*list)[:i:i], (*list)[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribers returns the number of live subscriptions, excluding sinks.
func (w *Writer) Subscribers() int {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	return len(w.subs)
}

// List returns the buffered events in insertion order. The slice is a copy;
// event details are shared and must be treated as read-only.
func (w *Writer) List() []event.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ring.snapshot(nil)
}

// ListSince returns buffered events with a timestamp strictly after since,
// in insertion order.
func (w *Writer) ListSince(since time.Time) []event.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ring.snapshot(func(ev event.Event) bool {
		return ev.Timestamp.After(since)
	})
}

// Len returns the number of buffered events.
func (w *Writer) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ring.size
}

// Capacity returns the current buffer capacity.
func (w *Writer) Capacity() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ring.capacity()
}

// SetCapacity changes the buffer capacity (floor MinCapacity, <= 0 means
// DefaultCapacity) and drops the oldest entries that no longer fit.
func (w *Writer) SetCapacity(n int) {
	n = clampCapacity(n)
	w.mu.Lock()
	defer w.mu.Unlock()
	if n != w.ring.capacity() {
		w.ring.resize(n)
	}
}

// Close closes the persisted stream if it is closable.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.out.(io.Closer)
	w.out = nil
	if !ok {
		return nil
	}
	if err := c.Close(); err != nil {
		return fmt.Errorf("close event log: %w", err)
	}
	return nil
}

// ringBuffer is a fixed-capacity FIFO of events. It is not safe for
// concurrent use; Writer guards it.
type ringBuffer struct {
	buf  []event.Event
	head int // index of the oldest entry
	size int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]event.Event, capacity)}
}

func (r *ringBuffer) capacity() int {
	return len(r.buf)
}

// push appends ev, overwriting the oldest entry when full.
// It reports whether an entry was evicted.
func (r *ringBuffer) push(ev event.Event) bool {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = ev
		r.size++
		return false
	}
	r.buf[r.head] = ev
	r.head = (r.head + 1) % len(r.buf)
	return true
}

// snapshot returns the entries in insertion order, optionally filtered.
func (r *ringBuffer) snapshot(keep func(event.Event) bool) []event.Event {
	out := make([]event.Event, 0, r.size)
	for i := 0; i < r.size; i++ {
		ev := r.buf[(r.head+i)%len(r.buf)]
		if keep == nil || keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// resize changes the capacity, keeping the newest entries that still fit.
func (r *ringBuffer) resize(capacity int) {
	items := r.snapshot(nil)
	if len(items) > capacity {
		items = items[len(items)-capacity:]
	}
	r.buf = make([]event.Event, capacity)
	copy(r.buf, items)
	r.head = 0
	r.size = len(items)
}
