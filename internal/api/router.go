package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/securityjoes/MoltSoc/internal/event"
	"github.com/securityjoes/MoltSoc/internal/storage"
	"go.uber.org/zap"
)

const (
	// DefaultStreamBuffer is the per-connection queue of undelivered events.
	DefaultStreamBuffer = 256
	// DefaultPingInterval is the keep-alive comment period on /stream.
	DefaultPingInterval = 15 * time.Second
)

// EventSource is the read side of the event writer.
type EventSource interface {
	List() []event.Event
	ListSince(since time.Time) []event.Event
	Subscribe(fn func(event.Event)) (unsubscribe func())
	Subscribers() int
}

// HistoryReader queries events mirrored to long-term storage.
type HistoryReader interface {
	History(ctx context.Context, q storage.HistoryQuery) ([]event.Event, int, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Events       EventSource
	History      HistoryReader // nil if ClickHouse unavailable
	Logger       *zap.Logger
	StreamBuffer int           // 0 = DefaultStreamBuffer
	PingInterval time.Duration // 0 = DefaultPingInterval
	Now          func() time.Time
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", deps.handleHealth)
	mux.HandleFunc("GET /events", deps.handleListEvents)
	mux.HandleFunc("GET /stats", deps.handleStats)
	mux.HandleFunc("GET /history", deps.handleHistory)
	mux.HandleFunc("GET /stream", deps.handleStream)
	mux.HandleFunc("GET /{$}", handleIndex)
	mux.HandleFunc("/", handleNotFound)

	return corsMiddleware(requestLogging(mux, deps.Logger))
}

func (d *Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dependencies) streamBuffer() int {
	if d.StreamBuffer > 0 {
		return d.StreamBuffer
	}
	return DefaultStreamBuffer
}

func (d *Dependencies) pingInterval() time.Duration {
	if d.PingInterval > 0 {
		return d.PingInterval
	}
	return DefaultPingInterval
}

const indexPage = `<!DOCTYPE html><html><head><meta charset="utf-8"><title>MoltSOC collector</title></head><body style="font-family:sans-serif;padding:2rem;max-width:40rem;">
<h1>MoltSOC collector (API only)</h1>
<p>This is the <strong>collector API</strong>. It does not serve the dashboard.</p>
<p>Start the dashboard separately and point it at this address.</p>
<p>API endpoints: <a href="/health">/health</a>, <a href="/events">/events</a>, <a href="/stream">/stream</a>, <a href="/stats">/stats</a></p>
</body></html>`

func handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, indexPage) //nolint:errcheck
}

func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	io.WriteString(w, "Not found. Use /health, /events, or /stream.") //nolint:errcheck
}
