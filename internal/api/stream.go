package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/securityjoes/MoltSoc/internal/event"
	"go.uber.org/zap"
)

// handleStream pushes every event submitted after the request as a
// server-sent event. Delivery is best-effort: when the client falls behind
// the connection queue fills and new events are dropped for it.
func (d *Dependencies) handleStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		d.Logger.Warn("stream flush unsupported", zap.Error(err))
		return
	}

	queue := make(chan event.Event, d.streamBuffer())
	var dropped atomic.Int64
	unsubscribe := d.Events.Subscribe(func(ev event.Event) {
		select {
		case queue <- ev:
		default:
			dropped.Add(1)
		}
	})
	defer func() {
		unsubscribe()
		if n := dropped.Load(); n > 0 {
			d.Logger.Warn("stream client fell behind", zap.Int64("dropped", n))
		}
	}()

	ping := time.NewTicker(d.pingInterval())
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-queue:
			data, err := json.Marshal(ev)
			if err != nil {
				d.Logger.Warn("stream marshal failed", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
		case <-ping.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
