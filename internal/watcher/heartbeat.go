package watcher

import (
	"context"
	"time"

	"github.com/securityjoes/MoltSoc/internal/event"
)

// DefaultHeartbeatInterval is the period of collector heartbeat events.
const DefaultHeartbeatInterval = 30 * time.Second

// RunHeartbeat emits a heartbeat event every interval until ctx is done.
func RunHeartbeat(ctx context.Context, p *Pipeline, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Emit(event.New(event.TypeHeartbeat, event.SeverityInfo, "Collector heartbeat"))
		}
	}
}
