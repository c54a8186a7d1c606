package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/securityjoes/MoltSoc/internal/event"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 500 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

const createEventsTable = `
	CREATE TABLE IF NOT EXISTS soc_events (
		ts         DateTime64(3, 'UTC'),
		host_id    LowCardinality(String),
		bot_id     String,
		session_id String,
		channel_id String,
		type       LowCardinality(String),
		severity   LowCardinality(String),
		summary    String,
		rule       LowCardinality(String),
		details    String
	) ENGINE = MergeTree
	ORDER BY (host_id, ts)
`

// ClickHouseSink mirrors events into ClickHouse asynchronously.
// Write is non-blocking; events are buffered and batch-inserted in a
// background goroutine.
type ClickHouseSink struct {
	conn    driver.Conn
	buffer  chan event.Event
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// NewClickHouseSink connects to dsn, creates the events table if needed and
// starts the flush loop.
func NewClickHouseSink(ctx context.Context, dsn string, logger *zap.Logger) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	if err := conn.Exec(ctx, createEventsTable); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create soc_events: %w", err)
	}

	s := &ClickHouseSink{
		conn:    conn,
		buffer:  make(chan event.Event, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go s.flushLoop()
	return s, nil
}

// Write queues ev for insertion, dropping it if the buffer is full.
func (s *ClickHouseSink) Write(ev event.Event) {
	select {
	case s.buffer <- ev:
	default:
		s.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("type", string(ev.Type)),
		)
	}
}

// Close writes out everything still queued, in flushBatch-sized inserts, for
// at most drainTimeout, then closes the connection. Detach the sink from the
// writer first; call Close once.
func (s *ClickHouseSink) Close() {
	close(s.done)
	<-s.flushed
	if err := s.conn.Close(); err != nil {
		s.logger.Warn("clickhouse close failed", zap.Error(err))
	}
}

func (s *ClickHouseSink) flushLoop() {
	defer close(s.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]event.Event, 0, flushBatch)
	for {
		select {
		case ev := <-s.buffer:
			batch = append(batch, ev)
			if len(batch) < flushBatch {
				continue
			}
		case <-ticker.C:
		case <-s.done:
			s.drain(batch)
			return
		}
		if len(batch) > 0 {
			s.flush(context.Background(), batch)
			batch = batch[:0]
		}
	}
}

// drain flushes pending plus the queued events. Only flushLoop receives from
// the buffer, so len(s.buffer) events are always ready.
func (s *ClickHouseSink) drain(pending []event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	written, dropped := 0, 0
	for {
		for n := len(s.buffer); n > 0 && len(pending) < flushBatch; n-- {
			pending = append(pending, <-s.buffer)
		}
		if len(pending) == 0 {
			break
		}
		if ctx.Err() != nil {
			dropped = len(pending) + len(s.buffer)
			break
		}
		s.flush(ctx, pending)
		written += len(pending)
		pending = pending[:0]
	}

	if dropped > 0 {
		s.logger.Warn("clickhouse drain timed out",
			zap.Int("written", written),
			zap.Int("dropped", dropped),
		)
		return
	}
	s.logger.Debug("clickhouse sink drained", zap.Int("written", written))
}

func (s *ClickHouseSink) flush(parent context.Context, events []event.Event) {
	ctx, cancel := context.WithTimeout(parent, 5*time.Second)
	defer cancel()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO soc_events (
			ts, host_id, bot_id, session_id, channel_id,
			type, severity, summary, rule, details
		)
	`)
	if err != nil {
		s.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, ev := range events {
		details, err := json.Marshal(ev.Details)
		if err != nil {
			details = []byte("{}")
		}
		if err := batch.Append(
			ev.Timestamp.UTC(),
			ev.HostID,
			ev.BotID,
			ev.SessionID,
			ev.ChannelID,
			string(ev.Type),
			string(ev.Severity),
			ev.Summary,
			ev.Rule(),
			string(details),
		); err != nil {
			s.logger.Error("clickhouse append event failed",
				zap.String("type", string(ev.Type)),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		s.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}
