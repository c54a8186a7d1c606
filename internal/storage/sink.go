package storage

import (
	"github.com/securityjoes/MoltSoc/internal/event"
	"go.uber.org/zap"
)

// Sink mirrors finalized events to a secondary destination.
// Write runs under the writer lock and must not block.
type Sink interface {
	Write(ev event.Event)
	Close()
}

// LogSink is the fallback Sink used when no database is configured.
// Alerts are logged at warn, everything else at debug.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink that outputs events to the given logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(ev event.Event) {
	fields := []zap.Field{
		zap.String("type", string(ev.Type)),
		zap.String("severity", string(ev.Severity)),
		zap.String("summary", ev.Summary),
		zap.String("ts", event.FormatTimestamp(ev.Timestamp)),
	}
	if ev.BotID != "" {
		fields = append(fields, zap.String("bot_id", ev.BotID))
	}
	if ev.Type != event.TypeAlert {
		s.logger.Debug("soc_event", fields...)
		return
	}
	fields = append(fields, zap.String("rule", ev.Rule()))
	s.logger.Warn("soc_alert", fields...)
}

func (s *LogSink) Close() {}
