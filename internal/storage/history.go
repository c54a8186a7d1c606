package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/securityjoes/MoltSoc/internal/event"
)

// MaxHistoryPageSize caps one page of History results.
const MaxHistoryPageSize = 500

// HistoryQuery filters and paginates mirrored events. Zero values match
// everything.
type HistoryQuery struct {
	HostID      string
	BotID       string
	Type        event.Type
	MinSeverity event.Severity
	Rule        string
	Since       *time.Time // exclusive
	Until       *time.Time // inclusive
	Page        int
	PageSize    int
}

func (q *HistoryQuery) normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 100
	}
	if q.PageSize > MaxHistoryPageSize {
		q.PageSize = MaxHistoryPageSize
	}
}

// where builds the filter clause and its named arguments.
func (q HistoryQuery) where() (string, []any) {
	conditions := []string{"1 = 1"}
	var args []any

	if q.HostID != "" {
		conditions = append(conditions, "host_id = @host_id")
		args = append(args, clickhouse.Named("host_id", q.HostID))
	}
	if q.BotID != "" {
		conditions = append(conditions, "bot_id = @bot_id")
		args = append(args, clickhouse.Named("bot_id", q.BotID))
	}
	if q.Type != "" {
		conditions = append(conditions, "type = @type")
		args = append(args, clickhouse.Named("type", string(q.Type)))
	}
	if q.MinSeverity != "" {
		var allowed []string
		for _, s := range event.Severities {
			if s.AtLeast(q.MinSeverity) {
				allowed = append(allowed, string(s))
			}
		}
		conditions = append(conditions, "severity IN (@severities)")
		args = append(args, clickhouse.Named("severities", allowed))
	}
	if q.Rule != "" {
		conditions = append(conditions, "rule = @rule")
		args = append(args, clickhouse.Named("rule", strings.ToUpper(q.Rule)))
	}
	if q.Since != nil {
		conditions = append(conditions, "ts > @since")
		args = append(args, clickhouse.Named("since", q.Since.UTC()))
	}
	if q.Until != nil {
		conditions = append(conditions, "ts <= @until")
		args = append(args, clickhouse.Named("until", q.Until.UTC()))
	}
	return strings.Join(conditions, " AND "), args
}

// History returns one page of mirrored events, newest first, and the total
// number of matches.
func (s *ClickHouseSink) History(ctx context.Context, q HistoryQuery) ([]event.Event, int, error) {
	q.normalize()
	where, args := q.where()

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM soc_events WHERE %s", where)
	if err := s.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("history count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT ts, host_id, bot_id, session_id, channel_id, type, severity, summary, details "+
			"FROM soc_events WHERE %s "+
			"ORDER BY ts DESC "+
			"LIMIT @limit OFFSET @offset",
		where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(q.PageSize)),
		clickhouse.Named("offset", uint32((q.Page-1)*q.PageSize)),
	)

	rows, err := s.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("history query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []event.Event{}
	for rows.Next() {
		var (
			ev               event.Event
			typ, sev, detail string
		)
		if err := rows.Scan(
			&ev.Timestamp, &ev.HostID, &ev.BotID, &ev.SessionID, &ev.ChannelID,
			&typ, &sev, &ev.Summary, &detail,
		); err != nil {
			return nil, 0, fmt.Errorf("history scan: %w", err)
		}
		ev.Type = event.Type(typ)
		ev.Severity = event.Severity(sev)
		ev.Details = decodeDetails(detail)
		events = append(events, ev)
	}
	return events, int(total), rows.Err()
}

// decodeDetails parses a stored details column. Unreadable values come back
// empty rather than failing the page.
func decodeDetails(raw string) map[string]any {
	details := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		return map[string]any{}
	}
	if list, ok := details[event.DetailEvidence].([]any); ok {
		evidence := make([]string, 0, len(list))
		for _, item := range list {
			evidence = append(evidence, fmt.Sprint(item))
		}
		details[event.DetailEvidence] = evidence
	}
	return details
}
