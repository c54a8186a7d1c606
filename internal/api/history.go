package api

import (
	"net/http"
	"time"

	"github.com/securityjoes/MoltSoc/internal/event"
	"github.com/securityjoes/MoltSoc/internal/storage"
	"go.uber.org/zap"
)

// handleHistory pages through events mirrored to ClickHouse, newest first.
// It reaches past the in-memory buffer.
func (d *Dependencies) handleHistory(w http.ResponseWriter, r *http.Request) {
	if d.History == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	filter, problem := parseFilter(q)
	if problem != "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: problem})
		return
	}

	params := storage.HistoryQuery{
		HostID:      q.Get("host_id"),
		BotID:       q.Get("bot_id"),
		Type:        filter.typ,
		MinSeverity: filter.minSeverity,
		Rule:        filter.rule,
		Page:        queryInt(q, "page", 1),
		PageSize:    queryInt(q, "page_size", 100),
	}
	if params.PageSize > storage.MaxHistoryPageSize {
		params.PageSize = storage.MaxHistoryPageSize
	}
	if params.PageSize < 1 {
		params.PageSize = 100
	}
	if params.Page < 1 {
		params.Page = 1
	}

	for _, bound := range []struct {
		key string
		dst **time.Time
	}{
		{"since", &params.Since},
		{"until", &params.Until},
	} {
		v := q.Get(bound.key)
		if v == "" {
			continue
		}
		t, err := event.ParseTimestamp(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid " + bound.key + " timestamp: " + v})
			return
		}
		*bound.dst = &t
	}

	events, total, err := d.History.History(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list history", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list history"})
		return
	}
	if events == nil {
		events = []event.Event{}
	}

	writeJSON(w, http.StatusOK, HistoryResp{
		Events:   events,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}
