package api

import (
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/securityjoes/MoltSoc/internal/event"
)

func (d *Dependencies) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResp{Status: "ok", TS: event.FormatTimestamp(d.now())})
}

// eventFilter narrows a buffer snapshot. Zero values match everything.
type eventFilter struct {
	typ         event.Type
	minSeverity event.Severity
	rule        string
	limit       int
}

func (f eventFilter) match(ev event.Event) bool {
	if f.typ != "" && ev.Type != f.typ {
		return false
	}
	if f.minSeverity != "" && !ev.Severity.AtLeast(f.minSeverity) {
		return false
	}
	if f.rule != "" && !strings.EqualFold(ev.Rule(), f.rule) {
		return false
	}
	return true
}

func parseFilter(q url.Values) (eventFilter, string) {
	f := eventFilter{limit: queryInt(q, "limit", 0)}
	if v := q.Get("type"); v != "" {
		f.typ = event.Type(v)
		if !f.typ.Valid() {
			return f, "Unknown event type: " + v
		}
	}
	if v := q.Get("min_severity"); v != "" {
		f.minSeverity = event.Severity(strings.ToLower(v))
		if f.minSeverity.Rank() < 0 {
			return f, "Unknown severity: " + v
		}
	}
	f.rule = strings.TrimSpace(q.Get("rule"))
	return f, ""
}

// handleListEvents returns buffered events in insertion order, optionally
// only those strictly after ?since=. The body is always a JSON array.
func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var events []event.Event
	if v := q.Get("since"); v != "" {
		since, err := event.ParseTimestamp(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid since timestamp: " + v})
			return
		}
		events = d.Events.ListSince(since)
	} else {
		events = d.Events.List()
	}

	filter, problem := parseFilter(q)
	if problem != "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: problem})
		return
	}

	out := make([]event.Event, 0, len(events))
	for _, ev := range events {
		if filter.match(ev) {
			out = append(out, ev)
		}
	}
	if filter.limit > 0 && len(out) > filter.limit {
		out = out[len(out)-filter.limit:]
	}

	writeJSON(w, http.StatusOK, out)
}

// handleStats aggregates the buffered events by type, severity and rule.
func (d *Dependencies) handleStats(w http.ResponseWriter, _ *http.Request) {
	events := d.Events.List()

	resp := StatsResp{
		Total:       len(events),
		ByType:      make(map[string]int, len(event.Types)),
		BySeverity:  make(map[string]int, len(event.Severities)),
		TopRules:    []RuleCountResp{},
		Subscribers: d.Events.Subscribers(),
	}
	rules := make(map[string]int)
	for _, ev := range events {
		resp.ByType[string(ev.Type)]++
		resp.BySeverity[string(ev.Severity)]++
		if ev.Type == event.TypeAlert {
			resp.Alerts++
			rules[ev.Rule()]++
		}
	}
	for rule, n := range rules {
		resp.TopRules = append(resp.TopRules, RuleCountResp{Rule: rule, Count: n})
	}
	sort.Slice(resp.TopRules, func(i, j int) bool {
		a, b := resp.TopRules[i], resp.TopRules[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Rule < b.Rule
	})
	if len(events) > 0 {
		oldest := event.FormatTimestamp(events[0].Timestamp)
		newest := event.FormatTimestamp(events[len(events)-1].Timestamp)
		resp.Oldest, resp.Newest = &oldest, &newest
	}

	writeJSON(w, http.StatusOK, resp)
}

func queryInt(q url.Values, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
