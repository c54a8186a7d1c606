package event

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Type is the closed set of event kinds understood by the dashboard and plugin.
type Type string

const (
	TypeGatewayStatus Type = "gateway_status"
	TypeAuthWarning   Type = "auth_warning"
	TypeToolCall      Type = "tool_call"
	TypeError         Type = "error"
	TypeNetworkHint   Type = "network_hint"
	TypeHeartbeat     Type = "heartbeat"
	TypeConfigChange  Type = "config_change"
	TypeAlert         Type = "alert"
)

// Types lists every valid Type in declaration order.
var Types = []Type{
	TypeGatewayStatus,
	TypeAuthWarning,
	TypeToolCall,
	TypeError,
	TypeNetworkHint,
	TypeHeartbeat,
	TypeConfigChange,
	TypeAlert,
}

// Valid reports whether t is one of the known event types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Severity is an ordered label. Use Rank for comparisons, never the string.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity from least to most urgent.
var Severities = []Severity{
	SeverityInfo,
	SeverityLow,
	SeverityMedium,
	SeverityHigh,
	SeverityCritical,
}

// Rank returns the position of s in Severities, or -1 for an unknown label.
func (s Severity) Rank() int {
	for i, known := range Severities {
		if s == known {
			return i
		}
	}
	return -1
}

// AtLeast reports whether s is as urgent as min or more.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// TimeLayout is the wire format of Event.Timestamp: ISO-8601, UTC, milliseconds.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Detail keys shared between the writer, the rule engine and the watchers.
const (
	DetailRawLine   = "raw_line"
	DetailStderr    = "stderr"
	DetailRule      = "rule"
	DetailThreshold = "threshold"
	DetailWindow    = "window"
	DetailEvidence  = "evidence"
)

// Event is one immutable observation. Correlation ids are empty strings when
// unknown so consumers can filter without null checks.
type Event struct {
	Timestamp time.Time
	HostID    string
	BotID     string
	SessionID string
	ChannelID string
	Type      Type
	Severity  Severity
	Summary   string
	Details   map[string]any
}

// wireEvent is the JSON shape consumed by the dashboard and plugin.
type wireEvent struct {
	Timestamp string         `json:"ts"`
	HostID    string         `json:"host_id"`
	BotID     string         `json:"bot_id"`
	SessionID string         `json:"session_id"`
	ChannelID string         `json:"channel_id"`
	Type      Type           `json:"type"`
	Severity  Severity       `json:"severity"`
	Summary   string         `json:"summary"`
	Details   map[string]any `json:"details"`
}

var hostID = sync.OnceValue(func() string {
	if v := os.Getenv("MOLTSOC_HOST_ID"); v != "" {
		return v
	}
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown-host"
	}
	return name
})

// HostID returns the process-wide host identifier. It is resolved once.
func HostID() string {
	return hostID()
}

// New returns an event stamped with the current time and the host id.
func New(typ Type, sev Severity, summary string) Event {
	return Event{
		Timestamp: time.Now(),
		HostID:    HostID(),
		Type:      typ,
		Severity:  sev,
		Summary:   summary,
		Details:   map[string]any{},
	}
}

// AlertInfo carries the rule-specific part of an alert's details.
type AlertInfo struct {
	Rule      string
	Threshold int    // 0 for immediate rules
	Window    string // "" for immediate rules
	Evidence  []string
}

// NewAlert builds an alert event at ts. Threshold and window are only
// recorded for windowed rules.
func NewAlert(ts time.Time, sev Severity, summary string, info AlertInfo) Event {
	ev := New(TypeAlert, sev, summary)
	ev.Timestamp = ts
	evidence := info.Evidence
	if evidence == nil {
		evidence = []string{}
	}
	ev.Details[DetailRule] = info.Rule
	ev.Details[DetailEvidence] = evidence
	if info.Threshold > 0 {
		ev.Details[DetailThreshold] = info.Threshold
		ev.Details[DetailWindow] = info.Window
	}
	return ev
}

// Clone returns a copy that shares no mutable state with e at the first
// level: the details map and an evidence slice are copied.
func (e Event) Clone() Event {
	out := e
	out.Details = make(map[string]any, len(e.Details))
	for k, v := range e.Details {
		if k == DetailEvidence {
			if list, ok := v.([]string); ok {
				v = append([]string(nil), list...)
			}
		}
		out.Details[k] = v
	}
	return out
}

// Rule returns the alert rule id, or "" for non-alert events.
func (e Event) Rule() string {
	rule, _ := e.Details[DetailRule].(string)
	return rule
}

// MarshalJSON encodes the event in the persisted/streamed wire format.
func (e Event) MarshalJSON() ([]byte, error) {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	return json.Marshal(wireEvent{
		Timestamp: FormatTimestamp(e.Timestamp),
		HostID:    e.HostID,
		BotID:     e.BotID,
		SessionID: e.SessionID,
		ChannelID: e.ChannelID,
		Type:      e.Type,
		Severity:  e.Severity,
		Summary:   e.Summary,
		Details:   details,
	})
}

// UnmarshalJSON decodes the wire format. Evidence lists come back as []string.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ts, err := ParseTimestamp(w.Timestamp)
	if err != nil {
		return err
	}
	if raw, ok := w.Details[DetailEvidence].([]any); ok {
		list := make([]string, 0, len(raw))
		for _, item := range raw {
			list = append(list, fmt.Sprint(item))
		}
		w.Details[DetailEvidence] = list
	}
	*e = Event{
		Timestamp: ts,
		HostID:    w.HostID,
		BotID:     w.BotID,
		SessionID: w.SessionID,
		ChannelID: w.ChannelID,
		Type:      w.Type,
		Severity:  w.Severity,
		Summary:   w.Summary,
		Details:   w.Details,
	}
	return nil
}

// FormatTimestamp renders t in the wire format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTimestamp accepts RFC 3339 timestamps plus the looser shapes found in
// agent logs: a space instead of "T", a "+hhmm" zone, or no zone at all.
// Zone-less values are read in local time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999Z0700"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: unrecognized format", s)
}
