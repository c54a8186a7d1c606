package api

import "github.com/securityjoes/MoltSoc/internal/event"

// --- GET /health ---

// HealthResp is the liveness probe body used by the process manager.
type HealthResp struct {
	Status string `json:"status"`
	TS     string `json:"ts"`
}

// --- GET /stats ---

// StatsResp summarizes the buffered events.
type StatsResp struct {
	Total       int             `json:"total"`
	Alerts      int             `json:"alerts"`
	ByType      map[string]int  `json:"by_type"`
	BySeverity  map[string]int  `json:"by_severity"`
	TopRules    []RuleCountResp `json:"top_rules"`
	Oldest      *string         `json:"oldest"`
	Newest      *string         `json:"newest"`
	Subscribers int             `json:"subscribers"`
}

// RuleCountResp holds the number of alerts raised by one rule.
type RuleCountResp struct {
	Rule  string `json:"rule"`
	Count int    `json:"count"`
}

// --- Errors ---

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}

// --- GET /history ---

// HistoryResp is one page of mirrored events, newest first.
type HistoryResp struct {
	Events   []event.Event `json:"events"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}
