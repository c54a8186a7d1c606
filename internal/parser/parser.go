// Package parser extracts the timestamp from free-form agent log lines.
package parser

import (
	"regexp"
	"time"

	"github.com/securityjoes/MoltSoc/internal/event"
)

var timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)

// Result is the parsed form of one log line.
type Result struct {
	Timestamp time.Time
	Details   map[string]any
}

// Parse returns the first embedded timestamp in line, or now when there is
// none or it cannot be read. Details always carry the untruncated line.
func Parse(line string, now time.Time) Result {
	ts := now
	if m := timestampPattern.FindString(line); m != "" {
		if t, err := event.ParseTimestamp(m); err == nil {
			ts = t
		}
	}
	return Result{
		Timestamp: ts,
		Details:   map[string]any{event.DetailRawLine: line},
	}
}
