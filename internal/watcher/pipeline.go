// Package watcher turns agent log files and companion CLI polls into events.
package watcher

import (
	"time"

	"github.com/securityjoes/MoltSoc/internal/engine"
	"github.com/securityjoes/MoltSoc/internal/event"
	"github.com/securityjoes/MoltSoc/internal/parser"
)

// Submitter accepts events for redaction, persistence and fan-out.
type Submitter interface {
	Submit(ev event.Event, redact bool) event.Event
}

// Pipeline stamps events with the collector identity and submits them,
// together with any alerts the engine raises.
type Pipeline struct {
	out    Submitter
	engine *engine.Engine
	redact bool
	botID  string
	now    func() time.Time
}

// NewPipeline creates a pipeline writing to out.
func NewPipeline(out Submitter, eng *engine.Engine, redact bool, botID string) *Pipeline {
	return &Pipeline{
		out:    out,
		engine: eng,
		redact: redact,
		botID:  botID,
		now:    time.Now,
	}
}

// ProcessLine parses one log line, submits it as a "Log line" event and then
// submits one alert per rule it triggers, all at the line's timestamp.
func (p *Pipeline) ProcessLine(line string) {
	res := parser.Parse(line, p.now())
	found := p.engine.CheckLine(line, res.Timestamp)

	ev := event.New(event.TypeToolCall, event.SeverityInfo, "Log line")
	ev.Timestamp = res.Timestamp
	ev.Details = res.Details
	p.Emit(ev)

	for _, c := range found {
		p.Emit(c.Alert(res.Timestamp))
	}
}

// ProcessStatus runs the status rules against snap and submits their alerts
// at ts. It returns the number of alerts raised.
func (p *Pipeline) ProcessStatus(snap engine.Snapshot, ts time.Time) int {
	found := p.engine.CheckStatus(snap)
	for _, c := range found {
		p.Emit(c.Alert(ts))
	}
	return len(found)
}

// Emit submits ev, filling in the bot id when unset.
func (p *Pipeline) Emit(ev event.Event) event.Event {
	if ev.BotID == "" {
		ev.BotID = p.botID
	}
	return p.out.Submit(ev, p.redact)
}

// BotID returns the identity stamped on events.
func (p *Pipeline) BotID() string {
	return p.botID
}
