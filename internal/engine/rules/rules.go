// Package rules is the detection rule table: rule id, predicate, severity
// and summary for every alert the collector can raise.
package rules

import (
	"strings"
	"time"

	"github.com/securityjoes/MoltSoc/internal/engine"
	"github.com/securityjoes/MoltSoc/internal/event"
)

// Rule ids.
const (
	GatewayUnreachable       = "GATEWAY_UNREACHABLE"
	MissingGatewayToken      = "MISSING_GATEWAY_TOKEN"
	AuthFailureBurst         = "AUTH_FAILURE_BURST"
	PublicBind               = "PUBLIC_BIND"
	SuspiciousCommandPattern = "SUSPICIOUS_COMMAND_PATTERN"
	ToolLoop                 = "TOOL_LOOP"
	ToolFailureRate          = "TOOL_FAILURE_RATE"
	PortChanged              = "PORT_CHANGED"
	GatewayRestartLoop       = "GATEWAY_RESTART_LOOP"
)

// Thresholds and windows of the stateful rules.
const (
	AuthBurstThreshold   = 5
	AuthBurstWindow      = 60 * time.Second
	ToolLoopThreshold    = 5
	ToolFailureThreshold = 10
	ToolFailureWindow    = 60 * time.Second
	RestartLoopThreshold = 3
	RestartLoopWindow    = 5 * time.Minute
)

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func gatewayRefused(upper string) bool {
	return strings.Contains(upper, "ECONNREFUSED") && containsAny(upper, "127.0.0.1", "LOCALHOST")
}

func missingToken(upper string) bool {
	return strings.Contains(upper, "MISSING") && strings.Contains(upper, "GATEWAY") && strings.Contains(upper, "TOKEN")
}

func publicBindLine(upper string) bool {
	return strings.Contains(upper, "BIND") && containsAny(upper, "0.0.0.0", ":::0", "[::]")
}

func suspiciousCommand(upper string) bool {
	return (strings.Contains(upper, "POWERSHELL") && containsAny(upper, "-ENC", "-ENCODEDCOMMAND")) ||
		strings.Contains(upper, "IEX ") ||
		(strings.Contains(upper, "BASE64") && containsAny(upper, "DECODE", "ENCODED"))
}

func toolFailure(upper string) bool {
	return strings.Contains(upper, "TOOL") && containsAny(upper, "ERROR", "FAIL")
}

// IsPublicBind reports whether a bind address listens on every interface.
func IsPublicBind(addr string) bool {
	a := strings.ToLower(addr)
	return strings.Contains(a, "0.0.0.0") || a == "::" || strings.Contains(a, ":::0")
}

// Line returns the line rule table in evaluation order.
func Line() []engine.LineRule {
	return []engine.LineRule{
		&Immediate{
			ID:       GatewayUnreachable,
			Severity: event.SeverityHigh,
			Summary:  "Gateway unreachable (ECONNREFUSED)",
			Match:    gatewayRefused,
		},
		&Immediate{
			ID:       MissingGatewayToken,
			Severity: event.SeverityMedium,
			Summary:  "Missing gateway token warning",
			Match:    missingToken,
		},
		&Burst{
			ID:        AuthFailureBurst,
			Severity:  event.SeverityMedium,
			Summary:   "Auth failure burst (5+/min)",
			Match:     missingToken,
			Threshold: AuthBurstThreshold,
			Window:    AuthBurstWindow,
		},
		&Immediate{
			ID:       PublicBind,
			Severity: event.SeverityMedium,
			Summary:  "Bind to 0.0.0.0 detected",
			Match:    publicBindLine,
		},
		&Immediate{
			ID:       SuspiciousCommandPattern,
			Severity: event.SeverityHigh,
			Summary:  "Suspicious command pattern (powershell -enc / IEX / base64)",
			Match:    suspiciousCommand,
		},
		&Pattern{
			ID:       SecretExposure,
			Severity: event.SeverityHigh,
			Summary:  "Credential exposed in agent log",
			Patterns: secretPatterns,
		},
		&Pattern{
			ID:       RemoteScriptExecution,
			Severity: event.SeverityHigh,
			Summary:  "Remote script download and execute",
			Patterns: remoteScriptPatterns,
		},
		&Loop{
			ID:        ToolLoop,
			Severity:  event.SeverityHigh,
			Summary:   "Rapid repeated failures (tool loop)",
			Threshold: ToolLoopThreshold,
		},
		&Burst{
			ID:        ToolFailureRate,
			Severity:  event.SeverityHigh,
			Summary:   "Tool error rate (10+/min)",
			Match:     toolFailure,
			Threshold: ToolFailureThreshold,
			Window:    ToolFailureWindow,
		},
	}
}

// Status returns the status rule table in evaluation order.
func Status() []engine.StatusRule {
	return []engine.StatusRule{
		&StatusCheck{
			ID:       MissingGatewayToken,
			Severity: event.SeverityMedium,
			Summary:  "Missing gateway token",
			Check: func(_ *engine.State, snap *engine.Snapshot) []string {
				if !snap.TokenMissing {
					return nil
				}
				return []string{"gateway status output"}
			},
		},
		&StatusCheck{
			ID:       GatewayUnreachable,
			Severity: event.SeverityHigh,
			Summary:  "Gateway unreachable (RPC failed)",
			Check: func(_ *engine.State, snap *engine.Snapshot) []string {
				if !snap.RPCFailed {
					return nil
				}
				return []string{"gateway status: rpc failed"}
			},
		},
		&StatusCheck{
			ID:       PublicBind,
			Severity: event.SeverityMedium,
			Summary:  "Bind to 0.0.0.0 detected",
			Check: func(_ *engine.State, snap *engine.Snapshot) []string {
				if snap.Bind == "" || !IsPublicBind(snap.Bind) {
					return nil
				}
				return []string{snap.Bind}
			},
		},
		&PortChange{},
		&RestartLoop{Threshold: RestartLoopThreshold, Window: RestartLoopWindow},
	}
}
