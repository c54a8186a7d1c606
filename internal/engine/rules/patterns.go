package rules

import (
	"regexp"

	"github.com/securityjoes/MoltSoc/internal/engine"
	"github.com/securityjoes/MoltSoc/internal/event"
)

// Additional pattern rules.
const (
	SecretExposure        = "SECRET_EXPOSURE"
	RemoteScriptExecution = "REMOTE_SCRIPT_EXECUTION"
)

type pattern struct {
	re     *regexp.Regexp
	detail string
}

// Credentials that should never appear in agent logs. High precision only.
var secretPatterns = []pattern{
	{regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`), "private key"},
	{regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), "aws access key"},
	{regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`), "github token"},
	{regexp.MustCompile(`\bsk-(?:ant-|proj-)?[A-Za-z0-9_\-]{20,}`), "api secret key"},
	{regexp.MustCompile(`\bxox[abprs]-[A-Za-z0-9\-]{10,}`), "slack token"},
	{regexp.MustCompile(`(?i)\bauthorization:\s*bearer\s+[A-Za-z0-9._\-]{20,}`), "bearer token"},
}

// Download-and-execute shapes seen in tool invocations.
var remoteScriptPatterns = []pattern{
	{regexp.MustCompile(`(?i)\b(?:curl|wget)\b[^|\n]*\|\s*(?:sudo\s+)?(?:ba|z)?sh\b`), "pipe to shell"},
	{regexp.MustCompile(`(?i)\b(?:curl|wget)\b[^|\n]*\|\s*(?:python3?|perl|ruby|node)\b`), "pipe to interpreter"},
	{regexp.MustCompile(`(?i)\b(?:ba|z)?sh\s+-c\s+["']?\$\((?:curl|wget)\b`), "shell command substitution"},
	{regexp.MustCompile(`(?i)downloadstring\s*\(\s*['"]https?://`), "powershell download cradle"},
}

// Pattern fires on the first matching regexp. Evidence is the line hash and
// the pattern label; the matched text itself is never recorded.
type Pattern struct {
	ID       string
	Severity event.Severity
	Summary  string
	Patterns []pattern
}

func (r *Pattern) Name() string { return r.ID }

func (r *Pattern) CheckLine(_ *engine.State, in *engine.LineInput) []engine.Candidate {
	for _, p := range r.Patterns {
		if p.re.MatchString(in.Text) {
			return []engine.Candidate{{
				Rule:     r.ID,
				Severity: r.Severity,
				Summary:  r.Summary,
				Evidence: []string{event.HashHex(in.Text), "pattern:" + p.detail},
			}}
		}
	}
	return nil
}
