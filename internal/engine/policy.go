package engine

import "strings"

// Policy controls which rules run. A nil Policy enables every rule.
type Policy struct {
	disabled map[string]bool
}

// NewPolicy returns a policy with the given rule ids disabled. Ids are
// matched case-insensitively; blanks are ignored.
func NewPolicy(disabled []string) *Policy {
	p := &Policy{disabled: make(map[string]bool, len(disabled))}
	for _, id := range disabled {
		id = strings.ToUpper(strings.TrimSpace(id))
		if id != "" {
			p.disabled[id] = true
		}
	}
	return p
}

// IsEnabled returns whether the rule runs. Rules default to enabled.
func (p *Policy) IsEnabled(rule string) bool {
	if p == nil {
		return true
	}
	return !p.disabled[rule]
}

// Disabled returns the number of disabled rule ids.
func (p *Policy) Disabled() int {
	if p == nil {
		return 0
	}
	return len(p.disabled)
}
