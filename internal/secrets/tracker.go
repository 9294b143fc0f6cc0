package secrets

import (
	"strings"
	"sync"
)

// Tracker records the secret values that entered the run through override
// arguments (the only legitimate channel for live secrets) so they can be
// scrubbed from phase metadata, provider diagnostics, and published PR
// comments. One tracker exists per run, owned by the orchestrator.
type Tracker struct {
	mu     sync.RWMutex
	values map[string]struct{} // raw secret values
}

// NewTracker creates a new, empty tracker.
func NewTracker() *Tracker {
	return &Tracker{values: make(map[string]struct{})}
}

// Add marks a secret value as live for this run. Empty strings are ignored.
func (t *Tracker) Add(secretValue string) {
	if secretValue == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[secretValue] = struct{}{}
}

// IsTracked reports whether value is exactly a tracked secret.
func (t *Tracker) IsTracked(value string) bool {
	if value == "" {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, found := t.values[value]
	return found
}

// ContainsTracked reports whether input contains any tracked secret as a
// substring. This is the primary redaction check: it catches secrets
// embedded in command lines, connection strings, and CLI diagnostics.
func (t *Tracker) ContainsTracked(input string) bool {
	if input == "" {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.values) == 0 {
		return false
	}
	for secret := range t.values {
		if strings.Contains(input, secret) {
			return true
		}
	}
	return false
}

// Scrub replaces every occurrence of a tracked secret in input with the
// redaction placeholder.
func (t *Tracker) Scrub(input string) string {
	if input == "" {
		return input
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := input
	for secret := range t.values {
		out = strings.ReplaceAll(out, secret, RedactedValue)
	}
	return out
}
