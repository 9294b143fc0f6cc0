package config

import (
	"regexp"
	"sort"
	"strings"

	gantryerrors "github.com/gantry-ci/gantry/pkg/gantry/v1/errors"
)

// secretKeyPattern flags configuration keys that by convention carry
// credentials. Matching is on the key name, not the value.
var secretKeyPattern = regexp.MustCompile(`(?i)(password|secret|private_key|api_key|token|credential)`)

// anglePlaceholderPattern matches template markers like <REPLACE_ME> or
// <your-token-here>.
var anglePlaceholderPattern = regexp.MustCompile(`<[^>]*>`)

// placeholderMarkers exempt values that are obviously not live credentials.
// Comparison is case-insensitive except for "REPLACE", which convention
// writes uppercase in checked-in templates.
var placeholderMarkers = []string{"placeholder", "example.com", "your-"}

// IsSecretKey reports whether a configuration key's name indicates it
// carries a credential. The engine uses this to decide which override
// values to track for redaction.
func IsSecretKey(key string) bool {
	return secretKeyPattern.MatchString(key)
}

// AssertNoSecrets refuses to proceed when the loaded configuration file
// appears to contain live credential values. Checked-in configuration must
// only ever hold placeholders; real secrets arrive through override
// arguments. Overrides are deliberately not inspected here.
//
// The returned SecretDetectedError names the offending keys but never echoes
// their values.
func (s *Store) AssertNoSecrets() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var offending []string
	for key, value := range s.values {
		if looksLikeLiveSecret(key, value) {
			offending = append(offending, key)
		}
	}
	if len(offending) == 0 {
		return nil
	}
	sort.Strings(offending)
	return gantryerrors.NewSecretDetectedError(offending)
}

// looksLikeLiveSecret applies the detection heuristic: a secret-indicative
// key name, a value long enough to plausibly be a credential, and no
// placeholder marker.
func looksLikeLiveSecret(key, value string) bool {
	if !secretKeyPattern.MatchString(key) {
		return false
	}
	if len(value) <= 4 {
		return false
	}
	return !isPlaceholder(value)
}

func isPlaceholder(value string) bool {
	if anglePlaceholderPattern.MatchString(value) {
		return true
	}
	if strings.Contains(value, "REPLACE") {
		return true
	}
	lower := strings.ToLower(value)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
