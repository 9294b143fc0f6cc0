package argutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	gantryerrors "github.com/gantry-ci/gantry/pkg/gantry/v1/errors"
)

// ParseOverrides converts repeated "key=value" command-line arguments into
// the override map. Overrides are the highest-precedence configuration
// source and the only channel through which live secrets may enter a run.
func ParseOverrides(pairs []string) (map[string]string, error) {
	overrides := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
			return nil, gantryerrors.NewValidationError(fmt.Sprintf("override argument %q must be 'key=value'", pair), nil)
		}
		key := strings.TrimSpace(kv[0])
		if _, dup := overrides[key]; dup {
			return nil, gantryerrors.NewValidationError(fmt.Sprintf("override argument '%s' supplied more than once", key), nil)
		}
		overrides[key] = kv[1]
	}
	return overrides, nil
}

// GetBool interprets an override/config value as a boolean. Missing or empty
// values return the default. Unparseable values return a ValidationError.
func GetBool(values map[string]string, key string, def bool) (bool, error) {
	raw, exists := values[key]
	if !exists || raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, gantryerrors.NewValidationError(fmt.Sprintf("value '%s' for '%s' is not a boolean", raw, key), nil)
	}
	return b, nil
}

// GetInt interprets an override/config value as an integer.
func GetInt(values map[string]string, key string, def int) (int, error) {
	raw, exists := values[key]
	if !exists || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, gantryerrors.NewValidationError(fmt.Sprintf("value '%s' for '%s' is not an integer", raw, key), nil)
	}
	return n, nil
}

// GetDuration interprets an override/config value as a Go duration string
// (e.g. "120s"). Bare integers are treated as seconds, matching the
// convention of the rollout and service-stability timeouts.
func GetDuration(values map[string]string, key string, def time.Duration) (time.Duration, error) {
	raw, exists := values[key]
	if !exists || raw == "" {
		return def, nil
	}
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, gantryerrors.NewValidationError(fmt.Sprintf("duration '%s' for '%s' cannot be negative", raw, key), nil)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, gantryerrors.NewValidationError(fmt.Sprintf("value '%s' for '%s' is not a duration", raw, key), nil)
	}
	return d, nil
}

// SplitList interprets a comma-separated value as a trimmed string slice.
// Empty input yields nil.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
