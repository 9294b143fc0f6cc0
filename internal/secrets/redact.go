package secrets

// RedactedValue is the placeholder substituted for a tracked secret wherever
// one would otherwise surface in metadata, logs, or published comments.
const RedactedValue = "[REDACTED]"

// RedactTracked recursively walks a data structure and replaces any string
// that is, or contains, a tracked secret with the redaction placeholder.
// It returns the (potentially) new structure and whether any redaction
// occurred. The input is never modified.
func RedactTracked(data interface{}, tracker *Tracker) (interface{}, bool) {
	if data == nil || tracker == nil {
		return data, false
	}
	return redactRecursive(data, tracker)
}

func redactRecursive(data interface{}, tracker *Tracker) (interface{}, bool) {
	if data == nil {
		return nil, false
	}

	switch v := data.(type) {
	case string:
		if tracker.ContainsTracked(v) {
			return RedactedValue, true
		}
		return v, false

	case map[string]interface{}:
		if v == nil {
			return nil, false
		}
		redacted := false
		newMap := make(map[string]interface{}, len(v))
		for key, val := range v {
			newVal, wasRedacted := redactRecursive(val, tracker)
			newMap[key] = newVal
			if wasRedacted {
				redacted = true
			}
		}
		return newMap, redacted

	case map[string]string:
		if v == nil {
			return nil, false
		}
		redacted := false
		newMap := make(map[string]string, len(v))
		for key, val := range v {
			if tracker.ContainsTracked(val) {
				newMap[key] = RedactedValue
				redacted = true
			} else {
				newMap[key] = val
			}
		}
		return newMap, redacted

	case []interface{}:
		if v == nil {
			return nil, false
		}
		redacted := false
		newSlice := make([]interface{}, len(v))
		for i, val := range v {
			newVal, wasRedacted := redactRecursive(val, tracker)
			newSlice[i] = newVal
			if wasRedacted {
				redacted = true
			}
		}
		return newSlice, redacted

	default:
		// Numeric, boolean, and other scalar kinds cannot hold a secret.
		return data, false
	}
}
