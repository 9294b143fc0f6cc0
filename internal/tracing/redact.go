package tracing

import "strings"

// RedactStringMap returns a new map with values replaced by "[REDACTED]" for
// every key whose lowercase form appears in keywords. Used when resolved
// deploy parameters or boot context are attached to spans or log entries.
// Returns the input unchanged when there is nothing to redact.
func RedactStringMap(input map[string]string, keywords map[string]struct{}) map[string]string {
	if len(keywords) == 0 || input == nil {
		return input
	}
	output := make(map[string]string, len(input))
	for k, v := range input {
		if _, redact := keywords[strings.ToLower(k)]; redact {
			output[k] = "[REDACTED]"
		} else {
			output[k] = v
		}
	}
	return output
}
