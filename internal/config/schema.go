package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// environmentConfigSchema is the JSON Schema every environment configuration
// file must satisfy before decoding: a flat object of scalar values. Nested
// structures are rejected early so a typo'd file fails Boot with a clear
// diagnostic instead of surfacing later as a missing key.
const environmentConfigSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Gantry Environment Configuration",
  "type": "object",
  "additionalProperties": {
    "type": ["string", "number", "boolean"]
  }
}`

// validateWithSchema checks the raw file content against the embedded schema.
// Returns a single error aggregating every schema finding.
func validateWithSchema(content []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(environmentConfigSchema)
	documentLoader := gojsonschema.NewBytesLoader(content)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation could not run: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var findings []string
	for _, desc := range result.Errors() {
		findings = append(findings, desc.String())
	}
	return fmt.Errorf("%d schema violation(s):\n- %s", len(findings), strings.Join(findings, "\n- "))
}
