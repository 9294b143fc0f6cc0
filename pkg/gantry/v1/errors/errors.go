package errors

import (
	"errors"
	"fmt"
	"strings"
)

// --- Gantry Core Error Types ---

// ConfigParseError represents a malformed environment configuration file.
// It is fatal to the boot sequence.
type ConfigParseError struct {
	Path  string
	Cause error
}

func NewConfigParseError(path string, cause error) *ConfigParseError {
	return &ConfigParseError{Path: path, Cause: cause}
}
func (e *ConfigParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config parse error: %s: %v", e.Path, e.Cause)
	}
	return fmt.Sprintf("config parse error: %s", e.Path)
}
func (e *ConfigParseError) Unwrap() error { return e.Cause }

// SecretDetectedError indicates that one or more live-looking secret values
// were found in a loaded configuration file. The offending keys are listed;
// the values themselves are never echoed.
type SecretDetectedError struct {
	Keys []string
}

func NewSecretDetectedError(keys []string) *SecretDetectedError {
	return &SecretDetectedError{Keys: keys}
}
func (e *SecretDetectedError) Error() string {
	return fmt.Sprintf("secret detected in configuration: keys [%s] hold non-placeholder values; move them to override arguments", strings.Join(e.Keys, ", "))
}

// ValidationError indicates that some input (an override argument, a provider
// parameter, a workflow definition) failed validation checks.
type ValidationError struct {
	Message string
	Cause   error
}

func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{Message: message, Cause: cause}
}
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}
func (e *ValidationError) Unwrap() error { return e.Cause }

// UnknownProviderError indicates that the requested deploy target is not one
// of the registered provider back-ends. Fatal to the deploy phase only.
type UnknownProviderError struct {
	Name      string
	Supported []string
}

func NewUnknownProviderError(name string, supported []string) *UnknownProviderError {
	return &UnknownProviderError{Name: name, Supported: supported}
}
func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown deploy provider '%s' (supported: %s)", e.Name, strings.Join(e.Supported, ", "))
}

// ProviderExecutionError represents a failure of a provider back-end, either
// in its deploy action or in its post-deploy verification step. The underlying
// diagnostic is carried in Cause. Fatal to the deploy phase only.
type ProviderExecutionError struct {
	Provider string
	Stage    string // "deploy" or "verify"
	Cause    error
}

func NewProviderExecutionError(provider, stage string, cause error) *ProviderExecutionError {
	return &ProviderExecutionError{Provider: provider, Stage: stage, Cause: cause}
}
func (e *ProviderExecutionError) Error() string {
	return fmt.Sprintf("provider '%s' %s failed: %v", e.Provider, e.Stage, e.Cause)
}
func (e *ProviderExecutionError) Unwrap() error { return e.Cause }

// PolicyViolationError signifies that a governance evaluation produced one or
// more critical findings. Fatal to the policy phase and to heal step nine.
type PolicyViolationError struct {
	Rules []string
	Count int
}

func NewPolicyViolationError(rules []string, count int) *PolicyViolationError {
	return &PolicyViolationError{Rules: rules, Count: count}
}
func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy check failed with %d violation(s) (rules: %s)", e.Count, strings.Join(e.Rules, ", "))
}

// PhaseFailureError represents a build, test, or environment validation
// failure. Fatal to its phase, and to a 'full' run if raised inside one.
type PhaseFailureError struct {
	Phase string
	Cause error
}

func NewPhaseFailureError(phase string, cause error) *PhaseFailureError {
	return &PhaseFailureError{Phase: phase, Cause: cause}
}
func (e *PhaseFailureError) Error() string {
	return fmt.Sprintf("phase '%s' failed: %v", e.Phase, e.Cause)
}
func (e *PhaseFailureError) Unwrap() error { return e.Cause }

// IsSecretDetected checks if an error is a SecretDetectedError using errors.As.
func IsSecretDetected(err error) bool {
	var sde *SecretDetectedError
	return errors.As(err, &sde)
}

// IsUnknownProvider checks if an error is an UnknownProviderError using errors.As.
func IsUnknownProvider(err error) bool {
	var upe *UnknownProviderError
	return errors.As(err, &upe)
}

// IsPolicyViolation checks if an error is a PolicyViolationError using errors.As.
func IsPolicyViolation(err error) bool {
	var pve *PolicyViolationError
	return errors.As(err, &pve)
}
