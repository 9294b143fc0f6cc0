package config

import (
	"fmt"
	"strings"
)

// Environment identifies the deployment environment a run is scoped to.
// It is a typed string to enforce valid values.
type Environment string

const (
	// Dev is the development environment.
	Dev Environment = "dev"
	// Staging is the pre-production environment.
	Staging Environment = "staging"
	// Prod is the production environment. Promotion semantics (e.g. the
	// cloud web app slot swap) key off this value.
	Prod Environment = "prod"
)

// Environments lists every valid environment in declaration order.
var Environments = []Environment{Dev, Staging, Prod}

// ParseEnvironment converts a string into an Environment, accepting common
// aliases. Unknown names are an error; there is no default environment.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development":
		return Dev, nil
	case "staging", "stage":
		return Staging, nil
	case "prod", "production":
		return Prod, nil
	default:
		return "", fmt.Errorf("unknown environment %q (expected dev, staging, or prod)", s)
	}
}

func (e Environment) String() string { return string(e) }
