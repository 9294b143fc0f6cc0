package scan

import "github.com/gantry-ci/gantry/pkg/gantry/v1/scan"

// DefaultSecretPatterns returns the built-in credential detection rules used
// by the hardcoded-secrets policy rule and the remediation purge step.
// Patterns favor precision over recall; a false positive blocks a merge, a
// false negative only weakens one of several gates.
func DefaultSecretPatterns() []scan.Pattern {
	return []scan.Pattern{
		{
			ID:       "aws-access-key-id",
			Category: "cloud",
			Expr:     `\b(AKIA|ASIA)[0-9A-Z]{16}\b`,
			Severity: scan.SeverityCritical,
		},
		{
			ID:       "aws-secret-access-key",
			Category: "cloud",
			Expr:     `(?i)aws[_\-]?secret[_\-]?access[_\-]?key\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`,
			Severity: scan.SeverityCritical,
		},
		{
			ID:       "github-token",
			Category: "vcs",
			Expr:     `\b(ghp|gho|ghu|ghs)_[A-Za-z0-9]{36}\b`,
			Severity: scan.SeverityCritical,
		},
		{
			ID:       "github-fine-grained-token",
			Category: "vcs",
			Expr:     `\bgithub_pat_[A-Za-z0-9_]{60,}\b`,
			Severity: scan.SeverityCritical,
		},
		{
			ID:       "gitlab-token",
			Category: "vcs",
			Expr:     `\bglpat-[A-Za-z0-9\-_]{20}\b`,
			Severity: scan.SeverityCritical,
		},
		{
			ID:       "slack-token",
			Category: "messaging",
			Expr:     `\bxox[baprs]-[A-Za-z0-9\-]{10,}\b`,
			Severity: scan.SeverityCritical,
		},
		{
			ID:       "stripe-secret-key",
			Category: "payments",
			Expr:     `\b(sk|rk)_(live|test)_[A-Za-z0-9]{20,}\b`,
			Severity: scan.SeverityCritical,
		},
		{
			ID:       "private-key-block",
			Category: "crypto",
			Expr:     `-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY( BLOCK)?-----`,
			Severity: scan.SeverityCritical,
		},
		{
			ID:       "generic-api-key",
			Category: "generic",
			Expr:     `(?i)\b(api[_\-]?key|apikey|auth[_\-]?token|access[_\-]?token)\s*[:=]\s*['"][A-Za-z0-9\-_.]{16,}['"]`,
			Severity: scan.SeverityWarn,
		},
		{
			ID:       "generic-password-assignment",
			Category: "generic",
			Expr:     `(?i)\bpassword\s*[:=]\s*['"][^'"]{8,}['"]`,
			Severity: scan.SeverityWarn,
		},
	}
}

// DefaultExcludes are path globs skipped by every scan: dependency trees,
// build artifacts, and VCS metadata.
func DefaultExcludes() []string {
	return []string{
		"**/node_modules/**",
		"**/.git/**",
		"**/vendor/**",
		"**/dist/**",
		"**/build/**",
		"**/target/**",
		"**/*.min.js",
		"**/*.lock",
		"**/package-lock.json",
	}
}
