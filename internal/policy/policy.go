// Package policy implements the merge-governance rule set. Rules are
// evaluated independently; one rule failing to evaluate never blocks the
// others. The aggregate report carries a 0-100 score and a hard pass flag.
package policy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/gantry-ci/gantry/internal/config"
	gantryerrors "github.com/gantry-ci/gantry/pkg/gantry/v1/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/log"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/remote"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/scan"
)

// Rule names, in evaluation order.
const (
	RuleWorkflowPermissions = "workflow-permissions"
	RuleApprovedActions     = "approved-actions"
	RuleHardcodedSecrets    = "hardcoded-secrets"
	RuleBranchProtection    = "branch-protection"
	RuleProviderConsistency = "provider-consistency"
)

// DefaultApprovedActions is the built-in action allowlist, matched by
// prefix so version pins ("actions/checkout@v4") pass.
var DefaultApprovedActions = []string{
	"actions/",
	"docker/",
	"azure/",
	"aws-actions/",
	"google-github-actions/",
}

// RuleResult is the outcome of evaluating one rule.
type RuleResult struct {
	// Rule is the rule's name.
	Rule string
	// Violations are hard findings; any violation fails the report.
	Violations []string
	// Warnings are advisory findings; they lower the score but do not
	// fail the report.
	Warnings []string
	// Err records that the rule could not be evaluated. An errored rule
	// contributes no violations but earns no score either.
	Err error
}

// Passed reports whether the rule evaluated cleanly with no findings.
func (r RuleResult) Passed() bool {
	return r.Err == nil && len(r.Violations) == 0 && len(r.Warnings) == 0
}

// Report aggregates every rule result for one evaluation.
type Report struct {
	Results []RuleResult
	// Score is 0-100: each clean rule earns full credit, each warned rule
	// deducts half a rule's credit, violations and errors earn nothing.
	Score int
	// Passed is true only when no rule produced a violation.
	Passed bool
}

// ViolationError converts a failed report into a PolicyViolationError, or
// returns nil when the report passed.
func (r *Report) ViolationError() error {
	if r.Passed {
		return nil
	}
	var rules []string
	count := 0
	for _, res := range r.Results {
		if len(res.Violations) > 0 {
			rules = append(rules, res.Rule)
			count += len(res.Violations)
		}
	}
	return gantryerrors.NewPolicyViolationError(rules, count)
}

// Input carries the evaluation context for one policy run.
type Input struct {
	RepoRoot string
	// ConfigRoot is where the per-environment configuration files live;
	// the provider-consistency rule inspects every environment's file.
	ConfigRoot string
	// Ref and Branch locate the repository on the remote host; Branch is
	// the protected target branch (usually the default branch).
	Ref    remote.RepoRef
	Branch string
}

// Engine evaluates the governance rule set. The remote client is optional;
// without one the branch-protection rule reports an evaluation error
// instead of guessing.
type Engine struct {
	log             log.Logger
	scanner         scan.Scanner
	remote          remote.Client
	approvedActions []string
}

// NewEngine creates a policy engine. logger and scanner must not be nil;
// remoteClient may be nil. An empty allowlist falls back to the default.
func NewEngine(logger log.Logger, scanner scan.Scanner, remoteClient remote.Client, approvedActions []string) *Engine {
	if logger == nil {
		panic("policy: NewEngine requires a non-nil logger")
	}
	if scanner == nil {
		panic("policy: NewEngine requires a non-nil scanner")
	}
	if len(approvedActions) == 0 {
		approvedActions = DefaultApprovedActions
	}
	return &Engine{log: logger, scanner: scanner, remote: remoteClient, approvedActions: approvedActions}
}

// Evaluate runs every rule and aggregates the report. Rules run in a fixed
// order and are isolated from each other; a rule's evaluation error is
// recorded on its result, never propagated.
func (e *Engine) Evaluate(ctx context.Context, input *Input) (*Report, error) {
	workflows, err := LoadWorkflows(input.RepoRoot)
	if err != nil {
		// Unparseable workflows make the first two rules unevaluable and
		// are themselves a permissions-rule violation.
		workflows = nil
		e.log.Warnf("Workflow files could not be loaded: %v", err)
	}

	results := []RuleResult{
		e.checkWorkflowPermissions(workflows, err),
		e.checkApprovedActions(workflows),
		e.checkHardcodedSecrets(ctx, input),
		e.checkBranchProtection(ctx, input),
		e.checkProviderConsistency(input),
	}

	report := &Report{Results: results}
	report.Score = scoreOf(results)
	report.Passed = true
	for _, res := range results {
		if len(res.Violations) > 0 {
			report.Passed = false
		}
		if res.Err != nil {
			e.log.Warnf("Policy rule %s could not be evaluated: %v", res.Rule, res.Err)
		}
	}
	return report, nil
}

func scoreOf(results []RuleResult) int {
	if len(results) == 0 {
		return 0
	}
	credit := 0.0
	for _, res := range results {
		switch {
		case res.Err != nil || len(res.Violations) > 0:
			// no credit
		case len(res.Warnings) > 0:
			credit -= 0.5
		default:
			credit++
		}
	}
	score := int(math.Round(100 * credit / float64(len(results))))
	if score < 0 {
		return 0
	}
	return score
}

// checkWorkflowPermissions flags workflows with triggers that execute
// external contributions in base-branch context, and workflows that combine
// blanket write permission with self-pushing or self-merging steps.
func (e *Engine) checkWorkflowPermissions(workflows []*Workflow, loadErr error) RuleResult {
	result := RuleResult{Rule: RuleWorkflowPermissions}
	if loadErr != nil {
		result.Violations = append(result.Violations,
			fmt.Sprintf("workflow files could not be parsed: %v", loadErr))
		return result
	}
	for _, wf := range workflows {
		result.Violations = append(result.Violations, wf.UnsafeFindings()...)
	}
	return result
}

// checkApprovedActions warns about steps using actions outside the
// allowlist. Prefix matching lets an allowlist entry cover an organization
// or a pinned version.
func (e *Engine) checkApprovedActions(workflows []*Workflow) RuleResult {
	result := RuleResult{Rule: RuleApprovedActions}
	seen := map[string]bool{}
	for _, wf := range workflows {
		for jobName, job := range wf.Jobs {
			for _, step := range job.Steps {
				if step.Uses == "" || e.isApproved(step.Uses) || seen[step.Uses] {
					continue
				}
				seen[step.Uses] = true
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("%s: job %q uses unapproved action %q", wf.Path, jobName, step.Uses))
			}
		}
	}
	sort.Strings(result.Warnings)
	return result
}

func (e *Engine) isApproved(uses string) bool {
	// Local composite actions are always allowed.
	if strings.HasPrefix(uses, "./") {
		return true
	}
	for _, prefix := range e.approvedActions {
		if strings.HasPrefix(uses, prefix) {
			return true
		}
	}
	return false
}

// checkHardcodedSecrets scans the tree for credential material. Critical
// findings are violations, advisory findings are warnings.
func (e *Engine) checkHardcodedSecrets(ctx context.Context, input *Input) RuleResult {
	result := RuleResult{Rule: RuleHardcodedSecrets}
	matches, err := e.scanner.Scan(ctx, scan.Request{Roots: []string{input.RepoRoot}})
	if err != nil {
		result.Err = fmt.Errorf("secret scan failed: %w", err)
		return result
	}
	for _, m := range matches {
		finding := fmt.Sprintf("%s:%d: %s (%s)", m.File, m.Line, m.RuleID, m.Masked)
		if m.Severity == scan.SeverityCritical {
			result.Violations = append(result.Violations, finding)
		} else {
			result.Warnings = append(result.Warnings, finding)
		}
	}
	return result
}

// checkBranchProtection verifies the target branch is protected. A branch
// with no protection at all is a violation; weak protection is a warning.
// Transport or authorization failures leave the rule unevaluated.
func (e *Engine) checkBranchProtection(ctx context.Context, input *Input) RuleResult {
	result := RuleResult{Rule: RuleBranchProtection}
	if e.remote == nil {
		result.Err = fmt.Errorf("no remote client configured")
		return result
	}
	protection, err := e.remote.BranchProtection(ctx, input.Ref, input.Branch)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			result.Violations = append(result.Violations,
				fmt.Sprintf("branch %q has no protection configured", input.Branch))
			return result
		}
		result.Err = fmt.Errorf("fetching branch protection: %w", err)
		return result
	}
	if protection.RequiredReviews == 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("branch %q does not require approving reviews", input.Branch))
	}
	if !protection.RequiredStatusChecks {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("branch %q does not require status checks", input.Branch))
	}
	return result
}

// checkProviderConsistency warns when the environments declare different
// deploy backends. Drift across environments is how a staging change quietly
// diverges from what production actually runs.
func (e *Engine) checkProviderConsistency(input *Input) RuleResult {
	result := RuleResult{Rule: RuleProviderConsistency}
	if input.ConfigRoot == "" {
		return result
	}

	declared := map[string][]string{} // provider -> environments
	for _, env := range config.Environments {
		store := config.NewStore(env, input.ConfigRoot)
		if err := store.Load(); err != nil {
			// A malformed file is the Config Resolver's finding, not this
			// rule's; skip the environment.
			e.log.Debugf("Provider consistency: skipping %s: %v", env, err)
			continue
		}
		if provider := store.Get("deploy_provider", "", nil); provider != "" {
			declared[provider] = append(declared[provider], env.String())
		}
	}
	if len(declared) <= 1 {
		return result
	}

	var parts []string
	for provider, envs := range declared {
		parts = append(parts, fmt.Sprintf("%s (%s)", provider, strings.Join(envs, ", ")))
	}
	sort.Strings(parts)
	result.Warnings = append(result.Warnings,
		fmt.Sprintf("deploy provider drift across environments: %s", strings.Join(parts, "; ")))
	return result
}
