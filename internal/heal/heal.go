// Package heal implements the nine-step remediation protocol. Steps run
// strictly in order, each inside its own failure boundary: a step's error
// (or panic) becomes that step's recorded outcome and the next step runs
// unconditionally. The protocol never aborts early.
package heal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gantry-ci/gantry/internal/classify"
	"github.com/gantry-ci/gantry/internal/policy"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/events"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/log"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/remote"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/scan"
)

// Step statuses.
const (
	StatusPass = "pass"
	StatusFail = "fail"
)

// Overall protocol results.
const (
	ResultPass    = "pass"
	ResultPartial = "partial"
)

// Step names, in execution order.
const (
	StepPurgeUnsafeWorkflows = "purge-unsafe-workflows"
	StepReportClassification = "report-classification"
	StepNormalizeCI          = "normalize-ci"
	StepValidateEnvironment  = "validate-environment"
	StepBuildAndTest         = "build-and-test"
	StepFrontendSecretGate   = "frontend-secret-gate"
	StepReviewThreads        = "review-threads"
	StepAutoMerge            = "auto-merge"
	StepPolicyGate           = "policy-gate"
)

// workflowDenylist names automation files that are removed outright: each
// grants external actors write-context execution.
var workflowDenylist = []string{
	"auto-merge.yml",
	"auto-merge.yaml",
	"auto-approve.yml",
	"auto-approve.yaml",
	"comment-commands.yml",
	"comment-commands.yaml",
	"slash-commands.yml",
	"slash-commands.yaml",
}

// StepOutcome is one recorded (name, result) pair.
type StepOutcome struct {
	Name     string
	Status   string
	Duration time.Duration
	Detail   string
}

// Deps carries everything the protocol needs. Phase-shaped work
// (environment validation, build, test, policy) is injected as closures so
// the protocol stays decoupled from the orchestrator that drives it.
type Deps struct {
	Log      log.Logger
	Bus      events.Bus
	Profile  *classify.Profile
	RepoRoot string
	DryRun   bool
	Scanner  scan.Scanner

	// Remote and PR context; Remote may be nil, PR zero when absent.
	Remote remote.Client
	Ref    remote.RepoRef
	PR     int

	// Injected phase logic.
	ValidateEnv    func(ctx context.Context) error
	BuildAndTest   func(ctx context.Context) error
	EvaluatePolicy func(ctx context.Context) (*policy.Report, error)
}

// Protocol drives the nine steps.
type Protocol struct {
	deps Deps
}

// NewProtocol creates a Protocol. Log, Profile, Scanner, and the three
// injected closures must be non-nil.
func NewProtocol(deps Deps) *Protocol {
	if deps.Log == nil || deps.Profile == nil || deps.Scanner == nil {
		panic("heal: NewProtocol requires Log, Profile, and Scanner")
	}
	if deps.ValidateEnv == nil || deps.BuildAndTest == nil || deps.EvaluatePolicy == nil {
		panic("heal: NewProtocol requires the injected phase closures")
	}
	return &Protocol{deps: deps}
}

type step struct {
	name string
	fn   func(ctx context.Context) (string, error)
}

// Run executes all nine steps in order and returns every outcome plus the
// overall result: pass only when every step passed, otherwise partial.
func (p *Protocol) Run(ctx context.Context) ([]StepOutcome, string) {
	steps := []step{
		{StepPurgeUnsafeWorkflows, p.purgeUnsafeWorkflows},
		{StepReportClassification, p.reportClassification},
		{StepNormalizeCI, p.normalizeCI},
		{StepValidateEnvironment, p.validateEnvironment},
		{StepBuildAndTest, p.buildAndTest},
		{StepFrontendSecretGate, p.frontendSecretGate},
		{StepReviewThreads, p.reviewThreads},
		{StepAutoMerge, p.autoMerge},
		{StepPolicyGate, p.policyGate},
	}

	outcomes := make([]StepOutcome, 0, len(steps))
	overall := ResultPass
	for _, s := range steps {
		outcome := p.runStep(ctx, s)
		if outcome.Status != StatusPass {
			overall = ResultPartial
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, overall
}

// runStep is the failure boundary: errors and panics alike become the
// step's recorded outcome.
func (p *Protocol) runStep(ctx context.Context, s step) (outcome StepOutcome) {
	p.emit(events.HealStepStart, s.name, nil)
	start := time.Now()

	outcome = StepOutcome{Name: s.name, Status: StatusPass}
	defer func() {
		if r := recover(); r != nil {
			outcome.Status = StatusFail
			outcome.Detail = fmt.Sprintf("panic: %v", r)
		}
		outcome.Duration = time.Since(start)
		p.deps.Log.Infof("Heal step %s: %s", s.name, outcome.Status)
		p.emit(events.HealStepEnd, s.name, map[string]interface{}{"status": outcome.Status})
	}()

	detail, err := s.fn(ctx)
	outcome.Detail = detail
	if err != nil {
		outcome.Status = StatusFail
		outcome.Detail = err.Error()
	}
	return outcome
}

func (p *Protocol) emit(eventType events.EventType, stepName string, payload map[string]interface{}) {
	if p.deps.Bus == nil {
		return
	}
	p.deps.Bus.Emit(events.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Step:      stepName,
		Payload:   payload,
	})
}

// purgeUnsafeWorkflows deletes denylisted automation files and flags any
// remaining workflow with dangerous trigger or push patterns. Findings are
// reported, not fixed; rewriting workflows is normalize-ci's job.
func (p *Protocol) purgeUnsafeWorkflows(ctx context.Context) (string, error) {
	dir := filepath.Join(p.deps.RepoRoot, ".github", "workflows")
	var removed []string
	for _, name := range workflowDenylist {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if p.deps.DryRun {
			removed = append(removed, name+" (dry run)")
			continue
		}
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("removing %s: %w", name, err)
		}
		removed = append(removed, name)
	}

	workflows, err := policy.LoadWorkflows(p.deps.RepoRoot)
	if err != nil {
		return "", fmt.Errorf("inspecting remaining workflows: %w", err)
	}
	var flagged []string
	for _, wf := range workflows {
		flagged = append(flagged, wf.UnsafeFindings()...)
	}

	var parts []string
	if len(removed) > 0 {
		parts = append(parts, fmt.Sprintf("removed %s", strings.Join(removed, ", ")))
	}
	if len(flagged) > 0 {
		parts = append(parts, fmt.Sprintf("flagged: %s", strings.Join(flagged, "; ")))
	}
	if len(parts) == 0 {
		return "no unsafe automation found", nil
	}
	return strings.Join(parts, "; "), nil
}

// reportClassification surfaces the already-computed profile; no mutation.
func (p *Protocol) reportClassification(ctx context.Context) (string, error) {
	profile := p.deps.Profile
	caps := []string{}
	for _, c := range []struct {
		name string
		has  bool
	}{
		{"lint", profile.HasLint},
		{"typecheck", profile.HasTypecheck},
		{"test", profile.HasTest},
		{"build", profile.HasBuild},
	} {
		if c.has {
			caps = append(caps, c.name)
		}
	}
	detail := fmt.Sprintf("stack=%s capabilities=[%s]", profile.Stack, strings.Join(caps, ","))
	if profile.Monorepo {
		detail += " monorepo"
	}
	return detail, nil
}

// normalizeCI writes the deterministic CI definition for the detected
// stack.
func (p *Protocol) normalizeCI(ctx context.Context) (string, error) {
	content, err := GenerateCIWorkflow(p.deps.Profile)
	if err != nil {
		return "", err
	}
	target := filepath.Join(p.deps.RepoRoot, ".github", "workflows", "ci.yml")
	if p.deps.DryRun {
		return "would write .github/workflows/ci.yml (dry run)", nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("creating workflow directory: %w", err)
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return "", fmt.Errorf("writing normalized workflow: %w", err)
	}
	return "wrote .github/workflows/ci.yml", nil
}

func (p *Protocol) validateEnvironment(ctx context.Context) (string, error) {
	if err := p.deps.ValidateEnv(ctx); err != nil {
		return "", err
	}
	return "environment validated", nil
}

func (p *Protocol) buildAndTest(ctx context.Context) (string, error) {
	if err := p.deps.BuildAndTest(ctx); err != nil {
		return "", err
	}
	return "build and test passed", nil
}

// frontendSecretGate requires the build output of a front-end stack to
// exist and to contain no critical-severity secret matches. Non-front-end
// stacks pass trivially.
func (p *Protocol) frontendSecretGate(ctx context.Context) (string, error) {
	if !p.deps.Profile.IsFrontend() {
		return "not a front-end stack", nil
	}
	outputDir := filepath.Join(p.deps.RepoRoot, p.deps.Profile.BuildOutputDir())
	info, err := os.Stat(outputDir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("build output directory %q does not exist", p.deps.Profile.BuildOutputDir())
	}
	matches, err := p.deps.Scanner.Scan(ctx, scan.Request{Roots: []string{outputDir}})
	if err != nil {
		return "", fmt.Errorf("scanning build output: %w", err)
	}
	var critical []string
	for _, m := range matches {
		if m.Severity == scan.SeverityCritical {
			critical = append(critical, fmt.Sprintf("%s:%d (%s)", m.File, m.Line, m.RuleID))
		}
	}
	if len(critical) > 0 {
		return "", fmt.Errorf("critical secret matches in build output: %s", strings.Join(critical, ", "))
	}
	return "build output clean", nil
}

// reviewThreads reports the open review comment count; silently skipped
// without PR context.
func (p *Protocol) reviewThreads(ctx context.Context) (string, error) {
	if !p.hasPRContext() {
		return "skipped: no pull-request context", nil
	}
	count, err := p.deps.Remote.ReviewThreadCount(ctx, p.deps.Ref, p.deps.PR)
	if err != nil {
		return "", fmt.Errorf("querying review threads: %w", err)
	}
	return fmt.Sprintf("%d open review comment(s)", count), nil
}

// autoMerge squash-merges the pull request only when the remote reports it
// cleanly mergeable; skipped otherwise.
func (p *Protocol) autoMerge(ctx context.Context) (string, error) {
	if !p.hasPRContext() {
		return "skipped: no pull-request context", nil
	}
	status, err := p.deps.Remote.Mergeability(ctx, p.deps.Ref, p.deps.PR)
	if err != nil {
		return "", fmt.Errorf("checking mergeability: %w", err)
	}
	if !status.Mergeable {
		return fmt.Sprintf("skipped: not cleanly mergeable (state %q)", status.State), nil
	}
	if p.deps.DryRun {
		return "would squash merge (dry run)", nil
	}
	title := fmt.Sprintf("Auto-merge #%d via remediation", p.deps.PR)
	if err := p.deps.Remote.SquashMerge(ctx, p.deps.Ref, p.deps.PR, title); err != nil {
		return "", fmt.Errorf("squash merge: %w", err)
	}
	return "squash merged", nil
}

// policyGate runs the full policy evaluation; any violation fails the step.
func (p *Protocol) policyGate(ctx context.Context) (string, error) {
	report, err := p.deps.EvaluatePolicy(ctx)
	if err != nil {
		return "", err
	}
	if verr := report.ViolationError(); verr != nil {
		return "", verr
	}
	return fmt.Sprintf("score %d/100", report.Score), nil
}

func (p *Protocol) hasPRContext() bool {
	return p.deps.Remote != nil && p.deps.PR > 0 && p.deps.Ref.Owner != ""
}
