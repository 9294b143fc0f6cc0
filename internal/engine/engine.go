// Package engine is the orchestrator: it runs the boot sequence, dispatches
// the requested phase, owns the run ledger, and publishes the aggregate
// summary. Execution is strictly sequential; the engine is the ledger's
// single writer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gantry-ci/gantry/internal/argutil"
	"github.com/gantry-ci/gantry/internal/classify"
	"github.com/gantry-ci/gantry/internal/command"
	"github.com/gantry-ci/gantry/internal/config"
	"github.com/gantry-ci/gantry/internal/heal"
	"github.com/gantry-ci/gantry/internal/metrics"
	"github.com/gantry-ci/gantry/internal/policy"
	"github.com/gantry-ci/gantry/internal/provider"
	"github.com/gantry-ci/gantry/internal/report"
	internalscan "github.com/gantry-ci/gantry/internal/scan"
	"github.com/gantry-ci/gantry/internal/secrets"
	gantryerrors "github.com/gantry-ci/gantry/pkg/gantry/v1/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/events"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/log"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/remote"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/scan"
)

// Options configures an Engine. Log is required; every other dependency has
// a default or is optional.
type Options struct {
	Log     log.Logger
	Bus     events.Bus
	Runner  command.Runner
	Scanner scan.Scanner
	Remote  remote.Client
	Tracker *secrets.Tracker

	// MetricsGatherer and MetricsPath enable the end-of-run metrics export
	// under CI context.
	MetricsGatherer prometheus.Gatherer
	MetricsPath     string
}

// Engine orchestrates pipeline runs.
type Engine struct {
	log     log.Logger
	bus     events.Bus
	runner  command.Runner
	scanner scan.Scanner
	remote  remote.Client
	tracker *secrets.Tracker

	gatherer    prometheus.Gatherer
	metricsPath string
}

// New creates an Engine from options, filling in defaults.
func New(opts Options) *Engine {
	if opts.Log == nil {
		panic("engine: Options.Log is required")
	}
	e := &Engine{
		log:         opts.Log,
		bus:         opts.Bus,
		runner:      opts.Runner,
		scanner:     opts.Scanner,
		remote:      opts.Remote,
		tracker:     opts.Tracker,
		gatherer:    opts.MetricsGatherer,
		metricsPath: opts.MetricsPath,
	}
	if e.runner == nil {
		e.runner = command.NewRunner()
	}
	if e.scanner == nil {
		e.scanner = internalscan.NewWalker(opts.Log)
	}
	if e.tracker == nil {
		e.tracker = secrets.NewTracker()
	}
	return e
}

// runContext is the per-run state threaded through every phase: nothing
// run-scoped lives on the Engine itself.
type runContext struct {
	args      *RunArgs
	store     *config.Store
	profile   *classify.Profile
	ledger    *Ledger
	publisher *report.Publisher // nil without PR context
}

// Run executes the boot sequence and dispatches the requested phase. The
// returned summary covers everything recorded in the ledger; err is non-nil
// for any fatal failure.
func (e *Engine) Run(ctx context.Context, args *RunArgs) (*Summary, error) {
	rc, err := e.boot(ctx, args)
	if err != nil {
		return nil, err
	}

	e.emit(events.Event{Type: events.RunStart, Phase: args.Phase.String()})
	runErr := e.dispatch(ctx, rc)
	summary := rc.ledger.Summarize()
	e.emit(events.Event{Type: events.RunEnd, Phase: args.Phase.String(), Payload: map[string]interface{}{
		"status": summary.Overall,
	}})

	// Summary publication and metrics export happen for the aggregate
	// phases; single phases only report their own failure.
	if args.Phase == PhaseFull || args.Phase == PhaseHeal {
		e.publishSummary(ctx, rc, summary)
		e.exportMetrics()
	}
	return summary, runErr
}

// boot runs the unconditional boot sequence: config load, secret assertion,
// repository classification, context announcement.
func (e *Engine) boot(ctx context.Context, args *RunArgs) (*runContext, error) {
	store := config.NewStore(args.Env, args.ConfigRoot)
	if err := store.Load(); err != nil {
		return nil, err
	}
	if path := store.SourcePath(); path != "" {
		e.log.Debugf("Loaded environment configuration from %s", path)
	} else {
		e.log.Debugf("No configuration file for environment %s; overrides and defaults only", args.Env)
	}

	if err := store.AssertNoSecrets(); err != nil {
		payload := map[string]interface{}{}
		var detected *gantryerrors.SecretDetectedError
		if errors.As(err, &detected) {
			payload["keys"] = strings.Join(detected.Keys, ",")
		}
		e.emit(events.Event{Type: events.SecretDetected, Payload: payload})
		return nil, err
	}

	// Override-supplied secrets are legitimate but must never surface in
	// logs, metadata, or published comments.
	for key, value := range args.Overrides {
		if config.IsSecretKey(key) && len(value) > 4 {
			e.tracker.Add(value)
		}
	}

	profile, err := classify.Detect(args.RepoRoot)
	if err != nil {
		return nil, gantryerrors.NewPhaseFailureError("boot", fmt.Errorf("classifying repository: %w", err))
	}
	e.log.Infof("Repository classified as %s (frontend=%t, monorepo=%t)", profile.Stack, profile.IsFrontend(), profile.Monorepo)

	rc := &runContext{
		args:    args,
		store:   store,
		profile: profile,
		ledger:  NewLedger(),
	}
	if e.remote != nil && args.HasPRContext() {
		rc.publisher = report.NewPublisher(e.remote, e.tracker, e.log)
		body := report.RenderBootAnnouncement(args.Phase.String(), args.Env.String(), string(profile.Stack), args.DryRun)
		if err := rc.publisher.Publish(ctx, args.Repo, args.PR, body); err != nil {
			// Announcement is best effort; a comment failure must not
			// abort the run.
			e.log.Warnf("Boot announcement failed: %v", err)
		}
	}
	return rc, nil
}

func (e *Engine) dispatch(ctx context.Context, rc *runContext) error {
	switch rc.args.Phase {
	case PhaseBuild:
		return e.runRecorded(ctx, rc, PhaseBuild, e.phaseBuild)
	case PhaseTest:
		return e.runRecorded(ctx, rc, PhaseTest, e.phaseTest)
	case PhaseDeploy:
		return e.runRecorded(ctx, rc, PhaseDeploy, e.phaseDeploy)
	case PhaseValidateEnv:
		return e.runRecorded(ctx, rc, PhaseValidateEnv, e.phaseValidateEnv)
	case PhaseDetectRepo:
		return e.runRecorded(ctx, rc, PhaseDetectRepo, e.phaseDetectRepo)
	case PhasePolicy:
		return e.runRecorded(ctx, rc, PhasePolicy, e.phasePolicy)
	case PhaseFull:
		return e.runFull(ctx, rc)
	case PhaseHeal:
		return e.runHeal(ctx, rc)
	default:
		return gantryerrors.NewValidationError(fmt.Sprintf("phase %q has no handler", rc.args.Phase), nil)
	}
}

// runFull executes build, test, deploy in order; the first failure aborts
// the remaining steps.
func (e *Engine) runFull(ctx context.Context, rc *runContext) error {
	sequence := []struct {
		phase Phase
		fn    func(context.Context, *runContext) (map[string]interface{}, error)
	}{
		{PhaseBuild, e.phaseBuild},
		{PhaseTest, e.phaseTest},
		{PhaseDeploy, e.phaseDeploy},
	}
	for _, step := range sequence {
		if err := e.runRecorded(ctx, rc, step.phase, step.fn); err != nil {
			return err
		}
	}
	return nil
}

// runHeal drives the nine-step protocol and records every outcome. Heal
// never returns an error: its result is pass or partial.
func (e *Engine) runHeal(ctx context.Context, rc *runContext) error {
	protocol := heal.NewProtocol(heal.Deps{
		Log:      e.log,
		Bus:      e.bus,
		Profile:  rc.profile,
		RepoRoot: rc.args.RepoRoot,
		DryRun:   rc.args.DryRun,
		Scanner:  e.scanner,
		Remote:   e.remote,
		Ref:      rc.args.Repo,
		PR:       rc.args.PR,
		ValidateEnv: func(ctx context.Context) error {
			_, err := e.phaseValidateEnv(ctx, rc)
			return err
		},
		BuildAndTest: func(ctx context.Context) error {
			if _, err := e.phaseBuild(ctx, rc); err != nil {
				return err
			}
			_, err := e.phaseTest(ctx, rc)
			return err
		},
		EvaluatePolicy: func(ctx context.Context) (*policy.Report, error) {
			return e.evaluatePolicy(ctx, rc)
		},
	})

	outcomes, overall := protocol.Run(ctx)
	for _, o := range outcomes {
		rc.ledger.Append(Record{
			Kind:     KindHealStep,
			Name:     o.Name,
			Status:   o.Status,
			Duration: o.Duration,
			Detail:   o.Detail,
		})
	}
	e.log.Infof("Heal protocol finished: %s", overall)
	return nil
}

// runRecorded wraps one phase: lifecycle events, timing, ledger entry, and
// the report-then-reraise failure policy.
func (e *Engine) runRecorded(ctx context.Context, rc *runContext, phase Phase, fn func(context.Context, *runContext) (map[string]interface{}, error)) error {
	e.emit(events.Event{Type: events.PhaseStart, Phase: phase.String()})
	e.log.Infof("Phase %s starting (env %s)", phase, rc.args.Env)
	start := time.Now()

	metadata, err := fn(ctx, rc)
	duration := time.Since(start)

	record := Record{Kind: KindPhase, Name: phase.String(), Status: StatusPass, Duration: duration, Metadata: metadata}
	if err != nil {
		record.Status = StatusFail
		record.Detail = e.tracker.Scrub(err.Error())
	}
	rc.ledger.Append(record)
	e.emit(events.Event{Type: events.PhaseEnd, Phase: phase.String(), Payload: map[string]interface{}{
		"status":           record.Status,
		"duration_seconds": duration.Seconds(),
	}})

	if err != nil {
		// Report the failure before re-raising; a publication failure
		// never masks the phase failure.
		if rc.publisher != nil {
			if pubErr := rc.publisher.Publish(ctx, rc.args.Repo, rc.args.PR, report.RenderFailure(phase.String(), err)); pubErr != nil {
				e.log.Warnf("Failure report publication failed: %v", pubErr)
			}
		}
		e.log.Errorf("Phase %s failed after %s: %v", phase, duration.Round(time.Millisecond), err)
		return err
	}
	e.log.Infof("Phase %s passed in %s", phase, duration.Round(time.Millisecond))
	return nil
}

// --- Phase implementations ---

// stackCommands returns the build or test command sequence for the detected
// stack. A nil return means the phase has nothing to do and passes.
func stackCommands(profile *classify.Profile, phase Phase) [][]string {
	switch profile.Stack {
	case classify.StackNodeFrontend, classify.StackNodeBackend:
		if phase == PhaseBuild && profile.HasBuild {
			return [][]string{{"npm", "ci"}, {"npm", "run", "build"}}
		}
		if phase == PhaseTest && profile.HasTest {
			return [][]string{{"npm", "test"}}
		}
	case classify.StackGo:
		if phase == PhaseBuild {
			return [][]string{{"go", "build", "./..."}}
		}
		if phase == PhaseTest {
			return [][]string{{"go", "test", "./..."}}
		}
	case classify.StackPython:
		if phase == PhaseTest && profile.HasTest {
			return [][]string{{"pytest"}}
		}
	case classify.StackRust:
		if phase == PhaseBuild {
			return [][]string{{"cargo", "build", "--locked"}}
		}
		if phase == PhaseTest {
			return [][]string{{"cargo", "test", "--locked"}}
		}
	}
	return nil
}

func (e *Engine) phaseBuild(ctx context.Context, rc *runContext) (map[string]interface{}, error) {
	return e.runStackCommands(ctx, rc, PhaseBuild)
}

func (e *Engine) phaseTest(ctx context.Context, rc *runContext) (map[string]interface{}, error) {
	return e.runStackCommands(ctx, rc, PhaseTest)
}

func (e *Engine) runStackCommands(ctx context.Context, rc *runContext, phase Phase) (map[string]interface{}, error) {
	commands := stackCommands(rc.profile, phase)
	if commands == nil {
		return map[string]interface{}{"skipped": fmt.Sprintf("stack %s has no %s commands", rc.profile.Stack, phase)}, nil
	}
	var executed []string
	for _, cmd := range commands {
		line := strings.Join(cmd, " ")
		if rc.args.DryRun {
			executed = append(executed, line+" (dry run)")
			continue
		}
		res, err := e.runner.Run(ctx, cmd[0], cmd[1:], rc.args.RepoRoot, nil)
		if err != nil {
			return nil, gantryerrors.NewPhaseFailureError(phase.String(), fmt.Errorf("%s: %w", line, err))
		}
		if res.ExitCode != 0 {
			return nil, gantryerrors.NewPhaseFailureError(phase.String(),
				fmt.Errorf("%s: exit code %d: %s", line, res.ExitCode, tail(res.Stderr, res.Stdout)))
		}
		executed = append(executed, line)
	}
	return map[string]interface{}{"commands": strings.Join(executed, "; ")}, nil
}

func (e *Engine) phaseDeploy(ctx context.Context, rc *runContext) (map[string]interface{}, error) {
	if err := e.frontendSecretGate(ctx, rc); err != nil {
		return nil, err
	}

	providerName := rc.store.Get("deploy_provider", "generic-script", rc.args.Overrides)
	backend, err := provider.Get(providerName)
	if err != nil {
		return nil, err
	}

	e.emit(events.Event{Type: events.DeployStart, Provider: providerName})
	req := &provider.Request{
		Env:       rc.args.Env,
		Resolver:  rc.store,
		Overrides: rc.args.Overrides,
		DryRun:    rc.args.DryRun,
		Runner:    e.runner,
		Log:       e.log,
		RepoRoot:  rc.args.RepoRoot,
	}
	result, deployErr := backend.Deploy(ctx, req)
	if deployErr == nil {
		deployErr = backend.Verify(ctx, req)
	}

	status := StatusPass
	if deployErr != nil {
		status = StatusFail
	}
	e.emit(events.Event{Type: events.DeployEnd, Provider: providerName, Payload: map[string]interface{}{
		"status": status,
	}})
	if deployErr != nil {
		return nil, deployErr
	}

	metadata := map[string]interface{}{"provider": result.Provider, "dry_run": result.DryRun}
	for k, v := range result.Fields {
		metadata[k] = e.tracker.Scrub(v)
	}
	return metadata, nil
}

// frontendSecretGate blocks a front-end deploy whose build output is
// missing or contains critical secret matches. It runs before any provider
// is invoked; dry runs skip it.
func (e *Engine) frontendSecretGate(ctx context.Context, rc *runContext) error {
	if !rc.profile.IsFrontend() || rc.args.DryRun {
		return nil
	}
	outputDir := filepath.Join(rc.args.RepoRoot, rc.profile.BuildOutputDir())
	info, err := os.Stat(outputDir)
	if err != nil || !info.IsDir() {
		return gantryerrors.NewPhaseFailureError(PhaseDeploy.String(),
			fmt.Errorf("front-end build output %q does not exist; run the build phase first", rc.profile.BuildOutputDir()))
	}
	matches, err := e.scanner.Scan(ctx, scan.Request{Roots: []string{outputDir}})
	if err != nil {
		return gantryerrors.NewPhaseFailureError(PhaseDeploy.String(), fmt.Errorf("scanning build output: %w", err))
	}
	var critical []string
	for _, m := range matches {
		if m.Severity == scan.SeverityCritical {
			critical = append(critical, fmt.Sprintf("%s:%d (%s)", m.File, m.Line, m.RuleID))
		}
	}
	if len(critical) > 0 {
		return gantryerrors.NewPhaseFailureError(PhaseDeploy.String(),
			fmt.Errorf("critical secret matches in build output: %s", strings.Join(critical, ", ")))
	}
	return nil
}

// requiredTools lists the CLIs a run needs: the stack's toolchain plus the
// configured deploy backend's CLI.
func requiredTools(profile *classify.Profile, providerName string) []string {
	var tools []string
	switch profile.Stack {
	case classify.StackNodeFrontend, classify.StackNodeBackend:
		tools = append(tools, "node", "npm")
	case classify.StackGo:
		tools = append(tools, "go")
	case classify.StackPython:
		tools = append(tools, "python3")
	case classify.StackRust:
		tools = append(tools, "cargo")
	}
	switch providerName {
	case "cluster":
		tools = append(tools, "kubectl")
	case "cloud-webapp":
		tools = append(tools, "az")
	case "container-service":
		tools = append(tools, "aws")
	case "static-site":
		tools = append(tools, "netlify")
	}
	return tools
}

func (e *Engine) phaseValidateEnv(ctx context.Context, rc *runContext) (map[string]interface{}, error) {
	providerName := rc.store.Get("deploy_provider", "", rc.args.Overrides)
	tools := requiredTools(rc.profile, providerName)

	var missing []string
	var present []string
	for _, tool := range tools {
		if rc.args.DryRun {
			present = append(present, tool+" (unchecked, dry run)")
			continue
		}
		res, err := e.runner.Run(ctx, tool, []string{"--version"}, rc.args.RepoRoot, nil)
		if err != nil || res.ExitCode != 0 {
			missing = append(missing, tool)
			continue
		}
		present = append(present, tool)
	}
	if len(missing) > 0 {
		return nil, gantryerrors.NewPhaseFailureError(PhaseValidateEnv.String(),
			fmt.Errorf("required tools unavailable: %s", strings.Join(missing, ", ")))
	}
	return map[string]interface{}{"tools": strings.Join(present, ", ")}, nil
}

func (e *Engine) phaseDetectRepo(ctx context.Context, rc *runContext) (map[string]interface{}, error) {
	return map[string]interface{}{
		"stack":         string(rc.profile.Stack),
		"frontend":      rc.profile.IsFrontend(),
		"monorepo":      rc.profile.Monorepo,
		"frameworks":    strings.Join(rc.profile.Frameworks, ","),
		"has_lint":      rc.profile.HasLint,
		"has_typecheck": rc.profile.HasTypecheck,
		"has_test":      rc.profile.HasTest,
		"has_build":     rc.profile.HasBuild,
	}, nil
}

func (e *Engine) phasePolicy(ctx context.Context, rc *runContext) (map[string]interface{}, error) {
	rep, err := e.evaluatePolicy(ctx, rc)
	if err != nil {
		return nil, err
	}

	ruleStatus := make(map[string]string, len(rep.Results))
	var violations, warnings []string
	for _, res := range rep.Results {
		switch {
		case res.Err != nil || len(res.Violations) > 0:
			ruleStatus[res.Rule] = "fail"
		case len(res.Warnings) > 0:
			ruleStatus[res.Rule] = "warn"
		default:
			ruleStatus[res.Rule] = "pass"
		}
		violations = append(violations, res.Violations...)
		warnings = append(warnings, res.Warnings...)
	}

	metadata := map[string]interface{}{"score": rep.Score, "passed": rep.Passed}
	for rule, status := range ruleStatus {
		metadata["rule_"+rule] = status
	}

	if rc.publisher != nil {
		body := report.RenderPolicySection(rep.Score, ruleStatus, violations, warnings)
		if pubErr := rc.publisher.Publish(ctx, rc.args.Repo, rc.args.PR, body); pubErr != nil {
			e.log.Warnf("Policy report publication failed: %v", pubErr)
		}
	}
	if verr := rep.ViolationError(); verr != nil {
		return metadata, verr
	}
	return metadata, nil
}

// evaluatePolicy builds the policy engine for this run and emits the
// PolicyEvaluated event.
func (e *Engine) evaluatePolicy(ctx context.Context, rc *runContext) (*policy.Report, error) {
	allowlist := argutil.SplitList(rc.store.Get("approved_actions", "", rc.args.Overrides))
	engine := policy.NewEngine(e.log, e.scanner, e.remote, allowlist)
	rep, err := engine.Evaluate(ctx, &policy.Input{
		RepoRoot:   rc.args.RepoRoot,
		ConfigRoot: rc.args.ConfigRoot,
		Ref:        rc.args.Repo,
		Branch:     e.targetBranch(rc),
	})
	if err != nil {
		return nil, err
	}
	e.emit(events.Event{Type: events.PolicyEvaluated, Payload: map[string]interface{}{
		"score": float64(rep.Score),
	}})
	return rep, nil
}

func (e *Engine) targetBranch(rc *runContext) string {
	if rc.args.Branch != "" {
		return rc.args.Branch
	}
	return rc.store.Get("default_branch", "main", rc.args.Overrides)
}

// publishSummary posts the aggregate run table to the pull request.
func (e *Engine) publishSummary(ctx context.Context, rc *runContext, summary *Summary) {
	if rc.publisher == nil {
		return
	}
	rows := make([]report.Row, 0, len(summary.Records))
	for _, r := range summary.Records {
		rows = append(rows, report.Row{
			Name:     r.Name,
			Status:   r.Status,
			Duration: r.Duration,
			Detail:   r.Detail,
		})
	}
	title := fmt.Sprintf("Pipeline %s run (%s)", rc.args.Phase, rc.args.Env)
	body := report.RenderRunSummary(title, summary.Overall, summary.TotalDuration, rows)
	if err := rc.publisher.Publish(ctx, rc.args.Repo, rc.args.PR, body); err != nil {
		e.log.Warnf("Summary publication failed: %v", err)
	}
}

// exportMetrics writes the text-format metrics snapshot when running under
// an automated CI context.
func (e *Engine) exportMetrics() {
	if e.gatherer == nil || e.metricsPath == "" || !underCI() {
		return
	}
	if err := metrics.WriteFile(e.gatherer, e.metricsPath); err != nil {
		e.log.Warnf("Metrics export to %s failed: %v", e.metricsPath, err)
		return
	}
	e.log.Debugf("Metrics exported to %s", e.metricsPath)
}

func underCI() bool {
	return os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != ""
}

func (e *Engine) emit(event events.Event) {
	if e.bus == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.bus.Emit(event)
}

// tail prefers stderr and falls back to stdout, trimmed for a diagnostic.
func tail(stderr, stdout string) string {
	s := strings.TrimSpace(stderr)
	if s == "" {
		s = strings.TrimSpace(stdout)
	}
	const maxTail = 512
	if len(s) > maxTail {
		s = "..." + s[len(s)-maxTail:]
	}
	return s
}
