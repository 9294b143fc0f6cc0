package heal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantry-ci/gantry/internal/classify"
	"github.com/gantry-ci/gantry/internal/logger"
	"github.com/gantry-ci/gantry/internal/policy"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/remote"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/scan"
)

type stubScanner struct {
	matches []scan.Match
	err     error
}

func (s *stubScanner) Scan(ctx context.Context, req scan.Request) ([]scan.Match, error) {
	return s.matches, s.err
}

type stubRemote struct {
	threadCount int
	mergeStatus remote.MergeStatus
	merged      bool
	mergeErr    error
}

func (s *stubRemote) ListComments(ctx context.Context, ref remote.RepoRef, number int) ([]remote.Comment, error) {
	return nil, nil
}
func (s *stubRemote) CreateComment(ctx context.Context, ref remote.RepoRef, number int, body string) error {
	return nil
}
func (s *stubRemote) UpdateComment(ctx context.Context, ref remote.RepoRef, commentID int64, body string) error {
	return nil
}
func (s *stubRemote) Mergeability(ctx context.Context, ref remote.RepoRef, number int) (remote.MergeStatus, error) {
	return s.mergeStatus, nil
}
func (s *stubRemote) BranchProtection(ctx context.Context, ref remote.RepoRef, branch string) (*remote.Protection, error) {
	return nil, remote.ErrNotFound
}
func (s *stubRemote) ReviewThreadCount(ctx context.Context, ref remote.RepoRef, number int) (int, error) {
	return s.threadCount, nil
}
func (s *stubRemote) SquashMerge(ctx context.Context, ref remote.RepoRef, number int, title string) error {
	if s.mergeErr != nil {
		return s.mergeErr
	}
	s.merged = true
	return nil
}

func passingDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		Log:          logger.NewLogger("error", "text", io.Discard),
		Profile:      &classify.Profile{Stack: classify.StackGo, HasTest: true, HasBuild: true},
		RepoRoot:     t.TempDir(),
		Scanner:      &stubScanner{},
		ValidateEnv:  func(ctx context.Context) error { return nil },
		BuildAndTest: func(ctx context.Context) error { return nil },
		EvaluatePolicy: func(ctx context.Context) (*policy.Report, error) {
			return &policy.Report{Score: 100, Passed: true}, nil
		},
	}
}

func outcomeByName(outcomes []StepOutcome, name string) StepOutcome {
	for _, o := range outcomes {
		if o.Name == name {
			return o
		}
	}
	return StepOutcome{}
}

func TestRunAllStepsPass(t *testing.T) {
	protocol := NewProtocol(passingDeps(t))
	outcomes, overall := protocol.Run(context.Background())

	assert.Equal(t, ResultPass, overall)
	require.Len(t, outcomes, 9)
	for _, o := range outcomes {
		assert.Equal(t, StatusPass, o.Status, o.Name)
	}
	// Steps run in the fixed order.
	assert.Equal(t, StepPurgeUnsafeWorkflows, outcomes[0].Name)
	assert.Equal(t, StepPolicyGate, outcomes[8].Name)
}

func TestStepFailureDoesNotStopLaterSteps(t *testing.T) {
	deps := passingDeps(t)
	// Make step 3 (normalize-ci) fail by placing a file where the workflow
	// directory must be created.
	require.NoError(t, os.WriteFile(filepath.Join(deps.RepoRoot, ".github"), []byte("not a dir"), 0o644))

	protocol := NewProtocol(deps)
	outcomes, overall := protocol.Run(context.Background())

	assert.Equal(t, ResultPartial, overall)
	require.Len(t, outcomes, 9, "all nine steps must run")
	assert.Equal(t, StatusFail, outcomeByName(outcomes, StepNormalizeCI).Status)
	assert.Equal(t, StatusPass, outcomeByName(outcomes, StepBuildAndTest).Status)
	assert.Equal(t, StatusPass, outcomeByName(outcomes, StepPolicyGate).Status)
}

func TestStepPanicIsContained(t *testing.T) {
	deps := passingDeps(t)
	deps.BuildAndTest = func(ctx context.Context) error { panic("boom") }

	protocol := NewProtocol(deps)
	outcomes, overall := protocol.Run(context.Background())

	assert.Equal(t, ResultPartial, overall)
	buildStep := outcomeByName(outcomes, StepBuildAndTest)
	assert.Equal(t, StatusFail, buildStep.Status)
	assert.Contains(t, buildStep.Detail, "panic")
	assert.Equal(t, StatusPass, outcomeByName(outcomes, StepPolicyGate).Status)
}

func TestPurgeRemovesDenylistedWorkflows(t *testing.T) {
	deps := passingDeps(t)
	dir := filepath.Join(deps.RepoRoot, ".github", "workflows")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "auto-merge.yml"), []byte("on: push\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ci.yml"), []byte("on: push\njobs: {}\n"), 0o644))

	protocol := NewProtocol(deps)
	outcomes, _ := protocol.Run(context.Background())

	purge := outcomeByName(outcomes, StepPurgeUnsafeWorkflows)
	assert.Equal(t, StatusPass, purge.Status)
	assert.Contains(t, purge.Detail, "auto-merge.yml")
	assert.NoFileExists(t, filepath.Join(dir, "auto-merge.yml"))
	assert.FileExists(t, filepath.Join(dir, "ci.yml"))
}

func TestPurgeFlagsDangerousRemainingWorkflows(t *testing.T) {
	deps := passingDeps(t)
	dir := filepath.Join(deps.RepoRoot, ".github", "workflows")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bot.yml"),
		[]byte("on: issue_comment\njobs: {}\n"), 0o644))

	protocol := NewProtocol(deps)
	outcomes, _ := protocol.Run(context.Background())

	purge := outcomeByName(outcomes, StepPurgeUnsafeWorkflows)
	assert.Contains(t, purge.Detail, "issue_comment")
}

func TestNormalizeCIWritesDeterministicWorkflow(t *testing.T) {
	deps := passingDeps(t)
	protocol := NewProtocol(deps)
	protocol.Run(context.Background())

	target := filepath.Join(deps.RepoRoot, ".github", "workflows", "ci.yml")
	first, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(first), "go test ./...")
	assert.Contains(t, string(first), "contents: read")

	// Regeneration is byte-identical.
	protocol.Run(context.Background())
	second, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFrontendSecretGateMissingOutputFails(t *testing.T) {
	deps := passingDeps(t)
	deps.Profile = &classify.Profile{Stack: classify.StackNodeFrontend, HasBuild: true}

	protocol := NewProtocol(deps)
	outcomes, overall := protocol.Run(context.Background())

	gate := outcomeByName(outcomes, StepFrontendSecretGate)
	assert.Equal(t, StatusFail, gate.Status)
	assert.Contains(t, gate.Detail, "does not exist")
	assert.Equal(t, ResultPartial, overall)
}

func TestFrontendSecretGateCriticalMatchFails(t *testing.T) {
	deps := passingDeps(t)
	deps.Profile = &classify.Profile{Stack: classify.StackNodeFrontend, HasBuild: true}
	require.NoError(t, os.MkdirAll(filepath.Join(deps.RepoRoot, "dist"), 0o755))
	deps.Scanner = &stubScanner{matches: []scan.Match{
		{File: "bundle.js", Line: 1, RuleID: "aws-access-key-id", Severity: scan.SeverityCritical},
	}}

	protocol := NewProtocol(deps)
	outcomes, _ := protocol.Run(context.Background())

	gate := outcomeByName(outcomes, StepFrontendSecretGate)
	assert.Equal(t, StatusFail, gate.Status)
	assert.Contains(t, gate.Detail, "aws-access-key-id")
}

func TestReviewAndMergeStepsSkipWithoutPRContext(t *testing.T) {
	protocol := NewProtocol(passingDeps(t))
	outcomes, overall := protocol.Run(context.Background())

	assert.Equal(t, ResultPass, overall)
	assert.Contains(t, outcomeByName(outcomes, StepReviewThreads).Detail, "skipped")
	assert.Contains(t, outcomeByName(outcomes, StepAutoMerge).Detail, "skipped")
}

func TestAutoMergeOnlyWhenClean(t *testing.T) {
	testCases := []struct {
		name      string
		status    remote.MergeStatus
		wantMerge bool
	}{
		{"clean", remote.MergeStatus{Mergeable: true, State: "clean"}, true},
		{"dirty", remote.MergeStatus{Mergeable: false, State: "dirty"}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := &stubRemote{mergeStatus: tc.status, threadCount: 2}
			deps := passingDeps(t)
			deps.Remote = client
			deps.Ref = remote.RepoRef{Owner: "acme", Name: "shop"}
			deps.PR = 12

			protocol := NewProtocol(deps)
			outcomes, _ := protocol.Run(context.Background())

			assert.Equal(t, tc.wantMerge, client.merged)
			assert.Contains(t, outcomeByName(outcomes, StepReviewThreads).Detail, "2 open review comment(s)")
			if !tc.wantMerge {
				assert.Contains(t, outcomeByName(outcomes, StepAutoMerge).Detail, "not cleanly mergeable")
			}
		})
	}
}

func TestPolicyGateViolationFailsStepOnly(t *testing.T) {
	deps := passingDeps(t)
	deps.EvaluatePolicy = func(ctx context.Context) (*policy.Report, error) {
		return &policy.Report{
			Score:  40,
			Passed: false,
			Results: []policy.RuleResult{
				{Rule: "branch-protection", Violations: []string{"no protection"}},
			},
		}, nil
	}

	protocol := NewProtocol(deps)
	outcomes, overall := protocol.Run(context.Background())

	assert.Equal(t, ResultPartial, overall)
	gate := outcomeByName(outcomes, StepPolicyGate)
	assert.Equal(t, StatusFail, gate.Status)
	assert.Contains(t, gate.Detail, "branch-protection")
}

func TestBuildAndTestFailureIsOneStep(t *testing.T) {
	deps := passingDeps(t)
	deps.BuildAndTest = func(ctx context.Context) error {
		return errors.New("test suite failed: 3 failures")
	}

	protocol := NewProtocol(deps)
	outcomes, overall := protocol.Run(context.Background())

	assert.Equal(t, ResultPartial, overall)
	assert.Equal(t, StatusFail, outcomeByName(outcomes, StepBuildAndTest).Status)
	// Later steps still ran.
	assert.Equal(t, StatusPass, outcomeByName(outcomes, StepPolicyGate).Status)
}

func TestGenerateCIWorkflowPerStack(t *testing.T) {
	testCases := []struct {
		stack classify.StackType
		want  string
	}{
		{classify.StackNodeFrontend, "npm ci"},
		{classify.StackGo, "go build ./..."},
		{classify.StackPython, "pytest"},
		{classify.StackRust, "cargo test --locked"},
	}
	for _, tc := range testCases {
		t.Run(string(tc.stack), func(t *testing.T) {
			content, err := GenerateCIWorkflow(&classify.Profile{
				Stack: tc.stack, HasTest: true, HasBuild: true,
			})
			require.NoError(t, err)
			assert.Contains(t, string(content), tc.want)
			assert.Contains(t, string(content), fmt.Sprintf("uses: %s", "actions/checkout@v4"))
		})
	}
}
