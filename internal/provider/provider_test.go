package provider

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantry-ci/gantry/internal/command"
	"github.com/gantry-ci/gantry/internal/config"
	"github.com/gantry-ci/gantry/internal/logger"
	gantryerrors "github.com/gantry-ci/gantry/pkg/gantry/v1/errors"
)

// recordedCall captures one Runner invocation for assertions.
type recordedCall struct {
	Name     string
	Args     []string
	ExtraEnv []string
}

// fakeRunner records invocations and replays canned results keyed by the
// command's first token.
type fakeRunner struct {
	calls   []recordedCall
	results map[string]*command.Result
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{results: make(map[string]*command.Result)}
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string, workingDir string, extraEnv []string) (*command.Result, error) {
	f.calls = append(f.calls, recordedCall{Name: name, Args: args, ExtraEnv: extraEnv})
	if res, ok := f.results[name]; ok {
		return res, nil
	}
	return &command.Result{ExitCode: 0}, nil
}

func newTestRequest(t *testing.T, env config.Environment, cfg string, overrides map[string]string, dryRun bool, runner command.Runner) *Request {
	t.Helper()
	root := t.TempDir()
	if cfg != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, env.String()+".json"), []byte(cfg), 0o644))
	}
	store := config.NewStore(env, root)
	require.NoError(t, store.Load())
	return &Request{
		Env:       env,
		Resolver:  store,
		Overrides: overrides,
		DryRun:    dryRun,
		Runner:    runner,
		Log:       logger.NewLogger("error", "text", io.Discard),
		RepoRoot:  t.TempDir(),
	}
}

func TestGetUnknownProvider(t *testing.T) {
	_, err := Get("mainframe")
	require.Error(t, err)

	var unknownErr *gantryerrors.UnknownProviderError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "mainframe", unknownErr.Name)
	assert.Equal(t, []string{"cloud-webapp", "cluster", "container-service", "generic-script", "static-site"}, unknownErr.Supported)
}

func TestRegistryContainsAllBackends(t *testing.T) {
	for _, name := range []string{"cluster", "cloud-webapp", "container-service", "static-site", "generic-script"} {
		p, err := Get(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, p.Name())
	}
}

func TestClusterDeployRunsApplyThenRollout(t *testing.T) {
	runner := newFakeRunner()
	req := newTestRequest(t, config.Staging,
		`{"manifest_dir": "deploy/k8s", "deployment": "web", "namespace": "apps"}`,
		nil, false, runner)

	p, err := Get("cluster")
	require.NoError(t, err)
	result, err := p.Deploy(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, runner.calls, 2)
	assert.Equal(t, "kubectl", runner.calls[0].Name)
	assert.Equal(t, []string{"apply", "-f", "deploy/k8s", "-n", "apps"}, runner.calls[0].Args)
	assert.Equal(t, "kubectl", runner.calls[1].Name)
	assert.Contains(t, strings.Join(runner.calls[1].Args, " "), "rollout status deployment/web")
	assert.Equal(t, "apps", result.Fields["namespace"])
}

func TestClusterDryRunExecutesNothing(t *testing.T) {
	runner := newFakeRunner()
	req := newTestRequest(t, config.Dev, `{"deployment": "web"}`, nil, true, runner)

	p, err := Get("cluster")
	require.NoError(t, err)
	result, err := p.Deploy(context.Background(), req)
	require.NoError(t, err)

	assert.Empty(t, runner.calls, "dry run must not invoke the runner")
	assert.True(t, result.DryRun)
	require.Len(t, result.Commands, 2)
	assert.Contains(t, result.Commands[0], "kubectl apply")
}

func TestClusterApplyFailureIsProviderExecutionError(t *testing.T) {
	runner := newFakeRunner()
	runner.results["kubectl"] = &command.Result{ExitCode: 1, Stderr: "connection refused"}
	req := newTestRequest(t, config.Dev, "", nil, false, runner)

	p, err := Get("cluster")
	require.NoError(t, err)
	_, err = p.Deploy(context.Background(), req)
	require.Error(t, err)

	var execErr *gantryerrors.ProviderExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "cluster", execErr.Provider)
	assert.Equal(t, "deploy", execErr.Stage)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWebappProdDeploysToSlotAndSwaps(t *testing.T) {
	runner := newFakeRunner()
	req := newTestRequest(t, config.Prod, `{"app_name": "shop"}`, nil, false, runner)

	p, err := Get("cloud-webapp")
	require.NoError(t, err)
	result, err := p.Deploy(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, runner.calls, 2)
	assert.Contains(t, runner.calls[0].Args, "--slot")
	assert.Contains(t, strings.Join(runner.calls[1].Args, " "), "slot swap")
	assert.Equal(t, "true", result.Fields["promoted"])
	assert.Equal(t, "staging", result.Fields["slot"])
}

func TestWebappNonProdSkipsSwap(t *testing.T) {
	runner := newFakeRunner()
	req := newTestRequest(t, config.Dev, `{"app_name": "shop"}`, nil, false, runner)

	p, err := Get("cloud-webapp")
	require.NoError(t, err)
	result, err := p.Deploy(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	assert.NotContains(t, runner.calls[0].Args, "--slot")
	assert.Empty(t, result.Fields["promoted"])
}

func TestWebappRequiresAppName(t *testing.T) {
	p, err := Get("cloud-webapp")
	require.NoError(t, err)
	_, err = p.Deploy(context.Background(), newTestRequest(t, config.Dev, "", nil, false, newFakeRunner()))

	var execErr *gantryerrors.ProviderExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, err.Error(), "app_name")
}

func TestContainerServiceDeployAndVerify(t *testing.T) {
	runner := newFakeRunner()
	req := newTestRequest(t, config.Staging,
		`{"cluster_name": "main", "service_name": "api", "region": "us-east-1"}`,
		nil, false, runner)

	p, err := Get("container-service")
	require.NoError(t, err)
	result, err := p.Deploy(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, p.Verify(context.Background(), req))

	require.Len(t, runner.calls, 2)
	assert.Contains(t, runner.calls[0].Args, "--force-new-deployment")
	assert.Contains(t, strings.Join(runner.calls[1].Args, " "), "wait services-stable")
	assert.Equal(t, "main", result.Fields["cluster"])
}

func TestStaticSiteTokenMustComeFromOverrides(t *testing.T) {
	// A token present in the config file does not satisfy the requirement.
	req := newTestRequest(t, config.Dev, `{"site_token": "cfg-token-value"}`, nil, false, newFakeRunner())

	p, err := Get("static-site")
	require.NoError(t, err)
	_, err = p.Deploy(context.Background(), req)
	require.Error(t, err)

	var execErr *gantryerrors.ProviderExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, err.Error(), "override")
}

func TestStaticSiteDeployPassesTokenViaEnv(t *testing.T) {
	runner := newFakeRunner()
	runner.results["netlify"] = &command.Result{
		ExitCode: 0,
		Stdout:   `{"deploy_url": "https://deploy-preview-42.netlify.app"}`,
	}
	req := newTestRequest(t, config.Dev, `{"publish_dir": "public"}`,
		map[string]string{"site_token": "nfp_live_token"}, false, runner)

	p, err := Get("static-site")
	require.NoError(t, err)
	result, err := p.Deploy(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0].ExtraEnv, "NETLIFY_AUTH_TOKEN=nfp_live_token")
	assert.NotContains(t, strings.Join(runner.calls[0].Args, " "), "nfp_live_token")
	assert.Equal(t, "https://deploy-preview-42.netlify.app", result.Fields["url"])
}

func TestScriptProviderSetsEnvironment(t *testing.T) {
	runner := newFakeRunner()
	req := newTestRequest(t, config.Staging, "", nil, false, runner)
	scriptDir := filepath.Join(req.RepoRoot, "scripts")
	require.NoError(t, os.MkdirAll(scriptDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scriptDir, "deploy.sh"), []byte("#!/bin/sh\n"), 0o755))

	p, err := Get("generic-script")
	require.NoError(t, err)
	_, err = p.Deploy(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0].ExtraEnv, "GANTRY_ENV=staging")
	assert.Contains(t, runner.calls[0].ExtraEnv, "GANTRY_DRY_RUN=false")
}

func TestScriptProviderMissingScript(t *testing.T) {
	req := newTestRequest(t, config.Dev, "", nil, false, newFakeRunner())

	p, err := Get("generic-script")
	require.NoError(t, err)
	_, err = p.Deploy(context.Background(), req)

	var execErr *gantryerrors.ProviderExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "deploy", execErr.Stage)
}
