package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	gantryerrors "github.com/gantry-ci/gantry/pkg/gantry/v1/errors"
)

// scriptProvider is the escape hatch: it runs a repository-local deploy
// script with the run's environment announced through GANTRY_* variables.
// The script owns everything else.
type scriptProvider struct{}

var _ Provider = (*scriptProvider)(nil)

func init() {
	Register("generic-script", func() Provider { return &scriptProvider{} })
}

func (p *scriptProvider) Name() string { return "generic-script" }

func (p *scriptProvider) Deploy(ctx context.Context, req *Request) (*Result, error) {
	script := req.get("deploy_script", "scripts/deploy.sh")

	result := &Result{Provider: p.Name(), DryRun: req.DryRun, Fields: map[string]string{
		"script": script,
	}}

	if !req.DryRun {
		if _, err := os.Stat(filepath.Join(req.RepoRoot, script)); err != nil {
			return nil, gantryerrors.NewProviderExecutionError(p.Name(), "deploy",
				fmt.Errorf("deploy script %q not found: %w", script, err))
		}
	}

	extraEnv := []string{
		"GANTRY_ENV=" + string(req.Env),
		"GANTRY_DRY_RUN=" + strconv.FormatBool(req.DryRun),
	}
	res, err := runOrRecord(ctx, req, result, filepath.Join(req.RepoRoot, script), nil, extraEnv)
	if failErr := commandFailure(res, err, "deploy script"); failErr != nil {
		return nil, gantryerrors.NewProviderExecutionError(p.Name(), "deploy", failErr)
	}
	return result, nil
}

// Verify runs the optional verify script when the repository provides one.
func (p *scriptProvider) Verify(ctx context.Context, req *Request) error {
	script := req.get("verify_script", "")
	if script == "" {
		return nil
	}
	result := &Result{Provider: p.Name(), DryRun: req.DryRun}
	extraEnv := []string{"GANTRY_ENV=" + string(req.Env)}
	res, err := runOrRecord(ctx, req, result, filepath.Join(req.RepoRoot, script), nil, extraEnv)
	if failErr := commandFailure(res, err, "verify script"); failErr != nil {
		return gantryerrors.NewProviderExecutionError(p.Name(), "verify", failErr)
	}
	return nil
}
