package provider

import (
	"context"
	"fmt"

	"github.com/gantry-ci/gantry/internal/config"
	gantryerrors "github.com/gantry-ci/gantry/pkg/gantry/v1/errors"
)

// webappProvider deploys a packaged application to a managed cloud web app
// via the az CLI. Production deploys go to a staging slot first and are
// promoted with a slot swap, so the live site never serves a half-deployed
// build.
type webappProvider struct{}

var _ Provider = (*webappProvider)(nil)

func init() {
	Register("cloud-webapp", func() Provider { return &webappProvider{} })
}

func (p *webappProvider) Name() string { return "cloud-webapp" }

func (p *webappProvider) Deploy(ctx context.Context, req *Request) (*Result, error) {
	appName := req.get("app_name", "")
	if appName == "" {
		return nil, gantryerrors.NewProviderExecutionError(p.Name(), "deploy",
			fmt.Errorf("configuration key 'app_name' is required"))
	}
	resourceGroup := req.get("resource_group", appName+"-rg")
	artifact := req.get("artifact_path", "app.zip")

	result := &Result{Provider: p.Name(), DryRun: req.DryRun, Fields: map[string]string{
		"app_name":       appName,
		"resource_group": resourceGroup,
	}}

	deployArgs := []string{
		"webapp", "deploy",
		"--name", appName,
		"--resource-group", resourceGroup,
		"--src-path", artifact,
		"--type", "zip",
	}
	slot := p.targetSlot(req)
	if slot != "" {
		deployArgs = append(deployArgs, "--slot", slot)
		result.Fields["slot"] = slot
	}
	res, err := runOrRecord(ctx, req, result, "az", deployArgs, nil)
	if failErr := commandFailure(res, err, "az webapp deploy"); failErr != nil {
		return nil, gantryerrors.NewProviderExecutionError(p.Name(), "deploy", failErr)
	}

	if req.Env == config.Prod && slot != "" {
		swapArgs := []string{
			"webapp", "deployment", "slot", "swap",
			"--name", appName,
			"--resource-group", resourceGroup,
			"--slot", slot,
			"--target-slot", "production",
		}
		res, err = runOrRecord(ctx, req, result, "az", swapArgs, nil)
		if failErr := commandFailure(res, err, "az webapp slot swap"); failErr != nil {
			return nil, gantryerrors.NewProviderExecutionError(p.Name(), "deploy", failErr)
		}
		result.Fields["promoted"] = "true"
	}

	result.Fields["url"] = fmt.Sprintf("https://%s.azurewebsites.net", appName)
	return result, nil
}

// targetSlot returns the deployment slot for this environment. Non-prod
// environments deploy directly to the app, prod goes through "staging".
func (p *webappProvider) targetSlot(req *Request) string {
	if req.Env == config.Prod {
		return req.get("deploy_slot", "staging")
	}
	return req.get("deploy_slot", "")
}

// Verify probes the deployed app's health endpoint via the CLI.
func (p *webappProvider) Verify(ctx context.Context, req *Request) error {
	appName := req.get("app_name", "")
	if appName == "" || req.DryRun {
		return nil
	}
	result := &Result{Provider: p.Name()}
	args := []string{
		"webapp", "show",
		"--name", appName,
		"--resource-group", req.get("resource_group", appName+"-rg"),
		"--query", "state",
		"--output", "tsv",
	}
	res, err := runOrRecord(ctx, req, result, "az", args, nil)
	if failErr := commandFailure(res, err, "az webapp show"); failErr != nil {
		return gantryerrors.NewProviderExecutionError(p.Name(), "verify", failErr)
	}
	return nil
}
