package provider

import (
	"context"
	"fmt"

	gantryerrors "github.com/gantry-ci/gantry/pkg/gantry/v1/errors"
)

// containerServiceProvider rolls a managed container service (ECS) to a new
// task revision: force a new deployment, then block on the service-stable
// waiter.
type containerServiceProvider struct{}

var _ Provider = (*containerServiceProvider)(nil)

func init() {
	Register("container-service", func() Provider { return &containerServiceProvider{} })
}

func (p *containerServiceProvider) Name() string { return "container-service" }

func (p *containerServiceProvider) Deploy(ctx context.Context, req *Request) (*Result, error) {
	cluster := req.get("cluster_name", "")
	service := req.get("service_name", "")
	if cluster == "" || service == "" {
		return nil, gantryerrors.NewProviderExecutionError(p.Name(), "deploy",
			fmt.Errorf("configuration keys 'cluster_name' and 'service_name' are required"))
	}

	result := &Result{Provider: p.Name(), DryRun: req.DryRun, Fields: map[string]string{
		"cluster": cluster,
		"service": service,
	}}

	updateArgs := []string{
		"ecs", "update-service",
		"--cluster", cluster,
		"--service", service,
		"--force-new-deployment",
	}
	if taskDef := req.get("task_definition", ""); taskDef != "" {
		updateArgs = append(updateArgs, "--task-definition", taskDef)
		result.Fields["task_definition"] = taskDef
	}
	if region := req.get("region", ""); region != "" {
		updateArgs = append(updateArgs, "--region", region)
		result.Fields["region"] = region
	}
	res, err := runOrRecord(ctx, req, result, "aws", updateArgs, nil)
	if failErr := commandFailure(res, err, "aws ecs update-service"); failErr != nil {
		return nil, gantryerrors.NewProviderExecutionError(p.Name(), "deploy", failErr)
	}
	return result, nil
}

// Verify blocks until the service reaches a stable state. The aws waiter
// polls internally and fails on its own timeout, so no extra bound is
// layered on top.
func (p *containerServiceProvider) Verify(ctx context.Context, req *Request) error {
	cluster := req.get("cluster_name", "")
	service := req.get("service_name", "")
	if cluster == "" || service == "" {
		return nil
	}

	result := &Result{Provider: p.Name(), DryRun: req.DryRun}
	waitArgs := []string{
		"ecs", "wait", "services-stable",
		"--cluster", cluster,
		"--services", service,
	}
	if region := req.get("region", ""); region != "" {
		waitArgs = append(waitArgs, "--region", region)
	}
	res, err := runOrRecord(ctx, req, result, "aws", waitArgs, nil)
	if failErr := commandFailure(res, err, "aws ecs wait services-stable"); failErr != nil {
		return gantryerrors.NewProviderExecutionError(p.Name(), "verify", failErr)
	}
	return nil
}
