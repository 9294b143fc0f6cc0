package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/gantry-ci/gantry/internal/argutil"
	gantryerrors "github.com/gantry-ci/gantry/pkg/gantry/v1/errors"
)

// clusterProvider deploys declarative manifests to a Kubernetes cluster with
// kubectl: apply the manifest directory, then block on rollout status with a
// bounded wait.
type clusterProvider struct{}

var _ Provider = (*clusterProvider)(nil)

func init() {
	Register("cluster", func() Provider { return &clusterProvider{} })
}

const defaultRolloutTimeout = 120 * time.Second

func (p *clusterProvider) Name() string { return "cluster" }

func (p *clusterProvider) Deploy(ctx context.Context, req *Request) (*Result, error) {
	manifestDir := req.get("manifest_dir", "k8s")
	namespace := req.get("namespace", string(req.Env))
	deployment := req.get("deployment", "")

	result := &Result{Provider: p.Name(), DryRun: req.DryRun, Fields: map[string]string{
		"namespace":    namespace,
		"manifest_dir": manifestDir,
	}}

	applyArgs := []string{"apply", "-f", manifestDir, "-n", namespace}
	res, err := runOrRecord(ctx, req, result, "kubectl", applyArgs, nil)
	if failErr := commandFailure(res, err, "kubectl apply"); failErr != nil {
		return nil, gantryerrors.NewProviderExecutionError(p.Name(), "deploy", failErr)
	}

	if deployment != "" {
		result.Fields["deployment"] = deployment
		if rolloutErr := p.awaitRollout(ctx, req, result, deployment, namespace); rolloutErr != nil {
			return nil, rolloutErr
		}
	}
	return result, nil
}

// awaitRollout blocks until the deployment reports a complete rollout or the
// bounded wait expires.
func (p *clusterProvider) awaitRollout(ctx context.Context, req *Request, result *Result, deployment, namespace string) error {
	timeout, err := argutil.GetDuration(req.Resolver.Snapshot(req.Overrides), "rollout_timeout", defaultRolloutTimeout)
	if err != nil {
		return gantryerrors.NewProviderExecutionError(p.Name(), "verify", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"rollout", "status", "deployment/" + deployment,
		"-n", namespace,
		"--timeout", fmt.Sprintf("%ds", int(timeout.Seconds())),
	}
	res, runErr := runOrRecord(waitCtx, req, result, "kubectl", args, nil)
	if failErr := commandFailure(res, runErr, "kubectl rollout status"); failErr != nil {
		return gantryerrors.NewProviderExecutionError(p.Name(), "verify", failErr)
	}
	return nil
}

// Verify is a no-op: the deploy step already blocks on rollout status.
func (p *clusterProvider) Verify(ctx context.Context, req *Request) error {
	return nil
}
