// Package provider defines the deployment backend abstraction and its
// registry. Each backend translates a deploy request into invocations of its
// platform CLI through the injected command runner; none of them shell out
// directly. Backends register themselves at init time.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/gantry-ci/gantry/internal/command"
	"github.com/gantry-ci/gantry/internal/config"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/log"
)

// Request carries everything a backend needs for one deployment. The
// orchestrator builds exactly one Request per deploy phase.
type Request struct {
	// Env scopes the deployment; some backends change behavior on Prod.
	Env config.Environment
	// Resolver resolves configuration with override precedence.
	Resolver *config.Store
	// Overrides are the run's key=value override arguments. Live secrets
	// only ever arrive through this map.
	Overrides map[string]string
	// DryRun, when true, must prevent every runner invocation. Backends
	// record the commands they would have run instead.
	DryRun bool
	// Runner executes platform CLIs.
	Runner command.Runner
	// Log is the run-scoped logger.
	Log log.Logger
	// RepoRoot is the repository being deployed.
	RepoRoot string
}

// Result is the outcome of a successful (or dry-run) deployment.
type Result struct {
	// Provider is the backend that produced this result.
	Provider string
	// Fields holds backend-specific outcome metadata (deploy URL, service
	// name, revision). Values are safe to publish; backends must not place
	// credential material here.
	Fields map[string]string
	// DryRun mirrors the request flag.
	DryRun bool
	// Commands lists the command lines executed, or in a dry run, the ones
	// that would have been.
	Commands []string
}

// Provider is a deployment backend. Implementations must be stateless;
// everything run-specific arrives in the Request.
type Provider interface {
	// Name returns the backend's registry name.
	Name() string
	// Deploy performs (or simulates) the deployment.
	Deploy(ctx context.Context, req *Request) (*Result, error)
	// Verify performs the backend's post-deploy health confirmation. It is
	// a no-op for backends whose deploy step already blocks on health.
	Verify(ctx context.Context, req *Request) error
}

// get resolves a configuration key through the request's precedence chain.
func (r *Request) get(key, def string) string {
	return r.Resolver.Get(key, def, r.Overrides)
}

// renderCommand formats a command line for the result's Commands list.
func renderCommand(name string, args []string) string {
	return name + " " + strings.Join(args, " ")
}

// runOrRecord centralizes the dry-run guard: in a dry run the command is
// recorded and not executed. On real runs a non-zero exit or execution error
// is returned as-is for the backend to wrap.
func runOrRecord(ctx context.Context, req *Request, result *Result, name string, args []string, extraEnv []string) (*command.Result, error) {
	line := renderCommand(name, args)
	result.Commands = append(result.Commands, line)
	if req.DryRun {
		req.Log.Infof("Dry run: would execute: %s", line)
		return &command.Result{ExitCode: 0}, nil
	}
	req.Log.Debugf("Executing: %s", line)
	return req.Runner.Run(ctx, name, args, req.RepoRoot, extraEnv)
}

// commandFailure normalizes a runner outcome into an error when the command
// could not run or exited non-zero. Stderr is included because platform CLIs
// put their diagnostics there.
func commandFailure(res *command.Result, err error, what string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if res.ExitCode != 0 {
		stderr := strings.TrimSpace(res.Stderr)
		if stderr == "" {
			stderr = strings.TrimSpace(res.Stdout)
		}
		return fmt.Errorf("%s: exit code %d: %s", what, res.ExitCode, stderr)
	}
	return nil
}
