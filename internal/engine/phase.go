package engine

import (
	"fmt"
	"strings"

	"github.com/gantry-ci/gantry/internal/config"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/remote"
)

// Phase is one of the fixed operations the engine can run. The set is
// closed; dispatch is a compile-checked switch, not string lookup at the
// call sites.
type Phase string

const (
	PhaseBuild       Phase = "build"
	PhaseTest        Phase = "test"
	PhaseDeploy      Phase = "deploy"
	PhaseValidateEnv Phase = "validate-env"
	PhaseHeal        Phase = "heal"
	PhaseDetectRepo  Phase = "detect-repo"
	PhasePolicy      Phase = "policy"
	PhaseFull        Phase = "full"
)

// Phases lists every dispatchable phase in documentation order.
var Phases = []Phase{
	PhaseBuild, PhaseTest, PhaseDeploy, PhaseValidateEnv,
	PhaseHeal, PhaseDetectRepo, PhasePolicy, PhaseFull,
}

// ParsePhase converts a string into a Phase.
func ParsePhase(s string) (Phase, error) {
	candidate := Phase(strings.ToLower(strings.TrimSpace(s)))
	for _, p := range Phases {
		if p == candidate {
			return p, nil
		}
	}
	names := make([]string, len(Phases))
	for i, p := range Phases {
		names[i] = string(p)
	}
	return "", fmt.Errorf("unknown phase %q (supported: %s)", s, strings.Join(names, ", "))
}

func (p Phase) String() string { return string(p) }

// RunArgs are the immutable per-invocation parameters. Override arguments
// are the only field that may carry live secrets.
type RunArgs struct {
	Phase      Phase
	Env        config.Environment
	ConfigRoot string
	RepoRoot   string
	DryRun     bool
	Overrides  map[string]string

	// Pull-request context; PR is zero when absent.
	PR     int
	Repo   remote.RepoRef
	Token  string
	Branch string
}

// HasPRContext reports whether this run is attached to a pull request.
func (a *RunArgs) HasPRContext() bool {
	return a.PR > 0 && a.Repo.Owner != "" && a.Repo.Name != ""
}
