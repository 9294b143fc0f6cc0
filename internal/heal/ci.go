package heal

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/gantry-ci/gantry/internal/classify"
)

// ciWorkflow models the generated CI definition. Struct field order fixes
// the marshalled key order, which is what makes generation deterministic.
type ciWorkflow struct {
	Name        string            `yaml:"name"`
	On          []string          `yaml:"on"`
	Permissions map[string]string `yaml:"permissions"`
	Jobs        map[string]ciJob  `yaml:"jobs"`
}

type ciJob struct {
	RunsOn string   `yaml:"runs-on"`
	Steps  []ciStep `yaml:"steps"`
}

type ciStep struct {
	Name string            `yaml:"name,omitempty"`
	Uses string            `yaml:"uses,omitempty"`
	With map[string]string `yaml:"with,omitempty"`
	Run  string            `yaml:"run,omitempty"`
}

// GenerateCIWorkflow produces the normalized, deterministic CI definition
// for the detected stack: read-only permissions, safe triggers, and only
// the steps the repository's capabilities support. Regenerating for the
// same profile yields byte-identical output.
func GenerateCIWorkflow(profile *classify.Profile) ([]byte, error) {
	steps := []ciStep{{Name: "Checkout", Uses: "actions/checkout@v4"}}
	steps = append(steps, setupSteps(profile)...)
	steps = append(steps, commandSteps(profile)...)

	wf := ciWorkflow{
		Name:        "CI",
		On:          []string{"push", "pull_request"},
		Permissions: map[string]string{"contents": "read"},
		Jobs: map[string]ciJob{
			"ci": {RunsOn: "ubuntu-latest", Steps: steps},
		},
	}
	content, err := yaml.Marshal(&wf)
	if err != nil {
		return nil, fmt.Errorf("marshalling generated workflow: %w", err)
	}
	return content, nil
}

func setupSteps(profile *classify.Profile) []ciStep {
	switch profile.Stack {
	case classify.StackNodeFrontend, classify.StackNodeBackend:
		return []ciStep{{
			Name: "Setup Node",
			Uses: "actions/setup-node@v4",
			With: map[string]string{"node-version": "20"},
		}}
	case classify.StackGo:
		return []ciStep{{
			Name: "Setup Go",
			Uses: "actions/setup-go@v5",
			With: map[string]string{"go-version": "stable"},
		}}
	case classify.StackPython:
		return []ciStep{{
			Name: "Setup Python",
			Uses: "actions/setup-python@v5",
			With: map[string]string{"python-version": "3.12"},
		}}
	case classify.StackRust:
		return []ciStep{{Name: "Setup Rust", Uses: "dtolnay/rust-toolchain@stable"}}
	default:
		return nil
	}
}

func commandSteps(profile *classify.Profile) []ciStep {
	var steps []ciStep
	add := func(name, run string) {
		steps = append(steps, ciStep{Name: name, Run: run})
	}
	switch profile.Stack {
	case classify.StackNodeFrontend, classify.StackNodeBackend:
		add("Install dependencies", "npm ci")
		if profile.HasLint {
			add("Lint", "npm run lint")
		}
		if profile.HasTypecheck {
			add("Typecheck", "npx tsc --noEmit")
		}
		if profile.HasTest {
			add("Test", "npm test")
		}
		if profile.HasBuild {
			add("Build", "npm run build")
		}
	case classify.StackGo:
		add("Build", "go build ./...")
		add("Test", "go test ./...")
	case classify.StackPython:
		add("Install dependencies", "pip install -e .")
		if profile.HasLint {
			add("Lint", "ruff check .")
		}
		if profile.HasTypecheck {
			add("Typecheck", "mypy .")
		}
		if profile.HasTest {
			add("Test", "pytest")
		}
	case classify.StackRust:
		add("Build", "cargo build --locked")
		add("Test", "cargo test --locked")
	default:
		add("No-op", "echo 'no build steps for this stack'")
	}
	return steps
}
