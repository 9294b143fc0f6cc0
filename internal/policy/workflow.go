package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Workflow is the subset of a CI workflow file the policy rules inspect.
// Parsing is deliberately lenient: rules must cope with the wild variety of
// real-world workflow files, so unknown fields are ignored rather than
// rejected.
type Workflow struct {
	Path        string
	Name        string            `yaml:"name"`
	Triggers    TriggerSet        `yaml:"on"`
	Permissions PermissionSpec    `yaml:"permissions"`
	Jobs        map[string]Job    `yaml:"jobs"`
	Env         map[string]string `yaml:"env"`
}

// Job is one job within a workflow.
type Job struct {
	Permissions PermissionSpec `yaml:"permissions"`
	Steps       []Step         `yaml:"steps"`
}

// Step is one step within a job.
type Step struct {
	Name string `yaml:"name"`
	Uses string `yaml:"uses"`
	Run  string `yaml:"run"`
}

// TriggerSet normalizes the "on" field, which YAML allows as a scalar, a
// sequence, or a mapping.
type TriggerSet struct {
	Events []string
}

func (t *TriggerSet) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var single string
		if err := node.Decode(&single); err != nil {
			return err
		}
		t.Events = []string{single}
	case yaml.SequenceNode:
		return node.Decode(&t.Events)
	case yaml.MappingNode:
		var asMap map[string]yaml.Node
		if err := node.Decode(&asMap); err != nil {
			return err
		}
		for event := range asMap {
			t.Events = append(t.Events, event)
		}
		sort.Strings(t.Events)
	default:
		return fmt.Errorf("unsupported YAML kind %d for trigger set", node.Kind)
	}
	return nil
}

// Has reports whether the workflow fires on the given event.
func (t TriggerSet) Has(event string) bool {
	for _, e := range t.Events {
		if e == event {
			return true
		}
	}
	return false
}

// PermissionSpec normalizes the "permissions" field, which is either the
// scalar "write-all"/"read-all" or a mapping of scope to access.
type PermissionSpec struct {
	All    string
	Scopes map[string]string
}

func (p *PermissionSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&p.All)
	case yaml.MappingNode:
		return node.Decode(&p.Scopes)
	default:
		return fmt.Errorf("unsupported YAML kind %d for permissions", node.Kind)
	}
}

// IsWriteAll reports whether this spec grants blanket write access.
func (p PermissionSpec) IsWriteAll() bool {
	return p.All == "write-all"
}

// HasWrite reports whether the given scope has write access, directly or via
// write-all.
func (p PermissionSpec) HasWrite(scope string) bool {
	if p.IsWriteAll() {
		return true
	}
	return p.Scopes[scope] == "write"
}

// UnsafeTriggers are workflow events that run with elevated repository
// context on behalf of external contributors.
var UnsafeTriggers = []string{"pull_request_target", "issue_comment", "workflow_run"}

// UnsafeFindings returns the workflow's dangerous patterns: unsafe triggers,
// and write-all jobs containing push or merge steps. Used by the
// workflow-permissions rule and by the remediation purge step.
func (wf *Workflow) UnsafeFindings() []string {
	var findings []string
	for _, trigger := range UnsafeTriggers {
		if wf.Triggers.Has(trigger) {
			findings = append(findings,
				fmt.Sprintf("%s: unsafe trigger %q executes in base-branch context", wf.Path, trigger))
		}
	}
	for jobName, job := range wf.Jobs {
		if !wf.Permissions.IsWriteAll() && !job.Permissions.IsWriteAll() {
			continue
		}
		for _, step := range job.Steps {
			if StepPushesOrMerges(step) {
				findings = append(findings,
					fmt.Sprintf("%s: job %q combines write-all permissions with a push or merge step", wf.Path, jobName))
			}
		}
	}
	sort.Strings(findings)
	return findings
}

// StepPushesOrMerges reports whether a step pushes commits or merges a pull
// request.
func StepPushesOrMerges(step Step) bool {
	run := strings.ToLower(step.Run)
	if strings.Contains(run, "git push") || strings.Contains(run, "gh pr merge") {
		return true
	}
	uses := strings.ToLower(step.Uses)
	return strings.Contains(uses, "auto-merge") || strings.Contains(uses, "merge-action")
}

// LoadWorkflows parses every workflow file under .github/workflows. A
// repository without that directory yields an empty slice. Files that fail
// to parse are returned as errors; a malformed workflow is itself a
// governance finding and must not be silently skipped.
func LoadWorkflows(repoRoot string) ([]*Workflow, error) {
	dir := filepath.Join(repoRoot, ".github", "workflows")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading workflow directory: %w", err)
	}

	var workflows []*Workflow
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading workflow %s: %w", entry.Name(), err)
		}
		var wf Workflow
		if err := yaml.Unmarshal(content, &wf); err != nil {
			return nil, fmt.Errorf("parsing workflow %s: %w", entry.Name(), err)
		}
		wf.Path = filepath.ToSlash(filepath.Join(".github", "workflows", entry.Name()))
		workflows = append(workflows, &wf)
	}
	return workflows, nil
}
