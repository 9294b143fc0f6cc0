// Package classify inspects a repository tree and derives a build profile
// without executing any project code. The profile drives phase command
// selection, the frontend secret gate, and remediation workflow generation.
package classify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

// StackType identifies the dominant technology stack of a repository.
type StackType string

const (
	StackNodeFrontend StackType = "node-frontend"
	StackNodeBackend  StackType = "node-backend"
	StackGo           StackType = "go"
	StackPython       StackType = "python"
	StackRust         StackType = "rust"
	StackStatic       StackType = "static"
	StackUnknown      StackType = "unknown"
)

// frontendFrameworks are npm dependencies whose presence classifies a Node
// project as a browser-facing frontend.
var frontendFrameworks = []string{"react", "vue", "svelte", "@angular/core", "next", "nuxt", "vite"}

// Profile is the result of static repository inspection.
type Profile struct {
	Stack        StackType
	HasLint      bool
	HasTypecheck bool
	HasTest      bool
	HasBuild     bool
	Frameworks   []string
	Monorepo     bool
}

// IsFrontend reports whether provider invocations for this repository must
// pass the client-side secret exposure gate first.
func (p *Profile) IsFrontend() bool {
	return p.Stack == StackNodeFrontend || p.Stack == StackStatic
}

// BuildOutputDir returns the conventional build artifact directory for the
// detected stack, relative to the repository root.
func (p *Profile) BuildOutputDir() string {
	switch p.Stack {
	case StackNodeFrontend:
		for _, fw := range p.Frameworks {
			if fw == "next" || fw == "nuxt" {
				return ".next"
			}
		}
		return "dist"
	case StackNodeBackend:
		return "dist"
	case StackGo:
		return "bin"
	case StackRust:
		return "target"
	case StackStatic:
		return "."
	default:
		return "build"
	}
}

// packageJSON is the subset of package.json the classifier reads.
type packageJSON struct {
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Workspaces      json.RawMessage   `json:"workspaces"`
}

// Detect inspects repoRoot and returns its build profile. It only reads
// marker files and manifests; project code is never executed. An unreadable
// or empty directory classifies as unknown rather than failing.
func Detect(repoRoot string) (*Profile, error) {
	if pkg, ok := readPackageJSON(repoRoot); ok {
		return detectNode(pkg), nil
	}
	if fileExists(repoRoot, "go.mod") {
		return detectGo(repoRoot), nil
	}
	if fileExists(repoRoot, "Cargo.toml") {
		return &Profile{
			Stack:    StackRust,
			HasLint:  true, // clippy ships with the toolchain
			HasTest:  true,
			HasBuild: true,
			Monorepo: fileExists(repoRoot, "Cargo.lock") && dirExists(repoRoot, "crates"),
		}, nil
	}
	if fileExists(repoRoot, "pyproject.toml") || fileExists(repoRoot, "setup.py") || fileExists(repoRoot, "requirements.txt") {
		return detectPython(repoRoot), nil
	}
	if fileExists(repoRoot, "index.html") {
		return &Profile{Stack: StackStatic}, nil
	}
	return &Profile{Stack: StackUnknown}, nil
}

func detectNode(pkg *packageJSON) *Profile {
	p := &Profile{
		Stack:        StackNodeBackend,
		HasLint:      hasScript(pkg, "lint"),
		HasTypecheck: hasScript(pkg, "typecheck") || hasScript(pkg, "type-check") || hasDep(pkg, "typescript"),
		HasTest:      hasScript(pkg, "test"),
		HasBuild:     hasScript(pkg, "build"),
		Monorepo:     len(pkg.Workspaces) > 0,
	}
	for _, fw := range frontendFrameworks {
		if hasDep(pkg, fw) {
			p.Frameworks = append(p.Frameworks, fw)
		}
	}
	sort.Strings(p.Frameworks)
	if len(p.Frameworks) > 0 {
		p.Stack = StackNodeFrontend
	}
	return p
}

func detectGo(repoRoot string) *Profile {
	return &Profile{
		Stack:        StackGo,
		HasLint:      fileExists(repoRoot, ".golangci.yml") || fileExists(repoRoot, ".golangci.yaml"),
		HasTypecheck: true, // the compiler is the type checker
		HasTest:      true,
		HasBuild:     true,
		Monorepo:     fileExists(repoRoot, "go.work"),
	}
}

func detectPython(repoRoot string) *Profile {
	return &Profile{
		Stack:        StackPython,
		HasLint:      fileExists(repoRoot, ".ruff.toml") || fileExists(repoRoot, "ruff.toml") || fileExists(repoRoot, ".flake8"),
		HasTypecheck: fileExists(repoRoot, "mypy.ini") || fileExists(repoRoot, ".mypy.ini"),
		HasTest:      dirExists(repoRoot, "tests") || dirExists(repoRoot, "test"),
		HasBuild:     fileExists(repoRoot, "pyproject.toml"),
	}
}

func readPackageJSON(repoRoot string) (*packageJSON, bool) {
	content, err := os.ReadFile(filepath.Join(repoRoot, "package.json"))
	if err != nil {
		return nil, false
	}
	var pkg packageJSON
	if err := json.Unmarshal(content, &pkg); err != nil {
		return nil, false
	}
	return &pkg, true
}

func hasScript(pkg *packageJSON, name string) bool {
	_, ok := pkg.Scripts[name]
	return ok
}

func hasDep(pkg *packageJSON, name string) bool {
	if _, ok := pkg.Dependencies[name]; ok {
		return true
	}
	_, ok := pkg.DevDependencies[name]
	return ok
}

func fileExists(root, name string) bool {
	info, err := os.Stat(filepath.Join(root, name))
	return err == nil && !info.IsDir()
}

func dirExists(root, name string) bool {
	info, err := os.Stat(filepath.Join(root, name))
	return err == nil && info.IsDir()
}
