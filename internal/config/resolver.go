package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/mod/semver"

	"github.com/gantry-ci/gantry/internal/util"
	gantryerrors "github.com/gantry-ci/gantry/pkg/gantry/v1/errors"
)

// SupportedSchemaMajor is the configuration schema major version this build
// understands. Files declaring a different major via "schema_version" are
// rejected at load time.
const SupportedSchemaMajor = "v1"

// searchSubdirs are the locations probed, in order, for <env>.json under the
// configuration root. The first file found wins; later candidates are not
// consulted.
var searchSubdirs = []string{"", "templates", "config"}

// Store loads and resolves environment configuration. A Store is scoped to a
// single environment for the lifetime of a run. It is safe for concurrent
// reads; Load and Reload must not race with Get.
type Store struct {
	mu     sync.RWMutex
	env    Environment
	root   string
	path   string // file the values came from, "" when no file existed
	values map[string]string
}

// NewStore creates a Store for the given environment rooted at configRoot.
// No file is read until Load is called.
func NewStore(env Environment, configRoot string) *Store {
	return &Store{
		env:    env,
		root:   configRoot,
		values: make(map[string]string),
	}
}

// Load locates and parses the environment's configuration file. Absence of a
// file in every search location is not an error; the store simply resolves
// everything to overrides and defaults. Malformed content, schema violations,
// and unsupported schema versions are fatal ConfigParseErrors.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Reload re-reads the backing file, picking up edits made since Load (for
// example by the remediation protocol). The previously resolved path is not
// pinned; the search order runs again in full.
func (s *Store) Reload() error {
	return s.Load()
}

func (s *Store) loadLocked() error {
	s.path = ""
	s.values = make(map[string]string)

	path, found := s.locate()
	if !found {
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return gantryerrors.NewConfigParseError(path, err)
	}
	if err := validateWithSchema(content); err != nil {
		return gantryerrors.NewConfigParseError(path, err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(content, &raw); err != nil {
		return gantryerrors.NewConfigParseError(path, err)
	}

	values := make(map[string]string, len(raw))
	for key, val := range raw {
		if len(key) > 0 && key[0] == '_' {
			// Underscore keys are file-local commentary, not configuration.
			continue
		}
		values[key] = coerceScalar(val)
	}

	if declared, ok := values["schema_version"]; ok {
		if err := checkSchemaVersion(declared); err != nil {
			return gantryerrors.NewConfigParseError(path, err)
		}
	}

	s.path = path
	s.values = values
	return nil
}

// locate probes the search locations in order and returns the first existing
// file. Both the bare and the "config."-prefixed file name are accepted.
func (s *Store) locate() (string, bool) {
	names := []string{s.env.String() + ".json", "config." + s.env.String() + ".json"}
	for _, sub := range searchSubdirs {
		for _, name := range names {
			candidate := filepath.Join(s.root, sub, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, true
			}
		}
	}
	return "", false
}

// Get resolves a single key. Precedence, highest first: the overrides map,
// the loaded file, then the supplied default. An empty-string override still
// wins; presence, not truthiness, decides.
func (s *Store) Get(key, def string, overrides map[string]string) string {
	if v, ok := overrides[key]; ok {
		return v
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// Has reports whether key resolves from either the overrides or the loaded
// file.
func (s *Store) Has(key string, overrides map[string]string) bool {
	if _, ok := overrides[key]; ok {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok
}

// Snapshot returns a copy of the loaded values merged with overrides at full
// precedence. Callers receive an independent map; mutations never reach the
// store.
func (s *Store) Snapshot(overrides map[string]string) map[string]string {
	s.mu.RLock()
	merged := util.CopyStringMap(s.values)
	s.mu.RUnlock()
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// Environment returns the environment this store is scoped to.
func (s *Store) Environment() Environment { return s.env }

// SourcePath returns the file the loaded values came from, or "" when no
// configuration file existed.
func (s *Store) SourcePath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

func checkSchemaVersion(declared string) error {
	v := declared
	if len(v) == 0 || v[0] != 'v' {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("schema_version %q is not a valid semantic version", declared)
	}
	if semver.Major(v) != SupportedSchemaMajor {
		return fmt.Errorf("schema_version %q is not supported (want major %s)", declared, SupportedSchemaMajor)
	}
	return nil
}

// coerceScalar renders a decoded JSON scalar as its configuration string.
// The schema guarantees no objects or arrays reach this point.
func coerceScalar(val interface{}) string {
	switch v := val.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
