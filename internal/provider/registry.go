package provider

import (
	"fmt"
	"sort"
	"sync"

	gantryerrors "github.com/gantry-ci/gantry/pkg/gantry/v1/errors"
)

// Factory creates a backend instance.
type Factory func() Provider

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a backend factory under its name. It panics on empty names,
// nil factories, and duplicates; registration happens from init functions,
// so any of these is a programming error caught at startup.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if name == "" {
		panic("provider: Register called with empty name")
	}
	if factory == nil {
		panic(fmt.Sprintf("provider: Register called with nil factory for %q", name))
	}
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("provider: Register called twice for %q", name))
	}
	registry[name] = factory
}

// Get instantiates the named backend. Unknown names return an
// UnknownProviderError carrying the sorted supported set, which the CLI
// surfaces verbatim.
func Get(name string) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, gantryerrors.NewUnknownProviderError(name, Supported())
	}
	return factory(), nil
}

// Supported returns the sorted names of every registered backend.
func Supported() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
