// Package registry holds the process-wide element registry: the mapping from
// custom-element tag names to imported element definitions.
//
// The registry is an explicitly owned object injected into the importer and
// the rendering pipeline rather than ambient global state. Redefinition is
// mode-gated: in development a tag may be redefined at any time so edited
// components can be hot-swapped; outside development a tag, once defined,
// is frozen for the life of the process.
package registry

import (
	"sort"
	"sync"

	"github.com/podev-dev/podev/internal/errors"
)

// ElementDefinition describes one imported element.
type ElementDefinition struct {
	// Tag is the registry key, of the form "{appName}-{componentName}".
	Tag string
	// ObservedAttributes is the attribute list reported by the imported
	// element constructor.
	ObservedAttributes []string
	// BundlePath is the SSR-importable bundle backing this definition.
	BundlePath string
	// Version is the module identity counter the definition was imported
	// under. Monotonic per importer; used to defeat module caching in
	// development.
	Version uint64
}

// ElementRegistry manages defined elements.
type ElementRegistry struct {
	development bool
	elements    map[string]*ElementDefinition
	mutex       sync.RWMutex
}

// NewElementRegistry creates a registry. In development mode the uniqueness
// invariant is relaxed and redefinition always succeeds.
func NewElementRegistry(development bool) *ElementRegistry {
	return &ElementRegistry{
		development: development,
		elements:    make(map[string]*ElementDefinition),
	}
}

// Define registers def under its tag. Outside development mode a duplicate
// tag fails with a DuplicateElementError naming the conflict. Concurrent
// development-mode definitions of the same tag race benignly: last write wins.
func (r *ElementRegistry) Define(def *ElementDefinition) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.elements[def.Tag]; exists && !r.development {
		return &errors.DuplicateElementError{Name: def.Tag}
	}
	r.elements[def.Tag] = def
	return nil
}

// Get retrieves a definition by tag.
func (r *ElementRegistry) Get(tag string) (*ElementDefinition, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	def, exists := r.elements[tag]
	return def, exists
}

// Has reports whether a tag is defined.
func (r *ElementRegistry) Has(tag string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, exists := r.elements[tag]
	return exists
}

// Names returns all defined tags, sorted.
func (r *ElementRegistry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.elements))
	for name := range r.elements {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of defined elements.
func (r *ElementRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.elements)
}
