package checks

import (
	"slices"
	"strings"
	"sync"

	"github.com/wafscan/wafscan/internal/results"
)

// Registry is the catalog of check definitions. It is filled once at startup
// and becomes read-only the first time it is queried.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]Definition
	order       []string
	sealed      bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]Definition),
		order:       make([]string, 0),
	}
}

// Register adds def. The first definition registered under an id wins.
func (r *Registry) Register(def Definition) error {
	def.ID = strings.TrimSpace(def.ID)
	if err := def.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrRegistrySealed
	}
	if _, exists := r.definitions[def.ID]; exists {
		return &DuplicateCheckError{ID: def.ID}
	}
	r.definitions[def.ID] = def.clone()
	r.order = append(r.order, def.ID)
	return nil
}

// MustRegister registers every definition and panics on the first error. It
// is meant for built-in catalogs whose ids are fixed at compile time.
func (r *Registry) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) seal() {
	r.mu.RLock()
	sealed := r.sealed
	r.mu.RUnlock()
	if sealed {
		return
	}
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Get returns the definition registered under id.
func (r *Registry) Get(id string) (Definition, bool) {
	r.seal()
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return Definition{}, false
	}
	return def.clone(), true
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// List returns the definitions selected by f in registration order.
func (r *Registry) List(f Filter) []Definition {
	r.seal()
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.order))
	for _, id := range r.order {
		def := r.definitions[id]
		if f.Match(def) {
			out = append(out, def.clone())
		}
	}
	return out
}

// Filter selects definitions. Empty include sets select everything; an
// exclusion always wins over a matching inclusion.
type Filter struct {
	IncludePillars []results.Pillar
	IncludeIDs     []string
	IncludeTags    []string
	ExcludePillars []results.Pillar
	ExcludeIDs     []string
}

// IsZero reports whether the filter selects every definition.
func (f Filter) IsZero() bool {
	return len(f.IncludePillars) == 0 && len(f.IncludeIDs) == 0 && len(f.IncludeTags) == 0 &&
		len(f.ExcludePillars) == 0 && len(f.ExcludeIDs) == 0
}

func (f Filter) Match(def Definition) bool {
	if slices.Contains(f.ExcludePillars, def.Pillar) || containsID(f.ExcludeIDs, def.ID) {
		return false
	}

	hasInclude := len(f.IncludePillars) > 0 || len(f.IncludeIDs) > 0 || len(f.IncludeTags) > 0
	if !hasInclude {
		return true
	}
	if slices.Contains(f.IncludePillars, def.Pillar) || containsID(f.IncludeIDs, def.ID) {
		return true
	}
	return slices.ContainsFunc(f.IncludeTags, def.HasTag)
}

func containsID(ids []string, id string) bool {
	return slices.ContainsFunc(ids, func(v string) bool {
		return strings.EqualFold(strings.TrimSpace(v), id)
	})
}
