package amf

import (
	"fmt"
	"sync"
)

// Trait describes the wire layout of one registered class alias: the sealed
// field names in declaration order and the dynamic/externalizable capability
// flags. A Trait is immutable once registered.
type Trait struct {
	Alias          string
	Fields         []string
	Dynamic        bool
	Externalizable bool
}

// TraitRegistry maps class aliases to trait descriptors. Lookups are safe for
// concurrent use; registration is writer-exclusive. A registry is typically
// populated once at startup and then shared by every encoder and decoder in
// the process.
type TraitRegistry struct {
	mu      sync.RWMutex
	byAlias map[string]Trait
}

// NewTraitRegistry creates an empty trait registry.
func NewTraitRegistry() *TraitRegistry {
	return &TraitRegistry{byAlias: make(map[string]Trait)}
}

// DefaultRegistry is the process-wide registry used by encoders and decoders
// that have no registry set explicitly.
var DefaultRegistry = NewTraitRegistry()

// Register adds a trait descriptor. The alias must be non-empty and not
// already registered.
func (r *TraitRegistry) Register(t Trait) error {
	if t.Alias == "" {
		return fmt.Errorf("amf: trait alias must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byAlias[t.Alias]; ok {
		return fmt.Errorf("amf: trait alias %q already registered", t.Alias)
	}
	// Copy the field list so later mutation by the caller cannot change the
	// registered layout.
	t.Fields = append([]string(nil), t.Fields...)
	r.byAlias[t.Alias] = t
	return nil
}

// Lookup returns the trait registered for alias.
func (r *TraitRegistry) Lookup(alias string) (Trait, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byAlias[alias]
	return t, ok
}

// MustRegister registers a trait and panics on error. Intended for
// startup-time registration of a fixed alias set.
func (r *TraitRegistry) MustRegister(t Trait) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}
