package flow

import (
	"fmt"
	"strings"
	"sync"
)

// Registry maps command names to their definitions. It is populated at
// startup and effectively read-only afterwards; registration rejects
// duplicates so a name always resolves to the definition registered first.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*CommandSpec
	ordered []*CommandSpec
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*CommandSpec)}
}

// Register adds a command. Names are matched case-insensitively; a
// collision returns ErrDuplicateCommand and leaves the registry unchanged.
func (r *Registry) Register(spec *CommandSpec) error {
	if err := spec.validate(); err != nil {
		return err
	}

	key := strings.ToLower(spec.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, spec.Name)
	}
	r.byName[key] = spec
	r.ordered = append(r.ordered, spec)
	return nil
}

// MustRegister panics on registration failure. Intended for static
// command sets wired at startup.
func (r *Registry) MustRegister(spec *CommandSpec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

// Lookup resolves a command name case-insensitively.
func (r *Registry) Lookup(name string) (*CommandSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.byName[strings.ToLower(name)]
	return spec, ok
}

// Category groups visible commands for catalog rendering.
type Category struct {
	Name     string
	Commands []*CommandSpec
}

// ListVisible returns the catalog grouped by category. Private commands are
// included only for privileged callers. Within a category commands keep
// registration order; categories appear in first-seen order.
func (r *Registry) ListVisible(privileged bool) []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cats []Category
	index := make(map[string]int)

	for _, spec := range r.ordered {
		if !spec.Public && !privileged {
			continue
		}
		i, ok := index[spec.Category]
		if !ok {
			i = len(cats)
			index[spec.Category] = i
			cats = append(cats, Category{Name: spec.Category})
		}
		cats[i].Commands = append(cats[i].Commands, spec)
	}
	return cats
}
