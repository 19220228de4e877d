package language

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnsupportedLanguage is returned by Resolve for an unknown identifier.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Registry is the immutable table of pipelines, keyed by language ID.
// It is built once at startup and safe for concurrent reads without locking.
type Registry struct {
	pipelines map[string]Pipeline
	ordered   []Pipeline
}

// NewRegistry validates the pipelines and freezes them into a Registry.
func NewRegistry(pipelines ...Pipeline) (*Registry, error) {
	reg := &Registry{
		pipelines: make(map[string]Pipeline, len(pipelines)),
	}

	for _, p := range pipelines {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, exists := reg.pipelines[p.ID]; exists {
			return nil, fmt.Errorf("language: duplicate pipeline for %q", p.ID)
		}
		reg.pipelines[p.ID] = p
		reg.ordered = append(reg.ordered, p)
	}

	if len(reg.pipelines) == 0 {
		return nil, fmt.Errorf("language: at least one pipeline must be registered")
	}

	sort.Slice(reg.ordered, func(i, j int) bool {
		return reg.ordered[i].ID < reg.ordered[j].ID
	})
	return reg, nil
}

// Resolve returns the pipeline for id.
func (r *Registry) Resolve(id string) (Pipeline, error) {
	p, ok := r.pipelines[id]
	if !ok {
		return Pipeline{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, id)
	}
	return p, nil
}

// Supports reports whether id is registered.
func (r *Registry) Supports(id string) bool {
	_, ok := r.pipelines[id]
	return ok
}

// Languages returns the pipelines sorted by ID.
func (r *Registry) Languages() []Pipeline {
	out := make([]Pipeline, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// IDs returns the registered language identifiers, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.ordered))
	for i, p := range r.ordered {
		ids[i] = p.ID
	}
	return ids
}
