package stage

import (
	"fmt"
	"slices"
	"sync"
)

// Factory builds a Definition from the model table.
type Factory func(m Models) Definition

// Registry maps stage names to their constructors. Definitions are built on
// first use and cached.
type Registry struct {
	mu        sync.Mutex
	models    Models
	factories map[string]Factory
	built     map[string]Definition
}

// NewRegistry creates a Registry pre-registered with every stage.
func NewRegistry(m Models) *Registry {
	r := &Registry{
		models:    m,
		factories: make(map[string]Factory),
		built:     make(map[string]Definition),
	}
	r.factories[NameResearch] = func(m Models) Definition { return NewResearch(m.Research) }
	r.factories[NameDeepResearch] = func(m Models) Definition { return NewDeepResearch(m.Research, m.DeepResearchAgent) }
	r.factories[NameDirector] = func(m Models) Definition { return NewDirector(m.Director) }
	r.factories[NameScriptRefine] = func(m Models) Definition { return NewScriptRefine(m.Director) }
	r.factories[NameLinguistic] = func(m Models) Definition { return NewLinguistic(m.Linguistic) }
	r.factories[NameSensitivity] = func(m Models) Definition { return NewSensitivity(m.Sensitivity) }
	r.factories[NameSocial] = func(m Models) Definition { return NewSocial(m.Social) }
	r.factories[NameSocialRefine] = func(m Models) Definition { return NewSocialRefine(m.Social) }
	r.factories[NameFactRefine] = func(m Models) Definition { return NewFactRefine(m.Research) }
	r.factories[NameStory] = func(m Models) Definition { return NewStory(m.Visual) }
	r.factories[NameVeoScript] = func(m Models) Definition { return NewVeoScript(m.Visual) }
	r.factories[NameCharacters] = func(m Models) Definition { return NewCharacters(m.Visual) }
	r.factories[NameClipPrompts] = func(m Models) Definition { return NewClipPrompts(m.Visual) }
	return r
}

// Get returns the Definition registered under name.
func (r *Registry) Get(name string) (Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.built[name]; ok {
		return d, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("no stage registered as %q", name)
	}
	d := factory(r.models)
	r.built[name] = d
	return d, nil
}

// MustGet is Get for names known at compile time.
func (r *Registry) MustGet(name string) Definition {
	d, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return d
}

// Names lists registered stages in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
