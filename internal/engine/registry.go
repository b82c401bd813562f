package engine

import (
	"github.com/AaronLay10/ActionGraph/internal/graph"
)

// Handler performs one node's leaf action. Apply must arrange for finish to be called
// exactly once, either before returning or from a later tick.
type Handler interface {
	Apply(p graph.Payload, finish func()) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(p graph.Payload, finish func()) error

func (f HandlerFunc) Apply(p graph.Payload, finish func()) error {
	return f(p, finish)
}

// Env is what a factory gets to build a handler for one dispatch.
type Env struct {
	// Host is scoped to the run: its tick subscriptions end when the run stops or halts.
	Host      Host
	Node      graph.NodeID
	SessionID string
	SceneID   string
}

// Factory builds a handler for a single dispatch.
type Factory func(env Env) (Handler, error)

// KindSpec describes a registered leaf kind.
type KindSpec struct {
	Name string
	// Unique kinds may appear at most once per scene.
	Unique bool
	// Params names the positional parameters, for catalogs and documentation.
	Params []string
	// Defaults seeds the parameters of a node created from the catalog.
	Defaults []string
	New      Factory
}

// Registry maps kind tags to factories.
type Registry struct {
	specs map[string]KindSpec
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]KindSpec)}
}

// Register adds a kind. Registering the same name twice is an error.
func (r *Registry) Register(spec KindSpec) error {
	if _, ok := r.specs[spec.Name]; ok {
		return &DuplicateKindError{Kind: spec.Name}
	}
	r.specs[spec.Name] = spec
	r.order = append(r.order, spec.Name)
	return nil
}

// MustRegister is Register for startup code; it panics on duplicates.
func (r *Registry) MustRegister(spec KindSpec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

// Lookup returns the spec for kind.
func (r *Registry) Lookup(kind string) (KindSpec, bool) {
	spec, ok := r.specs[kind]
	return spec, ok
}

// New builds a handler for kind.
func (r *Registry) New(kind string, env Env) (Handler, error) {
	spec, ok := r.specs[kind]
	if !ok || spec.New == nil {
		return nil, &UnknownKindError{Kind: kind, Node: env.Node}
	}
	return spec.New(env)
}

// Kinds returns every registered spec in registration order.
func (r *Registry) Kinds() []KindSpec {
	out := make([]KindSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.specs[name])
	}
	return out
}

// Catalog returns the kinds that can still be added to g: unique kinds already
// present in g are left out.
func (r *Registry) Catalog(g *graph.Graph) []KindSpec {
	var out []KindSpec
	for _, spec := range r.Kinds() {
		if spec.Unique && g != nil && g.CountKind(spec.Name) > 0 {
			continue
		}
		out = append(out, spec)
	}
	return out
}

// Payload builds a payload for kind seeded with its defaults.
func (spec KindSpec) Payload() graph.Payload {
	return graph.NewPayload(spec.Name, spec.Defaults...)
}
