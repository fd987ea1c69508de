package tool

// Registry maps tool names to executable tools for one orchestration run.
//
// A registry is layered: a base holding the statically configured tools
// plus an optional run-scoped overlay for tools discovered at run start.
// Lookups consult the overlay first; discarding the overlaid registry at
// run end restores the static tool set without any mutation of the base.
//
// Registries are not synchronized. A run builds its overlay before the
// control loop starts and only reads afterwards, which is safe; callers
// must not register tools while a run is in flight.
type Registry struct {
	base    *layer
	overlay *layer
}

type layer struct {
	tools map[string]Tool
	order []string
}

func newLayer() *layer {
	return &layer{tools: make(map[string]Tool)}
}

func (l *layer) register(t Tool) {
	if _, exists := l.tools[t.Name()]; !exists {
		l.order = append(l.order, t.Name())
	}
	l.tools[t.Name()] = t
}

// NewRegistry builds a registry over the given static tools. On a name
// collision the last registration wins.
func NewRegistry(tools ...Tool) *Registry {
	base := newLayer()
	for _, t := range tools {
		base.register(t)
	}
	return &Registry{base: base}
}

// WithOverlay returns a run-scoped view of the registry: the shared base
// plus a fresh overlay holding the given tools. The receiver is not
// modified.
func (r *Registry) WithOverlay(tools ...Tool) *Registry {
	overlay := newLayer()
	for _, t := range tools {
		overlay.register(t)
	}
	return &Registry{base: r.base, overlay: overlay}
}

// Register adds a tool to the overlay when present, otherwise to the base.
func (r *Registry) Register(t Tool) {
	if r.overlay != nil {
		r.overlay.register(t)
		return
	}
	r.base.register(t)
}

// Lookup resolves a tool by name, overlay first.
func (r *Registry) Lookup(name string) (Tool, bool) {
	if r.overlay != nil {
		if t, ok := r.overlay.tools[name]; ok {
			return t, true
		}
	}
	t, ok := r.base.tools[name]
	return t, ok
}

// Tools returns all registered tools in registration order, base first.
// Overlay entries shadow base entries of the same name.
func (r *Registry) Tools() []Tool {
	var out []Tool
	seenOverlay := func(name string) bool {
		if r.overlay == nil {
			return false
		}
		_, ok := r.overlay.tools[name]
		return ok
	}
	for _, name := range r.base.order {
		if !seenOverlay(name) {
			out = append(out, r.base.tools[name])
		}
	}
	if r.overlay != nil {
		for _, name := range r.overlay.order {
			out = append(out, r.overlay.tools[name])
		}
	}
	return out
}

// Len returns the number of distinct tool names visible through the
// registry.
func (r *Registry) Len() int { return len(r.Tools()) }

// Wire renders every visible tool as its backend descriptor, in the same
// order as Tools.
func (r *Registry) Wire() []map[string]any {
	tools := r.Tools()
	out := make([]map[string]any, len(tools))
	for i, t := range tools {
		out[i] = Wire(t)
	}
	return out
}
