package nodegraph

// StaticRegistry is a [TypeRegistry] backed by a plain map from node type to
// port list. The reference registry pre-populates the decoration types; an
// editor adds its own node types on top.
type StaticRegistry struct {
	ports map[string][]PortSpec
}

// NewStaticRegistry creates a registry pre-populated with the decoration
// node types (gate, proxy, converter). Proxy ports carry the "any" type;
// the normalizer narrows a proxy's effective type from the internal port it
// stands in for.
func NewStaticRegistry() *StaticRegistry {
	r := &StaticRegistry{ports: make(map[string][]PortSpec)}
	r.Register(TypeProxy, []PortSpec{
		{ID: ProxyInPort, Label: "In", Type: "any", Direction: DirectionInput},
		{ID: ProxyOutPort, Label: "Out", Type: "any", Direction: DirectionOutput},
	})
	r.Register(TypeGate, []PortSpec{
		{ID: GateCondPort, Label: "Condition", Type: "boolean", Direction: DirectionInput},
		{ID: GateValuePort, Label: "Active", Type: "boolean", Direction: DirectionOutput},
	})
	r.Register(TypeConverter, []PortSpec{
		{ID: "a", Label: "A", Type: "boolean", Direction: DirectionInput},
		{ID: "b", Label: "B", Type: "boolean", Direction: DirectionInput},
		{ID: ProxyOutPort, Label: "Out", Type: "boolean", Direction: DirectionOutput},
	})
	return r
}

// Node type keys for decoration nodes.
const (
	TypeGate        = "corral/gate"
	TypeProxy       = "corral/proxy"
	TypePlaceholder = "corral/frame"
	TypeConverter   = "corral/and"
)

// Register adds or replaces the port list for a node type.
func (r *StaticRegistry) Register(nodeType string, ports []PortSpec) {
	r.ports[nodeType] = ports
}

// Ports implements [TypeRegistry].
func (r *StaticRegistry) Ports(nodeType string) []PortSpec {
	return r.ports[nodeType]
}

// Port implements [TypeRegistry].
func (r *StaticRegistry) Port(nodeType, portID string) (PortSpec, bool) {
	for _, p := range r.ports[nodeType] {
		if p.ID == portID {
			return p, true
		}
	}
	return PortSpec{}, false
}

// Inputs returns only the input ports of a node type.
func (r *StaticRegistry) Inputs(nodeType string) []PortSpec {
	var out []PortSpec
	for _, p := range r.ports[nodeType] {
		if p.Direction == DirectionInput {
			out = append(out, p)
		}
	}
	return out
}

// Outputs returns only the output ports of a node type.
func (r *StaticRegistry) Outputs(nodeType string) []PortSpec {
	var out []PortSpec
	for _, p := range r.ports[nodeType] {
		if p.Direction == DirectionOutput {
			out = append(out, p)
		}
	}
	return out
}
