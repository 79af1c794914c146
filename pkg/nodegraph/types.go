package nodegraph

// NodeID uniquely identifies a node within a graph.
type NodeID string

// Metadata stores arbitrary key-value pairs attached to nodes.
// Metadata maps are never nil after a node passes through [Memory.AddNode].
type Metadata map[string]any

// NodeKind distinguishes ordinary graph nodes from the synthetic decoration
// nodes authored by the grouping engine.
type NodeKind int

const (
	// KindRegular is an ordinary graph node owned by the user.
	KindRegular NodeKind = iota
	// KindGate is the boolean gate decorating a group's top-left corner.
	// Its output drives the group's runtime-active state.
	KindGate
	// KindProxy is a boundary proxy keeping wires single-hop with respect
	// to group nesting. Proxy nodes carry a [ProxySpec].
	KindProxy
	// KindPlaceholder stands in for a minimized group's frame.
	KindPlaceholder
	// KindConverter is a synthetic boolean combinator inserted by the
	// legacy-activation migration to AND multiple conditions into a gate.
	KindConverter
)

// IsDecoration reports whether the kind is authored by the grouping engine
// rather than the user. Decoration nodes are excluded from group membership,
// bounding boxes and primary-group computation.
func (k NodeKind) IsDecoration() bool { return k != KindRegular }

// PortDirection tells which side of a node a port sits on.
type PortDirection int

const (
	// DirectionInput marks a port that receives values.
	DirectionInput PortDirection = iota
	// DirectionOutput marks a port that emits values.
	DirectionOutput
)

// String returns "input" or "output".
func (d PortDirection) String() string {
	if d == DirectionOutput {
		return "output"
	}
	return "input"
}

// Well-known port names on decoration nodes. A proxy is a pure pass-through
// with exactly one input and one output; a gate has one boolean condition
// input and one boolean output.
const (
	ProxyInPort   = "in"
	ProxyOutPort  = "out"
	GateCondPort  = "condition"
	GateValuePort = "active"
)

// ProxySpec describes a boundary proxy decoration node.
type ProxySpec struct {
	// Group is the id of the group whose boundary the proxy sits on.
	Group string
	// Direction records whether the proxy carries a wire into the group
	// (input) or out of it (output). The normalizer corrects this field
	// when the live wiring disagrees with it.
	Direction PortDirection
	// PortType mirrors the type of the internal port the proxy stands in
	// for. Re-inferred on every cleanup pass for non-pinned proxies.
	PortType string
	// Pinned proxies represent user-exposed ports and survive with only
	// one side wired. Unpinned ("auto") proxies are garbage-collected
	// when they stop representing a real crossing.
	Pinned bool
}

// Node is a vertex in the node graph. Regular nodes are owned by the user;
// decoration nodes (gate, proxy, placeholder, converter) are owned by the
// grouping engine, carry a GroupTag, and must never be authored directly.
type Node struct {
	ID       NodeID
	Type     string // node type key, resolved through the TypeRegistry
	Kind     NodeKind
	Position Point

	// GroupTag names the owning group for decoration nodes. Empty on
	// regular nodes.
	GroupTag string
	// Proxy is non-nil exactly when Kind == KindProxy.
	Proxy *ProxySpec

	Config  Metadata
	Outputs map[string]any // last evaluated output values, keyed by port
}

// IsDecoration reports whether the node is a grouping-engine decoration.
func (n Node) IsDecoration() bool { return n.Kind.IsDecoration() }

// Connection is a directed wire between two node ports.
type Connection struct {
	From     NodeID
	FromPort string
	To       NodeID
	ToPort   string
}

// Graph is a plain snapshot of engine state as returned by [Engine.Export].
type Graph struct {
	Nodes       []Node
	Connections []Connection
}

// PortSpec describes one port of a node type.
type PortSpec struct {
	ID        string
	Label     string
	Type      string
	Direction PortDirection
}

// Loop is an externally owned, atomic node/connection subset with its own
// frame. The grouping engine treats a loop as a rigid unit: it inflates a
// containing group's bounds and is displaced as a whole during collision
// avoidance.
type Loop struct {
	ID      string
	NodeIDs []NodeID
}

// VisualState is the render-level state of a node or connection.
type VisualState string

// Visual states applied by the selection and gate components.
const (
	VisualNormal   VisualState = "normal"
	VisualSelected VisualState = "selected"
	VisualDisabled VisualState = "disabled"
)
