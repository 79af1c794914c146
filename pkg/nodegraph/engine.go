package nodegraph

import "errors"

var (
	// ErrInvalidNodeID is returned by [Engine.AddNode] when the node ID is
	// empty. All nodes must have non-empty identifiers.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNodeID is returned by [Engine.AddNode] when a node with
	// the same ID already exists in the graph.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownNode is returned when an operation references a node that
	// does not exist in the graph.
	ErrUnknownNode = errors.New("unknown node")

	// ErrUnknownConnection is returned by [Engine.RemoveConnection] when
	// no matching wire exists.
	ErrUnknownConnection = errors.New("unknown connection")
)

// Engine is the authoritative node/connection state owned by the node-graph
// execution engine. The grouping subsystem mutates the graph exclusively
// through this interface.
type Engine interface {
	// AddNode inserts a node. The node's Config map is initialized to an
	// empty map if nil.
	AddNode(n Node) error
	// RemoveNode deletes a node and every connection touching it.
	RemoveNode(id NodeID) error
	// Node returns the node with the given id.
	Node(id NodeID) (Node, bool)
	// Export returns a copy of the full graph. Node order is stable
	// (sorted by id) so exports are deterministic.
	Export() Graph
	// AddConnection wires two existing node ports.
	AddConnection(c Connection) error
	// RemoveConnection deletes a wire.
	RemoveConnection(c Connection) error
	// UpdateNodeConfig sets one configuration key on a node.
	UpdateNodeConfig(id NodeID, key string, value any) error
	// UpdateNodeInput pins a constant input value on a node port.
	UpdateNodeInput(id NodeID, port string, value any) error
	// UpdateNodePosition moves a node in graph coordinates.
	UpdateNodePosition(id NodeID, p Point) error
	// UpdateProxySpec rewrites a proxy node's boundary metadata. Only the
	// boundary normalizer calls this; it corrects stored direction and
	// port-type fields when the live wiring disagrees.
	UpdateProxySpec(id NodeID, spec ProxySpec) error
}

// View is the rendering/view adapter. It owns node pixel metrics, pointer
// hit-testing and per-node visual state.
type View interface {
	// NodeBounds returns the node's bounding box in graph coordinates.
	NodeBounds(id NodeID) (Rect, bool)
	// NodePosition returns the node's top-left position.
	NodePosition(id NodeID) (Point, bool)
	// SetNodePosition moves a node. Unlike [Engine.UpdateNodePosition]
	// this also refreshes the view's cached metrics immediately.
	SetNodePosition(id NodeID, p Point)
	// ViewportTransform returns the current pan/zoom transform.
	ViewportTransform() Transform
	// NodesInRect returns ids of nodes whose bounds intersect r.
	NodesInRect(r Rect) []NodeID
	// NodeVisualState returns the node's current visual state.
	NodeVisualState(id NodeID) VisualState
	// SetNodeVisualState applies a visual state to a node.
	SetNodeVisualState(id NodeID, s VisualState)
	// ConnectionVisualState returns a wire's current visual state.
	ConnectionVisualState(c Connection) VisualState
	// SetConnectionVisualState applies a visual state to a wire.
	SetConnectionVisualState(c Connection, s VisualState)
}

// TypeRegistry resolves port metadata by node type, used for proxy label
// and type inference.
type TypeRegistry interface {
	// Ports returns every port of the node type, inputs first.
	Ports(nodeType string) []PortSpec
	// Port looks up one port by id.
	Port(nodeType, portID string) (PortSpec, bool)
}

// LoopProvider exposes the externally owned loops present in the graph.
type LoopProvider interface {
	Loops() []Loop
}

// LoopRetractor stops and retracts a deployed loop execution unit. Called
// by the gate cascade when a group covering the loop becomes disabled.
type LoopRetractor interface {
	Retract(loopID string) error
}
