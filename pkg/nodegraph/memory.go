package nodegraph

import (
	"slices"
	"strings"
)

// Default node metrics used by [MemoryView] when the registry reports no
// explicit size. Real editors measure the DOM; the reference view uses a
// fixed box per node.
const (
	DefaultNodeWidth  = 140.0
	DefaultNodeHeight = 60.0
)

// Memory is the in-memory reference implementation of [Engine].
// It is not safe for concurrent use without external synchronization,
// matching the single-threaded cooperative model of the editor.
type Memory struct {
	nodes       map[NodeID]*Node
	connections []Connection
}

// NewMemory creates an empty in-memory engine.
func NewMemory() *Memory {
	return &Memory{nodes: make(map[NodeID]*Node)}
}

// AddNode implements [Engine].
func (m *Memory) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if _, exists := m.nodes[n.ID]; exists {
		return ErrDuplicateNodeID
	}
	if n.Config == nil {
		n.Config = Metadata{}
	}
	node := n
	m.nodes[node.ID] = &node
	return nil
}

// RemoveNode implements [Engine]. Connections touching the node are removed
// with it so no wire is ever left dangling.
func (m *Memory) RemoveNode(id NodeID) error {
	if _, ok := m.nodes[id]; !ok {
		return ErrUnknownNode
	}
	delete(m.nodes, id)
	kept := m.connections[:0]
	for _, c := range m.connections {
		if c.From != id && c.To != id {
			kept = append(kept, c)
		}
	}
	m.connections = kept
	return nil
}

// Node implements [Engine].
func (m *Memory) Node(id NodeID) (Node, bool) {
	n, ok := m.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Export implements [Engine]. Nodes are sorted by id for deterministic
// output; connections keep insertion order.
func (m *Memory) Export() Graph {
	nodes := make([]Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, *n)
	}
	slices.SortFunc(nodes, func(a, b Node) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return Graph{Nodes: nodes, Connections: slices.Clone(m.connections)}
}

// AddConnection implements [Engine]. Duplicate wires are rejected silently:
// adding an identical connection twice keeps a single wire.
func (m *Memory) AddConnection(c Connection) error {
	if _, ok := m.nodes[c.From]; !ok {
		return ErrUnknownNode
	}
	if _, ok := m.nodes[c.To]; !ok {
		return ErrUnknownNode
	}
	if slices.Contains(m.connections, c) {
		return nil
	}
	m.connections = append(m.connections, c)
	return nil
}

// RemoveConnection implements [Engine].
func (m *Memory) RemoveConnection(c Connection) error {
	idx := slices.Index(m.connections, c)
	if idx < 0 {
		return ErrUnknownConnection
	}
	m.connections = slices.Delete(m.connections, idx, idx+1)
	return nil
}

// UpdateNodeConfig implements [Engine].
func (m *Memory) UpdateNodeConfig(id NodeID, key string, value any) error {
	n, ok := m.nodes[id]
	if !ok {
		return ErrUnknownNode
	}
	if n.Config == nil {
		n.Config = Metadata{}
	}
	n.Config[key] = value
	return nil
}

// UpdateNodeInput implements [Engine]. Pinned inputs live in Config under an
// "input." prefix so they round-trip through document serialization.
func (m *Memory) UpdateNodeInput(id NodeID, port string, value any) error {
	return m.UpdateNodeConfig(id, "input."+port, value)
}

// UpdateNodePosition implements [Engine].
func (m *Memory) UpdateNodePosition(id NodeID, p Point) error {
	n, ok := m.nodes[id]
	if !ok {
		return ErrUnknownNode
	}
	n.Position = p
	return nil
}

// UpdateProxySpec implements [Engine].
func (m *Memory) UpdateProxySpec(id NodeID, spec ProxySpec) error {
	n, ok := m.nodes[id]
	if !ok {
		return ErrUnknownNode
	}
	if n.Kind != KindProxy {
		return ErrUnknownNode
	}
	s := spec
	n.Proxy = &s
	return nil
}

// SetOutput records an evaluated output value on a node, standing in for a
// real engine's evaluation tick. Used by the gate sync and by tests.
func (m *Memory) SetOutput(id NodeID, port string, value any) error {
	n, ok := m.nodes[id]
	if !ok {
		return ErrUnknownNode
	}
	if n.Outputs == nil {
		n.Outputs = make(map[string]any)
	}
	n.Outputs[port] = value
	return nil
}

// MemoryView is a [View] backed by a [Memory] engine. Every node gets a
// fixed-size bounding box at its engine position; visual state is held in
// plain maps.
type MemoryView struct {
	engine      *Memory
	transform   Transform
	nodeState   map[NodeID]VisualState
	wireState   map[Connection]VisualState
	width       float64
	height      float64
}

// NewMemoryView creates a view over the given engine with default node
// metrics and an identity viewport.
func NewMemoryView(engine *Memory) *MemoryView {
	return &MemoryView{
		engine:    engine,
		transform: Transform{Scale: 1},
		nodeState: make(map[NodeID]VisualState),
		wireState: make(map[Connection]VisualState),
		width:     DefaultNodeWidth,
		height:    DefaultNodeHeight,
	}
}

// NodeBounds implements [View].
func (v *MemoryView) NodeBounds(id NodeID) (Rect, bool) {
	n, ok := v.engine.Node(id)
	if !ok {
		return Rect{}, false
	}
	return Rect{Left: n.Position.X, Top: n.Position.Y, Width: v.width, Height: v.height}, true
}

// NodePosition implements [View].
func (v *MemoryView) NodePosition(id NodeID) (Point, bool) {
	n, ok := v.engine.Node(id)
	if !ok {
		return Point{}, false
	}
	return n.Position, true
}

// SetNodePosition implements [View].
func (v *MemoryView) SetNodePosition(id NodeID, p Point) {
	_ = v.engine.UpdateNodePosition(id, p)
}

// ViewportTransform implements [View].
func (v *MemoryView) ViewportTransform() Transform { return v.transform }

// SetViewportTransform updates the pan/zoom transform.
func (v *MemoryView) SetViewportTransform(t Transform) { v.transform = t }

// NodesInRect implements [View]. Results are sorted by id.
func (v *MemoryView) NodesInRect(r Rect) []NodeID {
	r = r.Normalized()
	var out []NodeID
	for _, n := range v.engine.Export().Nodes {
		b := Rect{Left: n.Position.X, Top: n.Position.Y, Width: v.width, Height: v.height}
		if r.Intersects(b) {
			out = append(out, n.ID)
		}
	}
	return out
}

// NodeVisualState implements [View].
func (v *MemoryView) NodeVisualState(id NodeID) VisualState {
	if s, ok := v.nodeState[id]; ok {
		return s
	}
	return VisualNormal
}

// SetNodeVisualState implements [View].
func (v *MemoryView) SetNodeVisualState(id NodeID, s VisualState) {
	if s == VisualNormal {
		delete(v.nodeState, id)
		return
	}
	v.nodeState[id] = s
}

// ConnectionVisualState implements [View].
func (v *MemoryView) ConnectionVisualState(c Connection) VisualState {
	if s, ok := v.wireState[c]; ok {
		return s
	}
	return VisualNormal
}

// SetConnectionVisualState implements [View].
func (v *MemoryView) SetConnectionVisualState(c Connection, s VisualState) {
	if s == VisualNormal {
		delete(v.wireState, c)
		return
	}
	v.wireState[c] = s
}
