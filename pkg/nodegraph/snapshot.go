package nodegraph

// Snapshot is an indexed, read-only view of one exported graph. Passes that
// walk connectivity (normalization, gate sync, geometry) take a snapshot up
// front instead of re-querying the engine mid-pass.
type Snapshot struct {
	nodes       map[NodeID]Node
	connections []Connection
	incoming    map[NodeID][]Connection
	outgoing    map[NodeID][]Connection
}

// NewSnapshot indexes an exported graph.
func NewSnapshot(g Graph) *Snapshot {
	s := &Snapshot{
		nodes:       make(map[NodeID]Node, len(g.Nodes)),
		connections: g.Connections,
		incoming:    make(map[NodeID][]Connection),
		outgoing:    make(map[NodeID][]Connection),
	}
	for _, n := range g.Nodes {
		s.nodes[n.ID] = n
	}
	for _, c := range g.Connections {
		s.outgoing[c.From] = append(s.outgoing[c.From], c)
		s.incoming[c.To] = append(s.incoming[c.To], c)
	}
	return s
}

// Node returns the node with the given id.
func (s *Snapshot) Node(id NodeID) (Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Has reports whether a node with the given id exists.
func (s *Snapshot) Has(id NodeID) bool {
	_, ok := s.nodes[id]
	return ok
}

// Nodes returns every node in the snapshot, in map order.
func (s *Snapshot) Nodes() []Node {
	out := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	return out
}

// Connections returns every wire in the snapshot.
func (s *Snapshot) Connections() []Connection { return s.connections }

// Incoming returns the wires ending at the given node.
func (s *Snapshot) Incoming(id NodeID) []Connection { return s.incoming[id] }

// Outgoing returns the wires starting at the given node.
func (s *Snapshot) Outgoing(id NodeID) []Connection { return s.outgoing[id] }

// IncomingTo returns the wires ending at one specific port.
func (s *Snapshot) IncomingTo(id NodeID, port string) []Connection {
	var out []Connection
	for _, c := range s.incoming[id] {
		if c.ToPort == port {
			out = append(out, c)
		}
	}
	return out
}

// OutgoingFrom returns the wires starting at one specific port.
func (s *Snapshot) OutgoingFrom(id NodeID, port string) []Connection {
	var out []Connection
	for _, c := range s.outgoing[id] {
		if c.FromPort == port {
			out = append(out, c)
		}
	}
	return out
}
