package nodegraph

import "testing"

func TestMemoryNodeLifecycle(t *testing.T) {
	m := NewMemory()

	if err := m.AddNode(Node{ID: "a", Type: "test/num"}); err != nil {
		t.Fatalf("AddNode(a) = %v", err)
	}
	if err := m.AddNode(Node{ID: "a", Type: "test/num"}); err != ErrDuplicateNodeID {
		t.Errorf("duplicate AddNode error = %v, want %v", err, ErrDuplicateNodeID)
	}
	if err := m.AddNode(Node{}); err != ErrInvalidNodeID {
		t.Errorf("empty-id AddNode error = %v, want %v", err, ErrInvalidNodeID)
	}

	n, ok := m.Node("a")
	if !ok {
		t.Fatal("Node(a) not found")
	}
	if n.Config == nil {
		t.Error("AddNode should initialize a nil Config")
	}

	if err := m.RemoveNode("a"); err != nil {
		t.Fatalf("RemoveNode(a) = %v", err)
	}
	if err := m.RemoveNode("a"); err != ErrUnknownNode {
		t.Errorf("second RemoveNode error = %v, want %v", err, ErrUnknownNode)
	}
}

func TestMemoryRemoveNodeDropsWires(t *testing.T) {
	m := NewMemory()
	for _, id := range []NodeID{"a", "b", "c"} {
		if err := m.AddNode(Node{ID: id, Type: "test/num"}); err != nil {
			t.Fatalf("AddNode(%s) = %v", id, err)
		}
	}
	m.AddConnection(Connection{From: "a", FromPort: "out", To: "b", ToPort: "in"})
	m.AddConnection(Connection{From: "b", FromPort: "out", To: "c", ToPort: "in"})

	if err := m.RemoveNode("b"); err != nil {
		t.Fatalf("RemoveNode(b) = %v", err)
	}
	if got := len(m.Export().Connections); got != 0 {
		t.Errorf("connections after removing b = %d, want 0", got)
	}
}

func TestMemoryConnections(t *testing.T) {
	m := NewMemory()
	m.AddNode(Node{ID: "a", Type: "test/num"})
	m.AddNode(Node{ID: "b", Type: "test/num"})

	c := Connection{From: "a", FromPort: "out", To: "b", ToPort: "in"}
	if err := m.AddConnection(c); err != nil {
		t.Fatalf("AddConnection = %v", err)
	}
	// Adding the identical wire twice keeps a single wire.
	if err := m.AddConnection(c); err != nil {
		t.Fatalf("duplicate AddConnection = %v", err)
	}
	if got := len(m.Export().Connections); got != 1 {
		t.Errorf("connections = %d, want 1", got)
	}

	if err := m.AddConnection(Connection{From: "a", FromPort: "out", To: "ghost", ToPort: "in"}); err != ErrUnknownNode {
		t.Errorf("AddConnection to missing node error = %v, want %v", err, ErrUnknownNode)
	}

	if err := m.RemoveConnection(c); err != nil {
		t.Fatalf("RemoveConnection = %v", err)
	}
	if err := m.RemoveConnection(c); err != ErrUnknownConnection {
		t.Errorf("second RemoveConnection error = %v, want %v", err, ErrUnknownConnection)
	}
}

func TestMemoryExportIsDetached(t *testing.T) {
	m := NewMemory()
	m.AddNode(Node{ID: "b", Type: "test/num"})
	m.AddNode(Node{ID: "a", Type: "test/num"})

	g := m.Export()
	if len(g.Nodes) != 2 || g.Nodes[0].ID != "a" || g.Nodes[1].ID != "b" {
		t.Fatalf("Export nodes = %v, want sorted [a b]", g.Nodes)
	}

	// Mutating the export must not touch the engine.
	g.Nodes[0].Type = "changed"
	if n, _ := m.Node("a"); n.Type != "test/num" {
		t.Errorf("engine node type = %q after export mutation, want test/num", n.Type)
	}
}

func TestSnapshotIndexesConnections(t *testing.T) {
	m := NewMemory()
	for _, id := range []NodeID{"a", "b", "c"} {
		m.AddNode(Node{ID: id, Type: "test/num"})
	}
	m.AddConnection(Connection{From: "a", FromPort: "out", To: "b", ToPort: "in"})
	m.AddConnection(Connection{From: "a", FromPort: "out", To: "c", ToPort: "in"})

	snap := NewSnapshot(m.Export())

	if got := len(snap.Outgoing("a")); got != 2 {
		t.Errorf("Outgoing(a) = %d wires, want 2", got)
	}
	if got := len(snap.Incoming("b")); got != 1 {
		t.Errorf("Incoming(b) = %d wires, want 1", got)
	}
	if got := len(snap.OutgoingFrom("a", "out")); got != 2 {
		t.Errorf("OutgoingFrom(a, out) = %d wires, want 2", got)
	}
	if got := len(snap.IncomingTo("b", "other")); got != 0 {
		t.Errorf("IncomingTo(b, other) = %d wires, want 0", got)
	}
	if !snap.Has("c") || snap.Has("ghost") {
		t.Error("Has() misreports membership")
	}
}

func TestMemoryViewDefaults(t *testing.T) {
	m := NewMemory()
	m.AddNode(Node{ID: "a", Type: "test/num", Position: Point{X: 10, Y: 20}})
	v := NewMemoryView(m)

	bounds, ok := v.NodeBounds("a")
	if !ok {
		t.Fatal("NodeBounds(a) not found")
	}
	if bounds.Left != 10 || bounds.Top != 20 {
		t.Errorf("bounds origin = (%v,%v), want (10,20)", bounds.Left, bounds.Top)
	}
	if bounds.Width != DefaultNodeWidth || bounds.Height != DefaultNodeHeight {
		t.Errorf("bounds size = %vx%v, want defaults", bounds.Width, bounds.Height)
	}

	v.SetNodePosition("a", Point{X: 50, Y: 60})
	if p, _ := v.NodePosition("a"); p.X != 50 || p.Y != 60 {
		t.Errorf("NodePosition after move = %+v, want (50,60)", p)
	}

	if got := v.NodeVisualState("a"); got != VisualNormal {
		t.Errorf("default visual state = %q, want %q", got, VisualNormal)
	}
	v.SetNodeVisualState("a", VisualSelected)
	if got := v.NodeVisualState("a"); got != VisualSelected {
		t.Errorf("visual state = %q, want %q", got, VisualSelected)
	}
}

func TestMemoryViewNodesInRect(t *testing.T) {
	m := NewMemory()
	m.AddNode(Node{ID: "a", Type: "test/num", Position: Point{X: 0, Y: 0}})
	m.AddNode(Node{ID: "b", Type: "test/num", Position: Point{X: 1000, Y: 1000}})
	v := NewMemoryView(m)

	hits := v.NodesInRect(Rect{Left: -10, Top: -10, Width: 200, Height: 200})
	if len(hits) != 1 || hits[0] != "a" {
		t.Errorf("NodesInRect = %v, want [a]", hits)
	}
}

func TestRectGeometry(t *testing.T) {
	r := Rect{Left: 0, Top: 0, Width: 100, Height: 50}

	if !r.Intersects(Rect{Left: 50, Top: 25, Width: 100, Height: 50}) {
		t.Error("overlapping rects reported disjoint")
	}
	if r.Intersects(Rect{Left: 200, Top: 0, Width: 10, Height: 10}) {
		t.Error("disjoint rects reported overlapping")
	}

	u := r.Union(Rect{Left: 150, Top: 100, Width: 10, Height: 10})
	if u.Left != 0 || u.Top != 0 || u.Right() != 160 || u.Bottom() != 110 {
		t.Errorf("Union = %+v, want spanning both rects", u)
	}

	in := r.Inflate(5, 10, 5, 10)
	if in.Left != -5 || in.Top != -10 || in.Width != 110 || in.Height != 70 {
		t.Errorf("Inflate = %+v", in)
	}
}

func TestStaticRegistry(t *testing.T) {
	r := NewStaticRegistry()
	r.Register("test/num", []PortSpec{
		{ID: "in", Direction: DirectionInput, Type: "number"},
		{ID: "out", Direction: DirectionOutput, Type: "number"},
	})

	if got := len(r.Inputs("test/num")); got != 1 {
		t.Errorf("Inputs = %d, want 1", got)
	}
	if got := len(r.Outputs("test/num")); got != 1 {
		t.Errorf("Outputs = %d, want 1", got)
	}
	if _, ok := r.Port("test/num", "missing"); ok {
		t.Error("Port returned ok for a missing port")
	}
	if ports := r.Ports("unknown/type"); ports != nil {
		t.Errorf("Ports(unknown) = %v, want nil", ports)
	}
}
