package boundary

import (
	"fmt"
	"testing"

	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

const typeNum = "test/num"

func seqIDs(prefix string) func() nodegraph.NodeID {
	i := 0
	return func() nodegraph.NodeID {
		i++
		return nodegraph.NodeID(fmt.Sprintf("%s%d", prefix, i))
	}
}

func testRegistry() *nodegraph.StaticRegistry {
	r := nodegraph.NewStaticRegistry()
	r.Register(typeNum, []nodegraph.PortSpec{
		{ID: "in", Label: "In", Type: "number", Direction: nodegraph.DirectionInput},
		{ID: "out", Label: "Out", Type: "number", Direction: nodegraph.DirectionOutput},
	})
	return r
}

func addNum(t *testing.T, e *nodegraph.Memory, id nodegraph.NodeID, x, y float64) {
	t.Helper()
	if err := e.AddNode(nodegraph.Node{ID: id, Type: typeNum, Position: nodegraph.Point{X: x, Y: y}}); err != nil {
		t.Fatalf("AddNode(%s) = %v", id, err)
	}
}

func wire(t *testing.T, e *nodegraph.Memory, from nodegraph.NodeID, fromPort string, to nodegraph.NodeID, toPort string) {
	t.Helper()
	c := nodegraph.Connection{From: from, FromPort: fromPort, To: to, ToPort: toPort}
	if err := e.AddConnection(c); err != nil {
		t.Fatalf("AddConnection(%v) = %v", c, err)
	}
}

// nestedFixture builds group A with child group B containing n3, plus the
// root-level node n4. This is the two-boundary scenario every crossing test
// starts from.
func nestedFixture(t *testing.T) (*nodegraph.Memory, *group.Store, *Normalizer) {
	t.Helper()
	engine := nodegraph.NewMemory()
	addNum(t, engine, "n3", 0, 0)
	addNum(t, engine, "n4", 400, 0)

	store := group.NewStore(nil)
	store.SetGroups([]*group.Group{
		{ID: "A", Name: "A", NodeIDs: map[nodegraph.NodeID]bool{}, RuntimeActive: true},
		{ID: "B", ParentID: "A", Name: "B", NodeIDs: map[nodegraph.NodeID]bool{"n3": true}, RuntimeActive: true},
	})

	norm := New(engine, store, testRegistry(), seqIDs("px"))
	return engine, store, norm
}

func proxiesByGroup(snap *nodegraph.Snapshot) map[string][]nodegraph.Node {
	out := make(map[string][]nodegraph.Node)
	for _, n := range snap.Nodes() {
		if n.Kind == nodegraph.KindProxy && n.Proxy != nil {
			out[n.Proxy.Group] = append(out[n.Proxy.Group], n)
		}
	}
	return out
}

func TestRunRewritesNestedOutputCrossing(t *testing.T) {
	engine, _, norm := nestedFixture(t)
	wire(t, engine, "n3", "out", "n4", "in")

	r := norm.Run()
	if r.ConnectionsRewritten != 1 {
		t.Errorf("ConnectionsRewritten = %d, want 1", r.ConnectionsRewritten)
	}
	if r.ProxiesCreated != 2 {
		t.Errorf("ProxiesCreated = %d, want 2", r.ProxiesCreated)
	}
	if r.GatesCreated != 2 {
		t.Errorf("GatesCreated = %d, want 2", r.GatesCreated)
	}

	snap := nodegraph.NewSnapshot(engine.Export())
	proxies := proxiesByGroup(snap)
	if len(proxies["A"]) != 1 || len(proxies["B"]) != 1 {
		t.Fatalf("proxies per group = A:%d B:%d, want 1 each", len(proxies["A"]), len(proxies["B"]))
	}
	pb, pa := proxies["B"][0], proxies["A"][0]
	if pb.Proxy.Direction != nodegraph.DirectionOutput || pa.Proxy.Direction != nodegraph.DirectionOutput {
		t.Errorf("proxy directions = %v/%v, want output/output", pb.Proxy.Direction, pa.Proxy.Direction)
	}
	if pb.Proxy.PortType != "number" {
		t.Errorf("inner proxy port type = %q, want %q", pb.Proxy.PortType, "number")
	}

	// The wire became a three-segment chain n3 -> pB -> pA -> n4.
	wantChain := []nodegraph.Connection{
		{From: "n3", FromPort: "out", To: pb.ID, ToPort: nodegraph.ProxyInPort},
		{From: pb.ID, FromPort: nodegraph.ProxyOutPort, To: pa.ID, ToPort: nodegraph.ProxyInPort},
		{From: pa.ID, FromPort: nodegraph.ProxyOutPort, To: "n4", ToPort: "in"},
	}
	for _, want := range wantChain {
		found := false
		for _, c := range snap.Connections() {
			if c == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing chain segment %v", want)
		}
	}

	if m := norm.Run().Mutations(); m != 0 {
		t.Errorf("second Run().Mutations() = %d, want 0", m)
	}
}

func TestRunRewritesInputCrossing(t *testing.T) {
	engine, _, norm := nestedFixture(t)
	wire(t, engine, "n4", "out", "n3", "in")

	r := norm.Run()
	if r.ProxiesCreated != 2 {
		t.Fatalf("ProxiesCreated = %d, want 2", r.ProxiesCreated)
	}

	snap := nodegraph.NewSnapshot(engine.Export())
	proxies := proxiesByGroup(snap)
	pa, pb := proxies["A"][0], proxies["B"][0]
	if pa.Proxy.Direction != nodegraph.DirectionInput || pb.Proxy.Direction != nodegraph.DirectionInput {
		t.Errorf("proxy directions = %v/%v, want input/input", pa.Proxy.Direction, pb.Proxy.Direction)
	}

	// Entry order is outermost first: n4 -> pA -> pB -> n3.
	if got := snap.OutgoingFrom("n4", "out"); len(got) != 1 || got[0].To != pa.ID {
		t.Errorf("n4 feeds %v, want %s", got, pa.ID)
	}
	if got := snap.IncomingTo("n3", "in"); len(got) != 1 || got[0].From != pb.ID {
		t.Errorf("n3 fed by %v, want %s", got, pb.ID)
	}

	if m := norm.Run().Mutations(); m != 0 {
		t.Errorf("second Run().Mutations() = %d, want 0", m)
	}
}

func TestRunEstablishesPathInvariant(t *testing.T) {
	engine := nodegraph.NewMemory()
	for _, id := range []nodegraph.NodeID{"n1", "n3", "n4", "n5"} {
		addNum(t, engine, id, 0, 0)
	}
	store := group.NewStore(nil)
	store.SetGroups([]*group.Group{
		{ID: "A", Name: "A", NodeIDs: map[nodegraph.NodeID]bool{"n1": true}, RuntimeActive: true},
		{ID: "B", ParentID: "A", Name: "B", NodeIDs: map[nodegraph.NodeID]bool{"n3": true}, RuntimeActive: true},
		{ID: "C", Name: "C", NodeIDs: map[nodegraph.NodeID]bool{"n5": true}, RuntimeActive: true},
	})
	norm := New(engine, store, testRegistry(), seqIDs("px"))

	wire(t, engine, "n1", "out", "n3", "in") // A into A/B
	wire(t, engine, "n3", "out", "n4", "in") // A/B to root
	wire(t, engine, "n4", "out", "n5", "in") // root into C
	wire(t, engine, "n1", "out", "n5", "in") // A into C

	norm.Run()

	snap := nodegraph.NewSnapshot(engine.Export())
	for _, c := range snap.Connections() {
		src, _ := snap.Node(c.From)
		dst, _ := snap.Node(c.To)
		srcPath := ContextPath(store, src, c.FromPort)
		dstPath := ContextPath(store, dst, c.ToPort)
		if !pathsEqual(srcPath, dstPath) {
			t.Errorf("connection %v spans contexts %v and %v", c, srcPath, dstPath)
		}
	}
	if m := norm.Run().Mutations(); m != 0 {
		t.Errorf("second Run().Mutations() = %d, want 0", m)
	}
}

func TestGateFeedbackRejected(t *testing.T) {
	engine := nodegraph.NewMemory()
	addNum(t, engine, "n1", 0, 0)
	addNum(t, engine, "e1", 300, 0)
	store := group.NewStore(nil)
	store.SetGroups([]*group.Group{
		{ID: "G", Name: "G", NodeIDs: map[nodegraph.NodeID]bool{"n1": true}, RuntimeActive: true},
	})
	norm := New(engine, store, testRegistry(), seqIDs("px"))
	norm.Run()

	snap := nodegraph.NewSnapshot(engine.Export())
	gate, ok := findGate(snap, "G")
	if !ok {
		t.Fatal("gate for G not created")
	}
	wire(t, engine, "n1", "out", gate.ID, nodegraph.GateCondPort)
	wire(t, engine, "e1", "out", gate.ID, nodegraph.GateCondPort)

	r := norm.Run()
	if len(r.Violations) != 1 {
		t.Fatalf("Violations = %d, want 1", len(r.Violations))
	}
	if code := errors.GetCode(r.Violations[0]); code != errors.ErrCodeGateFeedback {
		t.Errorf("violation code = %q, want %q", code, errors.ErrCodeGateFeedback)
	}
	if !errors.IsPolicyViolation(r.Violations[0]) {
		t.Error("IsPolicyViolation() = false, want true")
	}

	snap = nodegraph.NewSnapshot(engine.Export())
	left := snap.IncomingTo(gate.ID, nodegraph.GateCondPort)
	if len(left) != 1 || left[0].From != "e1" {
		t.Errorf("gate condition wires = %v, want single wire from e1", left)
	}
}

func TestFanOutSplitsOntoSiblingProxies(t *testing.T) {
	engine, _, norm := nestedFixture(t)
	addNum(t, engine, "x", 400, 100)
	addNum(t, engine, "y", 400, 200)
	wire(t, engine, "n3", "out", "x", "in")
	wire(t, engine, "n3", "out", "y", "in")

	norm.Run()

	snap := nodegraph.NewSnapshot(engine.Export())
	for _, n := range snap.Nodes() {
		if n.Kind != nodegraph.KindProxy || n.Proxy.Direction != nodegraph.DirectionOutput {
			continue
		}
		if ext := snap.OutgoingFrom(n.ID, nodegraph.ProxyOutPort); len(ext) > 1 {
			t.Errorf("proxy %s has %d external wires, want at most 1", n.ID, len(ext))
		}
	}
	for _, sink := range []nodegraph.NodeID{"x", "y"} {
		if in := snap.IncomingTo(sink, "in"); len(in) != 1 {
			t.Errorf("%s has %d incoming wires, want 1", sink, len(in))
		}
	}

	if m := norm.Run().Mutations(); m != 0 {
		t.Errorf("second Run().Mutations() = %d, want 0", m)
	}
}

func TestCleanupCollectsOrphanedChain(t *testing.T) {
	engine, _, norm := nestedFixture(t)
	wire(t, engine, "n3", "out", "n4", "in")
	norm.Run()

	snap := nodegraph.NewSnapshot(engine.Export())
	ext := snap.IncomingTo("n4", "in")
	if len(ext) != 1 {
		t.Fatalf("incoming to n4 = %d, want 1", len(ext))
	}
	if err := engine.RemoveConnection(ext[0]); err != nil {
		t.Fatalf("RemoveConnection() = %v", err)
	}

	r := norm.Run()
	if r.ProxiesRemoved != 2 {
		t.Errorf("ProxiesRemoved = %d, want 2", r.ProxiesRemoved)
	}
	snap = nodegraph.NewSnapshot(engine.Export())
	if got := proxiesByGroup(snap); len(got) != 0 {
		t.Errorf("proxies after cleanup = %v, want none", got)
	}
}

func TestPinnedProxyLifecycle(t *testing.T) {
	engine, _, norm := nestedFixture(t)
	pinned := nodegraph.Node{
		ID:   "pin1",
		Type: nodegraph.TypeProxy,
		Kind: nodegraph.KindProxy,
		Proxy: &nodegraph.ProxySpec{
			Group: "B", Direction: nodegraph.DirectionOutput, PortType: "number", Pinned: true,
		},
	}
	if err := engine.AddNode(pinned); err != nil {
		t.Fatalf("AddNode(pinned) = %v", err)
	}
	wire(t, engine, "n3", "out", "pin1", nodegraph.ProxyInPort)

	// Half-connected but pinned: survives.
	norm.Run()
	if _, ok := engine.Node("pin1"); !ok {
		t.Fatal("pinned proxy removed while internally wired")
	}

	// No internal wire left: removed even though pinned.
	c := nodegraph.Connection{From: "n3", FromPort: "out", To: "pin1", ToPort: nodegraph.ProxyInPort}
	if err := engine.RemoveConnection(c); err != nil {
		t.Fatalf("RemoveConnection() = %v", err)
	}
	r := norm.Run()
	if _, ok := engine.Node("pin1"); ok {
		t.Error("pinned proxy kept with no internal wire")
	}
	if r.ProxiesRemoved != 1 {
		t.Errorf("ProxiesRemoved = %d, want 1", r.ProxiesRemoved)
	}
}

func TestProxyOfDeletedGroupRemoved(t *testing.T) {
	engine, _, norm := nestedFixture(t)
	ghost := nodegraph.Node{
		ID:   "g1",
		Type: nodegraph.TypeProxy,
		Kind: nodegraph.KindProxy,
		Proxy: &nodegraph.ProxySpec{
			Group: "ghost", Direction: nodegraph.DirectionInput, PortType: "number", Pinned: true,
		},
	}
	if err := engine.AddNode(ghost); err != nil {
		t.Fatalf("AddNode(ghost) = %v", err)
	}

	r := norm.Run()
	if _, ok := engine.Node("g1"); ok {
		t.Error("proxy of deleted group survived")
	}
	if r.ProxiesRemoved != 1 {
		t.Errorf("ProxiesRemoved = %d, want 1", r.ProxiesRemoved)
	}
}

func TestCleanupRepairsStaleProxyMetadata(t *testing.T) {
	engine, _, norm := nestedFixture(t)
	// Wired as an output proxy but stored as input with no port type.
	stale := nodegraph.Node{
		ID:   "s1",
		Type: nodegraph.TypeProxy,
		Kind: nodegraph.KindProxy,
		Proxy: &nodegraph.ProxySpec{
			Group: "B", Direction: nodegraph.DirectionInput,
		},
	}
	if err := engine.AddNode(stale); err != nil {
		t.Fatalf("AddNode(stale) = %v", err)
	}
	wire(t, engine, "n3", "out", "s1", nodegraph.ProxyInPort)
	wire(t, engine, "s1", nodegraph.ProxyOutPort, "n4", "in")

	var r Report
	norm.cleanup(&r)
	if r.DirectionsCorrected != 1 {
		t.Errorf("DirectionsCorrected = %d, want 1", r.DirectionsCorrected)
	}
	if r.TypesCorrected != 1 {
		t.Errorf("TypesCorrected = %d, want 1", r.TypesCorrected)
	}
	got, _ := engine.Node("s1")
	if got.Proxy.Direction != nodegraph.DirectionOutput {
		t.Errorf("direction = %v, want output", got.Proxy.Direction)
	}
	if got.Proxy.PortType != "number" {
		t.Errorf("port type = %q, want %q", got.Proxy.PortType, "number")
	}
}

func TestDecorationSyncFollowsGroupLifecycle(t *testing.T) {
	engine := nodegraph.NewMemory()
	addNum(t, engine, "n1", 0, 0)
	store := group.NewStore(nil)
	store.SetGroups([]*group.Group{
		{ID: "G", Name: "G", NodeIDs: map[nodegraph.NodeID]bool{"n1": true}, Minimized: true},
	})
	norm := New(engine, store, testRegistry(), seqIDs("px"))

	r := norm.Run()
	if r.GatesCreated != 1 || r.PlaceholdersCreated != 1 {
		t.Fatalf("created gates=%d placeholders=%d, want 1 each", r.GatesCreated, r.PlaceholdersCreated)
	}

	// Expanding the group retires its placeholder.
	if err := store.ToggleMinimized("G"); err != nil {
		t.Fatalf("ToggleMinimized() = %v", err)
	}
	r = norm.Run()
	if r.DecorationsRemoved != 1 {
		t.Errorf("DecorationsRemoved after expand = %d, want 1", r.DecorationsRemoved)
	}

	// Deleting the group retires its gate.
	store.SetGroups(nil)
	r = norm.Run()
	if r.DecorationsRemoved != 1 {
		t.Errorf("DecorationsRemoved after delete = %d, want 1", r.DecorationsRemoved)
	}
	snap := nodegraph.NewSnapshot(engine.Export())
	for _, n := range snap.Nodes() {
		if n.IsDecoration() {
			t.Errorf("decoration %s survived group deletion", n.ID)
		}
	}
}

func TestAlignPortNodesSnapsToFrameEdges(t *testing.T) {
	engine, _, norm := nestedFixture(t)
	wire(t, engine, "n3", "out", "n4", "in")
	norm.Run()

	frame := nodegraph.Rect{Left: -20, Top: -44, Width: 380, Height: 224}
	norm.AlignPortNodes(map[group.ID]nodegraph.Rect{"B": frame})

	snap := nodegraph.NewSnapshot(engine.Export())
	proxies := proxiesByGroup(snap)
	pb := proxies["B"][0]
	wantX := frame.Right() - nodegraph.DefaultNodeWidth/2
	if pb.Position.X != wantX || pb.Position.Y != frame.Top+12 {
		t.Errorf("output proxy at %v, want (%v, %v)", pb.Position, wantX, frame.Top+12)
	}

	gate, ok := findGate(snap, "B")
	if !ok {
		t.Fatal("gate for B not found")
	}
	wantGate := nodegraph.Point{X: frame.Left, Y: frame.Top - nodegraph.DefaultNodeHeight - 8}
	if gate.Position != wantGate {
		t.Errorf("gate at %v, want %v", gate.Position, wantGate)
	}
}

func TestMigrateLegacyActivation(t *testing.T) {
	engine := nodegraph.NewMemory()
	addNum(t, engine, "n1", 0, 0)
	addNum(t, engine, "c1", -300, 0)
	addNum(t, engine, "c2", -300, 100)
	legacy := nodegraph.Node{
		ID:       "L",
		Type:     TypeLegacyActivate,
		GroupTag: "G",
		Config:   nodegraph.Metadata{"enabled": false},
	}
	if err := engine.AddNode(legacy); err != nil {
		t.Fatalf("AddNode(legacy) = %v", err)
	}
	wire(t, engine, "c1", "out", "L", legacyCondPort)
	wire(t, engine, "c2", "out", "L", legacyCondPort)

	store := group.NewStore(nil)
	store.SetGroups([]*group.Group{
		{ID: "G", Name: "G", NodeIDs: map[nodegraph.NodeID]bool{"n1": true}, RuntimeActive: true},
	})
	norm := New(engine, store, testRegistry(), seqIDs("px"))

	norm.MigrateLegacyActivation()

	if _, ok := engine.Node("L"); ok {
		t.Error("legacy node survived migration")
	}
	g, _ := store.Get("G")
	if !g.Disabled {
		t.Error("group not marked disabled by enabled=false config")
	}

	snap := nodegraph.NewSnapshot(engine.Export())
	gate, ok := findGate(snap, "G")
	if !ok {
		t.Fatal("gate for G not created")
	}
	cond := snap.IncomingTo(gate.ID, nodegraph.GateCondPort)
	if len(cond) != 1 {
		t.Fatalf("gate condition wires = %d, want 1", len(cond))
	}
	and, ok := snap.Node(cond[0].From)
	if !ok || and.Kind != nodegraph.KindConverter {
		t.Fatalf("gate fed by %v, want converter", cond[0].From)
	}
	a := snap.IncomingTo(and.ID, "a")
	b := snap.IncomingTo(and.ID, "b")
	if len(a) != 1 || a[0].From != "c1" {
		t.Errorf("converter a fed by %v, want c1", a)
	}
	if len(b) != 1 || b[0].From != "c2" {
		t.Errorf("converter b fed by %v, want c2", b)
	}

	// The migrated wiring is already normal form.
	if m := norm.Run().Mutations(); m != 0 {
		t.Errorf("Run() after migration mutated %d times, want 0", m)
	}
}
