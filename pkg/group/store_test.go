package group

import (
	"fmt"
	"testing"

	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

// seqIDs returns an id generator producing g1, g2, g3, ...
func seqIDs() func() ID {
	n := 0
	return func() ID {
		n++
		return ID(fmt.Sprintf("g%d", n))
	}
}

// snapOf builds a snapshot containing regular nodes with the given ids.
func snapOf(ids ...string) *nodegraph.Snapshot {
	var g nodegraph.Graph
	for _, id := range ids {
		g.Nodes = append(g.Nodes, nodegraph.Node{ID: nodegraph.NodeID(id)})
	}
	return nodegraph.NewSnapshot(g)
}

func nodeSet(ids ...string) map[nodegraph.NodeID]bool {
	out := make(map[nodegraph.NodeID]bool, len(ids))
	for _, id := range ids {
		out[nodegraph.NodeID(id)] = true
	}
	return out
}

func TestCreateFromSelection(t *testing.T) {
	s := NewStore(seqIDs())
	snap := snapOf("n1", "n2", "n3")

	g, err := s.CreateFromSelection("Mixer", []nodegraph.NodeID{"n1", "n2"}, snap, nil)
	if err != nil {
		t.Fatalf("CreateFromSelection: %v", err)
	}
	if g.Name != "Mixer" {
		t.Errorf("Name = %q, want Mixer", g.Name)
	}
	if g.ParentID != "" {
		t.Errorf("ParentID = %q, want root", g.ParentID)
	}
	if !g.Contains("n1") || !g.Contains("n2") || g.Contains("n3") {
		t.Errorf("membership = %v, want {n1, n2}", g.Members())
	}
	if !g.RuntimeActive {
		t.Error("RuntimeActive = false, want true on creation")
	}
}

func TestCreateFromSelection_EmptyIsNoop(t *testing.T) {
	s := NewStore(seqIDs())
	snap := snapOf("n1")

	_, err := s.CreateFromSelection("x", nil, snap, nil)
	if !errors.Is(err, errors.ErrCodeInvalidSelection) {
		t.Fatalf("err = %v, want INVALID_SELECTION", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0 (no mutation)", s.Len())
	}
}

func TestCreateFromSelection_DropsDecorationsAndUnknown(t *testing.T) {
	s := NewStore(seqIDs())
	var graph nodegraph.Graph
	graph.Nodes = append(graph.Nodes,
		nodegraph.Node{ID: "n1"},
		nodegraph.Node{ID: "p1", Kind: nodegraph.KindProxy, Proxy: &nodegraph.ProxySpec{Group: "x"}},
	)
	snap := nodegraph.NewSnapshot(graph)

	g, err := s.CreateFromSelection("x", []nodegraph.NodeID{"n1", "p1", "ghost"}, snap, nil)
	if err != nil {
		t.Fatalf("CreateFromSelection: %v", err)
	}
	if len(g.NodeIDs) != 1 || !g.Contains("n1") {
		t.Errorf("membership = %v, want {n1}", g.Members())
	}
}

func TestCreateFromSelection_NestsUnderPrimaryGroup(t *testing.T) {
	s := NewStore(seqIDs())
	snap := snapOf("n1", "n2", "n3")

	parent, err := s.CreateFromSelection("A", []nodegraph.NodeID{"n1", "n2", "n3"}, snap, nil)
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}

	child, err := s.CreateFromSelection("B", []nodegraph.NodeID{"n3"}, snap, nil)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if child.ParentID != parent.ID {
		t.Errorf("child.ParentID = %q, want %q", child.ParentID, parent.ID)
	}
}

func TestCreateFromSelection_CrossGroupKeepsMajority(t *testing.T) {
	s := NewStore(seqIDs())
	snap := snapOf("n1", "n2", "n3", "n4", "n5")

	if _, err := s.CreateFromSelection("A", []nodegraph.NodeID{"n1", "n2"}, snap, nil); err != nil {
		t.Fatalf("create A: %v", err)
	}

	// n3 and n4 are ungrouped (majority context), n1 lives in A.
	g, err := s.CreateFromSelection("B", []nodegraph.NodeID{"n1", "n3", "n4"}, snap, nil)
	if !errors.Is(err, errors.ErrCodeCrossGroup) {
		t.Fatalf("err = %v, want CROSS_GROUP_COMPOSITION", err)
	}
	if g == nil {
		t.Fatal("group = nil, want majority group despite violation")
	}
	if g.Contains("n1") || !g.Contains("n3") || !g.Contains("n4") {
		t.Errorf("membership = %v, want {n3, n4}", g.Members())
	}
}

func TestCreateFromSelection_LoopPulledWholesale(t *testing.T) {
	s := NewStore(seqIDs())
	snap := snapOf("n1", "n2", "n3")
	loops := []nodegraph.Loop{{ID: "loop1", NodeIDs: []nodegraph.NodeID{"n2", "n3"}}}

	g, err := s.CreateFromSelection("x", []nodegraph.NodeID{"n1", "n2"}, snap, loops)
	if err != nil {
		t.Fatalf("CreateFromSelection: %v", err)
	}
	if !g.Contains("n3") {
		t.Errorf("membership = %v, want loop member n3 pulled in", g.Members())
	}
}

func TestCreateFromSelection_IneligibleLoopDropped(t *testing.T) {
	s := NewStore(seqIDs())
	snap := snapOf("n1", "n2", "n3")

	// n3 already lives in its own group, so the loop {n2, n3} spans
	// contexts and cannot be pulled in.
	if _, err := s.CreateFromSelection("A", []nodegraph.NodeID{"n3"}, snap, nil); err != nil {
		t.Fatalf("create A: %v", err)
	}
	loops := []nodegraph.Loop{{ID: "loop1", NodeIDs: []nodegraph.NodeID{"n2", "n3"}}}

	g, err := s.CreateFromSelection("B", []nodegraph.NodeID{"n1", "n2"}, snap, loops)
	if err != nil {
		t.Fatalf("CreateFromSelection: %v", err)
	}
	if g.Contains("n2") || g.Contains("n3") {
		t.Errorf("membership = %v, want loop members dropped", g.Members())
	}
	if !g.Contains("n1") {
		t.Errorf("membership = %v, want {n1}", g.Members())
	}
}

func TestToggleAndRename(t *testing.T) {
	s := NewStore(seqIDs())
	snap := snapOf("n1")
	g, _ := s.CreateFromSelection("A", []nodegraph.NodeID{"n1"}, snap, nil)

	if err := s.ToggleDisabled(g.ID); err != nil {
		t.Fatalf("ToggleDisabled: %v", err)
	}
	got, _ := s.Get(g.ID)
	if !got.Disabled {
		t.Error("Disabled = false after toggle, want true")
	}

	if err := s.ToggleMinimized(g.ID); err != nil {
		t.Fatalf("ToggleMinimized: %v", err)
	}
	got, _ = s.Get(g.ID)
	if !got.Minimized {
		t.Error("Minimized = false after toggle, want true")
	}

	if err := s.Rename(g.ID, "Synth"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	got, _ = s.Get(g.ID)
	if got.Name != "Synth" {
		t.Errorf("Name = %q, want Synth", got.Name)
	}

	if err := s.Rename(g.ID, "  "); !errors.Is(err, errors.ErrCodeInvalidName) {
		t.Errorf("blank rename err = %v, want INVALID_NAME", err)
	}
	got, _ = s.Get(g.ID)
	if got.Name != "Synth" {
		t.Errorf("Name = %q after blank rename, want Synth", got.Name)
	}

	if err := s.ToggleDisabled("ghost"); !errors.Is(err, errors.ErrCodeGroupNotFound) {
		t.Errorf("unknown toggle err = %v, want GROUP_NOT_FOUND", err)
	}
}

func TestDisassembleRemovesSubtree(t *testing.T) {
	s := NewStore(seqIDs())
	snap := snapOf("n1", "n2", "n3")
	a, _ := s.CreateFromSelection("A", []nodegraph.NodeID{"n1", "n2", "n3"}, snap, nil)
	b, _ := s.CreateFromSelection("B", []nodegraph.NodeID{"n2"}, snap, nil)
	c, _ := s.CreateFromSelection("C", []nodegraph.NodeID{"n2"}, snap, nil) // nested under B

	if c.ParentID != b.ID {
		t.Fatalf("C.ParentID = %q, want %q", c.ParentID, b.ID)
	}

	removed := s.Disassemble(a.ID)
	if len(removed) != 3 {
		t.Fatalf("Disassemble removed %d groups, want 3", len(removed))
	}
	if removed[0] != a.ID {
		t.Errorf("removed[0] = %q, want target %q first", removed[0], a.ID)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}

	if got := s.Disassemble("ghost"); got != nil {
		t.Errorf("Disassemble(ghost) = %v, want nil", got)
	}
}

func TestReconcileAfterNodeRemoval(t *testing.T) {
	s := NewStore(seqIDs())
	snap := snapOf("n1", "n2")
	a, _ := s.CreateFromSelection("A", []nodegraph.NodeID{"n1", "n2"}, snap, nil)
	b, _ := s.CreateFromSelection("B", []nodegraph.NodeID{"n2"}, snap, nil)

	// n2 disappears from the graph: B empties out and is deleted, A keeps n1.
	removed := s.ReconcileAfterNodeRemoval(snapOf("n1"))
	if len(removed) != 1 || removed[0] != b.ID {
		t.Fatalf("removed = %v, want [%s]", removed, b.ID)
	}
	got, ok := s.Get(a.ID)
	if !ok {
		t.Fatal("group A deleted, want kept")
	}
	if len(got.NodeIDs) != 1 || !got.Contains("n1") {
		t.Errorf("A membership = %v, want {n1}", got.Members())
	}
}

func TestReconcileDeletesEmptyAncestorChain(t *testing.T) {
	s := NewStore(seqIDs())
	snap := snapOf("n1")
	a, _ := s.CreateFromSelection("A", []nodegraph.NodeID{"n1"}, snap, nil)
	b, _ := s.CreateFromSelection("B", []nodegraph.NodeID{"n1"}, snap, nil)
	_ = a
	_ = b

	removed := s.ReconcileAfterNodeRemoval(snapOf())
	if len(removed) != 2 {
		t.Fatalf("removed %d groups, want 2", len(removed))
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestSetAndAppendGroups(t *testing.T) {
	s := NewStore(seqIDs())
	s.SetGroups([]*Group{
		{ID: "a", Name: "A", NodeIDs: nodeSet("n1"), RuntimeActive: true},
		{ID: "b", ParentID: "a", Name: "B", NodeIDs: nodeSet("n2"), RuntimeActive: true},
	})
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}

	added := s.AppendGroups([]*Group{
		{ID: "b", Name: "dup", RuntimeActive: true},
		{ID: "c", Name: "C", NodeIDs: nodeSet("n3"), RuntimeActive: true},
	})
	if len(added) != 1 || added[0] != "c" {
		t.Errorf("added = %v, want [c]", added)
	}
	got, _ := s.Get("b")
	if got.Name != "B" {
		t.Errorf("existing group overwritten on append: Name = %q", got.Name)
	}
}

func TestRemapIDs(t *testing.T) {
	groups := []*Group{
		{ID: "a", Name: "A", NodeIDs: nodeSet("n1"), RuntimeActive: true},
		{ID: "b", ParentID: "a", Name: "B", NodeIDs: nodeSet("n2"), RuntimeActive: true},
	}
	remapped := RemapIDs(groups, seqIDs(), map[nodegraph.NodeID]nodegraph.NodeID{"n1": "m1"})

	if remapped[0].ID == "a" || remapped[1].ID == "b" {
		t.Errorf("ids not remapped: %v, %v", remapped[0].ID, remapped[1].ID)
	}
	if remapped[1].ParentID != remapped[0].ID {
		t.Errorf("ParentID = %q, want %q", remapped[1].ParentID, remapped[0].ID)
	}
	if !remapped[0].Contains("m1") {
		t.Errorf("node map not applied: %v", remapped[0].Members())
	}
	if !remapped[1].Contains("n2") {
		t.Errorf("unmapped node dropped: %v", remapped[1].Members())
	}
	// Sources untouched.
	if groups[0].ID != "a" || !groups[0].Contains("n1") {
		t.Error("RemapIDs mutated its input")
	}
}

func TestSubscribeNotifiesOnMutation(t *testing.T) {
	s := NewStore(seqIDs())
	snap := snapOf("n1")

	calls := 0
	unsubscribe := s.Subscribe(func() { calls++ })

	g, _ := s.CreateFromSelection("A", []nodegraph.NodeID{"n1"}, snap, nil)
	_ = s.ToggleDisabled(g.ID)
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}

	v := s.Version()
	unsubscribe()
	_ = s.ToggleDisabled(g.ID)
	if calls != 2 {
		t.Errorf("calls after unsubscribe = %d, want 2", calls)
	}
	if s.Version() != v+1 {
		t.Errorf("Version() = %d, want %d", s.Version(), v+1)
	}
}
