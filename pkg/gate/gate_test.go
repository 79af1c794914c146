package gate

import (
	"fmt"
	"testing"

	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

type fakeLoops struct {
	loops []nodegraph.Loop
}

func (f fakeLoops) Loops() []nodegraph.Loop { return f.loops }

type fakeRetractor struct {
	retracted []string
	fail      map[string]bool
}

func (f *fakeRetractor) Retract(loopID string) error {
	if f.fail[loopID] {
		return fmt.Errorf("deploy agent unreachable")
	}
	f.retracted = append(f.retracted, loopID)
	return nil
}

// fixture: group a {n1} with child b {n2}; gates for both; x outside.
func fixture(t *testing.T) (*nodegraph.Memory, *nodegraph.MemoryView, *group.Store) {
	t.Helper()
	engine := nodegraph.NewMemory()
	for _, n := range []nodegraph.Node{
		{ID: "n1", Type: "test/num"},
		{ID: "n2", Type: "test/num"},
		{ID: "x", Type: "test/num"},
		{ID: "gate-a", Type: nodegraph.TypeGate, Kind: nodegraph.KindGate, GroupTag: "a"},
		{ID: "gate-b", Type: nodegraph.TypeGate, Kind: nodegraph.KindGate, GroupTag: "b"},
	} {
		if err := engine.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s) = %v", n.ID, err)
		}
	}
	view := nodegraph.NewMemoryView(engine)
	store := group.NewStore(nil)
	store.SetGroups([]*group.Group{
		{ID: "a", Name: "A", NodeIDs: map[nodegraph.NodeID]bool{"n1": true}, RuntimeActive: true},
		{ID: "b", ParentID: "a", Name: "B", NodeIDs: map[nodegraph.NodeID]bool{"n2": true}, RuntimeActive: true},
	})
	return engine, view, store
}

func TestApplySyncsGateOutputIntoStore(t *testing.T) {
	engine, view, store := fixture(t)
	c := New(engine, store, view, nil, nil)

	if err := engine.SetOutput("gate-a", nodegraph.GateValuePort, false); err != nil {
		t.Fatalf("SetOutput() = %v", err)
	}
	res, err := c.Apply()
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	if len(res.ChangedGroups) != 1 || res.ChangedGroups[0] != "a" {
		t.Errorf("ChangedGroups = %v, want [a]", res.ChangedGroups)
	}
	if g, _ := store.Get("a"); g.RuntimeActive {
		t.Error("a still runtime-active after gate output false")
	}
	// b inherits the disabled state without its own flag flipping.
	if g, _ := store.Get("b"); !g.RuntimeActive {
		t.Error("b runtime-active flag flipped, want inherited disable only")
	}
	if !store.EffectiveDisabled("b") {
		t.Error("EffectiveDisabled(b) = false, want true")
	}
}

func TestApplyDefaultsUnwiredGateToActive(t *testing.T) {
	engine, view, store := fixture(t)
	c := New(engine, store, view, nil, nil)

	if _, err := c.Apply(); err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	if store.EffectiveDisabled("a") || store.EffectiveDisabled("b") {
		t.Error("groups disabled by unwired gates, want active")
	}
}

func TestApplyProjectsDisabledVisualStates(t *testing.T) {
	engine, view, store := fixture(t)
	if err := engine.AddConnection(nodegraph.Connection{From: "n2", FromPort: "out", To: "x", ToPort: "in"}); err != nil {
		t.Fatalf("AddConnection() = %v", err)
	}
	c := New(engine, store, view, nil, nil)

	_ = engine.SetOutput("gate-a", nodegraph.GateValuePort, false)
	if _, err := c.Apply(); err != nil {
		t.Fatalf("Apply() = %v", err)
	}

	for _, id := range []nodegraph.NodeID{"n1", "n2", "gate-a", "gate-b"} {
		if got := view.NodeVisualState(id); got != nodegraph.VisualDisabled {
			t.Errorf("NodeVisualState(%s) = %v, want disabled", id, got)
		}
	}
	if got := view.NodeVisualState("x"); got != nodegraph.VisualNormal {
		t.Errorf("NodeVisualState(x) = %v, want normal", got)
	}
	wire := nodegraph.Connection{From: "n2", FromPort: "out", To: "x", ToPort: "in"}
	if got := view.ConnectionVisualState(wire); got != nodegraph.VisualDisabled {
		t.Errorf("ConnectionVisualState = %v, want disabled", got)
	}

	// Re-enabling clears the projection.
	_ = engine.SetOutput("gate-a", nodegraph.GateValuePort, true)
	if _, err := c.Apply(); err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	for _, id := range []nodegraph.NodeID{"n1", "n2", "gate-a", "gate-b"} {
		if got := view.NodeVisualState(id); got != nodegraph.VisualNormal {
			t.Errorf("NodeVisualState(%s) after re-enable = %v, want normal", id, got)
		}
	}
	if got := view.ConnectionVisualState(wire); got != nodegraph.VisualNormal {
		t.Errorf("ConnectionVisualState after re-enable = %v, want normal", got)
	}
}

func TestApplyRetractsCoveredLoopsOncePerTransition(t *testing.T) {
	engine, view, store := fixture(t)
	loops := fakeLoops{loops: []nodegraph.Loop{
		{ID: "loop1", NodeIDs: []nodegraph.NodeID{"n2"}},
		{ID: "loop2", NodeIDs: []nodegraph.NodeID{"n2", "x"}},
	}}
	ret := &fakeRetractor{}
	c := New(engine, store, view, loops, ret)

	_ = engine.SetOutput("gate-a", nodegraph.GateValuePort, false)
	res, err := c.Apply()
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	// loop2 reaches outside the disabled set and stays deployed.
	if len(res.RetractedLoops) != 1 || res.RetractedLoops[0] != "loop1" {
		t.Fatalf("RetractedLoops = %v, want [loop1]", res.RetractedLoops)
	}

	// A second pass with unchanged state retracts nothing new.
	res, err = c.Apply()
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	if len(res.RetractedLoops) != 0 {
		t.Errorf("RetractedLoops on repeat = %v, want none", res.RetractedLoops)
	}

	// Re-enable then disable again: the loop retracts a second time.
	_ = engine.SetOutput("gate-a", nodegraph.GateValuePort, true)
	if _, err := c.Apply(); err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	_ = engine.SetOutput("gate-a", nodegraph.GateValuePort, false)
	if _, err := c.Apply(); err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	if got := len(ret.retracted); got != 2 {
		t.Errorf("total retractions = %d, want 2", got)
	}
}

func TestApplyReportsRetractionFailure(t *testing.T) {
	engine, view, store := fixture(t)
	loops := fakeLoops{loops: []nodegraph.Loop{
		{ID: "loop1", NodeIDs: []nodegraph.NodeID{"n1"}},
		{ID: "loop2", NodeIDs: []nodegraph.NodeID{"n2"}},
	}}
	ret := &fakeRetractor{fail: map[string]bool{"loop1": true}}
	c := New(engine, store, view, loops, ret)

	_ = engine.SetOutput("gate-a", nodegraph.GateValuePort, false)
	res, err := c.Apply()
	if err == nil {
		t.Fatal("Apply() = nil error, want retraction failure")
	}
	// The failing loop does not block the other one.
	if len(res.RetractedLoops) != 1 || res.RetractedLoops[0] != "loop2" {
		t.Errorf("RetractedLoops = %v, want [loop2]", res.RetractedLoops)
	}

	// The failed loop is retried on the next pass.
	ret.fail = nil
	res, err = c.Apply()
	if err != nil {
		t.Fatalf("Apply() retry = %v", err)
	}
	if len(res.RetractedLoops) != 1 || res.RetractedLoops[0] != "loop1" {
		t.Errorf("RetractedLoops on retry = %v, want [loop1]", res.RetractedLoops)
	}
}
