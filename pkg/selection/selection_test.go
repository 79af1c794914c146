package selection

import (
	"slices"
	"testing"

	"github.com/matzehuels/corral/pkg/frame"
	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
	"github.com/matzehuels/corral/pkg/schedule"
)

// fixture: nodes n1 at (0,0) and n2 at (200,0), both members of group g.
// Node boxes are 140x60, so the group frame spans x 0..340, y 0..60.
func fixture(t *testing.T) (*nodegraph.MemoryView, *Manager) {
	t.Helper()
	engine := nodegraph.NewMemory()
	for id, p := range map[nodegraph.NodeID]nodegraph.Point{
		"n1": {X: 0, Y: 0},
		"n2": {X: 200, Y: 0},
	} {
		if err := engine.AddNode(nodegraph.Node{ID: id, Type: "test/num", Position: p}); err != nil {
			t.Fatalf("AddNode(%s) = %v", id, err)
		}
	}
	view := nodegraph.NewMemoryView(engine)
	store := group.NewStore(nil)
	store.SetGroups([]*group.Group{
		{ID: "g", Name: "G", NodeIDs: map[nodegraph.NodeID]bool{"n1": true, "n2": true}, RuntimeActive: true},
	})
	snapshot := func() *nodegraph.Snapshot { return nodegraph.NewSnapshot(engine.Export()) }
	frames := frame.New(store, view, nil, snapshot, frame.Options{}, schedule.NewManualTicker())
	frames.Invalidate()
	frames.Flush()

	return view, New(view, store, frames, snapshot)
}

func wantSelected(t *testing.T, m *Manager, want ...nodegraph.NodeID) {
	t.Helper()
	got := m.Selected()
	if !slices.Equal(got, want) {
		t.Errorf("Selected() = %v, want %v", got, want)
	}
}

func TestClickSelectsNode(t *testing.T) {
	view, m := fixture(t)

	m.BeginPointer(nodegraph.Point{X: 10, Y: 10}, false)
	m.EndPointer(nodegraph.Point{X: 10, Y: 10})
	wantSelected(t, m, "n1")
	if got := view.NodeVisualState("n1"); got != nodegraph.VisualSelected {
		t.Errorf("NodeVisualState(n1) = %v, want selected", got)
	}

	// Clicking another node replaces the selection.
	m.BeginPointer(nodegraph.Point{X: 210, Y: 10}, false)
	m.EndPointer(nodegraph.Point{X: 210, Y: 10})
	wantSelected(t, m, "n2")
	if got := view.NodeVisualState("n1"); got != nodegraph.VisualNormal {
		t.Errorf("NodeVisualState(n1) after replace = %v, want normal", got)
	}
}

func TestAdditiveClickToggles(t *testing.T) {
	_, m := fixture(t)
	m.Replace("n1")

	m.BeginPointer(nodegraph.Point{X: 210, Y: 10}, true)
	m.EndPointer(nodegraph.Point{X: 210, Y: 10})
	wantSelected(t, m, "n1", "n2")

	m.BeginPointer(nodegraph.Point{X: 210, Y: 10}, true)
	m.EndPointer(nodegraph.Point{X: 210, Y: 10})
	wantSelected(t, m, "n1")
}

func TestClickOnSelectedNodeKeepsSelection(t *testing.T) {
	_, m := fixture(t)
	m.Replace("n1", "n2")

	// Pressing a member of the current selection must not collapse it,
	// otherwise multi-node drags could never start.
	m.BeginPointer(nodegraph.Point{X: 10, Y: 10}, false)
	m.EndPointer(nodegraph.Point{X: 10, Y: 10})
	wantSelected(t, m, "n1", "n2")
}

func TestMarqueeSelectsSweptNodes(t *testing.T) {
	_, m := fixture(t)

	m.BeginPointer(nodegraph.Point{X: 500, Y: 300}, false)
	if m.State() != StatePressed {
		t.Fatalf("State() = %v, want pressed", m.State())
	}

	// Below the drag threshold the gesture is still a potential click.
	m.UpdatePointer(nodegraph.Point{X: 502, Y: 301})
	if m.State() != StatePressed {
		t.Fatalf("State() after small move = %v, want pressed", m.State())
	}

	m.UpdatePointer(nodegraph.Point{X: -10, Y: -10})
	if m.State() != StateMarquee {
		t.Fatalf("State() after sweep = %v, want marquee", m.State())
	}
	if _, ok := m.Marquee(); !ok {
		t.Fatal("Marquee() not available during sweep")
	}
	wantSelected(t, m, "n1", "n2")

	m.EndPointer(nodegraph.Point{X: -10, Y: -10})
	if m.State() != StateIdle {
		t.Errorf("State() after end = %v, want idle", m.State())
	}
	wantSelected(t, m, "n1", "n2")
}

func TestAdditiveMarqueeKeepsExistingSelection(t *testing.T) {
	_, m := fixture(t)
	m.Replace("n2")

	m.BeginPointer(nodegraph.Point{X: -50, Y: 300}, true)
	m.UpdatePointer(nodegraph.Point{X: 150, Y: -10}) // sweeps only n1
	m.EndPointer(nodegraph.Point{X: 150, Y: -10})
	wantSelected(t, m, "n1", "n2")
}

func TestEmptyClickClearsSelection(t *testing.T) {
	_, m := fixture(t)
	m.Replace("n1")

	m.BeginPointer(nodegraph.Point{X: 500, Y: 300}, false)
	m.EndPointer(nodegraph.Point{X: 500, Y: 300})
	wantSelected(t, m)
}

func TestCancelRestoresSelection(t *testing.T) {
	_, m := fixture(t)
	m.Replace("n1")

	m.BeginPointer(nodegraph.Point{X: 500, Y: 300}, false)
	m.UpdatePointer(nodegraph.Point{X: 150, Y: -10})
	if !m.IsSelected("n2") {
		t.Fatal("marquee did not live-select n2")
	}
	m.CancelPointer()
	wantSelected(t, m, "n1")
	if m.State() != StateIdle {
		t.Errorf("State() after cancel = %v, want idle", m.State())
	}
}

func TestFrameClickSelectsGroupMembers(t *testing.T) {
	_, m := fixture(t)

	// (170, 30) lies inside the group frame but between the two node boxes.
	m.BeginPointer(nodegraph.Point{X: 170, Y: 30}, false)
	m.EndPointer(nodegraph.Point{X: 170, Y: 30})
	wantSelected(t, m, "n1", "n2")
}
