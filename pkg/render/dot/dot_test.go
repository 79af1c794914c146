package dot

import (
	"strings"
	"testing"

	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

func testState(t *testing.T) (*nodegraph.Snapshot, *group.Store) {
	t.Helper()
	engine := nodegraph.NewMemory()
	nodes := []nodegraph.Node{
		{ID: "a", Type: "test/num"},
		{ID: "b", Type: "test/num"},
		{ID: "free", Type: "test/num"},
		{ID: "gate1", Type: nodegraph.TypeGate, Kind: nodegraph.KindGate, GroupTag: "g"},
		{ID: "px", Type: nodegraph.TypeProxy, Kind: nodegraph.KindProxy,
			Proxy: &nodegraph.ProxySpec{Group: "g", Direction: nodegraph.DirectionOutput}},
	}
	for _, n := range nodes {
		if err := engine.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s) = %v", n.ID, err)
		}
	}
	engine.AddConnection(nodegraph.Connection{From: "a", FromPort: "out", To: "px", ToPort: nodegraph.ProxyInPort})
	engine.AddConnection(nodegraph.Connection{From: "px", FromPort: nodegraph.ProxyOutPort, To: "free", ToPort: "in"})

	store := group.NewStore(nil)
	store.SetGroups([]*group.Group{
		{ID: "g", Name: "Outer", NodeIDs: map[nodegraph.NodeID]bool{"a": true, "b": true}, RuntimeActive: true},
		{ID: "h", ParentID: "g", Name: "Inner", NodeIDs: map[nodegraph.NodeID]bool{"b": true}, Disabled: true, RuntimeActive: true},
	})
	return nodegraph.NewSnapshot(engine.Export()), store
}

func TestToDOTNestsClustersAndStylesKinds(t *testing.T) {
	snap, store := testState(t)
	out := ToDOT(snap, store, Options{})

	for _, want := range []string{
		`subgraph "cluster_g"`,
		`subgraph "cluster_h"`,
		`label="Outer"`,
		`label="Inner"`,
		`"a" -> "px";`,
		`"px" -> "free";`,
		`shape=diamond`,
		`style="rounded,filled,dashed"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("ToDOT() missing %q\n%s", want, out)
		}
	}

	// The nested cluster opens inside the outer one.
	outer := strings.Index(out, `subgraph "cluster_g"`)
	inner := strings.Index(out, `subgraph "cluster_h"`)
	if inner < outer {
		t.Error("inner cluster emitted before its parent")
	}

	// Disabled nested group renders grey.
	innerBody := out[inner:]
	if !strings.Contains(innerBody[:strings.Index(innerBody, "}")], "color=grey") {
		t.Error("disabled group cluster is not greyed")
	}
}

func TestToDOTDetailedAddsPortLabels(t *testing.T) {
	snap, store := testState(t)
	out := ToDOT(snap, store, Options{Detailed: true})
	if !strings.Contains(out, `taillabel="out"`) || !strings.Contains(out, `headlabel="in"`) {
		t.Errorf("detailed edges missing port labels:\n%s", out)
	}
}

func TestToDOTPlacesUngroupedNodesAtTopLevel(t *testing.T) {
	snap, store := testState(t)
	out := ToDOT(snap, store, Options{})

	idx := strings.Index(out, `"free" [`)
	if idx < 0 {
		t.Fatalf("free node not emitted:\n%s", out)
	}
	lastCluster := strings.LastIndex(out[:idx], "subgraph")
	if lastCluster >= 0 {
		closing := strings.Index(out[lastCluster:idx], "}")
		if closing < 0 {
			t.Error("ungrouped node emitted inside a cluster")
		}
	}
}
