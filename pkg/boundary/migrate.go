package boundary

import (
	"slices"
	"strings"

	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

// TypeLegacyActivate is the node type older documents used to switch a
// group on and off before gates existed. MigrateLegacyActivation folds
// these nodes into the gate model on load.
const TypeLegacyActivate = "corral/activate"

// legacyCondPort is the boolean input the old activate node listened on.
const legacyCondPort = "active"

// MigrateLegacyActivation converts legacy activate nodes into gate wiring:
//
//   - each condition wire feeding a legacy node moves onto the group's
//     gate; two or more conditions fold through a chain of AND converters
//     so the gate keeps a single condition input
//   - a legacy node whose "enabled" config is false marks the group
//     manually disabled
//   - the legacy node itself is removed
//
// The migration runs before normalization so the moved wires get proxied
// like any other cross-boundary connection. It is a no-op on documents
// without legacy nodes.
func (n *Normalizer) MigrateLegacyActivation() Report {
	var r Report
	snap := nodegraph.NewSnapshot(n.engine.Export())

	var legacy []nodegraph.Node
	for _, node := range snap.Nodes() {
		if node.Type == TypeLegacyActivate {
			legacy = append(legacy, node)
		}
	}
	if len(legacy) == 0 {
		return r
	}
	slices.SortFunc(legacy, func(a, b nodegraph.Node) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})

	// Gates must exist before wires can be moved onto them.
	n.syncDecorations(&r)
	snap = nodegraph.NewSnapshot(n.engine.Export())

	for _, node := range legacy {
		gid := group.ID(node.GroupTag)
		if _, ok := n.store.Get(gid); !ok {
			_ = n.engine.RemoveNode(node.ID)
			r.DecorationsRemoved++
			continue
		}
		n.migrateOne(snap, node, gid, &r)
		snap = nodegraph.NewSnapshot(n.engine.Export())
	}
	return r
}

func (n *Normalizer) migrateOne(snap *nodegraph.Snapshot, legacy nodegraph.Node, gid group.ID, r *Report) {
	gate, ok := findGate(snap, gid)
	if !ok {
		return
	}

	conditions := snap.IncomingTo(legacy.ID, legacyCondPort)
	// Deterministic fold order regardless of wire insertion history.
	slices.SortFunc(conditions, func(a, b nodegraph.Connection) int {
		if c := strings.Compare(string(a.From), string(b.From)); c != 0 {
			return c
		}
		return strings.Compare(a.FromPort, b.FromPort)
	})

	src, srcPort := foldConditions(n, legacy, conditions, r)
	if src != "" {
		_ = n.engine.AddConnection(nodegraph.Connection{
			From: src, FromPort: srcPort, To: gate.ID, ToPort: nodegraph.GateCondPort,
		})
		r.ConnectionsRewritten++
	}

	if enabled, ok := legacy.Config["enabled"].(bool); ok && !enabled {
		if g, ok := n.store.Get(gid); ok && !g.Disabled {
			_ = n.store.ToggleDisabled(gid)
		}
	}

	_ = n.engine.RemoveNode(legacy.ID)
	r.DecorationsRemoved++
}

// foldConditions reduces the condition sources to a single endpoint,
// chaining AND converters pairwise when there is more than one.
func foldConditions(n *Normalizer, legacy nodegraph.Node, conditions []nodegraph.Connection, r *Report) (nodegraph.NodeID, string) {
	switch len(conditions) {
	case 0:
		return "", ""
	case 1:
		return conditions[0].From, conditions[0].FromPort
	}

	cur, curPort := conditions[0].From, conditions[0].FromPort
	for i, next := range conditions[1:] {
		and := nodegraph.Node{
			ID:       n.newID(),
			Type:     nodegraph.TypeConverter,
			Kind:     nodegraph.KindConverter,
			GroupTag: legacy.GroupTag,
			Position: legacy.Position.Add(0, float64(i+1)*(nodegraph.DefaultNodeHeight+12)),
		}
		if err := n.engine.AddNode(and); err != nil {
			and.ID = newRandomID()
			_ = n.engine.AddNode(and)
		}
		_ = n.engine.AddConnection(nodegraph.Connection{
			From: cur, FromPort: curPort, To: and.ID, ToPort: "a",
		})
		_ = n.engine.AddConnection(nodegraph.Connection{
			From: next.From, FromPort: next.FromPort, To: and.ID, ToPort: "b",
		})
		r.ConnectionsRewritten += 2
		cur, curPort = and.ID, nodegraph.ProxyOutPort
	}
	return cur, curPort
}

func findGate(snap *nodegraph.Snapshot, gid group.ID) (nodegraph.Node, bool) {
	for _, node := range snap.Nodes() {
		if node.Kind == nodegraph.KindGate && node.GroupTag == string(gid) {
			return node, true
		}
	}
	return nodegraph.Node{}, false
}
