package boundary

import (
	"slices"
	"strings"

	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

// syncDecorations keeps the per-group decoration nodes in step with the
// group store: every group owns exactly one gate, every minimized group
// exactly one placeholder, and nothing else. Decorations of deleted
// groups, duplicate decorations, and converters that feed nothing are
// removed.
func (n *Normalizer) syncDecorations(r *Report) {
	snap := nodegraph.NewSnapshot(n.engine.Export())

	gates := make(map[group.ID]bool)
	placeholders := make(map[group.ID]bool)

	for _, node := range snap.Nodes() {
		switch node.Kind {
		case nodegraph.KindGate:
			gid := group.ID(node.GroupTag)
			if _, ok := n.store.Get(gid); !ok || gates[gid] {
				n.removeDecoration(node.ID, r)
				continue
			}
			gates[gid] = true
		case nodegraph.KindPlaceholder:
			gid := group.ID(node.GroupTag)
			g, ok := n.store.Get(gid)
			if !ok || !g.Minimized || placeholders[gid] {
				n.removeDecoration(node.ID, r)
				continue
			}
			placeholders[gid] = true
		case nodegraph.KindConverter:
			gid := group.ID(node.GroupTag)
			if _, ok := n.store.Get(gid); !ok {
				n.removeDecoration(node.ID, r)
				continue
			}
			if len(snap.Outgoing(node.ID)) == 0 {
				n.removeDecoration(node.ID, r)
			}
		}
	}

	for _, g := range n.store.Groups() {
		if !gates[g.ID] {
			n.createGate(snap, g, r)
		}
		if g.Minimized && !placeholders[g.ID] {
			n.createPlaceholder(snap, g, r)
		}
	}
}

func (n *Normalizer) createGate(snap *nodegraph.Snapshot, g *group.Group, r *Report) {
	gate := nodegraph.Node{
		ID:       n.newID(),
		Type:     nodegraph.TypeGate,
		Kind:     nodegraph.KindGate,
		GroupTag: string(g.ID),
		Position: memberOrigin(snap, g).Add(0, -(nodegraph.DefaultNodeHeight + 16)),
	}
	if err := n.engine.AddNode(gate); err != nil {
		gate.ID = nodegraph.NodeID(newRandomID())
		_ = n.engine.AddNode(gate)
	}
	r.GatesCreated++
}

func (n *Normalizer) createPlaceholder(snap *nodegraph.Snapshot, g *group.Group, r *Report) {
	ph := nodegraph.Node{
		ID:       n.newID(),
		Type:     nodegraph.TypePlaceholder,
		Kind:     nodegraph.KindPlaceholder,
		GroupTag: string(g.ID),
		Position: memberOrigin(snap, g),
	}
	if err := n.engine.AddNode(ph); err != nil {
		ph.ID = nodegraph.NodeID(newRandomID())
		_ = n.engine.AddNode(ph)
	}
	r.PlaceholdersCreated++
}

// memberOrigin returns the top-left corner of the group's member positions,
// the anchor for freshly created decorations before alignment runs.
func memberOrigin(snap *nodegraph.Snapshot, g *group.Group) nodegraph.Point {
	origin := nodegraph.Point{}
	first := true
	for id := range g.NodeIDs {
		node, ok := snap.Node(id)
		if !ok || node.Kind.IsDecoration() {
			continue
		}
		if first || node.Position.X < origin.X {
			origin.X = node.Position.X
		}
		if first || node.Position.Y < origin.Y {
			origin.Y = node.Position.Y
		}
		first = false
	}
	return origin
}

func (n *Normalizer) removeDecoration(id nodegraph.NodeID, r *Report) {
	_ = n.engine.RemoveNode(id)
	r.DecorationsRemoved++
}

// AlignPortNodes snaps each group's decorations onto its frame: input
// proxies stack down the left edge, output proxies down the right edge,
// the gate sits above the top-left corner and the placeholder at the
// frame center. Groups without an entry in bounds are left untouched.
// Proxies are ordered by id so repeated alignment is stable.
func (n *Normalizer) AlignPortNodes(bounds map[group.ID]nodegraph.Rect) {
	snap := nodegraph.NewSnapshot(n.engine.Export())

	inputs := make(map[group.ID][]nodegraph.Node)
	outputs := make(map[group.ID][]nodegraph.Node)

	for _, node := range snap.Nodes() {
		switch node.Kind {
		case nodegraph.KindProxy:
			if node.Proxy == nil {
				continue
			}
			gid := group.ID(node.Proxy.Group)
			if node.Proxy.Direction == nodegraph.DirectionInput {
				inputs[gid] = append(inputs[gid], node)
			} else {
				outputs[gid] = append(outputs[gid], node)
			}
		case nodegraph.KindGate:
			gid := group.ID(node.GroupTag)
			frame, ok := bounds[gid]
			if !ok {
				continue
			}
			n.place(node, nodegraph.Point{
				X: frame.Left,
				Y: frame.Top - nodegraph.DefaultNodeHeight - 8,
			})
		case nodegraph.KindPlaceholder:
			gid := group.ID(node.GroupTag)
			frame, ok := bounds[gid]
			if !ok {
				continue
			}
			c := frame.Center()
			n.place(node, nodegraph.Point{
				X: c.X - nodegraph.DefaultNodeWidth/2,
				Y: c.Y - nodegraph.DefaultNodeHeight/2,
			})
		}
	}

	for gid, frame := range bounds {
		n.stackAlongEdge(inputs[gid], frame.Left-nodegraph.DefaultNodeWidth/2, frame.Top)
		n.stackAlongEdge(outputs[gid], frame.Right()-nodegraph.DefaultNodeWidth/2, frame.Top)
	}
}

func (n *Normalizer) stackAlongEdge(proxies []nodegraph.Node, x, top float64) {
	slices.SortFunc(proxies, func(a, b nodegraph.Node) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	y := top + 12
	for _, p := range proxies {
		n.place(p, nodegraph.Point{X: x, Y: y})
		y += nodegraph.DefaultNodeHeight + 12
	}
}

func (n *Normalizer) place(node nodegraph.Node, p nodegraph.Point) {
	if node.Position == p {
		return
	}
	_ = n.engine.UpdateNodePosition(node.ID, p)
}
