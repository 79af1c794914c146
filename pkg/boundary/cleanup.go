package boundary

import (
	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

// cleanup garbage-collects proxies that no longer represent a real
// crossing and repairs stale proxy metadata.
//
// Connectivity is classified from the current wiring, never from the
// stored direction field: a wire is internal when the far endpoint's
// context path passes through the proxy's group, external otherwise. The
// stored direction is corrected when it disagrees with what the wiring
// says. Rules:
//
//   - a proxy whose group no longer exists is deleted
//   - an auto proxy with no internal wire is deleted unconditionally
//   - an auto proxy with an internal wire but no external wire is deleted
//   - a pinned proxy survives half-connected, but is deleted once its
//     internal wire disappears entirely
//
// Deletions run to a fixpoint since removing one proxy can orphan its
// chain neighbors. Port types on auto proxies are then re-inferred from
// the internal port each proxy stands in for, also to a fixpoint so types
// propagate through whole chains within a single run.
func (n *Normalizer) cleanup(r *Report) {
	for n.collectOnce(r) > 0 {
	}
	// Type propagation converges within chain length; the cap only guards
	// against corrupted cyclic wiring.
	for range n.store.Len() + len(nodegraph.NewSnapshot(n.engine.Export()).Nodes()) + 1 {
		if n.syncTypesOnce(r) == 0 {
			break
		}
	}
}

func (n *Normalizer) collectOnce(r *Report) int {
	snap := nodegraph.NewSnapshot(n.engine.Export())
	removed := 0

	for _, node := range snap.Nodes() {
		if node.Kind != nodegraph.KindProxy || node.Proxy == nil {
			continue
		}
		gid := group.ID(node.Proxy.Group)
		if _, ok := n.store.Get(gid); !ok {
			n.removeProxy(node.ID, r)
			removed++
			continue
		}

		conn := n.classify(snap, node, gid)

		if !conn.hasInternal {
			// Pinned or not, a proxy with no internal wire at all is dead.
			n.removeProxy(node.ID, r)
			removed++
			continue
		}
		if !conn.hasExternal && !node.Proxy.Pinned {
			n.removeProxy(node.ID, r)
			removed++
			continue
		}

		// Correct a stored direction the wiring contradicts.
		wantDir := nodegraph.DirectionInput
		if conn.internalFeeds {
			wantDir = nodegraph.DirectionOutput
		}
		if node.Proxy.Direction != wantDir {
			spec := *node.Proxy
			spec.Direction = wantDir
			_ = n.engine.UpdateProxySpec(node.ID, spec)
			r.DirectionsCorrected++
		}
	}
	return removed
}

// connectivity describes a proxy's live wiring.
type connectivity struct {
	hasInternal bool
	hasExternal bool
	// internalFeeds is true when an internal wire flows INTO the proxy,
	// which makes it an output proxy; an input proxy feeds the inside.
	internalFeeds bool
	// internalWire is one internal connection, used for type inference.
	internalWire     nodegraph.Connection
	internalIncoming bool
}

func (n *Normalizer) classify(snap *nodegraph.Snapshot, proxy nodegraph.Node, gid group.ID) connectivity {
	var c connectivity
	for _, w := range snap.Incoming(proxy.ID) {
		other, ok := snap.Node(w.From)
		if !ok {
			continue
		}
		if pathContains(ContextPath(n.store, other, w.FromPort), gid) {
			c.hasInternal = true
			c.internalFeeds = true
			c.internalWire = w
			c.internalIncoming = true
		} else {
			c.hasExternal = true
		}
	}
	for _, w := range snap.Outgoing(proxy.ID) {
		other, ok := snap.Node(w.To)
		if !ok {
			continue
		}
		if pathContains(ContextPath(n.store, other, w.ToPort), gid) {
			c.hasInternal = true
			if !c.internalIncoming {
				c.internalWire = w
			}
		} else {
			c.hasExternal = true
		}
	}
	return c
}

// syncTypesOnce re-infers every auto proxy's port type from the internal
// port it proxies. Returns the number of corrections applied.
func (n *Normalizer) syncTypesOnce(r *Report) int {
	snap := nodegraph.NewSnapshot(n.engine.Export())
	changed := 0

	for _, node := range snap.Nodes() {
		if node.Kind != nodegraph.KindProxy || node.Proxy == nil || node.Proxy.Pinned {
			continue
		}
		gid := group.ID(node.Proxy.Group)
		conn := n.classify(snap, node, gid)
		if !conn.hasInternal {
			continue
		}

		var inferred string
		if conn.internalIncoming {
			inferred = n.inferPortType(snap, conn.internalWire.From, conn.internalWire.FromPort)
		} else {
			inferred = n.inferInputPortType(snap, conn.internalWire.To, conn.internalWire.ToPort)
		}
		if inferred == "" || inferred == "any" || inferred == node.Proxy.PortType {
			continue
		}
		spec := *node.Proxy
		spec.PortType = inferred
		_ = n.engine.UpdateProxySpec(node.ID, spec)
		r.TypesCorrected++
		changed++
	}
	return changed
}

// inferInputPortType resolves the type of the internal input port an input
// proxy feeds.
func (n *Normalizer) inferInputPortType(snap *nodegraph.Snapshot, nodeID nodegraph.NodeID, port string) string {
	node, ok := snap.Node(nodeID)
	if !ok {
		return "any"
	}
	if node.Kind == nodegraph.KindProxy && node.Proxy != nil {
		return node.Proxy.PortType
	}
	if n.registry != nil {
		if spec, ok := n.registry.Port(node.Type, port); ok {
			return spec.Type
		}
	}
	return "any"
}

// removeProxy deletes a proxy node; the engine removes its wires with it.
func (n *Normalizer) removeProxy(id nodegraph.NodeID, r *Report) {
	_ = n.engine.RemoveNode(id)
	r.ProxiesRemoved++
}
