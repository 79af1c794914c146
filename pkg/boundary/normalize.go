package boundary

import (
	"github.com/google/uuid"

	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

// Report summarizes one normalizer run. A run on an already-normalized
// graph reports zero mutations.
type Report struct {
	ConnectionsRewritten int
	ProxiesCreated       int
	ProxiesRemoved       int
	DirectionsCorrected  int
	TypesCorrected       int
	GatesCreated         int
	PlaceholdersCreated  int
	DecorationsRemoved   int

	// Violations carries the policy errors surfaced to the user (a gate
	// wired from inside its own group). The offending wires are removed.
	Violations []error
}

// Mutations returns the total number of graph mutations the run performed.
func (r Report) Mutations() int {
	return r.ConnectionsRewritten + r.ProxiesCreated + r.ProxiesRemoved +
		r.DirectionsCorrected + r.TypesCorrected + r.GatesCreated +
		r.PlaceholdersCreated + r.DecorationsRemoved + len(r.Violations)
}

// Normalizer rewrites cross-boundary wires into proxy chains and garbage
// collects proxies that no longer represent a real crossing.
type Normalizer struct {
	engine   nodegraph.Engine
	store    *group.Store
	registry nodegraph.TypeRegistry
	newID    func() nodegraph.NodeID

	// inProgress prevents the pass from re-entering itself when one of
	// its own mutations re-triggers scheduling.
	inProgress bool
}

// New creates a normalizer. idFn generates ids for created decoration
// nodes; nil uses random UUIDs.
func New(engine nodegraph.Engine, store *group.Store, registry nodegraph.TypeRegistry, idFn func() nodegraph.NodeID) *Normalizer {
	if idFn == nil {
		idFn = func() nodegraph.NodeID { return newRandomID() }
	}
	return &Normalizer{engine: engine, store: store, registry: registry, newID: idFn}
}

// Run executes one full normalization pass: decoration sync, gate-feedback
// rejection, cross-boundary rewrite, fan-out splitting, then cleanup.
// Returns the mutation report. Re-entrant calls return an empty report.
func (n *Normalizer) Run() Report {
	if n.inProgress {
		return Report{}
	}
	n.inProgress = true
	defer func() { n.inProgress = false }()

	var r Report
	n.syncDecorations(&r)
	n.rejectGateFeedback(&r)
	n.rewriteCrossings(&r)
	n.splitFanOut(&r)
	n.cleanup(&r)
	return r
}

// rejectGateFeedback removes connections feeding a group's gate from a
// source inside that group's own subtree. Such wiring would make the
// group's activation depend on nodes the gate itself disables. The check
// follows converter chains, so feedback routed through an AND node is
// caught at the wire entering the chain.
func (n *Normalizer) rejectGateFeedback(r *Report) {
	snap := nodegraph.NewSnapshot(n.engine.Export())
	for _, node := range snap.Nodes() {
		if node.Kind != nodegraph.KindGate {
			continue
		}
		gid := group.ID(node.GroupTag)
		n.rejectFeedbackInto(snap, node.ID, nodegraph.GateCondPort, gid, r)
	}
}

func (n *Normalizer) rejectFeedbackInto(snap *nodegraph.Snapshot, target nodegraph.NodeID, port string, gid group.ID, r *Report) {
	for _, c := range snap.IncomingTo(target, port) {
		src, ok := snap.Node(c.From)
		if !ok {
			continue
		}
		if pathContains(ContextPath(n.store, src, c.FromPort), gid) {
			_ = n.engine.RemoveConnection(c)
			r.Violations = append(r.Violations, errors.New(errors.ErrCodeGateFeedback,
				"gate of group %q cannot be wired from inside its own subtree", gid))
			continue
		}
		if src.Kind == nodegraph.KindConverter && n.registry != nil {
			for _, in := range n.registry.Ports(src.Type) {
				if in.Direction == nodegraph.DirectionInput {
					n.rejectFeedbackInto(snap, src.ID, in.ID, gid, r)
				}
			}
		}
	}
}

// rewriteCrossings decomposes every connection whose endpoints live in
// different group contexts into a chain of single-hop proxies.
func (n *Normalizer) rewriteCrossings(r *Report) {
	snap := nodegraph.NewSnapshot(n.engine.Export())
	for _, c := range snap.Connections() {
		src, okSrc := snap.Node(c.From)
		dst, okDst := snap.Node(c.To)
		if !okSrc || !okDst {
			continue
		}
		srcPath := ContextPath(n.store, src, c.FromPort)
		dstPath := ContextPath(n.store, dst, c.ToPort)
		if pathsEqual(srcPath, dstPath) {
			continue
		}
		n.rewrite(c, srcPath, dstPath, r)
		// Mutations may have created reusable proxies; later connections
		// must see them.
		snap = nodegraph.NewSnapshot(n.engine.Export())
	}
}

// rewrite replaces one cross-boundary connection with a proxy chain.
// The original wire is deleted first so no duplicate exists mid-rewrite.
func (n *Normalizer) rewrite(c nodegraph.Connection, srcPath, dstPath []group.ID, r *Report) {
	prefix := commonPrefixLen(srcPath, dstPath)
	_ = n.engine.RemoveConnection(c)
	r.ConnectionsRewritten++

	curNode, curPort := c.From, c.FromPort

	// Walk out of the source's groups, innermost first: one output proxy
	// per boundary exited.
	for i := len(srcPath) - 1; i >= prefix; i-- {
		curNode, curPort = n.hop(srcPath[i], nodegraph.DirectionOutput, curNode, curPort, r)
	}

	// Walk into the target's groups from the fork point down: one input
	// proxy per boundary entered.
	for i := prefix; i < len(dstPath); i++ {
		curNode, curPort = n.hop(dstPath[i], nodegraph.DirectionInput, curNode, curPort, r)
	}

	_ = n.engine.AddConnection(nodegraph.Connection{
		From: curNode, FromPort: curPort, To: c.To, ToPort: c.ToPort,
	})
}

// hop routes the chain through a proxy on the given group boundary,
// reusing an existing proxy already fed from the same endpoint (one proxy
// per boundary per logical wire endpoint) or creating a fresh one.
func (n *Normalizer) hop(gid group.ID, dir nodegraph.PortDirection, fromNode nodegraph.NodeID, fromPort string, r *Report) (nodegraph.NodeID, string) {
	snap := nodegraph.NewSnapshot(n.engine.Export())

	for _, c := range snap.OutgoingFrom(fromNode, fromPort) {
		other, ok := snap.Node(c.To)
		if !ok || other.Kind != nodegraph.KindProxy || other.Proxy == nil {
			continue
		}
		if other.Proxy.Group == string(gid) && other.Proxy.Direction == dir && c.ToPort == nodegraph.ProxyInPort {
			return other.ID, nodegraph.ProxyOutPort
		}
	}

	proxy := nodegraph.Node{
		ID:       n.newID(),
		Type:     nodegraph.TypeProxy,
		Kind:     nodegraph.KindProxy,
		GroupTag: string(gid),
		Position: n.proxyPosition(snap, fromNode, dir),
		Proxy: &nodegraph.ProxySpec{
			Group:     string(gid),
			Direction: dir,
			PortType:  n.inferPortType(snap, fromNode, fromPort),
		},
	}
	if err := n.engine.AddNode(proxy); err != nil {
		// Id collision is the only failure mode; retry once with a fresh id.
		proxy.ID = newRandomID()
		_ = n.engine.AddNode(proxy)
	}
	r.ProxiesCreated++
	_ = n.engine.AddConnection(nodegraph.Connection{
		From: fromNode, FromPort: fromPort, To: proxy.ID, ToPort: nodegraph.ProxyInPort,
	})
	return proxy.ID, nodegraph.ProxyOutPort
}

func (n *Normalizer) proxyPosition(snap *nodegraph.Snapshot, anchor nodegraph.NodeID, dir nodegraph.PortDirection) nodegraph.Point {
	p := nodegraph.Point{}
	if a, ok := snap.Node(anchor); ok {
		p = a.Position
	}
	// Rough placement only; the port-node alignment pass snaps proxies to
	// the frame edge afterwards.
	if dir == nodegraph.DirectionOutput {
		return p.Add(nodegraph.DefaultNodeWidth+40, 0)
	}
	return p.Add(-(nodegraph.DefaultNodeWidth + 40), 0)
}

// inferPortType resolves the type of the port feeding a proxy chain.
// Chained proxies propagate the type of the original internal port.
func (n *Normalizer) inferPortType(snap *nodegraph.Snapshot, nodeID nodegraph.NodeID, port string) string {
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

// splitFanOut enforces the single-external-wire rule on auto output
// proxies: where normalization produced more than one outgoing external
// wire, all but the first move onto freshly created sibling proxies fed
// from the same internal source. Splitting a proxy adds a wire to its
// upstream feed, which can push that proxy over the limit in turn, so
// the pass repeats until no proxy fans out.
func (n *Normalizer) splitFanOut(r *Report) {
	for n.splitFanOutOnce(r) > 0 {
	}
}

func (n *Normalizer) splitFanOutOnce(r *Report) int {
	snap := nodegraph.NewSnapshot(n.engine.Export())
	split := 0
	for _, node := range snap.Nodes() {
		if node.Kind != nodegraph.KindProxy || node.Proxy == nil || node.Proxy.Pinned {
			continue
		}
		if node.Proxy.Direction != nodegraph.DirectionOutput {
			continue
		}
		external := snap.OutgoingFrom(node.ID, nodegraph.ProxyOutPort)
		if len(external) <= 1 {
			continue
		}
		internal := snap.IncomingTo(node.ID, nodegraph.ProxyInPort)
		if len(internal) == 0 {
			continue // cleanup will collect it
		}
		feed := internal[0]
		for _, extra := range external[1:] {
			sibling := nodegraph.Node{
				ID:       n.newID(),
				Type:     nodegraph.TypeProxy,
				Kind:     nodegraph.KindProxy,
				GroupTag: node.GroupTag,
				Position: node.Position.Add(0, nodegraph.DefaultNodeHeight/2),
				Proxy: &nodegraph.ProxySpec{
					Group:     node.Proxy.Group,
					Direction: nodegraph.DirectionOutput,
					PortType:  node.Proxy.PortType,
				},
			}
			_ = n.engine.AddNode(sibling)
			r.ProxiesCreated++
			_ = n.engine.AddConnection(nodegraph.Connection{
				From: feed.From, FromPort: feed.FromPort, To: sibling.ID, ToPort: nodegraph.ProxyInPort,
			})
			_ = n.engine.RemoveConnection(extra)
			_ = n.engine.AddConnection(nodegraph.Connection{
				From: sibling.ID, FromPort: nodegraph.ProxyOutPort, To: extra.To, ToPort: extra.ToPort,
			})
			r.ConnectionsRewritten++
			split++
		}
	}
	return split
}

func newRandomID() nodegraph.NodeID {
	return nodegraph.NodeID(uuid.NewString())
}

func pathsEqual(a, b []group.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
