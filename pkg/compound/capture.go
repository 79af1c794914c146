package compound

import (
	"slices"
	"strings"

	"github.com/matzehuels/corral/pkg/catalog"
	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

// endpoint is one side of a graph wire.
type endpoint struct {
	Node nodegraph.NodeID
	Port string
}

// externalWire records a wire between a compound port and an endpoint
// outside the captured subtree.
type externalWire struct {
	PortKey string
	Remote  endpoint
}

// captured is the full result of packing a group subtree: the template,
// the derived ports and the external wiring to restore on the instance.
type captured struct {
	name      string
	parent    group.ID
	origin    nodegraph.Point
	template  catalog.Template
	ports     []catalog.Port
	inputs    []externalWire
	outputs   []externalWire
	gateFeeds []endpoint
}

// capture packs the group subtree into a template and port list. The
// graph must be normalized first so every crossing runs through the
// group's root-level proxies.
//
// The template is flattened: wires are traced through subtree proxy
// chains down to their regular endpoints, and the decorations themselves
// are not captured. The normalizer regenerates them on materialization.
func (c *Converter) capture(gid group.ID) (*captured, error) {
	g, ok := c.store.Get(gid)
	if !ok {
		return nil, errors.New(errors.ErrCodeGroupNotFound, "group %q not found", gid)
	}
	snap := c.snapshot()

	subtree := make(map[group.ID]bool)
	for _, id := range c.store.Subtree(gid) {
		subtree[id] = true
	}

	owned := make(map[nodegraph.NodeID]bool)
	for _, n := range snap.Nodes() {
		if n.IsDecoration() {
			continue
		}
		if pg, ok := c.store.PrimaryGroup(n.ID); ok && subtree[pg] {
			owned[n.ID] = true
		}
	}
	if len(owned) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidSelection, "group %q has no nodes to capture", g.Name)
	}

	pack := &captured{
		name:   g.Name,
		parent: g.ParentID,
		origin: c.frameOrigin(gid, snap, owned),
	}

	for _, n := range snap.Nodes() {
		if !owned[n.ID] {
			continue
		}
		pack.template.Nodes = append(pack.template.Nodes, catalog.TemplateNode{
			ID:     string(n.ID),
			Type:   n.Type,
			X:      n.Position.X - pack.origin.X,
			Y:      n.Position.Y - pack.origin.Y,
			Config: cloneConfig(n.Config),
		})
	}

	tr := &tracer{
		snap:    snap,
		gid:     gid,
		subtree: subtree,
		owned:   owned,
	}
	for _, n := range snap.Nodes() {
		if !owned[n.ID] {
			continue
		}
		for _, w := range snap.Outgoing(n.ID) {
			tr.walkOut(endpoint{n.ID, w.FromPort}, w, "")
		}
		for _, w := range snap.Incoming(n.ID) {
			tr.walkIn(endpoint{n.ID, w.ToPort}, w, "")
		}
	}
	pack.template.Connections = tr.connections
	pack.inputs = tr.inputs
	pack.outputs = tr.outputs

	pack.ports = c.derivePorts(snap, gid, pack.origin, tr.bindings)
	pack.gateFeeds = collectGateFeeds(snap, gid)
	sortCaptured(pack)
	return pack, nil
}

// frameOrigin is the top-left corner the template positions are made
// relative to: the group's frame when geometry is available, otherwise
// the minimum member position.
func (c *Converter) frameOrigin(gid group.ID, snap *nodegraph.Snapshot, owned map[nodegraph.NodeID]bool) nodegraph.Point {
	if c.frames != nil {
		c.frames.Invalidate()
		c.frames.Flush()
		for _, f := range c.frames.Frames() {
			if f.GroupID == gid {
				return nodegraph.Point{X: f.Bounds.Left, Y: f.Bounds.Top}
			}
		}
	}
	origin := nodegraph.Point{}
	first := true
	for _, n := range snap.Nodes() {
		if !owned[n.ID] {
			continue
		}
		if first || n.Position.X < origin.X {
			origin.X = n.Position.X
		}
		if first || n.Position.Y < origin.Y {
			origin.Y = n.Position.Y
		}
		first = false
	}
	return origin
}

// tracer walks wires through subtree proxy chains to their regular
// endpoints. lastRoot carries the most recent root-level proxy crossed,
// which names the compound port an external wire maps to.
type tracer struct {
	snap    *nodegraph.Snapshot
	gid     group.ID
	subtree map[group.ID]bool
	owned   map[nodegraph.NodeID]bool

	connections []catalog.TemplateConnection
	inputs      []externalWire
	outputs     []externalWire
	bindings    map[string][]catalog.Binding

	seenConn map[catalog.TemplateConnection]bool
	seenIn   map[externalWire]bool
	seenOut  map[externalWire]bool
	seenBind map[string]map[catalog.Binding]bool
}

func (tr *tracer) isSubtreeProxy(n nodegraph.Node) bool {
	return n.Kind == nodegraph.KindProxy && n.Proxy != nil && tr.subtree[group.ID(n.Proxy.Group)]
}

func (tr *tracer) walkOut(src endpoint, w nodegraph.Connection, lastRoot nodegraph.NodeID) {
	target, ok := tr.snap.Node(w.To)
	if !ok {
		return
	}
	if tr.isSubtreeProxy(target) {
		if group.ID(target.Proxy.Group) == tr.gid {
			lastRoot = target.ID
		}
		for _, next := range tr.snap.OutgoingFrom(target.ID, nodegraph.ProxyOutPort) {
			tr.walkOut(src, next, lastRoot)
		}
		return
	}
	if tr.owned[target.ID] {
		tc := catalog.TemplateConnection{
			From: string(src.Node), FromPort: src.Port,
			To: string(target.ID), ToPort: w.ToPort,
		}
		if tr.seenConn == nil {
			tr.seenConn = make(map[catalog.TemplateConnection]bool)
		}
		if !tr.seenConn[tc] {
			tr.seenConn[tc] = true
			tr.connections = append(tr.connections, tc)
		}
		return
	}
	// External endpoint. Wires that never crossed the root boundary (for
	// example into a nested group's gate) die with the subtree.
	if lastRoot == "" {
		return
	}
	ew := externalWire{PortKey: string(lastRoot), Remote: endpoint{target.ID, w.ToPort}}
	if tr.seenOut == nil {
		tr.seenOut = make(map[externalWire]bool)
	}
	if !tr.seenOut[ew] {
		tr.seenOut[ew] = true
		tr.outputs = append(tr.outputs, ew)
	}
	tr.bind(string(lastRoot), catalog.Binding{NodeID: string(src.Node), Port: src.Port})
}

func (tr *tracer) walkIn(dst endpoint, w nodegraph.Connection, lastRoot nodegraph.NodeID) {
	source, ok := tr.snap.Node(w.From)
	if !ok {
		return
	}
	if tr.isSubtreeProxy(source) {
		if group.ID(source.Proxy.Group) == tr.gid {
			lastRoot = source.ID
		}
		for _, prev := range tr.snap.IncomingTo(source.ID, nodegraph.ProxyInPort) {
			tr.walkIn(dst, prev, lastRoot)
		}
		return
	}
	if tr.owned[source.ID] {
		// Internal wire, already collected by the forward walk.
		return
	}
	if lastRoot == "" {
		return
	}
	ew := externalWire{PortKey: string(lastRoot), Remote: endpoint{source.ID, w.FromPort}}
	if tr.seenIn == nil {
		tr.seenIn = make(map[externalWire]bool)
	}
	if !tr.seenIn[ew] {
		tr.seenIn[ew] = true
		tr.inputs = append(tr.inputs, ew)
	}
	tr.bind(string(lastRoot), catalog.Binding{NodeID: string(dst.Node), Port: dst.Port})
}

func (tr *tracer) bind(portKey string, b catalog.Binding) {
	if tr.bindings == nil {
		tr.bindings = make(map[string][]catalog.Binding)
		tr.seenBind = make(map[string]map[catalog.Binding]bool)
	}
	if tr.seenBind[portKey] == nil {
		tr.seenBind[portKey] = make(map[catalog.Binding]bool)
	}
	if tr.seenBind[portKey][b] {
		return
	}
	tr.seenBind[portKey][b] = true
	tr.bindings[portKey] = append(tr.bindings[portKey], b)
}

// derivePorts builds one compound port per root-level proxy, ordered by
// vertical position so the instance's port layout mirrors the frame's.
func (c *Converter) derivePorts(snap *nodegraph.Snapshot, gid group.ID, origin nodegraph.Point, bindings map[string][]catalog.Binding) []catalog.Port {
	var proxies []nodegraph.Node
	for _, n := range snap.Nodes() {
		if n.Kind == nodegraph.KindProxy && n.Proxy != nil && group.ID(n.Proxy.Group) == gid {
			proxies = append(proxies, n)
		}
	}
	slices.SortFunc(proxies, func(a, b nodegraph.Node) int {
		if a.Position.Y != b.Position.Y {
			if a.Position.Y < b.Position.Y {
				return -1
			}
			return 1
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})

	ports := make([]catalog.Port, 0, len(proxies))
	for _, p := range proxies {
		side := catalog.SideInput
		if p.Proxy.Direction == nodegraph.DirectionOutput {
			side = catalog.SideOutput
		}
		key := string(p.ID)
		binds := bindings[key]
		slices.SortFunc(binds, func(a, b catalog.Binding) int {
			if cmp := strings.Compare(a.NodeID, b.NodeID); cmp != 0 {
				return cmp
			}
			return strings.Compare(a.Port, b.Port)
		})
		ports = append(ports, catalog.Port{
			Key:      key,
			Side:     side,
			Label:    c.portLabel(snap, binds, key),
			Type:     p.Proxy.PortType,
			Pinned:   p.Proxy.Pinned,
			Y:        p.Position.Y - origin.Y,
			Bindings: binds,
		})
	}
	return ports
}

// portLabel infers a display label from the internal port the proxy
// stands in for, falling back to the bound port id, then the key.
func (c *Converter) portLabel(snap *nodegraph.Snapshot, binds []catalog.Binding, key string) string {
	if len(binds) == 0 {
		return key
	}
	b := binds[0]
	if c.registry != nil {
		if n, ok := snap.Node(nodegraph.NodeID(b.NodeID)); ok {
			if spec, ok := c.registry.Port(n.Type, b.Port); ok && spec.Label != "" {
				return spec.Label
			}
		}
	}
	return b.Port
}

// collectGateFeeds returns the external endpoints feeding the group's
// gate condition, tracing through AND converters so a folded condition
// tree resolves to its original sources.
func collectGateFeeds(snap *nodegraph.Snapshot, gid group.ID) []endpoint {
	var gate nodegraph.Node
	found := false
	for _, n := range snap.Nodes() {
		if n.Kind == nodegraph.KindGate && n.GroupTag == string(gid) {
			gate, found = n, true
			break
		}
	}
	if !found {
		return nil
	}

	var feeds []endpoint
	var collect func(id nodegraph.NodeID, port string)
	collect = func(id nodegraph.NodeID, port string) {
		for _, w := range snap.IncomingTo(id, port) {
			src, ok := snap.Node(w.From)
			if !ok {
				continue
			}
			if src.Kind == nodegraph.KindConverter {
				collect(src.ID, "a")
				collect(src.ID, "b")
				continue
			}
			feeds = append(feeds, endpoint{src.ID, w.FromPort})
		}
	}
	collect(gate.ID, nodegraph.GateCondPort)
	return feeds
}

func sortCaptured(pack *captured) {
	slices.SortFunc(pack.template.Connections, func(a, b catalog.TemplateConnection) int {
		return strings.Compare(a.From+"\x00"+a.FromPort+"\x00"+a.To+"\x00"+a.ToPort,
			b.From+"\x00"+b.FromPort+"\x00"+b.To+"\x00"+b.ToPort)
	})
	byWire := func(a, b externalWire) int {
		if cmp := strings.Compare(a.PortKey, b.PortKey); cmp != 0 {
			return cmp
		}
		if cmp := strings.Compare(string(a.Remote.Node), string(b.Remote.Node)); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.Remote.Port, b.Remote.Port)
	}
	slices.SortFunc(pack.inputs, byWire)
	slices.SortFunc(pack.outputs, byWire)
	slices.SortFunc(pack.gateFeeds, func(a, b endpoint) int {
		if cmp := strings.Compare(string(a.Node), string(b.Node)); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.Port, b.Port)
	})
}

// restoreTemplateIDs maps materialized graph ids back to the template ids
// of the previous definition revision, so repeated expand/collapse cycles
// keep both the template ids and the derived graph ids stable. Nodes
// added by the user during the expansion keep their graph ids as fresh
// template ids.
func restoreTemplateIDs(pack *captured, instanceID nodegraph.NodeID, prev *catalog.Definition) {
	reverse := make(map[string]string, len(prev.Template.Nodes))
	for _, tn := range prev.Template.Nodes {
		reverse[string(MaterializedID(instanceID, tn.ID))] = tn.ID
	}
	restore := func(id string) string {
		if orig, ok := reverse[id]; ok {
			return orig
		}
		return id
	}
	for i := range pack.template.Nodes {
		pack.template.Nodes[i].ID = restore(pack.template.Nodes[i].ID)
	}
	for i := range pack.template.Connections {
		pack.template.Connections[i].From = restore(pack.template.Connections[i].From)
		pack.template.Connections[i].To = restore(pack.template.Connections[i].To)
	}
	for i := range pack.ports {
		for j := range pack.ports[i].Bindings {
			pack.ports[i].Bindings[j].NodeID = restore(pack.ports[i].Bindings[j].NodeID)
		}
	}
}

func cloneConfig(m nodegraph.Metadata) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
