package compound

import (
	"github.com/matzehuels/corral/pkg/catalog"
	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

// removeSubtree deletes the group's regular members, every decoration
// tagged to the subtree, and finally the group entries themselves.
func (c *Converter) removeSubtree(gid group.ID) {
	snap := c.snapshot()
	subtree := make(map[group.ID]bool)
	tags := make(map[string]bool)
	for _, id := range c.store.Subtree(gid) {
		subtree[id] = true
		tags[string(id)] = true
	}

	for _, n := range snap.Nodes() {
		switch {
		case !n.IsDecoration():
			if pg, ok := c.store.PrimaryGroup(n.ID); ok && subtree[pg] {
				_ = c.engine.RemoveNode(n.ID)
			}
		case n.Kind == nodegraph.KindProxy && n.Proxy != nil && tags[n.Proxy.Group]:
			_ = c.engine.RemoveNode(n.ID)
		case n.GroupTag != "" && tags[n.GroupTag]:
			_ = c.engine.RemoveNode(n.ID)
		}
	}
	c.store.Disassemble(gid)
}

// placeInstance adds the instance node at the captured origin, joins it
// to the captured group's parent and restores the external wiring.
func (c *Converter) placeInstance(id nodegraph.NodeID, def *catalog.Definition, pack *captured) error {
	c.registerInstancePorts(def)
	err := c.engine.AddNode(nodegraph.Node{
		ID:       id,
		Type:     InstanceType(def.ID),
		Position: pack.origin,
		Config:   nodegraph.Metadata{ConfigDefinitionID: def.ID},
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "place compound instance for %q", def.Name)
	}
	if pack.parent != "" {
		_ = c.store.AddMembers(pack.parent, id)
	}
	c.reconnectInstance(id, pack)
	return nil
}

// reconnectInstance rewires the captured external endpoints onto the
// instance's compound ports and gate input.
func (c *Converter) reconnectInstance(id nodegraph.NodeID, pack *captured) {
	for _, in := range pack.inputs {
		_ = c.engine.AddConnection(nodegraph.Connection{
			From: in.Remote.Node, FromPort: in.Remote.Port,
			To: id, ToPort: in.PortKey,
		})
	}
	for _, out := range pack.outputs {
		_ = c.engine.AddConnection(nodegraph.Connection{
			From: id, FromPort: out.PortKey,
			To: out.Remote.Node, ToPort: out.Remote.Port,
		})
	}
	for _, feed := range pack.gateFeeds {
		_ = c.engine.AddConnection(nodegraph.Connection{
			From: feed.Node, FromPort: feed.Port,
			To: id, ToPort: InstanceGatePort,
		})
	}
}

// registerInstancePorts publishes the instance node type's port list so
// downstream type inference resolves compound ports like any other.
func (c *Converter) registerInstancePorts(def *catalog.Definition) {
	if c.registry == nil {
		return
	}
	RegisterDefinitionPorts(c.registry, def)
}

// RegisterDefinitionPorts publishes a definition's instance node type with
// its gate port and derived compound ports. Loaders call this for every
// definition in a document so instance nodes type-check before any
// expand/collapse runs.
func RegisterDefinitionPorts(reg PortRegistry, def *catalog.Definition) {
	specs := []nodegraph.PortSpec{{
		ID: InstanceGatePort, Label: "Active", Type: "boolean", Direction: nodegraph.DirectionInput,
	}}
	for _, p := range def.Ports {
		if p.Side != catalog.SideInput {
			continue
		}
		specs = append(specs, nodegraph.PortSpec{
			ID: p.Key, Label: p.Label, Type: p.Type, Direction: nodegraph.DirectionInput,
		})
	}
	for _, p := range def.Ports {
		if p.Side != catalog.SideOutput {
			continue
		}
		specs = append(specs, nodegraph.PortSpec{
			ID: p.Key, Label: p.Label, Type: p.Type, Direction: nodegraph.DirectionOutput,
		})
	}
	reg.Register(InstanceType(def.ID), specs)
}

// materialize instantiates the definition's template next to the instance
// and wraps the new nodes in a fresh group. Node ids derive from
// [MaterializedID] so a later collapse/expand cycle is idempotent.
func (c *Converter) materialize(instance nodegraph.Node, def *catalog.Definition) (group.ID, map[string]nodegraph.NodeID, error) {
	origin := instance.Position
	idMap := make(map[string]nodegraph.NodeID, len(def.Template.Nodes))
	members := make(map[nodegraph.NodeID]bool, len(def.Template.Nodes))

	for _, tn := range def.Template.Nodes {
		nid := MaterializedID(instance.ID, tn.ID)
		idMap[tn.ID] = nid
		members[nid] = true
		err := c.engine.AddNode(nodegraph.Node{
			ID:       nid,
			Type:     tn.Type,
			Position: origin.Add(tn.X, tn.Y),
			Config:   cloneConfig(tn.Config),
		})
		if err != nil {
			return "", nil, errors.Wrap(errors.ErrCodeInternal, err, "materialize template node %q of %q", tn.ID, def.Name)
		}
	}
	for _, tc := range def.Template.Connections {
		from, okFrom := idMap[tc.From]
		to, okTo := idMap[tc.To]
		if !okFrom || !okTo {
			continue
		}
		_ = c.engine.AddConnection(nodegraph.Connection{
			From: from, FromPort: tc.FromPort,
			To: to, ToPort: tc.ToPort,
		})
	}

	parent, _ := c.store.PrimaryGroup(instance.ID)
	gid := group.NewID()
	c.store.AppendGroups([]*group.Group{{
		ID:            gid,
		ParentID:      parent,
		Name:          def.Name,
		NodeIDs:       members,
		RuntimeActive: true,
	}})
	return gid, idMap, nil
}

// rewireToBindings moves the wires touching the instance's compound ports
// onto the materialized template endpoints. Gate-input wires are returned
// instead, to be attached once the normalizer has created the new group's
// gate. When detach is set the instance's own wires are removed, leaving
// it an unwired expansion marker.
func (c *Converter) rewireToBindings(instance nodegraph.Node, def *catalog.Definition, idMap map[string]nodegraph.NodeID, detach bool) []endpoint {
	portByKey := make(map[string]catalog.Port, len(def.Ports))
	for _, p := range def.Ports {
		portByKey[p.Key] = p
	}

	snap := c.snapshot()
	var gateFeeds []endpoint

	for _, w := range snap.Incoming(instance.ID) {
		if w.ToPort == InstanceGatePort {
			gateFeeds = append(gateFeeds, endpoint{w.From, w.FromPort})
		} else if p, ok := portByKey[w.ToPort]; ok {
			for _, b := range p.Bindings {
				target, ok := idMap[b.NodeID]
				if !ok {
					continue
				}
				_ = c.engine.AddConnection(nodegraph.Connection{
					From: w.From, FromPort: w.FromPort,
					To: target, ToPort: b.Port,
				})
			}
		}
		if detach {
			_ = c.engine.RemoveConnection(w)
		}
	}
	for _, w := range snap.Outgoing(instance.ID) {
		if p, ok := portByKey[w.FromPort]; ok {
			for _, b := range p.Bindings {
				source, ok := idMap[b.NodeID]
				if !ok {
					continue
				}
				_ = c.engine.AddConnection(nodegraph.Connection{
					From: source, FromPort: b.Port,
					To: w.To, ToPort: w.ToPort,
				})
			}
		}
		if detach {
			_ = c.engine.RemoveConnection(w)
		}
	}
	return gateFeeds
}

// attachGateFeeds wires the saved condition sources into the new group's
// gate and re-normalizes if anything was attached.
func (c *Converter) attachGateFeeds(gid group.ID, feeds []endpoint) {
	if len(feeds) == 0 {
		return
	}
	snap := c.snapshot()
	for _, n := range snap.Nodes() {
		if n.Kind != nodegraph.KindGate || n.GroupTag != string(gid) {
			continue
		}
		for _, feed := range feeds {
			_ = c.engine.AddConnection(nodegraph.Connection{
				From: feed.Node, FromPort: feed.Port,
				To: n.ID, ToPort: nodegraph.GateCondPort,
			})
		}
		c.norm.Run()
		return
	}
}
