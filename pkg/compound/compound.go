// Package compound converts group subtrees into reusable compound-node
// definitions and back.
//
// Nodalize packs a group's subtree into a [catalog.Definition] (template
// plus derived port list) and replaces the subtree with a single instance
// node wired to the captured external endpoints. Denodalize is the
// inverse. Expand and Collapse are the lighter-weight reversible pair:
// they materialize and dematerialize an instance's interior as an
// editable group without destroying the definition.
//
// Materialized node ids derive deterministically from the instance id and
// the template node id, so repeated expand/collapse cycles land on the
// same graph ids.
package compound

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/matzehuels/corral/pkg/boundary"
	"github.com/matzehuels/corral/pkg/catalog"
	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/frame"
	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

// TypeCompound prefixes the node type of compound instances. The full
// type is TypeCompound + "/" + definition id, so the registry can resolve
// each instance's ports independently.
const TypeCompound = "corral/compound"

// InstanceGatePort is the boolean input on an instance node that stands
// in for the captured group's gate condition.
const InstanceGatePort = "active"

// Config keys carried on instance nodes.
const (
	ConfigDefinitionID  = "definitionId"
	ConfigExpandedGroup = "expandedGroup"
)

// InstanceType returns the node type key for instances of a definition.
func InstanceType(defID string) string { return TypeCompound + "/" + defID }

// IsInstance reports whether the node is a compound instance.
func IsInstance(n nodegraph.Node) bool {
	return strings.HasPrefix(n.Type, TypeCompound+"/")
}

// DefinitionID returns the definition an instance node was created from,
// or "" when the node is not an instance.
func DefinitionID(n nodegraph.Node) string {
	if id, ok := n.Config[ConfigDefinitionID].(string); ok && id != "" {
		return id
	}
	if IsInstance(n) {
		return strings.TrimPrefix(n.Type, TypeCompound+"/")
	}
	return ""
}

// ExpandedGroup returns the group id an instance is currently expanded
// into, or "" when collapsed.
func ExpandedGroup(n nodegraph.Node) group.ID {
	if id, ok := n.Config[ConfigExpandedGroup].(string); ok {
		return group.ID(id)
	}
	return ""
}

// MaterializedID derives the graph id of a template node materialized
// under a given instance. The mapping is a pure function of the two ids,
// so repeated expand/collapse of the same instance reuses the same graph
// ids.
func MaterializedID(instanceID nodegraph.NodeID, templateNodeID string) nodegraph.NodeID {
	ns := uuid.NewSHA1(uuid.NameSpaceOID, []byte(instanceID))
	return nodegraph.NodeID(uuid.NewSHA1(ns, []byte(templateNodeID)).String())
}

// PortRegistry is the registry surface the converter needs: port lookup
// plus registration of per-definition instance port lists.
type PortRegistry interface {
	nodegraph.TypeRegistry
	Register(nodeType string, ports []nodegraph.PortSpec)
}

// ConfirmFunc asks the user to confirm a destructive operation. A nil
// hook confirms everything.
type ConfirmFunc func(message string) bool

// Converter implements nodalize/denodalize and expand/collapse on top of
// the graph engine, the group store and the boundary normalizer.
type Converter struct {
	engine   nodegraph.Engine
	store    *group.Store
	frames   *frame.Engine
	norm     *boundary.Normalizer
	catalog  catalog.Store
	registry PortRegistry
	confirm  ConfirmFunc
	newID    func() string
}

// New creates a converter. confirm may be nil; ids default to random
// UUIDs.
func New(engine nodegraph.Engine, store *group.Store, frames *frame.Engine, norm *boundary.Normalizer, cat catalog.Store, registry PortRegistry, confirm ConfirmFunc) *Converter {
	return &Converter{
		engine:   engine,
		store:    store,
		frames:   frames,
		norm:     norm,
		catalog:  cat,
		registry: registry,
		confirm:  confirm,
		newID:    uuid.NewString,
	}
}

func (c *Converter) snapshot() *nodegraph.Snapshot {
	return nodegraph.NewSnapshot(c.engine.Export())
}

// Nodalize packs the group's subtree into a new compound definition and
// replaces it with a single instance node at the frame's former origin.
// External wires touching the group's boundary proxies, and any wire
// feeding the group's gate, are reconnected to the instance. The confirm
// hook runs before anything is removed.
func (c *Converter) Nodalize(ctx context.Context, gid group.ID) (*catalog.Definition, nodegraph.NodeID, error) {
	g, ok := c.store.Get(gid)
	if !ok {
		return nil, "", errors.New(errors.ErrCodeGroupNotFound, "group %q not found", gid)
	}
	c.norm.Run()

	pack, err := c.capture(gid)
	if err != nil {
		return nil, "", err
	}
	if c.confirm != nil && !c.confirm(fmt.Sprintf("Convert group %q into a compound node? The group and its contents are replaced by a single instance.", g.Name)) {
		return nil, "", errors.New(errors.ErrCodeInvalidSelection, "nodalize of group %q cancelled", g.Name)
	}

	def := &catalog.Definition{
		ID:       c.newID(),
		Name:     pack.name,
		Template: pack.template,
		Ports:    pack.ports,
	}
	if err := c.catalog.Put(ctx, def); err != nil {
		return nil, "", err
	}

	c.removeSubtree(gid)

	instanceID := nodegraph.NodeID(c.newID())
	if err := c.placeInstance(instanceID, def, pack); err != nil {
		return nil, "", err
	}

	c.norm.Run()
	if c.frames != nil {
		c.frames.Invalidate()
	}
	return def, instanceID, nil
}

// Denodalize explodes a compound instance back into a live, editable
// group and deletes the definition. Other instances of the same
// definition that are currently expanded are collapsed first so the
// definition cannot diverge between copies.
func (c *Converter) Denodalize(ctx context.Context, instanceID nodegraph.NodeID) (group.ID, error) {
	instance, ok := c.engine.Node(instanceID)
	if !ok {
		return "", errors.New(errors.ErrCodeNodeNotFound, "node %q not found", instanceID)
	}
	defID := DefinitionID(instance)
	if defID == "" {
		return "", errors.New(errors.ErrCodeInvalidSelection, "node %q is not a compound instance", instanceID)
	}

	for _, other := range c.expandedSiblings(defID, instanceID) {
		if err := c.Collapse(ctx, other); err != nil {
			return "", err
		}
	}

	// An expanded instance already has its interior live in the graph; the
	// instance node is just an unwired marker at that point.
	if gid := ExpandedGroup(instance); gid != "" {
		c.dropMembership(instanceID)
		if err := c.engine.RemoveNode(instanceID); err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, err, "remove instance %q", instanceID)
		}
		if err := c.catalog.Delete(ctx, defID); err != nil {
			return "", err
		}
		c.norm.Run()
		if c.frames != nil {
			c.frames.Invalidate()
		}
		return gid, nil
	}

	def, err := c.catalog.Get(ctx, defID)
	if err != nil {
		return "", err
	}
	gid, idMap, err := c.materialize(instance, def)
	if err != nil {
		return "", err
	}
	gateFeeds := c.rewireToBindings(instance, def, idMap, false)
	c.dropMembership(instanceID)
	if err := c.engine.RemoveNode(instanceID); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "remove instance %q", instanceID)
	}
	c.norm.Run()
	c.attachGateFeeds(gid, gateFeeds)
	if err := c.catalog.Delete(ctx, defID); err != nil {
		return "", err
	}
	if c.frames != nil {
		c.frames.Invalidate()
	}
	return gid, nil
}

// Expand materializes an instance's template as an editable group without
// destroying the definition. The instance node stays in the graph as an
// unwired marker pointing at the expanded group. Expanding an already
// expanded instance is a no-op.
func (c *Converter) Expand(ctx context.Context, instanceID nodegraph.NodeID) (group.ID, error) {
	instance, ok := c.engine.Node(instanceID)
	if !ok {
		return "", errors.New(errors.ErrCodeNodeNotFound, "node %q not found", instanceID)
	}
	defID := DefinitionID(instance)
	if defID == "" {
		return "", errors.New(errors.ErrCodeInvalidSelection, "node %q is not a compound instance", instanceID)
	}
	if gid := ExpandedGroup(instance); gid != "" {
		return gid, nil
	}

	def, err := c.catalog.Get(ctx, defID)
	if err != nil {
		return "", err
	}
	gid, idMap, err := c.materialize(instance, def)
	if err != nil {
		return "", err
	}
	gateFeeds := c.rewireToBindings(instance, def, idMap, true)
	if err := c.engine.UpdateNodeConfig(instanceID, ConfigExpandedGroup, string(gid)); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "mark instance %q expanded", instanceID)
	}
	c.norm.Run()
	c.attachGateFeeds(gid, gateFeeds)
	if c.frames != nil {
		c.frames.Invalidate()
	}
	return gid, nil
}

// Collapse recaptures an expanded instance's group back into its
// definition and removes the group from the graph. The recaptured
// template is checked for cyclic definition references before anything
// is committed; a cycle aborts with CYCLIC_DEFINITION and leaves the
// expansion untouched. Collapsing a collapsed instance is a no-op.
func (c *Converter) Collapse(ctx context.Context, instanceID nodegraph.NodeID) error {
	instance, ok := c.engine.Node(instanceID)
	if !ok {
		return errors.New(errors.ErrCodeNodeNotFound, "node %q not found", instanceID)
	}
	defID := DefinitionID(instance)
	gid := ExpandedGroup(instance)
	if defID == "" || gid == "" {
		return nil
	}

	c.norm.Run()
	pack, err := c.capture(gid)
	if err != nil {
		return err
	}
	if prev, err := c.catalog.Get(ctx, defID); err == nil {
		restoreTemplateIDs(pack, instanceID, prev)
	}
	if err := c.checkAcyclic(ctx, defID, pack.template); err != nil {
		return err
	}

	def := &catalog.Definition{
		ID:       defID,
		Name:     pack.name,
		Template: pack.template,
		Ports:    pack.ports,
	}
	if err := c.catalog.Put(ctx, def); err != nil {
		return err
	}

	c.removeSubtree(gid)
	if err := c.engine.UpdateNodeConfig(instanceID, ConfigExpandedGroup, ""); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "mark instance %q collapsed", instanceID)
	}
	_ = c.engine.UpdateNodePosition(instanceID, pack.origin)

	c.registerInstancePorts(def)
	c.reconnectInstance(instanceID, pack)
	c.norm.Run()
	if c.frames != nil {
		c.frames.Invalidate()
	}
	return nil
}

// SyncDefinitionName pushes a group rename through to the definition of
// the instance expanded into it, keeping the definition name and the
// expanded group name aligned. Groups that back no expansion are ignored.
func (c *Converter) SyncDefinitionName(ctx context.Context, gid group.ID) error {
	g, ok := c.store.Get(gid)
	if !ok {
		return nil
	}
	snap := c.snapshot()
	for _, n := range snap.Nodes() {
		if !IsInstance(n) || ExpandedGroup(n) != gid {
			continue
		}
		defID := DefinitionID(n)
		def, err := c.catalog.Get(ctx, defID)
		if err != nil {
			if errors.GetCode(err) == errors.ErrCodeDefinitionNotFound {
				continue
			}
			return err
		}
		if def.Name == g.Name {
			continue
		}
		def.Name = g.Name
		if err := c.catalog.Put(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

// dropMembership removes a node from every group that lists it directly,
// so deleting the node leaves no stale membership behind.
func (c *Converter) dropMembership(id nodegraph.NodeID) {
	for _, gid := range c.store.GroupsContaining(id) {
		_ = c.store.RemoveMembers(gid, id)
	}
}

// expandedSiblings returns other instances of the same definition that
// are currently expanded.
func (c *Converter) expandedSiblings(defID string, except nodegraph.NodeID) []nodegraph.NodeID {
	var out []nodegraph.NodeID
	for _, n := range c.snapshot().Nodes() {
		if n.ID == except || DefinitionID(n) != defID {
			continue
		}
		if ExpandedGroup(n) != "" {
			out = append(out, n.ID)
		}
	}
	return out
}

// checkAcyclic walks the definitions reachable from the template through
// instance nodes. Reaching defID means the definition would contain
// itself, directly or through nesting.
func (c *Converter) checkAcyclic(ctx context.Context, defID string, t catalog.Template) error {
	pending := referencedDefinitions(t)
	seen := make(map[string]bool)
	for len(pending) > 0 {
		id := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if id == defID {
			return errors.New(errors.ErrCodeCyclicDefinition, "definition %q would contain an instance of itself", defID)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		def, err := c.catalog.Get(ctx, id)
		if err != nil {
			if errors.GetCode(err) == errors.ErrCodeDefinitionNotFound {
				continue
			}
			return err
		}
		pending = append(pending, referencedDefinitions(def.Template)...)
	}
	return nil
}

func referencedDefinitions(t catalog.Template) []string {
	var out []string
	for _, n := range t.Nodes {
		if strings.HasPrefix(n.Type, TypeCompound+"/") {
			out = append(out, strings.TrimPrefix(n.Type, TypeCompound+"/"))
		}
	}
	return out
}
