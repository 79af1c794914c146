// Package group implements the group hierarchy store: the authoritative
// in-memory model of node groups. A group is a named, nestable set of graph
// nodes with an enable/disable gate and an optional minimized presentation.
//
// The store is the leaf dependency of the grouping engine. Frame geometry,
// boundary normalization, the gate cascade and the compound-node converter
// all read group state from here and never hold their own copy.
//
// # Observability
//
// The store is a versioned observable: every mutation bumps the version and
// notifies subscribers, which then pull the state they care about (group
// list, disabled node id set). Renderers must re-read membership before
// geometry, so the store notifies synchronously and in mutation order.
//
// The store is not safe for concurrent use; the editor runs single-threaded
// cooperative scheduling.
package group

import (
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/matzehuels/corral/pkg/nodegraph"
)

// ID uniquely identifies a group.
type ID string

// Group is a named, nestable subset of graph nodes.
//
// Membership is not exclusive across nesting levels: a node may appear in
// the NodeIDs of a group and of its ancestors. The node's primary group
// (its deepest-nesting, smallest-membership container) decides which
// boundary its wires cross first. Decoration nodes never appear in NodeIDs.
type Group struct {
	ID       ID
	ParentID ID // empty for root groups
	Name     string
	NodeIDs  map[nodegraph.NodeID]bool

	// Disabled is the user's manual gate toggle.
	Disabled bool
	// Minimized collapses the group's frame to a compact box.
	Minimized bool
	// RuntimeActive mirrors the boolean output of the group's gate node.
	// Written back by the gate sync after every evaluation tick, never by
	// the gate itself.
	RuntimeActive bool
}

// Members returns the group's node ids sorted for deterministic iteration.
func (g *Group) Members() []nodegraph.NodeID {
	out := make([]nodegraph.NodeID, 0, len(g.NodeIDs))
	for id := range g.NodeIDs {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b nodegraph.NodeID) int {
		return strings.Compare(string(a), string(b))
	})
	return out
}

// Contains reports whether the node is a direct member of the group.
func (g *Group) Contains(id nodegraph.NodeID) bool { return g.NodeIDs[id] }

// clone returns a deep copy of the group.
func (g *Group) clone() *Group {
	c := *g
	c.NodeIDs = make(map[nodegraph.NodeID]bool, len(g.NodeIDs))
	for id := range g.NodeIDs {
		c.NodeIDs[id] = true
	}
	return &c
}

// NewID returns a fresh random group id.
func NewID() ID { return ID(uuid.NewString()) }

// RemapIDs rewrites group and parent ids through fresh ids, used when
// pasting copied groups so the clones do not collide with their sources.
// Node membership is rewritten through nodeMap when the pasted nodes were
// duplicated too; nodes missing from nodeMap keep their ids.
func RemapIDs(groups []*Group, newID func() ID, nodeMap map[nodegraph.NodeID]nodegraph.NodeID) []*Group {
	if newID == nil {
		newID = NewID
	}
	idMap := make(map[ID]ID, len(groups))
	for _, g := range groups {
		idMap[g.ID] = newID()
	}
	out := make([]*Group, 0, len(groups))
	for _, g := range groups {
		c := g.clone()
		c.ID = idMap[g.ID]
		if mapped, ok := idMap[g.ParentID]; ok {
			c.ParentID = mapped
		}
		if nodeMap != nil {
			remapped := make(map[nodegraph.NodeID]bool, len(c.NodeIDs))
			for id := range c.NodeIDs {
				if m, ok := nodeMap[id]; ok {
					remapped[m] = true
				} else {
					remapped[id] = true
				}
			}
			c.NodeIDs = remapped
		}
		out = append(out, c)
	}
	return out
}
