package group

import (
	"slices"
	"strings"

	"github.com/matzehuels/corral/pkg/nodegraph"
)

// Parent returns the id of the group's parent, or "" for roots and unknown
// groups.
func (s *Store) Parent(id ID) ID {
	g, ok := s.groups[id]
	if !ok {
		return ""
	}
	return g.ParentID
}

// Children returns the ids of the group's direct children, sorted.
func (s *Store) Children(id ID) []ID {
	var out []ID
	for gid, g := range s.groups {
		if g.ParentID == id {
			out = append(out, gid)
		}
	}
	slices.SortFunc(out, func(a, b ID) int { return strings.Compare(string(a), string(b)) })
	return out
}

// Roots returns the ids of groups with no parent, sorted.
func (s *Store) Roots() []ID {
	var out []ID
	for gid, g := range s.groups {
		if g.ParentID == "" || s.groups[g.ParentID] == nil {
			out = append(out, gid)
		}
	}
	slices.SortFunc(out, func(a, b ID) int { return strings.Compare(string(a), string(b)) })
	return out
}

// Ancestors returns the group's ancestor chain root-first, excluding the
// group itself. A visited set guards against corrupted parent cycles.
func (s *Store) Ancestors(id ID) []ID {
	var chain []ID
	visited := map[ID]bool{id: true}
	cur := s.Parent(id)
	for cur != "" && !visited[cur] {
		visited[cur] = true
		chain = append(chain, cur)
		cur = s.Parent(cur)
	}
	slices.Reverse(chain)
	return chain
}

// Path returns the group's ancestor chain root-first, including the group
// itself as the last element.
func (s *Store) Path(id ID) []ID {
	if _, ok := s.groups[id]; !ok {
		return nil
	}
	return append(s.Ancestors(id), id)
}

// Depth returns the group's nesting depth; roots are depth 0.
func (s *Store) Depth(id ID) int {
	return len(s.Ancestors(id))
}

// Subtree returns the group and every descendant, pre-order, the target
// first. Children are visited in sorted order so output is deterministic.
func (s *Store) Subtree(id ID) []ID {
	if _, ok := s.groups[id]; !ok {
		return nil
	}
	var out []ID
	visited := map[ID]bool{id: true}
	stack := []ID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)
		children := s.Children(cur)
		// Push in reverse so sorted order pops first.
		for i := len(children) - 1; i >= 0; i-- {
			c := children[i]
			if visited[c] {
				continue
			}
			visited[c] = true
			stack = append(stack, c)
		}
	}
	return out
}

// IsDescendant reports whether id lies in the subtree rooted at ancestor
// (a group is not its own descendant).
func (s *Store) IsDescendant(id, ancestor ID) bool {
	return slices.Contains(s.Ancestors(id), ancestor)
}

// GroupsContaining returns the ids of every group whose direct membership
// includes the node, sorted.
func (s *Store) GroupsContaining(nodeID nodegraph.NodeID) []ID {
	var out []ID
	for gid, g := range s.groups {
		if g.NodeIDs[nodeID] {
			out = append(out, gid)
		}
	}
	slices.SortFunc(out, func(a, b ID) int { return strings.Compare(string(a), string(b)) })
	return out
}

// PrimaryGroup returns the node's primary group: the deepest-nesting,
// smallest-membership group containing it. A node in two equally deep,
// equally sized groups resolves to the lexically smaller id so the result
// is at least deterministic; such membership only arises from data-entry
// drift and the reconciler will not invent a stricter order for it.
func (s *Store) PrimaryGroup(nodeID nodegraph.NodeID) (ID, bool) {
	var best ID
	bestDepth, bestSize := -1, -1
	found := false
	for _, gid := range s.GroupsContaining(nodeID) {
		depth := s.Depth(gid)
		size := len(s.groups[gid].NodeIDs)
		switch {
		case !found,
			depth > bestDepth,
			depth == bestDepth && size < bestSize,
			depth == bestDepth && size == bestSize && gid < best:
			best, bestDepth, bestSize = gid, depth, size
			found = true
		}
	}
	return best, found
}

// EffectiveDisabled reports whether the group is disabled once its own
// manual gate, its runtime-active state and its ancestors are all OR-ed
// together. Unknown groups are not disabled.
func (s *Store) EffectiveDisabled(id ID) bool {
	visited := make(map[ID]bool)
	cur := id
	for cur != "" && !visited[cur] {
		visited[cur] = true
		g, ok := s.groups[cur]
		if !ok {
			return false
		}
		if g.Disabled || !g.RuntimeActive {
			return true
		}
		cur = g.ParentID
	}
	return false
}

// DisabledGroupIDs returns the ids of every effectively disabled group,
// sorted.
func (s *Store) DisabledGroupIDs() []ID {
	var out []ID
	for gid := range s.groups {
		if s.EffectiveDisabled(gid) {
			out = append(out, gid)
		}
	}
	slices.SortFunc(out, func(a, b ID) int { return strings.Compare(string(a), string(b)) })
	return out
}

// DisabledNodeIDs returns the union of direct memberships of every
// effectively disabled group. Decoration nodes are added on top by the
// gate cascade, which knows the graph's decoration tags.
func (s *Store) DisabledNodeIDs() map[nodegraph.NodeID]bool {
	out := make(map[nodegraph.NodeID]bool)
	for gid, g := range s.groups {
		if !s.EffectiveDisabled(gid) {
			continue
		}
		for nodeID := range g.NodeIDs {
			out[nodeID] = true
		}
	}
	return out
}
