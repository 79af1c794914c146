package group

import (
	"slices"
	"strings"

	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

// Store holds every group in the document and is the single source of truth
// for membership, nesting, and gate flags.
type Store struct {
	groups  map[ID]*Group
	version uint64
	newID   func() ID

	subscribers map[int]func()
	nextSub     int
}

// NewStore creates an empty store. idFn generates ids for groups created
// from selections; nil uses random UUIDs.
func NewStore(idFn func() ID) *Store {
	if idFn == nil {
		idFn = NewID
	}
	return &Store{
		groups:      make(map[ID]*Group),
		newID:       idFn,
		subscribers: make(map[int]func()),
	}
}

// Version returns the store's mutation counter. It increments on every
// state change, so observers can cheaply detect staleness.
func (s *Store) Version() uint64 { return s.version }

// Subscribe registers fn to run synchronously after every mutation, in
// registration order. The returned function unsubscribes.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() { delete(s.subscribers, id) }
}

func (s *Store) notify() {
	s.version++
	ids := make([]int, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if fn, ok := s.subscribers[id]; ok {
			fn()
		}
	}
}

// Get returns a copy of the group with the given id.
func (s *Store) Get(id ID) (*Group, bool) {
	g, ok := s.groups[id]
	if !ok {
		return nil, false
	}
	return g.clone(), true
}

// Groups returns copies of every group, sorted by id.
func (s *Store) Groups() []*Group {
	out := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g.clone())
	}
	slices.SortFunc(out, func(a, b *Group) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out
}

// Len returns the number of groups.
func (s *Store) Len() int { return len(s.groups) }

// CreateFromSelection creates a group from the given node selection.
//
// Decoration nodes, unknown ids and duplicates are dropped up front; an
// empty result is a no-op returning ErrCodeInvalidSelection. When the
// selection spans more than one primary-group context the operation keeps
// only the majority context's nodes and still surfaces
// ErrCodeCrossGroup alongside the created group, so callers can report
// "cannot create cross-group composition" while the partial group stands.
//
// Loops are atomic: a loop intersecting the selection is pulled in
// wholesale when every one of its member nodes is eligible, and dropped
// from the selection entirely otherwise.
//
// The new group nests under the majority context (the selection's common
// primary group), or at the root when the nodes were ungrouped.
func (s *Store) CreateFromSelection(name string, nodeIDs []nodegraph.NodeID, snap *nodegraph.Snapshot, loops []nodegraph.Loop) (*Group, error) {
	eligible := s.filterSelectable(nodeIDs, snap)
	if len(eligible) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidSelection, "selection contains no groupable nodes")
	}

	majority, crossGroup := s.majorityContext(eligible)
	members := make(map[nodegraph.NodeID]bool)
	for _, id := range eligible {
		ctx, _ := s.PrimaryGroup(id)
		if ctx == majority {
			members[id] = true
		}
	}

	members = s.applyLoopAtomicity(members, majority, snap, loops)
	if len(members) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidSelection, "selection contains no groupable nodes")
	}

	g := &Group{
		ID:            s.newID(),
		ParentID:      majority,
		Name:          name,
		NodeIDs:       members,
		RuntimeActive: true,
	}
	if g.Name == "" {
		g.Name = "Group"
	}
	s.groups[g.ID] = g
	s.notify()

	if crossGroup {
		return g.clone(), errors.New(errors.ErrCodeCrossGroup, "cannot create cross-group composition")
	}
	return g.clone(), nil
}

// filterSelectable drops unknown ids, decoration nodes and duplicates.
func (s *Store) filterSelectable(nodeIDs []nodegraph.NodeID, snap *nodegraph.Snapshot) []nodegraph.NodeID {
	seen := make(map[nodegraph.NodeID]bool, len(nodeIDs))
	var out []nodegraph.NodeID
	for _, id := range nodeIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		n, ok := snap.Node(id)
		if !ok || n.IsDecoration() {
			continue
		}
		out = append(out, id)
	}
	return out
}

// majorityContext returns the most common primary-group context among the
// nodes and whether more than one context was present. Count ties resolve
// to the lexically smaller context id so the result is deterministic.
func (s *Store) majorityContext(nodeIDs []nodegraph.NodeID) (ID, bool) {
	counts := make(map[ID]int)
	for _, id := range nodeIDs {
		ctx, _ := s.PrimaryGroup(id)
		counts[ctx]++
	}
	var best ID
	bestCount := -1
	for ctx, count := range counts {
		if count > bestCount || (count == bestCount && ctx < best) {
			best, bestCount = ctx, count
		}
	}
	return best, len(counts) > 1
}

func (s *Store) applyLoopAtomicity(members map[nodegraph.NodeID]bool, majority ID, snap *nodegraph.Snapshot, loops []nodegraph.Loop) map[nodegraph.NodeID]bool {
	for _, loop := range loops {
		touched := false
		for _, id := range loop.NodeIDs {
			if members[id] {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}
		if s.loopEligible(loop, majority, snap) {
			for _, id := range loop.NodeIDs {
				members[id] = true
			}
			continue
		}
		for _, id := range loop.NodeIDs {
			delete(members, id)
		}
	}
	return members
}

func (s *Store) loopEligible(loop nodegraph.Loop, majority ID, snap *nodegraph.Snapshot) bool {
	for _, id := range loop.NodeIDs {
		n, ok := snap.Node(id)
		if !ok || n.IsDecoration() {
			return false
		}
		if ctx, _ := s.PrimaryGroup(id); ctx != majority {
			return false
		}
	}
	return true
}

// ToggleDisabled flips the group's manual gate. Unknown ids are a no-op.
func (s *Store) ToggleDisabled(id ID) error {
	g, ok := s.groups[id]
	if !ok {
		return errors.New(errors.ErrCodeGroupNotFound, "no group %q", id)
	}
	g.Disabled = !g.Disabled
	s.notify()
	return nil
}

// ToggleMinimized flips the group's compact presentation.
func (s *Store) ToggleMinimized(id ID) error {
	g, ok := s.groups[id]
	if !ok {
		return errors.New(errors.ErrCodeGroupNotFound, "no group %q", id)
	}
	g.Minimized = !g.Minimized
	s.notify()
	return nil
}

// Rename sets the group's display name. Blank names are a no-op.
func (s *Store) Rename(id ID, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New(errors.ErrCodeInvalidName, "group name must not be blank")
	}
	g, ok := s.groups[id]
	if !ok {
		return errors.New(errors.ErrCodeGroupNotFound, "no group %q", id)
	}
	if g.Name == name {
		return nil
	}
	g.Name = name
	s.notify()
	return nil
}

// SetRuntimeActive writes the gate node's evaluated output back into the
// group. Returns true when the value changed.
func (s *Store) SetRuntimeActive(id ID, active bool) bool {
	g, ok := s.groups[id]
	if !ok || g.RuntimeActive == active {
		return false
	}
	g.RuntimeActive = active
	s.notify()
	return true
}

// AddMembers adds node ids to a group's direct membership.
func (s *Store) AddMembers(id ID, nodeIDs ...nodegraph.NodeID) error {
	g, ok := s.groups[id]
	if !ok {
		return errors.New(errors.ErrCodeGroupNotFound, "no group %q", id)
	}
	changed := false
	for _, n := range nodeIDs {
		if !g.NodeIDs[n] {
			g.NodeIDs[n] = true
			changed = true
		}
	}
	if changed {
		s.notify()
	}
	return nil
}

// RemoveMembers removes node ids from a group's direct membership.
func (s *Store) RemoveMembers(id ID, nodeIDs ...nodegraph.NodeID) error {
	g, ok := s.groups[id]
	if !ok {
		return errors.New(errors.ErrCodeGroupNotFound, "no group %q", id)
	}
	changed := false
	for _, n := range nodeIDs {
		if g.NodeIDs[n] {
			delete(g.NodeIDs, n)
			changed = true
		}
	}
	if changed {
		s.notify()
	}
	return nil
}

// Disassemble removes the group and every descendant group. Member nodes
// stay in the graph; they simply lose their grouping. Returns the removed
// group ids, the target first.
func (s *Store) Disassemble(id ID) []ID {
	if _, ok := s.groups[id]; !ok {
		return nil
	}
	removed := s.Subtree(id)
	for _, gid := range removed {
		delete(s.groups, gid)
	}
	s.notify()
	return removed
}

// SetGroups replaces the entire store content, used on document load.
func (s *Store) SetGroups(groups []*Group) {
	s.groups = make(map[ID]*Group, len(groups))
	for _, g := range groups {
		s.groups[g.ID] = g.clone()
	}
	s.notify()
}

// AppendGroups merges groups into the store, used on paste. Groups with
// ids already present are skipped; callers paste through [RemapIDs] to
// avoid collisions.
func (s *Store) AppendGroups(groups []*Group) []ID {
	var added []ID
	for _, g := range groups {
		if _, exists := s.groups[g.ID]; exists {
			continue
		}
		s.groups[g.ID] = g.clone()
		added = append(added, g.ID)
	}
	if len(added) > 0 {
		s.notify()
	}
	return added
}

// ReconcileAfterNodeRemoval drops node ids that no longer exist in the
// graph (or turned into decorations) from every group's membership, then
// deletes groups whose transitive membership went empty. This heals drift
// from external collaborators deleting nodes; it never errors.
//
// Returns the ids of deleted groups. Callers must re-run the boundary
// normalizer and the frame geometry pass afterwards.
func (s *Store) ReconcileAfterNodeRemoval(snap *nodegraph.Snapshot) []ID {
	changed := false
	for _, g := range s.groups {
		for nodeID := range g.NodeIDs {
			n, ok := snap.Node(nodeID)
			if !ok || n.IsDecoration() {
				delete(g.NodeIDs, nodeID)
				changed = true
			}
		}
	}

	var removed []ID
	for {
		victim := ID("")
		for id := range s.groups {
			if s.transitiveMemberCount(id) == 0 {
				if victim == "" || id < victim {
					victim = id
				}
			}
		}
		if victim == "" {
			break
		}
		removed = append(removed, s.Subtree(victim)...)
		for _, gid := range s.Subtree(victim) {
			delete(s.groups, gid)
		}
		changed = true
	}

	if changed {
		s.notify()
	}
	return removed
}

func (s *Store) transitiveMemberCount(id ID) int {
	count := 0
	for _, gid := range s.Subtree(id) {
		if g, ok := s.groups[gid]; ok {
			count += len(g.NodeIDs)
		}
	}
	return count
}
