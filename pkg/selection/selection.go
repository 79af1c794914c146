// Package selection tracks the editor's selected node set and drives it
// from pointer sessions: click, group click, and marquee.
package selection

import (
	"slices"
	"strings"

	"github.com/matzehuels/corral/pkg/frame"
	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

// State names the pointer session's current phase.
type State int

const (
	// StateIdle means no pointer session is active.
	StateIdle State = iota
	// StatePressed means the pointer is down but has not crossed the drag
	// threshold, so the gesture could still resolve to a plain click.
	StatePressed
	// StateMarquee means the pointer is sweeping a selection rectangle.
	StateMarquee
)

// DragThreshold is the distance in graph units the pointer must travel
// before a press on empty canvas becomes a marquee.
const DragThreshold = 4.0

// Manager owns the selected set and projects it onto the view. All
// coordinates are graph coordinates; callers apply the viewport transform
// before handing pointer positions in.
type Manager struct {
	view     nodegraph.View
	store    *group.Store
	frames   *frame.Engine
	snapshot func() *nodegraph.Snapshot

	selected map[nodegraph.NodeID]bool
	version  uint64

	state      State
	anchor     nodegraph.Point
	marquee    nodegraph.Rect
	saved      map[nodegraph.NodeID]bool
	additive   bool
	pressedHit bool
}

// New creates an empty selection manager.
func New(view nodegraph.View, store *group.Store, frames *frame.Engine, snapshot func() *nodegraph.Snapshot) *Manager {
	return &Manager{
		view:     view,
		store:    store,
		frames:   frames,
		snapshot: snapshot,
		selected: make(map[nodegraph.NodeID]bool),
	}
}

// Selected returns the selected node ids, sorted.
func (m *Manager) Selected() []nodegraph.NodeID {
	out := make([]nodegraph.NodeID, 0, len(m.selected))
	for id := range m.selected {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b nodegraph.NodeID) int { return strings.Compare(string(a), string(b)) })
	return out
}

// IsSelected reports whether the node is selected.
func (m *Manager) IsSelected(id nodegraph.NodeID) bool { return m.selected[id] }

// Version increments on every selection change.
func (m *Manager) Version() uint64 { return m.version }

// State returns the pointer session phase.
func (m *Manager) State() State { return m.state }

// Marquee returns the active marquee rectangle, normalized.
func (m *Manager) Marquee() (nodegraph.Rect, bool) {
	if m.state != StateMarquee {
		return nodegraph.Rect{}, false
	}
	return m.marquee.Normalized(), true
}

// Replace swaps the selection for the given ids.
func (m *Manager) Replace(ids ...nodegraph.NodeID) {
	next := make(map[nodegraph.NodeID]bool, len(ids))
	for _, id := range ids {
		next[id] = true
	}
	m.apply(next)
}

// Toggle flips the given ids in and out of the selection.
func (m *Manager) Toggle(ids ...nodegraph.NodeID) {
	next := make(map[nodegraph.NodeID]bool, len(m.selected))
	for id := range m.selected {
		next[id] = true
	}
	for _, id := range ids {
		if next[id] {
			delete(next, id)
		} else {
			next[id] = true
		}
	}
	m.apply(next)
}

// Clear empties the selection.
func (m *Manager) Clear() { m.apply(map[nodegraph.NodeID]bool{}) }

// SelectGroup selects every regular member of the group's subtree.
func (m *Manager) SelectGroup(gid group.ID, additive bool) {
	ids := m.groupMembers(gid)
	if additive {
		m.Toggle(ids...)
		return
	}
	m.Replace(ids...)
}

// BeginPointer starts a pointer session at p. Hitting a node selects it
// (toggling when additive); hitting a frame selects its group; empty
// canvas arms a potential marquee.
func (m *Manager) BeginPointer(p nodegraph.Point, additive bool) {
	m.state = StatePressed
	m.anchor = p
	m.additive = additive
	m.saved = m.copySelected()
	m.pressedHit = false

	if id, ok := m.nodeAt(p); ok {
		m.pressedHit = true
		switch {
		case additive:
			m.Toggle(id)
		case !m.selected[id]:
			// Clicking an already selected node keeps the selection so a
			// multi-node drag can start from any member.
			m.Replace(id)
		}
		return
	}
	if m.frames != nil {
		if f, ok := frame.FrameAt(m.frames.Frames(), p); ok && f.GroupID != "" {
			m.pressedHit = true
			m.SelectGroup(f.GroupID, additive)
			return
		}
	}
}

// UpdatePointer advances the session. A press on empty canvas becomes a
// marquee once the pointer crosses the drag threshold; the marquee then
// live-updates the selection.
func (m *Manager) UpdatePointer(p nodegraph.Point) {
	switch m.state {
	case StatePressed:
		if m.pressedHit {
			return
		}
		if p.Sub(m.anchor).Manhattan() < DragThreshold {
			return
		}
		m.state = StateMarquee
		fallthrough
	case StateMarquee:
		m.marquee = rectBetween(m.anchor, p)
		m.applyMarquee()
	}
}

// EndPointer commits the session. A plain click on empty canvas clears the
// selection unless it was additive.
func (m *Manager) EndPointer(p nodegraph.Point) {
	switch m.state {
	case StateMarquee:
		m.marquee = rectBetween(m.anchor, p)
		m.applyMarquee()
	case StatePressed:
		if !m.pressedHit && !m.additive {
			m.Clear()
		}
	}
	m.reset()
}

// CancelPointer aborts the session and restores the selection that was in
// place when it began.
func (m *Manager) CancelPointer() {
	if m.state == StateIdle {
		return
	}
	if m.saved != nil {
		m.apply(m.saved)
	}
	m.reset()
}

func (m *Manager) reset() {
	m.state = StateIdle
	m.saved = nil
	m.pressedHit = false
}

func (m *Manager) applyMarquee() {
	next := make(map[nodegraph.NodeID]bool)
	if m.additive {
		for id := range m.saved {
			next[id] = true
		}
	}
	for _, id := range m.view.NodesInRect(m.marquee.Normalized()) {
		next[id] = true
	}
	m.apply(next)
}

// apply swaps the selected set and projects the difference onto the view.
// Deselected nodes fall back to normal; the gate cascade re-applies the
// disabled state on its next pass.
func (m *Manager) apply(next map[nodegraph.NodeID]bool) {
	changed := false
	for id := range m.selected {
		if !next[id] {
			m.view.SetNodeVisualState(id, nodegraph.VisualNormal)
			changed = true
		}
	}
	for id := range next {
		if !m.selected[id] {
			m.view.SetNodeVisualState(id, nodegraph.VisualSelected)
			changed = true
		}
	}
	if !changed {
		return
	}
	m.selected = make(map[nodegraph.NodeID]bool, len(next))
	for id := range next {
		m.selected[id] = true
	}
	m.version++
}

func (m *Manager) copySelected() map[nodegraph.NodeID]bool {
	out := make(map[nodegraph.NodeID]bool, len(m.selected))
	for id := range m.selected {
		out[id] = true
	}
	return out
}

// nodeAt hit-tests nodes front to back. Later ids win ties, matching the
// deterministic paint order of the reference view.
func (m *Manager) nodeAt(p nodegraph.Point) (nodegraph.NodeID, bool) {
	snap := m.snapshot()
	var hit nodegraph.NodeID
	found := false
	for _, node := range snap.Nodes() {
		if b, ok := m.view.NodeBounds(node.ID); ok && b.Contains(p) {
			hit = node.ID
			found = true
		}
	}
	return hit, found
}

func (m *Manager) groupMembers(gid group.ID) []nodegraph.NodeID {
	seen := make(map[nodegraph.NodeID]bool)
	var out []nodegraph.NodeID
	for _, sid := range m.store.Subtree(gid) {
		g, ok := m.store.Get(sid)
		if !ok {
			continue
		}
		for id := range g.NodeIDs {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func rectBetween(a, b nodegraph.Point) nodegraph.Rect {
	return nodegraph.Rect{Left: a.X, Top: a.Y, Width: b.X - a.X, Height: b.Y - a.Y}.Normalized()
}
