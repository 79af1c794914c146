// Package collision clears dropped nodes out of frames they landed in.
// After a drag releases, any pre-existing frame that now holds a foreign
// node's center pushes the dropped unit back out along one axis by the
// smallest distance that clears its bounds.
package collision

import (
	"slices"
	"strings"

	"github.com/matzehuels/corral/pkg/frame"
	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
	"github.com/matzehuels/corral/pkg/schedule"
)

// Options tunes the resolver.
type Options struct {
	// Margin is the gap kept between a displaced unit and the frame it
	// cleared.
	Margin float64
	// AnimationFrames is the tick count displacements animate over.
	// Values below 2 move the unit in a single step.
	AnimationFrames int
	// MaxMoves caps how many units one drop may displace.
	MaxMoves int
}

// DefaultOptions returns the editor's stock tuning.
func DefaultOptions() Options {
	return Options{Margin: 12, AnimationFrames: 8, MaxMoves: 16}
}

// Unit identifies one displaced rigid unit. Exactly one field is set:
// GroupID when a whole group frame moved, LoopID when a whole loop moved,
// NodeID when a lone node moved.
type Unit struct {
	GroupID group.ID
	LoopID  string
	NodeID  nodegraph.NodeID
}

func (u Unit) key() string {
	switch {
	case u.GroupID != "":
		return "group:" + string(u.GroupID)
	case u.LoopID != "":
		return "loop:" + u.LoopID
	default:
		return "node:" + string(u.NodeID)
	}
}

// Resolver displaces dropped nodes out of pre-existing frames. When a
// dragged node belongs to a group or loop whose members all moved with it,
// the whole frame shifts as one rigid unit so internal layout survives. A
// unit moves at most once per pass, which keeps the pass from oscillating.
type Resolver struct {
	store    *group.Store
	frames   *frame.Engine
	view     nodegraph.View
	snapshot func() *nodegraph.Snapshot
	loops    nodegraph.LoopProvider
	ticker   schedule.Ticker
	opts     Options

	translating int
	anims       map[string]*schedule.Animation
}

// New creates a resolver. loops may be nil when the graph has no loop
// frames. ticker may be nil; displacements are then applied without
// animation.
func New(store *group.Store, frames *frame.Engine, view nodegraph.View, snapshot func() *nodegraph.Snapshot, loops nodegraph.LoopProvider, ticker schedule.Ticker, opts Options) *Resolver {
	return &Resolver{
		store:    store,
		frames:   frames,
		view:     view,
		snapshot: snapshot,
		loops:    loops,
		ticker:   ticker,
		opts:     opts,
		anims:    make(map[string]*schedule.Animation),
	}
}

// Translating reports whether the resolver is currently moving nodes.
// Selection and persistence observers use it to tell programmatic
// translation apart from user drags.
func (r *Resolver) Translating() bool { return r.translating > 0 }

// frameBox pairs a frame with the node ids it owns.
type frameBox struct {
	unit    Unit
	bounds  nodegraph.Rect
	members map[nodegraph.NodeID]bool
}

// movedUnit is one rigid unit of the dropped set with its live geometry.
// rect and centers shift as the unit is displaced, so later offense checks
// see where the unit actually is rather than where the drag left it.
type movedUnit struct {
	Unit
	ids     []nodegraph.NodeID
	rect    nodegraph.Rect
	centers map[nodegraph.NodeID]nodegraph.Point
	moved   bool
}

// ResolveAfterDrop clears the released nodes out of every frame they
// landed in. moved is the dragged node set: a frame whose members all
// moved with the drag displaces as one rigid unit, every other frame,
// group and loop alike, stays put and repels foreign node centers from
// its bounds. Returns the displaced units in move order.
func (r *Resolver) ResolveAfterDrop(moved []nodegraph.NodeID) []Unit {
	if len(moved) == 0 {
		return nil
	}
	r.frames.Invalidate()
	r.frames.Flush()
	snap := r.snapshot()

	movedSet := make(map[nodegraph.NodeID]bool, len(moved))
	for _, id := range moved {
		movedSet[id] = true
	}

	obstacles, movers := r.partition(snap, movedSet)
	units := r.buildUnits(movedSet, movers)

	var order []Unit
	for len(order) < r.opts.MaxMoves {
		u, ob := firstOffense(units, obstacles)
		if u == nil {
			break
		}
		delta := separation(ob.bounds, u.rect, r.opts.Margin)
		r.translateUnit(u.key(), u.ids, delta)
		u.rect = u.rect.Translate(delta.X, delta.Y)
		for id, c := range u.centers {
			u.centers[id] = c.Add(delta.X, delta.Y)
		}
		u.moved = true
		order = append(order, u.Unit)
	}

	if len(order) > 0 {
		r.frames.Invalidate()
	}
	return order
}

// GroupNodeIDs returns every node a group's frame owns: regular members
// of the subtree plus decorations tagged to any group in it. Hosts use it
// to build the moved set of a header drag.
func (r *Resolver) GroupNodeIDs(gid group.ID) []nodegraph.NodeID {
	return r.frameNodeIDs(gid, r.snapshot())
}

// partition splits the current frames into obstacles and movers. A frame
// whose members all moved is part of the drop; everything else stays put
// and must be cleared. Obstacles come back smallest area first so nested
// frames are enforced before their parents.
func (r *Resolver) partition(snap *nodegraph.Snapshot, movedSet map[nodegraph.NodeID]bool) (obstacles, movers []*frameBox) {
	loopNodes := make(map[string][]nodegraph.NodeID)
	if r.loops != nil {
		for _, l := range r.loops.Loops() {
			loopNodes[l.ID] = l.NodeIDs
		}
	}

	for _, f := range r.frames.Frames() {
		box := &frameBox{bounds: f.Bounds, members: make(map[nodegraph.NodeID]bool)}
		var ids []nodegraph.NodeID
		if f.GroupID != "" {
			box.unit = Unit{GroupID: f.GroupID}
			ids = r.frameNodeIDs(f.GroupID, snap)
		} else {
			box.unit = Unit{LoopID: f.LoopID}
			ids = loopNodes[f.LoopID]
		}

		allMoved := len(ids) > 0
		for _, id := range ids {
			box.members[id] = true
			if !movedSet[id] {
				allMoved = false
			}
		}
		if allMoved {
			movers = append(movers, box)
		} else {
			obstacles = append(obstacles, box)
		}
	}

	slices.SortFunc(obstacles, func(a, b *frameBox) int {
		if d := a.bounds.Area() - b.bounds.Area(); d != 0 {
			if d < 0 {
				return -1
			}
			return 1
		}
		return strings.Compare(a.unit.key(), b.unit.key())
	})
	return obstacles, movers
}

// buildUnits folds the moved set into rigid units. Mover frames claim
// their members largest first, so a nested frame rides along inside the
// outermost moved frame instead of shearing out of it; leftover nodes
// move alone.
func (r *Resolver) buildUnits(movedSet map[nodegraph.NodeID]bool, movers []*frameBox) []*movedUnit {
	slices.SortFunc(movers, func(a, b *frameBox) int {
		if d := len(b.members) - len(a.members); d != 0 {
			return d
		}
		return strings.Compare(a.unit.key(), b.unit.key())
	})

	claimed := make(map[nodegraph.NodeID]bool)
	var units []*movedUnit
	for _, m := range movers {
		nested := false
		for id := range m.members {
			if claimed[id] {
				nested = true
				break
			}
		}
		if nested {
			continue
		}
		u := &movedUnit{Unit: m.unit, rect: m.bounds, centers: make(map[nodegraph.NodeID]nodegraph.Point)}
		for id := range m.members {
			claimed[id] = true
			u.ids = append(u.ids, id)
			if b, ok := r.view.NodeBounds(id); ok {
				u.centers[id] = b.Center()
			}
		}
		sortNodeIDs(u.ids)
		units = append(units, u)
	}

	var loose []nodegraph.NodeID
	for id := range movedSet {
		if !claimed[id] {
			loose = append(loose, id)
		}
	}
	sortNodeIDs(loose)
	for _, id := range loose {
		b, ok := r.view.NodeBounds(id)
		if !ok {
			continue
		}
		units = append(units, &movedUnit{
			Unit:    Unit{NodeID: id},
			ids:     []nodegraph.NodeID{id},
			rect:    b,
			centers: map[nodegraph.NodeID]nodegraph.Point{id: b.Center()},
		})
	}
	return units
}

// firstOffense returns the first not-yet-moved unit holding a node whose
// center sits inside a frame that never owned it, paired with that frame.
func firstOffense(units []*movedUnit, obstacles []*frameBox) (*movedUnit, *frameBox) {
	for _, ob := range obstacles {
		for _, u := range units {
			if u.moved {
				continue
			}
			for _, id := range u.ids {
				c, ok := u.centers[id]
				if !ok || ob.members[id] {
					continue
				}
				if ob.bounds.Contains(c) {
					return u, ob
				}
			}
		}
	}
	return nil, nil
}

// separation returns the smallest single-axis vector that moves the
// dropped rect clear of the obstacle with the given margin. Candidates
// are evaluated on both axes in both directions; ties prefer the
// horizontal push.
func separation(obstacle, dropped nodegraph.Rect, margin float64) nodegraph.Point {
	candidates := []nodegraph.Point{
		{X: obstacle.Right() + margin - dropped.Left},  // push right
		{X: obstacle.Left - margin - dropped.Right()},  // push left
		{Y: obstacle.Bottom() + margin - dropped.Top},  // push down
		{Y: obstacle.Top - margin - dropped.Bottom()},  // push up
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Manhattan() < best.Manhattan() {
			best = c
		}
	}
	return best
}

// translateUnit shifts the unit's nodes by delta. With a ticker the shift
// eases out over AnimationFrames ticks; the final frame always lands on
// the exact target.
func (r *Resolver) translateUnit(key string, ids []nodegraph.NodeID, delta nodegraph.Point) {
	start := make(map[nodegraph.NodeID]nodegraph.Point, len(ids))
	for _, id := range ids {
		if p, ok := r.view.NodePosition(id); ok {
			start[id] = p
		}
	}
	if len(start) == 0 {
		return
	}

	apply := func(progress float64) {
		eased := easeOutCubic(progress)
		for id, p := range start {
			r.view.SetNodePosition(id, p.Add(delta.X*eased, delta.Y*eased))
		}
		r.frames.Invalidate()
	}

	if r.ticker == nil || r.opts.AnimationFrames < 2 {
		r.translating++
		apply(1)
		r.translating--
		return
	}

	if prev, ok := r.anims[key]; ok {
		prev.Cancel()
		r.translating--
	}
	r.translating++
	anim := schedule.NewAnimation(r.ticker, r.opts.AnimationFrames, apply, func() {
		r.translating--
		delete(r.anims, key)
	})
	r.anims[key] = anim
	anim.Start()
}

// frameNodeIDs returns every node the frame owns: regular members of the
// group's subtree plus decorations tagged to any group in it.
func (r *Resolver) frameNodeIDs(gid group.ID, snap *nodegraph.Snapshot) []nodegraph.NodeID {
	inSub := make(map[group.ID]bool)
	for _, sid := range r.store.Subtree(gid) {
		inSub[sid] = true
	}

	var out []nodegraph.NodeID
	for _, node := range snap.Nodes() {
		if node.IsDecoration() {
			tag := group.ID(node.GroupTag)
			if node.Kind == nodegraph.KindProxy && node.Proxy != nil {
				tag = group.ID(node.Proxy.Group)
			}
			if inSub[tag] {
				out = append(out, node.ID)
			}
			continue
		}
		if primary, ok := r.store.PrimaryGroup(node.ID); ok && inSub[primary] {
			out = append(out, node.ID)
		}
	}
	return out
}

// Stop cancels every in-flight displacement animation.
func (r *Resolver) Stop() {
	for key, anim := range r.anims {
		anim.Cancel()
		r.translating--
		delete(r.anims, key)
	}
}

func sortNodeIDs(ids []nodegraph.NodeID) {
	slices.SortFunc(ids, func(a, b nodegraph.NodeID) int { return strings.Compare(string(a), string(b)) })
}

func easeOutCubic(t float64) float64 {
	u := 1 - t
	return 1 - u*u*u
}
