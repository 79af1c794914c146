// Package frame computes the derived bounding frames rendered around groups
// and loops. Frames are pure projections of group membership and current
// node positions; they are never stored and never authoritative.
//
// Recomputation is frame-coalesced: mutations mark the engine dirty and a
// single geometry pass runs on the next tick, folding bursts of individual
// node moves into one pass. The batch pipeline and tests flush explicitly.
package frame

import (
	"math"
	"slices"
	"strings"

	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
	"github.com/matzehuels/corral/pkg/schedule"
)

// Frame is the on-screen bounding box of a group or loop.
// Exactly one of GroupID and LoopID is set.
type Frame struct {
	GroupID group.ID
	LoopID  string

	Name   string
	Bounds nodegraph.Rect
	// Depth is the nesting depth (roots are 0); renderers draw deeper
	// frames on top, and hit testing prefers the deepest, smallest frame.
	Depth             int
	EffectiveDisabled bool
	Minimized         bool
}

// Padding is the asymmetric inflation applied around a group's content.
// Top padding is larger to leave room for the frame header.
type Padding struct {
	Left, Top, Right, Bottom float64
}

// Options tune the geometry pass.
type Options struct {
	// RootPadding inflates top-level group frames.
	RootPadding Padding
	// SubPadding inflates nested group frames; smaller than RootPadding
	// so nested frames stay visually inside their parents.
	SubPadding Padding
	// LoopPadding inflates a wholly-contained loop's box before it joins
	// the group union.
	LoopPadding float64
	// SelectionPadding inflates marquee/selection bounds.
	SelectionPadding float64

	// Compact box metrics for minimized groups.
	CompactWidth      float64
	CompactRowHeight  float64
	CompactHeaderSize float64
}

// DefaultOptions returns the stock geometry tuning.
func DefaultOptions() Options {
	return Options{
		RootPadding:       Padding{Left: 20, Top: 44, Right: 20, Bottom: 20},
		SubPadding:        Padding{Left: 12, Top: 32, Right: 12, Bottom: 12},
		LoopPadding:       16,
		SelectionPadding:  8,
		CompactWidth:      160,
		CompactRowHeight:  22,
		CompactHeaderSize: 28,
	}
}

// Engine computes frames from the group store, the view adapter's node
// metrics and the loop provider.
type Engine struct {
	store *group.Store
	view  nodegraph.View
	loops nodegraph.LoopProvider
	opts  Options

	frames    []Frame
	version   uint64
	coalescer *schedule.Coalescer
	snapshot  func() *nodegraph.Snapshot
}

// New creates a geometry engine. snapshot supplies the graph view for each
// pass; loops may be nil when the host has no loop system. The ticker
// drives deferred recomputation.
func New(store *group.Store, view nodegraph.View, loops nodegraph.LoopProvider, snapshot func() *nodegraph.Snapshot, opts Options, ticker schedule.Ticker) *Engine {
	e := &Engine{store: store, view: view, loops: loops, opts: opts, snapshot: snapshot}
	e.coalescer = schedule.NewCoalescer(ticker, e.recompute)
	return e
}

// Invalidate marks the frame list stale; the next tick recomputes it once.
func (e *Engine) Invalidate() { e.coalescer.Mark() }

// Flush recomputes immediately if stale, for synchronous flows.
func (e *Engine) Flush() { e.coalescer.Flush() }

// Stop cancels any pending recompute. Called on teardown.
func (e *Engine) Stop() { e.coalescer.Stop() }

// Frames returns the last computed frame list, deepest-first within equal
// depth sorted by id so render order is stable.
func (e *Engine) Frames() []Frame { return e.frames }

// Version increments on every completed geometry pass.
func (e *Engine) Version() uint64 { return e.version }

func (e *Engine) recompute() {
	snap := e.snapshot()
	if snap == nil {
		e.frames = nil
		e.version++
		return
	}
	e.frames = e.ComputeFrames(snap)
	e.version++
}

// ComputeFrames runs one full geometry pass over the given snapshot and
// returns the frame list without touching the engine's cached state beyond
// the pass-local bounds cache. Groups and loops with no measurable content
// produce no frame.
func (e *Engine) ComputeFrames(snap *nodegraph.Snapshot) []Frame {
	cache := make(map[group.ID]nodegraph.Rect)
	var frames []Frame

	for _, g := range e.store.Groups() {
		bounds, ok := e.groupBounds(g.ID, snap, cache)
		if !ok {
			continue
		}
		frames = append(frames, Frame{
			GroupID:           g.ID,
			Name:              g.Name,
			Bounds:            bounds,
			Depth:             e.store.Depth(g.ID),
			EffectiveDisabled: e.store.EffectiveDisabled(g.ID),
			Minimized:         g.Minimized,
		})
	}

	if e.loops != nil {
		for _, loop := range e.loops.Loops() {
			bounds, ok := e.loopBounds(loop)
			if !ok {
				continue
			}
			frames = append(frames, Frame{
				LoopID: loop.ID,
				Bounds: bounds,
			})
		}
	}

	slices.SortFunc(frames, func(a, b Frame) int {
		if a.Depth != b.Depth {
			return a.Depth - b.Depth
		}
		if c := strings.Compare(string(a.GroupID), string(b.GroupID)); c != 0 {
			return c
		}
		return strings.Compare(a.LoopID, b.LoopID)
	})
	return frames
}

// groupBounds computes one group's bounds with an explicit depth-first
// stack over the group arena. A visiting set stands in for recursion-stack
// cycle detection; the cache is per pass, keyed by group id.
func (e *Engine) groupBounds(root group.ID, snap *nodegraph.Snapshot, cache map[group.ID]nodegraph.Rect) (nodegraph.Rect, bool) {
	if b, ok := cache[root]; ok {
		return b, b.Width > 0 || b.Height > 0
	}

	type frameState int
	const (
		discovered frameState = iota
		expanded
	)
	state := make(map[group.ID]frameState)
	stack := []group.ID{root}
	visiting := make(map[group.ID]bool)

	for len(stack) > 0 {
		id := stack[len(stack)-1]

		if _, done := cache[id]; done {
			stack = stack[:len(stack)-1]
			continue
		}

		g, ok := e.store.Get(id)
		if !ok {
			cache[id] = nodegraph.Rect{}
			stack = stack[:len(stack)-1]
			continue
		}

		// Minimized groups are leaves: their compact box ignores members
		// and children alike.
		if g.Minimized {
			cache[id] = e.compactBounds(g, snap)
			stack = stack[:len(stack)-1]
			continue
		}

		if state[id] == discovered {
			state[id] = expanded
			visiting[id] = true
			for _, child := range e.store.Children(id) {
				if visiting[child] {
					continue // cycle guard
				}
				if _, done := cache[child]; !done {
					stack = append(stack, child)
				}
			}
			continue
		}

		// Children resolved; union members, loops and child frames.
		cache[id] = e.unionBounds(g, snap, cache)
		delete(visiting, id)
		stack = stack[:len(stack)-1]
	}

	b := cache[root]
	return b, b.Width > 0 || b.Height > 0
}

func (e *Engine) unionBounds(g *group.Group, snap *nodegraph.Snapshot, cache map[group.ID]nodegraph.Rect) nodegraph.Rect {
	var union nodegraph.Rect
	have := false

	add := func(r nodegraph.Rect) {
		if !have {
			union = r
			have = true
			return
		}
		union = union.Union(r)
	}

	for _, nodeID := range g.Members() {
		n, ok := snap.Node(nodeID)
		if !ok || n.IsDecoration() {
			continue
		}
		if b, ok := e.view.NodeBounds(nodeID); ok {
			add(b)
		}
	}

	if e.loops != nil {
		for _, loop := range e.loops.Loops() {
			if !e.loopContained(loop, g.ID) {
				continue
			}
			if b, ok := e.loopBounds(loop); ok {
				p := e.opts.LoopPadding
				add(b.Inflate(p, p, p, p))
			}
		}
	}

	for _, child := range e.store.Children(g.ID) {
		if b, ok := cache[child]; ok && (b.Width > 0 || b.Height > 0) {
			add(b)
		}
	}

	if !have {
		return nodegraph.Rect{}
	}

	pad := e.opts.RootPadding
	if e.store.Depth(g.ID) > 0 {
		pad = e.opts.SubPadding
	}
	return union.Inflate(pad.Left, pad.Top, pad.Right, pad.Bottom)
}

// compactBounds produces the fixed-size box shown for a minimized group:
// centered on the mean position of the group's non-decoration members,
// tall enough for the larger of the group's input/output proxy port counts
// (minimum one row).
func (e *Engine) compactBounds(g *group.Group, snap *nodegraph.Snapshot) nodegraph.Rect {
	var sumX, sumY float64
	count := 0
	for _, nodeID := range g.Members() {
		n, ok := snap.Node(nodeID)
		if !ok || n.IsDecoration() {
			continue
		}
		if b, ok := e.view.NodeBounds(nodeID); ok {
			c := b.Center()
			sumX += c.X
			sumY += c.Y
			count++
		}
	}
	if count == 0 {
		return nodegraph.Rect{}
	}

	inputs, outputs := 0, 0
	for _, n := range snap.Nodes() {
		if n.Kind != nodegraph.KindProxy || n.Proxy == nil || n.Proxy.Group != string(g.ID) {
			continue
		}
		if n.Proxy.Direction == nodegraph.DirectionInput {
			inputs++
		} else {
			outputs++
		}
	}
	rows := max(inputs, outputs)
	if rows < 1 {
		rows = 1
	}

	w := e.opts.CompactWidth
	h := e.opts.CompactHeaderSize + float64(rows)*e.opts.CompactRowHeight
	cx, cy := sumX/float64(count), sumY/float64(count)
	return nodegraph.Rect{Left: cx - w/2, Top: cy - h/2, Width: w, Height: h}
}

func (e *Engine) loopContained(loop nodegraph.Loop, id group.ID) bool {
	if len(loop.NodeIDs) == 0 {
		return false
	}
	for _, nodeID := range loop.NodeIDs {
		gid, ok := e.store.PrimaryGroup(nodeID)
		if !ok {
			return false
		}
		if gid != id && !e.store.IsDescendant(gid, id) {
			return false
		}
	}
	return true
}

func (e *Engine) loopBounds(loop nodegraph.Loop) (nodegraph.Rect, bool) {
	var union nodegraph.Rect
	have := false
	for _, nodeID := range loop.NodeIDs {
		if b, ok := e.view.NodeBounds(nodeID); ok {
			if !have {
				union, have = b, true
			} else {
				union = union.Union(b)
			}
		}
	}
	return union, have
}

// SelectionBounds returns the axis-aligned union of the given nodes' boxes
// inflated by the selection padding. No recursion, no group logic; marquee
// rendering and selection frames share this primitive.
func (e *Engine) SelectionBounds(nodeIDs []nodegraph.NodeID) (nodegraph.Rect, bool) {
	var union nodegraph.Rect
	have := false
	for _, id := range nodeIDs {
		if b, ok := e.view.NodeBounds(id); ok {
			if !have {
				union, have = b, true
			} else {
				union = union.Union(b)
			}
		}
	}
	if !have {
		return nodegraph.Rect{}, false
	}
	p := e.opts.SelectionPadding
	return union.Inflate(p, p, p, p), true
}

// FrameAt returns the frame whose bounds contain the point, preferring the
// most deeply nested and, on equal depth, the smallest area. Used by edge
// finding and header hit-testing.
func FrameAt(frames []Frame, p nodegraph.Point) (Frame, bool) {
	best := Frame{}
	bestArea := math.Inf(1)
	found := false
	for _, f := range frames {
		if !f.Bounds.Contains(p) {
			continue
		}
		if !found || f.Depth > best.Depth || (f.Depth == best.Depth && f.Bounds.Area() < bestArea) {
			best = f
			bestArea = f.Bounds.Area()
			found = true
		}
	}
	return best, found
}
