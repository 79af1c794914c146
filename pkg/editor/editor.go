// Package editor assembles the grouping components into one live session:
// a group store, boundary normalizer, frame geometry engine, gate cascade,
// collision resolver, selection manager and compound converter sharing a
// single graph engine and a single tick source.
//
// The session owns the edit-pipeline ordering. Every group store mutation
// runs, in order: disabled-set recompute, highlight schedule, frame
// geometry schedule, boundary normalization schedule. The deferred passes
// coalesce on the ticker, so a burst of mutations inside one tick costs one
// pass each.
package editor

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/matzehuels/corral/pkg/boundary"
	"github.com/matzehuels/corral/pkg/catalog"
	"github.com/matzehuels/corral/pkg/collision"
	"github.com/matzehuels/corral/pkg/compound"
	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/frame"
	"github.com/matzehuels/corral/pkg/gate"
	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
	"github.com/matzehuels/corral/pkg/observability"
	"github.com/matzehuels/corral/pkg/schedule"
	"github.com/matzehuels/corral/pkg/selection"
)

// Options tunes a session. The zero value is usable: geometry and collision
// fall back to their package defaults, the catalog to an in-memory store.
type Options struct {
	// Loops exposes the externally owned loop frames. May be nil.
	Loops nodegraph.LoopProvider
	// Retractor stops deployed loops when a covering group disables.
	// May be nil.
	Retractor nodegraph.LoopRetractor
	// Catalog stores compound definitions. Nil uses an in-memory store.
	Catalog catalog.Store
	// Confirm guards destructive compound conversions. Nil confirms all.
	Confirm compound.ConfirmFunc
	// Geometry tunes the frame pass. Zero uses [frame.DefaultOptions].
	Geometry frame.Options
	// Collision tunes drop resolution. Zero uses
	// [collision.DefaultOptions].
	Collision collision.Options
}

// Session is the live editing surface over one graph. All methods are
// single-threaded; the host drives them from its event loop and ticks the
// scheduler between events.
type Session struct {
	engine   nodegraph.Engine
	view     nodegraph.View
	registry compound.PortRegistry
	catalog  catalog.Store
	loops    nodegraph.LoopProvider
	collOpts collision.Options

	store     *group.Store
	frames    *frame.Engine
	norm      *boundary.Normalizer
	cascade   *gate.Cascade
	resolver  *collision.Resolver
	selection *selection.Manager
	converter *compound.Converter

	normalizePass *schedule.Coalescer
	highlightPass *schedule.Coalescer

	disabled        map[nodegraph.NodeID]bool
	disabledVersion uint64

	violationSubs map[int]func(error)
	nextViolation int

	lastReport boundary.Report

	syncing     bool
	unsubscribe func()
}

// New wires a session over the host's engine, view and type registry.
// ticker may be nil; deferred passes then run only through the synchronous
// entry points (CreateGroup, Normalize, ResolveDrop).
func New(engine nodegraph.Engine, view nodegraph.View, registry compound.PortRegistry, ticker schedule.Ticker, opts Options) *Session {
	if ticker == nil {
		ticker = schedule.NewManualTicker()
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.NewMemoryStore()
	}
	if opts.Geometry == (frame.Options{}) {
		opts.Geometry = frame.DefaultOptions()
	}
	if opts.Collision == (collision.Options{}) {
		opts.Collision = collision.DefaultOptions()
	}

	s := &Session{
		engine:        engine,
		view:          view,
		registry:      registry,
		catalog:       opts.Catalog,
		loops:         opts.Loops,
		collOpts:      opts.Collision,
		disabled:      make(map[nodegraph.NodeID]bool),
		violationSubs: make(map[int]func(error)),
	}
	s.store = group.NewStore(nil)
	s.frames = frame.New(s.store, view, opts.Loops, s.Snapshot, opts.Geometry, ticker)
	s.norm = boundary.New(engine, s.store, registry, nil)
	s.cascade = gate.New(engine, s.store, view, opts.Loops, opts.Retractor)
	s.resolver = collision.New(s.store, s.frames, view, s.Snapshot, opts.Loops, ticker, opts.Collision)
	s.selection = selection.New(view, s.store, s.frames, s.Snapshot)
	s.converter = compound.New(engine, s.store, s.frames, s.norm, opts.Catalog, registry, opts.Confirm)
	s.normalizePass = schedule.NewCoalescer(ticker, s.runNormalize)
	s.highlightPass = schedule.NewCoalescer(ticker, s.applyHighlights)
	s.unsubscribe = s.store.Subscribe(s.onStoreChange)
	return s
}

// Store exposes the observable group hierarchy.
func (s *Session) Store() *group.Store { return s.store }

// Frames exposes the observable frame list.
func (s *Session) Frames() *frame.Engine { return s.frames }

// Selection exposes the pointer-session selection state.
func (s *Session) Selection() *selection.Manager { return s.selection }

// Catalog exposes the compound-definition store.
func (s *Session) Catalog() catalog.Store { return s.catalog }

// Snapshot exports the engine's current graph.
func (s *Session) Snapshot() *nodegraph.Snapshot {
	return nodegraph.NewSnapshot(s.engine.Export())
}

// Report returns the most recent normalizer report.
func (s *Session) Report() boundary.Report { return s.lastReport }

// ObserveViolations registers fn to receive policy-violation errors as
// they surface (cross-group composition, gate feedback, cyclic
// definitions). The returned function unsubscribes.
func (s *Session) ObserveViolations(fn func(error)) (unsubscribe func()) {
	id := s.nextViolation
	s.nextViolation++
	s.violationSubs[id] = fn
	return func() { delete(s.violationSubs, id) }
}

// DisabledNodes returns the current effective-disabled node id set, sorted.
// The execution engine consumes this to skip gated nodes.
func (s *Session) DisabledNodes() []nodegraph.NodeID {
	out := make([]nodegraph.NodeID, 0, len(s.disabled))
	for id := range s.disabled {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b nodegraph.NodeID) int { return strings.Compare(string(a), string(b)) })
	return out
}

// IsNodeDisabled reports whether a node is in the effective-disabled set.
func (s *Session) IsNodeDisabled(id nodegraph.NodeID) bool { return s.disabled[id] }

// DisabledVersion increments whenever the disabled-node set changes.
func (s *Session) DisabledVersion() uint64 { return s.disabledVersion }

// CreateGroup corrals the given nodes into a new group. Creation is
// synchronous: boundary wiring and frame geometry are current when it
// returns, so the frame appears within the same gesture.
func (s *Session) CreateGroup(name string, nodeIDs []nodegraph.NodeID) (*group.Group, error) {
	var loops []nodegraph.Loop
	if s.loops != nil {
		loops = s.loops.Loops()
	}
	g, err := s.store.CreateFromSelection(name, nodeIDs, s.Snapshot(), loops)
	if err != nil {
		// Cross-group composition still creates a trimmed group; surface
		// the violation and keep going when one came back.
		s.reportViolation(err)
		if g == nil {
			return nil, err
		}
	}
	s.Normalize()
	s.frames.Flush()
	return g, err
}

// CreateGroupFromSelection corrals the current selection.
func (s *Session) CreateGroupFromSelection(name string) (*group.Group, error) {
	return s.CreateGroup(name, s.selection.Selected())
}

// Disassemble removes a group and its descendants, keeping the member
// nodes. Returns the removed group ids.
func (s *Session) Disassemble(id group.ID) []group.ID {
	return s.store.Disassemble(id)
}

// Rename renames a group and keeps the backing compound definition's name
// in sync when the group is an expanded instance.
func (s *Session) Rename(ctx context.Context, id group.ID, name string) error {
	if err := s.store.Rename(id, name); err != nil {
		return err
	}
	return s.converter.SyncDefinitionName(ctx, id)
}

// ToggleDisabled flips a group's manual gate.
func (s *Session) ToggleDisabled(id group.ID) error { return s.store.ToggleDisabled(id) }

// ToggleMinimized flips a group's compact presentation.
func (s *Session) ToggleMinimized(id group.ID) error { return s.store.ToggleMinimized(id) }

// Paste appends copied groups under fresh ids. nodeMap rewrites membership
// when the pasted nodes were duplicated too; nil keeps node ids.
func (s *Session) Paste(groups []*group.Group, nodeMap map[nodegraph.NodeID]nodegraph.NodeID) []group.ID {
	return s.store.AppendGroups(group.RemapIDs(groups, nil, nodeMap))
}

// Nodalize converts a group subtree into a compound definition plus one
// instance node.
func (s *Session) Nodalize(ctx context.Context, gid group.ID) (*catalog.Definition, nodegraph.NodeID, error) {
	def, instance, err := s.converter.Nodalize(ctx, gid)
	if err != nil {
		s.reportViolation(err)
		return nil, "", err
	}
	return def, instance, nil
}

// Denodalize explodes a compound instance back into an editable group and
// deletes its definition.
func (s *Session) Denodalize(ctx context.Context, instanceID nodegraph.NodeID) (group.ID, error) {
	gid, err := s.converter.Denodalize(ctx, instanceID)
	if err != nil {
		s.reportViolation(err)
		return "", err
	}
	return gid, nil
}

// Expand materializes an instance's template as an editable group without
// touching the definition.
func (s *Session) Expand(ctx context.Context, instanceID nodegraph.NodeID) (group.ID, error) {
	gid, err := s.converter.Expand(ctx, instanceID)
	if err != nil {
		s.reportViolation(err)
		return "", err
	}
	return gid, nil
}

// Collapse dematerializes an expanded instance, writing local edits back
// into the definition.
func (s *Session) Collapse(ctx context.Context, instanceID nodegraph.NodeID) error {
	if err := s.converter.Collapse(ctx, instanceID); err != nil {
		s.reportViolation(err)
		return err
	}
	return nil
}

// ResolveDrop clears the released nodes out of any frame they landed in,
// synchronously within the gesture. moved is the dragged node set; a frame
// whose members all moved with it displaces as one rigid unit. Drops
// landing while a programmatic translation is in flight are ignored so
// displacement animations never re-trigger the pass.
func (s *Session) ResolveDrop(ctx context.Context, moved []nodegraph.NodeID) []collision.Unit {
	if s.resolver.Translating() {
		return nil
	}
	start := time.Now()
	units := s.resolver.ResolveAfterDrop(moved)
	observability.Collision().OnResolve(ctx, len(units), len(units) >= s.collOpts.MaxMoves, time.Since(start))
	return units
}

// ResolveGroupDrop resolves a header drag that moved one whole group: the
// moved set is every node the group's frame owns, decorations included.
func (s *Session) ResolveGroupDrop(ctx context.Context, dropped group.ID) []collision.Unit {
	if s.resolver.Translating() {
		return nil
	}
	return s.ResolveDrop(ctx, s.resolver.GroupNodeIDs(dropped))
}

// EvaluationTick syncs gate node outputs into the group store after a graph
// evaluation pass. The host calls this once per engine tick.
func (s *Session) EvaluationTick() {
	s.syncing = true
	_, err := s.cascade.Apply()
	s.syncing = false
	if err != nil {
		s.reportViolation(err)
	}
	s.refreshDisabled()
	s.highlightPass.Mark()
	s.frames.Invalidate()
}

// Normalize runs the boundary pass immediately instead of waiting for the
// next tick. Returns the report of the completed run.
func (s *Session) Normalize() boundary.Report {
	s.normalizePass.Mark()
	s.normalizePass.Flush()
	return s.lastReport
}

// ReconcileAfterNodeRemoval heals group membership after the host removed
// nodes outside the session's control.
func (s *Session) ReconcileAfterNodeRemoval() []group.ID {
	return s.store.ReconcileAfterNodeRemoval(s.Snapshot())
}

// Select replaces the selection and schedules a highlight pass.
func (s *Session) Select(ids ...nodegraph.NodeID) {
	s.selection.Replace(ids...)
	s.highlightPass.Mark()
}

// ToggleSelect toggles membership of the given nodes in the selection.
func (s *Session) ToggleSelect(ids ...nodegraph.NodeID) {
	s.selection.Toggle(ids...)
	s.highlightPass.Mark()
}

// ClearSelection empties the selection.
func (s *Session) ClearSelection() {
	s.selection.Clear()
	s.highlightPass.Mark()
}

// SelectGroup selects every regular member of the group's subtree.
func (s *Session) SelectGroup(gid group.ID, additive bool) {
	s.selection.SelectGroup(gid, additive)
	s.highlightPass.Mark()
}

// BeginPointer starts a pointer session (click or marquee).
func (s *Session) BeginPointer(p nodegraph.Point, additive bool) {
	s.selection.BeginPointer(p, additive)
	s.highlightPass.Mark()
}

// UpdatePointer advances an active pointer session.
func (s *Session) UpdatePointer(p nodegraph.Point) {
	s.selection.UpdatePointer(p)
	s.highlightPass.Mark()
}

// EndPointer completes a pointer session, committing the marquee or click.
func (s *Session) EndPointer(p nodegraph.Point) {
	s.selection.EndPointer(p)
	s.highlightPass.Mark()
}

// CancelPointer aborts a pointer session, restoring the prior selection.
func (s *Session) CancelPointer() {
	s.selection.CancelPointer()
	s.highlightPass.Mark()
}

// Close tears the session down: unsubscribes from the store and cancels
// every pending pass and animation.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.normalizePass.Stop()
	s.highlightPass.Stop()
	s.resolver.Stop()
	s.frames.Stop()
}

// onStoreChange is the store subscriber enforcing the pipeline ordering:
// disabled-set recompute, then highlight, then geometry, then boundary
// normalization. Runtime-active writes issued by the cascade itself are
// suppressed via the syncing flag.
func (s *Session) onStoreChange() {
	if s.syncing {
		return
	}
	s.refreshDisabled()
	s.highlightPass.Mark()
	s.frames.Invalidate()
	s.normalizePass.Mark()
}

// runNormalize is the coalesced boundary pass: heal membership drift, run
// the normalizer, surface violations, then resync gates and geometry when
// anything moved.
func (s *Session) runNormalize() {
	s.store.ReconcileAfterNodeRemoval(s.Snapshot())

	ctx := context.Background()
	observability.Normalizer().OnRunStart(ctx)
	start := time.Now()
	report := s.norm.Run()
	observability.Normalizer().OnRunComplete(ctx, report.Mutations(), len(report.Violations), time.Since(start))

	s.lastReport = report
	for _, v := range report.Violations {
		s.reportViolation(v)
	}
	if report.Mutations() > 0 {
		s.syncing = true
		_, err := s.cascade.Apply()
		s.syncing = false
		if err != nil {
			s.reportViolation(err)
		}
		s.refreshDisabled()
		s.highlightPass.Mark()
		s.frames.Invalidate()
	}
}

// applyHighlights projects selection and disabled state onto the view.
// Disabled wins over selected so a gated node never renders active.
func (s *Session) applyHighlights() {
	snap := s.Snapshot()
	disabled := s.cascade.DisabledNodes(snap)
	for _, n := range snap.Nodes() {
		switch {
		case disabled[n.ID]:
			s.view.SetNodeVisualState(n.ID, nodegraph.VisualDisabled)
		case s.selection.IsSelected(n.ID):
			s.view.SetNodeVisualState(n.ID, nodegraph.VisualSelected)
		default:
			s.view.SetNodeVisualState(n.ID, nodegraph.VisualNormal)
		}
	}
	for _, w := range snap.Connections() {
		if disabled[w.From] || disabled[w.To] {
			s.view.SetConnectionVisualState(w, nodegraph.VisualDisabled)
		} else {
			s.view.SetConnectionVisualState(w, nodegraph.VisualNormal)
		}
	}
}

func (s *Session) refreshDisabled() {
	next := s.cascade.DisabledNodes(s.Snapshot())
	if maps.Equal(next, s.disabled) {
		return
	}
	s.disabled = next
	s.disabledVersion++
}

func (s *Session) reportViolation(err error) {
	if err == nil || !errors.IsPolicyViolation(err) {
		return
	}
	for _, fn := range s.violationSubs {
		fn(err)
	}
}
