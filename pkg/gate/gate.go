// Package gate propagates evaluated gate outputs into group state and
// projects the resulting effective-disabled set onto the view.
package gate

import (
	"slices"
	"strings"

	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

// Cascade applies the gate pipeline in a fixed order: gate outputs are
// written into the group store first, the effective-disabled set is
// computed second, visual states are projected third, and loops covered
// by newly disabled groups are retracted last. Geometry recomputation is
// the caller's job; the cascade never moves nodes.
type Cascade struct {
	engine    nodegraph.Engine
	store     *group.Store
	view      nodegraph.View
	loops     nodegraph.LoopProvider
	retractor nodegraph.LoopRetractor

	prevRetracted map[string]bool
}

// Result summarizes one cascade application.
type Result struct {
	// ChangedGroups lists groups whose runtime-active state flipped.
	ChangedGroups []group.ID
	// RetractedLoops lists loop ids retracted on this application.
	RetractedLoops []string
}

// New creates a cascade. loops and retractor may be nil when the document
// contains no loops.
func New(engine nodegraph.Engine, store *group.Store, view nodegraph.View, loops nodegraph.LoopProvider, retractor nodegraph.LoopRetractor) *Cascade {
	return &Cascade{
		engine:        engine,
		store:         store,
		view:          view,
		loops:         loops,
		retractor:     retractor,
		prevRetracted: make(map[string]bool),
	}
}

// Apply runs one full cascade pass. Retraction failures do not stop the
// pass; the first failure is returned after every loop has been attempted.
func (c *Cascade) Apply() (Result, error) {
	snap := nodegraph.NewSnapshot(c.engine.Export())

	var res Result
	res.ChangedGroups = c.syncGateOutputs(snap)

	disabled := c.DisabledNodes(snap)
	c.project(snap, disabled)

	retracted, err := c.retractCoveredLoops(disabled)
	res.RetractedLoops = retracted
	return res, err
}

// syncGateOutputs copies each gate node's evaluated boolean output into its
// group's runtime-active flag. A gate with no evaluated output (or a
// non-boolean one) counts as active, so an unwired gate never disables its
// group.
func (c *Cascade) syncGateOutputs(snap *nodegraph.Snapshot) []group.ID {
	var changed []group.ID
	for _, node := range snap.Nodes() {
		if node.Kind != nodegraph.KindGate {
			continue
		}
		active := true
		if v, ok := node.Outputs[nodegraph.GateValuePort].(bool); ok {
			active = v
		}
		if c.store.SetRuntimeActive(group.ID(node.GroupTag), active) {
			changed = append(changed, group.ID(node.GroupTag))
		}
	}
	slices.SortFunc(changed, func(a, b group.ID) int { return strings.Compare(string(a), string(b)) })
	return changed
}

// DisabledNodes returns the full effective-disabled node set: members of
// every effectively disabled group plus the decorations tagged to those
// groups.
func (c *Cascade) DisabledNodes(snap *nodegraph.Snapshot) map[nodegraph.NodeID]bool {
	disabled := c.store.DisabledNodeIDs()

	disabledGroups := make(map[group.ID]bool)
	for _, gid := range c.store.DisabledGroupIDs() {
		disabledGroups[gid] = true
	}

	for _, node := range snap.Nodes() {
		if !node.IsDecoration() {
			continue
		}
		gid := group.ID(node.GroupTag)
		if node.Kind == nodegraph.KindProxy && node.Proxy != nil {
			gid = group.ID(node.Proxy.Group)
		}
		if disabledGroups[gid] {
			disabled[node.ID] = true
		}
	}
	return disabled
}

// project pushes the disabled set onto the view. Nodes in the set render
// disabled; nodes leaving the set return to normal unless the selection
// layer holds them selected. A wire renders disabled when either endpoint
// does.
func (c *Cascade) project(snap *nodegraph.Snapshot, disabled map[nodegraph.NodeID]bool) {
	for _, node := range snap.Nodes() {
		switch {
		case disabled[node.ID]:
			c.view.SetNodeVisualState(node.ID, nodegraph.VisualDisabled)
		case c.view.NodeVisualState(node.ID) == nodegraph.VisualDisabled:
			c.view.SetNodeVisualState(node.ID, nodegraph.VisualNormal)
		}
	}
	for _, w := range snap.Connections() {
		switch {
		case disabled[w.From] || disabled[w.To]:
			c.view.SetConnectionVisualState(w, nodegraph.VisualDisabled)
		case c.view.ConnectionVisualState(w) == nodegraph.VisualDisabled:
			c.view.SetConnectionVisualState(w, nodegraph.VisualNormal)
		}
	}
}

// retractCoveredLoops retracts every loop whose members are all disabled,
// once per disable transition. A loop becomes eligible again after any of
// its members is re-enabled.
func (c *Cascade) retractCoveredLoops(disabled map[nodegraph.NodeID]bool) ([]string, error) {
	if c.loops == nil || c.retractor == nil {
		return nil, nil
	}
	var retracted []string
	var firstErr error
	for _, loop := range c.loops.Loops() {
		if len(loop.NodeIDs) == 0 {
			continue
		}
		covered := true
		for _, id := range loop.NodeIDs {
			if !disabled[id] {
				covered = false
				break
			}
		}
		if !covered {
			delete(c.prevRetracted, loop.ID)
			continue
		}
		if c.prevRetracted[loop.ID] {
			continue
		}
		if err := c.retractor.Retract(loop.ID); err != nil {
			if firstErr == nil {
				firstErr = errors.Wrap(errors.ErrCodeInternal, err, "retract loop %q", loop.ID)
			}
			continue
		}
		c.prevRetracted[loop.ID] = true
		retracted = append(retracted, loop.ID)
	}
	return retracted, firstErr
}
