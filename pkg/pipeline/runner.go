package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/corral/pkg/boundary"
	"github.com/matzehuels/corral/pkg/cache"
	"github.com/matzehuels/corral/pkg/catalog"
	"github.com/matzehuels/corral/pkg/compound"
	"github.com/matzehuels/corral/pkg/document"
	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/frame"
	"github.com/matzehuels/corral/pkg/gate"
	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
	"github.com/matzehuels/corral/pkg/observability"
	"github.com/matzehuels/corral/pkg/schedule"
)

// State is the live editor state a pipeline run builds from a document.
type State struct {
	Engine   *nodegraph.Memory
	View     *nodegraph.MemoryView
	Store    *group.Store
	Catalog  *catalog.MemoryStore
	Registry *nodegraph.StaticRegistry
}

// Snapshot exports the engine's current graph.
func (s *State) Snapshot() *nodegraph.Snapshot {
	return nodegraph.NewSnapshot(s.Engine.Export())
}

// Runner encapsulates pipeline execution with artifact caching.
// Both CLI and HTTP serving use this to avoid duplicating the stage
// ordering and caching logic.
//
// The Runner is stateless except for the stores and logger - it doesn't
// hold pipeline results. Multiple goroutines can safely use the same
// Runner with different options.
type Runner struct {
	Documents document.Store
	Cache     cache.Cache
	Keyer     cache.Keyer
	Logger    *log.Logger
}

// NewRunner creates a runner over the given document store.
// If keyer is nil, a DefaultKeyer is used.
// If c is nil, a NullCache is used (caching disabled).
func NewRunner(documents document.Store, c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Documents: documents,
		Cache:     c,
		Keyer:     keyer,
		Logger:    logger,
	}
}

// Execute runs the complete pipeline for one document.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	r.applyLogger(&opts)

	result := &Result{
		Artifacts: make(map[string][]byte),
	}

	// Stage 1: Load
	loadStart := time.Now()
	doc, state, err := r.Load(ctx, opts.Document)
	if err != nil {
		return nil, err
	}
	result.Document = doc
	result.State = state
	result.Stats.LoadTime = time.Since(loadStart)
	result.Stats.NodeCount = len(doc.Nodes)
	result.Stats.GroupCount = state.Store.Len()

	opts.Logger.Info("loaded document",
		"name", opts.Document,
		"nodes", result.Stats.NodeCount,
		"groups", result.Stats.GroupCount,
		"duration", result.Stats.LoadTime)

	// Stage 2: Normalize + cascade
	normalizeStart := time.Now()
	report, cascade, err := r.Normalize(ctx, state)
	if err != nil {
		return nil, err
	}
	result.Report = report
	result.Cascade = cascade
	result.Stats.NormalizeTime = time.Since(normalizeStart)

	opts.Logger.Info("normalized graph",
		"mutations", report.Mutations(),
		"violations", len(report.Violations),
		"duration", result.Stats.NormalizeTime)
	for _, v := range report.Violations {
		opts.Logger.Warn("policy violation", "error", errors.UserMessage(v))
	}

	// Stage 3: Geometry
	geometryStart := time.Now()
	result.Frames = r.ComputeFrames(ctx, state, opts.Geometry)
	result.Stats.GeometryTime = time.Since(geometryStart)

	opts.Logger.Info("computed frames",
		"frames", len(result.Frames),
		"duration", result.Stats.GeometryTime)

	// Stage 4: Render (optional)
	if len(opts.Formats) > 0 {
		renderStart := time.Now()
		artifacts, renderHit, err := r.RenderWithCacheInfo(ctx, state, opts)
		if err != nil {
			return nil, err
		}
		result.Artifacts = artifacts
		result.Stats.RenderTime = time.Since(renderStart)
		result.CacheInfo.RenderHit = renderHit

		opts.Logger.Info("rendered outputs",
			"formats", opts.Formats,
			"cached", renderHit,
			"duration", result.Stats.RenderTime)
	}

	return result, nil
}

// Load reads the document and builds the live state: graph engine, group
// store, definition catalog and type registry with every definition's
// instance ports registered.
func (r *Runner) Load(ctx context.Context, name string) (*document.Document, *State, error) {
	doc, err := r.Documents.Load(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, nil, err
	}

	graph, err := doc.Graph()
	if err != nil {
		return nil, nil, err
	}

	state := &State{
		Engine:   nodegraph.NewMemory(),
		Store:    group.NewStore(nil),
		Catalog:  catalog.NewMemoryStore(),
		Registry: nodegraph.NewStaticRegistry(),
	}
	state.View = nodegraph.NewMemoryView(state.Engine)

	for _, n := range graph.Nodes {
		if err := state.Engine.AddNode(n); err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeInvalidDocument, err, "add node %q", n.ID)
		}
	}
	for _, c := range graph.Connections {
		if err := state.Engine.AddConnection(c); err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeInvalidDocument, err, "add connection %s -> %s", c.From, c.To)
		}
	}
	state.Store.SetGroups(doc.GroupList())

	for _, def := range doc.DefinitionList() {
		if err := state.Catalog.Put(ctx, def); err != nil {
			return nil, nil, err
		}
		compound.RegisterDefinitionPorts(state.Registry, def)
	}

	return doc, state, nil
}

// Normalize heals membership drift, runs the boundary normalizer and
// applies the gate cascade.
func (r *Runner) Normalize(ctx context.Context, state *State) (boundary.Report, gate.Result, error) {
	state.Store.ReconcileAfterNodeRemoval(state.Snapshot())

	observability.Normalizer().OnRunStart(ctx)
	start := time.Now()
	report := boundary.New(state.Engine, state.Store, state.Registry, nil).Run()
	observability.Normalizer().OnRunComplete(ctx, report.Mutations(), len(report.Violations), time.Since(start))

	cascade, err := gate.New(state.Engine, state.Store, state.View, nil, nil).Apply()
	if err != nil {
		return report, cascade, err
	}
	return report, cascade, nil
}

// ComputeFrames runs one synchronous frame-geometry pass.
func (r *Runner) ComputeFrames(ctx context.Context, state *State, opts frame.Options) []frame.Frame {
	observability.Geometry().OnFramesStart(ctx, state.Store.Len())
	start := time.Now()

	engine := frame.New(state.Store, state.View, nil, state.Snapshot, opts, schedule.NewManualTicker())
	defer engine.Stop()
	engine.Invalidate()
	engine.Flush()
	frames := engine.Frames()

	observability.Geometry().OnFramesComplete(ctx, len(frames), time.Since(start))
	return frames
}

// Render is a convenience wrapper that calls RenderWithCacheInfo and
// discards the cache hit info.
func (r *Runner) Render(ctx context.Context, state *State, opts Options) (map[string][]byte, error) {
	artifacts, _, err := r.RenderWithCacheInfo(ctx, state, opts)
	return artifacts, err
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}
