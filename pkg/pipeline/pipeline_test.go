package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/matzehuels/corral/pkg/cache"
	"github.com/matzehuels/corral/pkg/document"
	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"dot", false},
		{"svg", false},
		{"png", false},
		{"invalid", true},
		{"DOT", true}, // case-sensitive
		{"", true},
	}

	for _, tt := range tests {
		err := ValidateFormat(tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateFormat(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
		}
	}
}

func TestValidateAndSetDefaults(t *testing.T) {
	var opts Options
	if err := opts.ValidateAndSetDefaults(); errors.GetCode(err) != errors.ErrCodeInvalidConfig {
		t.Errorf("empty document code = %q, want %q", errors.GetCode(err), errors.ErrCodeInvalidConfig)
	}

	opts = Options{Document: "demo", Formats: []string{"pdf"}}
	if err := opts.ValidateAndSetDefaults(); errors.GetCode(err) != errors.ErrCodeInvalidConfig {
		t.Errorf("bad format code = %q, want %q", errors.GetCode(err), errors.ErrCodeInvalidConfig)
	}

	opts = Options{Document: "demo"}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("ValidateAndSetDefaults() = %v", err)
	}
	if opts.Geometry.CompactWidth == 0 {
		t.Error("Geometry defaults not applied")
	}
	if opts.Logger == nil {
		t.Error("Logger default not applied")
	}
}

// saveFixture stores a document with one group and a wire crossing its
// boundary, so the normalizer has decorations to create on load.
func saveFixture(t *testing.T, docs document.Store, name string) {
	t.Helper()
	engine := nodegraph.NewMemory()
	for id, x := range map[nodegraph.NodeID]float64{"s": 0, "n1": 200} {
		if err := engine.AddNode(nodegraph.Node{ID: id, Type: "test/num", Position: nodegraph.Point{X: x}}); err != nil {
			t.Fatalf("AddNode(%s) = %v", id, err)
		}
	}
	engine.AddConnection(nodegraph.Connection{From: "s", FromPort: "out", To: "n1", ToPort: "in"})

	store := group.NewStore(nil)
	store.SetGroups([]*group.Group{
		{ID: "g", Name: "G", NodeIDs: map[nodegraph.NodeID]bool{"n1": true}, RuntimeActive: true},
	})

	doc := document.FromState(name, nodegraph.NewSnapshot(engine.Export()), store, nil)
	if err := docs.Save(context.Background(), name, doc); err != nil {
		t.Fatalf("Save() = %v", err)
	}
}

func testRunner(t *testing.T) *Runner {
	t.Helper()
	docs, err := document.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() = %v", err)
	}
	fileCache, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache() = %v", err)
	}
	return NewRunner(docs, fileCache, nil, nil)
}

func TestExecuteNormalizesAndRenders(t *testing.T) {
	ctx := context.Background()
	r := testRunner(t)
	saveFixture(t, r.Documents, "demo")

	result, err := r.Execute(ctx, Options{Document: "demo", Formats: []string{FormatDOT}})
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}

	if result.Stats.NodeCount != 2 || result.Stats.GroupCount != 1 {
		t.Errorf("Stats = %d nodes, %d groups, want 2, 1", result.Stats.NodeCount, result.Stats.GroupCount)
	}
	if result.Report.GatesCreated != 1 {
		t.Errorf("GatesCreated = %d, want 1", result.Report.GatesCreated)
	}
	if result.Report.ProxiesCreated == 0 {
		t.Error("ProxiesCreated = 0, want the boundary crossing decomposed")
	}
	if len(result.Frames) != 1 || result.Frames[0].GroupID != "g" {
		t.Fatalf("Frames = %+v, want one frame for group g", result.Frames)
	}

	dotOut := string(result.Artifacts[FormatDOT])
	if !strings.Contains(dotOut, `subgraph "cluster_g"`) {
		t.Errorf("DOT artifact missing group cluster:\n%s", dotOut)
	}

	// The loaded state is normalized: a second run mutates nothing.
	report, _, err := r.Normalize(ctx, result.State)
	if err != nil {
		t.Fatalf("Normalize() = %v", err)
	}
	if report.Mutations() != 0 {
		t.Errorf("second Normalize Mutations() = %d, want 0", report.Mutations())
	}
}

func TestExecuteMissingDocument(t *testing.T) {
	r := testRunner(t)
	_, err := r.Execute(context.Background(), Options{Document: "ghost"})
	if errors.GetCode(err) != errors.ErrCodeDocumentNotFound {
		t.Fatalf("Execute() code = %q, want %q", errors.GetCode(err), errors.ErrCodeDocumentNotFound)
	}
}

func TestLoadRejectsDanglingWire(t *testing.T) {
	ctx := context.Background()
	r := testRunner(t)

	doc := &document.Document{
		Version: document.CurrentVersion,
		Nodes:   []document.Node{{ID: "s", Type: "test/num"}},
		Connections: []document.Connection{
			{From: "s", FromPort: "out", To: "ghost", ToPort: "in"},
		},
	}
	if err := r.Documents.Save(ctx, "broken", doc); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	_, _, err := r.Load(ctx, "broken")
	if errors.GetCode(err) != errors.ErrCodeInvalidDocument {
		t.Fatalf("Load() code = %q, want %q", errors.GetCode(err), errors.ErrCodeInvalidDocument)
	}
}

func TestRenderArtifactCaching(t *testing.T) {
	ctx := context.Background()
	r := testRunner(t)
	saveFixture(t, r.Documents, "demo")

	_, state, err := r.Load(ctx, "demo")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if _, _, err := r.Normalize(ctx, state); err != nil {
		t.Fatalf("Normalize() = %v", err)
	}

	opts := Options{Document: "demo", Formats: []string{FormatDOT}}
	artifacts, hit, err := r.RenderWithCacheInfo(ctx, state, opts)
	if err != nil {
		t.Fatalf("RenderWithCacheInfo() = %v", err)
	}
	if hit {
		t.Error("first render reported a cache hit")
	}

	again, hit, err := r.RenderWithCacheInfo(ctx, state, opts)
	if err != nil {
		t.Fatalf("RenderWithCacheInfo() again = %v", err)
	}
	if !hit {
		t.Error("second render missed the cache")
	}
	if string(again[FormatDOT]) != string(artifacts[FormatDOT]) {
		t.Error("cached artifact differs from rendered artifact")
	}

	// Refresh bypasses the cache.
	opts.Refresh = true
	if _, hit, _ := r.RenderWithCacheInfo(ctx, state, opts); hit {
		t.Error("Refresh render reported a cache hit")
	}
}
