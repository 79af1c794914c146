package catalog

import (
	"context"
	"testing"

	"github.com/matzehuels/corral/pkg/errors"
)

func sample(id, name string) *Definition {
	return &Definition{
		ID:   id,
		Name: name,
		Template: Template{
			Nodes: []TemplateNode{
				{ID: "t1", Type: "test/num", X: 10, Y: 20, Config: map[string]any{"k": "v"}},
			},
			Connections: []TemplateConnection{
				{From: "t1", FromPort: "out", To: "t1", ToPort: "in"},
			},
		},
		Ports: []Port{
			{Key: "p1", Side: SideOutput, Label: "Out", Type: "number", Y: 12, Bindings: []Binding{{NodeID: "t1", Port: "out"}}},
		},
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	def := sample("d1", "Mixer")
	if err := s.Put(ctx, def); err != nil {
		t.Fatalf("Put() = %v", err)
	}

	got, err := s.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got.Name != "Mixer" || len(got.Template.Nodes) != 1 || len(got.Ports) != 1 {
		t.Errorf("Get() = %+v, want stored definition back", got)
	}

	// The store hands out copies, not aliases.
	got.Name = "changed"
	got.Template.Nodes[0].Config["k"] = "changed"
	again, err := s.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("Get() second = %v", err)
	}
	if again.Name != "Mixer" || again.Template.Nodes[0].Config["k"] != "v" {
		t.Error("mutating a returned definition leaked into the store")
	}
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "missing")
	if errors.GetCode(err) != errors.ErrCodeDefinitionNotFound {
		t.Errorf("Get(missing) code = %q, want %q", errors.GetCode(err), errors.ErrCodeDefinitionNotFound)
	}
}

func TestMemoryStorePutRequiresID(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Put(context.Background(), &Definition{}); err == nil {
		t.Error("Put(no id) = nil, want error")
	}
}

func TestMemoryStoreListSorted(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, d := range []*Definition{sample("d2", "Zip"), sample("d3", "Amp"), sample("d1", "Amp")} {
		if err := s.Put(ctx, d); err != nil {
			t.Fatalf("Put(%s) = %v", d.ID, err)
		}
	}
	defs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	var got []string
	for _, d := range defs {
		got = append(got, d.ID)
	}
	want := []string{"d1", "d3", "d2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List() order = %v, want %v", got, want)
		}
	}
}

func TestMemoryStoreDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Put(ctx, sample("d1", "Mixer")); err != nil {
		t.Fatalf("Put() = %v", err)
	}
	if err := s.Delete(ctx, "d1"); err != nil {
		t.Fatalf("Delete() = %v", err)
	}
	if err := s.Delete(ctx, "d1"); err != nil {
		t.Errorf("Delete() repeat = %v, want nil", err)
	}
	if _, err := s.Get(ctx, "d1"); errors.GetCode(err) != errors.ErrCodeDefinitionNotFound {
		t.Error("definition still present after delete")
	}
}
