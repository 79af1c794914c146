// Package catalog stores compound-node definitions: the reusable templates
// produced by nodalizing a group.
package catalog

import (
	"context"
	"slices"
	"strings"
)

// Binding points a compound port at the template node port it stands in
// for. On expansion the port's external wires reconnect here.
type Binding struct {
	NodeID string `json:"nodeId" bson:"nodeId"`
	Port   string `json:"port" bson:"port"`
}

// Port is one externally visible port of a compound definition, derived
// from a root-level boundary proxy at nodalize time. Bindings lists every
// template port the proxy carried wires for; the first entry names the
// port. A pinned proxy that was never wired internally yields a port with
// no bindings.
type Port struct {
	Key      string    `json:"key" bson:"key"`
	Side     string    `json:"side" bson:"side"`
	Label    string    `json:"label" bson:"label"`
	Type     string    `json:"type" bson:"type"`
	Pinned   bool      `json:"pinned" bson:"pinned"`
	Y        float64   `json:"y" bson:"y"`
	Bindings []Binding `json:"bindings,omitempty" bson:"bindings,omitempty"`
}

// Port sides.
const (
	SideInput  = "input"
	SideOutput = "output"
)

// TemplateNode is a captured graph node. Positions are relative to the
// frame origin at capture time; evaluated outputs are never captured.
type TemplateNode struct {
	ID     string         `json:"id" bson:"id"`
	Type   string         `json:"type" bson:"type"`
	X      float64        `json:"x" bson:"x"`
	Y      float64        `json:"y" bson:"y"`
	Config map[string]any `json:"config,omitempty" bson:"config,omitempty"`
}

// TemplateConnection is a captured wire between two template nodes.
type TemplateConnection struct {
	From     string `json:"from" bson:"from"`
	FromPort string `json:"fromPort" bson:"fromPort"`
	To       string `json:"to" bson:"to"`
	ToPort   string `json:"toPort" bson:"toPort"`
}

// Template is the captured interior of a compound definition.
type Template struct {
	Nodes       []TemplateNode       `json:"nodes" bson:"nodes"`
	Connections []TemplateConnection `json:"connections" bson:"connections"`
}

// Definition is a reusable compound-node definition.
type Definition struct {
	ID       string   `json:"id" bson:"_id"`
	Name     string   `json:"name" bson:"name"`
	Template Template `json:"template" bson:"template"`
	Ports    []Port   `json:"ports" bson:"ports"`
}

// Clone returns a deep copy.
func (d *Definition) Clone() *Definition {
	out := *d
	out.Ports = slices.Clone(d.Ports)
	out.Template.Connections = slices.Clone(d.Template.Connections)
	out.Template.Nodes = make([]TemplateNode, len(d.Template.Nodes))
	for i, n := range d.Template.Nodes {
		out.Template.Nodes[i] = n
		if n.Config != nil {
			cfg := make(map[string]any, len(n.Config))
			for k, v := range n.Config {
				cfg[k] = v
			}
			out.Template.Nodes[i].Config = cfg
		}
	}
	return &out
}

// Node returns the template node with the given id.
func (t Template) Node(id string) (TemplateNode, bool) {
	for _, n := range t.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return TemplateNode{}, false
}

// Store persists compound definitions. Implementations: [MemoryStore] for
// a single editor session, [RedisStore] for shared catalogs.
type Store interface {
	// Put inserts or replaces a definition.
	Put(ctx context.Context, def *Definition) error
	// Get returns the definition or a DEFINITION_NOT_FOUND error.
	Get(ctx context.Context, id string) (*Definition, error)
	// Delete removes a definition; deleting an absent id is a no-op.
	Delete(ctx context.Context, id string) error
	// List returns every definition sorted by name, then id.
	List(ctx context.Context) ([]*Definition, error)
}

func sortDefinitions(defs []*Definition) {
	slices.SortFunc(defs, func(a, b *Definition) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
