// Package document defines the on-disk and over-the-wire format for a
// grouped node graph: nodes, connections, groups and compound definitions
// in one versioned envelope.
//
// Documents are plain serialization types with json and bson tags; the
// conversion helpers translate between a document and the live engine
// types. Persistence backends: [FileStore] for local JSON files,
// [MongoStore] for shared storage.
package document

import (
	"slices"
	"strings"

	"github.com/matzehuels/corral/pkg/catalog"
	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

// CurrentVersion is the document schema version written by this package.
const CurrentVersion = 1

// Document is the complete serialized state of a grouped graph.
type Document struct {
	Version     int                  `json:"version" bson:"version"`
	Name        string               `json:"name,omitempty" bson:"name,omitempty"`
	Nodes       []Node               `json:"nodes" bson:"nodes"`
	Connections []Connection         `json:"connections" bson:"connections"`
	Groups      []Group              `json:"groups,omitempty" bson:"groups,omitempty"`
	Definitions []catalog.Definition `json:"definitions,omitempty" bson:"definitions,omitempty"`
}

// Node is a serialized graph node. Kind is empty for regular nodes and
// one of "gate", "proxy", "placeholder", "converter" for decorations.
// Evaluated outputs are never persisted.
type Node struct {
	ID       string         `json:"id" bson:"id"`
	Type     string         `json:"type" bson:"type"`
	Kind     string         `json:"kind,omitempty" bson:"kind,omitempty"`
	X        float64        `json:"x" bson:"x"`
	Y        float64        `json:"y" bson:"y"`
	GroupTag string         `json:"groupTag,omitempty" bson:"groupTag,omitempty"`
	Proxy    *Proxy         `json:"proxy,omitempty" bson:"proxy,omitempty"`
	Config   map[string]any `json:"config,omitempty" bson:"config,omitempty"`
}

// Proxy is the serialized boundary-proxy metadata.
type Proxy struct {
	Group     string `json:"group" bson:"group"`
	Direction string `json:"direction" bson:"direction"`
	PortType  string `json:"portType,omitempty" bson:"portType,omitempty"`
	Pinned    bool   `json:"pinned,omitempty" bson:"pinned,omitempty"`
}

// Connection is a serialized wire.
type Connection struct {
	From     string `json:"from" bson:"from"`
	FromPort string `json:"fromPort" bson:"fromPort"`
	To       string `json:"to" bson:"to"`
	ToPort   string `json:"toPort" bson:"toPort"`
}

// Group is a serialized group. RuntimeActive is derived state and never
// persisted; loading resets it to active until the next gate sync.
type Group struct {
	ID        string   `json:"id" bson:"id"`
	ParentID  string   `json:"parentId,omitempty" bson:"parentId,omitempty"`
	Name      string   `json:"name" bson:"name"`
	NodeIDs   []string `json:"nodeIds" bson:"nodeIds"`
	Disabled  bool     `json:"disabled,omitempty" bson:"disabled,omitempty"`
	Minimized bool     `json:"minimized,omitempty" bson:"minimized,omitempty"`
}

var kindNames = map[nodegraph.NodeKind]string{
	nodegraph.KindRegular:     "",
	nodegraph.KindGate:        "gate",
	nodegraph.KindProxy:       "proxy",
	nodegraph.KindPlaceholder: "placeholder",
	nodegraph.KindConverter:   "converter",
}

func kindFromName(name string) (nodegraph.NodeKind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return nodegraph.KindRegular, false
}

// FromState captures the live engine state into a document. Ordering is
// deterministic: nodes and groups sorted by id, connections by endpoint,
// definitions by name then id.
func FromState(name string, snap *nodegraph.Snapshot, store *group.Store, defs []*catalog.Definition) *Document {
	doc := &Document{Version: CurrentVersion, Name: name}

	for _, n := range snap.Nodes() {
		node := Node{
			ID:       string(n.ID),
			Type:     n.Type,
			Kind:     kindNames[n.Kind],
			X:        n.Position.X,
			Y:        n.Position.Y,
			GroupTag: n.GroupTag,
		}
		if len(n.Config) > 0 {
			node.Config = make(map[string]any, len(n.Config))
			for k, v := range n.Config {
				node.Config[k] = v
			}
		}
		if n.Proxy != nil {
			node.Proxy = &Proxy{
				Group:     n.Proxy.Group,
				Direction: n.Proxy.Direction.String(),
				PortType:  n.Proxy.PortType,
				Pinned:    n.Proxy.Pinned,
			}
		}
		doc.Nodes = append(doc.Nodes, node)
	}

	for _, c := range snap.Connections() {
		doc.Connections = append(doc.Connections, Connection{
			From: string(c.From), FromPort: c.FromPort,
			To: string(c.To), ToPort: c.ToPort,
		})
	}
	slices.SortFunc(doc.Connections, func(a, b Connection) int {
		return strings.Compare(
			a.From+"\x00"+a.FromPort+"\x00"+a.To+"\x00"+a.ToPort,
			b.From+"\x00"+b.FromPort+"\x00"+b.To+"\x00"+b.ToPort)
	})

	groups := store.Groups()
	slices.SortFunc(groups, func(a, b *group.Group) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	for _, g := range groups {
		members := make([]string, 0, len(g.NodeIDs))
		for _, id := range g.Members() {
			members = append(members, string(id))
		}
		doc.Groups = append(doc.Groups, Group{
			ID:        string(g.ID),
			ParentID:  string(g.ParentID),
			Name:      g.Name,
			NodeIDs:   members,
			Disabled:  g.Disabled,
			Minimized: g.Minimized,
		})
	}

	sorted := make([]*catalog.Definition, len(defs))
	copy(sorted, defs)
	slices.SortFunc(sorted, func(a, b *catalog.Definition) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	for _, d := range sorted {
		doc.Definitions = append(doc.Definitions, *d.Clone())
	}
	return doc
}

// Graph converts the document's nodes and connections back into engine
// types, validating referential integrity.
func (d *Document) Graph() (nodegraph.Graph, error) {
	var out nodegraph.Graph
	byID := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.ID == "" {
			return nodegraph.Graph{}, errors.New(errors.ErrCodeInvalidDocument, "node with empty id")
		}
		if byID[n.ID] {
			return nodegraph.Graph{}, errors.New(errors.ErrCodeInvalidDocument, "duplicate node id %q", n.ID)
		}
		byID[n.ID] = true

		kind, ok := kindFromName(n.Kind)
		if !ok {
			return nodegraph.Graph{}, errors.New(errors.ErrCodeInvalidDocument, "node %q has unknown kind %q", n.ID, n.Kind)
		}
		node := nodegraph.Node{
			ID:       nodegraph.NodeID(n.ID),
			Type:     n.Type,
			Kind:     kind,
			Position: nodegraph.Point{X: n.X, Y: n.Y},
			GroupTag: n.GroupTag,
			Config:   n.Config,
		}
		if kind == nodegraph.KindProxy {
			if n.Proxy == nil {
				return nodegraph.Graph{}, errors.New(errors.ErrCodeInvalidDocument, "proxy node %q missing proxy spec", n.ID)
			}
			dir := nodegraph.DirectionInput
			switch n.Proxy.Direction {
			case "input":
			case "output":
				dir = nodegraph.DirectionOutput
			default:
				return nodegraph.Graph{}, errors.New(errors.ErrCodeInvalidDocument, "proxy node %q has direction %q", n.ID, n.Proxy.Direction)
			}
			node.Proxy = &nodegraph.ProxySpec{
				Group:     n.Proxy.Group,
				Direction: dir,
				PortType:  n.Proxy.PortType,
				Pinned:    n.Proxy.Pinned,
			}
		}
		out.Nodes = append(out.Nodes, node)
	}

	for _, c := range d.Connections {
		if !byID[c.From] || !byID[c.To] {
			return nodegraph.Graph{}, errors.New(errors.ErrCodeInvalidDocument, "connection %s.%s -> %s.%s references a missing node", c.From, c.FromPort, c.To, c.ToPort)
		}
		out.Connections = append(out.Connections, nodegraph.Connection{
			From: nodegraph.NodeID(c.From), FromPort: c.FromPort,
			To: nodegraph.NodeID(c.To), ToPort: c.ToPort,
		})
	}
	return out, nil
}

// GroupList converts the document's groups into store entries. Loaded
// groups start runtime-active; the gate sync recomputes the real value.
func (d *Document) GroupList() []*group.Group {
	out := make([]*group.Group, 0, len(d.Groups))
	for _, g := range d.Groups {
		members := make(map[nodegraph.NodeID]bool, len(g.NodeIDs))
		for _, id := range g.NodeIDs {
			members[nodegraph.NodeID(id)] = true
		}
		out = append(out, &group.Group{
			ID:            group.ID(g.ID),
			ParentID:      group.ID(g.ParentID),
			Name:          g.Name,
			NodeIDs:       members,
			Disabled:      g.Disabled,
			Minimized:     g.Minimized,
			RuntimeActive: true,
		})
	}
	return out
}

// DefinitionList returns deep copies of the document's definitions.
func (d *Document) DefinitionList() []*catalog.Definition {
	out := make([]*catalog.Definition, 0, len(d.Definitions))
	for i := range d.Definitions {
		out = append(out, d.Definitions[i].Clone())
	}
	return out
}

// Validate checks the document's structural invariants without building
// engine types: version, graph integrity and group parent links.
func (d *Document) Validate() error {
	if d.Version <= 0 || d.Version > CurrentVersion {
		return errors.New(errors.ErrCodeInvalidDocument, "unsupported document version %d", d.Version)
	}
	if _, err := d.Graph(); err != nil {
		return err
	}
	groupIDs := make(map[string]bool, len(d.Groups))
	for _, g := range d.Groups {
		if g.ID == "" {
			return errors.New(errors.ErrCodeInvalidDocument, "group with empty id")
		}
		if groupIDs[g.ID] {
			return errors.New(errors.ErrCodeInvalidDocument, "duplicate group id %q", g.ID)
		}
		groupIDs[g.ID] = true
	}
	for _, g := range d.Groups {
		if g.ParentID != "" && !groupIDs[g.ParentID] {
			return errors.New(errors.ErrCodeInvalidDocument, "group %q references missing parent %q", g.ID, g.ParentID)
		}
	}
	return nil
}
