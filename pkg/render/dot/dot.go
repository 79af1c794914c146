// Package dot exports the grouped node graph as Graphviz DOT, one nested
// subgraph cluster per group, and renders DOT to SVG or PNG.
package dot

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

// Options configures DOT export.
type Options struct {
	// Detailed adds port names to edges and node types to labels.
	Detailed bool
}

// ToDOT converts the grouped graph to Graphviz DOT. Groups become nested
// subgraph clusters; boundary proxies are drawn dashed, gates as diamonds,
// minimized-group placeholders as grey notes. Disabled groups render with
// grey cluster borders.
func ToDOT(snap *nodegraph.Snapshot, store *group.Store, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  compound=true;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=12];\n")
	buf.WriteString("\n")

	placed := make(map[nodegraph.NodeID]bool)
	roots := groupsByID(store, store.Roots())
	sortGroups(roots)
	for _, g := range roots {
		writeCluster(&buf, snap, store, g, 1, placed, opts)
	}

	// Ungrouped nodes at top level.
	for _, n := range snap.Nodes() {
		if !placed[n.ID] {
			writeNode(&buf, n, 1, opts)
		}
	}

	buf.WriteString("\n")
	for _, c := range snap.Connections() {
		if opts.Detailed {
			fmt.Fprintf(&buf, "  %q -> %q [taillabel=%q, headlabel=%q, fontsize=8];\n",
				c.From, c.To, c.FromPort, c.ToPort)
		} else {
			fmt.Fprintf(&buf, "  %q -> %q;\n", c.From, c.To)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func writeCluster(buf *bytes.Buffer, snap *nodegraph.Snapshot, store *group.Store, g *group.Group, depth int, placed map[nodegraph.NodeID]bool, opts Options) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(buf, "%ssubgraph \"cluster_%s\" {\n", indent, g.ID)
	fmt.Fprintf(buf, "%s  label=%q;\n", indent, g.Name)
	if store.EffectiveDisabled(g.ID) {
		fmt.Fprintf(buf, "%s  color=grey; fontcolor=grey; style=dashed;\n", indent)
	} else {
		fmt.Fprintf(buf, "%s  color=black;\n", indent)
	}

	children := groupsByID(store, store.Children(g.ID))
	sortGroups(children)
	for _, child := range children {
		writeCluster(buf, snap, store, child, depth+1, placed, opts)
	}

	for _, n := range clusterNodes(snap, store, g.ID) {
		writeNode(buf, n, depth+1, opts)
		placed[n.ID] = true
	}

	fmt.Fprintf(buf, "%s}\n", indent)
}

// clusterNodes returns the nodes drawn inside a group's cluster: regular
// members whose primary group is this one, plus the decorations tagged to
// it.
func clusterNodes(snap *nodegraph.Snapshot, store *group.Store, gid group.ID) []nodegraph.Node {
	var out []nodegraph.Node
	for _, n := range snap.Nodes() {
		switch n.Kind {
		case nodegraph.KindRegular:
			if primary, ok := store.PrimaryGroup(n.ID); ok && primary == gid {
				out = append(out, n)
			}
		case nodegraph.KindProxy:
			if n.Proxy != nil && group.ID(n.Proxy.Group) == gid {
				out = append(out, n)
			}
		default:
			if group.ID(n.GroupTag) == gid {
				out = append(out, n)
			}
		}
	}
	return out
}

func writeNode(buf *bytes.Buffer, n nodegraph.Node, depth int, opts Options) {
	indent := strings.Repeat("  ", depth)
	label := string(n.ID)
	if opts.Detailed {
		label += "\n" + n.Type
	}
	attrs := []string{fmt.Sprintf("label=%q", label)}
	switch n.Kind {
	case nodegraph.KindProxy:
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey")
		if n.Proxy != nil {
			attrs = append(attrs, fmt.Sprintf("tooltip=%q", n.Proxy.Direction.String()))
		}
	case nodegraph.KindGate:
		attrs = append(attrs, "shape=diamond", "style=filled", "fillcolor=lightyellow")
	case nodegraph.KindPlaceholder:
		attrs = append(attrs, "shape=note", "style=\"filled,dashed\"", "fillcolor=lightgrey")
	case nodegraph.KindConverter:
		attrs = append(attrs, "shape=oval", "fillcolor=lightyellow")
	}
	fmt.Fprintf(buf, "%s%q [%s];\n", indent, n.ID, strings.Join(attrs, ", "))
}

func groupsByID(store *group.Store, ids []group.ID) []*group.Group {
	out := make([]*group.Group, 0, len(ids))
	for _, id := range ids {
		if g, ok := store.Get(id); ok {
			out = append(out, g)
		}
	}
	return out
}

func sortGroups(groups []*group.Group) {
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	return render(dot, graphviz.SVG)
}

// RenderPNG renders a DOT graph to PNG using Graphviz.
func RenderPNG(dot string) ([]byte, error) {
	return render(dot, graphviz.PNG)
}

func render(dot string, format graphviz.Format) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, format, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
