// Package render holds the visualization backends for grouped node graphs.
//
// The [dot] subpackage exports a grouped graph as Graphviz DOT, one nested
// subgraph cluster per group, and renders DOT to SVG or PNG via go-graphviz.
// Disabled groups draw dimmed, boundary proxies dashed, and gates as
// diamonds, so the rendered output mirrors the editor's visual state.
//
//	dotSrc := dot.ToDOT(snap, store, dot.Options{})
//	svg, err := dot.RenderSVG(ctx, dotSrc)
//
// [dot]: github.com/matzehuels/corral/pkg/render/dot
package render
