// Package boundary keeps the graph's wiring consistent with group nesting.
//
// The invariant: every connection's source and target must share the same
// group-context path (the root-first chain of groups containing the
// endpoint). A wire that crosses one or more group boundaries is decomposed
// into a chain of single-hop boundary proxies, one per boundary, so that
// renderers, the minimized compact box, and the compound-node converter can
// treat each group edge as a local port row.
//
// The [Normalizer] is the only author of proxy, gate, placeholder and
// converter decoration nodes. It is idempotent: running it on an already
// normalized graph reports zero mutations. It never leaves a connection
// dangling on a deleted node, and it heals drift (orphaned proxies, stale
// direction fields) silently rather than erroring, since collaborators can
// mutate the graph outside this subsystem's control.
package boundary
