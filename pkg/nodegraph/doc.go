// Package nodegraph defines the contracts between the grouping engine and
// its external collaborators: the node-graph execution engine that owns
// authoritative node and connection state, the view adapter that translates
// between screen pixels and graph coordinates, the node type registry, and
// the loop deploy system.
//
// The package also ships an in-memory reference implementation of the engine
// and view adapter ([Memory], [MemoryView]) used by the CLI, the HTTP API,
// and tests. Production editors substitute their own implementations.
//
// # Snapshots
//
// Passes that read the graph (normalization, geometry, gate sync) operate on
// an explicit [Snapshot] taken via [NewSnapshot] rather than on ambient
// state, so a pass always sees one consistent view of the graph even while
// the engine is being mutated between passes.
package nodegraph
