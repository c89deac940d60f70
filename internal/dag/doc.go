// Package dag holds the dependency graph between computational units. An
// edge from a scratch unit to its consumer says the scratch unit must be
// evaluated first inside every micro-block.
//
// The graph is built once while the kernel is assembled. Flatten then turns
// each unit's transitive prerequisites into a precomputed, topologically
// ordered list, so the micro-block hot path never walks the graph.
package dag
