// Package taskgraph declares named tasks, their series/parallel composition
// and a scheduler that runs a graph root once per invocation.
//
// A Graph is built explicitly with New and validated up front: task names are
// unique, every Ref resolves and the dependency relation is acyclic. The
// Scheduler then walks a root Node:
//
//   - Series runs members in order and stops at the first failure.
//   - Parallel starts every member at once, waits for all of them and joins
//     their errors. Siblings are never cancelled.
//   - Each task runs at most once per invocation. Later references wait for
//     the first execution and observe its outcome.
//
// The failure policy decides what a failed task means for its parents.
// PolicyAggregate propagates every failure. PolicyIsolate records non-fatal
// failures in the Report and lets the rest of the graph continue. Fatal
// errors propagate under both policies.
package taskgraph
