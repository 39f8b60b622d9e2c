// Package watch maps filesystem changes under binding globs to task runs.
//
// Every binding owns a debounce (quiet window plus max wait) feeding a
// single-slot coalescer: while a run is in progress further triggers
// collapse into exactly one follow-up run, which starts after the current
// one and therefore sees every change made before it started. Bindings run
// independently of each other.
package watch
