// Package preview serves the primary output root during dev and pushes
// live reload signals to connected browsers over server-sent events.
//
// A Session is owned by one dev invocation and satisfies watch.Reloader.
package preview
