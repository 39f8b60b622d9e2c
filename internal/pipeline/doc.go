// Package pipeline wires configuration into the transform step
// definitions, the task graph and the watch bindings, and drives the two
// entry points: a one-shot Build and a long-running Dev session.
//
// The graph is built once by New:
//
//	assets      = parallel(styles, templates, scripts, images)
//	postprocess = parallel(sitemap, cache)
//	build       = series(assets, postprocess)
//	dev         = parallel(serve, series(styles, templates, scripts, images))
package pipeline
