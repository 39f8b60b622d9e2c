// Package transform wraps the external collaborators of the pipeline
// (template compiler, style and script bundler, image optimizer, sitemap
// writer, cache-bust rewriter) behind a single Step contract.
//
// A Step only ever writes into a private staging directory. The Runner
// creates that directory, invokes the step and, when the step succeeded,
// publishes the staged tree to every destination of the effective build
// mode. A failed step therefore leaves all destinations untouched.
package transform
