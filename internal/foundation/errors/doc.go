// Package errors provides the classified error primitives used across assetpipe.
//
// A ClassifiedError carries a category (what kind of failure), a severity
// (whether the failure ends the current invocation) and structured context
// such as the source file and line reported by a collaborator.
//
// The scheduler uses the severity to decide whether a task failure can be
// isolated (dev mode keeps running) or must stop the invocation:
//
//	err := errors.SourceError("stylesheet does not compile").
//		WithContext("file", "src/styles/styles.css").
//		WithContext("line", 12).
//		WithCause(esbuildErr).
//		Build()
package errors
