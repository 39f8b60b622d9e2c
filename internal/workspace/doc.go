// Package workspace manages the scratch directory of one invocation.
//
// Transform steps stage their output in private subdirectories created with
// StagingDir, and the build stages the mirror root here before swapping it
// into place. Everything under the workspace is removed by Cleanup.
package workspace
