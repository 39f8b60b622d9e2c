// Package testing contains fixture projects and file assertions shared by
// package tests.
package testing

const (
	testDirPermissions  = 0o750
	testFilePermissions = 0o600
)
