package transform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/buildmode"
)

// writeTree creates files (slash separated keys) under root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

// produce runs step directly against a staging dir and returns it.
func produce(t *testing.T, step Step, mode buildmode.Mode, sourceRoot string, opts map[string]string) (string, Output, error) {
	t.Helper()
	staging := t.TempDir()
	eff := buildmode.Configure(buildmode.StepSpec{Name: "test", Options: opts}, mode, buildmode.Roots{Primary: t.TempDir()})
	out, err := step.Produce(context.Background(), Input{SourceRoot: sourceRoot, Staging: staging, Effective: eff})
	return staging, out, err
}
