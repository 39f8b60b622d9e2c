package transform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/buildmode"
	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/workspace"
)

func writeStep(name, content string) Step {
	return StepFunc(func(_ context.Context, in Input) (Output, error) {
		return Output{Files: 1}, os.WriteFile(filepath.Join(in.Staging, name), []byte(content), 0o600)
	})
}

func newTestRunner(t *testing.T) (*Runner, buildmode.Roots) {
	t.Helper()
	base := t.TempDir()
	roots := buildmode.Roots{Primary: filepath.Join(base, "public"), Mirror: filepath.Join(base, "docs")}
	ws := workspace.NewManager(filepath.Join(base, "ws"))
	t.Cleanup(func() { _ = ws.Cleanup() })
	return NewRunner(ws, roots), roots
}

func TestRunner_PublishesPerMode(t *testing.T) {
	runner, roots := newTestRunner(t)
	def := Definition{Name: "styles", SourceRoot: t.TempDir(), Subdir: "assets/css", Step: writeStep("styles.css", "body{}")}

	require.NoError(t, runner.Run(context.Background(), buildmode.Dev, def))
	require.FileExists(t, filepath.Join(roots.Primary, "assets/css/styles.css"))
	require.NoFileExists(t, filepath.Join(roots.Mirror, "assets/css/styles.css"))

	require.NoError(t, runner.Run(context.Background(), buildmode.Build, def))
	require.Equal(t, "body{}", readFile(t, filepath.Join(roots.Mirror, "assets/css/styles.css")))
}

func TestRunner_FailedStepPublishesNothing(t *testing.T) {
	runner, roots := newTestRunner(t)
	target := filepath.Join(roots.Primary, "assets/css/styles.css")
	writeTree(t, roots.Primary, map[string]string{"assets/css/styles.css": "previous"})

	failing := StepFunc(func(_ context.Context, in Input) (Output, error) {
		_ = os.WriteFile(filepath.Join(in.Staging, "styles.css"), []byte("partial"), 0o600)
		return Output{}, derrors.SourceError("unexpected }").WithContext("file", "styles.css").WithContext("line", 3).Build()
	})
	err := runner.Run(context.Background(), buildmode.Build,
		Definition{Name: "styles", SourceRoot: t.TempDir(), Subdir: "assets/css", Step: failing})

	require.Error(t, err)
	require.True(t, derrors.HasCategory(err, derrors.CategorySource))
	require.False(t, derrors.IsFatal(err))
	require.Equal(t, "previous", readFile(t, target))
	require.NoFileExists(t, filepath.Join(roots.Mirror, "assets/css/styles.css"))
}

func TestRunner_MissingSourceRootIsFatal(t *testing.T) {
	runner, _ := newTestRunner(t)
	err := runner.Run(context.Background(), buildmode.Dev,
		Definition{Name: "images", SourceRoot: filepath.Join(t.TempDir(), "missing"), Step: writeStep("x", "")})
	require.True(t, derrors.HasCategory(err, derrors.CategoryFileSystem))
	require.True(t, derrors.IsFatal(err))
}

func TestRunner_PublishFailureIsFatal(t *testing.T) {
	runner, roots := newTestRunner(t)
	require.NoError(t, os.MkdirAll(roots.Primary, 0o750))
	// A file where the destination directory should be.
	require.NoError(t, os.WriteFile(filepath.Join(roots.Primary, "assets"), []byte("x"), 0o600))

	err := runner.Run(context.Background(), buildmode.Dev,
		Definition{Name: "styles", SourceRoot: t.TempDir(), Subdir: "assets/css", Step: writeStep("styles.css", "")})
	require.Error(t, err)
	require.True(t, derrors.HasCategory(err, derrors.CategoryFileSystem))
	require.True(t, derrors.IsFatal(err))
}

func TestRunner_ErrorClassification(t *testing.T) {
	runner, _ := newTestRunner(t)
	plain := StepFunc(func(context.Context, Input) (Output, error) { return Output{}, errors.New("boom") })

	err := runner.Run(context.Background(), buildmode.Dev, Definition{Name: "x", SourceRoot: t.TempDir(), Step: plain})
	require.True(t, derrors.HasCategory(err, derrors.CategoryCollaborator))
	require.False(t, derrors.IsFatal(err))

	err = runner.Run(context.Background(), buildmode.Dev,
		Definition{Name: "x", SourceRoot: t.TempDir(), Step: plain, OnError: OnErrorFatal})
	require.True(t, derrors.IsFatal(err))
}

func TestRunner_WithRoots(t *testing.T) {
	runner, roots := newTestRunner(t)
	staged := filepath.Join(t.TempDir(), "mirror-staging")
	ctx := WithRoots(context.Background(), buildmode.Roots{Primary: roots.Primary, Mirror: staged})

	require.NoError(t, runner.Run(ctx, buildmode.Build,
		Definition{Name: "sitemap", SourceRoot: t.TempDir(), Step: writeStep("sitemap.xml", "<urlset/>")}))
	require.FileExists(t, filepath.Join(staged, "sitemap.xml"))
	require.NoFileExists(t, filepath.Join(roots.Mirror, "sitemap.xml"))
}

func TestDefinition_Validate(t *testing.T) {
	require.Error(t, Definition{SourceRoot: "x", Step: writeStep("a", "")}.Validate())
	require.Error(t, Definition{Name: "a", Step: writeStep("a", "")}.Validate())
	require.Error(t, Definition{Name: "a", SourceRoot: "x"}.Validate())
	require.Error(t, Definition{Name: "a", SourceRoot: "x", Subdir: "../out", Step: writeStep("a", "")}.Validate())
	require.NoError(t, Definition{Name: "a", SourceRoot: "x", Subdir: "assets", Step: writeStep("a", "")}.Validate())
}
