package transform

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/otiai10/copy"

	"git.home.luguber.info/inful/assetpipe/internal/buildmode"
	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
	"git.home.luguber.info/inful/assetpipe/internal/workspace"
)

type rootsKey struct{}

// WithRoots overrides the output roots for runs using ctx. The build uses
// it to point the mirror at a staged directory.
func WithRoots(ctx context.Context, roots buildmode.Roots) context.Context {
	return context.WithValue(ctx, rootsKey{}, roots)
}

// Runner executes step definitions: stage, then publish.
type Runner struct {
	ws    *workspace.Manager
	roots buildmode.Roots
}

// NewRunner creates a runner staging into ws and publishing into roots.
func NewRunner(ws *workspace.Manager, roots buildmode.Roots) *Runner {
	return &Runner{ws: ws, roots: roots}
}

// Roots returns the roots for ctx.
func (r *Runner) Roots(ctx context.Context) buildmode.Roots {
	if roots, ok := ctx.Value(rootsKey{}).(buildmode.Roots); ok {
		return roots
	}
	return r.roots
}

// Run executes def in mode. The step writes into a private staging
// directory which is published to every destination only on success.
func (r *Runner) Run(ctx context.Context, mode buildmode.Mode, def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	info, err := os.Stat(def.SourceRoot)
	if err != nil || !info.IsDir() {
		return derrors.FileSystemError("source root does not exist").
			WithCause(err).
			WithContext("step", def.Name).
			WithContext("path", def.SourceRoot).
			Build()
	}

	eff := buildmode.Configure(def.Spec(), mode, r.Roots(ctx))

	staging, err := r.ws.StagingDir(def.Name)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryFileSystem, "failed to create staging directory").
			Fatal().
			WithContext("step", def.Name).
			Build()
	}
	defer func() {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			slog.Warn("Failed to remove staging directory", logfields.Path(staging), logfields.Error(rmErr))
		}
	}()

	out, err := def.Step.Produce(ctx, Input{SourceRoot: def.SourceRoot, Staging: staging, Effective: eff})
	if err != nil {
		return classify(def, err)
	}

	for _, dst := range eff.Destinations {
		if err := publish(staging, dst); err != nil {
			return derrors.WrapError(err, derrors.CategoryFileSystem, "failed to publish step output").
				Fatal().
				WithContext("step", def.Name).
				WithContext("path", dst).
				Build()
		}
	}

	observability.DebugContext(ctx, "Step published",
		logfields.Step(def.Name),
		logfields.Files(out.Files),
		slog.Any("destinations", eff.Destinations))
	return nil
}

func publish(staging, dst string) error {
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return err
	}
	if err := copy.Copy(staging, dst, copy.Options{Sync: true}); err != nil {
		return fmt.Errorf("copy %s: %w", dst, err)
	}
	return nil
}

// classify makes sure every step failure is a classified error and applies
// the definition's error policy.
func classify(def Definition, err error) error {
	ce, ok := derrors.AsClassified(err)
	if !ok {
		ce = derrors.WrapError(err, derrors.CategoryCollaborator, "step failed").
			WithContext("step", def.Name).
			Build()
	}
	if def.OnError == OnErrorFatal && !ce.IsFatal() {
		return derrors.WrapError(ce, ce.Category(), "step failed").
			Fatal().
			WithContext("step", def.Name).
			Build()
	}
	if !ok {
		return ce
	}
	return err
}
