package pipeline

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/otiai10/copy"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/workspace"
)

// stagedMirror is a build's mirror root under construction. It lives in a
// workspace next to the real mirror so publishing is a rename on the same
// filesystem.
type stagedMirror struct {
	target string
	ws     *workspace.Manager
	dir    string
}

// stageMirror prepares a staging tree for target. It refuses targets whose
// replacement would remove the working directory or any of protected.
func stageMirror(target string, protected ...string) (*stagedMirror, error) {
	if err := config.CheckReplaceableRoot(target); err != nil {
		return nil, err
	}
	for _, p := range protected {
		if p != "" && config.Overlaps(target, p) {
			return nil, derrors.ConfigError("mirror root overlaps a source or output root").
				WithContext("mirror", target).
				WithContext("path", p).
				Build()
		}
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to resolve mirror root").Fatal().Build()
	}
	ws := workspace.NewManager(filepath.Dir(abs))
	if err := ws.Create(); err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to create mirror workspace").
			Fatal().
			WithContext("path", abs).
			Build()
	}
	dir, err := ws.CreateSubdir("mirror")
	if err != nil {
		_ = ws.Cleanup()
		return nil, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to stage mirror root").
			Fatal().
			WithContext("path", abs).
			Build()
	}
	return &stagedMirror{target: abs, ws: ws, dir: dir}, nil
}

// publish swaps the staged tree into the mirror root. The previous tree is
// moved aside first and restored if the swap fails.
func (m *stagedMirror) publish() error {
	previous := filepath.Join(m.ws.GetPath(), "previous")
	hadPrevious := false
	if _, err := os.Stat(m.target); err == nil {
		if err := os.Rename(m.target, previous); err != nil {
			// Mount points and cross-device roots cannot be renamed.
			slog.Debug("Mirror rename failed, replacing contents", logfields.Error(err))
			return m.replaceContents()
		}
		hadPrevious = true
	}

	if err := os.Rename(m.dir, m.target); err != nil {
		if hadPrevious {
			if restoreErr := os.Rename(previous, m.target); restoreErr != nil {
				slog.Error("Failed to restore previous mirror root", logfields.Error(restoreErr))
			}
		}
		return derrors.WrapError(err, derrors.CategoryFileSystem, "failed to publish mirror root").
			Fatal().
			WithContext("path", m.target).
			Build()
	}
	return nil
}

func (m *stagedMirror) replaceContents() error {
	entries, err := os.ReadDir(m.target)
	if err != nil {
		return m.fsError(err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(m.target, e.Name())); err != nil {
			return m.fsError(err)
		}
	}
	if err := copy.Copy(m.dir, m.target, copy.Options{Sync: true}); err != nil {
		return m.fsError(err)
	}
	return nil
}

func (m *stagedMirror) fsError(err error) error {
	return derrors.WrapError(err, derrors.CategoryFileSystem, "failed to publish mirror root").
		Fatal().
		WithContext("path", m.target).
		Build()
}

func (m *stagedMirror) discard() {
	if err := m.ws.Cleanup(); err != nil {
		slog.Warn("Failed to remove staged mirror", logfields.Path(m.dir), logfields.Error(err))
	}
}
