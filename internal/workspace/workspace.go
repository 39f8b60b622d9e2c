package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/logfields"
)

// Manager handles the ephemeral workspace of a single invocation.
type Manager struct {
	baseDir string

	mu      sync.Mutex
	tempDir string
}

// NewManager creates a workspace manager rooted at baseDir (os.TempDir when empty).
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir}
}

// Create creates a timestamped workspace directory. Calling it again is a no-op.
func (m *Manager) Create() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tempDir != "" {
		return nil
	}

	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return fmt.Errorf("failed to create workspace base directory: %w", err)
	}
	pattern := fmt.Sprintf("assetpipe-%s-*", time.Now().Format("20060102-150405"))
	tempDir, err := os.MkdirTemp(m.baseDir, pattern)
	if err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	m.tempDir = tempDir
	slog.Debug("Created workspace", logfields.Path(tempDir))
	return nil
}

// GetPath returns the path to the workspace directory.
func (m *Manager) GetPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tempDir
}

// Cleanup removes the workspace directory and everything staged in it.
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tempDir == "" {
		return nil
	}

	if err := os.RemoveAll(m.tempDir); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}

	slog.Debug("Cleaned up workspace", logfields.Path(m.tempDir))
	m.tempDir = ""
	return nil
}

// CreateSubdir creates a fixed-name subdirectory within the workspace.
func (m *Manager) CreateSubdir(name string) (string, error) {
	root := m.GetPath()
	if root == "" {
		return "", fmt.Errorf("workspace not created")
	}

	subdir := filepath.Join(root, name)
	if err := os.MkdirAll(subdir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create subdirectory: %w", err)
	}
	return subdir, nil
}

// StagingDir creates a unique directory for one step invocation. Concurrent
// callers with the same name never share a directory.
func (m *Manager) StagingDir(name string) (string, error) {
	if err := m.Create(); err != nil {
		return "", err
	}
	dir, err := os.MkdirTemp(m.GetPath(), name+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	return dir, nil
}
