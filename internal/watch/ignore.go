package watch

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// shouldIgnoreEvent returns true for filesystem events that should not trigger runs.
func shouldIgnoreEvent(ev fsnotify.Event) bool {
	// Attribute-only changes (touch, chmod) do not alter content.
	if ev.Op == fsnotify.Chmod {
		return true
	}

	base := filepath.Base(ev.Name)

	// Hidden files, including .#lock files
	if strings.HasPrefix(base, ".") {
		return true
	}

	// Editor temp/swap files
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasSuffix(base, ".tmp") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}

	return base == "Thumbs.db" || base == "4913"
}
