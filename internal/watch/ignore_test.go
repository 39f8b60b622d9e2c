package watch

import (
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
)

func TestShouldIgnoreEvent(t *testing.T) {
	ignored := []string{"/src/.styles.css.swp", "/src/styles.css~", "/src/#styles.css#", "/src/.DS_Store", "/src/4913", "/src/x.tmp"}
	for _, p := range ignored {
		require.True(t, shouldIgnoreEvent(fsnotify.Event{Name: p, Op: fsnotify.Write}), p)
	}
	require.True(t, shouldIgnoreEvent(fsnotify.Event{Name: "/src/styles.css", Op: fsnotify.Chmod}))
	require.False(t, shouldIgnoreEvent(fsnotify.Event{Name: "/src/styles.css", Op: fsnotify.Write}))
	require.False(t, shouldIgnoreEvent(fsnotify.Event{Name: "/src/styles.css", Op: fsnotify.Write | fsnotify.Chmod}))
}
