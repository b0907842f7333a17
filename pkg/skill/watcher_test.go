package skill

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_NotifiesOnDocumentWrite(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "foo", "initial body")

	w, err := NewWatcher(NewRegistry(root))
	require.NoError(t, err)
	w.debounceMs = 20
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "foo", DocumentName), []byte("edited"), 0644))

	select {
	case id := <-w.Changes():
		assert.Equal(t, "foo", id)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "foo", "body")

	w, err := NewWatcher(NewRegistry(root))
	require.NoError(t, err)
	w.debounceMs = 20
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "foo", "notes.txt"), []byte("x"), 0644))

	select {
	case id := <-w.Changes():
		t.Fatalf("unexpected notification for %q", id)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_StopClosesChanges(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(NewRegistry(root))
	require.NoError(t, err)
	require.NoError(t, w.Start())

	done := make(chan struct{})
	go func() {
		// Mirrors how the serve command consumes notifications; Stop
		// must end this loop rather than leak it.
		for range w.Changes() {
		}
		close(done)
	}()

	require.NoError(t, w.Stop())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber loop still blocked after Stop")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(NewRegistry(root))
	require.NoError(t, err)
	require.NoError(t, w.Start())

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
