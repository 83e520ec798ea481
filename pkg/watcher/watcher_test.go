package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	_, err := New(Config{OnChange: func(string) error { return nil }})
	assert.Error(t, err)

	_, err = New(Config{Path: "tools.yaml"})
	assert.Error(t, err)
}

func startWatcher(t *testing.T, path string, onChange ChangeCallback) *DefinitionsWatcher {
	t.Helper()
	w, err := New(Config{
		Path:               path,
		StabilityThreshold: 50 * time.Millisecond,
		OnChange:           onChange,
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tools: []\n"), 0o644))

	changed := make(chan string, 8)
	startWatcher(t, path, func(p string) error {
		changed <- p
		return nil
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("tools: []\n# edit\n"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case got := <-changed:
		want, err := filepath.Abs(path)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatal("change callback not called")
	}

	select {
	case <-changed:
		t.Fatal("burst of writes should produce one callback")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherSeesAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tools: []\n"), 0o644))

	changed := make(chan struct{}, 8)
	startWatcher(t, path, func(string) error {
		changed <- struct{}{}
		return nil
	})

	tmp := filepath.Join(dir, ".tools.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("handlers: []\n"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("rename into place was not detected")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")

	var calls atomic.Int32
	startWatcher(t, path, func(string) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatcherCallbackErrorKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")

	var calls atomic.Int32
	startWatcher(t, path, func(string) error {
		calls.Add(1)
		return errors.New("bad yaml")
	})

	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("b"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	w, err := New(Config{Path: filepath.Join(t.TempDir(), "tools.yaml"), OnChange: func(string) error { return nil }})
	require.NoError(t, err)
	require.NoError(t, w.Start())

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
