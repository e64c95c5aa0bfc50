package validation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schemas.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schemas: []\n"), 0644))

	v, err := NewFromFile(path, nil)
	require.NoError(t, err)
	require.Equal(t, 0, v.SchemaCount())

	w, err := NewWatcher(path, v, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	doc := `schemas:
  - pattern: "^deploy/"
    required: ["rule"]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	ok := waitFor(t, 5*time.Second, func() bool { return w.Reloads() >= 1 })
	require.True(t, ok, "watcher never reloaded")
	assert.Equal(t, 1, v.SchemaCount())
	assert.Error(t, v.Validate("deploy/x", map[string]interface{}{}))
}

func TestWatcherCoalescesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schemas.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schemas: []\n"), 0644))

	v, err := NewFromFile(path, nil)
	require.NoError(t, err)

	w, err := NewWatcher(path, v, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	// Two saves in quick succession, like an editor writing twice. The
	// reload must fire after the burst and pick up the second write.
	first := `schemas:
  - pattern: "^deploy/"
    required: ["rule"]
`
	second := `schemas:
  - pattern: "^deploy/"
    required: ["rule"]
  - pattern: "^net/"
    required: ["cidr"]
`
	require.NoError(t, os.WriteFile(path, []byte(first), 0644))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(second), 0644))

	ok := waitFor(t, 5*time.Second, func() bool { return v.SchemaCount() == 2 })
	require.True(t, ok, "watcher never applied the final write")
	assert.Error(t, v.Validate("net/x", map[string]interface{}{}))
}

func TestWatcherKeepsPreviousSetOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schemas.yaml")
	doc := `schemas:
  - pattern: "^deploy/"
    required: ["rule"]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	v, err := NewFromFile(path, nil)
	require.NoError(t, err)
	require.Equal(t, 1, v.SchemaCount())

	w, err := NewWatcher(path, v, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("schemas: [{{ not yaml"), 0644))

	// Give the watcher a moment to observe the bad write; the schema set
	// must stay intact.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 0, w.Reloads())
	assert.Equal(t, 1, v.SchemaCount())
	assert.Error(t, v.Validate("deploy/x", map[string]interface{}{}))
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schemas.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schemas: []\n"), 0644))

	v, err := New(nil, nil)
	require.NoError(t, err)
	w, err := NewWatcher(path, v, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	w.Stop()
	w.Stop()
}
