package recovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/INLOpen/nexusedit/core"
	"github.com/INLOpen/nexusedit/hooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, dir string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	for _, name := range dirNames(t, dir) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		files[name] = string(data)
	}
	return files
}

func TestListEntries_NewestFirst(t *testing.T) {
	clock := newStepClock()
	s, _ := newTestStore(t, WithClock(clock.Now))
	edit := []core.Chunk{{Offset: 0, OriginalLen: 0, Content: []byte("x")}}

	saveChunks(t, s, "a", "abc", edit)
	saveChunks(t, s, "b", "abc", edit)
	saveChunks(t, s, "c", "abc", edit)

	entries, err := s.ListEntries()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})

	saveChunks(t, s, "a", "abc", edit)
	entries, err = s.ListEntries()
	require.NoError(t, err)
	assert.Equal(t, "a", entries[0].ID, "a later save moves the entry to the front")
}

func TestListEntries_EmptyAndMissingDirectory(t *testing.T) {
	s, dir := newTestStore(t)
	entries, err := s.ListEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, os.RemoveAll(dir))
	entries, err = s.ListEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListEntries_SkipsCorruptMetadata(t *testing.T) {
	s, dir := newTestStore(t)
	saveChunks(t, s, "good", "abc", []core.Chunk{{Offset: 1, OriginalLen: 1, Content: []byte("B")}})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.meta.json"), []byte("garbage"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.chunk.0"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.lock"), []byte(`{"pid":1}`), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.meta.json"), 0o755))

	entries, err := s.ListEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "good", entries[0].ID)
}

func TestCleanupOrphans(t *testing.T) {
	hm := hooks.NewHookManager(nil)
	listener := &recordingListener{}
	hm.Register(hooks.EventPostCleanup, listener)
	s, dir := newTestStore(t, WithHookManager(hm))

	saveChunks(t, s, "complete", "abcdef", []core.Chunk{
		{Offset: 0, OriginalLen: 1, Content: []byte("A")},
		{Offset: 4, OriginalLen: 2},
	})
	writeLegacyEntry(t, dir, "legacy", "old style")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.lock"), []byte(`{"pid":1}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("not ours"), 0o644))
	kept := readAll(t, dir)

	// Metadata whose chunk files never made it to disk.
	saveChunks(t, s, "meta-only", "abc", []core.Chunk{{Offset: 0, OriginalLen: 1, Content: []byte("Z")}})
	require.NoError(t, os.Remove(filepath.Join(dir, "meta-only.chunk.0")))
	// Chunk files written before a crash prevented the metadata write.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunk-only.chunk.0"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunk-only.chunk.1"), []byte("b"), 0o644))
	// Only an interrupted temp file.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "temp-only.meta.json.tmp"), []byte("{"), 0o644))

	removed, err := s.CleanupOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	assert.Equal(t, kept, readAll(t, dir), "complete entries must be left byte-identical")

	removed, err = s.CleanupOrphans(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)

	events := listener.Events()
	require.Len(t, events, 2)
	payload := events[0].Payload().(hooks.PostCleanupPayload)
	assert.Equal(t, hooks.CleanupOrphans, payload.Kind)
	assert.Equal(t, 3, payload.Removed)
}

func TestCleanupOrphans_ZeroChunkEntryIsCollected(t *testing.T) {
	s, dir := newTestStore(t)
	saveChunks(t, s, "clean", "abc", nil)

	removed, err := s.CleanupOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Empty(t, dirNames(t, dir))
}

func TestCleanupAll_KeepsSessionLock(t *testing.T) {
	hm := hooks.NewHookManager(nil)
	listener := &recordingListener{}
	hm.Register(hooks.EventPostCleanup, listener)
	s, dir := newTestStore(t, WithHookManager(hm))

	saveChunks(t, s, "a", "abc", []core.Chunk{{Offset: 0, OriginalLen: 1, Content: []byte("A")}})
	saveChunks(t, s, "b", "abc", []core.Chunk{
		{Offset: 0, OriginalLen: 1, Content: []byte("A")},
		{Offset: 2, OriginalLen: 1, Content: []byte("C")},
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.chunk.0.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.lock"), []byte(`{"pid":1}`), 0o644))

	removed, err := s.CleanupAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, removed)
	assert.Equal(t, []string{"session.lock"}, dirNames(t, dir))

	entries, err := s.ListEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.Len(t, listener.Events(), 1)
	assert.Equal(t, hooks.CleanupAll, listener.Events()[0].Payload().(hooks.PostCleanupPayload).Kind)
}
