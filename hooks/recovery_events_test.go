package hooks_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/INLOpen/nexusedit/core"
	"github.com/INLOpen/nexusedit/hooks"
	"github.com/INLOpen/nexusedit/recovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	async  bool
	reject error
	events []hooks.HookEvent
}

func (l *eventLog) OnEvent(_ context.Context, event hooks.HookEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return l.reject
}

func (l *eventLog) Priority() int { return 0 }
func (l *eventLog) IsAsync() bool { return l.async }

func (l *eventLog) payloads() []interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]interface{}, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Payload())
	}
	return out
}

const originalText = "Hello, this is the original content of the file!"

func newHookedStore(t *testing.T) (*recovery.Store, hooks.HookManager, string) {
	t.Helper()
	hm := hooks.NewHookManager(nil)
	dir := filepath.Join(t.TempDir(), "recovery")
	s, err := recovery.New(dir, recovery.WithHookManager(hm))
	require.NoError(t, err)
	return s, hm, dir
}

func saveRequest(id string, chunks []core.Chunk) recovery.SaveRequest {
	return recovery.SaveRequest{
		ID:               id,
		Chunks:           chunks,
		OriginalFileSize: len(originalText),
		FinalSize:        core.NewChunkIndex(len(originalText), chunks).FinalSize,
	}
}

func snapshotDir(t *testing.T, dir string) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	files := make(map[string]string, len(entries))
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		files[e.Name()] = string(data)
	}
	return files
}

func TestStoreEvents_RejectedPreSaveKeepsChunkSet(t *testing.T) {
	s, hm, dir := newHookedStore(t)
	first := []core.Chunk{{Offset: 19, OriginalLen: 8, Content: []byte("MODIFIED")}}
	_, err := s.Save(context.Background(), saveRequest("buf", first))
	require.NoError(t, err)
	before := snapshotDir(t, dir)

	errPaused := errors.New("autosave paused")
	gate := &eventLog{reject: errPaused}
	hm.Register(hooks.EventPreSaveRecovery, gate)

	second := []core.Chunk{
		{Offset: 0, OriginalLen: 0, Content: []byte("PREFIX ")},
		{Offset: 19, OriginalLen: 8, Content: []byte("rewritten")},
	}
	_, err = s.Save(context.Background(), saveRequest("buf", second))
	require.ErrorIs(t, err, errPaused)

	assert.Equal(t, before, snapshotDir(t, dir), "a cancelled save must not touch the entry")
	require.Len(t, gate.payloads(), 1)
	assert.Equal(t, hooks.PreSaveRecoveryPayload{
		ID:               "buf",
		ChunkCount:       2,
		OriginalFileSize: len(originalText),
		FinalSize:        len(originalText) + 7 + 1,
	}, gate.payloads()[0])
}

func TestStoreEvents_AsyncPostSaveSeesBytesWritten(t *testing.T) {
	s, hm, dir := newHookedStore(t)
	post := &eventLog{async: true}
	hm.Register(hooks.EventPostSaveRecovery, post)

	chunks := []core.Chunk{
		{Offset: 0, OriginalLen: 5, Content: []byte("Howdy")},
		{Offset: 19, OriginalLen: 8, Content: []byte("MODIFIED")},
		{Offset: 47, OriginalLen: 1, Content: nil},
	}
	_, err := s.Save(context.Background(), saveRequest("buf", chunks))
	require.NoError(t, err)
	hm.Stop()

	metaInfo, err := os.Stat(filepath.Join(dir, core.FormatMetaFileName("buf")))
	require.NoError(t, err)

	require.Len(t, post.payloads(), 1)
	payload := post.payloads()[0].(hooks.PostSaveRecoveryPayload)
	assert.Equal(t, "buf", payload.ID)
	assert.Equal(t, 3, payload.ChunkCount)
	assert.Equal(t, len(originalText)-1, payload.ContentSize)
	assert.Equal(t, int64(len("Howdy")+len("MODIFIED"))+metaInfo.Size(), payload.BytesWritten)
}

func TestStoreEvents_IntegrityErrorOncePerFailedReconstruct(t *testing.T) {
	s, hm, dir := newHookedStore(t)
	integrity := &eventLog{}
	reconstructed := &eventLog{}
	hm.Register(hooks.EventOnIntegrityError, integrity)
	hm.Register(hooks.EventPostReconstruct, reconstructed)

	originalPath := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(originalPath, []byte(originalText), 0o644))

	chunks := []core.Chunk{
		{Offset: 0, OriginalLen: 0, Content: []byte("PREFIX ")},
		{Offset: 19, OriginalLen: 8, Content: []byte("MODIFIED")},
	}
	_, err := s.Save(context.Background(), saveRequest("buf", chunks))
	require.NoError(t, err)

	content, err := s.ReconstructFromChunks(context.Background(), "buf", originalPath)
	require.NoError(t, err)
	assert.Equal(t, "PREFIX Hello, this is the MODIFIED content of the file!", string(content))
	assert.Empty(t, integrity.payloads())
	require.Len(t, reconstructed.payloads(), 1)

	require.NoError(t, os.Remove(filepath.Join(dir, core.FormatChunkFileName("buf", 1))))
	for i := 0; i < 2; i++ {
		_, err := s.ReconstructFromChunks(context.Background(), "buf", originalPath)
		require.True(t, core.IsIntegrityError(err))
	}
	require.Len(t, integrity.payloads(), 2)
	for _, p := range integrity.payloads() {
		payload := p.(hooks.IntegrityErrorPayload)
		assert.Equal(t, "buf", payload.ID)
		assert.ErrorIs(t, payload.Err, core.ErrNotFound)
	}

	// Restore the chunk set, then change the original under it.
	_, err = s.Save(context.Background(), saveRequest("buf", chunks))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(originalPath, []byte(originalText+" appended"), 0o644))
	_, err = s.ReconstructFromChunks(context.Background(), "buf", originalPath)
	require.True(t, core.IsIntegrityError(err))
	assert.Len(t, integrity.payloads(), 3)
	assert.Len(t, reconstructed.payloads(), 1, "failed reconstructions do not report success")
}
