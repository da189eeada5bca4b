package recovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/INLOpen/nexusedit/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDForPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	id, err := IDForPath(path)
	require.NoError(t, err)
	assert.Len(t, id, 32)
	assert.NoError(t, ValidID(id))
	assert.False(t, IsUnsavedID(id))

	again, err := IDForPath(filepath.Join(dir, ".", "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, id, again, "equivalent paths must map to the same id")

	other, err := IDForPath(filepath.Join(dir, "other.txt"))
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestIDForPath_ResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	viaTarget, err := IDForPath(target)
	require.NoError(t, err)
	viaLink, err := IDForPath(link)
	require.NoError(t, err)
	assert.Equal(t, viaTarget, viaLink)
}

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		require.NoError(t, ValidID(id))
		assert.True(t, IsUnsavedID(id))
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestValidID(t *testing.T) {
	valid := []string{"abc", "0123abcd", "new-1b4e28ba-2fa1-11d2-883f-0016d3cca427", "my.file"}
	for _, id := range valid {
		assert.NoError(t, ValidID(id), id)
	}

	invalid := []string{
		"", ".", "..", ".hidden", "a/b", `a\b`, "../etc",
		"a.chunk.0", "a.meta.json", "a.content", "a.tmp", "session.lock",
	}
	for _, id := range invalid {
		err := ValidID(id)
		require.Error(t, err, id)
		assert.True(t, core.IsValidationError(err), id)
	}
}
