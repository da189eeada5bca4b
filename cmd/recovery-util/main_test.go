package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliEnv struct {
	t      *testing.T
	dir    string
	config string
}

func newCLIEnv(t *testing.T) *cliEnv {
	dir := filepath.Join(t.TempDir(), "recovery")
	return &cliEnv{t: t, dir: dir, config: filepath.Join(dir, "absent.yaml")}
}

func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	return e.runContext(context.Background(), args...)
}

func (e *cliEnv) runContext(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	full := append([]string{"--config", e.config, "--dir", e.dir}, args...)
	err := run(ctx, full, &stdout, &stderr)
	return stdout.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCLI_SaveListReconstructDelete(t *testing.T) {
	env := newCLIEnv(t)
	original := writeFile(t, "notes.txt", "Hello, this is the original content of the file!")
	edited := writeFile(t, "notes.edited", "Hello, this is the MODIFIED content of the file!\n")

	out, err := env.run("id", original)
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.Len(t, id, 32)

	out, err = env.run("save", original, edited)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved "+id)

	out, err = env.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "notes.txt")
	assert.Contains(t, out, "chunked")

	out, err = env.run("show", id)
	require.NoError(t, err)
	assert.Contains(t, out, `"original_path"`)

	out, err = env.run("reconstruct", id, original)
	require.NoError(t, err)
	assert.Equal(t, "Hello, this is the MODIFIED content of the file!\n", out)

	target := filepath.Join(t.TempDir(), "restored.txt")
	_, err = env.run("reconstruct", id, original, "-o", target)
	require.NoError(t, err)
	restored, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "Hello, this is the MODIFIED content of the file!\n", string(restored))

	_, err = env.run("delete", id)
	require.NoError(t, err)
	out, err = env.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "No recovery entries found.")
}

func TestCLI_ExportImport(t *testing.T) {
	env := newCLIEnv(t)
	original := writeFile(t, "a.txt", "abcdef")
	edited := writeFile(t, "a.edited", "abXYZef")

	_, err := env.run("save", "--id", "buf", original, edited)
	require.NoError(t, err)

	bundlePath := filepath.Join(t.TempDir(), "buf.nxrb")
	out, err := env.run("export", "--compression", "lz4", "buf", bundlePath)
	require.NoError(t, err)
	assert.Contains(t, out, "lz4")

	other := newCLIEnv(t)
	_, err = other.run("import", bundlePath)
	require.NoError(t, err)
	out, err = other.run("reconstruct", "buf", original)
	require.NoError(t, err)
	assert.Equal(t, "abXYZef", out)

	_, err = env.run("export", "--compression", "brotli", "buf", bundlePath)
	assert.ErrorIs(t, err, errUsage)
}

func TestCLI_CleanupAndCrashCheck(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.MkdirAll(env.dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "lost.chunk.0"), []byte("x"), 0o644))

	out, err := env.run("cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 orphaned entry")

	out, err = env.run("crash-check")
	require.NoError(t, err)
	assert.Contains(t, out, "No crash detected")

	_, err = env.run("crash-check", "--claim")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(env.dir, "session.lock"))
	require.NoError(t, err)

	out, err = env.run("cleanup-all")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 files")
	_, err = os.Stat(filepath.Join(env.dir, "session.lock"))
	assert.NoError(t, err, "cleanup-all keeps the session lock")
}

func TestCLI_UsageErrors(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run()
	assert.ErrorIs(t, err, errUsage)

	_, err = env.run("frobnicate")
	assert.ErrorIs(t, err, errUsage)

	_, err = env.run("show")
	assert.ErrorIs(t, err, errUsage)

	_, err = env.run("reconstruct", "only-one")
	assert.ErrorIs(t, err, errUsage)
}

func TestCLI_Watch(t *testing.T) {
	env := newCLIEnv(t)
	// A zero autosave interval falls back to the default instead of
	// panicking the ticker.
	env.config = writeFile(t, "watch.yaml", "recovery:\n  autosave_interval: 0s\n  heartbeat_interval: 2ms\n")
	original := writeFile(t, "notes.txt", "first line\nsecond line\n")
	edited := writeFile(t, "notes.edited", "first line\nchanged line\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := env.runContext(ctx, "watch", original, edited)
		done <- err
	}()

	require.Eventually(t, func() bool {
		metas, _ := filepath.Glob(filepath.Join(env.dir, "*.meta.json"))
		_, lockErr := os.Stat(filepath.Join(env.dir, "session.lock"))
		return len(metas) == 1 && lockErr == nil
	}, 5*time.Second, 5*time.Millisecond, "watch should autosave and claim the lock")

	// Let a few heartbeats run before shutting down.
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not exit after cancel")
	}

	entries, err := os.ReadDir(env.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "a clean exit removes the entry and the session lock")
}
