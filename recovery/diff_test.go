package recovery

import (
	"testing"

	"github.com/INLOpen/nexusedit/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffChunks(t *testing.T) {
	testCases := []struct {
		name     string
		original string
		current  string
		want     []core.Chunk
	}{
		{name: "identical", original: "same", current: "same", want: nil},
		{name: "both empty", original: "", current: "", want: nil},
		{name: "insert in middle", original: "abef", current: "abcdef",
			want: []core.Chunk{{Offset: 2, OriginalLen: 0, Content: []byte("cd")}}},
		{name: "delete in middle", original: "abcdef", current: "abef",
			want: []core.Chunk{{Offset: 2, OriginalLen: 2, Content: []byte{}}}},
		{name: "replace", original: "hello world", current: "hello there",
			want: []core.Chunk{{Offset: 6, OriginalLen: 5, Content: []byte("there")}}},
		{name: "append", original: "abc", current: "abcdef",
			want: []core.Chunk{{Offset: 3, OriginalLen: 0, Content: []byte("def")}}},
		{name: "repeated bytes", original: "aaaa", current: "aaaaaa",
			want: []core.Chunk{{Offset: 4, OriginalLen: 0, Content: []byte("aa")}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := DiffChunks([]byte(tc.original), []byte(tc.current))
			assert.Equal(t, tc.want, got)

			applied, err := ApplyChunks([]byte(tc.original), got)
			require.NoError(t, err)
			assert.Equal(t, tc.current, string(applied))
		})
	}
}

func TestDiffChunks_DoesNotAliasCurrent(t *testing.T) {
	current := []byte("abXYef")
	chunks := DiffChunks([]byte("abcdef"), current)
	require.Len(t, chunks, 1)
	current[2] = '!'
	assert.Equal(t, "XY", string(chunks[0].Content))
}
