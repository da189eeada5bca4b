package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFileName(t *testing.T) {
	testCases := []struct {
		name     string
		wantID   string
		wantKind FileKind
		wantNum  int
	}{
		{"session.lock", "", FileKindSessionLock, -1},
		{"abc.meta.json", "abc", FileKindMeta, -1},
		{"abc.chunk.0", "abc", FileKindChunk, 0},
		{"abc.chunk.12", "abc", FileKindChunk, 12},
		{"a.b.chunk.3", "a.b", FileKindChunk, 3},
		{"abc.content", "abc", FileKindLegacyContent, -1},
		{"abc.meta.json.tmp", "abc", FileKindTemp, -1},
		{"abc.chunk.4.tmp", "abc", FileKindTemp, -1},
		{"abc.chunk.x", "", FileKindUnknown, -1},
		{"abc.chunk.-1", "", FileKindUnknown, -1},
		{".chunk.1", "", FileKindUnknown, -1},
		{"notes.txt", "", FileKindUnknown, -1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, kind, n := ParseFileName(tc.name)
			assert.Equal(t, tc.wantID, id)
			assert.Equal(t, tc.wantKind, kind)
			assert.Equal(t, tc.wantNum, n)
		})
	}
}

func TestFormatFileNames_RoundTrip(t *testing.T) {
	id, kind, n := ParseFileName(FormatChunkFileName("deadbeef", 7))
	assert.Equal(t, "deadbeef", id)
	assert.Equal(t, FileKindChunk, kind)
	assert.Equal(t, 7, n)

	id, kind, _ = ParseFileName(FormatMetaFileName("deadbeef"))
	assert.Equal(t, "deadbeef", id)
	assert.Equal(t, FileKindMeta, kind)

	id, kind, _ = ParseFileName(FormatLegacyContentFileName("deadbeef"))
	assert.Equal(t, "deadbeef", id)
	assert.Equal(t, FileKindLegacyContent, kind)

	assert.Equal(t, "x.meta.json.tmp", FormatTempFilename(FormatMetaFileName("x"), TempFileSuffix))
}
