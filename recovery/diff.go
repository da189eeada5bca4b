package recovery

import "github.com/INLOpen/nexusedit/core"

// DiffChunks returns the single chunk that turns original into current,
// found by trimming their common prefix and suffix. Identical inputs give no
// chunks. It is a coarse stand-in for the editor's own diff engine, useful
// when only the two byte slices are known.
func DiffChunks(original, current []byte) []core.Chunk {
	prefix := 0
	for prefix < len(original) && prefix < len(current) && original[prefix] == current[prefix] {
		prefix++
	}
	if prefix == len(original) && prefix == len(current) {
		return nil
	}

	suffix := 0
	for suffix < len(original)-prefix && suffix < len(current)-prefix &&
		original[len(original)-1-suffix] == current[len(current)-1-suffix] {
		suffix++
	}

	content := make([]byte, len(current)-prefix-suffix)
	copy(content, current[prefix:len(current)-suffix])
	return []core.Chunk{{
		Offset:      prefix,
		OriginalLen: len(original) - prefix - suffix,
		Content:     content,
	}}
}
