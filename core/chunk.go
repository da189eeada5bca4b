package core

// Chunk replaces OriginalLen bytes of the original content starting at
// Offset with Content. OriginalLen == 0 is a pure insertion, an empty
// Content is a pure deletion.
type Chunk struct {
	Offset      int
	OriginalLen int
	Content     []byte
}

// IsInsert reports whether the chunk only adds bytes.
func (c Chunk) IsInsert() bool { return c.OriginalLen == 0 && len(c.Content) > 0 }

// IsDelete reports whether the chunk only removes bytes.
func (c Chunk) IsDelete() bool { return c.OriginalLen > 0 && len(c.Content) == 0 }

// End is the first original offset after the replaced span.
func (c Chunk) End() int { return c.Offset + c.OriginalLen }

// Delta is the change in content length the chunk causes.
func (c Chunk) Delta() int { return len(c.Content) - c.OriginalLen }

// ChunkRef is the content-free description of a chunk stored in an index.
type ChunkRef struct {
	Offset      int `json:"offset"`
	OriginalLen int `json:"original_len"`
}

// ChunkIndex describes a chunk set without its payloads. It is embedded in
// recovery metadata so an entry can be inspected without touching chunk files.
type ChunkIndex struct {
	OriginalSize int        `json:"original_size"`
	FinalSize    int        `json:"final_size"`
	Chunks       []ChunkRef `json:"chunks"`
}

// NewChunkIndex builds the index of chunks. FinalSize is derived from the
// chunks rather than trusted from the caller.
func NewChunkIndex(originalSize int, chunks []Chunk) ChunkIndex {
	idx := ChunkIndex{
		OriginalSize: originalSize,
		FinalSize:    originalSize,
		Chunks:       make([]ChunkRef, 0, len(chunks)),
	}
	for _, c := range chunks {
		idx.Chunks = append(idx.Chunks, ChunkRef{Offset: c.Offset, OriginalLen: c.OriginalLen})
		idx.FinalSize += c.Delta()
	}
	return idx
}

// ChunkedData is a ChunkIndex together with the chunk payloads, in index order.
type ChunkedData struct {
	Index  ChunkIndex
	Chunks []Chunk
}

// ContentBytes is the total payload size of all chunks.
func (d *ChunkedData) ContentBytes() int {
	n := 0
	for _, c := range d.Chunks {
		n += len(c.Content)
	}
	return n
}
