package recovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/INLOpen/nexusedit/core"
	"github.com/INLOpen/nexusedit/sys"
)

// Metadata describes the recovery state of one buffer. It is stored as
// {id}.meta.json and never contains chunk payload bytes.
type Metadata struct {
	OriginalPath     string           `json:"original_path,omitempty"`
	BufferName       string           `json:"buffer_name,omitempty"`
	ContentSize      int              `json:"content_size"`
	LineCount        *int             `json:"line_count,omitempty"`
	OriginalMtime    *time.Time       `json:"original_mtime,omitempty"`
	ChunkCount       int              `json:"chunk_count"`
	OriginalFileSize int              `json:"original_file_size"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	ChunkIndex       *core.ChunkIndex `json:"chunked,omitempty"`
}

// DisplayName is what a recovery prompt should call the buffer.
func (m *Metadata) DisplayName() string {
	switch {
	case m.BufferName != "":
		return m.BufferName
	case m.OriginalPath != "":
		return filepath.Base(m.OriginalPath)
	default:
		return "[unnamed]"
	}
}

// Entry is the catalog's view of one buffer's recovery state.
type Entry struct {
	ID           string
	Metadata     Metadata
	MetadataPath string
	// ContentPath is where the legacy single-file format kept the full
	// buffer. Chunked entries keep their payloads in ChunkPaths.
	ContentPath string
	ChunkPaths  []string
}

// IsChunked reports whether the entry was written in the chunked format.
func (e *Entry) IsChunked() bool { return e.Metadata.ChunkIndex != nil }

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.dir, core.FormatMetaFileName(id))
}

func (s *Store) chunkPath(id string, n int) string {
	return filepath.Join(s.dir, core.FormatChunkFileName(id, n))
}

func (s *Store) legacyContentPath(id string) string {
	return filepath.Join(s.dir, core.FormatLegacyContentFileName(id))
}

// loadMetadata reads {id}.meta.json. It returns nil, nil when the file does
// not exist and an IntegrityError when it exists but cannot be parsed.
func (s *Store) loadMetadata(id string) (*Metadata, error) {
	data, err := sys.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read metadata for %s: %w", id, err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, core.NewIntegrityError(id, "unparseable metadata", err)
	}
	return &meta, nil
}

func (s *Store) writeMetadata(id string, meta *Metadata) (int, error) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to marshal metadata for %s: %w", id, err)
	}
	if err := sys.WriteFileAtomic(s.metaPath(id), data, 0o644); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (s *Store) entryFor(id string, meta *Metadata) Entry {
	e := Entry{
		ID:           id,
		Metadata:     *meta,
		MetadataPath: s.metaPath(id),
		ContentPath:  s.legacyContentPath(id),
	}
	if meta.ChunkIndex != nil {
		e.ChunkPaths = make([]string, len(meta.ChunkIndex.Chunks))
		for i := range meta.ChunkIndex.Chunks {
			e.ChunkPaths[i] = s.chunkPath(id, i)
		}
	}
	return e
}
