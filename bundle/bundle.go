// Package bundle packs one recovery entry into a single self-checking file
// and restores it into a recovery store.
//
// A bundle is laid out as:
//
//	header        core.FileHeader, little endian
//	manifest      uint32 length, compressed JSON of the id and metadata
//	chunk section uint32 length, compressed sequence of (uint32 length, payload)
//	trailer       CRC32 (IEEE) of everything before it
//
// Unlike the directory layout, a bundle written with WriteFile is committed
// by a single rename, so it is either absent or complete.
package bundle

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/INLOpen/nexusedit/compressors"
	"github.com/INLOpen/nexusedit/core"
	"github.com/INLOpen/nexusedit/recovery"
	"github.com/INLOpen/nexusedit/sys"
)

// ErrLegacyEntry is returned when exporting an entry that has no chunk index.
var ErrLegacyEntry = errors.New("bundle: legacy single-file entries cannot be exported")

// maxSectionSize bounds a single section so a corrupt length cannot trigger
// a huge allocation before the checksum is verified.
const maxSectionSize = 1 << 30

type manifest struct {
	ID       string            `json:"id"`
	Metadata recovery.Metadata `json:"metadata"`
}

// Export writes the entry id of store to w as a bundle compressed with c.
func Export(ctx context.Context, store *recovery.Store, id string, w io.Writer, c core.Compressor) error {
	meta, err := store.ReadMetadata(id)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("recovery %s: %w", id, core.ErrNotFound)
	}
	if meta.ChunkIndex == nil {
		return fmt.Errorf("recovery %s: %w", id, ErrLegacyEntry)
	}
	data, err := store.ReadChunkedContent(ctx, id)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("recovery %s: %w", id, core.ErrNotFound)
	}

	buf := core.BufferPool.Get()
	defer core.BufferPool.Put(buf)

	header := core.NewFileHeader(core.BundleMagicNumber, c.Type())
	if err := binary.Write(buf, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to write bundle header: %w", err)
	}

	manifestJSON, err := json.Marshal(manifest{ID: id, Metadata: *meta})
	if err != nil {
		return fmt.Errorf("failed to marshal bundle manifest: %w", err)
	}
	if err := writeSection(buf, c, manifestJSON); err != nil {
		return fmt.Errorf("failed to write bundle manifest: %w", err)
	}

	var chunkSection bytes.Buffer
	for _, chunk := range data.Chunks {
		_ = binary.Write(&chunkSection, binary.LittleEndian, uint32(len(chunk.Content)))
		chunkSection.Write(chunk.Content)
	}
	if err := writeSection(buf, c, chunkSection.Bytes()); err != nil {
		return fmt.Errorf("failed to write bundle chunks: %w", err)
	}

	_ = binary.Write(buf, binary.LittleEndian, crc32.ChecksumIEEE(buf.Bytes()))

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	return nil
}

func writeSection(buf *bytes.Buffer, c core.Compressor, payload []byte) error {
	compressed := core.BufferPool.Get()
	defer core.BufferPool.Put(compressed)
	if err := c.CompressTo(compressed, payload); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(compressed.Len())); err != nil {
		return err
	}
	_, err := buf.Write(compressed.Bytes())
	return err
}

// Decoded is the content of a bundle.
type Decoded struct {
	Header   core.FileHeader
	ID       string
	Metadata recovery.Metadata
	Chunks   []core.Chunk
}

// Decode parses and verifies a bundle without touching any store. name is
// only used in error messages.
func Decode(name string, raw []byte) (*Decoded, error) {
	corrupt := func(reason string, err error) error {
		return core.NewIntegrityError(name, reason, err)
	}

	var header core.FileHeader
	if len(raw) < header.Size()+core.ChecksumSize {
		return nil, corrupt("bundle is truncated", nil)
	}
	body := raw[:len(raw)-core.ChecksumSize]
	want := binary.LittleEndian.Uint32(raw[len(raw)-core.ChecksumSize:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, corrupt(fmt.Sprintf("checksum mismatch: stored %08x, computed %08x", want, got), nil)
	}

	r := bytes.NewReader(body)
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, corrupt("unreadable header", err)
	}
	if header.Magic != core.BundleMagicNumber {
		return nil, corrupt(fmt.Sprintf("bad magic %08x", header.Magic), nil)
	}
	if header.Version != core.FormatVersion {
		return nil, corrupt(fmt.Sprintf("unsupported version %d", header.Version), nil)
	}
	c, err := compressors.ForType(header.CompressorType)
	if err != nil {
		return nil, corrupt("unknown compression", err)
	}

	manifestJSON, err := readSection(r, c)
	if err != nil {
		return nil, corrupt("unreadable manifest section", err)
	}
	var m manifest
	if err := json.Unmarshal(manifestJSON, &m); err != nil {
		return nil, corrupt("unparseable manifest", err)
	}
	if m.Metadata.ChunkIndex == nil {
		return nil, corrupt("manifest has no chunk index", nil)
	}

	chunkSection, err := readSection(r, c)
	if err != nil {
		return nil, corrupt("unreadable chunk section", err)
	}
	if r.Len() != 0 {
		return nil, corrupt(fmt.Sprintf("%d trailing bytes", r.Len()), nil)
	}

	refs := m.Metadata.ChunkIndex.Chunks
	chunks := make([]core.Chunk, len(refs))
	cr := bytes.NewReader(chunkSection)
	for i, ref := range refs {
		payload, err := readLengthPrefixed(cr)
		if err != nil {
			return nil, corrupt(fmt.Sprintf("chunk %d is unreadable", i), err)
		}
		chunks[i] = core.Chunk{Offset: ref.Offset, OriginalLen: ref.OriginalLen, Content: payload}
	}
	if cr.Len() != 0 {
		return nil, corrupt("chunk section holds more chunks than the index", nil)
	}

	return &Decoded{Header: header, ID: m.ID, Metadata: m.Metadata, Chunks: chunks}, nil
}

func readSection(r *bytes.Reader, c core.Compressor) ([]byte, error) {
	compressed, err := readLengthPrefixed(r)
	if err != nil {
		return nil, err
	}
	return compressors.DecompressAll(c, compressed)
}

func readLengthPrefixed(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > maxSectionSize || int(n) > r.Len() {
		return nil, io.ErrUnexpectedEOF
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Import decodes the bundle read from r and saves it into store. When id is
// empty the id recorded in the bundle is used. It returns the id saved to.
func Import(ctx context.Context, store *recovery.Store, r io.Reader, id string) (string, *recovery.Metadata, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read bundle: %w", err)
	}
	return importBytes(ctx, store, "bundle", raw, id)
}

func importBytes(ctx context.Context, store *recovery.Store, name string, raw []byte, id string) (string, *recovery.Metadata, error) {
	d, err := Decode(name, raw)
	if err != nil {
		return "", nil, err
	}
	if id == "" {
		id = d.ID
	}
	meta, err := store.Save(ctx, recovery.SaveRequest{
		ID:               id,
		Chunks:           d.Chunks,
		OriginalPath:     d.Metadata.OriginalPath,
		BufferName:       d.Metadata.BufferName,
		LineCount:        d.Metadata.LineCount,
		OriginalMtime:    d.Metadata.OriginalMtime,
		OriginalFileSize: d.Metadata.ChunkIndex.OriginalSize,
		FinalSize:        d.Metadata.ChunkIndex.FinalSize,
	})
	if err != nil {
		return "", nil, err
	}
	return id, meta, nil
}

// WriteFile exports the entry id into the file at path. The file is replaced
// atomically.
func WriteFile(ctx context.Context, store *recovery.Store, id, path string, c core.Compressor) error {
	var buf bytes.Buffer
	if err := Export(ctx, store, id, &buf, c); err != nil {
		return err
	}
	return sys.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

// ReadFile imports the bundle at path into store, see Import.
func ReadFile(ctx context.Context, store *recovery.Store, path, id string) (string, *recovery.Metadata, error) {
	raw, err := sys.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read bundle %s: %w", path, err)
	}
	return importBytes(ctx, store, path, raw, id)
}
