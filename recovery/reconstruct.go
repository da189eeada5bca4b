package recovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/INLOpen/nexusedit/core"
	"github.com/INLOpen/nexusedit/hooks"
	"github.com/INLOpen/nexusedit/sys"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrMalformedChunks is returned by ApplyChunks when the chunk list is not
// ascending and non-overlapping, or reaches past the end of the original.
var ErrMalformedChunks = errors.New("malformed chunk list")

// ApplyChunks replays chunks onto original and returns the new content.
//
// Chunks are applied in order with a cursor into original: the unchanged span
// up to each chunk's offset is copied, then the chunk's content, then the
// cursor skips the replaced bytes. The tail after the last chunk is copied
// last. original is never modified.
func ApplyChunks(original []byte, chunks []core.Chunk) ([]byte, error) {
	size := len(original)
	for _, c := range chunks {
		size += c.Delta()
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: chunks remove more bytes than the original has", ErrMalformedChunks)
	}

	out := make([]byte, 0, size)
	cursor := 0
	for i, c := range chunks {
		if c.Offset < cursor || c.OriginalLen < 0 {
			return nil, fmt.Errorf("%w: chunk %d at offset %d overlaps or precedes position %d", ErrMalformedChunks, i, c.Offset, cursor)
		}
		if c.End() > len(original) {
			return nil, fmt.Errorf("%w: chunk %d ends at %d, original has %d bytes", ErrMalformedChunks, i, c.End(), len(original))
		}
		out = append(out, original[cursor:c.Offset]...)
		out = append(out, c.Content...)
		cursor = c.End()
	}
	out = append(out, original[cursor:]...)
	return out, nil
}

// ReconstructFromChunks rebuilds the current content of id by applying its
// stored chunks to the file at originalPath.
//
// The original must have exactly the size the chunks were computed against;
// if it changed on disk since, reconstruction fails with an IntegrityError
// instead of guessing. Entries written in the legacy single-file format are
// returned as stored. An id without metadata yields core.ErrNotFound.
func (s *Store) ReconstructFromChunks(ctx context.Context, id, originalPath string) (content []byte, err error) {
	ctx, span := s.tracer.Start(ctx, "RecoveryStore.ReconstructFromChunks")
	defer span.End()
	span.SetAttributes(attribute.String("recovery.id", id), attribute.String("recovery.original_path", originalPath))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	start := s.now()
	data, err := s.ReadChunkedContent(ctx, id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return s.reconstructLegacy(id)
	}

	content, err = s.applyStored(id, originalPath, data)
	if err != nil {
		s.noteIntegrityError(ctx, id, err)
		return nil, err
	}

	s.metrics.reconstructs.Add(1)
	if s.hooks != nil {
		_ = s.hooks.Trigger(ctx, hooks.NewPostReconstructEvent(hooks.PostReconstructPayload{
			ID:           id,
			OriginalPath: originalPath,
			FinalSize:    len(content),
			Duration:     s.now().Sub(start),
		}))
	}
	return content, nil
}

func (s *Store) applyStored(id, originalPath string, data *core.ChunkedData) ([]byte, error) {
	original, err := sys.ReadFile(originalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read original %s: %w", originalPath, err)
	}
	if len(original) != data.Index.OriginalSize {
		return nil, core.NewIntegrityError(id,
			fmt.Sprintf("original file is %d bytes, chunks were computed against %d", len(original), data.Index.OriginalSize), nil)
	}

	content, err := ApplyChunks(original, data.Chunks)
	if err != nil {
		return nil, core.NewIntegrityError(id, "stored chunks do not apply", err)
	}
	if len(content) != data.Index.FinalSize {
		return nil, core.NewIntegrityError(id,
			fmt.Sprintf("reconstructed %d bytes, index expects %d", len(content), data.Index.FinalSize), nil)
	}
	return content, nil
}

func (s *Store) reconstructLegacy(id string) ([]byte, error) {
	meta, err := s.loadMetadata(id)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("recovery %s: %w", id, core.ErrNotFound)
	}
	content, err := s.readLegacyContent(id, meta)
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, core.NewIntegrityError(id, "metadata has neither a chunk index nor legacy content", core.ErrNotFound)
	}
	s.metrics.reconstructs.Add(1)
	return content, nil
}
