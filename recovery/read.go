package recovery

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/INLOpen/nexusedit/core"
	"github.com/INLOpen/nexusedit/hooks"
	"github.com/INLOpen/nexusedit/sys"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// ReadMetadata returns the metadata of id, or nil without error when the id
// has no metadata file.
func (s *Store) ReadMetadata(id string) (*Metadata, error) {
	if err := ValidID(id); err != nil {
		return nil, err
	}
	return s.loadMetadata(id)
}

// Entry returns the catalog entry of id, or core.ErrNotFound.
func (s *Store) Entry(id string) (*Entry, error) {
	meta, err := s.ReadMetadata(id)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("recovery %s: %w", id, core.ErrNotFound)
	}
	e := s.entryFor(id, meta)
	return &e, nil
}

// ReadChunkedIndex returns the chunk index embedded in the metadata of id
// without reading any payload. It returns nil without error when the id has
// no metadata or was written in the legacy single-file format.
func (s *Store) ReadChunkedIndex(id string) (*core.ChunkIndex, error) {
	meta, err := s.ReadMetadata(id)
	if err != nil || meta == nil {
		return nil, err
	}
	return meta.ChunkIndex, nil
}

// readLegacyContent returns the full buffer of an entry written in the
// legacy single-file format, or nil without error when there is none.
func (s *Store) readLegacyContent(id string, meta *Metadata) ([]byte, error) {
	content, err := sys.ReadFile(s.legacyContentPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read legacy content of %s: %w", id, err)
	}
	if len(content) != meta.ContentSize {
		return nil, core.NewIntegrityError(id,
			fmt.Sprintf("legacy content is %d bytes, metadata expects %d", len(content), meta.ContentSize), nil)
	}
	return content, nil
}

// ReadChunkedContent loads the index of id together with every chunk
// payload. It returns nil without error when the id has no metadata.
//
// A chunk file named by the index but missing on disk, or payloads whose
// sizes disagree with the index, are reported as an IntegrityError; partial
// content is never returned.
func (s *Store) ReadChunkedContent(ctx context.Context, id string) (data *core.ChunkedData, err error) {
	ctx, span := s.tracer.Start(ctx, "RecoveryStore.ReadChunkedContent")
	defer span.End()
	span.SetAttributes(attribute.String("recovery.id", id))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.noteIntegrityError(ctx, id, err)
		}
	}()

	index, err := s.ReadChunkedIndex(id)
	if err != nil || index == nil {
		return nil, err
	}

	chunks := make([]core.Chunk, len(index.Chunks))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.readConcurrency)
	for i, ref := range index.Chunks {
		i, ref := i, ref
		g.Go(func() error {
			content, err := sys.ReadFile(s.chunkPath(id, i))
			if err != nil {
				if os.IsNotExist(err) {
					return core.NewIntegrityError(id, fmt.Sprintf("chunk %d is missing", i), core.ErrNotFound)
				}
				return fmt.Errorf("failed to read chunk %d of %s: %w", i, id, err)
			}
			chunks[i] = core.Chunk{Offset: ref.Offset, OriginalLen: ref.OriginalLen, Content: content}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data = &core.ChunkedData{Index: *index, Chunks: chunks}
	if got := core.NewChunkIndex(index.OriginalSize, chunks).FinalSize; got != index.FinalSize {
		return nil, core.NewIntegrityError(id,
			fmt.Sprintf("chunk payloads produce %d bytes, index expects %d", got, index.FinalSize), nil)
	}
	span.SetAttributes(attribute.Int("recovery.payload_bytes", data.ContentBytes()))
	return data, nil
}

// noteIntegrityError counts integrity failures and tells listeners so the
// editor can warn about an entry it will skip.
func (s *Store) noteIntegrityError(ctx context.Context, id string, err error) {
	var ie *core.IntegrityError
	if !errors.As(err, &ie) {
		return
	}
	s.metrics.integrityErrors.Add(1)
	s.logger.Warn("Recovery entry failed integrity check", "id", id, "error", err)
	if s.hooks != nil {
		_ = s.hooks.Trigger(ctx, hooks.NewOnIntegrityErrorEvent(hooks.IntegrityErrorPayload{ID: id, Err: err}))
	}
}
