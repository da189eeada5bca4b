// Package recovery persists unsaved editor buffers as chunk files so they can
// be rebuilt after a crash.
//
// Each buffer is identified by a recovery id. Its state on disk is one
// metadata file, {id}.meta.json, holding a content-free chunk index, plus one
// raw payload file per chunk, {id}.chunk.{N}. Every file is written with
// sys.WriteFileAtomic, so no single file is ever observed half-written. The
// set of files for one id is not committed atomically as a unit: a crash
// between writing chunk files and writing the metadata leaves state that
// ReadChunkedContent reports as an integrity error and CleanupOrphans can
// collect.
//
// A Store assumes at most one writer per id. It does no locking of its own.
package recovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/INLOpen/nexusedit/core"
	"github.com/INLOpen/nexusedit/hooks"
	"github.com/INLOpen/nexusedit/sys"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultReadConcurrency = 4

// Store manages the recovery files inside one directory.
type Store struct {
	dir             string
	logger          *slog.Logger
	tracer          trace.Tracer
	hooks           hooks.HookManager
	now             func() time.Time
	readConcurrency int
	metrics         *storeMetrics
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer makes the store open a span per operation.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithHookManager makes the store trigger recovery lifecycle events.
func WithHookManager(hm hooks.HookManager) Option {
	return func(s *Store) { s.hooks = hm }
}

// WithClock overrides the time source used for metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReadConcurrency bounds how many chunk files ReadChunkedContent reads at
// once. Values below 1 fall back to the default.
func WithReadConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.readConcurrency = n
		}
	}
}

// New opens the recovery directory dir, creating it if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, &core.ValidationError{Field: "dir", Value: dir, Message: "recovery directory must be specified"}
	}
	s := &Store{
		dir:             dir,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:          noop.NewTracerProvider().Tracer("recovery"),
		now:             time.Now,
		readConcurrency: defaultReadConcurrency,
		metrics:         newStoreMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "RecoveryStore")

	if err := sys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recovery directory %s: %w", dir, err)
	}
	return s, nil
}

// Dir is the recovery directory managed by the store.
func (s *Store) Dir() string { return s.dir }

// SaveRequest is the input of Save. Chunks must be sorted by Offset and must
// not overlap; Save does not check this.
type SaveRequest struct {
	ID     string
	Chunks []core.Chunk

	OriginalPath  string
	BufferName    string
	LineCount     *int
	OriginalMtime *time.Time

	// OriginalFileSize is the size of the content the chunks were computed
	// against; FinalSize the size of the buffer after applying them.
	OriginalFileSize int
	FinalSize        int
}

// Save replaces the chunk set of req.ID with req.Chunks and rewrites its
// metadata. An empty chunk list is a valid "no pending edits" state.
//
// Existing chunk files are removed first, then each payload is written to its
// own file, then the metadata with the embedded index. Bytes written are
// proportional to the chunk payloads, not to the buffer size.
func (s *Store) Save(ctx context.Context, req SaveRequest) (meta *Metadata, err error) {
	ctx, span := s.tracer.Start(ctx, "RecoveryStore.Save")
	defer span.End()
	span.SetAttributes(attribute.String("recovery.id", req.ID), attribute.Int("recovery.chunks", len(req.Chunks)))
	defer func() {
		if err != nil {
			s.metrics.saveErrors.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := ValidID(req.ID); err != nil {
		return nil, err
	}
	index := core.NewChunkIndex(req.OriginalFileSize, req.Chunks)
	if index.FinalSize != req.FinalSize {
		return nil, &core.ValidationError{
			Field:   "final_size",
			Value:   fmt.Sprint(req.FinalSize),
			Message: fmt.Sprintf("chunks produce a buffer of %d bytes", index.FinalSize),
		}
	}

	if s.hooks != nil {
		preEvent := hooks.NewPreSaveRecoveryEvent(hooks.PreSaveRecoveryPayload{
			ID:               req.ID,
			ChunkCount:       len(req.Chunks),
			OriginalFileSize: req.OriginalFileSize,
			FinalSize:        req.FinalSize,
		})
		if err := s.hooks.Trigger(ctx, preEvent); err != nil {
			return nil, fmt.Errorf("save of %s cancelled: %w", req.ID, err)
		}
	}

	start := s.now()

	if _, err := s.removeFiles(req.ID, func(kind core.FileKind) bool { return kind == core.FileKindChunk }); err != nil {
		return nil, fmt.Errorf("failed to remove previous chunks of %s: %w", req.ID, err)
	}

	var bytesWritten int64
	for i, chunk := range req.Chunks {
		if err := sys.WriteFileAtomic(s.chunkPath(req.ID, i), chunk.Content, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write chunk %d of %s: %w", i, req.ID, err)
		}
		bytesWritten += int64(len(chunk.Content))
	}

	meta, err = s.loadMetadata(req.ID)
	if err != nil {
		if !core.IsIntegrityError(err) {
			return nil, err
		}
		// Overwriting a corrupt metadata file is how an entry heals.
		s.logger.Warn("Replacing unreadable metadata", "id", req.ID, "error", err)
		meta = nil
	}
	now := s.now().UTC()
	if meta == nil {
		meta = &Metadata{CreatedAt: now}
	}
	if req.OriginalPath != "" {
		meta.OriginalPath = req.OriginalPath
	}
	if req.BufferName != "" {
		meta.BufferName = req.BufferName
	}
	if req.LineCount != nil {
		lc := *req.LineCount
		meta.LineCount = &lc
	}
	if req.OriginalMtime != nil {
		mt := req.OriginalMtime.UTC()
		meta.OriginalMtime = &mt
	}
	meta.ContentSize = index.FinalSize
	meta.OriginalFileSize = req.OriginalFileSize
	meta.ChunkCount = len(req.Chunks)
	meta.UpdatedAt = now
	meta.ChunkIndex = &index

	n, err := s.writeMetadata(req.ID, meta)
	if err != nil {
		return nil, err
	}
	bytesWritten += int64(n)

	// A buffer that moved to the chunked format no longer needs its legacy copy.
	if err := sys.RemoveIfExists(s.legacyContentPath(req.ID)); err != nil {
		s.logger.Debug("Failed to remove legacy content", "id", req.ID, "error", err)
	}

	s.metrics.saves.Add(1)
	s.metrics.bytesWritten.Add(bytesWritten)
	s.logger.Debug("Recovery saved", "id", req.ID, "chunks", len(req.Chunks), "bytes_written", bytesWritten)

	if s.hooks != nil {
		_ = s.hooks.Trigger(ctx, hooks.NewPostSaveRecoveryEvent(hooks.PostSaveRecoveryPayload{
			ID:           req.ID,
			ChunkCount:   len(req.Chunks),
			ContentSize:  index.FinalSize,
			BytesWritten: bytesWritten,
			Duration:     s.now().Sub(start),
		}))
	}
	return meta, nil
}

// DeleteRecovery removes the metadata, every chunk file and any legacy
// content of id. Deleting an id that has no files succeeds.
func (s *Store) DeleteRecovery(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "RecoveryStore.DeleteRecovery")
	defer span.End()
	span.SetAttributes(attribute.String("recovery.id", id))

	if err := ValidID(id); err != nil {
		return err
	}
	removed, err := s.removeFiles(id, func(core.FileKind) bool { return true })
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete recovery %s: %w", id, err)
	}
	s.logger.Debug("Recovery deleted", "id", id, "files", removed)

	if s.hooks != nil {
		_ = s.hooks.Trigger(ctx, hooks.NewPostDeleteRecoveryEvent(hooks.PostDeleteRecoveryPayload{ID: id, FilesRemoved: removed}))
	}
	return nil
}

// removeFiles deletes the files of id whose kind matches. The first failure
// aborts and is returned.
func (s *Store) removeFiles(id string, match func(core.FileKind) bool) (int, error) {
	files, err := s.scan()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files[id] {
		if !match(f.kind) {
			continue
		}
		if err := sys.RemoveIfExists(filepath.Join(s.dir, f.name)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

type recoveryFile struct {
	name     string
	kind     core.FileKind
	chunkNum int
}

// scan groups the recovery files in the directory by id. The session lock
// and unrelated files are left out. A missing directory scans as empty.
func (s *Store) scan() (map[string][]recoveryFile, error) {
	entries, err := sys.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]recoveryFile{}, nil
		}
		return nil, fmt.Errorf("failed to read recovery directory: %w", err)
	}
	byID := make(map[string][]recoveryFile)
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		id, kind, n := core.ParseFileName(de.Name())
		if id == "" || kind == core.FileKindUnknown || kind == core.FileKindSessionLock {
			continue
		}
		byID[id] = append(byID[id], recoveryFile{name: de.Name(), kind: kind, chunkNum: n})
	}
	return byID, nil
}
