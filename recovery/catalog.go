package recovery

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/INLOpen/nexusedit/core"
	"github.com/INLOpen/nexusedit/hooks"
	"github.com/INLOpen/nexusedit/sys"
)

// ListEntries loads every metadata file in the recovery directory, most
// recently updated first. Metadata that cannot be read is logged and skipped
// so one corrupt entry does not hide the others.
func (s *Store) ListEntries() ([]Entry, error) {
	files, err := s.scan()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(files))
	for id, fs := range files {
		if !hasKind(fs, core.FileKindMeta) {
			continue
		}
		meta, err := s.loadMetadata(id)
		if err != nil {
			s.logger.Warn("Skipping unreadable recovery entry", "id", id, "error", err)
			continue
		}
		if meta == nil {
			continue
		}
		entries = append(entries, s.entryFor(id, meta))
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Metadata.UpdatedAt, entries[j].Metadata.UpdatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// CleanupOrphans deletes the files of every id that lacks either its metadata
// or all of its content files (chunk files, or legacy content). Complete
// entries are not touched. Deletion errors are ignored; this is opportunistic
// maintenance. It returns the number of ids removed.
func (s *Store) CleanupOrphans(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "RecoveryStore.CleanupOrphans")
	defer span.End()

	files, err := s.scan()
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	removed := 0
	for id, fs := range files {
		hasContent := hasKind(fs, core.FileKindChunk) || hasKind(fs, core.FileKindLegacyContent)
		if hasKind(fs, core.FileKindMeta) && hasContent {
			continue
		}
		for _, f := range fs {
			if err := sys.RemoveIfExists(filepath.Join(s.dir, f.name)); err != nil {
				s.logger.Debug("Failed to remove orphaned file", "file", f.name, "error", err)
			}
		}
		s.logger.Info("Removed orphaned recovery files", "id", id, "files", len(fs))
		removed++
	}

	s.metrics.orphansRemoved.Add(int64(removed))
	if s.hooks != nil {
		_ = s.hooks.Trigger(ctx, hooks.NewPostCleanupEvent(hooks.PostCleanupPayload{Kind: hooks.CleanupOrphans, Removed: removed}))
	}
	return removed, nil
}

// CleanupAll removes every recovery file except the session lock. It is used
// once the user has accepted or declined recovery. Deletion errors are
// ignored. It returns the number of files removed.
func (s *Store) CleanupAll(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "RecoveryStore.CleanupAll")
	defer span.End()

	files, err := s.scan()
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	removed := 0
	for _, fs := range files {
		for _, f := range fs {
			if err := sys.Remove(filepath.Join(s.dir, f.name)); err != nil {
				s.logger.Debug("Failed to remove recovery file", "file", f.name, "error", err)
				continue
			}
			removed++
		}
	}

	s.logger.Info("Removed all recovery files", "files", removed)
	if s.hooks != nil {
		_ = s.hooks.Trigger(ctx, hooks.NewPostCleanupEvent(hooks.PostCleanupPayload{Kind: hooks.CleanupAll, Removed: removed}))
	}
	return removed, nil
}

func hasKind(files []recoveryFile, kind core.FileKind) bool {
	for _, f := range files {
		if f.kind == kind {
			return true
		}
	}
	return false
}
