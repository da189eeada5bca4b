package core

import (
	"fmt"
	"strconv"
	"strings"
)

// This file centralizes constants related to the on-disk layout of the
// recovery directory: file names, suffixes and magic numbers.

// --- Magic Numbers ---
const (
	// BundleMagicNumber identifies a single-file recovery bundle.
	BundleMagicNumber uint32 = 0x4E445242 // "BRDN"
)

// --- File Names & Suffixes ---
const (
	// SessionLockFileName is the liveness record of the running editor.
	SessionLockFileName = "session.lock"
	// MetaFileSuffix is the suffix of a recovery metadata file, e.g. abc.meta.json
	MetaFileSuffix = ".meta.json"
	// ChunkFileInfix separates the id from the chunk number, e.g. abc.chunk.0
	ChunkFileInfix = ".chunk."
	// LegacyContentSuffix is the suffix of the single-file content format
	// written by older releases.
	LegacyContentSuffix = ".content"
	// TempFileSuffix marks a file that is still being written.
	TempFileSuffix = "tmp"
	// BundleFileSuffix is the conventional extension of an exported bundle.
	BundleFileSuffix = ".nxrb"
)

// --- Protocol & Format Versions ---
const (
	// FormatVersion is the current version for all persistent file formats.
	FormatVersion uint8 = 1
)

// FileKind tells which part of a recovery entry a file in the recovery
// directory holds.
type FileKind int

const (
	FileKindUnknown FileKind = iota
	FileKindMeta
	FileKindChunk
	FileKindLegacyContent
	FileKindTemp
	FileKindSessionLock
)

// FormatTempFilename returns the temporary sibling name used while a file is
// being written.
func FormatTempFilename(prefix, postfix string) string {
	return fmt.Sprintf("%s.%s", prefix, postfix)
}

// FormatMetaFileName returns the metadata file name of a recovery id.
func FormatMetaFileName(id string) string {
	return id + MetaFileSuffix
}

// FormatChunkFileName returns the payload file name of chunk n of a recovery id.
func FormatChunkFileName(id string, n int) string {
	return id + ChunkFileInfix + strconv.Itoa(n)
}

// FormatLegacyContentFileName returns the legacy single-file content name.
func FormatLegacyContentFileName(id string) string {
	return id + LegacyContentSuffix
}

// ParseFileName classifies a file name found in the recovery directory and
// extracts the recovery id it belongs to. For chunk files the chunk number is
// returned as well; it is -1 otherwise.
func ParseFileName(name string) (id string, kind FileKind, chunkNum int) {
	chunkNum = -1
	switch {
	case name == SessionLockFileName:
		return "", FileKindSessionLock, chunkNum
	case strings.HasSuffix(name, "."+TempFileSuffix):
		base := strings.TrimSuffix(name, "."+TempFileSuffix)
		id, _, _ = ParseFileName(base)
		return id, FileKindTemp, chunkNum
	case strings.HasSuffix(name, MetaFileSuffix):
		return strings.TrimSuffix(name, MetaFileSuffix), FileKindMeta, chunkNum
	case strings.HasSuffix(name, LegacyContentSuffix):
		return strings.TrimSuffix(name, LegacyContentSuffix), FileKindLegacyContent, chunkNum
	}

	idx := strings.LastIndex(name, ChunkFileInfix)
	if idx <= 0 {
		return "", FileKindUnknown, chunkNum
	}
	n, err := strconv.Atoi(name[idx+len(ChunkFileInfix):])
	if err != nil || n < 0 {
		return "", FileKindUnknown, chunkNum
	}
	return name[:idx], FileKindChunk, n
}
