package recovery

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/INLOpen/nexusedit/core"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// pathDomainKey keys the BLAKE3 hash used for path-derived ids so they never
// collide with other hashes of the same path bytes.
var pathDomainKey = [32]byte{
	'n', 'e', 'x', 'u', 's', 'e', 'd', 'i', 't', '.', 'r', 'e', 'c', 'o', 'v', 'e',
	'r', 'y', '.', 'p', 'a', 't', 'h', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// newIDPrefix marks ids of buffers that were never saved to a file.
const newIDPrefix = "new-"

// IDForPath derives the stable recovery id of a file-backed buffer, so a
// restarted editor finds the entry of the same file again. The path is made
// absolute and symlinks are resolved when the file exists.
func IDForPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	h, err := blake3.NewKeyed(pathDomainKey[:])
	if err != nil {
		return "", fmt.Errorf("failed to create path hasher: %w", err)
	}
	_, _ = h.Write([]byte(filepath.Clean(abs)))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16]), nil
}

// NewID returns a fresh id for a buffer that has no file yet.
func NewID() string {
	return newIDPrefix + uuid.NewString()
}

// IsUnsavedID reports whether id was produced by NewID.
func IsUnsavedID(id string) bool {
	return strings.HasPrefix(id, newIDPrefix)
}

// ValidID rejects ids that cannot safely name files in the recovery directory.
func ValidID(id string) error {
	invalid := func(msg string) error {
		return &core.ValidationError{Field: "id", Value: id, Message: msg}
	}
	switch {
	case id == "":
		return invalid("must not be empty")
	case strings.ContainsAny(id, `/\`) || id == "." || id == "..":
		return invalid("must not contain path separators")
	case strings.HasPrefix(id, "."):
		return invalid("must not start with a dot")
	case strings.Contains(id, core.ChunkFileInfix),
		strings.HasSuffix(id, core.MetaFileSuffix),
		strings.HasSuffix(id, core.LegacyContentSuffix),
		strings.HasSuffix(id, "."+core.TempFileSuffix),
		id == core.SessionLockFileName:
		return invalid("must not use a reserved file suffix")
	}
	return nil
}
