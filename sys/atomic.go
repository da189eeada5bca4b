package sys

import (
	"fmt"
	"os"

	"github.com/INLOpen/nexusedit/core"
)

// WriteFileAtomic writes data to path using the write-and-rename strategy:
// the bytes go to a sibling temporary file which is then renamed onto path.
// Any observer sees either the old file or the complete new one. On failure
// the temporary file is removed and path is left untouched.
//
// The temporary file is not fsynced. A process crash is always safe because
// the page cache survives it; a power loss during the write may lose this
// particular write. Recovery files are a best-effort hint, so write
// throughput wins over durability here.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tempPath := core.FormatTempFilename(path, core.TempFileSuffix)

	file, err := OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		_ = Remove(tempPath)
		return fmt.Errorf("failed to write temp file for %s: %w", path, err)
	}

	// Close before renaming; Windows refuses to rename an open file.
	if err := file.Close(); err != nil {
		_ = Remove(tempPath)
		return fmt.Errorf("failed to close temp file for %s: %w", path, err)
	}

	if err := Rename(tempPath, path); err != nil {
		_ = Remove(tempPath)
		return fmt.Errorf("failed to rename temp file onto %s: %w", path, err)
	}
	return nil
}
