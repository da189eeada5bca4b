package sys

import (
	"os"
)

// The handlers below are the only way the recovery packages touch the
// filesystem. They are package variables so tests can swap one out to inject
// a failure at a precise step (for example, the rename of an atomic write)
// and restore it afterwards.

type OpenFileHandler func(name string, flag int, perm os.FileMode) (*os.File, error)
type ReadFileHandler func(name string) ([]byte, error)
type ReadDirHandler func(name string) ([]os.DirEntry, error)
type RemoveHandler func(name string) error
type RenameHandler func(oldpath, newpath string) error
type StatHandler func(name string) (os.FileInfo, error)
type MkdirAllHandler func(path string, perm os.FileMode) error

var OpenFile OpenFileHandler = os.OpenFile

var ReadFile ReadFileHandler = os.ReadFile

var ReadDir ReadDirHandler = os.ReadDir

var Remove RemoveHandler = os.Remove

var Rename RenameHandler = os.Rename

var Stat StatHandler = os.Stat

var MkdirAll MkdirAllHandler = os.MkdirAll

// RemoveIfExists removes name and treats a missing file as success.
func RemoveIfExists(name string) error {
	if err := Remove(name); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exists reports whether name exists. Errors other than "not exist" are
// returned so callers can tell a missing file from an unreadable one.
func Exists(name string) (bool, error) {
	_, err := Stat(name)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
