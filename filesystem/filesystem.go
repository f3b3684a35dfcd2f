// Package filesystem provides the interface required of filesystem
// implementations. The interesting implementation is in the axfs subpackage,
// github.com/axis-oc/axisos/filesystem/axfs.
package filesystem

import "errors"

var (
	ErrNotSupported   = errors.New("method not supported by this filesystem")
	ErrNotImplemented = errors.New("method not implemented (patches are welcome)")
)

// FileSystem is the operation surface a mounted volume exposes
type FileSystem interface {
	// ReadFile returns the full content of the file at path
	ReadFile(path string) ([]byte, error)
	// WriteFile stores data as the content of the file at path
	WriteFile(path string, data []byte) error
	// RemoveFile unlinks the file at path
	RemoveFile(path string) error
	// Mkdir make a directory
	Mkdir(path string) error
	// Rmdir remove an empty directory
	Rmdir(path string) error
	// Rename renames (moves) oldPath to newPath
	Rename(oldPath, newPath string) error
	// Label get the label for the filesystem, or "" if none
	Label() string
	// SetLabel changes the label on a writable filesystem
	SetLabel(label string) error
	// Flush establishes a durability point
	Flush() error
	// Unmount flushes and detaches the volume
	Unmount() error
}
