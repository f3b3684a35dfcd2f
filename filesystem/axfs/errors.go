package axfs

import (
	"errors"
	"fmt"
)

// Sentinel errors for the public API. The strings are part of the on-wire
// contract with callers and must not change.
var (
	// ErrNotAXFS the device does not contain an AXFS filesystem
	ErrNotAXFS = errors.New("Not AXFS")
	// ErrNotADir a path component other than the last is not a directory
	ErrNotADir = errors.New("Not a dir")
	// ErrBadName the name is empty or longer than MaxNameLength bytes
	ErrBadName = errors.New("Bad name")
	// ErrBadPath the operation does not apply to the given path
	ErrBadPath = errors.New("Bad path")
	// ErrExists the target name already exists
	ErrExists = errors.New("Exists")
	// ErrNotEmpty the directory still has entries
	ErrNotEmpty = errors.New("Not empty")
	// ErrIsDir a file operation was aimed at a directory
	ErrIsDir = errors.New("Is dir")
	// ErrNotDir a directory operation was aimed at a non-directory
	ErrNotDir = errors.New("Not dir")
	// ErrNotFile the target is not a regular file
	ErrNotFile = errors.New("Not file")
	// ErrFull the directory has no room for another block of entries
	ErrFull = errors.New("Full")
	// ErrNoInodes the inode table is exhausted
	ErrNoInodes = errors.New("No inodes")
	// ErrDiskFull no run of free blocks could satisfy the allocation
	ErrDiskFull = errors.New("Disk full")
)

func errNotFound(name string) error {
	return fmt.Errorf("Not found: %s", name)
}

func errVersion(version uint16) error {
	return fmt.Errorf("Version %d", version)
}
