package axfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	directoryEntrySize = 32
	// MaxNameLength is the longest directory entry name in bytes
	MaxNameLength = 27
)

// directoryEntry is one 32-byte slot in a directory block. An entry with
// inode 0 is a tombstone, available for reuse.
type directoryEntry struct {
	inode uint32
	iType inodeType
	name  string
}

func (de *directoryEntry) empty() bool {
	return de.inode == reservedInode
}

func (de *directoryEntry) toBytes() ([]byte, error) {
	if err := validateName(de.name); err != nil {
		return nil, err
	}
	b := make([]byte, directoryEntrySize)
	binary.BigEndian.PutUint16(b[0:2], uint16(de.inode))
	b[2] = byte(de.iType)
	b[3] = byte(len(de.name))
	copy(b[4:], de.name)
	return b, nil
}

func directoryEntryFromBytes(b []byte) (*directoryEntry, error) {
	if len(b) < directoryEntrySize {
		return nil, fmt.Errorf("directory entry data too short: %d bytes, must be min %d bytes", len(b), directoryEntrySize)
	}
	nameLen := int(b[3])
	if nameLen > MaxNameLength {
		nameLen = MaxNameLength
	}
	return &directoryEntry{
		inode: uint32(binary.BigEndian.Uint16(b[0:2])),
		iType: inodeType(b[2]),
		name:  string(b[4 : 4+nameLen]),
	}, nil
}

// parseDirEntries splits one or more directory blocks into entries,
// tombstones included
func parseDirEntries(b []byte) []*directoryEntry {
	entries := make([]*directoryEntry, 0, len(b)/directoryEntrySize)
	for i := 0; i+directoryEntrySize <= len(b); i += directoryEntrySize {
		de, err := directoryEntryFromBytes(b[i : i+directoryEntrySize])
		if err != nil {
			continue
		}
		entries = append(entries, de)
	}
	return entries
}

// validateName rejects names the 32-byte entry cannot hold and names with
// path separators
func validateName(name string) error {
	if name == "" || len(name) > MaxNameLength {
		return ErrBadName
	}
	if bytes.ContainsRune([]byte(name), '/') {
		return ErrBadName
	}
	return nil
}
