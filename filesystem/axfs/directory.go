package axfs

import (
	"fmt"
)

// readDirEntries reads every entry slot of a directory, tombstones included,
// using one batch read for the directory's blocks
func (fs *FileSystem) readDirEntries(dir *inode) ([]*directoryEntry, error) {
	blocks, err := fs.dataBlocks(dir)
	if err != nil {
		return nil, err
	}
	var entries []*directoryEntry
	for i, b := range fs.batchReadBlocks(blocks) {
		if b == nil {
			return nil, fmt.Errorf("could not read directory block %d of inode %d", blocks[i], dir.number)
		}
		entries = append(entries, parseDirEntries(b)...)
	}
	return entries, nil
}

// dirHash returns the name → (inode, type) table for a directory, building
// and caching it on first touch. Any directory mutation drops the cache
// through dirtyMeta.
func (fs *FileSystem) dirHash(dir *inode) (map[string]dirRef, error) {
	if h, ok := fs.dirCache[dir.number]; ok {
		return h, nil
	}
	entries, err := fs.readDirEntries(dir)
	if err != nil {
		return nil, err
	}
	h := make(map[string]dirRef, len(entries))
	for _, de := range entries {
		if de.empty() {
			continue
		}
		h[de.name] = dirRef{inode: de.inode, iType: de.iType}
	}
	fs.dirCache[dir.number] = h
	return h, nil
}

// dirLookup resolves one name inside a directory
func (fs *FileSystem) dirLookup(dir *inode, name string) (dirRef, bool, error) {
	h, err := fs.dirHash(dir)
	if err != nil {
		return dirRef{}, false, err
	}
	ref, ok := h[name]
	return ref, ok, nil
}

// dirAdd links (name → child) into the directory. The first tombstone slot
// is reused; when there is none a fresh block is allocated and attached as a
// new extent. Directories keep to the 13 direct extent slots; a directory
// that has filled all of them is full.
func (fs *FileSystem) dirAdd(dir *inode, name string, child uint32, childType inodeType) error {
	if err := validateName(name); err != nil {
		return err
	}
	de := &directoryEntry{inode: child, iType: childType, name: name}
	deBytes, err := de.toBytes()
	if err != nil {
		return err
	}

	blocks, err := fs.dataBlocks(dir)
	if err != nil {
		return err
	}
	// first tombstone wins
	for _, block := range blocks {
		b, err := fs.readBlock(block)
		if err != nil {
			return err
		}
		for off := 0; off+directoryEntrySize <= len(b); off += directoryEntrySize {
			if beUint16(b[off:off+2]) != 0 {
				continue
			}
			copy(b[off:off+directoryEntrySize], deBytes)
			if err := fs.writeBlock(block, b); err != nil {
				return err
			}
			dir.mtime = fs.nowSeconds()
			if err := fs.writeInode(dir); err != nil {
				return err
			}
			fs.dirtyMeta()
			return nil
		}
	}

	// no tombstone: grow the directory by one block
	if len(dir.extents) >= maxDirectExtents {
		return ErrFull
	}
	block, err := fs.allocExtent(1)
	if err != nil {
		return err
	}
	b := make([]byte, fs.sectorSize())
	copy(b, deBytes)
	if err := fs.writeBlock(block, b); err != nil {
		fs.freeExtent(block, 1)
		return err
	}
	dir.extents = append(dir.extents, extent{start: block, length: 1})
	dir.nExtents = uint16(len(dir.extents))
	dir.size += uint32(fs.sectorSize())
	dir.mtime = fs.nowSeconds()
	if err := fs.writeInode(dir); err != nil {
		return err
	}
	fs.dirtyMeta()
	return nil
}

// dirRemove tombstones (name) in the directory
func (fs *FileSystem) dirRemove(dir *inode, name string) error {
	blocks, err := fs.dataBlocks(dir)
	if err != nil {
		return err
	}
	for _, block := range blocks {
		b, err := fs.readBlock(block)
		if err != nil {
			return err
		}
		for off := 0; off+directoryEntrySize <= len(b); off += directoryEntrySize {
			de, err := directoryEntryFromBytes(b[off : off+directoryEntrySize])
			if err != nil || de.empty() || de.name != name {
				continue
			}
			zero := make([]byte, directoryEntrySize)
			copy(b[off:off+directoryEntrySize], zero)
			if err := fs.writeBlock(block, b); err != nil {
				return err
			}
			dir.mtime = fs.nowSeconds()
			if err := fs.writeInode(dir); err != nil {
				return err
			}
			fs.dirtyMeta()
			return nil
		}
	}
	return errNotFound(name)
}

// dirEmpty reports whether a directory holds nothing beyond "." and ".."
func (fs *FileSystem) dirEmpty(dir *inode) (bool, error) {
	entries, err := fs.readDirEntries(dir)
	if err != nil {
		return false, err
	}
	for _, de := range entries {
		if de.empty() || de.name == "." || de.name == ".." {
			continue
		}
		return false, nil
	}
	return true, nil
}

// rewriteDotDot repoints a directory's ".." entry, used when a rename moves
// a directory under a new parent
func (fs *FileSystem) rewriteDotDot(dir *inode, newParent uint32) error {
	blocks, err := fs.dataBlocks(dir)
	if err != nil {
		return err
	}
	for _, block := range blocks {
		b, err := fs.readBlock(block)
		if err != nil {
			return err
		}
		for off := 0; off+directoryEntrySize <= len(b); off += directoryEntrySize {
			de, err := directoryEntryFromBytes(b[off : off+directoryEntrySize])
			if err != nil || de.empty() || de.name != ".." {
				continue
			}
			bePutUint16(b[off:off+2], uint16(newParent))
			if err := fs.writeBlock(block, b); err != nil {
				return err
			}
			fs.dirtyMeta()
			return nil
		}
	}
	return fmt.Errorf("directory inode %d has no .. entry", dir.number)
}
