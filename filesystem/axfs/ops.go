package axfs

import (
	"fmt"
	"sort"
	"time"
)

// EntryType is the kind of object an inode describes
type EntryType uint8

const (
	// TypeFree is an unallocated inode
	TypeFree EntryType = iota
	// TypeFile is a regular file
	TypeFile
	// TypeDir is a directory
	TypeDir
	// TypeLink is a symbolic link; AXFS stores the target but never follows it
	TypeLink
)

func (t EntryType) String() string {
	return inodeType(t).String()
}

// Entry is one name in a directory listing
type Entry struct {
	Name    string
	Inode   uint32
	Type    EntryType
	Size    int
	Mode    uint16
	Inline  bool
	ModTime time.Time
}

// Stat describes one file, directory or link
type Stat struct {
	Inode    uint32
	Type     EntryType
	Size     int
	Mode     uint16
	UID      uint16
	GID      uint16
	Links    int
	NExtents int
	Inline   bool
	CRCValid bool
	Created  time.Time
	Modified time.Time
}

// ReadFile returns the full content of the file at path
func (fs *FileSystem) ReadFile(p string) ([]byte, error) {
	number, err := fs.resolve(p)
	if err != nil {
		return nil, err
	}
	in, err := fs.readInode(number)
	if err != nil {
		return nil, err
	}
	switch in.iType {
	case typeDir:
		return nil, ErrIsDir
	case typeFile, typeLink:
	default:
		return nil, ErrNotFile
	}
	return fs.readContent(in)
}

func (fs *FileSystem) readContent(in *inode) ([]byte, error) {
	if in.isInline() {
		return append([]byte(nil), in.inline...), nil
	}
	blocks, err := fs.dataBlocks(in)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, len(blocks)*fs.sectorSize())
	for i, b := range fs.batchReadBlocks(blocks) {
		if b == nil {
			return nil, fmt.Errorf("could not read block %d of inode %d", blocks[i], in.number)
		}
		data = append(data, b...)
	}
	if uint32(len(data)) > in.size {
		data = data[:in.size]
	}
	return data, nil
}

// ListDir returns the entries of the directory at path, "." and ".."
// excluded, sorted by name
func (fs *FileSystem) ListDir(p string) ([]Entry, error) {
	number, err := fs.resolve(p)
	if err != nil {
		return nil, err
	}
	in, err := fs.readInode(number)
	if err != nil {
		return nil, err
	}
	if in.iType != typeDir {
		return nil, ErrNotDir
	}
	entries, err := fs.readDirEntries(in)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(entries))
	for _, de := range entries {
		if de.empty() || de.name == "." || de.name == ".." {
			continue
		}
		child, err := fs.readInode(de.inode)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{
			Name:    de.name,
			Inode:   de.inode,
			Type:    EntryType(de.iType),
			Size:    int(child.size),
			Mode:    child.mode,
			Inline:  child.isInline(),
			ModTime: time.Unix(int64(child.mtime), 0),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Stat describes the object at path
func (fs *FileSystem) Stat(p string) (Stat, error) {
	number, err := fs.resolve(p)
	if err != nil {
		return Stat{}, err
	}
	in, err := fs.readInode(number)
	if err != nil {
		return Stat{}, err
	}
	return Stat{
		Inode:    in.number,
		Type:     EntryType(in.iType),
		Size:     int(in.size),
		Mode:     in.mode,
		UID:      in.uid,
		GID:      in.gid,
		Links:    int(in.links),
		NExtents: int(in.nExtents),
		Inline:   in.isInline(),
		CRCValid: in.crcValid,
		Created:  time.Unix(int64(in.ctime), 0),
		Modified: time.Unix(int64(in.mtime), 0),
	}, nil
}

// Mkdir creates an empty directory at path. The parent must already exist.
func (fs *FileSystem) Mkdir(p string) error {
	parentNum, name, err := fs.resolveParent(p)
	if err != nil {
		return err
	}
	if name == "" {
		return ErrBadPath
	}
	if err := validateName(name); err != nil {
		return err
	}
	parent, err := fs.readDirInode(parentNum)
	if err != nil {
		return err
	}
	if _, ok, err := fs.dirLookup(parent, name); err != nil {
		return err
	} else if ok {
		return ErrExists
	}

	number, err := fs.allocInode()
	if err != nil {
		return err
	}
	block, err := fs.allocExtent(1)
	if err != nil {
		fs.freeInode(number)
		return err
	}

	// the initial block holds "." pointing at the new directory itself and
	// ".." pointing at the parent, written once
	b := make([]byte, fs.sectorSize())
	dot, _ := (&directoryEntry{inode: number, iType: typeDir, name: "."}).toBytes()
	dotdot, _ := (&directoryEntry{inode: parentNum, iType: typeDir, name: ".."}).toBytes()
	copy(b, dot)
	copy(b[directoryEntrySize:], dotdot)
	if err := fs.writeBlock(block, b); err != nil {
		fs.freeExtent(block, 1)
		fs.freeInode(number)
		return err
	}

	now := fs.nowSeconds()
	child := &inode{
		number:   number,
		iType:    typeDir,
		mode:     0o755,
		size:     uint32(fs.sectorSize()),
		ctime:    now,
		mtime:    now,
		links:    2,
		nExtents: 1,
		extents:  []extent{{start: block, length: 1}},
	}
	if fs.checksumsOn {
		child.flags = flagChecksum
	}
	if err := fs.writeInode(child); err != nil {
		fs.freeExtent(block, 1)
		fs.freeInode(number)
		return err
	}

	if err := fs.dirAdd(parent, name, number, typeDir); err != nil {
		child.iType = typeFree
		child.links = 0
		_ = fs.writeInode(child)
		fs.freeExtent(block, 1)
		fs.freeInode(number)
		return err
	}

	// dirAdd already wrote the parent's size and mtime; re-read it from disk
	// before bumping the link count so the bump does not clobber that state
	parent, err = fs.readInode(parentNum)
	if err != nil {
		return err
	}
	parent.links++
	if err := fs.writeInode(parent); err != nil {
		return err
	}
	fs.dirtyMeta()
	return nil
}

// Rmdir removes the empty directory at path
func (fs *FileSystem) Rmdir(p string) error {
	parentNum, name, err := fs.resolveParent(p)
	if err != nil {
		return err
	}
	if name == "" {
		return ErrBadPath
	}
	parent, err := fs.readDirInode(parentNum)
	if err != nil {
		return err
	}
	ref, ok, err := fs.dirLookup(parent, name)
	if err != nil {
		return err
	}
	if !ok {
		return errNotFound(name)
	}
	if ref.iType != typeDir {
		return ErrNotDir
	}
	in, err := fs.readInode(ref.inode)
	if err != nil {
		return err
	}
	empty, err := fs.dirEmpty(in)
	if err != nil {
		return err
	}
	if !empty {
		return ErrNotEmpty
	}

	if err := fs.dirRemove(parent, name); err != nil {
		return err
	}
	if err := fs.freeInodeBlocks(in); err != nil {
		return err
	}
	in.iType = typeFree
	in.flags = 0
	in.size = 0
	in.links = 0
	in.nExtents = 0
	in.extents = nil
	in.indirect = 0
	if err := fs.writeInode(in); err != nil {
		return err
	}
	fs.freeInode(in.number)

	parent, err = fs.readInode(parentNum)
	if err != nil {
		return err
	}
	parent.links--
	if err := fs.writeInode(parent); err != nil {
		return err
	}
	fs.dirtyMeta()
	return nil
}

// RemoveFile unlinks the file or symlink at path and frees its storage
func (fs *FileSystem) RemoveFile(p string) error {
	parentNum, name, err := fs.resolveParent(p)
	if err != nil {
		return err
	}
	if name == "" {
		return ErrBadPath
	}
	parent, err := fs.readDirInode(parentNum)
	if err != nil {
		return err
	}
	ref, ok, err := fs.dirLookup(parent, name)
	if err != nil {
		return err
	}
	if !ok {
		return errNotFound(name)
	}
	if ref.iType == typeDir {
		return ErrIsDir
	}
	in, err := fs.readInode(ref.inode)
	if err != nil {
		return err
	}

	if err := fs.dirRemove(parent, name); err != nil {
		return err
	}
	if err := fs.freeInodeBlocks(in); err != nil {
		return err
	}
	in.iType = typeFree
	in.flags = 0
	in.size = 0
	in.links = 0
	in.nExtents = 0
	in.extents = nil
	in.inline = nil
	in.indirect = 0
	if err := fs.writeInode(in); err != nil {
		return err
	}
	fs.freeInode(in.number)
	fs.dirtyMeta()
	return nil
}

// Rename moves oldPath to newPath: the inode is linked under the new name,
// then unlinked from the old one, so content and inode number survive the
// move. Renaming onto an existing name fails.
func (fs *FileSystem) Rename(oldPath, newPath string) error {
	oldParentNum, oldName, err := fs.resolveParent(oldPath)
	if err != nil {
		return err
	}
	if oldName == "" {
		return ErrBadPath
	}
	newParentNum, newName, err := fs.resolveParent(newPath)
	if err != nil {
		return err
	}
	if newName == "" {
		return ErrBadPath
	}
	if err := validateName(newName); err != nil {
		return err
	}

	oldParent, err := fs.readDirInode(oldParentNum)
	if err != nil {
		return err
	}
	ref, ok, err := fs.dirLookup(oldParent, oldName)
	if err != nil {
		return err
	}
	if !ok {
		return errNotFound(oldName)
	}
	newParent, err := fs.readDirInode(newParentNum)
	if err != nil {
		return err
	}
	if _, exists, err := fs.dirLookup(newParent, newName); err != nil {
		return err
	} else if exists {
		return ErrExists
	}

	if err := fs.dirAdd(newParent, newName, ref.inode, ref.iType); err != nil {
		return err
	}
	// dirAdd dropped the caches; re-read the old parent before mutating it
	oldParent, err = fs.readDirInode(oldParentNum)
	if err != nil {
		return err
	}
	if err := fs.dirRemove(oldParent, oldName); err != nil {
		return err
	}

	// a directory moved under a new parent drags its ".." entry and both
	// parents' link counts with it
	if ref.iType == typeDir && oldParentNum != newParentNum {
		child, err := fs.readInode(ref.inode)
		if err != nil {
			return err
		}
		if err := fs.rewriteDotDot(child, newParentNum); err != nil {
			return err
		}
		newParent, err = fs.readInode(newParentNum)
		if err != nil {
			return err
		}
		newParent.links++
		if err := fs.writeInode(newParent); err != nil {
			return err
		}
		oldParent, err = fs.readInode(oldParentNum)
		if err != nil {
			return err
		}
		oldParent.links--
		if err := fs.writeInode(oldParent); err != nil {
			return err
		}
	}
	fs.dirtyMeta()
	return nil
}

// Symlink records target as the content of a new symbolic link at path. AXFS
// never follows links; traversal belongs to the caller.
func (fs *FileSystem) Symlink(target, p string) error {
	return fs.writeObject(p, []byte(target), typeLink, false)
}

// Readlink returns the target recorded for the symbolic link at path
func (fs *FileSystem) Readlink(p string) (string, error) {
	number, err := fs.resolve(p)
	if err != nil {
		return "", err
	}
	in, err := fs.readInode(number)
	if err != nil {
		return "", err
	}
	if in.iType != typeLink {
		return "", ErrNotFile
	}
	b, err := fs.readContent(in)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
