package axfs

// WriteFile stores data as the content of the file at path, creating it if
// needed. Updates are copy-on-write when the volume has CoW enabled: the new
// blocks are fully written before the single inode sector write commits
// them, and only then is the old storage freed. With CoW off, the old
// storage is freed before the new blocks are allocated (the non-atomic fast
// path); allocation still starts at the rotating hint, so the new payload
// does not necessarily land in the freed blocks.
func (fs *FileSystem) WriteFile(p string, data []byte) error {
	return fs.writeObject(p, data, typeFile, true)
}

func (fs *FileSystem) writeObject(p string, data []byte, typ inodeType, overwrite bool) error {
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
	ref, ok, err := fs.dirLookup(parent, name)
	if err != nil {
		return err
	}

	var in *inode
	isNew := !ok
	if ok {
		if ref.iType == typeDir {
			return ErrIsDir
		}
		if !overwrite {
			return ErrExists
		}
		if in, err = fs.readInode(ref.inode); err != nil {
			return err
		}
	} else {
		number, err := fs.allocInode()
		if err != nil {
			return err
		}
		in = &inode{
			number: number,
			iType:  typ,
			mode:   0o644,
			ctime:  fs.nowSeconds(),
			links:  1,
		}
		if err := fs.dirAdd(parent, name, number, typ); err != nil {
			fs.freeInode(number)
			return err
		}
	}

	if err := fs.commitContent(in, data, typ, isNew); err != nil {
		if isNew {
			// undo the name and the inode so the failed write leaves no trace
			if parent, e := fs.readDirInode(parentNum); e == nil {
				_ = fs.dirRemove(parent, name)
			}
			_ = fs.writeInode(&inode{number: in.number})
			fs.freeInode(in.number)
			fs.dirtyMeta()
		}
		return err
	}
	return nil
}

// commitContent is the write engine: snapshot old storage, place the new
// payload (inline, contiguous, or fragmented with an indirect block), commit
// the inode, then release the old blocks.
func (fs *FileSystem) commitContent(in *inode, data []byte, typ inodeType, isNew bool) error {
	ss := fs.sectorSize()

	// snapshot the blocks the inode currently references
	var oldExtents []extent
	var oldIndirect uint32
	if !isNew && !in.isInline() {
		var err error
		if oldExtents, err = fs.readExtents(in); err != nil {
			return err
		}
		oldIndirect = in.indirect
	}

	cowActive := fs.cow && !isNew
	if !fs.cow && !isNew {
		// fast path: release old storage before reallocating
		for _, ext := range oldExtents {
			fs.freeExtent(ext.start, ext.length)
		}
		if oldIndirect != 0 {
			fs.freeExtent(oldIndirect, 1)
		}
		oldExtents, oldIndirect = nil, 0
	}

	var checksumFlag uint8
	if fs.checksumsOn {
		checksumFlag = flagChecksum
	}
	in.iType = typ
	in.size = uint32(len(data))
	in.mtime = fs.nowSeconds()

	if len(data) <= InlineDataSize {
		in.flags = flagInline | checksumFlag
		in.inline = append([]byte(nil), data...)
		in.extents = nil
		in.nExtents = 0
		in.indirect = 0
	} else {
		need := uint32((len(data) + ss - 1) / ss)
		extents, err := fs.allocateExtents(need)
		if err != nil {
			return fs.failWrite(in, isNew, checksumFlag, err)
		}
		releaseNew := func() {
			for _, ext := range extents {
				fs.freeExtent(ext.start, ext.length)
			}
		}

		var indirect uint32
		if len(extents) > maxDirectExtents {
			if len(extents) > maxDirectExtents+ss/4 {
				releaseNew()
				return fs.failWrite(in, isNew, checksumFlag, ErrDiskFull)
			}
			if indirect, err = fs.allocExtent(1); err != nil {
				releaseNew()
				return fs.failWrite(in, isNew, checksumFlag, ErrDiskFull)
			}
			if err := fs.writeIndirect(indirect, extents[maxDirectExtents:]); err != nil {
				fs.freeExtent(indirect, 1)
				releaseNew()
				return fs.failWrite(in, isNew, checksumFlag, err)
			}
		}

		// lay the payload down across the extents
		offset := 0
		for _, ext := range extents {
			for i := uint32(0); i < ext.length; i++ {
				end := offset + ss
				if end > len(data) {
					end = len(data)
				}
				if err := fs.writeBlock(ext.start+i, data[offset:end]); err != nil {
					if indirect != 0 {
						fs.freeExtent(indirect, 1)
					}
					releaseNew()
					return fs.failWrite(in, isNew, checksumFlag, err)
				}
				offset = end
			}
		}

		direct := extents
		if len(direct) > maxDirectExtents {
			direct = extents[:maxDirectExtents]
		}
		in.flags = checksumFlag
		in.inline = nil
		in.extents = append([]extent(nil), direct...)
		in.nExtents = uint16(len(extents))
		in.indirect = indirect
	}

	// the single inode sector write is the commit point
	if err := fs.writeInode(in); err != nil {
		return err
	}

	if cowActive {
		// old blocks outlive the commit, so a crash before this point still
		// reads the old content
		for _, ext := range oldExtents {
			fs.freeExtent(ext.start, ext.length)
		}
		if oldIndirect != 0 {
			fs.freeExtent(oldIndirect, 1)
		}
		fs.sb.cowGeneration++
	}
	fs.dirtyMeta()
	return nil
}

// failWrite reports an aborted content write. An overwrite on the non-CoW
// fast path has already surrendered its old blocks, so the inode is
// committed empty rather than left pointing at freed storage.
func (fs *FileSystem) failWrite(in *inode, isNew bool, checksumFlag uint8, err error) error {
	if !fs.cow && !isNew {
		in.flags = checksumFlag
		in.size = 0
		in.inline = nil
		in.extents = nil
		in.nExtents = 0
		in.indirect = 0
		_ = fs.writeInode(in)
		fs.dirtyMeta()
	}
	return err
}

// allocateExtents places need blocks: one contiguous run when possible,
// otherwise progressively halved runs. Any failure frees everything this
// call allocated and reports disk full.
func (fs *FileSystem) allocateExtents(need uint32) ([]extent, error) {
	if start, err := fs.allocExtent(need); err == nil {
		return []extent{{start: start, length: need}}, nil
	}
	var extents []extent
	rollback := func() {
		for _, ext := range extents {
			fs.freeExtent(ext.start, ext.length)
		}
	}
	remaining := need
	for remaining > 0 {
		try := remaining
		var start uint32
		for {
			var err error
			if start, err = fs.allocExtent(try); err == nil {
				break
			}
			if try == 1 {
				rollback()
				return nil, ErrDiskFull
			}
			try = (try + 1) / 2
		}
		extents = append(extents, extent{start: start, length: try})
		remaining -= try
	}
	return extents, nil
}
