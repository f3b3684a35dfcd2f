package axfs

import (
	"fmt"

	"github.com/axis-oc/axisos/blockdevice"
)

// readBlock reads one data block. When checksums are enabled and a checksum
// is recorded for the block, a mismatch increments the failure counter but
// the data is still returned; callers asking "is the volume healthy" consult
// Health instead.
func (fs *FileSystem) readBlock(block uint32) ([]byte, error) {
	b, err := fs.cache.ReadSector(fs.sb.dataStart + block)
	if err != nil {
		return nil, err
	}
	if fs.checksumsOn && int(block) < len(fs.checksums) {
		if stored := fs.checksums[block]; stored != 0 && stored != crc32sum(b) {
			fs.checksumFails++
		}
	}
	return b, nil
}

// writeBlock pads data to the sector size, records its checksum and writes
// it through the cache. While checksums are off on a volume that has a
// table, the block's table entry is cleared to 0 (no checksum recorded).
func (fs *FileSystem) writeBlock(block uint32, data []byte) error {
	b := blockdevice.Pad(data, fs.sectorSize())
	if !fs.checksumsOn && fs.checksums == nil && fs.sb.checksumTableStart != 0 {
		if err := fs.loadChecksumTable(); err != nil {
			return err
		}
	}
	if int(block) < len(fs.checksums) {
		var sum uint32
		if fs.checksumsOn {
			sum = crc32sum(b)
		}
		fs.checksums[block] = sum
		fs.dirtyChecksumSectors[block/uint32(fs.checksumsPerSector())] = true
	}
	return fs.cache.WriteSector(fs.sb.dataStart+block, b)
}

// batchReadBlocks reads several data blocks through the cache in one request
func (fs *FileSystem) batchReadBlocks(blocks []uint32) [][]byte {
	sectors := make([]uint32, len(blocks))
	for i, b := range blocks {
		sectors[i] = fs.sb.dataStart + b
	}
	out := fs.cache.BatchRead(sectors)
	if fs.checksumsOn {
		for i, b := range out {
			if b == nil {
				continue
			}
			block := blocks[i]
			if int(block) < len(fs.checksums) {
				if stored := fs.checksums[block]; stored != 0 && stored != crc32sum(b) {
					fs.checksumFails++
				}
			}
		}
	}
	return out
}

// inode I/O

func (fs *FileSystem) inodeSector(number uint32) (sector uint32, offset int) {
	ips := uint32(fs.inodesPerSector())
	return fs.sb.inodeTableStart + number/ips, int(number%ips) * inodeSize
}

// readInode reads and parses one inode, serving from the inode cache when
// possible. The returned inode is a private copy.
func (fs *FileSystem) readInode(number uint32) (*inode, error) {
	if number >= fs.sb.maxInodes {
		return nil, fmt.Errorf("inode %d out of range, volume has %d inodes", number, fs.sb.maxInodes)
	}
	if in, ok := fs.inodeCache[number]; ok {
		return in.clone(), nil
	}
	sector, offset := fs.inodeSector(number)
	b, err := fs.cache.ReadSector(sector)
	if err != nil {
		return nil, fmt.Errorf("could not read inode %d: %v", number, err)
	}
	in, err := inodeFromBytes(b[offset:offset+inodeSize], number)
	if err != nil {
		return nil, err
	}
	if !in.crcValid {
		fs.badInodeCRCs++
	}
	fs.inodeCache[number] = in.clone()
	return in, nil
}

// writeInode packs and writes one inode in place. The single sector write
// here is the atomic commit point for a data-write operation.
func (fs *FileSystem) writeInode(in *inode) error {
	sector, offset := fs.inodeSector(in.number)
	b, err := fs.cache.ReadSector(sector)
	if err != nil {
		return fmt.Errorf("could not read inode sector for inode %d: %v", in.number, err)
	}
	copy(b[offset:offset+inodeSize], in.toBytes())
	if err := fs.cache.WriteSector(sector, b); err != nil {
		return fmt.Errorf("could not write inode %d: %v", in.number, err)
	}
	fs.inodeCache[in.number] = in.clone()
	return nil
}

// allocators

// allocInode claims the first clear bit in the inode bitmap
func (fs *FileSystem) allocInode() (uint32, error) {
	pos := fs.inodeBitmap.FirstFree(0, int(fs.sb.maxInodes))
	if pos < 0 {
		return 0, ErrNoInodes
	}
	if err := fs.inodeBitmap.Set(pos); err != nil {
		return 0, err
	}
	fs.sb.freeInodes--
	fs.dirty = true
	return uint32(pos), nil
}

func (fs *FileSystem) freeInode(number uint32) {
	if err := fs.inodeBitmap.Clear(int(number)); err != nil {
		return
	}
	fs.sb.freeInodes++
	fs.dirty = true
}

// allocExtent claims count consecutive blocks, scanning from the rotating
// hint first and wrapping to the start of the bitmap when nothing fits past
// the hint. Returns the first block of the run.
func (fs *FileSystem) allocExtent(count uint32) (uint32, error) {
	if count == 0 || count > fs.sb.maxBlocks {
		return 0, ErrDiskFull
	}
	maxBlocks := int(fs.sb.maxBlocks)
	pos := fs.blockBitmap.FindFreeRun(int(fs.allocHint), maxBlocks, int(count))
	if pos < 0 {
		pos = fs.blockBitmap.FindFreeRun(0, maxBlocks, int(count))
	}
	if pos < 0 {
		return 0, ErrDiskFull
	}
	if err := fs.blockBitmap.SetRun(pos, int(count)); err != nil {
		return 0, err
	}
	fs.sb.freeBlocks -= count
	fs.allocHint = uint32(pos) + count
	if fs.allocHint >= fs.sb.maxBlocks {
		fs.allocHint = 0
	}
	fs.dirty = true
	return uint32(pos), nil
}

// freeExtent releases count blocks starting at start
func (fs *FileSystem) freeExtent(start, count uint32) {
	if err := fs.blockBitmap.ClearRun(int(start), int(count)); err != nil {
		return
	}
	fs.sb.freeBlocks += count
	fs.dirty = true
}

// extent plumbing

// readExtents returns every extent of the inode, direct plus the ones in the
// indirect block
func (fs *FileSystem) readExtents(in *inode) ([]extent, error) {
	extents := append([]extent(nil), in.extents...)
	if int(in.nExtents) <= maxDirectExtents {
		return extents, nil
	}
	if in.indirect == 0 {
		return nil, fmt.Errorf("inode %d has %d extents but no indirect block", in.number, in.nExtents)
	}
	b, err := fs.readBlock(in.indirect)
	if err != nil {
		return nil, fmt.Errorf("could not read indirect block of inode %d: %v", in.number, err)
	}
	extra := int(in.nExtents) - maxDirectExtents
	for i := 0; i < extra && (i+1)*4 <= len(b); i++ {
		extents = append(extents, extent{
			start:  uint32(beUint16(b[i*4 : i*4+2])),
			length: uint32(beUint16(b[i*4+2 : i*4+4])),
		})
	}
	return extents, nil
}

// writeIndirect packs extent descriptors into one data block
func (fs *FileSystem) writeIndirect(block uint32, extents []extent) error {
	b := make([]byte, fs.sectorSize())
	for i, ext := range extents {
		if (i+1)*4 > len(b) {
			return fmt.Errorf("indirect block cannot hold %d extents", len(extents))
		}
		bePutUint16(b[i*4:i*4+2], uint16(ext.start))
		bePutUint16(b[i*4+2:i*4+4], uint16(ext.length))
	}
	return fs.writeBlock(block, b)
}

// dataBlocks expands an inode's extents into the flat list of blocks holding
// its payload, excluding the indirect block itself
func (fs *FileSystem) dataBlocks(in *inode) ([]uint32, error) {
	if in.isInline() {
		return nil, nil
	}
	extents, err := fs.readExtents(in)
	if err != nil {
		return nil, err
	}
	var blocks []uint32
	for _, ext := range extents {
		for i := uint32(0); i < ext.length; i++ {
			blocks = append(blocks, ext.start+i)
		}
	}
	return blocks, nil
}

// freeInodeBlocks releases every block referenced by the inode, the indirect
// block included
func (fs *FileSystem) freeInodeBlocks(in *inode) error {
	if in.isInline() {
		return nil
	}
	extents, err := fs.readExtents(in)
	if err != nil {
		return err
	}
	for _, ext := range extents {
		fs.freeExtent(ext.start, ext.length)
	}
	if in.indirect != 0 {
		fs.freeExtent(in.indirect, 1)
	}
	return nil
}
