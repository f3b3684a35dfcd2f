package axfs

import (
	"fmt"
	"time"

	"github.com/axis-oc/axisos/blockdevice"
	"github.com/axis-oc/axisos/util/bitmap"
	"github.com/google/uuid"
)

// DefaultMaxInodes is the inode table size when FormatOptions does not set one
const DefaultMaxInodes = 512

// FormatOptions tune Format. The zero value formats with DefaultMaxInodes,
// no checksum table, and copy-on-write off.
type FormatOptions struct {
	// Label is the volume label, at most 16 bytes
	Label string
	// MaxInodes is the size of the inode table; 0 means DefaultMaxInodes
	MaxInodes int
	// Checksums allocates a per-block CRC32 table and enables verification
	Checksums bool
	// CoW records copy-on-write updates as the volume default
	CoW bool
	// UUID overrides the generated volume identity
	UUID *uuid.UUID
}

// layout describes where each on-disk region lives, derived from the device
// geometry and the format options
type layout struct {
	sectorSize           int
	totalSectors         uint32
	maxInodes            uint32
	maxBlocks            uint32
	blockBitmapStart     uint32
	blockBitmapSectors   uint32
	checksumTableStart   uint32
	checksumTableSectors uint32
	inodeTableStart      uint32
	inodeTableSectors    uint32
	dataStart            uint32
}

// calculateLayout derives region offsets and capacities. The block count and
// the bitmap/checksum overhead depend on each other, so the split is settled
// by iterating to a fixed point.
func calculateLayout(sectorSize, totalSectors, maxInodes int, checksums bool) (*layout, error) {
	if sectorSize < superblockSize {
		return nil, fmt.Errorf("sector size %d too small, must be at least %d", sectorSize, superblockSize)
	}
	if maxInodes <= 0 {
		maxInodes = DefaultMaxInodes
	}
	// the inode bitmap is a single sector and inode numbers are 16 bit
	if limit := sectorSize * 8; maxInodes > limit {
		maxInodes = limit
	}
	if maxInodes > 65536 {
		maxInodes = 65536
	}
	if maxInodes < 2 {
		maxInodes = 2
	}

	ips := sectorSize / inodeSize
	inodeTableSectors := (maxInodes + ips - 1) / ips
	fixed := 2 + 1 + inodeTableSectors // superblocks + inode bitmap + inode table

	maxBlocks := totalSectors - fixed
	var bbSectors, csSectors int
	for i := 0; i < 16; i++ {
		bbSectors = (maxBlocks + sectorSize*8 - 1) / (sectorSize * 8)
		csSectors = 0
		if checksums {
			csSectors = (maxBlocks*4 + sectorSize - 1) / sectorSize
		}
		next := totalSectors - fixed - bbSectors - csSectors
		if next == maxBlocks {
			break
		}
		maxBlocks = next
	}
	// extent descriptors address blocks with 16 bits
	if maxBlocks > 65535 {
		maxBlocks = 65535
	}
	if maxBlocks < 1 {
		return nil, fmt.Errorf("device too small: %d sectors leave no data region", totalSectors)
	}
	bbSectors = (maxBlocks + sectorSize*8 - 1) / (sectorSize * 8)
	if checksums {
		csSectors = (maxBlocks*4 + sectorSize - 1) / sectorSize
	}

	l := layout{
		sectorSize:         sectorSize,
		totalSectors:       uint32(totalSectors),
		maxInodes:          uint32(maxInodes),
		maxBlocks:          uint32(maxBlocks),
		blockBitmapStart:   inodeBitmapStart + 1,
		blockBitmapSectors: uint32(bbSectors),
		inodeTableSectors:  uint32(inodeTableSectors),
	}
	next := l.blockBitmapStart + l.blockBitmapSectors
	if checksums {
		l.checksumTableStart = next
		l.checksumTableSectors = uint32(csSectors)
		next += l.checksumTableSectors
	}
	l.inodeTableStart = next
	l.dataStart = next + l.inodeTableSectors
	if l.dataStart+l.maxBlocks > l.totalSectors {
		l.maxBlocks = l.totalSectors - l.dataStart
	}
	return &l, nil
}

// Format writes an empty AXFS volume to the device: both superblocks, the
// bitmaps, the optional checksum table, a CRC-tailed empty inode table, and
// a root directory holding "." and "..".
func Format(dev blockdevice.Device, opts *FormatOptions) error {
	if opts == nil {
		opts = &FormatOptions{}
	}
	ss := dev.SectorSize()
	l, err := calculateLayout(ss, dev.SectorCount(), opts.MaxInodes, opts.Checksums)
	if err != nil {
		return err
	}

	// inode bitmap: inode 0 is reserved and inode 1 is the root
	ibm := bitmap.NewBits(ss * 8)
	_ = ibm.Set(0)
	_ = ibm.Set(1)
	if err := dev.WriteSector(inodeBitmapStart, ibm.ToBytes()); err != nil {
		return fmt.Errorf("could not write inode bitmap: %v", err)
	}

	// block bitmap: block 0 is the root directory's first block
	bbm := bitmap.NewBits(int(l.blockBitmapSectors) * ss * 8)
	_ = bbm.Set(0)
	bb := bbm.ToBytes()
	for i := uint32(0); i < l.blockBitmapSectors; i++ {
		if err := dev.WriteSector(l.blockBitmapStart+i, bb[int(i)*ss:int(i+1)*ss]); err != nil {
			return fmt.Errorf("could not write block bitmap sector %d: %v", i, err)
		}
	}

	// root directory block
	rootBlock := make([]byte, ss)
	dot, _ := (&directoryEntry{inode: rootInode, iType: typeDir, name: "."}).toBytes()
	dotdot, _ := (&directoryEntry{inode: rootInode, iType: typeDir, name: ".."}).toBytes()
	copy(rootBlock, dot)
	copy(rootBlock[directoryEntrySize:], dotdot)
	if err := dev.WriteSector(l.dataStart, rootBlock); err != nil {
		return fmt.Errorf("could not write root directory block: %v", err)
	}

	// checksum table: all zeroes (no checksum recorded) except the root
	// directory block just written
	if opts.Checksums {
		for i := uint32(0); i < l.checksumTableSectors; i++ {
			b := make([]byte, ss)
			if i == 0 {
				bePutUint32(b[0:4], crc32sum(rootBlock))
			}
			if err := dev.WriteSector(l.checksumTableStart+i, b); err != nil {
				return fmt.Errorf("could not write checksum table sector %d: %v", i, err)
			}
		}
	}

	// inode table: every slot a CRC-tailed FREE record, root filled in
	now := uint32(time.Now().Unix())
	root := &inode{
		number:   rootInode,
		iType:    typeDir,
		mode:     0o755,
		size:     uint32(ss),
		ctime:    now,
		mtime:    now,
		links:    2,
		nExtents: 1,
		extents:  []extent{{start: 0, length: 1}},
	}
	if opts.Checksums {
		root.flags = flagChecksum
	}
	ips := ss / inodeSize
	emptyRecord := (&inode{}).toBytes()
	emptySector := make([]byte, ss)
	for i := 0; i < ips; i++ {
		copy(emptySector[i*inodeSize:], emptyRecord)
	}
	for i := uint32(0); i < l.inodeTableSectors; i++ {
		b := append([]byte(nil), emptySector...)
		if i == rootInode/uint32(ips) {
			copy(b[int(rootInode%uint32(ips))*inodeSize:], root.toBytes())
		}
		if err := dev.WriteSector(l.inodeTableStart+i, b); err != nil {
			return fmt.Errorf("could not write inode table sector %d: %v", i, err)
		}
	}

	// superblocks last
	var features uint32
	if opts.Checksums {
		features |= FeatureChecksums
	}
	if opts.CoW {
		features |= FeatureCoW
	}
	volumeID := opts.UUID
	if volumeID == nil {
		generated, _ := uuid.NewRandom()
		volumeID = &generated
	}
	sb := &superblock{
		version:            Version,
		sectorSize:         uint16(ss),
		totalSectors:       l.totalSectors,
		maxInodes:          l.maxInodes,
		maxBlocks:          l.maxBlocks,
		freeInodes:         l.maxInodes - 2,
		freeBlocks:         l.maxBlocks - 1,
		dataStart:          l.dataStart,
		inodeTableStart:    l.inodeTableStart,
		blockBitmapStart:   l.blockBitmapStart,
		blockBitmapSectors: l.blockBitmapSectors,
		generation:         1,
		features:           features,
		label:              opts.Label,
		createdTime:        now,
		modifiedTime:       now,

		checksumTableStart:   l.checksumTableStart,
		checksumTableSectors: l.checksumTableSectors,
		extendedFeatures:     features,
		volumeID:             *volumeID,
	}
	sbBytes := sb.toBytes()
	if err := dev.WriteSector(primarySector, sbBytes); err != nil {
		return fmt.Errorf("could not write superblock: %v", err)
	}
	if err := dev.WriteSector(secondarySector, sbBytes); err != nil {
		return fmt.Errorf("could not write superblock copy: %v", err)
	}
	return nil
}
