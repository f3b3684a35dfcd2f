// Package axfs implements AXFS, an inode-based block filesystem with a
// sector-level CLOCK cache, per-block CRC32 checksums and copy-on-write
// update semantics.
//
// The on-disk layout is, in sector order: a superblock in sector 0 with a
// copy in sector 1, a single-sector inode bitmap, the block bitmap, an
// optional checksum table, the inode table, and the data region. Block
// numbers are relative to the data region.
//
// A volume is single-writer: one logical owner mutates it at a time, and all
// in-memory state (bitmaps, caches, checksum table) belongs to the
// FileSystem value.
package axfs

import (
	"fmt"
	"time"

	"github.com/axis-oc/axisos/blockdevice"
	"github.com/axis-oc/axisos/filesystem"
	"github.com/axis-oc/axisos/util/bitmap"
)

const maxPathCacheEntries = 256

var _ filesystem.FileSystem = (*FileSystem)(nil)

// dirRef is one resolved name inside a cached directory hash table
type dirRef struct {
	inode uint32
	iType inodeType
}

// FileSystem is a mounted AXFS volume
type FileSystem struct {
	cache *clockCache
	sb    *superblock

	inodeBitmap *bitmap.Bitmap
	blockBitmap *bitmap.Bitmap
	allocHint   uint32

	// checksums is the in-memory checksum table, one CRC32 word per data
	// block; dirtyChecksumSectors tracks which table sectors must be
	// rewritten at flush
	checksums            []uint32
	dirtyChecksumSectors map[uint32]bool
	checksumFails        uint64
	badInodeCRCs         uint64

	cow         bool
	checksumsOn bool
	dirty       bool

	inodeCache map[uint32]*inode
	pathCache  map[string]uint32
	dirCache   map[uint32]map[string]dirRef
}

// MountOptions tune a mount. The zero value mounts with the default cache
// size and the copy-on-write setting recorded in the superblock.
type MountOptions struct {
	// CacheSize is the number of slots in the sector cache; 0 means
	// DefaultCacheSize
	CacheSize int
	// CoW overrides the volume's recorded copy-on-write setting when non-nil
	CoW *bool
}

// Mount reads the superblocks, picks the valid copy with the higher
// generation, loads the bitmaps and checksum table into memory, pre-warms
// the inode table and returns the volume.
func Mount(dev blockdevice.Device, opts *MountOptions) (*FileSystem, error) {
	if opts == nil {
		opts = &MountOptions{}
	}
	cache := newClockCache(dev, opts.CacheSize)

	sb, err := readSuperblocks(cache)
	if err != nil {
		return nil, err
	}
	if int(sb.sectorSize) != dev.SectorSize() {
		return nil, fmt.Errorf("superblock sector size %d does not match device sector size %d", sb.sectorSize, dev.SectorSize())
	}

	fs := &FileSystem{
		cache:                cache,
		sb:                   sb,
		dirtyChecksumSectors: map[uint32]bool{},
		inodeCache:           map[uint32]*inode{},
		pathCache:            map[string]uint32{},
		dirCache:             map[uint32]map[string]dirRef{},
	}

	// inode bitmap is a single sector
	ibm, err := cache.ReadSector(inodeBitmapStart)
	if err != nil {
		return nil, fmt.Errorf("could not read inode bitmap: %v", err)
	}
	fs.inodeBitmap = bitmap.FromBytes(ibm)

	// block bitmap can span several sectors
	bbSectors := make([]uint32, sb.blockBitmapSectors)
	for i := range bbSectors {
		bbSectors[i] = sb.blockBitmapStart + uint32(i)
	}
	bb := make([]byte, 0, int(sb.blockBitmapSectors)*dev.SectorSize())
	for i, s := range blockdevice.BatchRead(cache, bbSectors) {
		if s == nil {
			return nil, fmt.Errorf("could not read block bitmap sector %d", bbSectors[i])
		}
		bb = append(bb, s...)
	}
	fs.blockBitmap = bitmap.FromBytes(bb)

	if sb.features&FeatureChecksums == FeatureChecksums && sb.checksumTableStart != 0 {
		if err := fs.loadChecksumTable(); err != nil {
			return nil, err
		}
		fs.checksumsOn = true
	}
	fs.cow = sb.features&FeatureCoW == FeatureCoW
	if opts.CoW != nil {
		fs.cow = *opts.CoW
	}

	// pre-warm the inode table
	inodeSectors := make([]uint32, fs.inodeTableSectors())
	for i := range inodeSectors {
		inodeSectors[i] = sb.inodeTableStart + uint32(i)
	}
	fs.cache.BatchRead(inodeSectors)

	return fs, nil
}

// readSuperblocks reads both superblock copies and picks the valid one with
// the higher generation
func readSuperblocks(cache *clockCache) (*superblock, error) {
	var primary, secondary *superblock
	var primaryErr, secondaryErr error

	b0, err := cache.ReadSector(primarySector)
	if err != nil {
		primaryErr = err
	} else {
		primary, primaryErr = superblockFromBytes(b0)
	}
	b1, err := cache.ReadSector(secondarySector)
	if err != nil {
		secondaryErr = err
	} else {
		secondary, secondaryErr = superblockFromBytes(b1)
	}

	switch {
	case primary != nil && secondary != nil:
		if secondary.generation > primary.generation {
			return secondary, nil
		}
		return primary, nil
	case primary != nil:
		return primary, nil
	case secondary != nil:
		return secondary, nil
	case primaryErr != nil:
		return nil, primaryErr
	default:
		return nil, secondaryErr
	}
}

func (fs *FileSystem) loadChecksumTable() error {
	sb := fs.sb
	cps := fs.checksumsPerSector()
	sectors := make([]uint32, sb.checksumTableSectors)
	for i := range sectors {
		sectors[i] = sb.checksumTableStart + uint32(i)
	}
	fs.checksums = make([]uint32, 0, int(sb.checksumTableSectors)*cps)
	for i, s := range blockdevice.BatchRead(fs.cache, sectors) {
		if s == nil {
			return fmt.Errorf("could not read checksum table sector %d", sectors[i])
		}
		for j := 0; j+4 <= len(s); j += 4 {
			fs.checksums = append(fs.checksums, beUint32(s[j:j+4]))
		}
	}
	if uint32(len(fs.checksums)) > sb.maxBlocks {
		fs.checksums = fs.checksums[:sb.maxBlocks]
	}
	return nil
}

// geometry helpers

func (fs *FileSystem) sectorSize() int {
	return int(fs.sb.sectorSize)
}

func (fs *FileSystem) inodesPerSector() int {
	return fs.sectorSize() / inodeSize
}

func (fs *FileSystem) entriesPerDirBlock() int {
	return fs.sectorSize() / directoryEntrySize
}

func (fs *FileSystem) checksumsPerSector() int {
	return fs.sectorSize() / 4
}

func (fs *FileSystem) inodeTableSectors() int {
	ips := fs.inodesPerSector()
	return (int(fs.sb.maxInodes) + ips - 1) / ips
}

// dirtyMeta marks the volume dirty and clears every cache whose contents
// could now be stale: path resolution, per-directory hash tables, and parsed
// inodes.
func (fs *FileSystem) dirtyMeta() {
	fs.dirty = true
	fs.pathCache = map[string]uint32{}
	fs.dirCache = map[uint32]map[string]dirRef{}
	fs.inodeCache = map[uint32]*inode{}
}

func (fs *FileSystem) nowSeconds() uint32 {
	return uint32(time.Now().Unix())
}

// Flush writes the bitmaps, the dirty checksum sectors and both superblock
// copies to the device, folding the accumulated device counters into the
// superblock and bumping the generation. After it returns, everything the
// volume holds in memory is durable.
func (fs *FileSystem) Flush() error {
	if err := fs.writeMetadata(fs.cache.WriteSector); err != nil {
		return err
	}
	fs.dirty = false
	return nil
}

// Unmount flushes the volume. The device stays open; closing it belongs to
// the caller that opened it.
func (fs *FileSystem) Unmount() error {
	return fs.Flush()
}

// writeMetadata persists all dirty volume metadata using the given sector
// writer, so that Flush and PurgeCache share one ordering.
func (fs *FileSystem) writeMetadata(write func(uint32, []byte) error) error {
	ss := fs.sectorSize()

	if err := write(inodeBitmapStart, blockdevice.Pad(fs.inodeBitmap.ToBytes(), ss)); err != nil {
		return fmt.Errorf("could not write inode bitmap: %v", err)
	}

	bb := blockdevice.Pad(fs.blockBitmap.ToBytes(), int(fs.sb.blockBitmapSectors)*ss)
	for i := uint32(0); i < fs.sb.blockBitmapSectors; i++ {
		sector := bb[int(i)*ss : int(i+1)*ss]
		if err := write(fs.sb.blockBitmapStart+i, sector); err != nil {
			return fmt.Errorf("could not write block bitmap sector %d: %v", i, err)
		}
	}

	if fs.checksums != nil {
		for idx := range fs.dirtyChecksumSectors {
			if err := write(fs.sb.checksumTableStart+idx, fs.checksumSectorBytes(idx)); err != nil {
				return fmt.Errorf("could not write checksum sector %d: %v", idx, err)
			}
			delete(fs.dirtyChecksumSectors, idx)
		}
	}

	reads, writes := fs.cache.takeCounters()
	fs.sb.lifetimeReads += reads
	fs.sb.lifetimeWrites += writes
	fs.sb.modifiedTime = fs.nowSeconds()
	fs.sb.generation++

	sbBytes := fs.sb.toBytes()
	if err := write(primarySector, sbBytes); err != nil {
		return fmt.Errorf("could not write superblock: %v", err)
	}
	if err := write(secondarySector, sbBytes); err != nil {
		return fmt.Errorf("could not write superblock copy: %v", err)
	}
	return nil
}

// checksumSectorBytes renders one sector of the checksum table
func (fs *FileSystem) checksumSectorBytes(idx uint32) []byte {
	cps := fs.checksumsPerSector()
	b := make([]byte, fs.sectorSize())
	start := int(idx) * cps
	for i := 0; i < cps; i++ {
		pos := start + i
		if pos >= len(fs.checksums) {
			break
		}
		bePutUint32(b[i*4:i*4+4], fs.checksums[pos])
	}
	return b
}

// PurgeCache writes all dirty metadata with one retry per critical sector,
// then drops every in-memory cache: the sector cache payloads, the inode
// cache, the path cache and the directory hash cache. It reports false when
// a retry also failed, but the caches are dropped regardless, so memory is
// relieved either way.
func (fs *FileSystem) PurgeCache() bool {
	ok := true
	retryWrite := func(n uint32, b []byte) error {
		if err := fs.cache.WriteSector(n, b); err == nil {
			return nil
		}
		if err := fs.cache.WriteSector(n, b); err != nil {
			ok = false
			return nil // keep going; purge must still drop caches
		}
		return nil
	}
	_ = fs.writeMetadata(retryWrite)
	if ok {
		fs.dirty = false
	}

	fs.cache.purge()
	fs.inodeCache = map[uint32]*inode{}
	fs.pathCache = map[string]uint32{}
	fs.dirCache = map[uint32]map[string]dirRef{}
	return ok
}

// CacheStats reports the sector cache counters
func (fs *FileSystem) CacheStats() CacheStats {
	return fs.cache.stats()
}

// Label returns the volume label
func (fs *FileSystem) Label() string {
	return fs.sb.label
}

// SetLabel changes the volume label; it becomes durable at the next flush
func (fs *FileSystem) SetLabel(label string) error {
	if len(label) > maxLabelLength {
		return fmt.Errorf("label longer than %d bytes", maxLabelLength)
	}
	fs.sb.label = label
	fs.dirty = true
	return nil
}

// SetCoW toggles copy-on-write data updates for subsequent writes
func (fs *FileSystem) SetCoW(enabled bool) {
	fs.cow = enabled
	if enabled {
		fs.sb.features |= FeatureCoW
	} else {
		fs.sb.features &^= FeatureCoW
	}
	fs.sb.extendedFeatures = fs.sb.features
	fs.dirty = true
}

// SetChecksums toggles per-block checksumming. Enabling requires the volume
// to have been formatted with a checksum table; blocks written while
// checksums were off simply have no recorded checksum until rewritten.
func (fs *FileSystem) SetChecksums(enabled bool) error {
	if enabled {
		if fs.sb.checksumTableStart == 0 {
			return fmt.Errorf("volume has no checksum table")
		}
		if fs.checksums == nil {
			if err := fs.loadChecksumTable(); err != nil {
				return err
			}
		}
		fs.sb.features |= FeatureChecksums
	} else {
		fs.sb.features &^= FeatureChecksums
	}
	fs.sb.extendedFeatures = fs.sb.features
	fs.checksumsOn = enabled
	fs.dirty = true
	return nil
}

// Info is a snapshot of the volume's identity, geometry and counters
type Info struct {
	Label          string
	UUID           string
	Version        uint16
	SectorSize     int
	TotalSectors   int
	MaxInodes      int
	MaxBlocks      int
	FreeInodes     int
	FreeBlocks     int
	DataStart      int
	Generation     uint32
	CowGeneration  uint32
	Checksums      bool
	CoW            bool
	ChecksumFails  uint64
	LifetimeReads  uint64
	LifetimeWrites uint64
	Created        time.Time
	Modified       time.Time
}

// Info reports the volume's identity, geometry and counters
func (fs *FileSystem) Info() Info {
	sb := fs.sb
	return Info{
		Label:          sb.label,
		UUID:           sb.volumeID.String(),
		Version:        sb.version,
		SectorSize:     int(sb.sectorSize),
		TotalSectors:   int(sb.totalSectors),
		MaxInodes:      int(sb.maxInodes),
		MaxBlocks:      int(sb.maxBlocks),
		FreeInodes:     int(sb.freeInodes),
		FreeBlocks:     int(sb.freeBlocks),
		DataStart:      int(sb.dataStart),
		Generation:     sb.generation,
		CowGeneration:  sb.cowGeneration,
		Checksums:      fs.checksumsOn,
		CoW:            fs.cow,
		ChecksumFails:  fs.checksumFails,
		LifetimeReads:  sb.lifetimeReads + fs.cache.reads,
		LifetimeWrites: sb.lifetimeWrites + fs.cache.writes,
		Created:        time.Unix(int64(sb.createdTime), 0),
		Modified:       time.Unix(int64(sb.modifiedTime), 0),
	}
}
