package axfs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

const (
	magic = "AXF2"
	// Version is the on-disk format version this package reads and writes
	Version uint16 = 2

	// FeatureChecksums marks a volume carrying a per-block CRC32 table
	FeatureChecksums uint32 = 0x01
	// FeatureCoW marks a volume whose writes defer old-block freeing until
	// after inode commit
	FeatureCoW uint32 = 0x02

	superblockSize   = 128
	sbCRCPrefixSize  = 52
	maxLabelLength   = 16
	primarySector    = 0
	secondarySector  = 1
	inodeBitmapStart = 2
)

// superblock describes the volume. It lives in sector 0 with a copy in
// sector 1; mount picks the copy with the higher generation whose CRC
// verifies. The CRC covers the fixed 52-byte prefix, which includes the
// generation and feature flags; label and timestamps follow the CRC.
type superblock struct {
	version            uint16
	sectorSize         uint16
	totalSectors       uint32
	maxInodes          uint32
	maxBlocks          uint32
	freeInodes         uint32
	freeBlocks         uint32
	dataStart          uint32
	inodeTableStart    uint32
	blockBitmapStart   uint32
	blockBitmapSectors uint32
	generation         uint32
	features           uint32
	label              string
	createdTime        uint32
	modifiedTime       uint32

	// extended trailer
	checksumTableStart   uint32
	checksumTableSectors uint32
	extendedFeatures     uint32
	cowGeneration        uint32
	lifetimeReads        uint64
	lifetimeWrites       uint64
	volumeID             uuid.UUID
}

func (sb *superblock) equal(a *superblock) bool {
	if (sb == nil && a != nil) || (sb != nil && a == nil) {
		return false
	}
	if sb == nil && a == nil {
		return true
	}
	return *sb == *a
}

// toBytes returns the superblockSize-byte superblock image; the device pads
// it to a full sector when it is written
func (sb *superblock) toBytes() []byte {
	b := make([]byte, superblockSize)
	copy(b[0:4], magic)
	binary.BigEndian.PutUint16(b[4:6], sb.version)
	binary.BigEndian.PutUint16(b[6:8], sb.sectorSize)
	binary.BigEndian.PutUint32(b[8:12], sb.totalSectors)
	binary.BigEndian.PutUint32(b[12:16], sb.maxInodes)
	binary.BigEndian.PutUint32(b[16:20], sb.maxBlocks)
	binary.BigEndian.PutUint32(b[20:24], sb.freeInodes)
	binary.BigEndian.PutUint32(b[24:28], sb.freeBlocks)
	binary.BigEndian.PutUint32(b[28:32], sb.dataStart)
	binary.BigEndian.PutUint32(b[32:36], sb.inodeTableStart)
	binary.BigEndian.PutUint32(b[36:40], sb.blockBitmapStart)
	binary.BigEndian.PutUint32(b[40:44], sb.blockBitmapSectors)
	binary.BigEndian.PutUint32(b[44:48], sb.generation)
	binary.BigEndian.PutUint32(b[48:52], sb.features)
	binary.BigEndian.PutUint32(b[52:56], crc32sum(b[0:sbCRCPrefixSize]))

	label := sb.label
	if len(label) > maxLabelLength {
		label = label[:maxLabelLength]
	}
	copy(b[56:72], label)
	binary.BigEndian.PutUint32(b[72:76], sb.createdTime)
	binary.BigEndian.PutUint32(b[76:80], sb.modifiedTime)

	binary.BigEndian.PutUint32(b[80:84], sb.checksumTableStart)
	binary.BigEndian.PutUint32(b[84:88], sb.checksumTableSectors)
	binary.BigEndian.PutUint32(b[88:92], sb.extendedFeatures)
	binary.BigEndian.PutUint32(b[92:96], sb.cowGeneration)
	binary.BigEndian.PutUint64(b[96:104], sb.lifetimeReads)
	binary.BigEndian.PutUint64(b[104:112], sb.lifetimeWrites)
	copy(b[112:128], sb.volumeID[:])

	return b
}

// superblockFromBytes parses and validates one superblock copy
func superblockFromBytes(b []byte) (*superblock, error) {
	if len(b) < superblockSize {
		return nil, fmt.Errorf("superblock data too short: %d bytes, must be min %d bytes", len(b), superblockSize)
	}
	if !bytes.Equal(b[0:4], []byte(magic)) {
		return nil, ErrNotAXFS
	}
	version := binary.BigEndian.Uint16(b[4:6])
	if version != Version {
		return nil, errVersion(version)
	}
	stored := binary.BigEndian.Uint32(b[52:56])
	if stored != crc32sum(b[0:sbCRCPrefixSize]) {
		return nil, fmt.Errorf("superblock checksum mismatch")
	}

	sb := superblock{
		version:            version,
		sectorSize:         binary.BigEndian.Uint16(b[6:8]),
		totalSectors:       binary.BigEndian.Uint32(b[8:12]),
		maxInodes:          binary.BigEndian.Uint32(b[12:16]),
		maxBlocks:          binary.BigEndian.Uint32(b[16:20]),
		freeInodes:         binary.BigEndian.Uint32(b[20:24]),
		freeBlocks:         binary.BigEndian.Uint32(b[24:28]),
		dataStart:          binary.BigEndian.Uint32(b[28:32]),
		inodeTableStart:    binary.BigEndian.Uint32(b[32:36]),
		blockBitmapStart:   binary.BigEndian.Uint32(b[36:40]),
		blockBitmapSectors: binary.BigEndian.Uint32(b[40:44]),
		generation:         binary.BigEndian.Uint32(b[44:48]),
		features:           binary.BigEndian.Uint32(b[48:52]),
		label:              string(bytes.TrimRight(b[56:72], "\x00")),
		createdTime:        binary.BigEndian.Uint32(b[72:76]),
		modifiedTime:       binary.BigEndian.Uint32(b[76:80]),

		checksumTableStart:   binary.BigEndian.Uint32(b[80:84]),
		checksumTableSectors: binary.BigEndian.Uint32(b[84:88]),
		extendedFeatures:     binary.BigEndian.Uint32(b[88:92]),
		cowGeneration:        binary.BigEndian.Uint32(b[92:96]),
		lifetimeReads:        binary.BigEndian.Uint64(b[96:104]),
		lifetimeWrites:       binary.BigEndian.Uint64(b[104:112]),
	}
	copy(sb.volumeID[:], b[112:128])
	return &sb, nil
}
