package axfs

import (
	"encoding/binary"
	"fmt"
)

// inodeType is the on-disk type byte of an inode
type inodeType uint8

const (
	typeFree inodeType = 0
	typeFile inodeType = 1
	typeDir  inodeType = 2
	typeLink inodeType = 3

	// flagInline marks an inode whose payload lives in the inode itself
	flagInline uint8 = 0x01
	// flagChecksum marks an inode whose data blocks carry CRC32 checksums
	flagChecksum uint8 = 0x04

	inodeSize = 80
	// InlineDataSize is the largest payload stored inside the inode itself
	InlineDataSize = 52
	// maxDirectExtents is the number of extent descriptors in the inode;
	// further extents go to the indirect block
	maxDirectExtents = 13

	rootInode     uint32 = 1
	reservedInode uint32 = 0
)

func (t inodeType) String() string {
	switch t {
	case typeFile:
		return "file"
	case typeDir:
		return "dir"
	case typeLink:
		return "link"
	default:
		return "free"
	}
}

// extent is a contiguous run of data blocks belonging to one inode
type extent struct {
	start  uint32
	length uint32
}

// inode is the in-memory form of one 80-byte inode record. extents holds
// only the direct descriptors; when nExtents exceeds maxDirectExtents the
// remainder live in the indirect block and are loaded separately.
type inode struct {
	number   uint32
	iType    inodeType
	flags    uint8
	mode     uint16
	uid      uint16
	gid      uint16
	size     uint32
	ctime    uint32
	mtime    uint32
	links    uint16
	nExtents uint16
	inline   []byte
	extents  []extent
	indirect uint32
	// crcValid reflects whether the stored CRC16 matched on decode. A
	// mismatch does not refuse the read; health reporting surfaces it.
	crcValid bool
}

func (in *inode) isInline() bool {
	return in.flags&flagInline == flagInline
}

// clone returns an independent copy, so cached inodes cannot be mutated
// through aliases
func (in *inode) clone() *inode {
	out := *in
	out.inline = append([]byte(nil), in.inline...)
	out.extents = append([]extent(nil), in.extents...)
	return &out
}

// toBytes packs the inode into exactly 80 bytes with a trailing CRC16
func (in *inode) toBytes() []byte {
	b := make([]byte, inodeSize)
	b[0] = byte(in.iType)
	b[1] = in.flags
	binary.BigEndian.PutUint16(b[2:4], in.mode)
	binary.BigEndian.PutUint16(b[4:6], in.uid)
	binary.BigEndian.PutUint16(b[6:8], in.gid)
	binary.BigEndian.PutUint32(b[8:12], in.size)
	binary.BigEndian.PutUint32(b[12:16], in.ctime)
	binary.BigEndian.PutUint32(b[16:20], in.mtime)
	binary.BigEndian.PutUint16(b[20:22], in.links)
	binary.BigEndian.PutUint16(b[22:24], in.nExtents)

	if in.isInline() {
		copy(b[24:24+InlineDataSize], in.inline)
	} else {
		for i, ext := range in.extents {
			if i >= maxDirectExtents {
				break
			}
			off := 24 + i*4
			binary.BigEndian.PutUint16(b[off:off+2], uint16(ext.start))
			binary.BigEndian.PutUint16(b[off+2:off+4], uint16(ext.length))
		}
	}
	binary.BigEndian.PutUint16(b[76:78], uint16(in.indirect))
	binary.BigEndian.PutUint16(b[78:80], crc16sum(b[0:78]))
	return b
}

// inodeFromBytes unpacks one 80-byte inode record. The CRC16 is verified but
// a mismatch only clears crcValid; the record is returned either way.
func inodeFromBytes(b []byte, number uint32) (*inode, error) {
	if len(b) < inodeSize {
		return nil, fmt.Errorf("inode data too short: %d bytes, must be min %d bytes", len(b), inodeSize)
	}
	in := inode{
		number:   number,
		iType:    inodeType(b[0]),
		flags:    b[1],
		mode:     binary.BigEndian.Uint16(b[2:4]),
		uid:      binary.BigEndian.Uint16(b[4:6]),
		gid:      binary.BigEndian.Uint16(b[6:8]),
		size:     binary.BigEndian.Uint32(b[8:12]),
		ctime:    binary.BigEndian.Uint32(b[12:16]),
		mtime:    binary.BigEndian.Uint32(b[16:20]),
		links:    binary.BigEndian.Uint16(b[20:22]),
		nExtents: binary.BigEndian.Uint16(b[22:24]),
		indirect: uint32(binary.BigEndian.Uint16(b[76:78])),
		crcValid: binary.BigEndian.Uint16(b[78:80]) == crc16sum(b[0:78]),
	}

	if in.isInline() {
		size := in.size
		if size > InlineDataSize {
			size = InlineDataSize
		}
		in.inline = append([]byte(nil), b[24:24+size]...)
	} else {
		direct := int(in.nExtents)
		if direct > maxDirectExtents {
			direct = maxDirectExtents
		}
		for i := 0; i < direct; i++ {
			off := 24 + i*4
			in.extents = append(in.extents, extent{
				start:  uint32(binary.BigEndian.Uint16(b[off : off+2])),
				length: uint32(binary.BigEndian.Uint16(b[off+2 : off+4])),
			})
		}
	}
	return &in, nil
}
