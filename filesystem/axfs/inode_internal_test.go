package axfs

import (
	"bytes"
	"testing"
)

func TestInodeRoundTripInline(t *testing.T) {
	in := &inode{
		number: 5,
		iType:  typeFile,
		flags:  flagInline | flagChecksum,
		mode:   0o644,
		uid:    10,
		gid:    20,
		size:   11,
		ctime:  1700000000,
		mtime:  1700000001,
		links:  1,
		inline: []byte("hello world"),
	}
	b := in.toBytes()
	if len(b) != inodeSize {
		t.Fatalf("packed inode is %d bytes instead of %d", len(b), inodeSize)
	}
	out, err := inodeFromBytes(b, 5)
	if err != nil {
		t.Fatalf("inodeFromBytes returned error: %v", err)
	}
	if !out.crcValid {
		t.Errorf("crcValid false on clean round trip")
	}
	if !bytes.Equal(out.inline, in.inline) {
		t.Errorf("inline payload %q instead of expected %q", out.inline, in.inline)
	}
	if out.size != in.size || out.iType != in.iType || out.mode != in.mode ||
		out.uid != in.uid || out.gid != in.gid || out.links != in.links {
		t.Errorf("inode fields mismatch after round trip:\ngot  %#v\nwant %#v", out, in)
	}
}

func TestInodeRoundTripExtents(t *testing.T) {
	in := &inode{
		number:   7,
		iType:    typeFile,
		flags:    flagChecksum,
		mode:     0o600,
		size:     10000,
		ctime:    1700000000,
		mtime:    1700000001,
		links:    1,
		nExtents: 3,
		extents:  []extent{{start: 10, length: 5}, {start: 100, length: 14}, {start: 200, length: 1}},
	}
	out, err := inodeFromBytes(in.toBytes(), 7)
	if err != nil {
		t.Fatalf("inodeFromBytes returned error: %v", err)
	}
	if len(out.extents) != 3 {
		t.Fatalf("got %d extents instead of expected %d", len(out.extents), 3)
	}
	for i, ext := range in.extents {
		if out.extents[i] != ext {
			t.Errorf("extent %d = %+v instead of expected %+v", i, out.extents[i], ext)
		}
	}
}

func TestInodeIndirectPointer(t *testing.T) {
	in := &inode{
		number:   9,
		iType:    typeFile,
		size:     50000,
		links:    1,
		nExtents: 20,
		indirect: 321,
	}
	for i := 0; i < maxDirectExtents; i++ {
		in.extents = append(in.extents, extent{start: uint32(i + 1), length: 1})
	}
	out, err := inodeFromBytes(in.toBytes(), 9)
	if err != nil {
		t.Fatalf("inodeFromBytes returned error: %v", err)
	}
	if out.indirect != 321 {
		t.Errorf("indirect %d instead of expected %d", out.indirect, 321)
	}
	if len(out.extents) != maxDirectExtents {
		t.Errorf("got %d direct extents instead of expected %d", len(out.extents), maxDirectExtents)
	}
	if out.nExtents != 20 {
		t.Errorf("nExtents %d instead of expected %d", out.nExtents, 20)
	}
}

func TestInodeCRCMismatchStillReturns(t *testing.T) {
	in := &inode{number: 3, iType: typeFile, flags: flagInline, size: 3, links: 1, inline: []byte("abc")}
	b := in.toBytes()
	b[8] ^= 0xff // corrupt the size field
	out, err := inodeFromBytes(b, 3)
	if err != nil {
		t.Fatalf("inodeFromBytes refused a corrupt record: %v", err)
	}
	if out.crcValid {
		t.Errorf("crcValid true on corrupt record")
	}
}

func TestInodeFreeRecordValidCRC(t *testing.T) {
	// formatted volumes fill the table with CRC-tailed free records
	out, err := inodeFromBytes((&inode{}).toBytes(), 0)
	if err != nil {
		t.Fatalf("inodeFromBytes returned error: %v", err)
	}
	if !out.crcValid {
		t.Errorf("crcValid false for a packed free record")
	}
	if out.iType != typeFree {
		t.Errorf("type %v instead of expected %v", out.iType, typeFree)
	}
}
