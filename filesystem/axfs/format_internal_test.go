package axfs

import (
	"testing"
)

func TestCalculateLayout(t *testing.T) {
	tests := []struct {
		name       string
		sectorSize int
		sectors    int
		maxInodes  int
		checksums  bool
	}{
		{"default", 512, 4096, 0, false},
		{"checksums", 512, 4096, 512, true},
		{"small", 512, 64, 16, false},
		{"tiny inodes", 512, 4096, 1, false},
		{"4k sectors", 4096, 1024, 256, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := calculateLayout(tt.sectorSize, tt.sectors, tt.maxInodes, tt.checksums)
			if err != nil {
				t.Fatalf("calculateLayout returned error: %v", err)
			}
			// regions must be ordered and must fit the device
			if l.blockBitmapStart != inodeBitmapStart+1 {
				t.Errorf("block bitmap starts at %d instead of %d", l.blockBitmapStart, inodeBitmapStart+1)
			}
			next := l.blockBitmapStart + l.blockBitmapSectors
			if tt.checksums {
				if l.checksumTableStart != next {
					t.Errorf("checksum table starts at %d instead of %d", l.checksumTableStart, next)
				}
				next += l.checksumTableSectors
				// the table must cover every block
				if int(l.checksumTableSectors)*tt.sectorSize < int(l.maxBlocks)*4 {
					t.Errorf("checksum table %d sectors cannot cover %d blocks", l.checksumTableSectors, l.maxBlocks)
				}
			} else if l.checksumTableStart != 0 {
				t.Errorf("checksum table allocated at %d without the feature", l.checksumTableStart)
			}
			if l.inodeTableStart != next {
				t.Errorf("inode table starts at %d instead of %d", l.inodeTableStart, next)
			}
			if l.dataStart != l.inodeTableStart+l.inodeTableSectors {
				t.Errorf("data region starts at %d instead of %d", l.dataStart, l.inodeTableStart+l.inodeTableSectors)
			}
			if l.dataStart+l.maxBlocks > l.totalSectors {
				t.Errorf("layout overflows device: data %d + blocks %d > %d", l.dataStart, l.maxBlocks, l.totalSectors)
			}
			// the bitmap must address every block
			if int(l.blockBitmapSectors)*tt.sectorSize*8 < int(l.maxBlocks) {
				t.Errorf("block bitmap %d sectors cannot address %d blocks", l.blockBitmapSectors, l.maxBlocks)
			}
		})
	}
}

func TestCalculateLayoutTooSmall(t *testing.T) {
	if _, err := calculateLayout(512, 10, 512, false); err == nil {
		t.Errorf("layout on a 10-sector device did not return error")
	}
}

func TestFormatReservedBits(t *testing.T) {
	fs := testVolume(t, 4096, &FormatOptions{MaxInodes: 64})
	for _, bit := range []int{0, 1} {
		set, err := fs.inodeBitmap.IsSet(bit)
		if err != nil || !set {
			t.Errorf("inode bit %d not pre-marked (err %v)", bit, err)
		}
	}
	set, err := fs.blockBitmap.IsSet(0)
	if err != nil || !set {
		t.Errorf("block bit 0 not pre-marked for the root directory (err %v)", err)
	}
	if fs.sb.freeInodes != fs.sb.maxInodes-2 {
		t.Errorf("free inodes %d instead of expected %d", fs.sb.freeInodes, fs.sb.maxInodes-2)
	}
	if fs.sb.freeBlocks != fs.sb.maxBlocks-1 {
		t.Errorf("free blocks %d instead of expected %d", fs.sb.freeBlocks, fs.sb.maxBlocks-1)
	}
}

func TestMountPicksHigherGeneration(t *testing.T) {
	fs, dev := testVolumeWithDevice(t, 4096, &FormatOptions{Label: "GEN"})
	// both copies sit at the same generation after a flush; push the
	// secondary ahead artificially
	if err := fs.Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	newer := *fs.sb
	newer.generation += 5
	if err := dev.WriteSector(secondarySector, newer.toBytes()); err != nil {
		t.Fatalf("writing aged superblock failed: %v", err)
	}
	remounted, err := Mount(dev, nil)
	if err != nil {
		t.Fatalf("Mount returned error: %v", err)
	}
	if remounted.sb.generation != newer.generation {
		t.Errorf("mount picked generation %d instead of newer %d", remounted.sb.generation, newer.generation)
	}
}

func TestMountFallsBackToValidCopy(t *testing.T) {
	fs, dev := testVolumeWithDevice(t, 4096, nil)
	if err := fs.Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	// trash the primary superblock; the copy must carry the mount
	dev.Corrupt(primarySector, 0, []byte("GARBAGE!"))
	remounted, err := Mount(dev, nil)
	if err != nil {
		t.Fatalf("Mount with corrupt primary returned error: %v", err)
	}
	if remounted.sb.maxBlocks != fs.sb.maxBlocks {
		t.Errorf("fallback mount geometry differs: %d blocks instead of %d", remounted.sb.maxBlocks, fs.sb.maxBlocks)
	}
	// with both copies gone, mount must fail
	dev.Corrupt(secondarySector, 0, []byte("GARBAGE!"))
	if _, err := Mount(dev, nil); err == nil {
		t.Errorf("mount with both superblocks corrupt did not return error")
	}
}

func TestMountRejectsForeignVolume(t *testing.T) {
	dev := memoryDeviceWithJunk()
	if _, err := Mount(dev, nil); err != ErrNotAXFS {
		t.Errorf("error %v instead of expected %v", err, ErrNotAXFS)
	}
}
