package axfs

import (
	"bytes"
	"testing"

	"github.com/axis-oc/axisos/blockdevice/memory"
)

func testDevice(t *testing.T, sectors int) *memory.Device {
	t.Helper()
	dev := memory.New(512, sectors)
	for i := 0; i < sectors; i++ {
		b := make([]byte, 512)
		b[0] = byte(i)
		if err := dev.WriteSector(uint32(i), b); err != nil {
			t.Fatalf("seeding sector %d failed: %v", i, err)
		}
	}
	return dev
}

func TestClockCacheHitMiss(t *testing.T) {
	c := newClockCache(testDevice(t, 16), 4)
	if _, err := c.ReadSector(3); err != nil {
		t.Fatalf("ReadSector returned error: %v", err)
	}
	b, err := c.ReadSector(3)
	if err != nil {
		t.Fatalf("ReadSector returned error: %v", err)
	}
	if b[0] != 3 {
		t.Errorf("sector content %d instead of expected %d", b[0], 3)
	}
	s := c.stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("hits/misses = %d/%d instead of expected 1/1", s.Hits, s.Misses)
	}
	if s.HitRatePercent != 50 {
		t.Errorf("hit rate %v instead of expected 50", s.HitRatePercent)
	}
}

func TestClockCacheEviction(t *testing.T) {
	c := newClockCache(testDevice(t, 16), 4)
	for i := uint32(0); i < 4; i++ {
		if _, err := c.ReadSector(i); err != nil {
			t.Fatalf("ReadSector(%d) returned error: %v", i, err)
		}
	}
	if c.entries() != 4 {
		t.Fatalf("cache holds %d entries instead of %d", c.entries(), 4)
	}
	// all frequencies are 1; inserting a fifth sector decays them and takes
	// slot 0
	if _, err := c.ReadSector(10); err != nil {
		t.Fatalf("ReadSector(10) returned error: %v", err)
	}
	if c.entries() != 4 {
		t.Errorf("cache holds %d entries instead of %d after eviction", c.entries(), 4)
	}
	if _, ok := c.slot[0]; ok {
		t.Errorf("sector 0 still cached after eviction")
	}
	if _, ok := c.slot[10]; !ok {
		t.Errorf("sector 10 not cached after insertion")
	}
}

func TestClockCacheFrequencyBias(t *testing.T) {
	c := newClockCache(testDevice(t, 16), 2)
	_, _ = c.ReadSector(1)
	for i := 0; i < 5; i++ {
		_, _ = c.ReadSector(1) // freq of sector 1 climbs
	}
	_, _ = c.ReadSector(2)
	// sector 2 has frequency 1; the sweep should evict it, not the hot one
	_, _ = c.ReadSector(3)
	if _, ok := c.slot[1]; !ok {
		t.Errorf("hot sector 1 was evicted before the cold one")
	}
	if _, ok := c.slot[2]; ok {
		t.Errorf("cold sector 2 survived eviction")
	}
}

func TestClockCacheWriteInvalidates(t *testing.T) {
	dev := testDevice(t, 16)
	c := newClockCache(dev, 4)
	_, _ = c.ReadSector(5)
	if err := c.WriteSector(5, []byte{0xaa}); err != nil {
		t.Fatalf("WriteSector returned error: %v", err)
	}
	if _, ok := c.slot[5]; ok {
		t.Errorf("sector 5 still mapped after write-through")
	}
	b, err := c.ReadSector(5)
	if err != nil {
		t.Fatalf("ReadSector returned error: %v", err)
	}
	if b[0] != 0xaa {
		t.Errorf("read %#x instead of the written value", b[0])
	}
	// and the device really has it
	raw, _ := dev.ReadSector(5)
	if raw[0] != 0xaa {
		t.Errorf("device sector holds %#x instead of the written value", raw[0])
	}
}

func TestClockCacheBatchRead(t *testing.T) {
	c := newClockCache(testDevice(t, 16), 8)
	_, _ = c.ReadSector(2)
	out := c.BatchRead([]uint32{1, 2, 3})
	if len(out) != 3 {
		t.Fatalf("batch returned %d results instead of %d", len(out), 3)
	}
	for i, n := range []byte{1, 2, 3} {
		if out[i] == nil || out[i][0] != n {
			t.Errorf("batch result %d = %v instead of sector %d content", i, out[i], n)
		}
	}
	s := c.stats()
	if s.Hits != 1 {
		t.Errorf("hits %d instead of expected 1 (sector 2 was cached)", s.Hits)
	}
	if s.Misses != 3 {
		t.Errorf("misses %d instead of expected 3", s.Misses)
	}
}

func TestClockCachePurge(t *testing.T) {
	c := newClockCache(testDevice(t, 16), 4)
	for i := uint32(0); i < 4; i++ {
		_, _ = c.ReadSector(i)
	}
	c.purge()
	if c.entries() != 0 {
		t.Errorf("cache holds %d entries after purge", c.entries())
	}
	b, err := c.ReadSector(2)
	if err != nil {
		t.Fatalf("ReadSector after purge returned error: %v", err)
	}
	if b[0] != 2 {
		t.Errorf("sector content %d instead of expected %d after purge", b[0], 2)
	}
}

func TestClockCacheLastWriteWins(t *testing.T) {
	c := newClockCache(testDevice(t, 16), 4)
	payloads := [][]byte{{0x11}, {0x22}, {0x33}}
	for _, p := range payloads {
		if err := c.WriteSector(7, p); err != nil {
			t.Fatalf("WriteSector returned error: %v", err)
		}
		b, err := c.ReadSector(7)
		if err != nil {
			t.Fatalf("ReadSector returned error: %v", err)
		}
		if !bytes.Equal(b[:1], p) {
			t.Errorf("read %#x instead of last written %#x", b[0], p[0])
		}
	}
}
