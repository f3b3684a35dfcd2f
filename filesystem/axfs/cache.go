package axfs

import (
	"github.com/axis-oc/axisos/blockdevice"
)

// DefaultCacheSize is the number of sector slots in the CLOCK cache when the
// mount options do not say otherwise
const DefaultCacheSize = 128

// clockCache wraps a block device with a CLOCK (second-chance) sector cache.
// Eviction is frequency biased: a hit bumps the slot's frequency, the
// eviction hand decrements frequencies as it sweeps and takes the first slot
// at zero. A write-through invalidates the slot rather than updating it, so
// a read after a write always comes from the device once.
//
// The cache also counts the device-level reads and writes it issues; the
// volume folds those into the superblock's lifetime counters at flush.
type clockCache struct {
	dev      blockdevice.Device
	capacity int

	sectors []uint32
	data    [][]byte
	freq    []int
	slot    map[uint32]int
	used    int
	hand    int

	hits   uint64
	misses uint64
	reads  uint64
	writes uint64
}

func newClockCache(dev blockdevice.Device, capacity int) *clockCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &clockCache{
		dev:      dev,
		capacity: capacity,
		sectors:  make([]uint32, capacity),
		data:     make([][]byte, capacity),
		freq:     make([]int, capacity),
		slot:     make(map[uint32]int, capacity),
	}
}

func (c *clockCache) SectorSize() int {
	return c.dev.SectorSize()
}

func (c *clockCache) SectorCount() int {
	return c.dev.SectorCount()
}

func (c *clockCache) ReadSector(n uint32) ([]byte, error) {
	if idx, ok := c.slot[n]; ok {
		c.hits++
		c.freq[idx]++
		return append([]byte(nil), c.data[idx]...), nil
	}
	c.misses++
	b, err := c.dev.ReadSector(n)
	c.reads++
	if err != nil {
		return nil, err
	}
	c.insert(n, b)
	return append([]byte(nil), b...), nil
}

func (c *clockCache) WriteSector(n uint32, data []byte) error {
	err := c.dev.WriteSector(n, data)
	c.writes++
	// invalidate rather than update: the slot stays physically present with
	// frequency zero, so the eviction sweep takes it once the hand reaches it
	if idx, ok := c.slot[n]; ok {
		delete(c.slot, n)
		c.freq[idx] = 0
	}
	return err
}

// BatchRead implements blockdevice.BatchReader. Hits are served in place,
// misses are fetched from the device in one batch and populated into the
// cache.
func (c *clockCache) BatchRead(indices []uint32) [][]byte {
	out := make([][]byte, len(indices))
	var missIdx []int
	var missSectors []uint32
	for i, n := range indices {
		if idx, ok := c.slot[n]; ok {
			c.hits++
			c.freq[idx]++
			out[i] = append([]byte(nil), c.data[idx]...)
			continue
		}
		c.misses++
		missIdx = append(missIdx, i)
		missSectors = append(missSectors, n)
	}
	if len(missSectors) == 0 {
		return out
	}
	fetched := blockdevice.BatchRead(c.dev, missSectors)
	c.reads += uint64(len(missSectors))
	for j, b := range fetched {
		if b == nil {
			continue
		}
		c.insert(missSectors[j], b)
		out[missIdx[j]] = append([]byte(nil), b...)
	}
	return out
}

// insert places a sector into the cache, evicting if every slot is occupied
func (c *clockCache) insert(n uint32, data []byte) {
	b := append([]byte(nil), data...)
	if c.used < c.capacity {
		idx := c.used
		c.used++
		c.sectors[idx] = n
		c.data[idx] = b
		c.freq[idx] = 1
		c.slot[n] = idx
		return
	}
	idx := c.evict()
	c.sectors[idx] = n
	c.data[idx] = b
	c.freq[idx] = 1
	c.slot[n] = idx
}

// evict sweeps the clock hand for up to 3N steps looking for a slot whose
// frequency has decayed to zero, decrementing as it goes; if none decays in
// time it forcibly takes the slot under the hand.
func (c *clockCache) evict() int {
	for i := 0; i < 3*c.capacity; i++ {
		idx := c.hand
		if c.freq[idx] <= 0 {
			c.hand = (c.hand + 1) % c.capacity
			c.drop(idx)
			return idx
		}
		c.freq[idx]--
		c.hand = (c.hand + 1) % c.capacity
	}
	idx := c.hand
	c.hand = (c.hand + 1) % c.capacity
	c.drop(idx)
	return idx
}

// drop removes a slot's map entry if the slot still owns it
func (c *clockCache) drop(idx int) {
	if cur, ok := c.slot[c.sectors[idx]]; ok && cur == idx {
		delete(c.slot, c.sectors[idx])
	}
	c.data[idx] = nil
}

// purge releases every cached payload and resets the cache structures. Hit
// and miss counters survive; the lifetime read/write counters are drained by
// takeCounters.
func (c *clockCache) purge() {
	for i := range c.data {
		c.data[i] = nil
		c.freq[i] = 0
		c.sectors[i] = 0
	}
	c.slot = make(map[uint32]int, c.capacity)
	c.used = 0
	c.hand = 0
}

// takeCounters returns and resets the accumulated device read/write counts
func (c *clockCache) takeCounters() (reads, writes uint64) {
	reads, writes = c.reads, c.writes
	c.reads, c.writes = 0, 0
	return reads, writes
}

// entries returns how many slots currently map a sector
func (c *clockCache) entries() int {
	return len(c.slot)
}

// CacheStats reports the hit and occupancy counters of the sector cache
type CacheStats struct {
	Hits           uint64
	Misses         uint64
	Entries        int
	MaxEntries     int
	HitRatePercent float64
}

func (c *clockCache) stats() CacheStats {
	s := CacheStats{
		Hits:       c.hits,
		Misses:     c.misses,
		Entries:    c.entries(),
		MaxEntries: c.capacity,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRatePercent = float64(c.hits) / float64(total) * 100
	}
	return s
}
