// Package blockdevice defines the sectored storage abstraction consumed by
// the filesystem implementations. A device hands out whole sectors and
// nothing else; all interesting structure lives in the layers above it.
package blockdevice

// Device is a fixed-size sectored store. ReadSector returns exactly one
// sector worth of bytes on success. WriteSector pads or truncates the data
// to the sector size. The device is the only layer permitted to fail for
// I/O reasons; callers treat a read error as a propagated error.
type Device interface {
	// SectorSize returns the size of one sector in bytes
	SectorSize() int
	// SectorCount returns the number of sectors on the device
	SectorCount() int
	// ReadSector reads sector n
	ReadSector(n uint32) ([]byte, error)
	// WriteSector writes sector n, padding data to the sector size
	WriteSector(n uint32, data []byte) error
}

// BatchReader is implemented by devices that can read several sectors in one
// request. A nil entry in the result marks a sector that could not be read.
type BatchReader interface {
	BatchRead(indices []uint32) [][]byte
}

// BatchRead reads the given sectors from the device, using its BatchReader
// implementation when it has one, and sequential single-sector reads when it
// does not. The result has one entry per requested index; unreadable sectors
// are nil.
func BatchRead(d Device, indices []uint32) [][]byte {
	if br, ok := d.(BatchReader); ok {
		return br.BatchRead(indices)
	}
	out := make([][]byte, len(indices))
	for i, n := range indices {
		b, err := d.ReadSector(n)
		if err != nil {
			continue
		}
		out[i] = b
	}
	return out
}

// Pad returns data padded with zeroes, or truncated, to exactly size bytes.
func Pad(data []byte, size int) []byte {
	if len(data) == size {
		return data
	}
	b := make([]byte, size)
	copy(b, data)
	return b
}
