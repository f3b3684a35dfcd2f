// Package memory provides a RAM-backed block device, used for testing to
// enable stubbing out real storage and injecting faults.
package memory

import (
	"fmt"
)

// Device is an in-memory block device. The zero value is not usable; create
// one with New. The FailRead and FailWrite hooks, when non-nil, let tests
// make individual sector operations fail.
type Device struct {
	sectorSize int
	sectors    [][]byte

	// FailRead makes ReadSector fail for sectors it returns true for
	FailRead func(n uint32) bool
	// FailWrite makes WriteSector fail for sectors it returns true for
	FailWrite func(n uint32) bool
}

// New creates a memory device with count sectors of sectorSize bytes each,
// all zeroed.
func New(sectorSize, count int) *Device {
	return &Device{
		sectorSize: sectorSize,
		sectors:    make([][]byte, count),
	}
}

func (d *Device) SectorSize() int {
	return d.sectorSize
}

func (d *Device) SectorCount() int {
	return len(d.sectors)
}

func (d *Device) ReadSector(n uint32) ([]byte, error) {
	if int(n) >= len(d.sectors) {
		return nil, fmt.Errorf("sector %d out of range, device has %d sectors", n, len(d.sectors))
	}
	if d.FailRead != nil && d.FailRead(n) {
		return nil, fmt.Errorf("injected read failure at sector %d", n)
	}
	b := make([]byte, d.sectorSize)
	if d.sectors[n] != nil {
		copy(b, d.sectors[n])
	}
	return b, nil
}

func (d *Device) WriteSector(n uint32, data []byte) error {
	if int(n) >= len(d.sectors) {
		return fmt.Errorf("sector %d out of range, device has %d sectors", n, len(d.sectors))
	}
	if d.FailWrite != nil && d.FailWrite(n) {
		return fmt.Errorf("injected write failure at sector %d", n)
	}
	b := make([]byte, d.sectorSize)
	copy(b, data)
	d.sectors[n] = b
	return nil
}

// BatchRead implements blockdevice.BatchReader.
func (d *Device) BatchRead(indices []uint32) [][]byte {
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

// Corrupt overwrites bytes inside a sector without going through WriteSector,
// simulating external damage to the medium.
func (d *Device) Corrupt(n uint32, offset int, b []byte) {
	if int(n) >= len(d.sectors) {
		return
	}
	if d.sectors[n] == nil {
		d.sectors[n] = make([]byte, d.sectorSize)
	}
	copy(d.sectors[n][offset:], b)
}
