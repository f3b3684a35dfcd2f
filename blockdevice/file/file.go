// Package file provides a block device backed by a disk image file.
package file

import (
	"fmt"
	"io"
	"os"

	"github.com/axis-oc/axisos/blockdevice"
)

// Device is a block device backed by an *os.File. Sector n maps to byte
// offset n*sectorSize in the file.
type Device struct {
	f          *os.File
	sectorSize int
	count      int
}

// OpenFromPath opens an existing image file as a block device with the given
// sector size. The sector count is derived from the file size.
func OpenFromPath(path string, sectorSize int) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("could not open image %s: %v", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not stat image %s: %v", path, err)
	}
	if sectorSize <= 0 {
		sectorSize = 512
	}
	return &Device{f: f, sectorSize: sectorSize, count: int(fi.Size() / int64(sectorSize))}, nil
}

// CreateFromPath creates a zero-filled image file holding count sectors of
// sectorSize bytes and opens it as a block device.
func CreateFromPath(path string, sectorSize, count int) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not create image %s: %v", path, err)
	}
	if err := f.Truncate(int64(sectorSize) * int64(count)); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not size image %s: %v", path, err)
	}
	return &Device{f: f, sectorSize: sectorSize, count: count}, nil
}

// New wraps an already-open file. The caller keeps ownership of f if it
// never calls Close.
func New(f *os.File, sectorSize, count int) *Device {
	return &Device{f: f, sectorSize: sectorSize, count: count}
}

func (d *Device) SectorSize() int {
	return d.sectorSize
}

func (d *Device) SectorCount() int {
	return d.count
}

func (d *Device) ReadSector(n uint32) ([]byte, error) {
	if int(n) >= d.count {
		return nil, fmt.Errorf("sector %d out of range, device has %d sectors", n, d.count)
	}
	b := make([]byte, d.sectorSize)
	read, err := d.f.ReadAt(b, int64(n)*int64(d.sectorSize))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("error reading sector %d: %v", n, err)
	}
	if read < d.sectorSize && err != io.EOF {
		return nil, fmt.Errorf("read %d bytes of sector %d instead of %d", read, n, d.sectorSize)
	}
	return b, nil
}

func (d *Device) WriteSector(n uint32, data []byte) error {
	if int(n) >= d.count {
		return fmt.Errorf("sector %d out of range, device has %d sectors", n, d.count)
	}
	b := blockdevice.Pad(data, d.sectorSize)
	if _, err := d.f.WriteAt(b, int64(n)*int64(d.sectorSize)); err != nil {
		return fmt.Errorf("error writing sector %d: %v", n, err)
	}
	return nil
}

// Close flushes and closes the backing file.
func (d *Device) Close() error {
	if err := d.f.Sync(); err != nil {
		return err
	}
	return d.f.Close()
}
