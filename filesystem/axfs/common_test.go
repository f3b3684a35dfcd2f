package axfs

import (
	"testing"

	"github.com/axis-oc/axisos/blockdevice/memory"
)

// testVolume formats and mounts a fresh volume on a RAM device
func testVolume(t *testing.T, sectors int, opts *FormatOptions) *FileSystem {
	t.Helper()
	fs, _ := testVolumeWithDevice(t, sectors, opts)
	return fs
}

func testVolumeWithDevice(t *testing.T, sectors int, opts *FormatOptions) (*FileSystem, *memory.Device) {
	t.Helper()
	dev := memory.New(512, sectors)
	if err := Format(dev, opts); err != nil {
		t.Fatalf("Format returned error: %v", err)
	}
	fs, err := Mount(dev, nil)
	if err != nil {
		t.Fatalf("Mount returned error: %v", err)
	}
	return fs, dev
}

// memoryDeviceWithJunk returns a device holding something that is not AXFS
func memoryDeviceWithJunk() *memory.Device {
	dev := memory.New(512, 64)
	for i := 0; i < 64; i++ {
		b := make([]byte, 512)
		for j := range b {
			b[j] = byte(i + j)
		}
		_ = dev.WriteSector(uint32(i), b)
	}
	return dev
}
