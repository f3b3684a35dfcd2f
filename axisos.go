// Package axisos implements the AxisOS storage stack as a library: an
// inode-based block filesystem (AXFS) layered over a pluggable block device.
//
// This package is the convenience layer for working with disk image files.
// It does **not** mount anything into the host; it manipulates the image
// bytes directly.
//
// Some examples:
//
// 1. Create a 2MB image with a checksummed, copy-on-write AXFS volume.
//
//	vol, err := axisos.Create("/tmp/axfs.img", 512, 4096, &axfs.FormatOptions{
//		Label:     "data",
//		Checksums: true,
//		CoW:       true,
//	})
//
// 2. Open an existing image and read a file.
//
//	vol, err := axisos.Open("/tmp/axfs.img", 512, nil)
//	b, err := vol.FS.ReadFile("/hello.txt")
//
// For anything beyond image files — RAM-backed devices, custom transports —
// use github.com/axis-oc/axisos/filesystem/axfs directly with your own
// blockdevice.Device implementation.
package axisos

import (
	"github.com/axis-oc/axisos/blockdevice/file"
	"github.com/axis-oc/axisos/filesystem/axfs"
)

// Volume couples a mounted AXFS filesystem with the image file device
// backing it
type Volume struct {
	FS  *axfs.FileSystem
	dev *file.Device
}

// Open opens an existing AXFS image file and mounts it. sectorSize 0 means
// 512.
func Open(path string, sectorSize int, opts *axfs.MountOptions) (*Volume, error) {
	dev, err := file.OpenFromPath(path, sectorSize)
	if err != nil {
		return nil, err
	}
	fs, err := axfs.Mount(dev, opts)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return &Volume{FS: fs, dev: dev}, nil
}

// Create creates an image file holding sectors sectors of sectorSize bytes,
// formats it as AXFS and mounts it.
func Create(path string, sectorSize, sectors int, opts *axfs.FormatOptions) (*Volume, error) {
	dev, err := file.CreateFromPath(path, sectorSize, sectors)
	if err != nil {
		return nil, err
	}
	if err := axfs.Format(dev, opts); err != nil {
		dev.Close()
		return nil, err
	}
	fs, err := axfs.Mount(dev, nil)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return &Volume{FS: fs, dev: dev}, nil
}

// Close unmounts the filesystem and closes the backing image file
func (v *Volume) Close() error {
	if err := v.FS.Unmount(); err != nil {
		v.dev.Close()
		return err
	}
	return v.dev.Close()
}
