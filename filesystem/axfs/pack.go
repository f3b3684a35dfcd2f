package axfs

import "encoding/binary"

// All multi-byte on-disk fields are big-endian; these wrappers keep the
// codec call sites short.

func beUint16(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

func beUint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func bePutUint16(b []byte, v uint16) {
	binary.BigEndian.PutUint16(b, v)
}

func bePutUint32(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}
