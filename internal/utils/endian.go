package utils

import "encoding/binary"

// ReaderAt is a simplified interface for io.ReaderAt.
type ReaderAt interface {
	ReadAt(p []byte, off int64) (n int, err error)
}

// ReadUint64 reads a 64-bit value at specified offset.
func ReadUint64(r ReaderAt, offset int64, order binary.ByteOrder) (uint64, error) {
	buf := GetBuffer(8)
	defer ReleaseBuffer(buf)

	if _, err := r.ReadAt(buf, offset); err != nil {
		return 0, err
	}
	return order.Uint64(buf), nil
}

// ReadVarUint reads an unsigned integer of 1, 2, 4 or 8 bytes from data.
// Shorter values are zero-extended; sizes outside the set are padded to 8.
func ReadVarUint(data []byte, size int, order binary.ByteOrder) uint64 {
	if size > len(data) {
		size = len(data)
	}

	switch size {
	case 1:
		return uint64(data[0])
	case 2:
		return uint64(order.Uint16(data[:2]))
	case 4:
		return uint64(order.Uint32(data[:4]))
	case 8:
		return order.Uint64(data[:8])
	default:
		var buf [8]byte
		copy(buf[:], data[:size])
		return order.Uint64(buf[:])
	}
}
