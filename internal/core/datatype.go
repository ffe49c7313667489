package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// DatatypeClass represents HDF5 datatype class.
type DatatypeClass uint8

// Datatype class constants identify different HDF5 data types for datasets.
const (
	DatatypeFixed     DatatypeClass = 0 // Fixed-point (integers).
	DatatypeFloat     DatatypeClass = 1 // Floating-point.
	DatatypeTime      DatatypeClass = 2
	DatatypeString    DatatypeClass = 3
	DatatypeBitfield  DatatypeClass = 4
	DatatypeOpaque    DatatypeClass = 5
	DatatypeCompound  DatatypeClass = 6
	DatatypeReference DatatypeClass = 7
	DatatypeEnum      DatatypeClass = 8
	DatatypeVarLen    DatatypeClass = 9
	DatatypeArray     DatatypeClass = 10
)

// DatatypeMessage represents HDF5 datatype message.
type DatatypeMessage struct {
	Class         DatatypeClass
	Version       uint8
	Size          uint32
	ClassBitField uint32
	Properties    []byte
}

// ParseDatatypeMessage parses a datatype message from header message data.
func ParseDatatypeMessage(data []byte) (*DatatypeMessage, error) {
	if len(data) < 8 {
		return nil, errors.New("datatype message too short")
	}

	// Bytes 0-3: class, version and class bit field packed.
	classAndVersion := binary.LittleEndian.Uint32(data[0:4])

	//nolint:gosec // G115: HDF5 binary format unpacking
	class := DatatypeClass(classAndVersion & 0x0F)
	//nolint:gosec // G115: HDF5 binary format unpacking
	version := uint8((classAndVersion >> 4) & 0x0F)
	classBitField := (classAndVersion >> 8) & 0x00FFFFFF

	size := binary.LittleEndian.Uint32(data[4:8])
	if size == 0 {
		return nil, errors.New("datatype size is zero")
	}

	props := make([]byte, len(data)-8)
	copy(props, data[8:])

	return &DatatypeMessage{
		Class:         class,
		Version:       version,
		Size:          size,
		ClassBitField: classBitField,
		Properties:    props,
	}, nil
}

// GetByteOrder returns the byte order encoded in the class bit field.
// Bit 0: 0 = little-endian, 1 = big-endian.
func (dt *DatatypeMessage) GetByteOrder() binary.ByteOrder {
	if dt.ClassBitField&0x01 != 0 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// IsSigned reports whether a fixed-point datatype is signed (bit 3).
func (dt *DatatypeMessage) IsSigned() bool {
	return dt.ClassBitField&0x08 != 0
}

// IsFloat64 returns true for IEEE 754 double precision.
func (dt *DatatypeMessage) IsFloat64() bool {
	return dt.Class == DatatypeFloat && dt.Size == 8
}

// IsFloat32 returns true for IEEE 754 single precision.
func (dt *DatatypeMessage) IsFloat32() bool {
	return dt.Class == DatatypeFloat && dt.Size == 4
}

// IsInt32 returns true for 32-bit fixed-point values.
func (dt *DatatypeMessage) IsInt32() bool {
	return dt.Class == DatatypeFixed && dt.Size == 4
}

// IsInt64 returns true for 64-bit fixed-point values.
func (dt *DatatypeMessage) IsInt64() bool {
	return dt.Class == DatatypeFixed && dt.Size == 8
}

// DecodeFloat64 decodes one element at the start of raw into a float64.
func (dt *DatatypeMessage) DecodeFloat64(raw []byte) (float64, error) {
	if len(raw) < int(dt.Size) {
		return 0, fmt.Errorf("element truncated: have %d bytes, need %d", len(raw), dt.Size)
	}

	order := dt.GetByteOrder()
	switch {
	case dt.IsFloat64():
		return math.Float64frombits(order.Uint64(raw[:8])), nil
	case dt.IsFloat32():
		return float64(math.Float32frombits(order.Uint32(raw[:4]))), nil
	case dt.IsInt32():
		if dt.IsSigned() {
			//nolint:gosec // G115: HDF5 binary format requires uint32 to int32 conversion
			return float64(int32(order.Uint32(raw[:4]))), nil
		}
		return float64(order.Uint32(raw[:4])), nil
	case dt.IsInt64():
		if dt.IsSigned() {
			//nolint:gosec // G115: HDF5 binary format requires uint64 to int64 conversion
			return float64(int64(order.Uint64(raw[:8]))), nil
		}
		return float64(order.Uint64(raw[:8])), nil
	default:
		return 0, fmt.Errorf("unsupported datatype for float64 conversion: %s", dt)
	}
}

// String returns human-readable datatype description.
func (dt *DatatypeMessage) String() string {
	switch {
	case dt.IsFloat64():
		return "float64"
	case dt.IsFloat32():
		return "float32"
	case dt.IsInt64():
		if !dt.IsSigned() {
			return "uint64"
		}
		return "int64"
	case dt.IsInt32():
		if !dt.IsSigned() {
			return "uint32"
		}
		return "int32"
	default:
		return fmt.Sprintf("class=%d size=%d", dt.Class, dt.Size)
	}
}
