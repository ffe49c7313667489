package core

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sciforge/hdf5/internal/utils"
)

// DataLayoutClass represents the storage layout type.
type DataLayoutClass uint8

// Data layout class constants define how dataset data is stored.
const (
	LayoutCompact    DataLayoutClass = 0 // Data stored in message.
	LayoutContiguous DataLayoutClass = 1 // Data stored contiguously in file.
	LayoutChunked    DataLayoutClass = 2 // Data stored in chunks.
	LayoutVirtual    DataLayoutClass = 3 // Virtual dataset (HDF5 1.10+).
)

// DataLayoutMessage represents HDF5 data layout message.
type DataLayoutMessage struct {
	Version     uint8
	Class       DataLayoutClass
	DataAddress uint64   // Address where data is stored (for contiguous/chunked).
	DataSize    uint64   // Size of data (for contiguous).
	CompactData []byte   // Data itself (for compact layout).
	ChunkSize   []uint64 // Chunk dimensions (for chunked layout).

	// Virtual layout (v4 class 3): location of the mapping descriptor in
	// the global heap.
	VirtualHeapAddress uint64
	VirtualHeapIndex   uint32
}

// ParseDataLayoutMessage parses a data layout message from header message data.
func ParseDataLayoutMessage(data []byte, sb *Superblock) (*DataLayoutMessage, error) {
	if len(data) < 2 {
		return nil, errors.New("data layout message too short")
	}

	version := data[0]
	if version < 3 || version > 4 {
		return nil, fmt.Errorf("unsupported data layout version: %d", version)
	}

	msg := &DataLayoutMessage{
		Version: version,
		Class:   DataLayoutClass(data[1]),
	}

	switch msg.Class {
	case LayoutCompact:
		return parseLayoutCompact(data, msg)
	case LayoutContiguous:
		return parseLayoutContiguous(data, sb, msg)
	case LayoutChunked:
		return parseLayoutChunked(data, sb, msg)
	case LayoutVirtual:
		if version != 4 {
			return nil, fmt.Errorf("virtual layout requires version 4, got %d", version)
		}
		return parseLayoutVirtual(data, sb, msg)
	default:
		return nil, fmt.Errorf("unsupported layout class: %d", msg.Class)
	}
}

// parseLayoutCompact parses a compact layout body: data stored in the message.
func parseLayoutCompact(data []byte, msg *DataLayoutMessage) (*DataLayoutMessage, error) {
	if len(data) < 4 {
		return nil, errors.New("compact layout message too short")
	}
	size := binary.LittleEndian.Uint16(data[2:4])
	if len(data) < 4+int(size) {
		return nil, errors.New("compact layout data truncated")
	}
	msg.CompactData = data[4 : 4+size]
	msg.DataSize = uint64(size)
	return msg, nil
}

// parseLayoutContiguous parses a contiguous layout body: address + size.
func parseLayoutContiguous(data []byte, sb *Superblock, msg *DataLayoutMessage) (*DataLayoutMessage, error) {
	if len(data) < 2+int(sb.OffsetSize)+int(sb.LengthSize) {
		return nil, errors.New("contiguous layout message too short")
	}

	offset := 2
	msg.DataAddress = utils.ReadVarUint(data[offset:], int(sb.OffsetSize), sb.Endianness)
	offset += int(sb.OffsetSize)
	msg.DataSize = utils.ReadVarUint(data[offset:], int(sb.LengthSize), sb.Endianness)
	return msg, nil
}

// parseLayoutChunked parses a chunked layout body: dimensionality, B-tree
// address, then 32-bit chunk dimensions (the fastest-varying extra dimension
// holds the element size, see H5Dbtree.c).
func parseLayoutChunked(data []byte, sb *Superblock, msg *DataLayoutMessage) (*DataLayoutMessage, error) {
	if len(data) < 3 {
		return nil, errors.New("chunked layout message too short")
	}

	dimensionality := data[2]
	offset := 3

	if offset+int(sb.OffsetSize) > len(data) {
		return nil, errors.New("chunked layout address truncated")
	}
	msg.DataAddress = utils.ReadVarUint(data[offset:], int(sb.OffsetSize), sb.Endianness)
	offset += int(sb.OffsetSize)

	msg.ChunkSize = make([]uint64, dimensionality)
	for i := 0; i < int(dimensionality); i++ {
		if offset+4 > len(data) {
			return nil, fmt.Errorf("chunked layout dimension %d truncated", i)
		}
		msg.ChunkSize[i] = uint64(binary.LittleEndian.Uint32(data[offset : offset+4]))
		offset += 4
	}

	return msg, nil
}

// parseLayoutVirtual parses a virtual layout body (v4 class 3): the address
// of the global heap collection holding the mapping descriptor, plus the
// object index within that collection.
func parseLayoutVirtual(data []byte, sb *Superblock, msg *DataLayoutMessage) (*DataLayoutMessage, error) {
	if len(data) < 2+int(sb.OffsetSize)+4 {
		return nil, errors.New("virtual layout message too short")
	}

	offset := 2
	msg.VirtualHeapAddress = utils.ReadVarUint(data[offset:], int(sb.OffsetSize), sb.Endianness)
	offset += int(sb.OffsetSize)
	msg.VirtualHeapIndex = binary.LittleEndian.Uint32(data[offset : offset+4])

	if msg.VirtualHeapAddress == 0 || msg.VirtualHeapAddress == UndefinedAddress {
		return nil, errors.New("virtual layout has no descriptor address")
	}
	return msg, nil
}

// IsContiguous returns true if layout is contiguous.
func (dl *DataLayoutMessage) IsContiguous() bool {
	return dl.Class == LayoutContiguous
}

// IsCompact returns true if layout is compact (data in message).
func (dl *DataLayoutMessage) IsCompact() bool {
	return dl.Class == LayoutCompact
}

// IsChunked returns true if layout is chunked.
func (dl *DataLayoutMessage) IsChunked() bool {
	return dl.Class == LayoutChunked
}

// IsVirtual returns true if layout is a virtual dataset mapping.
func (dl *DataLayoutMessage) IsVirtual() bool {
	return dl.Class == LayoutVirtual
}

// String returns human-readable layout description.
func (dl *DataLayoutMessage) String() string {
	switch dl.Class {
	case LayoutCompact:
		return fmt.Sprintf("compact (size=%d)", dl.DataSize)
	case LayoutContiguous:
		return fmt.Sprintf("contiguous (address=0x%X, size=%d)", dl.DataAddress, dl.DataSize)
	case LayoutChunked:
		return fmt.Sprintf("chunked (chunks=%v)", dl.ChunkSize)
	case LayoutVirtual:
		return fmt.Sprintf("virtual (heap=0x%X, index=%d)", dl.VirtualHeapAddress, dl.VirtualHeapIndex)
	default:
		return "unknown"
	}
}
