package core

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// DataspaceType represents the type of dataspace.
type DataspaceType uint8

// Dataspace type constants define the dimensionality of datasets.
const (
	DataspaceScalar DataspaceType = 0 // Scalar (single value).
	DataspaceSimple DataspaceType = 1 // Simple (N-dimensional array).
	DataspaceNull   DataspaceType = 2 // Null (no data).
)

// UnlimitedDim is the sentinel marking an unlimited (resizable) dimension.
const UnlimitedDim = 0xFFFFFFFFFFFFFFFF

// DataspaceMessage represents HDF5 dataspace message.
type DataspaceMessage struct {
	Version    uint8
	Type       DataspaceType
	Dimensions []uint64
	MaxDims    []uint64 // Maximum dimensions (optional, for resizable datasets).
}

// ParseDataspaceMessage parses a dataspace message from header message data.
func ParseDataspaceMessage(data []byte) (*DataspaceMessage, error) {
	if len(data) < 3 {
		return nil, errors.New("dataspace message too short")
	}

	version := data[0]
	if version != 1 && version != 2 {
		return nil, fmt.Errorf("unsupported dataspace version: %d", version)
	}

	dimensionality := data[1]
	flags := data[2]

	// Bit 0 indicates max dimensions present.
	hasMaxDims := (flags & 0x01) != 0

	ds := &DataspaceMessage{
		Version: version,
	}

	if dimensionality == 0 {
		// Scalar dataspace, treated as a 1-element array.
		ds.Type = DataspaceScalar
		ds.Dimensions = []uint64{1}
		return ds, nil
	}

	ds.Type = DataspaceSimple

	// Version 1: version(1) + dimensionality(1) + flags(1) + reserved(5).
	// Version 2: version(1) + dimensionality(1) + flags(1) + type(1).
	var offset int
	if version == 1 {
		offset = 8
	} else {
		offset = 4
	}

	// Auto-detect dimension size based on message length. Version 1 spec
	// says 4 bytes, but some files (v0 superblock) use 8 bytes.
	totalDimsCount := int(dimensionality)
	if hasMaxDims {
		totalDimsCount *= 2
	}

	var dimSize int
	switch {
	case len(data) >= offset+totalDimsCount*8:
		dimSize = 8
	case len(data) >= offset+totalDimsCount*4:
		dimSize = 4
	default:
		return nil, fmt.Errorf("dataspace message too short: %d bytes, need %d",
			len(data), offset+totalDimsCount*4)
	}

	readDim := func() (uint64, error) {
		if offset+dimSize > len(data) {
			return 0, errors.New("dataspace message truncated")
		}
		var v uint64
		if dimSize == 4 {
			v = uint64(binary.LittleEndian.Uint32(data[offset : offset+4]))
			// 4-byte encoding of the unlimited sentinel.
			if v == 0xFFFFFFFF {
				v = UnlimitedDim
			}
		} else {
			v = binary.LittleEndian.Uint64(data[offset : offset+8])
		}
		offset += dimSize
		return v, nil
	}

	ds.Dimensions = make([]uint64, dimensionality)
	for i := 0; i < int(dimensionality); i++ {
		dim, err := readDim()
		if err != nil {
			return nil, err
		}
		ds.Dimensions[i] = dim
	}

	if hasMaxDims {
		ds.MaxDims = make([]uint64, dimensionality)
		for i := 0; i < int(dimensionality); i++ {
			dim, err := readDim()
			if err != nil {
				return nil, err
			}
			ds.MaxDims[i] = dim
		}
	}

	return ds, nil
}

// TotalElements calculates total number of elements in dataspace.
func (ds *DataspaceMessage) TotalElements() uint64 {
	if ds.Type == DataspaceNull {
		return 0
	}

	if ds.Type == DataspaceScalar {
		return 1
	}

	total := uint64(1)
	for _, dim := range ds.Dimensions {
		total *= dim
	}
	return total
}

// HasUnlimited reports whether any current or maximum dimension carries the
// unlimited sentinel.
func (ds *DataspaceMessage) HasUnlimited() bool {
	for _, dim := range ds.Dimensions {
		if dim == UnlimitedDim {
			return true
		}
	}
	for _, dim := range ds.MaxDims {
		if dim == UnlimitedDim {
			return true
		}
	}
	return false
}

// String returns human-readable dataspace description.
func (ds *DataspaceMessage) String() string {
	switch ds.Type {
	case DataspaceScalar:
		return "scalar"
	case DataspaceNull:
		return "null"
	case DataspaceSimple:
		switch len(ds.Dimensions) {
		case 1:
			return fmt.Sprintf("1D array [%d]", ds.Dimensions[0])
		case 2:
			return fmt.Sprintf("2D array [%d x %d]", ds.Dimensions[0], ds.Dimensions[1])
		default:
			return fmt.Sprintf("%dD array %v", len(ds.Dimensions), ds.Dimensions)
		}
	default:
		return "unknown"
	}
}
