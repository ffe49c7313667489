package core

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FillValueMessage represents a fill value message (type 0x0005).
type FillValueMessage struct {
	Version        uint8
	SpaceAllocTime uint8
	FillWriteTime  uint8
	IsDefined      bool
	Value          []byte
}

// ParseFillValueMessage parses a fill value message (versions 1-3).
func ParseFillValueMessage(data []byte) (*FillValueMessage, error) {
	if len(data) < 2 {
		return nil, errors.New("fill value message too short")
	}

	fv := &FillValueMessage{Version: data[0]}

	switch fv.Version {
	case 1, 2:
		return parseFillValueV1V2(data, fv)
	case 3:
		return parseFillValueV3(data, fv)
	default:
		return nil, fmt.Errorf("unsupported fill value version: %d", fv.Version)
	}
}

// parseFillValueV1V2 parses the v1/v2 body: alloc time, write time, defined
// flag, then an optional 4-byte size and value bytes.
func parseFillValueV1V2(data []byte, fv *FillValueMessage) (*FillValueMessage, error) {
	if len(data) < 4 {
		return nil, errors.New("fill value v1/v2 message too short")
	}

	fv.SpaceAllocTime = data[1]
	fv.FillWriteTime = data[2]
	fv.IsDefined = data[3] != 0

	if !fv.IsDefined || len(data) < 8 {
		return fv, nil
	}

	size := binary.LittleEndian.Uint32(data[4:8])
	if len(data) < 8+int(size) {
		return nil, errors.New("fill value v1/v2 data truncated")
	}
	fv.Value = make([]byte, size)
	copy(fv.Value, data[8:8+size])
	return fv, nil
}

// parseFillValueV3 parses the v3 body: a packed flags byte, then an optional
// 4-byte size and value bytes when the "fill value present" bit is set.
func parseFillValueV3(data []byte, fv *FillValueMessage) (*FillValueMessage, error) {
	flags := data[1]
	fv.SpaceAllocTime = flags & 0x03
	fv.FillWriteTime = (flags >> 2) & 0x03
	// Bit 4: fill value undefined (0 = defined).
	fv.IsDefined = (flags>>4)&0x01 == 0

	// Bit 5: fill value present in this message.
	if !fv.IsDefined || (flags>>5)&0x01 == 0 {
		return fv, nil
	}

	if len(data) < 6 {
		return nil, errors.New("fill value v3 size truncated")
	}
	size := binary.LittleEndian.Uint32(data[2:6])
	if len(data) < 6+int(size) {
		return nil, errors.New("fill value v3 data truncated")
	}
	fv.Value = make([]byte, size)
	copy(fv.Value, data[6:6+size])
	return fv, nil
}

// Float64 decodes the fill value through the dataset's datatype. The second
// return is false when no usable fill value is carried by the message.
func (fv *FillValueMessage) Float64(dt *DatatypeMessage) (float64, bool) {
	if fv == nil || !fv.IsDefined || len(fv.Value) < int(dt.Size) {
		return 0, false
	}
	v, err := dt.DecodeFloat64(fv.Value)
	if err != nil {
		return 0, false
	}
	return v, true
}
