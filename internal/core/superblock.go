package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sciforge/hdf5/internal/utils"
)

// HDF5 file signature and supported superblock versions.
const (
	Signature = "\x89HDF\r\n\x1a\n"
	Version0  = 0
	Version2  = 2
	Version3  = 3
)

// UndefinedAddress is the HDF5 "undefined" address sentinel.
const UndefinedAddress = 0xFFFFFFFFFFFFFFFF

// Superblock represents the HDF5 file superblock containing file-level metadata.
type Superblock struct {
	Version        uint8
	OffsetSize     uint8
	LengthSize     uint8
	BaseAddress    uint64
	RootGroup      uint64
	Endianness     binary.ByteOrder
	SuperExtension uint64
}

// ReadSuperblock reads and parses the HDF5 superblock from the file.
// It supports versions 0, 2, and 3 of the superblock format.
func ReadSuperblock(r io.ReaderAt) (*Superblock, error) {
	buf := utils.GetBuffer(128)
	defer utils.ReleaseBuffer(buf)

	n, err := r.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, utils.WrapError("superblock read failed", err)
	}
	if n < 48 {
		return nil, errors.New("file too small to contain a superblock")
	}

	if string(buf[:8]) != Signature {
		return nil, errors.New("invalid HDF5 signature")
	}

	version := buf[8]
	if version != Version0 && version != Version2 && version != Version3 {
		return nil, fmt.Errorf("unsupported superblock version: %d", version)
	}

	var endianness binary.ByteOrder
	var offsetSize, lengthSize uint8

	if version == Version0 {
		// v0: offset/length sizes at bytes 13-14, little-endian layout.
		offsetSize = buf[13]
		lengthSize = buf[14]
		endianness = binary.LittleEndian
	} else {
		// v2/v3: byte 9 is a flags byte, bit 0 selects endianness.
		switch buf[9] & 0x01 {
		case 0:
			endianness = binary.LittleEndian
		case 1:
			endianness = binary.BigEndian
		}

		// Byte 10 is either a direct size (1/2/4/8) or packed codes
		// (lower nibble = offset code, upper nibble = length code).
		sizesByte := buf[10]
		switch sizesByte {
		case 1, 2, 4, 8:
			offsetSize = sizesByte
			lengthSize = 8
		default:
			sizeCodeMap := map[uint8]uint8{0: 1, 1: 2, 2: 4, 3: 8}
			var ok bool
			offsetSize, ok = sizeCodeMap[sizesByte&0x0F]
			if !ok {
				return nil, fmt.Errorf("invalid offset size code: %d", sizesByte&0x0F)
			}
			lengthSize, ok = sizeCodeMap[(sizesByte>>4)&0x0F]
			if !ok {
				return nil, fmt.Errorf("invalid length size code: %d", (sizesByte>>4)&0x0F)
			}
		}
	}

	// Some generated test files encode zero sizes; treat them as 8.
	if offsetSize == 0 {
		offsetSize = 8
	}
	if lengthSize == 0 {
		lengthSize = 8
	}

	switch offsetSize {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("invalid offset size: %d", offsetSize)
	}
	switch lengthSize {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("invalid length size: %d", lengthSize)
	}

	readValue := func(offset int, size uint8) (uint64, error) {
		if offset < 0 || offset+int(size) > len(buf) {
			return 0, fmt.Errorf("buffer overflow: offset=%d, size=%d", offset, size)
		}
		return utils.ReadVarUint(buf[offset:], int(size), endianness), nil
	}

	sb := &Superblock{
		Version:    version,
		OffsetSize: offsetSize,
		LengthSize: lengthSize,
		Endianness: endianness,
	}

	if version == Version0 {
		// v0 stores the root group symbol table entry at offset 56:
		// link name offset (8), object header address (8), cache type (4),
		// reserved (4), then the scratch-pad B-tree and heap addresses.
		sb.RootGroup, err = readValue(64, offsetSize)
		if err != nil {
			return nil, utils.WrapError("root group address read failed", err)
		}

		// A zero object header address means symbol-table format; the
		// B-tree address in the scratch-pad is the entry point instead.
		if sb.RootGroup == 0 {
			sb.RootGroup, err = readValue(80, offsetSize)
			if err != nil {
				return nil, utils.WrapError("b-tree address read failed", err)
			}
		}
	} else {
		// v2/v3: base address, extension address, EOF address, root group.
		current := 12

		sb.BaseAddress, err = readValue(current, offsetSize)
		if err != nil {
			return nil, utils.WrapError("base address read failed", err)
		}
		current += int(offsetSize)

		sb.SuperExtension, err = readValue(current, offsetSize)
		if err != nil {
			return nil, utils.WrapError("super extension read failed", err)
		}
		current += int(offsetSize)

		// Skip end-of-file address.
		current += int(offsetSize)

		sb.RootGroup, err = readValue(current, offsetSize)
		if err != nil {
			return nil, utils.WrapError("root group address read failed", err)
		}
	}

	return sb, nil
}
