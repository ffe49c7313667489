package structures

import (
	"errors"
	"fmt"

	"github.com/sciforge/hdf5/internal/core"
	"github.com/sciforge/hdf5/internal/utils"
)

// Link type constants for link messages (type 0x0006).
const (
	LinkTypeHard uint8 = 0
	LinkTypeSoft uint8 = 1
)

// LinkMessage represents a parsed link message: a named edge from a group
// to a child object.
type LinkMessage struct {
	Name          string
	LinkType      uint8
	ObjectAddress uint64 // Hard links only.
	SoftTarget    string // Soft links only.
}

// IsHardLink reports whether the link carries a direct object address.
func (lm *LinkMessage) IsHardLink() bool {
	return lm.LinkType == LinkTypeHard
}

// IsSoftLink reports whether the link is a symbolic path.
func (lm *LinkMessage) IsSoftLink() bool {
	return lm.LinkType == LinkTypeSoft
}

// ParseLinkMessage parses a version 1 link message.
// Layout: version(1) + flags(1) + [link type(1)] + [creation order(8)] +
// [charset(1)] + name length (2^(flags&0x3) bytes) + name + type payload.
func ParseLinkMessage(data []byte, sb *core.Superblock) (*LinkMessage, error) {
	if len(data) < 2 {
		return nil, errors.New("link message too short")
	}
	if data[0] != 1 {
		return nil, fmt.Errorf("unsupported link message version: %d", data[0])
	}

	flags := data[1]
	offset := 2

	lm := &LinkMessage{LinkType: LinkTypeHard}

	// Bit 3: explicit link type byte present (hard links omit it).
	if flags&0x08 != 0 {
		if offset >= len(data) {
			return nil, errors.New("link message truncated (type)")
		}
		lm.LinkType = data[offset]
		offset++
	}

	// Bit 2: creation order field present.
	if flags&0x04 != 0 {
		offset += 8
	}

	// Bit 4: character set field present.
	if flags&0x10 != 0 {
		offset++
	}

	// Bits 0-1: size of the name length field (1, 2, 4 or 8 bytes).
	nameLenSize := 1 << (flags & 0x03)
	if offset+nameLenSize > len(data) {
		return nil, errors.New("link message truncated (name length)")
	}
	nameLen := utils.ReadVarUint(data[offset:], nameLenSize, sb.Endianness)
	offset += nameLenSize

	if offset+int(nameLen) > len(data) {
		return nil, errors.New("link message truncated (name)")
	}
	lm.Name = string(data[offset : offset+int(nameLen)])
	offset += int(nameLen)

	switch lm.LinkType {
	case LinkTypeHard:
		if offset+int(sb.OffsetSize) > len(data) {
			return nil, errors.New("link message truncated (address)")
		}
		lm.ObjectAddress = utils.ReadVarUint(data[offset:], int(sb.OffsetSize), sb.Endianness)

	case LinkTypeSoft:
		if offset+2 > len(data) {
			return nil, errors.New("link message truncated (soft length)")
		}
		targetLen := int(sb.Endianness.Uint16(data[offset : offset+2]))
		offset += 2
		if offset+targetLen > len(data) {
			return nil, errors.New("link message truncated (soft target)")
		}
		lm.SoftTarget = string(data[offset : offset+targetLen])

	default:
		return nil, fmt.Errorf("unsupported link type: %d", lm.LinkType)
	}

	return lm, nil
}
