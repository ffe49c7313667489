package core

import (
	"errors"
	"fmt"
	"io"

	"github.com/sciforge/hdf5/internal/utils"
)

// Header message type constants (HDF5 object header message IDs).
const (
	MsgNil            uint16 = 0x0000
	MsgDataspace      uint16 = 0x0001
	MsgLinkInfo       uint16 = 0x0002
	MsgDatatype       uint16 = 0x0003
	MsgFillValueOld   uint16 = 0x0004
	MsgFillValue      uint16 = 0x0005
	MsgLinkMessage    uint16 = 0x0006
	MsgDataLayout     uint16 = 0x0008
	MsgGroupInfo      uint16 = 0x000A
	MsgFilterPipeline uint16 = 0x000B
	MsgAttribute      uint16 = 0x000C
	MsgContinuation   uint16 = 0x0010
	MsgSymbolTable    uint16 = 0x0011
)

// ObjectType classifies the object an object header describes.
type ObjectType uint8

// Object type constants.
const (
	ObjectTypeUnknown ObjectType = 0
	ObjectTypeGroup   ObjectType = 1
	ObjectTypeDataset ObjectType = 2
)

// HeaderMessage is a single message extracted from an object header.
type HeaderMessage struct {
	Type  uint16
	Flags uint8
	Data  []byte
}

// ObjectHeader represents a parsed HDF5 object header (v1 or v2).
type ObjectHeader struct {
	Version  uint8
	Type     ObjectType
	Messages []*HeaderMessage
}

// signatureOHDR is the version 2 object header signature.
const signatureOHDR = "OHDR"

// ReadObjectHeader reads and parses an object header at the given address.
// Version 2 headers carry an "OHDR" signature; version 1 headers do not and
// are detected by their leading version byte.
func ReadObjectHeader(r io.ReaderAt, address uint64, sb *Superblock) (*ObjectHeader, error) {
	if address == 0 || address == UndefinedAddress {
		return nil, errors.New("invalid object header address")
	}

	sig := utils.GetBuffer(4)
	defer utils.ReleaseBuffer(sig)

	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(sig, int64(address)); err != nil {
		return nil, utils.WrapError("object header read failed", err)
	}

	var header *ObjectHeader
	var err error
	if string(sig) == signatureOHDR {
		header, err = readObjectHeaderV2(r, address, sb)
	} else {
		header, err = readObjectHeaderV1(r, address, sb)
	}
	if err != nil {
		return nil, err
	}

	header.Type = classifyObject(header.Messages)
	return header, nil
}

// classifyObject decides whether a header describes a dataset or a group.
// A data layout message is definitive for datasets; group-only messages
// (symbol table, link, link info, group info) mark groups.
func classifyObject(messages []*HeaderMessage) ObjectType {
	for _, msg := range messages {
		if msg.Type == MsgDataLayout {
			return ObjectTypeDataset
		}
	}
	for _, msg := range messages {
		switch msg.Type {
		case MsgSymbolTable, MsgLinkMessage, MsgLinkInfo, MsgGroupInfo:
			return ObjectTypeGroup
		}
	}
	return ObjectTypeGroup
}

// FindMessage returns the first message of the given type, or nil.
func (oh *ObjectHeader) FindMessage(msgType uint16) *HeaderMessage {
	for _, msg := range oh.Messages {
		if msg.Type == msgType {
			return msg
		}
	}
	return nil
}

// readObjectHeaderV1 parses a version 1 object header.
// Layout: version(1) + reserved(1) + message count(2) + reference count(4) +
// header size(4), padded to an 8-byte boundary, then the message stream.
func readObjectHeaderV1(r io.ReaderAt, address uint64, sb *Superblock) (*ObjectHeader, error) {
	prefix := utils.GetBuffer(16)
	defer utils.ReleaseBuffer(prefix)

	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(prefix, int64(address)); err != nil {
		return nil, utils.WrapError("v1 header prefix read failed", err)
	}

	if prefix[0] != 1 {
		return nil, fmt.Errorf("unsupported object header version: %d", prefix[0])
	}

	numMessages := sb.Endianness.Uint16(prefix[2:4])
	headerSize := sb.Endianness.Uint32(prefix[8:12])
	if headerSize == 0 || headerSize > utils.MaxChunkSize {
		return nil, fmt.Errorf("implausible v1 header size: %d", headerSize)
	}

	// Message stream starts after the 12-byte prefix padded to 16 bytes.
	data := make([]byte, headerSize)
	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(data, int64(address)+16); err != nil {
		return nil, utils.WrapError("v1 header block read failed", err)
	}

	header := &ObjectHeader{Version: 1}
	if err := parseMessagesV1(r, data, int(numMessages), sb, header); err != nil {
		return nil, err
	}
	return header, nil
}

// parseMessagesV1 walks a v1 message block, following continuation blocks.
func parseMessagesV1(r io.ReaderAt, data []byte, remaining int, sb *Superblock, header *ObjectHeader) error {
	offset := 0
	for remaining > 0 && offset+8 <= len(data) {
		msgType := sb.Endianness.Uint16(data[offset : offset+2])
		msgSize := int(sb.Endianness.Uint16(data[offset+2 : offset+4]))
		flags := data[offset+4]
		offset += 8 // type(2) + size(2) + flags(1) + reserved(3)

		if offset+msgSize > len(data) {
			return errors.New("v1 message data truncated")
		}
		body := data[offset : offset+msgSize]
		offset += msgSize
		remaining--

		if msgType == MsgContinuation {
			if len(body) < int(sb.OffsetSize)+int(sb.LengthSize) {
				return errors.New("v1 continuation message too short")
			}
			contAddr := utils.ReadVarUint(body, int(sb.OffsetSize), sb.Endianness)
			contLen := utils.ReadVarUint(body[sb.OffsetSize:], int(sb.LengthSize), sb.Endianness)
			if err := utils.ValidateBufferSize(contLen, utils.MaxChunkSize, "continuation block"); err != nil {
				return err
			}

			contData := make([]byte, contLen)
			//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
			if _, err := r.ReadAt(contData, int64(contAddr)); err != nil {
				return utils.WrapError("continuation block read failed", err)
			}
			if err := parseMessagesV1(r, contData, remaining, sb, header); err != nil {
				return err
			}
			return nil
		}

		if msgType != MsgNil {
			msgData := make([]byte, len(body))
			copy(msgData, body)
			header.Messages = append(header.Messages, &HeaderMessage{
				Type:  msgType,
				Flags: flags,
				Data:  msgData,
			})
		}
	}
	return nil
}

// readObjectHeaderV2 parses a version 2 ("OHDR") object header.
func readObjectHeaderV2(r io.ReaderAt, address uint64, sb *Superblock) (*ObjectHeader, error) {
	prefix := utils.GetBuffer(16)
	defer utils.ReleaseBuffer(prefix)

	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(prefix, int64(address)); err != nil {
		return nil, utils.WrapError("v2 header prefix read failed", err)
	}

	if string(prefix[0:4]) != signatureOHDR {
		return nil, errors.New("missing OHDR signature")
	}
	if prefix[4] != 2 {
		return nil, fmt.Errorf("unsupported object header version: %d", prefix[4])
	}

	flags := prefix[5]
	offset := 6

	// Optional access/modification/change/birth times (4 x 4 bytes).
	if flags&0x20 != 0 {
		offset += 16
	}
	// Optional max compact / min dense attribute counts (2 x 2 bytes).
	if flags&0x10 != 0 {
		offset += 4
	}

	// Size of chunk 0: 1 << (flags & 0x03) bytes.
	chunkSizeBytes := 1 << (flags & 0x03)
	if offset+chunkSizeBytes > len(prefix) {
		return nil, errors.New("v2 header prefix truncated")
	}
	chunkSize := utils.ReadVarUint(prefix[offset:], chunkSizeBytes, sb.Endianness)
	offset += chunkSizeBytes

	if err := utils.ValidateBufferSize(chunkSize, utils.MaxChunkSize, "object header chunk"); err != nil {
		return nil, err
	}

	data := make([]byte, chunkSize)
	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(data, int64(address)+int64(offset)); err != nil {
		return nil, utils.WrapError("v2 header block read failed", err)
	}

	header := &ObjectHeader{Version: 2}
	trackOrder := flags&0x04 != 0
	if err := parseMessagesV2(r, data, trackOrder, sb, header); err != nil {
		return nil, err
	}
	return header, nil
}

// parseMessagesV2 walks a v2 message block, following OCHK continuations.
// The trailing 4-byte gap/checksum region terminates each block.
func parseMessagesV2(r io.ReaderAt, data []byte, trackOrder bool, sb *Superblock, header *ObjectHeader) error {
	msgHeaderSize := 4 // type(1) + size(2) + flags(1)
	if trackOrder {
		msgHeaderSize += 2 // creation order
	}

	offset := 0
	for offset+msgHeaderSize <= len(data)-4 {
		msgType := uint16(data[offset])
		msgSize := int(sb.Endianness.Uint16(data[offset+1 : offset+3]))
		flags := data[offset+3]
		offset += msgHeaderSize

		if offset+msgSize > len(data) {
			return errors.New("v2 message data truncated")
		}
		body := data[offset : offset+msgSize]
		offset += msgSize

		switch msgType {
		case MsgNil:
			// Skip.
		case MsgContinuation:
			if len(body) < int(sb.OffsetSize)+int(sb.LengthSize) {
				return errors.New("v2 continuation message too short")
			}
			contAddr := utils.ReadVarUint(body, int(sb.OffsetSize), sb.Endianness)
			contLen := utils.ReadVarUint(body[sb.OffsetSize:], int(sb.LengthSize), sb.Endianness)
			if err := utils.ValidateBufferSize(contLen, utils.MaxChunkSize, "continuation block"); err != nil {
				return err
			}
			if contLen < 4 {
				return errors.New("v2 continuation block too small")
			}

			contData := make([]byte, contLen)
			//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
			if _, err := r.ReadAt(contData, int64(contAddr)); err != nil {
				return utils.WrapError("continuation block read failed", err)
			}
			if string(contData[0:4]) != "OCHK" {
				return fmt.Errorf("invalid continuation signature: %q", string(contData[0:4]))
			}
			if err := parseMessagesV2(r, contData[4:], trackOrder, sb, header); err != nil {
				return err
			}
		default:
			msgData := make([]byte, len(body))
			copy(msgData, body)
			header.Messages = append(header.Messages, &HeaderMessage{
				Type:  msgType,
				Flags: flags,
				Data:  msgData,
			})
		}
	}
	return nil
}
