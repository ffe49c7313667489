package core

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// SelectionType identifies a serialized dataspace selection.
type SelectionType uint32

// Serialized selection type constants (H5S_sel_type).
const (
	SelNone      SelectionType = 0
	SelPoints    SelectionType = 1
	SelHyperslab SelectionType = 2
	SelAll       SelectionType = 3
)

// SerializedSelection is a dataspace selection as encoded inside the virtual
// storage descriptor. Only hyperslab and all selections appear in VDS
// mappings; the hyperslab vectors are empty for SelAll.
type SerializedSelection struct {
	Type   SelectionType
	Start  []uint64
	Stride []uint64
	Count  []uint64
	Block  []uint64
}

// Rank returns the number of axes of a hyperslab selection (0 for SelAll).
func (s *SerializedSelection) Rank() int {
	return len(s.Start)
}

// VirtualEntry is one mapping of the virtual storage descriptor: a region of
// the virtual dataspace backed by a selection of a source dataset, possibly
// in another file. The entry order in the descriptor is the tie-break order
// for overlapping mappings and is preserved verbatim.
type VirtualEntry struct {
	SourceFile       string
	SourceDataset    string
	SourceSelection  SerializedSelection
	VirtualSelection SerializedSelection
}

// ParseVirtualStorage decodes the virtual dataset mapping blob retrieved
// from the global heap. Blob layout:
//   - Version (1 byte): 0.
//   - Number of entries (lengthSize bytes).
//   - Per entry: source file name (NUL-terminated), source dataset path
//     (NUL-terminated), source selection, virtual selection.
//   - Trailing 4-byte checksum (not verified on read).
func ParseVirtualStorage(data []byte, lengthSize int, order binary.ByteOrder) ([]VirtualEntry, error) {
	if len(data) < 1+lengthSize {
		return nil, errors.New("virtual storage blob too short")
	}
	if data[0] != 0 {
		return nil, fmt.Errorf("unsupported virtual storage version: %d", data[0])
	}

	d := &blobDecoder{data: data, pos: 1, order: order}

	numEntries := d.uint(lengthSize)
	if d.err != nil {
		return nil, d.err
	}
	// One mapping takes at least two NUL bytes plus two selection headers.
	if numEntries > uint64(len(data)) {
		return nil, fmt.Errorf("implausible virtual storage entry count: %d", numEntries)
	}

	entries := make([]VirtualEntry, 0, numEntries)
	for i := uint64(0); i < numEntries; i++ {
		var e VirtualEntry
		e.SourceFile = d.cstring()
		e.SourceDataset = d.cstring()
		e.SourceSelection = d.selection()
		e.VirtualSelection = d.selection()
		if d.err != nil {
			return nil, fmt.Errorf("virtual storage entry %d: %w", i, d.err)
		}
		if e.SourceFile == "" {
			return nil, fmt.Errorf("virtual storage entry %d: empty source file name", i)
		}
		if e.SourceDataset == "" {
			return nil, fmt.Errorf("virtual storage entry %d: empty source dataset path", i)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// blobDecoder is a cursor over the descriptor blob. The first failure
// sticks; subsequent reads are no-ops.
type blobDecoder struct {
	data  []byte
	pos   int
	order binary.ByteOrder
	err   error
}

func (d *blobDecoder) fail(msg string) {
	if d.err == nil {
		d.err = errors.New(msg)
	}
}

func (d *blobDecoder) uint(size int) uint64 {
	if d.err != nil {
		return 0
	}
	if d.pos+size > len(d.data) {
		d.fail("blob truncated")
		return 0
	}
	var v uint64
	switch size {
	case 1:
		v = uint64(d.data[d.pos])
	case 2:
		v = uint64(d.order.Uint16(d.data[d.pos:]))
	case 4:
		v = uint64(d.order.Uint32(d.data[d.pos:]))
	case 8:
		v = d.order.Uint64(d.data[d.pos:])
	default:
		d.fail(fmt.Sprintf("unsupported integer width %d", size))
		return 0
	}
	d.pos += size
	return v
}

func (d *blobDecoder) cstring() string {
	if d.err != nil {
		return ""
	}
	end := bytes.IndexByte(d.data[d.pos:], 0)
	if end < 0 {
		d.fail("unterminated string")
		return ""
	}
	s := string(d.data[d.pos : d.pos+end])
	d.pos += end + 1
	return s
}

// selection decodes one serialized selection: type (4 bytes), version
// (4 bytes), then a type-specific payload. Hyperslab version 2 payload:
// flags (1), encode length (4), rank (4), then rank x (start, stride,
// count, block) as 8-byte values.
func (d *blobDecoder) selection() SerializedSelection {
	var sel SerializedSelection
	sel.Type = SelectionType(d.uint(4))
	version := d.uint(4)
	if d.err != nil {
		return sel
	}

	switch sel.Type {
	case SelAll, SelNone:
		return sel

	case SelHyperslab:
		if version != 2 {
			d.fail(fmt.Sprintf("unsupported hyperslab selection version %d", version))
			return sel
		}
		_ = d.uint(1) // flags
		_ = d.uint(4) // encode length
		rank := d.uint(4)
		if d.err != nil {
			return sel
		}
		if rank == 0 || rank > 32 {
			d.fail(fmt.Sprintf("implausible selection rank %d", rank))
			return sel
		}

		sel.Start = make([]uint64, rank)
		sel.Stride = make([]uint64, rank)
		sel.Count = make([]uint64, rank)
		sel.Block = make([]uint64, rank)
		for i := uint64(0); i < rank; i++ {
			sel.Start[i] = d.uint(8)
			sel.Stride[i] = d.uint(8)
			sel.Count[i] = d.uint(8)
			sel.Block[i] = d.uint(8)
		}
		return sel

	default:
		d.fail(fmt.Sprintf("unsupported selection type %d in virtual storage", sel.Type))
		return sel
	}
}
