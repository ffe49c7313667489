// Package structures implements the HDF5 group plumbing: local heaps,
// symbol tables and the v1 group B-tree.
package structures

import (
	"errors"
	"fmt"
	"io"

	"github.com/sciforge/hdf5/internal/core"
	"github.com/sciforge/hdf5/internal/utils"
)

// LocalHeap represents an HDF5 local heap ("HEAP"): the string storage for
// symbol table link names.
type LocalHeap struct {
	DataSize    uint64
	DataAddress uint64
	data        []byte
}

// LoadLocalHeap reads a local heap header and its data segment.
// Header layout: signature(4) + version(1) + reserved(3) +
// data segment size(lengthSize) + free list head(lengthSize) +
// data segment address(offsetSize).
func LoadLocalHeap(r io.ReaderAt, address uint64, sb *core.Superblock) (*LocalHeap, error) {
	headerSize := 8 + int(sb.LengthSize)*2 + int(sb.OffsetSize)
	header := utils.GetBuffer(headerSize)
	defer utils.ReleaseBuffer(header)

	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(header, int64(address)); err != nil {
		return nil, utils.WrapError("local heap header read failed", err)
	}

	if string(header[0:4]) != "HEAP" {
		return nil, fmt.Errorf("invalid local heap signature: %q", string(header[0:4]))
	}
	if header[4] != 0 {
		return nil, fmt.Errorf("unsupported local heap version: %d", header[4])
	}

	offset := 8
	heap := &LocalHeap{}
	heap.DataSize = utils.ReadVarUint(header[offset:], int(sb.LengthSize), sb.Endianness)
	offset += int(sb.LengthSize) * 2 // skip free list head
	heap.DataAddress = utils.ReadVarUint(header[offset:], int(sb.OffsetSize), sb.Endianness)

	if err := utils.ValidateBufferSize(heap.DataSize, utils.MaxChunkSize, "local heap"); err != nil {
		return nil, err
	}

	heap.data = make([]byte, heap.DataSize)
	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(heap.data, int64(heap.DataAddress)); err != nil {
		return nil, utils.WrapError("local heap data read failed", err)
	}

	return heap, nil
}

// GetString returns the NUL-terminated string at the given heap offset.
func (h *LocalHeap) GetString(offset uint64) (string, error) {
	if offset >= uint64(len(h.data)) {
		return "", errors.New("heap string offset out of range")
	}

	end := offset
	for end < uint64(len(h.data)) && h.data[end] != 0 {
		end++
	}
	if end == uint64(len(h.data)) {
		return "", errors.New("unterminated heap string")
	}
	return string(h.data[offset:end]), nil
}
