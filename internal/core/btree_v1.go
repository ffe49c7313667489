package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sciforge/hdf5/internal/utils"
)

// ChunkInfo locates one raw chunk of a chunked dataset.
// Offsets are the element coordinates of the chunk origin within the
// dataset (the trailing datatype-size dimension of the key is dropped).
type ChunkInfo struct {
	Offsets    []uint64 // Chunk origin, element coordinates per axis.
	Nbytes     uint32   // Size of stored chunk data in bytes.
	FilterMask uint32   // Excluded filters mask.
	Address    uint64   // File address of the chunk data.
}

// btreeV1Node is a parsed v1 B-tree node (type 1, chunked data index).
// Reference: H5Bpkg.h, H5Dbtree.c.
type btreeV1Node struct {
	level    uint8
	keys     []chunkKey
	children []uint64
}

// chunkKey is a raw chunk B-tree key: size, filter mask and the chunk
// origin. Coordinates are always stored as uint64 in the file, regardless
// of the layout message encoding.
type chunkKey struct {
	nbytes     uint32
	filterMask uint32
	offsets    []uint64
}

// CollectChunks walks the v1 chunk B-tree rooted at address and returns
// every chunk it indexes. ndims is the key dimensionality, which includes
// the trailing datatype-size dimension (rank+1 entries per key).
func CollectChunks(r io.ReaderAt, address uint64, sb *Superblock, ndims int) ([]ChunkInfo, error) {
	if address == 0 || address == UndefinedAddress {
		return nil, nil
	}

	node, err := parseBTreeV1Node(r, address, sb, ndims)
	if err != nil {
		return nil, err
	}

	var chunks []ChunkInfo
	for i, child := range node.children {
		if child == 0 || child == UndefinedAddress {
			continue
		}

		if node.level > 0 {
			sub, err := CollectChunks(r, child, sb, ndims)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, sub...)
			continue
		}

		key := node.keys[i]
		offsets := make([]uint64, ndims-1)
		copy(offsets, key.offsets[:ndims-1])
		chunks = append(chunks, ChunkInfo{
			Offsets:    offsets,
			Nbytes:     key.nbytes,
			FilterMask: key.filterMask,
			Address:    child,
		})
	}

	return chunks, nil
}

// parseBTreeV1Node reads one "TREE" node of type 1.
// Node layout: signature(4) + type(1) + level(1) + entries used(2) +
// left sibling + right sibling, then interleaved key/child pairs with a
// trailing key. Key layout: nbytes(4) + filter mask(4) + ndims x uint64.
func parseBTreeV1Node(r io.ReaderAt, address uint64, sb *Superblock, ndims int) (*btreeV1Node, error) {
	offsetSize := int(sb.OffsetSize)
	headerSize := 4 + 1 + 1 + 2 + offsetSize*2

	header := utils.GetBuffer(headerSize)
	defer utils.ReleaseBuffer(header)

	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(header, int64(address)); err != nil {
		return nil, fmt.Errorf("failed to read B-tree node header: %w", err)
	}

	if string(header[0:4]) != "TREE" {
		return nil, fmt.Errorf("invalid B-tree signature: %q", string(header[0:4]))
	}
	if nodeType := header[4]; nodeType != 1 {
		return nil, fmt.Errorf("expected chunk B-tree (type 1), got type %d", nodeType)
	}

	node := &btreeV1Node{level: header[5]}
	entriesUsed := sb.Endianness.Uint16(header[6:8])
	if entriesUsed == 0 {
		return node, nil
	}

	keySize := 4 + 4 + ndims*8
	entrySize := keySize + offsetSize
	dataSize := int(entriesUsed)*entrySize + keySize // trailing key

	data := make([]byte, dataSize)
	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(data, int64(address)+int64(headerSize)); err != nil {
		return nil, fmt.Errorf("failed to read B-tree node data: %w", err)
	}

	node.keys = make([]chunkKey, 0, entriesUsed+1)
	node.children = make([]uint64, 0, entriesUsed)

	pos := 0
	for i := 0; i <= int(entriesUsed); i++ {
		if pos+keySize > len(data) {
			return nil, errors.New("b-tree data truncated reading key")
		}

		key := chunkKey{
			nbytes:     binary.LittleEndian.Uint32(data[pos : pos+4]),
			filterMask: binary.LittleEndian.Uint32(data[pos+4 : pos+8]),
			offsets:    make([]uint64, ndims),
		}
		pos += 8
		for j := 0; j < ndims; j++ {
			key.offsets[j] = binary.LittleEndian.Uint64(data[pos : pos+8])
			pos += 8
		}
		node.keys = append(node.keys, key)

		if i < int(entriesUsed) {
			if pos+offsetSize > len(data) {
				return nil, errors.New("b-tree data truncated reading child")
			}
			node.children = append(node.children, utils.ReadVarUint(data[pos:], offsetSize, sb.Endianness))
			pos += offsetSize
		}
	}

	return node, nil
}
