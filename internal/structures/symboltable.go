package structures

import (
	"errors"
	"fmt"
	"io"

	"github.com/sciforge/hdf5/internal/core"
	"github.com/sciforge/hdf5/internal/utils"
)

// SymbolTable locates a group's B-tree and local heap, as carried by a
// symbol table message (type 0x0011).
type SymbolTable struct {
	BTreeAddress uint64
	HeapAddress  uint64
}

// SymbolTableEntry is one entry of a symbol table node.
type SymbolTableEntry struct {
	LinkNameOffset uint64 // Offset of the link name in the local heap.
	ObjectAddress  uint64 // Object header address of the child.
	CacheType      uint32
}

// SymbolTableNode is a parsed "SNOD" node.
type SymbolTableNode struct {
	Entries []SymbolTableEntry
}

// ParseSymbolTableNode parses a symbol table node ("SNOD") at address.
// Node layout: signature(4) + version(1) + reserved(1) + symbol count(2),
// then per entry: link name offset(offsetSize) + object header
// address(offsetSize) + cache type(4) + reserved(4) + scratch(16).
func ParseSymbolTableNode(r io.ReaderAt, address uint64, sb *core.Superblock) (*SymbolTableNode, error) {
	header := utils.GetBuffer(8)
	defer utils.ReleaseBuffer(header)

	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(header, int64(address)); err != nil {
		return nil, utils.WrapError("symbol table node read failed", err)
	}

	if string(header[0:4]) != "SNOD" {
		return nil, fmt.Errorf("invalid symbol table node signature: %q", string(header[0:4]))
	}
	if header[4] != 1 {
		return nil, fmt.Errorf("unsupported symbol table node version: %d", header[4])
	}

	numSymbols := sb.Endianness.Uint16(header[6:8])
	node := &SymbolTableNode{}
	if numSymbols == 0 {
		return node, nil
	}

	entrySize := int(sb.OffsetSize)*2 + 4 + 4 + 16
	data := make([]byte, int(numSymbols)*entrySize)
	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(data, int64(address)+8); err != nil {
		return nil, utils.WrapError("symbol table entries read failed", err)
	}

	node.Entries = make([]SymbolTableEntry, 0, numSymbols)
	pos := 0
	for i := 0; i < int(numSymbols); i++ {
		var e SymbolTableEntry
		e.LinkNameOffset = utils.ReadVarUint(data[pos:], int(sb.OffsetSize), sb.Endianness)
		pos += int(sb.OffsetSize)
		e.ObjectAddress = utils.ReadVarUint(data[pos:], int(sb.OffsetSize), sb.Endianness)
		pos += int(sb.OffsetSize)
		e.CacheType = sb.Endianness.Uint32(data[pos : pos+4])
		pos += 4 + 4 + 16 // cache type + reserved + scratch-pad
		node.Entries = append(node.Entries, e)
	}

	return node, nil
}

// ReadGroupEntries enumerates a group's children through its v1 B-tree
// ("TREE" type 0). Leaf children point at symbol table nodes, whose entries
// are collected in order. Only leaf-level trees are supported, matching the
// depth produced for the group sizes this library reads.
func ReadGroupEntries(r io.ReaderAt, btreeAddress uint64, sb *core.Superblock) ([]SymbolTableEntry, error) {
	offsetSize := int(sb.OffsetSize)
	headerSize := 4 + 1 + 1 + 2 + offsetSize*2

	header := utils.GetBuffer(headerSize)
	defer utils.ReleaseBuffer(header)

	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(header, int64(btreeAddress)); err != nil {
		return nil, utils.WrapError("group B-tree header read failed", err)
	}

	if string(header[0:4]) != "TREE" {
		return nil, fmt.Errorf("invalid B-tree signature: %q", string(header[0:4]))
	}
	if nodeType := header[4]; nodeType != 0 {
		return nil, fmt.Errorf("expected group B-tree (type 0), got type %d", nodeType)
	}
	if level := header[5]; level != 0 {
		return nil, errors.New("multi-level group B-trees not supported")
	}

	entriesUsed := sb.Endianness.Uint16(header[6:8])
	if entriesUsed == 0 {
		return nil, nil
	}

	// Keys (heap offsets) and children (SNOD addresses) interleave:
	// key0, child0, key1, child1, ..., keyN.
	dataSize := int(entriesUsed)*2*offsetSize + offsetSize
	data := make([]byte, dataSize)
	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(data, int64(btreeAddress)+int64(headerSize)); err != nil {
		return nil, utils.WrapError("group B-tree data read failed", err)
	}

	var entries []SymbolTableEntry
	pos := offsetSize // skip key0
	for i := uint16(0); i < entriesUsed; i++ {
		childAddr := utils.ReadVarUint(data[pos:], offsetSize, sb.Endianness)
		pos += offsetSize * 2 // child + next key

		if childAddr == 0 || childAddr == core.UndefinedAddress {
			continue
		}

		node, err := ParseSymbolTableNode(r, childAddr, sb)
		if err != nil {
			return nil, utils.WrapError("symbol table node parse failed", err)
		}
		entries = append(entries, node.Entries...)
	}

	return entries, nil
}
