package hdf5

import (
	"errors"
	"fmt"

	"github.com/sciforge/hdf5/internal/core"
	"github.com/sciforge/hdf5/internal/structures"
	"github.com/sciforge/hdf5/internal/utils"
)

// SignatureSNOD is the symbol table node signature.
const SignatureSNOD = "SNOD"

// Object represents any HDF5 object (Group or Dataset) that can be accessed
// in the file structure.
type Object interface {
	Name() string
}

// Dataset represents an HDF5 dataset containing multidimensional array data.
type Dataset struct {
	file    *File
	name    string
	address uint64 // Address of object header.
}

// Name returns the dataset's name.
func (d *Dataset) Name() string {
	return d.name
}

// Address returns the object header address (for internal/debugging use).
func (d *Dataset) Address() uint64 {
	return d.address
}

// Group represents an HDF5 group that can contain other groups and datasets.
type Group struct {
	file     *File
	name     string
	address  uint64 // Address of object header (0 for traditional/SNOD format).
	children []Object
}

// Name returns the group's name.
func (g *Group) Name() string {
	return g.name
}

// Children returns all child objects (groups and datasets) within this group.
func (g *Group) Children() []Object {
	return g.children
}

func loadGroup(file *File, address uint64) (*Group, error) {
	if address == 0 {
		return nil, errors.New("invalid group address: 0")
	}

	// SNOD always means traditional format.
	if readSignature(file.osFile, address) == SignatureSNOD {
		return loadTraditionalGroup(file, address)
	}

	// OHDR or v1 headers (no signature) are handled by ReadObjectHeader.
	return loadModernGroup(file, address)
}

// loadModernGroup loads a group through its object header: link messages
// when present, symbol table message otherwise.
func loadModernGroup(file *File, address uint64) (*Group, error) {
	header, err := core.ReadObjectHeader(file.osFile, address, file.sb)
	if err != nil {
		return nil, utils.WrapError("object header read failed", err)
	}

	group := &Group{
		file:    file,
		address: address,
	}

	if header.Type != core.ObjectTypeGroup {
		return nil, fmt.Errorf("object at 0x%X is not a group", address)
	}

	hasLinkMessages := false
	for _, msg := range header.Messages {
		if msg.Type != core.MsgLinkMessage {
			continue
		}
		hasLinkMessages = true

		linkMsg, err := structures.ParseLinkMessage(msg.Data, file.sb)
		if err != nil {
			return nil, utils.WrapError("link message parse failed", err)
		}

		// Soft links are paths, not addresses; skipped on read.
		if !linkMsg.IsHardLink() {
			continue
		}

		child, err := loadObject(file, linkMsg.ObjectAddress, linkMsg.Name)
		if err != nil {
			// Skip links to objects we don't support.
			continue
		}
		group.children = append(group.children, child)
	}

	if hasLinkMessages {
		return group, nil
	}

	// Fallback to symbol table format (older files).
	symMsg := header.FindMessage(core.MsgSymbolTable)
	if symMsg == nil {
		return group, nil // Empty group.
	}
	if len(symMsg.Data) < int(file.sb.OffsetSize)*2 {
		return nil, errors.New("symbol table message too short")
	}

	table := &structures.SymbolTable{
		BTreeAddress: utils.ReadVarUint(symMsg.Data, int(file.sb.OffsetSize), file.sb.Endianness),
		HeapAddress:  utils.ReadVarUint(symMsg.Data[file.sb.OffsetSize:], int(file.sb.OffsetSize), file.sb.Endianness),
	}
	if err := group.loadSymbolTableChildren(table); err != nil {
		return nil, utils.WrapError("load children failed", err)
	}

	return group, nil
}

// loadSymbolTableChildren enumerates children through the group B-tree and
// local heap referenced by a symbol table message.
func (g *Group) loadSymbolTableChildren(table *structures.SymbolTable) error {
	heap, err := structures.LoadLocalHeap(g.file.osFile, table.HeapAddress, g.file.sb)
	if err != nil {
		return utils.WrapError("local heap load failed", err)
	}

	var entries []structures.SymbolTableEntry
	switch readSignature(g.file.osFile, table.BTreeAddress) {
	case "TREE":
		entries, err = structures.ReadGroupEntries(g.file.osFile, table.BTreeAddress, g.file.sb)
	case SignatureSNOD:
		var node *structures.SymbolTableNode
		node, err = structures.ParseSymbolTableNode(g.file.osFile, table.BTreeAddress, g.file.sb)
		if node != nil {
			entries = node.Entries
		}
	default:
		return fmt.Errorf("unknown B-tree signature at 0x%X", table.BTreeAddress)
	}
	if err != nil {
		return utils.WrapError("B-tree read failed", err)
	}

	for _, entry := range entries {
		linkName, err := heap.GetString(entry.LinkNameOffset)
		if err != nil {
			return utils.WrapError("link name read failed", err)
		}

		child, err := loadObject(g.file, entry.ObjectAddress, linkName)
		if err != nil {
			return utils.WrapError("child load failed", err)
		}
		g.children = append(g.children, child)
	}

	return nil
}

// loadTraditionalGroup loads a group stored directly as a symbol table node
// (v0 files). The link names live in the root group's local heap.
func loadTraditionalGroup(file *File, address uint64) (*Group, error) {
	node, err := structures.ParseSymbolTableNode(file.osFile, address, file.sb)
	if err != nil {
		return nil, utils.WrapError("symbol table node parse failed", err)
	}

	heap, err := rootLocalHeap(file)
	if err != nil {
		return nil, err
	}

	group := &Group{
		file: file,
		name: "/",
	}

	for _, entry := range node.Entries {
		linkName, err := heap.GetString(entry.LinkNameOffset)
		if err != nil {
			return nil, utils.WrapError("link name read failed", err)
		}

		child, err := loadObject(file, entry.ObjectAddress, linkName)
		if err != nil {
			return nil, utils.WrapError("child load failed", err)
		}
		group.children = append(group.children, child)
	}

	return group, nil
}

// rootLocalHeap finds the local heap advertised by the root group's symbol
// table message.
func rootLocalHeap(file *File) (*structures.LocalHeap, error) {
	rootHeader, err := core.ReadObjectHeader(file.osFile, file.sb.RootGroup, file.sb)
	if err != nil {
		return nil, utils.WrapError("root header read failed", err)
	}

	symMsg := rootHeader.FindMessage(core.MsgSymbolTable)
	if symMsg == nil || len(symMsg.Data) < int(file.sb.OffsetSize)*2 {
		return nil, errors.New("could not find local heap for traditional group")
	}

	heapAddr := utils.ReadVarUint(symMsg.Data[file.sb.OffsetSize:], int(file.sb.OffsetSize), file.sb.Endianness)
	return structures.LoadLocalHeap(file.osFile, heapAddr, file.sb)
}

// loadObject loads a child object by address, classifying it as a group or
// a dataset.
func loadObject(file *File, address uint64, name string) (Object, error) {
	if readSignature(file.osFile, address) == SignatureSNOD {
		group, err := loadTraditionalGroup(file, address)
		if err != nil {
			return nil, err
		}
		if name != "" {
			group.name = name
		}
		return group, nil
	}

	header, err := core.ReadObjectHeader(file.osFile, address, file.sb)
	if err != nil {
		return nil, err
	}

	switch header.Type {
	case core.ObjectTypeDataset:
		return &Dataset{
			file:    file,
			name:    name,
			address: address,
		}, nil
	case core.ObjectTypeGroup:
		group, err := loadGroup(file, address)
		if err != nil {
			return nil, err
		}
		if name != "" {
			group.name = name
		}
		return group, nil
	default:
		return nil, fmt.Errorf("unsupported object type: %d", header.Type)
	}
}
