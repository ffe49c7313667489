package structures

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	mock "github.com/sciforge/hdf5/internal/testing"
)

// buildSNOD encodes a symbol table node with the given (nameOffset,
// objectAddress) pairs.
func buildSNOD(entries [][2]uint64) []byte {
	node := make([]byte, 8)
	copy(node[0:4], "SNOD")
	node[4] = 1
	binary.LittleEndian.PutUint16(node[6:8], uint16(len(entries)))

	for _, e := range entries {
		entry := make([]byte, 8+8+4+4+16)
		binary.LittleEndian.PutUint64(entry[0:8], e[0])
		binary.LittleEndian.PutUint64(entry[8:16], e[1])
		node = append(node, entry...)
	}
	return node
}

func TestParseSymbolTableNode(t *testing.T) {
	image := buildSNOD([][2]uint64{{0, 0x100}, {6, 0x200}})

	node, err := ParseSymbolTableNode(mock.NewMockReaderAt(image), 0, testSuperblock())
	require.NoError(t, err)
	require.Len(t, node.Entries, 2)
	require.Equal(t, uint64(0), node.Entries[0].LinkNameOffset)
	require.Equal(t, uint64(0x100), node.Entries[0].ObjectAddress)
	require.Equal(t, uint64(6), node.Entries[1].LinkNameOffset)
	require.Equal(t, uint64(0x200), node.Entries[1].ObjectAddress)
}

func TestParseSymbolTableNodeBadSignature(t *testing.T) {
	image := buildSNOD(nil)
	copy(image[0:4], "XXXX")

	_, err := ParseSymbolTableNode(mock.NewMockReaderAt(image), 0, testSuperblock())
	require.Error(t, err)
}

func TestReadGroupEntries(t *testing.T) {
	// Layout: TREE node at 0, one SNOD child at 0x100.
	snodAddr := uint64(0x100)

	tree := make([]byte, 4+1+1+2+16)
	copy(tree[0:4], "TREE")
	tree[4] = 0 // group node
	tree[5] = 0 // leaf
	binary.LittleEndian.PutUint16(tree[6:8], 1)

	// key0, child0, key1.
	kv := make([]byte, 24)
	binary.LittleEndian.PutUint64(kv[8:16], snodAddr)
	tree = append(tree, kv...)

	image := make([]byte, 0x100)
	copy(image, tree)
	image = append(image, buildSNOD([][2]uint64{{3, 0x400}})...)

	entries, err := ReadGroupEntries(mock.NewMockReaderAt(image), 0, testSuperblock())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uint64(3), entries[0].LinkNameOffset)
	require.Equal(t, uint64(0x400), entries[0].ObjectAddress)
}

func TestReadGroupEntriesWrongNodeType(t *testing.T) {
	tree := make([]byte, 64)
	copy(tree[0:4], "TREE")
	tree[4] = 1 // chunk node, not group

	_, err := ReadGroupEntries(mock.NewMockReaderAt(tree), 0, testSuperblock())
	require.Error(t, err)
}
