package core

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	mock "github.com/sciforge/hdf5/internal/testing"
)

// buildGlobalHeap assembles a GCOL collection containing the given objects
// (IDs assigned from 1), using 8-byte offsets.
func buildGlobalHeap(objects ...[]byte) []byte {
	var body []byte
	for i, obj := range objects {
		hdr := make([]byte, 16)
		binary.LittleEndian.PutUint16(hdr[0:2], uint16(i+1)) // object ID
		binary.LittleEndian.PutUint16(hdr[2:4], 1)           // nrefs
		binary.LittleEndian.PutUint64(hdr[8:16], uint64(len(obj)))
		body = append(body, hdr...)
		body = append(body, obj...)
		for len(body)%8 != 0 {
			body = append(body, 0)
		}
	}

	header := make([]byte, 16)
	copy(header[0:4], "GCOL")
	header[4] = 1
	binary.LittleEndian.PutUint64(header[8:16], uint64(16+len(body)))
	return append(header, body...)
}

func TestReadGlobalHeapCollection(t *testing.T) {
	blob := buildGlobalHeap([]byte("hello"), []byte{1, 2, 3, 4, 5, 6, 7, 8})
	r := mock.NewMockReaderAt(blob)

	gc, err := ReadGlobalHeapCollection(r, 0, 8)
	require.NoError(t, err)
	require.Len(t, gc.Objects, 2)

	obj, err := gc.GetObject(1)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), obj.Data)

	obj, err = gc.GetObject(2)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, obj.Data)

	_, err = gc.GetObject(3)
	require.Error(t, err)
}

func TestReadGlobalHeapCollectionBadSignature(t *testing.T) {
	blob := buildGlobalHeap([]byte("x"))
	copy(blob[0:4], "NOPE")

	_, err := ReadGlobalHeapCollection(mock.NewMockReaderAt(blob), 0, 8)
	require.Error(t, err)
}

func TestReadGlobalHeapCollectionBadVersion(t *testing.T) {
	blob := buildGlobalHeap([]byte("x"))
	blob[4] = 9

	_, err := ReadGlobalHeapCollection(mock.NewMockReaderAt(blob), 0, 8)
	require.Error(t, err)
}
