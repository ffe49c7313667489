package structures

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	mock "github.com/sciforge/hdf5/internal/testing"
)

// buildLocalHeap lays out a heap header at 0 and its data segment right
// after it, returning the file image.
func buildLocalHeap(data []byte) []byte {
	headerSize := 8 + 8 + 8 + 8
	header := make([]byte, headerSize)
	copy(header[0:4], "HEAP")
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(data)))
	binary.LittleEndian.PutUint64(header[24:32], uint64(headerSize)) // data address

	return append(header, data...)
}

func TestLoadLocalHeapAndGetString(t *testing.T) {
	segment := []byte("first\x00second\x00")
	image := buildLocalHeap(segment)

	heap, err := LoadLocalHeap(mock.NewMockReaderAt(image), 0, testSuperblock())
	require.NoError(t, err)

	s, err := heap.GetString(0)
	require.NoError(t, err)
	require.Equal(t, "first", s)

	s, err = heap.GetString(6)
	require.NoError(t, err)
	require.Equal(t, "second", s)

	_, err = heap.GetString(100)
	require.Error(t, err)
}

func TestLoadLocalHeapBadSignature(t *testing.T) {
	image := buildLocalHeap([]byte("x\x00"))
	copy(image[0:4], "FAIL")

	_, err := LoadLocalHeap(mock.NewMockReaderAt(image), 0, testSuperblock())
	require.Error(t, err)
}

func TestGetStringUnterminated(t *testing.T) {
	image := buildLocalHeap([]byte("abc"))

	heap, err := LoadLocalHeap(mock.NewMockReaderAt(image), 0, testSuperblock())
	require.NoError(t, err)

	_, err = heap.GetString(0)
	require.Error(t, err)
}
