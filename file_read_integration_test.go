package hdf5

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// The integration fixture is a complete little-endian HDF5 v2 file image
// holding a root group with two datasets:
//
//   - /data: float64, dims [4 6], chunked with [2 3] chunks indexed by a v1
//     B-tree; the chunk covering rows 2-3, cols 3-5 is unallocated, so those
//     elements read back the fill value (-5).
//   - /flat: uint32, dims [5], contiguous; holds a value above int32 range
//     to pin unsigned decoding.
//
// Layout: superblock at 0, root header at 0x100, dataset headers at
// 0x200/0x300, chunk B-tree at 0x400, contiguous data at 0x500, chunks at
// 0x600/0x700/0x800.
const (
	fixtureRootAddr    = 0x100
	fixtureChunkedAddr = 0x200
	fixtureFlatAddr    = 0x300
	fixtureBTreeAddr   = 0x400
	fixtureFlatData    = 0x500
	fixtureSize        = 0x900
)

func putU16(image []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(image[off:off+2], v)
}

func putU32(image []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(image[off:off+4], v)
}

func putU64(image []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(image[off:off+8], v)
}

// putObjectHeader writes a v2 object header at addr.
func putObjectHeader(image []byte, addr int, types []uint16, bodies [][]byte) {
	var chunk []byte
	for i, typ := range types {
		hdr := make([]byte, 4)
		hdr[0] = byte(typ)
		//nolint:gosec // G115: fixture message bodies are tiny
		binary.LittleEndian.PutUint16(hdr[1:3], uint16(len(bodies[i])))
		chunk = append(chunk, hdr...)
		chunk = append(chunk, bodies[i]...)
	}
	chunk = append(chunk, 0, 0, 0, 0) // checksum

	copy(image[addr:], []byte{'O', 'H', 'D', 'R', 2, 0, byte(len(chunk))})
	copy(image[addr+7:], chunk)
}

// hardLinkBody encodes a version 1 hard link message.
func hardLinkBody(name string, addr uint64) []byte {
	body := []byte{1, 0, byte(len(name))}
	body = append(body, name...)
	var a [8]byte
	binary.LittleEndian.PutUint64(a[:], addr)
	return append(body, a[:]...)
}

// simpleDataspaceBody encodes a version 2 simple dataspace.
func simpleDataspaceBody(dims ...uint64) []byte {
	body := []byte{2, byte(len(dims)), 0, 1}
	for _, d := range dims {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], d)
		body = append(body, b[:]...)
	}
	return body
}

// numericDatatypeBody encodes a datatype message for a numeric type.
func numericDatatypeBody(class uint8, size uint32, bitField uint32) []byte {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint32(body[0:4], uint32(class)|1<<4|bitField<<8)
	binary.LittleEndian.PutUint32(body[4:8], size)
	return body
}

// fillValueV3Body encodes a defined float64 fill value.
func fillValueV3Body(fill float64) []byte {
	body := []byte{3, 0x22, 8, 0, 0, 0} // defined, value present
	var v [8]byte
	binary.LittleEndian.PutUint64(v[:], math.Float64bits(fill))
	return append(body, v[:]...)
}

// buildIntegrationImage assembles the fixture described above.
func buildIntegrationImage() []byte {
	image := make([]byte, fixtureSize)

	// Superblock v2.
	copy(image[0:8], "\x89HDF\r\n\x1a\n")
	image[8] = 2
	image[9] = 0 // little-endian
	image[10] = 8
	putU64(image, 28, fixtureSize)
	putU64(image, 36, fixtureRootAddr)

	// Root group: two hard links.
	putObjectHeader(image, fixtureRootAddr,
		[]uint16{0x0006, 0x0006},
		[][]byte{
			hardLinkBody("data", fixtureChunkedAddr),
			hardLinkBody("flat", fixtureFlatAddr),
		})

	// Chunked float64 dataset, dims [4 6], chunks [2 3], fill -5.
	chunkedLayout := []byte{3, 2, 3} // version 3, chunked, 3 key dims
	var btreeAddr [8]byte
	binary.LittleEndian.PutUint64(btreeAddr[:], fixtureBTreeAddr)
	chunkedLayout = append(chunkedLayout, btreeAddr[:]...)
	for _, d := range []uint32{2, 3, 8} {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], d)
		chunkedLayout = append(chunkedLayout, b[:]...)
	}
	putObjectHeader(image, fixtureChunkedAddr,
		[]uint16{0x0001, 0x0003, 0x0005, 0x0008},
		[][]byte{
			simpleDataspaceBody(4, 6),
			numericDatatypeBody(1, 8, 0), // float64
			fillValueV3Body(-5),
			chunkedLayout,
		})

	// Contiguous uint32 dataset, dims [5].
	flatLayout := make([]byte, 18)
	flatLayout[0] = 3
	flatLayout[1] = 1 // contiguous
	binary.LittleEndian.PutUint64(flatLayout[2:10], fixtureFlatData)
	binary.LittleEndian.PutUint64(flatLayout[10:18], 20)
	putObjectHeader(image, fixtureFlatAddr,
		[]uint16{0x0001, 0x0003, 0x0008},
		[][]byte{
			simpleDataspaceBody(5),
			numericDatatypeBody(0, 4, 0), // uint32 (sign bit unset)
			flatLayout,
		})

	// Chunk B-tree: leaf with three allocated chunks; the (2,3) chunk is
	// deliberately absent.
	type chunkFixture struct {
		origin [3]uint64
		addr   uint64
		values []float64
	}
	chunks := []chunkFixture{
		{[3]uint64{0, 0, 0}, 0x600, []float64{0, 1, 2, 10, 11, 12}},
		{[3]uint64{0, 3, 0}, 0x700, []float64{3, 4, 5, 13, 14, 15}},
		{[3]uint64{2, 0, 0}, 0x800, []float64{20, 21, 22, 30, 31, 32}},
	}

	off := fixtureBTreeAddr
	copy(image[off:], "TREE")
	image[off+4] = 1 // chunk node
	image[off+5] = 0 // leaf
	putU16(image, off+6, uint16(len(chunks)))
	off += 8 + 16 // header + sibling addresses

	for _, c := range chunks {
		putU32(image, off, 48) // stored bytes
		for j, o := range c.origin {
			putU64(image, off+8+j*8, o)
		}
		putU64(image, off+32, c.addr)
		off += 40

		for i, v := range c.values {
			putU64(image, int(c.addr)+i*8, math.Float64bits(v))
		}
	}
	// Trailing key stays zeroed.

	// Contiguous data: one value above int32 range.
	for i, v := range []uint32{10, 20, 3000000000, 40, 50} {
		putU32(image, fixtureFlatData+i*4, v)
	}

	return image
}

// writeIntegrationFile materializes the fixture on disk.
func writeIntegrationFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "integration.h5")
	require.NoError(t, os.WriteFile(path, buildIntegrationImage(), 0o600))
	return path
}

func TestOpenReadChunkedDataset(t *testing.T) {
	f, err := Open(writeIntegrationFile(t))
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	require.True(t, f.LinkExists("/data"))
	require.False(t, f.LinkExists("/nope"))

	ds, err := f.DatasetByPath("/data")
	require.NoError(t, err)

	dims, err := ds.Dims()
	require.NoError(t, err)
	require.Equal(t, []uint64{4, 6}, dims)

	got, err := ds.Read()
	require.NoError(t, err)
	require.Equal(t, []float64{
		0, 1, 2, 3, 4, 5,
		10, 11, 12, 13, 14, 15,
		20, 21, 22, -5, -5, -5,
		30, 31, 32, -5, -5, -5,
	}, got)
}

func TestReadSelectionChunkedHyperslab(t *testing.T) {
	f, err := Open(writeIntegrationFile(t))
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	ds, err := f.DatasetByPath("/data")
	require.NoError(t, err)

	// Rows 1-2, cols 1-4: crosses all three allocated chunks and the
	// missing one.
	sel := &HyperslabSelection{
		Start: []uint64{1, 1},
		Count: []uint64{1, 1},
		Block: []uint64{2, 4},
	}
	access := &DatasetAccess{ChunkCache: NewChunkCache(8)}

	dst := make([]float64, 8)
	require.NoError(t, ds.ReadSelection(sel, dst, access))
	require.Equal(t, []float64{11, 12, 13, 14, 21, 22, -5, -5}, dst)

	// The three allocated chunks the selection touched are cached; the
	// missing chunk is not.
	require.Equal(t, 3, access.ChunkCache.Len())
}

func TestReadSelectionChunkedStrided(t *testing.T) {
	f, err := Open(writeIntegrationFile(t))
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	ds, err := f.DatasetByPath("/data")
	require.NoError(t, err)

	// Every other column of row 1.
	sel := &HyperslabSelection{
		Start:  []uint64{1, 0},
		Count:  []uint64{1, 3},
		Stride: []uint64{1, 2},
		Block:  []uint64{1, 1},
	}

	dst := make([]float64, 3)
	require.NoError(t, ds.ReadSelection(sel, dst, nil))
	require.Equal(t, []float64{10, 12, 14}, dst)
}

func TestOpenReadContiguousUnsigned(t *testing.T) {
	f, err := Open(writeIntegrationFile(t))
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	ds, err := f.DatasetByPath("/flat")
	require.NoError(t, err)

	got, err := ds.Read()
	require.NoError(t, err)
	require.Equal(t, []float64{10, 20, 3000000000, 40, 50}, got)

	// A partial selection through the contiguous path.
	sel := &HyperslabSelection{
		Start: []uint64{1},
		Count: []uint64{1},
		Block: []uint64{3},
	}
	dst := make([]float64, 3)
	require.NoError(t, ds.ReadSelection(sel, dst, nil))
	require.Equal(t, []float64{20, 3000000000, 40}, dst)
}

func TestOpenWalkFindsDatasets(t *testing.T) {
	f, err := Open(writeIntegrationFile(t))
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	var paths []string
	f.Walk(func(path string, obj Object) {
		paths = append(paths, path)
	})
	require.Equal(t, []string{"/", "/data", "/flat"}, paths)
}
