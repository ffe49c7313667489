package hdf5

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkCachePutGet(t *testing.T) {
	cache := NewChunkCache(4)

	require.Nil(t, cache.get([]uint64{0, 0}))

	cache.put([]uint64{0, 0}, []byte{1})
	cache.put([]uint64{0, 8}, []byte{2})
	require.Equal(t, []byte{1}, cache.get([]uint64{0, 0}))
	require.Equal(t, []byte{2}, cache.get([]uint64{0, 8}))
	require.Equal(t, 2, cache.Len())

	// Replacing an origin keeps a single entry.
	cache.put([]uint64{0, 0}, []byte{9})
	require.Equal(t, []byte{9}, cache.get([]uint64{0, 0}))
	require.Equal(t, 2, cache.Len())
}

func TestChunkCacheEvictsOldest(t *testing.T) {
	cache := NewChunkCache(2)

	cache.put([]uint64{0}, []byte{0})
	cache.put([]uint64{8}, []byte{1})
	cache.put([]uint64{16}, []byte{2})

	require.Nil(t, cache.get([]uint64{0}), "oldest chunk must be evicted")
	require.Equal(t, []byte{1}, cache.get([]uint64{8}))
	require.Equal(t, []byte{2}, cache.get([]uint64{16}))
	require.Equal(t, 2, cache.Len())
}

func TestChunkCacheDefaultCapacity(t *testing.T) {
	cache := NewChunkCache(0)
	require.Equal(t, DefaultChunkCacheSlots, cache.maxChunks)
}

func TestWithFreshChunkCache(t *testing.T) {
	// Nil access yields a fresh access with a cache.
	var a *DatasetAccess
	fresh := a.withFreshChunkCache()
	require.NotNil(t, fresh.ChunkCache)

	// An existing cache is kept; the struct is copied.
	cache := NewChunkCache(8)
	orig := &DatasetAccess{ChunkCache: cache, ExternalFilePrefix: "/p"}
	out := orig.withFreshChunkCache()
	require.Same(t, cache, out.ChunkCache)
	require.Equal(t, "/p", out.ExternalFilePrefix)
	require.NotSame(t, orig, out)
}
