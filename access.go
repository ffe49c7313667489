package hdf5

import (
	"fmt"
	"strings"
)

// DefaultChunkCacheSlots is the chunk capacity of a default chunk cache.
const DefaultChunkCacheSlots = 521

// DatasetAccess carries per-read tuning for dataset reads.
//
// ChunkCache, when set, keeps decoded chunks of a chunked dataset across
// runs of a selection read. ExternalFilePrefix, when set, is prepended to
// relative source file names during virtual dataset resolution, and is
// tried before the virtual file's own folder.
type DatasetAccess struct {
	ChunkCache         *ChunkCache
	ExternalFilePrefix string
}

// withFreshChunkCache returns a copy of the access with a default chunk
// cache attached when none is present. A nil access yields a new one.
func (a *DatasetAccess) withFreshChunkCache() *DatasetAccess {
	var out DatasetAccess
	if a != nil {
		out = *a
	}
	if out.ChunkCache == nil {
		out.ChunkCache = NewChunkCache(DefaultChunkCacheSlots)
	}
	return &out
}

// ChunkCache is a bounded cache of decoded dataset chunks, keyed by the
// chunk origin coordinates. When full, the oldest inserted chunk is
// evicted.
type ChunkCache struct {
	maxChunks int
	chunks    map[string][]byte
	order     []string
}

// NewChunkCache creates a chunk cache holding at most maxChunks decoded
// chunks. A non-positive maxChunks falls back to the default capacity.
func NewChunkCache(maxChunks int) *ChunkCache {
	if maxChunks <= 0 {
		maxChunks = DefaultChunkCacheSlots
	}
	return &ChunkCache{
		maxChunks: maxChunks,
		chunks:    make(map[string][]byte),
	}
}

// get returns the cached chunk bytes for the given origin, or nil.
func (c *ChunkCache) get(origin []uint64) []byte {
	return c.chunks[chunkCacheKey(origin)]
}

// put stores decoded chunk bytes, evicting the oldest entry when full.
func (c *ChunkCache) put(origin []uint64, data []byte) {
	key := chunkCacheKey(origin)
	if _, ok := c.chunks[key]; ok {
		c.chunks[key] = data
		return
	}

	if len(c.order) >= c.maxChunks {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.chunks, oldest)
	}

	c.chunks[key] = data
	c.order = append(c.order, key)
}

// Len returns the number of cached chunks.
func (c *ChunkCache) Len() int {
	return len(c.chunks)
}

// chunkCacheKey renders chunk origin coordinates as a map key.
func chunkCacheKey(origin []uint64) string {
	parts := make([]string, len(origin))
	for i, c := range origin {
		parts[i] = fmt.Sprintf("%d", c)
	}
	return strings.Join(parts, ",")
}
