package retriever

import (
	"crypto/sha256"
	"encoding/binary"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/coderag/pkg/types"
)

// queryCache caches responses per snapshot. Entries are tagged with the
// snapshot they were computed from and ignored once it is replaced.
type queryCache struct {
	cache *lru.Cache[[32]byte, cacheEntry]
}

type cacheEntry struct {
	snap *Snapshot
	resp Response
}

func newQueryCache(size int) *queryCache {
	if size <= 0 {
		return &queryCache{}
	}
	cache, err := lru.New[[32]byte, cacheEntry](size)
	if err != nil {
		return &queryCache{}
	}
	return &queryCache{cache: cache}
}

func cacheKey(query string, k int) [32]byte {
	h := sha256.New()
	h.Write([]byte(query))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(k))
	h.Write(buf[:])
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

func (c *queryCache) get(snap *Snapshot, query string, k int) (Response, bool) {
	if c.cache == nil {
		return Response{}, false
	}
	entry, ok := c.cache.Get(cacheKey(query, k))
	if !ok || entry.snap != snap {
		return Response{}, false
	}
	resp := entry.resp
	resp.Results = append([]types.SearchResult(nil), resp.Results...)
	return resp, true
}

func (c *queryCache) put(snap *Snapshot, query string, k int, resp Response) {
	if c.cache == nil {
		return
	}
	resp.Results = append([]types.SearchResult(nil), resp.Results...)
	c.cache.Add(cacheKey(query, k), cacheEntry{snap: snap, resp: resp})
}

func (c *queryCache) purge() {
	if c.cache != nil {
		c.cache.Purge()
	}
}
