// Package ahi implements the adaptive hash index (spec §4.6): an
// in-memory hash lookup over index-key -> (page id, slot) that builds
// itself automatically for pages accessed frequently enough to be
// worth skipping the B-tree walk for.
package ahi

import (
	"sync"
	"time"

	"github.com/cydb/storage/pkg/util"
)

// HotThreshold is the access count at which a page's keys become
// eligible for automatic indexing, per spec §4.6.
const HotThreshold = 100

// Location is where a key's row lives.
type Location struct {
	PageID uint32
	Slot   uint16
}

type entry struct {
	loc        Location
	lastAccess time.Time
}

// partition is one shard of the index, grounded on
// bufferpool's shard-by-hash structure generalized to key hashing
// instead of page-id hashing, via the same xxhash partitioner
// (pkg/util.HashCode) the buffer pool would use for a segmented pool.
type partition struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]*entry
	hits     uint64
	misses   uint64
}

// Index is an N-partition adaptive hash index over opaque key bytes.
// Keys are not scoped by table or index: the engine attaches one Index
// to every open table, so equal key bytes from two tables share one
// entry.
type Index struct {
	partitions []*partition
	accessCnt  map[uint32]int // page_id -> access count, gates auto-build
	accessMu   sync.Mutex
}

// New creates an Index with n hash partitions, each capped at
// capacity entries.
func New(n, capacity int) *Index {
	if n < 1 {
		n = 1
	}
	idx := &Index{
		partitions: make([]*partition, n),
		accessCnt:  make(map[uint32]int),
	}
	for i := range idx.partitions {
		idx.partitions[i] = &partition{capacity: capacity, entries: make(map[string]*entry)}
	}
	return idx
}

func (idx *Index) partitionFor(key []byte) *partition {
	h := util.HashCode(key)
	return idx.partitions[h%uint64(len(idx.partitions))]
}

// RecordAccess counts one lookup against pageID, returning true once
// the page crosses HotThreshold accesses (the caller should then
// start feeding Insert calls for that page's keys).
func (idx *Index) RecordAccess(pageID uint32) bool {
	idx.accessMu.Lock()
	defer idx.accessMu.Unlock()
	idx.accessCnt[pageID]++
	return idx.accessCnt[pageID] == HotThreshold
}

// AccessCount returns the current tracked access count for pageID.
func (idx *Index) AccessCount(pageID uint32) int {
	idx.accessMu.Lock()
	defer idx.accessMu.Unlock()
	return idx.accessCnt[pageID]
}

// Insert adds or overwrites a key -> location mapping, evicting the
// least-recently-accessed ~25% of the partition first if it is full,
// per spec §4.6's capacity policy.
func (idx *Index) Insert(key []byte, loc Location) {
	p := idx.partitionFor(key)
	p.mu.Lock()
	defer p.mu.Unlock()
	k := string(key)
	if _, exists := p.entries[k]; !exists && len(p.entries) >= p.capacity && p.capacity > 0 {
		p.evictLocked()
	}
	p.entries[k] = &entry{loc: loc, lastAccess: time.Now()}
}

func (p *partition) evictLocked() {
	n := len(p.entries) / 4
	if n < 1 {
		n = 1
	}
	type kv struct {
		key string
		at  time.Time
	}
	all := make([]kv, 0, len(p.entries))
	for k, e := range p.entries {
		all = append(all, kv{k, e.lastAccess})
	}
	// partial selection: repeatedly pull the oldest until n removed.
	for i := 0; i < n && len(all) > 0; i++ {
		oldest := 0
		for j := 1; j < len(all); j++ {
			if all[j].at.Before(all[oldest].at) {
				oldest = j
			}
		}
		delete(p.entries, all[oldest].key)
		all = append(all[:oldest], all[oldest+1:]...)
	}
}

// Lookup returns the location for key and whether it was found,
// recording the hit/miss and refreshing last-access time on a hit.
func (idx *Index) Lookup(key []byte) (Location, bool) {
	p := idx.partitionFor(key)
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[string(key)]
	if !ok {
		p.misses++
		return Location{}, false
	}
	p.hits++
	e.lastAccess = time.Now()
	return e.loc, true
}

// Invalidate removes a single key from the index, e.g. after a
// delete.
func (idx *Index) Invalidate(key []byte) {
	p := idx.partitionFor(key)
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, string(key))
}

// InvalidateTable drops every entry referencing pageID, e.g. after
// a page rebuild/compaction that reassigns every slot on it. This
// sweeps every partition since a page's keys may be scattered across
// all of them by hash.
func (idx *Index) InvalidateTable(pageID uint32) {
	for _, p := range idx.partitions {
		p.mu.Lock()
		for k, e := range p.entries {
			if e.loc.PageID == pageID {
				delete(p.entries, k)
			}
		}
		p.mu.Unlock()
	}
	idx.accessMu.Lock()
	delete(idx.accessCnt, pageID)
	idx.accessMu.Unlock()
}

// PartitionStats is a per-partition hit/miss/size snapshot.
type PartitionStats struct {
	Hits, Misses uint64
	Size         int
}

// Stats returns one snapshot per partition, in partition order.
func (idx *Index) Stats() []PartitionStats {
	out := make([]PartitionStats, len(idx.partitions))
	for i, p := range idx.partitions {
		p.mu.RLock()
		out[i] = PartitionStats{Hits: p.hits, Misses: p.misses, Size: len(p.entries)}
		p.mu.RUnlock()
	}
	return out
}
