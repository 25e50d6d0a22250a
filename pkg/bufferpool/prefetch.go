package bufferpool

import (
	"sync"
	"sync/atomic"

	"github.com/cydb/storage/internal/cydblog"
)

// PrefetchStats counts, for one Prefetch call, the reads it issued and
// the pages it skipped because they were already resident. It does not
// track whether prefetched pages were later used or evicted unused.
type PrefetchStats struct {
	Issued  uint64
	Skipped uint64 // already resident, no read issued
}

// Prefetch issues background reads for count pages starting at start
// that are not already resident, inserting each at the boundary with
// pin count 0 once loaded. It returns once all issued reads land (or
// fail); a failed individual read is logged and otherwise ignored —
// prefetch is an optimization, not a correctness requirement.
func (p *Pool) Prefetch(src Source, start uint32, count int) PrefetchStats {
	var stats PrefetchStats
	var wg sync.WaitGroup
	log := cydblog.For("bufferpool")

	for i := 0; i < count; i++ {
		id := start + uint32(i)
		sh := p.shardFor(src.Path(), id)
		if sh.Has(src.Path(), id) {
			atomic.AddUint64(&stats.Skipped, 1)
			continue
		}
		atomic.AddUint64(&stats.Issued, 1)
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			pg, err := src.Read(id)
			if err != nil {
				log.Warnf("prefetch: page %d: %v", id, err)
				return
			}
			sh.insertResident(src, id, pg)
		}(id)
	}
	wg.Wait()
	return stats
}
