package bufferpool

// Stats is a point-in-time snapshot of a Pool's counters, summed
// across segments — grounded on the teacher's buffer_pool/stats.go
// hit/miss accessors and manager/dictionary_manager.go's DictStats
// snapshot-struct shape (a plain struct, not live atomics, so callers
// can't observe it mutating mid-read).
type Stats struct {
	Hits, Misses uint64
	Resident     int
	OldCount     int
	Capacity     int
}

// HitRate returns Hits/(Hits+Misses), or 0 if there have been no
// lookups yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns a summed snapshot across every segment.
func (p *Pool) Stats() Stats {
	var out Stats
	for _, s := range p.shards {
		s.mu.RLock()
		out.Hits += s.hits
		out.Misses += s.misses
		out.Resident += len(s.frames)
		out.OldCount += s.oldCount
		out.Capacity += s.capacity
		s.mu.RUnlock()
	}
	return out
}
