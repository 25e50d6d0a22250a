package multifile

import "go.uber.org/atomic"

// FileStats holds a physical file's lifetime I/O counters, updated
// without locking, per spec §4.8.
type FileStats struct {
	reads      atomic.Uint64
	writes     atomic.Uint64
	bytesRead  atomic.Uint64
	bytesWrite atomic.Uint64
}

func (s *FileStats) recordRead(n int) {
	s.reads.Inc()
	s.bytesRead.Add(uint64(n))
}

func (s *FileStats) recordWrite(n int) {
	s.writes.Inc()
	s.bytesWrite.Add(uint64(n))
}

// Snapshot is a point-in-time, non-atomic copy of FileStats for
// reporting.
type Snapshot struct {
	Reads      uint64
	Writes     uint64
	BytesRead  uint64
	BytesWrite uint64
}

func (s *FileStats) snapshot() Snapshot {
	return Snapshot{
		Reads:      s.reads.Load(),
		Writes:     s.writes.Load(),
		BytesRead:  s.bytesRead.Load(),
		BytesWrite: s.bytesWrite.Load(),
	}
}
