package multifile

import "github.com/cydb/storage/pkg/page"

// physicalFile is one member of a Group: its own page.Manager, I/O
// queue, and lifetime stats.
type physicalFile struct {
	id    uint8
	path  string
	pm    *page.Manager
	stats FileStats
	queue *ioQueue
}

func (f *physicalFile) allocatedPages() uint32 { return f.pm.PageCount() }
