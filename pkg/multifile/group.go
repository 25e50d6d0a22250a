package multifile

import (
	"sync"
	"sync/atomic"

	"github.com/juju/errors"

	"github.com/cydb/storage/pkg/bufferpool"
	"github.com/cydb/storage/pkg/page"
)

var _ bufferpool.Source = (*Group)(nil)

// DefaultMaxInFlight bounds concurrent in-flight I/O per physical
// file when a caller does not specify one.
const DefaultMaxInFlight = 4

// ErrNoFiles is returned by any operation that needs at least one
// member file when the group is empty.
var ErrNoFiles = errors.New("multifile: group has no member files")

// ErrFileNotEmpty is returned by RemoveFile when the file still has
// allocated pages, per spec §4.8 ("a file can be removed only when
// its allocated_pages == 0").
var ErrFileNotEmpty = errors.New("multifile: file still has allocated pages")

// ErrUnknownFile is returned when a global page id or file id names a
// file not in the group.
var ErrUnknownFile = errors.New("multifile: unknown file id")

// ErrGroupFull is returned when a group already has MaxFiles members.
var ErrGroupFull = errors.New("multifile: group already has the maximum number of files")

// Group distributes one logical file group across several physical
// files, per spec §4.8. It implements pkg/bufferpool.Source, so it can
// back a buffer pool directly in place of a single pkg/page.Manager.
type Group struct {
	mu       sync.RWMutex
	name     string
	policy   Policy
	maxInFlight int
	files    map[uint8]*physicalFile
	nextID   uint8
	rrCursor uint32
}

// NewGroup creates an empty file group identified by name (used as
// the Source.Path() key for the shared buffer pool) under the given
// allocation policy.
func NewGroup(name string, policy Policy) *Group {
	return &Group{
		name:        name,
		policy:      policy,
		maxInFlight: DefaultMaxInFlight,
		files:       make(map[uint8]*physicalFile),
	}
}

// Path identifies the group as a whole, satisfying bufferpool.Source.
func (g *Group) Path() string { return g.name }

// AddFile opens (or creates) a physical file and admits it to the
// group under a freshly assigned file id. Files may be added online,
// per spec §4.8.
func (g *Group) AddFile(path string, createIfMissing bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.files) >= MaxFiles {
		return ErrGroupFull
	}
	pm, err := page.Open(path, createIfMissing)
	if err != nil {
		return errors.Annotate(err, "multifile: add file")
	}
	id := g.nextID
	g.nextID++
	g.files[id] = &physicalFile{
		id:    id,
		path:  path,
		pm:    pm,
		queue: newIOQueue(g.maxInFlight),
	}
	return nil
}

// RemoveFile detaches a file from the group, refusing while it still
// has allocated pages.
func (g *Group) RemoveFile(fileID uint8) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	f, ok := g.files[fileID]
	if !ok {
		return ErrUnknownFile
	}
	if f.allocatedPages() > 0 {
		return ErrFileNotEmpty
	}
	f.queue.close()
	if err := f.pm.Close(); err != nil {
		return err
	}
	delete(g.files, fileID)
	return nil
}

func (g *Group) fileByID(id uint8) (*physicalFile, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	f, ok := g.files[id]
	if !ok {
		return nil, ErrUnknownFile
	}
	return f, nil
}

// writableFilesLocked returns the group's member files in map
// iteration order (not sorted), under the caller's existing read lock.
func (g *Group) writableFilesLocked() []*physicalFile {
	out := make([]*physicalFile, 0, len(g.files))
	for _, f := range g.files {
		out = append(out, f)
	}
	return out
}

func (g *Group) pickFileForAllocation() (*physicalFile, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	files := g.writableFilesLocked()
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	switch g.policy {
	case ProportionalFill:
		best := files[0]
		for _, f := range files[1:] {
			if f.allocatedPages() < best.allocatedPages() {
				best = f
			}
		}
		return best, nil
	default: // RoundRobin, Striped
		n := atomic.AddUint32(&g.rrCursor, 1) - 1
		// Stable ordering by file id keeps round-robin deterministic
		// across calls despite map iteration order.
		ordered := make([]*physicalFile, len(files))
		copy(ordered, files)
		for i := 0; i < len(ordered); i++ {
			for j := i + 1; j < len(ordered); j++ {
				if ordered[j].id < ordered[i].id {
					ordered[i], ordered[j] = ordered[j], ordered[i]
				}
			}
		}
		return ordered[int(n)%len(ordered)], nil
	}
}

// Allocate reserves a fresh page on whichever file the group's policy
// selects, and re-tags it with the group's global address.
func (g *Group) Allocate(typ page.Type) (*page.Page, error) {
	f, err := g.pickFileForAllocation()
	if err != nil {
		return nil, err
	}
	p, err := f.pm.Allocate(typ)
	if err != nil {
		return nil, err
	}
	global := encodeGlobalID(f.id, p.ID())
	p.SetID(global)
	f.stats.recordWrite(page.Size)
	return p, nil
}

// Read loads the page at a global id with Normal priority.
func (g *Group) Read(globalID uint32) (*page.Page, error) {
	return g.ReadPriority(globalID, Normal)
}

// ReadPriority loads the page at a global id, submitted to its file's
// I/O queue at the given priority.
func (g *Group) ReadPriority(globalID uint32, priority Priority) (*page.Page, error) {
	fileID, localID := decodeGlobalID(globalID)
	f, err := g.fileByID(fileID)
	if err != nil {
		return nil, err
	}
	var result *page.Page
	done := f.queue.submit(priority, func() error {
		p, err := f.pm.Read(localID)
		if err != nil {
			return err
		}
		p.SetID(globalID)
		result = p
		return nil
	})
	if err := <-done; err != nil {
		return nil, err
	}
	f.stats.recordRead(page.Size)
	return result, nil
}

// Write persists p, submitted to its owning file's I/O queue at
// Normal priority. p's stored id is temporarily rewritten to the
// file's local addressing for the physical write, then restored.
func (g *Group) Write(p *page.Page) error {
	return g.WritePriority(p, Normal)
}

// WritePriority is Write with an explicit priority.
func (g *Group) WritePriority(p *page.Page, priority Priority) error {
	fileID, localID := decodeGlobalID(p.ID())
	f, err := g.fileByID(fileID)
	if err != nil {
		return err
	}
	global := p.ID()
	done := f.queue.submit(priority, func() error {
		p.SetID(localID)
		err := f.pm.Write(p)
		p.SetID(global)
		return err
	})
	if err := <-done; err != nil {
		return err
	}
	f.stats.recordWrite(page.Size)
	return nil
}

// ReadFanOut issues parallel reads for every global id across
// whichever files own them and gathers the results in input order,
// per spec §4.8's cross-file parallel read API. Intended for Striped
// groups doing sequential scans, but works for any policy.
func (g *Group) ReadFanOut(globalIDs []uint32) ([]*page.Page, error) {
	type result struct {
		page *page.Page
		err  error
	}
	results := make([]result, len(globalIDs))
	var wg sync.WaitGroup
	wg.Add(len(globalIDs))
	for i, id := range globalIDs {
		go func(i int, id uint32) {
			defer wg.Done()
			p, err := g.Read(id)
			results[i] = result{page: p, err: err}
		}(i, id)
	}
	wg.Wait()

	pages := make([]*page.Page, len(globalIDs))
	for i, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		pages[i] = r.page
	}
	return pages, nil
}

// Flush syncs every member file to durable media.
func (g *Group) Flush() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, f := range g.files {
		if err := f.pm.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every member file and its I/O queue.
func (g *Group) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var firstErr error
	for _, f := range g.files {
		f.queue.close()
		if err := f.pm.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PageCount sums allocated local pages across every member file. It
// is a capacity/reporting figure, not a contiguous address range —
// global ids are sparse across files, unlike a single PageManager's.
func (g *Group) PageCount() uint32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var total uint32
	for _, f := range g.files {
		total += f.allocatedPages()
	}
	return total
}

// FileCount returns the number of member files.
func (g *Group) FileCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.files)
}

// Stats returns a per-file snapshot of lifetime I/O counters.
func (g *Group) Stats() map[uint8]Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[uint8]Snapshot, len(g.files))
	for id, f := range g.files {
		out[id] = f.stats.snapshot()
	}
	return out
}
