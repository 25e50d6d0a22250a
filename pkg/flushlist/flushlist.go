// Package flushlist tracks dirty pages in oldest-modification-LSN
// order (spec §4.4) so the background flusher writes them in the
// order needed to advance the redo checkpoint.
//
// spec §9 flags the original lsn_key = lsn*10^6 + page_id encoding as
// unsound (it overflows once lsn exceeds ~9.2e12, or once page_id
// reaches 10^6). This port resolves that Open Question by using a
// plain lexicographic (lsn, page_id) pair as the sort key instead —
// there is no overflow to reason about and the ordering is identical
// for any values the encoded scheme could represent correctly.
package flushlist

import (
	"sort"
	"sync"
	"time"

	"github.com/cydb/storage/pkg/page"
)

// Key orders entries first by LSN, then by page id to break ties.
type Key struct {
	LSN    uint64
	PageID uint32
}

func less(a, b Key) bool {
	if a.LSN != b.LSN {
		return a.LSN < b.LSN
	}
	return a.PageID < b.PageID
}

// Entry is one dirty page tracked by the flush list.
type Entry struct {
	Key        Key
	FilePath   string
	PageID     uint32
	Page       *page.Page
	OldestLSN  uint64
	NewestLSN  uint64
	ModCount   int
	AddedAt    time.Time
}

// List is the flush list. Safe for concurrent use behind a single
// RWMutex, per spec §5.
type List struct {
	mu     sync.RWMutex
	sorted []*Entry          // ascending by Key == ascending by OldestLSN
	byFile map[string]*Entry // (file_path, page_id) -> entry
}

func New() *List {
	return &List{byFile: make(map[string]*Entry)}
}

// AddDirty registers page_id of file as dirty at lsn. If the page is
// already tracked, only its newest LSN is updated — its position (and
// oldest LSN) in flush order is preserved, matching the invariant that
// a page's flush priority is set by when it was FIRST dirtied.
func (l *List) AddDirty(filePath string, pageID uint32, p *page.Page, lsn uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := filePath + "\x00" + itoa(pageID)
	if e, ok := l.byFile[id]; ok {
		if lsn > e.NewestLSN {
			e.NewestLSN = lsn
		}
		e.ModCount++
		return
	}
	e := &Entry{
		Key:       Key{LSN: lsn, PageID: pageID},
		FilePath:  filePath,
		PageID:    pageID,
		Page:      p,
		OldestLSN: lsn,
		NewestLSN: lsn,
		ModCount:  1,
		AddedAt:   time.Now(),
	}
	l.byFile[id] = e
	pos := sort.Search(len(l.sorted), func(i int) bool { return less(e.Key, l.sorted[i].Key) || l.sorted[i].Key == e.Key })
	l.sorted = append(l.sorted, nil)
	copy(l.sorted[pos+1:], l.sorted[pos:])
	l.sorted[pos] = e
}

// Remove drops (filePath, pageID) from the flush list, called by the
// flusher after a successful write.
func (l *List) Remove(filePath string, pageID uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removeLocked(filePath, pageID)
}

func (l *List) removeLocked(filePath string, pageID uint32) {
	id := filePath + "\x00" + itoa(pageID)
	e, ok := l.byFile[id]
	if !ok {
		return
	}
	delete(l.byFile, id)
	idx := sort.Search(len(l.sorted), func(i int) bool { return !less(l.sorted[i].Key, e.Key) })
	for idx < len(l.sorted) && l.sorted[idx] != e {
		idx++
	}
	if idx < len(l.sorted) {
		l.sorted = append(l.sorted[:idx], l.sorted[idx+1:]...)
	}
}

// IsDirty reports whether (filePath, pageID) is currently tracked.
func (l *List) IsDirty(filePath string, pageID uint32) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.byFile[filePath+"\x00"+itoa(pageID)]
	return ok
}

// Len returns the number of tracked dirty pages.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sorted)
}

// OldestN returns (copies of) the N entries with the smallest oldest
// LSN, fewer if the list has fewer entries.
func (l *List) OldestN(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n > len(l.sorted) {
		n = len(l.sorted)
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = *l.sorted[i]
	}
	return out
}

// OlderThan returns every entry whose oldest LSN is <= lsn, in flush order.
func (l *List) OlderThan(lsn uint64) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.sorted {
		if e.OldestLSN > lsn {
			break
		}
		out = append(out, *e)
	}
	return out
}

// WriteFunc persists one dirty page; returning an error leaves it in
// the flush list for a later retry.
type WriteFunc func(e Entry) error

// Flush writes the oldest count entries via write, removing each on
// success. It stops at the first failure and returns that error,
// leaving that entry and everything after it untouched.
func (l *List) Flush(count int, write WriteFunc) error {
	entries := l.OldestN(count)
	for _, e := range entries {
		if err := write(e); err != nil {
			return err
		}
		l.Remove(e.FilePath, e.PageID)
	}
	return nil
}

// CheckpointFloor returns the oldest LSN across every tracked dirty
// page — the point the redo log checkpoint cannot advance past — or
// 0 if nothing is dirty.
func (l *List) CheckpointFloor() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.sorted) == 0 {
		return 0
	}
	return l.sorted[0].OldestLSN
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
