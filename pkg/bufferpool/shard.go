package bufferpool

import (
	"container/list"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/cydb/storage/pkg/changebuffer"
	"github.com/cydb/storage/pkg/page"
)

// frame is one cached page plus the buffer-pool bookkeeping spec §3
// requires: a back-pointer to the Source it came from, a pin count,
// whether it currently sits in the old region, and when it was
// loaded (for the old-region promotion timer).
type frame struct {
	key      string
	page     *page.Page
	src      Source
	pinCount int32
	inOld    bool
	loadTime time.Time
	element  *list.Element
}

func frameKey(path string, id uint32) string {
	return fmt.Sprintf("%s#%d", path, id)
}

// shard is one independently-locked partition of the buffer pool: a
// map keyed by (file_path, page_id), an intrusive LRU list built on
// container/list (an arena-backed mature intrusive-list primitive, per
// spec §9's design note against hand-rolled owning pointer cycles),
// and a boundary element marking the last young-region node. nil
// means no node is currently anchored (insertAtHead and promote leave
// it nil even as they add young frames); lastYoungLocked recovers it
// when a caller needs it.
type shard struct {
	mu sync.RWMutex

	capacity        int
	oldBlockPercent int
	oldBlockTime    time.Duration // < 0 means "never promote"

	frames   map[string]*frame
	order    *list.List
	boundary *list.Element
	oldCount int

	cb *changebuffer.Buffer

	hits, misses uint64
}

// attachChangeBuffer installs the shared change buffer consulted by
// GetPage's miss path.
func (s *shard) attachChangeBuffer(cb *changebuffer.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

func newShard(capacity, oldBlockPercent int, oldBlockTime time.Duration) *shard {
	return &shard{
		capacity:        capacity,
		oldBlockPercent: oldBlockPercent,
		oldBlockTime:    oldBlockTime,
		frames:          make(map[string]*frame, capacity),
		order:           list.New(),
	}
}

func (s *shard) len() int { return len(s.frames) }

// GetPage returns the cached page for (src, id), loading it from src
// on a miss. Every call — hit or miss — returns with the frame pinned
// once more; callers must pair it with UnpinPage.
func (s *shard) GetPage(src Source, id uint32) (*page.Page, error) {
	key := frameKey(src.Path(), id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if fr, ok := s.frames[key]; ok {
		s.hits++
		now := time.Now()
		if fr.inOld {
			if s.oldBlockTime >= 0 && now.Sub(fr.loadTime) >= s.oldBlockTime {
				s.promote(fr)
			}
		} else {
			s.moveToFrontYoung(fr)
		}
		fr.pinCount++
		return fr.page, nil
	}
	s.misses++

	for len(s.frames) >= s.capacity {
		if err := s.evictLocked(); err != nil {
			return nil, err
		}
	}

	p, err := src.Read(id)
	if err != nil {
		return nil, err
	}
	if s.cb != nil {
		s.mergeChangesLocked(src.Path(), id, p)
	}
	fr := &frame{key: key, page: p, src: src, pinCount: 1, inOld: true, loadTime: time.Now()}
	s.insertAtBoundary(fr)
	return p, nil
}

// mergeChangesLocked replays every change buffered for (path, id)
// onto p immediately after it is loaded and before it is handed to the
// caller, per spec §4.5. Change.Key carries the big-endian slot number
// the change targets: OpDelete tombstones that slot, everything else
// overwrites it with Change.Value. OpInsert changes never reach here —
// producers only defer mutations against a slot a page already has.
func (s *shard) mergeChangesLocked(path string, id uint32, p *page.Page) {
	spaceID := changebuffer.SpaceIDForPath(path)
	changes := s.cb.GetAndRemove(spaceID, id)
	for _, c := range changes {
		if len(c.Key) != 2 {
			continue
		}
		slot := binary.BigEndian.Uint16(c.Key)
		if c.Op == changebuffer.OpDelete {
			p.DeleteRecord(slot)
		} else {
			p.UpdateRecord(slot, c.Value)
		}
	}
	if len(changes) > 0 {
		p.MarkDirty()
	}
}

// NewPage allocates a fresh page via src, inserts it at the head of
// the young region pinned once, then rebalances the old/young split.
func (s *shard) NewPage(src Source, typ page.Type) (*page.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.frames) >= s.capacity {
		if err := s.evictLocked(); err != nil {
			return nil, err
		}
	}

	p, err := src.Allocate(typ)
	if err != nil {
		return nil, err
	}
	fr := &frame{key: frameKey(src.Path(), p.ID()), page: p, src: src, pinCount: 1, inOld: false, loadTime: time.Now()}
	s.insertAtHead(fr)
	s.rebalanceLocked()
	return p, nil
}

// UnpinPage decrements the pin count for (path, id), flooring at 0,
// and marks the page dirty if requested.
func (s *shard) UnpinPage(path string, id uint32, dirty bool) {
	key := frameKey(path, id)
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, ok := s.frames[key]
	if !ok {
		return
	}
	if fr.pinCount > 0 {
		fr.pinCount--
	}
	if dirty {
		fr.page.MarkDirty()
	}
}

// Has reports whether (path, id) is resident, without pinning it.
func (s *shard) Has(path string, id uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.frames[frameKey(path, id)]
	return ok
}

// lastYoungLocked recovers the last-young-region element by scanning
// backward from the tail for the first frame still marked young, or
// returns nil if every resident frame is old (or none are resident).
// Used to re-anchor s.boundary whenever it has gone stale rather than
// guess a position from whichever frame the caller happens to be
// touching right now.
func (s *shard) lastYoungLocked() *list.Element {
	for e := s.order.Back(); e != nil; e = e.Prev() {
		if !e.Value.(*frame).inOld {
			return e
		}
	}
	return nil
}

// insertAtBoundary places fr as the first node of the old region
// (immediately after the current last-young node, or at the very
// front if the young region is empty).
func (s *shard) insertAtBoundary(fr *frame) {
	fr.inOld = true
	if s.boundary == nil {
		s.boundary = s.lastYoungLocked()
	}
	var e *list.Element
	if s.boundary == nil {
		e = s.order.PushFront(fr)
	} else {
		e = s.order.InsertAfter(fr, s.boundary)
	}
	fr.element = e
	s.frames[fr.key] = fr
	s.oldCount++
}

// insertAtHead places fr at the very front of the list (young). It
// does not touch s.boundary: fr being new and young never changes
// which element was already the last-young node, and if there was no
// young region yet, s.boundary stays nil rather than pointing at fr —
// anchoring it there would hand rebalanceLocked a brand-new young
// frame to immediately convert back to old.
func (s *shard) insertAtHead(fr *frame) {
	fr.inOld = false
	e := s.order.PushFront(fr)
	fr.element = e
	s.frames[fr.key] = fr
}

// promote moves fr from the old region to the front of the young
// region. Like insertAtHead, it leaves s.boundary untouched when nil:
// the next call that actually needs a boundary (insertAtBoundary,
// rebalanceLocked) recovers it via lastYoungLocked.
func (s *shard) promote(fr *frame) {
	s.order.MoveToFront(fr.element)
	fr.inOld = false
	fr.loadTime = time.Now()
	s.oldCount--
}

// moveToFrontYoung moves an already-young fr to the head. If fr is
// already at the front, nothing about the list's young/old split
// changes and s.boundary is left alone. Otherwise, if fr is currently
// the boundary element, the boundary must shift to fr's previous
// neighbor first — that neighbor becomes the new last-young node once
// fr leaves its position.
func (s *shard) moveToFrontYoung(fr *frame) {
	if fr.element == s.order.Front() {
		return
	}
	if fr.element == s.boundary {
		s.boundary = fr.element.Prev()
	}
	s.order.MoveToFront(fr.element)
}

// rebalanceLocked moves young-tail frames (starting at the boundary)
// into the old region until the old region meets its target share of
// capacity. Must be called with s.mu held. It never converts the
// frame sitting at the list's front: that frame was just inserted or
// promoted by the caller this very call, and a boundary recovered via
// lastYoungLocked can coincide with it exactly when it is the pool's
// only young frame.
func (s *shard) rebalanceLocked() {
	if s.boundary == nil {
		s.boundary = s.lastYoungLocked()
	}
	target := s.capacity * s.oldBlockPercent / 100
	for s.oldCount < target {
		if s.boundary == nil || s.boundary == s.order.Front() {
			return
		}
		fr := s.boundary.Value.(*frame)
		prev := s.boundary.Prev()
		fr.inOld = true
		fr.loadTime = time.Now()
		s.oldCount++
		s.boundary = prev
	}
}

// evictLocked walks the list from the tail toward the head, evicting
// the first unpinned frame it finds. Must be called with s.mu held.
func (s *shard) evictLocked() error {
	for e := s.order.Back(); e != nil; e = e.Prev() {
		fr := e.Value.(*frame)
		if fr.pinCount != 0 {
			continue
		}
		if fr.page.IsDirty() {
			if err := fr.src.Write(fr.page); err != nil {
				return newErr("evict", err)
			}
		}
		if e == s.boundary {
			s.boundary = e.Prev()
		}
		if fr.inOld {
			s.oldCount--
		}
		s.order.Remove(e)
		delete(s.frames, fr.key)
		return nil
	}
	return newErr("evict", ErrExhausted)
}

// insertResident inserts a frame that was loaded out-of-band (by
// Prefetch) with pin count 0, at the boundary.
func (s *shard) insertResident(src Source, id uint32, p *page.Page) {
	key := frameKey(src.Path(), id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.frames[key]; ok {
		return
	}
	for len(s.frames) >= s.capacity {
		if s.evictLocked() != nil {
			return
		}
	}
	fr := &frame{key: key, page: p, src: src, pinCount: 0, inOld: true, loadTime: time.Now()}
	s.insertAtBoundary(fr)
}
