// Package doublewrite implements the atomic-write shim of spec §4.3: a
// fixed circular staging file that lets a torn tablespace write be
// detected and repaired on the next open.
package doublewrite

import (
	"os"
	"sync"

	"github.com/cydb/storage/internal/cydblog"
	"github.com/cydb/storage/pkg/page"
	"github.com/cydb/storage/pkg/util"
)

// SlotCount is the number of circular staging slots, per spec §4.3.
const SlotCount = 64

// Each slot reserves 4 trailing bytes for the staged page's id. This
// resolves the Open Question in spec §9: rather than overwrite the
// last 4 bytes of the page's own record area (which a record could
// legitimately occupy), the id is stored as a sidecar trailer outside
// the page_size window, so Page never loses usable bytes to the
// doublewrite bookkeeping.
const slotStride = page.Size + 4

const emptySlot = 0

// Buffer is the doublewrite staging area. One Buffer instance guards
// its own file with a single mutex, per spec §5; concurrent writers
// serialize through it for the stage+flush phase, then write their
// final tablespace copy independently.
type Buffer struct {
	mu   sync.Mutex
	file *os.File
	next uint32
}

// Open creates or opens the doublewrite file at path, sized for
// SlotCount slots, and does not perform recovery — call Recover
// explicitly against each tablespace Manager once all are open.
func Open(path string) (*Buffer, error) {
	_, statErr := os.Stat(path)
	flags := os.O_RDWR
	creating := statErr != nil
	if creating {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, newErr("Open", err)
	}
	if creating {
		if err := f.Truncate(int64(SlotCount * slotStride)); err != nil {
			f.Close()
			return nil, newErr("Open", err)
		}
	}
	return &Buffer{file: f}, nil
}

func (b *Buffer) Close() error { return b.file.Close() }

func (b *Buffer) slotOffset(slot uint32) int64 {
	return int64(slot) * int64(slotStride)
}

// stage writes p into the given slot and its sidecar page id, then
// fsyncs the doublewrite file. Must be called with b.mu held.
func (b *Buffer) stage(slot uint32, p *page.Page) error {
	p.UpdateChecksum()
	buf := make([]byte, slotStride)
	copy(buf, p.Bytes())
	util.PutUint32(buf[page.Size:], p.ID())
	if _, err := b.file.WriteAt(buf, b.slotOffset(slot)); err != nil {
		return newErr("stage", err)
	}
	if err := b.file.Sync(); err != nil {
		return newErr("stage", err)
	}
	return nil
}

// Write performs the three-step atomic-write protocol of spec §4.3:
// stage into the next circular slot and flush, write the page to its
// final tablespace offset, then advance the slot counter.
func (b *Buffer) Write(target *page.Manager, p *page.Page) error {
	b.mu.Lock()
	slot := b.next % SlotCount
	if err := b.stage(slot, p); err != nil {
		b.mu.Unlock()
		return err
	}
	b.next++
	b.mu.Unlock()

	if err := target.Write(p); err != nil {
		return newErr("Write", err)
	}
	return nil
}

// WriteBatch stages every page of the batch into successive slots
// under one flush, then issues all final tablespace writes.
func (b *Buffer) WriteBatch(target *page.Manager, pages []*page.Page) error {
	b.mu.Lock()
	slots := make([]uint32, len(pages))
	for i, p := range pages {
		slot := (b.next + uint32(i)) % SlotCount
		slots[i] = slot
		p.UpdateChecksum()
		buf := make([]byte, slotStride)
		copy(buf, p.Bytes())
		util.PutUint32(buf[page.Size:], p.ID())
		if _, err := b.file.WriteAt(buf, b.slotOffset(slot)); err != nil {
			b.mu.Unlock()
			return newErr("WriteBatch", err)
		}
	}
	if err := b.file.Sync(); err != nil {
		b.mu.Unlock()
		return newErr("WriteBatch", err)
	}
	b.next += uint32(len(pages))
	b.mu.Unlock()

	for _, p := range pages {
		if err := target.Write(p); err != nil {
			return newErr("WriteBatch", err)
		}
	}
	return nil
}

// Recover scans every slot; for each with a staged page id, it reads
// the corresponding tablespace page with target's raw (unverified)
// read and, if that page fails the corruption heuristic (checksum
// invalid or entirely zero), restores it from the doublewrite slot.
func (b *Buffer) Recover(target *page.Manager) (restored []uint32, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	log := cydblog.For("doublewrite")
	for slot := uint32(0); slot < SlotCount; slot++ {
		buf := make([]byte, slotStride)
		if _, err := b.file.ReadAt(buf, b.slotOffset(slot)); err != nil {
			return restored, newErr("Recover", err)
		}
		id := util.Uint32(buf[page.Size:])
		if id == emptySlot {
			continue
		}
		if id > target.PageCount() {
			continue
		}
		current, err := target.ReadRaw(id)
		if err != nil {
			return restored, newErr("Recover", err)
		}
		if !looksCorrupted(current) {
			continue
		}
		if err := target.WriteRaw(id, buf[:page.Size]); err != nil {
			return restored, newErr("Recover", err)
		}
		log.Warnf("doublewrite recovery restored page %d from slot %d", id, slot)
		restored = append(restored, id)
	}
	return restored, nil
}

// looksCorrupted applies the recovery heuristic: a page is considered
// torn if its checksum does not verify, or if it is entirely zero
// (the signature of a write that never landed at all).
func looksCorrupted(buf []byte) bool {
	allZero := true
	for _, b := range buf {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return true
	}
	return !page.FromBytes(buf).VerifyChecksum()
}
