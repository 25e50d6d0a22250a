package catalog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/cydb/storage/internal/enginerrs"
	"github.com/cydb/storage/pkg/ahi"
	"github.com/cydb/storage/pkg/bufferpool"
	"github.com/cydb/storage/pkg/changebuffer"
	"github.com/cydb/storage/pkg/mvcc"
	"github.com/cydb/storage/pkg/page"
	"github.com/cydb/storage/pkg/value"
	"github.com/cydb/storage/pkg/zonemap"
)

// ErrRowTooLarge reports a row whose serialized size exceeds the
// largest record any page could ever hold.
var ErrRowTooLarge = errors.New("catalog: row too large for any page")

// ErrRowNotFound reports that GetByKey's scan fallback found no row
// matching the requested primary key.
var ErrRowNotFound = errors.New("catalog: row not found")

// errRowFound is an internal sentinel GetByKey's Scan visitor returns
// to stop iteration as soon as a match is found, rather than scanning
// the rest of the table once the answer is already known.
var errRowFound = errors.New("catalog: row found")

type tableError struct {
	Op  string
	Err error
}

func (e *tableError) Error() string { return "table: " + e.Op + ": " + e.Err.Error() }
func (e *tableError) Unwrap() error { return e.Err }
func (e *tableError) Kind() enginerrs.Kind {
	// Sentinels from pkg/page and pkg/bufferpool usually arrive wrapped
	// in those packages' own *Error types, so each link of the Unwrap
	// chain is compared in turn.
	for err := e.Err; err != nil; {
		switch err {
		case ErrRowTooLarge:
			return enginerrs.KindRowTooLarge
		case page.ErrSlotOutOfRange, page.ErrSlotTombstoned, ErrRowNotFound:
			return enginerrs.KindNotFound
		case bufferpool.ErrExhausted:
			return enginerrs.KindBufferExhausted
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return enginerrs.KindUnknown
}

func twrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &tableError{Op: op, Err: err}
}

// headerAndSlotOverhead is the page header plus one slot entry; the
// largest record any empty page could ever hold is page.Size minus it.
const headerAndSlotOverhead = 16 + 4

// Table is an open table bound to its own PageManager and the shared
// buffer pool, per spec §3's ownership rule. It implements spec
// §4.10's row operations.
type Table struct {
	mu     sync.RWMutex
	schema *TableSchema
	pm     *page.Manager
	pool   *bufferpool.Pool
	cols   []mvcc.ColumnSpec

	cb  *changebuffer.Buffer
	zm  *zonemap.Map
	ahi *ahi.Index
}

func columnSpecs(schema *TableSchema) []mvcc.ColumnSpec {
	cols := make([]mvcc.ColumnSpec, len(schema.Columns))
	for i, c := range schema.Columns {
		cols[i] = mvcc.ColumnSpec{Type: c.Type, Scale: c.Scale}
	}
	return cols
}

// OpenTable binds schema to a data file via pm, sharing pool with
// every other open table.
func OpenTable(schema *TableSchema, pm *page.Manager, pool *bufferpool.Pool) *Table {
	return &Table{schema: schema, pm: pm, pool: pool, cols: columnSpecs(schema)}
}

// Schema returns the table's schema.
func (t *Table) Schema() *TableSchema {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.schema
}

// Manager returns the page.Manager currently backing the table.
// Optimize replaces this value, so callers holding their own copy
// (e.g. the storage engine façade, which tracks flush targets by
// file path) must refetch it afterward.
func (t *Table) Manager() *page.Manager {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pm
}

// Close flushes and closes the table's underlying file.
func (t *Table) Close() error {
	return t.pm.Close()
}

// AttachChangeBuffer lets the engine share one change buffer across
// every open table, so Delete can defer a mutation against a page
// that isn't currently resident instead of forcing a load just to
// tombstone a slot.
func (t *Table) AttachChangeBuffer(cb *changebuffer.Buffer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cb = cb
}

// AttachZoneMap lets the engine share one zone map across every open
// table, consulted (and extended) by ScanColumn.
func (t *Table) AttachZoneMap(zm *zonemap.Map) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.zm = zm
}

// AttachAHI lets the engine share one adaptive hash index across
// every open table, consulted by GetByKey and fed by Get as pages
// cross the hot-access threshold.
func (t *Table) AttachAHI(idx *ahi.Index) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ahi = idx
}

// primaryKeyColumn returns the table's first declared primary-key
// column and its ordinal, if any.
func (t *Table) primaryKeyColumn() (int, ColumnDef, bool) {
	for i, c := range t.schema.Columns {
		if c.PrimaryKey {
			return i, c, true
		}
	}
	return 0, ColumnDef{}, false
}

func slotKey(slot int16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(slot))
	return buf[:]
}

func (t *Table) validate(values []value.Value) error {
	if len(values) != len(t.schema.Columns) {
		return errors.Errorf("expected %d values, got %d", len(t.schema.Columns), len(values))
	}
	for i, col := range t.schema.Columns {
		v := values[i]
		if v.IsNull() {
			if !col.Nullable {
				return errors.Errorf("column %q is not nullable", col.Name)
			}
			continue
		}
		if v.Type != col.Type {
			return errors.Errorf("column %q: expected type %s, got %s", col.Name, col.Type, v.Type)
		}
		if col.Type == value.TypeVarChar && col.MaxLength > 0 {
			s, _ := v.AsString()
			if int32(len(s)) > col.MaxLength {
				return errors.Errorf("column %q: value exceeds max length %d", col.Name, col.MaxLength)
			}
		}
	}
	return nil
}

// applyAutoIncrement fills in the auto-increment column's value when
// the caller passed NULL for it, per spec §4.10's insert contract.
func (t *Table) applyAutoIncrement(values []value.Value) {
	for i, col := range t.schema.Columns {
		if !col.AutoIncrement {
			continue
		}
		if !values[i].IsNull() {
			continue
		}
		t.schema.AutoIncr++
		switch col.Type {
		case value.TypeInt32:
			values[i] = value.Int32(int32(t.schema.AutoIncr))
		case value.TypeInt64:
			values[i] = value.Int64(int64(t.schema.AutoIncr))
		}
	}
}

// Insert validates values against the schema, assigns any pending
// auto-increment, serializes the row and places it on a page with
// room, per spec §4.10.
func (t *Table) Insert(values []value.Value, trxID uint64) (mvcc.RowID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(values) != len(t.schema.Columns) {
		return mvcc.Invalid, twrap("insert", errors.Errorf("expected %d values, got %d", len(t.schema.Columns), len(values)))
	}
	t.applyAutoIncrement(values)
	if err := t.validate(values); err != nil {
		return mvcc.Invalid, twrap("insert", err)
	}

	row := mvcc.Row{TrxID: trxID, RollPtr: mvcc.InvalidRollPtr, Values: values}
	raw, err := mvcc.Encode(row, t.cols)
	if err != nil {
		return mvcc.Invalid, twrap("insert", err)
	}
	if len(raw) > page.Size-headerAndSlotOverhead {
		return mvcc.Invalid, twrap("insert", ErrRowTooLarge)
	}

	pg, err := t.findPageWithSpace(len(raw))
	if err != nil {
		return mvcc.Invalid, twrap("insert", err)
	}
	slot, err := pg.InsertRecord(raw)
	if err != nil {
		t.pool.UnpinPage(t.pm.Path(), pg.ID(), false)
		return mvcc.Invalid, twrap("insert", err)
	}
	t.pool.UnpinPage(t.pm.Path(), pg.ID(), true)
	t.schema.RowCount++

	return mvcc.RowID{PageID: int32(pg.ID()), Slot: int16(slot)}, nil
}

func (t *Table) findPageWithSpace(length int) (*page.Page, error) {
	count := t.pm.PageCount()
	for id := uint32(1); id <= count; id++ {
		pg, err := t.pool.GetPage(t.pm, id)
		if err != nil {
			return nil, err
		}
		if pg.Type() == page.TypeData && pg.CanFit(length) {
			return pg, nil
		}
		t.pool.UnpinPage(t.pm.Path(), id, false)
	}
	return t.pool.NewPage(t.pm, page.TypeData)
}

// Get fetches and deserializes the row at id.
func (t *Table) Get(id mvcc.RowID) (mvcc.Row, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.getLocked(id)
}

func (t *Table) getLocked(id mvcc.RowID) (mvcc.Row, error) {
	pg, err := t.pool.GetPage(t.pm, uint32(id.PageID))
	if err != nil {
		return mvcc.Row{}, twrap("get", err)
	}
	defer t.pool.UnpinPage(t.pm.Path(), pg.ID(), false)

	rec := pg.GetRecord(uint16(id.Slot))
	if rec == nil {
		return mvcc.Row{}, twrap("get", page.ErrSlotTombstoned)
	}
	row, err := mvcc.Decode(rec, t.cols, id)
	if err != nil {
		return mvcc.Row{}, twrap("get", err)
	}
	t.recordHotAccess(id, row)
	return row, nil
}

// recordHotAccess feeds the adaptive hash index a lookup against id's
// page and, once that page's access count crosses ahi.HotThreshold,
// inserts the row's primary-key value so future GetByKey calls can
// resolve it without a scan, per spec §4.6.
func (t *Table) recordHotAccess(id mvcc.RowID, row mvcc.Row) {
	if t.ahi == nil {
		return
	}
	t.ahi.RecordAccess(uint32(id.PageID))
	if t.ahi.AccessCount(uint32(id.PageID)) < ahi.HotThreshold {
		return
	}
	pkIdx, pk, ok := t.primaryKeyColumn()
	if !ok || row.Values[pkIdx].IsNull() {
		return
	}
	keyBytes, err := value.EncodeToBytes(pk.Type, row.Values[pkIdx])
	if err != nil {
		return
	}
	t.ahi.Insert(keyBytes, ahi.Location{PageID: uint32(id.PageID), Slot: uint16(id.Slot)})
}

// GetByKey looks up the row whose primary-key column equals key,
// consulting the adaptive hash index before descending to a full
// scan, per spec §4.6's "index-lookup paths consult AdaptiveHashIndex
// before descending to disk" data flow. A stale hit (the slot was
// since deleted or reused) is invalidated and falls through to the
// scan rather than being reported as a miss.
func (t *Table) GetByKey(key value.Value) (mvcc.Row, error) {
	t.mu.RLock()
	pkIdx, pk, ok := t.primaryKeyColumn()
	t.mu.RUnlock()
	if !ok {
		return mvcc.Row{}, twrap("get_by_key", errors.New("table has no primary key"))
	}
	keyBytes, err := value.EncodeToBytes(pk.Type, key)
	if err != nil {
		return mvcc.Row{}, twrap("get_by_key", err)
	}

	if t.ahi != nil {
		if loc, found := t.ahi.Lookup(keyBytes); found {
			id := mvcc.RowID{PageID: int32(loc.PageID), Slot: int16(loc.Slot)}
			if row, err := t.Get(id); err == nil && row.Values[pkIdx].Equal(key) {
				return row, nil
			}
			t.ahi.Invalidate(keyBytes)
		}
	}

	var found mvcc.Row
	scanErr := t.Scan(func(row mvcc.Row) error {
		if row.Values[pkIdx].Equal(key) {
			found = row
			return errRowFound
		}
		return nil
	})
	if scanErr == errRowFound {
		return found, nil
	}
	if scanErr != nil {
		return mvcc.Row{}, scanErr
	}
	return mvcc.Row{}, twrap("get_by_key", ErrRowNotFound)
}

// RowVisitor is called once per live row during Scan.
type RowVisitor func(mvcc.Row) error

// Scan iterates every live slot of every page in file order.
func (t *Table) Scan(visit RowVisitor) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := t.pm.PageCount()
	for id := uint32(1); id <= count; id++ {
		pg, err := t.pool.GetPage(t.pm, id)
		if err != nil {
			return twrap("scan", err)
		}
		if pg.Type() != page.TypeData {
			t.pool.UnpinPage(t.pm.Path(), id, false)
			continue
		}
		for slot := uint16(0); slot < pg.SlotCount(); slot++ {
			rec := pg.GetRecord(slot)
			if rec == nil {
				continue
			}
			row, err := mvcc.Decode(rec, t.cols, mvcc.RowID{PageID: int32(id), Slot: int16(slot)})
			if err != nil {
				t.pool.UnpinPage(t.pm.Path(), id, false)
				return twrap("scan", err)
			}
			if err := visit(row); err != nil {
				t.pool.UnpinPage(t.pm.Path(), id, false)
				return err
			}
		}
		t.pool.UnpinPage(t.pm.Path(), id, false)
	}
	return nil
}

// ScanColumn iterates rows where column's value satisfies `op cmp`,
// skipping any page the zone map already proves cannot match and
// recording this pass's min/max/row-count for every page it does
// read, per spec §4.7's "scan paths consult ZoneMap to skip pages"
// data flow. Coverage improves with every call: an unindexed page
// gets its first stats recorded the first time it's scanned here.
func (t *Table) ScanColumn(column string, op zonemap.Op, cmp value.Value, visit RowVisitor) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	colIdx := -1
	for i, c := range t.schema.Columns {
		if c.Name == column {
			colIdx = i
			break
		}
	}
	if colIdx < 0 {
		return twrap("scan_column", errors.Errorf("unknown column %q", column))
	}
	dt := t.schema.Columns[colIdx].Type
	cmpBytes, err := value.EncodeToBytes(dt, cmp)
	if err != nil {
		return twrap("scan_column", err)
	}

	count := t.pm.PageCount()
	for id := uint32(1); id <= count; id++ {
		if t.zm != nil {
			if st, ok := t.zm.Get(t.schema.TableName, id, column); ok && zonemap.CanSkipPage(st, op, cmpBytes) {
				continue
			}
		}
		pg, err := t.pool.GetPage(t.pm, id)
		if err != nil {
			return twrap("scan_column", err)
		}
		if pg.Type() != page.TypeData {
			t.pool.UnpinPage(t.pm.Path(), id, false)
			continue
		}
		var colValues [][]byte
		for slot := uint16(0); slot < pg.SlotCount(); slot++ {
			rec := pg.GetRecord(slot)
			if rec == nil {
				continue
			}
			row, err := mvcc.Decode(rec, t.cols, mvcc.RowID{PageID: int32(id), Slot: int16(slot)})
			if err != nil {
				t.pool.UnpinPage(t.pm.Path(), id, false)
				return twrap("scan_column", err)
			}
			var vb []byte
			if v := row.Values[colIdx]; !v.IsNull() {
				if vb, err = value.EncodeToBytes(dt, v); err != nil {
					t.pool.UnpinPage(t.pm.Path(), id, false)
					return twrap("scan_column", err)
				}
			}
			colValues = append(colValues, vb)
			if matchesPredicate(vb, op, cmpBytes) {
				if err := visit(row); err != nil {
					t.pool.UnpinPage(t.pm.Path(), id, false)
					return err
				}
			}
		}
		if t.zm != nil {
			t.zm.UpdatePageStats(t.schema.TableName, id, column, colValues)
		}
		t.pool.UnpinPage(t.pm.Path(), id, false)
	}
	return nil
}

func matchesPredicate(v []byte, op zonemap.Op, cmp []byte) bool {
	if v == nil {
		return false
	}
	c := bytes.Compare(v, cmp)
	switch op {
	case zonemap.OpEQ:
		return c == 0
	case zonemap.OpLT:
		return c < 0
	case zonemap.OpLE:
		return c <= 0
	case zonemap.OpGT:
		return c > 0
	case zonemap.OpGE:
		return c >= 0
	case zonemap.OpNE:
		return c != 0
	default:
		return false
	}
}

// Update validates newValues, serializes a new row version carrying
// the previous version's RollPtr forward (the undo chain itself is an
// external collaborator's concern per spec §4.9), and writes it via
// the page's in-place-or-tombstone update path, preserving id.
func (t *Table) Update(id mvcc.RowID, newValues []value.Value, trxID uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.validate(newValues); err != nil {
		return twrap("update", err)
	}
	prev, err := t.getLocked(id)
	if err != nil {
		return err
	}
	row := mvcc.Row{TrxID: trxID, RollPtr: prev.RollPtr, Values: newValues}
	raw, err := mvcc.Encode(row, t.cols)
	if err != nil {
		return twrap("update", err)
	}
	if len(raw) > page.Size-headerAndSlotOverhead {
		return twrap("update", ErrRowTooLarge)
	}

	pg, err := t.pool.GetPage(t.pm, uint32(id.PageID))
	if err != nil {
		return twrap("update", err)
	}
	if err := pg.UpdateRecord(uint16(id.Slot), raw); err != nil {
		t.pool.UnpinPage(t.pm.Path(), pg.ID(), false)
		return twrap("update", err)
	}
	t.pool.UnpinPage(t.pm.Path(), pg.ID(), true)
	return nil
}

// Delete marks the row's slot tombstoned and decrements the row
// count, per spec §4.10. (This is a physical delete of the slot, not
// an MVCC soft-delete; no Table method writes FlagDeleted, since
// Update writes new versions with no flags set.)
func (t *Table) Delete(id mvcc.RowID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cb != nil && !t.pool.Has(t.pm.Path(), uint32(id.PageID)) {
		t.cb.BufferChange(changebuffer.Change{
			SpaceID: changebuffer.SpaceIDForPath(t.pm.Path()),
			PageNo:  uint32(id.PageID),
			Op:      changebuffer.OpDelete,
			Key:     slotKey(id.Slot),
			Time:    time.Now(),
		})
		if t.schema.RowCount > 0 {
			t.schema.RowCount--
		}
		return nil
	}

	pg, err := t.pool.GetPage(t.pm, uint32(id.PageID))
	if err != nil {
		return twrap("delete", err)
	}
	if err := pg.DeleteRecord(uint16(id.Slot)); err != nil {
		t.pool.UnpinPage(t.pm.Path(), pg.ID(), false)
		return twrap("delete", err)
	}
	t.pool.UnpinPage(t.pm.Path(), pg.ID(), true)
	if t.schema.RowCount > 0 {
		t.schema.RowCount--
	}
	return nil
}

// OptimizeResult summarizes an Optimize run.
type OptimizeResult struct {
	Rows            uint64
	OldPages        uint32
	NewPages        uint32
	BytesReclaimed  int64
	Duration        time.Duration
}

// Optimize reads every live row, writes them packed sequentially into
// a sibling temp file, atomically swaps it into place, and reopens,
// per spec §4.10. It returns an OptimizeResult summary; the
// replacement manager is then available from Manager(), which the
// caller (the StorageEngine, which owns the Table -> PageManager
// mapping) reads to update its bookkeeping.
func (t *Table) Optimize() (OptimizeResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	oldPath := t.pm.Path()
	oldPageCount := t.pm.PageCount()

	tmpPath := fmt.Sprintf("%s.optimize.tmp", oldPath)
	os.Remove(tmpPath)
	newPM, err := page.Open(tmpPath, true)
	if err != nil {
		return OptimizeResult{}, twrap("optimize", err)
	}

	var rows uint64
	var insertErr error
	scanErr := t.scanRawLocked(func(raw []byte) bool {
		pg, err := t.findPageWithSpaceIn(newPM, len(raw))
		if err != nil {
			insertErr = err
			return false
		}
		if _, err := pg.InsertRecord(raw); err != nil {
			insertErr = err
			return false
		}
		if err := newPM.Write(pg); err != nil {
			insertErr = err
			return false
		}
		rows++
		return true
	})
	if scanErr != nil {
		newPM.Close()
		os.Remove(tmpPath)
		return OptimizeResult{}, twrap("optimize", scanErr)
	}
	if insertErr != nil {
		newPM.Close()
		os.Remove(tmpPath)
		return OptimizeResult{}, twrap("optimize", insertErr)
	}

	if err := newPM.Flush(); err != nil {
		newPM.Close()
		os.Remove(tmpPath)
		return OptimizeResult{}, twrap("optimize", err)
	}
	newPageCount := newPM.PageCount()
	if err := newPM.Close(); err != nil {
		return OptimizeResult{}, twrap("optimize", err)
	}
	if err := t.pm.Close(); err != nil {
		return OptimizeResult{}, twrap("optimize", err)
	}
	if err := os.Rename(tmpPath, oldPath); err != nil {
		return OptimizeResult{}, twrap("optimize", err)
	}
	reopened, err := page.Open(oldPath, false)
	if err != nil {
		return OptimizeResult{}, twrap("optimize", err)
	}
	t.pm = reopened

	bytesReclaimed := int64(oldPageCount-newPageCount) * int64(page.Size)
	return OptimizeResult{
		Rows:           rows,
		OldPages:       oldPageCount,
		NewPages:       newPageCount,
		BytesReclaimed: bytesReclaimed,
		Duration:       time.Since(start),
	}, nil
}

func (t *Table) scanRawLocked(visit func(raw []byte) bool) error {
	count := t.pm.PageCount()
	for id := uint32(1); id <= count; id++ {
		pg, err := t.pool.GetPage(t.pm, id)
		if err != nil {
			return err
		}
		if pg.Type() == page.TypeData {
			for slot := uint16(0); slot < pg.SlotCount(); slot++ {
				rec := pg.GetRecord(slot)
				if rec == nil {
					continue
				}
				if !visit(rec) {
					t.pool.UnpinPage(t.pm.Path(), id, false)
					return nil
				}
			}
		}
		t.pool.UnpinPage(t.pm.Path(), id, false)
	}
	return nil
}

func (t *Table) findPageWithSpaceIn(pm *page.Manager, length int) (*page.Page, error) {
	// Optimize writes sequentially into a fresh file outside the
	// shared buffer pool, so it manages pages directly rather than
	// through Pool.
	count := pm.PageCount()
	if count > 0 {
		pg, err := pm.Read(count)
		if err != nil {
			return nil, err
		}
		if pg.CanFit(length) {
			return pg, nil
		}
	}
	return pm.Allocate(page.TypeData)
}

// CompactPages rewrites each page's live records contiguously without
// rewriting the file, per spec §4.10.
func (t *Table) CompactPages() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := t.pm.PageCount()
	for id := uint32(1); id <= count; id++ {
		pg, err := t.pool.GetPage(t.pm, id)
		if err != nil {
			return twrap("compact_pages", err)
		}
		if pg.Type() == page.TypeData {
			pg.Compact()
		}
		t.pool.UnpinPage(t.pm.Path(), id, true)
	}
	return nil
}
