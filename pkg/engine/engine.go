// Package engine implements the StorageEngine façade of spec §2:
// wiring the catalog, buffer pool, doublewrite buffer, and flush list
// together, owning every open table's lifetime, and exposing
// row-level and admin operations to a host that supplies nothing more
// than a data directory and a buffer-pool size, per spec §6.
package engine

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/cydb/storage/internal/cydblog"
	"github.com/cydb/storage/pkg/ahi"
	"github.com/cydb/storage/pkg/bufferpool"
	"github.com/cydb/storage/pkg/catalog"
	"github.com/cydb/storage/pkg/changebuffer"
	"github.com/cydb/storage/pkg/doublewrite"
	"github.com/cydb/storage/pkg/flushlist"
	"github.com/cydb/storage/pkg/mvcc"
	"github.com/cydb/storage/pkg/page"
	"github.com/cydb/storage/pkg/value"
	"github.com/cydb/storage/pkg/zonemap"
)

// Tuning knobs for the shared domain-index components. Not part of
// Config: spec §6 grants the host only a data directory and a buffer
// pool size, so these stay internal defaults per spec §9's redesign
// note, same as the buffer pool's own old-block percent/time.
const (
	changeBufferMaxBytes  = 4 << 20
	changeBufferThreshold = 0.7
	ahiPartitions         = 8
	ahiPartitionCapacity  = 8192
)

// Config is the entire external configuration surface spec §6 grants
// the host: a data directory and a buffer pool size in pages. Every
// other tuning knob (old-block percent, segment count, merge
// thresholds, ...) stays an internal default, matching spec §9's
// "global state should be lifted into explicit constructor arguments;
// nothing in the core requires process-wide state" redesign note.
type Config struct {
	DataDirectory   string
	BufferPoolPages int
}

// tableHandle bundles an open Table with the page.Manager backing it,
// so the engine can register dirty pages and resolve flush targets
// without Table itself exposing its internals.
type tableHandle struct {
	table *catalog.Table
	pm    *page.Manager
	path  string
}

// Engine is the storage engine façade: one catalog, one buffer pool,
// one doublewrite buffer, one flush list, and a map of open tables,
// per spec §3's ownership rules.
type Engine struct {
	mu sync.RWMutex

	dataDir string
	cat     *catalog.Catalog
	pool    *bufferpool.Pool
	dw      *doublewrite.Buffer
	flush   *flushlist.List
	cb      *changebuffer.Buffer
	zm      *zonemap.Map
	ahi     *ahi.Index

	nextLSN uint64

	tables         map[string]*tableHandle // "db.table" -> handle
	managersByPath map[string]*page.Manager

	log *logrus.Entry
}

// Open wires every component together against dataDirectory, creating
// it if necessary, loading (or initializing) the catalog and the
// doublewrite file.
func Open(cfg Config) (*Engine, error) {
	if cfg.DataDirectory == "" {
		return nil, errors.New("engine: data directory is required")
	}
	if cfg.BufferPoolPages <= 0 {
		return nil, errors.New("engine: buffer pool size in pages must be positive")
	}
	if err := os.MkdirAll(cfg.DataDirectory, 0o755); err != nil {
		return nil, errors.Annotate(err, "engine: open")
	}

	cat, err := catalog.Open(cfg.DataDirectory)
	if err != nil {
		return nil, errors.Annotate(err, "engine: open catalog")
	}
	dw, err := doublewrite.Open(filepath.Join(cfg.DataDirectory, "doublewrite.bin"))
	if err != nil {
		return nil, errors.Annotate(err, "engine: open doublewrite buffer")
	}

	pool := bufferpool.New(cfg.BufferPoolPages, bufferpool.Default())
	cb := changebuffer.New(changeBufferMaxBytes, changeBufferThreshold)
	pool.AttachChangeBuffer(cb)

	return &Engine{
		dataDir:        cfg.DataDirectory,
		cat:            cat,
		pool:           pool,
		dw:             dw,
		flush:          flushlist.New(),
		cb:             cb,
		zm:             zonemap.New(),
		ahi:            ahi.New(ahiPartitions, ahiPartitionCapacity),
		tables:         make(map[string]*tableHandle),
		managersByPath: make(map[string]*page.Manager),
		log:            cydblog.For("engine"),
	}, nil
}

// Close flushes every dirty page, closes every open table file, the
// doublewrite buffer, and persists the catalog.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.flushAllLocked(); err != nil {
		e.log.Errorf("flush on close: %v", err)
	}
	for key, h := range e.tables {
		if err := h.table.Close(); err != nil {
			e.log.Errorf("close table %s: %v", key, err)
		}
	}
	if err := e.dw.Close(); err != nil {
		e.log.Errorf("close doublewrite: %v", err)
	}
	return e.cat.Save()
}

func tableKey(db, table string) string { return db + "." + table }

// CreateDatabase registers a new database directory under the data
// directory.
func (e *Engine) CreateDatabase(name, charset, collation string) (*catalog.DatabaseInfo, error) {
	dir := filepath.Join(e.dataDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Annotate(err, "engine: create database")
	}
	return e.cat.CreateDatabase(name, dir, charset, collation)
}

// CreateTable registers a table's schema and creates its backing
// data file.
func (e *Engine) CreateTable(db, tableName string, columns []catalog.ColumnDef) (*catalog.TableSchema, error) {
	schema, err := e.cat.CreateTable(db, tableName, columns)
	if err != nil {
		return nil, err
	}
	dbInfo, _ := e.cat.Database(db)
	path := e.tablePath(dbInfo, db, tableName)
	pm, err := page.Open(path, true)
	if err != nil {
		return nil, errors.Annotate(err, "engine: create table file")
	}
	if err := pm.Close(); err != nil {
		return nil, errors.Annotate(err, "engine: create table file")
	}
	return schema, nil
}

func (e *Engine) tablePath(dbInfo *catalog.DatabaseInfo, db, tableName string) string {
	dir := e.dataDir
	if dbInfo != nil && dbInfo.DataDir != "" {
		dir = dbInfo.DataDir
	} else {
		dir = filepath.Join(e.dataDir, db)
	}
	return filepath.Join(dir, tableName+".dat")
}

// openTable returns the open handle for (db, table), opening the
// backing file and running doublewrite recovery on first access.
func (e *Engine) openTable(db, tableName string) (*tableHandle, error) {
	key := tableKey(db, tableName)

	e.mu.RLock()
	h, ok := e.tables[key]
	e.mu.RUnlock()
	if ok {
		return h, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.tables[key]; ok {
		return h, nil
	}

	schema, ok := e.cat.TableSchema(db, tableName)
	if !ok {
		return nil, errors.NotFoundf("table %q.%q", db, tableName)
	}
	dbInfo, _ := e.cat.Database(db)
	path := e.tablePath(dbInfo, db, tableName)

	pm, err := page.Open(path, false)
	if err != nil {
		return nil, errors.Annotate(err, "engine: open table file")
	}
	if restored, err := e.dw.Recover(pm); err != nil {
		pm.Close()
		return nil, errors.Annotate(err, "engine: doublewrite recovery")
	} else if len(restored) > 0 {
		e.log.Warnf("recovered %d torn pages for %s", len(restored), key)
	}

	tbl := catalog.OpenTable(schema, pm, e.pool)
	tbl.AttachChangeBuffer(e.cb)
	tbl.AttachZoneMap(e.zm)
	tbl.AttachAHI(e.ahi)
	h = &tableHandle{table: tbl, pm: pm, path: path}
	e.tables[key] = h
	e.managersByPath[path] = pm
	e.cat.TrackOpen(db, tableName, tbl)
	return h, nil
}

// registerDirty assigns the next LSN and records pageID as dirty in
// the flush list, per spec §2's "dirty pages are registered in
// FlushList" data flow.
func (e *Engine) registerDirty(h *tableHandle, pageID uint32) {
	lsn := atomic.AddUint64(&e.nextLSN, 1)
	pg, err := e.pool.GetPage(h.pm, pageID)
	if err != nil {
		return
	}
	e.flush.AddDirty(h.path, pageID, pg, lsn)
	e.pool.UnpinPage(h.path, pageID, false)
}

// InsertRow inserts values into (db, table) under trxID.
func (e *Engine) InsertRow(db, tableName string, values []value.Value, trxID uint64) (mvcc.RowID, error) {
	h, err := e.openTable(db, tableName)
	if err != nil {
		return mvcc.Invalid, err
	}
	id, err := h.table.Insert(values, trxID)
	if err != nil {
		return mvcc.Invalid, err
	}
	e.registerDirty(h, uint32(id.PageID))
	return id, nil
}

// GetRow fetches a row by id.
func (e *Engine) GetRow(db, tableName string, id mvcc.RowID) (mvcc.Row, error) {
	h, err := e.openTable(db, tableName)
	if err != nil {
		return mvcc.Row{}, err
	}
	return h.table.Get(id)
}

// ScanRows iterates every live row of (db, table).
func (e *Engine) ScanRows(db, tableName string, visit catalog.RowVisitor) error {
	h, err := e.openTable(db, tableName)
	if err != nil {
		return err
	}
	return h.table.Scan(visit)
}

// GetRowByKey fetches the row whose primary-key column equals key,
// resolving through the adaptive hash index before falling back to a
// scan, per spec §4.6.
func (e *Engine) GetRowByKey(db, tableName string, key value.Value) (mvcc.Row, error) {
	h, err := e.openTable(db, tableName)
	if err != nil {
		return mvcc.Row{}, err
	}
	return h.table.GetByKey(key)
}

// ScanRowsWhere iterates rows of (db, table) where column satisfies
// `op cmp`, consulting the zone map to skip pages that provably
// cannot match, per spec §4.7.
func (e *Engine) ScanRowsWhere(db, tableName, column string, op zonemap.Op, cmp value.Value, visit catalog.RowVisitor) error {
	h, err := e.openTable(db, tableName)
	if err != nil {
		return err
	}
	return h.table.ScanColumn(column, op, cmp, visit)
}

// UpdateRow writes a new version of row id under trxID.
func (e *Engine) UpdateRow(db, tableName string, id mvcc.RowID, values []value.Value, trxID uint64) error {
	h, err := e.openTable(db, tableName)
	if err != nil {
		return err
	}
	if err := h.table.Update(id, values, trxID); err != nil {
		return err
	}
	e.registerDirty(h, uint32(id.PageID))
	return nil
}

// DeleteRow tombstones row id.
func (e *Engine) DeleteRow(db, tableName string, id mvcc.RowID) error {
	h, err := e.openTable(db, tableName)
	if err != nil {
		return err
	}
	if err := h.table.Delete(id); err != nil {
		return err
	}
	e.registerDirty(h, uint32(id.PageID))
	return nil
}

// OptimizeTable rewrites (db, table)'s file, replacing the engine's
// cached Manager with the rewritten one.
func (e *Engine) OptimizeTable(db, tableName string) (catalog.OptimizeResult, error) {
	h, err := e.openTable(db, tableName)
	if err != nil {
		return catalog.OptimizeResult{}, err
	}
	result, err := h.table.Optimize()
	if err != nil {
		return catalog.OptimizeResult{}, err
	}
	e.mu.Lock()
	h.pm = h.table.Manager()
	e.managersByPath[h.path] = h.pm
	e.mu.Unlock()
	return result, nil
}

// CompactTable compacts every page of (db, table) in place.
func (e *Engine) CompactTable(db, tableName string) error {
	h, err := e.openTable(db, tableName)
	if err != nil {
		return err
	}
	return h.table.CompactPages()
}

// FlushDirty writes up to count dirty pages, oldest LSN first,
// through the doublewrite buffer, per spec §2's data flow.
func (e *Engine) FlushDirty(count int) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.flush.Flush(count, func(entry flushlist.Entry) error {
		pm, ok := e.managersByPath[entry.FilePath]
		if !ok {
			return errors.Errorf("engine: no manager registered for %s", entry.FilePath)
		}
		return e.dw.Write(pm, entry.Page)
	})
}

func (e *Engine) flushAllLocked() error {
	return e.flush.Flush(e.flush.Len(), func(entry flushlist.Entry) error {
		pm, ok := e.managersByPath[entry.FilePath]
		if !ok {
			return errors.Errorf("engine: no manager registered for %s", entry.FilePath)
		}
		return e.dw.Write(pm, entry.Page)
	})
}

// PersistStats writes back a table's row-count/auto-increment
// counters to the catalog.
func (e *Engine) PersistStats(db, tableName string) error {
	h, err := e.openTable(db, tableName)
	if err != nil {
		return err
	}
	s := h.table.Schema()
	return e.cat.PersistStats(db, tableName, s.RowCount, s.AutoIncr)
}

// Stats summarizes buffer pool occupancy and outstanding dirty-page
// backlog for monitoring.
type Stats struct {
	BufferPool bufferpool.Stats
	DirtyPages int
}

// Stats returns a snapshot of engine-wide runtime counters.
func (e *Engine) Stats() Stats {
	return Stats{
		BufferPool: e.pool.Stats(),
		DirtyPages: e.flush.Len(),
	}
}
