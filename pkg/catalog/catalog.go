package catalog

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/juju/errors"

	"github.com/cydb/storage/internal/cydblog"
	"github.com/cydb/storage/internal/enginerrs"
)

// CatalogMagic and CatalogVersion identify data_directory/catalog.bin,
// per spec §6.
const (
	CatalogMagic   uint32 = 0x43594341 // "CYCA" little-endian
	CatalogVersion uint32 = 1
)

var (
	// ErrBadMagic/ErrBadVersion surface a corrupted or foreign catalog file.
	ErrBadMagic   = errors.New("catalog: bad magic")
	ErrBadVersion = errors.New("catalog: unsupported version")
)

type catError struct {
	Op  string
	Err error
}

func (e *catError) Error() string { return "catalog: " + e.Op + ": " + e.Err.Error() }
func (e *catError) Unwrap() error { return e.Err }
func (e *catError) Kind() enginerrs.Kind {
	switch {
	case e.Err == ErrBadMagic, e.Err == ErrBadVersion:
		return enginerrs.KindCorrupted
	case errors.IsNotFound(e.Err), os.IsNotExist(e.Err):
		return enginerrs.KindNotFound
	case errors.IsAlreadyExists(e.Err):
		return enginerrs.KindAlreadyExists
	default:
		return enginerrs.KindUnknown
	}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &catError{Op: op, Err: err}
}

// Catalog owns every open database's schema and serves as the
// database/table factory, per spec §4.10. It refuses to drop a
// database while any of its tables are open.
type Catalog struct {
	mu          sync.RWMutex
	path        string
	nextDBID    uint32
	databases   map[string]*DatabaseInfo // name -> info
	openTables  map[string]*Table        // "db.table" -> open Table
}

// Open loads data_directory/catalog.bin, creating an empty catalog if
// it does not exist yet.
func Open(dataDirectory string) (*Catalog, error) {
	path := filepath.Join(dataDirectory, "catalog.bin")
	c := &Catalog{
		path:       path,
		nextDBID:   1,
		databases:  make(map[string]*DatabaseInfo),
		openTables: make(map[string]*Table),
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, wrap("open", err)
	}
	if err := c.load(raw); err != nil {
		return nil, wrap("open", err)
	}
	return c, nil
}

func (c *Catalog) load(raw []byte) error {
	r := bufio.NewReader(bytes.NewReader(raw))
	magic, err := readUint32(r)
	if err != nil {
		return err
	}
	if magic != CatalogMagic {
		return ErrBadMagic
	}
	version, err := readUint32(r)
	if err != nil {
		return err
	}
	if version != CatalogVersion {
		return ErrBadVersion
	}
	nextDBID, err := readUint32(r)
	if err != nil {
		return err
	}
	c.nextDBID = nextDBID
	dbCount, err := readUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < dbCount; i++ {
		length, err := readUint32(r)
		if err != nil {
			return err
		}
		blob := make([]byte, length)
		if _, err := readFullBytes(r, blob); err != nil {
			return err
		}
		d, err := decodeDatabaseInfo(blob)
		if err != nil {
			return err
		}
		c.databases[d.Name] = d
	}
	return nil
}

// Save writes the catalog atomically: encode to catalog.bin.tmp, then
// rename over catalog.bin, per spec §6.
func (c *Catalog) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveLocked()
}

func (c *Catalog) saveLocked() error {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := writeUint32(w, CatalogMagic); err != nil {
		return wrap("save", err)
	}
	if err := writeUint32(w, CatalogVersion); err != nil {
		return wrap("save", err)
	}
	if err := writeUint32(w, c.nextDBID); err != nil {
		return wrap("save", err)
	}
	if err := writeUint32(w, uint32(len(c.databases))); err != nil {
		return wrap("save", err)
	}
	for _, d := range c.databases {
		blob, err := encodeDatabaseInfo(d)
		if err != nil {
			return wrap("save", err)
		}
		if err := writeUint32(w, uint32(len(blob))); err != nil {
			return wrap("save", err)
		}
		if _, err := w.Write(blob); err != nil {
			return wrap("save", err)
		}
	}
	if err := w.Flush(); err != nil {
		return wrap("save", err)
	}

	tmp := c.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return wrap("save", err)
	}
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return wrap("save", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		cydblog.For("catalog").Errorf("rename %s -> %s: %v", tmp, c.path, err)
		return wrap("save", err)
	}
	return nil
}

// CreateDatabase registers a new, empty database and persists the
// catalog immediately.
func (c *Catalog) CreateDatabase(name, dataDir, charset, collation string) (*DatabaseInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.databases[name]; exists {
		return nil, wrap("create_database", errors.AlreadyExistsf("database %q", name))
	}
	d := newDatabaseInfo(c.nextDBID, name, dataDir, charset, collation)
	c.nextDBID++
	c.databases[name] = d
	if err := c.saveLocked(); err != nil {
		delete(c.databases, name)
		c.nextDBID--
		return nil, err
	}
	return d, nil
}

// DropDatabase removes a database, refusing while any of its tables
// are open.
func (c *Catalog) DropDatabase(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.databases[name]
	if !ok {
		return wrap("drop_database", errors.NotFoundf("database %q", name))
	}
	prefix := name + "."
	for key := range c.openTables {
		if strings.HasPrefix(key, prefix) {
			return wrap("drop_database", errors.Errorf("database %q has open tables", name))
		}
	}
	delete(c.databases, d.Name)
	return c.saveLocked()
}

// Database returns a database's info by name.
func (c *Catalog) Database(name string) (*DatabaseInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.databases[name]
	return d, ok
}

// CreateTable registers a new table schema under an existing
// database and persists the catalog.
func (c *Catalog) CreateTable(dbName, tableName string, columns []ColumnDef) (*TableSchema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.databases[dbName]
	if !ok {
		return nil, wrap("create_table", errors.NotFoundf("database %q", dbName))
	}
	if _, exists := d.Tables[tableName]; exists {
		return nil, wrap("create_table", errors.AlreadyExistsf("table %q.%q", dbName, tableName))
	}
	schema, err := NewTableSchema(d.NextTableID, dbName, tableName, columns)
	if err != nil {
		return nil, wrap("create_table", err)
	}
	d.NextTableID++
	d.Tables[tableName] = schema
	if err := c.saveLocked(); err != nil {
		delete(d.Tables, tableName)
		d.NextTableID--
		return nil, err
	}
	return schema, nil
}

// TableSchema returns a table's schema, if the database and table
// both exist.
func (c *Catalog) TableSchema(dbName, tableName string) (*TableSchema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.databases[dbName]
	if !ok {
		return nil, false
	}
	s, ok := d.Tables[tableName]
	return s, ok
}

// OpenedTable returns a cached open Table, if any.
func (c *Catalog) OpenedTable(dbName, tableName string) (*Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.openTables[dbName+"."+tableName]
	return t, ok
}

// TrackOpen registers t as the open Table for (dbName, tableName).
func (c *Catalog) TrackOpen(dbName, tableName string, t *Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openTables[dbName+"."+tableName] = t
}

// CloseTable drops the open-table entry, if present.
func (c *Catalog) CloseTable(dbName, tableName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := dbName + "." + tableName
	if t, ok := c.openTables[key]; ok {
		t.Close()
		delete(c.openTables, key)
	}
}

// PersistStats writes back a table's row-count/auto-increment
// counters after a mutation — catalog statistics are persisted,
// per spec §3, so reopening the engine preserves them.
func (c *Catalog) PersistStats(dbName, tableName string, rowCount, autoIncr uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.databases[dbName]
	if !ok {
		return wrap("persist_stats", errors.NotFoundf("database %q", dbName))
	}
	s, ok := d.Tables[tableName]
	if !ok {
		return wrap("persist_stats", errors.NotFoundf("table %q.%q", dbName, tableName))
	}
	s.RowCount = rowCount
	s.AutoIncr = autoIncr
	return c.saveLocked()
}
