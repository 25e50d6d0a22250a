package catalog

import (
	"bufio"
	"bytes"
	"strings"
	"time"

	"github.com/juju/errors"
)

// MaxColumns bounds column count per spec §3's "column count <=
// platform max" invariant.
const MaxColumns = 4096

// TableSchema is one table's persisted definition plus its
// persisted-as-statistics counters, per spec §3.
type TableSchema struct {
	ID           uint32
	DatabaseName string
	TableName    string
	CreatedAt    time.Time
	ModifiedAt   time.Time
	Columns      []ColumnDef
	AutoIncr     uint64
	RowCount     uint64
}

// NewTableSchema validates and builds a schema. Column ordinals are
// assigned by slice position, overriding whatever the caller passed.
func NewTableSchema(id uint32, dbName, tableName string, columns []ColumnDef) (*TableSchema, error) {
	if len(columns) == 0 {
		return nil, errors.New("catalog: table must have at least one column")
	}
	if len(columns) > MaxColumns {
		return nil, errors.Errorf("catalog: table has %d columns, exceeds max %d", len(columns), MaxColumns)
	}
	seen := make(map[string]struct{}, len(columns))
	for i, c := range columns {
		if err := c.validate(); err != nil {
			return nil, err
		}
		lower := strings.ToLower(c.Name)
		if _, dup := seen[lower]; dup {
			return nil, errors.Errorf("catalog: duplicate column name %q (case-insensitive)", c.Name)
		}
		seen[lower] = struct{}{}
		columns[i].Ordinal = int32(i)
	}
	now := time.Now()
	return &TableSchema{
		ID:           id,
		DatabaseName: dbName,
		TableName:    tableName,
		CreatedAt:    now,
		ModifiedAt:   now,
		Columns:      columns,
	}, nil
}

// PrimaryKeyColumns returns the schema's primary-key columns in
// declared order — the "derived primary-key column list" spec §3
// requires.
func (s *TableSchema) PrimaryKeyColumns() []ColumnDef {
	var pk []ColumnDef
	for _, c := range s.Columns {
		if c.PrimaryKey {
			pk = append(pk, c)
		}
	}
	return pk
}

// ColumnByName looks a column up case-insensitively.
func (s *TableSchema) ColumnByName(name string) (ColumnDef, bool) {
	lower := strings.ToLower(name)
	for _, c := range s.Columns {
		if strings.ToLower(c.Name) == lower {
			return c, true
		}
	}
	return ColumnDef{}, false
}

func encodeTableSchema(s *TableSchema) ([]byte, error) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := writeUint32(w, s.ID); err != nil {
		return nil, err
	}
	if err := writeVarString(w, s.DatabaseName); err != nil {
		return nil, err
	}
	if err := writeVarString(w, s.TableName); err != nil {
		return nil, err
	}
	if err := writeUint64(w, uint64(s.CreatedAt.UnixNano())); err != nil {
		return nil, err
	}
	if err := writeUint64(w, uint64(s.ModifiedAt.UnixNano())); err != nil {
		return nil, err
	}
	if err := writeUint64(w, s.AutoIncr); err != nil {
		return nil, err
	}
	if err := writeUint64(w, s.RowCount); err != nil {
		return nil, err
	}
	if err := writeUint32(w, uint32(len(s.Columns))); err != nil {
		return nil, err
	}
	for _, c := range s.Columns {
		if err := encodeColumn(w, c); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeTableSchema(raw []byte) (*TableSchema, error) {
	r := bufio.NewReader(bytes.NewReader(raw))
	s := &TableSchema{}
	var err error
	if s.ID, err = readUint32(r); err != nil {
		return nil, err
	}
	if s.DatabaseName, err = readVarString(r); err != nil {
		return nil, err
	}
	if s.TableName, err = readVarString(r); err != nil {
		return nil, err
	}
	createdNanos, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	s.CreatedAt = time.Unix(0, int64(createdNanos))
	modNanos, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	s.ModifiedAt = time.Unix(0, int64(modNanos))
	if s.AutoIncr, err = readUint64(r); err != nil {
		return nil, err
	}
	if s.RowCount, err = readUint64(r); err != nil {
		return nil, err
	}
	colCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	s.Columns = make([]ColumnDef, colCount)
	for i := range s.Columns {
		c, err := decodeColumn(r)
		if err != nil {
			return nil, err
		}
		s.Columns[i] = c
	}
	return s, nil
}

// DatabaseInfo is one database's catalog entry, per spec §3.
type DatabaseInfo struct {
	ID          uint32
	Name        string
	DataDir     string
	CreatedAt   time.Time
	Charset     string
	Collation   string
	NextTableID uint32
	Tables      map[string]*TableSchema // table name (as stored) -> schema
}

func newDatabaseInfo(id uint32, name, dataDir, charset, collation string) *DatabaseInfo {
	return &DatabaseInfo{
		ID:        id,
		Name:      name,
		DataDir:   dataDir,
		CreatedAt: time.Now(),
		Charset:   charset,
		Collation: collation,
		Tables:    make(map[string]*TableSchema),
	}
}

func encodeDatabaseInfo(d *DatabaseInfo) ([]byte, error) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := writeUint32(w, d.ID); err != nil {
		return nil, err
	}
	if err := writeVarString(w, d.Name); err != nil {
		return nil, err
	}
	if err := writeVarString(w, d.DataDir); err != nil {
		return nil, err
	}
	if err := writeUint64(w, uint64(d.CreatedAt.UnixNano())); err != nil {
		return nil, err
	}
	if err := writeVarString(w, d.Charset); err != nil {
		return nil, err
	}
	if err := writeVarString(w, d.Collation); err != nil {
		return nil, err
	}
	if err := writeUint32(w, d.NextTableID); err != nil {
		return nil, err
	}
	if err := writeUint32(w, uint32(len(d.Tables))); err != nil {
		return nil, err
	}
	for _, t := range d.Tables {
		tb, err := encodeTableSchema(t)
		if err != nil {
			return nil, err
		}
		if err := writeUint32(w, uint32(len(tb))); err != nil {
			return nil, err
		}
		if _, err := w.Write(tb); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeDatabaseInfo(raw []byte) (*DatabaseInfo, error) {
	r := bufio.NewReader(bytes.NewReader(raw))
	d := &DatabaseInfo{Tables: make(map[string]*TableSchema)}
	var err error
	if d.ID, err = readUint32(r); err != nil {
		return nil, err
	}
	if d.Name, err = readVarString(r); err != nil {
		return nil, err
	}
	if d.DataDir, err = readVarString(r); err != nil {
		return nil, err
	}
	createdNanos, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	d.CreatedAt = time.Unix(0, int64(createdNanos))
	if d.Charset, err = readVarString(r); err != nil {
		return nil, err
	}
	if d.Collation, err = readVarString(r); err != nil {
		return nil, err
	}
	if d.NextTableID, err = readUint32(r); err != nil {
		return nil, err
	}
	tableCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < tableCount; i++ {
		length, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		blob := make([]byte, length)
		if _, err := readFullBytes(r, blob); err != nil {
			return nil, err
		}
		t, err := decodeTableSchema(blob)
		if err != nil {
			return nil, err
		}
		d.Tables[t.TableName] = t
	}
	return d, nil
}
