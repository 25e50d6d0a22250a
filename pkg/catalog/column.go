// Package catalog implements spec §4.10: column and table schema
// definitions, the database catalog with its persisted file format,
// and table-level row operations wired against pkg/page, pkg/
// bufferpool, pkg/mvcc and pkg/value.
//
// Grounded on manager/dictionary_manager.go's table/schema bookkeeping
// (tables map, stats struct) generalized from its never-finished
// B-tree-backed system tables into direct in-memory maps persisted as
// one flat catalog file. Each column is written as name, type tag, max
// length, precision, scale and ordinal, then the nullable, primary-key
// and auto-increment flags and the optional default, enum and set;
// timestamps are stored as Unix nanoseconds.
package catalog

import (
	"bufio"

	"github.com/juju/errors"

	"github.com/cydb/storage/pkg/value"
)

// ColumnDef is one column's declared schema, per spec §3.
type ColumnDef struct {
	Name          string
	Type          value.DataType
	MaxLength     int32
	Precision     int32
	Scale         int32
	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
	Ordinal       int32
	Default       *value.Value // nil means "no default"; never the Null variant
	Enum          []string
	Set           []string
}

// validate checks invariants spec §3 places on a column definition in
// isolation (schema-wide invariants like name uniqueness live on TableSchema).
func (c ColumnDef) validate() error {
	if c.Name == "" {
		return errors.New("catalog: column name must not be empty")
	}
	if c.PrimaryKey && c.Nullable {
		return errors.Errorf("catalog: column %q: primary-key columns are implicitly non-null", c.Name)
	}
	return nil
}

func encodeOptionalStringSlice(w *bufio.Writer, ss []string) error {
	if ss == nil {
		return w.WriteByte(0)
	}
	if err := w.WriteByte(1); err != nil {
		return err
	}
	if err := writeUvarint(w, uint64(len(ss))); err != nil {
		return err
	}
	for _, s := range ss {
		if err := writeVarString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func decodeOptionalStringSlice(r *bufio.Reader) ([]string, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		s, err := readVarString(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func encodeColumn(w *bufio.Writer, c ColumnDef) error {
	if err := writeVarString(w, c.Name); err != nil {
		return err
	}
	if err := w.WriteByte(byte(c.Type)); err != nil {
		return err
	}
	for _, n := range []int32{c.MaxLength, c.Precision, c.Scale, c.Ordinal} {
		if err := writeInt32(w, n); err != nil {
			return err
		}
	}
	for _, b := range []bool{c.Nullable, c.PrimaryKey, c.AutoIncrement} {
		if err := writeBool(w, b); err != nil {
			return err
		}
	}
	if c.Default == nil {
		if err := w.WriteByte(0); err != nil {
			return err
		}
	} else {
		if err := w.WriteByte(1); err != nil {
			return err
		}
		if err := value.Encode(w, c.Type, *c.Default); err != nil {
			return err
		}
	}
	if err := encodeOptionalStringSlice(w, c.Enum); err != nil {
		return err
	}
	return encodeOptionalStringSlice(w, c.Set)
}

func decodeColumn(r *bufio.Reader) (ColumnDef, error) {
	var c ColumnDef
	var err error
	if c.Name, err = readVarString(r); err != nil {
		return c, err
	}
	typTag, err := r.ReadByte()
	if err != nil {
		return c, err
	}
	c.Type = value.DataType(typTag)

	vals := make([]int32, 4)
	for i := range vals {
		if vals[i], err = readInt32(r); err != nil {
			return c, err
		}
	}
	c.MaxLength, c.Precision, c.Scale, c.Ordinal = vals[0], vals[1], vals[2], vals[3]

	if c.Nullable, err = readBool(r); err != nil {
		return c, err
	}
	if c.PrimaryKey, err = readBool(r); err != nil {
		return c, err
	}
	if c.AutoIncrement, err = readBool(r); err != nil {
		return c, err
	}

	hasDefault, err := r.ReadByte()
	if err != nil {
		return c, err
	}
	if hasDefault == 1 {
		v, err := value.Decode(r, c.Type, false, c.Scale)
		if err != nil {
			return c, err
		}
		c.Default = &v
	}

	if c.Enum, err = decodeOptionalStringSlice(r); err != nil {
		return c, err
	}
	if c.Set, err = decodeOptionalStringSlice(r); err != nil {
		return c, err
	}
	return c, nil
}
