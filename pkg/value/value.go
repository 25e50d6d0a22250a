// Package value implements DataValue (spec §9's "dynamic typing ->
// tagged variants" design note): a sum type over every supported
// column type with a dedicated Null variant and total
// serialize/deserialize functions keyed by the column's declared
// DataType.
package value

import (
	"bufio"
	"bytes"
	"io"

	"github.com/juju/errors"
	"github.com/shopspring/decimal"

	"github.com/cydb/storage/pkg/util"
)

// DataType tags the declared type of a column.
type DataType uint8

const (
	TypeInt32 DataType = iota
	TypeInt64
	TypeVarChar
	TypeDecimal
	TypeBool
	TypeNull // never a column's declared type; used internally by Decode
)

func (t DataType) String() string {
	switch t {
	case TypeInt32:
		return "INT"
	case TypeInt64:
		return "BIGINT"
	case TypeVarChar:
		return "VARCHAR"
	case TypeDecimal:
		return "DECIMAL"
	case TypeBool:
		return "BOOL"
	default:
		return "UNKNOWN"
	}
}

// Value is the DataValue sum type. Exactly one of the typed fields is
// meaningful, selected by Type; Type == TypeNull means the value is
// SQL NULL regardless of any other field's zero value.
type Value struct {
	Type    DataType
	i32     int32
	i64     int64
	str     string
	dec     decimal.Decimal
	boolean bool
}

// Null returns the Null variant.
func Null() Value { return Value{Type: TypeNull} }

// IsNull reports whether v is the Null variant.
func (v Value) IsNull() bool { return v.Type == TypeNull }

func Int32(n int32) Value   { return Value{Type: TypeInt32, i32: n} }
func Int64(n int64) Value   { return Value{Type: TypeInt64, i64: n} }
func VarChar(s string) Value { return Value{Type: TypeVarChar, str: s} }
func Bool(b bool) Value     { return Value{Type: TypeBool, boolean: b} }

// Decimal builds a DECIMAL/NUMERIC value rounded to scale decimal
// places, per spec §9's DataValue design note and the column's
// declared precision/scale.
func Decimal(d decimal.Decimal, scale int32) Value {
	return Value{Type: TypeDecimal, dec: d.Round(scale)}
}

func (v Value) AsInt32() (int32, error) {
	if v.Type != TypeInt32 {
		return 0, errors.Errorf("value: not an INT32 (type=%s)", v.Type)
	}
	return v.i32, nil
}

func (v Value) AsInt64() (int64, error) {
	if v.Type != TypeInt64 {
		return 0, errors.Errorf("value: not an INT64 (type=%s)", v.Type)
	}
	return v.i64, nil
}

func (v Value) AsString() (string, error) {
	if v.Type != TypeVarChar {
		return "", errors.Errorf("value: not a VARCHAR (type=%s)", v.Type)
	}
	return v.str, nil
}

func (v Value) AsDecimal() (decimal.Decimal, error) {
	if v.Type != TypeDecimal {
		return decimal.Decimal{}, errors.Errorf("value: not a DECIMAL (type=%s)", v.Type)
	}
	return v.dec, nil
}

func (v Value) AsBool() (bool, error) {
	if v.Type != TypeBool {
		return false, errors.Errorf("value: not a BOOL (type=%s)", v.Type)
	}
	return v.boolean, nil
}

// Equal reports value equality; two Null values are equal to each
// other (this is storage-layer equality, not SQL NULL semantics).
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TypeNull:
		return true
	case TypeInt32:
		return v.i32 == o.i32
	case TypeInt64:
		return v.i64 == o.i64
	case TypeVarChar:
		return v.str == o.str
	case TypeDecimal:
		return v.dec.Equal(o.dec)
	case TypeBool:
		return v.boolean == o.boolean
	}
	return false
}

// Encode writes v's payload (not including the null-bitmap bit, which
// the caller tracks separately) for declared type dt. Encoding a Null
// value writes nothing — callers must have already set the null bit.
func Encode(w io.Writer, dt DataType, v Value) error {
	if v.IsNull() {
		return nil
	}
	switch dt {
	case TypeInt32:
		n, err := v.AsInt32()
		if err != nil {
			return err
		}
		var buf [4]byte
		util.PutUint32(buf[:], uint32(n))
		_, err = w.Write(buf[:])
		return err
	case TypeInt64:
		n, err := v.AsInt64()
		if err != nil {
			return err
		}
		var buf [8]byte
		util.PutUint64(buf[:], uint64(n))
		_, err = w.Write(buf[:])
		return err
	case TypeVarChar:
		s, err := v.AsString()
		if err != nil {
			return err
		}
		return util.WriteVarString(w, s)
	case TypeDecimal:
		d, err := v.AsDecimal()
		if err != nil {
			return err
		}
		return util.WriteVarString(w, d.String())
	case TypeBool:
		b, err := v.AsBool()
		if err != nil {
			return err
		}
		var buf [1]byte
		if b {
			buf[0] = 1
		}
		_, err = w.Write(buf[:])
		return err
	default:
		return errors.Errorf("value: unsupported DataType %d", dt)
	}
}

// Decode reads one value of declared type dt, or the Null variant if
// isNull is true (in which case the reader is not consulted).
func Decode(r *bufio.Reader, dt DataType, isNull bool, scale int32) (Value, error) {
	if isNull {
		return Null(), nil
	}
	switch dt {
	case TypeInt32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Value{}, errors.Annotate(err, "value: decode INT32")
		}
		return Int32(int32(util.Uint32(buf[:]))), nil
	case TypeInt64:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Value{}, errors.Annotate(err, "value: decode INT64")
		}
		return Int64(int64(util.Uint64(buf[:]))), nil
	case TypeVarChar:
		s, err := util.ReadVarString(r)
		if err != nil {
			return Value{}, errors.Annotate(err, "value: decode VARCHAR")
		}
		return VarChar(s), nil
	case TypeDecimal:
		s, err := util.ReadVarString(r)
		if err != nil {
			return Value{}, errors.Annotate(err, "value: decode DECIMAL")
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Value{}, errors.Annotate(err, "value: decode DECIMAL")
		}
		return Decimal(d, scale), nil
	case TypeBool:
		b, err := r.ReadByte()
		if err != nil {
			return Value{}, errors.Annotate(err, "value: decode BOOL")
		}
		return Bool(b != 0), nil
	default:
		return Value{}, errors.Errorf("value: unsupported DataType %d", dt)
	}
}

// EncodeToBytes returns v as a byte key for declared type dt, used by
// callers that need a []byte rather than a stream (AHI keys and the
// zone-map comparisons of Table.ScanColumn). Unlike Encode, INT32 and
// INT64 values come out big-endian with the sign bit flipped, and
// VARCHAR values as their raw UTF-8 bytes with no length prefix, so
// bytes.Compare orders those keys the way the values order.
func EncodeToBytes(dt DataType, v Value) ([]byte, error) {
	if dt == TypeVarChar && !v.IsNull() {
		s, err := v.AsString()
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	}
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	if err := Encode(bw, dt, v); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	if !v.IsNull() && (dt == TypeInt32 || dt == TypeInt64) {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
		out[0] ^= 0x80
	}
	return out, nil
}
