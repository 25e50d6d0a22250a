package mvcc

import "github.com/cydb/storage/pkg/util"

// RowID identifies a row's physical location. (-1, -1) is Invalid.
type RowID struct {
	PageID int32
	Slot   int16
}

// Invalid is the sentinel RowID, never a real row's location.
var Invalid = RowID{PageID: -1, Slot: -1}

// IsValid reports whether r is not the Invalid sentinel.
func (r RowID) IsValid() bool { return r != Invalid }

// Encode writes r as 6 bytes: page id (4, LE) then slot (2, LE).
func (r RowID) Encode() [6]byte {
	var buf [6]byte
	util.PutUint32(buf[0:4], uint32(r.PageID))
	util.PutUint16(buf[4:6], uint16(r.Slot))
	return buf
}

// DecodeRowID reads a RowID from a 6-byte buffer produced by Encode.
func DecodeRowID(buf []byte) RowID {
	return RowID{
		PageID: int32(util.Uint32(buf[0:4])),
		Slot:   int16(util.Uint16(buf[4:6])),
	}
}
