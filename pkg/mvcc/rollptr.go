package mvcc

import "github.com/cydb/storage/pkg/util"

// RollPtr is an 8-byte packed (segment:2, page:4, offset:2) pointer
// into undo storage — opaque to this package per spec §4.9's
// "treated as opaque unless invalid" rule; the undo subsystem that
// would dereference it is an external collaborator.
type RollPtr struct {
	Segment uint16
	Page    uint32
	Offset  uint16
}

// InvalidRollPtr is the sentinel meaning "no prior version."
var InvalidRollPtr = RollPtr{Segment: 0xFFFF, Page: 0xFFFFFFFF, Offset: 0xFFFF}

// IsValid reports whether p is not the invalid sentinel.
func (p RollPtr) IsValid() bool { return p != InvalidRollPtr }

// Encode packs p into 8 bytes: segment(2) page(4) offset(2), LE.
func (p RollPtr) Encode() [8]byte {
	var buf [8]byte
	util.PutUint16(buf[0:2], p.Segment)
	util.PutUint32(buf[2:6], p.Page)
	util.PutUint16(buf[6:8], p.Offset)
	return buf
}

// DecodeRollPtr unpacks an 8-byte buffer produced by Encode.
func DecodeRollPtr(buf []byte) RollPtr {
	return RollPtr{
		Segment: util.Uint16(buf[0:2]),
		Page:    util.Uint32(buf[2:6]),
		Offset:  util.Uint16(buf[6:8]),
	}
}
