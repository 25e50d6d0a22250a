package page

import (
	"errors"

	"github.com/cydb/storage/internal/enginerrs"
)

// Sentinel errors a caller can match with errors.Is, mirroring
// server/innodb/buffer_pool/errors.go's sentinel-plus-wrapper shape.
var (
	ErrFull           = errors.New("page: not enough free space for record")
	ErrSlotOutOfRange = errors.New("page: slot number out of range")
	ErrSlotTombstoned = errors.New("page: slot is tombstoned")
	ErrChecksum       = errors.New("page: checksum mismatch")
	ErrOutOfRange     = errors.New("page: page id out of range")
	ErrBadMagic       = errors.New("page: bad file magic")
	ErrBadVersion     = errors.New("page: unsupported file version")
)

// Error wraps an operation name and underlying sentinel, and reports a
// Kind so callers several layers up can classify it without importing
// this package's sentinels directly.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Kind() enginerrs.Kind {
	switch {
	case errors.Is(e.Err, ErrChecksum), errors.Is(e.Err, ErrBadMagic), errors.Is(e.Err, ErrBadVersion):
		return enginerrs.KindCorrupted
	case errors.Is(e.Err, ErrOutOfRange):
		return enginerrs.KindNotFound
	case errors.Is(e.Err, ErrFull):
		return enginerrs.KindOutOfSpace
	default:
		return enginerrs.KindUnknown
	}
}

func newErr(op string, err error) error {
	return &Error{Op: op, Err: err}
}
