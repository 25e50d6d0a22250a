package doublewrite

import (
	"errors"

	"github.com/cydb/storage/internal/enginerrs"
)

var (
	ErrSlotOutOfRange = errors.New("doublewrite: slot out of range")
)

type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
func (e *Error) Kind() enginerrs.Kind {
	return enginerrs.KindIoError
}

func newErr(op string, err error) error { return &Error{Op: op, Err: err} }
