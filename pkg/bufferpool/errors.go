package bufferpool

import (
	"errors"

	"github.com/cydb/storage/internal/enginerrs"
)

// ErrExhausted indicates every frame in a segment is pinned and no
// eviction candidate exists — a pin-leak bug signal per spec §7, not
// a retryable condition.
var ErrExhausted = errors.New("bufferpool: every frame pinned, cannot evict")

type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
func (e *Error) Kind() enginerrs.Kind {
	if errors.Is(e.Err, ErrExhausted) {
		return enginerrs.KindBufferExhausted
	}
	return enginerrs.KindUnknown
}

func newErr(op string, err error) error { return &Error{Op: op, Err: err} }
