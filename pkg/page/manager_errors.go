package page

import "errors"

// ErrChecksum and ErrOutOfRange (declared in errors.go) cover the
// PageManager-specific failure modes named in spec §4.1/§7; IoError is
// surfaced by wrapping the underlying os error directly rather than a
// sentinel, since its message already carries the useful detail.
var ErrAlreadyOpen = errors.New("page: file already open")
