package bufferpool

import "github.com/cydb/storage/pkg/page"

// Source is whatever GetPage/NewPage load frames from: a single
// page.Manager, or (via an adapter) a MultiFilePageManager. It is kept
// minimal so the buffer pool never needs to know which.
type Source interface {
	Read(id uint32) (*page.Page, error)
	Write(p *page.Page) error
	Allocate(typ page.Type) (*page.Page, error)
	Path() string
}

var _ Source = (*page.Manager)(nil)
