// Package zonemap tracks per-page, per-column min/max statistics
// (spec §4.7) so a scan can skip a page outright when its value range
// cannot possibly satisfy a predicate — the same role
// statistics/selectivity.go's range pruning plays for the optimizer,
// applied at page granularity instead of index-range granularity.
package zonemap

import (
	"bytes"
	"sync"
)

// Op is a predicate comparison operator.
type Op int

const (
	OpEQ Op = iota
	OpLT
	OpLE
	OpGT
	OpGE
	OpNE
)

// Stats is one page/column's observed value range.
type Stats struct {
	Min      []byte
	Max      []byte
	RowCount int
	HasNull  bool
}

type key struct {
	table  string
	pageID uint32
	column string
}

// Map holds zone stats for every (table, page, column) triple seen so
// far. Safe for concurrent use.
type Map struct {
	mu    sync.RWMutex
	stats map[key]Stats
}

func New() *Map {
	return &Map{stats: make(map[key]Stats)}
}

// UpdatePageStats (re)computes the min/max/row-count/has-null entry
// for (table, pageID, column) from the given column values. A nil
// value in values represents SQL NULL and only affects HasNull —
// nulls never participate in the min/max comparison, matching
// spec §4.7's null-handling rule that a NULL-containing page can
// still be skipped by a non-null-aware predicate range.
func (m *Map) UpdatePageStats(table string, pageID uint32, column string, values [][]byte) {
	var st Stats
	first := true
	for _, v := range values {
		if v == nil {
			st.HasNull = true
			continue
		}
		st.RowCount++
		if first {
			st.Min, st.Max = v, v
			first = false
			continue
		}
		if bytes.Compare(v, st.Min) < 0 {
			st.Min = v
		}
		if bytes.Compare(v, st.Max) > 0 {
			st.Max = v
		}
	}
	m.mu.Lock()
	m.stats[key{table, pageID, column}] = st
	m.mu.Unlock()
}

// Get returns the stats for (table, pageID, column), if any.
func (m *Map) Get(table string, pageID uint32, column string) (Stats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.stats[key{table, pageID, column}]
	return st, ok
}

// InvalidatePage drops every column's stats for (table, pageID), e.g.
// after the page is rewritten by compaction.
func (m *Map) InvalidatePage(table string, pageID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.stats {
		if k.table == table && k.pageID == pageID {
			delete(m.stats, k)
		}
	}
}

// CanSkipPage reports whether a page is provably irrelevant to
// `column OP value`, given its tracked zone stats. An unknown page
// (no stats recorded yet) is never skipped — the caller must fall
// back to reading it, per spec §4.7's conservative-default rule.
func CanSkipPage(st Stats, op Op, value []byte) bool {
	if st.Min == nil && st.Max == nil && st.RowCount == 0 {
		return false
	}
	switch op {
	case OpEQ:
		return bytes.Compare(value, st.Min) < 0 || bytes.Compare(value, st.Max) > 0
	case OpLT:
		return bytes.Compare(st.Min, value) >= 0
	case OpLE:
		return bytes.Compare(st.Min, value) > 0
	case OpGT:
		return bytes.Compare(st.Max, value) <= 0
	case OpGE:
		return bytes.Compare(st.Max, value) < 0
	case OpNE:
		// Only skippable in the degenerate case where every row in the
		// page equals value and there's exactly one distinct value —
		// unprovable from min/max alone, so never skip.
		return false
	default:
		return false
	}
}

// CanSkipPageByKey is the convenience form that looks the stats up by
// (table, pageID, column) first.
func (m *Map) CanSkipPageByKey(table string, pageID uint32, column string, op Op, value []byte) bool {
	st, ok := m.Get(table, pageID, column)
	if !ok {
		return false
	}
	return CanSkipPage(st, op, value)
}
