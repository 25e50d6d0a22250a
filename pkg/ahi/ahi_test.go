package ahi

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndLookup(t *testing.T) {
	idx := New(4, 100)
	idx.Insert([]byte("k1"), Location{PageID: 7, Slot: 2})

	loc, ok := idx.Lookup([]byte("k1"))
	require.True(t, ok)
	assert.Equal(t, Location{PageID: 7, Slot: 2}, loc)

	_, ok = idx.Lookup([]byte("missing"))
	assert.False(t, ok)
}

func TestRecordAccessCrossesHotThreshold(t *testing.T) {
	idx := New(1, 10)
	for i := 0; i < HotThreshold-1; i++ {
		hot := idx.RecordAccess(1)
		assert.False(t, hot)
	}
	assert.True(t, idx.RecordAccess(1))
	assert.Equal(t, HotThreshold, idx.AccessCount(1))
}

func TestInvalidate(t *testing.T) {
	idx := New(1, 10)
	idx.Insert([]byte("a"), Location{PageID: 1})
	idx.Invalidate([]byte("a"))
	_, ok := idx.Lookup([]byte("a"))
	assert.False(t, ok)
}

func TestInvalidateTableSweepsAllPartitions(t *testing.T) {
	idx := New(4, 100)
	for i := 0; i < 20; i++ {
		idx.Insert([]byte(fmt.Sprintf("key-%d", i)), Location{PageID: uint32(i % 2), Slot: uint16(i)})
	}
	idx.InvalidateTable(0)
	for i := 0; i < 20; i++ {
		loc, ok := idx.Lookup([]byte(fmt.Sprintf("key-%d", i)))
		if ok {
			assert.NotEqual(t, uint32(0), loc.PageID)
		}
	}
}

func TestEvictionAtCapacity(t *testing.T) {
	idx := New(1, 4)
	for i := 0; i < 4; i++ {
		idx.Insert([]byte(fmt.Sprintf("k%d", i)), Location{PageID: uint32(i)})
	}
	stats := idx.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, 4, stats[0].Size)

	// inserting a 5th key must evict roughly 25% to make room.
	idx.Insert([]byte("k4"), Location{PageID: 99})
	stats = idx.Stats()
	assert.LessOrEqual(t, stats[0].Size, 4)
}

func TestStatsTracksHitsAndMisses(t *testing.T) {
	idx := New(1, 10)
	idx.Insert([]byte("a"), Location{PageID: 1})
	idx.Lookup([]byte("a"))
	idx.Lookup([]byte("missing"))

	stats := idx.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(1), stats[0].Hits)
	assert.Equal(t, uint64(1), stats[0].Misses)
}
