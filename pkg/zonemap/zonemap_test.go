package zonemap

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u32(n uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, n)
	return buf
}

func b(s string) []byte { return []byte(s) }

func TestUpdatePageStatsComputesRange(t *testing.T) {
	m := New()
	m.UpdatePageStats("t", 1, "id", [][]byte{b("c"), b("a"), b("b")})

	st, ok := m.Get("t", 1, "id")
	require.True(t, ok)
	assert.Equal(t, b("a"), st.Min)
	assert.Equal(t, b("c"), st.Max)
	assert.Equal(t, 3, st.RowCount)
	assert.False(t, st.HasNull)
}

func TestUpdatePageStatsTracksNullsSeparately(t *testing.T) {
	m := New()
	m.UpdatePageStats("t", 1, "id", [][]byte{b("a"), nil, b("b")})

	st, _ := m.Get("t", 1, "id")
	assert.True(t, st.HasNull)
	assert.Equal(t, 2, st.RowCount)
	assert.Equal(t, b("a"), st.Min)
	assert.Equal(t, b("b"), st.Max)
}

func TestCanSkipPageUnknownNeverSkips(t *testing.T) {
	assert.False(t, CanSkipPage(Stats{}, OpEQ, b("x")))
}

func TestCanSkipPageEQ(t *testing.T) {
	st := Stats{Min: b("b"), Max: b("d"), RowCount: 3}
	assert.True(t, CanSkipPage(st, OpEQ, b("a")))
	assert.True(t, CanSkipPage(st, OpEQ, b("e")))
	assert.False(t, CanSkipPage(st, OpEQ, b("c")))
}

func TestCanSkipPageComparisons(t *testing.T) {
	st := Stats{Min: b("b"), Max: b("d"), RowCount: 3}

	assert.True(t, CanSkipPage(st, OpLT, b("b")))  // all >= min
	assert.False(t, CanSkipPage(st, OpLT, b("c")))
	assert.True(t, CanSkipPage(st, OpLE, b("a")))
	assert.True(t, CanSkipPage(st, OpGT, b("d")))
	assert.False(t, CanSkipPage(st, OpGT, b("c")))
	assert.True(t, CanSkipPage(st, OpGE, b("e")))
}

func TestCanSkipPageNeverSkipsNE(t *testing.T) {
	st := Stats{Min: b("b"), Max: b("d"), RowCount: 3}
	assert.False(t, CanSkipPage(st, OpNE, b("c")))
}

func TestInvalidatePage(t *testing.T) {
	m := New()
	m.UpdatePageStats("t", 1, "id", [][]byte{b("a")})
	m.UpdatePageStats("t", 1, "name", [][]byte{b("x")})
	m.InvalidatePage("t", 1)

	_, ok := m.Get("t", 1, "id")
	assert.False(t, ok)
	_, ok = m.Get("t", 1, "name")
	assert.False(t, ok)
}

// TestZoneMapSkipsLowPagesUnderGreaterThanPredicate reproduces spec
// §8's literal zone-map scenario: 1000 pages, page p has column x
// ranging over [100p, 100p+99], and a "x > 50050" predicate skips
// exactly the pages whose max is at most 50050 and scans the rest.
func TestZoneMapSkipsLowPagesUnderGreaterThanPredicate(t *testing.T) {
	m := New()
	for p := uint32(0); p < 1000; p++ {
		m.UpdatePageStats("t", p, "x", [][]byte{u32(100 * p), u32(100*p + 99)})
	}

	threshold := u32(50050)
	for p := uint32(0); p < 1000; p++ {
		skip := m.CanSkipPageByKey("t", p, "x", OpGT, threshold)
		wantSkip := 100*p+99 <= 50050
		assert.Equal(t, wantSkip, skip, "page %d", p)
	}
}

func TestCanSkipPageByKey(t *testing.T) {
	m := New()
	m.UpdatePageStats("t", 1, "id", [][]byte{b("m")})
	assert.True(t, m.CanSkipPageByKey("t", 1, "id", OpEQ, b("z")))
	assert.False(t, m.CanSkipPageByKey("t", 2, "id", OpEQ, b("z")))
}
