package mvcc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cydb/storage/pkg/value"
)

func TestRowIDRoundTrip(t *testing.T) {
	id := RowID{PageID: 42, Slot: 7}
	buf := id.Encode()
	got := DecodeRowID(buf[:])
	assert.Equal(t, id, got)
}

func TestRowIDInvalidSentinel(t *testing.T) {
	assert.False(t, Invalid.IsValid())
	assert.True(t, (RowID{PageID: 1, Slot: 0}).IsValid())
}

func TestRollPtrRoundTrip(t *testing.T) {
	p := RollPtr{Segment: 3, Page: 1000, Offset: 55}
	buf := p.Encode()
	got := DecodeRollPtr(buf[:])
	assert.Equal(t, p, got)
	assert.True(t, p.IsValid())
	assert.False(t, InvalidRollPtr.IsValid())
}

func cols() []ColumnSpec {
	return []ColumnSpec{
		{Type: value.TypeInt32},
		{Type: value.TypeVarChar},
	}
}

func TestRowEncodeDecodeRoundTrip(t *testing.T) {
	r := Row{
		ID:      RowID{PageID: 1, Slot: 0},
		TrxID:   100,
		RollPtr: RollPtr{Segment: 1, Page: 2, Offset: 3},
		Flags:   0,
		Values:  []value.Value{value.Int32(42), value.VarChar("alice")},
	}
	raw, err := Encode(r, cols())
	require.NoError(t, err)

	got, err := Decode(raw, cols(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.TrxID, got.TrxID)
	assert.Equal(t, r.RollPtr, got.RollPtr)
	assert.Equal(t, r.Flags, got.Flags)
	assert.False(t, got.Deleted())
	require.Len(t, got.Values, 2)
	assert.True(t, r.Values[0].Equal(got.Values[0]))
	assert.True(t, r.Values[1].Equal(got.Values[1]))
}

func TestRowEncodeDecodePreservesDeletedFlagAndNulls(t *testing.T) {
	r := Row{
		TrxID:   5,
		RollPtr: InvalidRollPtr,
		Flags:   FlagDeleted,
		Values:  []value.Value{value.Null(), value.VarChar("x")},
	}
	raw, err := Encode(r, cols())
	require.NoError(t, err)

	got, err := Decode(raw, cols(), RowID{})
	require.NoError(t, err)
	assert.True(t, got.Deleted())
	assert.True(t, got.Values[0].IsNull())
	assert.False(t, got.Values[1].IsNull())
}

func TestLegacyRoundTrip(t *testing.T) {
	values := []value.Value{value.Int32(7), value.Null()}
	raw, err := EncodeLegacy(values, cols())
	require.NoError(t, err)

	got, err := DecodeLegacy(raw, cols())
	require.NoError(t, err)
	assert.True(t, values[0].Equal(got[0]))
	assert.True(t, got[1].IsNull())
}

// TestReadViewScenario matches spec §8 end-to-end scenario 4 exactly.
func TestReadViewScenario(t *testing.T) {
	active := map[uint64]struct{}{11: {}, 12: {}}
	v := CreateReadView(active, 14, 13)

	assert.Equal(t, uint64(11), v.MinActive)
	assert.Equal(t, uint64(14), v.MaxTrx)
	assert.Equal(t, uint64(13), v.Creator)
	_, stillActive := v.Active[13]
	assert.False(t, stillActive)

	for _, id := range []uint64{0, 9, 10, 13} {
		assert.True(t, v.Visible(id), "trx %d should be visible", id)
	}
	for _, id := range []uint64{11, 12, 14, 15} {
		assert.False(t, v.Visible(id), "trx %d should not be visible", id)
	}
}

func TestCreateReadViewEmptyActive(t *testing.T) {
	v := CreateReadView(map[uint64]struct{}{}, 5, 5)
	assert.Equal(t, uint64(5), v.MinActive)
	assert.Equal(t, uint64(5), v.MaxTrx)
}

func TestIsRowVisibleHidesOwnDeletion(t *testing.T) {
	v := CreateReadView(map[uint64]struct{}{}, 10, 5)
	r := Row{TrxID: 5, Flags: FlagDeleted}
	assert.False(t, v.IsRowVisible(r))
}

func TestIsRowVisibleShowsLiveRow(t *testing.T) {
	v := CreateReadView(map[uint64]struct{}{}, 10, 5)
	r := Row{TrxID: 2, Flags: 0}
	assert.True(t, v.IsRowVisible(r))
}
