package page

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invariants(t *testing.T, p *Page) {
	t.Helper()
	assert.LessOrEqual(t, p.freeSpaceStart(), p.freeSpaceEnd())
	assert.Equal(t, uint16(Size)-p.SlotCount()*slotSize, p.freeSpaceEnd())
	p.UpdateChecksum()
	assert.True(t, p.VerifyChecksum())
}

func TestPageInsertGetDelete(t *testing.T) {
	p := New(1, TypeData)
	invariants(t, p)

	slot, err := p.InsertRecord([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, uint16(0), slot)
	assert.Equal(t, []byte("hello"), p.GetRecord(slot))
	invariants(t, p)

	require.NoError(t, p.DeleteRecord(slot))
	assert.Nil(t, p.GetRecord(slot))
	assert.True(t, p.IsTombstoned(slot))
}

func TestPageUpdateInPlaceAndGrow(t *testing.T) {
	p := New(1, TypeData)
	slot, err := p.InsertRecord([]byte("abcdef"))
	require.NoError(t, err)

	// shrink: in place
	require.NoError(t, p.UpdateRecord(slot, []byte("ab")))
	assert.Equal(t, []byte("ab"), p.GetRecord(slot))
	invariants(t, p)

	// grow past original length: tombstone + append, slot preserved
	require.NoError(t, p.UpdateRecord(slot, []byte("abcdefghij")))
	assert.Equal(t, []byte("abcdefghij"), p.GetRecord(slot))
	assert.Equal(t, uint16(1), p.SlotCount())
	invariants(t, p)
}

func TestPageCompactPreservesSlots(t *testing.T) {
	p := New(1, TypeData)
	s0, _ := p.InsertRecord([]byte("aaaa"))
	s1, _ := p.InsertRecord([]byte("bbbbbb"))
	s2, _ := p.InsertRecord([]byte("cc"))
	require.NoError(t, p.DeleteRecord(s1))

	p.Compact()
	invariants(t, p)

	assert.Equal(t, []byte("aaaa"), p.GetRecord(s0))
	assert.Nil(t, p.GetRecord(s1))
	assert.Equal(t, []byte("cc"), p.GetRecord(s2))
	assert.Equal(t, uint16(3), p.SlotCount())
}

func TestPageBoundaryInsert(t *testing.T) {
	p := New(1, TypeData)
	free := p.FreeSpace()
	exact := make([]byte, free-slotSize)
	_, err := p.InsertRecord(exact)
	require.NoError(t, err)
	assert.Equal(t, 0, p.FreeSpace())

	p2 := New(1, TypeData)
	tooBig := make([]byte, p2.FreeSpace()-slotSize+1)
	_, err = p2.InsertRecord(tooBig)
	assert.ErrorIs(t, err, ErrFull)
}

func TestPageRoundTripBytes(t *testing.T) {
	p := New(7, TypeIndex)
	slot, _ := p.InsertRecord([]byte("payload"))
	p.UpdateChecksum()

	p2 := FromBytes(p.Bytes())
	assert.True(t, p2.VerifyChecksum())
	assert.Equal(t, p.ID(), p2.ID())
	assert.Equal(t, p.Type(), p2.Type())
	assert.Equal(t, []byte("payload"), p2.GetRecord(slot))
}

func TestManagerAllocateReadWrite(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir+"/t1.dat", true)
	require.NoError(t, err)
	defer m.Close()

	p, err := m.Allocate(TypeData)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), p.ID())

	slot, err := p.InsertRecord([]byte("row"))
	require.NoError(t, err)
	require.NoError(t, m.Write(p))
	assert.False(t, p.IsDirty())

	got, err := m.Read(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("row"), got.GetRecord(slot))
}

func TestManagerReadOutOfRange(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir+"/t2.dat", true)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Read(1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestManagerReadCorrupted(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir+"/t3.dat", true)
	require.NoError(t, err)
	p, err := m.Allocate(TypeData)
	require.NoError(t, err)
	require.NoError(t, m.Write(p))
	m.Close()

	// Tear the page on disk directly.
	f, err := os.OpenFile(dir+"/t3.dat", os.O_RDWR, 0644)
	require.NoError(t, err)
	zero := make([]byte, Size)
	_, err = f.WriteAt(zero, int64(HeaderSize))
	require.NoError(t, err)
	f.Close()

	m2, err := Open(dir+"/t3.dat", false)
	require.NoError(t, err)
	defer m2.Close()
	_, err = m2.Read(1)
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestManagerReadAhead(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir+"/t4.dat", true)
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 5; i++ {
		p, err := m.Allocate(TypeData)
		require.NoError(t, err)
		require.NoError(t, m.Write(p))
	}

	pages, err := m.ReadAhead(1, 5)
	require.NoError(t, err)
	require.Len(t, pages, 5)
	for i, p := range pages {
		assert.Equal(t, uint32(i+1), p.ID())
	}
}
