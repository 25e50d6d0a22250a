package multifile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cydb/storage/pkg/page"
)

func newTestGroup(t *testing.T, policy Policy, nFiles int) *Group {
	t.Helper()
	dir := t.TempDir()
	g := NewGroup("testgroup", policy)
	for i := 0; i < nFiles; i++ {
		require.NoError(t, g.AddFile(filepath.Join(dir, filepathName(i)), true))
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func filepathName(i int) string {
	return "f" + string(rune('0'+i)) + ".dat"
}

func TestGlobalIDRoundTrip(t *testing.T) {
	id := encodeGlobalID(3, 12345)
	fileID, local := decodeGlobalID(id)
	assert.Equal(t, uint8(3), fileID)
	assert.Equal(t, uint32(12345), local)
}

func TestAllocateReadWriteRoundTrip(t *testing.T) {
	g := newTestGroup(t, ProportionalFill, 2)
	p, err := g.Allocate(page.TypeData)
	require.NoError(t, err)
	global := p.ID()

	_, err = p.InsertRecord([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, g.Write(p))

	got, err := g.Read(global)
	require.NoError(t, err)
	assert.Equal(t, global, got.ID())
	assert.Equal(t, []byte("hello"), got.GetRecord(0))
}

func TestProportionalFillPicksEmptiestFile(t *testing.T) {
	g := newTestGroup(t, ProportionalFill, 2)
	for i := 0; i < 3; i++ {
		_, err := g.Allocate(page.TypeData)
		require.NoError(t, err)
	}
	assert.Equal(t, uint32(3), g.PageCount())
	assert.ElementsMatch(t, []uint32{2, 1}, []uint32{g.files[0].allocatedPages(), g.files[1].allocatedPages()})
}

func TestRoundRobinAlternatesFiles(t *testing.T) {
	g := newTestGroup(t, RoundRobin, 2)
	var fileIDs []uint8
	for i := 0; i < 4; i++ {
		p, err := g.Allocate(page.TypeData)
		require.NoError(t, err)
		fid, _ := decodeGlobalID(p.ID())
		fileIDs = append(fileIDs, fid)
	}
	assert.Equal(t, []uint8{0, 1, 0, 1}, fileIDs)
}

func TestRemoveFileRefusesWhileAllocated(t *testing.T) {
	g := newTestGroup(t, RoundRobin, 2)
	_, err := g.Allocate(page.TypeData)
	require.NoError(t, err)
	err = g.RemoveFile(0)
	assert.ErrorIs(t, err, ErrFileNotEmpty)
}

func TestRemoveFileSucceedsWhenEmpty(t *testing.T) {
	g := newTestGroup(t, RoundRobin, 2)
	require.NoError(t, g.RemoveFile(0))
	assert.Equal(t, 1, g.FileCount())
}

func TestReadFanOutGathersInOrder(t *testing.T) {
	g := newTestGroup(t, Striped, 3)
	var globals []uint32
	for i := 0; i < 6; i++ {
		p, err := g.Allocate(page.TypeData)
		require.NoError(t, err)
		_, err = p.InsertRecord([]byte{byte(i)})
		require.NoError(t, err)
		require.NoError(t, g.Write(p))
		globals = append(globals, p.ID())
	}

	pages, err := g.ReadFanOut(globals)
	require.NoError(t, err)
	require.Len(t, pages, 6)
	for i, p := range pages {
		assert.Equal(t, []byte{byte(i)}, p.GetRecord(0))
	}
}

func TestStatsTrackReadsAndWrites(t *testing.T) {
	g := newTestGroup(t, ProportionalFill, 1)
	p, err := g.Allocate(page.TypeData)
	require.NoError(t, err)
	require.NoError(t, g.Write(p))
	_, err = g.Read(p.ID())
	require.NoError(t, err)

	stats := g.Stats()
	require.Contains(t, stats, uint8(0))
	assert.GreaterOrEqual(t, stats[0].Writes, uint64(1))
	assert.GreaterOrEqual(t, stats[0].Reads, uint64(1))
}

func TestUnknownFileIDReturnsError(t *testing.T) {
	g := newTestGroup(t, ProportionalFill, 1)
	_, err := g.Read(encodeGlobalID(9, 1))
	assert.ErrorIs(t, err, ErrUnknownFile)
}

func TestAllocateOnEmptyGroupFails(t *testing.T) {
	g := NewGroup("empty", ProportionalFill)
	_, err := g.Allocate(page.TypeData)
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestIOQueueCompletesSubmittedTasks(t *testing.T) {
	q := newIOQueue(1)
	defer q.close()

	first := make(chan struct{})
	done1 := q.submit(Normal, func() error {
		close(first)
		<-first
		return nil
	})
	done2 := q.submit(Normal, func() error { return nil })

	require.NoError(t, <-done1)
	require.NoError(t, <-done2)
}
