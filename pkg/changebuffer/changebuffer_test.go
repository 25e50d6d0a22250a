package changebuffer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferChangeAndGetAndRemovePreservesOrder(t *testing.T) {
	b := New(1024, 0.7)
	b.BufferChange(Change{SpaceID: 1, PageNo: 5, Op: OpInsert, Key: []byte("a"), Value: []byte("1")})
	b.BufferChange(Change{SpaceID: 1, PageNo: 5, Op: OpUpdate, Key: []byte("a"), Value: []byte("2")})
	b.BufferChange(Change{SpaceID: 1, PageNo: 6, Op: OpInsert, Key: []byte("z"), Value: []byte("9")})

	assert.True(t, b.HasChanges(1, 5))
	changes := b.GetAndRemove(1, 5)
	require.Len(t, changes, 2)
	assert.Equal(t, OpInsert, changes[0].Op)
	assert.Equal(t, OpUpdate, changes[1].Op)
	assert.False(t, b.HasChanges(1, 5))
	assert.True(t, b.HasChanges(1, 6))
}

func TestByteCountTracksBufferAndRemove(t *testing.T) {
	b := New(1024, 0.7)
	b.BufferChange(Change{SpaceID: 1, PageNo: 1, Key: []byte("abc"), Value: []byte("defg")})
	assert.Equal(t, 7, b.ByteCount())

	b.GetAndRemove(1, 1)
	assert.Equal(t, 0, b.ByteCount())
}

func TestFullAndShouldMerge(t *testing.T) {
	b := New(10, 0.5)
	assert.False(t, b.Full())
	assert.False(t, b.ShouldMerge())

	b.BufferChange(Change{SpaceID: 1, PageNo: 1, Key: []byte("12345"), Value: nil})
	assert.True(t, b.ShouldMerge()) // 5/10 >= 0.5
	assert.False(t, b.Full())

	b.BufferChange(Change{SpaceID: 1, PageNo: 2, Key: []byte("12345"), Value: nil})
	assert.True(t, b.Full())
}

func TestDrainAllClearsEverything(t *testing.T) {
	b := New(1024, 0.7)
	b.BufferChange(Change{SpaceID: 1, PageNo: 1, Key: []byte("a")})
	b.BufferChange(Change{SpaceID: 2, PageNo: 9, Key: []byte("b")})

	drained := b.DrainAll()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, b.ByteCount())
	assert.False(t, b.HasChanges(1, 1))
	assert.False(t, b.HasChanges(2, 9))
}

// TestChangeBufferMergesTwoInsertsForAbsentPage reproduces spec §8's
// literal change-buffer scenario: two Insert changes buffered for
// page 42 of one (table, index) target while the page is absent;
// GetAndRemove, the call the buffer pool makes when it loads a page,
// returns exactly those two entries in insertion order and leaves the
// buffer empty for that target.
func TestChangeBufferMergesTwoInsertsForAbsentPage(t *testing.T) {
	const spaceID, pageNo = 7, 42
	b := New(4096, 0.7)

	b.BufferChange(Change{SpaceID: spaceID, PageNo: pageNo, Op: OpInsert, Key: []byte("k1"), Value: []byte("v1")})
	b.BufferChange(Change{SpaceID: spaceID, PageNo: pageNo, Op: OpInsert, Key: []byte("k2"), Value: []byte("v2")})

	require.True(t, b.HasChanges(spaceID, pageNo))

	changes := b.GetAndRemove(spaceID, pageNo)
	require.Len(t, changes, 2)
	assert.Equal(t, []byte("k1"), changes[0].Key)
	assert.Equal(t, []byte("k2"), changes[1].Key)

	assert.False(t, b.HasChanges(spaceID, pageNo))
}

func TestAutoMergeRebuffersOnFailure(t *testing.T) {
	b := New(1024, 0.7)
	b.BufferChange(Change{SpaceID: 1, PageNo: 1, Key: []byte("ok")})
	b.BufferChange(Change{SpaceID: 2, PageNo: 2, Key: []byte("bad")})

	boom := errors.New("merge failed")
	err := b.AutoMerge(func(spaceID, pageNo uint32, changes []Change) error {
		if spaceID == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, b.HasChanges(1, 1))
	assert.True(t, b.HasChanges(2, 2))
}
