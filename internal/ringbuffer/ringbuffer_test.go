package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushWithinCapacity(t *testing.T) {
	rb := New[int](4)
	rb.Push(1)
	rb.Push(2)
	rb.Push(3)

	samples, cursor, dropped := rb.SnapshotSince(Cursor{})
	assert.Equal(t, []int{1, 2, 3}, samples)
	assert.Zero(t, dropped)
	assert.EqualValues(t, 0, rb.Dropped())

	more, _, dropped2 := rb.SnapshotSince(cursor)
	assert.Empty(t, more)
	assert.Zero(t, dropped2)
}

func TestOverflowIncrementsDroppedOncePerOverwrite(t *testing.T) {
	rb := New[int](3)
	for i := 1; i <= 5; i++ {
		rb.Push(i)
	}

	require.EqualValues(t, 2, rb.Dropped(), "pushing 5 into capacity 3 overwrites exactly 2")

	samples, _, _ := rb.SnapshotSince(Cursor{})
	assert.Equal(t, []int{3, 4, 5}, samples, "snapshot reflects only the surviving window")
	assert.LessOrEqual(t, len(samples), rb.Capacity())
}

func TestSnapshotSinceAdvancesCursor(t *testing.T) {
	rb := New[int](10)
	rb.Push(1)
	rb.Push(2)

	first, cursor, _ := rb.SnapshotSince(Cursor{})
	assert.Equal(t, []int{1, 2}, first)

	rb.Push(3)
	second, _, dropped := rb.SnapshotSince(cursor)
	assert.Equal(t, []int{3}, second)
	assert.Zero(t, dropped)
}

func TestSnapshotSinceReportsDropsPastCursor(t *testing.T) {
	rb := New[int](2)
	rb.Push(1)
	_, cursor, _ := rb.SnapshotSince(Cursor{})

	// Overflow the buffer completely without reading — the cursor now
	// points somewhere that's been overwritten.
	rb.Push(2)
	rb.Push(3)
	rb.Push(4)

	samples, _, dropped := rb.SnapshotSince(cursor)
	assert.Equal(t, []int{3, 4}, samples)
	assert.Positive(t, dropped)
}

func TestEmittedPlusDroppedEqualsTotalPushes(t *testing.T) {
	rb := New[int](5)
	const n = 37
	for i := 0; i < n; i++ {
		rb.Push(i)
	}

	samples, _, _ := rb.SnapshotSince(Cursor{})
	assert.EqualValues(t, n, len(samples)+int(rb.Dropped()))
	assert.EqualValues(t, n, rb.Total())
}

func TestPushBatchPreservesOrder(t *testing.T) {
	rb := New[int](10)
	rb.PushBatch([]int{1, 2, 3, 4})

	samples, _, _ := rb.SnapshotSince(Cursor{})
	assert.Equal(t, []int{1, 2, 3, 4}, samples)
}

func TestNewPanicsOnNonPositiveCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
	assert.Panics(t, func() { New[int](-1) })
}
