package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitIntoChunks(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	chunks := SplitIntoChunks(items, 10)
	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 10)
	assert.Len(t, chunks[1], 10)
	assert.Len(t, chunks[2], 5)

	// Order is preserved across chunk boundaries
	assert.Equal(t, 0, chunks[0][0])
	assert.Equal(t, 10, chunks[1][0])
	assert.Equal(t, 24, chunks[2][4])
}

func TestSplitIntoChunksExactMultiple(t *testing.T) {
	chunks := SplitIntoChunks([]string{"a", "b", "c", "d"}, 2)
	assert.Len(t, chunks, 2)
	assert.Equal(t, []string{"a", "b"}, chunks[0])
	assert.Equal(t, []string{"c", "d"}, chunks[1])
}

func TestSplitIntoChunksSmallInput(t *testing.T) {
	chunks := SplitIntoChunks([]string{"a"}, 10)
	assert.Len(t, chunks, 1)
	assert.Equal(t, []string{"a"}, chunks[0])
}

func TestSplitIntoChunksEmpty(t *testing.T) {
	assert.Empty(t, SplitIntoChunks([]string{}, 10))
	assert.Nil(t, SplitIntoChunks([]string{"a"}, 0))
}

func TestDedupeSelection(t *testing.T) {
	ids := []string{"a", "b", "a", "c", "b"}
	assert.Equal(t, []string{"a", "b", "c"}, DedupeSelection(ids))
}
