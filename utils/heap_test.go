package utils

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeapOrders(t *testing.T) {
	h := Heap[uint64]{}
	input := make([]uint64, 0, 256)
	for i := 0; i < 256; i++ {
		v := rand.Uint64()
		input = append(input, v)
		h.Push(v)
	}
	sort.Slice(input, func(i, j int) bool { return input[i] < input[j] })
	for _, want := range input {
		assert.Equal(t, want, h.Pop())
	}
	assert.Equal(t, 0, h.Len())
}

func TestHeapDuplicates(t *testing.T) {
	h := Heap[string]{}
	for _, s := range []string{"b", "a", "b", "a"} {
		h.Push(s)
	}
	assert.Equal(t, "a", h.Pop())
	assert.Equal(t, "a", h.Pop())
	assert.Equal(t, "b", h.Pop())
	assert.Equal(t, "b", h.Pop())
}
