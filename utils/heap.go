package utils

import "golang.org/x/exp/constraints"

// Heap is a plain binary min-heap over an ordered element type.
// Used by the sorted-union merges to zip k sorted entry streams.
type Heap[T constraints.Ordered] struct {
	buf []T
}

func (h *Heap[T]) Len() int {
	return len(h.buf)
}

// Push pushes the element x onto the heap, O(log n).
func (h *Heap[T]) Push(x T) {
	h.buf = append(h.buf, x)
	j := len(h.buf) - 1
	for {
		i := (j - 1) / 2
		if i == j || !(h.buf[j] < h.buf[i]) {
			break
		}
		h.buf[i], h.buf[j] = h.buf[j], h.buf[i]
		j = i
	}
}

// Pop removes and returns the minimum element, O(log n).
func (h *Heap[T]) Pop() (min T) {
	min = h.buf[0]
	n := len(h.buf) - 1
	h.buf[0], h.buf[n] = h.buf[n], h.buf[0]
	h.buf = h.buf[:n]
	h.down(0)
	return
}

func (h *Heap[T]) down(i int) {
	n := len(h.buf)
	for {
		j := 2*i + 1
		if j >= n || j < 0 {
			break
		}
		if j2 := j + 1; j2 < n && h.buf[j2] < h.buf[j] {
			j = j2
		}
		if !(h.buf[j] < h.buf[i]) {
			break
		}
		h.buf[i], h.buf[j] = h.buf[j], h.buf[i]
		i = j
	}
}
