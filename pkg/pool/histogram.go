package pool

import "sync"

// histogram keeps the most recent check-out times in a circular buffer.
// Once full, each add overwrites the oldest sample.
type histogram struct {
	mu       sync.Mutex
	capacity int
	buf      []int64
	start    int
	n        int
}

func newHistogram(capacity int) *histogram {
	return &histogram{capacity: capacity}
}

func (h *histogram) add(v int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.buf == nil {
		h.buf = make([]int64, h.capacity)
	}
	if h.n < h.capacity {
		h.buf[(h.start+h.n)%h.capacity] = v
		h.n++
		return
	}
	h.buf[h.start] = v
	h.start = (h.start + 1) % h.capacity
}

// values returns the samples oldest first
func (h *histogram) values() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]int64, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%h.capacity]
	}
	return out
}

func (h *histogram) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n
}

// drain summarizes the samples and clears them.
func (h *histogram) drain() (count int, avg, minimum, maximum int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.n == 0 {
		return 0, 0, 0, 0
	}

	var sum int64
	for i := 0; i < h.n; i++ {
		v := h.buf[(h.start+i)%h.capacity]
		if i == 0 || v < minimum {
			minimum = v
		}
		if i == 0 || v > maximum {
			maximum = v
		}
		sum += v
	}
	count = h.n
	avg = sum / int64(count)

	h.start, h.n = 0, 0
	return count, avg, minimum, maximum
}

func (h *histogram) reset() {
	h.mu.Lock()
	h.start, h.n = 0, 0
	h.mu.Unlock()
}
