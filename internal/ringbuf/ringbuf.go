// Package ringbuf provides a fixed-capacity, newest-first rolling window.
//
// Window backs every indicator that looks at the last N candles. Index 0 is
// always the most recently pushed value; once full, each push evicts the
// single oldest value. It is not safe for concurrent use: a window belongs to
// the one goroutine that drains a symbol's event stream.
package ringbuf

// Window is a newest-first ring of at most Cap() values.
type Window[T any] struct {
	buf  []T
	head int // next write position
	n    int
}

// New creates a window. Capacities below 1 are raised to 1.
func New[T any](capacity int) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[T]{buf: make([]T, capacity)}
}

// Push inserts v as the newest value. When the window was already full the
// evicted oldest value is returned with ok=true.
func (w *Window[T]) Push(v T) (evicted T, ok bool) {
	if w.n == len(w.buf) {
		evicted, ok = w.buf[w.head], true
	} else {
		w.n++
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	return evicted, ok
}

// At returns the value i pushes ago (0 = newest). It panics when i is out of
// range, like a slice index.
func (w *Window[T]) At(i int) T {
	if i < 0 || i >= w.n {
		panic("ringbuf: index out of range")
	}
	return w.buf[w.pos(i)]
}

// Newest returns the most recent value, or false when empty.
func (w *Window[T]) Newest() (T, bool) {
	if w.n == 0 {
		var zero T
		return zero, false
	}
	return w.At(0), true
}

// Oldest returns the least recent value, or false when empty.
func (w *Window[T]) Oldest() (T, bool) {
	if w.n == 0 {
		var zero T
		return zero, false
	}
	return w.At(w.n - 1), true
}

// Slice copies the values at newest-first indices [from, to) into a new slice.
func (w *Window[T]) Slice(from, to int) []T {
	if from < 0 {
		from = 0
	}
	if to > w.n {
		to = w.n
	}
	if from >= to {
		return nil
	}
	out := make([]T, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, w.buf[w.pos(i)])
	}
	return out
}

// Values copies every value, newest first.
func (w *Window[T]) Values() []T {
	return w.Slice(0, w.n)
}

// Len returns the number of values held.
func (w *Window[T]) Len() int { return w.n }

// Cap returns the capacity.
func (w *Window[T]) Cap() int { return len(w.buf) }

// Full reports whether Len() == Cap().
func (w *Window[T]) Full() bool { return w.n == len(w.buf) }

// Reset empties the window without reallocating.
func (w *Window[T]) Reset() {
	var zero T
	for i := range w.buf {
		w.buf[i] = zero
	}
	w.head, w.n = 0, 0
}

func (w *Window[T]) pos(i int) int {
	return (w.head - 1 - i + 2*len(w.buf)) % len(w.buf)
}
