package ring

// Queue is a circular buffer of fixed-size records.
type Queue[T any] struct {
	items []T
	mask  int
	head  int
	tail  int
}

// NewQueue creates a Queue holding at least size records.
func NewQueue[T any](size int) *Queue[T] {
	n := storageSize(size)
	return &Queue[T]{items: make([]T, n), mask: n - 1}
}

// Cap returns the maximum number of queued records.
func (q *Queue[T]) Cap() int {
	return q.mask
}

// Count returns the number of queued records.
func (q *Queue[T]) Count() int {
	return (q.tail - q.head) & q.mask
}

// Available returns the number of records that can still be enqueued.
func (q *Queue[T]) Available() int {
	return q.mask - q.Count()
}

// Empty reports whether the queue has no records.
func (q *Queue[T]) Empty() bool {
	return q.head == q.tail
}

// Full reports whether the queue is at capacity.
func (q *Queue[T]) Full() bool {
	return ((q.tail + 1) & q.mask) == q.head
}

// Clear drops all records.
func (q *Queue[T]) Clear() {
	var zero T
	for i := range q.items {
		q.items[i] = zero
	}
	q.head, q.tail = 0, 0
}

// Enqueue copies v into the queue. It returns false when full.
func (q *Queue[T]) Enqueue(v T) bool {
	if q.Full() {
		return false
	}
	q.items[q.tail] = v
	q.tail = (q.tail + 1) & q.mask
	return true
}

// Dequeue removes and returns the oldest record.
func (q *Queue[T]) Dequeue() (v T, ok bool) {
	if q.Empty() {
		return v, false
	}
	var zero T
	v, q.items[q.head] = q.items[q.head], zero
	q.head = (q.head + 1) & q.mask
	return v, true
}

// Peek returns the record at offset from the oldest one.
func (q *Queue[T]) Peek(offset int) (v T, ok bool) {
	if offset < 0 || offset >= q.Count() {
		return v, false
	}
	return q.items[(q.head+offset)&q.mask], true
}
