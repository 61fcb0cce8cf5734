// Package ring provides fixed capacity circular buffers.
//
// Storage is always a power of two so indices wrap with a mask. One slot
// is kept free to tell a full buffer from an empty one, which makes the
// usable capacity one less than the storage size.
package ring

// NotFound is returned by Search when no buffered element matches.
const NotFound = -1

// Buffer is a circular byte buffer.
type Buffer struct {
	data []byte
	mask int
	head int
	tail int
}

// NewBuffer creates a Buffer holding at least size bytes.
func NewBuffer(size int) *Buffer {
	n := storageSize(size)
	return &Buffer{data: make([]byte, n), mask: n - 1}
}

// Cap returns the maximum number of buffered bytes.
func (b *Buffer) Cap() int {
	return b.mask
}

// Count returns the number of buffered bytes.
func (b *Buffer) Count() int {
	return (b.tail - b.head) & b.mask
}

// Available returns the free space in bytes.
func (b *Buffer) Available() int {
	return b.mask - b.Count()
}

// Empty reports whether nothing is buffered.
func (b *Buffer) Empty() bool {
	return b.head == b.tail
}

// Full reports whether no more bytes can be enqueued.
func (b *Buffer) Full() bool {
	return ((b.tail + 1) & b.mask) == b.head
}

// Clear drops all buffered bytes.
func (b *Buffer) Clear() {
	b.head, b.tail = 0, 0
}

// Enqueue appends a byte. It returns false when the buffer is full.
func (b *Buffer) Enqueue(v byte) bool {
	if b.Full() {
		return false
	}
	b.data[b.tail] = v
	b.tail = (b.tail + 1) & b.mask
	return true
}

// EnqueueSlice appends all of p, or nothing if p doesn't fit.
func (b *Buffer) EnqueueSlice(p []byte) bool {
	if len(p) > b.Available() {
		return false
	}
	for _, v := range p {
		b.data[b.tail] = v
		b.tail = (b.tail + 1) & b.mask
	}
	return true
}

// Dequeue removes and returns the oldest byte.
func (b *Buffer) Dequeue() (byte, bool) {
	if b.Empty() {
		return 0, false
	}
	v := b.data[b.head]
	b.head = (b.head + 1) & b.mask
	return v, true
}

// DequeueSlice moves up to len(p) bytes into p and returns the count.
func (b *Buffer) DequeueSlice(p []byte) int {
	n := b.Count()
	if n > len(p) {
		n = len(p)
	}
	for i := 0; i < n; i++ {
		p[i] = b.data[b.head]
		b.head = (b.head + 1) & b.mask
	}
	return n
}

// Peek returns the byte at offset from the oldest one without removing it.
func (b *Buffer) Peek(offset int) (byte, bool) {
	if offset < 0 || offset >= b.Count() {
		return 0, false
	}
	return b.data[(b.head+offset)&b.mask], true
}

// Search returns the offset of the first byte equal to v, or NotFound.
func (b *Buffer) Search(v byte) int {
	return b.SearchFrom(v, 0)
}

// SearchFrom is Search starting at offset.
func (b *Buffer) SearchFrom(v byte, offset int) int {
	if offset < 0 {
		offset = 0
	}
	for i, n := offset, b.Count(); i < n; i++ {
		if b.data[(b.head+i)&b.mask] == v {
			return i
		}
	}
	return NotFound
}

// Remove drops the n oldest bytes. Nothing is removed and false is
// returned if fewer than n bytes are buffered.
func (b *Buffer) Remove(n int) bool {
	if n < 0 || n > b.Count() {
		return false
	}
	b.head = (b.head + n) & b.mask
	return true
}

func storageSize(size int) int {
	n := 2
	for n < size+1 {
		n <<= 1
	}
	return n
}
