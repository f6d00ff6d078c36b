package types

// minQueueLen is smallest capacity that queue may have.
// Must be power of 2 for bitwise modulus: x % n == x & (n - 1).
const minQueueLen = 16

// Queue represents a single instance of the ring buffer FIFO.
// Queue is not safe for concurrent use, owner must serialize access
type Queue[T any] struct {
	buf   []T
	head  int
	tail  int
	count int
}

// NewQueue constructs and returns a new Queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		buf: make([]T, minQueueLen),
	}
}

// Length returns the number of elements currently stored in the queue.
func (q *Queue[T]) Length() int {
	return q.count
}

// resize the queue to fit exactly twice its current contents
// this can result in shrinking if the queue is less than half-full
func (q *Queue[T]) resize() {
	size := q.count << 1
	if size < minQueueLen {
		size = minQueueLen
	}

	newBuf := make([]T, size)

	if q.tail > q.head {
		copy(newBuf, q.buf[q.head:q.tail])
	} else if q.count > 0 {
		n := copy(newBuf, q.buf[q.head:])
		copy(newBuf[n:], q.buf[:q.tail])
	}

	q.head = 0
	q.tail = q.count
	q.buf = newBuf
}

// Add puts an element on the end of the queue.
func (q *Queue[T]) Add(elem T) {
	if q.count == len(q.buf) {
		q.resize()
	}

	q.buf[q.tail] = elem
	// bitwise modulus
	q.tail = (q.tail + 1) & (len(q.buf) - 1)
	q.count++
}

// PushFront puts an element at the head of the queue.
func (q *Queue[T]) PushFront(elem T) {
	if q.count == len(q.buf) {
		q.resize()
	}

	q.head = (q.head - 1 + len(q.buf)) & (len(q.buf) - 1)
	q.buf[q.head] = elem
	q.count++
}

// Peek returns the element at the head of the queue.
func (q *Queue[T]) Peek() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}

	return q.buf[q.head], true
}

// Get returns the element at index i in the queue. If the index is
// invalid, the call will panic. This method accepts both positive and
// negative index values. Index 0 refers to the first element, and
// index -1 refers to the last.
func (q *Queue[T]) Get(i int) T {
	// If indexing backwards, convert to positive index.
	if i < 0 {
		i += q.count
	}

	if i < 0 || i >= q.count {
		panic("queue: Get() called with index out of range")
	}

	// bitwise modulus
	return q.buf[(q.head+i)&(len(q.buf)-1)]
}

// Remove removes and returns the element from the front of the queue.
func (q *Queue[T]) Remove() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}

	ret := q.buf[q.head]
	q.buf[q.head] = zero
	// bitwise modulus
	q.head = (q.head + 1) & (len(q.buf) - 1)
	q.count--

	// Resize down if buffer 1/4 full.
	if len(q.buf) > minQueueLen && (q.count<<2) == len(q.buf) {
		q.resize()
	}

	return ret, true
}

// Clear drops all elements
func (q *Queue[T]) Clear() {
	q.buf = make([]T, minQueueLen)
	q.head = 0
	q.tail = 0
	q.count = 0
}
