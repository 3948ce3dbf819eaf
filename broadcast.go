// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spbq

import (
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// Queue is a bounded single-producer broadcast queue.
//
// One publisher goroutine appends to a power-of-two ring; every
// subscribed reader walks the same ring with its own cursor and
// observes the entire stream. The publisher is gated by the slowest
// currently subscribed reader: Enqueue fails with ErrWouldBlock when
// overwriting the next slot would destroy an item some reader has not
// committed past, and also when no reader is subscribed at all.
//
// The publisher keeps a cached minimum of the readers' committed
// indexes and rescans the reader table only when that cache says the
// ring may be full, so the hot publish path is O(1). Readers commit
// their progress in batches of capacity/readerBatch items, trading up
// to one batch of apparent extra backpressure for far fewer cross-core
// writes.
//
// Memory: capacity+2·pad slots plus one padded cursor record per
// potential reader.
type Queue[T any] struct {
	_            pad
	writeIdx     atomix.Uint64 // Publisher stores release, readers load acquire
	_            padShort
	minReadCache uint64 // Publisher-local min of committed read indexes
	_            padShort
	subLock      atomix.Bool // Guards the occupancy scan only
	_            pad
	readers      []readerCursor
	buffer       []T // padded backing store from the allocator
	slots        []T // buffer[pad : pad+capacity]
	mask         uint64
	batchMask    uint64 // itemsPerBatch - 1
	capacity     uint64
	alloc        Allocator[T]
}

// readerCursor is one subscription slot.
//
// readIdx is the only field shared across goroutines on the hot path:
// the owning reader stores it with release ordering, the publisher
// loads it with acquire ordering. localIdx and writeCache belong to the
// owning reader alone. Subscribe and Unsubscribe touch all three under
// subLock; occupancy is judged by readIdx == unoccupied so the scan
// never races the owner's plain fields.
type readerCursor struct {
	readIdx    atomix.Uint64
	_          padShort
	localIdx   uint64 // Owner-local true read index
	writeCache uint64 // Owner-local cached view of writeIdx
	_          padPair
}

// NewQueue creates a broadcast queue with default configuration:
// reader batch 4, max readers 1, heap-allocated slots.
// Capacity rounds up to the next power of 2 with a floor of 16.
//
// Panics if capacity < 2.
func NewQueue[T any](capacity int) *Queue[T] {
	return Build[T](New(capacity))
}

// NewQueueWith creates a broadcast queue with default configuration
// backed by the given bulk allocator.
func NewQueueWith[T any](capacity int, alloc Allocator[T]) *Queue[T] {
	return BuildWith[T](New(capacity), alloc)
}

func newQueue[T any](opts Options, alloc Allocator[T]) *Queue[T] {
	capacity, batchMask := opts.normalize()

	// One cache line of T at each end of the slot region keeps the
	// first and last slot off lines shared with neighboring objects.
	var zero T
	sz := unsafe.Sizeof(zero)
	if sz == 0 {
		sz = 1
	}
	padElems := (cacheLineSize-1)/int(sz) + 1

	buffer := alloc.Allocate(int(capacity) + 2*padElems)

	q := &Queue[T]{
		minReadCache: unoccupied,
		readers:      make([]readerCursor, opts.maxReaders),
		buffer:       buffer,
		slots:        buffer[padElems : padElems+int(capacity)],
		mask:         capacity - 1,
		batchMask:    batchMask,
		capacity:     capacity,
		alloc:        alloc,
	}

	for i := range q.readers {
		q.readers[i].reset()
	}
	return q
}

// Enqueue publishes an element to every subscribed reader (publisher
// goroutine only, non-blocking).
//
// Returns ErrWouldBlock when the slowest subscribed reader has not yet
// committed past writeIdx-capacity, or when no reader is subscribed.
// The element is not stored on failure.
func (q *Queue[T]) Enqueue(elem *T) error {
	writeIdx := q.writeIdx.LoadRelaxed()

	if q.minReadCache == unoccupied || writeIdx-q.minReadCache == q.capacity {
		q.refreshMinRead()
		if q.minReadCache == unoccupied || writeIdx-q.minReadCache == q.capacity {
			return ErrWouldBlock
		}
	}

	q.slots[writeIdx&q.mask] = *elem
	q.writeIdx.StoreRelease(writeIdx + 1)
	return nil
}

// EnqueueSpin publishes an element, busy-spinning until a slot frees up
// (publisher goroutine only). See Publisher for the CPU trade-off.
func (q *Queue[T]) EnqueueSpin(elem *T) {
	sw := spin.Wait{}
	for q.Enqueue(elem) != nil {
		sw.Once()
	}
}

// refreshMinRead rescans the reader table for the minimum committed
// read index. Unoccupied slots hold the unoccupied sentinel, so the
// minimum is the sentinel exactly when nobody is subscribed.
func (q *Queue[T]) refreshMinRead() {
	m := q.readers[0].readIdx.LoadAcquire()
	for i := 1; i < len(q.readers); i++ {
		if v := q.readers[i].readIdx.LoadAcquire(); v < m {
			m = v
		}
	}
	q.minReadCache = m
}

// Front returns a pointer to the oldest unpopped item for reader r
// (non-blocking, idempotent). Returns ErrWouldBlock when the reader has
// drained everything published so far.
//
// The pointer refers into the ring and stays valid until the matching
// Pop; batched commit guarantees the publisher cannot overwrite the
// slot before then.
func (q *Queue[T]) Front(r ReaderID) (*T, error) {
	rd := &q.readers[r]
	if rd.localIdx == rd.writeCache {
		rd.writeCache = q.writeIdx.LoadAcquire()
		if rd.localIdx == rd.writeCache {
			return nil, ErrWouldBlock
		}
	}
	return &q.slots[rd.localIdx&q.mask], nil
}

// Pop advances reader r past the item last returned by Front.
// Every itemsPerBatch-th advance commits the position to the publisher;
// intermediate advances are purely reader-local.
//
// Calling Pop without a preceding successful Front is undefined.
func (q *Queue[T]) Pop(r ReaderID) {
	rd := &q.readers[r]
	rd.localIdx++
	if rd.localIdx&q.batchMask == 0 {
		rd.readIdx.StoreRelease(rd.localIdx)
	}
}

// Dequeue combines Front and Pop, returning a copy of the item.
// Returns (zero-value, ErrWouldBlock) when the reader has drained
// everything published so far.
func (q *Queue[T]) Dequeue(r ReaderID) (T, error) {
	front, err := q.Front(r)
	if err != nil {
		var zero T
		return zero, err
	}
	elem := *front
	q.Pop(r)
	return elem, nil
}

// Subscribe claims a reader slot and returns its ID.
//
// The new reader starts one position behind the current write index (or
// at 0 when nothing has been published), so its first Front observes
// the most recently published item. It never replays older history.
//
// Returns ErrMaxReaders when all reader slots are taken.
func (q *Queue[T]) Subscribe() (ReaderID, error) {
	q.lock()

	for i := range q.readers {
		if q.readers[i].readIdx.LoadRelaxed() != unoccupied {
			continue
		}

		writeIdx := q.writeIdx.LoadAcquire()
		if writeIdx > 0 {
			writeIdx--
		}
		q.readers[i].set(writeIdx)

		q.unlock()
		return ReaderID(i), nil
	}

	q.unlock()
	return 0, ErrMaxReaders
}

// Unsubscribe releases reader slot r. The publisher stops accounting
// for the reader on its next full-ring check.
//
// Unsubscribing an ID that was never subscribed is undefined.
func (q *Queue[T]) Unsubscribe(r ReaderID) {
	q.lock()
	q.readers[r].reset()
	q.unlock()
}

// Cap returns the normalized queue capacity.
func (q *Queue[T]) Cap() int {
	return int(q.capacity)
}

// Close releases the backing store (publisher goroutine only).
//
// The min(writeIdx, capacity) slots holding live items are zeroed so
// the GC can reclaim anything they reference, then the padded buffer is
// handed back to the allocator. The queue must not be used afterwards.
func (q *Queue[T]) Close() {
	writeIdx := q.writeIdx.LoadRelaxed()
	n := q.capacity
	if writeIdx < n {
		n = writeIdx
	}

	var zero T
	for i := uint64(0); i < n; i++ {
		q.slots[i] = zero
	}

	q.alloc.Deallocate(q.buffer)
	q.buffer, q.slots = nil, nil
}

// lock acquires the subscription flag. Hold time is one O(maxReaders)
// scan, so a CAS spin beats a kernel mutex here.
func (q *Queue[T]) lock() {
	sw := spin.Wait{}
	for !q.subLock.CompareAndSwapAcqRel(false, true) {
		sw.Once()
	}
}

func (q *Queue[T]) unlock() {
	q.subLock.StoreRelease(false)
}

// set initializes the cursor at index v: committed, local, and cached
// views all agree, published with release so the publisher's next scan
// sees a fully initialized subscription.
func (c *readerCursor) set(v uint64) {
	c.localIdx = v
	c.writeCache = v
	c.readIdx.StoreRelease(v)
}

func (c *readerCursor) reset() {
	c.localIdx = unoccupied
	c.writeCache = unoccupied
	c.readIdx.StoreRelease(unoccupied)
}

var (
	_ Publisher[struct{}] = (*Queue[struct{}])(nil)
	_ Reader[struct{}]    = (*Queue[struct{}])(nil)
	_ Subscribable        = (*Queue[struct{}])(nil)
)
