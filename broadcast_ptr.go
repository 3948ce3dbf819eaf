// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spbq

import (
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// Ptr is a single-producer broadcast queue for unsafe.Pointer values.
//
// Enables zero-copy fan-out: the publisher enqueues a pointer once and
// every subscribed reader receives the same pointer. Readers share the
// pointed-to object, so it must be treated as immutable once published.
// Semantics are identical to Queue[unsafe.Pointer]; see Queue for the
// algorithm.
type Ptr struct {
	_            pad
	writeIdx     atomix.Uint64
	_            padShort
	minReadCache uint64
	_            padShort
	subLock      atomix.Bool
	_            pad
	readers      []readerCursor
	buffer       []unsafe.Pointer
	slots        []unsafe.Pointer
	mask         uint64
	batchMask    uint64
	capacity     uint64
}

// NewPtr creates a broadcast queue for unsafe.Pointer values with
// default configuration: reader batch 4, max readers 1.
// Capacity rounds up to the next power of 2 with a floor of 16.
//
// Panics if capacity < 2.
func NewPtr(capacity int) *Ptr {
	return New(capacity).BuildPtr()
}

func newPtr(opts Options) *Ptr {
	capacity, batchMask := opts.normalize()

	padElems := (cacheLineSize-1)/ptrSize + 1
	buffer := make([]unsafe.Pointer, int(capacity)+2*padElems)

	q := &Ptr{
		minReadCache: unoccupied,
		readers:      make([]readerCursor, opts.maxReaders),
		buffer:       buffer,
		slots:        buffer[padElems : padElems+int(capacity)],
		mask:         capacity - 1,
		batchMask:    batchMask,
		capacity:     capacity,
	}

	for i := range q.readers {
		q.readers[i].reset()
	}
	return q
}

// Enqueue publishes a pointer to every subscribed reader (publisher
// goroutine only, non-blocking).
// Returns ErrWouldBlock when the slowest subscribed reader is a full
// ring behind, or when no reader is subscribed.
func (q *Ptr) Enqueue(elem unsafe.Pointer) error {
	writeIdx := q.writeIdx.LoadRelaxed()

	if q.minReadCache == unoccupied || writeIdx-q.minReadCache == q.capacity {
		q.refreshMinRead()
		if q.minReadCache == unoccupied || writeIdx-q.minReadCache == q.capacity {
			return ErrWouldBlock
		}
	}

	// Pointer arithmetic avoids slice bounds checking in hot path.
	// Equivalent to q.slots[writeIdx&q.mask] = elem
	*(*unsafe.Pointer)(unsafe.Add(unsafe.Pointer(unsafe.SliceData(q.slots)), int(writeIdx&q.mask)*ptrSize)) = elem
	q.writeIdx.StoreRelease(writeIdx + 1)
	return nil
}

// EnqueueSpin publishes a pointer, busy-spinning until a slot frees up
// (publisher goroutine only).
func (q *Ptr) EnqueueSpin(elem unsafe.Pointer) {
	sw := spin.Wait{}
	for q.Enqueue(elem) != nil {
		sw.Once()
	}
}

func (q *Ptr) refreshMinRead() {
	m := q.readers[0].readIdx.LoadAcquire()
	for i := 1; i < len(q.readers); i++ {
		if v := q.readers[i].readIdx.LoadAcquire(); v < m {
			m = v
		}
	}
	q.minReadCache = m
}

// Front returns the oldest unpopped pointer for reader r (non-blocking,
// idempotent). Returns (nil, ErrWouldBlock) when drained.
func (q *Ptr) Front(r ReaderID) (unsafe.Pointer, error) {
	rd := &q.readers[r]
	if rd.localIdx == rd.writeCache {
		rd.writeCache = q.writeIdx.LoadAcquire()
		if rd.localIdx == rd.writeCache {
			return nil, ErrWouldBlock
		}
	}
	// Pointer arithmetic avoids slice bounds checking in hot path.
	// Equivalent to elem := q.slots[rd.localIdx&q.mask]
	return *(*unsafe.Pointer)(unsafe.Add(unsafe.Pointer(unsafe.SliceData(q.slots)), int(rd.localIdx&q.mask)*ptrSize)), nil
}

// Pop advances reader r past the pointer last returned by Front.
// Calling Pop without a preceding successful Front is undefined.
func (q *Ptr) Pop(r ReaderID) {
	rd := &q.readers[r]
	rd.localIdx++
	if rd.localIdx&q.batchMask == 0 {
		rd.readIdx.StoreRelease(rd.localIdx)
	}
}

// Dequeue combines Front and Pop.
// Returns (nil, ErrWouldBlock) when drained.
func (q *Ptr) Dequeue(r ReaderID) (unsafe.Pointer, error) {
	elem, err := q.Front(r)
	if err != nil {
		return nil, err
	}
	q.Pop(r)
	return elem, nil
}

// Subscribe claims a reader slot starting at the most recently
// published pointer. Returns ErrMaxReaders when all slots are taken.
func (q *Ptr) Subscribe() (ReaderID, error) {
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

// Unsubscribe releases reader slot r.
func (q *Ptr) Unsubscribe(r ReaderID) {
	q.lock()
	q.readers[r].reset()
	q.unlock()
}

// Cap returns the normalized queue capacity.
func (q *Ptr) Cap() int {
	return int(q.capacity)
}

// Close drops the ring's pointer references (publisher goroutine only)
// so the GC can reclaim published objects. The queue must not be used
// afterwards.
func (q *Ptr) Close() {
	writeIdx := q.writeIdx.LoadRelaxed()
	n := q.capacity
	if writeIdx < n {
		n = writeIdx
	}

	for i := uint64(0); i < n; i++ {
		q.slots[i] = nil
	}
	q.buffer, q.slots = nil, nil
}

func (q *Ptr) lock() {
	sw := spin.Wait{}
	for !q.subLock.CompareAndSwapAcqRel(false, true) {
		sw.Once()
	}
}

func (q *Ptr) unlock() {
	q.subLock.StoreRelease(false)
}

var _ Subscribable = (*Ptr)(nil)
