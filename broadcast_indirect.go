// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spbq

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// Indirect is a single-producer broadcast queue for uintptr values.
//
// Useful for fanning out pool indexes or handles: the publisher pushes
// an index once and every subscribed reader observes it. Semantics are
// identical to Queue[uintptr]; see Queue for the algorithm.
type Indirect struct {
	_            pad
	writeIdx     atomix.Uint64
	_            padShort
	minReadCache uint64
	_            padShort
	subLock      atomix.Bool
	_            pad
	readers      []readerCursor
	buffer       []uintptr
	slots        []uintptr
	mask         uint64
	batchMask    uint64
	capacity     uint64
}

// NewIndirect creates a broadcast queue for uintptr values with default
// configuration: reader batch 4, max readers 1.
// Capacity rounds up to the next power of 2 with a floor of 16.
//
// Panics if capacity < 2.
func NewIndirect(capacity int) *Indirect {
	return New(capacity).BuildIndirect()
}

func newIndirect(opts Options) *Indirect {
	capacity, batchMask := opts.normalize()

	padElems := (cacheLineSize-1)/ptrSize + 1
	buffer := make([]uintptr, int(capacity)+2*padElems)

	q := &Indirect{
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

// Enqueue publishes a value to every subscribed reader (publisher
// goroutine only, non-blocking).
// Returns ErrWouldBlock when the slowest subscribed reader is a full
// ring behind, or when no reader is subscribed.
func (q *Indirect) Enqueue(elem uintptr) error {
	writeIdx := q.writeIdx.LoadRelaxed()

	if q.minReadCache == unoccupied || writeIdx-q.minReadCache == q.capacity {
		q.refreshMinRead()
		if q.minReadCache == unoccupied || writeIdx-q.minReadCache == q.capacity {
			return ErrWouldBlock
		}
	}

	q.slots[writeIdx&q.mask] = elem
	q.writeIdx.StoreRelease(writeIdx + 1)
	return nil
}

// EnqueueSpin publishes a value, busy-spinning until a slot frees up
// (publisher goroutine only).
func (q *Indirect) EnqueueSpin(elem uintptr) {
	sw := spin.Wait{}
	for q.Enqueue(elem) != nil {
		sw.Once()
	}
}

func (q *Indirect) refreshMinRead() {
	m := q.readers[0].readIdx.LoadAcquire()
	for i := 1; i < len(q.readers); i++ {
		if v := q.readers[i].readIdx.LoadAcquire(); v < m {
			m = v
		}
	}
	q.minReadCache = m
}

// Front returns the oldest unpopped value for reader r (non-blocking,
// idempotent). Returns (0, ErrWouldBlock) when drained.
func (q *Indirect) Front(r ReaderID) (uintptr, error) {
	rd := &q.readers[r]
	if rd.localIdx == rd.writeCache {
		rd.writeCache = q.writeIdx.LoadAcquire()
		if rd.localIdx == rd.writeCache {
			return 0, ErrWouldBlock
		}
	}
	return q.slots[rd.localIdx&q.mask], nil
}

// Pop advances reader r past the value last returned by Front.
// Calling Pop without a preceding successful Front is undefined.
func (q *Indirect) Pop(r ReaderID) {
	rd := &q.readers[r]
	rd.localIdx++
	if rd.localIdx&q.batchMask == 0 {
		rd.readIdx.StoreRelease(rd.localIdx)
	}
}

// Dequeue combines Front and Pop.
// Returns (0, ErrWouldBlock) when drained.
func (q *Indirect) Dequeue(r ReaderID) (uintptr, error) {
	elem, err := q.Front(r)
	if err != nil {
		return 0, err
	}
	q.Pop(r)
	return elem, nil
}

// Subscribe claims a reader slot starting at the most recently
// published value. Returns ErrMaxReaders when all slots are taken.
func (q *Indirect) Subscribe() (ReaderID, error) {
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
func (q *Indirect) Unsubscribe(r ReaderID) {
	q.lock()
	q.readers[r].reset()
	q.unlock()
}

// Cap returns the normalized queue capacity.
func (q *Indirect) Cap() int {
	return int(q.capacity)
}

func (q *Indirect) lock() {
	sw := spin.Wait{}
	for !q.subLock.CompareAndSwapAcqRel(false, true) {
		sw.Once()
	}
}

func (q *Indirect) unlock() {
	q.subLock.StoreRelease(false)
}

var _ Subscribable = (*Indirect)(nil)
