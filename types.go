// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spbq

import "unsafe"

// ReaderID identifies one subscription on a broadcast queue.
//
// IDs are small dense indexes handed out by Subscribe and reclaimed by
// Unsubscribe. An ID is only meaningful on the queue that issued it, and
// only until it is unsubscribed. All reader-side operations (Front, Pop,
// Dequeue) take the ID of the calling reader; each ID must be driven by
// exactly one goroutine at a time.
type ReaderID int

// Publisher is the producer-side interface of a broadcast queue.
//
// Exactly one goroutine may act as the publisher for the lifetime of
// a queue. The element is passed by pointer to avoid copying large
// structs; the queue stores a copy of the pointed-to value, so the
// original can be modified after Enqueue returns.
type Publisher[T any] interface {
	// Enqueue publishes an element to every subscribed reader
	// (non-blocking). Returns nil on success, ErrWouldBlock if the
	// slowest subscribed reader is a full ring behind, or if no
	// reader is subscribed at all.
	Enqueue(elem *T) error

	// EnqueueSpin publishes an element, busy-spinning until capacity
	// frees up. The calling goroutine burns CPU while it waits;
	// callers wanting adaptive backoff should loop over Enqueue with
	// an iox.Backoff instead.
	EnqueueSpin(elem *T)
}

// Reader is the consumer-side interface of a broadcast queue.
//
// Every subscribed reader observes the entire published stream
// independently of the other readers. Reader-side operations never
// block and never contend with each other.
type Reader[T any] interface {
	// Front returns a pointer to the oldest item the reader has not
	// yet popped (non-blocking, idempotent). Returns ErrWouldBlock
	// when the reader has drained everything published so far.
	// The pointer is valid until the matching Pop.
	Front(r ReaderID) (*T, error)

	// Pop advances the reader past the item last returned by Front.
	// Calling Pop without a preceding successful Front is undefined.
	Pop(r ReaderID)

	// Dequeue combines Front and Pop, returning a copy of the item.
	// Returns (zero-value, ErrWouldBlock) when drained.
	Dequeue(r ReaderID) (T, error)
}

// Subscribable is the registry interface shared by all queue flavors.
type Subscribable interface {
	// Subscribe claims a reader slot and returns its ID.
	// The new reader starts at the most recently published item, so
	// its first Front observes that item; it never replays history.
	// Returns ErrMaxReaders when all slots are taken.
	Subscribe() (ReaderID, error)

	// Unsubscribe releases a reader slot. The producer stops
	// accounting for the reader on its next full-ring check.
	// Unsubscribing an ID that was never subscribed is undefined.
	Unsubscribe(r ReaderID)

	// Cap returns the normalized queue capacity.
	Cap() int
}

// Allocator provides the bulk backing store for a queue's slots.
//
// Allocate is called exactly once at construction with the padded slot
// count, and Deallocate exactly once from Close with the same slice.
// Implementations may hand out arena or pool memory; the default
// allocator uses the Go heap.
type Allocator[T any] interface {
	Allocate(n int) []T
	Deallocate(buf []T)
}

// heapAllocator is the default Allocator backed by make.
type heapAllocator[T any] struct{}

func (heapAllocator[T]) Allocate(n int) []T { return make([]T, n) }

func (heapAllocator[T]) Deallocate([]T) {}

// unoccupied marks a reader slot with no subscriber.
const unoccupied = ^uint64(0)

// ptrSize is the size of a pointer in bytes.
const ptrSize = int(unsafe.Sizeof(uintptr(0)))
