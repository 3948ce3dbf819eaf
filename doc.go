// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package spbq provides a bounded single-producer broadcast queue.
//
// Unlike a work queue, which partitions items among consumers, a
// broadcast queue delivers the entire published stream to every
// subscribed reader: one publisher goroutine appends to a fixed
// power-of-two ring, and up to MaxReaders reader goroutines walk the
// same ring independently with their own cursors.
//
// # Quick Start
//
// Direct constructors (single reader, batch 4):
//
//	q := spbq.NewQueue[Event](1024)
//	q := spbq.NewPtr(4096)
//
// Builder API for multi-reader configuration:
//
//	q := spbq.Build[Event](spbq.New(1024).MaxReaders(4))
//	q := spbq.New(4096).MaxReaders(2).BuildIndirect()
//
// # Basic Usage
//
// Readers subscribe before they can observe anything; the publisher
// refuses to publish while nobody is subscribed, because no reader
// would ever free a slot:
//
//	q := spbq.Build[int](spbq.New(1024).MaxReaders(2))
//
//	rid, err := q.Subscribe()
//	if err != nil {
//	    // All reader slots taken - spbq.ErrMaxReaders
//	}
//
//	// Publisher (exactly one goroutine, ever)
//	v := 42
//	if err := q.Enqueue(&v); spbq.IsWouldBlock(err) {
//	    // Ring full against the slowest reader, or no reader yet
//	}
//
//	// Reader rid
//	item, err := q.Front(rid)
//	if err == nil {
//	    process(*item)
//	    q.Pop(rid)
//	}
//
// Always check Front before Pop; Pop without a successful Front is
// undefined. Dequeue combines the two when a copy is acceptable:
//
//	item, err := q.Dequeue(rid)
//
// # Subscription Model
//
// Subscribe hands out a dense ReaderID and starts the new reader one
// position behind the current write index, so its first Front observes
// the most recently published item. A late subscriber never replays
// history. Unsubscribe releases the slot immediately: the publisher
// ignores it on its next full-ring check, and a subsequent Subscribe
// may reuse the ID.
//
// Subscribe and Unsubscribe are O(MaxReaders) and contend only with
// each other, never with the publish or read hot paths.
//
// # Backpressure
//
// The publisher may run at most one full ring ahead of the slowest
// currently subscribed reader. Enqueue returns ErrWouldBlock instead of
// overwriting unread data; EnqueueSpin busy-spins until a slot frees
// up. For adaptive waiting, loop over Enqueue with a backoff:
//
//	backoff := iox.Backoff{}
//	for q.Enqueue(&v) != nil {
//	    backoff.Wait()
//	}
//	backoff.Reset()
//
// The full-ring check runs against a publisher-local cache of the
// minimum committed reader index; the reader table is rescanned only
// when the cache says the ring may be full, keeping the publish path
// O(1) in the common case.
//
// # Reader Batching
//
// Readers advance a private cursor on every Pop but publish it to the
// shared committed index only every capacity/ReaderBatch items. The
// publisher therefore sees reader progress up to one batch late - a
// bounded, intentional staleness that trades a little apparent
// backpressure for far fewer cross-core cache line transfers. Raise
// ReaderBatch for fresher publisher visibility, lower it for less
// coherency traffic.
//
// # Queue Flavors
//
// Three flavors share identical semantics:
//
//	Queue[T]  - generic, stores copies of T
//	Indirect  - uintptr payloads (pool indexes, handles)
//	Ptr       - unsafe.Pointer payloads, zero-copy fan-out
//
// With Ptr every reader receives the same pointer, so published
// objects must be treated as immutable. For large structs prefer Ptr
// or Indirect over Queue[T] to avoid per-reader copies.
//
// # Error Handling
//
// Enqueue, Front, and Dequeue return [ErrWouldBlock] when they cannot
// proceed. This error is sourced from [code.hybscloud.com/iox] for
// ecosystem consistency and is a control flow signal, not a failure:
//
//	spbq.IsWouldBlock(err)  // true if ring full/drained
//	spbq.IsSemantic(err)    // true if control flow signal
//	spbq.IsNonFailure(err)  // true if nil or ErrWouldBlock
//
// Subscribe returns [ErrMaxReaders] when the reader table is
// exhausted; retry after an Unsubscribe. Configuration mistakes
// (capacity < 2, capacity/ReaderBatch not a power of 2, MaxReaders < 1)
// panic at construction.
//
// # Capacity and Length
//
// Capacity rounds up to the next power of 2 with a floor of 16:
//
//	q := spbq.NewQueue[int](10)    // Actual capacity: 16
//	q := spbq.NewQueue[int](1000)  // Actual capacity: 1024
//
// Length is intentionally not provided because accurate counts in
// lock-free algorithms require expensive cross-core synchronization,
// and each reader has its own notion of length anyway.
//
// # Thread Safety
//
// Exactly one goroutine may call Enqueue, EnqueueSpin, and Close for
// the lifetime of a queue. Each ReaderID may be driven by one
// goroutine at a time; no reader ever touches another reader's state.
// Subscribe and Unsubscribe are safe from any goroutine. Violating
// these constraints causes undefined behavior including data
// corruption.
//
// There is no cancellation mechanism: callers wanting deadlines wrap
// their own around the non-blocking primitives.
//
// # Race Detection
//
// Go's race detector cannot observe happens-before relationships
// established through atomic memory orderings on separate variables,
// so it may report false positives on the cursor handshake between
// publisher and readers. The algorithm is correct under the
// acquire-release model; tests incompatible with race detection are
// skipped via [RaceEnabled].
//
// # Dependencies
//
// This package uses [code.hybscloud.com/iox] for semantic errors,
// [code.hybscloud.com/atomix] for atomic primitives with explicit
// memory ordering, and [code.hybscloud.com/spin] for CPU pause
// instructions.
package spbq
