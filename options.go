// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spbq

// Options configures queue creation.
type Options struct {
	// Capacity (rounds up to the next power of 2, floor 16)
	capacity int

	// Granularity at which readers commit progress to the producer
	readerBatch int

	// Upper bound on concurrently subscribed readers
	maxReaders int
}

// Builder creates broadcast queues with fluent configuration.
//
// Example:
//
//	// Four readers committing progress in batches of capacity/8
//	b := spbq.New(1024).ReaderBatch(8).MaxReaders(4)
//	q := spbq.Build[Event](b)
//
//	// uintptr flavor for pool indexes
//	q := spbq.New(4096).MaxReaders(2).BuildIndirect()
type Builder struct {
	opts Options
}

// New creates a queue builder with the given capacity.
//
// Capacity rounds up to the next power of 2 with a floor of 16.
// For example, capacity=10 results in actual capacity=16, capacity=1000
// results in actual capacity=1024.
//
// Defaults: ReaderBatch(4), MaxReaders(1).
//
// Panics if capacity < 2.
func New(capacity int) *Builder {
	if capacity < 2 {
		panic("spbq: capacity must be >= 2")
	}
	return &Builder{opts: Options{
		capacity:    capacity,
		readerBatch: defaultReaderBatch,
		maxReaders:  1,
	}}
}

// ReaderBatch sets how many commit batches one lap of the ring is split
// into. A reader publishes its progress to the producer every
// capacity/n items; capacity/n must be a power of 2 or building panics.
//
// Larger n means fresher producer visibility at the cost of more
// cross-core writes to the shared read index.
func (b *Builder) ReaderBatch(n int) *Builder {
	b.opts.readerBatch = n
	return b
}

// MaxReaders sets the upper bound on concurrently subscribed readers.
// The bound is fixed for the lifetime of the queue; Subscribe returns
// ErrMaxReaders once all slots are taken.
//
// Panics in building if n < 1.
func (b *Builder) MaxReaders(n int) *Builder {
	b.opts.maxReaders = n
	return b
}

// Build creates a Queue[T] with the builder's configuration and the
// default heap allocator.
func Build[T any](b *Builder) *Queue[T] {
	return newQueue[T](b.opts, heapAllocator[T]{})
}

// BuildWith creates a Queue[T] backed by the given bulk allocator.
// The allocator is invoked once here and once in Close.
func BuildWith[T any](b *Builder, alloc Allocator[T]) *Queue[T] {
	return newQueue[T](b.opts, alloc)
}

// BuildIndirect creates an Indirect queue for uintptr values.
func (b *Builder) BuildIndirect() *Indirect {
	return newIndirect(b.opts)
}

// BuildPtr creates a Ptr queue for unsafe.Pointer values.
func (b *Builder) BuildPtr() *Ptr {
	return newPtr(b.opts)
}

// defaultReaderBatch splits a lap into 4 commit batches.
const defaultReaderBatch = 4

// minCapacity is the normalization floor for the slot count.
const minCapacity = 16

// roundToPow2 rounds n up to the next power of 2.
func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// isPow2 reports whether n is a non-zero power of 2.
func isPow2(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

// normalize applies capacity normalization and validates the batch
// configuration shared by all three queue flavors.
func (o Options) normalize() (capacity, batchMask uint64) {
	if o.capacity < 2 {
		panic("spbq: capacity must be >= 2")
	}
	if o.readerBatch < 1 {
		panic("spbq: reader batch must be >= 1")
	}
	if o.maxReaders < 1 {
		panic("spbq: max readers must be >= 1")
	}

	capacity = uint64(roundToPow2(o.capacity))
	if capacity < minCapacity {
		capacity = minCapacity
	}

	itemsPerBatch := capacity / uint64(o.readerBatch)
	if !isPow2(itemsPerBatch) {
		panic("spbq: capacity / reader batch must be a power of 2")
	}
	return capacity, itemsPerBatch - 1
}

// cacheLineSize is the assumed coherency granule.
const cacheLineSize = 64

// pad is cache line padding to prevent false sharing.
type pad [cacheLineSize]byte

// padShort is padding to fill cache line after 8-byte field.
type padShort [cacheLineSize - 8]byte

// padPair is padding to fill cache line after two 8-byte fields.
type padPair [cacheLineSize - 16]byte
