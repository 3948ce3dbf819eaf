// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spbq_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/spbq"
)

// TestCapacityNormalization verifies capacity rounds up to the next
// power of 2 with a floor of 16.
func TestCapacityNormalization(t *testing.T) {
	cases := []struct {
		requested, want int
	}{
		{2, 16},
		{10, 16},
		{16, 16},
		{17, 32},
		{100, 128},
		{1000, 1024},
		{1024, 1024},
	}
	for _, c := range cases {
		q := spbq.NewQueue[int](c.requested)
		if q.Cap() != c.want {
			t.Fatalf("Cap(%d): got %d, want %d", c.requested, q.Cap(), c.want)
		}
	}
}

// TestEnqueueNoSubscriber verifies the publisher refuses to publish
// while nobody is subscribed: with zero readers no slot would ever be
// freed, so "no subscriber" gates exactly like "ring full".
func TestEnqueueNoSubscriber(t *testing.T) {
	q := spbq.NewQueue[int](16)

	v := 1
	err := q.Enqueue(&v)
	if !errors.Is(err, spbq.ErrWouldBlock) {
		t.Fatalf("Enqueue without subscriber: got %v, want ErrWouldBlock", err)
	}
	if !spbq.IsWouldBlock(err) || !spbq.IsNonFailure(err) || !spbq.IsSemantic(err) {
		t.Fatalf("ErrWouldBlock classification broken: %v", err)
	}

	rid, err := q.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := q.Enqueue(&v); err != nil {
		t.Fatalf("Enqueue with subscriber: %v", err)
	}
	q.Unsubscribe(rid)
}

// TestSubscribeLimit verifies the R+1st subscribe fails and a slot
// freed by Unsubscribe is handed out again.
func TestSubscribeLimit(t *testing.T) {
	q := spbq.Build[int](spbq.New(16).MaxReaders(2))

	r1, err := q.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe #1: %v", err)
	}
	r2, err := q.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe #2: %v", err)
	}
	if r1 == r2 {
		t.Fatalf("duplicate reader ID %d", r1)
	}

	if _, err := q.Subscribe(); !errors.Is(err, spbq.ErrMaxReaders) {
		t.Fatalf("Subscribe #3: got %v, want ErrMaxReaders", err)
	}

	q.Unsubscribe(r1)
	r3, err := q.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe after Unsubscribe: %v", err)
	}
	if r3 != r1 {
		t.Fatalf("freed slot not reused: got %d, want %d", r3, r1)
	}
}

// TestFrontEmpty verifies Front is a non-blocking nullable peek.
func TestFrontEmpty(t *testing.T) {
	q := spbq.NewQueue[int](16)
	rid, err := q.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := q.Front(rid); !errors.Is(err, spbq.ErrWouldBlock) {
		t.Fatalf("Front on empty: got %v, want ErrWouldBlock", err)
	}
	// Idempotent: calling again changes nothing.
	if _, err := q.Front(rid); !errors.Is(err, spbq.ErrWouldBlock) {
		t.Fatalf("Front on empty (repeat): got %v, want ErrWouldBlock", err)
	}
}

// TestFrontIdempotent verifies repeated Front calls return the same
// item until Pop advances the reader.
func TestFrontIdempotent(t *testing.T) {
	q := spbq.NewQueue[int](16)
	rid, _ := q.Subscribe()

	for i := range 3 {
		v := i + 100
		if err := q.Enqueue(&v); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}

	p1, err := q.Front(rid)
	if err != nil {
		t.Fatalf("Front: %v", err)
	}
	p2, err := q.Front(rid)
	if err != nil {
		t.Fatalf("Front (repeat): %v", err)
	}
	if p1 != p2 || *p1 != 100 {
		t.Fatalf("Front not idempotent: %p=%d vs %p=%d", p1, *p1, p2, *p2)
	}

	q.Pop(rid)
	p3, err := q.Front(rid)
	if err != nil {
		t.Fatalf("Front after Pop: %v", err)
	}
	if *p3 != 101 {
		t.Fatalf("Front after Pop: got %d, want 101", *p3)
	}
}

// TestFillDrainWrap publishes and drains the full ring several times
// from one goroutine, checking exact FIFO order across wraparound.
func TestFillDrainWrap(t *testing.T) {
	q := spbq.NewQueue[uint64](16)
	rid, err := q.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	next := uint64(0)
	for lap := range 5 {
		for range 16 {
			v := next
			if err := q.Enqueue(&v); err != nil {
				t.Fatalf("lap %d: Enqueue(%d): %v", lap, v, err)
			}
			next++
		}

		v := next
		if err := q.Enqueue(&v); !errors.Is(err, spbq.ErrWouldBlock) {
			t.Fatalf("lap %d: Enqueue on full: got %v, want ErrWouldBlock", lap, err)
		}

		for i := range 16 {
			item, err := q.Front(rid)
			if err != nil {
				t.Fatalf("lap %d: Front(%d): %v", lap, i, err)
			}
			want := next - 16 + uint64(i)
			if *item != want {
				t.Fatalf("lap %d: Front(%d): got %d, want %d", lap, i, *item, want)
			}
			q.Pop(rid)
		}

		if _, err := q.Front(rid); !errors.Is(err, spbq.ErrWouldBlock) {
			t.Fatalf("lap %d: Front after drain: got %v, want ErrWouldBlock", lap, err)
		}
	}
}

// TestDequeue verifies the Front+Pop convenience wrapper.
func TestDequeue(t *testing.T) {
	q := spbq.NewQueue[int](16)
	rid, _ := q.Subscribe()

	for i := range 8 {
		v := i
		if err := q.Enqueue(&v); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	for i := range 8 {
		v, err := q.Dequeue(rid)
		if err != nil {
			t.Fatalf("Dequeue(%d): %v", i, err)
		}
		if v != i {
			t.Fatalf("Dequeue(%d): got %d, want %d", i, v, i)
		}
	}
	if _, err := q.Dequeue(rid); !errors.Is(err, spbq.ErrWouldBlock) {
		t.Fatalf("Dequeue on empty: got %v, want ErrWouldBlock", err)
	}
}

// TestLateSubscriberSeesLastItem verifies the subscription off-by-one:
// a reader joining mid-stream starts one position behind the write
// index, so its first Front observes the most recently published item
// and nothing older.
func TestLateSubscriberSeesLastItem(t *testing.T) {
	q := spbq.Build[int](spbq.New(16).MaxReaders(2))

	r1, err := q.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe r1: %v", err)
	}
	for i := range 5 {
		v := i * 11
		if err := q.Enqueue(&v); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}

	r2, err := q.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe r2: %v", err)
	}

	item, err := q.Front(r2)
	if err != nil {
		t.Fatalf("Front(r2): %v", err)
	}
	if *item != 4*11 {
		t.Fatalf("late subscriber first item: got %d, want %d", *item, 4*11)
	}
	q.Pop(r2)
	if _, err := q.Front(r2); !errors.Is(err, spbq.ErrWouldBlock) {
		t.Fatalf("Front(r2) after last item: got %v, want ErrWouldBlock", err)
	}

	// r1 still sees the full history it subscribed for.
	for i := range 5 {
		v, err := q.Dequeue(r1)
		if err != nil {
			t.Fatalf("Dequeue(r1) #%d: %v", i, err)
		}
		if v != i*11 {
			t.Fatalf("Dequeue(r1) #%d: got %d, want %d", i, v, i*11)
		}
	}
}

// TestBatchedCommitBackpressure verifies a reader's progress reaches
// the publisher only at batch boundaries: with capacity 16 and the
// default batch split of 4, a full ring stays full through 3 pops and
// opens up on the 4th.
func TestBatchedCommitBackpressure(t *testing.T) {
	q := spbq.NewQueue[int](16)
	rid, _ := q.Subscribe()

	for i := range 16 {
		v := i
		if err := q.Enqueue(&v); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}

	v := 99
	for i := range 3 {
		if _, err := q.Front(rid); err != nil {
			t.Fatalf("Front #%d: %v", i, err)
		}
		q.Pop(rid)
		if err := q.Enqueue(&v); !errors.Is(err, spbq.ErrWouldBlock) {
			t.Fatalf("Enqueue after %d pops: got %v, want ErrWouldBlock", i+1, err)
		}
	}

	if _, err := q.Front(rid); err != nil {
		t.Fatalf("Front #4: %v", err)
	}
	q.Pop(rid) // 4th pop commits the batch

	for i := range 4 {
		if err := q.Enqueue(&v); err != nil {
			t.Fatalf("Enqueue after commit #%d: %v", i, err)
		}
	}
	if err := q.Enqueue(&v); !errors.Is(err, spbq.ErrWouldBlock) {
		t.Fatalf("Enqueue past freed batch: got %v, want ErrWouldBlock", err)
	}
}

// TestReaderBatchGranularity verifies ReaderBatch(capacity) commits on
// every pop, freeing slots one at a time.
func TestReaderBatchGranularity(t *testing.T) {
	q := spbq.Build[int](spbq.New(16).ReaderBatch(16))
	rid, _ := q.Subscribe()

	for i := range 16 {
		v := i
		if err := q.Enqueue(&v); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}

	for i := range 8 {
		v := 100 + i
		if err := q.Enqueue(&v); !errors.Is(err, spbq.ErrWouldBlock) {
			t.Fatalf("Enqueue on full #%d: got %v, want ErrWouldBlock", i, err)
		}
		if _, err := q.Front(rid); err != nil {
			t.Fatalf("Front #%d: %v", i, err)
		}
		q.Pop(rid)
		if err := q.Enqueue(&v); err != nil {
			t.Fatalf("Enqueue after pop #%d: %v", i, err)
		}
	}
}

// TestUnsubscribeReleasesBackpressure verifies the publisher's minimum
// ignores a reader the moment it unsubscribes.
func TestUnsubscribeReleasesBackpressure(t *testing.T) {
	q := spbq.Build[int](spbq.New(16).MaxReaders(2))
	r1, _ := q.Subscribe()
	r2, _ := q.Subscribe()

	for i := range 16 {
		v := i
		if err := q.Enqueue(&v); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}

	// r1 drains fully; r2 has consumed nothing and holds the ring full.
	for range 16 {
		if _, err := q.Front(r1); err != nil {
			t.Fatalf("Front(r1): %v", err)
		}
		q.Pop(r1)
	}

	v := 42
	if err := q.Enqueue(&v); !errors.Is(err, spbq.ErrWouldBlock) {
		t.Fatalf("Enqueue gated by r2: got %v, want ErrWouldBlock", err)
	}

	q.Unsubscribe(r2)
	if err := q.Enqueue(&v); err != nil {
		t.Fatalf("Enqueue after Unsubscribe(r2): %v", err)
	}
}

// TestIndirectBasic exercises the uintptr flavor.
func TestIndirectBasic(t *testing.T) {
	q := spbq.NewIndirect(16)
	if q.Cap() != 16 {
		t.Fatalf("Cap: got %d, want 16", q.Cap())
	}

	if err := q.Enqueue(7); !errors.Is(err, spbq.ErrWouldBlock) {
		t.Fatalf("Enqueue without subscriber: got %v, want ErrWouldBlock", err)
	}

	rid, err := q.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	for i := range 16 {
		if err := q.Enqueue(uintptr(i + 1)); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	if err := q.Enqueue(99); !errors.Is(err, spbq.ErrWouldBlock) {
		t.Fatalf("Enqueue on full: got %v, want ErrWouldBlock", err)
	}

	for i := range 16 {
		v, err := q.Front(rid)
		if err != nil {
			t.Fatalf("Front(%d): %v", i, err)
		}
		if v != uintptr(i+1) {
			t.Fatalf("Front(%d): got %d, want %d", i, v, i+1)
		}
		q.Pop(rid)
	}
	if _, err := q.Dequeue(rid); !errors.Is(err, spbq.ErrWouldBlock) {
		t.Fatalf("Dequeue on empty: got %v, want ErrWouldBlock", err)
	}
	q.Unsubscribe(rid)
}
