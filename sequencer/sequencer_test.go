package sequencer_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tailored-agentic-units/kvcache/sequencer"
)

func TestSequencer_StrictOrdering(t *testing.T) {
	const n = 50

	var (
		mu      sync.Mutex
		log     []string
		running atomic.Int32
	)

	seq := sequencer.New(func(i int) error {
		if running.Add(1) != 1 {
			t.Errorf("item %d started while another item was running", i)
		}
		mu.Lock()
		log = append(log, "start", string(rune('A'+i%26)))
		mu.Unlock()

		time.Sleep(time.Duration(rand.Intn(300)) * time.Microsecond)

		mu.Lock()
		log = append(log, "end", string(rune('A'+i%26)))
		mu.Unlock()
		running.Add(-1)
		return nil
	})

	results := make([]<-chan error, n)
	for i := range n {
		results[i] = seq.Enqueue(i)
	}
	for i, r := range results {
		if err := <-r; err != nil {
			t.Fatalf("item %d error = %v", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i := range n {
		want := string(rune('A' + i%26))
		base := i * 4
		if log[base] != "start" || log[base+1] != want || log[base+2] != "end" || log[base+3] != want {
			t.Fatalf("log[%d:%d] = %v, want start/end of %s", base, base+4, log[base:base+4], want)
		}
	}
}

func TestSequencer_ConcurrentSubmitters(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []int
	)
	seq := sequencer.New(func(i int) error {
		mu.Lock()
		seen = append(seen, i)
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := seq.Submit(context.Background(), i); err != nil {
				t.Errorf("Submit(%d) error = %v", i, err)
			}
		}()
	}
	wg.Wait()

	if len(seen) != 20 {
		t.Errorf("worker ran %d items, want 20", len(seen))
	}
}

func TestSequencer_FailureContinues(t *testing.T) {
	boom := errors.New("boom")
	seq := sequencer.New(func(i int) error {
		switch i {
		case 1:
			return boom
		case 2:
			panic("worker exploded")
		}
		return nil
	})

	r0, r1, r2, r3 := seq.Enqueue(0), seq.Enqueue(1), seq.Enqueue(2), seq.Enqueue(3)

	if err := <-r0; err != nil {
		t.Errorf("item 0 error = %v, want nil", err)
	}
	if err := <-r1; !errors.Is(err, boom) {
		t.Errorf("item 1 error = %v, want boom", err)
	}
	if err := <-r2; !errors.Is(err, sequencer.ErrWorkerPanic) {
		t.Errorf("item 2 error = %v, want ErrWorkerPanic", err)
	}
	if err := <-r3; err != nil {
		t.Errorf("item 3 error = %v, want nil", err)
	}
}

func TestSequencer_Abort(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	seq := sequencer.New(func(i int) error {
		if i == 0 {
			close(started)
			<-release
		}
		return nil
	})

	first := seq.Enqueue(0)
	<-started
	second := seq.Enqueue(1)
	third := seq.Enqueue(2)

	if got := seq.Abort(); got != 2 {
		t.Errorf("Abort() = %d, want 2", got)
	}
	if err := <-second; !errors.Is(err, sequencer.ErrAborted) {
		t.Errorf("queued item error = %v, want ErrAborted", err)
	}
	if err := <-third; !errors.Is(err, sequencer.ErrAborted) {
		t.Errorf("queued item error = %v, want ErrAborted", err)
	}

	close(release)
	if err := <-first; err != nil {
		t.Errorf("running item error = %v, want nil", err)
	}

	if err := seq.Submit(context.Background(), 3); err != nil {
		t.Errorf("Submit() after Abort error = %v", err)
	}
}

func TestSequencer_SubmitContext(t *testing.T) {
	release := make(chan struct{})
	var ran atomic.Bool

	seq := sequencer.New(func(i int) error {
		<-release
		ran.Store(true)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := seq.Submit(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Submit() error = %v, want DeadlineExceeded", err)
	}

	close(release)
	if err := seq.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !ran.Load() {
		t.Error("abandoned item did not run")
	}
}

func TestSequencer_Wait(t *testing.T) {
	var count atomic.Int32
	seq := sequencer.New(func(int) error {
		time.Sleep(time.Millisecond)
		count.Add(1)
		return nil
	})

	if err := seq.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() on idle sequencer error = %v", err)
	}

	for i := range 5 {
		seq.Enqueue(i)
	}
	if err := seq.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if count.Load() != 5 {
		t.Errorf("processed %d items after Wait, want 5", count.Load())
	}
	if seq.Processing() || seq.Len() != 0 {
		t.Error("sequencer busy after Wait returned")
	}
}
