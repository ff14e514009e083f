// Package sequencer runs submitted items through a single worker strictly
// one at a time, in submission order.
//
// For any two items A submitted before B, the worker call for A returns
// before the worker call for B begins. The store uses one Sequencer for
// storage writes and another for subscriber deliveries.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Sentinel errors reported through item results.
var (
	ErrAborted     = errors.New("sequencer aborted")
	ErrWorkerPanic = errors.New("worker panicked")
)

type entry[T any] struct {
	item   T
	result chan error
}

// Sequencer is a FIFO queue bound to one worker function. It is safe for
// concurrent use.
type Sequencer[T any] struct {
	worker     func(T) error
	queue      []entry[T]
	processing bool
	idle       chan struct{}
	mu         sync.Mutex
}

// New creates a Sequencer that passes every submitted item to worker.
func New[T any](worker func(T) error) *Sequencer[T] {
	idle := make(chan struct{})
	close(idle)
	return &Sequencer[T]{worker: worker, idle: idle}
}

// Enqueue appends item to the queue and returns a channel that receives
// the worker's result exactly once. The channel is buffered, so callers
// that do not read it never block the queue.
func (s *Sequencer[T]) Enqueue(item T) <-chan error {
	result := make(chan error, 1)

	s.mu.Lock()
	s.queue = append(s.queue, entry[T]{item: item, result: result})
	start := !s.processing
	if start {
		s.processing = true
		s.idle = make(chan struct{})
	}
	s.mu.Unlock()

	if start {
		go s.drain()
	}
	return result
}

// Submit enqueues item and waits for its result. Cancelling ctx abandons
// the wait; the item still runs in its turn.
func (s *Sequencer[T]) Submit(ctx context.Context, item T) error {
	select {
	case err := <-s.Enqueue(item):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sequencer[T]) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.processing = false
			close(s.idle)
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue[0] = entry[T]{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		next.result <- s.run(next.item)
	}
}

func (s *Sequencer[T]) run(item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
		}
	}()
	return s.worker(item)
}

// Abort discards every queued item that has not started and settles each
// with ErrAborted. An item already running finishes normally. It returns
// the number of discarded items.
func (s *Sequencer[T]) Abort() int {
	s.mu.Lock()
	discarded := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, e := range discarded {
		e.result <- ErrAborted
	}
	return len(discarded)
}

// Wait blocks until the queue is empty and no item is running, or ctx is
// done. Items enqueued while waiting extend the wait.
func (s *Sequencer[T]) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		idle := s.idle
		s.mu.Unlock()

		select {
		case <-idle:
			s.mu.Lock()
			busy := s.processing
			s.mu.Unlock()
			if !busy {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Len returns the number of items waiting to run.
func (s *Sequencer[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Processing reports whether an item is running or about to run.
func (s *Sequencer[T]) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}
