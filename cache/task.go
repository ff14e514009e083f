package cache

import (
	"context"
	"fmt"
)

// Task is an in-flight operation shared by every caller that asked for the
// same task name while it was pending.
type Task struct {
	name  string
	done  chan struct{}
	value any
	err   error
}

// Name returns the task name the operation was captured under.
func (t *Task) Name() string {
	return t.name
}

// Done is closed once the operation has settled.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the operation settles or ctx is done. Cancelling ctx
// abandons the wait, not the operation.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HasPendingTask reports whether an operation is in flight under name.
func (c *Cache) HasPendingTask(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.tasks[name]
	return ok
}

// GetPendingTask returns the in-flight operation captured under name.
func (c *Cache) GetPendingTask(name string) (*Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[name]
	return t, ok
}

// CaptureTask runs fn in its own goroutine and records it under name until
// it settles. While the record exists, further calls with the same name
// return the pending Task without running fn again. The record is removed
// before waiters are released, whether fn succeeds, fails, or panics.
func (c *Cache) CaptureTask(name string, fn func() (any, error)) *Task {
	c.mu.Lock()
	if t, ok := c.tasks[name]; ok {
		c.mu.Unlock()
		return t
	}

	t := &Task{name: name, done: make(chan struct{})}
	c.tasks[name] = t
	c.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.value, t.err = nil, fmt.Errorf("task %s panicked: %v", name, r)
			}

			c.mu.Lock()
			if c.tasks[name] == t {
				delete(c.tasks, name)
			}
			c.mu.Unlock()

			close(t.done)
		}()

		t.value, t.err = fn()
	}()

	return t
}
