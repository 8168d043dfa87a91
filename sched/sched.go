/*Package sched implements a cooperative custody scheduler for a small set of
exclusive resources (camera, preview unit, display).

Each logical operation runs as its own task.  A task holds custody of at most
one resource at a time and moves between resources by explicit hand-off via
Switch.  Custody grants are first-come-first-served per resource.  Because no
task ever holds two resources at once, pipelines of tasks (camera -> preview
-> display) overlap freely without lock-ordering deadlocks.

A task that returns an error, or panics, has whatever custody it still holds
released before the fault is published, so other tasks are never starved by a
crashed one.
*/
package sched

import (
	"fmt"
	"sync"
)

// Resource is a singleton custody token for one exclusive piece of hardware
// or software.  At most one task holds custody of a Resource at any time.
type Resource struct {
	name string

	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

// NewResource returns a fresh, unheld resource token.
func NewResource(name string) *Resource {
	return &Resource{name: name}
}

// Name returns the name given at construction.
func (r *Resource) Name() string { return r.name }

// Held reports whether any task currently holds custody.  It exists for
// instrumentation and tests; task code should rely on the custody protocol,
// not on polling this.
func (r *Resource) Held() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.held
}

// acquire blocks until the caller is granted custody.  Grants are strictly
// first-come-first-served.
func (r *Resource) acquire() {
	r.mu.Lock()
	if !r.held && len(r.waiters) == 0 {
		r.held = true
		r.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	r.waiters = append(r.waiters, ch)
	r.mu.Unlock()
	<-ch
}

// release hands custody to the oldest waiter, or frees the resource if no
// task is waiting.
func (r *Resource) release() {
	r.mu.Lock()
	if len(r.waiters) > 0 {
		ch := r.waiters[0]
		r.waiters = r.waiters[1:]
		r.mu.Unlock()
		close(ch) // custody transfers directly, held stays true
		return
	}
	r.held = false
	r.mu.Unlock()
}

// Custody is a task's handle on the scheduler.  The only legal way for a task
// to touch a shared resource is to hold that resource's custody through this
// handle.
type Custody struct {
	current *Resource
}

// Current returns the resource this task currently holds custody of, or nil.
func (c *Custody) Current() *Resource { return c.current }

// Switch releases custody of from (which must be the currently held resource,
// or nil if none is held), then blocks until custody of to is granted.
// Switch(x, nil) releases custody without taking a new resource.
func (c *Custody) Switch(from, to *Resource) error {
	if from != c.current {
		want, have := "none", "none"
		if from != nil {
			want = from.name
		}
		if c.current != nil {
			have = c.current.name
		}
		return fmt.Errorf("sched: switch from %s but task holds custody of %s", want, have)
	}
	if from != nil {
		c.current = nil
		from.release()
	}
	if to != nil {
		to.acquire()
		c.current = to
	}
	return nil
}

// Task is a handle on a running custody task.
type Task struct {
	done chan struct{}
	err  error
}

// Run launches fn as its own task.  The new task blocks until it is granted
// custody of first; fn then runs already holding it.  first may be nil, in
// which case fn starts holding nothing.
//
// The returned handle's GetResult blocks until fn finishes and re-raises any
// fault as an error.
func Run(fn func(*Custody) error, first *Resource) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		c := &Custody{}
		defer func() {
			if r := recover(); r != nil {
				t.err = fmt.Errorf("sched: task panic: %v", r)
			}
			// a faulted task must not starve the others
			if c.current != nil {
				held := c.current
				c.current = nil
				held.release()
			}
			close(t.done)
		}()
		if first != nil {
			first.acquire()
			c.current = first
		}
		t.err = fn(c)
	}()
	return t
}

// GetResult blocks the calling goroutine until the task finishes and returns
// the task's error, if any.
func (t *Task) GetResult() error {
	<-t.done
	return t.err
}

// Done reports whether the task has finished without blocking.
func (t *Task) Done() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Completed returns an already-finished task carrying err.  It is used to
// reject work without launching a goroutine.
func Completed(err error) *Task {
	t := &Task{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}
