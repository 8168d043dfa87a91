package sched_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lightsheet-lab/gosols/sched"
)

func TestMutualExclusion(t *testing.T) {
	res := sched.NewResource("camera")
	var inside int32
	var violations int32
	tasks := make([]*sched.Task, 20)
	for i := range tasks {
		tasks[i] = sched.Run(func(c *sched.Custody) error {
			if atomic.AddInt32(&inside, 1) != 1 {
				atomic.AddInt32(&violations, 1)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			return c.Switch(res, nil)
		}, res)
	}
	for _, task := range tasks {
		if err := task.GetResult(); err != nil {
			t.Fatalf("task errored: %v", err)
		}
	}
	if violations != 0 {
		t.Errorf("two tasks held custody of the same resource %d times", violations)
	}
	if res.Held() {
		t.Error("resource still held after all tasks finished")
	}
}

func TestFIFOGrantOrder(t *testing.T) {
	res := sched.NewResource("ao")
	var mu sync.Mutex
	var order []int

	// occupy the resource so subsequent tasks queue up
	gate := make(chan struct{})
	holder := sched.Run(func(c *sched.Custody) error {
		<-gate
		return c.Switch(res, nil)
	}, res)

	tasks := make([]*sched.Task, 10)
	for i := range tasks {
		i := i
		tasks[i] = sched.Run(func(c *sched.Custody) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return c.Switch(res, nil)
		}, res)
		time.Sleep(5 * time.Millisecond) // deterministic arrival order
	}
	close(gate)
	if err := holder.GetResult(); err != nil {
		t.Fatal(err)
	}
	for _, task := range tasks {
		if err := task.GetResult(); err != nil {
			t.Fatal(err)
		}
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("expected FIFO grant order, got %v", order)
		}
	}
}

func TestHandoffBetweenResources(t *testing.T) {
	cam := sched.NewResource("camera")
	prev := sched.NewResource("preview")
	task := sched.Run(func(c *sched.Custody) error {
		if c.Current() != cam {
			t.Error("task did not start holding its first resource")
		}
		if err := c.Switch(cam, prev); err != nil {
			return err
		}
		if cam.Held() {
			t.Error("camera custody not released on hand-off")
		}
		return c.Switch(prev, nil)
	}, cam)
	if err := task.GetResult(); err != nil {
		t.Fatal(err)
	}
}

func TestSwitchFromWrongResource(t *testing.T) {
	cam := sched.NewResource("camera")
	disp := sched.NewResource("display")
	task := sched.Run(func(c *sched.Custody) error {
		return c.Switch(disp, nil) // task holds camera, not display
	}, cam)
	if err := task.GetResult(); err == nil {
		t.Error("expected an error switching from a resource the task does not hold")
	}
	if cam.Held() {
		t.Error("custody leaked after a failed task")
	}
}

func TestErrorReleasesCustodyAndPropagates(t *testing.T) {
	res := sched.NewResource("camera")
	boom := errors.New("hardware fault")
	task := sched.Run(func(c *sched.Custody) error {
		return boom // fault while holding custody
	}, res)
	if err := task.GetResult(); !errors.Is(err, boom) {
		t.Errorf("expected the task fault, got %v", err)
	}
	// a second task must not be starved
	task2 := sched.Run(func(c *sched.Custody) error {
		return c.Switch(res, nil)
	}, res)
	if err := task2.GetResult(); err != nil {
		t.Errorf("resource starved after a faulted task: %v", err)
	}
}

func TestPanicReleasesCustody(t *testing.T) {
	res := sched.NewResource("camera")
	task := sched.Run(func(c *sched.Custody) error {
		panic("task crashed")
	}, res)
	if err := task.GetResult(); err == nil {
		t.Error("expected a panic to surface as an error")
	}
	if res.Held() {
		t.Error("custody leaked after a panicked task")
	}
}

func TestCompleted(t *testing.T) {
	sentinel := errors.New("rejected")
	task := sched.Completed(sentinel)
	if !task.Done() {
		t.Error("completed task not done")
	}
	if err := task.GetResult(); !errors.Is(err, sentinel) {
		t.Errorf("expected sentinel, got %v", err)
	}
}
