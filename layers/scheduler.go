package layers

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/golang/glog"
)

// Scheduler serializes commands by their declared lock sets. Two
// commands whose write sets intersect never have bodies (and so host
// calls) in flight at the same time. Commands with disjoint sets run
// concurrently. Conflicting commands are queued in arrival order,
// never rejected. A modal command runs exclusively of everything.
type Scheduler struct {
	ctx context.Context
	registry *CommandRegistry

	monitor *Monitor

	mutex sync.Mutex
	nextTicket int
	running map[int]*commandRun
	waiting []*commandRun
}

type commandRun struct {
	ticket int
	descriptor *CommandDescriptor
}

// NewSchedulerWithDefaults uses a registry preloaded with the full
// layer command set.
func NewSchedulerWithDefaults(ctx context.Context) *Scheduler {
	registry := NewCommandRegistry()
	if err := RegisterLayerCommands(registry); err != nil {
		panic(err)
	}
	return NewScheduler(ctx, registry)
}

func NewScheduler(ctx context.Context, registry *CommandRegistry) *Scheduler {
	return &Scheduler{
		ctx: ctx,
		registry: registry,
		monitor: NewMonitor(),
		running: map[int]*commandRun{},
	}
}

// Run executes `body` under the operation's declared locks, blocking
// until the locks admit it. The body receives an Execution handle used
// to run transferred operations inline under the already-held locks.
func (self *Scheduler) Run(ctx context.Context, operation string, body func(ctx context.Context, execution *Execution) error) error {
	pending, err := self.Enqueue(operation)
	if err != nil {
		return err
	}
	return pending.Run(ctx, body)
}

// Enqueue reserves the operation's place in arrival order without
// blocking. Callers that must not block, e.g. transport listener
// callbacks, enqueue synchronously and run the returned handle from a
// goroutine; admission still follows ticket order.
func (self *Scheduler) Enqueue(operation string) (*PendingRun, error) {
	descriptor := self.registry.Descriptor(operation)
	if descriptor == nil {
		return nil, &InvariantViolation{
			Message: fmt.Sprintf("unregistered operation %q", operation),
		}
	}
	return &PendingRun{
		scheduler: self,
		run: self.enqueue(descriptor),
	}, nil
}

// PendingRun is an enqueued command waiting to be run. Run must be
// called exactly once.
type PendingRun struct {
	scheduler *Scheduler
	run *commandRun
}

func (self *PendingRun) Run(ctx context.Context, body func(ctx context.Context, execution *Execution) error) error {
	scheduler := self.scheduler
	for {
		notify := scheduler.monitor.NotifyChannel()
		if scheduler.admit(self.run) {
			break
		}
		select {
		case <-scheduler.ctx.Done():
			scheduler.abandon(self.run)
			return scheduler.ctx.Err()
		case <-ctx.Done():
			scheduler.abandon(self.run)
			return ctx.Err()
		case <-notify:
		}
	}
	defer scheduler.release(self.run)

	glog.V(2).Infof("[sched]run %s\n", self.run.descriptor.Operation)
	return body(ctx, &Execution{
		scheduler: scheduler,
		descriptor: self.run.descriptor,
	})
}

func (self *Scheduler) enqueue(descriptor *CommandDescriptor) *commandRun {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	run := &commandRun{
		ticket: self.nextTicket,
		descriptor: descriptor,
	}
	self.nextTicket += 1
	self.waiting = append(self.waiting, run)
	return run
}

func (self *Scheduler) admit(run *commandRun) bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	for _, active := range self.running {
		if conflicts(run.descriptor, active.descriptor) {
			return false
		}
	}
	// preserve arrival order between conflicting commands
	for _, waiter := range self.waiting {
		if waiter.ticket == run.ticket {
			break
		}
		if conflicts(run.descriptor, waiter.descriptor) {
			return false
		}
	}

	self.waiting = slices.DeleteFunc(self.waiting, func(waiter *commandRun) bool {
		return waiter.ticket == run.ticket
	})
	self.running[run.ticket] = run
	return true
}

func (self *Scheduler) abandon(run *commandRun) {
	self.mutex.Lock()
	self.waiting = slices.DeleteFunc(self.waiting, func(waiter *commandRun) bool {
		return waiter.ticket == run.ticket
	})
	self.mutex.Unlock()

	self.monitor.NotifyAll()
}

func (self *Scheduler) release(run *commandRun) {
	self.mutex.Lock()
	delete(self.running, run.ticket)
	self.mutex.Unlock()

	self.monitor.NotifyAll()
}

func conflicts(a *CommandDescriptor, b *CommandDescriptor) bool {
	if a.Modal || b.Modal {
		return true
	}
	return a.WritesOverlap(b)
}

// Execution is the handle a running command uses to transfer control
// to a follow-up operation without releasing its locks. The registry
// guarantees at composition time that the parent's declared locks
// cover the transferred operation.
type Execution struct {
	scheduler *Scheduler
	descriptor *CommandDescriptor
}

func (self *Execution) Operation() string {
	return self.descriptor.Operation
}

func (self *Execution) Transfer(ctx context.Context, operation string, body func(ctx context.Context, execution *Execution) error) error {
	if !slices.Contains(self.descriptor.Transfers, operation) {
		return &InvariantViolation{
			Message: fmt.Sprintf("%q does not declare a transfer to %q", self.descriptor.Operation, operation),
		}
	}
	transferred := self.scheduler.registry.Descriptor(operation)
	if transferred == nil {
		return &InvariantViolation{
			Message: fmt.Sprintf("unregistered operation %q", operation),
		}
	}
	glog.V(2).Infof("[sched]transfer %s -> %s\n", self.descriptor.Operation, operation)
	return body(ctx, &Execution{
		scheduler: self.scheduler,
		descriptor: transferred,
	})
}
