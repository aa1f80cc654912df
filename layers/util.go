package layers

import (
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/golang/glog"
)

// Monitor notifies waiters of a state change by cycling the notify
// channel. Waiters take the channel before inspecting state, then wait
// on it if the state does not allow progress.
type Monitor struct {
	mutex sync.Mutex
	update chan struct{}
}

func NewMonitor() *Monitor {
	return &Monitor{
		update: make(chan struct{}),
	}
}

func (self *Monitor) NotifyChannel() <-chan struct{} {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return self.update
}

func (self *Monitor) NotifyAll() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	close(self.update)
	self.update = make(chan struct{})
}

// makes a copy of the list on update, so `Get` can be iterated without
// holding the lock
type CallbackList[T any] struct {
	mutex sync.Mutex
	nextCallbackId int
	callbacks map[int]T
	order []int
}

func NewCallbackList[T any]() *CallbackList[T] {
	return &CallbackList[T]{
		callbacks: map[int]T{},
	}
}

func (self *CallbackList[T]) Add(callback T) func() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbackId := self.nextCallbackId
	self.nextCallbackId += 1
	self.callbacks[callbackId] = callback
	self.order = append(slices.Clone(self.order), callbackId)
	return func() {
		self.remove(callbackId)
	}
}

func (self *CallbackList[T]) remove(callbackId int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	delete(self.callbacks, callbackId)
	i := slices.Index(self.order, callbackId)
	if i < 0 {
		return
	}
	self.order = slices.Delete(slices.Clone(self.order), i, i+1)
}

func (self *CallbackList[T]) Get() []T {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbacks := make([]T, 0, len(self.callbacks))
	for _, callbackId := range self.order {
		callbacks = append(callbacks, self.callbacks[callbackId])
	}
	return callbacks
}

func (self *CallbackList[T]) Clear() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	maps.Clear(self.callbacks)
	self.order = nil
}

// callbacks are wrapped to recover from errors so one bad listener
// cannot take down the dispatch loop
func HandleError(do func()) {
	defer func() {
		if r := recover(); r != nil {
			glog.Warningf("[layers]unexpected error = %s\n%s\n", r, debug.Stack())
		}
	}()
	do()
}

func HandleErrorWithReturn(do func() error) (returnErr error) {
	defer func() {
		if r := recover(); r != nil {
			glog.Warningf("[layers]unexpected error = %s\n%s\n", r, debug.Stack())
			if err, ok := r.(error); ok {
				returnErr = err
			} else {
				returnErr = fmt.Errorf("%s", r)
			}
		}
	}()
	return do()
}
