// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"github.com/google/uuid"

	vm "github.com/hayabusa-cloud/doeffvm"
)

// Promise is the write/read-side handle CreatePromise returns: other tasks
// Wait on it, exactly one of Complete/Fail may resolve it.
type Promise struct {
	id string
}

// Handle implements Waitable.
func (p Promise) Handle() Handle { return Handle{Kind: HandlePromise, ID: p.id} }

// promiseEntry is the scheduler's table row for one promise, generalizing
// original_source/doeff/effects/promise.py's promise state (completed?,
// value?, error?, waiter_list) into this package's shared waiter shape.
type promiseEntry struct {
	id        string
	completed bool
	value     vm.Value
	err       error
	waiters   []waiter
	external  bool // true once CreateExternalPromise allocated it
}

func (s *Scheduler) createPromise() Promise {
	id := uuid.NewString()
	s.promises[id] = &promiseEntry{id: id}
	return Promise{id: id}
}

// completePromise resolves p with value, or raises PromiseAlreadyCompleted
// on a second completion — spec.md: "completion is idempotent-once."
func (s *Scheduler) completePromise(id string, v vm.Value) error {
	p, ok := s.promises[id]
	if !ok {
		return &vm.HandlerContract{Reason: "complete on an unknown promise handle"}
	}
	if p.completed {
		return &vm.PromiseAlreadyCompleted{HandleID: id}
	}
	p.completed = true
	p.value = v
	s.wakePromiseWaiters(p, vm.Result{Ok: true, Value: v})
	return nil
}

func (s *Scheduler) failPromise(id string, err error) error {
	p, ok := s.promises[id]
	if !ok {
		return &vm.HandlerContract{Reason: "fail on an unknown promise handle"}
	}
	if p.completed {
		return &vm.PromiseAlreadyCompleted{HandleID: id}
	}
	p.completed = true
	p.err = err
	s.wakePromiseWaiters(p, vm.Result{Ok: false, Err: err})
	return nil
}
