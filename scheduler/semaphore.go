// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"github.com/google/uuid"

	vm "github.com/hayabusa-cloud/doeffvm"
)

// Semaphore is the handle CreateSemaphore returns.
type Semaphore struct {
	id string
}

// Handle implements Waitable — a semaphore is never Wait/Gather/Race'd on
// directly (Acquire is its own effect), but sharing the type lets
// removeWaiterEverywhere and the waiter bookkeeping stay uniform across
// all three tables.
func (s Semaphore) Handle() Handle { return Handle{Kind: HandleSemaphore, ID: s.id} }

// semaphoreEntry holds the permit count and a fair FIFO waiter queue,
// grounded on original_source/doeff/effects/semaphore.py's
// Create/Acquire/ReleaseSemaphoreEffect trio, reimplemented here as
// ordinary scheduler-table state rather than a Python dataclass with a
// __del__ cleanup hook (Go has no equivalent finalizer discipline worth
// relying on; the scheduler simply owns the table for its own lifetime).
type semaphoreEntry struct {
	id      string
	permits int
	waiting []waiter // FIFO: index 0 is next to wake
}

func (s *Scheduler) createSemaphore(n int) Semaphore {
	id := uuid.NewString()
	s.semaphores[id] = &semaphoreEntry{id: id, permits: n}
	return Semaphore{id: id}
}

// tryAcquire returns true and decrements permits if one was free; callers
// that get false must park the waiting task's continuation via
// registerSemaphoreWaiter instead.
func (s *Scheduler) tryAcquire(id string) (bool, error) {
	sem, ok := s.semaphores[id]
	if !ok {
		return false, &vm.HandlerContract{Reason: "acquire on an unknown semaphore handle"}
	}
	if sem.permits > 0 {
		sem.permits--
		return true, nil
	}
	return false, nil
}

func (s *Scheduler) registerSemaphoreWaiter(id string, taskID string, k *vm.Continuation) error {
	sem, ok := s.semaphores[id]
	if !ok {
		return &vm.HandlerContract{Reason: "acquire on an unknown semaphore handle"}
	}
	sem.waiting = append(sem.waiting, waiter{taskID: taskID, k: k})
	return nil
}

// release returns a permit: if a waiter is queued, it is handed the permit
// directly and woken (fair, FIFO — permits never sit idle while a waiter
// queues); otherwise permits increments for a future Acquire.
func (s *Scheduler) release(id string) error {
	sem, ok := s.semaphores[id]
	if !ok {
		return &vm.HandlerContract{Reason: "release on an unknown semaphore handle"}
	}
	if len(sem.waiting) > 0 {
		w := sem.waiting[0]
		sem.waiting = sem.waiting[1:]
		s.resumeWaiter(w, vm.Result{Ok: true, Value: struct{}{}})
		return nil
	}
	sem.permits++
	return nil
}
