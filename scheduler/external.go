// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scheduler

import vm "github.com/hayabusa-cloud/doeffvm"

// externalCompletion is one (handle_id, value, error) tuple enqueued by an
// ExternalPromise's Complete/Fail — grounded on
// original_source/doeff/effects/external_promise.py's
// `_completion_queue.put((self._id, value, error))`.
type externalCompletion struct {
	promiseID string
	value     vm.Value
	err       error
}

// ExternalPromise is a Promise whose completion can arrive on any host
// goroutine: Complete/Fail only ever enqueue onto the scheduler's external
// channel, never touch scheduler state directly, so they need no locking
// of their own even though the scheduler's tables are otherwise
// single-threaded.
type ExternalPromise struct {
	Promise
	ch chan<- externalCompletion
}

// Complete enqueues value as p's completion. Safe to call from any
// goroutine, at any time, including before the scheduler has reached a
// Wait on p — the run loop drains the channel as it goes.
func (p ExternalPromise) Complete(value vm.Value) {
	p.ch <- externalCompletion{promiseID: p.id, value: value}
}

// Fail enqueues err as p's completion.
func (p ExternalPromise) Fail(err error) {
	p.ch <- externalCompletion{promiseID: p.id, err: err}
}

func (s *Scheduler) createExternalPromise() ExternalPromise {
	p := s.createPromise()
	s.promises[p.id].external = true
	return ExternalPromise{Promise: p, ch: s.external}
}

// drainExternal applies every completion currently queued on the external
// channel, bounded to what is already buffered so a steady stream of
// external completions cannot starve ready tasks (spec.md §4.4: "draining
// is bounded per loop iteration to preserve fairness").
func (s *Scheduler) drainExternal() {
	for n := len(s.external); n > 0; n-- {
		s.applyExternalCompletion(<-s.external)
	}
}

// blockOnExternal is used only when the ready queue is empty but at least
// one task is waiting on an external promise — spec.md §4.4: "the VM does
// not spin," it blocks on the channel rather than busy-polling.
func (s *Scheduler) blockOnExternal() {
	c := <-s.external
	s.applyExternalCompletion(c)
}

func (s *Scheduler) applyExternalCompletion(c externalCompletion) {
	if c.err != nil {
		_ = s.failPromise(c.promiseID, c.err)
		return
	}
	_ = s.completePromise(c.promiseID, c.value)
}

// hasExternalWaiters reports whether any task is currently parked on an
// external promise that has not yet completed — the condition spec.md
// §4.4 requires before the run loop may block on the channel instead of
// declaring deadlock.
func (s *Scheduler) hasExternalWaiters() bool {
	for _, p := range s.promises {
		if p.external && !p.completed && len(p.waiters) > 0 {
			return true
		}
	}
	return false
}
