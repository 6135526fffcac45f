// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scheduler

import vm "github.com/hayabusa-cloud/doeffvm"

// HandleKind tags which table a Handle's ID resolves against.
type HandleKind int

const (
	HandleTask HandleKind = iota
	HandlePromise
	HandleSemaphore
)

// Handle is the opaque, wire-stable identity spec.md's Task/Promise/
// Semaphore share a single representation for. Task and promise handles
// can be Wait/Gather/Race targets; a semaphore handle passed to them is
// rejected with an error.
type Handle struct {
	Kind HandleKind
	ID   string
}

// Waitable is anything Wait, Gather, and Race can block on.
type Waitable interface {
	Handle() Handle
}

// SpawnEffect requests a new task running Program, isolated from the
// spawning task's Store (see Scheduler.spawn's Store.Clone call).
type SpawnEffect struct{ Program vm.DoCtrl }

// Spawn performs SpawnEffect{Program: program}, yielding a Task handle.
func Spawn(program vm.DoCtrl) vm.DoCtrl { return vm.Perform(SpawnEffect{Program: program}) }

// WaitEffect blocks until Handle's target completes.
type WaitEffect struct{ Handle Handle }

// Wait performs WaitEffect{Handle: w.Handle()}.
func Wait(w Waitable) vm.DoCtrl { return vm.Perform(WaitEffect{Handle: w.Handle()}) }

// GatherEffect blocks until every Handles target completes, fail-fast on
// the first failure (spec.md testable properties 8 and 9).
type GatherEffect struct{ Handles []Handle }

// Gather performs GatherEffect over ws, yielding []vm.Value in input order.
func Gather(ws ...Waitable) vm.DoCtrl {
	hs := make([]Handle, len(ws))
	for i, w := range ws {
		hs[i] = w.Handle()
	}
	return vm.Perform(GatherEffect{Handles: hs})
}

// RaceEffect blocks until the first of Handles' targets completes.
type RaceEffect struct{ Handles []Handle }

// RaceResult is what Race yields: the winner, its value, and the handles
// of the targets still outstanding (losers are not auto-cancelled — the
// caller decides whether to Cancel them).
type RaceResult struct {
	First Handle
	Value vm.Value
	Rest  []Handle
}

// Race performs RaceEffect over ws.
func Race(ws ...Waitable) vm.DoCtrl {
	hs := make([]Handle, len(ws))
	for i, w := range ws {
		hs[i] = w.Handle()
	}
	return vm.Perform(RaceEffect{Handles: hs})
}

// CancelEffect marks Handle's task cancelled; it resolves to false rather
// than raising if the task is already done (spec.md §6 item 4).
type CancelEffect struct{ Handle Handle }

// Cancel performs CancelEffect{Handle: t.Handle()}.
func Cancel(t Task) vm.DoCtrl { return vm.Perform(CancelEffect{Handle: t.Handle()}) }

// CreatePromiseEffect allocates a new promise in the scheduler's table.
type CreatePromiseEffect struct{}

// CreatePromise performs CreatePromiseEffect{}, yielding a Promise.
func CreatePromise() vm.DoCtrl { return vm.Perform(CreatePromiseEffect{}) }

// CompleteEffect resolves Handle's promise with Value. A second
// Complete/Fail on the same promise raises vm.PromiseAlreadyCompleted.
type CompleteEffect struct {
	Handle Handle
	Value  vm.Value
}

// CompletePromise performs CompleteEffect{Handle: p.Handle(), Value: v}.
func CompletePromise(p Promise, v vm.Value) vm.DoCtrl {
	return vm.Perform(CompleteEffect{Handle: p.Handle(), Value: v})
}

// FailEffect resolves Handle's promise with Err.
type FailEffect struct {
	Handle Handle
	Err    error
}

// FailPromise performs FailEffect{Handle: p.Handle(), Err: err}.
func FailPromise(p Promise, err error) vm.DoCtrl {
	return vm.Perform(FailEffect{Handle: p.Handle(), Err: err})
}

// CreateExternalPromiseEffect allocates a promise a host thread can
// complete/fail from outside the VM. Completions travel over the
// scheduler's single shared external channel; there is no per-promise
// channel.
type CreateExternalPromiseEffect struct{}

// CreateExternalPromise performs CreateExternalPromiseEffect{}, yielding
// an ExternalPromise.
func CreateExternalPromise() vm.DoCtrl { return vm.Perform(CreateExternalPromiseEffect{}) }

// CreateSemaphoreEffect allocates a semaphore with the given permit count.
type CreateSemaphoreEffect struct{ Permits int }

// CreateSemaphore performs CreateSemaphoreEffect{Permits: n}.
func CreateSemaphore(n int) vm.DoCtrl { return vm.Perform(CreateSemaphoreEffect{Permits: n}) }

// AcquireEffect blocks until a permit on Handle's semaphore is available.
type AcquireEffect struct{ Handle Handle }

// Acquire performs AcquireEffect{Handle: s.Handle()}.
func Acquire(s Semaphore) vm.DoCtrl { return vm.Perform(AcquireEffect{Handle: s.Handle()}) }

// ReleaseEffect returns a permit to Handle's semaphore, waking one FIFO
// waiter if any are queued.
type ReleaseEffect struct{ Handle Handle }

// Release performs ReleaseEffect{Handle: s.Handle()}.
func Release(s Semaphore) vm.DoCtrl { return vm.Perform(ReleaseEffect{Handle: s.Handle()}) }
