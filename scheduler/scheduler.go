// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	vm "github.com/hayabusa-cloud/doeffvm"
)

// Scheduler is the single-threaded cooperative run loop: a task table, a
// promise table, a semaphore table, a FIFO ready queue, and a channel the
// only cross-goroutine boundary in this package (ExternalPromise.Complete/
// Fail) ever touches. Generalizes MongooseMoo-barn/task/manager.go's
// package-level singleton task map into an owned, instantiable struct —
// this VM has no reason to assume there is only ever one scheduler per
// process.
type Scheduler struct {
	tasks      map[string]*taskEntry
	promises   map[string]*promiseEntry
	semaphores map[string]*semaphoreEntry
	ready      []string
	external   chan externalCompletion
	log        *slog.Logger
}

// NewScheduler returns an empty Scheduler with no tasks queued.
func NewScheduler() *Scheduler {
	return &Scheduler{
		tasks:      map[string]*taskEntry{},
		promises:   map[string]*promiseEntry{},
		semaphores: map[string]*semaphoreEntry{},
		external:   make(chan externalCompletion, 256),
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger replaces the scheduler's diagnostic logger; nil installs a
// logger that discards everything rather than forcing every caller to
// build a no-op handler.
func (s *Scheduler) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.log = l
}

// DeadlockError is raised when the ready queue empties with at least one
// task still waiting and no external promise can ever wake it — spec.md
// §4.4's "no ready tasks and no pending external completions while at
// least one task waits."
type DeadlockError struct{ WaitingTasks int }

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("doeffvm/scheduler: deadlock: %d task(s) waiting, nothing left to run them", e.WaitingTasks)
}

// rootSpawn enters program into the task table exactly like spawn does for
// a child, but under a fresh Store rather than a clone of some parent's —
// there is no parent. Routing the root task through the same table/ready-
// queue machinery as every spawned child lets Run's loop learn the root's
// outcome the same way it learns any child's, by switching directly on
// the Outcome TaskState.Run returns (see task.go's spawn doc comment for
// why that replaces the Python original's effect-wrapper indirection).
func (s *Scheduler) rootSpawn(program vm.DoCtrl) string {
	id := uuid.NewString()
	ts := vm.NewTaskState(program, vm.NewEnv(), vm.NewStore(), []vm.HandlerFunc{s.handlerFor(id)})
	s.tasks[id] = &taskEntry{id: id, ts: ts, status: TaskReady}
	s.ready = append(s.ready, id)
	return id
}

// Run drives program to completion, returning the Ok/Err Result it (or
// whatever failed it) produced. The returned error is non-nil only for a
// scheduler-level condition program itself could never raise: deadlock.
func (s *Scheduler) Run(program vm.DoCtrl) (vm.Result, error) {
	rootID := s.rootSpawn(program)
	for {
		if len(s.ready) == 0 {
			if s.hasExternalWaiters() {
				s.blockOnExternal()
				continue
			}
			return vm.Result{}, &DeadlockError{WaitingTasks: s.countWaiting()}
		}
		id := s.ready[0]
		s.ready = s.ready[1:]
		e, ok := s.tasks[id]
		if !ok || e.status == TaskDone || e.status == TaskCancelled {
			continue
		}

		e.status = TaskRunning
		outcome := e.ts.Run()
		switch outcome.Kind {
		case vm.OutcomeDone:
			s.finishTask(id, vm.Result{Ok: true, Value: outcome.Value})
		case vm.OutcomeFailed:
			s.attachTaskChain(outcome.Traceback, id)
			s.finishTask(id, vm.Result{Ok: false, Err: outcome.Err})
		case vm.OutcomeParked:
			if e.status == TaskRunning {
				e.status = TaskWaiting
			}
		}
		s.drainExternal()

		if id == rootID && (e.status == TaskDone || e.status == TaskCancelled) {
			if e.err != nil {
				return vm.Result{Ok: false, Err: e.err}, nil
			}
			return vm.Result{Ok: true, Value: e.value}, nil
		}
	}
}

// attachTaskChain fills in tb.TaskChain by walking taskID's ancestry via
// parentID, innermost (the failing task) first, the way
// MongooseMoo-barn/task/traceback.go walks its activation-frame stack
// top-down. doeffvm's own Traceback capture has no access to the
// scheduler's task table (task.go's taskEntry is this package's private
// state), so the chain is stitched in here, once, right after a task's
// Run call reports a failure — a no-op for tb == nil (plain vm.Run, no
// scheduler involved).
func (s *Scheduler) attachTaskChain(tb *vm.Traceback, taskID string) {
	if tb == nil {
		return
	}
	for id := taskID; id != ""; {
		e, ok := s.tasks[id]
		if !ok {
			break
		}
		tb.TaskChain = append(tb.TaskChain, vm.TaskRecord{TaskID: e.id, ParentID: e.parentID})
		id = e.parentID
	}
}

func (s *Scheduler) countWaiting() int {
	n := 0
	for _, e := range s.tasks {
		if e.status == TaskWaiting {
			n++
		}
	}
	return n
}

// lookupResult reports h's target's terminal Result if it has one, without
// registering anything — callers use this to service Wait/Gather/Race
// synchronously against already-finished targets before ever parking.
func (s *Scheduler) lookupResult(h Handle) (vm.Result, bool, error) {
	switch h.Kind {
	case HandleTask:
		e, ok := s.tasks[h.ID]
		if !ok {
			return vm.Result{}, false, &vm.HandlerContract{Reason: "wait/gather/race against an unknown task handle"}
		}
		switch e.status {
		case TaskDone:
			return vm.Result{Ok: e.err == nil, Value: e.value, Err: e.err}, true, nil
		case TaskCancelled:
			return vm.Result{Ok: false, Err: &vm.TaskCancelledError{TaskID: h.ID}}, true, nil
		default:
			return vm.Result{}, false, nil
		}
	case HandlePromise:
		p, ok := s.promises[h.ID]
		if !ok {
			return vm.Result{}, false, &vm.HandlerContract{Reason: "wait/gather/race against an unknown promise handle"}
		}
		if p.completed {
			return vm.Result{Ok: p.err == nil, Value: p.value, Err: p.err}, true, nil
		}
		return vm.Result{}, false, nil
	default:
		return vm.Result{}, false, &vm.HandlerContract{Reason: "a semaphore handle is not waitable"}
	}
}

func (s *Scheduler) registerWaiter(h Handle, w waiter) error {
	switch h.Kind {
	case HandleTask:
		e, ok := s.tasks[h.ID]
		if !ok {
			return &vm.HandlerContract{Reason: "wait/gather/race against an unknown task handle"}
		}
		e.waiters = append(e.waiters, w)
		return nil
	case HandlePromise:
		p, ok := s.promises[h.ID]
		if !ok {
			return &vm.HandlerContract{Reason: "wait/gather/race against an unknown promise handle"}
		}
		p.waiters = append(p.waiters, w)
		return nil
	default:
		return &vm.HandlerContract{Reason: "a semaphore handle is not waitable"}
	}
}

// resumeTaskWith rewinds k with res and, unless the owning task has since
// finished or been cancelled out from under it, re-enqueues it ready.
func (s *Scheduler) resumeTaskWith(taskID string, k *vm.Continuation, res vm.Result) {
	e, ok := s.tasks[taskID]
	if !ok {
		return
	}
	if res.Ok {
		e.ts.Resume(k, res.Value)
	} else {
		e.ts.ResumeWithError(k, res.Err)
	}
	if e.status != TaskDone && e.status != TaskCancelled {
		e.status = TaskReady
		s.ready = append(s.ready, taskID)
	}
}

// checkSelfCancelled panics with TaskCancelledError if taskID was marked
// cancelled since it last ran — the mechanism behind spec.md §6's "self-
// cancellation takes effect at next suspension point": cancelTask never
// interrupts a running task mid-step (there is nothing to interrupt with
// in a cooperative single-threaded loop), so every blocking effect checks
// here first, before registering a waiter or resolving against an
// already-finished target, and fails the task instead of parking it.
func (s *Scheduler) checkSelfCancelled(taskID string) {
	if e, ok := s.tasks[taskID]; ok && e.cancelled {
		panic(&vm.TaskCancelledError{TaskID: taskID})
	}
}

// handleWaitEffect services one Wait: resolves immediately against an
// already-finished target, or registers a plain waiter and parks.
func (s *Scheduler) handleWaitEffect(taskID string, k *vm.Continuation, h Handle) vm.DoCtrl {
	s.checkSelfCancelled(taskID)
	res, done, err := s.lookupResult(h)
	if err != nil {
		panic(err)
	}
	if done {
		if !res.Ok {
			panic(res.Err)
		}
		return vm.Resume(k, res.Value)
	}
	if err := s.registerWaiter(h, waiter{taskID: taskID, k: k}); err != nil {
		panic(err)
	}
	return vm.Park()
}

// handleGatherEffect services one Gather: any target already failed short-
// circuits synchronously (fail-fast, property 9); otherwise every
// already-finished target's value is filled in immediately and a single
// gatherPending is shared across waiter registrations for the rest, so
// results land in original input order regardless of completion order
// (property 8).
func (s *Scheduler) handleGatherEffect(taskID string, k *vm.Continuation, handles []Handle) vm.DoCtrl {
	s.checkSelfCancelled(taskID)
	if len(handles) == 0 {
		return vm.Resume(k, []vm.Value{})
	}
	results := make([]vm.Value, len(handles))
	var toRegister []int
	for i, h := range handles {
		res, done, err := s.lookupResult(h)
		if err != nil {
			panic(err)
		}
		if done {
			if !res.Ok {
				panic(res.Err)
			}
			results[i] = res.Value
			continue
		}
		toRegister = append(toRegister, i)
	}
	if len(toRegister) == 0 {
		return vm.Resume(k, results)
	}
	pending := &gatherPending{taskID: taskID, k: k, results: results, remaining: len(toRegister)}
	for _, i := range toRegister {
		if err := s.registerWaiter(handles[i], waiter{taskID: taskID, gather: &gatherSlot{pending: pending, index: i}}); err != nil {
			panic(err)
		}
	}
	return vm.Park()
}

// handleRaceEffect services one Race: the first already-finished target
// (in input order) wins synchronously; otherwise every handle gets a
// waiter against a shared racePending, and whichever completes first wins.
// Race deliberately broadens scheduler_handler.py's Task-only restriction
// to any Waitable (DESIGN.md).
func (s *Scheduler) handleRaceEffect(taskID string, k *vm.Continuation, handles []Handle) vm.DoCtrl {
	s.checkSelfCancelled(taskID)
	if len(handles) == 0 {
		panic(&vm.HandlerContract{Reason: "race requires at least one handle"})
	}
	for _, h := range handles {
		res, done, err := s.lookupResult(h)
		if err != nil {
			panic(err)
		}
		if done {
			if !res.Ok {
				panic(res.Err)
			}
			return vm.Resume(k, RaceResult{First: h, Value: res.Value, Rest: restOf(handles, h)})
		}
	}
	pending := &racePending{taskID: taskID, k: k, handles: handles}
	for _, h := range handles {
		if err := s.registerWaiter(h, waiter{taskID: taskID, race: pending}); err != nil {
			panic(err)
		}
	}
	return vm.Park()
}

func restOf(handles []Handle, winner Handle) []Handle {
	rest := make([]Handle, 0, len(handles)-1)
	for _, h := range handles {
		if h != winner {
			rest = append(rest, h)
		}
	}
	return rest
}

// resolveGatherSlot applies one target's outcome to its slot of a shared
// gatherPending: a failure resolves (and fails) the whole gather the first
// time one arrives; the last success to land resolves it with every result.
func (s *Scheduler) resolveGatherSlot(slot *gatherSlot, res vm.Result) {
	p := slot.pending
	if p.resolved {
		return
	}
	if !res.Ok {
		p.resolved = true
		s.resumeTaskWith(p.taskID, p.k, vm.Result{Ok: false, Err: res.Err})
		return
	}
	p.results[slot.index] = res.Value
	p.remaining--
	if p.remaining == 0 {
		p.resolved = true
		s.resumeTaskWith(p.taskID, p.k, vm.Result{Ok: true, Value: p.results})
	}
}

// resolveRace applies the first arriving outcome among a racePending's
// handles; every later arrival is ignored (losers are not auto-cancelled).
func (s *Scheduler) resolveRace(p *racePending, h Handle, res vm.Result) {
	if p.resolved {
		return
	}
	p.resolved = true
	if !res.Ok {
		s.resumeTaskWith(p.taskID, p.k, vm.Result{Ok: false, Err: res.Err})
		return
	}
	s.resumeTaskWith(p.taskID, p.k, vm.Result{Ok: true, Value: RaceResult{First: h, Value: res.Value, Rest: restOf(p.handles, h)}})
}

// resumeWaiter dispatches one waiter entry's resolution to whichever of
// the plain/gather shapes it carries. Used directly by task/promise
// completion (via resolveWaiterList, which knows the firing handle and
// routes race waiters to resolveRace itself) and by semaphore release,
// which only ever produces plain waiters but shares the same waiter type
// for uniform table bookkeeping.
func (s *Scheduler) resumeWaiter(w waiter, res vm.Result) {
	switch {
	case w.gather != nil:
		s.resolveGatherSlot(w.gather, res)
	case w.race != nil:
		s.resolveRace(w.race, Handle{}, res)
	default:
		s.resumeTaskWith(w.taskID, w.k, res)
	}
}

// resolveWaiterList resolves every waiter registered against h's owner —
// shared by wakeWaiters and wakePromiseWaiters, both of which know the
// handle that just fired and must pass it through to any race waiter so
// RaceResult.First names the correct winner.
func (s *Scheduler) resolveWaiterList(ws []waiter, h Handle, res vm.Result) {
	for _, w := range ws {
		if w.race != nil {
			s.resolveRace(w.race, h, res)
			continue
		}
		s.resumeWaiter(w, res)
	}
}

// wakeWaiters resolves every waiter registered against a finished or
// cancelled task.
func (s *Scheduler) wakeWaiters(e *taskEntry, res vm.Result) {
	ws := e.waiters
	e.waiters = nil
	s.resolveWaiterList(ws, Handle{Kind: HandleTask, ID: e.id}, res)
}

// wakePromiseWaiters resolves every waiter registered against a completed
// or failed promise.
func (s *Scheduler) wakePromiseWaiters(p *promiseEntry, res vm.Result) {
	ws := p.waiters
	p.waiters = nil
	s.resolveWaiterList(ws, Handle{Kind: HandlePromise, ID: p.id}, res)
}

// handlerFor builds the effect handler one task's Scheduler.spawn/rootSpawn
// installs at the bottom of its handler stack — the single place every
// scheduling effect in effects.go is dispatched. Task completion itself is
// read off TaskState.Run's Outcome in Run's loop rather than handled here
// (see task.go's spawn doc comment).
func (s *Scheduler) handlerFor(taskID string) vm.HandlerFunc {
	return vm.DoHandler(func(effect vm.Effect, k *vm.Continuation) vm.GenFunc {
		return func(yield func(vm.DoCtrl) vm.Value) vm.Value {
			switch p := effect.Payload.(type) {
			case SpawnEffect:
				t := s.spawn(taskID, p.Program)
				return yield(vm.Resume(k, t))
			case WaitEffect:
				return yield(s.handleWaitEffect(taskID, k, p.Handle))
			case GatherEffect:
				return yield(s.handleGatherEffect(taskID, k, p.Handles))
			case RaceEffect:
				return yield(s.handleRaceEffect(taskID, k, p.Handles))
			case CancelEffect:
				ok := s.cancelTask(p.Handle.ID)
				return yield(vm.Resume(k, ok))
			case CreatePromiseEffect:
				pr := s.createPromise()
				return yield(vm.Resume(k, pr))
			case CompleteEffect:
				if err := s.completePromise(p.Handle.ID, p.Value); err != nil {
					panic(err)
				}
				return yield(vm.Resume(k, struct{}{}))
			case FailEffect:
				if err := s.failPromise(p.Handle.ID, p.Err); err != nil {
					panic(err)
				}
				return yield(vm.Resume(k, struct{}{}))
			case CreateExternalPromiseEffect:
				ep := s.createExternalPromise()
				return yield(vm.Resume(k, ep))
			case CreateSemaphoreEffect:
				sem := s.createSemaphore(p.Permits)
				return yield(vm.Resume(k, sem))
			case AcquireEffect:
				s.checkSelfCancelled(taskID)
				got, err := s.tryAcquire(p.Handle.ID)
				if err != nil {
					panic(err)
				}
				if got {
					return yield(vm.Resume(k, struct{}{}))
				}
				if err := s.registerSemaphoreWaiter(p.Handle.ID, taskID, k); err != nil {
					panic(err)
				}
				return yield(vm.Park())
			case ReleaseEffect:
				if err := s.release(p.Handle.ID); err != nil {
					panic(err)
				}
				return yield(vm.Resume(k, struct{}{}))
			default:
				return yield(vm.Pass())
			}
		}
	})
}

// RunConcurrentDemo fans work out across host goroutines via errgroup,
// completing one ExternalPromise per item as each goroutine finishes —
// a harness for exercising the external-promise bridge the way a real
// network or disk I/O callback would, without this package depending on
// any concrete transport. Must be called before the corresponding
// Scheduler.Run's program performs its Wait/Gather against the returned
// promises, since the promises it allocates are plain scheduler-table
// state and are only safe to create before the run loop starts.
func RunConcurrentDemo(s *Scheduler, work []func() (vm.Value, error)) []ExternalPromise {
	promises := make([]ExternalPromise, len(work))
	for i := range work {
		promises[i] = s.createExternalPromise()
	}
	var g errgroup.Group
	for i, fn := range work {
		i, fn := i, fn
		g.Go(func() error {
			v, err := fn()
			if err != nil {
				promises[i].Fail(err)
			} else {
				promises[i].Complete(v)
			}
			return nil
		})
	}
	go func() { _ = g.Wait() }()
	return promises
}
