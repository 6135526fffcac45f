// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"github.com/google/uuid"

	vm "github.com/hayabusa-cloud/doeffvm"
)

// TaskStatus mirrors spec.md §3's Task status set, renamed from
// MongooseMoo-barn/task.TaskState's MOO-specific Created/Queued/Running/
// Suspended/Completed/Killed to the Ready/Running/Waiting/Done/Cancelled
// vocabulary spec.md actually names for a DoCtrl program task.
type TaskStatus int

const (
	TaskReady TaskStatus = iota
	TaskRunning
	TaskWaiting
	TaskDone
	TaskCancelled
)

func (s TaskStatus) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskWaiting:
		return "waiting"
	case TaskDone:
		return "done"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Task is the handle Spawn returns: an opaque reference into the
// scheduler's task table, generalizing MongooseMoo-barn/task.Task's int64
// ID to an opaque uuid string (this VM has no object-ID space of its own
// to borrow integers from).
type Task struct {
	id string
}

// Handle implements Waitable.
func (t Task) Handle() Handle { return Handle{Kind: HandleTask, ID: t.id} }

// taskEntry is the scheduler's private bookkeeping record for one task,
// generalizing MongooseMoo-barn/task/manager.go's map[int64]*Task table
// entry to carry a *vm.TaskState plus this VM's waiter/result shape
// instead of a MOO call stack.
type taskEntry struct {
	id        string
	parentID  string
	ts        *vm.TaskState
	status    TaskStatus
	cancelled bool

	value vm.Value
	err   error

	// waiters is every other task or aggregate (Gather/Race) parked on
	// this task's completion, resolved in registration order once it
	// finishes — fairness analogous to manager.go's FIFO queued-task scan.
	waiters []waiter
}

// waiter is one registration against a taskEntry or promiseEntry: either a
// plain Wait (continuation resumes directly) or one slot of a Gather/Race
// aggregate (resolves through the shared pending struct instead).
type waiter struct {
	taskID string
	k      *vm.Continuation
	gather *gatherSlot
	race   *racePending
}

// gatherPending is shared by every slot of one Gather(...) call; each
// handle's waiter entry references it through a distinct gatherSlot so
// completions can land in any order (spec.md testable property 8) while
// still reporting results in the original input order.
type gatherPending struct {
	taskID    string
	k         *vm.Continuation
	results   []vm.Value
	remaining int
	resolved  bool
}

type gatherSlot struct {
	pending *gatherPending
	index   int
}

// racePending is shared by every handle's waiter entry in one Race(...)
// call; only the first completion to observe !resolved wins.
type racePending struct {
	taskID   string
	k        *vm.Continuation
	handles  []Handle
	resolved bool
}

// spawn creates a child task running program under an isolated Store clone
// (invariant 6 / testable property 7), enqueues it ready, and returns its
// handle without running it — cooperative scheduling defers execution to
// the run loop's next pop.
//
// program runs directly, not wrapped in vm.Try: an earlier revision
// wrapped it the way original_source/doeff/cesk/handlers/scheduler_handler.py's
// _make_spawn_wrapper turns completion into a performed effect, but
// Try's runToStop treats any Park escaping its body as a HandlerContract
// violation (see DESIGN.md and evaluator.go's runToStop) — wrapping every
// spawned task that way would make Wait/Gather/Race/Acquire inside a
// spawned task fail outright instead of parking it. Go's TaskState.Run
// already returns a typed Outcome (Done/Failed/Parked) the run loop
// switches on directly, so there is no need for the Python original's
// effect-wrapper indirection at all.
func (s *Scheduler) spawn(parentID string, program vm.DoCtrl) Task {
	id := uuid.NewString()
	ts := vm.NewTaskState(program, vm.NewEnv(), s.storeFor(parentID).Clone(), []vm.HandlerFunc{s.handlerFor(id)})
	s.tasks[id] = &taskEntry{id: id, parentID: parentID, ts: ts, status: TaskReady}
	s.ready = append(s.ready, id)
	return Task{id: id}
}

func (s *Scheduler) storeFor(taskID string) vm.Store {
	if e, ok := s.tasks[taskID]; ok {
		return e.ts.Store()
	}
	return vm.NewStore()
}

// finishTask records a task's terminal outcome and wakes every waiter
// registered against it: res.Value on success, res.Err on failure. A task
// already done or cancelled is left as it is; cancellation itself is
// recorded by cancelTask, not here.
func (s *Scheduler) finishTask(id string, res vm.Result) {
	e, ok := s.tasks[id]
	if !ok || e.status == TaskDone || e.status == TaskCancelled {
		return
	}
	e.status = TaskDone
	if res.Ok {
		e.value = res.Value
	} else {
		e.err = res.Err
	}
	s.wakeWaiters(e, res)
}

// cancelTask implements Task.cancel(): removes the task from the ready
// queue or its current waitable's waiter list if possible and resolves it
// (and anything waiting on it) with TaskCancelledError; returns false,
// without error, if the task was already finished (spec.md §6 item 4).
func (s *Scheduler) cancelTask(id string) bool {
	e, ok := s.tasks[id]
	if !ok || e.status == TaskDone || e.status == TaskCancelled {
		return false
	}
	e.cancelled = true
	if e.status == TaskReady {
		for i, rid := range s.ready {
			if rid == id {
				s.ready = append(s.ready[:i], s.ready[i+1:]...)
				break
			}
		}
	} else {
		s.removeWaiterEverywhere(id)
	}
	e.status = TaskCancelled
	cancelErr := &vm.TaskCancelledError{TaskID: id}
	s.wakeWaiters(e, vm.Result{Ok: false, Err: cancelErr})
	return true
}

// removeWaiterEverywhere drops taskID's own waiter registration from
// whichever task, promise or semaphore it is currently parked against,
// scanning all three tables since a waiter entry carries no
// back-reference to its handle.
func (s *Scheduler) removeWaiterEverywhere(taskID string) {
	drop := func(ws []waiter) []waiter {
		out := ws[:0]
		for _, w := range ws {
			if w.taskID != taskID {
				out = append(out, w)
			}
		}
		return out
	}
	for _, e := range s.tasks {
		e.waiters = drop(e.waiters)
	}
	for _, p := range s.promises {
		p.waiters = drop(p.waiters)
	}
	for _, sem := range s.semaphores {
		sem.waiting = drop(sem.waiting)
	}
}
