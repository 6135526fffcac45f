// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scheduler_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	vm "github.com/hayabusa-cloud/doeffvm"
	"github.com/hayabusa-cloud/doeffvm/scheduler"
)

// constEffect resolves directly to Value, handled by constHandler — a
// cheap stand-in for real task work so tests can drive the scheduler
// without any actual I/O.
type constEffect struct{ value vm.Value }

func constProgram(v vm.Value) vm.DoCtrl {
	return vm.WithHandler(constHandler, vm.Perform(constEffect{value: v}))
}

var constHandler = vm.DoHandler(func(effect vm.Effect, k *vm.Continuation) vm.GenFunc {
	return func(yield func(vm.DoCtrl) vm.Value) vm.Value {
		if ce, ok := effect.Payload.(constEffect); ok {
			return yield(vm.Resume(k, ce.value))
		}
		return yield(vm.Pass())
	}
})

func asTask(v vm.Value) scheduler.Task           { return v.(scheduler.Task) }
func asSemaphore(v vm.Value) scheduler.Semaphore { return v.(scheduler.Semaphore) }

func TestSpawnWaitRoundTrip(t *testing.T) {
	program := vm.FlatMap(scheduler.Spawn(constProgram(7)), func(tv vm.Value) vm.DoCtrl {
		return scheduler.Wait(asTask(tv))
	})

	res, err := scheduler.NewScheduler().Run(program)
	require.NoError(t, err)
	require.True(t, res.Ok, "result: %+v", res)
	require.Equal(t, 7, res.Value)
}

func TestGatherFailFast(t *testing.T) {
	boom := errors.New("boom")
	failing := vm.CallCtrl{Fn: func([]vm.Value) (vm.Value, error) { return nil, boom }}

	program := vm.FlatMap(scheduler.Spawn(constProgram(1)), func(t1 vm.Value) vm.DoCtrl {
		return vm.FlatMap(scheduler.Spawn(failing), func(t2 vm.Value) vm.DoCtrl {
			return scheduler.Gather(asTask(t1), asTask(t2))
		})
	})

	res, err := scheduler.NewScheduler().Run(program)
	require.NoError(t, err)
	require.False(t, res.Ok)
	require.ErrorIs(t, res.Err, boom)
}

// TestGatherPreservesInputOrderUnderOutOfOrderCompletion spawns the handle
// passed first to Gather as a task that itself spawns and waits on a
// second, still-queued task before producing its value — guaranteeing it completes
// after the handle passed second, which has no such hop. Gather's result
// must still report [slow's value, fast's value], input order rather than
// completion order (spec.md testable property 8).
func TestGatherPreservesInputOrderUnderOutOfOrderCompletion(t *testing.T) {
	slow := vm.FlatMap(scheduler.Spawn(constProgram("warm")), func(warm vm.Value) vm.DoCtrl {
		return vm.FlatMap(scheduler.Wait(asTask(warm)), func(vm.Value) vm.DoCtrl {
			return constProgram("slow")
		})
	})
	fast := constProgram("fast")

	program := vm.FlatMap(scheduler.Spawn(slow), func(a vm.Value) vm.DoCtrl {
		return vm.FlatMap(scheduler.Spawn(fast), func(b vm.Value) vm.DoCtrl {
			return scheduler.Gather(asTask(a), asTask(b))
		})
	})

	res, err := scheduler.NewScheduler().Run(program)
	require.NoError(t, err)
	require.True(t, res.Ok, "result: %+v", res)
	got := res.Value.([]vm.Value)
	if diff := cmp.Diff([]vm.Value{"slow", "fast"}, got); diff != "" {
		t.Fatalf("gather order mismatch (-want +got):\n%s", diff)
	}
}

func TestRaceFirstWins(t *testing.T) {
	var taskB scheduler.Task
	program := vm.FlatMap(scheduler.Spawn(constProgram("a")), func(av vm.Value) vm.DoCtrl {
		return vm.FlatMap(scheduler.Spawn(constProgram("b")), func(bv vm.Value) vm.DoCtrl {
			taskB = asTask(bv)
			return scheduler.Race(asTask(av), taskB)
		})
	})

	res, err := scheduler.NewScheduler().Run(program)
	require.NoError(t, err)
	require.True(t, res.Ok, "result: %+v", res)
	rr := res.Value.(scheduler.RaceResult)
	// Both tasks are only queued, not yet run, by the time Race is performed
	// (Spawn resumes the spawning task synchronously without yielding); the
	// ready queue is FIFO, so the task spawned first runs first and wins.
	require.Equal(t, "a", rr.Value)
	require.Equal(t, []scheduler.Handle{taskB.Handle()}, rr.Rest)
}

// TestSelfCancellationTakesEffectAtNextSuspensionPoint has child cancel
// itself while it has no registered waiters, so nothing wakes it
// immediately the way cancelling a waited-on task would; child keeps
// running until its very next blocking effect, the Wait on never, which
// fails via checkSelfCancelled instead of parking. A dummy intermediary
// task guarantees child runs to that point before root asks about it; root
// then observes the cancellation through its own Wait on child, which
// reports TaskCancelledError for the already-cancelled task.
func TestSelfCancellationTakesEffectAtNextSuspensionPoint(t *testing.T) {
	var selfTask scheduler.Task
	child := vm.FlatMap(scheduler.CreatePromise(), func(neverPv vm.Value) vm.DoCtrl {
		never := neverPv.(scheduler.Promise)
		return vm.FlatMap(scheduler.Cancel(selfTask), func(vm.Value) vm.DoCtrl {
			return scheduler.Wait(never)
		})
	})

	program := vm.FlatMap(scheduler.Spawn(child), func(childV vm.Value) vm.DoCtrl {
		selfTask = asTask(childV)
		return vm.FlatMap(scheduler.Spawn(constProgram(0)), func(dummyV vm.Value) vm.DoCtrl {
			return vm.FlatMap(scheduler.Wait(asTask(dummyV)), func(vm.Value) vm.DoCtrl {
				return scheduler.Wait(selfTask)
			})
		})
	})

	res, err := scheduler.NewScheduler().Run(program)
	require.NoError(t, err)
	require.False(t, res.Ok)
	var cancelled *vm.TaskCancelledError
	require.ErrorAs(t, res.Err, &cancelled)
	require.Equal(t, selfTask.Handle().ID, cancelled.TaskID)
}

// TestSemaphoreFIFOFairness queues two Acquires against a zero-permit
// semaphore, then has a third task Release twice in a row. The registered
// order (1 before 2) must determine who gets woken first, not the order
// the two Release calls happen to fire in.
func TestSemaphoreFIFOFairness(t *testing.T) {
	program := vm.FlatMap(scheduler.CreateSemaphore(0), func(semv vm.Value) vm.DoCtrl {
		sem := asSemaphore(semv)
		return vm.FlatMap(scheduler.CreatePromise(), func(orderPv vm.Value) vm.DoCtrl {
			orderP := orderPv.(scheduler.Promise)
			waiter := func(n int) vm.DoCtrl {
				return vm.FlatMap(scheduler.Acquire(sem), func(vm.Value) vm.DoCtrl {
					return scheduler.CompletePromise(orderP, n)
				})
			}
			releaser := vm.FlatMap(scheduler.Release(sem), func(vm.Value) vm.DoCtrl {
				return scheduler.Release(sem)
			})
			return vm.FlatMap(scheduler.Spawn(waiter(1)), func(vm.Value) vm.DoCtrl {
				return vm.FlatMap(scheduler.Spawn(waiter(2)), func(vm.Value) vm.DoCtrl {
					return vm.FlatMap(scheduler.Spawn(releaser), func(vm.Value) vm.DoCtrl {
						return scheduler.Wait(orderP)
					})
				})
			})
		})
	})

	res, err := scheduler.NewScheduler().Run(program)
	require.NoError(t, err)
	require.True(t, res.Ok, "result: %+v", res)
	require.Equal(t, 1, res.Value, "the first-queued waiter must be woken before the second")
}

func TestExternalPromiseBridge(t *testing.T) {
	s := scheduler.NewScheduler()
	work := []func() (vm.Value, error){
		func() (vm.Value, error) { return 10, nil },
		func() (vm.Value, error) { return 20, nil },
	}
	promises := scheduler.RunConcurrentDemo(s, work)

	program := scheduler.Gather(promises[0], promises[1])
	res, err := s.Run(program)
	require.NoError(t, err)
	require.True(t, res.Ok, "result: %+v", res)
	got := res.Value.([]vm.Value)
	if diff := cmp.Diff([]vm.Value{10, 20}, got); diff != "" {
		t.Fatalf("external promise gather mismatch (-want +got):\n%s", diff)
	}
}

func TestDeadlockDetected(t *testing.T) {
	program := vm.FlatMap(scheduler.CreatePromise(), func(pv vm.Value) vm.DoCtrl {
		return scheduler.Wait(pv.(scheduler.Promise))
	})

	_, err := scheduler.NewScheduler().Run(program)
	require.Error(t, err)
	var dl *scheduler.DeadlockError
	require.ErrorAs(t, err, &dl)
	require.Equal(t, 1, dl.WaitingTasks)
}
