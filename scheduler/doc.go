// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scheduler implements the cooperative task scheduler, promise and
// external-promise bridge, and semaphore table that sit on top of
// doeffvm's CESK core. Every scheduling primitive a task can perform —
// Spawn, Wait, Gather, Race, promise/semaphore lifecycle — is dispatched
// as an ordinary effect through a single handler the Scheduler installs
// at the bottom of every task's handler stack (scheduler.go's
// handlerFor). Task *completion*, however, is read directly off the
// Outcome each TaskState.Run call returns rather than routed back through
// the effect system — see DESIGN.md's note on why the Python original's
// effect-wrapper indirection does not carry over.
//
// Everything in this package except the external-promise completion
// channel runs on the single goroutine that calls Scheduler.Run: task
// table, promise table, semaphore table and ready queue are plain,
// unsynchronized Go maps and slices, matching spec.md's "single-threaded
// cooperative" scheduling model. Host threads only ever reach in through
// ExternalPromise.Complete/Fail, which enqueue onto a buffered channel the
// run loop drains between reduction slices.
package scheduler
