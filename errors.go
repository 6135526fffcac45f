// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm

import (
	"fmt"
	"reflect"
)

// The seven error kinds spec.md §6-7 requires to surface at the API level,
// as typed structs rather than panics — a deliberate deviation from kont's
// own panic-on-contract-violation style (kont.Affine panics on reuse),
// required by spec.md §6's "errors surfaced at API level." Panics remain
// reserved for genuine internal invariant violations the VM's own reduction
// loop cannot recover from (mirroring kont's own discipline for those).
//
// Each carries its own *Traceback, attached by the evaluator when the error
// escapes a run.

// UnhandledEffect is raised when no handler-stack frame matches a Perform.
type UnhandledEffect struct {
	Effect    Effect
	Traceback *Traceback
}

func (e *UnhandledEffect) Error() string {
	return fmt.Sprintf("doeffvm: unhandled effect of type %s", typeName(e.Effect.Type()))
}

// OneShotViolation is raised when a captured Continuation is resumed a
// second time (invariant 1 / testable property 4).
type OneShotViolation struct {
	Traceback *Traceback
}

func (e *OneShotViolation) Error() string {
	return "doeffvm: continuation resumed more than once"
}

// CrossScopeResume is raised when a Continuation is resumed outside the
// handler-stack scope that captured it (invariant 2 / testable property 5).
type CrossScopeResume struct {
	CapturedDepth int
	CurrentDepth  int
	Traceback     *Traceback
}

func (e *CrossScopeResume) Error() string {
	return fmt.Sprintf("doeffvm: continuation captured at handler depth %d resumed at depth %d",
		e.CapturedDepth, e.CurrentDepth)
}

// TaskCancelledError surfaces to waiters of, or at the next suspension
// point of, a cancelled task.
type TaskCancelledError struct {
	TaskID    string
	Traceback *Traceback
}

func (e *TaskCancelledError) Error() string {
	return fmt.Sprintf("doeffvm: task %s was cancelled", e.TaskID)
}

// MissingEnvKey is raised by Ask when the key is absent from the current
// environment chain.
type MissingEnvKey struct {
	Key       string
	Traceback *Traceback
}

func (e *MissingEnvKey) Error() string {
	return fmt.Sprintf("doeffvm: missing env key %q", e.Key)
}

// PromiseAlreadyCompleted is raised by a second Complete/Fail on a promise
// (scheduler-level double-completion).
type PromiseAlreadyCompleted struct {
	HandleID  string
	Traceback *Traceback
}

func (e *PromiseAlreadyCompleted) Error() string {
	return fmt.Sprintf("doeffvm: promise %s already completed", e.HandleID)
}

// HandlerContract is raised when a handler author violates the protocol in
// spec.md §6: returning a non-generator, capturing k after its prompt
// unwound, or otherwise breaking the handler-authoring contract.
type HandlerContract struct {
	Reason    string
	Traceback *Traceback
}

func (e *HandlerContract) Error() string {
	return "doeffvm: handler contract violation: " + e.Reason
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
