// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm

import "reflect"

// DoCtrl is the algebraic control-expression IR spec.md §3 describes: a
// defunctionalized AST, not a closure, so the evaluator can inspect,
// partially reduce, and capture it as a one-shot Continuation. Generalizes
// kont/frame.go's Frame marker-interface pattern from a closure-adjacent
// continuation chain to a full program representation.
type DoCtrl interface {
	doCtrl()
}

// PureCtrl lifts a value with no further reduction of its own.
type PureCtrl struct{ Value Value }

func (PureCtrl) doCtrl() {}

// Pure lifts v into a completed control expression.
func Pure(v Value) DoCtrl { return PureCtrl{Value: v} }

// CallCtrl invokes a host function with already-reduced arguments. Errors
// returned by Fn propagate as a VM Failed outcome, exactly like a raised
// exception at the Call site.
type CallCtrl struct {
	Fn   func(args []Value) (Value, error)
	Args []Value
}

func (CallCtrl) doCtrl() {}

// Call builds a CallCtrl.
func Call(fn func(args []Value) (Value, error), args ...Value) DoCtrl {
	return CallCtrl{Fn: fn, Args: args}
}

// MapCtrl applies F to Expr's result once it completes.
type MapCtrl struct {
	Expr DoCtrl
	F    func(Value) Value
}

func (MapCtrl) doCtrl() {}

// MapCtrlOf builds a MapCtrl. Named distinctly from the package-level Map
// helper below, which is the ergonomic constructor users call.
func MapCtrlOf(e DoCtrl, f func(Value) Value) DoCtrl { return MapCtrl{Expr: e, F: f} }

// Map sequences e, applying f to its result.
func Map(e DoCtrl, f func(Value) Value) DoCtrl { return MapCtrl{Expr: e, F: f} }

// FlatMapCtrl sequences Expr into a new DoCtrl produced from its result.
type FlatMapCtrl struct {
	Expr DoCtrl
	K    func(Value) DoCtrl
}

func (FlatMapCtrl) doCtrl() {}

// FlatMap sequences e, continuing with k(result).
func FlatMap(e DoCtrl, k func(Value) DoCtrl) DoCtrl { return FlatMapCtrl{Expr: e, K: k} }

// PerformCtrl triggers an effect, searching the handler stack.
type PerformCtrl struct{ Effect Effect }

func (PerformCtrl) doCtrl() {}

// Perform wraps payload as an Effect (capturing the caller's source
// context) and performs it.
func Perform(payload Value) DoCtrl {
	return PerformCtrl{Effect: Effect{Payload: payload, Context: captureContext(1)}}
}

// PerformEffect performs an already-constructed Effect, e.g. one
// re-offered by Delegate with a different payload.
func PerformEffect(e Effect) DoCtrl { return PerformCtrl{Effect: e} }

// WithHandlerCtrl installs Handler over the lexical extent of Expr.
type WithHandlerCtrl struct {
	Handler HandlerFunc
	Expr    DoCtrl
	name    string
}

func (WithHandlerCtrl) doCtrl() {}

// WithHandler installs h over e.
func WithHandler(h HandlerFunc, e DoCtrl) DoCtrl {
	return WithHandlerCtrl{Handler: h, Expr: e}
}

// NamedHandler attaches a display name to a handler, used only by the
// traceback assembler (spec.md §4.6's "handler function name").
func NamedHandler(name string, h HandlerFunc, e DoCtrl) DoCtrl {
	return WithHandlerCtrl{Handler: h, Expr: e, name: name}
}

// ResumeCtrl rewinds the captured continuation K with Value.
type ResumeCtrl struct {
	K     *Continuation
	Value Value
}

func (ResumeCtrl) doCtrl() {}

// Resume rewinds k with v.
func Resume(k *Continuation, v Value) DoCtrl { return ResumeCtrl{K: k, Value: v} }

// TransferCtrl performs a non-returning jump to K with Value, discarding
// the handler's own remaining continuation.
type TransferCtrl struct {
	K     *Continuation
	Value Value
}

func (TransferCtrl) doCtrl() {}

// Transfer jumps to k with v, abandoning the caller's own continuation.
func Transfer(k *Continuation, v Value) DoCtrl { return TransferCtrl{K: k, Value: v} }

// DelegateCtrl re-offers the current effect to the next outer handler,
// valid only inside a handler body. Effect == nil means "same effect".
type DelegateCtrl struct{ Effect *Effect }

func (DelegateCtrl) doCtrl() {}

// Delegate re-offers the effect currently being handled, optionally
// substituting a new one.
func Delegate(e *Effect) DoCtrl { return DelegateCtrl{Effect: e} }

// Pass is shorthand for Delegate(nil).
func Pass() DoCtrl { return DelegateCtrl{} }

// EvalCtrl installs an isolated handler stack, runs Expr to completion, and
// returns its value to the caller — a nested interpreter.
type EvalCtrl struct {
	Expr     DoCtrl
	Handlers []HandlerFunc
}

func (EvalCtrl) doCtrl() {}

// Eval runs e under a fresh, isolated handler stack (handlers innermost
// first) and yields its final value.
func Eval(e DoCtrl, handlers ...HandlerFunc) DoCtrl {
	return EvalCtrl{Expr: e, Handlers: handlers}
}

// LocalCtrl extends the environment for the dynamic extent of Expr.
type LocalCtrl struct {
	Bindings map[string]Value
	Expr     DoCtrl
}

func (LocalCtrl) doCtrl() {}

// Local extends the environment with bindings for the extent of e.
func Local(bindings map[string]Value, e DoCtrl) DoCtrl {
	return LocalCtrl{Bindings: bindings, Expr: e}
}

// MaskCtrl hides, for the listed effect types, the nearest handler enclosing
// the mask from dispatches inside Expr; the search continues outward past it.
type MaskCtrl struct {
	Types []reflect.Type
	Expr  DoCtrl
}

func (MaskCtrl) doCtrl() {}

// Mask hides, for the given effect-payload types over e's extent, the nearest
// handler enclosing the mask; handlers further out still receive them.
// Pass the payload types' reflect.Type values, e.g.
// Mask([]reflect.Type{reflect.TypeOf(AskEffect{})}, e).
func Mask(types []reflect.Type, e DoCtrl) DoCtrl {
	return MaskCtrl{Types: types, Expr: e}
}

// OverrideCtrl installs a handler that takes precedence for Types and
// delegates everything else.
type OverrideCtrl struct {
	Handler HandlerFunc
	Types   []reflect.Type
	Expr    DoCtrl
	name    string
}

func (OverrideCtrl) doCtrl() {}

// Override installs h for the listed effect-payload types over e's extent,
// delegating all other effects to the enclosing handler stack.
func Override(h HandlerFunc, types []reflect.Type, e DoCtrl) DoCtrl {
	return OverrideCtrl{Handler: h, Types: types, Expr: e}
}

// InterceptMode selects whether Types names the effects an interceptor
// transforms (Include) or the ones it leaves alone (Exclude).
type InterceptMode int

const (
	InterceptInclude InterceptMode = iota
	InterceptExclude
)

// InterceptFunc transforms an effect before dispatch. It returns a
// Generator exactly like a HandlerFunc body, since spec.md §4.5 allows an
// interceptor itself to be effectful. A final value that is an Effect
// replaces the intercepted one; any other value becomes the payload of a
// new Effect.
type InterceptFunc func(e Effect) Generator

// WithInterceptCtrl installs a pre-dispatch effect transformer.
type WithInterceptCtrl struct {
	Fn    InterceptFunc
	Expr  DoCtrl
	Types []reflect.Type
	Mode  InterceptMode
}

func (WithInterceptCtrl) doCtrl() {}

// WithIntercept installs fn as a pre-dispatch transformer over e's extent.
func WithIntercept(fn InterceptFunc, e DoCtrl, types []reflect.Type, mode InterceptMode) DoCtrl {
	return WithInterceptCtrl{Fn: fn, Expr: e, Types: types, Mode: mode}
}

// ExpandCtrl is the compiled form of a Do-decorated call: factory is
// invoked exactly once, after args are reduced left-to-right, to produce a
// fresh Generator (see DESIGN.md's DoCtrl entry for why factory takes the
// evaluated args rather than being a literal thunk).
type ExpandCtrl struct {
	Factory func(args []Value) Generator
	Args    []DoCtrl
}

func (ExpandCtrl) doCtrl() {}

// Expand builds an ExpandCtrl.
func Expand(factory func(args []Value) Generator, args []DoCtrl) DoCtrl {
	return ExpandCtrl{Factory: factory, Args: args}
}

// parkCtrl is an internal, unexported VM-level extension: a handler that
// wants to suspend a task (rather than Resume/Delegate/Transfer/return a
// value) yields this to signal the driving Run loop to stop the current
// reduction slice without producing Done or Failed. It exists because
// spec.md §4.1 itself anticipates "a terminal state or a scheduler-yield
// signal" as the trampoline's two kinds of stopping points; Park is the
// mechanism realizing the second kind. Never part of the public DoCtrl
// surface handler/user code constructs directly — reached only through
// Park() in the scheduler's own handler.
type parkCtrl struct{}

func (parkCtrl) doCtrl() {}

// Park is used by handlers that must suspend the current task without
// resuming, delegating, or abandoning its captured continuation (the
// scheduler's blocking effects: Wait, Gather, Race, Acquire-with-no-permit).
// The continuation itself must be separately retained by the caller (e.g.
// stashed in a waiter table) since Park carries no payload of its own.
func Park() DoCtrl { return parkCtrl{} }
