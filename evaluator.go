// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm

import (
	"log/slog"
	"reflect"

	"github.com/google/uuid"
)

// logger is the package-level diagnostic sink. Silent by default — callers
// opt in with SetLogger, following the injected-logger pattern
// pumped-fn-pumped-go's extensions.GraphDebugExtension uses.
var logger = slog.New(slog.NewTextHandler(discardWriter{}, nil))

// SetLogger installs l as the package's diagnostic logger.
func SetLogger(l *slog.Logger) { logger = l }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// interceptorEntry is one installed WithIntercept frame.
type interceptorEntry struct {
	id     string
	fn     InterceptFunc
	types  []reflect.Type
	mode   InterceptMode
	active bool // guards against the interceptor's own emissions re-triggering it
}

func (ie *interceptorEntry) shouldTransform(e Effect) bool {
	if ie.active {
		return false
	}
	matches := e.matchesAny(ie.types)
	if ie.mode == InterceptExclude {
		return !matches
	}
	return matches
}

// state is the CESK machine state (C, E, S, K, H) plus the bookkeeping the
// trampoline needs: the active interceptor chain and the stack of
// in-progress handler dispatches (for Delegate/Pass).
type state struct {
	control  DoCtrl
	env      *Env
	store    Store
	kont     []contFrame
	handlers []handlerFrame

	interceptors []*interceptorEntry
	dispatches   []*dispatchCtx

	// log is the Writer accumulator Tell/Listen operate on. It is a shared
	// pointer rather than a plain slice field so nested sub-evaluations
	// (runToStop, for Eval/Try/Listen/interceptor bodies) observe and
	// extend the same underlying log as the task that spawned them.
	log *[]Value
}

// outcomeKind is the terminal shape a reduction slice can stop at.
type outcomeKind int

const (
	outcomeRunning outcomeKind = iota
	outcomeDone
	outcomeFailed
	outcomeParked
)

// result is the value produced by driving step to a stop.
type result struct {
	kind      outcomeKind
	value     Value
	err       error
	traceback *Traceback
}

// step performs one reduction. It never recurses into itself for the main
// trampoline spine (Map/FlatMap/Perform/Resume chains); Eval and the
// interceptor pipeline use a small, explicitly bounded nested call to this
// same loop (runToStop), which is a deliberate, documented exception for
// "nested interpreter" semantics, not the hot path.
func (st *state) step() (outcomeKind, error) {
	switch c := st.control.(type) {
	case PureCtrl:
		return st.reducePure(c.Value)

	case CallCtrl:
		v, err := c.Fn(c.Args)
		if err != nil {
			return st.fail(err)
		}
		st.control = PureCtrl{Value: v}
		return outcomeRunning, nil

	case MapCtrl:
		st.kont = append(st.kont, mapFrame{f: c.F})
		st.control = c.Expr
		return outcomeRunning, nil

	case FlatMapCtrl:
		st.kont = append(st.kont, flatMapFrame{k: c.K})
		st.control = c.Expr
		return outcomeRunning, nil

	case PerformCtrl:
		return st.dispatchPerform(c.Effect)

	case WithHandlerCtrl:
		st.pushHandler(c.Handler, handlerNormal, nil, c.name)
		st.control = c.Expr
		return outcomeRunning, nil

	case OverrideCtrl:
		st.pushHandler(c.Handler, handlerOverride, c.Types, c.name)
		st.control = c.Expr
		return outcomeRunning, nil

	case MaskCtrl:
		st.pushHandler(nil, handlerMasked, c.Types, "mask")
		st.control = c.Expr
		return outcomeRunning, nil

	case ResumeCtrl:
		return st.doResume(c.K, c.Value, false)

	case TransferCtrl:
		return st.doResume(c.K, c.Value, true)

	case DelegateCtrl:
		return st.doDelegate(c.Effect)

	case LocalCtrl:
		st.kont = append(st.kont, localEnvFrame{saved: st.env})
		st.env = st.env.Extend(c.Bindings)
		st.control = c.Expr
		return outcomeRunning, nil

	case WithInterceptCtrl:
		id := uuid.NewString()
		st.interceptors = append(st.interceptors, &interceptorEntry{id: id, fn: c.Fn, types: c.Types, mode: c.Mode})
		st.kont = append(st.kont, interceptorPopFrame{id: id})
		st.control = c.Expr
		return outcomeRunning, nil

	case ExpandCtrl:
		return st.startExpand(c.Factory, c.Args)

	case EvalCtrl:
		return st.doEval(c.Expr, c.Handlers)

	case parkCtrl:
		return st.doPark()

	default:
		return st.fail(&HandlerContract{Reason: "unknown DoCtrl node"})
	}
}

func (st *state) fail(err error) (outcomeKind, error) {
	if err == nil {
		err = &HandlerContract{Reason: "nil error"}
	}
	return outcomeFailed, withTraceback(err, st)
}

// withTraceback attaches a *Traceback to err if it is one of this package's
// typed error kinds and doesn't already carry one.
func withTraceback(err error, st *state) error {
	tb := newTraceback(st)
	switch e := err.(type) {
	case *UnhandledEffect:
		if e.Traceback == nil {
			e.Traceback = tb
		}
	case *OneShotViolation:
		if e.Traceback == nil {
			e.Traceback = tb
		}
	case *CrossScopeResume:
		if e.Traceback == nil {
			e.Traceback = tb
		}
	case *TaskCancelledError:
		if e.Traceback == nil {
			e.Traceback = tb
		}
	case *MissingEnvKey:
		if e.Traceback == nil {
			e.Traceback = tb
		}
	case *PromiseAlreadyCompleted:
		if e.Traceback == nil {
			e.Traceback = tb
		}
	case *HandlerContract:
		if e.Traceback == nil {
			e.Traceback = tb
		}
	}
	return err
}

// reducePure implements rule 77: pop the top frame and react to its kind.
func (st *state) reducePure(v Value) (outcomeKind, error) {
	for {
		if len(st.kont) == 0 {
			st.control = PureCtrl{Value: v}
			return outcomeDone, nil
		}
		top := st.kont[len(st.kont)-1]
		st.kont = st.kont[:len(st.kont)-1]

		switch f := top.(type) {
		case mapFrame:
			v = f.f(v)
			continue

		case flatMapFrame:
			st.control = f.k(v)
			return outcomeRunning, nil

		case promptFrame:
			st.removeHandlerByPromptID(f.promptID)
			continue

		case localEnvFrame:
			st.env = f.saved
			continue

		case interceptorPopFrame:
			st.removeInterceptor(f.id)
			continue

		case expandArgsFrame:
			f.values = append(f.values, v)
			if len(f.pending) > 0 {
				next := f.pending[0]
				f.pending = f.pending[1:]
				st.kont = append(st.kont, f)
				st.control = next
				return outcomeRunning, nil
			}
			gen := f.factory(f.values)
			return st.driveGenerator(gen, v, nil)

		case genFrame:
			return st.driveGenerator(f.gen, v, f.dispatch)

		default:
			return st.fail(&HandlerContract{Reason: "unknown continuation frame"})
		}
	}
}

func (st *state) removeHandlerByPromptID(id string) {
	for i, h := range st.handlers {
		if h.promptID == id {
			st.handlers = append(st.handlers[:i], st.handlers[i+1:]...)
			return
		}
	}
}

func (st *state) removeInterceptor(id string) {
	for i, ie := range st.interceptors {
		if ie.id == id {
			st.interceptors = append(st.interceptors[:i], st.interceptors[i+1:]...)
			return
		}
	}
}

func (st *state) pushHandler(fn HandlerFunc, mode handlerMode, types []reflect.Type, name string) {
	id := uuid.NewString()
	st.handlers = append(st.handlers, handlerFrame{
		fn: fn, promptID: id, mode: mode, filterTypes: types,
		name: name, installedAt: captureContext(3),
	})
	st.kont = append(st.kont, promptFrame{promptID: id})
}

// startExpand begins reducing an Expand node's arguments left to right.
func (st *state) startExpand(factory func([]Value) Generator, args []DoCtrl) (outcomeKind, error) {
	if len(args) == 0 {
		gen := factory(nil)
		return st.driveGenerator(gen, nil, nil)
	}
	f := expandArgsFrame{factory: factory, pending: args[1:]}
	st.kont = append(st.kont, f)
	st.control = args[0]
	return outcomeRunning, nil
}

// driveGenerator advances gen with resume and reacts to its step. dispatch
// is non-nil when gen is driving a handler body rather than a plain Expand.
func (st *state) driveGenerator(gen Generator, resume Value, dispatch *dispatchCtx) (outcomeKind, error) {
	step, done, err := gen.Next(resume)
	if err != nil {
		if dispatch != nil {
			dispatch.snapshot[dispatch.chosenIdx].status = StatusThrew
		}
		return st.fail(err)
	}
	if !done {
		st.kont = append(st.kont, genFrame{gen: gen, dispatch: dispatch})
		st.control = step
		return outcomeRunning, nil
	}
	finalValue := step.(PureCtrl).Value
	if dispatch == nil {
		st.control = PureCtrl{Value: finalValue}
		return outcomeRunning, nil
	}
	return st.concludeDispatch(dispatch, finalValue)
}

// concludeDispatch implements the unified ending of rule 84 (abandon, if
// dispatch.cont was never consumed) and rule 85 (post-resume finalization,
// if it was): either way the handler's final value becomes the Perform's
// value in the continuation that existed before its WithHandler installed
// its prompt.
func (st *state) concludeDispatch(d *dispatchCtx, finalValue Value) (outcomeKind, error) {
	d.cont.abandon() // no-op if already consumed
	if !d.cont.Used() {
		st.handlers = d.runHandlers
	}
	st.kont = append([]contFrame{}, d.outerKont...)
	// pop this dispatch off the in-progress stack
	for i := len(st.dispatches) - 1; i >= 0; i-- {
		if st.dispatches[i] == d {
			st.dispatches = append(st.dispatches[:i], st.dispatches[i+1:]...)
			break
		}
	}
	st.control = PureCtrl{Value: finalValue}
	return outcomeRunning, nil
}

// doPark implements the scheduler's suspension exit. A handler that yields
// Park() (rather than Resume/Delegate/Transfer/returning) is, like the
// Resume/Transfer paths, never driven again past this point — but unlike
// concludeDispatch's abandon path, the user continuation it captured (k
// user code performed Wait/Gather/Race/Acquire against) must stay live and
// unconsumed, since the scheduler resumes it later from outside this
// reduction slice entirely. What does need unwinding here is st.kont/
// st.handlers: driveGenerator pushed this handler's own genFrame right
// before yielding Park, and that frame must not linger under whatever
// program resuming k runs into next — so it is popped back to the
// dispatch's outerKont/runHandlers exactly as concludeDispatch would,
// just without touching k's used/live bits.
func (st *state) doPark() (outcomeKind, error) {
	if len(st.kont) > 0 {
		if gf, ok := st.kont[len(st.kont)-1].(genFrame); ok && gf.dispatch != nil {
			d := gf.dispatch
			st.kont = append([]contFrame{}, d.outerKont...)
			st.handlers = d.runHandlers
			for i := len(st.dispatches) - 1; i >= 0; i-- {
				if st.dispatches[i] == d {
					st.dispatches = append(st.dispatches[:i], st.dispatches[i+1:]...)
					break
				}
			}
		}
	}
	return outcomeParked, nil
}

// dispatchPerform implements spec.md §4.2's search, applying any active
// interceptors first.
func (st *state) dispatchPerform(e Effect) (outcomeKind, error) {
	e, err := st.applyIntercepts(e)
	if err != nil {
		return st.fail(err)
	}

	snapshot := append([]handlerFrame{}, st.handlers...)
	idx, ok := searchHandlers(snapshot, len(snapshot)-1, nil, e)
	if !ok {
		if v, handled, berr := st.resolveBuiltin(e); handled {
			if berr != nil {
				return st.fail(berr)
			}
			st.control = PureCtrl{Value: v}
			return outcomeRunning, nil
		}
		return st.fail(&UnhandledEffect{Effect: e})
	}
	return st.enterHandler(snapshot, idx, e, nil, map[int]bool{})
}

// applyIntercepts runs each active interceptor innermost-to-outermost,
// each seeing the previous one's output, with a non-reentry guard so an
// interceptor's own emitted effects are exempt from its own filter.
func (st *state) applyIntercepts(e Effect) (Effect, error) {
	for i := len(st.interceptors) - 1; i >= 0; i-- {
		ie := st.interceptors[i]
		if !ie.shouldTransform(e) {
			continue
		}
		ie.active = true
		program := genToCtrl(ie.fn(e))
		v, newStore, err := runToStop(program, st.env, st.store, st.handlers, st.log)
		ie.active = false
		st.store = newStore
		if err != nil {
			return e, err
		}
		if next, ok := v.(Effect); ok {
			e = next
		} else {
			e = NewEffect(v)
		}
	}
	return e, nil
}

// enterHandler captures k_user for effect e against handler snapshot[idx]
// and sets up the state to run that handler's body.
func (st *state) enterHandler(snapshot []handlerFrame, idx int, e Effect, reuse *Continuation, consumed map[int]bool) (outcomeKind, error) {
	chosen := snapshot[idx]

	pk := -1
	for i := len(st.kont) - 1; i >= 0; i-- {
		if pf, ok := st.kont[i].(promptFrame); ok && pf.promptID == chosen.promptID {
			pk = i
			break
		}
	}
	if pk < 0 {
		// The chosen handler's prompt is not on K: it sits below all of K (a
		// handler installed by installHandlers, or one outside the handler
		// body currently running), so its continuation is the whole of K.
		pk = 0
	}

	var cont *Continuation
	if reuse != nil {
		cont = reuse
	} else {
		kUser := append([]contFrame{}, st.kont[pk:]...)
		cont = newContinuation(kUser, snapshot, chosen.promptID, idx)
	}

	d := &dispatchCtx{
		cont: cont, effect: e, snapshot: snapshot, chosenIdx: idx,
		consumed: consumed, outerKont: append([]contFrame{}, st.kont[:pk]...),
		runHandlers: append([]handlerFrame{}, snapshot[:idx]...),
	}
	st.dispatches = append(st.dispatches, d)

	st.kont = nil
	st.handlers = d.runHandlers
	gen := chosen.fn(e, cont)
	return st.driveGenerator(gen, nil, d)
}

// doResume implements Resume/Transfer. transfer discards the caller's own
// remaining continuation; plain Resume prepends k's frames on top of it.
func (st *state) doResume(k *Continuation, v Value, transfer bool) (outcomeKind, error) {
	if err := k.tryConsume(); err != nil {
		return st.fail(err)
	}
	// The frame marked is whichever handler's body is actually calling
	// Resume right now (the top of st.dispatches), not necessarily the one
	// that first captured k — a Delegate hop can hand k to an outer
	// handler before it gets resumed, and that outer frame is the one
	// whose status should read Resumed while the delegating frame keeps
	// its own Delegated mark (both live in the same shared snapshot).
	if n := len(st.dispatches); n > 0 {
		d := st.dispatches[n-1]
		d.snapshot[d.chosenIdx].status = StatusResumed
	}
	if transfer {
		st.kont = append([]contFrame{}, k.frames...)
	} else {
		st.kont = append(append([]contFrame{}, st.kont...), k.frames...)
	}
	st.handlers = append([]handlerFrame{}, k.handlers...)
	st.control = PureCtrl{Value: v}
	return outcomeRunning, nil
}

// doDelegate implements Delegate/Pass: marks the current dispatch's chosen
// frame consumed and re-searches outward from there with the same k_user.
func (st *state) doDelegate(replacement *Effect) (outcomeKind, error) {
	if len(st.dispatches) == 0 {
		return st.fail(&HandlerContract{Reason: "Delegate used outside a handler"})
	}
	// d stays on st.dispatches until a next handler is actually found: if
	// the re-search below comes up empty, the Traceback this failure
	// captures must still be able to walk it and see this frame's
	// just-set Delegated status, not find it silently gone.
	d := st.dispatches[len(st.dispatches)-1]

	d.snapshot[d.chosenIdx].status = StatusDelegated
	d.consumed[d.chosenIdx] = true
	effect := d.effect
	if replacement != nil {
		effect = *replacement
	}
	idx, ok := searchHandlers(d.snapshot, d.chosenIdx-1, d.consumed, effect)
	if !ok {
		return st.fail(&UnhandledEffect{Effect: effect})
	}
	st.dispatches = st.dispatches[:len(st.dispatches)-1]
	// The next handler's continuation reaches down to its own prompt, so the
	// frames between that prompt and this handler's prompt join k_user, and K
	// goes back to what existed below this handler's prompt.
	from := 0
	for i := len(d.outerKont) - 1; i >= 0; i-- {
		if pf, ok := d.outerKont[i].(promptFrame); ok && pf.promptID == d.snapshot[idx].promptID {
			from = i
			break
		}
	}
	d.cont.frames = append(append([]contFrame{}, d.outerKont[from:]...), d.cont.frames...)
	st.kont = append([]contFrame{}, d.outerKont...)
	return st.enterHandler(d.snapshot, idx, effect, d.cont, d.consumed)
}

// doEval installs an isolated handler stack and runs e to completion via a
// small, bounded recursive call into this same machine — the one place
// this package intentionally does not keep everything on a single
// trampoline spine, since "nested interpreter" is inherently a nested
// evaluation (spec.md §4.1's Eval rule).
func (st *state) doEval(e DoCtrl, handlers []HandlerFunc) (outcomeKind, error) {
	// handlers lists the innermost first; installHandlers treats the last
	// entry as innermost, so the list is reversed before installing.
	ordered := make([]HandlerFunc, len(handlers))
	for i, h := range handlers {
		ordered[len(handlers)-1-i] = h
	}
	v, newStore, err := runToStop(e, st.env, st.store, installHandlers(ordered), st.log)
	if err != nil {
		return st.fail(err)
	}
	st.store = newStore
	st.control = PureCtrl{Value: v}
	return outcomeRunning, nil
}

// resolveBuiltin implements the default semantics of the reference-handler
// effect families (Ask/Get/Put/Modify/Tell/Listen/Try) spec.md §6 names as
// "built-in, not core." They are consulted only as a fallback once the
// ordinary handler-stack search finds nothing, so a program can still
// install its own WithHandler/Override for any of these payload types and
// take precedence over the default. They are implemented here, rather than
// as ordinary installed HandlerFunc closures, because their semantics need
// direct access to the live Env/Store/log a HandlerFunc's (Effect,
// *Continuation) signature has no way to receive — see DESIGN.md.
func (st *state) resolveBuiltin(e Effect) (Value, bool, error) {
	switch p := e.Payload.(type) {
	case AskEffect:
		v, cell, ok := st.env.lookup(p.Key)
		if !ok {
			return nil, true, &MissingEnvKey{Key: p.Key}
		}
		if cell == nil {
			return v, true, nil
		}
		fv, ferr := cell.force(st.log)
		return fv, true, ferr

	case GetEffect:
		v, _ := st.store.Get(p.Key)
		return v, true, nil

	case PutEffect:
		st.store = st.store.Put(p.Key, p.Value)
		return struct{}{}, true, nil

	case ModifyEffect:
		ns, err := st.store.Modify(p.Key, p.F)
		if err != nil {
			return nil, true, err
		}
		st.store = ns
		v, _ := ns.Get(p.Key)
		return v, true, nil

	case TellEffect:
		*st.log = append(*st.log, p.Value)
		return struct{}{}, true, nil

	case ListenEffect:
		start := len(*st.log)
		v, newStore, err := runToStop(p.Body, st.env, st.store, st.handlers, st.log)
		st.store = newStore
		if err != nil {
			return nil, true, err
		}
		written := append([]Value{}, (*st.log)[start:]...)
		return Pair{Fst: v, Snd: written}, true, nil

	case TryEffect:
		v, newStore, err := runToStop(p.Body, st.env, st.store, st.handlers, st.log)
		st.store = newStore
		if err != nil {
			return Result{Ok: false, Err: err}, true, nil
		}
		return Result{Ok: true, Value: v}, true, nil
	}
	return nil, false, nil
}

// genToCtrl wraps an already-constructed Generator (an interceptor body, not
// a fresh per-call factory) as a zero-argument ExpandCtrl so it can be driven
// by the ordinary trampoline machinery runToStop reuses.
func genToCtrl(gen Generator) DoCtrl {
	return ExpandCtrl{Factory: func([]Value) Generator { return gen }}
}

func installHandlers(fns []HandlerFunc) []handlerFrame {
	hs := make([]handlerFrame, 0, len(fns))
	for _, fn := range fns {
		hs = append(hs, handlerFrame{fn: fn, promptID: uuid.NewString(), mode: handlerNormal})
	}
	return hs
}

// runToStop drives a fresh sub-evaluation to Done or Failed, returning the
// sub-evaluation's final Store alongside its value so Store mutations inside
// an Eval (e.g. a nested State handler) are visible to the caller; it must
// not itself Park (scheduler-blocking effects are not supported inside Eval
// or interceptor bodies — a documented scope limitation, see DESIGN.md).
func runToStop(program DoCtrl, env *Env, store Store, handlers []handlerFrame, log *[]Value) (Value, Store, error) {
	if log == nil {
		log = new([]Value)
	}
	sub := &state{control: program, env: env, store: store, handlers: append([]handlerFrame{}, handlers...), log: log}
	for {
		kind, err := sub.step()
		switch kind {
		case outcomeDone:
			return sub.control.(PureCtrl).Value, sub.store, nil
		case outcomeFailed:
			return nil, sub.store, err
		case outcomeParked:
			return nil, sub.store, &HandlerContract{Reason: "a scheduler-blocking effect was performed inside Eval or an interceptor, which is unsupported"}
		}
	}
}
