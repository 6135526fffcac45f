// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm

// Run drives program to completion with no scheduler installed (no Spawn/
// Wait/Gather/Race support — that is doeffvm/scheduler's concern), under a
// fresh Env/Store and no extra installed handlers beyond the built-in
// fallback (see evaluator.go's resolveBuiltin). It is RunWith(program,
// RunConfig{}) — use RunWith directly to seed Env/Store or install
// handlers ahead of program, matching spec.md §6's
// run(program, *, handlers=default_handlers(), env={}, store={}).
// Mirrors kont/run.go's Run/RunWith pair, generalized from a bare
// identity-continuation call to a full VM drive loop.
func Run(program DoCtrl) *RunResult {
	return RunWith(program, RunConfig{})
}

// RunConfig holds Run's optional extras. Handlers are installed outermost-
// first (index 0 is the least recently pushed, searched last) below
// whatever WithHandler/Override program itself installs, so program's own
// handlers always take precedence — the same precedence the built-in
// Ask/Get/Put/Modify/Tell/Listen/Try fallback already gives a program that
// shadows one of those effect types.
type RunConfig struct {
	Handlers []HandlerFunc
	Env      map[string]Value
	Store    Store
}

// RunWith drives program to completion the same way Run does, but seeded
// from cfg: cfg.Env is bound into a fresh root Env, cfg.Store stands in for
// a fresh Store when supplied (the zero value, whose map is nil, means "not
// supplied" and is replaced by NewStore()), and cfg.Handlers are installed
// before program's own control
// expression starts reducing.
func RunWith(program DoCtrl, cfg RunConfig) *RunResult {
	env := NewEnv()
	if len(cfg.Env) > 0 {
		env = env.Extend(cfg.Env)
	}
	store := cfg.Store
	if store.data == nil {
		store = NewStore()
	}
	log := new([]Value)
	st := &state{control: program, env: env, store: store, handlers: installHandlers(cfg.Handlers), log: log}
	for {
		kind, err := st.step()
		switch kind {
		case outcomeDone:
			return &RunResult{ok: true, value: st.control.(PureCtrl).Value, store: st.store, log: *log}
		case outcomeFailed:
			return &RunResult{ok: false, err: err, traceback: tracebackOf(err), store: st.store, log: *log}
		case outcomeParked:
			return &RunResult{ok: false, err: &HandlerContract{Reason: "a scheduler-blocking effect was performed with no scheduler installed; use scheduler.Run instead"}, store: st.store, log: *log}
		}
	}
}

// RunResult is the outcome of a top-level Run: either a value or a failure,
// plus the final Store and Writer log.
type RunResult struct {
	ok        bool
	value     Value
	err       error
	traceback *Traceback
	store     Store
	log       []Value
}

// IsOk reports whether the run completed successfully.
func (r *RunResult) IsOk() bool { return r.ok }

// Value returns the run's result value; zero Value if it failed.
func (r *RunResult) Value() Value { return r.value }

// Err returns the run's failure; nil if it succeeded.
func (r *RunResult) Err() error { return r.err }

// Traceback returns the captured traceback of a failed run, or nil.
func (r *RunResult) Traceback() *Traceback { return r.traceback }

// Store returns the final Store the run produced.
func (r *RunResult) Store() Store { return r.store }

// Log returns everything Tell accumulated over the run.
func (r *RunResult) Log() []Value { return r.log }

// tracebackOf extracts the *Traceback attached to one of this package's
// typed errors, if any.
func tracebackOf(err error) *Traceback {
	switch e := err.(type) {
	case *UnhandledEffect:
		return e.Traceback
	case *OneShotViolation:
		return e.Traceback
	case *CrossScopeResume:
		return e.Traceback
	case *TaskCancelledError:
		return e.Traceback
	case *MissingEnvKey:
		return e.Traceback
	case *PromiseAlreadyCompleted:
		return e.Traceback
	case *HandlerContract:
		return e.Traceback
	}
	return nil
}
