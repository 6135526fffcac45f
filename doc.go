// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package doeffvm implements a Koka/Eff-style algebraic-effects virtual
// machine on top of ordinary imperative Go. User programs are built from
// DoCtrl control expressions (typically via the Do decorator, which turns a
// generator-shaped function into a pure, re-entrant DoCtrl factory);
// handlers intercept performed effects, and the evaluator supplies the
// scheduling, continuation-capture, and resumption machinery that makes
// algebraic effects work without growing the host call stack.
//
// # Design
//
// The evaluator is a CESK machine: a single step is a total function over
// the 5-tuple (C, E, S, K, H) — control expression, environment, store,
// continuation, handler stack. Run drives step in a loop (a trampoline, not
// recursion) until a terminal value, a failure, or a scheduler yield.
//
// DoCtrl is a defunctionalized control-flow AST, not a closure: unlike a
// plain continuation-passing function, an AST node can be inspected,
// partially reduced, and — critically — captured as a one-shot
// Continuation when a handler intercepts a Perform. This is the same
// "represent control flow as data, not as closures" technique used for
// frame-based evaluation; here it is generalized to a full handler *stack*
// with masking, delegation, and scope-checked resumption rather than a
// single active handler.
//
// # Core operations
//
//   - [Pure]: lift a value
//   - [Call]: invoke a host function with already-reduced arguments
//   - [Map], [FlatMap]: sequence control expressions
//   - [Perform]: trigger an effect, searching the handler stack
//   - [WithHandler]: install a handler over a lexical scope
//   - [Resume], [Transfer], [Delegate], [Pass]: handler-body control operators
//   - [Eval]: run a sub-expression under an isolated handler stack
//   - [Local]: extend the environment for a sub-expression
//   - [Mask], [Override]: make a scope transparent to, or take precedence
//     for, specific effect types
//   - [WithIntercept]: install a pre-dispatch effect transformer
//   - [Expand]: the compiled form of a Do-decorated call
//
// # Reference handlers
//
// Ask/Local (reader), Get/Put/Modify (state), Tell/Listen (writer), and Try
// (error-to-value) are resolved by a built-in fallback in the evaluator,
// consulted only when no installed handler matches, so a program's own
// handler for one of these effect types takes precedence.
//
// # Scheduler
//
// Cooperative multitasking, promises, and the external-promise bridge live
// in the sibling package doeffvm/scheduler, which drives this package's
// evaluator one reduction slice at a time per task. Traceback rendering
// lives in doeffvm/trace; this package only captures the provenance data.
package doeffvm
