// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm

import "fmt"

// Generator is the VM's closest equivalent to a host generator: repeated
// calls to Next drive the body forward one yielded DoCtrl at a time, each
// call supplying the resume value for the previous yield. Next reports
// done=true exactly once, on the call whose Step carries the generator's
// final Pure return value.
//
// Go has no native generator/yield construct, so the Do decorator below
// backs Generator with a goroutine handing off control through a pair of
// unbuffered channels — one rendezvous per step, the same one-active-side
// discipline a one-shot continuation already needs at the handler boundary,
// applied here at the generator boundary instead.
type Generator interface {
	Next(resume Value) (step DoCtrl, done bool, err error)
}

// GenFunc is the shape of a Do-decorated function body: it receives a yield
// callback (yield(step) returns the resume value the VM supplies) and
// returns the generator's final result.
type GenFunc func(yield func(DoCtrl) Value) Value

type genMsg struct {
	step DoCtrl
	val  Value
	done bool
	err  error
}

// coroutine implements Generator over a GenFunc body.
type coroutine struct {
	resumeCh chan Value
	stepCh   chan genMsg
	started  bool
	finished bool
}

func newCoroutine(fn GenFunc) *coroutine {
	c := &coroutine{
		resumeCh: make(chan Value),
		stepCh:   make(chan genMsg),
	}
	go c.run(fn)
	return c
}

func (c *coroutine) run(fn GenFunc) {
	defer func() {
		if r := recover(); r != nil {
			c.stepCh <- genMsg{done: true, err: panicToError(r)}
		}
	}()
	yield := func(step DoCtrl) Value {
		c.stepCh <- genMsg{step: step}
		return <-c.resumeCh
	}
	result := fn(yield)
	c.stepCh <- genMsg{done: true, val: result}
}

// Next implements Generator. The first call primes the goroutine (no value
// to send yet); every subsequent call sends resume before waiting for the
// next step, mirroring gen.send(v) semantics.
func (c *coroutine) Next(resume Value) (DoCtrl, bool, error) {
	if c.finished {
		return nil, true, fmt.Errorf("doeffvm: Next called on a finished generator")
	}
	if !c.started {
		c.started = true
	} else {
		c.resumeCh <- resume
	}
	msg := <-c.stepCh
	if msg.done {
		c.finished = true
		if msg.err != nil {
			return nil, true, msg.err
		}
		return Pure(msg.val), true, nil
	}
	return msg.step, false, nil
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("doeffvm: generator panic: %v", r)
}

// Do lifts a generator-shaped function into a callable producing Expand
// control expressions, matching spec.md §6's do(fn) contract: parameters are
// pre-lifted DoCtrl arguments, reduced left-to-right before a fresh
// generator is constructed, keeping each call pure and re-entrant.
func Do(fn func(args []Value) GenFunc) func(args ...DoCtrl) DoCtrl {
	return func(args ...DoCtrl) DoCtrl {
		factory := func(evaluated []Value) Generator {
			return newCoroutine(fn(evaluated))
		}
		return Expand(factory, args)
	}
}

// HandlerFunc is the shape spec.md §6 mandates for handler authors:
// handler(effect, k) returning a generator of DoCtrl. It must Resume,
// Delegate, Pass, Transfer, raise, or return a value abandoning k.
type HandlerFunc func(effect Effect, k *Continuation) Generator

// DoHandler adapts a Do-style generator body into a HandlerFunc, for
// handlers authored the same way user programs are.
func DoHandler(fn func(effect Effect, k *Continuation) GenFunc) HandlerFunc {
	return func(effect Effect, k *Continuation) Generator {
		return newCoroutine(fn(effect, k))
	}
}
