// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm_test

import (
	"reflect"
	"testing"

	vm "github.com/hayabusa-cloud/doeffvm"
)

type pingEffect struct{ N int }

func TestResumeRoundTrip(t *testing.T) {
	handler := vm.DoHandler(func(effect vm.Effect, k *vm.Continuation) vm.GenFunc {
		return func(yield func(vm.DoCtrl) vm.Value) vm.Value {
			p := effect.Payload.(pingEffect)
			return yield(vm.Resume(k, p.N*2))
		}
	})
	program := vm.WithHandler(handler, vm.Perform(pingEffect{N: 21}))

	res := vm.Run(program)
	if !res.IsOk() {
		t.Fatalf("run failed: %v", res.Err())
	}
	if got := res.Value(); got != 42 {
		t.Fatalf("got %v, want 42", got)
	}
}

func TestUnhandledEffectRaises(t *testing.T) {
	res := vm.Run(vm.Perform(pingEffect{N: 1}))
	if res.IsOk() {
		t.Fatal("expected failure for an unhandled effect")
	}
	if _, ok := res.Err().(*vm.UnhandledEffect); !ok {
		t.Fatalf("got %T, want *vm.UnhandledEffect", res.Err())
	}
	if res.Traceback() == nil {
		t.Fatal("expected a non-nil traceback on failure")
	}
}

func TestOneShotViolation(t *testing.T) {
	var saved *vm.Continuation
	handler := vm.DoHandler(func(effect vm.Effect, k *vm.Continuation) vm.GenFunc {
		return func(yield func(vm.DoCtrl) vm.Value) vm.Value {
			saved = k
			return yield(vm.Resume(k, 1))
		}
	})
	res := vm.Run(vm.WithHandler(handler, vm.Perform(pingEffect{N: 1})))
	if !res.IsOk() {
		t.Fatalf("first run failed: %v", res.Err())
	}

	res2 := vm.Run(vm.Resume(saved, 2))
	if res2.IsOk() {
		t.Fatal("expected a second Resume of the same continuation to fail")
	}
	if _, ok := res2.Err().(*vm.OneShotViolation); !ok {
		t.Fatalf("got %T, want *vm.OneShotViolation", res2.Err())
	}
}

func TestDelegateFallsThroughToOuterHandler(t *testing.T) {
	outer := vm.DoHandler(func(effect vm.Effect, k *vm.Continuation) vm.GenFunc {
		return func(yield func(vm.DoCtrl) vm.Value) vm.Value {
			p := effect.Payload.(pingEffect)
			return yield(vm.Resume(k, p.N+100))
		}
	})
	inner := vm.DoHandler(func(effect vm.Effect, k *vm.Continuation) vm.GenFunc {
		return func(yield func(vm.DoCtrl) vm.Value) vm.Value {
			return yield(vm.Pass())
		}
	})
	program := vm.WithHandler(outer, vm.WithHandler(inner, vm.Perform(pingEffect{N: 1})))

	res := vm.Run(program)
	if !res.IsOk() {
		t.Fatalf("run failed: %v", res.Err())
	}
	if got := res.Value(); got != 101 {
		t.Fatalf("got %v, want 101", got)
	}
}

// TestMaskSkipsOnlyTheEnclosingHandler mirrors the ground-truth shape: Mask
// only sits directly inside the one handler it hides (maskedOut, the frame
// installed between outer and the masked body); dispatch must still
// continue past it to find outer. A Mask that hid the rest of the search
// outright would leave this unhandled instead of resolving to outer.
func TestMaskSkipsOnlyTheEnclosingHandler(t *testing.T) {
	outer := vm.DoHandler(func(effect vm.Effect, k *vm.Continuation) vm.GenFunc {
		return func(yield func(vm.DoCtrl) vm.Value) vm.Value {
			return yield(vm.Resume(k, "outer"))
		}
	})
	maskedOut := vm.DoHandler(func(effect vm.Effect, k *vm.Continuation) vm.GenFunc {
		return func(yield func(vm.DoCtrl) vm.Value) vm.Value {
			return yield(vm.Resume(k, "maskedOut"))
		}
	})

	program := vm.WithHandler(outer, vm.WithHandler(maskedOut, vm.Mask(
		[]reflect.Type{reflect.TypeOf(pingEffect{})},
		vm.Perform(pingEffect{N: 1}),
	)))

	res := vm.Run(program)
	if !res.IsOk() {
		t.Fatalf("run failed: %v", res.Err())
	}
	if got := res.Value(); got != "outer" {
		t.Fatalf("got %v, want %q (mask should skip only maskedOut, not the whole search)", got, "outer")
	}
}

func TestGetPutBuiltinFallback(t *testing.T) {
	program := vm.FlatMap(vm.Put("k", 1), func(vm.Value) vm.DoCtrl {
		return vm.Get("k")
	})
	res := vm.Run(program)
	if !res.IsOk() {
		t.Fatalf("run failed: %v", res.Err())
	}
	if got := res.Value(); got != 1 {
		t.Fatalf("got %v, want 1", got)
	}
}

func TestTryCatchesFailure(t *testing.T) {
	res := vm.Run(vm.Try(vm.Perform(pingEffect{N: 1})))
	if !res.IsOk() {
		t.Fatalf("Try itself should not fail: %v", res.Err())
	}
	result := res.Value().(vm.Result)
	if result.Ok {
		t.Fatal("expected Result.Ok == false for an unhandled effect inside Try")
	}
	if _, ok := result.Err.(*vm.UnhandledEffect); !ok {
		t.Fatalf("got %T, want *vm.UnhandledEffect", result.Err)
	}
}
