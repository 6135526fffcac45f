// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package trace_test

import (
	"strings"
	"testing"

	vm "github.com/hayabusa-cloud/doeffvm"
	"github.com/hayabusa-cloud/doeffvm/trace"
)

type outerEffect struct{}
type innerEffect struct{}

// TestRenderDelegatedHandlerShowsDelegatedGlyph delegates all the way to an
// unhandled effect, so the only handler on the stack should surface with a
// Delegated status rather than the zero-value Pending.
func TestRenderDelegatedHandlerShowsDelegatedGlyph(t *testing.T) {
	passthrough := vm.DoHandler(func(effect vm.Effect, k *vm.Continuation) vm.GenFunc {
		return func(yield func(vm.DoCtrl) vm.Value) vm.Value {
			return yield(vm.Pass())
		}
	})
	program := vm.NamedHandler("passthrough_handler", passthrough, vm.Perform(outerEffect{}))

	res := vm.Run(program)
	if res.IsOk() {
		t.Fatal("expected an unhandled-effect failure")
	}
	tb := res.Traceback()
	if tb == nil {
		t.Fatal("expected a non-nil traceback")
	}
	if len(tb.Handlers) != 1 {
		t.Fatalf("got %d handler rows, want 1: %+v", len(tb.Handlers), tb.Handlers)
	}
	if got := tb.Handlers[0].Status; got != vm.StatusDelegated {
		t.Fatalf("got status %v, want StatusDelegated", got)
	}

	out := trace.NewAssembler()
	out.NoColor = true
	rendered := out.Render(tb)
	if !strings.Contains(rendered, "· passthrough_handler") {
		t.Fatalf("rendered traceback missing delegated glyph for passthrough_handler:\n%s", rendered)
	}
}

// TestRenderThrownHandlerShowsThrewGlyph has the handler body itself panic
// rather than resume or delegate, which coroutine.run recovers into a
// generator error — the mechanism that should surface as Threw.
func TestRenderThrownHandlerShowsThrewGlyph(t *testing.T) {
	panicky := vm.DoHandler(func(effect vm.Effect, k *vm.Continuation) vm.GenFunc {
		return func(yield func(vm.DoCtrl) vm.Value) vm.Value {
			panic("handler body blew up")
		}
	})
	program := vm.NamedHandler("panicky_handler", panicky, vm.Perform(outerEffect{}))

	res := vm.Run(program)
	if res.IsOk() {
		t.Fatal("expected the panicking handler body to fail the run")
	}
	tb := res.Traceback()
	if tb == nil {
		t.Fatal("expected a non-nil traceback")
	}
	if len(tb.Handlers) != 1 {
		t.Fatalf("got %d handler rows, want 1: %+v", len(tb.Handlers), tb.Handlers)
	}
	if got := tb.Handlers[0].Status; got != vm.StatusThrew {
		t.Fatalf("got status %v, want StatusThrew", got)
	}

	out := trace.NewAssembler()
	out.NoColor = true
	rendered := out.Render(tb)
	if !strings.Contains(rendered, "✗ panicky_handler") {
		t.Fatalf("rendered traceback missing threw glyph for panicky_handler:\n%s", rendered)
	}
}

// TestRenderPendingHandlerShowsBlankGlyph has the outer handler's own body
// perform a second, unhandled effect before ever resuming or delegating —
// the outer dispatch is still genuinely in flight (neither resumed,
// delegated, nor itself thrown) when the nested Perform fails, so its row
// should read the zero-value Pending (a blank glyph), not some other state.
func TestRenderPendingHandlerShowsBlankGlyph(t *testing.T) {
	stallsOnNested := vm.DoHandler(func(effect vm.Effect, k *vm.Continuation) vm.GenFunc {
		return func(yield func(vm.DoCtrl) vm.Value) vm.Value {
			if _, ok := effect.Payload.(outerEffect); ok {
				return yield(vm.Perform(innerEffect{}))
			}
			return yield(vm.Pass())
		}
	})
	program := vm.NamedHandler("stalled_handler", stallsOnNested, vm.Perform(outerEffect{}))

	res := vm.Run(program)
	if res.IsOk() {
		t.Fatal("expected the unhandled nested effect to fail the run")
	}
	if _, ok := res.Err().(*vm.UnhandledEffect); !ok {
		t.Fatalf("got %T, want *vm.UnhandledEffect", res.Err())
	}
	tb := res.Traceback()
	if tb == nil {
		t.Fatal("expected a non-nil traceback")
	}
	if len(tb.Handlers) != 1 {
		t.Fatalf("got %d handler rows, want 1: %+v", len(tb.Handlers), tb.Handlers)
	}
	if got := tb.Handlers[0].Status; got != vm.StatusPending {
		t.Fatalf("got status %v, want StatusPending", got)
	}

	out := trace.NewAssembler()
	out.NoColor = true
	rendered := out.Render(tb)
	if !strings.Contains(rendered, "  stalled_handler") {
		t.Fatalf("rendered traceback missing blank-glyph row for stalled_handler:\n%s", rendered)
	}
}

func TestRenderNilTraceback(t *testing.T) {
	out := trace.NewAssembler()
	if got := out.Render(nil); got != "(no traceback)" {
		t.Fatalf("got %q, want %q", got, "(no traceback)")
	}
}

func TestRenderDefaultHandlerRowIsStable(t *testing.T) {
	out := trace.NewAssembler()
	row := out.RenderDefaultHandlerRow()
	want := []string{
		"sync_await_handler", "spawn_intercept", "LazyAsk", "Scheduler",
		"ResultSafe", "Writer", "Reader", "State",
	}
	if len(row) != len(want) {
		t.Fatalf("got %d entries, want %d: %v", len(row), len(want), row)
	}
	for i := range want {
		if row[i] != want[i] {
			t.Fatalf("entry %d: got %q, want %q", i, row[i], want[i])
		}
	}
}
