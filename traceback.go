// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm

// Traceback is the provenance-only data the evaluator captures on failure.
// Rendering (tree layout, coloring) is deliberately a separate concern,
// living in doeffvm/trace, so this package never imports it — grounded on
// MongooseMoo-barn's split of task.traceback (capture) from trace.Tracer
// (render).
type Traceback struct {
	// Frames walks K innermost-first: one entry per continuation frame that
	// was active when the failure occurred.
	Frames []FrameRecord
	// Handlers walks the active handler stack innermost-first, each with a
	// status marker (set once known: Resumed, Delegated, Threw, or Pending).
	Handlers []HandlerRecord
	// TaskChain records ancestor tasks, innermost (the failing task) first.
	TaskChain []TaskRecord
}

// FrameStatus is the status glyph spec.md §4.6 assigns a handler frame.
type FrameStatus int

const (
	StatusPending FrameStatus = iota
	StatusResumed             // ✓
	StatusDelegated           // ·
	StatusThrew               // ✗
)

func (s FrameStatus) Glyph() string {
	switch s {
	case StatusResumed:
		return "✓"
	case StatusDelegated:
		return "·"
	case StatusThrew:
		return "✗"
	default:
		return " "
	}
}

// FrameRecord describes one continuation frame by its kind ("map",
// "flatMap", "generator", "prompt:<id>", ...). The evaluator's frames leave
// Context nil: no generator function name or yield line is recorded.
type FrameRecord struct {
	Kind    string
	Context *SourceContext
}

// HandlerRecord describes one handler-stack frame: its install site and its
// resolution status for the failing dispatch.
type HandlerRecord struct {
	Name      string
	PromptID  string
	InstallAt *SourceContext
	Status    FrameStatus
	Default   bool // true for the stable trailing default-handler row (S8)
}

// TaskRecord describes one task in the failing task's ancestry.
type TaskRecord struct {
	TaskID   string
	SpawnAt  *SourceContext
	ParentID string
}

// newTraceback captures the current (K, H) of a State, innermost-first.
func newTraceback(st *state) *Traceback {
	tb := &Traceback{}
	for i := len(st.kont) - 1; i >= 0; i-- {
		tb.Frames = append(tb.Frames, st.kont[i].record())
	}
	// A dispatch still on st.dispatches is a handler whose body is live on
	// the call stack at failure time (invariant 7 already stripped its own
	// frame out of st.handlers the moment its body started running), so it
	// has to be read off the dispatch stack itself, innermost first, or
	// its status (most commonly Threw — the dispatch whose body is what
	// actually failed) would never reach a captured Traceback.
	for i := len(st.dispatches) - 1; i >= 0; i-- {
		d := st.dispatches[i]
		h := d.snapshot[d.chosenIdx]
		tb.Handlers = append(tb.Handlers, HandlerRecord{
			Name:      h.name,
			PromptID:  h.promptID,
			InstallAt: h.installedAt,
			Status:    h.status,
		})
	}
	for i := len(st.handlers) - 1; i >= 0; i-- {
		h := st.handlers[i]
		tb.Handlers = append(tb.Handlers, HandlerRecord{
			Name:      h.name,
			PromptID:  h.promptID,
			InstallAt: h.installedAt,
			Status:    h.status,
		})
	}
	return tb
}

// DefaultHandlerRow is the canonical, stable trailing row spec.md's S8
// scenario expects to appear in a rendered traceback whenever a failure
// escapes Try. These are display names only: Run installs no handler
// frames under them (the reference effects are resolved by the evaluator's
// built-in fallback).
var DefaultHandlerRow = []string{
	"sync_await_handler", "spawn_intercept", "LazyAsk", "Scheduler",
	"ResultSafe", "Writer", "Reader", "State",
}
