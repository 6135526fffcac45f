// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package trace

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/m1gwings/treedrawer/tree"

	vm "github.com/hayabusa-cloud/doeffvm"
)

// Assembler turns a *vm.Traceback into a rendered tree. The zero value is
// ready to use with color enabled; set NoColor to render plain text (CI
// logs, golden-file tests).
type Assembler struct {
	NoColor bool
}

// NewAssembler returns a ready-to-use Assembler.
func NewAssembler() *Assembler { return &Assembler{} }

// Render produces the traceback's tree-shaped string: the task chain as a
// nested path, innermost task first, and beneath its last entry the
// traceback's one handler stack (with DefaultHandlerRow's stable trailing
// entries appended — S8: "any failure escaping Try" gets this row, not just
// ones whose Traceback happens to carry it) and its continuation frames.
func (a *Assembler) Render(tb *vm.Traceback) string {
	if tb == nil {
		return "(no traceback)"
	}

	prevNoColor := color.NoColor
	if a.NoColor {
		color.NoColor = true
		defer func() { color.NoColor = prevNoColor }()
	}

	root := tree.NewTree(tree.NodeString("traceback"))
	cursor := root
	for _, t := range tb.TaskChain {
		cursor = cursor.AddChild(tree.NodeString(a.taskLabel(t)))
	}

	rows := append(append([]vm.HandlerRecord(nil), tb.Handlers...), a.defaultHandlerRows()...)
	handlers := cursor.AddChild(tree.NodeString("handlers"))
	for _, h := range rows {
		handlers.AddChild(tree.NodeString(a.handlerLabel(h)))
	}

	if len(tb.Frames) > 0 {
		frames := cursor.AddChild(tree.NodeString("frames"))
		for _, f := range tb.Frames {
			frames.AddChild(tree.NodeString(a.frameLabel(f)))
		}
	}

	return root.String()
}

// defaultHandlerRows turns DefaultHandlerRow's stable name sequence into
// trailing HandlerRecords so Render's output actually contains the S8 tail
// row on every failure, rather than leaving it a separate method callers
// have to know to merge in themselves.
func (a *Assembler) defaultHandlerRows() []vm.HandlerRecord {
	rows := make([]vm.HandlerRecord, len(vm.DefaultHandlerRow))
	for i, name := range vm.DefaultHandlerRow {
		rows[i] = vm.HandlerRecord{Name: name, Default: true}
	}
	return rows
}

func (a *Assembler) taskLabel(t vm.TaskRecord) string {
	label := fmt.Sprintf("task %s", t.TaskID)
	if t.ParentID != "" {
		label += fmt.Sprintf(" (spawned by %s)", t.ParentID)
	}
	if t.SpawnAt != nil {
		label += " @ " + t.SpawnAt.String()
	}
	return label
}

// handlerLabel colors a handler-stack row by its resolution status:
// green for Resumed, dim for Delegated, red for Threw, yellow for
// Pending (the dispatch never reached a conclusion before the failure
// escaped it — e.g. the frames above it on H).
func (a *Assembler) handlerLabel(h vm.HandlerRecord) string {
	name := h.Name
	if h.Default {
		name += " (default)"
	}
	row := fmt.Sprintf("%s %s", h.Status.Glyph(), name)
	switch h.Status {
	case vm.StatusResumed:
		return color.GreenString("%s", row)
	case vm.StatusDelegated:
		return color.New(color.FgHiBlack).Sprint(row)
	case vm.StatusThrew:
		return color.RedString("%s", row)
	default:
		return color.YellowString("%s", row)
	}
}

func (a *Assembler) frameLabel(f vm.FrameRecord) string {
	loc := "<unknown>"
	if f.Context != nil {
		loc = f.Context.String()
	}
	return fmt.Sprintf("%s @ %s", f.Kind, loc)
}

// RenderDefaultHandlerRow appends the stable trailing rows spec.md's S8
// scenario expects a rendered traceback to end with whenever a failure
// escapes past every user handler down to Run's own defaults — a plain
// list, not sourced from any particular failure's Traceback, since these
// rows are always present and always in the same order.
func (a *Assembler) RenderDefaultHandlerRow() []string {
	return append([]string(nil), vm.DefaultHandlerRow...)
}
