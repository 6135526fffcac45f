// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm

import "reflect"

// handlerMode distinguishes a normal handler frame from the transparent
// (Mask) and precedence-taking (Override) variants spec.md §3 names.
type handlerMode int

const (
	handlerNormal handlerMode = iota
	handlerMasked
	handlerOverride
)

// handlerFrame is one entry of the handler stack H: (handler_fn, prompt_id,
// mode, ...). Generalizes kont/effect.go's single active Handler into a
// searchable stack entry.
type handlerFrame struct {
	fn          HandlerFunc
	promptID    string
	mode        handlerMode
	filterTypes []reflect.Type // Masked: types this frame is transparent to. Override: types it claims.
	name        string
	installedAt *SourceContext
	status      FrameStatus
}

// matches reports whether this frame is eligible to handle e during a
// dispatch search, per spec.md §4.2's pseudocode. A Masked frame carries no
// handler function and is never itself a candidate — see searchHandlers for
// how it instead hides the next enclosing handler for its listed types.
func (h handlerFrame) matches(e Effect) bool {
	switch h.mode {
	case handlerMasked:
		return false
	case handlerOverride:
		return e.matchesAny(h.filterTypes) // override only claims listed types, else delegates
	default:
		return true
	}
}

// dispatchCtx tracks one Perform's handler-search walk across any number
// of Delegate re-offers, so that "the set of frames marked consumed only
// grows... resets to empty when dispatch completes" (invariant 6) and so
// Delegate/Pass know which handler stack, effect, and continuation they
// are operating on without needing a fresh capture per re-offer — spec.md
// §4.2: "the effect is re-offered... with the enclosing handler chain
// above the current one in charge of the search," using the *same*
// k_user throughout.
type dispatchCtx struct {
	cont      *Continuation
	effect    Effect
	snapshot  []handlerFrame // full H at the original Perform site
	chosenIdx int
	consumed  map[int]bool
	// outerKont is the slice of K that existed before the chosen handler's
	// WithHandler installed its prompt frame — restored once the handler
	// concludes (abandoned or post-resume), regardless of path taken.
	outerKont []contFrame
	// runHandlers is snapshot[:chosenIdx] — the handler-stack view the
	// handler body itself runs under (invariant 7).
	runHandlers []handlerFrame
}

// searchHandlers implements spec.md §4.2's dispatch loop starting at
// fromIdx (inclusive) and walking outward (toward index 0). A Masked(T)
// frame whose T contains e's type makes the *next* otherwise-matching frame
// outward transparent to e — not the whole rest of the search: Mask(types,e)
// sits directly inside the one handler it hides, and dispatch must still
// continue past it to whatever encloses that. Each relevant mask crossed
// bumps a skip counter; the next match consumes one skip instead of being
// chosen, so stacked masks hide that many enclosing handlers in a row.
func searchHandlers(snapshot []handlerFrame, fromIdx int, consumed map[int]bool, e Effect) (int, bool) {
	skip := 0
	for i := fromIdx; i >= 0; i-- {
		if consumed[i] {
			continue
		}
		if snapshot[i].mode == handlerMasked {
			if e.matchesAny(snapshot[i].filterTypes) {
				skip++
			}
			continue
		}
		if !snapshot[i].matches(e) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		return i, true
	}
	return -1, false
}
