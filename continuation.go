// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm

import "sync/atomic"

// Continuation is a one-shot delimited continuation captured at a Perform
// site: the prefix of K from the effect point down to and including the
// owning handler's prompt frame, plus the full handler stack visible at
// capture time (so effects performed while the continuation runs see the
// handlers that were active then, invariant 7). Generalizes kont.Affine's
// one-shot atomic bit with the scope-signature check invariant 2 requires.
type Continuation struct {
	frames   []contFrame
	handlers []handlerFrame
	promptID string
	depth    int

	used atomic.Bool
	live atomic.Bool
}

func newContinuation(frames []contFrame, handlers []handlerFrame, promptID string, depth int) *Continuation {
	k := &Continuation{frames: frames, handlers: handlers, promptID: promptID, depth: depth}
	k.live.Store(true)
	return k
}

// tryConsume enforces invariants 1 and 2: a second resume of the same
// Continuation is an OneShotViolation; a resume after the capturing
// handler has already concluded without using it is a CrossScopeResume.
// live is set false only when the handler concludes having never consumed
// its continuation (see evaluator.go's dispatch-conclusion logic) — this is
// the concrete mechanism this repo uses to detect scenario S3's "escape k
// via a ref, invoke after A has popped" (see DESIGN.md).
func (k *Continuation) tryConsume() error {
	if !k.live.Load() {
		return &CrossScopeResume{CapturedDepth: k.depth, CurrentDepth: k.depth}
	}
	if !k.used.CompareAndSwap(false, true) {
		return &OneShotViolation{}
	}
	return nil
}

// abandon marks the continuation's scope closed without consuming it. A
// no-op if it was already consumed.
func (k *Continuation) abandon() {
	if !k.used.Load() {
		k.live.Store(false)
	}
}

// Used reports whether this continuation has already been resumed or
// transferred to.
func (k *Continuation) Used() bool { return k.used.Load() }
