// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm

// contFrame is one entry of the continuation K: a map/flatMap slot, a
// handler-prompt boundary, a local-env boundary, an interceptor boundary,
// or a generator-driving slot. Mirrors kont/frame.go's Frame marker
// interface and tagged-struct dispatch, generalized to the richer frame
// kinds spec.md §3 names for K.
type contFrame interface {
	record() FrameRecord
}

// mapFrame applies F to the incoming value and continues.
type mapFrame struct {
	f func(Value) Value
}

func (f mapFrame) record() FrameRecord { return FrameRecord{Kind: "map"} }

// flatMapFrame continues with K(value).
type flatMapFrame struct {
	k func(Value) DoCtrl
}

func (f flatMapFrame) record() FrameRecord { return FrameRecord{Kind: "flatMap"} }

// promptFrame marks the boundary a WithHandler/Override installation
// pushed onto K. Popping it (via ordinary Pure bubbling, or via a resumed
// continuation's own unwind) removes the matching handlerFrame from H.
type promptFrame struct {
	promptID string
}

func (f promptFrame) record() FrameRecord { return FrameRecord{Kind: "prompt:" + f.promptID} }

// localEnvFrame restores the environment active before a Local extended it.
type localEnvFrame struct {
	saved *Env
}

func (f localEnvFrame) record() FrameRecord { return FrameRecord{Kind: "local"} }

// interceptorPopFrame removes an interceptor installed by WithIntercept
// once its extent completes.
type interceptorPopFrame struct {
	id string
}

func (f interceptorPopFrame) record() FrameRecord { return FrameRecord{Kind: "intercept:" + f.id} }

// genFrame drives a Generator one step at a time. When dispatch is
// non-nil, this genFrame is driving a handler body rather than a plain
// Expand, and its completion triggers dispatch conclusion (abandon or
// post-resume finalization) instead of an ordinary pop.
type genFrame struct {
	gen      Generator
	dispatch *dispatchCtx
}

func (f genFrame) record() FrameRecord { return FrameRecord{Kind: "generator"} }

// expandArgsFrame accumulates the reduced argument values of an Expand node
// left-to-right, then invokes factory to obtain the fresh Generator.
type expandArgsFrame struct {
	factory func(args []Value) Generator
	pending []DoCtrl
	values  []Value
}

func (f expandArgsFrame) record() FrameRecord { return FrameRecord{Kind: "expandArgs"} }
