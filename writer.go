// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm

// Writer reference handler family: Tell appends to the task's accumulated
// log; Listen runs a sub-program and reports what it wrote alongside its
// result. Generalizes kont/writer.go's Tell[W]/Listen[W,A] from a typed
// output slot to the task-wide untyped log RunResult.Log exposes.

// Pair holds two related values, as kont/writer.go's own Pair[A,B] does,
// used here for Listen's (result, written) outcome.
type Pair struct {
	Fst Value
	Snd Value
}

// TellEffect appends Value to the task's log.
type TellEffect struct{ Value Value }

// ListenEffect runs Body and reports everything it logged alongside its
// result, as a Pair{Fst: result, Snd: []Value written}.
type ListenEffect struct{ Body DoCtrl }

// Tell performs TellEffect{Value: v}.
func Tell(v Value) DoCtrl { return Perform(TellEffect{Value: v}) }

// Listen performs ListenEffect{Body: body}.
func Listen(body DoCtrl) DoCtrl { return Perform(ListenEffect{Body: body}) }
