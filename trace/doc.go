// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package trace renders a *doeffvm.Traceback as a status tree: task chain
// at the root, the traceback's handler stack and continuation frames nested
// beneath its last entry, colored by resolution status. Generalizes
// MongooseMoo-barn/trace.Tracer's line-oriented VerbCall/Exception logging
// (a flat [TRACE] log) into the tree shape spec.md §4.6 actually asks for,
// the same way pumped-fn-pumped-go/extensions/graph_debug.go turns a flat
// dependency map into a github.com/m1gwings/treedrawer tree for its own
// failure diagnostics. doeffvm itself never imports this package —
// capture and rendering stay split exactly like MongooseMoo-barn's
// task.traceback (capture) versus trace.Tracer (render).
package trace
