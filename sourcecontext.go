// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm

import (
	"fmt"
	"runtime"
)

// SourceContext is the optional creation-context spec.md §3 attaches to an
// Effect: the file, line, and qualified function name of the call site that
// produced it. Captured lazily and cheaply via runtime.Caller; rendering is
// the concern of the trace package, not this one.
type SourceContext struct {
	File    string
	Line    int
	Qualname string
}

func (c *SourceContext) String() string {
	if c == nil {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d (%s)", c.File, c.Line, c.Qualname)
}

// captureContext walks skip frames up the call stack and records the
// caller's site. skip=0 names the direct caller of captureContext itself.
func captureContext(skip int) *SourceContext {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return nil
	}
	qualname := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		qualname = fn.Name()
	}
	return &SourceContext{File: file, Line: line, Qualname: qualname}
}
