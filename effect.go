// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm

import "reflect"

// Effect is the immutable record a user program produces with Perform. The
// VM treats it as opaque except for two things: its dynamic type (used for
// handler type-filtering in Mask/Override and for dispatch) and its
// creation context (used only by the trace package).
//
// Payload may be any Go value; its reflect.Type is the "effect type (class
// identity, used for handler type-filtering...)" spec.md §3 describes —
// there is no parallel class registry to maintain.
type Effect struct {
	Payload Value
	Context *SourceContext
}

// NewEffect wraps payload as an Effect, capturing the caller's source
// context. Handler-emitted effects (Resume/Delegate bodies performing their
// own effects) use this exactly like user code does.
func NewEffect(payload Value) Effect {
	return Effect{Payload: payload, Context: captureContext(1)}
}

// Type returns the effect's dispatch-relevant type identity.
func (e Effect) Type() reflect.Type {
	return reflect.TypeOf(e.Payload)
}

// matchesAny reports whether e's type is present in types.
func (e Effect) matchesAny(types []reflect.Type) bool {
	t := e.Type()
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}
