// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm

import "reflect"

// Value is an opaque host value flowing through the machine. The VM never
// inspects a Value beyond equality, hashing (for Env/Store keys), and the
// handful of structural types it owns itself (Effect, *Continuation, Task
// handles exported by the scheduler package).
type Value = any

// TypeOf returns the light display/hashing tag spec.md §3 asks Value to
// carry: the value's dynamic type. Nil values report a nil reflect.Type.
func TypeOf(v Value) reflect.Type {
	return reflect.TypeOf(v)
}
