// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm

// State reference handler family: Get/Put/Modify against the keyed Store.
// Generalizes kont/state.go's Get[S]/Put[S]/Modify[S] (one typed slot per
// State instantiation) to a string-keyed store shared by the whole task.

// GetEffect reads the current value bound to Key.
type GetEffect struct{ Key string }

// PutEffect replaces the value bound to Key.
type PutEffect struct {
	Key   string
	Value Value
}

// ModifyEffect applies F to the current value bound to Key and stores the
// result, atomically: if F errors, the store is left unchanged (invariant
// 5) and the error propagates as the Perform's failure.
type ModifyEffect struct {
	Key string
	F   func(Value) (Value, error)
}

// Get performs GetEffect{Key: key}.
func Get(key string) DoCtrl { return Perform(GetEffect{Key: key}) }

// Put performs PutEffect{Key: key, Value: v}.
func Put(key string, v Value) DoCtrl { return Perform(PutEffect{Key: key, Value: v}) }

// Modify performs ModifyEffect{Key: key, F: f}, yielding the updated value.
func Modify(key string, f func(Value) (Value, error)) DoCtrl {
	return Perform(ModifyEffect{Key: key, F: f})
}
