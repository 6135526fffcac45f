// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm

// Try reference handler: converts a failure escaping Body into an Err
// Result instead of propagating it, matching kont/error.go's Catch/Either
// pair but against the VM's own typed errors rather than a user error type
// parameter, since spec.md §7 fixes the error set the VM itself can raise.

// TryEffect runs Body, catching any failure that escapes it.
type TryEffect struct{ Body DoCtrl }

// Result is the Ok/Err outcome Try produces.
type Result struct {
	Ok    bool
	Value Value
	Err   error
}

// Try performs TryEffect{Body: body}, yielding a Result.
func Try(body DoCtrl) DoCtrl { return Perform(TryEffect{Body: body}) }
