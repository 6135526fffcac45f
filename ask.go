// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm

// Ask/Local reference handler. Local is core (a dynamic environment
// extension, doctrl.go's LocalCtrl); Ask is the one effect family that
// reads it, generalizing kont/reader.go's Ask[E] from one env value per
// Reader instantiation to a keyed lookup against the full Env chain.

// AskEffect is the payload of the environment-read effect.
type AskEffect struct{ Key string }

// Ask performs AskEffect{Key: key}, resolved against the Env chain active
// at the call site. Fails with MissingEnvKey if key is bound nowhere in
// scope. An explicit WithHandler/Override for AskEffect, if installed,
// takes precedence over this default resolution.
func Ask(key string) DoCtrl { return Perform(AskEffect{Key: key}) }
