// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeffvm

import "maps"

// Store is the persistent keyed state scope Get/Put/Modify thread through a
// run. Every mutating method returns a new Store rather than mutating the
// receiver, so a saved Store (a task snapshot, a captured-continuation's
// enclosing state) keeps observing the value it held at capture time.
//
// There is no third-party persistent-map type anywhere in the retrieved
// corpus; copy-on-write over the standard library's map is used deliberately
// here (see DESIGN.md) rather than reaching for a library that doesn't exist
// in the ecosystem this repo otherwise draws from.
type Store struct {
	data map[string]Value
}

// NewStore returns an empty store.
func NewStore() Store {
	return Store{data: map[string]Value{}}
}

// Get returns the value bound to key, if any.
func (s Store) Get(key string) (Value, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Put returns a new Store with key bound to v.
func (s Store) Put(key string, v Value) Store {
	nd := maps.Clone(s.data)
	if nd == nil {
		nd = map[string]Value{}
	}
	nd[key] = v
	return Store{data: nd}
}

// Modify applies f to the current value of key and stores the result.
// Invariant 5 / testable property 10: if f returns an error, the store is
// returned unchanged — f's effect never partially commits.
func (s Store) Modify(key string, f func(Value) (Value, error)) (Store, error) {
	cur := s.data[key]
	nv, err := f(cur)
	if err != nil {
		return s, err
	}
	return s.Put(key, nv), nil
}

// Clone returns an isolated copy for a spawned task: subsequent Puts on the
// clone are never observed by the original (invariant 6 / testable
// property 7).
func (s Store) Clone() Store {
	return Store{data: maps.Clone(s.data)}
}

// Snapshot returns the raw key/value view, used by the traceback assembler
// and by tests comparing store contents; callers must not mutate the
// returned map.
func (s Store) Snapshot() map[string]Value {
	return s.data
}
