/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	tune.go: Persisted tuning flag.
*/

package modes

import (
	"github.com/b3nn0/fbw/persist"
)

// tunedFlag marks a completed tuning in the first slot of the record.
const tunedFlag float32 = 0.3

// Tuner persists whether the PID gains were tuned.
type Tuner struct {
	store persist.Store
}

func NewTuner(store persist.Store) *Tuner {
	return &Tuner{store: store}
}

// IsTuned reports whether a tuning was recorded.
func (t *Tuner) IsTuned() bool {
	r, ok := t.store.Load(persist.KeyTune)
	return ok && r.Valid() && r[0] == tunedFlag
}

// MarkTuned records a completed tuning and commits it.
func (t *Tuner) MarkTuned() error {
	r := persist.NewRecord()
	r[0] = tunedFlag
	t.store.Put(persist.KeyTune, r)
	return t.store.Save()
}

// Clear forgets the tuning.
func (t *Tuner) Clear() error {
	t.store.Put(persist.KeyTune, persist.NewRecord())
	return t.store.Save()
}
