/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	persist.go: Fixed-size float record store used for calibration and flags.
*/

// Package persist stores small fixed-size float records addressed by key.
// A record is only considered written once its last slot holds EndMagic.
package persist

import (
	"fmt"
	"sync"
)

// RecordSize is the number of float slots in a record, including the magic.
const RecordSize = 16

// EndMagic marks the final slot of a written record. Do not change it, or
// every stored record becomes "never written".
const EndMagic float32 = 3.130521

// Key addresses one record.
type Key int

const (
	KeyCalibration Key = iota
	KeyTune
)

func (k Key) String() string {
	switch k {
	case KeyCalibration:
		return "calibration"
	case KeyTune:
		return "tune"
	}
	return fmt.Sprintf("key(%d)", int(k))
}

// Record is one stored block of floats. Slot RecordSize-1 is reserved for EndMagic.
type Record [RecordSize]float32

// NewRecord returns an empty, valid record.
func NewRecord() Record {
	var r Record
	r[RecordSize-1] = EndMagic
	return r
}

// Valid reports whether r carries the end-of-record magic.
func (r Record) Valid() bool {
	return r[RecordSize-1] == EndMagic
}

// Store is a key-record store with an explicit commit.
type Store interface {
	// Load returns the record for k, and false if it was never written.
	Load(k Key) (Record, bool)
	// Put stages a record. It is visible to Load immediately but only
	// durable after Save.
	Put(k Key, r Record)
	// Save commits all staged records.
	Save() error
}

// Memory is a volatile Store, used on hosts without storage and in tests.
type Memory struct {
	mu        sync.Mutex
	staged    map[Key]Record
	committed map[Key]Record
	saves     int
}

func NewMemory() *Memory {
	return &Memory{
		staged:    make(map[Key]Record),
		committed: make(map[Key]Record),
	}
}

func (m *Memory) Load(k Key) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.staged[k]
	if !ok || !r.Valid() {
		return Record{}, false
	}
	return r, true
}

func (m *Memory) Put(k Key, r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged[k] = r
}

func (m *Memory) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, r := range m.staged {
		m.committed[k] = r
	}
	m.saves++
	return nil
}

// Committed returns the last saved record for k.
func (m *Memory) Committed(k Key) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.committed[k]
	return r, ok && r.Valid()
}

// Saves returns how many times Save was called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
