/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	gps.go: Position fix type and the GPS source contract.
*/

// Package gps provides position fixes to the guidance loops.
package gps

import (
	"sync"
	"time"
)

// Fix is the latest navigation solution.
type Fix struct {
	Lat, Lng   float64 // degrees
	Alt        float64 // meters MSL
	Speed      float64 // ground speed, m/s
	Course     float64 // true track, degrees
	PDOP       float64
	HDOP       float64
	VDOP       float64
	Satellites int
	Quality    int       // GGA fix quality, 0 = no fix
	Time       time.Time // local time the fix was received
}

// Source is implemented by every GPS back end.
type Source interface {
	// Fix returns the last fix and whether one was ever received.
	Fix() (Fix, bool)
	// Supported reports whether a receiver is configured at all.
	Supported() bool
	// CalibrateAltOffset averages the altitude of the next n fixes into the
	// altitude offset. It does not block.
	CalibrateAltOffset(n int)
	// AltOffset returns the calibrated offset, false until calibrated.
	AltOffset() (float64, bool)
}

// altCalibrator averages altitude samples into an offset.
type altCalibrator struct {
	pending    int
	sum        float64
	n          int
	offset     float64
	calibrated bool
}

func (c *altCalibrator) start(n int) {
	if n <= 0 {
		return
	}
	c.pending = n
	c.sum = 0
	c.n = 0
}

func (c *altCalibrator) add(alt float64) {
	if c.pending == 0 {
		return
	}
	c.sum += alt
	c.n++
	if c.n >= c.pending {
		c.offset = c.sum / float64(c.n)
		c.calibrated = true
		c.pending = 0
	}
}

// Static is a Source returning a settable fix.
type Static struct {
	mu        sync.Mutex
	fix       Fix
	has       bool
	supported bool
	alt       altCalibrator
}

// NewStatic returns a supported source without a fix.
func NewStatic() *Static {
	return &Static{supported: true}
}

// SetFix replaces the current fix and feeds a pending altitude calibration.
func (s *Static) SetFix(f Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fix = f
	s.has = true
	s.alt.add(f.Alt)
}

// SetSupported toggles whether a receiver is reported.
func (s *Static) SetSupported(v bool) {
	s.mu.Lock()
	s.supported = v
	s.mu.Unlock()
}

func (s *Static) Fix() (Fix, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fix, s.has
}

func (s *Static) Supported() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supported
}

func (s *Static) CalibrateAltOffset(n int) {
	s.mu.Lock()
	s.alt.start(n)
	s.mu.Unlock()
}

func (s *Static) AltOffset() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alt.offset, s.alt.calibrated
}
