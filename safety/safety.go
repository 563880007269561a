/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	safety.go: Decides whether the attitude and position sources can be trusted.
*/

// Package safety judges the AAHRS and GPS for the flight mode state machine.
package safety

import (
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/b3nn0/fbw/aahrs"
	"github.com/b3nn0/fbw/gps"
)

// NumRetries is the number of consecutive transient sensor failures
// tolerated before the AAHRS is declared unsafe.
const NumRetries = 5

// RecoveryDelay is the minimum time between declaring the AAHRS unsafe and
// attempting to bring it back.
const RecoveryDelay = time.Second

// Flags are the trust verdicts consumed by the flight modes.
type Flags struct {
	AAHRSSafe bool
	GPSSafe   bool
}

// Envelope is the attitude range stabilized flight may not leave.
type Envelope struct {
	MaxRoll  float64 // |roll| limit, degrees
	MaxPitch float64 // nose up limit, degrees
	MinPitch float64 // nose down limit, negative degrees
}

// Exceeded reports whether the attitude lies outside the envelope. A
// non-finite attitude is always outside.
func (e Envelope) Exceeded(roll, pitch float64) bool {
	if math.IsNaN(roll) || math.IsNaN(pitch) || math.IsInf(roll, 0) || math.IsInf(pitch, 0) {
		return true
	}
	return math.Abs(roll) > e.MaxRoll || pitch > e.MaxPitch || pitch < e.MinPitch
}

// GPSRule decides when a fix is good enough for guidance. A zero dilution
// limit is not checked.
type GPSRule struct {
	MaxAge  time.Duration
	MaxPDOP float64
	MaxHDOP float64
	MaxVDOP float64
}

// Safe reports whether src is configured and holds a recent fix within the
// dilution limits.
func (r GPSRule) Safe(src gps.Source, now time.Time) bool {
	if src == nil || !src.Supported() {
		return false
	}
	f, ok := src.Fix()
	if !ok || f.Quality == 0 {
		return false
	}
	if now.Sub(f.Time) >= r.MaxAge {
		return false
	}
	return dopOK(f.PDOP, r.MaxPDOP) && dopOK(f.HDOP, r.MaxHDOP) && dopOK(f.VDOP, r.MaxVDOP)
}

func dopOK(dop, limit float64) bool {
	return limit <= 0 || dop <= limit
}

// Supervisor counts sensor failures and applies the envelope and GPS rule.
type Supervisor struct {
	Envelope Envelope
	GPS      GPSRule

	failures  int
	unsafeAt  time.Time
	exceeded  bool
	readFails atomic.Uint64
	log       *logrus.Entry
}

func NewSupervisor(env Envelope, rule GPSRule, log *logrus.Logger) *Supervisor {
	return &Supervisor{Envelope: env, GPS: rule, log: log.WithField("sys", "safety")}
}

// AAHRS judges one AAHRS cycle that returned err. Filter failures are
// fatal at once; other errors are tolerated NumRetries times in a row.
func (s *Supervisor) AAHRS(err error, now time.Time) bool {
	if err == nil {
		s.failures = 0
		return true
	}
	if errors.Is(err, aahrs.ErrFilter) || errors.Is(err, aahrs.ErrNotInit) {
		s.log.Errorf("AAHRS failed: %s", err)
		s.unsafeAt = now
		return false
	}
	s.failures++
	s.readFails.Add(1)
	if s.failures > NumRetries {
		s.log.Errorf("AAHRS failed %d times in a row: %s", s.failures, err)
		s.unsafeAt = now
		return false
	}
	s.log.Debugf("transient AAHRS failure %d: %s", s.failures, err)
	return true
}

// Attitude judges a published attitude against the envelope.
func (s *Supervisor) Attitude(att aahrs.Attitude, now time.Time) bool {
	if !s.Envelope.Exceeded(att.Roll, att.Pitch) {
		s.exceeded = false
		return true
	}
	if !s.exceeded {
		s.log.Warnf("flight envelope exceeded: roll %.1f pitch %.1f", att.Roll, att.Pitch)
	}
	s.exceeded = true
	s.unsafeAt = now
	return false
}

// MayRecover reports whether enough time passed since the AAHRS was last
// declared unsafe to try it again.
func (s *Supervisor) MayRecover(now time.Time) bool {
	return now.Sub(s.unsafeAt) >= RecoveryDelay
}

// Unsafe restarts the recovery delay, after a failed recovery attempt.
func (s *Supervisor) Unsafe(now time.Time) {
	s.unsafeAt = now
}

// Recovered resets the failure count after a successful re-init.
func (s *Supervisor) Recovered() {
	s.failures = 0
}

// Failures returns the current run of consecutive transient failures.
func (s *Supervisor) Failures() int {
	return s.failures
}

// ReadFailures returns the total number of transient failures seen.
func (s *Supervisor) ReadFailures() uint64 {
	return s.readFails.Load()
}
