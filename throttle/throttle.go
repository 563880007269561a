/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	throttle.go: Autothrottle with max continuous thrust protection.
*/

// Package throttle computes the ESC command from a thrust or speed target.
package throttle

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/b3nn0/fbw/common"
	"github.com/b3nn0/fbw/config"
	"github.com/b3nn0/fbw/gps"
	"github.com/b3nn0/fbw/pid"
)

var ErrUnsupported = errors.New("throttle: speed mode requires a GPS")

type Mode int

const (
	ModeThrust Mode = iota // target is thrust in percent
	ModeSpeed              // target is ground speed in m/s
)

func (m Mode) String() string {
	if m == ModeSpeed {
		return "speed"
	}
	return "thrust"
}

// State of the max continuous thrust protection.
type State int

const (
	StateNormal State = iota
	StateExceeded
	StateLock
	StateCooldown
)

func (s State) String() string {
	switch s {
	case StateExceeded:
		return "mct exceeded"
	case StateLock:
		return "mct lock"
	case StateCooldown:
		return "mct cooldown"
	}
	return "normal"
}

// Settings are the ESC detents in percent and the protection timing.
type Settings struct {
	Idle, MCT, Max float64
	MaxTime        time.Duration // above MCT before the lock engages
	Cooldown       time.Duration // at or below MCT before the lock releases
	Sensitivity    float64       // output lerp factor per update
	PID            pid.Config
}

// SettingsFromConfig extracts the autothrottle settings.
func SettingsFromConfig(c *config.Config) Settings {
	p := c.PID.Throttle
	p.LimMin = c.Control.ThrottleDetentIdle
	p.LimMax = c.Control.ThrottleDetentMax
	return Settings{
		Idle:        c.Control.ThrottleDetentIdle,
		MCT:         c.Control.ThrottleDetentMCT,
		Max:         c.Control.ThrottleDetentMax,
		MaxTime:     time.Duration(c.Control.ThrottleMaxTime * float64(time.Second)),
		Cooldown:    time.Duration(c.Control.ThrottleCooldownTime * float64(time.Second)),
		Sensitivity: c.Control.ThrottleSensitivity,
		PID:         p,
	}
}

// Autothrottle is updated once per control tick.
type Autothrottle struct {
	settings  Settings
	gps       gps.Source
	pid       *pid.Controller
	supported Mode
	mode      Mode
	target    float64

	state         State
	stateChangeAt time.Time
	out           float64

	now func() time.Time
	log *logrus.Entry
}

// New returns an autothrottle in thrust mode. src may be nil.
func New(s Settings, src gps.Source, log *logrus.Logger) *Autothrottle {
	a := &Autothrottle{
		settings: s,
		gps:      src,
		pid:      pid.New(s.PID),
		now:      time.Now,
		log:      log.WithField("sys", "throttle"),
	}
	a.Init()
	return a
}

// Init finds the highest supported mode and resets the speed loop.
func (a *Autothrottle) Init() {
	a.supported = ModeThrust
	if a.gps != nil && a.gps.Supported() {
		a.supported = ModeSpeed
	}
	a.pid.Reset()
}

// Supported returns the highest usable mode.
func (a *Autothrottle) Supported() Mode {
	return a.supported
}

func (a *Autothrottle) Mode() Mode {
	return a.mode
}

// SetMode selects thrust or speed control.
func (a *Autothrottle) SetMode(m Mode) error {
	if m > a.supported {
		return ErrUnsupported
	}
	if m != a.mode {
		a.pid.Reset()
		a.log.Debugf("mode %s", m)
	}
	a.mode = m
	return nil
}

// SetTarget sets the thrust percent or the speed in m/s, depending on mode.
func (a *Autothrottle) SetTarget(v float64) {
	a.target = v
}

func (a *Autothrottle) Target() float64 {
	return a.target
}

func (a *Autothrottle) State() State {
	return a.state
}

// Output is the last ESC command in percent.
func (a *Autothrottle) Output() float64 {
	return a.out
}

// Update computes and returns the ESC command in percent.
func (a *Autothrottle) Update() float64 {
	now := a.now()
	escTarget := a.out
	switch a.mode {
	case ModeThrust:
		escTarget = a.target
	case ModeSpeed:
		// Without a fix the previous command is held.
		if f, ok := a.gps.Fix(); ok {
			escTarget = a.pid.Update(a.target, f.Speed)
		}
	}

	// Below idle stays valid: it stops the motor in thrust mode and the
	// speed loop never commands it.
	requested := escTarget
	if requested > a.settings.MCT {
		if a.state == StateNormal {
			a.setState(StateExceeded, now)
		}
		if a.state == StateExceeded && now.Sub(a.stateChangeAt) > a.settings.MaxTime {
			a.setState(StateLock, now)
		}
		if a.state == StateLock || a.state == StateCooldown {
			escTarget = a.settings.MCT
		}
	} else if a.state == StateExceeded {
		a.setState(StateNormal, now)
	}
	if a.state == StateLock && requested <= a.settings.MCT {
		a.setState(StateCooldown, now)
	}
	if a.state == StateCooldown && now.Sub(a.stateChangeAt) > a.settings.Cooldown {
		a.setState(StateNormal, now)
	}

	a.out = common.Lerp(a.out, escTarget, a.settings.Sensitivity)
	return a.out
}

func (a *Autothrottle) setState(s State, now time.Time) {
	if s == a.state {
		return
	}
	if s == StateLock {
		a.log.Warnf("thrust above MCT for %s, limiting to %.0f%%", a.settings.MaxTime, a.settings.MCT)
	} else {
		a.log.Debugf("%s -> %s", a.state, s)
	}
	a.state = s
	a.stateChangeAt = now
}
