/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	hold.go: Hold law, a racetrack pattern at a fixed altitude.
*/

package modes

import (
	"fmt"
	"math"
	"time"

	"github.com/b3nn0/fbw/aahrs"
	"github.com/b3nn0/fbw/config"
	"github.com/b3nn0/fbw/pid"
	"github.com/b3nn0/fbw/throttle"
)

// HoldPhase is the position in the racetrack.
type HoldPhase int

const (
	HoldUnscheduled HoldPhase = iota
	HoldAwaiting              // flying the straight leg
	HoldBegun                 // rolling into the turn
	HoldInProgress            // turning at full bank
	HoldEnding                // shallow bank close to the new heading
	HoldStabilizing           // rolling out
)

var holdPhaseNames = [...]string{"unscheduled", "awaiting", "begun", "in_progress", "ending", "stabilizing"}

func (p HoldPhase) String() string {
	if p < 0 || int(p) >= len(holdPhaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return holdPhaseNames[p]
}

// Turn geometry in degrees.
const (
	holdBank            = 25
	holdSlowBank        = 5
	holdDecreaseWithin  = 10
	holdInterceptWithin = 2
)

type holdLaw struct {
	legTime  time.Duration
	bankStep float64

	phase         HoldPhase
	legStart      time.Time
	targetHeading float64
	bank          float64
	targetAlt     float64

	vertGuid *pid.Controller
}

func (l *holdLaw) init(c *config.Config) {
	l.legTime = time.Duration(c.Control.HoldLegTime * float64(time.Second))
	l.bankStep = c.Control.HoldBankStep
	l.vertGuid = pid.New(c.PID.VertGuid)
}

func (l *holdLaw) start(alt float64) {
	l.phase = HoldAwaiting
	l.legStart = time.Time{}
	l.bank = 0
	l.targetAlt = alt
	l.vertGuid.Reset()
}

func (l *holdLaw) reset() {
	l.phase = HoldUnscheduled
	l.bank = 0
	l.vertGuid.Reset()
}

// toward moves v by at most step toward target.
func toward(v, target, step float64) float64 {
	if math.Abs(target-v) <= step {
		return target
	}
	if target > v {
		return v + step
	}
	return v - step
}

// step advances the pattern at the given heading and returns the bank to
// fly. Turns are to the right.
func (l *holdLaw) step(heading float64, now time.Time) float64 {
	if l.legStart.IsZero() {
		l.legStart = now
	}
	// Not wrapped: the turn always runs the same way round.
	diff := math.Abs(l.targetHeading - heading)
	switch l.phase {
	case HoldAwaiting:
		l.bank = toward(l.bank, 0, l.bankStep)
		if now.Sub(l.legStart) >= l.legTime {
			l.targetHeading = heading + 180
			if l.targetHeading > 360 {
				l.targetHeading -= 360
			}
			l.phase = HoldBegun
		}
	case HoldBegun:
		l.bank = toward(l.bank, holdBank, l.bankStep)
		if l.bank >= holdBank {
			l.phase = HoldInProgress
		}
	case HoldInProgress:
		if diff <= holdDecreaseWithin {
			l.phase = HoldEnding
		}
	case HoldEnding:
		l.bank = toward(l.bank, holdSlowBank, l.bankStep)
		if diff <= holdInterceptWithin {
			l.phase = HoldStabilizing
		}
	case HoldStabilizing:
		l.bank = toward(l.bank, 0, l.bankStep)
		if l.bank == 0 {
			l.phase = HoldAwaiting
			l.legStart = now
		}
	}
	return l.bank
}

func (a *Aircraft) holdUpdate(att aahrs.Attitude, in inputs, now time.Time) error {
	l := &a.hold
	if fix, ok := a.GPS.Fix(); ok {
		a.rollSet = l.step(fix.Course, now)
		a.pitchSet = l.vertGuid.Update(l.targetAlt, fix.Alt)
	}
	a.flight.update(att, a.rollSet, a.pitchSet, 0, false)
	err := a.flight.outputs(a.Actuators)
	if a.Throttle != nil {
		if a.Throttle.Mode() == throttle.ModeThrust {
			a.Throttle.SetTarget(in.throttle)
		}
		if terr := a.runThrottle(); terr != nil && err == nil {
			err = terr
		}
	}
	return err
}
