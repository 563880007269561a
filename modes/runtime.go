/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	runtime.go: The control loop: mode switch, safety checks and the active law.
*/

package modes

import (
	"context"
	"time"

	"github.com/b3nn0/fbw/config"
	"github.com/b3nn0/fbw/receiver"
)

// Runtime ticks an Aircraft.
type Runtime struct {
	*Aircraft

	lastPos   receiver.Position
	switchSet bool
}

func NewRuntime(a *Aircraft) *Runtime {
	return &Runtime{Aircraft: a}
}

// SwitchMode maps a mode switch position to the requested mode.
func SwitchMode(p receiver.Position, t config.SwitchType, hasFlightplan bool) Mode {
	switch p {
	case receiver.PositionLow:
		return Direct
	case receiver.PositionMid:
		return Normal
	}
	if t == config.SwitchType2Pos && !hasFlightplan {
		return Normal
	}
	return Auto
}

// pollSwitch requests a mode when the switch moved.
func (r *Runtime) pollSwitch() {
	deg, err := r.Receiver.Get(receiver.Switch)
	if err != nil {
		return
	}
	pos := receiver.SwitchPosition(deg, r.Config.General.SwitchType)
	if r.switchSet && pos == r.lastPos {
		return
	}
	r.lastPos, r.switchSet = pos, true
	r.log.Debugf("mode switch %s", pos)
	r.ChangeTo(SwitchMode(pos, r.Config.General.SwitchType, r.HasFlightplan()))
}

// Step runs one control tick.
func (r *Runtime) Step() {
	now := r.Now()
	r.pollSwitch()

	if r.aahrsSafe {
		if !r.Supervisor.AAHRS(r.AHRS.Update(now), now) {
			r.SetAAHRSSafe(false)
		}
	} else if r.Supervisor.MayRecover(now) {
		r.SetAAHRSSafe(true)
		if !r.aahrsSafe {
			r.Supervisor.Unsafe(now)
		} else {
			r.Supervisor.Recovered()
			if r.switchSet {
				r.ChangeTo(SwitchMode(r.lastPos, r.Config.General.SwitchType, r.HasFlightplan()))
			}
		}
	}

	if r.GPS != nil {
		r.SetGPSSafe(r.Supervisor.GPS.Safe(r.GPS, now))
	}

	r.Update()
	if r.Observer != nil {
		r.Observer.Tick(r.Status())
	}
}

// Run ticks until ctx is done.
func (r *Runtime) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(r.Config.General.LoopPeriodMS) * time.Millisecond)
	defer ticker.Stop()
	r.log.Infof("control loop running every %d ms", r.Config.General.LoopPeriodMS)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Step()
		}
	}
}
