/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	flight.go: Axis PID cascade shared by the stabilized modes.
*/

package modes

import (
	"math"

	"github.com/b3nn0/fbw/aahrs"
	"github.com/b3nn0/fbw/actuators"
	"github.com/b3nn0/fbw/common"
	"github.com/b3nn0/fbw/config"
	"github.com/b3nn0/fbw/pid"
)

// flight turns attitude setpoints into surface deflections.
type flight struct {
	cfg *config.Config

	roll, pitch, yaw *pid.Controller

	yawOut      float64 // rudder deflection, degrees from neutral
	yawRaw      bool    // yawOut is pilot input, not a control output
	yawDamperOn bool
	yawSetpoint float64
}

func newFlight(c *config.Config) *flight {
	rollLim, pitchLim := c.Limits.MaxAilDeflection, c.Limits.MaxElevDeflection
	if c.General.ControlMode.IsFlyingWing() {
		rollLim, pitchLim = c.Limits.MaxElevonDeflection, c.Limits.MaxElevonDeflection
	}
	roll, pitch, yaw := c.PID.Roll, c.PID.Pitch, c.PID.Yaw
	roll.LimMin, roll.LimMax = -rollLim, rollLim
	pitch.LimMin, pitch.LimMax = -pitchLim, pitchLim
	yaw.LimMin, yaw.LimMax = -c.Limits.MaxRudDeflection, c.Limits.MaxRudDeflection
	return &flight{
		cfg:   c,
		roll:  pid.New(roll),
		pitch: pid.New(pitch),
		yaw:   pid.New(yaw),
	}
}

func (f *flight) reset() {
	f.roll.Reset()
	f.pitch.Reset()
	f.yaw.Reset()
	f.yawOut = 0
	f.yawRaw = false
	f.yawDamperOn = false
	f.yawSetpoint = 0
}

// update runs one cycle of the cascade. With yawOverride set, yawSet is the
// pilot's rudder deflection and passes through.
func (f *flight) update(att aahrs.Attitude, rollSet, pitchSet, yawSet float64, yawOverride bool) {
	f.roll.Update(rollSet, att.Roll)
	f.pitch.Update(pitchSet, att.Pitch)

	lim := f.cfg.Limits.MaxRudDeflection
	switch {
	case yawOverride:
		f.yawOut = yawSet
		f.yawRaw = true
		f.yawDamperOn = false
	case math.Abs(rollSet) > f.cfg.Control.Deadband:
		// Coordinated turn.
		f.yawOut = common.Clamp(f.roll.Out()*f.cfg.Control.RudderSensitivity, -lim, lim)
		f.yawRaw = false
		f.yawDamperOn = false
	default:
		if !f.yawDamperOn {
			f.yawSetpoint = att.Yaw
			f.yaw.Reset()
		}
		// Measured relative to the captured heading so crossing north
		// does not read as a 360 degree error.
		heading := f.yawSetpoint - common.WrapDegrees180(f.yawSetpoint-att.Yaw)
		f.yawOut = f.yaw.Update(f.yawSetpoint, heading)
		f.yawRaw = false
		f.yawDamperOn = true
	}
}

func sign(reverse bool) float64 {
	if reverse {
		return -1
	}
	return 1
}

// mixElevons converts roll and pitch deflections to elevon positions.
func mixElevons(c *config.Config, roll, pitch float64) (left, right float64) {
	w := c.FlyingWing
	rollC := sign(c.Pins.ReverseRoll) * roll * w.AilMixingBias
	pitchC := sign(c.Pins.ReversePitch) * pitch * w.ElevMixingBias
	left = (rollC+pitchC)*w.ElevonMixingGain + 90
	right = (rollC-pitchC)*w.ElevonMixingGain + 90
	return common.Clamp(left, 0, 180), common.Clamp(right, 0, 180)
}

// outputs writes the cascade's deflections to the surfaces of the
// configured topology.
func (f *flight) outputs(act actuators.Actuator) error {
	c := f.cfg
	if c.General.ControlMode.IsFlyingWing() {
		l, r := mixElevons(c, f.roll.Out(), f.pitch.Out())
		return setAll(act, map[actuators.Channel]float64{actuators.ElevonLeft: l, actuators.ElevonRight: r})
	}
	out := map[actuators.Channel]float64{
		actuators.Aileron:  sign(c.Pins.ReverseRoll)*f.roll.Out() + 90,
		actuators.Elevator: sign(c.Pins.ReversePitch)*f.pitch.Out() + 90,
	}
	if c.General.ControlMode.HasRudder() {
		yaw := f.yawOut
		if !f.yawRaw {
			yaw *= sign(c.Pins.ReverseYaw)
		}
		out[actuators.Rudder] = common.Clamp(yaw+90, 0, 180)
	}
	return setAll(act, out)
}
