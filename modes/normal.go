/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	normal.go: Normal law, stick inputs move the attitude setpoints.
*/

package modes

import (
	"math"

	"github.com/b3nn0/fbw/aahrs"
	"github.com/b3nn0/fbw/common"
)

// rollBleed is how far per tick the roll setpoint returns toward the soft
// limit once the stick is released beyond it.
const rollBleed = 1.0

func (a *Aircraft) normalUpdate(att aahrs.Attitude, in inputs) error {
	c := a.Config
	rollDef := common.Deadband(in.roll-90, c.Control.Deadband)
	pitchDef := common.Deadband(in.pitch-90, c.Control.Deadband)
	yawDef := common.Deadband(in.yaw-90, c.Control.Deadband)

	a.rollSet += rollDef * c.Control.Sensitivity
	a.pitchSet += pitchDef * c.Control.Sensitivity

	if rollDef == 0 && math.Abs(a.rollSet) > c.Limits.RollLimit {
		bled := math.Abs(a.rollSet) - rollBleed
		if bled < c.Limits.RollLimit {
			bled = c.Limits.RollLimit
		}
		a.rollSet = math.Copysign(bled, a.rollSet)
	}
	a.rollSet = common.Clamp(a.rollSet, -c.Limits.RollLimitHold, c.Limits.RollLimitHold)
	a.pitchSet = common.Clamp(a.pitchSet, c.Limits.PitchLowerLimit, c.Limits.PitchUpperLimit)

	lim := c.Limits.MaxRudDeflection
	a.flight.update(att, a.rollSet, a.pitchSet, common.Clamp(yawDef, -lim, lim), yawDef != 0)
	err := a.flight.outputs(a.Actuators)

	if a.Throttle != nil {
		a.Throttle.SetTarget(in.throttle)
		if terr := a.runThrottle(); terr != nil && err == nil {
			err = terr
		}
	}
	return err
}
