/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	direct.go: Direct law and the payload bay.
*/

package modes

import (
	"errors"
	"time"

	"github.com/b3nn0/fbw/actuators"
	"github.com/b3nn0/fbw/common"
	"github.com/b3nn0/fbw/config"
)

// direct passes the sticks to the surfaces without stabilization.
func (a *Aircraft) direct(in inputs) error {
	c := a.Config
	var out map[actuators.Channel]float64
	if c.General.ControlMode.IsFlyingWing() {
		l, r := mixElevons(c, in.roll-90, in.pitch-90)
		out = map[actuators.Channel]float64{actuators.ElevonLeft: l, actuators.ElevonRight: r}
	} else {
		out = map[actuators.Channel]float64{
			actuators.Aileron:  in.roll,
			actuators.Elevator: in.pitch,
		}
		if c.General.ControlMode.HasRudder() {
			out[actuators.Rudder] = in.yaw
		}
	}
	if c.General.ControlMode.HasAutothrottle() {
		a.throttleOut = common.Clamp(in.throttle, 0, 100)
		out[actuators.Throttle] = a.throttleOut
	}
	a.rollSet, a.pitchSet = 0, 0
	return setAll(a.Actuators, out)
}

// bay drives the payload bay door. It opens while the pilot holds the bay
// switch or for a while after a scheduled drop.
type bay struct {
	closed, open float64
	openTime     time.Duration
	pilotOpen    bool
	dropAt       time.Time
	openUntil    time.Time
}

func (b *bay) init(c *config.Config) {
	b.closed = c.Control.DropDetentClosed
	b.open = c.Control.DropDetentOpen
	b.openTime = time.Duration(c.Control.DropOpenTime * float64(time.Second))
}

// schedule opens the bay delay seconds after now for the configured time.
func (b *bay) schedule(now time.Time, delay float64) {
	b.dropAt = now.Add(time.Duration(delay * float64(time.Second)))
	b.openUntil = b.dropAt.Add(b.openTime)
}

// isOpen reports whether the door is commanded open at now.
func (b *bay) isOpen(now time.Time) bool {
	if b.pilotOpen {
		return true
	}
	return !b.dropAt.IsZero() && !now.Before(b.dropAt) && now.Before(b.openUntil)
}

func (b *bay) update(act actuators.Actuator, now time.Time) error {
	pos := b.closed
	if b.isOpen(now) {
		pos = b.open
	}
	err := act.Set(actuators.Bay, pos)
	if errors.Is(err, actuators.ErrNoChannel) {
		return nil
	}
	return err
}
