/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	auto.go: Auto law, flies the flightplan with lateral and vertical guidance.
*/

package modes

import (
	"time"

	"github.com/b3nn0/fbw/aahrs"
	"github.com/b3nn0/fbw/common"
	"github.com/b3nn0/fbw/config"
	"github.com/b3nn0/fbw/flightplan"
	"github.com/b3nn0/fbw/nav"
	"github.com/b3nn0/fbw/pid"
	"github.com/b3nn0/fbw/throttle"
)

type autoLaw struct {
	plan      *flightplan.Flightplan
	index     int
	targetAlt float64

	latGuid  *pid.Controller
	vertGuid *pid.Controller
}

func (l *autoLaw) init(c *config.Config) {
	l.latGuid = pid.New(c.PID.LatGuid)
	l.vertGuid = pid.New(c.PID.VertGuid)
}

func (l *autoLaw) start(plan *flightplan.Flightplan) error {
	if len(plan.Waypoints) == 0 {
		return flightplan.ErrEmpty
	}
	l.plan = plan
	l.index = 0
	l.latGuid.Reset()
	l.vertGuid.Reset()
	return nil
}

func (l *autoLaw) reset() {
	l.plan = nil
	l.index = 0
	l.latGuid.Reset()
	l.vertGuid.Reset()
}

// waypointAlt is the altitude to fly at wp, above the calibrated ground
// level when an offset was measured.
func (a *Aircraft) waypointAlt(wp flightplan.Waypoint) float64 {
	if off, ok := a.GPS.AltOffset(); ok {
		return wp.Alt + off
	}
	return wp.Alt
}

func (a *Aircraft) autoUpdate(att aahrs.Attitude, in inputs, now time.Time) error {
	l := &a.auto
	fix, ok := a.GPS.Fix()
	if ok {
		wp := l.plan.Waypoints[l.index]
		if nav.Distance(fix.Lat, fix.Lng, wp.Lat, wp.Lng) <= a.Config.Control.InterceptRadius {
			a.log.Infof("waypoint %d intercepted", l.index)
			if wp.Drop > 0 {
				a.bay.schedule(now, wp.Drop)
			}
			l.index++
			if l.index >= len(l.plan.Waypoints) {
				a.holdAlt = a.waypointAlt(wp)
				a.holdAltSet = true
				a.log.Info("flightplan complete")
				a.ChangeTo(Hold)
				return nil
			}
			wp = l.plan.Waypoints[l.index]
		}
		l.targetAlt = a.waypointAlt(wp)

		track := fix.Course
		bearing := nav.Bearing(fix.Lat, fix.Lng, wp.Lat, wp.Lng)
		a.rollSet = l.latGuid.Update(track+common.WrapDegrees180(bearing-track), track)
		a.pitchSet = l.vertGuid.Update(l.targetAlt, fix.Alt)

		if a.Throttle != nil {
			if wp.Speed > 0 && a.Throttle.SetMode(throttle.ModeSpeed) == nil {
				a.Throttle.SetTarget(wp.Speed)
			} else {
				a.Throttle.SetMode(throttle.ModeThrust)
				a.Throttle.SetTarget(in.throttle)
			}
		}
	}
	// Without a fix the last setpoints are held until the GPS is declared
	// unsafe.
	a.flight.update(att, a.rollSet, a.pitchSet, 0, false)
	err := a.flight.outputs(a.Actuators)
	if terr := a.runThrottle(); terr != nil && err == nil {
		err = terr
	}
	return err
}
