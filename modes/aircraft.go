/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	aircraft.go: The aircraft context: active mode, safety flags and collaborators.
*/

package modes

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/b3nn0/fbw/aahrs"
	"github.com/b3nn0/fbw/actuators"
	"github.com/b3nn0/fbw/common"
	"github.com/b3nn0/fbw/config"
	"github.com/b3nn0/fbw/flightplan"
	"github.com/b3nn0/fbw/gps"
	"github.com/b3nn0/fbw/receiver"
	"github.com/b3nn0/fbw/safety"
	"github.com/b3nn0/fbw/throttle"
)

// AHRS is the attitude source the aircraft owns.
type AHRS interface {
	Init() error
	Deinit()
	Initialized() bool
	Update(now time.Time) error
	Attitude() aahrs.Attitude
}

// Observer is notified of mode changes and of every control tick.
type Observer interface {
	ModeChanged(from, to Mode)
	Tick(s Status)
}

// Deps are the collaborators of an Aircraft. GPS, Flightplans, Throttle and
// Observer may be nil.
type Deps struct {
	Config      *config.Config
	AHRS        AHRS
	GPS         gps.Source
	Flightplans flightplan.Provider
	Receiver    receiver.Receiver
	Actuators   actuators.Actuator
	Throttle    *throttle.Autothrottle
	Tuner       *Tuner
	Supervisor  *safety.Supervisor
	Observer    Observer
	Log         *logrus.Logger
	Now         func() time.Time
}

// Status is a snapshot of the aircraft for observers.
type Status struct {
	Mode      Mode
	Safety    safety.Flags
	Attitude  aahrs.Attitude
	RollSet   float64
	PitchSet  float64
	Waypoint  int // active waypoint index, -1 outside Auto
	Throttle  float64
	HoldPhase HoldPhase
}

// Aircraft holds the flight mode state machine. It is driven from a single
// goroutine.
type Aircraft struct {
	Deps

	mode      Mode
	aahrsSafe bool
	gpsSafe   bool

	flight *flight
	auto   autoLaw
	hold   holdLaw
	bay    bay

	rollSet, pitchSet float64
	throttleOut       float64

	// holdAlt carries the last commanded altitude from Auto into Hold.
	holdAlt    float64
	holdAltSet bool

	log *logrus.Entry
}

// NewAircraft returns an aircraft in Direct mode with both sources unsafe.
func NewAircraft(d Deps) *Aircraft {
	if d.Now == nil {
		d.Now = time.Now
	}
	a := &Aircraft{
		Deps:   d,
		mode:   Direct,
		flight: newFlight(d.Config),
		log:    d.Log.WithField("sys", "aircraft"),
	}
	a.auto.init(d.Config)
	a.hold.init(d.Config)
	a.bay.init(d.Config)
	return a
}

func (a *Aircraft) Mode() Mode {
	return a.mode
}

func (a *Aircraft) AAHRSSafe() bool {
	return a.aahrsSafe
}

func (a *Aircraft) GPSSafe() bool {
	return a.gpsSafe
}

func (a *Aircraft) gpsSupported() bool {
	return a.GPS != nil && a.GPS.Supported()
}

// HasFlightplan reports whether a non-empty flightplan is loaded.
func (a *Aircraft) HasFlightplan() bool {
	if a.Flightplans == nil {
		return false
	}
	plan, ok := a.Flightplans.Flightplan()
	return ok && plan != nil && len(plan.Waypoints) > 0
}

func (a *Aircraft) conditions() Conditions {
	return Conditions{
		AAHRSSafe:     a.aahrsSafe,
		GPSSafe:       a.gpsSafe,
		GPSSupported:  a.gpsSupported(),
		Tuned:         a.Tuner.IsTuned(),
		HasFlightplan: a.HasFlightplan(),
	}
}

// ChangeTo leaves the current mode and enters target, or the mode target
// resolves to. A mode that fails to start falls back to Normal, then Direct.
func (a *Aircraft) ChangeTo(target Mode) {
	from := a.mode
	a.exit(from)

	next := Resolve(target, a.conditions())
	for {
		err := a.enter(next)
		if err == nil {
			break
		}
		fallback := Resolve(Normal, a.conditions())
		if next == Normal || next == fallback {
			fallback = Direct
		}
		a.log.Warnf("can't enter %s mode: %s, entering %s", next, err, fallback)
		next = fallback
	}
	a.mode = next
	if next != target {
		a.log.Infof("%s mode requested, entering %s mode", target, next)
	} else {
		a.log.Infof("entering %s mode", next)
	}
	if a.Observer != nil {
		a.Observer.ModeChanged(from, next)
	}
}

// exit resets everything the mode accumulated.
func (a *Aircraft) exit(m Mode) {
	a.log.Debugf("exiting %s mode", m)
	switch m {
	case Auto:
		a.auto.reset()
	case Hold:
		a.hold.reset()
	}
	a.flight.reset()
	a.rollSet, a.pitchSet = 0, 0
}

func (a *Aircraft) enter(m Mode) error {
	switch m {
	case Auto:
		plan, ok := a.Flightplans.Flightplan()
		if !ok || plan == nil {
			return flightplan.ErrEmpty
		}
		if plan.AltSamples > 0 {
			a.GPS.CalibrateAltOffset(plan.AltSamples)
		}
		return a.auto.start(plan)
	case Hold:
		alt := a.holdAlt
		if !a.holdAltSet {
			f, ok := a.GPS.Fix()
			if !ok {
				return errors.New("no GPS fix for the hold altitude")
			}
			alt = f.Alt
		}
		a.holdAltSet = false
		a.hold.start(alt)
	}
	if a.Throttle != nil && m != Hold {
		// Auto selects speed mode per waypoint.
		a.Throttle.SetMode(throttle.ModeThrust)
	}
	return nil
}

// SetAAHRSSafe records the AAHRS verdict. Losing the AAHRS forces Direct
// and releases it; regaining it initializes it again.
func (a *Aircraft) SetAAHRSSafe(safe bool) {
	if safe == a.aahrsSafe {
		return
	}
	if safe {
		if !a.AHRS.Initialized() {
			if err := a.AHRS.Init(); err != nil {
				a.log.Errorf("AAHRS initialization failed: %s", err)
				a.ChangeTo(Direct)
				return
			}
		}
		a.aahrsSafe = true
		a.log.Info("AAHRS set as safe")
		return
	}
	a.aahrsSafe = false
	a.log.Error("AAHRS has failed, entering direct mode")
	a.ChangeTo(Direct)
	a.AHRS.Deinit()
}

// SetGPSSafe records the GPS verdict. Losing the GPS in Auto or Hold falls
// back to Normal.
func (a *Aircraft) SetGPSSafe(safe bool) {
	if safe == a.gpsSafe {
		return
	}
	a.gpsSafe = safe
	if safe {
		a.log.Info("GPS set as safe")
		return
	}
	a.log.Warn("GPS set as unsafe")
	if a.mode == Auto || a.mode == Hold {
		a.ChangeTo(Normal)
	}
}

// Update runs the active mode's control law once.
func (a *Aircraft) Update() {
	now := a.Now()
	in := a.inputs()
	a.bay.pilotOpen = in.bay > 90

	var err error
	switch a.mode {
	case Direct, Tune:
		err = a.direct(in)
		if a.mode == Tune && !a.Tuner.IsTuned() {
			if terr := a.Tuner.MarkTuned(); terr != nil {
				a.log.Errorf("can't store tuning: %s", terr)
			} else {
				a.log.Info("tuning complete")
				a.ChangeTo(Normal)
			}
		}
	default:
		att := a.AHRS.Attitude()
		if !a.Supervisor.Attitude(att, now) {
			a.SetAAHRSSafe(false)
			err = a.direct(in)
			break
		}
		switch a.mode {
		case Normal:
			err = a.normalUpdate(att, in)
		case Auto:
			err = a.autoUpdate(att, in, now)
		case Hold:
			err = a.holdUpdate(att, in, now)
		}
	}
	if berr := a.bay.update(a.Actuators, now); berr != nil {
		err = errors.Join(err, berr)
	}
	if err != nil {
		a.log.Debugf("actuators: %s", err)
	}
}

// Status returns a snapshot for observers.
func (a *Aircraft) Status() Status {
	s := Status{
		Mode:      a.mode,
		Safety:    safety.Flags{AAHRSSafe: a.aahrsSafe, GPSSafe: a.gpsSafe},
		Attitude:  a.AHRS.Attitude(),
		RollSet:   a.rollSet,
		PitchSet:  a.pitchSet,
		Waypoint:  -1,
		Throttle:  a.throttleOut,
		HoldPhase: a.hold.phase,
	}
	if a.mode == Auto {
		s.Waypoint = a.auto.index
	}
	return s
}

// inputs are the pilot's stick positions in degrees, 90 centered, and the
// throttle in percent.
type inputs struct {
	roll, pitch, yaw float64
	throttle         float64
	bay              float64
	failsafe         bool
}

func (a *Aircraft) inputs() inputs {
	in := inputs{roll: 90, pitch: 90, yaw: 90}
	read := func(ch receiver.Channel) (float64, bool) {
		v, err := a.Receiver.Get(ch)
		return v, err == nil
	}
	var ok bool
	if in.roll, ok = read(receiver.Roll); !ok {
		// Sticks centered and throttle closed without a signal.
		return inputs{roll: 90, pitch: 90, yaw: 90, failsafe: true}
	}
	in.pitch, _ = read(receiver.Pitch)
	in.yaw, _ = read(receiver.Yaw)
	thr, _ := read(receiver.Throttle)
	in.throttle = common.MapRange(common.Clamp(thr, 0, 180), 0, 180, 0, 100)
	in.bay, _ = read(receiver.Bay)
	return in
}

// runThrottle drives the ESC through the autothrottle with the current
// mode and target.
func (a *Aircraft) runThrottle() error {
	if a.Throttle == nil {
		return nil
	}
	a.throttleOut = a.Throttle.Update()
	return a.Actuators.Set(actuators.Throttle, a.throttleOut)
}

// setAll writes outputs in channel order and joins the errors.
func setAll(act actuators.Actuator, out map[actuators.Channel]float64) error {
	chs := make([]actuators.Channel, 0, len(out))
	for ch := range out {
		chs = append(chs, ch)
	}
	sort.Slice(chs, func(i, j int) bool { return chs[i] < chs[j] })
	var errs []error
	for _, ch := range chs {
		if err := act.Set(ch, out[ch]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}
