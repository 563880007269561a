/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	controller.go: Hardware wiring of the flight controller.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/b3nn0/fbw/aahrs"
	"github.com/b3nn0/fbw/actuators"
	"github.com/b3nn0/fbw/calibration"
	"github.com/b3nn0/fbw/common"
	"github.com/b3nn0/fbw/config"
	"github.com/b3nn0/fbw/flightplan"
	"github.com/b3nn0/fbw/gps"
	"github.com/b3nn0/fbw/metrics"
	"github.com/b3nn0/fbw/modes"
	"github.com/b3nn0/fbw/persist"
	"github.com/b3nn0/fbw/receiver"
	"github.com/b3nn0/fbw/safety"
	"github.com/b3nn0/fbw/sensors"
	"github.com/b3nn0/fbw/throttle"
)

const (
	rawAnglesPeriod = 100 * time.Millisecond
	rawExportPeriod = time.Second
)

type flightController struct {
	cfg *config.Config
	log *logrus.Logger

	ahrs    *aahrs.AAHRS
	cal     *calibration.Manager
	tuner   *modes.Tuner
	plans   *flightplan.Static
	act     actuators.Actuator
	layout  map[actuators.Channel]int
	runtime *modes.Runtime
	metrics *metrics.Metrics

	// background readers, started by Run
	runners []func(ctx context.Context)
	closers []io.Closer
}

func newFlightController(cfg *config.Config, sim bool, log *logrus.Logger) (*flightController, error) {
	fc := &flightController{cfg: cfg, log: log, plans: &flightplan.Static{}, layout: actuators.Layout(cfg)}

	var (
		store    persist.Store
		bus      embd.I2CBus
		registry sensors.Registry
		imuModel = cfg.Sensors.IMUModel
	)
	if sim {
		store = persist.NewMemory()
		_, registry = sensors.NewSimAircraft()
		imuModel = config.IMUModelSim
	} else {
		db, err := persist.OpenSQLite(cfg.General.StorePath)
		if err != nil {
			return nil, err
		}
		fc.closers = append(fc.closers, db)
		store = db
		if err := embd.InitI2C(); err != nil {
			fc.Close()
			return nil, fmt.Errorf("can't open i2c: %w", err)
		}
		bus = embd.NewI2CBus(cfg.Sensors.I2CBus)
		registry = sensors.DefaultRegistry(bus)
	}

	fc.cal = calibration.NewManager(store, log)
	fc.tuner = modes.NewTuner(store)
	fc.ahrs = aahrs.New(registry, fc.cal, imuModel, cfg.Sensors.BaroModel, log)

	var src gps.Source
	switch {
	case sim:
		s := gps.NewStatic()
		s.SetSupported(false)
		src = s
	case cfg.Sensors.GPSEnabled:
		n := gps.NewNMEA(cfg.Sensors.GPSDevice, cfg.Sensors.GPSBaud, log)
		fc.runners = append(fc.runners, n.Run)
		src = n
	}

	var rx receiver.Receiver
	if sim {
		rx = receiver.NewStatic()
	} else {
		ibus := receiver.NewIBus(cfg.Sensors.ReceiverDevice, cfg.Sensors.ReceiverBaud, log)
		fc.runners = append(fc.runners, ibus.Run)
		rx = ibus
	}

	switch {
	case sim:
		fc.act = actuators.NewRecorder()
	case cfg.Pins.Driver == config.DriverRPIO:
		pwm, err := actuators.OpenPWM(fc.layout, cfg.Pins.ServoHz, cfg.Pins.EscHz, log)
		if err != nil {
			fc.Close()
			return nil, err
		}
		fc.act = pwm
		fc.closers = append(fc.closers, pwm)
	default:
		p, err := actuators.NewPCA9685(bus, cfg.Pins.PCA9685Addr, cfg.Pins.ServoHz, fc.layout, log)
		if err != nil {
			fc.Close()
			return nil, err
		}
		fc.act = p
		fc.closers = append(fc.closers, p)
	}

	var thr *throttle.Autothrottle
	if cfg.General.ControlMode.HasAutothrottle() {
		thr = throttle.New(throttle.SettingsFromConfig(cfg), src, log)
	}

	sup := safety.NewSupervisor(
		safety.Envelope{MaxRoll: cfg.Limits.EnvelopeRoll, MaxPitch: cfg.Limits.EnvelopePitchUpper, MinPitch: cfg.Limits.EnvelopePitchLower},
		safety.GPSRule{MaxAge: time.Duration(cfg.Sensors.GPSMaxAge * float64(time.Second)), MaxPDOP: cfg.Sensors.GPSMaxPDOP,
			MaxHDOP: cfg.Sensors.GPSMaxHDOP, MaxVDOP: cfg.Sensors.GPSMaxVDOP},
		log)
	fc.metrics = metrics.New(prometheus.DefaultRegisterer, sup.ReadFailures)

	fc.ReloadFlightplan(cfg.General.Flightplan)

	fc.runtime = modes.NewRuntime(modes.NewAircraft(modes.Deps{
		Config:      cfg,
		AHRS:        fc.ahrs,
		GPS:         src,
		Flightplans: fc.plans,
		Receiver:    rx,
		Actuators:   fc.act,
		Throttle:    thr,
		Tuner:       fc.tuner,
		Supervisor:  sup,
		Observer:    fc.metrics,
		Log:         log,
	}))
	return fc, nil
}

// ReloadFlightplan replaces the loaded flightplan with the file at path.
// A missing file clears it.
func (fc *flightController) ReloadFlightplan(path string) {
	f, err := flightplan.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		fc.plans.Set(nil)
		fc.log.Info("no flightplan")
		return
	}
	if err != nil {
		fc.log.Errorf("%s, keeping the loaded flightplan", err)
		return
	}
	if err := fc.plans.Set(f); err != nil {
		fc.log.Errorf("flightplan: %s", err)
		return
	}
	fc.log.Infof("flightplan %q with %d waypoints", f.Version, len(f.Waypoints))
}

// Calibrate initializes the AAHRS and records its offsets.
func (fc *flightController) Calibrate(ctx context.Context) error {
	if err := fc.ahrs.Init(); err != nil {
		return err
	}
	defer fc.ahrs.Deinit()
	fc.log.Infof("calibrating on %d samples, keep the aircraft level and still", fc.ahrs.CalibrationSamples)
	return fc.ahrs.Calibrate(ctx)
}

// Forget erases the calibration and the tuning flag.
func (fc *flightController) Forget() error {
	if err := fc.cal.Erase(); err != nil {
		return err
	}
	return fc.tuner.Clear()
}

// Run drives the control loop until ctx is done.
func (fc *flightController) Run(ctx context.Context) {
	var wg sync.WaitGroup
	start := func(f func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}
	for _, r := range fc.runners {
		start(r)
	}
	start(func(ctx context.Context) {
		fc.ahrs.RawAngles().Run(ctx, fc.ahrs.TiltProducer(), rawAnglesPeriod)
	})
	start(func(ctx context.Context) {
		fc.metrics.WatchRawAngles(ctx, fc.ahrs.RawAngles(), rawExportPeriod)
	})
	start(func(ctx context.Context) {
		common.CpuTempMonitor(ctx, fc.metrics.SetCpuTemp)
	})

	fc.runtime.Run(ctx)
	wg.Wait()
}

// Close centers the surfaces, closes the throttle and releases the hardware.
func (fc *flightController) Close() {
	if fc.act != nil {
		if err := actuators.Neutral(fc.act, fc.layout, fc.cfg.Control.DropDetentClosed); err != nil {
			fc.log.Errorf("neutral outputs: %s", err)
		}
	}
	if fc.ahrs != nil && fc.ahrs.Initialized() {
		fc.ahrs.Deinit()
	}
	for i := len(fc.closers) - 1; i >= 0; i-- {
		if err := fc.closers[i].Close(); err != nil {
			fc.log.Errorf("close: %s", err)
		}
	}
	fc.closers = nil
}
