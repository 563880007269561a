/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	aahrs.go: Attitude and heading reference: sensor reads, fusion and publication.
*/

// Package aahrs owns the IMU and the fusion filter and publishes the
// aircraft attitude.
package aahrs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/b3nn0/fbw/calibration"
	"github.com/b3nn0/fbw/common"
	"github.com/b3nn0/fbw/madgwick"
	"github.com/b3nn0/fbw/sensors"
)

var (
	ErrFilter  = errors.New("aahrs: fusion filter failure")
	ErrNotInit = errors.New("aahrs: not initialized")
	ErrSensors = errors.New("aahrs: required sensor missing")
)

const (
	Frequency          = 100.0 // Hz
	Beta               = 0.1
	CalibrationSamples = 5000
)

var (
	accelOptions = sensors.Options{ODR: Frequency, Scale: 16}
	gyroOptions  = sensors.Options{ODR: Frequency, Scale: 2000}
	magOptions   = sensors.Options{ODR: Frequency, Scale: 12}
)

// Attitude is the published aircraft state.
type Attitude struct {
	Roll, Pitch, Yaw             float64 // degrees, yaw 0-360
	RollRate, PitchRate, YawRate float64 // deg/s
	AccX, AccY, AccZ             float64 // g
	Alt                          float64 // barometric altitude (m), -1 when unavailable
	Calibrated                   bool
	Initialized                  bool
}

// Invalid is published whenever no attitude estimate exists.
func Invalid() Attitude {
	inf := math.Inf(1)
	return Attitude{Roll: inf, Pitch: inf, Yaw: inf, RollRate: inf, PitchRate: inf, YawRate: inf, Alt: -1}
}

// AAHRS is the single writer of the published attitude. Init, Update,
// Calibrate and Deinit must be called from one goroutine; Attitude may be
// called from any.
type AAHRS struct {
	registry  sensors.Registry
	cal       *calibration.Manager
	imuModel  int
	baroModel int
	log       *logrus.Entry
	logger    *logrus.Logger

	// CalibrationSamples is the number of samples Calibrate averages.
	CalibrationSamples int

	imu         *sensors.IMU
	filter      *madgwick.Filter
	period      time.Duration
	next        time.Time
	initialized bool
	calibrated  bool

	mu  sync.RWMutex
	att Attitude

	raw AngleCache
}

// New returns an orchestrator that will search reg for its sensors. The
// model identifiers are checked against the stored calibration.
func New(reg sensors.Registry, cal *calibration.Manager, imuModel, baroModel int, log *logrus.Logger) *AAHRS {
	return &AAHRS{
		registry:           reg,
		cal:                cal,
		imuModel:           imuModel,
		baroModel:          baroModel,
		log:                log.WithField("sys", "aahrs"),
		logger:             log,
		CalibrationSamples: CalibrationSamples,
		att:                Invalid(),
	}
}

// Init detects the sensors, creates the filter and applies the stored
// calibration if it was taken on the same models.
func (a *AAHRS) Init() error {
	if a.initialized {
		return nil
	}

	imu := sensors.NewIMU(a.registry, a.logger)
	if !imu.FindAccelerometer(accelOptions) {
		imu.Close()
		return fmt.Errorf("%w: accelerometer", ErrSensors)
	}
	if !imu.FindGyroscope(gyroOptions) {
		imu.Close()
		return fmt.Errorf("%w: gyroscope", ErrSensors)
	}
	if !imu.FindMagnetometer(magOptions) {
		imu.Close()
		return fmt.Errorf("%w: magnetometer", ErrSensors)
	}

	filter := madgwick.New()
	if err := filter.SetParams(Frequency, Beta); err != nil {
		imu.Close()
		return fmt.Errorf("%w: %v", ErrFilter, err)
	}

	a.calibrated = false
	rec, err := a.cal.Load(a.imuModel, a.baroModel)
	switch {
	case err == nil:
		imu.SetOffsets(sensors.Accelerometer, calibration.Widen(rec.AccelOffset))
		imu.SetOffsets(sensors.Gyroscope, calibration.Widen(rec.GyroOffset))
		a.calibrated = true
	case errors.Is(err, calibration.ErrModelMismatch):
		a.log.Warn("stored calibration ignored, recalibration is necessary")
	default:
		a.log.Info("no calibration stored")
	}

	a.imu = imu
	a.filter = filter
	a.period = time.Duration(float64(time.Second) / Frequency)
	a.next = time.Time{}
	a.initialized = true

	a.mu.Lock()
	a.att = Attitude{Alt: -1, Calibrated: a.calibrated, Initialized: true}
	a.mu.Unlock()
	a.log.Info("initialized")
	return nil
}

// Initialized reports whether Init succeeded and Deinit was not called since.
func (a *AAHRS) Initialized() bool {
	return a.initialized
}

// Calibrated reports whether valid offsets are applied.
func (a *AAHRS) Calibrated() bool {
	return a.calibrated
}

// Update runs one fusion cycle. Cycles follow a fixed schedule of one filter
// period: a call more than half a period ahead of the next slot is a no-op,
// and a caller that fell a full period behind restarts the schedule. Read
// failures are returned wrapped; a filter failure returns ErrFilter.
func (a *AAHRS) Update(now time.Time) error {
	if !a.initialized {
		return ErrNotInit
	}
	if !a.next.IsZero() && now.Before(a.next.Add(-a.period/2)) {
		return nil
	}
	if a.next.IsZero() || now.Sub(a.next) >= a.period {
		a.next = now.Add(a.period)
	} else {
		a.next = a.next.Add(a.period)
	}

	acc, err := a.imu.ReadAccelerometer()
	if err != nil {
		return err
	}
	gyr, err := a.imu.ReadGyroscope()
	if err != nil {
		return err
	}
	// The magnetometer is sampled but not fused yet: hard/soft iron
	// calibration is missing, so the filter runs 6-DOF.
	if _, err := a.imu.ReadMagnetometer(); err != nil {
		a.log.Debugf("magnetometer: %s", err)
	}
	var mag [3]float64

	err = a.filter.Update(
		common.Radians(gyr[0]), common.Radians(gyr[1]), common.Radians(gyr[2]),
		acc[0], acc[1], acc[2],
		mag[0], mag[1], mag[2])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFilter, err)
	}
	roll, pitch, yaw, err := a.filter.Angles()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFilter, err)
	}

	att := Attitude{
		Roll:        common.Degrees(roll),
		Pitch:       common.Degrees(pitch),
		Yaw:         common.WrapDegrees360(common.Degrees(yaw)),
		RollRate:    gyr[0],
		PitchRate:   gyr[1],
		YawRate:     gyr[2],
		AccX:        acc[0],
		AccY:        acc[1],
		AccZ:        acc[2],
		Alt:         -1,
		Calibrated:  a.calibrated,
		Initialized: true,
	}
	a.mu.Lock()
	a.att = att
	a.mu.Unlock()
	return nil
}

// Attitude returns a snapshot of the published attitude.
func (a *AAHRS) Attitude() Attitude {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.att
}

// RawAngles is the cache of accelerometer-only angles, fed by a background
// producer (see TiltProducer). The producer is its only writer.
func (a *AAHRS) RawAngles() *AngleCache {
	return &a.raw
}

// TiltProducer derives accelerometer-only angles from the published
// attitude. It is safe to run off the control goroutine. While the attitude
// is invalid it yields InvalidAngles.
func (a *AAHRS) TiltProducer() Producer {
	return func() (Angles, error) {
		att := a.Attitude()
		if !att.Initialized {
			return InvalidAngles(), nil
		}
		return TiltAngles([3]float64{att.AccX, att.AccY, att.AccZ}), nil
	}
}

// Calibrate averages CalibrationSamples readings while the aircraft sits
// still and level, then stores and persists the offsets. It must not run
// inside the control tick.
func (a *AAHRS) Calibrate(ctx context.Context) error {
	if !a.initialized {
		return ErrNotInit
	}

	prevAccel, _ := a.imu.Offsets(sensors.Accelerometer)
	prevGyro, _ := a.imu.Offsets(sensors.Gyroscope)
	restore := func() {
		a.imu.SetOffsets(sensors.Accelerometer, prevAccel)
		a.imu.SetOffsets(sensors.Gyroscope, prevGyro)
	}
	a.imu.SetOffsets(sensors.Accelerometer, [3]float64{})
	a.imu.SetOffsets(sensors.Gyroscope, [3]float64{})

	a.log.Infof("calibrating with %d samples, keep the aircraft still and level", a.CalibrationSamples)
	var acc calibration.Accumulator
	for acc.N() < a.CalibrationSamples {
		if err := ctx.Err(); err != nil {
			restore()
			return err
		}
		accel, err := a.imu.ReadAccelerometer()
		if err != nil {
			restore()
			return fmt.Errorf("calibration: %w", err)
		}
		gyro, err := a.imu.ReadGyroscope()
		if err != nil {
			restore()
			return fmt.Errorf("calibration: %w", err)
		}
		acc.Add(accel, gyro)
	}

	accelOff, gyroOff, err := acc.Offsets()
	if err != nil {
		restore()
		return err
	}
	a.imu.SetOffsets(sensors.Accelerometer, calibration.Widen(accelOff))
	a.imu.SetOffsets(sensors.Gyroscope, calibration.Widen(gyroOff))

	rec := calibration.Record{
		Calibrated:  true,
		IMUModel:    a.imuModel,
		BaroModel:   a.baroModel,
		Time:        time.Now(),
		AccelOffset: accelOff,
		GyroOffset:  gyroOff,
	}
	if err := a.cal.Save(rec); err != nil {
		return err
	}
	a.calibrated = true
	a.filter.Reset()
	return nil
}

// Deinit publishes the invalid attitude and releases the filter and IMU.
func (a *AAHRS) Deinit() {
	a.mu.Lock()
	a.att = Invalid()
	a.mu.Unlock()

	if a.filter != nil {
		a.filter.Destroy()
		a.filter = nil
	}
	if a.imu != nil {
		a.imu.Close()
		a.imu = nil
	}
	if a.initialized {
		a.log.Info("deinitialized")
	}
	a.initialized = false
}
