/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	calibration.go: Sensor offset computation and the persisted calibration record.
*/

// Package calibration computes sensor offsets and keeps them tied to the
// sensor models they were measured on.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/b3nn0/fbw/persist"
)

var (
	ErrNotCalibrated = errors.New("no calibration stored")
	ErrModelMismatch = errors.New("calibration was performed on different sensor models")
	ErrNoSamples     = errors.New("no calibration samples")
)

// Record slot layout inside a persist.Record.
const (
	slotCalibrated = iota
	slotIMUModel
	slotBaroModel
	slotTimeHi
	slotTimeLo
	slotAccel // 3 slots
	slotGyro  = slotAccel + 3
)

// Record is one stored calibration.
type Record struct {
	Calibrated  bool
	IMUModel    int
	BaroModel   int
	Time        time.Time
	AccelOffset [3]float32 // g
	GyroOffset  [3]float32 // deg/s
}

// Matches reports whether the record was taken on the given models.
func (r Record) Matches(imuModel, baroModel int) bool {
	return r.IMUModel == imuModel && r.BaroModel == baroModel
}

// Valid reports whether the offsets may be applied to the given models.
func (r Record) Valid(imuModel, baroModel int) bool {
	return r.Calibrated && r.Matches(imuModel, baroModel)
}

func (r Record) encode() persist.Record {
	p := persist.NewRecord()
	if r.Calibrated {
		p[slotCalibrated] = 1
	}
	p[slotIMUModel] = float32(r.IMUModel)
	p[slotBaroModel] = float32(r.BaroModel)
	// Split so each half stays exact in a float32.
	unix := r.Time.Unix()
	if unix < 0 {
		unix = 0
	}
	p[slotTimeHi] = float32(unix >> 16)
	p[slotTimeLo] = float32(unix & 0xFFFF)
	copy(p[slotAccel:slotAccel+3], r.AccelOffset[:])
	copy(p[slotGyro:slotGyro+3], r.GyroOffset[:])
	return p
}

func decode(p persist.Record) Record {
	var r Record
	r.Calibrated = p[slotCalibrated] == 1
	r.IMUModel = int(p[slotIMUModel])
	r.BaroModel = int(p[slotBaroModel])
	r.Time = time.Unix(int64(p[slotTimeHi])<<16|int64(p[slotTimeLo]), 0)
	copy(r.AccelOffset[:], p[slotAccel:slotAccel+3])
	copy(r.GyroOffset[:], p[slotGyro:slotGyro+3])
	return r
}

// Manager loads and stores the calibration record.
type Manager struct {
	store persist.Store
	log   *logrus.Entry
}

func NewManager(store persist.Store, log *logrus.Logger) *Manager {
	return &Manager{store: store, log: log.WithField("sys", "calibration")}
}

// Load returns the stored calibration. A record taken on other sensor
// models is returned uncalibrated together with ErrModelMismatch.
func (m *Manager) Load(imuModel, baroModel int) (Record, error) {
	p, ok := m.store.Load(persist.KeyCalibration)
	if !ok {
		return Record{}, ErrNotCalibrated
	}
	r := decode(p)
	if !r.Calibrated {
		return r, ErrNotCalibrated
	}
	if !r.Matches(imuModel, baroModel) {
		m.log.Warnf("calibration was performed on different models (imu %d baro %d, now %d %d), recalibration is necessary!",
			r.IMUModel, r.BaroModel, imuModel, baroModel)
		r.Calibrated = false
		return r, ErrModelMismatch
	}
	m.log.Infof("loaded calibration from %s", humanize.Time(r.Time))
	return r, nil
}

// Save persists r and commits it.
func (m *Manager) Save(r Record) error {
	m.store.Put(persist.KeyCalibration, r.encode())
	if err := m.store.Save(); err != nil {
		return fmt.Errorf("saving calibration: %w", err)
	}
	m.log.Infof("calibration saved: accel %v gyro %v", r.AccelOffset, r.GyroOffset)
	return nil
}

// Erase marks the stored calibration as absent.
func (m *Manager) Erase() error {
	m.store.Put(persist.KeyCalibration, Record{}.encode())
	return m.store.Save()
}

// Accumulator averages stationary, level samples into offsets.
type Accumulator struct {
	accel, gyro [3]float64
	n           int
}

// Add accumulates one sample pair, read with all offsets zeroed.
func (a *Accumulator) Add(accel, gyro [3]float64) {
	for i := 0; i < 3; i++ {
		a.accel[i] += accel[i]
		a.gyro[i] += gyro[i]
	}
	a.n++
}

// N returns the number of samples added.
func (a *Accumulator) N() int {
	return a.n
}

// Offsets returns the offsets that null the gyro and bring the accelerometer
// to (0, 0, 1 g).
func (a *Accumulator) Offsets() (accel, gyro [3]float32, err error) {
	if a.n == 0 {
		return accel, gyro, ErrNoSamples
	}
	n := float64(a.n)
	for i := 0; i < 3; i++ {
		gyro[i] = float32(-a.gyro[i] / n)
		accel[i] = float32(-a.accel[i] / n)
	}
	accel[2] = float32(1 - a.accel[2]/n)
	for _, v := range append(accel[:], gyro[:]...) {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return [3]float32{}, [3]float32{}, fmt.Errorf("non-finite calibration offset")
		}
	}
	return accel, gyro, nil
}

// Widen converts stored offsets for the sensor layer.
func Widen(v [3]float32) [3]float64 {
	return [3]float64{float64(v[0]), float64(v[1]), float64(v[2])}
}
