/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	madgwick.go: Madgwick gradient-descent quaternion attitude filter.
*/

// Package madgwick fuses gyroscope, accelerometer and (optionally)
// magnetometer samples into an attitude quaternion.
package madgwick

import (
	"errors"
	"math"
)

const (
	DefaultFrequency = 100.0
	DefaultBeta      = 0.1 // values of 0.02 or 0.025 have also been suggested
)

var (
	ErrInvalid   = errors.New("madgwick: invalid filter handle")
	ErrNonFinite = errors.New("madgwick: non-finite input")
	ErrParams    = errors.New("madgwick: frequency must be positive and beta non-negative")
)

// Filter is the fusion state. The quaternion is unit length after every
// successful Update.
type Filter struct {
	q0, q1, q2, q3 float64
	beta           float64
	freq           float64
	counter        uint64
	destroyed      bool
}

// New returns a filter at the identity attitude with default parameters.
func New() *Filter {
	f := &Filter{beta: DefaultBeta, freq: DefaultFrequency}
	f.Reset()
	return f
}

func (f *Filter) valid() bool {
	return f != nil && !f.destroyed
}

// Reset returns the filter to the identity attitude and clears the counter.
func (f *Filter) Reset() {
	if !f.valid() {
		return
	}
	f.q0, f.q1, f.q2, f.q3 = 1, 0, 0, 0
	f.counter = 0
}

// SetParams sets the update frequency (Hz) and gain.
func (f *Filter) SetParams(freq, beta float64) error {
	if !f.valid() {
		return ErrInvalid
	}
	if !(freq > 0) || !(beta >= 0) || math.IsInf(freq, 0) || math.IsInf(beta, 0) {
		return ErrParams
	}
	f.freq = freq
	f.beta = beta
	return nil
}

// Destroy invalidates the handle; later calls return ErrInvalid.
func (f *Filter) Destroy() {
	if f != nil {
		f.destroyed = true
	}
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Update runs one filter step. Gyro in rad/s, accel in g, mag in any
// consistent unit. An all-zero magnetometer falls back to 6-DOF fusion and an
// all-zero accelerometer skips the correction step.
func (f *Filter) Update(gx, gy, gz, ax, ay, az, mx, my, mz float64) error {
	if !f.valid() {
		return ErrInvalid
	}
	if !finite(gx, gy, gz, ax, ay, az, mx, my, mz) {
		return ErrNonFinite
	}

	var q [4]float64
	if mx == 0 && my == 0 && mz == 0 {
		q = f.updateIMU(gx, gy, gz, ax, ay, az)
	} else {
		q = f.updateMARG(gx, gy, gz, ax, ay, az, mx, my, mz)
	}

	// Normalise quaternion
	norm := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if !(norm > 0) || !finite(norm) {
		return ErrNonFinite
	}
	f.q0, f.q1, f.q2, f.q3 = q[0]/norm, q[1]/norm, q[2]/norm, q[3]/norm
	f.counter++
	return nil
}

// updateMARG returns the integrated, not yet normalised quaternion.
func (f *Filter) updateMARG(gx, gy, gz, ax, ay, az, mx, my, mz float64) [4]float64 {
	q0, q1, q2, q3 := f.q0, f.q1, f.q2, f.q3

	// Rate of change of quaternion from gyroscope
	qDot1 := 0.5 * (-q1*gx - q2*gy - q3*gz)
	qDot2 := 0.5 * (q0*gx + q2*gz - q3*gy)
	qDot3 := 0.5 * (q0*gy - q1*gz + q3*gx)
	qDot4 := 0.5 * (q0*gz + q1*gy - q2*gx)

	if !(ax == 0 && ay == 0 && az == 0) {
		recipNorm := 1 / math.Sqrt(ax*ax+ay*ay+az*az)
		ax *= recipNorm
		ay *= recipNorm
		az *= recipNorm

		recipNorm = 1 / math.Sqrt(mx*mx+my*my+mz*mz)
		mx *= recipNorm
		my *= recipNorm
		mz *= recipNorm

		_2q0mx := 2.0 * q0 * mx
		_2q0my := 2.0 * q0 * my
		_2q0mz := 2.0 * q0 * mz
		_2q1mx := 2.0 * q1 * mx
		_2q0 := 2.0 * q0
		_2q1 := 2.0 * q1
		_2q2 := 2.0 * q2
		_2q3 := 2.0 * q3
		_2q0q2 := 2.0 * q0 * q2
		_2q2q3 := 2.0 * q2 * q3
		q0q0 := q0 * q0
		q0q1 := q0 * q1
		q0q2 := q0 * q2
		q0q3 := q0 * q3
		q1q1 := q1 * q1
		q1q2 := q1 * q2
		q1q3 := q1 * q3
		q2q2 := q2 * q2
		q2q3 := q2 * q3
		q3q3 := q3 * q3

		// Reference direction of Earth's magnetic field
		hx := mx*q0q0 - _2q0my*q3 + _2q0mz*q2 + mx*q1q1 + _2q1*my*q2 + _2q1*mz*q3 - mx*q2q2 - mx*q3q3
		hy := _2q0mx*q3 + my*q0q0 - _2q0mz*q1 + _2q1mx*q2 - my*q1q1 + my*q2q2 + _2q2*mz*q3 - my*q3q3
		_2bx := math.Sqrt(hx*hx + hy*hy)
		_2bz := -_2q0mx*q2 + _2q0my*q1 + mz*q0q0 + _2q1mx*q3 - mz*q1q1 + _2q2*my*q3 - mz*q2q2 + mz*q3q3
		_4bx := 2.0 * _2bx
		_4bz := 2.0 * _2bz

		// Gradient descent corrective step
		s0 := -_2q2*(2.0*q1q3-_2q0q2-ax) + _2q1*(2.0*q0q1+_2q2q3-ay) - _2bz*q2*(_2bx*(0.5-q2q2-q3q3)+_2bz*(q1q3-q0q2)-mx) + (-_2bx*q3+_2bz*q1)*(_2bx*(q1q2-q0q3)+_2bz*(q0q1+q2q3)-my) + _2bx*q2*(_2bx*(q0q2+q1q3)+_2bz*(0.5-q1q1-q2q2)-mz)
		s1 := _2q3*(2.0*q1q3-_2q0q2-ax) + _2q0*(2.0*q0q1+_2q2q3-ay) - 4.0*q1*(1-2.0*q1q1-2.0*q2q2-az) + _2bz*q3*(_2bx*(0.5-q2q2-q3q3)+_2bz*(q1q3-q0q2)-mx) + (_2bx*q2+_2bz*q0)*(_2bx*(q1q2-q0q3)+_2bz*(q0q1+q2q3)-my) + (_2bx*q3-_4bz*q1)*(_2bx*(q0q2+q1q3)+_2bz*(0.5-q1q1-q2q2)-mz)
		s2 := -_2q0*(2.0*q1q3-_2q0q2-ax) + _2q3*(2.0*q0q1+_2q2q3-ay) - 4.0*q2*(1-2.0*q1q1-2.0*q2q2-az) + (-_4bx*q2-_2bz*q0)*(_2bx*(0.5-q2q2-q3q3)+_2bz*(q1q3-q0q2)-mx) + (_2bx*q1+_2bz*q3)*(_2bx*(q1q2-q0q3)+_2bz*(q0q1+q2q3)-my) + (_2bx*q0-_4bz*q2)*(_2bx*(q0q2+q1q3)+_2bz*(0.5-q1q1-q2q2)-mz)
		s3 := _2q1*(2.0*q1q3-_2q0q2-ax) + _2q2*(2.0*q0q1+_2q2q3-ay) + (-_4bx*q3+_2bz*q1)*(_2bx*(0.5-q2q2-q3q3)+_2bz*(q1q3-q0q2)-mx) + (-_2bx*q0+_2bz*q2)*(_2bx*(q1q2-q0q3)+_2bz*(q0q1+q2q3)-my) + _2bx*q1*(_2bx*(q0q2+q1q3)+_2bz*(0.5-q1q1-q2q2)-mz)

		qDot1, qDot2, qDot3, qDot4 = f.feedback(qDot1, qDot2, qDot3, qDot4, s0, s1, s2, s3)
	}

	return f.integrate(qDot1, qDot2, qDot3, qDot4)
}

// updateIMU is the 6-DOF variant without magnetometer.
func (f *Filter) updateIMU(gx, gy, gz, ax, ay, az float64) [4]float64 {
	q0, q1, q2, q3 := f.q0, f.q1, f.q2, f.q3

	qDot1 := 0.5 * (-q1*gx - q2*gy - q3*gz)
	qDot2 := 0.5 * (q0*gx + q2*gz - q3*gy)
	qDot3 := 0.5 * (q0*gy - q1*gz + q3*gx)
	qDot4 := 0.5 * (q0*gz + q1*gy - q2*gx)

	if !(ax == 0 && ay == 0 && az == 0) {
		recipNorm := 1 / math.Sqrt(ax*ax+ay*ay+az*az)
		ax *= recipNorm
		ay *= recipNorm
		az *= recipNorm

		_2q0 := 2.0 * q0
		_2q1 := 2.0 * q1
		_2q2 := 2.0 * q2
		_2q3 := 2.0 * q3
		_4q0 := 4.0 * q0
		_4q1 := 4.0 * q1
		_4q2 := 4.0 * q2
		_8q1 := 8.0 * q1
		_8q2 := 8.0 * q2
		q0q0 := q0 * q0
		q1q1 := q1 * q1
		q2q2 := q2 * q2
		q3q3 := q3 * q3

		s0 := _4q0*q2q2 + _2q2*ax + _4q0*q1q1 - _2q1*ay
		s1 := _4q1*q3q3 - _2q3*ax + 4.0*q0q0*q1 - _2q0*ay - _4q1 + _8q1*q1q1 + _8q1*q2q2 + _4q1*az
		s2 := 4.0*q0q0*q2 + _2q0*ax + _4q2*q3q3 - _2q3*ay - _4q2 + _8q2*q1q1 + _8q2*q2q2 + _4q2*az
		s3 := 4.0*q1q1*q3 - _2q1*ax + 4.0*q2q2*q3 - _2q2*ay

		qDot1, qDot2, qDot3, qDot4 = f.feedback(qDot1, qDot2, qDot3, qDot4, s0, s1, s2, s3)
	}

	return f.integrate(qDot1, qDot2, qDot3, qDot4)
}

// feedback subtracts the normalised, beta-scaled gradient step. A zero
// gradient means the estimate already matches the reference.
func (f *Filter) feedback(qDot1, qDot2, qDot3, qDot4, s0, s1, s2, s3 float64) (float64, float64, float64, float64) {
	norm := math.Sqrt(s0*s0 + s1*s1 + s2*s2 + s3*s3)
	if norm == 0 {
		return qDot1, qDot2, qDot3, qDot4
	}
	return qDot1 - f.beta*s0/norm, qDot2 - f.beta*s1/norm, qDot3 - f.beta*s2/norm, qDot4 - f.beta*s3/norm
}

func (f *Filter) integrate(qDot1, qDot2, qDot3, qDot4 float64) [4]float64 {
	dt := 1.0 / f.freq
	return [4]float64{f.q0 + qDot1*dt, f.q1 + qDot2*dt, f.q2 + qDot3*dt, f.q3 + qDot4*dt}
}

// Quaternion returns q0..q3.
func (f *Filter) Quaternion() ([4]float64, error) {
	if !f.valid() {
		return [4]float64{}, ErrInvalid
	}
	return [4]float64{f.q0, f.q1, f.q2, f.q3}, nil
}

// Angles returns roll, pitch and yaw in radians, aerospace convention.
func (f *Filter) Angles() (roll, pitch, yaw float64, err error) {
	if !f.valid() {
		return 0, 0, 0, ErrInvalid
	}
	q0, q1, q2, q3 := f.q0, f.q1, f.q2, f.q3
	roll = math.Atan2(2*(q0*q1+q2*q3), 1-2*(q1*q1+q2*q2))
	pitch = math.Asin(math.Max(-1, math.Min(1, 2*(q0*q2-q3*q1))))
	yaw = math.Atan2(2*(q0*q3+q1*q2), 1-2*(q2*q2+q3*q3))
	return roll, pitch, yaw, nil
}

// Counter returns the number of successful updates since the last Reset.
func (f *Filter) Counter() (uint64, error) {
	if !f.valid() {
		return 0, ErrInvalid
	}
	return f.counter, nil
}
