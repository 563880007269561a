/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	pid.go: Filtered-derivative PID controller with back-calculation anti-windup.
*/

// Package pid implements the PID primitive shared by every control loop.
package pid

import (
	"math"

	"github.com/b3nn0/fbw/common"
)

// Config describes the gains and limits of one controller.
type Config struct {
	Kp, Ki, Kd float64
	Tau        float64 // derivative low-pass time constant (s)
	LimMin     float64
	LimMax     float64
	IntegMin   float64
	IntegMax   float64
	KT         float64 // back-calculation gain
	T          float64 // sample time (s)
}

// Unbounded returns c with infinite output and integrator limits.
func (c Config) Unbounded() Config {
	c.LimMin, c.LimMax = math.Inf(-1), math.Inf(1)
	c.IntegMin, c.IntegMax = math.Inf(-1), math.Inf(1)
	return c
}

// Controller is a single PID loop. It is not safe for concurrent use; the
// active flight mode owns it exclusively.
type Controller struct {
	Config

	integrator      float64
	prevError       float64
	differentiator  float64
	prevMeasurement float64
	out             float64
}

// New returns a controller with zeroed memory.
func New(c Config) *Controller {
	return &Controller{Config: c}
}

// Init zeroes all controller memory.
func (pid *Controller) Init() {
	pid.integrator = 0
	pid.prevError = 0
	pid.differentiator = 0
	pid.prevMeasurement = 0
	pid.out = 0
}

// Reset is an alias of Init, used on mode exit.
func (pid *Controller) Reset() {
	pid.Init()
}

// Update runs one controller step and returns the clamped output.
func (pid *Controller) Update(setpoint, measurement float64) float64 {
	err := setpoint - measurement

	proportional := pid.Kp * err

	pid.integrator += pid.Ki * err * pid.T
	pid.integrator = common.Clamp(pid.integrator, pid.IntegMin, pid.IntegMax)

	// Band-limited differentiator on measurement avoids derivative kick on setpoint steps.
	if denom := 2*pid.Tau + pid.T; denom != 0 {
		pid.differentiator = -(2*pid.Kd*(measurement-pid.prevMeasurement) +
			(2*pid.Tau-pid.T)*pid.differentiator) / denom
	}

	raw := proportional + pid.integrator + pid.differentiator
	pid.out = common.Clamp(raw, pid.LimMin, pid.LimMax)

	pid.integrator += pid.KT * (pid.out - raw)
	pid.integrator = common.Clamp(pid.integrator, pid.IntegMin, pid.IntegMax)

	pid.prevError = err
	pid.prevMeasurement = measurement
	return pid.out
}

// Out returns the last computed output.
func (pid *Controller) Out() float64 {
	return pid.out
}

// Integrator returns the current integrator value.
func (pid *Controller) Integrator() float64 {
	return pid.integrator
}
