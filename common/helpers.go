/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	helpers.go: Small numeric helpers shared by the control loops.
*/

package common

import (
	"math"
	"os/user"

	"golang.org/x/exp/constraints"
)

func IsRunningAsRoot() bool {
	usr, err := user.Current()
	if err != nil {
		return false
	}
	return usr.Username == "root"
}

// Clamp constrains value within [min, max].
func Clamp[T constraints.Float | constraints.Integer](value, min, max T) T {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// MapRange maps a value from one range to another.
func MapRange[T constraints.Float](value, fromMin, fromMax, toMin, toMax T) T {
	return (value-fromMin)/(fromMax-fromMin)*(toMax-toMin) + toMin
}

// Lerp moves a fraction t of the way from a to b.
func Lerp[T constraints.Float](a, b, t T) T {
	return a + t*(b-a)
}

// Deadband returns zero for inputs within +/- band of zero.
func Deadband[T constraints.Float](value, band T) T {
	if value > -band && value < band {
		return 0
	}
	return value
}

// WrapDegrees180 maps an angle in degrees onto (-180, 180].
func WrapDegrees180(angle float64) float64 {
	angle = math.Mod(angle, 360)
	if angle > 180 {
		angle -= 360
	} else if angle <= -180 {
		angle += 360
	}
	return angle
}

// WrapDegrees360 maps an angle in degrees onto [0, 360).
func WrapDegrees360(angle float64) float64 {
	angle = math.Mod(angle, 360)
	if angle < 0 {
		angle += 360
	}
	return angle
}

// Radians converts degrees to radians.
func Radians(angle float64) float64 {
	return angle * math.Pi / 180.0
}

// Degrees converts radians to degrees.
func Degrees(angle float64) float64 {
	return angle * 180.0 / math.Pi
}
