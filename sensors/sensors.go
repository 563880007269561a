/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	sensors.go: Device records, driver contract and descriptor registry.
*/

// Package sensors detects inertial sensors and turns their raw samples into
// calibrated readings.
package sensors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAbsent      = errors.New("sensor not present")
	ErrUnsupported = errors.New("capability not supported by driver")
	ErrTimeout     = errors.New("sensor read timed out")
)

// NoAddr fills an unused candidate address slot of a Descriptor.
const NoAddr byte = 0xFF

// DriverTimeout bounds every blocking driver read.
var DriverTimeout = 50 * time.Millisecond

// Category is one of the three inertial sensor kinds.
type Category int

const (
	Accelerometer Category = iota
	Gyroscope
	Magnetometer
)

func (c Category) String() string {
	switch c {
	case Accelerometer:
		return "accelerometer"
	case Gyroscope:
		return "gyroscope"
	case Magnetometer:
		return "magnetometer"
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Options are the settings requested when a device is found.
type Options struct {
	ODR     float64 // Hz
	Scale   float64 // full-scale range: g, deg/s or gauss
	NoReset bool    // skip the chip reset on create
}

// Calibration converts raw counts to physical units.
type Calibration struct {
	Scale  float64 // units per LSB, set by the driver
	Offset [3]float64
}

// Device is the record of one detected sensor.
type Device struct {
	Addr    byte
	Options Options
	Cal     Calibration
	// Orientation maps raw axes onto body axes, row per output axis.
	Orientation [9]float64
	Raw         [3]int16

	desc *Descriptor
}

// Identity is the orientation of a sensor mounted aligned with the airframe.
var Identity = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}

// State is per-driver state shared between the categories a chip serves.
type State interface {
	Close() error
}

// Driver is the capability set of a sensor chip. Unsupported capabilities
// return ErrUnsupported.
type Driver interface {
	// Family names the shared state; drivers with the same family share it.
	Family() string
	NewState() (State, error)
	Detect(st State, addr byte) bool
	Create(dev *Device, st State) error
	Destroy(dev *Device, st State)
	// Read stores the latest sample in dev.Raw.
	Read(dev *Device, st State) error
	ODR(dev *Device, st State) (float64, error)
	SetODR(dev *Device, st State, odr float64) error
	Scale(dev *Device, st State) (float64, error)
	SetScale(dev *Device, st State, scale float64) error
}

// Descriptor is one candidate chip for a category.
type Descriptor struct {
	Name   string
	Addrs  [2]byte
	Driver Driver
}

// Registry lists the candidates for each category in detection order.
type Registry struct {
	Accelerometers []Descriptor
	Gyroscopes     []Descriptor
	Magnetometers  []Descriptor
}

func (r Registry) list(c Category) []Descriptor {
	switch c {
	case Accelerometer:
		return r.Accelerometers
	case Gyroscope:
		return r.Gyroscopes
	case Magnetometer:
		return r.Magnetometers
	}
	return nil
}
