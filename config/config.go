/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	config.go: Configuration record, defaults and the JSON settings file.
*/

// Package config holds the user-tunable settings of the flight controller.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/b3nn0/fbw/pid"
)

const DefaultLocation = "/boot/fbw.conf"

// ControlMode selects the airframe topology and whether autothrottle is fitted.
type ControlMode int

const (
	ControlMode3Axis ControlMode = iota
	ControlMode3AxisAthr
	ControlMode2Axis
	ControlMode2AxisAthr
	ControlModeFlyingWing
	ControlModeFlyingWingAthr
)

// HasAutothrottle reports whether an ESC is driven by the controller.
func (m ControlMode) HasAutothrottle() bool {
	return m == ControlMode3AxisAthr || m == ControlMode2AxisAthr || m == ControlModeFlyingWingAthr
}

// HasRudder reports whether the topology has a yaw control surface.
func (m ControlMode) HasRudder() bool {
	return m == ControlMode3Axis || m == ControlMode3AxisAthr
}

// IsFlyingWing reports whether roll and pitch are mixed onto elevons.
func (m ControlMode) IsFlyingWing() bool {
	return m == ControlModeFlyingWing || m == ControlModeFlyingWingAthr
}

// SwitchType is the number of positions of the mode switch.
type SwitchType int

const (
	SwitchType2Pos SwitchType = 2
	SwitchType3Pos SwitchType = 3
)

type General struct {
	ControlMode  ControlMode
	SwitchType   SwitchType
	LoopPeriodMS int // control tick period
	Debug        bool
	MetricsAddr  string
	LogFile      string
	StorePath    string // calibration and flag records
	Flightplan   string // JSON flightplan, reloaded with the settings
}

type Control struct {
	Sensitivity       float64 // setpoint degrees per degree of stick per tick
	RudderSensitivity float64
	Deadband          float64 // degrees of stick

	ThrottleDetentIdle   float64 // percent
	ThrottleDetentMCT    float64
	ThrottleDetentMax    float64
	ThrottleMaxTime      float64 // seconds above MCT before lock
	ThrottleCooldownTime float64 // seconds
	ThrottleSensitivity  float64 // lerp factor per tick

	DropDetentClosed float64 // bay servo degrees
	DropDetentOpen   float64
	DropOpenTime     float64 // seconds the bay stays open

	InterceptRadius float64 // meters
	HoldLegTime     float64 // seconds
	HoldBankStep    float64 // degrees per tick while rolling in or out of a turn
}

type Limits struct {
	RollLimit           float64 // soft, held only under stick pressure
	RollLimitHold       float64 // hard
	PitchUpperLimit     float64
	PitchLowerLimit     float64
	MaxAilDeflection    float64
	MaxElevDeflection   float64
	MaxRudDeflection    float64
	MaxElevonDeflection float64

	EnvelopeRoll       float64
	EnvelopePitchUpper float64
	EnvelopePitchLower float64
}

type FlyingWing struct {
	ElevonMixingGain float64
	AilMixingBias    float64
	ElevMixingBias   float64
}

// Output drivers.
const (
	DriverPCA9685 = "pca9685"
	DriverRPIO    = "rpio"
)

// Pins are PCA9685 channels, or BCM GPIO numbers with the rpio driver.
type Pins struct {
	Driver       string
	PCA9685Addr  byte
	ServoAil     int
	ServoElev    int
	ServoRud     int
	EscThrottle  int
	ServoElevonL int
	ServoElevonR int
	ServoBay     int
	ServoHz      int
	EscHz        int

	ReverseRoll  bool
	ReversePitch bool
	ReverseYaw   bool
}

type Sensors struct {
	IMUModel  int
	BaroModel int
	I2CBus    byte

	ReceiverDevice string // iBus serial port
	ReceiverBaud   int

	GPSEnabled bool
	GPSDevice  string
	GPSBaud    int
	GPSMaxPDOP float64
	GPSMaxHDOP float64
	GPSMaxVDOP float64
	GPSMaxAge  float64 // seconds
}

type PID struct {
	Roll     pid.Config
	Pitch    pid.Config
	Yaw      pid.Config
	LatGuid  pid.Config
	VertGuid pid.Config
	Throttle pid.Config
}

type Config struct {
	General    General
	Control    Control
	Limits     Limits
	FlyingWing FlyingWing
	Pins       Pins
	Sensors    Sensors
	PID        PID
}

// IMU and barometer model identifiers, recorded with a calibration.
const (
	IMUModelNone     = 0
	IMUModelICM20948 = 1
	IMUModelSim      = 2

	BaroModelNone = 0
)

// Default returns the factory configuration.
func Default() *Config {
	const period = 0.01
	axis := pid.Config{Kp: 1.0, Ki: 0.0025, Kd: 0.001, Tau: 0.001, IntegMin: -50, IntegMax: 50, KT: 0.01, T: period}

	c := &Config{
		General: General{
			ControlMode:  ControlMode3AxisAthr,
			SwitchType:   SwitchType3Pos,
			LoopPeriodMS: 10,
			MetricsAddr:  ":9978",
			LogFile:      "/var/log/fbw.log",
			StorePath:    "/boot/fbw.db",
			Flightplan:   "/boot/fbw-flightplan.json",
		},
		Control: Control{
			Sensitivity:          0.00075,
			RudderSensitivity:    1.5,
			Deadband:             2,
			ThrottleDetentIdle:   10,
			ThrottleDetentMCT:    75,
			ThrottleDetentMax:    90,
			ThrottleMaxTime:      10,
			ThrottleCooldownTime: 30,
			ThrottleSensitivity:  0.015,
			DropDetentClosed:     0,
			DropDetentOpen:       180,
			DropOpenTime:         3,
			InterceptRadius:      25,
			HoldLegTime:          30,
			HoldBankStep:         0.25,
		},
		Limits: Limits{
			RollLimit:           33,
			RollLimitHold:       67,
			PitchUpperLimit:     30,
			PitchLowerLimit:     -15,
			MaxAilDeflection:    25,
			MaxElevDeflection:   15,
			MaxRudDeflection:    20,
			MaxElevonDeflection: 20,
			EnvelopeRoll:        72,
			EnvelopePitchUpper:  35,
			EnvelopePitchLower:  -20,
		},
		FlyingWing: FlyingWing{
			ElevonMixingGain: 0.5,
			AilMixingBias:    1,
			ElevMixingBias:   1,
		},
		Pins: Pins{
			Driver:       DriverPCA9685,
			PCA9685Addr:  0x40,
			ServoAil:     0,
			ServoElev:    1,
			ServoRud:     2,
			EscThrottle:  3,
			ServoElevonL: 0,
			ServoElevonR: 1,
			ServoBay:     4,
			ServoHz:      50,
			EscHz:        50,
		},
		Sensors: Sensors{
			IMUModel:       IMUModelICM20948,
			BaroModel:      BaroModelNone,
			I2CBus:         1,
			ReceiverDevice: "/dev/ttyAMA0",
			ReceiverBaud:   115200,
			GPSEnabled:     true,
			GPSDevice:      "/dev/ttyUSB0",
			GPSBaud:        9600,
			GPSMaxPDOP:     10,
			GPSMaxHDOP:     10,
			GPSMaxVDOP:     10,
			GPSMaxAge:      3,
		},
	}

	c.PID.Roll = axis
	c.PID.Pitch = axis
	c.PID.Yaw = axis
	c.PID.LatGuid = pid.Config{Kp: 0.005, Ki: 0.008, Kd: 0.002, Tau: 0.001, LimMin: -33, LimMax: 33, IntegMin: -50, IntegMax: 50, KT: 0.01, T: period}
	c.PID.VertGuid = pid.Config{Kp: 0.05, Ki: 0.0025, Kd: 0.001, Tau: 0.001, LimMin: -15, LimMax: 25, IntegMin: -50, IntegMax: 50, KT: 0.01, T: period}
	c.PID.Throttle = pid.Config{Kp: 1.0, Ki: 0.05, Kd: 0.01, Tau: 0.001, IntegMin: -50, IntegMax: 50, KT: 0.01, T: period}
	return c
}

// Load reads the settings file at path over the defaults. Missing fields
// keep their default value. On error the defaults are returned with it.
func Load(path string) (*Config, error) {
	c := Default()
	buf, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("can't read settings %s: %w", path, err)
	}
	if err := json.Unmarshal(buf, c); err != nil {
		return Default(), fmt.Errorf("can't read settings %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Default(), fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return c, nil
}

// Save writes the settings file.
func (c *Config) Save(path string) error {
	jsonSettings, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, jsonSettings, os.FileMode(0644)); err != nil {
		return fmt.Errorf("can't save settings %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings that would leave a control loop unusable.
func (c *Config) Validate() error {
	if c.General.LoopPeriodMS <= 0 {
		return fmt.Errorf("loop period %d ms", c.General.LoopPeriodMS)
	}
	if c.General.SwitchType != SwitchType2Pos && c.General.SwitchType != SwitchType3Pos {
		return fmt.Errorf("switch type %d", c.General.SwitchType)
	}
	if c.General.ControlMode < ControlMode3Axis || c.General.ControlMode > ControlModeFlyingWingAthr {
		return fmt.Errorf("control mode %d", c.General.ControlMode)
	}
	if c.Limits.RollLimit > c.Limits.RollLimitHold {
		return fmt.Errorf("roll limit %v above hold limit %v", c.Limits.RollLimit, c.Limits.RollLimitHold)
	}
	if c.Limits.PitchLowerLimit >= c.Limits.PitchUpperLimit {
		return fmt.Errorf("pitch limits [%v, %v]", c.Limits.PitchLowerLimit, c.Limits.PitchUpperLimit)
	}
	if c.Pins.Driver != DriverPCA9685 && c.Pins.Driver != DriverRPIO {
		return fmt.Errorf("output driver %q", c.Pins.Driver)
	}
	if c.Pins.ServoHz <= 0 || c.Pins.EscHz <= 0 {
		return fmt.Errorf("output frequency servo %d Hz esc %d Hz", c.Pins.ServoHz, c.Pins.EscHz)
	}
	if c.Pins.Driver == DriverPCA9685 && c.Pins.EscHz != c.Pins.ServoHz {
		return fmt.Errorf("pca9685 runs all outputs at one frequency, servo %d Hz esc %d Hz", c.Pins.ServoHz, c.Pins.EscHz)
	}
	d := c.Control
	if !(d.ThrottleDetentIdle <= d.ThrottleDetentMCT && d.ThrottleDetentMCT <= d.ThrottleDetentMax) {
		return fmt.Errorf("throttle detents %v/%v/%v", d.ThrottleDetentIdle, d.ThrottleDetentMCT, d.ThrottleDetentMax)
	}
	return nil
}

// LoopPeriod returns the control tick period in seconds.
func (c *Config) LoopPeriod() float64 {
	return float64(c.General.LoopPeriodMS) / 1000
}
