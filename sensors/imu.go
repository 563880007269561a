/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	imu.go: IMU handle, detection protocol and calibrated reads.
*/

package sensors

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

type sharedState struct {
	st   State
	refs int
}

// IMU owns at most one device per category and the driver state behind them.
// It is not safe for concurrent use; the AAHRS orchestrator owns it.
type IMU struct {
	devices  [3]*Device
	states   map[string]*sharedState
	registry Registry
	log      *logrus.Entry
}

// NewIMU returns an empty handle that will search reg.
func NewIMU(reg Registry, log *logrus.Logger) *IMU {
	return &IMU{
		states:   make(map[string]*sharedState),
		registry: reg,
		log:      log.WithField("sys", "sensors"),
	}
}

// FindAccelerometer detects an accelerometer and configures it with opts.
func (imu *IMU) FindAccelerometer(opts Options) bool {
	return imu.find(Accelerometer, opts)
}

// FindGyroscope detects a gyroscope and configures it with opts.
func (imu *IMU) FindGyroscope(opts Options) bool {
	return imu.find(Gyroscope, opts)
}

// FindMagnetometer detects a magnetometer and configures it with opts.
func (imu *IMU) FindMagnetometer(opts Options) bool {
	return imu.find(Magnetometer, opts)
}

func (imu *IMU) find(c Category, opts Options) bool {
	if imu.devices[c] != nil {
		imu.release(c)
	}

	list := imu.registry.list(c)
	for i := range list {
		desc := &list[i]
		family := desc.Driver.Family()

		shared, ok := imu.states[family]
		if !ok {
			st, err := desc.Driver.NewState()
			if err != nil {
				imu.log.Errorf("can't allocate %s state: %s", desc.Name, err)
				return false
			}
			shared = &sharedState{st: st}
			imu.states[family] = shared
		}

		dev := &Device{Options: opts, Orientation: Identity, desc: desc}
		if imu.probe(dev, desc, shared.st) {
			shared.refs++
			imu.devices[c] = dev
			imu.log.Infof("found %s %s at 0x%02X", desc.Name, c, dev.Addr)
			return true
		}

		// Zeroed record; the state goes if nothing else holds it.
		*dev = Device{}
		imu.dropState(family)
	}

	imu.log.Warnf("no %s found", c)
	return false
}

func (imu *IMU) probe(dev *Device, desc *Descriptor, st State) bool {
	for _, addr := range desc.Addrs {
		if addr == NoAddr {
			continue
		}
		if !desc.Driver.Detect(st, addr) {
			continue
		}

		dev.Addr = addr
		err := desc.Driver.Create(dev, st)
		if err == nil {
			err = desc.Driver.SetScale(dev, st, dev.Options.Scale)
		}
		if err == nil {
			err = desc.Driver.SetODR(dev, st, dev.Options.ODR)
		}
		if err != nil {
			imu.log.Warnf("%s at 0x%02X: %s", desc.Name, addr, err)
			desc.Driver.Destroy(dev, st)
			return false
		}
		return true
	}
	return false
}

func (imu *IMU) dropState(family string) {
	shared, ok := imu.states[family]
	if !ok || shared.refs > 0 {
		return
	}
	if err := shared.st.Close(); err != nil {
		imu.log.Warnf("closing %s state: %s", family, err)
	}
	delete(imu.states, family)
}

func (imu *IMU) release(c Category) {
	dev := imu.devices[c]
	family := dev.desc.Driver.Family()
	dev.desc.Driver.Destroy(dev, imu.states[family].st)
	imu.devices[c] = nil
	imu.states[family].refs--
	imu.dropState(family)
}

// Close destroys every device and frees the driver state.
func (imu *IMU) Close() {
	for c := range imu.devices {
		if imu.devices[c] != nil {
			imu.release(Category(c))
		}
	}
}

// Device returns the active device of a category, or nil.
func (imu *IMU) Device(c Category) *Device {
	return imu.devices[c]
}

// States returns the number of live driver states.
func (imu *IMU) States() int {
	return len(imu.states)
}

func (imu *IMU) active(c Category) (*Device, State, error) {
	if c < Accelerometer || c > Magnetometer {
		return nil, nil, fmt.Errorf("%s: %w", c, ErrAbsent)
	}
	dev := imu.devices[c]
	if dev == nil {
		return nil, nil, fmt.Errorf("%s: %w", c, ErrAbsent)
	}
	return dev, imu.states[dev.desc.Driver.Family()].st, nil
}

// Read samples a category and returns the calibrated reading.
func (imu *IMU) Read(c Category) ([3]float64, error) {
	var out [3]float64
	dev, st, err := imu.active(c)
	if err != nil {
		return out, err
	}
	if err := dev.desc.Driver.Read(dev, st); err != nil {
		return out, fmt.Errorf("%s read: %w", c, err)
	}
	return dev.calibrated(c), nil
}

func (dev *Device) calibrated(c Category) [3]float64 {
	var out [3]float64
	raw := [3]float64{float64(dev.Raw[0]), float64(dev.Raw[1]), float64(dev.Raw[2])}
	if c == Accelerometer {
		for i := range out {
			out[i] = raw[i]*dev.Cal.Scale + dev.Cal.Offset[i]
		}
		return out
	}
	m := dev.Orientation
	for i := range out {
		blended := m[3*i]*raw[0] + m[3*i+1]*raw[1] + m[3*i+2]*raw[2]
		out[i] = dev.Cal.Scale*blended + dev.Cal.Offset[i]
	}
	return out
}

// ReadAccelerometer returns acceleration in g.
func (imu *IMU) ReadAccelerometer() ([3]float64, error) {
	return imu.Read(Accelerometer)
}

// ReadGyroscope returns rates in deg/s.
func (imu *IMU) ReadGyroscope() ([3]float64, error) {
	return imu.Read(Gyroscope)
}

// ReadMagnetometer returns the field in gauss.
func (imu *IMU) ReadMagnetometer() ([3]float64, error) {
	return imu.Read(Magnetometer)
}

func (imu *IMU) Scale(c Category) (float64, error) {
	dev, st, err := imu.active(c)
	if err != nil {
		return 0, err
	}
	return dev.desc.Driver.Scale(dev, st)
}

func (imu *IMU) SetScale(c Category, scale float64) error {
	dev, st, err := imu.active(c)
	if err != nil {
		return err
	}
	return dev.desc.Driver.SetScale(dev, st, scale)
}

func (imu *IMU) ODR(c Category) (float64, error) {
	dev, st, err := imu.active(c)
	if err != nil {
		return 0, err
	}
	return dev.desc.Driver.ODR(dev, st)
}

func (imu *IMU) SetODR(c Category, odr float64) error {
	dev, st, err := imu.active(c)
	if err != nil {
		return err
	}
	return dev.desc.Driver.SetODR(dev, st, odr)
}

func (imu *IMU) Offsets(c Category) ([3]float64, error) {
	dev, _, err := imu.active(c)
	if err != nil {
		return [3]float64{}, err
	}
	return dev.Cal.Offset, nil
}

func (imu *IMU) SetOffsets(c Category, off [3]float64) error {
	dev, _, err := imu.active(c)
	if err != nil {
		return err
	}
	dev.Cal.Offset = off
	return nil
}

func (imu *IMU) Orientation(c Category) ([9]float64, error) {
	dev, _, err := imu.active(c)
	if err != nil {
		return [9]float64{}, err
	}
	return dev.Orientation, nil
}

func (imu *IMU) SetOrientation(c Category, m [9]float64) error {
	dev, _, err := imu.active(c)
	if err != nil {
		return err
	}
	dev.Orientation = m
	return nil
}
