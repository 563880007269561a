/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	simulated.go: Software sensor for bench runs without an IMU attached.
*/

package sensors

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const simFamily = "sim"

var errSimFault = errors.New("simulated fault")

// Simulated reports a settable physical reading. Each fault flag makes the
// matching step of the detection protocol fail.
type Simulated struct {
	Shared string // state family, defaults to "sim"
	Addr   byte   // the one address that answers Detect

	FailState  bool
	FailCreate bool
	FailScale  bool
	FailODR    bool
	ReadErr    error
	ReadDelay  time.Duration

	mu         sync.Mutex
	sample     [3]float64
	creates    int
	destroys   int
	openStates int
}

type simState struct {
	d *Simulated
}

func (s *simState) Close() error {
	s.d.mu.Lock()
	s.d.openStates--
	s.d.mu.Unlock()
	return nil
}

// SetSample sets the reading returned by the next Read, in g, deg/s or gauss.
func (d *Simulated) SetSample(v [3]float64) {
	d.mu.Lock()
	d.sample = v
	d.mu.Unlock()
}

// Counters returns how many devices were created and destroyed and how many
// states are still open.
func (d *Simulated) Counters() (creates, destroys, openStates int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creates, d.destroys, d.openStates
}

func (d *Simulated) Family() string {
	if d.Shared == "" {
		return simFamily
	}
	return d.Shared
}

func (d *Simulated) NewState() (State, error) {
	if d.FailState {
		return nil, errSimFault
	}
	d.mu.Lock()
	d.openStates++
	d.mu.Unlock()
	return &simState{d: d}, nil
}

func (d *Simulated) Detect(st State, addr byte) bool {
	return addr == d.Addr
}

func (d *Simulated) Create(dev *Device, st State) error {
	if d.FailCreate {
		return errSimFault
	}
	d.mu.Lock()
	d.creates++
	d.mu.Unlock()
	return nil
}

func (d *Simulated) Destroy(dev *Device, st State) {
	d.mu.Lock()
	d.destroys++
	d.mu.Unlock()
}

func (d *Simulated) Read(dev *Device, st State) error {
	if d.ReadDelay > DriverTimeout {
		return ErrTimeout
	}
	if d.ReadErr != nil {
		return d.ReadErr
	}
	time.Sleep(d.ReadDelay)

	d.mu.Lock()
	v := d.sample
	d.mu.Unlock()
	dev.Raw = [3]int16{toRaw(v[0], dev.Cal.Scale), toRaw(v[1], dev.Cal.Scale), toRaw(v[2], dev.Cal.Scale)}
	return nil
}

func (d *Simulated) ODR(dev *Device, st State) (float64, error) {
	if d.FailODR {
		return 0, ErrUnsupported
	}
	return dev.Options.ODR, nil
}

func (d *Simulated) SetODR(dev *Device, st State, odr float64) error {
	if d.FailODR {
		return fmt.Errorf("odr: %w", ErrUnsupported)
	}
	dev.Options.ODR = odr
	return nil
}

func (d *Simulated) Scale(dev *Device, st State) (float64, error) {
	if d.FailScale {
		return 0, ErrUnsupported
	}
	return dev.Options.Scale, nil
}

func (d *Simulated) SetScale(dev *Device, st State, scale float64) error {
	if d.FailScale {
		return fmt.Errorf("scale: %w", ErrUnsupported)
	}
	if scale <= 0 {
		return fmt.Errorf("scale %v: %w", scale, ErrUnsupported)
	}
	dev.Options.Scale = scale
	dev.Cal.Scale = scale / 32768
	return nil
}
