/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	ak09916.go: AsahiKASEI AK09916 magnetometer inside the ICM-20948.
*/

package sensors

import (
	"fmt"

	"github.com/kidoman/embd"
)

const (
	ak09916Addr  = 0x0C
	ak09916Range = 49.12  // gauss, fixed
	ak09916LSB   = 0.0015 // gauss per count
	uTPerGauss   = 100
)

var ak09916Rates = []float64{10, 20, 50, 100}

// AK09916 sits on the auxiliary bus of the ICM-20948 and is only reachable
// through the running chip, so it shares its state.
type AK09916 struct {
	Bus embd.I2CBus
}

func (d *AK09916) Family() string { return icmFamily }

func (d *AK09916) NewState() (State, error) { return newICMState(d.Bus) }

func (d *AK09916) Detect(st State, addr byte) bool {
	return addr == ak09916Addr && st.(*icmState).mpu != nil
}

func (d *AK09916) Create(dev *Device, st State) error {
	s := st.(*icmState)
	if s.mpu == nil {
		return fmt.Errorf("ak09916: %w", ErrAbsent)
	}
	s.users++
	dev.Cal.Scale = ak09916LSB
	return nil
}

func (d *AK09916) Destroy(dev *Device, st State) {
	s := st.(*icmState)
	if s.users > 0 {
		s.users--
	}
	if s.users == 0 {
		s.Close()
	}
}

func (d *AK09916) Read(dev *Device, st State) error {
	data, err := st.(*icmState).sample(Magnetometer)
	if err != nil {
		return err
	}
	if data.MagError != nil {
		return data.MagError
	}
	lsb := ak09916LSB * uTPerGauss
	dev.Raw = [3]int16{toRaw(data.M1, lsb), toRaw(data.M2, lsb), toRaw(data.M3, lsb)}
	return nil
}

func (d *AK09916) ODR(dev *Device, st State) (float64, error) {
	return dev.Options.ODR, nil
}

func (d *AK09916) SetODR(dev *Device, st State, odr float64) error {
	if !oneOf(odr, ak09916Rates) {
		return fmt.Errorf("ak09916 odr %v Hz: %w", odr, ErrUnsupported)
	}
	dev.Options.ODR = odr
	return nil
}

func (d *AK09916) Scale(dev *Device, st State) (float64, error) {
	return ak09916Range, nil
}

// SetScale accepts any range the fixed ±49 gauss range covers.
func (d *AK09916) SetScale(dev *Device, st State, scale float64) error {
	if scale <= 0 || scale > ak09916Range {
		return fmt.Errorf("ak09916 scale %v: %w", scale, ErrUnsupported)
	}
	dev.Options.Scale = scale
	return nil
}
