/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	icm20948.go: InvenSense ICM-20948 accelerometer/gyroscope driver.
*/

package sensors

import (
	"fmt"
	"math"
	"time"

	"github.com/b3nn0/goflying/icm20948"
	"github.com/kidoman/embd"
)

const (
	icmFamily    = "icm20948"
	icmWhoAmI    = 0x00
	icmID        = 0xEA
	icmLPF       = 25  // Hz, filters prop vibration above ~1200 RPM
	icmRate      = 100 // default sample rate
	icmGyroRange = 2000
	icmAccRange  = 16
)

var (
	icmGyroRanges  = []float64{250, 500, 1000, 2000}
	icmAccelRanges = []float64{2, 4, 8, 16}
)

// icmState is the running chip shared by the accelerometer, gyroscope and
// the AK09916 behind it.
type icmState struct {
	bus        embd.I2CBus
	mpu        *icm20948.ICM20948
	users      int
	gyroRange  int
	accelRange int
	rate       int

	last  *icm20948.MPUData
	fresh [3]bool
}

func newICMState(bus embd.I2CBus) (State, error) {
	if bus == nil {
		return nil, fmt.Errorf("%s: no I2C bus", icmFamily)
	}
	return &icmState{bus: bus, gyroRange: icmGyroRange, accelRange: icmAccRange, rate: icmRate}, nil
}

func (s *icmState) Close() error {
	if s.mpu != nil {
		s.mpu.CloseMPU()
		s.mpu = nil
	}
	s.last = nil
	return nil
}

// start (re)opens the chip with the current ranges and rate.
func (s *icmState) start() error {
	s.Close()
	mpu, err := icm20948.NewICM20948(&s.bus, s.gyroRange, s.accelRange, s.rate, true, false)
	if err != nil {
		return err
	}
	mpu.SetGyroLPF(icmLPF)
	mpu.SetAccelLPF(icmLPF)
	s.mpu = mpu
	return nil
}

// sample returns one averaged sample per category. Categories reading within
// the same cycle see the same sample.
func (s *icmState) sample(c Category) (*icm20948.MPUData, error) {
	if s.mpu == nil {
		return nil, ErrAbsent
	}
	if s.last == nil || !s.fresh[c] {
		timeout := time.NewTimer(DriverTimeout)
		defer timeout.Stop()
		for {
			select {
			case data := <-s.mpu.CAvg:
				if data == nil || data.N == 0 {
					continue
				}
				s.last = data
				s.fresh = [3]bool{true, true, true}
			case <-timeout.C:
				return nil, ErrTimeout
			}
			break
		}
	}
	s.fresh[c] = false
	return s.last, nil
}

func toRaw(value, lsb float64) int16 {
	return int16(math.Round(math.Max(math.MinInt16, math.Min(math.MaxInt16, value/lsb))))
}

func oneOf(v float64, allowed []float64) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// ICM20948 serves the Accelerometer or the Gyroscope category of the chip.
// Register one instance per category; they share the running chip.
type ICM20948 struct {
	Bus      embd.I2CBus
	Category Category
}

func (d *ICM20948) Family() string { return icmFamily }

func (d *ICM20948) NewState() (State, error) { return newICMState(d.Bus) }

func (d *ICM20948) Detect(st State, addr byte) bool {
	s := st.(*icmState)
	id, err := s.bus.ReadByteFromReg(addr, icmWhoAmI)
	return err == nil && id == icmID
}

func (d *ICM20948) Create(dev *Device, st State) error {
	if d.Category != Accelerometer && d.Category != Gyroscope {
		return fmt.Errorf("%s %s: %w", icmFamily, d.Category, ErrUnsupported)
	}
	s := st.(*icmState)
	if s.mpu == nil {
		if err := s.start(); err != nil {
			return err
		}
	}
	s.users++
	return nil
}

func (d *ICM20948) Destroy(dev *Device, st State) {
	s := st.(*icmState)
	if s.users > 0 {
		s.users--
	}
	if s.users == 0 {
		s.Close()
	}
}

func (d *ICM20948) Read(dev *Device, st State) error {
	s := st.(*icmState)
	data, err := s.sample(d.Category)
	if err != nil {
		return err
	}
	if data.GAError != nil {
		return data.GAError
	}
	if d.Category == Gyroscope {
		dev.Raw = [3]int16{toRaw(data.G1, dev.Cal.Scale), toRaw(data.G2, dev.Cal.Scale), toRaw(data.G3, dev.Cal.Scale)}
	} else {
		dev.Raw = [3]int16{toRaw(data.A1, dev.Cal.Scale), toRaw(data.A2, dev.Cal.Scale), toRaw(data.A3, dev.Cal.Scale)}
	}
	return nil
}

func (d *ICM20948) ODR(dev *Device, st State) (float64, error) {
	return float64(st.(*icmState).rate), nil
}

func (d *ICM20948) SetODR(dev *Device, st State, odr float64) error {
	s := st.(*icmState)
	if odr < 1 || odr > 1125 {
		return fmt.Errorf("odr %v Hz: %w", odr, ErrUnsupported)
	}
	dev.Options.ODR = odr
	if int(odr) == s.rate && s.mpu != nil {
		return nil
	}
	s.rate = int(odr)
	return s.start()
}

func (d *ICM20948) Scale(dev *Device, st State) (float64, error) {
	s := st.(*icmState)
	if d.Category == Gyroscope {
		return float64(s.gyroRange), nil
	}
	return float64(s.accelRange), nil
}

func (d *ICM20948) SetScale(dev *Device, st State, scale float64) error {
	s := st.(*icmState)
	ranges, current := icmAccelRanges, &s.accelRange
	if d.Category == Gyroscope {
		ranges, current = icmGyroRanges, &s.gyroRange
	}
	if !oneOf(scale, ranges) {
		return fmt.Errorf("%s scale %v: %w", d.Category, scale, ErrUnsupported)
	}
	dev.Options.Scale = scale
	dev.Cal.Scale = scale / 32768
	if int(scale) == *current && s.mpu != nil {
		return nil
	}
	*current = int(scale)
	return s.start()
}
