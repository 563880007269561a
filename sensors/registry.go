/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	registry.go: Built-in detection lists.
*/

package sensors

import (
	"github.com/kidoman/embd"
)

// DefaultRegistry lists the chips supported on the I2C bus.
func DefaultRegistry(bus embd.I2CBus) Registry {
	return Registry{
		Accelerometers: []Descriptor{
			{Name: "ICM20948", Addrs: [2]byte{0x69, 0x68}, Driver: &ICM20948{Bus: bus, Category: Accelerometer}},
		},
		Gyroscopes: []Descriptor{
			{Name: "ICM20948", Addrs: [2]byte{0x69, 0x68}, Driver: &ICM20948{Bus: bus, Category: Gyroscope}},
		},
		Magnetometers: []Descriptor{
			{Name: "AK09916", Addrs: [2]byte{ak09916Addr, NoAddr}, Driver: &AK09916{Bus: bus}},
		},
	}
}

// SimAircraft holds the simulated sensors of a bench setup.
type SimAircraft struct {
	Accel, Gyro, Mag *Simulated
}

// NewSimAircraft returns simulated sensors of an aircraft sitting level and
// still, and the registry that finds them.
func NewSimAircraft() (*SimAircraft, Registry) {
	sim := &SimAircraft{
		Accel: &Simulated{Addr: 0x69},
		Gyro:  &Simulated{Addr: 0x69},
		Mag:   &Simulated{Addr: ak09916Addr},
	}
	sim.Accel.SetSample([3]float64{0, 0, 1})
	sim.Mag.SetSample([3]float64{0.2, 0, 0.4})
	reg := Registry{
		Accelerometers: []Descriptor{{Name: "SIM", Addrs: [2]byte{0x69, NoAddr}, Driver: sim.Accel}},
		Gyroscopes:     []Descriptor{{Name: "SIM", Addrs: [2]byte{0x69, NoAddr}, Driver: sim.Gyro}},
		Magnetometers:  []Descriptor{{Name: "SIM", Addrs: [2]byte{ak09916Addr, NoAddr}, Driver: sim.Mag}},
	}
	return sim, reg
}
