/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	pca9685.go: Outputs on a PCA9685 I2C PWM expander.
*/

package actuators

import (
	"fmt"

	"github.com/kidoman/embd"
	"github.com/kidoman/embd/controller/pca9685"
	"github.com/sirupsen/logrus"
)

// PCA9685 drives up to 16 outputs at one common frequency.
type PCA9685 struct {
	dev    *pca9685.PCA9685
	layout map[Channel]int
	log    *logrus.Entry
}

// NewPCA9685 wires layout onto the expander at addr. The chip is woken on
// the first Set.
func NewPCA9685(bus embd.I2CBus, addr byte, hz int, layout map[Channel]int, log *logrus.Logger) (*PCA9685, error) {
	if err := checkLayout(layout); err != nil {
		return nil, err
	}
	for ch, pin := range layout {
		if pin < 0 || pin > 15 {
			return nil, fmt.Errorf("%s on pca9685 channel %d", ch, pin)
		}
	}
	dev := pca9685.New(bus, addr)
	dev.Freq = hz
	p := &PCA9685{dev: dev, layout: layout, log: log.WithField("sys", "actuators")}
	p.log.Infof("pca9685 at %#x, %d Hz, %d outputs", addr, hz, len(layout))
	return p, nil
}

func (p *PCA9685) Set(ch Channel, value float64) error {
	pin, ok := p.layout[ch]
	if !ok {
		return fmt.Errorf("%s: %w", ch, ErrNoChannel)
	}
	if err := p.dev.ServoChannel(pin).SetMicroseconds(Pulse(ch, value)); err != nil {
		return fmt.Errorf("%s: %w", ch, err)
	}
	return nil
}

func (p *PCA9685) Close() error {
	return p.dev.Close()
}
