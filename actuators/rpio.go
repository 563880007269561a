/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	rpio.go: Outputs on the Raspberry Pi hardware PWM.
*/

package actuators

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/stianeikeland/go-rpio/v4"
)

// The PWM clock runs at 1 MHz so one duty step is one microsecond.
const pwmClock = 1000000

// hwChannel maps BCM pins with a PWM alternate function to their channel.
var hwChannel = map[int]int{12: 0, 18: 0, 13: 1, 19: 1}

// PWM drives at most two outputs, one per hardware PWM channel.
type PWM struct {
	pins  map[Channel]rpio.Pin
	cycle map[Channel]uint32
	log   *logrus.Entry
}

func checkHardwarePWM(layout map[Channel]int) error {
	taken := map[int]Channel{}
	for _, ch := range sortedChannels(layout) {
		pin := layout[ch]
		hw, ok := hwChannel[pin]
		if !ok {
			return fmt.Errorf("%s: BCM %d has no hardware PWM", ch, pin)
		}
		if other, ok := taken[hw]; ok {
			return fmt.Errorf("%s and %s share PWM channel %d", other, ch, hw)
		}
		taken[hw] = ch
	}
	return nil
}

// OpenPWM maps the GPIO registers and configures every output. Servos run
// at servoHz, the ESC at escHz.
func OpenPWM(layout map[Channel]int, servoHz, escHz int, log *logrus.Logger) (*PWM, error) {
	if err := checkLayout(layout); err != nil {
		return nil, err
	}
	if err := checkHardwarePWM(layout); err != nil {
		return nil, err
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("can't open gpio: %w", err)
	}

	p := &PWM{
		pins:  map[Channel]rpio.Pin{},
		cycle: map[Channel]uint32{},
		log:   log.WithField("sys", "actuators"),
	}
	for ch, n := range layout {
		hz := servoHz
		if ch == Throttle {
			hz = escHz
		}
		pin := rpio.Pin(n)
		pin.Mode(rpio.Pwm)
		pin.Freq(pwmClock)
		p.pins[ch] = pin
		p.cycle[ch] = uint32(pwmClock / hz)
	}
	p.log.Infof("hardware PWM on %d outputs", len(layout))
	return p, nil
}

func (p *PWM) Set(ch Channel, value float64) error {
	pin, ok := p.pins[ch]
	if !ok {
		return fmt.Errorf("%s: %w", ch, ErrNoChannel)
	}
	pin.DutyCycle(uint32(Pulse(ch, value)), p.cycle[ch])
	return nil
}

func (p *PWM) Close() error {
	return rpio.Close()
}
