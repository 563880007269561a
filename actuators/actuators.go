/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	actuators.go: Output channels and the actuator contract.
*/

// Package actuators drives servos and the ESC.
package actuators

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/b3nn0/fbw/common"
	"github.com/b3nn0/fbw/config"
)

var ErrNoChannel = errors.New("actuators: channel not wired")

type Channel int

const (
	Aileron Channel = iota
	Elevator
	Rudder
	Throttle
	ElevonLeft
	ElevonRight
	Bay
)

var channelNames = [...]string{"aileron", "elevator", "rudder", "throttle", "elevon_l", "elevon_r", "bay"}

func (c Channel) String() string {
	if c < 0 || int(c) >= len(channelNames) {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return channelNames[c]
}

// Actuator accepts servo positions in degrees 0-180 (90 neutral) and the
// throttle in percent.
type Actuator interface {
	Set(ch Channel, value float64) error
}

// Pulse widths in microseconds.
const (
	PulseMin = 1000
	PulseMax = 2000
)

// Pulse converts a channel value to a pulse width.
func Pulse(ch Channel, value float64) int {
	if ch == Throttle {
		return int(common.MapRange(common.Clamp(value, 0, 100), 0, 100, PulseMin, PulseMax) + 0.5)
	}
	return int(common.MapRange(common.Clamp(value, 0, 180), 0, 180, PulseMin, PulseMax) + 0.5)
}

// Layout returns the output pin of every channel the configured topology
// uses. A negative bay pin leaves the bay unwired.
func Layout(c *config.Config) map[Channel]int {
	m := c.General.ControlMode
	p := c.Pins
	l := map[Channel]int{}
	if m.IsFlyingWing() {
		l[ElevonLeft] = p.ServoElevonL
		l[ElevonRight] = p.ServoElevonR
	} else {
		l[Aileron] = p.ServoAil
		l[Elevator] = p.ServoElev
		if m.HasRudder() {
			l[Rudder] = p.ServoRud
		}
	}
	if m.HasAutothrottle() {
		l[Throttle] = p.EscThrottle
	}
	if p.ServoBay >= 0 {
		l[Bay] = p.ServoBay
	}
	return l
}

func sortedChannels(l map[Channel]int) []Channel {
	chs := make([]Channel, 0, len(l))
	for ch := range l {
		chs = append(chs, ch)
	}
	sort.Slice(chs, func(i, j int) bool { return chs[i] < chs[j] })
	return chs
}

// checkLayout rejects two channels on one pin.
func checkLayout(l map[Channel]int) error {
	used := map[int]Channel{}
	for _, ch := range sortedChannels(l) {
		pin := l[ch]
		if other, ok := used[pin]; ok {
			return fmt.Errorf("%s and %s share output %d", other, ch, pin)
		}
		used[pin] = ch
	}
	return nil
}

// Neutral centers every servo and closes the throttle.
func Neutral(a Actuator, l map[Channel]int, bayClosed float64) error {
	var errs []error
	for _, ch := range sortedChannels(l) {
		v := 90.0
		switch ch {
		case Throttle:
			v = 0
		case Bay:
			v = bayClosed
		}
		if err := a.Set(ch, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps the last value of every channel.
type Recorder struct {
	mu     sync.Mutex
	values map[Channel]float64
	sets   int
}

func NewRecorder() *Recorder {
	return &Recorder{values: map[Channel]float64{}}
}

func (r *Recorder) Set(ch Channel, value float64) error {
	r.mu.Lock()
	r.values[ch] = value
	r.sets++
	r.mu.Unlock()
	return nil
}

// Get returns the last value written to ch.
func (r *Recorder) Get(ch Channel) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[ch]
	return v, ok
}

// Sets returns the number of writes so far.
func (r *Recorder) Sets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sets
}

// Reset forgets all values.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.values = map[Channel]float64{}
	r.sets = 0
	r.mu.Unlock()
}
