/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	receiver.go: Pilot inputs and the mode switch.
*/

// Package receiver reads the pilot's stick and switch positions.
package receiver

import (
	"errors"
	"fmt"
	"sync"

	"github.com/b3nn0/fbw/config"
)

var (
	ErrFailsafe  = errors.New("receiver: no signal")
	ErrNoChannel = errors.New("receiver: unknown channel")
)

// Channel in AETR order followed by the mode switch.
type Channel int

const (
	Roll Channel = iota
	Pitch
	Throttle
	Yaw
	Switch
	Bay
)

var channelNames = [...]string{"roll", "pitch", "throttle", "yaw", "switch", "bay"}

func (c Channel) String() string {
	if c < 0 || int(c) >= len(channelNames) {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return channelNames[c]
}

// Receiver returns channel positions in degrees 0-180, 90 centered.
type Receiver interface {
	Get(ch Channel) (float64, error)
}

// Position of the mode switch.
type Position int

const (
	PositionLow Position = iota
	PositionMid
	PositionHigh
)

func (p Position) String() string {
	switch p {
	case PositionLow:
		return "low"
	case PositionMid:
		return "mid"
	}
	return "high"
}

// SwitchPosition maps a switch channel reading onto its detent.
func SwitchPosition(deg float64, t config.SwitchType) Position {
	if t == config.SwitchType2Pos {
		if deg < 90 {
			return PositionLow
		}
		return PositionHigh
	}
	switch {
	case deg < 45:
		return PositionLow
	case deg > 135:
		return PositionHigh
	}
	return PositionMid
}

// Static is a Receiver with settable positions. Unset channels read 90.
type Static struct {
	mu     sync.Mutex
	values map[Channel]float64
	err    error
}

func NewStatic() *Static {
	return &Static{values: map[Channel]float64{}}
}

func (s *Static) Set(ch Channel, deg float64) {
	s.mu.Lock()
	s.values[ch] = deg
	s.mu.Unlock()
}

// SetErr makes every Get fail with err, nil restores the signal.
func (s *Static) SetErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Static) Get(ch Channel) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	if v, ok := s.values[ch]; ok {
		return v, nil
	}
	return 90, nil
}
