/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	flightplan.go: Waypoints consumed by the autopilot.
*/

// Package flightplan holds the route flown in Auto mode.
package flightplan

import (
	"errors"
	"fmt"
	"sync"
)

// MaxAltSamples bounds the altitude offset calibration request.
const MaxAltSamples = 100

var ErrEmpty = errors.New("flightplan: no waypoints")

// Waypoint is one leg target.
type Waypoint struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Alt   float64 `json:"alt"`   // meters, above the calibrated offset if any
	Speed float64 `json:"speed"` // m/s, 0 keeps the thrust setting
	Drop  float64 `json:"drop"`  // seconds after interception to open the bay, 0 for none
}

// Flightplan is an ordered route.
type Flightplan struct {
	Version    string     `json:"version"`
	AltSamples int        `json:"alt_samples"`
	Waypoints  []Waypoint `json:"waypoints"`
}

// Validate checks ranges of every field.
func (f *Flightplan) Validate() error {
	if len(f.Waypoints) == 0 {
		return ErrEmpty
	}
	if f.AltSamples < 0 || f.AltSamples > MaxAltSamples {
		return fmt.Errorf("flightplan: alt_samples %d outside 0..%d", f.AltSamples, MaxAltSamples)
	}
	for i, w := range f.Waypoints {
		if w.Lat < -90 || w.Lat > 90 || w.Lng < -180 || w.Lng > 180 {
			return fmt.Errorf("flightplan: waypoint %d at %v,%v out of range", i, w.Lat, w.Lng)
		}
		if w.Speed < 0 || w.Drop < 0 {
			return fmt.Errorf("flightplan: waypoint %d has negative speed or drop", i)
		}
	}
	return nil
}

// Provider supplies the current flightplan, false if none was loaded.
type Provider interface {
	Flightplan() (*Flightplan, bool)
}

// Static is a Provider holding a plan set by the configurator.
type Static struct {
	mu   sync.Mutex
	plan *Flightplan
}

// Set replaces the plan after validation. A nil plan clears it.
func (s *Static) Set(f *Flightplan) error {
	if f != nil {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.plan = f
	s.mu.Unlock()
	return nil
}

func (s *Static) Flightplan() (*Flightplan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan, s.plan != nil
}
