/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	mode.go: Flight modes and transition resolution.
*/

// Package modes runs the flight mode state machine and its control laws.
package modes

import "fmt"

type Mode int

const (
	Direct Mode = iota
	Normal
	Auto
	Tune
	Hold
	numModes
)

var modeNames = [...]string{"direct", "normal", "auto", "tune", "hold"}

func (m Mode) String() string {
	if m < 0 || m >= numModes {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// Conditions gate the transitions between modes.
type Conditions struct {
	AAHRSSafe     bool
	GPSSafe       bool
	GPSSupported  bool
	Tuned         bool
	HasFlightplan bool
}

// Resolve returns the mode actually entered when target is requested.
// Unmet preconditions redirect to a safer mode; Direct is always reachable.
func Resolve(target Mode, c Conditions) Mode {
	if !c.AAHRSSafe {
		return Direct
	}
	// Every redirect moves toward Normal, Tune or Direct, so the walk is
	// bounded by the number of modes.
	for i := 0; i < int(numModes); i++ {
		switch target {
		case Direct:
			return Direct
		case Normal:
			if !c.Tuned {
				target = Tune
				continue
			}
			return Normal
		case Auto:
			if c.Tuned && c.GPSSupported && c.GPSSafe && c.HasFlightplan {
				return Auto
			}
			target = Normal
		case Tune:
			if !c.Tuned {
				return Tune
			}
			target = Normal
		case Hold:
			if c.GPSSupported && c.GPSSafe {
				return Hold
			}
			target = Normal
		default:
			return Direct
		}
	}
	return Direct
}
