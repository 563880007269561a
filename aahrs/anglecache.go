/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	anglecache.go: Lock-free hand-off of angles from a background producer.
*/

package aahrs

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/b3nn0/fbw/common"
)

// Angles in degrees. Gen increases with every store.
type Angles struct {
	Roll, Pitch, Yaw float64
	Gen              uint64
}

// Producer yields a fresh set of angles.
type Producer func() (Angles, error)

// AngleCache holds the latest angles of a single producer. Readers always
// see a complete set.
type AngleCache struct {
	p   atomic.Pointer[Angles]
	gen atomic.Uint64
}

// Store publishes a new snapshot and stamps its generation.
func (c *AngleCache) Store(a Angles) {
	a.Gen = c.gen.Add(1)
	c.p.Store(&a)
}

// Load returns the latest snapshot, false if nothing was stored yet.
func (c *AngleCache) Load() (Angles, bool) {
	a := c.p.Load()
	if a == nil {
		return Angles{}, false
	}
	return *a, true
}

// Run calls producer every period and stores its result until ctx is done.
// Failed productions leave the previous snapshot in place.
func (c *AngleCache) Run(ctx context.Context, producer Producer, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a, err := producer(); err == nil {
				c.Store(a)
			}
		}
	}
}

// InvalidAngles is produced while no attitude estimate exists.
func InvalidAngles() Angles {
	inf := math.Inf(1)
	return Angles{Roll: inf, Pitch: inf, Yaw: inf}
}

// TiltAngles is the attitude implied by gravity alone. Yaw is unobservable
// and left at 0.
func TiltAngles(acc [3]float64) Angles {
	roll := math.Atan2(acc[1], acc[2])
	pitch := math.Atan2(-acc[0], math.Sqrt(acc[1]*acc[1]+acc[2]*acc[2]))
	return Angles{Roll: common.Degrees(roll), Pitch: common.Degrees(pitch)}
}
