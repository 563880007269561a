/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	nav.go: Great circle bearing and distance.
*/

package nav

import (
	geo "github.com/kellydunn/golang-geo"

	"github.com/b3nn0/fbw/common"
)

// Bearing returns the initial true course from one position to another in
// degrees [0, 360).
func Bearing(fromLat, fromLng, toLat, toLng float64) float64 {
	from := geo.NewPoint(fromLat, fromLng)
	return common.WrapDegrees360(from.BearingTo(geo.NewPoint(toLat, toLng)))
}

// Distance returns the great circle distance in meters.
func Distance(fromLat, fromLng, toLat, toLng float64) float64 {
	from := geo.NewPoint(fromLat, fromLng)
	return from.GreatCircleDistance(geo.NewPoint(toLat, toLng)) * 1000
}
