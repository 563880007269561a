package nav

import (
	"math"
	"testing"
)

func TestBearing(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		want                   float64
	}{
		{"north", 0, 0, 1, 0, 0},
		{"east", 0, 0, 0, 1, 90},
		{"south", 1, 0, 0, 0, 180},
		{"west", 0, 1, 0, 0, 270},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Bearing(tc.lat1, tc.lng1, tc.lat2, tc.lng2)
			if math.Abs(got-tc.want) > 1e-6 {
				t.Errorf("Bearing = %v, want %v", got, tc.want)
			}
			if got < 0 || got >= 360 {
				t.Errorf("Bearing %v outside [0, 360)", got)
			}
		})
	}
}

func TestDistance(t *testing.T) {
	if d := Distance(47, 8, 47, 8); d != 0 {
		t.Errorf("Distance to self = %v", d)
	}
	// One degree of latitude is about 111.2 km on the mean earth radius.
	if d := Distance(0, 0, 1, 0); math.Abs(d-111195) > 200 {
		t.Errorf("Distance one degree = %v m", d)
	}
	a, b := Distance(10, 20, 11, 21), Distance(11, 21, 10, 20)
	if math.Abs(a-b) > 1e-6 {
		t.Errorf("Distance not symmetric: %v %v", a, b)
	}
}
