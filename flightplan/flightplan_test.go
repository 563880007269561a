package flightplan

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	ok := Waypoint{Lat: 47.1, Lng: 8.5, Alt: 100}
	tests := []struct {
		name    string
		plan    Flightplan
		wantErr bool
	}{
		{"valid", Flightplan{AltSamples: 10, Waypoints: []Waypoint{ok}}, false},
		{"empty", Flightplan{}, true},
		{"samples", Flightplan{AltSamples: 101, Waypoints: []Waypoint{ok}}, true},
		{"negative samples", Flightplan{AltSamples: -1, Waypoints: []Waypoint{ok}}, true},
		{"lat", Flightplan{Waypoints: []Waypoint{ok, {Lat: 91}}}, true},
		{"lng", Flightplan{Waypoints: []Waypoint{{Lng: -181}}}, true},
		{"speed", Flightplan{Waypoints: []Waypoint{{Speed: -1}}}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.plan.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestStatic(t *testing.T) {
	var s Static
	if _, ok := s.Flightplan(); ok {
		t.Fatal("plan before Set")
	}
	if err := s.Set(&Flightplan{}); !errors.Is(err, ErrEmpty) {
		t.Errorf("Set(empty) = %v", err)
	}
	plan := &Flightplan{Waypoints: []Waypoint{{Lat: 1, Lng: 2}}}
	if err := s.Set(plan); err != nil {
		t.Fatal(err)
	}
	if got, ok := s.Flightplan(); !ok || got != plan {
		t.Errorf("Flightplan() = %v, %v", got, ok)
	}
	s.Set(nil)
	if _, ok := s.Flightplan(); ok {
		t.Error("plan after clearing")
	}
}
