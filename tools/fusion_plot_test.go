package main

import (
	"math"
	"strings"
	"testing"
)

func TestParseSamples(t *testing.T) {
	in := "gx,gy,gz,ax,ay,az,mx,my,mz\n0,0,0,0,0,1,0.2,0,0.4\n1,2\n0,0,0,0,0.5,0.866,0,0,0\n"
	samples, err := parseSamples(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 {
		t.Fatalf("%d samples, want 2", len(samples))
	}
	if samples[1][4] != 0.5 {
		t.Errorf("ay = %v", samples[1][4])
	}
}

func TestReplayConverges(t *testing.T) {
	// Rolled 30 degrees, still.
	s := sample{0, 0, 0, 0, math.Sin(math.Pi / 6), math.Cos(math.Pi / 6)}
	samples := make([]sample, 5000)
	for i := range samples {
		samples[i] = s
	}
	roll, pitch, _, err := replay(samples, 100, 0.1, false)
	if err != nil {
		t.Fatal(err)
	}
	last := len(roll) - 1
	if math.Abs(roll[last].Y-30) > 1 || math.Abs(pitch[last].Y) > 1 {
		t.Errorf("roll %v pitch %v, want 30, 0", roll[last].Y, pitch[last].Y)
	}
	if roll[last].X != float64(last)/100 {
		t.Errorf("time axis %v", roll[last].X)
	}
}
