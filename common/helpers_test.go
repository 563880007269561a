package common

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestClamp(t *testing.T) {
	cases := []struct {
		v, min, max, want float64
	}{
		{5, 0, 10, 5},
		{-1, 0, 10, 0},
		{11, 0, 10, 10},
		{math.Inf(1), -1, 1, 1},
	}
	for _, c := range cases {
		if got := Clamp(c.v, c.min, c.max); got != c.want {
			t.Errorf("Clamp(%v, %v, %v) = %v, want %v", c.v, c.min, c.max, got, c.want)
		}
	}
	if got := Clamp(7, 1, 3); got != 3 {
		t.Errorf("integer Clamp = %d, want 3", got)
	}
}

func TestMapRange(t *testing.T) {
	if got := MapRange(1500.0, 1000, 2000, 0, 180); got != 90 {
		t.Errorf("MapRange = %v, want 90", got)
	}
	if got := MapRange(0.0, -90, 90, 0, 100); got != 50 {
		t.Errorf("MapRange = %v, want 50", got)
	}
}

func TestDeadband(t *testing.T) {
	if got := Deadband(1.5, 2.0); got != 0 {
		t.Errorf("Deadband inside band = %v, want 0", got)
	}
	if got := Deadband(-2.5, 2.0); got != -2.5 {
		t.Errorf("Deadband outside band = %v, want -2.5", got)
	}
}

func TestWrapDegrees(t *testing.T) {
	cases := []struct {
		in, want180, want360 float64
	}{
		{0, 0, 0},
		{190, -170, 190},
		{-190, 170, 170},
		{360, 0, 0},
		{-180, 180, 180},
		{540, 180, 180},
	}
	for _, c := range cases {
		if got := WrapDegrees180(c.in); math.Abs(got-c.want180) > 1e-9 {
			t.Errorf("WrapDegrees180(%v) = %v, want %v", c.in, got, c.want180)
		}
		if got := WrapDegrees360(c.in); math.Abs(got-c.want360) > 1e-9 {
			t.Errorf("WrapDegrees360(%v) = %v, want %v", c.in, got, c.want360)
		}
	}
}

func TestLerp(t *testing.T) {
	if got := Lerp(10.0, 20.0, 0.25); got != 12.5 {
		t.Errorf("Lerp = %v, want 12.5", got)
	}
}

func TestReadCpuTemp(t *testing.T) {
	old := ThermalZone
	defer func() { ThermalZone = old }()

	dir := t.TempDir()
	ThermalZone = filepath.Join(dir, "temp")
	if err := os.WriteFile(ThermalZone, []byte("48500\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := ReadCpuTemp(); got != 48.5 {
		t.Errorf("ReadCpuTemp = %v, want 48.5", got)
	}

	ThermalZone = filepath.Join(dir, "missing")
	if got := ReadCpuTemp(); IsCPUTempValid(got) {
		t.Errorf("ReadCpuTemp on missing file = %v, want invalid", got)
	}
}
