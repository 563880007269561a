package calibration

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/b3nn0/fbw/persist"
)

func newManager() (*Manager, *persist.Memory) {
	log, _ := test.NewNullLogger()
	store := persist.NewMemory()
	return NewManager(store, log), store
}

func sample() Record {
	return Record{
		Calibrated:  true,
		IMUModel:    1,
		BaroModel:   0,
		Time:        time.Date(2024, 6, 10, 6, 43, 10, 0, time.UTC),
		AccelOffset: [3]float32{0.0123, -0.0456, 0.0031},
		GyroOffset:  [3]float32{-1.25, 0.5, 0.0078125},
	}
}

func TestRoundTrip(t *testing.T) {
	m, store := newManager()
	want := sample()
	if err := m.Save(want); err != nil {
		t.Fatal(err)
	}
	if store.Saves() != 1 {
		t.Errorf("Saves = %d, want 1", store.Saves())
	}

	got, err := m.Load(1, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Valid(1, 0) {
		t.Error("reloaded calibration not valid")
	}
	if got.AccelOffset != want.AccelOffset || got.GyroOffset != want.GyroOffset {
		t.Errorf("offsets = %v %v, want %v %v", got.AccelOffset, got.GyroOffset, want.AccelOffset, want.GyroOffset)
	}
	if !got.Time.Equal(want.Time) {
		t.Errorf("time = %v, want %v", got.Time, want.Time)
	}
}

func TestModelMismatch(t *testing.T) {
	m, _ := newManager()
	if err := m.Save(sample()); err != nil {
		t.Fatal(err)
	}

	for _, models := range [][2]int{{2, 0}, {1, 1}} {
		got, err := m.Load(models[0], models[1])
		if !errors.Is(err, ErrModelMismatch) {
			t.Errorf("Load(%v) err = %v, want ErrModelMismatch", models, err)
		}
		if got.Calibrated || got.Valid(models[0], models[1]) {
			t.Errorf("Load(%v) returned a usable calibration", models)
		}
	}
}

func TestNotCalibrated(t *testing.T) {
	m, _ := newManager()
	if _, err := m.Load(1, 0); !errors.Is(err, ErrNotCalibrated) {
		t.Errorf("empty store err = %v", err)
	}

	if err := m.Save(sample()); err != nil {
		t.Fatal(err)
	}
	if err := m.Erase(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Load(1, 0); !errors.Is(err, ErrNotCalibrated) {
		t.Errorf("erased store err = %v", err)
	}
}

func TestAccumulatorOffsets(t *testing.T) {
	var a Accumulator
	if _, _, err := a.Offsets(); !errors.Is(err, ErrNoSamples) {
		t.Errorf("empty Offsets err = %v", err)
	}

	a.Add([3]float64{0.02, -0.01, 1.05}, [3]float64{1.5, -0.5, 0.25})
	a.Add([3]float64{0.04, -0.03, 1.03}, [3]float64{0.5, -1.5, 0.75})
	if a.N() != 2 {
		t.Errorf("N = %d", a.N())
	}

	accel, gyro, err := a.Offsets()
	if err != nil {
		t.Fatal(err)
	}
	wantAccel := [3]float32{-0.03, 0.02, float32(1 - (1.05+1.03)/2)}
	wantGyro := [3]float32{-1, 1, -0.5}
	if accel != wantAccel {
		t.Errorf("accel offsets = %v, want %v", accel, wantAccel)
	}
	if gyro != wantGyro {
		t.Errorf("gyro offsets = %v, want %v", gyro, wantGyro)
	}
}
