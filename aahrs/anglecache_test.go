package aahrs

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/b3nn0/fbw/persist"
)

func TestAngleCacheStoreLoad(t *testing.T) {
	var c AngleCache
	if _, ok := c.Load(); ok {
		t.Fatal("empty cache returned a snapshot")
	}
	c.Store(Angles{Roll: 1, Pitch: 2, Yaw: 3})
	c.Store(Angles{Roll: 4, Pitch: 5, Yaw: 6, Gen: 100})
	a, ok := c.Load()
	if !ok || a.Roll != 4 || a.Pitch != 5 || a.Yaw != 6 {
		t.Errorf("Load = %+v, %v", a, ok)
	}
	if a.Gen != 2 {
		t.Errorf("generation %d, want 2", a.Gen)
	}
}

func TestAngleCacheRun(t *testing.T) {
	var c AngleCache
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	calls := 0
	producer := func() (Angles, error) {
		calls++
		if calls%2 == 0 {
			return Angles{}, errors.New("not ready")
		}
		return Angles{Roll: float64(calls)}, nil
	}
	go func() {
		c.Run(ctx, producer, time.Millisecond)
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		if a, ok := c.Load(); ok && a.Gen >= 3 {
			if int(a.Roll)%2 != 1 {
				t.Errorf("failed production stored: %+v", a)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("producer never stored")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestTiltAngles(t *testing.T) {
	r := 20 * math.Pi / 180
	a := TiltAngles([3]float64{-math.Sin(r), 0, math.Cos(r)})
	if math.Abs(a.Pitch-20) > 1e-9 || math.Abs(a.Roll) > 1e-9 || a.Yaw != 0 {
		t.Errorf("TiltAngles = %+v, want pitch 20", a)
	}
}

func TestTiltProducer(t *testing.T) {
	a, sim := newBench(t, persist.NewMemory())
	produce := a.TiltProducer()
	if got, err := produce(); err != nil || !math.IsInf(got.Roll, 1) {
		t.Errorf("producer before Init = %+v, %v", got, err)
	}
	if err := a.Init(); err != nil {
		t.Fatal(err)
	}
	r := 30 * math.Pi / 180
	sim.Accel.SetSample([3]float64{0, math.Sin(r), math.Cos(r)})
	run(t, a, time.Unix(0, 0), 1)
	got, err := produce()
	if err != nil || math.Abs(got.Roll-30) > 0.1 {
		t.Errorf("producer = %+v, %v", got, err)
	}
	a.RawAngles().Store(got)

	a.Deinit()
	cached, _ := a.RawAngles().Load()
	if cached.Gen != 1 || cached.Roll != got.Roll {
		t.Errorf("Deinit wrote to the raw cache: %+v", cached)
	}
	got, err = produce()
	if err != nil || !math.IsInf(got.Roll, 1) || !math.IsInf(got.Pitch, 1) {
		t.Errorf("producer after Deinit = %+v, %v", got, err)
	}
}
