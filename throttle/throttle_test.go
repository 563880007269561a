package throttle

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/b3nn0/fbw/config"
	"github.com/b3nn0/fbw/gps"
	"github.com/b3nn0/fbw/pid"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) at(sec float64) {
	c.t = time.Unix(0, 0).Add(time.Duration(sec * float64(time.Second)))
}

func settings() Settings {
	return Settings{
		Idle:        10,
		MCT:         75,
		Max:         90,
		MaxTime:     10 * time.Second,
		Cooldown:    30 * time.Second,
		Sensitivity: 1,
		PID:         pid.Config{Kp: 2, T: 0.01, LimMin: 10, LimMax: 90, IntegMin: -50, IntegMax: 50},
	}
}

func newThrottle(t *testing.T, s Settings, src gps.Source) (*Autothrottle, *clock) {
	t.Helper()
	log, _ := test.NewNullLogger()
	a := New(s, src, log)
	c := &clock{}
	c.at(0)
	a.now = c.now
	return a, c
}

func TestThrust(t *testing.T) {
	a, _ := newThrottle(t, settings(), nil)
	a.SetTarget(42)
	if got := a.Update(); got != 42 {
		t.Errorf("Update = %v, want 42", got)
	}
	a.SetTarget(0)
	if got := a.Update(); got != 0 {
		t.Errorf("below idle = %v, want 0", got)
	}
}

func TestSmoothing(t *testing.T) {
	s := settings()
	s.Sensitivity = 0.5
	a, _ := newThrottle(t, s, nil)
	a.SetTarget(50)
	for _, want := range []float64{25, 37.5, 43.75} {
		if got := a.Update(); got != want {
			t.Errorf("Update = %v, want %v", got, want)
		}
	}
}

func TestMCTProtection(t *testing.T) {
	a, c := newThrottle(t, settings(), nil)
	steps := []struct {
		sec    float64
		target float64
		out    float64
		state  State
	}{
		{0, 90, 90, StateExceeded},
		{5, 90, 90, StateExceeded},
		{10.5, 90, 75, StateLock},
		{20, 90, 75, StateLock},
		{21, 50, 50, StateCooldown},
		{30, 90, 75, StateCooldown},
		{51.5, 90, 75, StateNormal},
		{52, 90, 90, StateExceeded},
	}
	for _, st := range steps {
		c.at(st.sec)
		a.SetTarget(st.target)
		if got := a.Update(); got != st.out || a.State() != st.state {
			t.Errorf("t=%v: out %v state %s, want %v %s", st.sec, got, a.State(), st.out, st.state)
		}
	}
}

func TestMCTShortExceedance(t *testing.T) {
	a, c := newThrottle(t, settings(), nil)
	a.SetTarget(80)
	a.Update()
	c.at(9)
	a.SetTarget(70)
	a.Update()
	if a.State() != StateNormal {
		t.Errorf("state %s after returning below MCT", a.State())
	}
	c.at(15)
	a.SetTarget(80)
	if got := a.Update(); got != 80 || a.State() != StateExceeded {
		t.Errorf("out %v state %s, want a fresh exceedance", got, a.State())
	}
}

func TestSpeedMode(t *testing.T) {
	a, _ := newThrottle(t, settings(), nil)
	if a.Supported() != ModeThrust {
		t.Fatal("speed mode supported without GPS")
	}
	if err := a.SetMode(ModeSpeed); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("SetMode(speed) = %v", err)
	}

	src := gps.NewStatic()
	b, _ := newThrottle(t, settings(), src)
	if err := b.SetMode(ModeSpeed); err != nil {
		t.Fatal(err)
	}
	b.SetTarget(20)
	if got := b.Update(); got != 0 {
		t.Errorf("output without fix = %v, want held 0", got)
	}

	tests := []struct {
		speed, want float64
	}{
		{10, 20},
		{0, 40},
		{30, 10},
		{-40, 90},
	}
	for _, tc := range tests {
		src.SetFix(gps.Fix{Quality: 1, Speed: tc.speed})
		if got := b.Update(); got != tc.want {
			t.Errorf("speed %v: output %v, want %v", tc.speed, got, tc.want)
		}
	}
}

func TestSettingsFromConfig(t *testing.T) {
	s := SettingsFromConfig(config.Default())
	if s.Idle != 10 || s.MCT != 75 || s.Max != 90 {
		t.Errorf("detents %v %v %v", s.Idle, s.MCT, s.Max)
	}
	if s.MaxTime != 10*time.Second || s.Cooldown != 30*time.Second {
		t.Errorf("timing %v %v", s.MaxTime, s.Cooldown)
	}
	if s.PID.LimMin != s.Idle || s.PID.LimMax != s.Max {
		t.Errorf("speed loop limits %v..%v", s.PID.LimMin, s.PID.LimMax)
	}
}
