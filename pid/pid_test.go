package pid

import (
	"math"
	"testing"
	"time"

	"github.com/felixge/pidctrl"
)

const tolerance = 1e-9

func TestProportionalOnly(t *testing.T) {
	c := New(Config{Kp: 1}.Unbounded())
	c.Init()
	if out := c.Update(10, 0); out != 10 {
		t.Errorf("Update(10, 0) = %v, want 10", out)
	}
	if c.Out() != 10 {
		t.Errorf("Out() = %v, want 10", c.Out())
	}
}

func TestMatchesReferenceWithoutDerivative(t *testing.T) {
	cases := []struct {
		name       string
		kp, ki     float64
		setpoint   float64
		samples    []float64
		sampleTime float64
	}{
		{"P", 2.5, 0, 15, []float64{0, 3, 7, 12, 16, 14}, 0.01},
		{"PI", 0.8, 1.5, -4, []float64{0, -1, -2.5, -3.9, -4.2, -4.1, -3.95}, 0.02},
		{"PI slow", 0.1, 0.05, 100, []float64{90, 91, 93, 95, 97, 99, 100, 101}, 0.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ours := New(Config{Kp: tc.kp, Ki: tc.ki, T: tc.sampleTime}.Unbounded())
			ref := pidctrl.NewPIDController(tc.kp, tc.ki, 0)
			ref.Set(tc.setpoint)
			dt := time.Duration(tc.sampleTime * float64(time.Second))

			for i, m := range tc.samples {
				got := ours.Update(tc.setpoint, m)
				want := ref.UpdateDuration(m, dt)
				if math.Abs(got-want) > tolerance {
					t.Fatalf("sample %d: got %v, reference %v", i, got, want)
				}
			}
		})
	}
}

func TestOutputLimits(t *testing.T) {
	c := New(Config{Kp: 10, LimMin: -5, LimMax: 5, IntegMin: -1, IntegMax: 1, T: 0.01})
	if out := c.Update(100, 0); out != 5 {
		t.Errorf("positive saturation = %v, want 5", out)
	}
	if out := c.Update(-100, 0); out != -5 {
		t.Errorf("negative saturation = %v, want -5", out)
	}
}

func TestIntegratorBounded(t *testing.T) {
	cfg := Config{
		Kp: 1, Ki: 0.5, Kd: 0.01, Tau: 0.02,
		LimMin: -10, LimMax: 10,
		IntegMin: -3, IntegMax: 3,
		KT: 0.4, T: 0.01,
	}
	c := New(cfg)

	check := func(step int) {
		if i := c.Integrator(); i < cfg.IntegMin || i > cfg.IntegMax {
			t.Fatalf("step %d: integrator %v outside [%v, %v]", step, i, cfg.IntegMin, cfg.IntegMax)
		}
	}

	// Sustained saturation.
	for i := 0; i < 5000; i++ {
		c.Update(1000, 0)
		check(i)
	}
	if c.Out() != cfg.LimMax {
		t.Errorf("saturated output = %v, want %v", c.Out(), cfg.LimMax)
	}

	// Disturbance removed; the measurement jumps onto the setpoint.
	for i := 0; i < 5000; i++ {
		c.Update(1000, 1000)
		check(i)
	}

	// Reverse saturation with a large back-calculation gain.
	c.KT = 50
	for i := 0; i < 5000; i++ {
		c.Update(-1e6, 0)
		check(i)
	}
}

func TestDerivativeOnMeasurement(t *testing.T) {
	c := New(Config{Kd: 1, Tau: 0.05, T: 0.01}.Unbounded())

	// A setpoint step with constant measurement must not produce a derivative kick.
	c.Update(0, 0)
	if out := c.Update(50, 0); out != 0 {
		t.Errorf("setpoint step produced %v, want 0", out)
	}

	// A rising measurement yields a negative, filtered derivative.
	out := c.Update(50, 1)
	if out >= 0 {
		t.Errorf("rising measurement produced %v, want negative", out)
	}
	want := -(2 * 1.0 * 1.0) / (2*0.05 + 0.01)
	if math.Abs(out-want) > tolerance {
		t.Errorf("derivative = %v, want %v", out, want)
	}
}

func TestResetClearsMemory(t *testing.T) {
	c := New(Config{Kp: 1, Ki: 1, Kd: 1, Tau: 0.1, T: 0.1}.Unbounded())
	for i := 0; i < 10; i++ {
		c.Update(5, float64(i))
	}
	c.Reset()
	if c.Integrator() != 0 || c.Out() != 0 {
		t.Fatalf("memory not cleared: integrator %v out %v", c.Integrator(), c.Out())
	}

	fresh := New(c.Config)
	if a, b := c.Update(3, 1), fresh.Update(3, 1); a != b {
		t.Errorf("reset controller %v differs from fresh controller %v", a, b)
	}
}
