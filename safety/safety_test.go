package safety

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/b3nn0/fbw/aahrs"
	"github.com/b3nn0/fbw/gps"
	"github.com/b3nn0/fbw/sensors"
)

var envelope = Envelope{MaxRoll: 72, MaxPitch: 35, MinPitch: -20}

func newSupervisor() *Supervisor {
	log, _ := test.NewNullLogger()
	return NewSupervisor(envelope, GPSRule{MaxAge: 3 * time.Second, MaxPDOP: 10}, log)
}

func TestEnvelope(t *testing.T) {
	tests := []struct {
		roll, pitch float64
		want        bool
	}{
		{0, 0, false},
		{72, 35, false},
		{-72, -20, false},
		{72.1, 0, true},
		{-73, 0, true},
		{0, 35.5, true},
		{0, -20.5, true},
		{math.Inf(1), 0, true},
		{0, math.NaN(), true},
	}
	for _, tc := range tests {
		if got := envelope.Exceeded(tc.roll, tc.pitch); got != tc.want {
			t.Errorf("Exceeded(%v, %v) = %v, want %v", tc.roll, tc.pitch, got, tc.want)
		}
	}
}

func TestTransientFailures(t *testing.T) {
	s := newSupervisor()
	now := time.Unix(0, 0)
	readErr := fmt.Errorf("gyroscope read: %w", sensors.ErrTimeout)
	for i := 1; i <= NumRetries; i++ {
		if !s.AAHRS(readErr, now) {
			t.Fatalf("unsafe after %d failures", i)
		}
	}
	if s.AAHRS(readErr, now) {
		t.Fatal("still safe after NumRetries+1 failures")
	}
	if s.ReadFailures() != NumRetries+1 {
		t.Errorf("ReadFailures = %d", s.ReadFailures())
	}

	s.Recovered()
	for i := 0; i < NumRetries; i++ {
		s.AAHRS(readErr, now)
	}
	if !s.AAHRS(nil, now) || s.Failures() != 0 {
		t.Error("success did not reset the failure run")
	}
	if !s.AAHRS(readErr, now) {
		t.Error("unsafe after a single failure")
	}
}

func TestFilterFailure(t *testing.T) {
	s := newSupervisor()
	now := time.Unix(10, 0)
	if s.AAHRS(fmt.Errorf("%w: nan", aahrs.ErrFilter), now) {
		t.Error("filter failure tolerated")
	}
	if s.MayRecover(now.Add(RecoveryDelay / 2)) {
		t.Error("recovery allowed too early")
	}
	if !s.MayRecover(now.Add(RecoveryDelay)) {
		t.Error("recovery not allowed after delay")
	}
}

func TestAttitude(t *testing.T) {
	s := newSupervisor()
	now := time.Unix(10, 0)
	if !s.Attitude(aahrs.Attitude{Roll: 10, Pitch: 5}, now) {
		t.Error("level attitude rejected")
	}
	if s.Attitude(aahrs.Attitude{Roll: 80}, now) {
		t.Error("roll 80 accepted")
	}
	if s.Attitude(aahrs.Invalid(), now) {
		t.Error("invalid attitude accepted")
	}
	if s.MayRecover(now) {
		t.Error("recovery allowed right after exceedance")
	}
}

func TestGPSRule(t *testing.T) {
	rule := GPSRule{MaxAge: 3 * time.Second, MaxPDOP: 10, MaxHDOP: 5, MaxVDOP: 4}
	now := time.Unix(100, 0)
	good := gps.Fix{Quality: 1, PDOP: 2, Time: now.Add(-time.Second)}

	tests := []struct {
		name      string
		supported bool
		fix       *gps.Fix
		want      bool
	}{
		{"good", true, &good, true},
		{"unsupported", false, &good, false},
		{"no fix", true, nil, false},
		{"quality 0", true, &gps.Fix{Quality: 0, Time: now}, false},
		{"stale", true, &gps.Fix{Quality: 1, Time: now.Add(-3 * time.Second)}, false},
		{"pdop", true, &gps.Fix{Quality: 1, PDOP: 10.5, Time: now}, false},
		{"pdop limit", true, &gps.Fix{Quality: 1, PDOP: 10, Time: now}, true},
		{"hdop", true, &gps.Fix{Quality: 1, PDOP: 2, HDOP: 5.5, Time: now}, false},
		{"hdop limit", true, &gps.Fix{Quality: 1, PDOP: 2, HDOP: 5, Time: now}, true},
		{"vdop", true, &gps.Fix{Quality: 1, PDOP: 2, HDOP: 1, VDOP: 4.2, Time: now}, false},
		{"vdop limit", true, &gps.Fix{Quality: 1, PDOP: 2, HDOP: 1, VDOP: 4, Time: now}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := gps.NewStatic()
			src.SetSupported(tc.supported)
			if tc.fix != nil {
				src.SetFix(*tc.fix)
			}
			if got := rule.Safe(src, now); got != tc.want {
				t.Errorf("Safe = %v, want %v", got, tc.want)
			}
		})
	}
	if rule.Safe(nil, now) {
		t.Error("nil source safe")
	}
}

func TestNotInitIsFatal(t *testing.T) {
	s := newSupervisor()
	if s.AAHRS(aahrs.ErrNotInit, time.Now()) {
		t.Error("uninitialized AAHRS tolerated")
	}
	if errors.Is(aahrs.ErrNotInit, aahrs.ErrFilter) {
		t.Fatal("sentinels alias")
	}
}

func TestUnsafeRestartsRecoveryDelay(t *testing.T) {
	s := newSupervisor()
	t0 := time.Unix(1000, 0)
	if !s.MayRecover(t0) {
		t.Fatal("fresh supervisor should allow recovery")
	}
	s.Unsafe(t0)
	if s.MayRecover(t0.Add(RecoveryDelay / 2)) {
		t.Error("recovery allowed before the delay")
	}
	if !s.MayRecover(t0.Add(RecoveryDelay)) {
		t.Error("recovery refused after the delay")
	}
}
