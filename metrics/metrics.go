/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	metrics.go: Prometheus metrics and the JSON status page of the control loop.
*/

// Package metrics exports the state of the flight controller.
package metrics

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/b3nn0/fbw/aahrs"
	"github.com/b3nn0/fbw/common"
	"github.com/b3nn0/fbw/modes"
)

// Metrics implements modes.Observer.
type Metrics struct {
	attitude    *prometheus.GaugeVec
	setpoint    *prometheus.GaugeVec
	rawTilt     *prometheus.GaugeVec
	mode        prometheus.Gauge
	transitions *prometheus.CounterVec
	aahrsSafe   prometheus.Gauge
	gpsSafe     prometheus.Gauge
	waypoint    prometheus.Gauge
	throttle    prometheus.Gauge
	holdPhase   prometheus.Gauge
	cpuTemp     prometheus.Gauge
	ticks       prometheus.Counter

	last atomic.Pointer[modes.Status]
}

// New registers the metrics with reg. readFailures, if set, is exported as
// the total of transient sensor read failures.
func New(reg prometheus.Registerer, readFailures func() uint64) *Metrics {
	m := &Metrics{
		attitude: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fbw_attitude_degrees",
			Help: "Fused attitude.",
		}, []string{"axis"}),
		setpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fbw_setpoint_degrees",
			Help: "Attitude setpoint of the active mode.",
		}, []string{"axis"}),
		rawTilt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fbw_raw_tilt_degrees",
			Help: "Tilt from the accelerometer alone.",
		}, []string{"axis"}),
		mode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fbw_mode",
			Help: "Active flight mode: 0 direct, 1 normal, 2 auto, 3 tune, 4 hold.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fbw_mode_transitions_total",
			Help: "Mode changes by entered mode.",
		}, []string{"mode"}),
		aahrsSafe: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fbw_aahrs_safe",
			Help: "1 while the AAHRS is trusted.",
		}),
		gpsSafe: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fbw_gps_safe",
			Help: "1 while the GPS is trusted.",
		}),
		waypoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fbw_waypoint",
			Help: "Active waypoint index, -1 outside auto.",
		}),
		throttle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fbw_throttle_percent",
			Help: "Throttle output.",
		}),
		holdPhase: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fbw_hold_phase",
			Help: "Phase of the hold pattern.",
		}),
		cpuTemp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fbw_cpu_temp",
			Help: "Board temperature, degrees C.",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fbw_ticks_total",
			Help: "Control loop ticks.",
		}),
	}
	reg.MustRegister(m.attitude, m.setpoint, m.rawTilt, m.mode, m.transitions,
		m.aahrsSafe, m.gpsSafe, m.waypoint, m.throttle, m.holdPhase, m.cpuTemp, m.ticks)
	if readFailures != nil {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "fbw_aahrs_read_failures_total",
			Help: "Transient AAHRS read failures.",
		}, func() float64 { return float64(readFailures()) }))
	}
	return m
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// setAxes skips non-finite values, an invalid attitude reads +Inf.
func setAxes(v *prometheus.GaugeVec, roll, pitch, yaw float64) {
	for axis, x := range map[string]float64{"roll": roll, "pitch": pitch, "yaw": yaw} {
		if math.IsInf(x, 0) || math.IsNaN(x) {
			continue
		}
		v.WithLabelValues(axis).Set(x)
	}
}

func (m *Metrics) ModeChanged(from, to modes.Mode) {
	m.transitions.WithLabelValues(to.String()).Inc()
	m.mode.Set(float64(to))
}

func (m *Metrics) Tick(s modes.Status) {
	m.last.Store(&s)
	m.ticks.Inc()
	m.mode.Set(float64(s.Mode))
	m.aahrsSafe.Set(b2f(s.Safety.AAHRSSafe))
	m.gpsSafe.Set(b2f(s.Safety.GPSSafe))
	m.waypoint.Set(float64(s.Waypoint))
	m.throttle.Set(s.Throttle)
	m.holdPhase.Set(float64(s.HoldPhase))
	setAxes(m.attitude, s.Attitude.Roll, s.Attitude.Pitch, s.Attitude.Yaw)
	m.setpoint.WithLabelValues("roll").Set(s.RollSet)
	m.setpoint.WithLabelValues("pitch").Set(s.PitchSet)
}

// WatchRawAngles exports the latest raw tilt every period until ctx is done.
func (m *Metrics) WatchRawAngles(ctx context.Context, c *aahrs.AngleCache, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	var gen uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		a, ok := c.Load()
		if !ok || a.Gen == gen {
			continue
		}
		gen = a.Gen
		setAxes(m.rawTilt, a.Roll, a.Pitch, a.Yaw)
	}
}

// SetCpuTemp is a common.CpuTempUpdateFunc.
func (m *Metrics) SetCpuTemp(t float32) {
	if common.IsCPUTempValid(t) {
		m.cpuTemp.Set(float64(t))
	}
}

type statusJSON struct {
	Mode      string
	AAHRSSafe bool
	GPSSafe   bool
	Roll      float64
	Pitch     float64
	Yaw       float64
	RollSet   float64
	PitchSet  float64
	Waypoint  int
	Throttle  float64
	HoldPhase string
}

func finite(x float64) float64 {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return 0
	}
	return x
}

// ServeHTTP writes the last status as JSON.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := m.last.Load()
	if s == nil {
		http.Error(w, "no status yet", http.StatusServiceUnavailable)
		return
	}
	out := statusJSON{
		Mode:      s.Mode.String(),
		AAHRSSafe: s.Safety.AAHRSSafe,
		GPSSafe:   s.Safety.GPSSafe,
		Roll:      finite(s.Attitude.Roll),
		Pitch:     finite(s.Attitude.Pitch),
		Yaw:       finite(s.Attitude.Yaw),
		RollSet:   s.RollSet,
		PitchSet:  s.PitchSet,
		Waypoint:  s.Waypoint,
		Throttle:  s.Throttle,
		HoldPhase: s.HoldPhase.String(),
	}
	w.Header().Set("Content-Type", "application/json")
	statusJSON, _ := json.Marshal(&out)
	w.Write(statusJSON)
}
