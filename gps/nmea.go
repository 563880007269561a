/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	nmea.go: Serial NMEA receiver.
*/

package gps

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

const knotsToMPS = 0.514444

// NMEA reads RMC, GGA and GSA sentences from a serial receiver.
type NMEA struct {
	Device string
	Baud   int

	log *logrus.Entry

	mu        sync.Mutex
	fix       Fix
	has       bool
	sentences uint64
	alt       altCalibrator

	now func() time.Time
}

// NewNMEA returns a receiver on device. Nothing is opened until Run.
func NewNMEA(device string, baud int, log *logrus.Logger) *NMEA {
	return &NMEA{
		Device: device,
		Baud:   baud,
		log:    log.WithField("sys", "gps"),
		now:    time.Now,
	}
}

// Run opens the port and consumes sentences until ctx is done. A lost port
// is reopened after a second.
func (g *NMEA) Run(ctx context.Context) {
	for {
		port, err := serial.OpenPort(&serial.Config{Name: g.Device, Baud: g.Baud, ReadTimeout: 2500 * time.Millisecond})
		if err != nil {
			g.log.Debugf("open %s: %s", g.Device, err)
		} else {
			g.log.Infof("reading %s at %d baud", g.Device, g.Baud)
			done := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					port.Close()
				case <-done:
				}
			}()
			g.read(ctx, port)
			close(done)
			port.Close()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (g *NMEA) read(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		s := scanner.Text()
		startIdx := strings.Index(s, "$")
		if startIdx < 0 {
			continue
		}
		if !g.process(s[startIdx:]) {
			g.log.Debugf("sentence ignored: %s", s)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		g.log.Warnf("reading %s: %s", g.Device, err)
	}
}

// process applies one sentence to the fix, reporting whether it was used.
func (g *NMEA) process(line string) bool {
	s, err := nmea.Parse(line)
	if err != nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sentences++

	switch m := s.(type) {
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			g.fix.Quality = 0
			return true
		}
		g.fix.Lat = m.Latitude
		g.fix.Lng = m.Longitude
		g.fix.Speed = m.Speed * knotsToMPS
		g.fix.Course = m.Course
		g.fix.Time = g.now()
		g.has = true
	case nmea.GGA:
		q, err := strconv.Atoi(m.FixQuality)
		if err != nil {
			return false
		}
		g.fix.Quality = q
		g.fix.Satellites = int(m.NumSatellites)
		if q == 0 {
			return true
		}
		g.fix.Alt = m.Altitude
		g.alt.add(m.Altitude)
	case nmea.GSA:
		g.fix.PDOP = m.PDOP
		g.fix.HDOP = m.HDOP
		g.fix.VDOP = m.VDOP
	default:
		return false
	}
	return true
}

func (g *NMEA) Fix() (Fix, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fix, g.has
}

func (g *NMEA) Supported() bool {
	return g.Device != ""
}

func (g *NMEA) CalibrateAltOffset(n int) {
	g.mu.Lock()
	g.alt.start(n)
	g.mu.Unlock()
	g.log.Infof("calibrating altitude offset over %d fixes", n)
}

func (g *NMEA) AltOffset() (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.alt.offset, g.alt.calibrated
}

// Sentences returns the number of sentences parsed so far.
func (g *NMEA) Sentences() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sentences
}
