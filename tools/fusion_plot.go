/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	fusion_plot.go: Replay logged IMU samples through the fusion filter and plot the attitude.
*/

package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/b3nn0/fbw/aahrs"
	"github.com/b3nn0/fbw/common"
	"github.com/b3nn0/fbw/madgwick"
)

// sample is one CSV line: gyro deg/s, accel g, mag in any unit.
type sample [9]float64

func parseSamples(r io.Reader) ([]sample, error) {
	scanner := bufio.NewScanner(r)
	vals := make([]sample, 0)
	for scanner.Scan() {
		x := strings.Split(strings.TrimSpace(scanner.Text()), ",")
		if len(x) < 9 {
			continue
		}
		var s sample
		ok := true
		for i := range s {
			v, err := strconv.ParseFloat(strings.TrimSpace(x[i]), 64)
			if err != nil {
				ok = false
				break
			}
			s[i] = v
		}
		if ok {
			vals = append(vals, s)
		}
	}
	return vals, scanner.Err()
}

// replay returns roll, pitch and yaw in degrees over the sample index.
func replay(samples []sample, hz, beta float64, useMag bool) (roll, pitch, yaw plotter.XYs, err error) {
	f := madgwick.New()
	defer f.Destroy()
	if err := f.SetParams(hz, beta); err != nil {
		return nil, nil, nil, err
	}
	roll = make(plotter.XYs, 0, len(samples))
	pitch = make(plotter.XYs, 0, len(samples))
	yaw = make(plotter.XYs, 0, len(samples))
	for i, s := range samples {
		mx, my, mz := s[6], s[7], s[8]
		if !useMag {
			mx, my, mz = 0, 0, 0
		}
		if err := f.Update(common.Radians(s[0]), common.Radians(s[1]), common.Radians(s[2]), s[3], s[4], s[5], mx, my, mz); err != nil {
			return nil, nil, nil, fmt.Errorf("sample %d: %w", i, err)
		}
		r, p, y, err := f.Angles()
		if err != nil {
			return nil, nil, nil, err
		}
		t := float64(i) / hz
		roll = append(roll, plotter.XY{X: t, Y: common.Degrees(r)})
		pitch = append(pitch, plotter.XY{X: t, Y: common.Degrees(p)})
		yaw = append(yaw, plotter.XY{X: t, Y: common.WrapDegrees360(common.Degrees(y))})
	}
	return roll, pitch, yaw, nil
}

func main() {
	in := flag.String("in", "imu.csv", "logged samples: gx,gy,gz,ax,ay,az,mx,my,mz")
	out := flag.String("out", "fusion.png", "output image")
	hz := flag.Float64("hz", aahrs.Frequency, "sample rate")
	beta := flag.Float64("beta", aahrs.Beta, "filter gain")
	useMag := flag.Bool("mag", false, "fuse the magnetometer")
	flag.Parse()

	file, err := os.Open(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
	defer file.Close()
	samples, err := parseSamples(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", *in, err)
		os.Exit(1)
	}

	roll, pitch, yaw, err := replay(samples, *hz, *beta, *useMag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Fusion replay, beta %.3f", *beta)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Degrees"
	if err := plotutil.AddLines(p, "Roll", roll, "Pitch", pitch, "Yaw", yaw); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
	if err := p.Save(12*vg.Inch, 6*vg.Inch, *out); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
	fmt.Printf("%d samples plotted to %s\n", len(samples), *out)
}
