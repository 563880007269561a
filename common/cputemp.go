/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	cputemp.go: Board temperature monitor, reported alongside the control loop metrics.
*/

package common

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"
)

const InvalidCpuTemp = float32(-99.0)

// ThermalZone is the sysfs file holding the board temperature in millidegrees.
var ThermalZone = "/sys/class/thermal/thermal_zone0/temp"

type CpuTempUpdateFunc func(cpuTemp float32)

/* CpuTempMonitor reads the board temperature every second and calls a
callback. It runs as its own goroutine because reading the sysfs file can
hang for quite some time on the RPi, and the control loop must never wait
on it. */
func CpuTempMonitor(ctx context.Context, updater CpuTempUpdateFunc) {
	timer := time.NewTicker(1 * time.Second)
	defer timer.Stop()
	for {
		updater(ReadCpuTemp())
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// ReadCpuTemp returns the current board temperature in degrees C, or InvalidCpuTemp.
func ReadCpuTemp() float32 {
	temp, err := os.ReadFile(ThermalZone)
	if err != nil {
		return InvalidCpuTemp
	}
	tInt, err := strconv.Atoi(strings.Trim(string(temp), "\n"))
	if err != nil {
		return InvalidCpuTemp
	}
	if tInt > 1000 {
		return float32(tInt) / float32(1000.0)
	}
	return float32(tInt) // case where Temp is returned as simple integer
}

// Check if CPU temperature is valid. Assume <= 0 is invalid.
func IsCPUTempValid(cpuTemp float32) bool {
	return cpuTemp > 0
}
