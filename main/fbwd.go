/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	fbwd.go: Service entry point of the flight controller daemon.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/takama/daemon"

	"github.com/b3nn0/fbw/common"
	"github.com/b3nn0/fbw/config"
)

const (
	// name of the service
	name        = "fbwd"
	description = "fly-by-wire flight controller"

	calibrationTimeout = 5 * time.Minute
)

// Service has embedded daemon
type Service struct {
	daemon.Daemon
	log *logrus.Logger
}

// Manage by daemon commands or run the daemon
func (service *Service) Manage() (string, error) {
	configPath := flag.String("config", config.DefaultLocation, "settings file")
	sim := flag.Bool("sim", false, "run on simulated sensors and outputs")
	calibrate := flag.Bool("calibrate", false, "calibrate the AAHRS on a level, still aircraft and exit")
	forget := flag.Bool("forget", false, "erase the calibration and tuning and exit")
	writeConfig := flag.Bool("writeconfig", false, "write the settings in use to the settings file and exit")
	flag.Parse()

	usage := "Usage: " + name + " install | remove | start | stop | status"
	// if received any kind of command, do it
	if flag.NArg() > 0 {
		command := flag.Arg(0)
		switch command {
		case "install":
			return service.Install()
		case "remove":
			return service.Remove()
		case "start":
			return service.Start()
		case "stop":
			return service.Stop()
		case "status":
			return service.Status()
		default:
			return usage, nil
		}
	}

	log := service.log
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warnf("%s, using defaults", err)
	}
	applyLogLevel(log, cfg)
	if *writeConfig {
		if err := cfg.Save(*configPath); err != nil {
			return "", err
		}
		return "settings written to " + *configPath, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if !*sim {
		initLogging(ctx, log, cfg.General.LogFile)
		if !common.IsRunningAsRoot() {
			log.Warn("not running as root, GPIO and I2C access may fail")
		}
	}

	fc, err := newFlightController(cfg, *sim, log)
	if err != nil {
		return "", err
	}
	defer fc.Close()

	if *forget {
		if err := fc.Forget(); err != nil {
			return "", err
		}
		return "calibration and tuning erased", nil
	}
	if *calibrate {
		cctx, ccancel := context.WithTimeout(ctx, calibrationTimeout)
		defer ccancel()
		if err := fc.Calibrate(cctx); err != nil {
			return "", err
		}
		return "calibration complete", nil
	}

	done := make(chan struct{})
	go func() {
		fc.Run(ctx)
		close(done)
	}()

	// Set up channel on which to send signal notifications.
	// We must use a buffered channel or risk missing the signal
	// if we're not ready to receive when the signal is sent.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	mux := http.NewServeMux()
	mux.Handle("/", fc.metrics)
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.General.MetricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server: %s", err)
		}
	}()
	defer srv.Close()

	// interrupt by system signal
	for {
		killSignal := <-interrupt
		log.Infof("Got signal: %s", killSignal)
		if killSignal == syscall.SIGUSR1 {
			reloaded, err := config.Load(*configPath)
			if err != nil {
				log.Errorf("%s, keeping the running settings", err)
				continue
			}
			applyLogLevel(log, reloaded)
			fc.ReloadFlightplan(reloaded.General.Flightplan)
			continue
		}
		cancel()
		<-done
		if killSignal == syscall.SIGINT {
			return "Daemon was interrupted by system signal", nil
		}
		return "Daemon was killed", nil
	}
}

func applyLogLevel(log *logrus.Logger, cfg *config.Config) {
	if cfg.General.Debug {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

func main() {
	log := logrus.New()
	srv, err := daemon.New(name, description, daemon.SystemDaemon)
	if err != nil {
		log.Errorf("Error: %s", err)
		os.Exit(1)
	}
	service := &Service{Daemon: srv, log: log}
	status, err := service.Manage()
	if err != nil {
		log.Errorf("%s\nError: %s", status, err)
		os.Exit(1)
	}
	fmt.Println(status)
}
