package main

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/ellsl/internal/elapi"
	"github.com/srg/ellsl/internal/elapi/sim"
	"github.com/srg/ellsl/internal/outlet"
	"github.com/srg/ellsl/internal/outlet/wsoutlet"
	"github.com/srg/ellsl/pkg/config"
	"github.com/srg/ellsl/session"
)

// app wires the configured service, the outlet transport and the metrics registry
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	service  *sim.Server
	registry *prometheus.Registry
	metrics  *wsoutlet.Metrics

	// most recently opened outlet, for printing its URL
	current atomic.Pointer[wsoutlet.Outlet]
}

// newApp loads the configuration named by --config and configures logging from flags
func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, "verbose", cfg)
	if err != nil {
		return nil, err
	}

	return newAppWithConfig(cfg, logger)
}

func newAppWithConfig(cfg *config.Config, logger *logrus.Logger) (*app, error) {
	simCfg, err := simulatorConfig(cfg.Simulator)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	return &app{
		cfg:      cfg,
		logger:   logger,
		service:  sim.NewServer(simCfg, logger),
		registry: registry,
		metrics:  wsoutlet.NewMetrics(registry),
	}, nil
}

// simulatorConfig translates the file configuration into the simulated service's
func simulatorConfig(c config.SimulatorConfig) (sim.Config, error) {
	addr, err := elapi.ParseServerInfo(c.Address)
	if err != nil {
		return sim.Config{}, fmt.Errorf("simulator.address: %w", err)
	}

	cfg := sim.DefaultConfig()
	cfg.Address = addr
	cfg.Announced = []elapi.ServerInfo{addr}
	cfg.Serial = c.Serial
	cfg.FrameRates = toModes(c.FrameRates)
	cfg.CalibrationMethods = toModes(c.CalibrationMethods)
	cfg.Screen.ResolutionX = c.ScreenWidth
	cfg.Screen.ResolutionY = c.ScreenHeight
	cfg.Screen.PhysicalSizeXmm = c.ScreenWidthMm
	cfg.Screen.PhysicalSizeYmm = c.ScreenHeightMm
	cfg.CalibrationDuration = c.CalibrationDuration
	cfg.BlinkEvery = c.BlinkEvery
	cfg.DeviceAbsent = c.DeviceAbsent
	return cfg, nil
}

// toModes narrows validated 1..255 values to the service's mode lists
func toModes(values []int) []uint8 {
	modes := make([]uint8, len(values))
	for i, v := range values {
		modes[i] = uint8(v)
	}
	return modes
}

// outletFactory opens WebSocket outlets sharing the app metrics
func (a *app) outletFactory() outlet.Factory {
	opts := wsoutlet.Options{
		ListenAddr:   a.cfg.Outlet.ListenAddr,
		Path:         a.cfg.Outlet.Path,
		QueueSize:    a.cfg.Outlet.QueueSize,
		WriteTimeout: a.cfg.Outlet.WriteTimeout,
		Metrics:      a.metrics,
		Gatherer:     a.registry,
		Logger:       a.logger,
	}
	return func(info outlet.StreamInfo) (outlet.Outlet, error) {
		o, err := wsoutlet.New(info, opts)
		if err != nil {
			return nil, err
		}
		a.current.Store(o)
		return o, nil
	}
}

func (a *app) newSession() (*session.Session, error) {
	return session.New(session.Options{
		ClientName:    a.cfg.ClientName,
		NotifyBuffer:  a.cfg.NotifyBuffer,
		EventBuffer:   a.cfg.EventBuffer,
		ClientFactory: a.service.ClientFactory(),
		OutletFactory: a.outletFactory(),
		Logger:        a.logger,
	})
}

// streamURL is the subscribe URL of the most recent outlet
func (a *app) streamURL() string {
	if o := a.current.Load(); o != nil {
		return o.URL()
	}
	return ""
}

func (a *app) close() {
	a.service.Stop()
}
