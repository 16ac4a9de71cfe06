// Package sim is an in-process EyeLogic service. It serves any number of
// clients, drives a synthetic gaze generator while at least one client
// requests tracking, and delivers callbacks from a per-connection
// notification goroutine like the vendor binding does.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/ellsl/internal/elapi"
)

// Config describes the simulated service and its device
type Config struct {
	Serial              uint64        `default:"18446744"`
	CalibrationDuration time.Duration `default:"1500ms"`
	DiscoveryDelay      time.Duration `default:"50ms"`
	NotifyBuffer        int           `default:"512"`
	// BlinkEvery marks every n-th frame as the start of a 3-frame blink; 0 disables
	BlinkEvery int `default:"120"`

	// DeviceAbsent starts the service without a tracker attached
	DeviceAbsent bool
	// VersionMismatch makes every connect fail with ConnectVersionMismatch
	VersionMismatch bool

	FrameRates         []uint8
	CalibrationMethods []uint8
	Screen             elapi.ScreenConfig
	Address            elapi.ServerInfo
	// Announced is what RequestServerList reports; defaults to Address
	Announced []elapi.ServerInfo
}

// DefaultConfig returns a service with a 60/250 Hz tracker and a full HD screen
func DefaultConfig() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	defaults.SetDefaults(c)
	if len(c.FrameRates) == 0 {
		c.FrameRates = []uint8{60, 250}
	}
	if len(c.CalibrationMethods) == 0 {
		c.CalibrationMethods = []uint8{1, 5, 9}
	}
	if c.Screen.ResolutionX == 0 || c.Screen.ResolutionY == 0 {
		c.Screen = elapi.ScreenConfig{
			LocalMachine:    true,
			ID:              "\\\\.\\DISPLAY1",
			Name:            "Simulated Display",
			ResolutionX:     1920,
			ResolutionY:     1080,
			PhysicalSizeXmm: 531.4,
			PhysicalSizeYmm: 298.9,
		}
	}
	if c.Address.IP == "" {
		c.Address = elapi.ServerInfo{IP: "127.0.0.1", Port: elapi.DefaultPort}
	}
	if len(c.Announced) == 0 {
		c.Announced = []elapi.ServerInfo{c.Address}
	}
}

// Server is the simulated service shared by its clients.
// One mutex guards the whole service state including every client's flags.
type Server struct {
	mu     sync.Mutex
	cfg    Config
	logger *logrus.Logger

	running       bool
	devicePresent bool
	screen        elapi.ScreenConfig
	clients       map[*Client]struct{}

	// generator state; rate is 0 while idle
	rate          int
	frame         int32
	stopGenerator context.CancelFunc
	epoch         time.Time

	calibrated bool
	busy       bool
	abort      chan struct{}
}

// NewServer creates a running service. Zero fields of cfg take their defaults.
func NewServer(cfg Config, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	cfg.applyDefaults()

	return &Server{
		cfg:           cfg,
		logger:        logger,
		running:       true,
		devicePresent: !cfg.DeviceAbsent,
		screen:        cfg.Screen,
		clients:       make(map[*Client]struct{}),
		epoch:         time.Now(),
	}
}

// Config returns the effective configuration
func (s *Server) Config() Config {
	return s.cfg
}

// ClientFactory returns an elapi.ClientFactory creating clients of this service
func (s *Server) ClientFactory() elapi.ClientFactory {
	return func(clientName string, logger *logrus.Logger) (elapi.Client, error) {
		return s.NewClient(clientName, logger)
	}
}

// NewClient creates a disconnected client binding
func (s *Server) NewClient(clientName string, logger *logrus.Logger) (*Client, error) {
	if clientName == "" {
		return nil, fmt.Errorf("client name is required")
	}
	if logger == nil {
		logger = s.logger
	}
	return &Client{server: s, name: clientName, logger: logger}, nil
}

// PlugDevice attaches the tracker and notifies connected clients
func (s *Server) PlugDevice() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.devicePresent {
		return
	}
	s.devicePresent = true
	s.calibrated = false
	s.logger.WithField("serial", s.cfg.Serial).Info("Simulated device connected")
	s.broadcastLocked(elapi.EventDeviceConnected)
}

// UnplugDevice detaches the tracker, which ends tracking for every client
func (s *Server) UnplugDevice() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.devicePresent {
		return
	}
	s.devicePresent = false
	s.calibrated = false
	for c := range s.clients {
		c.trackingRate = 0
	}
	s.stopGeneratorLocked()
	s.logger.WithField("serial", s.cfg.Serial).Info("Simulated device disconnected")
	s.broadcastLocked(elapi.EventDeviceDisconnected)
}

// ChangeScreen replaces the active screen and notifies connected clients
func (s *Server) ChangeScreen(screen elapi.ScreenConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.screen = screen
	s.broadcastLocked(elapi.EventScreenChanged)
}

// Stop shuts the service down; every client receives ConnectionClosed and is disconnected
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	s.stopGeneratorLocked()
	s.abortLocked()

	for c := range s.clients {
		c.connected = false
		c.trackingRate = 0
		c.post(notification{event: elapi.EventConnectionClosed})
		c.notify.Close()
		delete(s.clients, c)
	}
	s.logger.Info("Simulated service stopped")
}

// Start brings a stopped service back; clients have to connect again
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = true
}

// Tracking returns the rate the device runs at, 0 when idle
func (s *Server) Tracking() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rate
}

func (s *Server) broadcastLocked(ev elapi.Event) {
	for c := range s.clients {
		c.post(notification{event: ev})
	}
}

func (s *Server) abortLocked() {
	if s.busy && s.abort != nil {
		close(s.abort)
		s.abort = nil
	}
}

// trackingRateLocked returns the rate another client than self holds the device at
func (s *Server) trackingRateLocked(self *Client) int {
	for c := range s.clients {
		if c != self && c.trackingRate != 0 {
			return c.trackingRate
		}
	}
	return 0
}

// reconcileLocked starts, restarts or stops the generator to match the client requests
func (s *Server) reconcileLocked() {
	want := 0
	for c := range s.clients {
		if c.trackingRate != 0 {
			want = c.trackingRate
			break
		}
	}
	if want == s.rate {
		return
	}

	wasRunning := s.rate != 0
	s.stopGeneratorLocked()
	if want == 0 {
		if wasRunning {
			s.broadcastLocked(elapi.EventTrackingStopped)
		}
		return
	}
	s.startGeneratorLocked(want)
}

// waitBusy runs one calibration or validation procedure outside the lock.
// Returns false when the procedure was aborted.
func (s *Server) waitBusy(abort <-chan struct{}) bool {
	timer := time.NewTimer(s.cfg.CalibrationDuration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-abort:
		return false
	}
}
