package sim

import (
	"context"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/ellsl/internal/elapi"
	"github.com/srg/ellsl/internal/groutine"
	"github.com/srg/ellsl/internal/ringchan"
)

// notification is one queued callback: an event, or a sample when sample is set
type notification struct {
	event  elapi.Event
	sample *elapi.GazeSample
}

// Client is a connection of one process to the simulated service.
// Its state is guarded by the server mutex.
type Client struct {
	server *Server
	name   string
	logger *logrus.Logger

	connected    bool
	trackingRate int
	notify       *ringchan.RingChannel[notification]

	onEvent  elapi.EventListener
	onSample elapi.GazeSampleListener
}

var _ elapi.Client = (*Client)(nil)

// Connect connects to the service on the local machine
func (c *Client) Connect(ctx context.Context) elapi.ReturnConnect {
	return c.connect(ctx, c.server.cfg.Address)
}

// ConnectRemote connects to the service at the given address
func (c *Client) ConnectRemote(ctx context.Context, server elapi.ServerInfo) elapi.ReturnConnect {
	return c.connect(ctx, server)
}

func (c *Client) connect(ctx context.Context, addr elapi.ServerInfo) elapi.ReturnConnect {
	if ctx.Err() != nil {
		return elapi.ConnectFailure
	}

	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := c.logger.WithFields(logrus.Fields{
		"client": c.name,
		"server": addr.String(),
	})

	if c.connected {
		return elapi.ConnectSuccess
	}
	if !s.running || addr != s.cfg.Address {
		logger.Warn("Simulated service unreachable")
		return elapi.ConnectFailure
	}
	if s.cfg.VersionMismatch {
		logger.Warn("Simulated service rejected client version")
		return elapi.ConnectVersionMismatch
	}

	c.connected = true
	c.notify = ringchan.New[notification](s.cfg.NotifyBuffer)
	notify := c.notify
	groutine.Go(context.Background(), "sim-notifier-"+c.name, func(ctx context.Context) {
		c.runNotifier(notify)
	})
	s.clients[c] = struct{}{}

	logger.Info("Client connected to simulated service")
	return elapi.ConnectSuccess
}

// RequestServerList reports the announced services after a discovery delay
func (c *Client) RequestServerList(ctx context.Context, blocking time.Duration) []elapi.ServerInfo {
	wait := min(blocking, c.server.cfg.DiscoveryDelay)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}

	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	return slices.Clone(s.cfg.Announced)
}

// Disconnect leaves the service; queued callbacks are still delivered
func (c *Client) Disconnect() {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if !c.connected {
		return
	}
	c.connected = false
	c.trackingRate = 0
	delete(s.clients, c)
	c.notify.Close()
	s.reconcileLocked()

	c.logger.WithField("client", c.name).Info("Client disconnected from simulated service")
}

func (c *Client) IsConnected() bool {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()

	return c.connected
}

func (c *Client) ActiveScreen() elapi.ScreenConfig {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if !c.connected {
		return elapi.ScreenConfig{}
	}
	return s.screen
}

func (c *Client) DeviceConfig() elapi.DeviceConfig {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if !c.connected || !s.devicePresent {
		return elapi.DeviceConfig{}
	}
	return elapi.DeviceConfig{
		DeviceSerial:       s.cfg.Serial,
		FrameRates:         slices.Clone(s.cfg.FrameRates),
		CalibrationMethods: slices.Clone(s.cfg.CalibrationMethods),
	}
}

func (c *Client) RequestTracking(frameRateModeIndex int) elapi.ReturnStart {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case !c.connected:
		return elapi.StartNotConnected
	case !s.devicePresent:
		return elapi.StartDeviceMissing
	case frameRateModeIndex < 0 || frameRateModeIndex >= len(s.cfg.FrameRates):
		return elapi.StartInvalidFramerateMode
	}

	rate := int(s.cfg.FrameRates[frameRateModeIndex])
	if other := s.trackingRateLocked(c); other != 0 && other != rate {
		c.logger.WithFields(logrus.Fields{
			"client":    c.name,
			"requested": rate,
			"running":   other,
		}).Warn("Tracking already runs at a different rate")
		return elapi.StartAlreadyRunningDifferentFramerate
	}

	c.trackingRate = rate
	s.reconcileLocked()
	return elapi.StartSuccess
}

func (c *Client) UnrequestTracking() {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	c.trackingRate = 0
	s.reconcileLocked()
}

// Calibrate blocks for the configured calibration duration
func (c *Client) Calibrate(calibrationModeIndex int) elapi.ReturnCalibrate {
	s := c.server
	s.mu.Lock()
	switch {
	case !c.connected:
		s.mu.Unlock()
		return elapi.CalibrateNotConnected
	case calibrationModeIndex < 0 || calibrationModeIndex >= len(s.cfg.CalibrationMethods):
		s.mu.Unlock()
		return elapi.CalibrateInvalidCalibrationMode
	case s.rate == 0:
		s.mu.Unlock()
		return elapi.CalibrateNotTracking
	case s.busy:
		s.mu.Unlock()
		return elapi.CalibrateAlreadyBusy
	}
	abort := s.beginBusyLocked()
	points := s.cfg.CalibrationMethods[calibrationModeIndex]
	s.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"client": c.name,
		"points": points,
	}).Info("Simulated calibration running")

	completed := s.waitBusy(abort)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.endBusyLocked()
	if !completed {
		return elapi.CalibrateFailure
	}
	s.calibrated = true
	return elapi.CalibrateSuccess
}

// Validate blocks for the configured duration and reports the four targets
func (c *Client) Validate() (elapi.ReturnValidate, elapi.ValidationResult) {
	s := c.server
	s.mu.Lock()
	switch {
	case !c.connected:
		s.mu.Unlock()
		return elapi.ValidateNotConnected, elapi.ValidationResult{}
	case s.rate == 0:
		s.mu.Unlock()
		return elapi.ValidateNotTracking, elapi.ValidationResult{}
	case !s.calibrated:
		s.mu.Unlock()
		return elapi.ValidateNotCalibrated, elapi.ValidationResult{}
	case s.busy:
		s.mu.Unlock()
		return elapi.ValidateAlreadyBusy, elapi.ValidationResult{}
	}
	abort := s.beginBusyLocked()
	s.mu.Unlock()

	completed := s.waitBusy(abort)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.endBusyLocked()
	if !completed {
		return elapi.ValidateFailure, elapi.ValidationResult{}
	}
	return elapi.ValidateSuccess, s.validationReport()
}

// AbortCalibValidation cancels a running calibration or validation
func (c *Client) AbortCalibValidation() {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	s.abortLocked()
}

func (c *Client) RegisterEventListener(listener elapi.EventListener) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()

	c.onEvent = listener
}

func (c *Client) RegisterGazeSampleListener(listener elapi.GazeSampleListener) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()

	c.onSample = listener
}

// post queues a callback; the caller holds the server mutex
func (c *Client) post(n notification) {
	if dropped := c.notify.ForceSend(n); dropped {
		c.logger.WithField("client", c.name).Debug("Notification backlog full, oldest dropped")
	}
}

// runNotifier delivers queued callbacks until the connection's queue is closed and drained
func (c *Client) runNotifier(notify *ringchan.RingChannel[notification]) {
	for {
		n, ok := notify.Receive()
		if !ok {
			return
		}

		c.server.mu.Lock()
		onEvent, onSample := c.onEvent, c.onSample
		c.server.mu.Unlock()

		if n.sample != nil {
			if onSample != nil {
				onSample(*n.sample)
			}
			continue
		}
		if onEvent != nil {
			onEvent(n.event)
		}
	}
}

func (s *Server) beginBusyLocked() <-chan struct{} {
	s.busy = true
	s.abort = make(chan struct{})
	return s.abort
}

func (s *Server) endBusyLocked() {
	s.busy = false
	s.abort = nil
}
