// Package session bridges an EyeLogic service connection to a push outlet.
//
// A Session is one aggregate behind one mutex. The service delivers events
// and samples on its own goroutine; the listeners registered here only
// enqueue them, and a dispatcher goroutine applies them under the lock.
// Registering listeners while holding the lock therefore cannot deadlock,
// even when a binding calls a listener synchronously.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/ellsl/internal/elapi"
	"github.com/srg/ellsl/internal/groutine"
	"github.com/srg/ellsl/internal/outlet"
	"github.com/srg/ellsl/internal/ringchan"
)

// Options configure a Session
type Options struct {
	ClientName string `default:"ellsl"`
	// NotifyBuffer bounds pending service callbacks; the oldest is dropped on overflow
	NotifyBuffer int `default:"1024"`
	// EventBuffer bounds processed events waiting on Events()
	EventBuffer int `default:"64"`

	ClientFactory elapi.ClientFactory
	OutletFactory outlet.Factory
	Logger        *logrus.Logger
}

// notification is one service callback waiting for the dispatcher
type notification struct {
	event  elapi.Event
	sample *elapi.GazeSample
}

// Session owns the service connection, the capability cache and the outlet
type Session struct {
	mu     sync.Mutex
	logger *logrus.Logger

	clientName string
	newClient  elapi.ClientFactory
	newOutlet  outlet.Factory

	// client is nil until the first connect attempt
	client    elapi.Client
	abortable atomic.Pointer[elapi.Client]
	out       outlet.Outlet
	screenCfg *elapi.ScreenConfig
	deviceCfg *elapi.DeviceConfig
	// value (Hz or points) to the mode index the service expects
	rateModes        map[int]int
	calibrationModes map[int]int

	notify         *ringchan.RingChannel[notification]
	events         *ringchan.RingChannel[elapi.Event]
	dispatcherDone <-chan struct{}
	dispatched     atomic.Int64
	closed         bool
}

// New creates a disconnected session
func New(opts Options) (*Session, error) {
	defaults.SetDefaults(&opts)
	if opts.ClientFactory == nil {
		return nil, fmt.Errorf("client factory is required")
	}
	if opts.OutletFactory == nil {
		return nil, fmt.Errorf("outlet factory is required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	return &Session{
		logger:           opts.Logger,
		clientName:       opts.ClientName,
		newClient:        opts.ClientFactory,
		newOutlet:        opts.OutletFactory,
		rateModes:        map[int]int{},
		calibrationModes: map[int]int{},
		notify:           ringchan.New[notification](opts.NotifyBuffer),
		events:           ringchan.New[elapi.Event](opts.EventBuffer),
	}, nil
}

// Connect connects to the service on the local machine
func (s *Session) Connect(ctx context.Context) elapi.ReturnConnect {
	return s.connect("local", func(c elapi.Client) elapi.ReturnConnect {
		return c.Connect(ctx)
	})
}

// ConnectRemote connects to the service at server
func (s *Session) ConnectRemote(ctx context.Context, server elapi.ServerInfo) elapi.ReturnConnect {
	return s.connect(server.String(), func(c elapi.Client) elapi.ReturnConnect {
		return c.ConnectRemote(ctx, server)
	})
}

func (s *Session) connect(target string, dial func(elapi.Client) elapi.ReturnConnect) elapi.ReturnConnect {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.WithField("server", target)
	if s.closed {
		logger.Warn("Connect on a closed session")
		return elapi.ConnectFailure
	}

	if s.client == nil {
		c, err := s.newClient(s.clientName, s.logger)
		if err != nil {
			logger.WithError(err).Error("Failed to create service client")
			return elapi.ConnectFailure
		}
		s.client = c
		s.abortable.Store(&c)
	}

	ret := dial(s.client)
	if ret != elapi.ConnectSuccess {
		logger.WithField("result", ret).Warn("Connect failed")
		return ret
	}

	s.client.RegisterEventListener(s.enqueueEvent)
	s.client.RegisterGazeSampleListener(s.enqueueSample)
	s.startDispatcher()
	s.refresh()

	logger.Info("Connected to service")
	return ret
}

// Disconnect closes the service connection; the capability cache is kept
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return
	}
	s.client.Disconnect()
	s.logger.Info("Disconnected from service")
}

// RequestTracking starts tracking at rate Hz and makes sure an outlet at that rate exists
func (s *Session) RequestTracking(rate int) elapi.ReturnStart {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.WithField("rate", rate)
	if s.client == nil {
		logger.Warn("Tracking requested before connecting")
		return elapi.StartFailure
	}
	mode, ok := s.rateModes[rate]
	if !ok {
		logger.Warn("Tracking requested at an unsupported rate")
		return elapi.StartInvalidFramerateMode
	}

	ret := s.client.RequestTracking(mode)
	if ret != elapi.StartSuccess {
		logger.WithField("result", ret).Warn("Tracking request refused")
		return ret
	}

	if o, ok := s.liveOutlet(); ok && o.Info().NominalRate == float64(rate) {
		return elapi.StartSuccess
	}
	if err := s.ensureOutlet(rate); err != nil {
		logger.WithError(err).Error("Failed to open outlet, withdrawing tracking request")
		s.client.UnrequestTracking()
		return elapi.StartFailure
	}
	return elapi.StartSuccess
}

// StopTracking withdraws this session's tracking request and closes the outlet.
// The device keeps running while other clients request tracking.
func (s *Session) StopTracking() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return
	}
	s.client.UnrequestTracking()
	s.destroyOutlet()
}

// RequestCalibration runs the calibration with the given number of points; blocks until done
func (s *Session) RequestCalibration(points int) elapi.ReturnCalibrate {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.WithField("points", points)
	if s.client == nil {
		logger.Warn("Calibration requested before connecting")
		return elapi.CalibrateFailure
	}
	mode, ok := s.calibrationModes[points]
	if !ok {
		logger.Warn("Calibration requested with an unsupported point count")
		return elapi.CalibrateInvalidCalibrationMode
	}

	ret := s.client.Calibrate(mode)
	logger.WithField("result", ret).Info("Calibration finished")
	return ret
}

// RequestValidation validates the last calibration; blocks until done
func (s *Session) RequestValidation() (elapi.ReturnValidate, elapi.ValidationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		s.logger.Warn("Validation requested before connecting")
		return elapi.ValidateFailure, elapi.ValidationResult{}
	}

	ret, result := s.client.Validate()
	s.logger.WithField("result", ret).Info("Validation finished")
	return ret, result
}

// AbortCalibration cancels a running calibration or validation.
// It does not take the lock, which the blocked request holds.
func (s *Session) AbortCalibration() {
	if c := s.abortable.Load(); c != nil {
		(*c).AbortCalibValidation()
	}
}

// Close disconnects, closes the outlet and stops the dispatcher. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true

	if s.client != nil {
		s.client.RegisterEventListener(nil)
		s.client.RegisterGazeSampleListener(nil)
		s.client.Disconnect()
	}
	s.destroyOutlet()
	s.notify.Close()
	done := s.dispatcherDone
	s.mu.Unlock()

	// the dispatcher takes the lock, so wait outside it
	if done != nil {
		<-done
	}
	s.events.Close()
	s.logger.Info("Session closed")
}

// IsConnected reports whether the service connection is up
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connected()
}

// IsStreaming reports whether the session is connected and an outlet is open
func (s *Session) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.liveOutlet()
	return s.connected() && ok
}

// HasConsumers reports whether an outlet is open and has at least one consumer
func (s *Session) HasConsumers() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.liveOutlet()
	return ok && o.HaveConsumers()
}

// StreamInfo returns the description of the open outlet
func (s *Session) StreamInfo() (outlet.StreamInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.liveOutlet()
	if !ok {
		return outlet.StreamInfo{}, false
	}
	return o.Info(), true
}

// Events delivers every handled service event. The channel is closed by Close.
func (s *Session) Events() <-chan elapi.Event {
	return s.events.C()
}

// NotificationStats counts service callbacks
type NotificationStats struct {
	Received   int64
	Dispatched int64
	// Dropped were overwritten before the dispatcher reached them
	Dropped int64
}

// NotificationStats reports callback traffic since the session was created
func (s *Session) NotificationStats() NotificationStats {
	m := s.notify.GetMetrics()
	return NotificationStats{
		Received:   m.Written,
		Dispatched: s.dispatched.Load(),
		Dropped:    m.Overwritten,
	}
}

func (s *Session) connected() bool {
	return s.client != nil && s.client.IsConnected()
}

// enqueueEvent and enqueueSample run on the service's goroutine and never take the lock

func (s *Session) enqueueEvent(ev elapi.Event) {
	if s.notify.ForceSend(notification{event: ev}) {
		s.logger.WithField("event", ev).Debug("Notification backlog full, oldest dropped")
	}
}

func (s *Session) enqueueSample(sample elapi.GazeSample) {
	s.notify.ForceSend(notification{sample: &sample})
}

// startDispatcher starts the dispatcher once per session; the lock is held by the caller
func (s *Session) startDispatcher() {
	if s.dispatcherDone != nil {
		return
	}
	s.dispatcherDone = groutine.Go(context.Background(), "session-dispatcher", func(ctx context.Context) {
		logger := s.logger.WithField("goroutine", groutine.Name(ctx))
		logger.Debug("Dispatcher started")
		defer logger.Debug("Dispatcher stopped")

		for {
			n, ok := s.notify.Receive()
			if !ok {
				return
			}
			s.dispatch(n)
			s.dispatched.Add(1)
		}
	})
}

func (s *Session) dispatch(n notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if n.sample != nil {
		s.onSample(*n.sample)
		return
	}
	s.onEvent(n.event)
}
