package testutils

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/ellsl/internal/elapi"
)

// FakeClient is a scripted elapi.Client. Results are configured through the
// exported fields before use; every call is recorded in order.
type FakeClient struct {
	mu sync.Mutex

	ConnectResult   elapi.ReturnConnect
	StartResult     elapi.ReturnStart
	CalibrateResult elapi.ReturnCalibrate
	ValidateResult  elapi.ReturnValidate
	Validation      elapi.ValidationResult
	Screen          elapi.ScreenConfig
	Device          elapi.DeviceConfig
	Servers         []elapi.ServerInfo

	// OnRegister is fired synchronously from RegisterEventListener when set,
	// like a binding that replays its current state to a new listener
	OnRegister *elapi.Event

	connected bool
	onEvent   elapi.EventListener
	onSample  elapi.GazeSampleListener
	calls     []string
	created   int
}

// NewFakeClient returns a client that accepts everything and reports a 60/250 Hz device
func NewFakeClient() *FakeClient {
	return &FakeClient{
		ConnectResult:   elapi.ConnectSuccess,
		StartResult:     elapi.StartSuccess,
		CalibrateResult: elapi.CalibrateSuccess,
		ValidateResult:  elapi.ValidateSuccess,
		Screen: elapi.ScreenConfig{
			LocalMachine: true,
			ID:           "screen-0",
			Name:         "Fake Display",
			ResolutionX:  1920,
			ResolutionY:  1080,
		},
		Device: elapi.DeviceConfig{
			DeviceSerial:       1234,
			FrameRates:         []uint8{60, 250},
			CalibrationMethods: []uint8{1, 5, 9},
		},
		Servers: []elapi.ServerInfo{{IP: "127.0.0.1", Port: elapi.DefaultPort}},
	}
}

// Factory returns a client factory handing out this client
func (f *FakeClient) Factory() elapi.ClientFactory {
	return func(clientName string, _ *logrus.Logger) (elapi.Client, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.created++
		f.record("new(%s)", clientName)
		return f, nil
	}
}

// Created returns how many times the factory was called
func (f *FakeClient) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

// Calls returns the recorded calls, e.g. "request_tracking(1)"
func (f *FakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallCount counts recorded calls starting with prefix
func (f *FakeClient) CallCount(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// SetConnected changes the connection state without notifying anyone
func (f *FakeClient) SetConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
}

// SetDevice replaces the reported device; an empty config means no device
func (f *FakeClient) SetDevice(device elapi.DeviceConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Device = device
}

// EmitEvent calls the registered event listener on the caller's goroutine
func (f *FakeClient) EmitEvent(ev elapi.Event) {
	f.mu.Lock()
	listener := f.onEvent
	f.mu.Unlock()
	if listener != nil {
		listener(ev)
	}
}

// EmitSample calls the registered sample listener on the caller's goroutine
func (f *FakeClient) EmitSample(sample elapi.GazeSample) {
	f.mu.Lock()
	listener := f.onSample
	f.mu.Unlock()
	if listener != nil {
		listener(sample)
	}
}

// HasListeners reports whether both listeners are registered
func (f *FakeClient) HasListeners() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onEvent != nil && f.onSample != nil
}

func (f *FakeClient) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *FakeClient) Connect(_ context.Context) elapi.ReturnConnect {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("connect")
	f.connected = f.ConnectResult == elapi.ConnectSuccess
	return f.ConnectResult
}

func (f *FakeClient) ConnectRemote(_ context.Context, server elapi.ServerInfo) elapi.ReturnConnect {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("connect_remote(%s)", server)
	f.connected = f.ConnectResult == elapi.ConnectSuccess
	return f.ConnectResult
}

func (f *FakeClient) RequestServerList(_ context.Context, blocking time.Duration) []elapi.ServerInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("request_server_list(%s)", blocking)
	return slices.Clone(f.Servers)
}

func (f *FakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("disconnect")
	f.connected = false
}

func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeClient) ActiveScreen() elapi.ScreenConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return elapi.ScreenConfig{}
	}
	return f.Screen
}

func (f *FakeClient) DeviceConfig() elapi.DeviceConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return elapi.DeviceConfig{}
	}
	return f.Device
}

func (f *FakeClient) RequestTracking(frameRateModeIndex int) elapi.ReturnStart {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("request_tracking(%d)", frameRateModeIndex)
	return f.StartResult
}

func (f *FakeClient) UnrequestTracking() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("unrequest_tracking")
}

func (f *FakeClient) Calibrate(calibrationModeIndex int) elapi.ReturnCalibrate {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("calibrate(%d)", calibrationModeIndex)
	return f.CalibrateResult
}

func (f *FakeClient) Validate() (elapi.ReturnValidate, elapi.ValidationResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("validate")
	return f.ValidateResult, f.Validation
}

func (f *FakeClient) AbortCalibValidation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("abort_calib_validation")
}

func (f *FakeClient) RegisterEventListener(listener elapi.EventListener) {
	f.mu.Lock()
	f.onEvent = listener
	replay := f.OnRegister
	f.mu.Unlock()

	if replay != nil && listener != nil {
		listener(*replay)
	}
}

func (f *FakeClient) RegisterGazeSampleListener(listener elapi.GazeSampleListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSample = listener
}
