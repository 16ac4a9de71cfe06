package elapi

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// EventListener receives service events
type EventListener func(Event)

// GazeSampleListener receives gaze samples while tracking is requested
type GazeSampleListener func(GazeSample)

// Client is the client side of the gaze-tracking service.
// All request methods are blocking round trips to the service.
type Client interface {
	// Connect connects to the server on the local machine
	Connect(ctx context.Context) ReturnConnect
	// ConnectRemote connects to the given server
	ConnectRemote(ctx context.Context, server ServerInfo) ReturnConnect
	// RequestServerList blocks for up to the given duration collecting server announcements
	RequestServerList(ctx context.Context, blocking time.Duration) []ServerInfo
	Disconnect()
	IsConnected() bool

	// ActiveScreen returns the stimulus screen; zero value when not connected
	ActiveScreen() ScreenConfig
	// DeviceConfig returns the attached device; zero value when not connected or no device
	DeviceConfig() DeviceConfig

	RequestTracking(frameRateModeIndex int) ReturnStart
	// UnrequestTracking withdraws this client's interest; the device keeps running
	// while other clients still request tracking
	UnrequestTracking()
	// Calibrate blocks until the calibration procedure finished
	Calibrate(calibrationModeIndex int) ReturnCalibrate
	Validate() (ReturnValidate, ValidationResult)
	AbortCalibValidation()

	RegisterEventListener(listener EventListener)
	RegisterGazeSampleListener(listener GazeSampleListener)
}

// ClientFactory creates a client binding. clientName identifies this
// process on the server side.
type ClientFactory func(clientName string, logger *logrus.Logger) (Client, error)
