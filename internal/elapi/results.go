package elapi

import "fmt"

// ReturnConnect is the result of Connect and ConnectRemote
type ReturnConnect int

const (
	ConnectSuccess ReturnConnect = iota
	ConnectFailure
	ConnectVersionMismatch
)

func (r ReturnConnect) String() string {
	switch r {
	case ConnectSuccess:
		return "success"
	case ConnectFailure:
		return "failure"
	case ConnectVersionMismatch:
		return "version_mismatch"
	default:
		return fmt.Sprintf("connect(%d)", int(r))
	}
}

// Err returns nil on success and a *ResultError otherwise
func (r ReturnConnect) Err() error {
	if r == ConnectSuccess {
		return nil
	}
	return &ResultError{Op: "connect", Code: r.String()}
}

// ReturnStart is the result of RequestTracking
type ReturnStart int

const (
	StartSuccess ReturnStart = iota
	StartNotConnected
	StartDeviceMissing
	StartInvalidFramerateMode
	StartAlreadyRunningDifferentFramerate
	StartFailure
)

func (r ReturnStart) String() string {
	switch r {
	case StartSuccess:
		return "success"
	case StartNotConnected:
		return "not_connected"
	case StartDeviceMissing:
		return "device_missing"
	case StartInvalidFramerateMode:
		return "invalid_framerate_mode"
	case StartAlreadyRunningDifferentFramerate:
		return "already_running_different_framerate"
	case StartFailure:
		return "failure"
	default:
		return fmt.Sprintf("start(%d)", int(r))
	}
}

// Err returns nil on success and a *ResultError otherwise
func (r ReturnStart) Err() error {
	if r == StartSuccess {
		return nil
	}
	return &ResultError{Op: "start", Code: r.String()}
}

// ReturnCalibrate is the result of Calibrate
type ReturnCalibrate int

const (
	CalibrateSuccess ReturnCalibrate = iota
	CalibrateNotConnected
	CalibrateNotTracking
	CalibrateInvalidCalibrationMode
	CalibrateAlreadyBusy
	CalibrateFailure
)

func (r ReturnCalibrate) String() string {
	switch r {
	case CalibrateSuccess:
		return "success"
	case CalibrateNotConnected:
		return "not_connected"
	case CalibrateNotTracking:
		return "not_tracking"
	case CalibrateInvalidCalibrationMode:
		return "invalid_calibration_mode"
	case CalibrateAlreadyBusy:
		return "already_busy"
	case CalibrateFailure:
		return "failure"
	default:
		return fmt.Sprintf("calibrate(%d)", int(r))
	}
}

// Err returns nil on success and a *ResultError otherwise
func (r ReturnCalibrate) Err() error {
	if r == CalibrateSuccess {
		return nil
	}
	return &ResultError{Op: "calibrate", Code: r.String()}
}

// ReturnValidate is the result of Validate
type ReturnValidate int

const (
	ValidateSuccess ReturnValidate = iota
	ValidateNotConnected
	ValidateNotTracking
	ValidateNotCalibrated
	ValidateAlreadyBusy
	ValidateFailure
)

func (r ReturnValidate) String() string {
	switch r {
	case ValidateSuccess:
		return "success"
	case ValidateNotConnected:
		return "not_connected"
	case ValidateNotTracking:
		return "not_tracking"
	case ValidateNotCalibrated:
		return "not_calibrated"
	case ValidateAlreadyBusy:
		return "already_busy"
	case ValidateFailure:
		return "failure"
	default:
		return fmt.Sprintf("validate(%d)", int(r))
	}
}

// Err returns nil on success and a *ResultError otherwise
func (r ReturnValidate) Err() error {
	if r == ValidateSuccess {
		return nil
	}
	return &ResultError{Op: "validate", Code: r.String()}
}

// ResultError wraps a non-success service result code as an error
type ResultError struct {
	Op   string // "connect", "start", "calibrate", "validate"
	Code string
}

// Error implements the error interface
func (e *ResultError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

// Is allows errors.Is to compare ResultError values by Op and Code
func (e *ResultError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ResultError)
	if !ok {
		return false
	}
	return e.Op == t.Op && e.Code == t.Code
}

// Event is an asynchronous notification from the service
type Event int

const (
	EventScreenChanged Event = iota
	EventConnectionClosed
	EventDeviceConnected
	EventDeviceDisconnected
	EventTrackingStopped
)

func (e Event) String() string {
	switch e {
	case EventScreenChanged:
		return "screen_changed"
	case EventConnectionClosed:
		return "connection_closed"
	case EventDeviceConnected:
		return "device_connected"
	case EventDeviceDisconnected:
		return "device_disconnected"
	case EventTrackingStopped:
		return "tracking_stopped"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}
