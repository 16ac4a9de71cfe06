package elapi

import (
	"fmt"
	"net"
	"strconv"
)

// InvalidValue marks a GazeSample field that carries no valid reading.
// It is far outside any screen, millimetre or frame-index range.
const InvalidValue = -1e10

// DefaultPort is the port a local EyeLogic server listens on
const DefaultPort uint16 = 2001

// GazeSample contains the state of both eyes at one point in time.
// Screen coordinates are in pixels, eye positions and pupil radii in mm.
type GazeSample struct {
	TimestampMicroSec int64
	Index             int32

	PorRawX      float64
	PorRawY      float64
	PorFilteredX float64
	PorFilteredY float64

	PorLeftX         float64
	PorLeftY         float64
	EyePositionLeftX float64
	EyePositionLeftY float64
	EyePositionLeftZ float64
	PupilRadiusLeft  float64

	PorRightX         float64
	PorRightY         float64
	EyePositionRightX float64
	EyePositionRightY float64
	EyePositionRightZ float64
	PupilRadiusRight  float64
}

// InvalidSample returns a sample at the given index and time with every measurement invalid
func InvalidSample(index int32, tsUs int64) GazeSample {
	return GazeSample{
		TimestampMicroSec: tsUs,
		Index:             index,
		PorRawX:           InvalidValue,
		PorRawY:           InvalidValue,
		PorFilteredX:      InvalidValue,
		PorFilteredY:      InvalidValue,
		PorLeftX:          InvalidValue,
		PorLeftY:          InvalidValue,
		EyePositionLeftX:  InvalidValue,
		EyePositionLeftY:  InvalidValue,
		EyePositionLeftZ:  InvalidValue,
		PupilRadiusLeft:   InvalidValue,
		PorRightX:         InvalidValue,
		PorRightY:         InvalidValue,
		EyePositionRightX: InvalidValue,
		EyePositionRightY: InvalidValue,
		EyePositionRightZ: InvalidValue,
		PupilRadiusRight:  InvalidValue,
	}
}

// ScreenConfig describes the stimulus screen the service is tracking on
type ScreenConfig struct {
	LocalMachine    bool    `yaml:"local_machine"`
	ID              string  `yaml:"id"`
	Name            string  `yaml:"name"`
	ResolutionX     int32   `yaml:"resolution_x"`
	ResolutionY     int32   `yaml:"resolution_y"`
	PhysicalSizeXmm float64 `yaml:"physical_size_x_mm"`
	PhysicalSizeYmm float64 `yaml:"physical_size_y_mm"`
}

// DeviceConfig describes the connected tracking device.
// An empty FrameRates list means no device is attached to the service.
type DeviceConfig struct {
	DeviceSerial       uint64  `yaml:"device_serial"`
	FrameRates         []uint8 `yaml:"frame_rates"`
	CalibrationMethods []uint8 `yaml:"calibration_methods"`
}

// HasDevice reports whether the snapshot describes an attached device
func (d DeviceConfig) HasDevice() bool {
	return len(d.FrameRates) > 0
}

// ServerInfo addresses an EyeLogic server
type ServerInfo struct {
	IP   string
	Port uint16
}

func (s ServerInfo) String() string {
	return net.JoinHostPort(s.IP, strconv.Itoa(int(s.Port)))
}

// ParseServerInfo parses "ip" or "ip:port"; the port defaults to DefaultPort
func ParseServerInfo(s string) (ServerInfo, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// no port given
		host, portStr = s, strconv.Itoa(int(DefaultPort))
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return ServerInfo{}, fmt.Errorf("invalid server address %q: expected IPv4 address", s)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return ServerInfo{}, fmt.Errorf("invalid server port %q", portStr)
	}
	return ServerInfo{IP: ip.String(), Port: uint16(port)}, nil
}

// ValidationPointResult is the deviation measured at one validation target
type ValidationPointResult struct {
	PointPxX              float64
	PointPxY              float64
	MeanDeviationLeftPx   float64
	MeanDeviationLeftDeg  float64
	MeanDeviationRightPx  float64
	MeanDeviationRightDeg float64
}

// ValidationResult holds the four validation targets
type ValidationResult struct {
	Points [4]ValidationPointResult
}
