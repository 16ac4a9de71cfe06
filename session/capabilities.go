package session

import (
	"slices"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/srg/ellsl/internal/elapi"
)

// refresh re-reads screen and device from the service and rebuilds both mode maps.
// Without a live connection it clears the whole cache. The lock is held by the caller.
func (s *Session) refresh() {
	if !s.connected() {
		s.clearCapabilities()
		return
	}

	screen := s.client.ActiveScreen()
	device := s.client.DeviceConfig()

	s.screenCfg = &screen
	s.deviceCfg = nil
	if device.HasDevice() {
		s.deviceCfg = &device
	}
	s.rateModes = modeIndex(device.FrameRates)
	s.calibrationModes = modeIndex(device.CalibrationMethods)

	s.logger.WithFields(logrus.Fields{
		"screen":       screen.Name,
		"serial":       device.DeviceSerial,
		"rates":        formatKeys(s.rateModes),
		"calibrations": formatKeys(s.calibrationModes),
	}).Debug("Capabilities refreshed")
}

func (s *Session) clearCapabilities() {
	s.screenCfg = nil
	s.deviceCfg = nil
	s.rateModes = map[int]int{}
	s.calibrationModes = map[int]int{}
	s.logger.Debug("Capabilities cleared")
}

func (s *Session) screen() (elapi.ScreenConfig, bool) {
	if s.screenCfg == nil {
		return elapi.ScreenConfig{}, false
	}
	return *s.screenCfg, true
}

func (s *Session) device() (elapi.DeviceConfig, bool) {
	if s.deviceCfg == nil {
		return elapi.DeviceConfig{}, false
	}
	return *s.deviceCfg, true
}

// ScreenConfig returns the cached active screen
func (s *Session) ScreenConfig() (elapi.ScreenConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.screen()
}

// DeviceConfig returns the cached device; false when none was observed since connecting
func (s *Session) DeviceConfig() (elapi.DeviceConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.device()
}

// ListAvailableRates renders the supported rates ascending, e.g. "60, 250"
func (s *Session) ListAvailableRates() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return formatKeys(s.rateModes)
}

// ListAvailableCalibrationModes renders the supported point counts ascending, e.g. "1, 5, 9"
func (s *Session) ListAvailableCalibrationModes() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return formatKeys(s.calibrationModes)
}

// AvailableRates returns the supported rates ascending
func (s *Session) AvailableRates() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sortedKeys(s.rateModes)
}

// AvailableCalibrationModes returns the supported point counts ascending
func (s *Session) AvailableCalibrationModes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sortedKeys(s.calibrationModes)
}

// modeIndex maps each listed value to its position; a repeated value keeps its last position
func modeIndex(values []uint8) map[int]int {
	m := make(map[int]int, len(values))
	for i, v := range values {
		m[int(v)] = i
	}
	return m
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func formatKeys(m map[int]int) string {
	keys := sortedKeys(m)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = strconv.Itoa(k)
	}
	return strings.Join(parts, ", ")
}
