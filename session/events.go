package session

import (
	"github.com/srg/ellsl/internal/elapi"
)

// onEvent applies a service event and publishes it on Events().
// Runs on the dispatcher with the lock held. There is no automatic reconnect.
func (s *Session) onEvent(ev elapi.Event) {
	logger := s.logger.WithField("event", ev)

	switch ev {
	case elapi.EventConnectionClosed:
		// the handle stays for the next connect; the binding may still report connected here
		s.clearCapabilities()
		s.destroyOutlet()
		logger.Warn("Service closed the connection")
	case elapi.EventDeviceConnected, elapi.EventDeviceDisconnected:
		s.refresh()
		logger.Info("Device changed")
	case elapi.EventScreenChanged, elapi.EventTrackingStopped:
		logger.Info("Service event")
	default:
		logger.Warn("Unknown service event")
		return
	}

	if s.events.ForceSend(ev) {
		logger.Debug("Event backlog full, oldest dropped")
	}
}
