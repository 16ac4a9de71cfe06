package session

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/ellsl/internal/outlet"
)

// ensureOutlet replaces any open outlet with a new one at rate Hz.
// It needs a cached device; the lock is held by the caller.
func (s *Session) ensureOutlet(rate int) error {
	s.destroyOutlet()

	device, ok := s.device()
	if !ok {
		panic("session: outlet requested without a known device")
	}

	info := outlet.GazeStreamInfo(device.DeviceSerial, rate)
	o, err := s.newOutlet(info)
	if err != nil {
		return fmt.Errorf("failed to create outlet at %d Hz: %w", rate, err)
	}
	s.out = o

	s.logger.WithFields(logrus.Fields{
		"rate":      rate,
		"source_id": info.SourceID,
		"uid":       info.UID,
	}).Info("Stream opened")
	return nil
}

// destroyOutlet closes the open outlet, if any
func (s *Session) destroyOutlet() {
	o, ok := s.liveOutlet()
	if !ok {
		return
	}
	s.out = nil

	logger := s.logger.WithField("uid", o.Info().UID)
	if err := o.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close outlet")
		return
	}
	logger.Info("Stream closed")
}

func (s *Session) liveOutlet() (outlet.Outlet, bool) {
	return s.out, s.out != nil
}
