package session

import (
	"math"

	"github.com/srg/ellsl/internal/elapi"
	"github.com/srg/ellsl/internal/outlet"
)

// onSample pushes one gaze sample into the outlet when someone is listening.
// Runs on the dispatcher with the lock held.
func (s *Session) onSample(sample elapi.GazeSample) {
	o, ok := s.liveOutlet()
	if !ok || !o.HaveConsumers() {
		return
	}

	values := sampleValues(sample)
	if err := o.PushSample(values[:], float64(sample.TimestampMicroSec)/1e6); err != nil {
		s.logger.WithError(err).WithField("index", sample.Index).Warn("Failed to push sample")
	}
}

// sampleValues lays a sample out in channel order; every invalid field becomes NaN
func sampleValues(sample elapi.GazeSample) [outlet.GazeChannelCount]float64 {
	return [outlet.GazeChannelCount]float64{
		valid(float64(sample.Index)),
		valid(sample.PorRawX),
		valid(sample.PorRawY),
		valid(sample.PorFilteredX),
		valid(sample.PorFilteredY),
		valid(sample.PorLeftX),
		valid(sample.PorLeftY),
		valid(sample.PorRightX),
		valid(sample.PorRightY),
		valid(sample.PupilRadiusLeft),
		valid(sample.PupilRadiusRight),
		valid(sample.EyePositionLeftX),
		valid(sample.EyePositionLeftY),
		valid(sample.EyePositionLeftZ),
		valid(sample.EyePositionRightX),
		valid(sample.EyePositionRightY),
		valid(sample.EyePositionRightZ),
	}
}

func valid(v float64) float64 {
	if v == elapi.InvalidValue {
		return math.NaN()
	}
	return v
}
