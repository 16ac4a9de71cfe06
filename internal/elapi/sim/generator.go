package sim

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/ellsl/internal/elapi"
	"github.com/srg/ellsl/internal/groutine"
)

const (
	blinkFrames = 3
	// eye distance from the screen and inter-pupillary half distance, mm
	eyeDistanceMm = 650.0
	eyeHalfIPDmm  = 31.5
	pupilRadiusMm = 1.6
)

func (s *Server) startGeneratorLocked(rate int) {
	ctx, cancel := context.WithCancel(context.Background())
	s.rate = rate
	s.stopGenerator = cancel
	groutine.Go(ctx, "sim-generator", func(ctx context.Context) {
		s.runGenerator(ctx, rate)
	})
	s.logger.WithFields(logrus.Fields{
		"rate":   rate,
		"serial": s.cfg.Serial,
	}).Info("Simulated tracking started")
}

// stopGeneratorLocked cancels the generator without waiting; it exits on its next tick
func (s *Server) stopGeneratorLocked() {
	if s.stopGenerator == nil {
		return
	}
	s.stopGenerator()
	s.stopGenerator = nil
	s.logger.WithField("rate", s.rate).Info("Simulated tracking stopped")
	s.rate = 0
}

func (s *Server) runGenerator(ctx context.Context, rate int) {
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			if ctx.Err() != nil {
				s.mu.Unlock()
				return
			}
			s.frame++
			sample := s.synthesize(s.frame, now.Sub(s.epoch))
			for c := range s.clients {
				if c.trackingRate != 0 {
					c.post(notification{sample: &sample})
				}
			}
			s.mu.Unlock()
		}
	}
}

// synthesize produces a gaze point circling the screen centre.
// Blinks invalidate every measurement; the frame index stays valid.
func (s *Server) synthesize(frame int32, elapsed time.Duration) elapi.GazeSample {
	ts := elapsed.Microseconds()
	if s.cfg.BlinkEvery > 0 && int(frame)%s.cfg.BlinkEvery < blinkFrames {
		return elapi.InvalidSample(frame, ts)
	}

	w, h := float64(s.screen.ResolutionX), float64(s.screen.ResolutionY)
	phase := elapsed.Seconds() * 0.5 * 2 * math.Pi
	x := w/2 + w/4*math.Cos(phase)
	y := h/2 + h/4*math.Sin(phase)
	// raw is the unfiltered point with a deterministic jitter
	jitter := 3 * math.Sin(float64(frame)*1.7)

	sample := elapi.GazeSample{
		TimestampMicroSec: ts,
		Index:             frame,

		PorRawX:      x + jitter,
		PorRawY:      y - jitter,
		PorFilteredX: x,
		PorFilteredY: y,

		PorLeftX:         x - 4,
		PorLeftY:         y + 1,
		EyePositionLeftX: -eyeHalfIPDmm,
		EyePositionLeftY: 0,
		EyePositionLeftZ: eyeDistanceMm,
		PupilRadiusLeft:  pupilRadiusMm,

		PorRightX:         x + 4,
		PorRightY:         y - 1,
		EyePositionRightX: eyeHalfIPDmm,
		EyePositionRightY: 0,
		EyePositionRightZ: eyeDistanceMm,
		PupilRadiusRight:  pupilRadiusMm,
	}

	// the left eye is lost for one frame in every 50
	if frame%50 == 25 {
		sample.PorLeftX = elapi.InvalidValue
		sample.PorLeftY = elapi.InvalidValue
		sample.EyePositionLeftX = elapi.InvalidValue
		sample.EyePositionLeftY = elapi.InvalidValue
		sample.EyePositionLeftZ = elapi.InvalidValue
		sample.PupilRadiusLeft = elapi.InvalidValue
	}
	return sample
}

// validationReport measures the four validation targets at the screen quarters
func (s *Server) validationReport() elapi.ValidationResult {
	w, h := float64(s.screen.ResolutionX), float64(s.screen.ResolutionY)
	pxPerDeg := w / (2 * math.Atan(s.screen.PhysicalSizeXmm/2/eyeDistanceMm) * 180 / math.Pi)
	if s.screen.PhysicalSizeXmm <= 0 {
		pxPerDeg = 40
	}

	targets := [4][2]float64{{w / 4, h / 4}, {3 * w / 4, h / 4}, {w / 4, 3 * h / 4}, {3 * w / 4, 3 * h / 4}}
	var result elapi.ValidationResult
	for i, t := range targets {
		left := 8 + 2*float64(i)
		right := 10 - float64(i)
		result.Points[i] = elapi.ValidationPointResult{
			PointPxX:              t[0],
			PointPxY:              t[1],
			MeanDeviationLeftPx:   left,
			MeanDeviationLeftDeg:  left / pxPerDeg,
			MeanDeviationRightPx:  right,
			MeanDeviationRightDeg: right / pxPerDeg,
		}
	}
	return result
}
