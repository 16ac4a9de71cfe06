package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/ellsl/internal/elapi"
	"github.com/srg/ellsl/internal/outlet"
	"github.com/srg/ellsl/internal/testutils"
	"github.com/srg/ellsl/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.0", formatVersion("1.2.0"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "result code",
			err:      elapi.StartDeviceMissing.Err(),
			expected: "No eye tracker is attached to the service",
		},
		{
			name:     "wrapped result code",
			err:      fmt.Errorf("failed to connect: %w", elapi.ConnectVersionMismatch.Err()),
			expected: "The EyeLogic service version does not match this client",
		},
		{
			name:     "unknown result code",
			err:      &elapi.ResultError{Op: "start", Code: "start(42)"},
			expected: "start: start(42)",
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			expected: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatUserError(tt.err))
		})
	}
}

func TestResultMessages_EveryCodeHasOne(t *testing.T) {
	// GOAL: Verify each service result code maps to exactly one user message
	//
	// TEST SCENARIO: enumerate every code of every operation → message present and not the fallback

	var codes []fmt.Stringer
	for r := elapi.ConnectSuccess; r <= elapi.ConnectVersionMismatch; r++ {
		codes = append(codes, r)
		assert.NotEqual(t, "connect: "+r.String(), connectMessage(r), "connect code %s MUST have a message", r)
	}
	for r := elapi.StartSuccess; r <= elapi.StartFailure; r++ {
		codes = append(codes, r)
		assert.NotEqual(t, "start: "+r.String(), startMessage(r), "start code %s MUST have a message", r)
	}
	for r := elapi.CalibrateSuccess; r <= elapi.CalibrateFailure; r++ {
		codes = append(codes, r)
		assert.NotEqual(t, "calibrate: "+r.String(), calibrateMessage(r), "calibrate code %s MUST have a message", r)
	}
	for r := elapi.ValidateSuccess; r <= elapi.ValidateFailure; r++ {
		codes = append(codes, r)
		assert.NotEqual(t, "validate: "+r.String(), validateMessage(r), "validate code %s MUST have a message", r)
	}
	assert.Len(t, resultMessages, len(codes), "there MUST be no message without a code")
}

func TestEventMessage(t *testing.T) {
	for ev := elapi.EventScreenChanged; ev <= elapi.EventTrackingStopped; ev++ {
		assert.NotContains(t, eventMessage(ev), "Service event:", "event %s MUST have a message", ev)
	}
	assert.Equal(t, "Service event: event(99)", eventMessage(elapi.Event(99)))
}

func newLoggerCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().Bool("verbose", false, "")
	return cmd
}

func TestConfigureLogger(t *testing.T) {
	tests := []struct {
		name     string
		flags    map[string]string
		cfgLevel logrus.Level
		expected logrus.Level
		wantErr  bool
	}{
		{name: "silent by default", expected: logrus.PanicLevel},
		{name: "config level without flags", cfgLevel: logrus.WarnLevel, expected: logrus.WarnLevel},
		{name: "verbose", flags: map[string]string{"verbose": "true"}, expected: logrus.DebugLevel},
		{name: "log level wins over verbose", flags: map[string]string{"verbose": "true", "log-level": "error"}, expected: logrus.ErrorLevel},
		{name: "log level wins over config", flags: map[string]string{"log-level": "info"}, cfgLevel: logrus.ErrorLevel, expected: logrus.InfoLevel},
		{name: "invalid log level", flags: map[string]string{"log-level": "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newLoggerCmd()
			for k, v := range tt.flags {
				require.NoError(t, cmd.Flags().Set(k, v))
			}
			cfg := config.DefaultConfig()
			cfg.LogLevel = tt.cfgLevel

			logger, err := configureLogger(cmd, "verbose", cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, logger.GetLevel())
		})
	}
}

func TestSimulatorConfig(t *testing.T) {
	c := config.DefaultConfig().Simulator
	c.Address = "192.168.1.20:2100"
	c.FrameRates = []int{30, 120}
	c.ScreenWidth = 2560

	cfg, err := simulatorConfig(c)
	require.NoError(t, err)
	assert.Equal(t, elapi.ServerInfo{IP: "192.168.1.20", Port: 2100}, cfg.Address)
	assert.Equal(t, []elapi.ServerInfo{cfg.Address}, cfg.Announced)
	assert.Equal(t, []uint8{30, 120}, cfg.FrameRates)
	assert.Equal(t, []uint8{1, 5, 9}, cfg.CalibrationMethods)
	assert.Equal(t, int32(2560), cfg.Screen.ResolutionX)

	c.Address = "eyelogic.local"
	_, err = simulatorConfig(c)
	assert.ErrorContains(t, err, "simulator.address")
}

func TestRenderStreamInfo(t *testing.T) {
	info := outlet.GazeStreamInfo(42, 250)

	t.Run("json", func(t *testing.T) {
		out, err := renderStreamInfo(info, "json")
		require.NoError(t, err)

		testutils.NewJSONAsserter(t).
			WithOptions(testutils.WithIgnoredFields("uid", "channels")).
			Assert(string(out), `{
				"name": "EyeLogic",
				"type": "Gaze",
				"channel_count": 17,
				"nominal_srate": 250,
				"channel_format": "double64",
				"source_id": "EyeLogic One | 42",
				"acquisition": {"manufacturer": "EyeLogic", "model": "One", "serial_number": "42"}
			}`)
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := renderStreamInfo(info, "yaml")
		require.NoError(t, err)

		assert.Contains(t, string(out), "name: EyeLogic\ntype: Gaze\nchannel_count: 17\nnominal_srate: 250\n")
		assert.Contains(t, string(out), "- label: FrameNumber\n")
		assert.Contains(t, string(out), "acquisition:\n    manufacturer: EyeLogic\n    model: One\n    serial_number: \"42\"\n")
	})
}

func TestPrintValidation(t *testing.T) {
	var result elapi.ValidationResult
	result.Points[0] = elapi.ValidationPointResult{
		PointPxX:              480,
		PointPxY:              270,
		MeanDeviationLeftPx:   8,
		MeanDeviationLeftDeg:  0.2,
		MeanDeviationRightPx:  10,
		MeanDeviationRightDeg: 0.25,
	}

	out := &strings.Builder{}
	printValidation(out, result)

	testutils.NewTextAsserter(t).Assert(out.String(), `
Point  Target [px]  Left [px]  Left [deg]  Right [px]  Right [deg]
1      480, 270     8.0        0.20        10.0        0.25
2      0, 0         0.0        0.00        0.0         0.00
3      0, 0         0.0        0.00        0.0         0.00
4      0, 0         0.0        0.00        0.0         0.00
`)
}
