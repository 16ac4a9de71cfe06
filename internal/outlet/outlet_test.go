package outlet

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"
)

type StreamInfoTestSuite struct {
	suite.Suite
}

func (s *StreamInfoTestSuite) TestGazeLayout() {
	s.Run("channel order", func() {
		// GOAL: Verify the gaze stream declares its 17 channels in push order
		//
		// TEST SCENARIO: Build a gaze stream info → compare labels → exact order

		info := GazeStreamInfo(4242, 250)

		s.Equal([]string{
			"FrameNumber",
			"Screen_X_raw", "Screen_Y_raw",
			"Screen_X_filtered", "Screen_Y_filtered",
			"Screen_X_left", "Screen_Y_left",
			"Screen_X_right", "Screen_Y_right",
			"Diameter_left", "Diameter_right",
			"EyePosition_X_left", "EyePosition_Y_left", "EyePosition_Z_left",
			"EyePosition_X_right", "EyePosition_Y_right", "EyePosition_Z_right",
		}, info.ChannelLabels(), "channel labels MUST follow the push order")
		s.Equal(GazeChannelCount, info.ChannelCount)
		s.NoError(info.Validate())
	})

	s.Run("stream identity", func() {
		// GOAL: Verify name, type, rate, format and source id of the gaze stream
		//
		// TEST SCENARIO: Build a gaze stream info for serial 4242 at 60 Hz → identity fields match

		info := GazeStreamInfo(4242, 60)

		s.Equal("EyeLogic", info.Name)
		s.Equal("Gaze", info.Type)
		s.Equal(60.0, info.NominalRate)
		s.Equal(FormatDouble64, info.Format)
		s.Equal("EyeLogic One | 4242", info.SourceID)
		s.NotEmpty(info.UID, "every stream MUST get a uid")
		s.NotEqual(info.UID, GazeStreamInfo(4242, 60).UID, "uids MUST be unique per stream")
	})

	s.Run("channel metadata", func() {
		// GOAL: Verify optional metadata keys appear only where they apply
		//
		// TEST SCENARIO: Inspect FrameNumber, a screen channel, a diameter and an eye position

		ch := GazeStreamInfo(1, 60).Channels

		s.Equal([]string{"label", "type", "unit"}, ch[0].Keys(), "FrameNumber MUST have no eye or coordinate system")
		s.Equal([]string{"label", "eye", "type", "unit", "coordinate_system"}, ch[1].Keys())

		eye, _ := ch[1].Get("eye")
		s.Equal("both", eye)
		cs, _ := ch[1].Get("coordinate_system")
		s.Equal("image-space", cs)

		s.Equal([]string{"label", "eye", "type", "unit"}, ch[9].Keys(), "diameters MUST have no coordinate system")
		unit, _ := ch[9].Get("unit")
		s.Equal("millimeters", unit)

		cs, _ = ch[16].Get("coordinate_system")
		s.Equal("world-space", cs)
		kind, _ := ch[16].Get("type")
		s.Equal("PositionZ", kind)
	})

	s.Run("acquisition block", func() {
		// GOAL: Verify the acquisition block names the hardware
		//
		// TEST SCENARIO: Build for serial 77 → manufacturer, model, serial_number in order

		acq := GazeStreamInfo(77, 60).Acquisition
		s.Require().NotNil(acq)

		s.Equal([]string{"manufacturer", "model", "serial_number"}, acq.Keys())
		serial, _ := acq.Get("serial_number")
		s.Equal("77", serial)
	})
}

func (s *StreamInfoTestSuite) TestEncoding() {
	s.Run("yaml keeps key order", func() {
		// GOAL: Verify YAML output preserves per-channel key order
		//
		// TEST SCENARIO: Render to YAML → keys of the first screen channel appear in insertion order

		out, err := GazeStreamInfo(5, 250).YAML()
		s.Require().NoError(err)

		text := string(out)
		s.Contains(text, "channel_format: double64")
		s.Contains(text, "source_id: EyeLogic One | 5")

		idx := func(sub string) int { return strings.Index(text, sub) }
		s.Less(idx("label: Screen_X_raw"), idx("coordinate_system: image-space"), "label MUST precede coordinate_system")

		var decoded map[string]interface{}
		s.Require().NoError(yaml.Unmarshal(out, &decoded), "output MUST be valid YAML")
		s.Len(decoded["channels"], GazeChannelCount)
	})

	s.Run("json round trip", func() {
		// GOAL: Verify JSON encoding can be decoded back with order intact
		//
		// TEST SCENARIO: Marshal → unmarshal → labels, format and acquisition match

		info := GazeStreamInfo(9, 60)
		data, err := json.Marshal(info)
		s.Require().NoError(err)

		var back StreamInfo
		s.Require().NoError(json.Unmarshal(data, &back))

		s.Equal(info.ChannelLabels(), back.ChannelLabels())
		s.Equal(FormatDouble64, back.Format)
		s.Equal(info.Acquisition.Keys(), back.Acquisition.Keys())
	})
}

func TestStreamInfoTestSuite(t *testing.T) {
	suite.Run(t, new(StreamInfoTestSuite))
}

func TestStreamInfo_Validate(t *testing.T) {
	tests := []struct {
		name    string
		info    StreamInfo
		wantErr string
	}{
		{
			name:    "missing name",
			info:    NewStreamInfo("", "Gaze", 1, 60, FormatDouble64, "x"),
			wantErr: "name is required",
		},
		{
			name:    "zero channels",
			info:    NewStreamInfo("s", "Gaze", 0, 60, FormatDouble64, "x"),
			wantErr: "channel count",
		},
		{
			name:    "negative rate",
			info:    NewStreamInfo("s", "Gaze", 1, -1, FormatDouble64, "x"),
			wantErr: "nominal rate",
		},
		{
			name: "channel description mismatch",
			info: func() StreamInfo {
				i := NewStreamInfo("s", "Gaze", 2, 60, FormatDouble64, "x")
				i.Channels = []*Meta{NewChannel("a")}
				return i
			}(),
			wantErr: "1 channel descriptions for 2 channels",
		},
		{
			name: "irregular rate is valid",
			info: NewStreamInfo("s", "Markers", 1, 0, FormatInt32, "x"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestChannelFormat_Text(t *testing.T) {
	var f ChannelFormat
	require.NoError(t, f.UnmarshalText([]byte("FLOAT32")))
	assert.Equal(t, FormatFloat32, f)
	assert.Error(t, f.UnmarshalText([]byte("string")))
	assert.Equal(t, "format(42)", ChannelFormat(42).String())
}
