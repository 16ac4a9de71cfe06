package outlet

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	GazeStreamName   = "EyeLogic"
	GazeStreamType   = "Gaze"
	GazeChannelCount = 17

	manufacturer = "EyeLogic"
	model        = "One"
)

// gazeChannel is one row of the fixed gaze layout; empty fields are omitted
type gazeChannel struct {
	label, eye, kind, unit, coords string
}

var gazeLayout = [GazeChannelCount]gazeChannel{
	{"FrameNumber", "", "FrameNumber", "number", ""},
	{"Screen_X_raw", "both", "ScreenX", "pixels", "image-space"},
	{"Screen_Y_raw", "both", "ScreenY", "pixels", "image-space"},
	{"Screen_X_filtered", "both", "ScreenX", "pixels", "image-space"},
	{"Screen_Y_filtered", "both", "ScreenY", "pixels", "image-space"},
	{"Screen_X_left", "left", "ScreenX", "pixels", "image-space"},
	{"Screen_Y_left", "left", "ScreenY", "pixels", "image-space"},
	{"Screen_X_right", "right", "ScreenX", "pixels", "image-space"},
	{"Screen_Y_right", "right", "ScreenY", "pixels", "image-space"},
	{"Diameter_left", "left", "Diameter", "millimeters", ""},
	{"Diameter_right", "right", "Diameter", "millimeters", ""},
	{"EyePosition_X_left", "left", "PositionX", "millimeters", "world-space"},
	{"EyePosition_Y_left", "left", "PositionY", "millimeters", "world-space"},
	{"EyePosition_Z_left", "left", "PositionZ", "millimeters", "world-space"},
	{"EyePosition_X_right", "right", "PositionX", "millimeters", "world-space"},
	{"EyePosition_Y_right", "right", "PositionY", "millimeters", "world-space"},
	{"EyePosition_Z_right", "right", "PositionZ", "millimeters", "world-space"},
}

// GazeChannels returns fresh descriptions of the 17 gaze channels, in push order
func GazeChannels() []*Meta {
	channels := make([]*Meta, 0, GazeChannelCount)
	for _, c := range gazeLayout {
		ch := NewChannel(c.label)
		if c.eye != "" {
			ch.Set("eye", c.eye)
		}
		ch.Set("type", c.kind).Set("unit", c.unit)
		if c.coords != "" {
			ch.Set("coordinate_system", c.coords)
		}
		channels = append(channels, ch)
	}
	return channels
}

// GazeSourceID identifies a tracker by serial so consumers can re-resolve it after a restart
func GazeSourceID(serial uint64) string {
	return fmt.Sprintf("%s %s | %d", manufacturer, model, serial)
}

// GazeStreamInfo describes the gaze stream of the tracker with the given serial at rate Hz
func GazeStreamInfo(serial uint64, rate int) StreamInfo {
	info := NewStreamInfo(GazeStreamName, GazeStreamType, GazeChannelCount, float64(rate), FormatDouble64, GazeSourceID(serial))
	info.Channels = GazeChannels()
	info.Acquisition = NewMeta().
		Set("manufacturer", manufacturer).
		Set("model", model).
		Set("serial_number", strconv.FormatUint(serial, 10))
	return info
}

// YAML renders the description as a YAML document, keys in declaration order
func (i StreamInfo) YAML() ([]byte, error) {
	out, err := yaml.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stream %q: %w", i.Name, err)
	}
	return out, nil
}
