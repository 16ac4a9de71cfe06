// Package outlet declares the push sink a session streams gaze samples into,
// together with the stream description every sink carries.
package outlet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrClosed is returned when pushing into an outlet that was closed
var ErrClosed = errors.New("outlet closed")

// Outlet is a live, named, multi-channel push destination at a fixed
// nominal rate. Outlets are never reconfigured; a new rate needs a new outlet.
type Outlet interface {
	Info() StreamInfo
	// HaveConsumers reports whether at least one consumer is subscribed
	HaveConsumers() bool
	// PushSample pushes one value per channel; timestamp is in seconds
	PushSample(values []float64, timestamp float64) error
	Close() error
}

// Factory creates an outlet for the given stream description
type Factory func(info StreamInfo) (Outlet, error)

// ChannelFormat is the value encoding of every channel in a stream
type ChannelFormat int

const (
	FormatFloat32 ChannelFormat = iota + 1
	FormatDouble64
	FormatInt32
)

func (f ChannelFormat) String() string {
	switch f {
	case FormatFloat32:
		return "float32"
	case FormatDouble64:
		return "double64"
	case FormatInt32:
		return "int32"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// MarshalText encodes the format by name for JSON and YAML
func (f ChannelFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText decodes a format name
func (f *ChannelFormat) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "float32":
		*f = FormatFloat32
	case "double64":
		*f = FormatDouble64
	case "int32":
		*f = FormatInt32
	default:
		return fmt.Errorf("unknown channel format %q", string(text))
	}
	return nil
}

// StreamInfo describes a stream: identity, layout and per-channel metadata
type StreamInfo struct {
	Name         string        `json:"name" yaml:"name"`
	Type         string        `json:"type" yaml:"type"`
	ChannelCount int           `json:"channel_count" yaml:"channel_count"`
	NominalRate  float64       `json:"nominal_srate" yaml:"nominal_srate"`
	Format       ChannelFormat `json:"channel_format" yaml:"channel_format"`
	SourceID     string        `json:"source_id" yaml:"source_id"`
	UID          string        `json:"uid" yaml:"uid"`
	Channels     []*Meta       `json:"channels,omitempty" yaml:"channels,omitempty"`
	Acquisition  *Meta         `json:"acquisition,omitempty" yaml:"acquisition,omitempty"`
}

// NewStreamInfo creates a stream description with a fresh UID and no channel metadata
func NewStreamInfo(name, streamType string, channelCount int, nominalRate float64, format ChannelFormat, sourceID string) StreamInfo {
	return StreamInfo{
		Name:         name,
		Type:         streamType,
		ChannelCount: channelCount,
		NominalRate:  nominalRate,
		Format:       format,
		SourceID:     sourceID,
		UID:          uuid.NewString(),
	}
}

// Validate checks that the description is usable for an outlet
func (i StreamInfo) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("stream name is required")
	}
	if i.ChannelCount <= 0 {
		return fmt.Errorf("stream %q: channel count must be > 0", i.Name)
	}
	if i.NominalRate < 0 {
		return fmt.Errorf("stream %q: nominal rate must be >= 0", i.Name)
	}
	if len(i.Channels) != 0 && len(i.Channels) != i.ChannelCount {
		return fmt.Errorf("stream %q: %d channel descriptions for %d channels", i.Name, len(i.Channels), i.ChannelCount)
	}
	return nil
}

// ChannelLabels returns the label of every described channel, in order
func (i StreamInfo) ChannelLabels() []string {
	labels := make([]string, 0, len(i.Channels))
	for _, ch := range i.Channels {
		labels = append(labels, ch.Label())
	}
	return labels
}
