/*
DESCRIPTION
  channel.go provides the data sources and output channels through which a
  device hands captured frames to the rest of the system.

AUTHORS
  The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package channel provides data sources, each owning a frame buffer, and the
// output channels that expose them.
package channel

import (
	"errors"
	"fmt"
	"time"

	"github.com/ausocean/iccapture/buffer"
	"github.com/ausocean/iccapture/config"
)

// Write timeout of source buffers.
const bufferWriteTimeout = 100 * time.Millisecond

// ErrNoVideoSource is returned when no output channel has a video source.
var ErrNoVideoSource = errors.New("no output channel with a video source")

// Source is a data source of a device. Frames arriving on the device port
// are tagged with PortImageOrientation and stored in Buffer.
type Source struct {
	ID                   string
	Type                 string
	PortImageOrientation buffer.Orientation
	Buffer               *buffer.Buffer
}

// Channel is an output channel of a device.
type Channel struct {
	ID    string
	Video *Source // Nil if the channel carries no video.
}

// New creates the output channels declared in c along with the sources they
// refer to. A source referred to by more than one channel is shared.
func New(c config.Config) ([]*Channel, error) {
	sources := make(map[string]*Source)
	for _, s := range c.Sources {
		if _, ok := sources[s.ID]; ok {
			return nil, fmt.Errorf("duplicate data source id: %s", s.ID)
		}
		sources[s.ID] = &Source{
			ID:                   s.ID,
			Type:                 s.Type,
			PortImageOrientation: buffer.Orientation(s.PortImageOrientation),
			Buffer:               buffer.New(s.BufferSize, bufferWriteTimeout),
		}
	}

	chans := make([]*Channel, 0, len(c.OutputChannels))
	for _, oc := range c.OutputChannels {
		ch := &Channel{ID: oc.ID}
		if oc.VideoSourceID != "" {
			s, ok := sources[oc.VideoSourceID]
			if !ok || s.Type != config.SourceVideo {
				return nil, fmt.Errorf("output channel %s refers to unknown video source: %s", oc.ID, oc.VideoSourceID)
			}
			ch.Video = s
		}
		chans = append(chans, ch)
	}
	return chans, nil
}

// FirstVideoSource returns the video source of the first channel in chans
// that has one.
func FirstVideoSource(chans []*Channel) (*Source, error) {
	for _, ch := range chans {
		if ch.Video != nil {
			return ch.Video, nil
		}
	}
	return nil, ErrNoVideoSource
}

// Close closes the buffers of all sources of chans.
func Close(chans []*Channel) error {
	closed := make(map[*Source]bool)
	var errs []error
	for _, ch := range chans {
		if ch.Video == nil || closed[ch.Video] {
			continue
		}
		closed[ch.Video] = true
		if err := ch.Video.Buffer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("could not close buffer of source %s: %w", ch.Video.ID, err))
		}
	}
	return errors.Join(errs...)
}
