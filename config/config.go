/*
NAME
  config.go

DESCRIPTION
  config.go provides the Config struct holding the parameters of an IC
  capture source, along with validation and map based update.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>
  The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package config contains the configuration settings for an IC capture
// source and the means to read and write them from an XML device
// configuration tree.
package config

import (
	"github.com/ausocean/utils/logging"
)

// Data source types.
const (
	SourceVideo = "Video"
	SourceTool  = "Tool"
)

// DataSource describes a data source declared for the device, i.e. a
// DataSource element under the device's DataSources element.
type DataSource struct {
	ID   string
	Type string // One of SourceVideo or SourceTool.

	// PortImageOrientation is the ultrasound image orientation tag of frames
	// arriving on the device port, e.g. "MF" or "UN".
	PortImageOrientation string

	// BufferSize is the number of frames the source's ring buffer holds.
	BufferSize int
}

// OutputChannel describes an OutputChannel element of the device.
type OutputChannel struct {
	ID            string
	VideoSourceID string
}

// Config provides parameters relevant to an IC capture source. Default
// values for fields are applied by Validate.
type Config struct {
	// DeviceID is the Id attribute of the Device element this configuration
	// is read from and written to. If empty, the first device of type
	// ICCapturing is used.
	DeviceID string

	// DeviceName is the name of the frame grabber to open, e.g. "DFG/USB2-lt".
	DeviceName string

	// VideoNorm is the analogue video norm, e.g. "PAL_B" or "NTSC_M".
	VideoNorm string

	// VideoFormat is the colour format of the grabber, e.g. "Y800". For
	// backwards compatibility this may also hold the combined form
	// "Y800 (640x480)", see ParseLegacyVideoFormat.
	VideoFormat string

	FrameSize    [2]int // Width and height of frames requested from the grabber.
	InputChannel string // Grabber input, e.g. "01 Video: SVideo".
	ICBufferSize int    // Number of frame buffers the grabber's listener holds.

	// ClipRectangleOrigin and ClipRectangleSize define the region of each
	// frame that is kept. Clipping is disabled if either size is zero.
	ClipRectangleOrigin [2]int
	ClipRectangleSize   [2]int

	// Sources and OutputChannels hold the data sources and output channels
	// declared for the device.
	Sources        []DataSource
	OutputChannels []OutputChannel

	// Logger holds an implementation of the Logger interface. This must be
	// set for Update, Validate and the XML codec to work correctly.
	Logger logging.Logger

	// LogLevel is the logging verbosity level.
	// Valid values are defined by enums from the logger package: logging.Debug,
	// logging.Info, logging.Warning logging.Error, logging.Fatal.
	LogLevel int8
}

// Validate checks for any errors in the config fields and defaults settings
// if particular parameters have not been defined.
func (c *Config) Validate() error {
	for _, v := range Variables {
		if v.Validate != nil {
			v.Validate(c)
		}
	}
	for i := range c.Sources {
		if c.Sources[i].BufferSize <= 0 {
			c.LogInvalidField("BufferSize", defaultSourceBufferSize)
			c.Sources[i].BufferSize = defaultSourceBufferSize
		}
	}
	return nil
}

// Update takes a map of configuration variable names and their corresponding
// values, parses the string values and converting into correct type, and then
// sets the config struct fields as appropriate. Values that cannot be parsed
// leave the field unchanged.
func (c *Config) Update(vars map[string]string) {
	for _, value := range Variables {
		if v, ok := vars[value.Name]; ok && value.Update != nil {
			value.Update(c, v)
		}
	}
}

// ClipActive returns true if a clip rectangle has been configured.
func (c *Config) ClipActive() bool {
	return c.ClipRectangleSize[0] > 0 && c.ClipRectangleSize[1] > 0
}

// VideoSource returns the data source with the given id.
func (c *Config) VideoSource(id string) (DataSource, bool) {
	for _, s := range c.Sources {
		if s.ID == id && s.Type == SourceVideo {
			return s, true
		}
	}
	return DataSource{}, false
}

func (c *Config) LogInvalidField(name string, def interface{}) {
	c.Logger.Info(name+" bad or unset, defaulting", name, def)
}
