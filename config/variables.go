/*
DESCRIPTION
  variables.go contains a list of structs that provide a variable Name, type in
  a string format, a function for updating the variable in the Config struct
  from a string, and finally, a validation function to check the validity of the
  corresponding field value in the Config. Variable names are the attribute
  names used in the XML device configuration.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config map Keys.
const (
	KeyDeviceName          = "DeviceName"
	KeyVideoNorm           = "VideoNorm"
	KeyVideoFormat         = "VideoFormat"
	KeyFrameSize           = "FrameSize"
	KeyInputChannel        = "InputChannel"
	KeyICBufferSize        = "ICBufferSize"
	KeyClipRectangleOrigin = "ClipRectangleOrigin"
	KeyClipRectangleSize   = "ClipRectangleSize"
)

// Config map parameter types.
const (
	typeString = "string"
	typeInt    = "int"
	typeVec2   = "int[2]"
)

// Default variable values.
const (
	defaultICBufferSize     = 50
	defaultFrameWidth       = 640
	defaultFrameHeight      = 480
	defaultVideoFormat      = "Y800"
	defaultSourceBufferSize = 150
)

// Variables describes the variables that can be used to configure an IC
// capture source. These structs provide the name and type of variable, a
// function for updating this variable in a Config, and a function for
// validating the value of the variable.
var Variables = []struct {
	Name     string
	Type     string
	Update   func(*Config, string)
	Validate func(*Config)
}{
	{
		Name:   KeyDeviceName,
		Type:   typeString,
		Update: func(c *Config, v string) { c.DeviceName = v },
	},
	{
		Name:   KeyVideoNorm,
		Type:   typeString,
		Update: func(c *Config, v string) { c.VideoNorm = v },
	},
	{
		Name:   KeyVideoFormat,
		Type:   typeString,
		Update: func(c *Config, v string) { c.VideoFormat = v },
	},
	{
		Name: KeyFrameSize,
		Type: typeVec2,
		Update: func(c *Config, v string) {
			if s, ok := parseVec2(KeyFrameSize, v, c); ok {
				c.FrameSize = s
			}
		},
		Validate: func(c *Config) {
			if c.FrameSize[0] <= 0 || c.FrameSize[1] <= 0 {
				c.LogInvalidField(KeyFrameSize, fmt.Sprintf("%dx%d", defaultFrameWidth, defaultFrameHeight))
				c.FrameSize = [2]int{defaultFrameWidth, defaultFrameHeight}
			}
		},
	},
	{
		Name:   KeyInputChannel,
		Type:   typeString,
		Update: func(c *Config, v string) { c.InputChannel = v },
	},
	{
		Name: KeyICBufferSize,
		Type: typeInt,
		Update: func(c *Config, v string) {
			if n, ok := parseInt(KeyICBufferSize, v, c); ok {
				c.ICBufferSize = n
			}
		},
		Validate: func(c *Config) {
			if c.ICBufferSize <= 0 {
				c.LogInvalidField(KeyICBufferSize, defaultICBufferSize)
				c.ICBufferSize = defaultICBufferSize
			}
		},
	},
	{
		Name: KeyClipRectangleOrigin,
		Type: typeVec2,
		Update: func(c *Config, v string) {
			if o, ok := parseVec2(KeyClipRectangleOrigin, v, c); ok {
				c.ClipRectangleOrigin = o
			}
		},
	},
	{
		Name: KeyClipRectangleSize,
		Type: typeVec2,
		Update: func(c *Config, v string) {
			if s, ok := parseVec2(KeyClipRectangleSize, v, c); ok {
				c.ClipRectangleSize = s
			}
		},
		Validate: func(c *Config) {
			if c.ClipRectangleSize[0] < 0 || c.ClipRectangleSize[1] < 0 {
				c.LogInvalidField(KeyClipRectangleSize, "0 0")
				c.ClipRectangleSize = [2]int{}
			}
		},
	},
}

func parseInt(n, v string, c *Config) (int, bool) {
	_v, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected integer for param %s", n), "value", v)
		return 0, false
	}
	return _v, true
}

// parseVec2 parses two whitespace separated integers, e.g. "640 480".
func parseVec2(n, v string, c *Config) ([2]int, bool) {
	var vec [2]int
	fields := strings.Fields(v)
	if len(fields) != len(vec) {
		c.Logger.Warning(fmt.Sprintf("expected %d integers for param %s", len(vec), n), "value", v)
		return vec, false
	}
	for i, f := range fields {
		_v, err := strconv.Atoi(f)
		if err != nil {
			c.Logger.Warning(fmt.Sprintf("expected integer for param %s", n), "value", v)
			return vec, false
		}
		vec[i] = _v
	}
	return vec, true
}

func formatVec2(v [2]int) string { return fmt.Sprintf("%d %d", v[0], v[1]) }
