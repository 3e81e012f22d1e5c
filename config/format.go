/*
DESCRIPTION
  format.go handles the DShowLib video format string, which combines the
  colour format and frame size, e.g. "Y800 (640x480)".

AUTHORS
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

// ParseVideoFormat parses a combined video format string of the form
// "<FORMAT> (<W>x<H>)". ok is false if s is not of this form.
func ParseVideoFormat(s string) (format string, size [2]int, ok bool) {
	tokens := strings.Fields(s)
	if len(tokens) != 2 {
		return "", size, false
	}

	dims := strings.Split(tokens[1], "x")
	if len(dims) != 2 || dims[0] == "" || dims[1] == "" {
		return "", size, false
	}
	if !strings.HasPrefix(dims[0], "(") || !strings.HasSuffix(dims[1], ")") {
		return "", size, false
	}

	w, err := strconv.Atoi(strings.TrimPrefix(dims[0], "("))
	if err != nil {
		return "", size, false
	}
	h, err := strconv.Atoi(strings.TrimSuffix(dims[1], ")"))
	if err != nil {
		return "", size, false
	}
	return tokens[0], [2]int{w, h}, true
}

// ParseLegacyVideoFormat handles configurations where VideoFormat holds
// both the colour format and the frame size. If VideoFormat is of this form
// VideoFormat and FrameSize are replaced by the parsed values, otherwise the
// config is left untouched.
func (c *Config) ParseLegacyVideoFormat() {
	format, size, ok := ParseVideoFormat(c.VideoFormat)
	if !ok {
		return
	}
	c.VideoFormat = format
	c.FrameSize = size
}

// VideoFormatString returns the format string expected by the grabber i.e.
// "<VideoFormat> (<W>x<H>)". Y800 is used if no VideoFormat is set.
func (c *Config) VideoFormatString() string {
	format := c.VideoFormat
	if format == "" {
		format = defaultVideoFormat
	}
	return fmt.Sprintf("%s (%dx%d)", format, c.FrameSize[0], c.FrameSize[1])
}
