/*
DESCRIPTION
  config_test.go provides testing for the Config struct methods (Validate and
  Update) and the legacy video format handling.

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
	"testing"

	"github.com/google/go-cmp/cmp"
)

type dumbLogger struct{}

func (dl *dumbLogger) Log(l int8, m string, a ...interface{})  {}
func (dl *dumbLogger) SetLevel(l int8)                         {}
func (dl *dumbLogger) Debug(msg string, args ...interface{})   {}
func (dl *dumbLogger) Info(msg string, args ...interface{})    {}
func (dl *dumbLogger) Warning(msg string, args ...interface{}) {}
func (dl *dumbLogger) Error(msg string, args ...interface{})   {}
func (dl *dumbLogger) Fatal(msg string, args ...interface{})   {}

func TestValidate(t *testing.T) {
	dl := &dumbLogger{}

	want := Config{
		Logger:       dl,
		FrameSize:    [2]int{defaultFrameWidth, defaultFrameHeight},
		ICBufferSize: defaultICBufferSize,
		Sources:      []DataSource{{ID: "Video", Type: SourceVideo, BufferSize: defaultSourceBufferSize}},
	}

	got := Config{
		Logger:            dl,
		ClipRectangleSize: [2]int{-1, 20},
		Sources:           []DataSource{{ID: "Video", Type: SourceVideo}},
	}
	err := (&got).Validate()
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	if !cmp.Equal(got, want) {
		t.Errorf("configs not equal\nwant: %v\ngot: %v", want, got)
	}
}

func TestUpdate(t *testing.T) {
	updateMap := map[string]string{
		"DeviceName":          "DFG/USB2-lt",
		"VideoNorm":           "PAL_B",
		"VideoFormat":         "Y800",
		"FrameSize":           "768 576",
		"InputChannel":        "01 Video: SVideo",
		"ICBufferSize":        "20",
		"ClipRectangleOrigin": "10 12",
		"ClipRectangleSize":   " 100   200 ",
		"Unknown":             "ignored",
	}

	dl := &dumbLogger{}
	want := Config{
		Logger:              dl,
		DeviceName:          "DFG/USB2-lt",
		VideoNorm:           "PAL_B",
		VideoFormat:         "Y800",
		FrameSize:           [2]int{768, 576},
		InputChannel:        "01 Video: SVideo",
		ICBufferSize:        20,
		ClipRectangleOrigin: [2]int{10, 12},
		ClipRectangleSize:   [2]int{100, 200},
	}

	got := Config{Logger: dl}
	got.Update(updateMap)
	if !cmp.Equal(want, got) {
		t.Errorf("configs not equal\nwant: %v\ngot: %v", want, got)
	}
}

func TestUpdateMalformed(t *testing.T) {
	dl := &dumbLogger{}
	orig := Config{
		Logger:              dl,
		FrameSize:           [2]int{640, 480},
		ICBufferSize:        50,
		ClipRectangleOrigin: [2]int{1, 2},
		ClipRectangleSize:   [2]int{3, 4},
	}

	got := orig
	got.Update(map[string]string{
		"FrameSize":           "640",
		"ICBufferSize":        "lots",
		"ClipRectangleOrigin": "1 2 3",
		"ClipRectangleSize":   "a b",
	})
	if !cmp.Equal(orig, got) {
		t.Errorf("malformed values should be ignored\nwant: %v\ngot: %v", orig, got)
	}
}

func TestParseVideoFormat(t *testing.T) {
	tests := []struct {
		in     string
		format string
		size   [2]int
		ok     bool
	}{
		{in: "Y800 (640x480)", format: "Y800", size: [2]int{640, 480}, ok: true},
		{in: "RGB24 (768x576)", format: "RGB24", size: [2]int{768, 576}, ok: true},
		{in: "Y800  (640x480)", format: "Y800", size: [2]int{640, 480}, ok: true},
		{in: ""},
		{in: "Y800"},
		{in: "Y800(640x480)"},
		{in: "Y800 640x480"},
		{in: "Y800 (640x480"},
		{in: "Y800 640x480)"},
		{in: "Y800 (640 480)"},
		{in: "Y800 (640X480)"},
		{in: "Y800 (x480)"},
		{in: "Y800 (640x)"},
		{in: "Y800 (640x480x3)"},
		{in: "Y800 (axb)"},
		{in: "Y800 (640x480) extra"},
	}

	for i, test := range tests {
		format, size, ok := ParseVideoFormat(test.in)
		if ok != test.ok {
			t.Errorf("did not get expected ok for test %d (%q)\ngot: %v\nwant: %v", i, test.in, ok, test.ok)
			continue
		}
		if !ok {
			continue
		}
		if format != test.format || size != test.size {
			t.Errorf("did not get expected result for test %d (%q)\ngot: %s %v\nwant: %s %v", i, test.in, format, size, test.format, test.size)
		}
	}
}

func TestParseLegacyVideoFormat(t *testing.T) {
	c := Config{VideoFormat: "Y800 (768x576)", FrameSize: [2]int{640, 480}}
	c.ParseLegacyVideoFormat()
	if c.VideoFormat != "Y800" || c.FrameSize != [2]int{768, 576} {
		t.Errorf("unexpected result: %s %v", c.VideoFormat, c.FrameSize)
	}

	for _, bad := range []string{"Y800", "Y800 (640 480)", "Y800 640x480"} {
		c := Config{VideoFormat: bad, FrameSize: [2]int{320, 240}}
		c.ParseLegacyVideoFormat()
		if c.VideoFormat != bad || c.FrameSize != [2]int{320, 240} {
			t.Errorf("config modified for %q: %s %v", bad, c.VideoFormat, c.FrameSize)
		}
	}
}

func TestVideoFormatString(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{cfg: Config{FrameSize: [2]int{640, 480}}, want: "Y800 (640x480)"},
		{cfg: Config{VideoFormat: "RGB24", FrameSize: [2]int{768, 576}}, want: "RGB24 (768x576)"},
	}
	for i, test := range tests {
		got := test.cfg.VideoFormatString()
		if got != test.want {
			t.Errorf("unexpected format string for test %d\ngot: %s\nwant: %s", i, got, test.want)
		}
		format, size, ok := ParseVideoFormat(got)
		if !ok || size != test.cfg.FrameSize || (test.cfg.VideoFormat != "" && format != test.cfg.VideoFormat) {
			t.Errorf("format string for test %d could not be parsed back: %s %v %v", i, format, size, ok)
		}
	}
}
