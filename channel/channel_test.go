/*
DESCRIPTION
  channel_test.go provides testing for creation of output channels and their
  sources.

AUTHORS
  The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package channel

import (
	"errors"
	"testing"

	"github.com/ausocean/iccapture/config"
)

func TestNew(t *testing.T) {
	c := config.Config{
		Sources: []config.DataSource{
			{ID: "Video", Type: config.SourceVideo, PortImageOrientation: "MF", BufferSize: 10},
			{ID: "Probe", Type: config.SourceTool, BufferSize: 10},
		},
		OutputChannels: []config.OutputChannel{
			{ID: "Tracking"},
			{ID: "VideoStream", VideoSourceID: "Video"},
			{ID: "Copy", VideoSourceID: "Video"},
		},
	}

	chans, err := New(c)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if len(chans) != 3 {
		t.Fatalf("unexpected number of channels: %d", len(chans))
	}
	if chans[0].Video != nil {
		t.Error("channel without video source should have nil Video")
	}
	if chans[1].Video != chans[2].Video {
		t.Error("channels should share the same source")
	}

	s, err := FirstVideoSource(chans)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if s.ID != "Video" || s.PortImageOrientation != "MF" {
		t.Errorf("unexpected source: %+v", s)
	}

	if err := Close(chans); err != nil {
		t.Errorf("did not expect error closing: %v", err)
	}
}

func TestNewErrors(t *testing.T) {
	tests := []config.Config{
		{
			Sources: []config.DataSource{{ID: "Video", Type: config.SourceVideo}, {ID: "Video", Type: config.SourceVideo}},
		},
		{
			OutputChannels: []config.OutputChannel{{ID: "VideoStream", VideoSourceID: "Missing"}},
		},
		{
			Sources:        []config.DataSource{{ID: "Probe", Type: config.SourceTool}},
			OutputChannels: []config.OutputChannel{{ID: "VideoStream", VideoSourceID: "Probe"}},
		},
	}
	for i, c := range tests {
		if _, err := New(c); err == nil {
			t.Errorf("expected error for test %d", i)
		}
	}
}

func TestFirstVideoSourceNone(t *testing.T) {
	_, err := FirstVideoSource([]*Channel{{ID: "Tracking"}})
	if !errors.Is(err, ErrNoVideoSource) {
		t.Errorf("expected ErrNoVideoSource, got: %v", err)
	}
	_, err = FirstVideoSource(nil)
	if !errors.Is(err, ErrNoVideoSource) {
		t.Errorf("expected ErrNoVideoSource, got: %v", err)
	}
}
