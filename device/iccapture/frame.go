/*
DESCRIPTION
  frame.go provides the frame ready callback of the IC capture source.

AUTHORS
  The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package iccapture

import (
	"fmt"

	"github.com/ausocean/iccapture/buffer"
	"github.com/ausocean/iccapture/device/iccapture/dshow"
)

// onFrame is called by the grabber g for every captured frame. It runs on a
// thread owned by the runtime and must not take s.mu.
func (s *Source) onFrame(g dshow.Grabber, data []byte, n uint64) {
	framesReceived.Inc()
	if len(data) == 0 {
		s.log.Error(pkg+ErrEmptyFrame.Error(), "frame", n)
		framesRejected.Inc()
		return
	}
	if !s.recording.Load() {
		framesDropped.Inc()
		return
	}
	if err := s.addFrame(g, data, n); err != nil {
		s.log.Error(pkg+"could not add frame to buffer", "frame", n, "error", err)
		framesRejected.Inc()
		return
	}
	framesAdded.Inc()
}

// addFrame clips data if required and appends it to the video source buffer.
func (s *Source) addFrame(g dshow.Grabber, data []byte, n uint64) error {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	if s.video == nil {
		return ErrNoVideoSource
	}

	if bpp := g.BitsPerPixel(); bpp != supportedBitsPerPixel {
		return fmt.Errorf("%w: %d", ErrBitsPerPixel, bpp)
	}
	w, h := g.AcqSizeMax()
	frame := [2]int{w, h}
	if len(data) < w*h {
		return fmt.Errorf("%w: got %d bytes, want %d", buffer.ErrShortFrame, len(data), w*h)
	}

	f := buffer.Frame{
		Pixels:      data,
		Orientation: s.video.PortImageOrientation,
		Size:        frame,
		PixelType:   buffer.PixelUint8,
		Components:  1,
		ImageType:   buffer.ImageBrightness,
		Number:      n,
	}
	if s.clip.Active() && (s.clip.Size[0] < w || s.clip.Size[1] < h) {
		s.clip = s.limitClip(s.clip, frame)
		s.scratch = Crop(s.scratch, data, frame, s.clip)
		f.Pixels = s.scratch
		f.Size = s.clip.Size
	}
	return s.video.Buffer.AddItem(f)
}
