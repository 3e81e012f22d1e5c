/*
DESCRIPTION
  iccapture.go provides an implementation of the Device interface for The
  Imaging Source frame grabbers, e.g. the DFG/USB2-lt video to USB converter,
  accessed through the DShowLib SDK. 8 bit grey scale frames are optionally
  clipped and appended to the buffer of the first output video source.

AUTHORS
  The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package iccapture provides a capture source for The Imaging Source frame
// grabbers.
package iccapture

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/beevik/etree"

	"github.com/ausocean/iccapture/buffer"
	"github.com/ausocean/iccapture/channel"
	"github.com/ausocean/iccapture/config"
	"github.com/ausocean/iccapture/device"
	"github.com/ausocean/iccapture/device/iccapture/dshow"
	"github.com/ausocean/utils/logging"
)

// Used to indicate package in logging.
const pkg = "iccapture: "

// Name is the device type name of the source.
const Name = config.DeviceType

// The only bit depth the source supports.
const supportedBitsPerPixel = 8

// Errors returned by the source.
var (
	ErrInUse           = errors.New("an IC capture source is already open")
	ErrClosed          = errors.New("IC capture source is closed")
	ErrNotConnected    = errors.New("IC capture source is not connected")
	ErrConnected       = errors.New("IC capture source is connected")
	ErrNoOutputChannel = errors.New("no output channels defined")
	ErrBitsPerPixel    = errors.New("unsupported bits per pixel")
	ErrNoVideoSource   = errors.New("no video source to add frames to")
	ErrEmptyFrame      = errors.New("no frame data received from the frame grabber")
)

// Configuration field errors.
var (
	errNoDeviceName   = errors.New("device name unset")
	errNoVideoNorm    = errors.New("video norm unset")
	errNoInputChannel = errors.New("input channel unset")
)

// open is set while a Source exists. Only one source may be open in a process
// as the SDK supports a single grabber per listener.
var open atomic.Bool

// Source is an IC capture source. A Source must be created using Open and
// released using Close.
type Source struct {
	log logging.Logger
	rt  dshow.Runtime

	// mu guards the fields below and serialises the control operations.
	mu         sync.Mutex
	cfg        config.Config
	chans      []*channel.Channel
	sess       *session
	state      device.State
	configured bool
	closed     bool

	// recording is read by the frame callback without taking mu, as the
	// grabber waits for running callbacks when live mode is stopped.
	recording atomic.Bool

	// fmu guards the frame path state below.
	fmu     sync.Mutex
	video   *channel.Source
	clip    Rect
	scratch []byte
}

// Open returns a new Source using the runtime rt. ErrInUse is returned if a
// Source is already open.
func Open(l logging.Logger, rt dshow.Runtime) (*Source, error) {
	if rt == nil {
		return nil, dshow.ErrNotAvailable
	}
	if !open.CompareAndSwap(false, true) {
		return nil, ErrInUse
	}
	return &Source{log: l, rt: rt}, nil
}

// Close disconnects the source if required, closes the buffers of its output
// channels and allows another Source to be opened.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	var errs []error
	if s.state != device.StateDisconnected {
		if err := s.disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := channel.Close(s.chans); err != nil {
		errs = append(errs, err)
	}
	s.closed = true
	open.Store(false)
	return errors.Join(errs...)
}

// Name returns the name of the device.
func (s *Source) Name() string { return Name }

// SDKVersion returns the vendor library name and version.
func (s *Source) SDKVersion() string {
	major, minor := s.rt.Version()
	return fmt.Sprintf("The Imaging Source UDSHL-%d.%d", major, minor)
}

// Config returns a copy of the current configuration. The clip rectangle
// reflects any adjustment made to fit the frame.
func (s *Source) Config() config.Config {
	s.mu.Lock()
	c := s.cfg
	s.mu.Unlock()

	s.fmu.Lock()
	defer s.fmu.Unlock()
	if s.clip.Active() {
		c.ClipRectangleOrigin = s.clip.Origin
		c.ClipRectangleSize = s.clip.Size
	}
	return c
}

// OutputChannels returns the output channels of the source.
func (s *Source) OutputChannels() []*channel.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*channel.Channel(nil), s.chans...)
}

// State returns the connection state of the source.
func (s *Source) State() device.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning returns true if the source is recording.
func (s *Source) IsRunning() bool { return s.recording.Load() }

// Set validates c, creates its output channels and applies it. Fields that
// are defaulted, and the fields that must be set for Connect to succeed, are
// reported through a device.MultiError; c is still applied in that case. A
// configuration whose output channels cannot be created is not applied.
// Set may not be called while the source is connected.
func (s *Source) Set(c config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(c)
}

func (s *Source) set(c config.Config) error {
	if s.closed {
		return ErrClosed
	}
	if s.state != device.StateDisconnected {
		return ErrConnected
	}
	if c.Logger == nil {
		c.Logger = s.log
	}

	var errs device.MultiError
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.DeviceName == "" {
		errs = append(errs, errNoDeviceName)
	}
	if c.VideoNorm == "" {
		errs = append(errs, errNoVideoNorm)
	}
	if c.InputChannel == "" {
		errs = append(errs, errNoInputChannel)
	}

	chans, err := channel.New(c)
	if err != nil {
		return fmt.Errorf("could not create output channels: %w", err)
	}
	if err := channel.Close(s.chans); err != nil {
		s.log.Warning(pkg+"could not close previous output channels", "error", err)
	}
	s.cfg = c
	s.chans = chans

	s.fmu.Lock()
	s.video = nil
	s.clip = Rect{Origin: c.ClipRectangleOrigin, Size: c.ClipRectangleSize}
	s.fmu.Unlock()

	if err := s.notifyConfigured(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) != 0 {
		return errs
	}
	return nil
}

// ReadConfiguration reads the source's configuration from the device element
// of the configuration tree rooted at root and applies it using Set.
func (s *Source) ReadConfiguration(root *etree.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cfg
	if c.Logger == nil {
		c.Logger = s.log
	}
	if err := c.ReadXML(root); err != nil {
		return err
	}
	return s.set(c)
}

// WriteConfiguration writes the source's configuration to the device element
// of the configuration tree rooted at root.
func (s *Source) WriteConfiguration(root *etree.Element) error {
	c := s.Config()
	if c.Logger == nil {
		c.Logger = s.log
	}
	return c.WriteXML(root)
}

// NotifyConfigured checks that the source has an output channel. Only the
// first output channel is used; a warning is logged if there are more.
func (s *Source) NotifyConfigured() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifyConfigured()
}

func (s *Source) notifyConfigured() error {
	switch n := len(s.chans); {
	case n == 0:
		s.log.Error(pkg + "no output channels defined")
		s.configured = false
		return ErrNoOutputChannel
	case n > 1:
		s.log.Warning(pkg+"only one output channel is supported, using the first", "channels", n, "using", s.chans[0].ID)
	}
	s.configured = true
	return nil
}

// Configured returns true if the last configuration had an output channel.
func (s *Source) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configured
}

// Connect initialises the runtime, opens and configures the frame grabber and
// registers the frame listener. If any step fails everything acquired is
// released and the source remains disconnected.
func (s *Source) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.state != device.StateDisconnected {
		s.log.Debug(pkg + "already connected")
		return nil
	}

	sess, err := s.connect()
	if err != nil {
		s.log.Error(pkg+"could not connect", "error", err)
		return err
	}
	s.sess = sess
	s.state = device.StateConnected
	s.log.Info(pkg+"connected", "device", s.cfg.DeviceName, "format", s.cfg.VideoFormatString(), "input", s.cfg.InputChannel)
	return nil
}

func (s *Source) connect() (*session, error) {
	err := s.rt.Init()
	if err != nil {
		return nil, fmt.Errorf("could not initialise IC capture library: %w", err)
	}
	dshow.RegisterExit(s.rt)

	sess := &session{rt: s.rt}
	fail := func(err error) (*session, error) {
		if cerr := sess.close(); cerr != nil {
			s.log.Warning(pkg+"could not release frame grabber", "error", cerr)
		}
		return nil, err
	}

	sess.g, err = s.rt.NewGrabber()
	if err != nil {
		return fail(fmt.Errorf("could not create frame grabber: %w", err))
	}
	g := sess.g

	c := &s.cfg
	if c.DeviceName == "" {
		return fail(errNoDeviceName)
	}
	if err := g.OpenDevice(c.DeviceName); err != nil {
		return fail(fmt.Errorf("could not open device %q: %w", c.DeviceName, err))
	}
	if c.VideoNorm == "" {
		return fail(errNoVideoNorm)
	}
	if err := g.SetVideoNorm(c.VideoNorm); err != nil {
		return fail(fmt.Errorf("could not set video norm %q: %w", c.VideoNorm, err))
	}
	if err := g.SetVideoFormat(c.VideoFormatString()); err != nil {
		return fail(fmt.Errorf("could not set video format %q: %w", c.VideoFormatString(), err))
	}
	if bpp := g.BitsPerPixel(); bpp != supportedBitsPerPixel {
		return fail(fmt.Errorf("%w: %d", ErrBitsPerPixel, bpp))
	}

	video, err := channel.FirstVideoSource(s.chans)
	if err != nil {
		return fail(err)
	}
	video.Buffer.SetPixelType(buffer.PixelUint8)

	w, h := g.AcqSizeMax()
	frame := [2]int{w, h}
	clip := Rect{Origin: c.ClipRectangleOrigin, Size: c.ClipRectangleSize}
	if clip.Active() {
		clip = s.limitClip(clip, frame)
		c.ClipRectangleOrigin = clip.Origin
		c.ClipRectangleSize = clip.Size
		video.Buffer.SetFrameSize(clip.Size)
	} else {
		video.Buffer.SetFrameSize(frame)
	}

	if c.InputChannel == "" {
		return fail(errNoInputChannel)
	}
	if err := g.SetInputChannel(c.InputChannel); err != nil {
		return fail(fmt.Errorf("could not set input channel %q: %w", c.InputChannel, err))
	}

	l := &dshow.Listener{
		OnFrame:    func(data []byte, n uint64) { s.onFrame(g, data, n) },
		BufferSize: c.ICBufferSize,
	}
	if err := g.AddListener(l); err != nil {
		return fail(fmt.Errorf("could not add frame listener: %w", err))
	}
	sess.listener = l

	if err := g.SetSink(dshow.Sink{Format: dshow.RGB8, BufferCount: 1}); err != nil {
		return fail(fmt.Errorf("could not set frame sink: %w", err))
	}

	s.fmu.Lock()
	s.video = video
	s.clip = clip
	s.fmu.Unlock()
	return sess, nil
}

// Disconnect stops recording if required and releases the frame grabber and
// runtime.
func (s *Source) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == device.StateDisconnected {
		s.log.Debug(pkg + "not connected")
		return nil
	}
	return s.disconnect()
}

func (s *Source) disconnect() error {
	if s.state == device.StateRecording {
		if err := s.stop(); err != nil {
			s.log.Warning(pkg+"could not stop recording before disconnecting", "error", err)
			s.recording.Store(false)
			recordingGauge.Set(0)
		}
	}
	err := s.sess.close()
	s.sess = nil
	s.state = device.StateDisconnected

	s.fmu.Lock()
	s.video = nil
	s.fmu.Unlock()

	if err != nil {
		s.log.Warning(pkg+"error while disconnecting", "error", err)
		return err
	}
	s.log.Info(pkg + "disconnected")
	return nil
}

// Start starts live mode on the frame grabber. Frames are added to the
// output video source from then on.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case device.StateRecording:
		return nil
	case device.StateDisconnected:
		return ErrNotConnected
	}

	if err := s.sess.g.StartLive(false); err != nil {
		s.log.Error(pkg+"frame grabber could not start live mode, cannot start recording", "error", err)
		return fmt.Errorf("could not start live mode: %w", err)
	}
	s.recording.Store(true)
	recordingGauge.Set(1)
	s.state = device.StateRecording
	s.log.Info(pkg + "recording started")
	return nil
}

// Stop stops live mode on the frame grabber. If stopping fails the source
// remains recording.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != device.StateRecording {
		return nil
	}
	return s.stop()
}

func (s *Source) stop() error {
	if err := s.sess.g.StopLive(); err != nil {
		s.log.Error(pkg+"frame grabber could not stop live mode", "error", err)
		return fmt.Errorf("could not stop live mode: %w", err)
	}
	s.recording.Store(false)
	recordingGauge.Set(0)
	s.state = device.StateConnected
	s.log.Info(pkg + "recording stopped")
	return nil
}

// limitClip returns r limited to the frame, logging any adjustment.
func (s *Source) limitClip(r Rect, frame [2]int) Rect {
	lim := r.LimitToFrame(frame)
	if lim.Origin != r.Origin {
		s.log.Warning(pkg+"clip rectangle origin outside frame, using (0,0)", "origin", r.Origin, "frame", frame)
	}
	if lim.Size[0] != r.Size[0] {
		s.log.Warning(pkg+"clip rectangle width exceeds frame, limiting", "width", r.Size[0], "limited", lim.Size[0])
	}
	if lim.Size[1] != r.Size[1] {
		s.log.Warning(pkg+"clip rectangle height exceeds frame, limiting", "height", r.Size[1], "limited", lim.Size[1])
	}
	return lim
}
