/*
DESCRIPTION
  sim.go provides Sim, an in memory implementation of the DShowLib runtime
  with a catalogue of simulated capture devices.

AUTHORS
  The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package dshow

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ausocean/iccapture/config"
)

// Operations that can be made to fail using Sim.FailOn.
const (
	OpInit           = "Init"
	OpOpenDevice     = "OpenDevice"
	OpSetVideoNorm   = "SetVideoNorm"
	OpSetVideoFormat = "SetVideoFormat"
	OpSetInput       = "SetInputChannel"
	OpStartLive      = "StartLive"
	OpStopLive       = "StopLive"
)

// Simulated SDK version.
const (
	simVersionMajor = 3
	simVersionMinor = 4
)

// SimDevice describes a simulated capture device.
type SimDevice struct {
	Name    string
	Norms   []string
	Formats map[string]int // Colour format to bits per pixel.
	Inputs  []string

	// FrameRate is the rate at which frames are generated in live mode. If
	// zero, frames are only delivered through SimGrabber.Emit.
	FrameRate int

	// ReplayPath names a file of raw frames that are replayed in a loop in
	// live mode instead of generated ones. A trailing partial frame is
	// skipped.
	ReplayPath string
}

// DefaultSimDevice returns a simulated DFG/USB2-lt video to USB converter.
func DefaultSimDevice() SimDevice {
	return SimDevice{
		Name:      "DFG/USB2-lt",
		Norms:     []string{"PAL_B", "PAL_D", "NTSC_M"},
		Formats:   map[string]int{"Y800": 8, "UYVY": 16, "RGB24": 24, "RGB32": 32},
		Inputs:    []string{"00 Video: Composite", "01 Video: SVideo"},
		FrameRate: 25,
	}
}

// Sim is a simulated DShowLib runtime.
type Sim struct {
	mu       sync.Mutex
	devices  map[string]SimDevice
	fail     map[string]error
	inits    int
	grabbers []*SimGrabber
}

// NewSim returns a new Sim with the given devices.
func NewSim(devs ...SimDevice) *Sim {
	s := &Sim{devices: make(map[string]SimDevice), fail: make(map[string]error)}
	for _, d := range devs {
		s.devices[d.Name] = d
	}
	return s
}

// FailOn makes the operation op fail with err. A nil err clears the failure.
func (s *Sim) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

func (s *Sim) failure(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail[op]
}

// Init initialises the runtime. Calls are counted and balanced by Exit.
func (s *Sim) Init() error {
	if err := s.failure(OpInit); err != nil {
		return errors.Wrap(ErrInit, err.Error())
	}
	s.mu.Lock()
	s.inits++
	s.mu.Unlock()
	return nil
}

// Exit releases one initialisation of the runtime.
func (s *Sim) Exit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inits > 0 {
		s.inits--
	}
}

// Initialized returns the number of outstanding initialisations.
func (s *Sim) Initialized() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inits
}

// Version returns the simulated SDK version.
func (s *Sim) Version() (major, minor int) { return simVersionMajor, simVersionMinor }

// NewGrabber returns a new SimGrabber.
func (s *Sim) NewGrabber() (Grabber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inits == 0 {
		return nil, errors.Wrap(ErrInit, "runtime not initialised")
	}
	g := &SimGrabber{sim: s}
	s.grabbers = append(s.grabbers, g)
	return g, nil
}

// Grabbers returns the grabbers created by the runtime.
func (s *Sim) Grabbers() []*SimGrabber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*SimGrabber(nil), s.grabbers...)
}

// SimGrabber is a Grabber for simulated devices.
type SimGrabber struct {
	sim *Sim

	mu        sync.Mutex
	dev       *SimDevice
	norm      string
	format    string
	size      [2]int
	bpp       int
	input     string
	listeners []*Listener
	sink      *Sink
	live      bool
	closed    bool
	frame     uint64
	stop      chan struct{}
	wg        sync.WaitGroup
}

// OpenDevice opens the simulated device with the given name.
func (g *SimGrabber) OpenDevice(name string) error {
	if err := g.sim.failure(OpOpenDevice); err != nil {
		return err
	}
	g.sim.mu.Lock()
	d, ok := g.sim.devices[name]
	g.sim.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrDeviceNotFound, "no device named %q", name)
	}
	g.mu.Lock()
	g.dev = &d
	g.mu.Unlock()
	return nil
}

// SetVideoNorm sets the video norm of the open device.
func (g *SimGrabber) SetVideoNorm(norm string) error {
	if err := g.sim.failure(OpSetVideoNorm); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dev == nil {
		return ErrNotOpen
	}
	if !contains(g.dev.Norms, norm) {
		return errors.Wrapf(ErrInvalidNorm, "%q not supported by %s", norm, g.dev.Name)
	}
	g.norm = norm
	return nil
}

// SetVideoFormat sets the video format of the open device.
func (g *SimGrabber) SetVideoFormat(format string) error {
	if err := g.sim.failure(OpSetVideoFormat); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dev == nil {
		return ErrNotOpen
	}
	f, size, ok := config.ParseVideoFormat(format)
	if !ok || size[0] <= 0 || size[1] <= 0 {
		return errors.Wrapf(ErrInvalidFormat, "malformed format %q", format)
	}
	bpp, ok := g.dev.Formats[f]
	if !ok {
		return errors.Wrapf(ErrInvalidFormat, "%q not supported by %s", f, g.dev.Name)
	}
	g.format, g.size, g.bpp = f, size, bpp
	return nil
}

// SetInputChannel selects the input of the open device.
func (g *SimGrabber) SetInputChannel(input string) error {
	if err := g.sim.failure(OpSetInput); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dev == nil {
		return ErrNotOpen
	}
	if !contains(g.dev.Inputs, input) {
		return errors.Wrapf(ErrInvalidInput, "%q not available on %s", input, g.dev.Name)
	}
	g.input = input
	return nil
}

// AcqSizeMax returns the frame size of the current video format.
func (g *SimGrabber) AcqSizeMax() (width, height int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.size[0], g.size[1]
}

// BitsPerPixel returns the bits per pixel of the current video format.
func (g *SimGrabber) BitsPerPixel() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bpp
}

// AddListener registers l for frame ready events.
func (g *SimGrabber) AddListener(l *Listener) error {
	if l == nil || l.OnFrame == nil {
		return errors.Wrap(ErrListener, "listener has no frame callback")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.listeners {
		if e == l {
			return nil
		}
	}
	g.listeners = append(g.listeners, l)
	return nil
}

// RemoveListener unregisters l.
func (g *SimGrabber) RemoveListener(l *Listener) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, e := range g.listeners {
		if e == l {
			g.listeners = append(g.listeners[:i], g.listeners[i+1:]...)
			return nil
		}
	}
	return errors.Wrap(ErrListener, "listener not registered")
}

// Listeners returns the number of registered listeners.
func (g *SimGrabber) Listeners() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.listeners)
}

// ListenerBufferSizes returns the buffer size of each registered listener.
func (g *SimGrabber) ListenerBufferSizes() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	sizes := make([]int, len(g.listeners))
	for i, l := range g.listeners {
		sizes[i] = l.BufferSize
	}
	return sizes
}

// SetSink sets the frame handler sink.
func (g *SimGrabber) SetSink(s Sink) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sink = &s
	return nil
}

// Sink returns the sink set on the grabber, if any.
func (g *SimGrabber) Sink() (Sink, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sink == nil {
		return Sink{}, false
	}
	return *g.sink, true
}

// StartLive starts frame delivery. If the device has a frame rate, frames
// are generated on their own goroutine.
func (g *SimGrabber) StartLive(showWindow bool) error {
	if err := g.sim.failure(OpStartLive); err != nil {
		return errors.Wrap(ErrLive, err.Error())
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dev == nil {
		return ErrNotOpen
	}
	if g.format == "" {
		return errors.Wrap(ErrLive, "no video format set")
	}
	if g.live {
		return nil
	}
	if g.dev.FrameRate <= 0 {
		g.live = true
		return nil
	}
	var rp *replay
	if g.dev.ReplayPath != "" {
		var err error
		rp, err = openReplay(g.dev.ReplayPath)
		if err != nil {
			return errors.Wrap(ErrLive, err.Error())
		}
	}
	g.live = true
	g.stop = make(chan struct{})
	g.wg.Add(1)
	go g.generate(time.Second/time.Duration(g.dev.FrameRate), g.stop, rp)
	return nil
}

// StopLive stops frame delivery.
func (g *SimGrabber) StopLive() error {
	if err := g.sim.failure(OpStopLive); err != nil {
		return errors.Wrap(ErrLive, err.Error())
	}
	g.stopLive()
	return nil
}

func (g *SimGrabber) stopLive() {
	g.mu.Lock()
	if !g.live {
		g.mu.Unlock()
		return
	}
	g.live = false
	if g.stop != nil {
		close(g.stop)
		g.stop = nil
	}
	g.mu.Unlock()
	g.wg.Wait()
}

// Live returns true if the grabber is in live mode.
func (g *SimGrabber) Live() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.live
}

// Close stops live mode and closes the device.
func (g *SimGrabber) Close() error {
	g.stopLive()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dev = nil
	g.listeners = nil
	g.closed = true
	return nil
}

// Closed returns true if the grabber has been closed.
func (g *SimGrabber) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Emit delivers data to the registered listeners as the next frame,
// regardless of live mode.
func (g *SimGrabber) Emit(data []byte) {
	g.mu.Lock()
	n := g.frame
	g.frame++
	ls := append([]*Listener(nil), g.listeners...)
	g.mu.Unlock()
	for _, l := range ls {
		l.OnFrame(data, n)
	}
}

// generate produces a moving grey scale ramp, or frames read from rp if not
// nil, at the given interval until stop is closed.
func (g *SimGrabber) generate(interval time.Duration, stop chan struct{}, rp *replay) {
	defer g.wg.Done()
	if rp != nil {
		defer rp.Close()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var buf []byte
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		g.mu.Lock()
		w, h, bpp, n := g.size[0], g.size[1], g.bpp, g.frame
		g.mu.Unlock()

		bytesPerPixel := bpp / 8
		if cap(buf) < w*h*bytesPerPixel {
			buf = make([]byte, w*h*bytesPerPixel)
		}
		buf = buf[:w*h*bytesPerPixel]
		if rp != nil {
			if err := rp.readFrame(buf); err != nil {
				return
			}
			g.Emit(buf)
			continue
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := byte(x + y + int(n))
				for c := 0; c < bytesPerPixel; c++ {
					buf[(y*w+x)*bytesPerPixel+c] = v
				}
			}
		}
		g.Emit(buf)
	}
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
