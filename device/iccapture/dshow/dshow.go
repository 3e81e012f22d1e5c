/*
DESCRIPTION
  dshow.go describes the surface of The Imaging Source DShowLib frame grabber
  SDK used by the IC capture source.

AUTHORS
  The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package dshow provides access to The Imaging Source DShowLib (UDSHL) frame
// grabber SDK. The native binding is only available on Windows when built
// with the udshl tag; a simulated runtime is provided for other platforms and
// for testing.
package dshow

import (
	"errors"
	"sync"
)

// ColorFormat is a sink colour format.
type ColorFormat int

// Sink colour formats.
const (
	RGB8 ColorFormat = iota // 8 bit grey scale.
	Y800
	RGB24
	RGB32
	UYVY
)

func (f ColorFormat) String() string {
	switch f {
	case RGB8:
		return "RGB8"
	case Y800:
		return "Y800"
	case RGB24:
		return "RGB24"
	case RGB32:
		return "RGB32"
	case UYVY:
		return "UYVY"
	default:
		return "unknown"
	}
}

// Sink describes the frame handler sink frames are delivered through.
type Sink struct {
	Format      ColorFormat
	BufferCount int

	// SnapMode, if true, only delivers frames when explicitly snapped.
	SnapMode bool
}

// FrameFunc is called for every captured frame. data is owned by the
// runtime and is only valid for the duration of the call.
type FrameFunc func(data []byte, frameNumber uint64)

// Listener receives frame ready events from a Grabber.
type Listener struct {
	OnFrame    FrameFunc
	BufferSize int // Number of frame buffers held for the listener.
}

// Runtime is the SDK runtime. Init must be called before grabbers are used
// and Exit once they have been released.
type Runtime interface {
	Init() error
	Exit()
	Version() (major, minor int)
	NewGrabber() (Grabber, error)
}

// Grabber controls a single capture device.
type Grabber interface {
	OpenDevice(name string) error
	SetVideoNorm(norm string) error

	// SetVideoFormat sets the video format using a format string of the form
	// "Y800 (640x480)".
	SetVideoFormat(format string) error

	SetInputChannel(input string) error

	// AcqSizeMax returns the maximum acquisition size of the current video
	// format.
	AcqSizeMax() (width, height int)

	// BitsPerPixel returns the bits per pixel of the current video format.
	BitsPerPixel() int

	AddListener(l *Listener) error
	RemoveListener(l *Listener) error
	SetSink(s Sink) error
	StartLive(showWindow bool) error
	StopLive() error

	// Close closes the device and releases the grabber.
	Close() error
}

// SDK errors.
var (
	ErrNotAvailable   = errors.New("DShowLib not available, build on windows with -tags udshl")
	ErrInit           = errors.New("could not initialise library")
	ErrDeviceNotFound = errors.New("device not found")
	ErrNotOpen        = errors.New("device not open")
	ErrInvalidNorm    = errors.New("invalid video norm")
	ErrInvalidFormat  = errors.New("invalid video format")
	ErrInvalidInput   = errors.New("invalid input channel")
	ErrLive           = errors.New("live mode failure")
	ErrListener       = errors.New("listener failure")
)

var (
	exitMu    sync.Mutex
	exitHooks = make(map[Runtime]bool)
	exitOrder []Runtime
)

// RegisterExit arranges for rt.Exit to be called by RunExitHooks. Repeated
// registration of the same runtime has no effect.
func RegisterExit(rt Runtime) {
	exitMu.Lock()
	defer exitMu.Unlock()
	if exitHooks[rt] {
		return
	}
	exitHooks[rt] = true
	exitOrder = append(exitOrder, rt)
}

// RunExitHooks calls Exit on every registered runtime. It should be called
// when the program exits, including when it is forced to exit by a signal.
func RunExitHooks() {
	exitMu.Lock()
	hooks := exitOrder
	exitOrder = nil
	exitHooks = make(map[Runtime]bool)
	exitMu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i].Exit()
	}
}
