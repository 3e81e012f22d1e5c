//go:build windows && udshl
// +build windows,udshl

/*
DESCRIPTION
  udshl_windows.go binds the DShowLib C++ SDK through the C shim in
  udshl_windows.cpp.

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

/*
#cgo CXXFLAGS: -std=c++11 -I"C:/Program Files/The Imaging Source Europe GmbH/IC Imaging Control 3.4/classlib/include"
#cgo LDFLAGS: -L"C:/Program Files/The Imaging Source Europe GmbH/IC Imaging Control 3.4/classlib/x64/release" -lTIS_UDSHL11_x64
#include <stdlib.h>
#include "udshl.h"
*/
import "C"

import (
	"runtime/cgo"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// Available reports whether the native runtime was built in.
func Available() bool { return true }

// NewRuntime returns the native DShowLib runtime.
func NewRuntime() (Runtime, error) { return &native{}, nil }

type native struct{}

func (native) Init() error {
	if C.ic_init_library() == 0 {
		return ErrInit
	}
	return nil
}

func (native) Exit() { C.ic_exit_library() }

func (native) Version() (major, minor int) {
	return int(C.ic_version_major()), int(C.ic_version_minor())
}

func (native) NewGrabber() (Grabber, error) {
	g := C.ic_grabber_new()
	if g == nil {
		return nil, errors.Wrap(ErrInit, "could not create grabber")
	}
	return &nativeGrabber{g: g}, nil
}

type nativeGrabber struct {
	mu sync.Mutex
	g  *C.ic_grabber
	l  *Listener
	h  cgo.Handle

	// The format properties are cached under their own lock as frame
	// callbacks query them while n.mu may be held by StopLive or Close.
	fmtMu sync.Mutex
	size  [2]int
	bpp   int
}

// refresh caches the properties of the current video format. n.mu must be
// held.
func (n *nativeGrabber) refresh() {
	w, h := int(C.ic_acq_size_max_x(n.g)), int(C.ic_acq_size_max_y(n.g))
	bpp := int(C.ic_bits_per_pixel(n.g))
	n.fmtMu.Lock()
	n.size, n.bpp = [2]int{w, h}, bpp
	n.fmtMu.Unlock()
}

// call invokes a shim function taking a string, returning err if the shim
// reports failure.
func (n *nativeGrabber) call(f func(*C.ic_grabber, *C.char) C.int, s string, err error) error {
	cs := C.CString(s)
	defer C.free(unsafe.Pointer(cs))
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.g == nil {
		return ErrNotOpen
	}
	if f(n.g, cs) == 0 {
		return errors.Wrapf(err, "%q", s)
	}
	n.refresh()
	return nil
}

func (n *nativeGrabber) OpenDevice(name string) error {
	return n.call(func(g *C.ic_grabber, s *C.char) C.int { return C.ic_open_dev(g, s) }, name, ErrDeviceNotFound)
}

func (n *nativeGrabber) SetVideoNorm(norm string) error {
	return n.call(func(g *C.ic_grabber, s *C.char) C.int { return C.ic_set_video_norm(g, s) }, norm, ErrInvalidNorm)
}

func (n *nativeGrabber) SetVideoFormat(format string) error {
	return n.call(func(g *C.ic_grabber, s *C.char) C.int { return C.ic_set_video_format(g, s) }, format, ErrInvalidFormat)
}

func (n *nativeGrabber) SetInputChannel(input string) error {
	return n.call(func(g *C.ic_grabber, s *C.char) C.int { return C.ic_set_input_channel(g, s) }, input, ErrInvalidInput)
}

func (n *nativeGrabber) AcqSizeMax() (width, height int) {
	n.fmtMu.Lock()
	defer n.fmtMu.Unlock()
	return n.size[0], n.size[1]
}

func (n *nativeGrabber) BitsPerPixel() int {
	n.fmtMu.Lock()
	defer n.fmtMu.Unlock()
	return n.bpp
}

// AddListener registers l. The shim supports a single listener per grabber.
func (n *nativeGrabber) AddListener(l *Listener) error {
	if l == nil || l.OnFrame == nil {
		return errors.Wrap(ErrListener, "listener has no frame callback")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.l != nil {
		return errors.Wrap(ErrListener, "listener already registered")
	}
	h := cgo.NewHandle(l)
	if C.ic_add_listener(n.g, C.uintptr_t(h), C.int(l.BufferSize)) == 0 {
		h.Delete()
		return errors.Wrap(ErrListener, "could not add listener")
	}
	n.l, n.h = l, h
	return nil
}

func (n *nativeGrabber) RemoveListener(l *Listener) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.l == nil || n.l != l {
		return errors.Wrap(ErrListener, "listener not registered")
	}
	C.ic_remove_listener(n.g)
	n.h.Delete()
	n.l = nil
	return nil
}

func (n *nativeGrabber) SetSink(s Sink) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	snap := 0
	if s.SnapMode {
		snap = 1
	}
	count := s.BufferCount
	if count <= 0 {
		count = 1
	}
	if C.ic_set_sink(n.g, C.int(s.Format), C.int(count), C.int(snap)) == 0 {
		return errors.Errorf("could not set %v sink", s.Format)
	}
	return nil
}

func (n *nativeGrabber) StartLive(showWindow bool) error {
	show := 0
	if showWindow {
		show = 1
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if C.ic_start_live(n.g, C.int(show)) == 0 {
		return errors.Wrap(ErrLive, "startLive failed")
	}
	return nil
}

// StopLive stops live mode. The SDK waits for running frame callbacks.
func (n *nativeGrabber) StopLive() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.g == nil {
		return ErrNotOpen
	}
	if C.ic_stop_live(n.g) == 0 {
		return errors.Wrap(ErrLive, "stopLive failed")
	}
	return nil
}

func (n *nativeGrabber) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.g == nil {
		return nil
	}
	C.ic_stop_live(n.g)
	if n.l != nil {
		C.ic_remove_listener(n.g)
		n.h.Delete()
		n.l = nil
	}
	C.ic_grabber_delete(n.g)
	n.g = nil
	return nil
}

//export goICFrameReady
func goICFrameReady(handle C.uintptr_t, data *C.uchar, size C.ulong, frame C.ulong) {
	l, ok := cgo.Handle(handle).Value().(*Listener)
	if !ok {
		return
	}
	var p []byte
	if data != nil && size > 0 {
		p = unsafe.Slice((*byte)(unsafe.Pointer(data)), int(size))
	}
	l.OnFrame(p, uint64(frame))
}
