/*
DESCRIPTION
  device.go provides Device, an interface that describes a configurable
  acquisition device that can be connected, started and stopped, and which
  delivers captured frames to its output channels.

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

// Package device provides an interface for acquisition devices that can be
// connected, started and stopped, from which frames can be obtained through
// their output channels.
package device

import (
	"fmt"

	"github.com/ausocean/iccapture/config"
)

// Device describes a configurable acquisition device.
type Device interface {
	// Name returns the name of the Device.
	Name() string

	// Set allows for configuration of the Device using a Config struct. All,
	// some or none of the fields of the Config struct may be used for configuration
	// by an implementation. An implementation should specify what fields are
	// considered.
	Set(c config.Config) error

	// Connect opens the underlying hardware using the current configuration.
	Connect() error

	// Disconnect releases the underlying hardware, stopping capture first if
	// required.
	Disconnect() error

	// Start will start the Device recording frames to its output channels.
	// The Device must be connected.
	Start() error

	// Stop will stop the Device from recording. Frames arriving after Stop
	// are dropped.
	Stop() error

	// IsRunning is used to determine if the device is recording.
	IsRunning() bool
}

// State is the connection state of a Device.
type State int

// Device states.
const (
	StateDisconnected State = iota
	StateConnected
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateRecording:
		return "recording"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MultiError implements the built in error interface. MultiError is used here
// to collect multiple errors during validation of configuration parameters for
// Devices.
type MultiError []error

func (me MultiError) Error() string {
	if len(me) == 0 {
		panic("device: invalid use of MultiError")
	}
	return fmt.Sprintf("%v", []error(me))
}

// Unwrap returns the collected errors so that errors.Is and errors.As may
// inspect them.
func (me MultiError) Unwrap() []error { return me }
