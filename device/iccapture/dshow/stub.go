//go:build !(windows && udshl)
// +build !windows !udshl

/*
DESCRIPTION
  stub.go replaces the native DShowLib binding on builds without the SDK.

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

// NewRuntime returns ErrNotAvailable; the native runtime requires a windows
// build with the udshl tag.
func NewRuntime() (Runtime, error) { return nil, ErrNotAvailable }

// Available reports whether the native runtime was built in.
func Available() bool { return false }
