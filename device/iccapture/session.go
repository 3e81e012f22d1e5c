/*
DESCRIPTION
  session.go provides the connection to an opened frame grabber.

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
	"errors"

	"github.com/ausocean/iccapture/device/iccapture/dshow"
)

// session owns an initialised runtime, the grabber it created and the frame
// listener registered on it. A session exists only while the source is
// connected.
type session struct {
	rt       dshow.Runtime
	g        dshow.Grabber
	listener *dshow.Listener
}

// close removes the listener, closes the grabber and releases the runtime.
// Every step is attempted and any errors are joined.
func (s *session) close() error {
	var errs []error
	if s.listener != nil {
		if err := s.g.RemoveListener(s.listener); err != nil {
			errs = append(errs, err)
		}
		s.listener = nil
	}
	if s.g != nil {
		if err := s.g.Close(); err != nil {
			errs = append(errs, err)
		}
		s.g = nil
	}
	if s.rt != nil {
		s.rt.Exit()
		s.rt = nil
	}
	return errors.Join(errs...)
}
