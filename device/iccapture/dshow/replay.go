/*
DESCRIPTION
  replay.go provides reading of recorded raw frames from a file so that the
  simulated runtime can replay a capture.

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

package dshow

import (
	"fmt"
	"io"
	"os"
)

// replay reads fixed size raw frames from a file, looping back to the start
// when the end of the file is reached. A trailing partial frame is skipped.
type replay struct {
	f    *os.File
	path string
}

func openReplay(path string) (*replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open replay file: %w", err)
	}
	return &replay{f: f, path: path}, nil
}

// readFrame fills p with the next frame.
func (r *replay) readFrame(p []byte) error {
	_, err := io.ReadFull(r.f, p)
	if err == nil {
		return nil
	}
	if err != io.EOF && err != io.ErrUnexpectedEOF {
		return err
	}

	_, err = r.f.Seek(0, io.SeekStart)
	if err != nil {
		return fmt.Errorf("could not seek to start of replay file: %w", err)
	}
	_, err = io.ReadFull(r.f, p)
	if err != nil {
		return fmt.Errorf("could not read frame after seeking to start of %s: %w", r.path, err)
	}
	return nil
}

func (r *replay) Close() error { return r.f.Close() }
