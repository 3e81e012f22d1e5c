/*
DESCRIPTION
  snapshot.go provides periodic writing of captured frames to image files.

AUTHORS
  The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"fmt"
	"path/filepath"

	"github.com/ausocean/iccapture/buffer"
	"github.com/ausocean/utils/logging"
)

// snapshotter writes every nth frame it is given to dir.
type snapshotter struct {
	log   logging.Logger
	dir   string
	every int
	n     int
}

// newSnapshotter returns a snapshotter writing to dir. An empty dir disables
// snapshots.
func newSnapshotter(l logging.Logger, dir string, every int) *snapshotter {
	if every <= 0 {
		every = 1
	}
	return &snapshotter{log: l, dir: dir, every: every}
}

// add counts f and writes it if it is due.
func (s *snapshotter) add(f buffer.Frame) error {
	if s.dir == "" {
		return nil
	}
	s.n++
	if (s.n-1)%s.every != 0 {
		return nil
	}
	path := filepath.Join(s.dir, fmt.Sprintf("frame%08d%s", f.Number, snapshotExt))
	err := writeSnapshot(path, f)
	if err != nil {
		return err
	}
	s.log.Debug(pkg+"wrote snapshot", "path", path)
	return nil
}
