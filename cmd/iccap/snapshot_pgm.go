//go:build !withcv
// +build !withcv

/*
DESCRIPTION
  snapshot_pgm.go writes snapshots as binary PGM images when gocv is not
  available.

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
	"bufio"
	"fmt"
	"os"

	"github.com/ausocean/iccapture/buffer"
)

const snapshotExt = ".pgm"

// writeSnapshot writes the grey scale frame f to path.
func writeSnapshot(path string, f buffer.Frame) error {
	n := f.Size[0] * f.Size[1]
	if f.PixelType != buffer.PixelUint8 || f.Components != 1 || len(f.Pixels) < n {
		return fmt.Errorf("cannot write %v frame with %d components as PGM", f.PixelType, f.Components)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "P5\n%d %d\n255\n", f.Size[0], f.Size[1])
	w.Write(f.Pixels[:n])
	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
