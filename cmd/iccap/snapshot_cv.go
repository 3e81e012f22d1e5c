//go:build withcv
// +build withcv

/*
DESCRIPTION
  snapshot_cv.go writes snapshots as PNG images using gocv.

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

	"gocv.io/x/gocv"

	"github.com/ausocean/iccapture/buffer"
)

const snapshotExt = ".png"

// writeSnapshot writes the grey scale frame f to path.
func writeSnapshot(path string, f buffer.Frame) error {
	if f.PixelType != buffer.PixelUint8 || f.Components != 1 {
		return fmt.Errorf("cannot write %v frame with %d components", f.PixelType, f.Components)
	}
	img, err := gocv.NewMatFromBytes(f.Size[1], f.Size[0], gocv.MatTypeCV8U, f.Pixels)
	if err != nil {
		return fmt.Errorf("could not create image: %w", err)
	}
	defer img.Close()

	// Equalise so that dim ultrasound frames are visible.
	gocv.EqualizeHist(img, &img)
	if !gocv.IMWrite(path, img) {
		return fmt.Errorf("could not write image to %s", path)
	}
	return nil
}
