/*
DESCRIPTION
  stats.go provides intensity statistics of captured frames.

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

import "gonum.org/v1/gonum/stat"

// frameStats returns the mean and standard deviation of the 8 bit pixel
// intensities pix.
func frameStats(pix []byte) (mean, std float64) {
	if len(pix) == 0 {
		return 0, 0
	}
	x := make([]float64, len(pix))
	for i, p := range pix {
		x[i] = float64(p)
	}
	return stat.MeanStdDev(x, nil)
}
