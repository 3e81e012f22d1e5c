/*
DESCRIPTION
  clip.go provides the clip rectangle applied to captured frames.

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

// Rect is a clip rectangle in pixels.
type Rect struct {
	Origin [2]int
	Size   [2]int
}

// Active returns true if clipping is enabled, i.e. both sizes are positive.
func (r Rect) Active() bool { return r.Size[0] > 0 && r.Size[1] > 0 }

// LimitToFrame returns r adjusted to lie within a frame of the given size.
// An origin outside the frame is reset to (0,0) and a size extending past
// the frame edge is truncated to the remaining extent.
func (r Rect) LimitToFrame(frame [2]int) Rect {
	if r.Origin[0] < 0 || r.Origin[1] < 0 || r.Origin[0] >= frame[0] || r.Origin[1] >= frame[1] {
		r.Origin = [2]int{}
	}
	if r.Origin[0]+r.Size[0] >= frame[0] {
		r.Size[0] = frame[0] - r.Origin[0]
	}
	if r.Origin[1]+r.Size[1] > frame[1] {
		r.Size[1] = frame[1] - r.Origin[1]
	}
	return r
}

// Crop copies the region r of the 8 bit frame src, of the given size, into
// dst row by row and returns dst, reallocated if too small. r must lie within
// the frame, see LimitToFrame. src is not modified.
func Crop(dst, src []byte, frame [2]int, r Rect) []byte {
	n := r.Size[0] * r.Size[1]
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	for y := 0; y < r.Size[1]; y++ {
		off := (r.Origin[1]+y)*frame[0] + r.Origin[0]
		copy(dst[y*r.Size[0]:(y+1)*r.Size[0]], src[off:off+r.Size[0]])
	}
	return dst
}
