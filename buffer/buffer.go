/*
DESCRIPTION
  buffer.go provides Buffer, a circular buffer of video frames with their
  metadata, backed by a pool buffer.

AUTHORS
  The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package buffer provides a circular buffer for video frames. Frames are
// appended with their metadata (orientation, size, pixel type, image type,
// timestamp and frame number) and read back in order of arrival. When the
// buffer is full the oldest frames are overwritten.
package buffer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"time"

	"github.com/ausocean/utils/pool"
)

// PixelType describes the type of a single pixel component.
type PixelType uint8

// Pixel types.
const (
	PixelUnknown PixelType = iota
	PixelUint8
)

func (p PixelType) String() string {
	switch p {
	case PixelUint8:
		return "uint8"
	default:
		return "unknown"
	}
}

// Size returns the number of bytes of a pixel component.
func (p PixelType) Size() int {
	switch p {
	case PixelUint8:
		return 1
	default:
		return 0
	}
}

// ImageType describes what the pixel values of a frame represent.
type ImageType uint8

// Image types.
const (
	ImageUnknown ImageType = iota
	ImageBrightness
	ImageRFReal
	ImageRGBColor
)

// Orientation is the ultrasound image orientation tag of a frame, e.g. "MF".
type Orientation string

// Frame holds a video frame and its metadata.
type Frame struct {
	Pixels      []byte
	Orientation Orientation
	Size        [2]int // Width and height in pixels.
	PixelType   PixelType
	Components  int // Number of components per pixel.
	ImageType   ImageType

	// Timestamp is the acquisition time of the frame. If zero when the frame
	// is added, the time of addition is used.
	Timestamp time.Time

	Number uint64 // Frame number as reported by the device.
}

// Buffer errors.
var (
	ErrNotConfigured = errors.New("buffer frame size or pixel type not set")
	ErrPixelType     = errors.New("frame pixel type does not match buffer")
	ErrFrameSize     = errors.New("frame size does not match buffer")
	ErrShortFrame    = errors.New("frame has fewer pixels than its size requires")
	ErrClosed        = errors.New("buffer closed")
	errBadItem       = errors.New("malformed buffer item")
)

// Length of the fixed part of an item header in bytes.
const headerLen = 8 + 8 + 4 + 4 + 1 + 1 + 1 + 1

// Default total allocation of pool buffers.
const minPoolAlloc = 1 << 20

// reserved is the pool allocation needed by all live buffers. The pool
// allocation limit is shared by the process so it is kept at least this
// large.
var (
	reservedMu sync.Mutex
	reserved   int
)

// reserve adjusts the pool allocation reserved by a buffer by delta and
// raises or lowers the pool limit to match.
func reserve(delta int) {
	reservedMu.Lock()
	defer reservedMu.Unlock()
	reserved += delta
	limit := reserved
	if limit < minPoolAlloc {
		limit = minPoolAlloc
	}
	// Chunks of closed buffers may still be held by their readers.
	if a := pool.Allocated(); a > limit {
		limit = a
	}
	pool.MaxAlloc(limit)
}

// chunkSize returns the allocation the pool makes for an item of n bytes,
// which is rounded up to a power of two.
func chunkSize(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// Buffer is a circular buffer of frames. A Buffer is safe for use by one
// writer and one reader concurrently.
type Buffer struct {
	mu        sync.Mutex
	pool      *pool.Buffer
	alloc     int           // Pool allocation reserved for the buffer.
	n         int           // Number of frames held.
	timeout   time.Duration // Pool buffer write timeout.
	pixelType PixelType
	frameSize [2]int
	scratch   []byte
	dropped   int
	now       func() time.Time
}

// New returns a new Buffer holding up to n frames. SetPixelType and
// SetFrameSize must be called before frames can be added.
func New(n int, timeout time.Duration) *Buffer {
	return &Buffer{n: n, timeout: timeout, now: time.Now}
}

// SetPixelType sets the pixel type of frames held by the buffer.
func (b *Buffer) SetPixelType(p PixelType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p != b.pixelType {
		b.pixelType = p
		b.reset()
	}
}

// PixelType returns the pixel type of frames held by the buffer.
func (b *Buffer) PixelType() PixelType {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pixelType
}

// SetFrameSize sets the size of frames held by the buffer. Frames already
// held are discarded if the size changes.
func (b *Buffer) SetFrameSize(s [2]int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s != b.frameSize {
		b.frameSize = s
		b.reset()
	}
}

// FrameSize returns the size of frames held by the buffer.
func (b *Buffer) FrameSize() [2]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frameSize
}

// reset replaces the pool buffer with one sized for the current frame
// parameters. b.mu must be held.
func (b *Buffer) reset() {
	b.release()
	size := b.frameSize[0] * b.frameSize[1] * b.pixelType.Size()
	if size <= 0 || b.n <= 0 {
		return
	}
	// Leave room for the header and orientation tag.
	elem := size + headerLen + 255

	// Every held frame occupies a whole chunk, as does the one being read.
	b.alloc = (b.n + 1) * chunkSize(elem)
	reserve(b.alloc)
	b.pool = pool.NewBuffer(b.n, elem, b.timeout)
}

// release closes the pool buffer and returns its reservation. b.mu must be
// held.
func (b *Buffer) release() {
	if b.pool == nil {
		return
	}
	if b.alloc != 0 {
		b.pool.Close()
		reserve(-b.alloc)
		b.alloc = 0
	}
	b.pool = nil
}

// AddItem appends the frame f to the buffer. f.Pixels is copied and may be
// reused once AddItem returns. If the buffer is full the oldest frame is
// overwritten.
func (b *Buffer) AddItem(f Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pool == nil {
		return ErrNotConfigured
	}
	if b.alloc == 0 {
		return ErrClosed
	}
	if f.PixelType != b.pixelType {
		return fmt.Errorf("%w: got %v, want %v", ErrPixelType, f.PixelType, b.pixelType)
	}
	if f.Size != b.frameSize {
		return fmt.Errorf("%w: got %v, want %v", ErrFrameSize, f.Size, b.frameSize)
	}
	if f.Components <= 0 {
		f.Components = 1
	}
	n := f.Size[0] * f.Size[1] * f.Components * f.PixelType.Size()
	if len(f.Pixels) < n {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrShortFrame, len(f.Pixels), n)
	}
	if len(f.Orientation) > 255 {
		return fmt.Errorf("orientation tag too long: %q", f.Orientation)
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = b.now()
	}

	b.scratch = encode(b.scratch[:0], f, f.Pixels[:n])
	_, err := b.pool.Write(b.scratch)
	switch err {
	case nil:
	case pool.ErrDropped:
		b.dropped++
	default:
		return fmt.Errorf("could not write frame to pool buffer: %w", err)
	}
	b.pool.Flush()
	return nil
}

// Next returns the oldest frame in the buffer, waiting up to timeout for
// one to be added. pool.ErrTimeout is returned if no frame arrives in time.
func (b *Buffer) Next(timeout time.Duration) (Frame, error) {
	b.mu.Lock()
	p := b.pool
	b.mu.Unlock()
	if p == nil {
		return Frame{}, ErrNotConfigured
	}

	chunk, err := p.Next(timeout)
	if err != nil {
		return Frame{}, err
	}
	defer chunk.Close()
	return decode(chunk.Bytes())
}

// Len returns the number of frames ready to be read.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pool == nil {
		return 0
	}
	return b.pool.Len()
}

// Dropped returns the number of frames that have been overwritten before
// being read.
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close closes the buffer. Subsequent calls to Next return io.EOF once all
// frames have been read.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pool == nil || b.alloc == 0 {
		return nil
	}
	err := b.pool.Close()
	reserve(-b.alloc)
	b.alloc = 0
	return err
}

// encode appends the header of f followed by pix to dst.
func encode(dst []byte, f Frame, pix []byte) []byte {
	var h [headerLen]byte
	binary.LittleEndian.PutUint64(h[0:], f.Number)
	binary.LittleEndian.PutUint64(h[8:], uint64(f.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint32(h[16:], uint32(f.Size[0]))
	binary.LittleEndian.PutUint32(h[20:], uint32(f.Size[1]))
	h[24] = byte(f.PixelType)
	h[25] = byte(f.Components)
	h[26] = byte(f.ImageType)
	h[27] = byte(len(f.Orientation))
	dst = append(dst, h[:]...)
	dst = append(dst, f.Orientation...)
	return append(dst, pix...)
}

func decode(p []byte) (Frame, error) {
	if len(p) < headerLen {
		return Frame{}, errBadItem
	}
	f := Frame{
		Number:     binary.LittleEndian.Uint64(p[0:]),
		Timestamp:  time.Unix(0, int64(binary.LittleEndian.Uint64(p[8:]))),
		Size:       [2]int{int(binary.LittleEndian.Uint32(p[16:])), int(binary.LittleEndian.Uint32(p[20:]))},
		PixelType:  PixelType(p[24]),
		Components: int(p[25]),
		ImageType:  ImageType(p[26]),
	}
	ol := int(p[27])
	p = p[headerLen:]
	if len(p) < ol {
		return Frame{}, errBadItem
	}
	f.Orientation = Orientation(p[:ol])
	p = p[ol:]
	if len(p) != f.Size[0]*f.Size[1]*f.Components*f.PixelType.Size() {
		return Frame{}, errBadItem
	}
	f.Pixels = append([]byte(nil), p...)
	return f, nil
}
