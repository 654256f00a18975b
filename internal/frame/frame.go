// Package frame defines the immutable, reference-counted image handle that
// flows one-way through a pipeline: source -> detector -> tracker -> analyzer.
package frame

import (
	"image"
	"sync/atomic"
)

// Frame is a decoded image plus the capture metadata a pipeline needs to
// keep stages in order. Frames are shared by reference; no stage may
// mutate Pix. Release must be called exactly once by every stage that
// receives a Frame (including the producer once it has handed the frame
// downstream).
type Frame struct {
	CameraID    string
	Sequence    uint64
	TimestampNs int64
	Img         image.Image

	refs *int32
}

// New wraps img into a Frame with an initial reference count of 1.
func New(cameraID string, sequence uint64, timestampNs int64, img image.Image) *Frame {
	refs := int32(1)
	return &Frame{
		CameraID:    cameraID,
		Sequence:    sequence,
		TimestampNs: timestampNs,
		Img:         img,
		refs:        &refs,
	}
}

// Bounds is a convenience accessor so downstream stages don't need to
// reach into Img directly.
func (f *Frame) Bounds() image.Rectangle {
	if f.Img == nil {
		return image.Rectangle{}
	}
	return f.Img.Bounds()
}

// Retain increments the reference count; call once per additional stage
// that needs to hold the frame past the point its producer releases it
// (e.g. handing a frame to both the tracker and a preview encoder).
func (f *Frame) Retain() *Frame {
	atomic.AddInt32(f.refs, 1)
	return f
}

// Release decrements the reference count. It is safe to call concurrently
// from multiple stages; the caller must not touch Img after the call that
// brings the count to zero.
func (f *Frame) Release() {
	atomic.AddInt32(f.refs, -1)
}

// RefCount reports the current reference count; intended for tests and
// leak diagnostics, not for control flow.
func (f *Frame) RefCount() int32 {
	return atomic.LoadInt32(f.refs)
}
