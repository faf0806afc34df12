package ports

import (
	"context"
	"image"

	"screenlink/internal/core/domain"
)

// VideoFrame is one captured frame converted to the I420 layout the encoder
// consumes.
type VideoFrame struct {
	Width  int
	Height int
	I420   []byte
}

// FrameGrabber is the only abstraction touching the OS display surface.
type FrameGrabber interface {
	Bounds() image.Rectangle
	Grab() (*image.RGBA, error)
}

// CaptureSource produces a lazy, infinite, non-restartable frame sequence at
// a profile's resolution and rate. Stop is idempotent and terminal.
type CaptureSource interface {
	NextFrame(ctx context.Context) (*VideoFrame, error)
	SetQuality(profile domain.QualityProfile)
	Quality() domain.QualityProfile
	ScreenSize() (int, int)
	Stop()
}

// VideoEncoder turns I420 frames into VP8 payloads ready for packetization.
// SetBitrate applies from the next encoded frame without reinitializing.
type VideoEncoder interface {
	Encode(frame *VideoFrame) ([]byte, error)
	SetBitrate(kbps int) error
	ForceKeyframe()
	Close() error
}

// MouseButton numbering follows the web MouseEvent.button convention.
type MouseButton int

const (
	MouseLeft   MouseButton = 0
	MouseMiddle MouseButton = 1
	MouseRight  MouseButton = 2
)

// InputDriver injects pointer and key actions into the local OS.
type InputDriver interface {
	MouseMove(x, y int) error
	MouseDown(x, y int, button MouseButton) error
	MouseUp(x, y int, button MouseButton) error
	Click(x, y int, button MouseButton) error
	DoubleClick(x, y int, button MouseButton) error
	Scroll(x, y, dx, dy int) error
	KeyDown(key string) error
	KeyUp(key string) error
}
