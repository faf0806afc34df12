package capture

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"

	"screenlink/internal/core/domain"
)

// DisplayGrabber reads frames from one physical display. It is the only type
// in the repository touching the OS display surface.
type DisplayGrabber struct {
	monitor int
	bounds  image.Rectangle
}

// NewDisplayGrabber binds a grabber to a monitor index (0 = primary).
func NewDisplayGrabber(monitor int) (*DisplayGrabber, error) {
	n := screenshot.NumActiveDisplays()
	if monitor < 0 || monitor >= n {
		return nil, fmt.Errorf("%w: index %d, have %d displays", domain.ErrMonitorNotFound, monitor, n)
	}
	return &DisplayGrabber{
		monitor: monitor,
		bounds:  screenshot.GetDisplayBounds(monitor),
	}, nil
}

// Bounds reports the real display rectangle, independent of any requested
// output resolution.
func (g *DisplayGrabber) Bounds() image.Rectangle {
	return g.bounds
}

// Grab captures the display once. The display is read-only; concurrent
// grabbers on the same display do not need mutual exclusion.
func (g *DisplayGrabber) Grab() (*image.RGBA, error) {
	img, err := screenshot.CaptureRect(g.bounds)
	if err != nil {
		return nil, fmt.Errorf("display capture failed: %w", err)
	}
	return img, nil
}
