package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"

	"screenlink/internal/core/domain"
	"screenlink/internal/core/ports"
	"screenlink/pkg/optimize"
)

// Source paces, scales and color-converts frames from a grabber into the
// I420 layout the encoder consumes. One source feeds exactly one viewer
// session; sources reading the same display are independent.
//
// The frame sequence is infinite and non-restartable: after Stop every
// NextFrame returns domain.ErrSourceStopped and a new source must be built
// to resume.
type Source struct {
	grabber ports.FrameGrabber

	mu        sync.Mutex
	quality   domain.QualityProfile
	lastFrame time.Time
	failed    error

	stopOnce sync.Once
	stopped  chan struct{}

	// buffers recycles I420 frame storage. The previous frame's buffer is
	// returned on the next NextFrame call; callers consume frames
	// sequentially, one at a time.
	buffers *optimize.BufferPool
	prev    []byte

	screenW int
	screenH int

	logger *zap.SugaredLogger
}

// NewSource binds a grabber to an initial quality profile.
func NewSource(grabber ports.FrameGrabber, quality domain.QualityProfile, logger *zap.SugaredLogger) *Source {
	bounds := grabber.Bounds()
	s := &Source{
		grabber: grabber,
		quality: quality,
		stopped: make(chan struct{}),
		buffers: optimize.NewBufferPool(i420Size(quality.Width&^1, quality.Height&^1)),
		screenW: bounds.Dx(),
		screenH: bounds.Dy(),
		logger:  logger,
	}
	logger.Infow("capture source ready",
		"screen", fmt.Sprintf("%dx%d", s.screenW, s.screenH),
		"output", fmt.Sprintf("%dx%d", quality.Width, quality.Height),
		"fps", quality.FrameRate,
	)
	return s
}

// ScreenSize reports the actual display resolution, used by the input router
// for coordinate rescaling.
func (s *Source) ScreenSize() (int, int) {
	return s.screenW, s.screenH
}

// SetQuality swaps the active profile. It takes effect from the next captured
// frame; the underlying grabber is not reopened.
func (s *Source) SetQuality(quality domain.QualityProfile) {
	s.mu.Lock()
	s.quality = quality
	s.mu.Unlock()
	s.logger.Infow("capture quality changed",
		"profile", quality.Name,
		"output", fmt.Sprintf("%dx%d", quality.Width, quality.Height),
		"fps", quality.FrameRate,
	)
}

// Quality returns the profile in effect for the next frame.
func (s *Source) Quality() domain.QualityProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quality
}

// NextFrame blocks until the frame interval has elapsed since the previous
// delivery, then captures, scales and converts one frame. A grab failure is
// terminal for the source; callers should close the owning session rather
// than poll a dead source.
func (s *Source) NextFrame(ctx context.Context) (*ports.VideoFrame, error) {
	select {
	case <-s.stopped:
		return nil, domain.ErrSourceStopped
	default:
	}

	s.mu.Lock()
	if s.failed != nil {
		err := s.failed
		s.mu.Unlock()
		return nil, err
	}
	quality := s.quality
	interval := time.Second / time.Duration(quality.FrameRate)
	wait := interval - time.Since(s.lastFrame)
	s.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.stopped:
			return nil, domain.ErrSourceStopped
		case <-timer.C:
		}
	}

	img, err := s.grabber.Grab()
	if err != nil {
		s.mu.Lock()
		s.failed = err
		s.mu.Unlock()
		s.Stop()
		return nil, err
	}

	s.mu.Lock()
	s.lastFrame = time.Now()
	s.mu.Unlock()

	// I420 chroma planes need even dimensions.
	w, h := quality.Width&^1, quality.Height&^1
	if img.Bounds().Dx() != w || img.Bounds().Dy() != h {
		img = scaleRGBA(img, w, h)
	}

	if s.prev != nil {
		s.buffers.Put(s.prev)
	}
	buf := s.buffers.Get(i420Size(w, h))
	s.prev = buf

	return &ports.VideoFrame{
		Width:  w,
		Height: h,
		I420:   rgbaToI420(img, buf),
	}, nil
}

// Stop terminates the frame sequence. Idempotent and safe from any goroutine.
func (s *Source) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.logger.Debug("capture source stopped")
	})
}

func scaleRGBA(src *image.RGBA, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}
