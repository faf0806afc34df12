package capture

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"screenlink/internal/core/domain"
)

type fakeGrabber struct {
	bounds image.Rectangle
	grabs  int
	err    error
}

func (g *fakeGrabber) Bounds() image.Rectangle { return g.bounds }

func (g *fakeGrabber) Grab() (*image.RGBA, error) {
	g.grabs++
	if g.err != nil {
		return nil, g.err
	}
	return image.NewRGBA(g.bounds), nil
}

func fastProfile() domain.QualityProfile {
	return domain.CustomProfile(64, 48, 200, 500)
}

func TestSource_ProducesScaledFrames(t *testing.T) {
	grabber := &fakeGrabber{bounds: image.Rect(0, 0, 1920, 1080)}
	src := NewSource(grabber, fastProfile(), zaptest.NewLogger(t).Sugar())
	defer src.Stop()

	frame, err := src.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 64, frame.Width)
	assert.Equal(t, 48, frame.Height)
	assert.Len(t, frame.I420, i420Size(64, 48))
}

func TestSource_PacesToFrameRate(t *testing.T) {
	grabber := &fakeGrabber{bounds: image.Rect(0, 0, 64, 48)}
	src := NewSource(grabber, domain.CustomProfile(64, 48, 50, 500), zaptest.NewLogger(t).Sugar())
	defer src.Stop()

	ctx := context.Background()
	_, err := src.NextFrame(ctx)
	require.NoError(t, err)

	start := time.Now()
	_, err = src.NextFrame(ctx)
	require.NoError(t, err)

	// 50 fps means at least ~20ms between deliveries.
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestSource_StopIsTerminal(t *testing.T) {
	grabber := &fakeGrabber{bounds: image.Rect(0, 0, 64, 48)}
	src := NewSource(grabber, fastProfile(), zaptest.NewLogger(t).Sugar())

	src.Stop()
	src.Stop() // idempotent

	_, err := src.NextFrame(context.Background())
	assert.ErrorIs(t, err, domain.ErrSourceStopped)
}

func TestSource_GrabFailureIsTerminal(t *testing.T) {
	grabErr := errors.New("display went away")
	grabber := &fakeGrabber{bounds: image.Rect(0, 0, 64, 48), err: grabErr}
	src := NewSource(grabber, fastProfile(), zaptest.NewLogger(t).Sugar())

	_, err := src.NextFrame(context.Background())
	assert.ErrorIs(t, err, grabErr)

	// The failure sticks; the grabber is not polled again.
	_, err = src.NextFrame(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, grabber.grabs)
}

func TestSource_SetQualityChangesOutputSize(t *testing.T) {
	grabber := &fakeGrabber{bounds: image.Rect(0, 0, 1920, 1080)}
	src := NewSource(grabber, fastProfile(), zaptest.NewLogger(t).Sugar())
	defer src.Stop()

	ctx := context.Background()
	_, err := src.NextFrame(ctx)
	require.NoError(t, err)

	src.SetQuality(domain.CustomProfile(128, 96, 200, 1000))
	frame, err := src.NextFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, 128, frame.Width)
	assert.Equal(t, 96, frame.Height)
}

func TestSource_ContextCancelUnblocksWait(t *testing.T) {
	grabber := &fakeGrabber{bounds: image.Rect(0, 0, 64, 48)}
	src := NewSource(grabber, domain.CustomProfile(64, 48, 1, 500), zaptest.NewLogger(t).Sugar())
	defer src.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	_, err := src.NextFrame(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = src.NextFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
