package webrtc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"screenlink/internal/core/domain"
	"screenlink/internal/core/ports"
	"screenlink/internal/infrastructure/monitoring"
	"screenlink/pkg/config"
)

type trackedSource struct {
	quality domain.QualityProfile
	stops   atomic.Int32
	stopped chan struct{}
}

func newTrackedSource(quality domain.QualityProfile) *trackedSource {
	return &trackedSource{quality: quality, stopped: make(chan struct{})}
}

func (s *trackedSource) NextFrame(ctx context.Context) (*ports.VideoFrame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.stopped:
		return nil, domain.ErrSourceStopped
	}
}

func (s *trackedSource) SetQuality(quality domain.QualityProfile) { s.quality = quality }
func (s *trackedSource) Quality() domain.QualityProfile           { return s.quality }
func (s *trackedSource) ScreenSize() (int, int)                   { return 1920, 1080 }

func (s *trackedSource) Stop() {
	if s.stops.Add(1) == 1 {
		close(s.stopped)
	}
}

type nopEncoder struct{}

func (nopEncoder) Encode(frame *ports.VideoFrame) ([]byte, error) { return nil, nil }
func (nopEncoder) SetBitrate(kbps int) error                      { return nil }
func (nopEncoder) ForceKeyframe()                                 {}
func (nopEncoder) Close() error                                   { return nil }

// A peer connection reporting closed must take its session down with it: the
// entry leaves the table and the capture source is stopped exactly once.
func TestConnectionStateClosed_TearsDownSession(t *testing.T) {
	var source *trackedSource
	m := NewManager(Deps{
		ICEServers: []config.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
		NewSource: func(quality domain.QualityProfile) (ports.CaptureSource, error) {
			source = newTrackedSource(quality)
			return source, nil
		},
		NewEncoder: func(quality domain.QualityProfile) (ports.VideoEncoder, error) {
			return nopEncoder{}, nil
		},
		Metrics:      monitoring.NewPrometheusCollector(prometheus.NewRegistry()),
		Logger:       zaptest.NewLogger(t).Sugar(),
		ScreenWidth:  1920,
		ScreenHeight: 1080,
	})

	_, err := m.CreateOffer(context.Background(),
		domain.CreateOfferMessage{ViewerID: "viewer-1", Quality: "low"})
	require.NoError(t, err)
	require.Equal(t, 1, m.SessionCount())

	m.mu.RLock()
	sess := m.sessions["viewer-1"]
	m.mu.RUnlock()
	require.NotNil(t, sess)

	// Closing the peer connection drives the state-change callback through
	// the closed branch, which must reap the session asynchronously.
	require.NoError(t, sess.pc.Close())

	require.Eventually(t, func() bool {
		return m.SessionCount() == 0
	}, 2*time.Second, 10*time.Millisecond, "session was not removed after the connection closed")

	require.Eventually(t, func() bool {
		return source.stops.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond, "capture source was not stopped")
	require.Equal(t, int32(1), source.stops.Load())

	state, ok := m.SessionState("viewer-1")
	require.False(t, ok, "stale session state still visible: %v", state)
}
