package webrtc

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"screenlink/internal/core/domain"
	"screenlink/internal/core/ports"
)

const (
	rtpMTU        = 1200
	vp8ClockRate  = 90000
	rtcpBufferLen = 1500
)

// viewerSession owns one peer connection, one capture source and one encoder
// for a single viewer. Exactly one session exists per live viewer id.
type viewerSession struct {
	viewerID domain.ViewerID

	pc      *webrtc.PeerConnection
	sender  *webrtc.RTPSender
	track   *webrtc.TrackLocalStaticRTP
	source  ports.CaptureSource
	encoder ports.VideoEncoder

	packetizer rtp.Packetizer

	mu      sync.Mutex
	state   domain.SessionState
	quality domain.QualityProfile

	// Candidates that arrived before the remote answer; flushed once the
	// remote description is set.
	pendingCandidates []domain.ICECandidate

	cancel    context.CancelFunc
	closeOnce sync.Once

	logger *zap.SugaredLogger
}

func newViewerSession(
	viewerID domain.ViewerID,
	pc *webrtc.PeerConnection,
	sender *webrtc.RTPSender,
	track *webrtc.TrackLocalStaticRTP,
	source ports.CaptureSource,
	encoder ports.VideoEncoder,
	quality domain.QualityProfile,
	ssrc uint32,
	logger *zap.SugaredLogger,
) *viewerSession {
	return &viewerSession{
		viewerID: viewerID,
		pc:       pc,
		sender:   sender,
		track:    track,
		source:   source,
		encoder:  encoder,
		packetizer: rtp.NewPacketizer(
			rtpMTU,
			0, // payload type is set by the track on write
			ssrc,
			&codecs.VP8Payloader{EnablePictureID: true},
			rtp.NewRandomSequencer(),
			vp8ClockRate,
		),
		state:   domain.SessionNegotiating,
		quality: quality,
		logger:  logger.With("viewer_id", viewerID),
	}
}

func (s *viewerSession) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *viewerSession) setState(state domain.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// markConnected records the remote answer and returns any candidates queued
// before it arrived.
func (s *viewerSession) markConnected() []domain.ICECandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionNegotiating {
		s.state = domain.SessionConnected
	}
	pending := s.pendingCandidates
	s.pendingCandidates = nil
	return pending
}

// queueCandidate holds a candidate that arrived ahead of the answer.
// Returns false when the remote description is already set and the candidate
// can be applied directly.
func (s *viewerSession) queueCandidate(candidate domain.ICECandidate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pc.RemoteDescription() != nil {
		return false
	}
	s.pendingCandidates = append(s.pendingCandidates, candidate)
	return true
}

func (s *viewerSession) setQuality(quality domain.QualityProfile) {
	s.mu.Lock()
	s.quality = quality
	s.mu.Unlock()
}

func (s *viewerSession) currentQuality() domain.QualityProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quality
}

// close tears the session down in the required order: capture source first,
// then encoder, then peer connection. Idempotent; errors are logged and do
// not stop the remaining steps.
func (s *viewerSession) close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.source.Stop()
		if err := s.encoder.Close(); err != nil {
			s.logger.Warnw("error closing encoder", "error", err)
		}
		if err := s.pc.Close(); err != nil {
			s.logger.Warnw("error closing peer connection", "error", err)
		}
		s.setState(domain.SessionClosed)
		s.logger.Info("viewer session closed")
	})
}

// streamLoop pulls frames from the capture source, encodes them and writes
// RTP until the session ends. A capture failure closes the owning session
// via onFatal rather than streaming nothing.
func (s *viewerSession) streamLoop(ctx context.Context, observeFrame func(seconds float64), onFatal func()) {
	for {
		start := time.Now()
		frame, err := s.source.NextFrame(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrSourceStopped) {
				return
			}
			s.logger.Errorw("capture failed, closing session", "error", err)
			onFatal()
			return
		}

		payload, err := s.encoder.Encode(frame)
		if err != nil {
			s.logger.Warnw("frame encode failed", "error", err)
			continue
		}
		if len(payload) == 0 {
			continue
		}

		quality := s.currentQuality()
		samples := uint32(vp8ClockRate / quality.FrameRate)
		for _, pkt := range s.packetizer.Packetize(payload, samples) {
			if err := s.track.WriteRTP(pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
				s.logger.Debugw("rtp write failed", "error", err)
			}
		}
		observeFrame(time.Since(start).Seconds())
	}
}

// rtcpLoop reads viewer feedback from the sender. PLI triggers a keyframe;
// everything else is logged at debug level.
func (s *viewerSession) rtcpLoop(ctx context.Context, onKeyframe func()) {
	buf := make([]byte, rtcpBufferLen)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, _, err := s.sender.Read(buf)
		if err != nil {
			return
		}

		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			s.logger.Debugw("rtcp unmarshal failed", "error", err)
			continue
		}

		for _, packet := range packets {
			switch p := packet.(type) {
			case *rtcp.PictureLossIndication:
				s.encoder.ForceKeyframe()
				onKeyframe()
			case *rtcp.ReceiverEstimatedMaximumBitrate:
				s.logger.Debugw("viewer bandwidth estimate", "bitrate", p.Bitrate)
			case *rtcp.ReceiverReport:
				for _, report := range p.Reports {
					if report.FractionLost > 0 {
						s.logger.Debugw("viewer reports loss",
							"fraction_lost", report.FractionLost,
							"jitter", report.Jitter,
						)
					}
				}
			}
		}
	}
}
