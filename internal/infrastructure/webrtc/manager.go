package webrtc

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"screenlink/internal/core/domain"
	"screenlink/internal/core/ports"
	"screenlink/internal/infrastructure/monitoring"
	"screenlink/pkg/config"
	"screenlink/pkg/tracing"
)

// SourceFactory builds a capture source bound to a quality profile.
type SourceFactory func(quality domain.QualityProfile) (ports.CaptureSource, error)

// EncoderFactory builds an encoder sized to a quality profile.
type EncoderFactory func(quality domain.QualityProfile) (ports.VideoEncoder, error)

// CandidateSink receives locally gathered ICE candidates for emission to the
// signaling channel.
type CandidateSink func(viewerID domain.ViewerID, candidate domain.ICECandidate)

// Deps wires the manager's collaborators.
type Deps struct {
	ICEServers    []config.ICEServer
	NewSource     SourceFactory
	NewEncoder    EncoderFactory
	EmitCandidate CandidateSink
	Metrics       *monitoring.PrometheusCollector
	Logger        *zap.SugaredLogger
	ScreenWidth   int
	ScreenHeight  int
}

// Manager orchestrates one viewer session per connected viewer. Sessions are
// independent: signaling events for different viewers never interfere, and
// frame production for one viewer never blocks another.
type Manager struct {
	iceServers    []webrtc.ICEServer
	newSource     SourceFactory
	newEncoder    EncoderFactory
	emitCandidate CandidateSink

	sessions map[domain.ViewerID]*viewerSession
	mu       sync.RWMutex

	screenWidth  int
	screenHeight int

	metrics *monitoring.PrometheusCollector
	logger  *zap.SugaredLogger
	tracer  trace.Tracer
}

// NewManager creates a session orchestrator.
func NewManager(deps Deps) *Manager {
	return &Manager{
		iceServers:    iceServersFromConfig(deps.ICEServers),
		newSource:     deps.NewSource,
		newEncoder:    deps.NewEncoder,
		emitCandidate: deps.EmitCandidate,
		sessions:      make(map[domain.ViewerID]*viewerSession),
		screenWidth:   deps.ScreenWidth,
		screenHeight:  deps.ScreenHeight,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		tracer:        otel.Tracer("screenlink/webrtc"),
	}
}

func iceServersFromConfig(servers []config.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, srv := range servers {
		ice := webrtc.ICEServer{URLs: srv.URLs}
		if srv.Username != "" {
			ice.Username = srv.Username
			ice.Credential = srv.Credential
		}
		out = append(out, ice)
	}
	return out
}

// SetCandidateSink installs the emitter for locally gathered candidates.
// Call before the first CreateOffer; candidates gathered with no sink in
// place are dropped.
func (m *Manager) SetCandidateSink(sink CandidateSink) {
	m.emitCandidate = sink
}

// ScreenSize reports the captured display's real resolution.
func (m *Manager) ScreenSize() (int, int) {
	return m.screenWidth, m.screenHeight
}

// SessionCount returns the number of live viewer sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SessionState reports the negotiation state for a viewer, if present.
func (m *Manager) SessionState(viewerID domain.ViewerID) (domain.SessionState, bool) {
	m.mu.RLock()
	sess, ok := m.sessions[viewerID]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	return sess.State(), true
}

// CreateOffer builds a new viewer session and returns the local SDP offer.
// An existing session under the same viewer id is closed first; at most one
// live session exists per id.
func (m *Manager) CreateOffer(ctx context.Context, msg domain.CreateOfferMessage) (domain.SessionDescription, error) {
	ctx, span := m.tracer.Start(ctx, "webrtc.create_offer",
		trace.WithAttributes(tracing.ViewerIDKey.String(string(msg.ViewerID))))
	defer span.End()

	m.mu.Lock()
	stale, hadStale := m.sessions[msg.ViewerID]
	if hadStale {
		delete(m.sessions, msg.ViewerID)
	}
	m.mu.Unlock()
	if hadStale {
		m.logger.Warnw("closing stale session before re-offer", "viewer_id", msg.ViewerID)
		stale.close()
		m.metrics.SessionClosed()
	}

	quality := domain.ProfileFromName(msg.Quality)
	span.SetAttributes(tracing.QualityKey.String(quality.Name))
	sess, err := m.buildSession(msg.ViewerID, quality)
	if err != nil {
		span.RecordError(err)
		return domain.SessionDescription{}, err
	}

	offer, err := sess.pc.CreateOffer(nil)
	if err != nil {
		sess.close()
		span.RecordError(err)
		return domain.SessionDescription{}, fmt.Errorf("failed to create offer for %s: %w", msg.ViewerID, err)
	}
	if err := sess.pc.SetLocalDescription(offer); err != nil {
		sess.close()
		span.RecordError(err)
		return domain.SessionDescription{}, fmt.Errorf("failed to set local description for %s: %w", msg.ViewerID, err)
	}

	// The cancel func must be in place before the session is visible to the
	// state-change callback, which may close it from another goroutine.
	loopCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel

	m.mu.Lock()
	m.sessions[msg.ViewerID] = sess
	m.mu.Unlock()

	go sess.streamLoop(loopCtx, m.metrics.FrameEncoded, func() { _ = m.CloseSession(context.Background(), msg.ViewerID) })
	go sess.rtcpLoop(loopCtx, m.metrics.KeyframeRequested)

	m.metrics.SessionOpened()
	m.logger.Infow("created offer for viewer", "viewer_id", msg.ViewerID, "quality", quality.Name)

	return domain.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (m *Manager) buildSession(viewerID domain.ViewerID, quality domain.QualityProfile) (*viewerSession, error) {
	source, err := m.newSource(quality)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture source: %w", err)
	}

	encoder, err := m.newEncoder(quality)
	if err != nil {
		source.Stop()
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: m.iceServers})
	if err != nil {
		source.Stop()
		_ = encoder.Close()
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: vp8ClockRate},
		"video",
		fmt.Sprintf("screenlink-%s", viewerID),
	)
	if err != nil {
		source.Stop()
		_ = encoder.Close()
		_ = pc.Close()
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}

	sender, err := pc.AddTrack(track)
	if err != nil {
		source.Stop()
		_ = encoder.Close()
		_ = pc.Close()
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	sess := newViewerSession(viewerID, pc, sender, track, source, encoder, quality, rand.Uint32(), m.logger)

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || m.emitCandidate == nil {
			return
		}
		init := c.ToJSON()
		m.emitCandidate(viewerID, domain.ICECandidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.logger.Infow("peer connection state changed",
			"viewer_id", viewerID,
			"connection_state", state.String(),
		)
		switch state {
		case webrtc.PeerConnectionStateConnected:
			sess.setState(domain.SessionLive)
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			go func() { _ = m.CloseSession(context.Background(), viewerID) }()
		}
	})

	return sess, nil
}

// HandleAnswer applies the viewer's SDP answer. Unknown viewer ids are
// logged and dropped without affecting other sessions.
func (m *Manager) HandleAnswer(ctx context.Context, msg domain.AnswerMessage) error {
	ctx, span := m.tracer.Start(ctx, "webrtc.handle_answer",
		trace.WithAttributes(tracing.ViewerIDKey.String(string(msg.ViewerID))))
	defer span.End()

	m.mu.RLock()
	sess, ok := m.sessions[msg.ViewerID]
	m.mu.RUnlock()
	if !ok {
		m.logger.Warnw("answer for unknown viewer", "viewer_id", msg.ViewerID)
		return nil
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP.SDP}
	if err := sess.pc.SetRemoteDescription(answer); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set remote description for %s: %w", msg.ViewerID, err)
	}

	for _, candidate := range sess.markConnected() {
		if err := m.addCandidate(sess, candidate); err != nil {
			m.logger.Warnw("failed to apply queued candidate", "viewer_id", msg.ViewerID, "error", err)
		}
	}

	m.logger.Infow("set remote description", "viewer_id", msg.ViewerID)
	return nil
}

// HandleICECandidate applies a remote candidate. Candidates arriving before
// the answer are queued; duplicates are harmless.
func (m *Manager) HandleICECandidate(ctx context.Context, msg domain.IceCandidateMessage) error {
	m.mu.RLock()
	sess, ok := m.sessions[msg.ViewerID]
	m.mu.RUnlock()
	if !ok {
		m.logger.Warnw("ice candidate for unknown viewer", "viewer_id", msg.ViewerID)
		return nil
	}

	if sess.queueCandidate(msg.Candidate) {
		return nil
	}
	return m.addCandidate(sess, msg.Candidate)
}

func (m *Manager) addCandidate(sess *viewerSession, candidate domain.ICECandidate) error {
	return sess.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        candidate.SDPMid,
		SDPMLineIndex: candidate.SDPMLineIndex,
	})
}

// ChangeQuality swaps the session's profile in place: the capture source is
// retargeted and the encoder's bitrate updated, with a keyframe so the
// viewer picks up the new size immediately. No offer/answer exchange occurs
// and the negotiation state is untouched.
func (m *Manager) ChangeQuality(ctx context.Context, msg domain.ChangeQualityMessage) error {
	ctx, span := m.tracer.Start(ctx, "webrtc.change_quality",
		trace.WithAttributes(tracing.ViewerIDKey.String(string(msg.ViewerID))))
	defer span.End()

	m.mu.RLock()
	sess, ok := m.sessions[msg.ViewerID]
	m.mu.RUnlock()
	if !ok {
		m.logger.Warnw("quality change for unknown viewer", "viewer_id", msg.ViewerID)
		return nil
	}

	profile := msg.Profile()
	span.SetAttributes(
		tracing.QualityKey.String(profile.Name),
		tracing.BitrateKey.Int(profile.BitrateKbps),
	)
	sess.source.SetQuality(profile)
	if err := sess.encoder.SetBitrate(profile.BitrateKbps); err != nil {
		m.logger.Warnw("bitrate update failed", "viewer_id", msg.ViewerID, "error", err)
	}
	sess.encoder.ForceKeyframe()
	sess.setQuality(profile)

	m.logger.Infow("quality changed",
		"viewer_id", msg.ViewerID,
		"profile", profile.Name,
		"bitrate_kbps", profile.BitrateKbps,
	)
	return nil
}

// CloseSession tears down one viewer session. Missing sessions are a no-op.
func (m *Manager) CloseSession(ctx context.Context, viewerID domain.ViewerID) error {
	m.mu.Lock()
	sess, ok := m.sessions[viewerID]
	if ok {
		delete(m.sessions, viewerID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	sess.close()
	m.metrics.SessionClosed()
	return nil
}

// CloseAll closes every session. Failures on one session never prevent the
// rest from being released.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[domain.ViewerID]*viewerSession)
	m.mu.Unlock()

	for viewerID, sess := range sessions {
		sess.close()
		m.metrics.SessionClosed()
		m.logger.Infow("closed session on shutdown", "viewer_id", viewerID)
	}
	return nil
}
