package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"screenlink/internal/core/domain"
	"screenlink/internal/core/ports"
	"screenlink/internal/infrastructure/secrets"
	"screenlink/pkg/tracing"
)

// SignalingFactory builds the signaling client once the stored credentials
// are known. The token is only read at start so a login that happened after
// construction is picked up.
type SignalingFactory func(token, userID string) ports.SignalingClient

// Agent is the top-level lifecycle: it authenticates against the rendezvous
// server, routes signaling events to the session orchestrator and the input
// router, and tears everything down on stop.
type Agent struct {
	newSignaling SignalingFactory
	sessions     ports.SessionOrchestrator
	input        ports.InputRouter
	secrets      ports.SecretStore

	mu        sync.Mutex
	running   bool
	signaling ports.SignalingClient

	logger *zap.SugaredLogger
}

// New creates the agent.
func New(
	newSignaling SignalingFactory,
	sessions ports.SessionOrchestrator,
	input ports.InputRouter,
	secretStore ports.SecretStore,
	logger *zap.SugaredLogger,
) *Agent {
	return &Agent{
		newSignaling: newSignaling,
		sessions:     sessions,
		input:        input,
		secrets:      secretStore,
		logger:       logger,
	}
}

// Start connects to the signaling server and begins serving viewers. A
// second Start while running is refused. Without a stored auth token the
// agent fails before touching the network.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		a.logger.Warn("start requested while already running")
		return domain.ErrAgentRunning
	}
	a.running = true
	a.mu.Unlock()

	token, ok, err := a.secrets.Get(secrets.KeyAuthToken)
	if err != nil {
		a.setStopped()
		return fmt.Errorf("failed to read auth token: %w", err)
	}
	if !ok || token == "" {
		a.setStopped()
		return domain.ErrNoAuthToken
	}

	client := a.newSignaling(token, userIDFromToken(token))
	a.registerHandlers(client)

	if err := client.Connect(ctx); err != nil {
		a.setStopped()
		return fmt.Errorf("failed to connect to signaling server: %w", err)
	}

	a.mu.Lock()
	a.signaling = client
	a.mu.Unlock()

	a.logger.Info("agent started")
	return nil
}

// Wait blocks until Stop is called or the context ends.
func (a *Agent) Wait(ctx context.Context) error {
	a.mu.Lock()
	client := a.signaling
	a.mu.Unlock()
	if client == nil {
		return domain.ErrNotConnected
	}
	return client.WaitUntilDisconnected(ctx)
}

// Stop releases held keys, closes every viewer session and disconnects from
// signaling, in that order. Idempotent.
func (a *Agent) Stop(ctx context.Context) {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	client := a.signaling
	a.signaling = nil
	a.mu.Unlock()

	a.input.ReleaseAll()
	if err := a.sessions.CloseAll(ctx); err != nil {
		a.logger.Warnw("error closing sessions", "error", err)
	}
	if client != nil {
		if err := client.Disconnect(); err != nil {
			a.logger.Warnw("error disconnecting signaling", "error", err)
		}
	}
	a.logger.Info("agent stopped")
}

// Signaling returns the active signaling client, or nil when stopped.
func (a *Agent) Signaling() ports.SignalingClient {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.signaling
}

// IsRunning reports whether the agent is started.
func (a *Agent) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// SessionCount reports the number of live viewer sessions.
func (a *Agent) SessionCount() int {
	return a.sessions.SessionCount()
}

func (a *Agent) setStopped() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

func (a *Agent) registerHandlers(client ports.SignalingClient) {
	client.On(domain.EventCreateOffer, a.onCreateOffer(client))
	client.On(domain.EventAnswer, a.onAnswer)
	client.On(domain.EventICECandidate, a.onICECandidate)
	client.On(domain.EventChangeQuality, a.onChangeQuality)
	client.On(domain.EventMouse, a.onMouse)
	client.On(domain.EventKeyboard, a.onKeyboard)
}

func (a *Agent) onCreateOffer(client ports.SignalingClient) ports.EventHandler {
	return func(ctx context.Context, payload json.RawMessage) error {
		ctx, span := tracing.TraceSignalingEvent(ctx, domain.EventCreateOffer)
		defer span.End()

		var msg domain.CreateOfferMessage
		if err := decode(payload, &msg); err != nil {
			return err
		}

		sdp, err := a.sessions.CreateOffer(ctx, msg)
		if err != nil {
			tracing.RecordError(ctx, err)
			return err
		}

		profile := domain.ProfileFromName(msg.Quality)
		a.input.SetStreamSize(profile.Width, profile.Height)

		if err := client.EmitOffer(msg.ViewerID, sdp); err != nil {
			tracing.RecordError(ctx, err)
			return fmt.Errorf("failed to emit offer: %w", err)
		}
		return nil
	}
}

func (a *Agent) onAnswer(ctx context.Context, payload json.RawMessage) error {
	ctx, span := tracing.TraceSignalingEvent(ctx, domain.EventAnswer)
	defer span.End()

	var msg domain.AnswerMessage
	if err := decode(payload, &msg); err != nil {
		return err
	}
	return a.sessions.HandleAnswer(ctx, msg)
}

func (a *Agent) onICECandidate(ctx context.Context, payload json.RawMessage) error {
	var msg domain.IceCandidateMessage
	if err := decode(payload, &msg); err != nil {
		return err
	}
	return a.sessions.HandleICECandidate(ctx, msg)
}

func (a *Agent) onChangeQuality(ctx context.Context, payload json.RawMessage) error {
	ctx, span := tracing.TraceSignalingEvent(ctx, domain.EventChangeQuality)
	defer span.End()

	var msg domain.ChangeQualityMessage
	if err := decode(payload, &msg); err != nil {
		return err
	}

	profile := msg.Profile()
	a.input.SetStreamSize(profile.Width, profile.Height)
	return a.sessions.ChangeQuality(ctx, msg)
}

func (a *Agent) onMouse(ctx context.Context, payload json.RawMessage) error {
	var msg domain.PointerMessage
	if err := decode(payload, &msg); err != nil {
		return err
	}
	a.input.HandlePointer(msg)
	return nil
}

func (a *Agent) onKeyboard(ctx context.Context, payload json.RawMessage) error {
	var msg domain.KeyMessage
	if err := decode(payload, &msg); err != nil {
		return err
	}
	a.input.HandleKey(msg)
	return nil
}

type validator interface {
	Validate() error
}

func decode(payload json.RawMessage, into validator) error {
	if err := json.Unmarshal(payload, into); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
	}
	return into.Validate()
}

// userIDFromToken extracts the userId claim without verifying the signature.
// The server is the party that validates the token; the agent only forwards
// the id so the rendezvous can route viewer requests.
func userIDFromToken(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	if userID, ok := claims["userId"].(string); ok {
		return userID
	}
	return ""
}
