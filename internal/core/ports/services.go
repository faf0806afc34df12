package ports

import (
	"context"
	"encoding/json"

	"screenlink/internal/core/domain"
)

// EventHandler consumes one raw signaling payload. Handlers run sequentially
// on the signaling dispatch loop; returning an error logs and drops the event.
type EventHandler func(ctx context.Context, payload json.RawMessage) error

// SignalingClient is the contract to the rendezvous transport. The transport
// owns reconnection; callers only observe connected state.
type SignalingClient interface {
	On(event string, handler EventHandler)
	Connect(ctx context.Context) error
	Disconnect() error
	EmitOffer(viewerID domain.ViewerID, sdp domain.SessionDescription) error
	EmitICECandidate(viewerID domain.ViewerID, candidate domain.ICECandidate) error
	IsConnected() bool
	WaitUntilDisconnected(ctx context.Context) error
}

// SessionOrchestrator manages one peer connection per live viewer id.
type SessionOrchestrator interface {
	CreateOffer(ctx context.Context, msg domain.CreateOfferMessage) (domain.SessionDescription, error)
	HandleAnswer(ctx context.Context, msg domain.AnswerMessage) error
	HandleICECandidate(ctx context.Context, msg domain.IceCandidateMessage) error
	ChangeQuality(ctx context.Context, msg domain.ChangeQualityMessage) error
	CloseSession(ctx context.Context, viewerID domain.ViewerID) error
	CloseAll(ctx context.Context) error
	SessionCount() int
	ScreenSize() (int, int)
}

// InputRouter applies remote pointer and key events to the local machine.
type InputRouter interface {
	HandlePointer(msg domain.PointerMessage)
	HandleKey(msg domain.KeyMessage)
	SetStreamSize(width, height int)
	SetEnabled(enabled bool)
	ReleaseAll()
	PressedKeyCount() int
}

// SecretStore is the opaque key-value store holding the auth token and
// user-info blob. A missing key is not an error; it reports ok=false.
type SecretStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}
