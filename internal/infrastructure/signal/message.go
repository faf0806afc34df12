package signal

import (
	"encoding/json"

	"screenlink/internal/core/domain"
)

// envelope is the framing for every message on the signaling socket.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func newEnvelope(event string, data interface{}) (envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return envelope{}, err
	}
	return envelope{Event: event, Data: raw}, nil
}

// Auth identifies this machine to the rendezvous server. Sent as the first
// frame after the socket opens; the server replies with a "connected" ack.
type Auth struct {
	Token  string `json:"token"`
	Type   string `json:"type"`
	PCID   string `json:"pcId"`
	PCName string `json:"pcName"`
	UserID string `json:"userId,omitempty"`
}

const (
	eventAuth      = "auth"
	eventConnected = "connected"
	peerTypeAgent  = "agent"
)

// offerPayload is the outbound SDP offer addressed to one viewer.
type offerPayload struct {
	ViewerID domain.ViewerID           `json:"viewerId"`
	SDP      domain.SessionDescription `json:"sdp"`
}

// candidatePayload is an outbound local ICE candidate for one viewer.
type candidatePayload struct {
	ViewerID  domain.ViewerID     `json:"viewerId"`
	Candidate domain.ICECandidate `json:"candidate"`
}
