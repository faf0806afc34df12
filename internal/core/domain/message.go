package domain

import "fmt"

// Signaling event names as they appear on the wire.
const (
	EventCreateOffer   = "create-offer"
	EventAnswer        = "answer"
	EventICECandidate  = "ice-candidate"
	EventChangeQuality = "change-quality"
	EventMouse         = "mouse-event"
	EventKeyboard      = "keyboard-event"
	EventOffer         = "offer"
)

// SessionDescription mirrors the browser-side RTCSessionDescription shape.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate carries one connectivity candidate between peers.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// CreateOfferMessage asks the agent to start a session for one viewer.
type CreateOfferMessage struct {
	ViewerID ViewerID `json:"viewerId"`
	Quality  string   `json:"quality"`
}

func (m CreateOfferMessage) Validate() error {
	if m.ViewerID == "" {
		return fmt.Errorf("%w: create-offer missing viewerId", ErrInvalidMessage)
	}
	return nil
}

// AnswerMessage carries the viewer's SDP answer back to the agent.
type AnswerMessage struct {
	ViewerID ViewerID           `json:"viewerId"`
	SDP      SessionDescription `json:"sdp"`
}

func (m AnswerMessage) Validate() error {
	if m.ViewerID == "" {
		return fmt.Errorf("%w: answer missing viewerId", ErrInvalidMessage)
	}
	if m.SDP.SDP == "" {
		return fmt.Errorf("%w: answer missing sdp", ErrInvalidMessage)
	}
	return nil
}

// IceCandidateMessage carries one remote candidate for a viewer session.
type IceCandidateMessage struct {
	ViewerID  ViewerID     `json:"viewerId"`
	Candidate ICECandidate `json:"candidate"`
}

func (m IceCandidateMessage) Validate() error {
	if m.ViewerID == "" {
		return fmt.Errorf("%w: ice-candidate missing viewerId", ErrInvalidMessage)
	}
	if m.Candidate.Candidate == "" {
		return fmt.Errorf("%w: ice-candidate missing candidate", ErrInvalidMessage)
	}
	return nil
}

// ChangeQualityMessage switches a live session's profile. Width, height,
// frame rate and bitrate together override the named quality; a partial set
// is ignored in favor of the name.
type ChangeQualityMessage struct {
	ViewerID  ViewerID `json:"viewerId"`
	Quality   string   `json:"quality"`
	Width     int      `json:"width,omitempty"`
	Height    int      `json:"height,omitempty"`
	FrameRate int      `json:"frameRate,omitempty"`
	Bitrate   int      `json:"bitrate,omitempty"`
}

func (m ChangeQualityMessage) Validate() error {
	if m.ViewerID == "" {
		return fmt.Errorf("%w: change-quality missing viewerId", ErrInvalidMessage)
	}
	return nil
}

// Profile resolves the requested profile, preferring explicit dimensions
// when all four are present.
func (m ChangeQualityMessage) Profile() QualityProfile {
	if m.Width > 0 && m.Height > 0 && m.FrameRate > 0 && m.Bitrate > 0 {
		return CustomProfile(m.Width, m.Height, m.FrameRate, m.Bitrate)
	}
	return ProfileFromName(m.Quality)
}

// PointerMessage is a remote mouse event in stream or normalized coordinates.
type PointerMessage struct {
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button int     `json:"button"`
	DeltaX float64 `json:"deltaX"`
	DeltaY float64 `json:"deltaY"`
}

func (m PointerMessage) Validate() error {
	if m.Type == "" {
		return fmt.Errorf("%w: mouse-event missing type", ErrInvalidMessage)
	}
	return nil
}

// KeyMessage is a remote keyboard event using web KeyboardEvent naming.
type KeyMessage struct {
	Type      string   `json:"type"`
	Key       string   `json:"key"`
	Code      string   `json:"code"`
	Modifiers []string `json:"modifiers,omitempty"`
}

func (m KeyMessage) Validate() error {
	if m.Type == "" {
		return fmt.Errorf("%w: keyboard-event missing type", ErrInvalidMessage)
	}
	if m.Key == "" && m.Code == "" {
		return fmt.Errorf("%w: keyboard-event missing key and code", ErrInvalidMessage)
	}
	return nil
}
