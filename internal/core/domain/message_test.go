package domain

import (
	"errors"
	"testing"
)

func TestMessageValidation(t *testing.T) {
	mid := "0"
	var idx uint16

	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{name: "valid create-offer", msg: CreateOfferMessage{ViewerID: "v1", Quality: "low"}},
		{name: "create-offer without viewer", msg: CreateOfferMessage{Quality: "low"}, wantErr: true},
		{name: "create-offer without quality is fine", msg: CreateOfferMessage{ViewerID: "v1"}},

		{name: "valid answer", msg: AnswerMessage{ViewerID: "v1", SDP: SessionDescription{Type: "answer", SDP: "v=0"}}},
		{name: "answer without sdp", msg: AnswerMessage{ViewerID: "v1"}, wantErr: true},
		{name: "answer without viewer", msg: AnswerMessage{SDP: SessionDescription{SDP: "v=0"}}, wantErr: true},

		{name: "valid candidate", msg: IceCandidateMessage{ViewerID: "v1", Candidate: ICECandidate{Candidate: "candidate:1", SDPMid: &mid, SDPMLineIndex: &idx}}},
		{name: "candidate without payload", msg: IceCandidateMessage{ViewerID: "v1"}, wantErr: true},

		{name: "valid change-quality", msg: ChangeQualityMessage{ViewerID: "v1", Quality: "high"}},
		{name: "change-quality without viewer", msg: ChangeQualityMessage{Quality: "high"}, wantErr: true},

		{name: "valid pointer", msg: PointerMessage{Type: "move", X: 10, Y: 20}},
		{name: "pointer without type", msg: PointerMessage{X: 10}, wantErr: true},

		{name: "valid key", msg: KeyMessage{Type: "keydown", Key: "a"}},
		{name: "key with code only", msg: KeyMessage{Type: "keydown", Code: "KeyA"}},
		{name: "key without key or code", msg: KeyMessage{Type: "keydown"}, wantErr: true},
		{name: "key without type", msg: KeyMessage{Key: "a"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if !errors.Is(err, ErrInvalidMessage) {
					t.Errorf("error %v is not ErrInvalidMessage", err)
				}
			} else if err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
