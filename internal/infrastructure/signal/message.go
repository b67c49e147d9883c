package signal

import (
	"encoding/json"

	"meshcall/internal/core/domain"
)

// Signal message types exchanged with the rendezvous service. The
// service relays connection setup between two peer ids and never sees
// media content.
const (
	TypeRegister     = "register"
	TypeRegistered   = "registered"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice_candidate"
	TypeError        = "error"
)

type Message struct {
	Type       string          `json:"type"`
	FromPeer   domain.PeerID   `json:"from_peer,omitempty"`
	TargetPeer domain.PeerID   `json:"target_peer,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type RegisterPayload struct {
	DisplayName string `json:"display_name"`
	// ResumeToken lets a reconnecting client keep its assigned peer id.
	ResumeToken string `json:"resume_token,omitempty"`
}

type RegisteredPayload struct {
	PeerID      domain.PeerID `json:"peer_id"`
	ResumeToken string        `json:"resume_token"`
}

type SDPPayload struct {
	SDP string `json:"sdp"`
}

type CandidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
}

type ErrorPayload struct {
	Message    string        `json:"message"`
	TargetPeer domain.PeerID `json:"target_peer,omitempty"`
}

// NewMessage builds an envelope with a marshalled payload.
func NewMessage(msgType string, target domain.PeerID, payload interface{}) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, TargetPeer: target, Payload: raw}, nil
}
