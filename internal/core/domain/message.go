package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Mesh message kinds exchanged over the reliable ordered data channel.
const (
	MsgUserInfo    = "user_info"
	MsgUpdateState = "update_state"
	MsgPeerList    = "peer_list"
	MsgChat        = "chat_message"
	MsgReaction    = "reaction"
)

// MeshMessage is the envelope for every data-channel message. Payload is
// decoded per Type by the membership handler.
type MeshMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type UserInfoPayload struct {
	PeerID    PeerID `json:"peer_id"`
	Name      string `json:"name"`
	AvatarRef string `json:"avatar_ref,omitempty"`
	Muted     bool   `json:"muted"`
	CameraOff bool   `json:"camera_off"`
}

type UpdateStatePayload struct {
	PeerID    PeerID `json:"peer_id"`
	Muted     bool   `json:"muted"`
	CameraOff bool   `json:"camera_off"`
	Blurred   bool   `json:"blurred"`
}

type PeerListPayload struct {
	Peers []PeerID `json:"peers"`
}

type ChatPayload struct {
	ID         string    `json:"id"`
	SenderID   PeerID    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	IsSystem   bool      `json:"is_system,omitempty"`
	IsAi       bool      `json:"is_ai,omitempty"`
}

type ReactionPayload struct {
	PeerID PeerID `json:"peer_id"`
	Emoji  string `json:"emoji"`
}

// EncodeMessage wraps a typed payload into an envelope ready to send.
func EncodeMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(MeshMessage{Type: msgType, Payload: raw})
}

// DecodeMessage parses an envelope; the caller decodes Payload by Type.
func DecodeMessage(data []byte) (MeshMessage, error) {
	var msg MeshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return MeshMessage{}, fmt.Errorf("decode mesh message: %w", err)
	}
	if msg.Type == "" {
		return MeshMessage{}, fmt.Errorf("mesh message missing type")
	}
	return msg, nil
}

// ChatFromPayload converts a wire chat payload into the immutable domain record.
func ChatFromPayload(p ChatPayload) ChatMessage {
	origin := OriginUser
	if p.IsSystem {
		origin = OriginSystem
	}
	if p.IsAi {
		origin = OriginAssistant
	}
	return ChatMessage{
		ID:         p.ID,
		SenderID:   p.SenderID,
		SenderName: p.SenderName,
		Text:       p.Text,
		Timestamp:  p.Timestamp,
		Origin:     origin,
	}
}
