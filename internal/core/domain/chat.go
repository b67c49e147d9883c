package domain

import "time"

type MessageOrigin string

const (
	OriginUser      MessageOrigin = "user"
	OriginSystem    MessageOrigin = "system"
	OriginAssistant MessageOrigin = "assistant"
)

// ChatMessage is immutable once created; the chat log is append-only,
// ordered by arrival.
type ChatMessage struct {
	ID         string
	SenderID   PeerID
	SenderName string
	Text       string
	Timestamp  time.Time
	Origin     MessageOrigin
}
