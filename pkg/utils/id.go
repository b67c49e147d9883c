package utils

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
)

// meetingCodeAlphabet avoids ambiguous characters (0/O, 1/I/L) so codes
// survive being read aloud.
const meetingCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const meetingCodeLength = 6

// GeneratePeerID returns a rendezvous-assigned peer identifier.
func GeneratePeerID() string {
	return "peer-" + uuid.NewString()[:8]
}

// GenerateMessageID returns a unique chat message id.
func GenerateMessageID() string {
	return uuid.NewString()
}

// GenerateMeetingCode returns a short human-shareable join code.
func GenerateMeetingCode() string {
	b := make([]byte, meetingCodeLength)
	rand.Read(b)

	var sb strings.Builder
	sb.Grow(meetingCodeLength)
	for _, c := range b {
		sb.WriteByte(meetingCodeAlphabet[int(c)%len(meetingCodeAlphabet)])
	}
	return sb.String()
}

// GenerateRequestID returns a unique id for HTTP request tracing.
func GenerateRequestID() string {
	return "req-" + uuid.NewString()
}
