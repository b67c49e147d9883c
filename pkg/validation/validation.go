package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// MeetingCodeRegex validates join code format
	MeetingCodeRegex = regexp.MustCompile(`^[A-Z0-9]{4,12}$`)

	// PeerIDRegex validates peer ID format
	PeerIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateDisplayName validates a participant display name
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(name) > 64 {
		return fmt.Errorf("display name is too long (max 64 characters)")
	}
	return nil
}

// ValidateMeetingCode validates a join code
func ValidateMeetingCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("meeting code is required")
	}
	if !MeetingCodeRegex.MatchString(strings.ToUpper(code)) {
		return fmt.Errorf("invalid meeting code format")
	}
	return nil
}

// ValidatePeerID validates a rendezvous peer identifier
func ValidatePeerID(peerID string) error {
	if peerID == "" {
		return fmt.Errorf("peer_id is required")
	}
	if len(peerID) > 100 {
		return fmt.Errorf("peer_id is too long (max 100 characters)")
	}
	if !PeerIDRegex.MatchString(peerID) {
		return fmt.Errorf("peer_id contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateAvatarRef validates an avatar reference URL if present
func ValidateAvatarRef(ref string) error {
	if ref == "" {
		return nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return fmt.Errorf("invalid avatar reference: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "data" {
		return fmt.Errorf("avatar reference must be http, https or data URL")
	}
	return nil
}

// ValidateChatText validates outgoing chat text
func ValidateChatText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("message text is required")
	}
	if utf8.RuneCountInString(text) > 4000 {
		return fmt.Errorf("message is too long (max 4000 characters)")
	}
	return nil
}
