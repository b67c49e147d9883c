package domain

import "errors"

var (
	ErrMediaUnavailable     = errors.New("media unavailable")
	ErrSignalingUnavailable = errors.New("signaling unavailable")
	ErrPeerUnreachable      = errors.New("peer unreachable")
	ErrChannelClosed        = errors.New("channel closed")
	ErrTransformFailure     = errors.New("frame transform failed")
	ErrMeetingNotFound      = errors.New("meeting not found")
	ErrPeerNotFound         = errors.New("peer not found")
	ErrInvalidTransition    = errors.New("invalid meeting state transition")
	ErrDisplayNameRequired  = errors.New("display name required")
)
