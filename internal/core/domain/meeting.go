package domain

import "time"

// MeetingState is the coordinator lifecycle. Left is terminal for a
// session; a fresh Lobby follows it.
type MeetingState string

const (
	StateLobby     MeetingState = "lobby"
	StateJoining   MeetingState = "joining"
	StateInMeeting MeetingState = "in_meeting"
	StateLeft      MeetingState = "left"
)

var transitions = map[MeetingState][]MeetingState{
	StateLobby:     {StateJoining},
	StateJoining:   {StateInMeeting, StateLeft},
	StateInMeeting: {StateLeft},
	StateLeft:      {StateLobby},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to MeetingState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Meeting is the rendezvous-side record behind a join code. It holds no
// participant secrets; the code resolves to the originator's peer id only.
type Meeting struct {
	Code       MeetingCode
	Originator PeerID
	CreatedAt  time.Time
}
