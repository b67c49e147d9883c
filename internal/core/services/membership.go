package services

import (
	"encoding/json"
	"time"

	"meshcall/internal/core/domain"

	"go.uber.org/zap"
)

// Membership implements the mesh membership protocol: introductions on
// channel open and the handler for every data-channel message kind.
// Channel failures are absorbed here, never surfaced as fatal errors.
type Membership struct {
	registry  *Registry
	roster    *Roster
	chat      *ChatService
	localInfo func() domain.UserInfoPayload
	connect   func(remote domain.PeerID)
	logger    *zap.SugaredLogger
}

func NewMembership(
	registry *Registry,
	roster *Roster,
	chat *ChatService,
	localInfo func() domain.UserInfoPayload,
	connect func(remote domain.PeerID),
	logger *zap.SugaredLogger,
) *Membership {
	return &Membership{
		registry:  registry,
		roster:    roster,
		chat:      chat,
		localInfo: localInfo,
		connect:   connect,
		logger:    logger,
	}
}

// HandleChannelOpen runs when a data channel opens, on either side of the
// pair: introduce ourselves, then tell the new peer who else we know.
func (m *Membership) HandleChannelOpen(remote domain.PeerID) {
	if !m.registry.MarkOpen(remote) {
		m.logger.Debugw("open event for unknown pair", "remote", remote)
		return
	}

	info := m.localInfo()
	m.send(remote, domain.MsgUserInfo, info)

	var known []domain.PeerID
	for _, id := range m.registry.Peers() {
		if id != remote && id != info.PeerID {
			known = append(known, id)
		}
	}
	if len(known) > 0 {
		m.send(remote, domain.MsgPeerList, domain.PeerListPayload{Peers: known})
	}
}

// HandleData dispatches one inbound data-channel message. Malformed
// messages are dropped.
func (m *Membership) HandleData(remote domain.PeerID, payload []byte) {
	msg, err := domain.DecodeMessage(payload)
	if err != nil {
		m.logger.Debugw("dropping malformed mesh message", "remote", remote, "error", err)
		return
	}

	switch msg.Type {
	case domain.MsgUserInfo:
		var p domain.UserInfoPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			m.logger.Debugw("bad user_info payload", "remote", remote, "error", err)
			return
		}
		m.roster.MergeIdentity(p)

	case domain.MsgUpdateState:
		var p domain.UpdateStatePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			m.logger.Debugw("bad update_state payload", "remote", remote, "error", err)
			return
		}
		m.roster.PatchState(p)

	case domain.MsgPeerList:
		var p domain.PeerListPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			m.logger.Debugw("bad peer_list payload", "remote", remote, "error", err)
			return
		}
		m.handlePeerList(p)

	case domain.MsgChat:
		var p domain.ChatPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			m.logger.Debugw("bad chat payload", "remote", remote, "error", err)
			return
		}
		m.chat.Append(domain.ChatFromPayload(p))

	case domain.MsgReaction:
		var p domain.ReactionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			m.logger.Debugw("bad reaction payload", "remote", remote, "error", err)
			return
		}
		m.roster.AddReaction(p.PeerID, p.Emoji, time.Now())

	default:
		m.logger.Debugw("unknown mesh message type", "remote", remote, "type", msg.Type)
	}
}

// handlePeerList dials every listed peer we do not already hold a pair
// for. Idempotent upsert makes redundant simultaneous connects from both
// sides converge to one surviving pair, so the mesh completes without a
// coordinator-wide lock.
func (m *Membership) handlePeerList(p domain.PeerListPayload) {
	local := m.localInfo().PeerID
	for _, id := range p.Peers {
		if id == local || id == "" || m.registry.Has(id) {
			continue
		}
		m.logger.Infow("connecting to discovered peer", "remote", id)
		m.connect(id)
	}
}

func (m *Membership) send(remote domain.PeerID, msgType string, payload interface{}) {
	data, err := domain.EncodeMessage(msgType, payload)
	if err != nil {
		m.logger.Errorw("encode mesh message", "type", msgType, "error", err)
		return
	}
	if err := m.registry.SendTo(remote, data); err != nil {
		m.logger.Debugw("send skipped", "remote", remote, "type", msgType, "error", err)
	}
}
