package game

import (
	"time"

	"github.com/jodete-online/jodete-server/internal/game/card"
	"github.com/jodete-online/jodete-server/internal/protocol"
)

// StateFor projects the match for one player. Only the requester's own
// hand is materialized; every other seat is reduced to counts and flags.
func (m *Match) StateFor(requesterID string) *protocol.StatePayload {
	state := &protocol.StatePayload{
		RoomID:                m.roomID,
		RoomName:              m.roomName,
		Phase:                 string(m.phase),
		TopCard:               m.topCard(),
		CurrentSuit:           m.currentSuit(),
		PendingDraw:           m.pendingDraw,
		Direction:             m.direction,
		LastAction:            m.lastAction,
		WinnerID:              m.winnerID,
		DeckCount:             len(m.drawPile),
		DiscardCount:          len(m.discardPile),
		CardsPerPlayerOptions: m.AllowedHandSizes(),
	}

	active := m.activePlayer()
	state.Players = make([]protocol.SeatView, 0, len(m.players))
	for _, p := range m.players {
		state.Players = append(state.Players, protocol.SeatView{
			ID:               p.ID,
			Name:             p.Name,
			CardCount:        len(p.Hand),
			DeclaredLastCard: p.DeclaredLastCard,
			Connected:        p.Connected,
			IsCurrent:        m.phase == PhasePlaying && active != nil && active.ID == p.ID,
			IsHost:           p.ID == m.hostID,
		})
	}

	if me := m.playerByID(requesterID); me != nil {
		state.Me = m.selfView(me, active)
	}

	if n := len(m.messages); n > logTail {
		state.Messages = append([]protocol.LogEntry(nil), m.messages[n-logTail:]...)
	} else {
		state.Messages = append([]protocol.LogEntry(nil), m.messages...)
	}
	return state
}

func (m *Match) selfView(me *Player, active *Player) *protocol.SelfView {
	view := &protocol.SelfView{
		ID:               me.ID,
		Name:             me.Name,
		Hand:             append([]card.Card(nil), me.Hand...),
		PlayableCardIDs:  []string{},
		DeclaredLastCard: me.DeclaredLastCard,
		Token:            me.Token,
	}
	if m.phase == PhasePlaying && active != nil && active.ID == me.ID {
		for _, c := range me.Hand {
			if m.isPlayable(c) {
				view.PlayableCardIDs = append(view.PlayableCardIDs, c.ID)
			}
		}
	}
	return view
}

// Summary condenses the match into one room-browser entry.
func (m *Match) Summary(createdAt time.Time) protocol.RoomSummary {
	summary := protocol.RoomSummary{
		ID:           m.roomID,
		Name:         m.roomName,
		Phase:        string(m.phase),
		CreatedAt:    createdAt.UnixMilli(),
		PlayerCount:  m.ConnectedCount(),
		TotalPlayers: len(m.players),
		Players:      make([]protocol.RoomPlayerSummary, 0, len(m.players)),
	}
	for _, p := range m.players {
		summary.Players = append(summary.Players, protocol.RoomPlayerSummary{
			ID:        p.ID,
			Name:      p.Name,
			Connected: p.Connected,
		})
		if p.ID == m.hostID {
			summary.HostName = p.Name
		}
	}
	return summary
}
