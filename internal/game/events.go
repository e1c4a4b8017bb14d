package game

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jodete-online/jodete-server/internal/game/card"
)

// EventKind discriminates persistence outbox entries.
type EventKind int

const (
	// EventMatchStarted allocates a fresh durable match id and stores the
	// opening snapshot.
	EventMatchStarted EventKind = iota
	// EventAction appends one action-history record.
	EventAction
	// EventSnapshot stores the current match snapshot.
	EventSnapshot
	// EventStats folds per-player in-match counters into lifetime stats.
	EventStats
)

// Event is a fire-and-forget persistence side effect emitted after a
// committed mutation. Gameplay never waits on its delivery.
type Event struct {
	Kind   EventKind
	RoomID string

	Action   *ActionRecord
	Snapshot *Snapshot
	Stats    []StatsUpdate
}

// ActionRecord is one row of a match's action history.
type ActionRecord struct {
	Type        string     `json:"type"` // start|play|draw|declare|jodete|finish
	PlayerID    string     `json:"playerId,omitempty"`
	PlayerName  string     `json:"playerName,omitempty"`
	UserID      string     `json:"userId,omitempty"`
	Description string     `json:"description"`
	Card        *card.Card `json:"card,omitempty"`
	TurnNumber  int        `json:"turnNumber"`
	At          time.Time  `json:"at"`
}

// Snapshot is the durable form of a match.
type Snapshot struct {
	RoomID         string          `json:"roomId"`
	Phase          Phase           `json:"phase"`
	CardsPerPlayer int             `json:"cardsPerPlayer"`
	TurnCount      int             `json:"turnCount"`
	State          json.RawMessage `json:"state"`
	StartedAt      time.Time       `json:"startedAt"`
	FinishedAt     *time.Time      `json:"finishedAt,omitempty"`
	WinnerUserID   string          `json:"winnerUserId,omitempty"`
}

// StatsUpdate carries one player's deltas for lifetime statistics.
// Entries with an empty UserID belong to guests and are dropped at the
// persistence boundary.
type StatsUpdate struct {
	UserID              string
	Won                 bool
	SpecialPlayed       map[int]int
	JodetesCalled       int
	JodetesReceived     int
	PlayDurationSeconds int
}

// DrainEvents returns and clears the pending outbox. The room calls this
// after every engine operation and hands the events to the storage writer.
func (m *Match) DrainEvents() []Event {
	events := m.events
	m.events = nil
	return events
}

func (m *Match) emitAction(actionType string, p *Player, description string, c *card.Card) {
	rec := &ActionRecord{
		Type:        actionType,
		Description: description,
		TurnNumber:  m.turnNumber,
		At:          time.Now(),
	}
	if p != nil {
		rec.PlayerID = p.ID
		rec.PlayerName = p.Name
		rec.UserID = p.UserID
	}
	rec.Card = c
	m.events = append(m.events, Event{Kind: EventAction, RoomID: m.roomID, Action: rec})
}

func (m *Match) emitSnapshot(newMatch bool) {
	kind := EventSnapshot
	if newMatch {
		kind = EventMatchStarted
	}
	snap := &Snapshot{
		RoomID:         m.roomID,
		Phase:          m.phase,
		CardsPerPlayer: m.handSize,
		TurnCount:      m.turnNumber,
		State:          m.serializeState(),
		StartedAt:      m.startedAt,
	}
	if m.phase == PhaseFinished || m.phase == PhaseAbandoned {
		now := time.Now()
		snap.FinishedAt = &now
		if winner := m.playerByID(m.winnerID); winner != nil {
			snap.WinnerUserID = winner.UserID
		}
	}
	m.events = append(m.events, Event{Kind: kind, RoomID: m.roomID, Snapshot: snap})
}

// emitFinish stores the final snapshot and the lifetime-stat deltas.
func (m *Match) emitFinish() {
	m.emitSnapshot(false)

	duration := 0
	if !m.startedAt.IsZero() {
		duration = int(time.Since(m.startedAt).Seconds())
	}
	updates := make([]StatsUpdate, 0, len(m.players))
	for _, p := range m.players {
		update := StatsUpdate{
			UserID:              p.UserID,
			Won:                 p.ID == m.winnerID,
			JodetesCalled:       p.jodetesCalled,
			JodetesReceived:     p.jodetesReceived,
			PlayDurationSeconds: duration,
		}
		if len(p.specialPlayed) > 0 {
			update.SpecialPlayed = make(map[int]int, len(p.specialPlayed))
			for v, n := range p.specialPlayed {
				update.SpecialPlayed[v] = n
			}
		}
		updates = append(updates, update)
	}
	m.events = append(m.events, Event{Kind: EventStats, RoomID: m.roomID, Stats: updates})
}

// serializedState is the full server-side view stored in snapshots. It
// includes every hand and must never be sent to clients.
type serializedState struct {
	Phase              Phase              `json:"phase"`
	HostID             string             `json:"hostId,omitempty"`
	Players            []serializedPlayer `json:"players"`
	DrawPile           []card.Card        `json:"drawPile"`
	DiscardPile        []card.Card        `json:"discardPile"`
	CurrentPlayerIndex int                `json:"currentPlayerIndex"`
	Direction          int                `json:"direction"`
	PendingDraw        int                `json:"pendingDraw"`
	SuitOverride       card.Suit          `json:"suitOverride,omitempty"`
	TurnNumber         int                `json:"turnNumber"`
	WinnerID           string             `json:"winnerId,omitempty"`
}

type serializedPlayer struct {
	ID               string      `json:"id"`
	Token            string      `json:"token"`
	UserID           string      `json:"userId,omitempty"`
	Name             string      `json:"name"`
	Hand             []card.Card `json:"hand"`
	DeclaredLastCard bool        `json:"declaredLastCard"`
	Connected        bool        `json:"connected"`
}

func (m *Match) serializeState() json.RawMessage {
	state := serializedState{
		Phase:              m.phase,
		HostID:             m.hostID,
		Players:            make([]serializedPlayer, len(m.players)),
		DrawPile:           m.drawPile,
		DiscardPile:        m.discardPile,
		CurrentPlayerIndex: m.currentPlayerIndex,
		Direction:          m.direction,
		PendingDraw:        m.pendingDraw,
		SuitOverride:       m.suitOverride,
		TurnNumber:         m.turnNumber,
		WinnerID:           m.winnerID,
	}
	for i, p := range m.players {
		state.Players[i] = serializedPlayer{
			ID:               p.ID,
			Token:            p.Token,
			UserID:           p.UserID,
			Name:             p.Name,
			Hand:             p.Hand,
			DeclaredLastCard: p.DeclaredLastCard,
			Connected:        p.Connected,
		}
	}
	data, err := json.Marshal(state)
	if err != nil {
		log.WithField("room", m.roomID).Errorf("serialize match state: %v", err)
		return nil
	}
	return data
}
