package protocol

import (
	"github.com/jodete-online/jodete-server/internal/game/card"
)

// --- Client request payloads ---

// PingPayload carries the client timestamp for latency measurement.
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// CreateRoomPayload opens a new room and joins it in one step.
type CreateRoomPayload struct {
	RoomName   string `json:"roomName,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
	Token      string `json:"token,omitempty"` // reconnect token, if any
}

// JoinRoomPayload joins an existing room, optionally reclaiming a seat
// with a reconnect token.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name,omitempty"`
	Token  string `json:"token,omitempty"`
}

// StartPayload begins the match. CardsPerPlayer must be one of the
// allowed sizes for the current player count or it falls back to the
// first allowed size.
type StartPayload struct {
	CardsPerPlayer int `json:"cardsPerPlayer,omitempty"`
}

// PlayCardPayload plays a card from the caller's hand. ChosenSuit is
// required when the card is a 10.
type PlayCardPayload struct {
	CardID     string    `json:"cardId"`
	ChosenSuit card.Suit `json:"chosenSuit,omitempty"`
}

// CallJodetePayload penalizes a player sitting on an undeclared last card.
type CallJodetePayload struct {
	TargetID string `json:"targetId"`
}

// --- Server event payloads ---

// ConnectedPayload is pushed once per connection.
type ConnectedPayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

// PongPayload answers a ping.
type PongPayload struct {
	ClientTimestamp int64 `json:"clientTimestamp"`
	ServerTimestamp int64 `json:"serverTimestamp"`
}

// JoinedRoomPayload acknowledges a join.
type JoinedRoomPayload struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
}

// ActionErrorPayload describes why the last action failed.
type ActionErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// LogEntry is one line of a room's action log.
type LogEntry struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// SelfView is the requesting player's own slice of the match state. It is
// the only place full cards appear.
type SelfView struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Hand             []card.Card `json:"hand"`
	PlayableCardIDs  []string    `json:"playableCardIds"`
	DeclaredLastCard bool        `json:"declaredLastCard"`
	Token            string      `json:"token"`
}

// SeatView is what everyone sees of a player: counts, never cards.
type SeatView struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	CardCount        int    `json:"cardCount"`
	DeclaredLastCard bool   `json:"declaredLastCard"`
	Connected        bool   `json:"connected"`
	IsCurrent        bool   `json:"isCurrent"`
	IsHost           bool   `json:"isHost"`
}

// StatePayload is the per-player projection of a room's match state.
type StatePayload struct {
	RoomID                string     `json:"roomId"`
	RoomName              string     `json:"roomName"`
	Phase                 string     `json:"phase"`
	Me                    *SelfView  `json:"me"`
	Players               []SeatView `json:"players"`
	TopCard               *card.Card `json:"topCard"`
	CurrentSuit           card.Suit  `json:"currentSuit,omitempty"`
	PendingDraw           int        `json:"pendingDraw"`
	Direction             int        `json:"direction"`
	LastAction            string     `json:"lastAction,omitempty"`
	WinnerID              string     `json:"winnerId,omitempty"`
	DeckCount             int        `json:"deckCount"`
	DiscardCount          int        `json:"discardCount"`
	Messages              []LogEntry `json:"messages"`
	CardsPerPlayerOptions []int      `json:"cardsPerPlayerOptions"`
}

// RoomPlayerSummary is a player line in the room browser.
type RoomPlayerSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// RoomSummary is one entry of the room-list broadcast.
type RoomSummary struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Phase        string              `json:"phase"`
	CreatedAt    int64               `json:"createdAt"` // unix millis
	PlayerCount  int                 `json:"playerCount"`
	TotalPlayers int                 `json:"totalPlayers"`
	HostName     string              `json:"hostName,omitempty"`
	Players      []RoomPlayerSummary `json:"players"`
}
