package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/jodete-online/jodete-server/internal/game/card"
	"github.com/jodete-online/jodete-server/internal/protocol"
)

// Phase is the lifecycle stage of a match.
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhasePlaying   Phase = "playing"
	PhaseFinished  Phase = "finished"
	PhaseAbandoned Phase = "abandoned"
)

// HandSizeOptions maps connected-player count to the allowed initial hand
// sizes. Counts outside the table are unsupported.
var HandSizeOptions = map[int][]int{
	2: {7, 6},
	3: {6, 5},
	4: {5, 4},
	5: {4},
	6: {4},
}

const (
	maxNameLength = 32
	// Log entries kept server-side; projections expose the last logTail.
	maxLogEntries = 200
	logTail       = 20
	// Attempts to find a non-action starting card before giving up.
	maxStartCardAttempts = 50
)

// Player is one seat in a match. ID is the current transport identity and
// changes across reconnects; Token survives them.
type Player struct {
	ID               string
	Token            string
	UserID           string // external account reference, empty for guests
	Name             string
	Hand             []card.Card
	DeclaredLastCard bool
	Connected        bool

	// In-match counters folded into lifetime stats when the match ends.
	specialPlayed   map[int]int
	jodetesCalled   int
	jodetesReceived int
}

type repeatConstraint struct {
	playerID string
	suit     card.Suit
}

// Match is the authoritative state machine for one room. It is not safe
// for concurrent use; the owning room serializes access behind its mutex.
type Match struct {
	roomID   string
	roomName string

	phase              Phase
	players            []*Player // turn order = list order
	hostID             string
	drawPile           []card.Card // top = front
	discardPile        []card.Card // top = last
	currentPlayerIndex int
	direction          int
	pendingDraw        int
	repeat             *repeatConstraint
	suitOverride       card.Suit // empty when inactive
	winnerID           string
	turnNumber         int
	handSize           int
	lastAction         string
	messages           []protocol.LogEntry
	startedAt          time.Time

	events []Event // persistence outbox, drained by the room after each op
}

// NewMatch creates a match in the lobby phase.
func NewMatch(roomID, roomName string) *Match {
	m := &Match{roomID: roomID, roomName: roomName}
	m.resetState()
	return m
}

// resetState clears all match-specific state back to an empty lobby.
func (m *Match) resetState() {
	m.phase = PhaseLobby
	m.players = nil
	m.hostID = ""
	m.drawPile = nil
	m.discardPile = nil
	m.currentPlayerIndex = 0
	m.direction = 1
	m.pendingDraw = 0
	m.repeat = nil
	m.suitOverride = ""
	m.winnerID = ""
	m.turnNumber = 0
	m.handSize = 0
	m.lastAction = ""
	m.messages = nil
	m.startedAt = time.Time{}
}

// SetRoomName renames the room for subsequent projections.
func (m *Match) SetRoomName(name string) {
	m.roomName = name
}

// Phase returns the current lifecycle stage.
func (m *Match) Phase() Phase {
	return m.phase
}

// IsEmpty reports whether no players remain.
func (m *Match) IsEmpty() bool {
	return len(m.players) == 0
}

// PlayerIDs returns the connection ids of all connected players.
func (m *Match) PlayerIDs() []string {
	ids := make([]string, 0, len(m.players))
	for _, p := range m.players {
		if p.Connected {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// ConnectedCount returns how many players are currently connected.
func (m *Match) ConnectedCount() int {
	n := 0
	for _, p := range m.players {
		if p.Connected {
			n++
		}
	}
	return n
}

// AllowedHandSizes returns the valid initial hand sizes for the current
// connected-player count, or nil when the count is unsupported.
func (m *Match) AllowedHandSizes() []int {
	return HandSizeOptions[m.ConnectedCount()]
}

func (m *Match) playerByID(id string) *Player {
	for _, p := range m.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (m *Match) playerByToken(token string) *Player {
	if token == "" {
		return nil
	}
	for _, p := range m.players {
		if p.Token == token {
			return p
		}
	}
	return nil
}

func (m *Match) playerIndex(id string) int {
	for i, p := range m.players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (m *Match) activePlayer() *Player {
	if len(m.players) == 0 {
		return nil
	}
	return m.players[m.currentPlayerIndex]
}

func (m *Match) topCard() *card.Card {
	if len(m.discardPile) == 0 {
		return nil
	}
	return &m.discardPile[len(m.discardPile)-1]
}

// currentSuit is the suit a play must follow: the active override from a
// 10, else the discard top's suit.
func (m *Match) currentSuit() card.Suit {
	if m.suitOverride != "" {
		return m.suitOverride
	}
	if top := m.topCard(); top != nil {
		return top.Suit
	}
	return ""
}

// isPlayable applies the matching rule against the current discard top.
func (m *Match) isPlayable(c card.Card) bool {
	top := m.topCard()
	if top == nil {
		return true
	}
	// While twos are stacked, only another two answers.
	if m.pendingDraw > 0 {
		return c.Value == 2
	}
	// The 10 is wild outside a pending draw chain.
	if c.Value == 10 {
		return true
	}
	if c.Value == top.Value {
		return true
	}
	return c.Suit == m.currentSuit()
}

func (m *Match) hasPlayableCard(p *Player) bool {
	for _, c := range p.Hand {
		if m.isPlayable(c) {
			return true
		}
	}
	return false
}

func (m *Match) modIndex(v int) int {
	n := len(m.players)
	if n == 0 {
		return 0
	}
	return ((v % n) + n) % n
}

func (m *Match) advanceTurn(skipNext bool) {
	if len(m.players) == 0 {
		return
	}
	steps := 1
	if skipNext {
		steps = 2
	}
	m.currentPlayerIndex = m.modIndex(m.currentPlayerIndex + steps*m.direction)
}

// drawCard removes and returns the top of the draw pile, recycling the
// discard pile first when the draw pile is empty.
func (m *Match) drawCard() (card.Card, error) {
	if len(m.drawPile) == 0 {
		m.recycle()
	}
	if len(m.drawPile) == 0 {
		return card.Card{}, protocol.ErrDeckExhausted
	}
	c := m.drawPile[0]
	m.drawPile = m.drawPile[1:]
	return c, nil
}

// recycle reshuffles the discard pile under its top card back into the
// draw pile. The top card stays visible as the current discard.
func (m *Match) recycle() {
	if len(m.discardPile) <= 1 {
		return
	}
	top := m.discardPile[len(m.discardPile)-1]
	rest := make([]card.Card, len(m.discardPile)-1)
	copy(rest, m.discardPile[:len(m.discardPile)-1])
	card.Shuffle(rest)
	m.drawPile = append(m.drawPile, rest...)
	m.discardPile = []card.Card{top}
}

// drawInto deals up to n cards into the player's hand, returning how many
// were actually drawn. Falling short means the conservation invariant
// already broke; the caller decides how loudly to report it.
func (m *Match) drawInto(p *Player, n int) (int, error) {
	for i := 0; i < n; i++ {
		c, err := m.drawCard()
		if err != nil {
			return i, err
		}
		p.Hand = append(p.Hand, c)
	}
	return n, nil
}

// penalize forces cards on a player outside the normal draw flow.
func (m *Match) penalize(p *Player, n int, reason string) {
	drawn, err := m.drawInto(p, n)
	p.DeclaredLastCard = false
	if err != nil {
		log.WithFields(log.Fields{"room": m.roomID, "player": p.ID}).
			Errorf("deck exhausted during penalty, drew %d of %d: %v", drawn, n, err)
	}
	m.log(fmt.Sprintf("%s recibió %d carta(s) de penalización. Motivo: %s.", p.Name, drawn, reason))
}

// validateTurn checks the caller holds the turn. Acting out of turn costs
// the offender two cards before the error is returned.
func (m *Match) validateTurn(playerID string) (*Player, error) {
	active := m.activePlayer()
	if active == nil {
		return nil, protocol.ErrNotInRoom
	}
	if active.ID != playerID {
		if offender := m.playerByID(playerID); offender != nil {
			m.penalize(offender, 2, "Acción fuera de turno")
		}
		return nil, protocol.ErrNotYourTurn
	}
	return active, nil
}

// log appends a timestamped entry, capped at maxLogEntries.
func (m *Match) log(text string) {
	m.messages = append(m.messages, protocol.LogEntry{
		ID:        uuid.NewString(),
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	})
	if len(m.messages) > maxLogEntries {
		m.messages = m.messages[len(m.messages)-maxLogEntries:]
	}
}

func (p *Player) countSpecial(value int) {
	if p.specialPlayed == nil {
		p.specialPlayed = make(map[int]int)
	}
	p.specialPlayed[value]++
}

func (p *Player) resetCounters() {
	p.specialPlayed = nil
	p.jodetesCalled = 0
	p.jodetesReceived = 0
}

// trimName normalizes a display name, falling back to "Jugador".
func trimName(name string) string {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) > maxNameLength {
		trimmed = trimmed[:maxNameLength]
	}
	if trimmed == "" {
		return "Jugador"
	}
	return trimmed
}
