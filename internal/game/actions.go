package game

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/jodete-online/jodete-server/internal/game/card"
	"github.com/jodete-online/jodete-server/internal/protocol"
)

// Join adds a player, or rebinds an existing seat to a new connection.
// Reconnection by token works in any phase; brand-new players are only
// accepted while the match is in the lobby. When a token rebind happens,
// the previous connection id is returned so the caller can re-key its
// connection→room mapping.
func (m *Match) Join(connID, name, token, userID string) (*Player, string, error) {
	displayName := trimName(name)

	if p := m.playerByToken(token); p != nil {
		previousID := p.ID
		p.ID = connID
		p.Name = displayName
		p.Connected = true
		if userID != "" {
			p.UserID = userID
		}
		if m.hostID == previousID {
			m.hostID = connID
		}
		m.log(p.Name + " se reconectó a la partida.")
		return p, previousID, nil
	}

	if p := m.playerByID(connID); p != nil {
		p.Name = displayName
		p.Connected = true
		m.log(p.Name + " se reconectó.")
		return p, "", nil
	}

	if m.phase != PhaseLobby {
		return nil, "", protocol.ErrMatchInProgress
	}

	p := &Player{
		ID:        connID,
		Token:     uuid.NewString(),
		UserID:    userID,
		Name:      displayName,
		Connected: true,
	}
	m.players = append(m.players, p)
	if m.hostID == "" {
		m.hostID = connID
	}
	m.log(displayName + " se unió a la partida.")
	return p, "", nil
}

// LeaveResult describes what Leave did.
type LeaveResult struct {
	Player   *Player
	Removed  bool // player was taken out of the turn order entirely
	Finished bool // the departure ended the match
}

// Leave handles both voluntary departures and transport-level disconnects.
// A network drop mid-match only marks the player disconnected so they can
// reconnect by token; a voluntary leave always removes the player and may
// end the match by forfeit.
func (m *Match) Leave(connID string, voluntary bool) *LeaveResult {
	idx := m.playerIndex(connID)
	if idx == -1 {
		return nil
	}
	p := m.players[idx]
	p.Connected = false

	if voluntary {
		m.log(p.Name + " abandonó la partida.")
	} else {
		m.log(p.Name + " se desconectó.")
	}

	if !voluntary && m.phase != PhaseLobby {
		// Seat and hand are kept for a possible reconnect.
		return &LeaveResult{Player: p}
	}

	m.removePlayerAt(idx)
	res := &LeaveResult{Player: p, Removed: true}

	if m.phase == PhasePlaying {
		// The leaver's cards go back under the draw pile so the deck
		// cannot starve for the players who stay.
		m.drawPile = append(m.drawPile, p.Hand...)
		p.Hand = nil
		if m.repeat != nil && m.repeat.playerID == connID {
			m.repeat = nil
		}
		if len(m.players) <= 1 {
			m.phase = PhaseFinished
			res.Finished = true
			if len(m.players) == 1 {
				winner := m.players[0]
				m.winnerID = winner.ID
				m.lastAction = winner.Name + " ganó la partida por abandono."
				m.log(m.lastAction)
			} else {
				m.lastAction = "La partida terminó sin ganador."
				m.log(m.lastAction)
			}
			m.emitAction("finish", p, m.lastAction, nil)
			m.emitFinish()
		}
	}

	return res
}

// removePlayerAt drops the player from the turn order, keeping the turn
// index pointed at whoever should act next.
func (m *Match) removePlayerAt(idx int) {
	removedID := m.players[idx].ID
	m.players = append(m.players[:idx], m.players[idx+1:]...)

	if m.hostID == removedID {
		m.hostID = ""
		if len(m.players) > 0 {
			m.hostID = m.players[0].ID
			m.log(m.players[0].Name + " es el nuevo anfitrión.")
		}
	}

	if len(m.players) == 0 {
		m.currentPlayerIndex = 0
		return
	}
	switch {
	case idx < m.currentPlayerIndex:
		m.currentPlayerIndex--
	case idx == m.currentPlayerIndex && m.direction < 0:
		m.currentPlayerIndex = m.modIndex(idx - 1)
	}
	m.currentPlayerIndex = m.modIndex(m.currentPlayerIndex)
}

// Start deals a fresh deck and moves the match to playing. Only the host
// may start, only from the lobby, and only with a supported player count.
func (m *Match) Start(requesterID string, cardsPerPlayer int) error {
	if requesterID != m.hostID {
		return protocol.ErrNotHost
	}
	if m.phase != PhaseLobby {
		return protocol.ErrAlreadyStarted
	}
	if m.ConnectedCount() < 2 {
		return protocol.ErrInsufficientPlayers
	}
	allowed := m.AllowedHandSizes()
	if len(allowed) == 0 {
		return protocol.ErrUnsupportedPlayerCount
	}

	handSize := allowed[0]
	for _, size := range allowed {
		if size == cardsPerPlayer {
			handSize = cardsPerPlayer
			break
		}
	}

	m.phase = PhasePlaying
	m.drawPile = card.NewDeck()
	m.discardPile = nil
	m.currentPlayerIndex = 0
	m.direction = 1
	m.pendingDraw = 0
	m.repeat = nil
	m.suitOverride = ""
	m.winnerID = ""
	m.turnNumber = 0
	m.handSize = handSize
	m.startedAt = time.Now()

	for _, p := range m.players {
		p.Hand = nil
		p.DeclaredLastCard = false
		p.resetCounters()
		if !p.Connected {
			continue
		}
		if _, err := m.drawInto(p, handSize); err != nil {
			// Cannot happen with a full deck and a supported count.
			m.phase = PhaseLobby
			return err
		}
	}

	if err := m.seedStartingCard(); err != nil {
		m.phase = PhaseLobby
		return err
	}

	m.lastAction = fmt.Sprintf("La partida comenzó. Empieza %s.", m.activePlayer().Name)
	m.log(m.lastAction)

	m.emitSnapshot(true)
	m.emitAction("start", nil, m.lastAction, nil)
	return nil
}

// seedStartingCard moves a non-action card from the draw pile onto the
// empty discard pile; skipped action cards go to the bottom of the draw
// pile. Bounded so a pathological shuffle cannot loop forever.
func (m *Match) seedStartingCard() error {
	first, err := m.drawCard()
	if err != nil {
		return err
	}
	attempts := 0
	for first.IsAction() && attempts < maxStartCardAttempts {
		m.drawPile = append(m.drawPile, first)
		first, err = m.drawCard()
		if err != nil {
			return err
		}
		attempts++
	}
	if first.IsAction() {
		log.WithField("room", m.roomID).
			Warnf("no non-action starting card after %d attempts, using %s", maxStartCardAttempts, first.Describe())
	}
	m.discardPile = append(m.discardPile, first)
	return nil
}

// Play validates and applies a card play, including special-card effects.
// All validation happens before any mutation, with the documented
// exception of the out-of-turn penalty.
func (m *Match) Play(playerID, cardID string, chosenSuit card.Suit) error {
	player, err := m.validateTurn(playerID)
	if err != nil {
		return err
	}

	cardIndex := -1
	for i, c := range player.Hand {
		if c.ID == cardID {
			cardIndex = i
			break
		}
	}
	if cardIndex == -1 {
		return protocol.ErrCardNotInHand
	}
	played := player.Hand[cardIndex]

	if m.pendingDraw > 0 && played.Value != 2 {
		return protocol.ErrMustRespondToPendingDraw
	}

	// A constraint left by another player means that player's turn ended
	// some other way; it no longer binds anyone.
	if m.repeat != nil && m.repeat.playerID != player.ID {
		m.repeat = nil
	}
	if m.repeat != nil && played.Value != 11 && played.Suit != m.repeat.suit {
		return protocol.ErrMustFollowRepeatConstraint
	}

	if !m.isPlayable(played) {
		return protocol.ErrCardNotPlayable
	}
	if played.Value == 10 && !chosenSuit.Valid() {
		return protocol.ErrMissingSuitChoice
	}

	// Committed from here on.
	player.Hand = append(player.Hand[:cardIndex], player.Hand[cardIndex+1:]...)
	m.discardPile = append(m.discardPile, played)
	m.turnNumber++

	message := fmt.Sprintf("%s jugó %s.", player.Name, played.Describe())
	skipNext := false
	advanceAfterPlay := true
	var newOverride card.Suit

	switch played.Value {
	case 2:
		m.pendingDraw += 2
		message += fmt.Sprintf(" El siguiente jugador debe robar %d carta(s) o encadenar otro dos.", m.pendingDraw)
	case 4:
		skipNext = true
		message += " Saltó al siguiente jugador."
	case 10:
		newOverride = chosenSuit
		message += fmt.Sprintf(" Eligió el palo %s.", chosenSuit.Label())
	case 11:
		m.repeat = &repeatConstraint{playerID: player.ID, suit: played.Suit}
		advanceAfterPlay = false
		message += " Debe repetir con el mismo palo o un 11."
	case 12:
		m.direction *= -1
		if m.ConnectedCount() <= 2 {
			skipNext = true
		}
		message += " Cambió el sentido de la ronda."
	}

	if played.IsAction() {
		player.countSpecial(played.Value)
	}
	if played.Value != 11 {
		m.repeat = nil
	}
	m.suitOverride = newOverride

	// Any change in hand size invalidates a previous declaration.
	player.DeclaredLastCard = false

	m.lastAction = message
	m.log(message)
	m.emitAction("play", player, message, &played)

	if len(player.Hand) == 0 {
		m.phase = PhaseFinished
		m.winnerID = player.ID
		m.lastAction = player.Name + " ganó la partida. ¡Felicitaciones!"
		m.log(m.lastAction)
		m.emitAction("finish", player, m.lastAction, nil)
		m.emitFinish()
		return nil
	}

	if advanceAfterPlay {
		m.advanceTurn(skipNext)
	}
	return nil
}

// Draw gives the active player cards. With a pending draw chain the whole
// accumulated count is taken and the turn only passes when nothing in the
// resulting hand is playable; otherwise one card is drawn and the turn
// passes unless the player can still act.
func (m *Match) Draw(playerID string) error {
	player, err := m.validateTurn(playerID)
	if err != nil {
		return err
	}

	if m.pendingDraw > 0 {
		count := m.pendingDraw
		drawn, derr := m.drawInto(player, count)
		if derr != nil {
			log.WithFields(log.Fields{"room": m.roomID, "player": player.ID}).
				Errorf("deck exhausted resolving draw chain, drew %d of %d: %v", drawn, count, derr)
		}
		m.pendingDraw = 0
		m.repeat = nil
		player.DeclaredLastCard = false
		m.turnNumber++

		message := fmt.Sprintf("%s recibió %d carta(s) por acumulación de doses.", player.Name, drawn)
		if m.hasPlayableCard(player) {
			message += " Puede volver a jugar."
		} else {
			message += " No tiene cartas jugables, pasa el turno."
			m.advanceTurn(false)
		}
		m.lastAction = message
		m.log(message)
		m.emitAction("draw", player, message, nil)
		if derr != nil {
			return protocol.ErrDeckExhausted
		}
		return nil
	}

	c, err := m.drawCard()
	if err != nil {
		log.WithFields(log.Fields{"room": m.roomID, "player": player.ID}).
			Errorf("deck exhausted on draw: %v", err)
		return err
	}
	player.Hand = append(player.Hand, c)
	player.DeclaredLastCard = false
	m.turnNumber++

	message := player.Name + " robó una carta."
	switch {
	case m.isPlayable(c):
		message += " La carta robada se puede jugar inmediatamente."
	case m.hasPlayableCard(player):
		message += " Tiene cartas jugables en su mano."
	default:
		message += " No tiene cartas jugables, pasa el turno."
		m.repeat = nil
		m.advanceTurn(false)
	}
	m.lastAction = message
	m.log(message)
	m.emitAction("draw", player, message, nil)
	return nil
}

// DeclareLastCard marks the player as having announced their last card.
func (m *Match) DeclareLastCard(playerID string) error {
	player := m.playerByID(playerID)
	if player == nil || len(player.Hand) != 1 {
		return protocol.ErrNotEligible
	}
	player.DeclaredLastCard = true
	msg := player.Name + " declaró su última carta."
	m.log(msg)
	m.emitAction("declare", player, msg, nil)
	return nil
}

// CallJodete penalizes a player holding an undeclared last card.
func (m *Match) CallJodete(callerID, targetID string) error {
	caller := m.playerByID(callerID)
	target := m.playerByID(targetID)
	if caller == nil || target == nil {
		return protocol.ErrInvalidTarget
	}
	if len(target.Hand) != 1 || target.DeclaredLastCard {
		return protocol.ErrInvalidTarget
	}
	m.penalize(target, 2, "No avisó última carta")
	caller.jodetesCalled++
	target.jodetesReceived++
	msg := fmt.Sprintf("%s dijo ¡Jodete! a %s.", caller.Name, target.Name)
	m.log(msg)
	m.emitAction("jodete", caller, msg, nil)
	return nil
}

// Reset returns the room to the lobby for a rematch, keeping currently
// connected players and discarding everyone else.
func (m *Match) Reset(requesterID string) error {
	if requesterID != m.hostID {
		return protocol.ErrNotHost
	}

	if m.phase == PhasePlaying {
		m.phase = PhaseAbandoned
		m.emitSnapshot(false)
	}

	var preserved []*Player
	for _, p := range m.players {
		if !p.Connected {
			continue
		}
		p.Hand = nil
		p.DeclaredLastCard = false
		p.resetCounters()
		preserved = append(preserved, p)
	}

	m.resetState()
	m.players = preserved
	if len(m.players) > 0 {
		m.hostID = m.players[0].ID
	}
	m.log("La partida se reinició. Esperando a que comiencen de nuevo.")
	return nil
}

// Abandon marks a running match as abandoned. Used by the registry when a
// room dies with the match still in progress.
func (m *Match) Abandon() {
	if m.phase != PhasePlaying {
		return
	}
	m.phase = PhaseAbandoned
	m.log("La partida quedó abandonada.")
	m.emitSnapshot(false)
}
