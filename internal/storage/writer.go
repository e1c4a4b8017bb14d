package storage

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jodete-online/jodete-server/internal/game"
)

const (
	defaultEventBuffer = 256
	opTimeout          = 5 * time.Second
)

// Writer drains match events into the gateway from a single background
// goroutine. Enqueue never blocks the game loop; when the buffer is full
// events are dropped with a warning, which loses history but never
// gameplay.
type Writer struct {
	gateway Gateway
	events  chan game.Event

	mu      sync.Mutex
	matches map[string]string // roomID -> active match id
}

// NewWriter creates a writer with the given buffer size. A non-positive
// size falls back to the default.
func NewWriter(gateway Gateway, buffer int) *Writer {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Writer{
		gateway: gateway,
		events:  make(chan game.Event, buffer),
		matches: make(map[string]string),
	}
}

// Enqueue hands events to the background goroutine without blocking.
func (w *Writer) Enqueue(events []game.Event) {
	for _, ev := range events {
		select {
		case w.events <- ev:
		default:
			log.WithField("room", ev.RoomID).Warn("persistence buffer full, dropping event")
		}
	}
}

// Run processes events until the context is cancelled, then drains what
// is already buffered.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case ev := <-w.events:
			w.process(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-w.events:
					w.process(ev)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) process(ev game.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch ev.Kind {
	case game.EventMatchStarted:
		matchID, err := w.gateway.StartMatch(ctx, ev.RoomID, ev.Snapshot)
		if err != nil {
			log.WithField("room", ev.RoomID).Errorf("start match: %v", err)
			return
		}
		w.setMatch(ev.RoomID, matchID)

	case game.EventSnapshot:
		matchID := w.matchFor(ctx, ev.RoomID)
		if matchID == "" {
			return
		}
		if err := w.gateway.SaveSnapshot(ctx, matchID, ev.Snapshot); err != nil {
			log.WithField("room", ev.RoomID).Errorf("save snapshot: %v", err)
		}
		// A terminal snapshot ends the room's current match.
		if ev.Snapshot.Phase == game.PhaseFinished || ev.Snapshot.Phase == game.PhaseAbandoned {
			w.clearMatch(ev.RoomID)
		}

	case game.EventAction:
		matchID := w.matchFor(ctx, ev.RoomID)
		if matchID == "" {
			return
		}
		if err := w.gateway.AppendAction(ctx, matchID, ev.Action); err != nil {
			log.WithField("room", ev.RoomID).Errorf("append action: %v", err)
		}

	case game.EventStats:
		for _, update := range ev.Stats {
			if err := w.gateway.UpdatePlayerStats(ctx, update); err != nil {
				log.WithField("user", update.UserID).Errorf("update stats: %v", err)
			}
		}
	}
}

// matchFor resolves the room's match id, falling back to the gateway
// after a writer restart.
func (w *Writer) matchFor(ctx context.Context, roomID string) string {
	w.mu.Lock()
	matchID, ok := w.matches[roomID]
	w.mu.Unlock()
	if ok {
		return matchID
	}
	matchID, err := w.gateway.CurrentMatch(ctx, roomID)
	if err != nil {
		log.WithField("room", roomID).Errorf("resolve match: %v", err)
		return ""
	}
	if matchID != "" {
		w.setMatch(roomID, matchID)
	}
	return matchID
}

func (w *Writer) setMatch(roomID, matchID string) {
	w.mu.Lock()
	w.matches[roomID] = matchID
	w.mu.Unlock()
}

func (w *Writer) clearMatch(roomID string) {
	w.mu.Lock()
	delete(w.matches, roomID)
	w.mu.Unlock()
}
