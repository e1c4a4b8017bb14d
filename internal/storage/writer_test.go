package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jodete-online/jodete-server/internal/game"
)

// recordingGateway captures calls for assertions.
type recordingGateway struct {
	mu        sync.Mutex
	started   []string // room ids
	snapshots []string // match ids
	actions   []string // action types
	stats     []game.StatsUpdate
}

func (r *recordingGateway) StartMatch(_ context.Context, roomID string, _ *game.Snapshot) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, roomID)
	return "match-" + roomID, nil
}

func (r *recordingGateway) CurrentMatch(_ context.Context, roomID string) (string, error) {
	return "", nil
}

func (r *recordingGateway) SaveSnapshot(_ context.Context, matchID string, _ *game.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, matchID)
	return nil
}

func (r *recordingGateway) AppendAction(_ context.Context, matchID string, rec *game.ActionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, rec.Type)
	return nil
}

func (r *recordingGateway) UpdatePlayerStats(_ context.Context, update game.StatsUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, update)
	return nil
}

func (r *recordingGateway) Close() error { return nil }

func runWriter(t *testing.T, w *Writer, events []game.Event) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	w.Enqueue(events)
	// Give the goroutine a moment to pull the events, then let it drain.
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not stop")
	}
}

func TestWriterProcessesMatchLifecycle(t *testing.T) {
	gw := &recordingGateway{}
	w := NewWriter(gw, 16)

	snap := &game.Snapshot{RoomID: "room-1", Phase: game.PhasePlaying}
	finished := &game.Snapshot{RoomID: "room-1", Phase: game.PhaseFinished}
	runWriter(t, w, []game.Event{
		{Kind: game.EventMatchStarted, RoomID: "room-1", Snapshot: snap},
		{Kind: game.EventAction, RoomID: "room-1", Action: &game.ActionRecord{Type: "start"}},
		{Kind: game.EventAction, RoomID: "room-1", Action: &game.ActionRecord{Type: "play"}},
		{Kind: game.EventSnapshot, RoomID: "room-1", Snapshot: finished},
		{Kind: game.EventStats, RoomID: "room-1", Stats: []game.StatsUpdate{{UserID: "u1", Won: true}}},
	})

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Equal(t, []string{"room-1"}, gw.started)
	assert.Equal(t, []string{"match-room-1"}, gw.snapshots)
	assert.Equal(t, []string{"start", "play"}, gw.actions)
	require.Len(t, gw.stats, 1)
	assert.True(t, gw.stats[0].Won)

	// The terminal snapshot cleared the cached match id.
	w.mu.Lock()
	_, cached := w.matches["room-1"]
	w.mu.Unlock()
	assert.False(t, cached)
}

func TestWriterSkipsEventsWithoutMatch(t *testing.T) {
	gw := &recordingGateway{}
	w := NewWriter(gw, 16)

	// No EventMatchStarted and CurrentMatch resolves nothing, so the
	// action has nowhere to go.
	runWriter(t, w, []game.Event{
		{Kind: game.EventAction, RoomID: "room-x", Action: &game.ActionRecord{Type: "play"}},
	})

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Empty(t, gw.actions)
}

func TestWriterEnqueueDropsWhenFull(t *testing.T) {
	gw := &recordingGateway{}
	w := NewWriter(gw, 1)

	// Nothing is draining the channel, so the second event is dropped
	// instead of blocking.
	events := []game.Event{
		{Kind: game.EventAction, RoomID: "room-1", Action: &game.ActionRecord{Type: "a"}},
		{Kind: game.EventAction, RoomID: "room-1", Action: &game.ActionRecord{Type: "b"}},
	}
	doneCh := make(chan struct{})
	go func() {
		w.Enqueue(events)
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full buffer")
	}
	assert.Len(t, w.events, 1)
}
