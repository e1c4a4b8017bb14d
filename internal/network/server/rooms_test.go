package server

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jodete-online/jodete-server/internal/game"
	"github.com/jodete-online/jodete-server/internal/protocol"
	"github.com/jodete-online/jodete-server/internal/storage"
)

// fakeConn records everything sent to it.
type fakeConn struct {
	id   string
	name string
	user string

	mu   sync.Mutex
	msgs []*protocol.Message
}

func newFakeConn(id, name string) *fakeConn {
	return &fakeConn{id: id, name: name}
}

func (f *fakeConn) ConnID() string      { return f.id }
func (f *fakeConn) DisplayName() string { return f.name }
func (f *fakeConn) UserID() string      { return f.user }

func (f *fakeConn) SendMessage(msg *protocol.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

// lastOfType returns the most recent message of the given type.
func (f *fakeConn) lastOfType(t protocol.MessageType) *protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i].Type == t {
			return f.msgs[i]
		}
	}
	return nil
}

func (f *fakeConn) lastState(t *testing.T) *protocol.StatePayload {
	t.Helper()
	msg := f.lastOfType(protocol.MsgState)
	require.NotNil(t, msg, "no state message for %s", f.id)
	var state protocol.StatePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &state))
	return &state
}

func newTestRoomManager() *RoomManager {
	writer := storage.NewWriter(storage.NoopGateway{}, 64)
	return NewRoomManager(writer, 30*time.Minute)
}

func TestCreateRoomSeatsCreatorAsHost(t *testing.T) {
	rm := newTestRoomManager()
	c := newFakeConn("conn-1", "Ana")

	require.NoError(t, rm.CreateRoom(c, "Mesa de Ana", "Ana", ""))

	joined := c.lastOfType(protocol.MsgJoinedRoom)
	require.NotNil(t, joined)
	var ack protocol.JoinedRoomPayload
	require.NoError(t, json.Unmarshal(joined.Payload, &ack))
	assert.Equal(t, "Mesa de Ana", ack.RoomName)

	state := c.lastState(t)
	require.NotNil(t, state.Me)
	require.Len(t, state.Players, 1)
	assert.True(t, state.Players[0].IsHost)
	assert.Equal(t, string(game.PhaseLobby), state.Phase)
}

func TestCreateRoomFallbackName(t *testing.T) {
	rm := newTestRoomManager()
	c := newFakeConn("conn-1", "Ana")

	require.NoError(t, rm.CreateRoom(c, "   ", "Ana", ""))

	state := c.lastState(t)
	assert.Equal(t, "Sala 1", state.RoomName)
}

func TestJoinRoomUnknown(t *testing.T) {
	rm := newTestRoomManager()
	c := newFakeConn("conn-1", "Ana")

	err := rm.JoinRoom(c, "no-such-room", "Ana", "")
	assert.ErrorIs(t, err, protocol.ErrRoomNotFound)
}

func TestJoinBroadcastsToEveryMember(t *testing.T) {
	rm := newTestRoomManager()
	host := newFakeConn("conn-1", "Ana")
	guest := newFakeConn("conn-2", "Beto")

	require.NoError(t, rm.CreateRoom(host, "Mesa", "Ana", ""))
	roomID := host.lastState(t).RoomID
	require.NoError(t, rm.JoinRoom(guest, roomID, "Beto", ""))

	hostState := host.lastState(t)
	guestState := guest.lastState(t)
	assert.Len(t, hostState.Players, 2)
	assert.Len(t, guestState.Players, 2)
	// Each side only sees its own identity.
	assert.Equal(t, "conn-1", hostState.Me.ID)
	assert.Equal(t, "conn-2", guestState.Me.ID)
}

func TestDispatchWithoutRoom(t *testing.T) {
	rm := newTestRoomManager()
	c := newFakeConn("conn-1", "Ana")

	err := rm.Dispatch(c, func(m *game.Match) error { return nil })
	assert.ErrorIs(t, err, protocol.ErrNotInRoom)
}

func TestDispatchBroadcastsEvenOnError(t *testing.T) {
	rm := newTestRoomManager()
	host := newFakeConn("conn-1", "Ana")
	guest := newFakeConn("conn-2", "Beto")

	require.NoError(t, rm.CreateRoom(host, "Mesa", "Ana", ""))
	roomID := host.lastState(t).RoomID
	require.NoError(t, rm.JoinRoom(guest, roomID, "Beto", ""))
	require.NoError(t, rm.Dispatch(host, func(m *game.Match) error {
		return m.Start("conn-1", 0)
	}))

	// Acting out of turn fails but still penalizes, so everyone needs
	// the refreshed state.
	before := guest.lastState(t)
	err := rm.Dispatch(guest, func(m *game.Match) error {
		return m.Draw("conn-2")
	})
	assert.ErrorIs(t, err, protocol.ErrNotYourTurn)

	after := guest.lastState(t)
	assert.Equal(t, len(before.Me.Hand)+2, len(after.Me.Hand))
}

func TestReconnectRebindsConnection(t *testing.T) {
	rm := newTestRoomManager()
	host := newFakeConn("conn-1", "Ana")
	guest := newFakeConn("conn-2", "Beto")

	require.NoError(t, rm.CreateRoom(host, "Mesa", "Ana", ""))
	roomID := host.lastState(t).RoomID
	require.NoError(t, rm.JoinRoom(guest, roomID, "Beto", ""))
	require.NoError(t, rm.Dispatch(host, func(m *game.Match) error {
		return m.Start("conn-1", 0)
	}))
	token := guest.lastState(t).Me.Token
	require.NotEmpty(t, token)

	rm.HandleDisconnect("conn-2")

	// Mid-match the room must survive the drop.
	require.Equal(t, 1, rm.RoomCount())

	revived := newFakeConn("conn-9", "Beto")
	require.NoError(t, rm.JoinRoom(revived, roomID, "Beto", token))

	state := revived.lastState(t)
	assert.Equal(t, "conn-9", state.Me.ID)
	assert.Len(t, state.Me.Hand, 7)
	assert.Equal(t, string(game.PhasePlaying), state.Phase)

	// The revived connection can act through the normal dispatch path.
	err := rm.Dispatch(revived, func(m *game.Match) error {
		return m.DeclareLastCard("conn-9")
	})
	assert.ErrorIs(t, err, protocol.ErrNotEligible)
}

func TestLeaveRoomRemovesEmptyRoom(t *testing.T) {
	rm := newTestRoomManager()
	c := newFakeConn("conn-1", "Ana")

	require.NoError(t, rm.CreateRoom(c, "Mesa", "Ana", ""))
	require.Equal(t, 1, rm.RoomCount())

	rm.LeaveRoom(c)
	assert.NotNil(t, c.lastOfType(protocol.MsgLeftRoom))
	assert.Equal(t, 0, rm.RoomCount())
}

func TestLobbyDisconnectFreesSeat(t *testing.T) {
	rm := newTestRoomManager()
	host := newFakeConn("conn-1", "Ana")
	guest := newFakeConn("conn-2", "Beto")

	require.NoError(t, rm.CreateRoom(host, "Mesa", "Ana", ""))
	roomID := host.lastState(t).RoomID
	require.NoError(t, rm.JoinRoom(guest, roomID, "Beto", ""))

	rm.HandleDisconnect("conn-2")

	state := host.lastState(t)
	assert.Len(t, state.Players, 1)
}

func TestListRoomsOrdering(t *testing.T) {
	rm := newTestRoomManager()

	solo := newFakeConn("conn-1", "Ana")
	require.NoError(t, rm.CreateRoom(solo, "Solitaria", "Ana", ""))

	h := newFakeConn("conn-2", "Beto")
	g := newFakeConn("conn-3", "Carla")
	require.NoError(t, rm.CreateRoom(h, "Concurrida", "Beto", ""))
	require.NoError(t, rm.JoinRoom(g, h.lastState(t).RoomID, "Carla", ""))

	rooms := rm.ListRooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, "Concurrida", rooms[0].Name)
	assert.Equal(t, 2, rooms[0].PlayerCount)
}

func TestActiveMatchCount(t *testing.T) {
	rm := newTestRoomManager()
	host := newFakeConn("conn-1", "Ana")
	guest := newFakeConn("conn-2", "Beto")

	require.NoError(t, rm.CreateRoom(host, "Mesa", "Ana", ""))
	require.NoError(t, rm.JoinRoom(guest, host.lastState(t).RoomID, "Beto", ""))
	assert.Equal(t, 0, rm.ActiveMatchCount())

	require.NoError(t, rm.Dispatch(host, func(m *game.Match) error {
		return m.Start("conn-1", 0)
	}))
	assert.Equal(t, 1, rm.ActiveMatchCount())
}

func backdateRoom(rm *RoomManager, roomID string, age time.Duration) {
	room := rm.room(roomID)
	room.mu.Lock()
	room.lastActive = time.Now().Add(-age)
	room.mu.Unlock()
}

func TestCleanupKeepsActiveMatch(t *testing.T) {
	rm := newTestRoomManager()
	host := newFakeConn("conn-1", "Ana")
	guest := newFakeConn("conn-2", "Beto")

	require.NoError(t, rm.CreateRoom(host, "Mesa", "Ana", ""))
	roomID := host.lastState(t).RoomID
	require.NoError(t, rm.JoinRoom(guest, roomID, "Beto", ""))
	require.NoError(t, rm.Dispatch(host, func(m *game.Match) error {
		return m.Start("conn-1", 0)
	}))

	// A table that thinks for an hour is still a live table.
	backdateRoom(rm, roomID, 2*time.Hour)
	rm.cleanupIdle()

	assert.Equal(t, 1, rm.RoomCount())
	assert.Equal(t, 1, rm.ActiveMatchCount())
}

func TestCleanupReclaimsIdleLobby(t *testing.T) {
	rm := newTestRoomManager()
	host := newFakeConn("conn-1", "Ana")

	require.NoError(t, rm.CreateRoom(host, "Mesa", "Ana", ""))
	roomID := host.lastState(t).RoomID

	backdateRoom(rm, roomID, 2*time.Hour)
	rm.cleanupIdle()

	assert.Equal(t, 0, rm.RoomCount())
}

func TestCleanupReclaimsDesertedMatch(t *testing.T) {
	rm := newTestRoomManager()
	host := newFakeConn("conn-1", "Ana")
	guest := newFakeConn("conn-2", "Beto")

	require.NoError(t, rm.CreateRoom(host, "Mesa", "Ana", ""))
	roomID := host.lastState(t).RoomID
	require.NoError(t, rm.JoinRoom(guest, roomID, "Beto", ""))
	require.NoError(t, rm.Dispatch(host, func(m *game.Match) error {
		return m.Start("conn-1", 0)
	}))

	rm.HandleDisconnect("conn-1")
	rm.HandleDisconnect("conn-2")
	// Seats stay reserved for reconnects while the room is fresh.
	require.Equal(t, 1, rm.RoomCount())

	rm.cleanupIdle()
	assert.Equal(t, 1, rm.RoomCount())

	backdateRoom(rm, roomID, 2*time.Hour)
	rm.cleanupIdle()
	assert.Equal(t, 0, rm.RoomCount())
}
