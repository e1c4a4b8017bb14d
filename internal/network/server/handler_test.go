package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jodete-online/jodete-server/internal/game"
	"github.com/jodete-online/jodete-server/internal/protocol"
)

func newTestHandler() (*Handler, *RoomManager) {
	rm := newTestRoomManager()
	return NewHandler(rm), rm
}

func actionError(t *testing.T, c *fakeConn) *protocol.ActionErrorPayload {
	t.Helper()
	msg := c.lastOfType(protocol.MsgActionError)
	require.NotNil(t, msg, "no actionError for %s", c.id)
	var payload protocol.ActionErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	return &payload
}

func TestHandlePing(t *testing.T) {
	h, _ := newTestHandler()
	c := newFakeConn("conn-1", "Ana")

	h.Handle(c, protocol.MustNewMessage(protocol.MsgPing, protocol.PingPayload{Timestamp: 123}))

	msg := c.lastOfType(protocol.MsgPong)
	require.NotNil(t, msg)
	var pong protocol.PongPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &pong))
	assert.Equal(t, int64(123), pong.ClientTimestamp)
	assert.NotZero(t, pong.ServerTimestamp)
}

func TestHandleUnknownType(t *testing.T) {
	h, _ := newTestHandler()
	c := newFakeConn("conn-1", "Ana")

	h.Handle(c, &protocol.Message{Type: "teleport"})

	assert.Equal(t, protocol.ErrCodeInvalidMsg, actionError(t, c).Code)
}

func TestHandleCreateAndStartFlow(t *testing.T) {
	h, _ := newTestHandler()
	host := newFakeConn("conn-1", "Ana")
	guest := newFakeConn("conn-2", "Beto")

	h.Handle(host, protocol.MustNewMessage(protocol.MsgCreateRoom, protocol.CreateRoomPayload{
		RoomName:   "Mesa",
		PlayerName: "Ana",
	}))
	roomID := host.lastState(t).RoomID
	require.NotEmpty(t, roomID)

	h.Handle(guest, protocol.MustNewMessage(protocol.MsgJoinRoom, protocol.JoinRoomPayload{
		RoomID: roomID,
		Name:   "Beto",
	}))

	// Only the host can start.
	h.Handle(guest, protocol.MustNewMessage(protocol.MsgStart, protocol.StartPayload{}))
	assert.Equal(t, protocol.ErrCodeNotHost, actionError(t, guest).Code)

	h.Handle(host, protocol.MustNewMessage(protocol.MsgStart, protocol.StartPayload{}))
	state := host.lastState(t)
	assert.Equal(t, string(game.PhasePlaying), state.Phase)
	assert.Len(t, state.Me.Hand, 7)

	// Opponent hands never cross the wire.
	guestView := guest.lastState(t)
	for _, seat := range guestView.Players {
		if seat.ID != guestView.Me.ID {
			assert.Equal(t, 7, seat.CardCount)
		}
	}
}

func TestHandleActionsRequireRoom(t *testing.T) {
	h, _ := newTestHandler()
	c := newFakeConn("conn-1", "Ana")

	for _, msgType := range []protocol.MessageType{
		protocol.MsgStart,
		protocol.MsgPlayCard,
		protocol.MsgDrawCard,
		protocol.MsgDeclareLastCard,
		protocol.MsgReset,
	} {
		h.Handle(c, &protocol.Message{Type: msgType})
		assert.Equal(t, protocol.ErrCodeNotInRoom, actionError(t, c).Code, "type %s", msgType)
	}
}

func TestHandleGetRooms(t *testing.T) {
	h, _ := newTestHandler()
	c := newFakeConn("conn-1", "Ana")

	h.Handle(c, &protocol.Message{Type: protocol.MsgGetRooms})
	msg := c.lastOfType(protocol.MsgRooms)
	require.NotNil(t, msg)
	var rooms []protocol.RoomSummary
	require.NoError(t, json.Unmarshal(msg.Payload, &rooms))
	assert.Empty(t, rooms)

	h.Handle(c, protocol.MustNewMessage(protocol.MsgCreateRoom, protocol.CreateRoomPayload{PlayerName: "Ana"}))
	h.Handle(c, &protocol.Message{Type: protocol.MsgGetRooms})
	msg = c.lastOfType(protocol.MsgRooms)
	require.NoError(t, json.Unmarshal(msg.Payload, &rooms))
	assert.Len(t, rooms, 1)
}

func TestHandlePlayCardOutOfTurnSendsError(t *testing.T) {
	h, _ := newTestHandler()
	host := newFakeConn("conn-1", "Ana")
	guest := newFakeConn("conn-2", "Beto")

	h.Handle(host, protocol.MustNewMessage(protocol.MsgCreateRoom, protocol.CreateRoomPayload{PlayerName: "Ana"}))
	roomID := host.lastState(t).RoomID
	h.Handle(guest, protocol.MustNewMessage(protocol.MsgJoinRoom, protocol.JoinRoomPayload{RoomID: roomID, Name: "Beto"}))
	h.Handle(host, protocol.MustNewMessage(protocol.MsgStart, protocol.StartPayload{}))

	cardID := guest.lastState(t).Me.Hand[0].ID
	h.Handle(guest, protocol.MustNewMessage(protocol.MsgPlayCard, protocol.PlayCardPayload{CardID: cardID}))

	payload := actionError(t, guest)
	assert.Equal(t, protocol.ErrCodeNotYourTurn, payload.Code)
	assert.Equal(t, "No es tu turno", payload.Message)
	// The penalty shows up in the refreshed projection.
	assert.Len(t, guest.lastState(t).Me.Hand, 9)
}

func TestHandleMalformedPayload(t *testing.T) {
	h, _ := newTestHandler()
	c := newFakeConn("conn-1", "Ana")

	h.Handle(c, &protocol.Message{
		Type:    protocol.MsgJoinRoom,
		Payload: json.RawMessage(`{"roomId":42}`),
	})
	assert.Equal(t, protocol.ErrCodeInvalidMsg, actionError(t, c).Code)
}
