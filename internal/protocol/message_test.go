package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	msg, err := NewMessage(MsgJoinRoom, JoinRoomPayload{RoomID: "r1", Name: "Ana"})
	require.NoError(t, err)

	data, err := msg.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, MsgJoinRoom, decoded.Type)

	payload, err := ParsePayload[JoinRoomPayload](decoded)
	require.NoError(t, err)
	assert.Equal(t, "r1", payload.RoomID)
	assert.Equal(t, "Ana", payload.Name)
}

func TestParsePayloadEmpty(t *testing.T) {
	payload, err := ParsePayload[StartPayload](&Message{Type: MsgStart})
	require.NoError(t, err)
	assert.Zero(t, payload.CardsPerPlayer)
}

func TestParsePayloadMalformed(t *testing.T) {
	msg := &Message{Type: MsgPlayCard, Payload: []byte(`{"cardId":7}`)}
	_, err := ParsePayload[PlayCardPayload](msg)
	assert.Error(t, err)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
}

func TestGameErrorMessage(t *testing.T) {
	assert.Equal(t, "No es tu turno", ErrNotYourTurn.Error())
	assert.Equal(t, ErrCodeNotYourTurn, ErrNotYourTurn.Code)
}
