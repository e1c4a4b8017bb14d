package protocol

import "encoding/json"

// Message is the wire envelope for every frame in both directions.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageType identifies the action or event a frame carries.
type MessageType string

// Client → server message types.
const (
	MsgPing            MessageType = "ping"
	MsgCreateRoom      MessageType = "createRoom"
	MsgJoinRoom        MessageType = "joinRoom"
	MsgLeaveRoom       MessageType = "leaveRoom"
	MsgGetRooms        MessageType = "getRooms"
	MsgStart           MessageType = "start"
	MsgPlayCard        MessageType = "playCard"
	MsgDrawCard        MessageType = "drawCard"
	MsgDeclareLastCard MessageType = "declareLastCard"
	MsgCallJodete      MessageType = "callJodete"
	MsgReset           MessageType = "reset"
)

// Server → client message types.
const (
	MsgConnected   MessageType = "connected"
	MsgPong        MessageType = "pong"
	MsgRooms       MessageType = "rooms"
	MsgState       MessageType = "state"
	MsgJoinedRoom  MessageType = "joinedRoom"
	MsgLeftRoom    MessageType = "leftRoom"
	MsgActionError MessageType = "actionError"
)

// NewMessage builds a message with a JSON-encoded payload.
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	msg := &Message{Type: msgType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = data
	}
	return msg, nil
}

// MustNewMessage builds a message and panics on encoding failure. Only
// used with payload types this package owns.
func MustNewMessage(msgType MessageType, payload any) *Message {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Encode serializes the envelope for the wire.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses an inbound frame.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ParsePayload decodes a message payload into the given payload type. A
// missing payload yields the zero value, matching clients that omit the
// field entirely.
func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	if len(msg.Payload) == 0 {
		return &payload, nil
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
