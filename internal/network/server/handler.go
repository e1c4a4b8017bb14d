package server

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jodete-online/jodete-server/internal/game"
	"github.com/jodete-online/jodete-server/internal/protocol"
)

// Handler routes decoded frames to room and match operations.
type Handler struct {
	rooms *RoomManager
}

// NewHandler wires the message router to the room registry.
func NewHandler(rooms *RoomManager) *Handler {
	return &Handler{rooms: rooms}
}

// Handle processes one inbound frame from a connection.
func (h *Handler) Handle(c Conn, msg *protocol.Message) {
	switch msg.Type {
	case protocol.MsgPing:
		h.handlePing(c, msg)
	case protocol.MsgGetRooms:
		h.sendRooms(c)
	case protocol.MsgCreateRoom:
		h.handleCreateRoom(c, msg)
	case protocol.MsgJoinRoom:
		h.handleJoinRoom(c, msg)
	case protocol.MsgLeaveRoom:
		h.rooms.LeaveRoom(c)
	case protocol.MsgStart:
		h.handleStart(c, msg)
	case protocol.MsgPlayCard:
		h.handlePlayCard(c, msg)
	case protocol.MsgDrawCard:
		h.dispatch(c, func(m *game.Match) error {
			return m.Draw(c.ConnID())
		})
	case protocol.MsgDeclareLastCard:
		h.dispatch(c, func(m *game.Match) error {
			return m.DeclareLastCard(c.ConnID())
		})
	case protocol.MsgCallJodete:
		h.handleCallJodete(c, msg)
	case protocol.MsgReset:
		h.dispatch(c, func(m *game.Match) error {
			return m.Reset(c.ConnID())
		})
	default:
		log.WithField("type", msg.Type).Debug("unhandled message type")
		h.sendError(c, &protocol.GameError{
			Code:    protocol.ErrCodeInvalidMsg,
			Message: "Mensaje no reconocido",
		})
	}
}

func (h *Handler) handlePing(c Conn, msg *protocol.Message) {
	payload, err := protocol.ParsePayload[protocol.PingPayload](msg)
	if err != nil {
		h.sendError(c, &protocol.GameError{Code: protocol.ErrCodeInvalidMsg, Message: "Mensaje inválido"})
		return
	}
	c.SendMessage(protocol.MustNewMessage(protocol.MsgPong, protocol.PongPayload{
		ClientTimestamp: payload.Timestamp,
		ServerTimestamp: time.Now().UnixMilli(),
	}))
}

func (h *Handler) sendRooms(c Conn) {
	c.SendMessage(protocol.MustNewMessage(protocol.MsgRooms, h.rooms.ListRooms()))
}

func (h *Handler) handleCreateRoom(c Conn, msg *protocol.Message) {
	payload, err := protocol.ParsePayload[protocol.CreateRoomPayload](msg)
	if err != nil {
		h.sendError(c, &protocol.GameError{Code: protocol.ErrCodeInvalidMsg, Message: "Mensaje inválido"})
		return
	}
	if err := h.rooms.CreateRoom(c, payload.RoomName, payload.PlayerName, payload.Token); err != nil {
		h.sendError(c, err)
	}
}

func (h *Handler) handleJoinRoom(c Conn, msg *protocol.Message) {
	payload, err := protocol.ParsePayload[protocol.JoinRoomPayload](msg)
	if err != nil {
		h.sendError(c, &protocol.GameError{Code: protocol.ErrCodeInvalidMsg, Message: "Mensaje inválido"})
		return
	}
	if err := h.rooms.JoinRoom(c, payload.RoomID, payload.Name, payload.Token); err != nil {
		h.sendError(c, err)
	}
}

func (h *Handler) handleStart(c Conn, msg *protocol.Message) {
	payload, err := protocol.ParsePayload[protocol.StartPayload](msg)
	if err != nil {
		h.sendError(c, &protocol.GameError{Code: protocol.ErrCodeInvalidMsg, Message: "Mensaje inválido"})
		return
	}
	h.dispatch(c, func(m *game.Match) error {
		return m.Start(c.ConnID(), payload.CardsPerPlayer)
	})
}

func (h *Handler) handlePlayCard(c Conn, msg *protocol.Message) {
	payload, err := protocol.ParsePayload[protocol.PlayCardPayload](msg)
	if err != nil {
		h.sendError(c, &protocol.GameError{Code: protocol.ErrCodeInvalidMsg, Message: "Mensaje inválido"})
		return
	}
	h.dispatch(c, func(m *game.Match) error {
		return m.Play(c.ConnID(), payload.CardID, payload.ChosenSuit)
	})
}

func (h *Handler) handleCallJodete(c Conn, msg *protocol.Message) {
	payload, err := protocol.ParsePayload[protocol.CallJodetePayload](msg)
	if err != nil {
		h.sendError(c, &protocol.GameError{Code: protocol.ErrCodeInvalidMsg, Message: "Mensaje inválido"})
		return
	}
	h.dispatch(c, func(m *game.Match) error {
		return m.CallJodete(c.ConnID(), payload.TargetID)
	})
}

func (h *Handler) dispatch(c Conn, op func(m *game.Match) error) {
	if err := h.rooms.Dispatch(c, op); err != nil {
		h.sendError(c, err)
	}
}

// sendError delivers a rules failure to the offending connection. A
// deck exhaustion means card conservation broke, so it is logged at
// error level and masked with the generic message.
func (h *Handler) sendError(c Conn, err error) {
	var gameErr *protocol.GameError
	if !errors.As(err, &gameErr) {
		log.WithField("conn", c.ConnID()).Errorf("unexpected handler error: %v", err)
		gameErr = protocol.ErrUnknown
	}
	if gameErr.Code == protocol.ErrCodeDeckExhausted {
		log.WithField("conn", c.ConnID()).Error("deck exhausted, card conservation broke")
		gameErr = protocol.ErrUnknown
	}
	c.SendMessage(protocol.MustNewMessage(protocol.MsgActionError, protocol.ActionErrorPayload{
		Code:    gameErr.Code,
		Message: gameErr.Message,
	}))
}
