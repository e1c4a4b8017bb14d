package server

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/jodete-online/jodete-server/internal/game"
	"github.com/jodete-online/jodete-server/internal/protocol"
	"github.com/jodete-online/jodete-server/internal/storage"
)

const (
	maxRoomNameLength = 48
	cleanupInterval   = time.Minute
)

// Conn is what the room layer needs from a connected player. *Client
// implements it; tests substitute fakes.
type Conn interface {
	ConnID() string
	DisplayName() string
	UserID() string
	SendMessage(msg *protocol.Message)
}

// Room pairs a match with the connections subscribed to it. The mutex
// serializes every touch of the match, which lets the engine stay free
// of locking entirely.
type Room struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	match      *game.Match
	members    map[string]Conn // conn id -> transport
	lastActive time.Time
}

// RoomManager owns all rooms and the connection→room index.
type RoomManager struct {
	writer  *storage.Writer
	timeout time.Duration

	mu           sync.RWMutex
	rooms        map[string]*Room
	playerToRoom map[string]string
	seq          int

	// Invoked with a fresh room list after membership changes. Set once
	// before any traffic, nil in tests that do not care.
	notify func(msg *protocol.Message)
}

// NewRoomManager creates an empty registry. The caller starts the
// cleanup loop separately so tests can skip it.
func NewRoomManager(writer *storage.Writer, timeout time.Duration) *RoomManager {
	return &RoomManager{
		writer:       writer,
		timeout:      timeout,
		rooms:        make(map[string]*Room),
		playerToRoom: make(map[string]string),
	}
}

// SetNotifier registers the broadcast used to push room-list updates to
// every connection when occupancy changes.
func (rm *RoomManager) SetNotifier(notify func(msg *protocol.Message)) {
	rm.notify = notify
}

func (rm *RoomManager) notifyRoomsChanged() {
	if rm.notify == nil {
		return
	}
	rm.notify(protocol.MustNewMessage(protocol.MsgRooms, rm.ListRooms()))
}

// CreateRoom opens a room and seats the creator as host.
func (rm *RoomManager) CreateRoom(c Conn, roomName, playerName, token string) error {
	// A connection can only be in one room.
	rm.LeaveRoom(c)

	rm.mu.Lock()
	rm.seq++
	name := strings.TrimSpace(roomName)
	if len(name) > maxRoomNameLength {
		name = name[:maxRoomNameLength]
	}
	if name == "" {
		name = fmt.Sprintf("Sala %d", rm.seq)
	}
	roomID := uuid.NewString()
	room := &Room{
		ID:         roomID,
		CreatedAt:  time.Now(),
		match:      game.NewMatch(roomID, name),
		members:    make(map[string]Conn),
		lastActive: time.Now(),
	}
	rm.rooms[room.ID] = room
	rm.mu.Unlock()

	log.WithFields(log.Fields{"room": room.ID, "name": name}).Info("room created")
	return rm.join(room, c, playerName, token)
}

// JoinRoom seats the connection in an existing room, reclaiming a seat
// when a reconnect token matches.
func (rm *RoomManager) JoinRoom(c Conn, roomID, playerName, token string) error {
	room := rm.room(roomID)
	if room == nil {
		return protocol.ErrRoomNotFound
	}
	if current := rm.roomOf(c.ConnID()); current != nil && current != room {
		rm.LeaveRoom(c)
	}
	return rm.join(room, c, playerName, token)
}

func (rm *RoomManager) join(room *Room, c Conn, playerName, token string) error {
	if playerName == "" {
		playerName = c.DisplayName()
	}

	room.mu.Lock()
	player, previousID, err := room.match.Join(c.ConnID(), playerName, token, c.UserID())
	if err != nil {
		room.mu.Unlock()
		return err
	}
	if previousID != "" && previousID != c.ConnID() {
		delete(room.members, previousID)
	}
	room.members[c.ConnID()] = c
	room.lastActive = time.Now()
	roomName := room.match.Summary(room.CreatedAt).Name
	events := room.match.DrainEvents()
	c.SendMessage(protocol.MustNewMessage(protocol.MsgJoinedRoom, protocol.JoinedRoomPayload{
		RoomID:   room.ID,
		RoomName: roomName,
	}))
	rm.broadcastLocked(room)
	room.mu.Unlock()

	rm.mu.Lock()
	if previousID != "" && previousID != c.ConnID() {
		delete(rm.playerToRoom, previousID)
	}
	rm.playerToRoom[c.ConnID()] = room.ID
	rm.mu.Unlock()

	rm.writer.Enqueue(events)
	rm.notifyRoomsChanged()
	log.WithFields(log.Fields{"room": room.ID, "player": player.ID}).Info("player joined")
	return nil
}

// LeaveRoom removes the connection from its room voluntarily. Safe to
// call for connections that are not in any room.
func (rm *RoomManager) LeaveRoom(c Conn) {
	if rm.departure(c.ConnID(), true) {
		c.SendMessage(protocol.MustNewMessage(protocol.MsgLeftRoom, nil))
	}
}

// HandleDisconnect reacts to a transport drop. Mid-match the seat stays
// reserved for a token reconnect.
func (rm *RoomManager) HandleDisconnect(connID string) {
	rm.departure(connID, false)
}

func (rm *RoomManager) departure(connID string, voluntary bool) bool {
	rm.mu.Lock()
	roomID, ok := rm.playerToRoom[connID]
	if !ok {
		rm.mu.Unlock()
		return false
	}
	delete(rm.playerToRoom, connID)
	room := rm.rooms[roomID]
	rm.mu.Unlock()
	if room == nil {
		return false
	}

	room.mu.Lock()
	res := room.match.Leave(connID, voluntary)
	delete(room.members, connID)
	room.lastActive = time.Now()
	// Rooms with every member dropped but seats still reserved stay
	// around for token reconnects until the cleanup loop reclaims them.
	empty := room.match.IsEmpty()
	events := room.match.DrainEvents()
	rm.broadcastLocked(room)
	room.mu.Unlock()

	rm.writer.Enqueue(events)
	if res != nil {
		log.WithFields(log.Fields{"room": roomID, "player": connID, "voluntary": voluntary}).
			Info("player left")
	}
	if empty {
		rm.closeRoom(roomID)
	}
	rm.notifyRoomsChanged()
	return true
}

// Dispatch runs one engine operation for the connection's room. The
// room is always rebroadcast afterwards: even rejected actions can
// mutate state through the out-of-turn penalty.
func (rm *RoomManager) Dispatch(c Conn, op func(m *game.Match) error) error {
	room := rm.roomOf(c.ConnID())
	if room == nil {
		return protocol.ErrNotInRoom
	}

	room.mu.Lock()
	err := op(room.match)
	room.lastActive = time.Now()
	events := room.match.DrainEvents()
	rm.broadcastLocked(room)
	room.mu.Unlock()

	rm.writer.Enqueue(events)
	return err
}

// ListRooms returns browser entries, busiest and freshest first.
func (rm *RoomManager) ListRooms() []protocol.RoomSummary {
	rm.mu.RLock()
	rooms := make([]*Room, 0, len(rm.rooms))
	for _, room := range rm.rooms {
		rooms = append(rooms, room)
	}
	rm.mu.RUnlock()

	summaries := make([]protocol.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		room.mu.Lock()
		summaries = append(summaries, room.match.Summary(room.CreatedAt))
		room.mu.Unlock()
	}

	phaseRank := map[string]int{
		string(game.PhasePlaying):  0,
		string(game.PhaseLobby):    1,
		string(game.PhaseFinished): 2,
	}
	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.PlayerCount != b.PlayerCount {
			return a.PlayerCount > b.PlayerCount
		}
		if phaseRank[a.Phase] != phaseRank[b.Phase] {
			return phaseRank[a.Phase] < phaseRank[b.Phase]
		}
		return a.CreatedAt > b.CreatedAt
	})
	return summaries
}

// RoomCount returns how many rooms exist.
func (rm *RoomManager) RoomCount() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.rooms)
}

// ActiveMatchCount returns how many rooms have a match in progress.
func (rm *RoomManager) ActiveMatchCount() int {
	rm.mu.RLock()
	rooms := make([]*Room, 0, len(rm.rooms))
	for _, room := range rm.rooms {
		rooms = append(rooms, room)
	}
	rm.mu.RUnlock()

	n := 0
	for _, room := range rooms {
		room.mu.Lock()
		if room.match.Phase() == game.PhasePlaying {
			n++
		}
		room.mu.Unlock()
	}
	return n
}

// CleanupLoop reclaims idle rooms until the context ends.
func (rm *RoomManager) CleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rm.cleanupIdle()
		case <-ctx.Done():
			return
		}
	}
}

func (rm *RoomManager) cleanupIdle() {
	rm.mu.RLock()
	var stale []string
	now := time.Now()
	for id, room := range rm.rooms {
		room.mu.Lock()
		idle := now.Sub(room.lastActive) > rm.timeout
		// A playing match with connected players waits forever for its
		// next action; only lobbies and fully disconnected rooms age out.
		reclaimable := room.match.Phase() == game.PhaseLobby ||
			room.match.ConnectedCount() == 0
		empty := room.match.IsEmpty()
		room.mu.Unlock()
		if empty || (idle && reclaimable) {
			stale = append(stale, id)
		}
	}
	rm.mu.RUnlock()

	for _, id := range stale {
		log.WithField("room", id).Info("reclaiming idle room")
		rm.closeRoom(id)
	}
	if len(stale) > 0 {
		rm.notifyRoomsChanged()
	}
}

// closeRoom abandons any running match and forgets the room.
func (rm *RoomManager) closeRoom(roomID string) {
	rm.mu.Lock()
	room, ok := rm.rooms[roomID]
	if !ok {
		rm.mu.Unlock()
		return
	}
	delete(rm.rooms, roomID)
	for connID, mapped := range rm.playerToRoom {
		if mapped == roomID {
			delete(rm.playerToRoom, connID)
		}
	}
	rm.mu.Unlock()

	room.mu.Lock()
	room.match.Abandon()
	events := room.match.DrainEvents()
	rm.broadcastLocked(room)
	room.members = make(map[string]Conn)
	room.mu.Unlock()
	rm.writer.Enqueue(events)
}

// broadcastLocked pushes each member their own projection. Caller holds
// the room mutex.
func (rm *RoomManager) broadcastLocked(room *Room) {
	for connID, conn := range room.members {
		conn.SendMessage(protocol.MustNewMessage(protocol.MsgState, room.match.StateFor(connID)))
	}
}

func (rm *RoomManager) room(roomID string) *Room {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.rooms[roomID]
}

func (rm *RoomManager) roomOf(connID string) *Room {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	if roomID, ok := rm.playerToRoom[connID]; ok {
		return rm.rooms[roomID]
	}
	return nil
}
