package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/jodete-online/jodete-server/internal/config"
	"github.com/jodete-online/jodete-server/internal/protocol"
	"github.com/jodete-online/jodete-server/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browsers may connect from anywhere; the game carries no
		// credentials beyond the reconnect token.
		return true
	},
}

// Server accepts websocket connections and ties them to rooms.
type Server struct {
	cfg    *config.Config
	writer *storage.Writer
	rooms  *RoomManager

	handler *Handler

	clientsMu sync.RWMutex
	clients   map[string]*Client

	// Semaphore bounding concurrent connections.
	semaphore chan struct{}

	httpServer *http.Server
	cancel     context.CancelFunc
}

// NewServer builds the server around a persistence gateway. Pass
// storage.NoopGateway{} to run without Redis.
func NewServer(cfg *config.Config, gateway storage.Gateway) *Server {
	writer := storage.NewWriter(gateway, cfg.Game.EventBuffer)
	rooms := NewRoomManager(writer, cfg.Game.RoomTimeoutDuration())
	s := &Server{
		cfg:       cfg,
		writer:    writer,
		rooms:     rooms,
		clients:   make(map[string]*Client),
		semaphore: make(chan struct{}, cfg.Server.MaxConnections),
	}
	s.handler = NewHandler(rooms)
	rooms.SetNotifier(s.Broadcast)
	return s
}

// Start runs the background goroutines and serves HTTP until the
// listener fails or Shutdown is called.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.writer.Run(ctx)
	go s.rooms.CleanupLoop(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	log.WithField("addr", s.cfg.Addr()).Info("server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// handleWebSocket upgrades a connection and starts its pumps. The
// optional name and user query parameters seed the player identity.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case s.semaphore <- struct{}{}:
	default:
		log.Warn("connection limit reached, rejecting")
		http.Error(w, "Server Full", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		<-s.semaphore
		log.Debugf("websocket upgrade failed: %v", err)
		return
	}

	client := NewClient(s, conn, r.URL.Query().Get("name"), r.URL.Query().Get("user"))
	s.registerClient(client)

	client.SendMessage(protocol.MustNewMessage(protocol.MsgConnected, protocol.ConnectedPayload{
		PlayerID:   client.ConnID(),
		PlayerName: client.DisplayName(),
	}))
	client.SendMessage(protocol.MustNewMessage(protocol.MsgRooms, s.rooms.ListRooms()))
	log.WithFields(log.Fields{"conn": client.ConnID(), "name": client.DisplayName()}).
		Info("player connected")

	go client.ReadPump()
	go client.WritePump()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{
		"status": "ok",
		"rooms":  s.rooms.RoomCount(),
		"online": s.OnlineCount(),
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Debugf("health encode: %v", err)
	}
}

func (s *Server) registerClient(c *Client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.clients[c.ConnID()] = c
}

func (s *Server) unregisterClient(c *Client) {
	s.clientsMu.Lock()
	if _, ok := s.clients[c.ConnID()]; ok {
		delete(s.clients, c.ConnID())
		log.WithFields(log.Fields{"conn": c.ConnID(), "name": c.DisplayName()}).
			Info("player disconnected")
	}
	s.clientsMu.Unlock()
	select {
	case <-s.semaphore:
	default:
	}
}

// OnlineCount returns the number of connected players.
func (s *Server) OnlineCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Broadcast sends a frame to every connected client.
func (s *Server) Broadcast(msg *protocol.Message) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, client := range s.clients {
		client.SendMessage(msg)
	}
}

// Shutdown closes the listener, all clients and the background
// goroutines, letting the writer drain its buffer first.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	s.clientsMu.Lock()
	for _, client := range s.clients {
		client.Close()
	}
	s.clientsMu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	log.Info("server stopped")
	return err
}
