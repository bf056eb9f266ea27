// ABOUTME: Main server implementation for blindtest
// ABOUTME: Manages WebSocket connections, room snapshot pushes and the HTTP API
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienbrs/blindtest-sub003/internal/discovery"
	"github.com/julienbrs/blindtest-sub003/internal/history"
	"github.com/julienbrs/blindtest-sub003/internal/protocol"
	"github.com/julienbrs/blindtest-sub003/internal/room"
	"github.com/julienbrs/blindtest-sub003/pkg/clock"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

// Library is the song catalogue the server exposes
type Library interface {
	Songs(ctx context.Context) ([]song.Song, error)
	Get(id string) (song.Song, error)
	RandomSong(ctx context.Context, exclude []string) (song.Song, error)
	CoverPath(id string) (string, error)
	Rescan(ctx context.Context) (int, error)
}

// History reads persisted rounds and song statistics
type History interface {
	Rounds(ctx context.Context, code string) ([]room.RoundRecord, error)
	Stats(ctx context.Context, limit int) ([]history.SongStats, error)
}

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool
	Debug      bool
	UseTUI     bool

	Rooms   *room.Service
	Store   room.Store
	Library Library
	// History is optional; without it room history comes from the live record
	History History
	Clock   clock.Clock
}

// Server represents the blindtest server
type Server struct {
	config   Config
	serverID string

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// HTTP server
	httpServer *http.Server
	mux        *http.ServeMux

	// Client management, keyed by client id
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// mDNS discovery
	mdnsManager *discovery.Manager

	// TUI
	tui       *ServerTUI
	startTime time.Time

	// Control
	ctx        context.Context
	cancel     context.CancelFunc
	bgOnce     sync.Once
	stopChan   chan struct{}
	stopOnce   sync.Once // Ensure Stop() is only called once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client represents a connected socket
type Client struct {
	ID   string
	Name string
	Conn *websocket.Conn

	// Output channel for messages
	sendChan  chan interface{}
	closeOnce sync.Once

	// Room session bound to this socket
	mu       sync.RWMutex
	code     string
	playerID string
}

// closeFrame asks the writer to close the socket after earlier messages are flushed
type closeFrame struct{}

func (c *Client) session() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.code, c.playerID
}

func (c *Client) setSession(code, playerID string) {
	c.mu.Lock()
	c.code = code
	c.playerID = playerID
	c.mu.Unlock()
}

// New creates a new server instance
func New(config Config) *Server {
	if config.Clock == nil {
		config.Clock = clock.Real
	}
	if config.Name == "" {
		config.Name = "Blindtest Server"
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The server targets trusted local networks
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Allow non-browser clients (no Origin header)
					return true
				}
				if origin == "http://localhost" || origin == "http://127.0.0.1" {
					return true
				}
				log.Printf("Warning: accepting WebSocket from origin: %s", origin)
				return true
			},
		},
		clients:   make(map[string]*Client),
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		stopChan:  make(chan struct{}),
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler serving the API and the room socket
func (s *Server) Handler() http.Handler {
	s.startBackground()
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	s.mux.HandleFunc("GET /audio/{id}", s.handleAudio)
	s.mux.HandleFunc("GET /api/songs", s.handleSongs)
	s.mux.HandleFunc("GET /api/songs/random", s.handleRandomSong)
	s.mux.HandleFunc("GET /api/songs/{id}", s.handleSong)
	s.mux.HandleFunc("GET /api/songs/{id}/cover", s.handleCover)
	s.mux.HandleFunc("POST /api/rescan", s.handleRescan)
	s.mux.HandleFunc("GET /api/rooms", s.handleRooms)
	s.mux.HandleFunc("GET /api/rooms/{code}/history", s.handleRoomHistory)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
}

// startBackground starts the room change feed once
func (s *Server) startBackground() {
	s.bgOnce.Do(func() {
		changes, err := s.config.Store.Changes(s.ctx)
		if err != nil {
			log.Printf("Room change feed unavailable: %v", err)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.watchRooms(changes)
		}()
	})
}

// Start starts the server and blocks until Stop, TUI quit or a listener error
func (s *Server) Start() error {
	// Start TUI if enabled
	if s.config.UseTUI {
		s.tui = NewServerTUI()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tui.Start(s.config.Name, s.config.Port)
		}()

		// Give TUI time to initialize
		time.Sleep(100 * time.Millisecond)
	}

	log.Printf("Server starting: %s (ID: %s)", s.config.Name, s.serverID)

	// Start mDNS advertisement if enabled
	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			log.Printf("mDNS advertisement started")
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Printf("Blindtest server listening on %s", addr)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.updateTUI()

	// Run server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for stop signal, TUI quit, or server error
	var serverErr error
	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	select {
	case <-s.stopChan:
		log.Printf("Server shutting down...")
	case <-tuiQuitChan:
		log.Printf("TUI quit requested, shutting down...")
	case err := <-errChan:
		log.Printf("HTTP server error: %v", err)
		serverErr = err
	}

	// Stop TUI first so it can display shutdown message
	if s.tui != nil {
		s.tui.Stop()
	}

	// Stop mDNS
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	s.shutdown()
	log.Printf("Server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// shutdown rejects new sockets, closes open ones and waits for goroutines
func (s *Server) shutdown() {
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	s.cancel()

	s.clientsMu.RLock()
	for _, c := range s.clients {
		c.Conn.Close()
	}
	s.clientsMu.RUnlock()

	s.wg.Wait()
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("New WebSocket connection from %s", r.RemoteAddr)

	// Handle the connection
	s.handleConnection(conn)
}

// handleConnection manages a client connection
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	// Check if server is shutting down
	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		log.Printf("Rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	// Wait for client/hello
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var env protocol.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		log.Printf("Error reading hello: %v", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	if env.Type != protocol.TypeClientHello {
		log.Printf("Expected client/hello, got %s", env.Type)
		return
	}

	var hello protocol.ClientHello
	if err := env.Decode(&hello); err != nil {
		log.Printf("Error unmarshaling client hello: %v", err)
		return
	}

	// Validate client hello
	if hello.ClientID == "" {
		log.Printf("Client hello missing ClientID")
		return
	}

	log.Printf("Client hello: %s (ID: %s)", hello.Name, hello.ClientID)

	client := &Client{
		ID:       hello.ClientID,
		Name:     hello.Name,
		Conn:     conn,
		sendChan: make(chan interface{}, 100),
	}

	// A reconnecting client may arrive before its dead socket timed out
	s.clientsMu.Lock()
	if stale, exists := s.clients[hello.ClientID]; exists {
		log.Printf("Client ID %s reconnected, replacing stale connection", hello.ClientID)
		stale.setSession("", "")
		stale.Conn.Close()
	}
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	s.updateTUI()

	defer s.dropClient(client)

	// Send server/hello
	serverHello := protocol.ServerHello{
		ServerID:   s.serverID,
		Name:       s.config.Name,
		Version:    protocol.Version,
		ServerTime: clock.Millis(s.config.Clock.Now()),
	}

	if err := s.sendMessage(client, protocol.TypeServerHello, "", serverHello); err != nil {
		log.Printf("Error sending server hello: %v", err)
		return
	}

	// Start writer goroutine
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(client)
	}()

	// Read messages from client
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		s.handleClientMessage(client, data)
	}
}

// dropClient unregisters a closed socket and marks its player offline
func (s *Server) dropClient(client *Client) {
	s.clientsMu.Lock()
	if s.clients[client.ID] == client {
		delete(s.clients, client.ID)
	}
	s.clientsMu.Unlock()
	client.closeOnce.Do(func() { close(client.sendChan) })

	if code, playerID := client.session(); code != "" {
		client.setSession("", "")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := s.config.Rooms.Disconnect(ctx, code, playerID); err != nil && !errors.Is(err, room.ErrRoomNotFound) {
			log.Printf("Room %s: disconnect of %s failed: %v", code, playerID, err)
		}
		cancel()
	}

	log.Printf("Client disconnected: %s", client.Name)
	s.updateTUI()
}

// clientWriter sends messages to the client
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	const writeDeadline = 10 * time.Second

	for {
		select {
		case msg, ok := <-client.sendChan:
			if !ok {
				return
			}

			if _, closing := msg.(closeFrame); closing {
				client.Conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeDeadline))
				client.Conn.Close()
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("Error marshaling message: %v", err)
				continue
			}
			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Error writing text message: %v", err)
				client.Conn.Close()
				return
			}

		case <-ticker.C:
			// Send ping
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				client.Conn.Close()
				return
			}
		}
	}
}

// sendMessage queues a JSON message for a client
func (s *Server) sendMessage(client *Client, msgType, id string, payload interface{}) (err error) {
	msg := protocol.Message{
		Type:    msgType,
		ID:      id,
		Payload: payload,
	}

	// The channel is closed once the socket is gone
	defer func() {
		if recover() != nil {
			err = fmt.Errorf("client disconnected")
		}
	}()

	select {
	case client.sendChan <- msg:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

// closeClient flushes queued messages then closes the socket
func (s *Server) closeClient(client *Client) {
	defer func() { recover() }()
	select {
	case client.sendChan <- closeFrame{}:
	default:
		client.Conn.Close()
	}
}

// roomClients returns the sockets bound to a room
func (s *Server) roomClients(code string) []*Client {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	var out []*Client
	for _, c := range s.clients {
		if bound, _ := c.session(); bound == code {
			out = append(out, c)
		}
	}
	return out
}

// watchRooms pushes a snapshot to every socket of each changed room
func (s *Server) watchRooms(changes <-chan string) {
	for code := range changes {
		s.pushRoom(code)
		s.updateTUI()
	}
}

// pushRoom sends the authoritative snapshot of code to its sockets.
// Sockets whose player is gone were kicked; a missing room was closed.
func (s *Server) pushRoom(code string) {
	clients := s.roomClients(code)
	if len(clients) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	r, err := s.config.Rooms.Get(ctx, code)
	if errors.Is(err, room.ErrRoomNotFound) {
		for _, c := range clients {
			c.setSession("", "")
			s.sendMessage(c, protocol.TypeClosed, "", protocol.Kicked{Code: code})
		}
		return
	}
	if err != nil {
		log.Printf("Room %s: failed to load for push: %v", code, err)
		return
	}

	now := clock.Millis(s.config.Clock.Now())
	for _, c := range clients {
		_, playerID := c.session()
		if _, ok := r.Player(playerID); !ok {
			log.Printf("Room %s: player %s was kicked, closing socket", code, playerID)
			c.setSession("", "")
			s.sendMessage(c, protocol.TypeKicked, "", protocol.Kicked{Code: code})
			s.closeClient(c)
			continue
		}
		state := protocol.RoomState{Room: r, You: playerID, ServerTime: now}
		if err := s.sendMessage(c, protocol.TypeState, "", state); err != nil {
			log.Printf("Room %s: dropping snapshot for %s: %v", code, c.Name, err)
		}
	}
}
