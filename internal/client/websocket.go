// ABOUTME: WebSocket client for the blindtest room protocol
// ABOUTME: Handles connection, handshake, request replies and reconnection
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienbrs/blindtest-sub003/internal/clocksync"
	"github.com/julienbrs/blindtest-sub003/internal/protocol"
	"github.com/julienbrs/blindtest-sub003/internal/room"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

// ErrDisconnected is returned for requests made or pending while the socket is down
var ErrDisconnected = errors.New("not connected")

// Config holds client configuration
type Config struct {
	ServerAddr string
	ClientID   string
	Name       string

	// RequestTimeout bounds a request waiting for its reply (default 10s)
	RequestTimeout time.Duration
	// ReconnectDelay is the first reconnection backoff (default 500ms), doubled up to MaxReconnectDelay (default 15s)
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	// ClockSyncInterval spaces server/time exchanges (default 5s)
	ClockSyncInterval time.Duration

	// OnState receives every authoritative room snapshot
	OnState func(protocol.RoomState)
	// OnKicked is called when the host removed this player
	OnKicked func(code string)
	// OnClosed is called when the room no longer exists
	OnClosed func(code string)
	// OnConnection reports socket up/down transitions
	OnConnection func(connected bool)
}

// RequestError is a failed request as reported by the server
type RequestError struct {
	Info protocol.ErrorInfo
}

func (e *RequestError) Error() string {
	return e.Info.Message
}

// Is matches room sentinel errors by their wire code
func (e *RequestError) Is(target error) bool {
	code := room.Code(target)
	return code != "internal" && code == e.Info.Code
}

// Client represents a WebSocket client
type Client struct {
	config Config
	conn   *websocket.Conn
	mu     sync.RWMutex
	// writeMu serializes writers, gorilla allows one concurrent writer
	writeMu sync.Mutex

	pending map[string]chan protocol.Reply

	// Session survives reconnections so the player can rejoin
	code     string
	playerID string

	clock *clocksync.Estimator

	// State
	connected    bool
	reconnecting bool
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 10 * time.Second
	}
	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = 500 * time.Millisecond
	}
	if config.MaxReconnectDelay == 0 {
		config.MaxReconnectDelay = 15 * time.Second
	}
	if config.ClockSyncInterval == 0 {
		config.ClockSyncInterval = 5 * time.Second
	}
	if config.ClientID == "" {
		config.ClientID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:  config,
		pending: make(map[string]chan protocol.Reply),
		clock:   clocksync.New(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect establishes the WebSocket connection and performs the handshake
func (c *Client) Connect() error {
	if err := c.dial(); err != nil {
		return err
	}
	c.notifyConnection(true)
	return nil
}

func (c *Client) dial() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	if err := c.handshake(conn); err != nil {
		conn.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	// Start message reader
	go c.readMessages(conn)
	go c.syncClock(conn)

	return nil
}

// handshake exchanges hello messages and estimates the server clock offset
func (c *Client) handshake(conn *websocket.Conn) error {
	hello := protocol.Message{
		Type: protocol.TypeClientHello,
		Payload: protocol.ClientHello{
			ClientID: c.config.ClientID,
			Name:     c.config.Name,
			Version:  protocol.Version,
		},
	}

	sent := time.Now()
	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	// Wait for server/hello (with timeout)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var env protocol.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{}) // Clear deadline
	received := time.Now()

	if env.Type != protocol.TypeServerHello {
		return fmt.Errorf("expected server/hello, got %s", env.Type)
	}

	var serverHello protocol.ServerHello
	if err := env.Decode(&serverHello); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}
	if serverHello.Version != protocol.Version {
		return fmt.Errorf("unsupported protocol version %d", serverHello.Version)
	}

	if serverHello.ServerTime > 0 {
		server := serverHello.ServerTime * 1000
		c.clock.Add(sent.UnixMicro(), server, server, received.UnixMicro())
	}

	log.Printf("Handshake complete with server %s", serverHello.Name)
	return nil
}

// sendJSON sends a JSON message
func (c *Client) sendJSON(msg protocol.Message) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected {
		return ErrDisconnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

// readMessages reads and routes incoming messages until the socket fails
func (c *Client) readMessages(conn *websocket.Conn) {
	defer c.connectionLost(conn)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				log.Printf("Read error: %v", err)
			}
			return
		}

		if messageType == websocket.TextMessage {
			c.handleJSONMessage(data)
		}
	}
}

// handleJSONMessage routes JSON messages
func (c *Client) handleJSONMessage(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("Failed to parse JSON message: %v", err)
		return
	}

	switch env.Type {
	case protocol.TypeReply:
		var reply protocol.Reply
		if err := env.Decode(&reply); err != nil {
			log.Printf("Failed to parse reply: %v", err)
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		delete(c.pending, env.ID)
		c.mu.Unlock()
		if ok {
			ch <- reply
		}

	case protocol.TypeServerTime:
		received := time.Now().UnixMicro()
		var resp protocol.ServerTime
		if err := env.Decode(&resp); err != nil {
			log.Printf("Failed to parse server/time: %v", err)
			return
		}
		c.clock.Add(resp.ClientTransmitted, resp.ServerReceived, resp.ServerTransmitted, received)

	case protocol.TypeState:
		var state protocol.RoomState
		if err := env.Decode(&state); err != nil {
			log.Printf("Failed to parse room state: %v", err)
			return
		}
		if c.config.OnState != nil {
			c.config.OnState(state)
		}

	case protocol.TypeKicked:
		var kicked protocol.Kicked
		env.Decode(&kicked)
		c.clearSession()
		if c.config.OnKicked != nil {
			c.config.OnKicked(kicked.Code)
		}

	case protocol.TypeClosed:
		var closed protocol.Kicked
		env.Decode(&closed)
		c.clearSession()
		if c.config.OnClosed != nil {
			c.config.OnClosed(closed.Code)
		}

	default:
		log.Printf("Unknown message type: %s", env.Type)
	}
}

// syncClock refines the clock estimate while conn is the live socket.
// A short burst first, then one exchange per ClockSyncInterval.
func (c *Client) syncClock(conn *websocket.Conn) {
	const burst = 3
	for i := 0; ; i++ {
		delay := c.config.ClockSyncInterval
		if i < burst {
			delay = min(delay, 200*time.Millisecond)
		}
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(delay):
		}

		c.mu.RLock()
		live := c.conn == conn && c.connected
		c.mu.RUnlock()
		if !live {
			return
		}

		msg := protocol.Message{
			Type:    protocol.TypeClientTime,
			Payload: protocol.ClientTime{ClientTransmitted: time.Now().UnixMicro()},
		}
		if err := c.sendJSON(msg); err != nil {
			return
		}
		if c.clock.CheckQuality() == clocksync.QualityLost {
			log.Printf("Clock sync lost")
		}
	}
}

// connectionLost fails pending requests and starts reconnecting unless closed
func (c *Client) connectionLost(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.connected = false
	conn.Close()
	pending := c.pending
	c.pending = make(map[string]chan protocol.Reply)
	closed := c.ctx.Err() != nil
	start := !closed && !c.reconnecting
	if start {
		c.reconnecting = true
	}
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	if closed {
		return
	}

	c.notifyConnection(false)
	if start {
		go c.reconnect()
	}
}

// reconnect redials with exponential backoff and resumes the room session
func (c *Client) reconnect() {
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	delay := c.config.ReconnectDelay
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(delay):
		}

		if err := c.dial(); err != nil {
			log.Printf("Reconnect failed: %v", err)
			delay *= 2
			if delay > c.config.MaxReconnectDelay {
				delay = c.config.MaxReconnectDelay
			}
			continue
		}

		log.Printf("Reconnected to %s", c.config.ServerAddr)
		c.notifyConnection(true)

		code, playerID := c.Session()
		if code == "" {
			return
		}
		ctx, cancel := context.WithTimeout(c.ctx, c.config.RequestTimeout)
		_, err := c.Rejoin(ctx, code, playerID)
		cancel()
		if err == nil {
			return
		}
		log.Printf("Rejoin of room %s failed: %v", code, err)
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			c.clearSession()
			return
		}

		// Transport failure: the session is still ours, dial again
		c.dropConnection()
		delay = min(delay*2, c.config.MaxReconnectDelay)
	}
}

// dropConnection closes the live socket so its reader reports the loss
func (c *Client) dropConnection() {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()
	if connected {
		conn.Close()
	}
}

func (c *Client) notifyConnection(connected bool) {
	if c.config.OnConnection != nil {
		c.config.OnConnection(connected)
	}
}

// Request sends a typed request and waits for its reply
func (c *Client) Request(ctx context.Context, msgType string, payload interface{}) (protocol.Reply, error) {
	id := uuid.NewString()
	ch := make(chan protocol.Reply, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.sendJSON(protocol.Message{Type: msgType, ID: id, Payload: payload}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return protocol.Reply{}, fmt.Errorf("%s: %w", msgType, err)
	}

	timer := time.NewTimer(c.config.RequestTimeout)
	defer timer.Stop()

	select {
	case reply, ok := <-ch:
		if !ok {
			return protocol.Reply{}, fmt.Errorf("%s: %w", msgType, ErrDisconnected)
		}
		if !reply.OK {
			info := protocol.ErrorInfo{Code: "internal", Message: "request failed", Action: room.ActionRetry}
			if reply.Error != nil {
				info = *reply.Error
			}
			return reply, &RequestError{Info: info}
		}
		return reply, nil
	case <-timer.C:
	case <-ctx.Done():
	}

	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
	if ctx.Err() != nil {
		return protocol.Reply{}, ctx.Err()
	}
	return protocol.Reply{}, fmt.Errorf("%s: request timed out", msgType)
}

func (c *Client) setSession(code, playerID string) {
	c.mu.Lock()
	c.code = code
	c.playerID = playerID
	c.mu.Unlock()
}

func (c *Client) clearSession() {
	c.setSession("", "")
}

// Session returns the joined room code and durable player id, empty when not in a room
func (c *Client) Session() (code, playerID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.code, c.playerID
}

// ClockOffset is the estimated server clock minus the local clock
func (c *Client) ClockOffset() time.Duration {
	return c.clock.Offset(time.Now())
}

// ClockStats reports the latest clock estimate, round trip and quality
func (c *Client) ClockStats() (offset, rtt time.Duration, quality clocksync.Quality) {
	return c.clock.Stats()
}

func joined(reply protocol.Reply) room.Room {
	if reply.Room == nil {
		return room.Room{}
	}
	return *reply.Room
}

// Create opens a room hosted by this player
func (c *Client) Create(ctx context.Context, nickname, avatar string, settings song.GameConfig) (room.Room, string, error) {
	reply, err := c.Request(ctx, protocol.TypeCreate, protocol.CreateRequest{Nickname: nickname, Avatar: avatar, Settings: settings})
	if err != nil {
		return room.Room{}, "", err
	}
	r := joined(reply)
	c.setSession(r.Code, reply.PlayerID)
	return r, reply.PlayerID, nil
}

// AvatarAvailable asks whether avatar is still free in the room
func (c *Client) AvatarAvailable(ctx context.Context, code, avatar string) (bool, error) {
	reply, err := c.Request(ctx, protocol.TypeAvatar, protocol.AvatarRequest{Code: code, Avatar: avatar})
	if err != nil {
		return false, err
	}
	return reply.Available != nil && *reply.Available, nil
}

// Join enters a waiting room
func (c *Client) Join(ctx context.Context, code, nickname, avatar string) (room.Room, string, error) {
	reply, err := c.Request(ctx, protocol.TypeJoin, protocol.JoinRequest{Code: code, Nickname: nickname, Avatar: avatar})
	if err != nil {
		return room.Room{}, "", err
	}
	r := joined(reply)
	c.setSession(r.Code, reply.PlayerID)
	return r, reply.PlayerID, nil
}

// Rejoin resumes a session after a reload or reconnection
func (c *Client) Rejoin(ctx context.Context, code, playerID string) (room.Room, error) {
	reply, err := c.Request(ctx, protocol.TypeRejoin, protocol.RejoinRequest{Code: code, PlayerID: playerID})
	if err != nil {
		return room.Room{}, err
	}
	r := joined(reply)
	c.setSession(r.Code, playerID)
	return r, nil
}

// Leave quits the room for good
func (c *Client) Leave(ctx context.Context) error {
	_, err := c.Request(ctx, protocol.TypeLeave, nil)
	if err == nil {
		c.clearSession()
	}
	return err
}

// Kick removes a player (host only)
func (c *Client) Kick(ctx context.Context, targetID string) error {
	_, err := c.Request(ctx, protocol.TypeKick, protocol.KickRequest{TargetID: targetID})
	return err
}

// UpdateSettings replaces the room settings (host only)
func (c *Client) UpdateSettings(ctx context.Context, settings song.GameConfig) error {
	_, err := c.Request(ctx, protocol.TypeSettings, protocol.SettingsRequest{Settings: settings})
	return err
}

// Start begins the game (host only)
func (c *Client) Start(ctx context.Context) error {
	_, err := c.Request(ctx, protocol.TypeStart, nil)
	return err
}

// End stops the game (host only)
func (c *Client) End(ctx context.Context) error {
	_, err := c.Request(ctx, protocol.TypeEnd, nil)
	return err
}

// Ready reports the round's clip as loaded
func (c *Client) Ready(ctx context.Context, round int) error {
	_, err := c.Request(ctx, protocol.TypeReady, protocol.RoundRequest{Round: round})
	return err
}

// Buzz claims the answer for the round
func (c *Client) Buzz(ctx context.Context, round int) error {
	_, err := c.Request(ctx, protocol.TypeBuzz, protocol.RoundRequest{Round: round})
	return err
}

// Validate judges the buzzer's answer (host only)
func (c *Client) Validate(ctx context.Context, round int, correct bool) error {
	_, err := c.Request(ctx, protocol.TypeValidate, protocol.RoundRequest{Round: round, Correct: correct})
	return err
}

// Reveal ends the round without an answer (host only)
func (c *Client) Reveal(ctx context.Context, round int) error {
	_, err := c.Request(ctx, protocol.TypeReveal, protocol.RoundRequest{Round: round})
	return err
}

// Next moves to the next round (host only)
func (c *Client) Next(ctx context.Context) error {
	_, err := c.Request(ctx, protocol.TypeNext, nil)
	return err
}

// Close closes the connection and stops reconnecting
func (c *Client) Close() {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.conn.Close()
		log.Printf("Connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
