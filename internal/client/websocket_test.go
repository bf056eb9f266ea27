// ABOUTME: Tests for WebSocket client implementation
// ABOUTME: Tests handshake, request replies, pushes and reconnection
package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienbrs/blindtest-sub003/internal/clocksync"
	"github.com/julienbrs/blindtest-sub003/internal/protocol"
	"github.com/julienbrs/blindtest-sub003/internal/room"
)

func TestNewClient(t *testing.T) {
	config := Config{
		ServerAddr: "localhost:8927",
		ClientID:   "test-client",
		Name:       "Test Player",
	}

	client := NewClient(config)
	if client == nil {
		t.Fatal("expected client to be created")
	}

	if client.config.ServerAddr != "localhost:8927" {
		t.Errorf("expected server addr localhost:8927, got %s", client.config.ServerAddr)
	}
	if client.config.RequestTimeout != 10*time.Second {
		t.Errorf("expected default request timeout, got %v", client.config.RequestTimeout)
	}
}

// fakeServer answers hello and hands every request to handle
type fakeServer struct {
	t      *testing.T
	srv    *httptest.Server
	handle func(conn *websocket.Conn, env protocol.Envelope)

	mu    sync.Mutex
	conns []*websocket.Conn
	seen  []string
}

func newFakeServer(t *testing.T, handle func(conn *websocket.Conn, env protocol.Envelope)) *fakeServer {
	f := &fakeServer{t: t, handle: handle}
	upgrader := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.mu.Unlock()

		var hello protocol.Envelope
		if err := conn.ReadJSON(&hello); err != nil {
			return
		}
		conn.WriteJSON(protocol.Message{
			Type: protocol.TypeServerHello,
			Payload: protocol.ServerHello{
				ServerID:   "srv",
				Name:       "fake",
				Version:    protocol.Version,
				ServerTime: time.Now().Add(time.Hour).UnixMilli(),
			},
		})

		for {
			var env protocol.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			f.mu.Lock()
			f.seen = append(f.seen, env.Type)
			f.mu.Unlock()
			f.handle(conn, env)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) addr() string {
	return strings.TrimPrefix(f.srv.URL, "http://")
}

func (f *fakeServer) dropConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		c.Close()
	}
	f.conns = nil
}

func (f *fakeServer) sawType(msgType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.seen {
		if s == msgType {
			n++
		}
	}
	return n
}

func reply(conn *websocket.Conn, id string, r protocol.Reply) {
	conn.WriteJSON(protocol.Message{Type: protocol.TypeReply, ID: id, Payload: r})
}

func roomServer(t *testing.T) *fakeServer {
	return newFakeServer(t, func(conn *websocket.Conn, env protocol.Envelope) {
		switch env.Type {
		case protocol.TypeJoin:
			var req protocol.JoinRequest
			env.Decode(&req)
			if req.Avatar == "cat" {
				reply(conn, env.ID, protocol.Reply{Error: protocol.ErrorFor(room.ErrAvatarTaken)})
				return
			}
			r := room.Room{Code: req.Code, Status: room.StatusWaiting}
			reply(conn, env.ID, protocol.Reply{OK: true, PlayerID: "p-1", Room: &r})
			conn.WriteJSON(protocol.Message{Type: protocol.TypeState, Payload: protocol.RoomState{Room: r, You: "p-1"}})
		case protocol.TypeRejoin:
			var req protocol.RejoinRequest
			env.Decode(&req)
			r := room.Room{Code: req.Code, Status: room.StatusPlaying}
			reply(conn, env.ID, protocol.Reply{OK: true, PlayerID: req.PlayerID, Room: &r})
		case protocol.TypeKick:
			conn.WriteJSON(protocol.Message{Type: protocol.TypeKicked, Payload: protocol.Kicked{Code: "ABCD"}})
			reply(conn, env.ID, protocol.Reply{OK: true})
		case protocol.TypeBuzz:
			// never answered
		default:
			reply(conn, env.ID, protocol.Reply{OK: true})
		}
	})
}

func connect(t *testing.T, config Config) *Client {
	t.Helper()
	c := NewClient(config)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestJoinAndStatePush(t *testing.T) {
	srv := roomServer(t)
	states := make(chan protocol.RoomState, 4)
	c := connect(t, Config{ServerAddr: srv.addr(), OnState: func(s protocol.RoomState) { states <- s }})

	if c.ClockOffset() < 59*time.Minute {
		t.Errorf("expected the server clock offset to be estimated, got %v", c.ClockOffset())
	}

	r, playerID, err := c.Join(context.Background(), "ABCD", "ana", "fox")
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if r.Code != "ABCD" || playerID != "p-1" {
		t.Errorf("unexpected join result %s %s", r.Code, playerID)
	}
	if code, id := c.Session(); code != "ABCD" || id != "p-1" {
		t.Errorf("expected session to be kept, got %s %s", code, id)
	}

	select {
	case s := <-states:
		if s.You != "p-1" || s.Room.Code != "ABCD" {
			t.Errorf("unexpected state %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a room/state push")
	}
}

func TestRequestErrorMatchesSentinel(t *testing.T) {
	srv := roomServer(t)
	c := connect(t, Config{ServerAddr: srv.addr()})

	_, _, err := c.Join(context.Background(), "ABCD", "ana", "cat")
	if !errors.Is(err, room.ErrAvatarTaken) {
		t.Fatalf("expected ErrAvatarTaken, got %v", err)
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Info.Action != room.ActionChooseAgain {
		t.Errorf("expected choose_again action, got %v", err)
	}
	if code, _ := c.Session(); code != "" {
		t.Errorf("failed join must not set a session, got %s", code)
	}
}

func TestRequestTimeout(t *testing.T) {
	srv := roomServer(t)
	c := connect(t, Config{ServerAddr: srv.addr(), RequestTimeout: 100 * time.Millisecond})

	err := c.Buzz(context.Background(), 1)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestKickedClearsSession(t *testing.T) {
	srv := roomServer(t)
	kicked := make(chan string, 1)
	c := connect(t, Config{ServerAddr: srv.addr(), OnKicked: func(code string) { kicked <- code }})

	if _, _, err := c.Join(context.Background(), "ABCD", "ana", "fox"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if err := c.Kick(context.Background(), "someone"); err != nil {
		t.Fatalf("Kick failed: %v", err)
	}

	select {
	case code := <-kicked:
		if code != "ABCD" {
			t.Errorf("unexpected code %s", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected OnKicked")
	}
	if code, _ := c.Session(); code != "" {
		t.Errorf("expected session cleared, got %s", code)
	}
}

func TestReconnectRejoins(t *testing.T) {
	srv := roomServer(t)
	connected := make(chan bool, 8)
	c := connect(t, Config{
		ServerAddr:     srv.addr(),
		ReconnectDelay: 20 * time.Millisecond,
		OnConnection:   func(up bool) { connected <- up },
	})
	<-connected

	if _, _, err := c.Join(context.Background(), "ABCD", "ana", "fox"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	srv.dropConnections()

	// Expect down then up
	for _, want := range []bool{false, true} {
		select {
		case up := <-connected:
			if up != want {
				t.Fatalf("expected connection=%v, got %v", want, up)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("expected connection=%v", want)
		}
	}

	for i := 0; i < 100 && srv.sawType(protocol.TypeRejoin) == 0; i++ {
		time.Sleep(20 * time.Millisecond)
	}
	if srv.sawType(protocol.TypeRejoin) != 1 {
		t.Fatalf("expected one room/rejoin, got %d", srv.sawType(protocol.TypeRejoin))
	}
	if code, id := c.Session(); code != "ABCD" || id != "p-1" {
		t.Errorf("expected session kept across reconnect, got %s %s", code, id)
	}
}

func TestReconnectSurvivesDropDuringRejoin(t *testing.T) {
	var mu sync.Mutex
	rejoins := 0
	srv := newFakeServer(t, func(conn *websocket.Conn, env protocol.Envelope) {
		switch env.Type {
		case protocol.TypeJoin:
			r := room.Room{Code: "ABCD", Status: room.StatusWaiting}
			reply(conn, env.ID, protocol.Reply{OK: true, PlayerID: "p-1", Room: &r})
		case protocol.TypeRejoin:
			mu.Lock()
			rejoins++
			first := rejoins == 1
			mu.Unlock()
			if first {
				conn.Close()
				return
			}
			r := room.Room{Code: "ABCD", Status: room.StatusPlaying}
			reply(conn, env.ID, protocol.Reply{OK: true, PlayerID: "p-1", Room: &r})
		}
	})
	c := connect(t, Config{ServerAddr: srv.addr(), ReconnectDelay: 20 * time.Millisecond})

	if _, _, err := c.Join(context.Background(), "ABCD", "ana", "fox"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	srv.dropConnections()

	for i := 0; i < 150 && (srv.sawType(protocol.TypeRejoin) < 2 || !c.IsConnected()); i++ {
		time.Sleep(20 * time.Millisecond)
	}
	if got := srv.sawType(protocol.TypeRejoin); got != 2 {
		t.Fatalf("expected a second room/rejoin after the drop, got %d", got)
	}
	if !c.IsConnected() {
		t.Fatal("expected the client to be connected again")
	}
	if code, id := c.Session(); code != "ABCD" || id != "p-1" {
		t.Errorf("expected session kept, got %s %s", code, id)
	}
}

func TestRequestWhileDisconnected(t *testing.T) {
	c := NewClient(Config{ServerAddr: "127.0.0.1:1"})
	defer c.Close()

	err := c.Start(context.Background())
	if !errors.Is(err, ErrDisconnected) {
		t.Errorf("expected ErrDisconnected, got %v", err)
	}
}

func TestClockSyncRefinesOffset(t *testing.T) {
	srv := newFakeServer(t, func(conn *websocket.Conn, env protocol.Envelope) {
		if env.Type != protocol.TypeClientTime {
			return
		}
		var req protocol.ClientTime
		env.Decode(&req)
		now := time.Now().Add(2 * time.Hour).UnixMicro()
		conn.WriteJSON(protocol.Message{
			Type: protocol.TypeServerTime,
			Payload: protocol.ServerTime{
				ClientTransmitted: req.ClientTransmitted,
				ServerReceived:    now,
				ServerTransmitted: now,
			},
		})
	})
	c := connect(t, Config{ServerAddr: srv.addr(), ClockSyncInterval: 50 * time.Millisecond})

	// hello said one hour ahead, server/time says two
	for i := 0; i < 100 && c.ClockOffset() < 119*time.Minute; i++ {
		time.Sleep(20 * time.Millisecond)
	}
	if got := c.ClockOffset(); got < 119*time.Minute || got > 121*time.Minute {
		t.Fatalf("expected the offset to follow server/time, got %v", got)
	}
	if srv.sawType(protocol.TypeClientTime) == 0 {
		t.Error("expected client/time exchanges")
	}
	if _, _, q := c.ClockStats(); q != clocksync.QualityGood {
		t.Errorf("expected good sync quality, got %v", q)
	}
}
