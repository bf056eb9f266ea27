// ABOUTME: Blindtest room protocol message type definitions
// ABOUTME: JSON envelopes exchanged over the room WebSocket
package protocol

import (
	"encoding/json"

	"github.com/julienbrs/blindtest-sub003/internal/room"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

// Version is the protocol version exchanged in the hello handshake
const Version = 1

// Message types
const (
	TypeClientHello = "client/hello"
	TypeServerHello = "server/hello"
	TypeClientTime  = "client/time"
	TypeServerTime  = "server/time"

	TypeCreate   = "room/create"
	TypeAvatar   = "room/avatar"
	TypeJoin     = "room/join"
	TypeRejoin   = "room/rejoin"
	TypeLeave    = "room/leave"
	TypeKick     = "room/kick"
	TypeSettings = "room/settings"
	TypeStart    = "game/start"
	TypeEnd      = "game/end"
	TypeReady    = "round/ready"
	TypeBuzz     = "round/buzz"
	TypeValidate = "round/validate"
	TypeReveal   = "round/reveal"
	TypeNext     = "round/next"

	TypeReply  = "reply"
	TypeState  = "room/state"
	TypeKicked = "room/kicked"
	TypeClosed = "room/closed"
)

// Message is the top-level wrapper for all protocol messages.
// Requests carry an ID that the matching reply echoes.
type Message struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Envelope is a received message with its payload left undecoded
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (e Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
	// ServerTime lets clients estimate their clock offset (unix ms)
	ServerTime int64 `json:"server_time"`
}

// ClientTime asks for a server timestamp (unix µs)
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"`
}

// ServerTime answers client/time with the server receive and send instants (unix µs)
type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"`
	ServerReceived    int64 `json:"server_received"`
	ServerTransmitted int64 `json:"server_transmitted"`
}

// CreateRequest opens a room
type CreateRequest struct {
	Nickname string          `json:"nickname"`
	Avatar   string          `json:"avatar"`
	Settings song.GameConfig `json:"settings"`
}

// AvatarRequest checks an avatar at selection time
type AvatarRequest struct {
	Code   string `json:"code"`
	Avatar string `json:"avatar"`
}

// JoinRequest enters a waiting room
type JoinRequest struct {
	Code     string `json:"code"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

// RejoinRequest resumes a session with the durable player id
type RejoinRequest struct {
	Code     string `json:"code"`
	PlayerID string `json:"player_id"`
}

// KickRequest removes a player (host only)
type KickRequest struct {
	TargetID string `json:"target_id"`
}

// SettingsRequest replaces the room settings (host only)
type SettingsRequest struct {
	Settings song.GameConfig `json:"settings"`
}

// RoundRequest targets a round by number so late messages hit nothing
type RoundRequest struct {
	Round   int  `json:"round"`
	Correct bool `json:"correct,omitempty"`
}

// ErrorInfo is a user-legible failure with what to do next
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Action is one of retry, choose_again, go_home or none
	Action string `json:"action"`
}

// Reply answers one request
type Reply struct {
	OK        bool       `json:"ok"`
	Error     *ErrorInfo `json:"error,omitempty"`
	PlayerID  string     `json:"player_id,omitempty"`
	Available *bool      `json:"available,omitempty"`
	Room      *room.Room `json:"room,omitempty"`
}

// RoomState is the authoritative snapshot pushed after every room write.
// Clients replace their local copy with it.
type RoomState struct {
	Room room.Room `json:"room"`
	// You is the receiving player's id
	You string `json:"you"`
	// ServerTime is when the snapshot was sent (unix ms)
	ServerTime int64 `json:"server_time"`
}

// Kicked tells a removed player why their socket closes
type Kicked struct {
	Code string `json:"code"`
}

// ErrorFor builds the wire error for err
func ErrorFor(err error) *ErrorInfo {
	return &ErrorInfo{
		Code:    room.Code(err),
		Message: err.Error(),
		Action:  room.NextAction(err),
	}
}
