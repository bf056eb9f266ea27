// ABOUTME: Room request handling for WebSocket clients
// ABOUTME: Decodes requests, calls the room service and replies with the outcome
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/julienbrs/blindtest-sub003/internal/protocol"
	"github.com/julienbrs/blindtest-sub003/internal/room"
)

// errUnknownRequest answers message types the server does not handle
var errUnknownRequest = errors.New("unknown request type")

// handleClientMessage processes messages from clients
func (s *Server) handleClientMessage(client *Client, data []byte) {
	received := s.config.Clock.Now()

	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}

	if s.config.Debug {
		log.Printf("[DEBUG] %s -> %s (%s)", client.Name, env.Type, env.ID)
	}

	if env.Type == protocol.TypeClientTime {
		s.answerTime(client, env, received)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	reply, err := s.dispatch(ctx, client, env)
	if err != nil {
		if !errors.Is(err, errUnknownRequest) && room.Code(err) == "internal" {
			log.Printf("Request %s from %s failed: %v", env.Type, client.Name, err)
		}
		reply = protocol.Reply{Error: protocol.ErrorFor(err)}
	} else {
		reply.OK = true
	}

	if err := s.sendMessage(client, protocol.TypeReply, env.ID, reply); err != nil {
		log.Printf("Error sending reply to %s: %v", client.Name, err)
	}
}

// answerTime stamps a clock sync exchange
func (s *Server) answerTime(client *Client, env protocol.Envelope, received time.Time) {
	var req protocol.ClientTime
	if err := env.Decode(&req); err != nil {
		log.Printf("Error parsing client/time from %s: %v", client.Name, err)
		return
	}
	resp := protocol.ServerTime{
		ClientTransmitted: req.ClientTransmitted,
		ServerReceived:    received.UnixMicro(),
		ServerTransmitted: s.config.Clock.Now().UnixMicro(),
	}
	if err := s.sendMessage(client, protocol.TypeServerTime, env.ID, resp); err != nil {
		log.Printf("Error sending server/time to %s: %v", client.Name, err)
	}
}

// bind attaches a room session to client, detaching any other socket of the same player
func (s *Server) bind(client *Client, code, playerID string) {
	s.clientsMu.RLock()
	for _, c := range s.clients {
		if c == client {
			continue
		}
		if boundCode, boundID := c.session(); boundCode == code && boundID == playerID {
			c.setSession("", "")
		}
	}
	s.clientsMu.RUnlock()
	client.setSession(code, playerID)
}

func roomReply(r room.Room) protocol.Reply {
	return protocol.Reply{Room: &r}
}

// dispatch runs one request for client
func (s *Server) dispatch(ctx context.Context, client *Client, env protocol.Envelope) (protocol.Reply, error) {
	rooms := s.config.Rooms

	switch env.Type {
	case protocol.TypeCreate:
		var req protocol.CreateRequest
		if err := env.Decode(&req); err != nil {
			return protocol.Reply{}, fmt.Errorf("invalid payload: %w", err)
		}
		r, p, err := rooms.Create(ctx, req.Nickname, req.Avatar, req.Settings)
		if err != nil {
			return protocol.Reply{}, err
		}
		s.bind(client, r.Code, p.ID)
		reply := roomReply(r)
		reply.PlayerID = p.ID
		return reply, nil

	case protocol.TypeAvatar:
		var req protocol.AvatarRequest
		if err := env.Decode(&req); err != nil {
			return protocol.Reply{}, fmt.Errorf("invalid payload: %w", err)
		}
		ok, err := rooms.AvatarAvailable(ctx, req.Code, req.Avatar)
		if err != nil {
			return protocol.Reply{}, err
		}
		return protocol.Reply{Available: &ok}, nil

	case protocol.TypeJoin:
		var req protocol.JoinRequest
		if err := env.Decode(&req); err != nil {
			return protocol.Reply{}, fmt.Errorf("invalid payload: %w", err)
		}
		r, p, err := rooms.Join(ctx, req.Code, req.Nickname, req.Avatar)
		if err != nil {
			return protocol.Reply{}, err
		}
		s.bind(client, r.Code, p.ID)
		reply := roomReply(r)
		reply.PlayerID = p.ID
		return reply, nil

	case protocol.TypeRejoin:
		var req protocol.RejoinRequest
		if err := env.Decode(&req); err != nil {
			return protocol.Reply{}, fmt.Errorf("invalid payload: %w", err)
		}
		r, err := rooms.Rejoin(ctx, req.Code, req.PlayerID)
		if err != nil {
			return protocol.Reply{}, err
		}
		s.bind(client, r.Code, req.PlayerID)
		reply := roomReply(r)
		reply.PlayerID = req.PlayerID
		return reply, nil
	}

	// Everything else acts on the socket's room session
	code, playerID := client.session()
	if code == "" {
		if isRoomRequest(env.Type) {
			return protocol.Reply{}, room.ErrPlayerNotFound
		}
		return protocol.Reply{}, fmt.Errorf("%w: %s", errUnknownRequest, env.Type)
	}

	var round protocol.RoundRequest
	if err := env.Decode(&round); err != nil {
		return protocol.Reply{}, fmt.Errorf("invalid payload: %w", err)
	}

	var (
		r   room.Room
		err error
	)

	switch env.Type {
	case protocol.TypeLeave:
		// Unbind first so the change push does not treat the leaver as kicked
		client.setSession("", "")
		r, err = rooms.Leave(ctx, code, playerID)
		if err != nil {
			client.setSession(code, playerID)
			return protocol.Reply{}, err
		}
		return protocol.Reply{}, nil

	case protocol.TypeKick:
		var req protocol.KickRequest
		if err := env.Decode(&req); err != nil {
			return protocol.Reply{}, fmt.Errorf("invalid payload: %w", err)
		}
		r, err = rooms.Kick(ctx, code, playerID, req.TargetID)

	case protocol.TypeSettings:
		var req protocol.SettingsRequest
		if err := env.Decode(&req); err != nil {
			return protocol.Reply{}, fmt.Errorf("invalid payload: %w", err)
		}
		r, err = rooms.UpdateSettings(ctx, code, playerID, req.Settings)

	case protocol.TypeStart:
		r, err = rooms.Start(ctx, code, playerID)
	case protocol.TypeEnd:
		r, err = rooms.End(ctx, code, playerID)
	case protocol.TypeReady:
		r, err = rooms.MarkReady(ctx, code, playerID, round.Round)
	case protocol.TypeBuzz:
		r, err = rooms.Buzz(ctx, code, playerID, round.Round)
	case protocol.TypeValidate:
		r, err = rooms.Validate(ctx, code, playerID, round.Round, round.Correct)
	case protocol.TypeReveal:
		r, err = rooms.Reveal(ctx, code, playerID, round.Round)
	case protocol.TypeNext:
		r, err = rooms.Next(ctx, code, playerID)
	default:
		return protocol.Reply{}, fmt.Errorf("%w: %s", errUnknownRequest, env.Type)
	}

	if err != nil {
		return protocol.Reply{}, err
	}
	return roomReply(r), nil
}

func isRoomRequest(msgType string) bool {
	switch msgType {
	case protocol.TypeLeave, protocol.TypeKick, protocol.TypeSettings, protocol.TypeStart, protocol.TypeEnd,
		protocol.TypeReady, protocol.TypeBuzz, protocol.TypeValidate, protocol.TypeReveal, protocol.TypeNext:
		return true
	}
	return false
}
