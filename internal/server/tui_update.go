// ABOUTME: TUI update helpers for server
// ABOUTME: Builds the room and connection summary shown by the server TUI
package server

import (
	"context"
	"sort"
	"time"

	"github.com/julienbrs/blindtest-sub003/internal/room"
)

// status collects the current server state
func (s *Server) status(ctx context.Context) ServerStatus {
	status := ServerStatus{
		Name: s.config.Name,
		Port: s.config.Port,
	}

	s.clientsMu.RLock()
	status.Connections = len(s.clients)
	s.clientsMu.RUnlock()

	if songs, err := s.config.Library.Songs(ctx); err == nil {
		status.Songs = len(songs)
	}

	codes, err := s.config.Store.List(ctx)
	if err != nil {
		return status
	}
	sort.Strings(codes)

	for _, code := range codes {
		r, err := s.config.Rooms.Get(ctx, code)
		if err != nil {
			continue
		}
		status.Rooms = append(status.Rooms, roomInfo(r))
	}
	return status
}

func roomInfo(r room.Room) RoomInfo {
	info := RoomInfo{Code: r.Code, Status: string(r.Status)}
	if r.Round != nil {
		info.Round = r.Round.Number
		info.Phase = string(r.Round.Phase)
	}
	for _, p := range r.Players {
		info.Players = append(info.Players, PlayerInfo{
			Nickname: p.Nickname,
			Avatar:   p.Avatar,
			Score:    p.Score,
			Online:   p.Online,
			Host:     p.ID == r.HostID,
		})
	}
	return info
}

// updateTUI sends current server state to TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.tui.Update(s.status(ctx))
}
