// ABOUTME: Room record shared by every client of a multiplayer game
// ABOUTME: Players, the current round and the round history
package room

import (
	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

// Status is the lifecycle of a room
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusPlaying Status = "playing"
	StatusEnded   Status = "ended"
)

// Phase is the step of the current round
type Phase string

const (
	// PhaseLoading waits for every online player to buffer the clip
	PhaseLoading Phase = "loading"
	PhasePlaying Phase = "playing"
	PhaseBuzzed  Phase = "buzzed"
	PhaseReveal  Phase = "reveal"
)

// Player is one participant. ID is the durable reference carried across reconnects.
type Player struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
	Score    int    `json:"score"`
	Online   bool   `json:"online"`
	JoinedAt int64  `json:"joined_at"`
}

// Round is the round in progress. Timestamps are unix milliseconds.
type Round struct {
	Number int    `json:"number"`
	SongID string `json:"song_id"`
	Phase  Phase  `json:"phase"`
	// StartedAt is the shared clip start, 0 until every player is ready
	StartedAt      int64    `json:"started_at"`
	Ready          []string `json:"ready"`
	BuzzedBy       string   `json:"buzzed_by,omitempty"`
	BuzzLatencyMs  int64    `json:"buzz_latency_ms,omitempty"`
	AnswerDeadline int64    `json:"answer_deadline,omitempty"`
	Correct        *bool    `json:"correct,omitempty"`
	// Song is only filled in once revealed
	Song *song.Song `json:"song,omitempty"`
}

// RoundRecord is the history entry of a finished round
type RoundRecord struct {
	Round      int    `json:"round"`
	SongID     string `json:"song_id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	BuzzedBy   string `json:"buzzed_by,omitempty"`
	BuzzerName string `json:"buzzer_name,omitempty"`
	LatencyMs  int64  `json:"latency_ms,omitempty"`
	Correct    bool   `json:"correct"`
}

// Room is the authoritative record of one game
type Room struct {
	Code     string          `json:"code"`
	Status   Status          `json:"status"`
	Settings song.GameConfig `json:"settings"`
	HostID   string          `json:"host_id"`
	// Players are kept in join order
	Players []Player      `json:"players"`
	Round   *Round        `json:"round,omitempty"`
	History []RoundRecord `json:"history"`
	Played  []string      `json:"played"`

	Version   int64 `json:"version"`
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// Player returns the player with id
func (r *Room) Player(id string) (*Player, bool) {
	for i := range r.Players {
		if r.Players[i].ID == id {
			return &r.Players[i], true
		}
	}
	return nil, false
}

// IsHost reports whether id is the current host
func (r *Room) IsHost(id string) bool {
	return id != "" && r.HostID == id
}

// AvatarTaken reports whether another player already uses avatar
func (r *Room) AvatarTaken(avatar string) bool {
	for _, p := range r.Players {
		if p.Avatar == avatar {
			return true
		}
	}
	return false
}

// Online returns the connected players in join order
func (r *Room) Online() []Player {
	var out []Player
	for _, p := range r.Players {
		if p.Online {
			out = append(out, p)
		}
	}
	return out
}

// migrateHost hands the host role to the earliest-joined online player.
// The host is kept when nobody else is online.
func (r *Room) migrateHost() {
	if host, ok := r.Player(r.HostID); ok && host.Online {
		return
	}
	var next *Player
	for i := range r.Players {
		p := &r.Players[i]
		if !p.Online {
			continue
		}
		if next == nil || p.JoinedAt < next.JoinedAt {
			next = p
		}
	}
	if next != nil {
		r.HostID = next.ID
	} else if _, ok := r.Player(r.HostID); !ok && len(r.Players) > 0 {
		r.HostID = r.Players[0].ID
	}
}

func (r *Room) removePlayer(id string) bool {
	for i, p := range r.Players {
		if p.ID == id {
			r.Players = append(r.Players[:i:i], r.Players[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy, safe to mutate
func (r Room) Clone() Room {
	out := r
	out.Players = append([]Player(nil), r.Players...)
	out.History = append([]RoundRecord(nil), r.History...)
	out.Played = append([]string(nil), r.Played...)
	if r.Round != nil {
		round := *r.Round
		round.Ready = append([]string(nil), r.Round.Ready...)
		if r.Round.Correct != nil {
			c := *r.Round.Correct
			round.Correct = &c
		}
		if r.Round.Song != nil {
			s := *r.Round.Song
			round.Song = &s
		}
		out.Round = &round
	}
	return out
}

func (round *Round) isReady(id string) bool {
	for _, r := range round.Ready {
		if r == id {
			return true
		}
	}
	return false
}

// allReady reports whether every online player loaded the clip
func (r *Room) allReady() bool {
	if r.Round == nil {
		return false
	}
	online := r.Online()
	if len(online) == 0 {
		return false
	}
	for _, p := range online {
		if !r.Round.isReady(p.ID) {
			return false
		}
	}
	return true
}
