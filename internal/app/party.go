// ABOUTME: Multiplayer game session
// ABOUTME: Mirrors room snapshots into the synchronized player and relays intents to the server
package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/julienbrs/blindtest-sub003/internal/artwork"
	"github.com/julienbrs/blindtest-sub003/internal/protocol"
	"github.com/julienbrs/blindtest-sub003/internal/room"
	"github.com/julienbrs/blindtest-sub003/internal/ui"
	"github.com/julienbrs/blindtest-sub003/pkg/clock"
	"github.com/julienbrs/blindtest-sub003/pkg/syncplay"
)

// RoomClient is the server connection as seen by a party
type RoomClient interface {
	ClockOffset() time.Duration
	Kick(ctx context.Context, targetID string) error
	Start(ctx context.Context) error
	End(ctx context.Context) error
	Ready(ctx context.Context, round int) error
	Buzz(ctx context.Context, round int) error
	Validate(ctx context.Context, round int, correct bool) error
	Reveal(ctx context.Context, round int) error
	Next(ctx context.Context) error
	Leave(ctx context.Context) error
}

// PartyConfig holds multiplayer session configuration
type PartyConfig struct {
	Client RoomClient
	Audio  Audio
	Clock  clock.Clock
	// Covers and CoverURL are optional
	Covers   Covers
	CoverURL func(songID string) string

	OnView func(ui.RoomView)
	// OnError reports failed requests to the player
	OnError func(err error)
}

// Party is this player's view of a multiplayer room
type Party struct {
	config PartyConfig
	sync   *syncplay.Player
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	room      room.Room
	you       string
	connected bool
	cover     string
	coverFor  string
	// readySent is the last round this player reported loaded
	readySent int
}

// NewParty creates a party for a joined room
func NewParty(config PartyConfig, joined room.Room, you string) *Party {
	if config.Clock == nil {
		config.Clock = clock.Real
	}
	ctx, cancel := context.WithCancel(context.Background())

	p := &Party{
		config:    config,
		ctx:       ctx,
		cancel:    cancel,
		room:      joined,
		you:       you,
		connected: true,
	}
	p.sync = syncplay.New(syncplay.Config{
		Engine:  config.Audio,
		Clock:   config.Clock,
		OnReady: p.loaded,
	})
	config.Audio.SetOnError(func(err error) {
		log.Printf("Audio error: %v", err)
		p.report(err)
	})
	p.follow(joined)
	return p
}

// Apply takes an authoritative snapshot. Snapshots older than the current one are dropped.
func (p *Party) Apply(state protocol.RoomState) {
	p.mu.Lock()
	if state.Room.Code == p.room.Code && state.Room.Version < p.room.Version {
		p.mu.Unlock()
		return
	}
	p.room = state.Room
	if p.room.Status != room.StatusPlaying {
		p.readySent = 0
	}
	if state.You != "" {
		p.you = state.You
	}
	r := p.room
	p.mu.Unlock()

	p.follow(r)
}

// SetConnected records the socket state shown on screen
func (p *Party) SetConnected(connected bool) {
	p.mu.Lock()
	p.connected = connected
	p.mu.Unlock()
	p.Refresh()
}

// Handle relays a TUI intent to the server
func (p *Party) Handle(intent ui.Intent) {
	if intent.Kind == ui.IntentVolume {
		p.config.Audio.SetVolume(intent.Volume)
		return
	}

	round := p.roundNumber()
	ctx := p.ctx
	var err error
	switch intent.Kind {
	case ui.IntentBuzz:
		err = p.config.Client.Buzz(ctx, round)
	case ui.IntentReveal:
		err = p.config.Client.Reveal(ctx, round)
	case ui.IntentJudge:
		err = p.config.Client.Validate(ctx, round, intent.Correct)
	case ui.IntentNext:
		err = p.config.Client.Next(ctx)
	case ui.IntentStart:
		err = p.config.Client.Start(ctx)
	case ui.IntentEnd:
		err = p.config.Client.End(ctx)
	case ui.IntentKick:
		err = p.config.Client.Kick(ctx, intent.Target)
	}
	if err != nil {
		// Losing a buzz race or acting on a finished round is expected
		if errors.Is(err, room.ErrAlreadyBuzzed) || errors.Is(err, room.ErrStaleRound) {
			return
		}
		p.report(err)
	}
}

// Room returns the latest snapshot
func (p *Party) Room() room.Room {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.room
}

// View builds the screen from the latest snapshot and engine state
func (p *Party) View() ui.RoomView {
	p.mu.Lock()
	view := ui.RoomView{
		Room:      p.room,
		You:       p.you,
		Connected: p.connected,
		CoverPath: p.cover,
	}
	p.mu.Unlock()

	view.Progress = p.config.Audio.Snapshot().Progress
	if round := view.Room.Round; round != nil && round.Phase == room.PhaseBuzzed && round.AnswerDeadline > 0 {
		left := p.serverTime(round.AnswerDeadline).Sub(p.config.Clock.Now())
		view.AnswerLeft = max(int((left+time.Second-1)/time.Second), 0)
	}
	return view
}

// Refresh pushes the current view
func (p *Party) Refresh() {
	if p.config.OnView != nil {
		p.config.OnView(p.View())
	}
}

// Leave quits the room and stops playback
func (p *Party) Leave(ctx context.Context) error {
	err := p.config.Client.Leave(ctx)
	p.Close()
	return err
}

// Close stops playback and pending downloads
func (p *Party) Close() {
	p.cancel()
	p.sync.Close()
}

// follow points the synchronized player at the room's current round
func (p *Party) follow(r room.Room) {
	p.sync.Update(p.props(r))

	if round := r.Round; round != nil && round.Phase == room.PhaseReveal && round.Song != nil && round.Song.HasCover {
		p.mu.Lock()
		start := p.coverFor != round.SongID
		if start {
			p.coverFor = round.SongID
			p.cover = ""
		}
		p.mu.Unlock()
		if start {
			go p.fetchCover(round.SongID)
		}
	}
	p.Refresh()
}

func (p *Party) props(r room.Room) syncplay.Props {
	props := syncplay.Props{
		MaxDuration: float64(r.Settings.Normalize().ClipDuration),
	}
	round := r.Round
	if r.Status != room.StatusPlaying || round == nil {
		return props
	}
	props.SongID = round.SongID
	if round.StartedAt > 0 {
		props.StartedAt = p.serverTime(round.StartedAt)
	}
	props.IsPlaying = round.Phase == room.PhasePlaying
	return props
}

// serverTime converts a server timestamp to the local clock
func (p *Party) serverTime(ms int64) time.Time {
	return clock.FromMillis(ms).Add(-p.config.Client.ClockOffset())
}

func (p *Party) roundNumber() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.room.Round == nil {
		return 0
	}
	return p.room.Round.Number
}

// loaded reports readiness once per round while the room waits for it
func (p *Party) loaded(songID string) {
	p.mu.Lock()
	round := p.room.Round
	if round == nil || round.SongID != songID || round.Phase != room.PhaseLoading || p.readySent >= round.Number {
		p.mu.Unlock()
		return
	}
	number := round.Number
	p.readySent = number
	p.mu.Unlock()

	go func() {
		if err := p.config.Client.Ready(p.ctx, number); err != nil && p.ctx.Err() == nil {
			log.Printf("Failed to report round %d ready: %v", number, err)
			p.report(err)
		}
	}()
}

func (p *Party) report(err error) {
	if p.config.OnError != nil {
		p.config.OnError(err)
	}
}

func (p *Party) fetchCover(songID string) {
	if p.config.Covers == nil || p.config.CoverURL == nil {
		return
	}
	path, err := p.config.Covers.Cover(p.ctx, songID, p.config.CoverURL(songID))
	if err != nil {
		if !errors.Is(err, artwork.ErrNoCover) && p.ctx.Err() == nil {
			log.Printf("Cover for %s unavailable: %v", songID, err)
		}
		return
	}

	p.mu.Lock()
	if p.coverFor != songID {
		p.mu.Unlock()
		return
	}
	p.cover = path
	p.mu.Unlock()
	p.Refresh()
}
