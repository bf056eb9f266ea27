// ABOUTME: Solo game session
// ABOUTME: Drives the game machine, the streak tracker and cover downloads for one player
package app

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/julienbrs/blindtest-sub003/internal/artwork"
	"github.com/julienbrs/blindtest-sub003/internal/ui"
	"github.com/julienbrs/blindtest-sub003/pkg/audio/engine"
	"github.com/julienbrs/blindtest-sub003/pkg/clock"
	"github.com/julienbrs/blindtest-sub003/pkg/game"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
	"github.com/julienbrs/blindtest-sub003/pkg/streak"
)

// Audio is the playback engine as seen by a session
type Audio interface {
	game.Player
	SetVolume(volume float64)
	Snapshot() engine.Status
}

// Covers resolves cover art to a local file
type Covers interface {
	Cover(ctx context.Context, songID, url string) (string, error)
}

// SoloConfig holds solo session configuration
type SoloConfig struct {
	Songs    game.SongSource
	Audio    Audio
	Clock    clock.Clock
	Settings song.GameConfig
	// Covers and CoverURL are optional
	Covers   Covers
	CoverURL func(songID string) string

	OnView func(ui.SoloView)
}

// Solo is one player's game
type Solo struct {
	config  SoloConfig
	machine *game.Machine
	streak  *streak.Tracker
	ctx     context.Context
	cancel  context.CancelFunc

	mu    sync.Mutex
	state game.State
	run   streak.State
	cover string
	// coverFor is the song the cover lookup was started for
	coverFor string
}

// NewSolo creates an idle solo session
func NewSolo(config SoloConfig) *Solo {
	if config.Clock == nil {
		config.Clock = clock.Real
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Solo{
		config: config,
		ctx:    ctx,
		cancel: cancel,
		state:  game.State{Status: game.StatusIdle},
	}
	s.streak = streak.New(streak.Config{
		Clock:    config.Clock,
		OnChange: s.streakChanged,
	})
	s.machine = game.NewMachine(game.Config{
		Source:    config.Songs,
		Player:    config.Audio,
		Clock:     config.Clock,
		OnChange:  s.stateChanged,
		OnOutcome: s.judged,
	})
	return s
}

// Start begins a new game, resetting a finished one first
func (s *Solo) Start() {
	if st := s.machine.State().Status; st != game.StatusIdle {
		s.machine.Dispatch(game.Reset{})
	}
	s.streak.Reset()
	s.machine.Dispatch(game.StartGame{Config: s.config.Settings})
}

// Handle applies a TUI intent
func (s *Solo) Handle(intent ui.Intent) {
	switch intent.Kind {
	case ui.IntentStart:
		s.Start()
	case ui.IntentBuzz:
		s.machine.Dispatch(game.Buzz{})
	case ui.IntentReveal:
		s.machine.Dispatch(game.Reveal{})
	case ui.IntentJudge:
		s.machine.Dispatch(game.Validate{Correct: intent.Correct})
	case ui.IntentNext:
		s.machine.Dispatch(game.NextSong{})
	case ui.IntentRetry:
		s.machine.Dispatch(game.Retry{})
	case ui.IntentEnd:
		s.machine.Dispatch(game.EndGame{})
	case ui.IntentVolume:
		s.config.Audio.SetVolume(intent.Volume)
	}
}

// State returns the current game snapshot
func (s *Solo) State() game.State {
	return s.machine.State()
}

// View builds the screen from the latest game, streak and engine state
func (s *Solo) View() ui.SoloView {
	s.mu.Lock()
	view := ui.SoloView{
		Game:      s.state,
		Streak:    s.run,
		CoverPath: s.cover,
	}
	s.mu.Unlock()

	status := s.config.Audio.Snapshot()
	view.Progress = status.Progress
	view.CurrentTime = status.CurrentTime
	return view
}

// Refresh pushes the current view, used for progress ticks
func (s *Solo) Refresh() {
	if s.config.OnView != nil {
		s.config.OnView(s.View())
	}
}

// Close stops the game and pending downloads
func (s *Solo) Close() {
	s.cancel()
	s.machine.Close()
	s.streak.Reset()
}

func (s *Solo) stateChanged(state game.State) {
	s.mu.Lock()
	s.state = state
	var fetch string
	if state.Status == game.StatusLoading || (state.Song != nil && state.Song.ID != s.coverFor) {
		s.coverFor = ""
		s.cover = ""
	}
	if state.Status == game.StatusReveal && state.Song != nil && state.Song.HasCover && s.coverFor == "" {
		s.coverFor = state.Song.ID
		fetch = state.Song.ID
	}
	s.mu.Unlock()

	if fetch != "" {
		go s.fetchCover(fetch)
	}
	s.Refresh()
}

func (s *Solo) streakChanged(run streak.State) {
	s.mu.Lock()
	s.run = run
	s.mu.Unlock()
	s.Refresh()
}

func (s *Solo) judged(outcome game.Outcome) {
	switch outcome {
	case game.OutcomeCorrect:
		s.streak.RecordCorrect()
	case game.OutcomeIncorrect:
		s.streak.RecordIncorrect()
	case game.OutcomeSkipped:
		s.streak.RecordSkip()
	}
}

func (s *Solo) fetchCover(songID string) {
	if s.config.Covers == nil || s.config.CoverURL == nil {
		return
	}
	path, err := s.config.Covers.Cover(s.ctx, songID, s.config.CoverURL(songID))
	if err != nil {
		if !errors.Is(err, artwork.ErrNoCover) && s.ctx.Err() == nil {
			log.Printf("Cover for %s unavailable: %v", songID, err)
		}
		return
	}

	s.mu.Lock()
	if s.coverFor != songID {
		s.mu.Unlock()
		return
	}
	s.cover = path
	s.mu.Unlock()
	s.Refresh()
}
