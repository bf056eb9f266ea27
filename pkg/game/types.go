// ABOUTME: Game state, actions and effects for the solo state machine
// ABOUTME: State is a value snapshot; actions and effects are closed sets
package game

import (
	"fmt"

	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

// Status is the current phase of a solo game
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusPlaying Status = "playing"
	StatusBuzzed  Status = "buzzed"
	StatusTimer   Status = "timer"
	StatusReveal  Status = "reveal"
	StatusEnded   Status = "ended"
	// StatusError is only reachable from loading
	StatusError Status = "error"
)

// EndReason tells an exhausted library apart from a user quitting
type EndReason string

const (
	EndExhausted EndReason = "exhausted"
	EndQuit      EndReason = "quit"
)

// LoadError is the failure that moved the game into StatusError
type LoadError struct {
	Err       error
	Retryable bool
}

func (e *LoadError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("loading failed: %v", e.Err)
	}
	return fmt.Sprintf("cannot play this song: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// State is a snapshot of a solo game
type State struct {
	Status Status
	Config song.GameConfig
	Song   *song.Song
	Score  int
	// SongsPlayed counts rounds that reached reveal
	SongsPlayed int
	// Played holds the ids of every revealed song, in order. It only grows.
	Played      []string
	TimeLeft    int
	Revealed    bool
	LibrarySize int
	LoadErr     *LoadError
	EndReason   EndReason
	// Request identifies the current song request; results for older ones are dropped
	Request int
}

// HasPlayed reports whether id was already revealed this session
func (s State) HasPlayed(id string) bool {
	for _, p := range s.Played {
		if p == id {
			return true
		}
	}
	return false
}

// Exhausted reports whether the played set covers the whole library
func (s State) Exhausted() bool {
	return s.LibrarySize > 0 && len(s.Played) >= s.LibrarySize
}

// Action is an input of the state machine
type Action interface {
	action()
}

// StartGame begins a session with the given configuration
type StartGame struct{ Config song.GameConfig }

// SongFetched delivers the result of a song request
type SongFetched struct {
	Request     int
	Song        song.Song
	LibrarySize int
}

// SongReady reports the audio for id can play through
type SongReady struct{ ID string }

// LoadFailed reports a failed song request or audio load
type LoadFailed struct {
	Request   int
	Err       error
	Retryable bool
}

// Exhausted reports that the song source has nothing left to offer
type Exhausted struct{ Request int }

// Retry re-issues the song request that failed
type Retry struct{}

// Buzz claims the right to answer
type Buzz struct{}

// Reveal gives up on the current song
type Reveal struct{}

// ClipEnded reports the clip played to completion
type ClipEnded struct{}

// TickTimer is one second of the answer countdown
type TickTimer struct{}

// Validate judges the answer given after a buzz
type Validate struct{ Correct bool }

// NextSong moves on from the reveal
type NextSong struct{}

// EndGame quits the session
type EndGame struct{}

// Reset clears everything back to idle
type Reset struct{}

// settle leaves the transient buzzed state
type settle struct{}

func (StartGame) action()   {}
func (SongFetched) action() {}
func (SongReady) action()   {}
func (LoadFailed) action()  {}
func (Exhausted) action()   {}
func (Retry) action()       {}
func (Buzz) action()        {}
func (Reveal) action()      {}
func (ClipEnded) action()   {}
func (TickTimer) action()   {}
func (Validate) action()    {}
func (NextSong) action()    {}
func (EndGame) action()     {}
func (Reset) action()       {}
func (settle) action()      {}

// Effect is a side effect requested by a transition
type Effect interface {
	effect()
}

// RequestSong asks the song source for a song outside Exclude
type RequestSong struct {
	Request int
	Exclude []string
}

// CancelRequest abandons any song request in flight
type CancelRequest struct{}

// LoadAudio points the audio engine at a song
type LoadAudio struct {
	ID          string
	MaxDuration float64
}

// PlayFrom seeks and starts playback
type PlayFrom struct{ Position float64 }

// PauseAudio halts playback
type PauseAudio struct{}

// StartTimer starts the once-per-second answer countdown
type StartTimer struct{ Seconds int }

// StopTimer cancels the answer countdown
type StopTimer struct{}

// Judged reports the outcome of a round to observers such as a streak tracker
type Judged struct{ Outcome Outcome }

func (RequestSong) effect()   {}
func (CancelRequest) effect() {}
func (LoadAudio) effect()     {}
func (PlayFrom) effect()      {}
func (PauseAudio) effect()    {}
func (StartTimer) effect()    {}
func (StopTimer) effect()     {}
func (Judged) effect()        {}

// Outcome is how a round ended
type Outcome int

const (
	OutcomeCorrect Outcome = iota
	OutcomeIncorrect
	// OutcomeSkipped is a reveal without a buzz
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCorrect:
		return "correct"
	case OutcomeIncorrect:
		return "incorrect"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}
