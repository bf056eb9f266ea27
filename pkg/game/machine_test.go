// ABOUTME: Tests for the solo game Machine
// ABOUTME: Runs full sessions against an in-memory song source, a fake player and a fake clock
package game

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/julienbrs/blindtest-sub003/pkg/audio/engine"
	"github.com/julienbrs/blindtest-sub003/pkg/clock"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

type memorySource struct {
	songs    []song.Song
	failures int
	calls    int
	excludes [][]string
}

func (s *memorySource) RandomSong(ctx context.Context, exclude []string) (song.Song, error) {
	s.calls++
	s.excludes = append(s.excludes, exclude)
	if s.failures > 0 {
		s.failures--
		return song.Song{}, errors.New("connection refused")
	}
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	for _, candidate := range s.songs {
		if !skip[candidate.ID] {
			return candidate, nil
		}
	}
	return song.Song{}, song.ErrNoSongs
}

func (s *memorySource) Songs(ctx context.Context) ([]song.Song, error) {
	return s.songs, nil
}

type fakePlayer struct {
	loads   []string
	seeks   []float64
	plays   int
	pauses  int
	max     float64
	onReady func(string)
	onEnded func()
	onError func(error)
}

func (p *fakePlayer) LoadSong(id string)             { p.loads = append(p.loads, id) }
func (p *fakePlayer) Play()                          { p.plays++ }
func (p *fakePlayer) Pause()                         { p.pauses++ }
func (p *fakePlayer) Seek(seconds float64)           { p.seeks = append(p.seeks, seconds) }
func (p *fakePlayer) SetMaxDuration(seconds float64) { p.max = seconds }
func (p *fakePlayer) SetOnReady(fn func(string))     { p.onReady = fn }
func (p *fakePlayer) SetOnEnded(fn func())           { p.onEnded = fn }
func (p *fakePlayer) SetOnError(fn func(error))      { p.onError = fn }

func (p *fakePlayer) lastLoad() string {
	if len(p.loads) == 0 {
		return ""
	}
	return p.loads[len(p.loads)-1]
}

type rig struct {
	source   *memorySource
	player   *fakePlayer
	clock    *clock.Fake
	machine  *Machine
	statuses []Status
	outcomes []Outcome
}

func newRig(n int) *rig {
	src := &memorySource{}
	for i := 0; i < n; i++ {
		src.songs = append(src.songs, song.Song{ID: fmt.Sprintf("song-%d", i+1), Title: fmt.Sprintf("Track %d", i+1)})
	}
	r := &rig{
		source: src,
		player: &fakePlayer{},
		clock:  clock.NewFake(time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)),
	}
	r.machine = NewMachine(Config{
		Source:    r.source,
		Player:    r.player,
		Clock:     r.clock,
		Spawn:     func(fn func()) { fn() },
		OnChange:  func(s State) { r.statuses = append(r.statuses, s.Status) },
		OnOutcome: func(o Outcome) { r.outcomes = append(r.outcomes, o) },
	})
	return r
}

// playCurrent reports the loaded clip as ready
func (r *rig) playCurrent(t *testing.T) string {
	t.Helper()
	id := r.player.lastLoad()
	r.player.onReady(id)
	if got := r.machine.State().Status; got != StatusPlaying {
		t.Fatalf("expected playing after %s is ready, got %s", id, got)
	}
	return id
}

func TestEndToEndSoloSession(t *testing.T) {
	r := newRig(3)
	cfg := song.GameConfig{GuessMode: song.GuessBoth, ClipDuration: 20, AnswerTime: 5}

	r.machine.Dispatch(StartGame{Config: cfg})
	if r.player.max != 20 {
		t.Errorf("expected clip length 20, got %v", r.player.max)
	}

	// Round 1: buzz right away and answer correctly
	first := r.playCurrent(t)
	r.machine.Dispatch(Buzz{})
	if s := r.machine.State(); s.Status != StatusTimer || s.TimeLeft != 5 {
		t.Fatalf("expected timer with 5s, got %s %d", s.Status, s.TimeLeft)
	}
	r.machine.Dispatch(Validate{Correct: true})
	s := r.machine.State()
	if s.Score != 1 || s.SongsPlayed != 1 || !s.HasPlayed(first) {
		t.Fatalf("after round 1: %+v", s)
	}

	// Round 2: clip runs out without a buzz
	r.machine.Dispatch(NextSong{})
	second := r.playCurrent(t)
	if second == first {
		t.Fatal("a played song came back")
	}
	r.player.onEnded()
	s = r.machine.State()
	if s.Status != StatusReveal || s.Score != 1 || s.SongsPlayed != 2 {
		t.Fatalf("after round 2: %+v", s)
	}

	// Round 3: reveal without buzzing
	r.machine.Dispatch(NextSong{})
	third := r.playCurrent(t)
	r.machine.Dispatch(Reveal{})
	s = r.machine.State()
	if s.SongsPlayed != 3 || len(s.Played) != 3 || third == first || third == second {
		t.Fatalf("after round 3: %+v", s)
	}

	r.machine.Dispatch(NextSong{})
	s = r.machine.State()
	if s.Status != StatusEnded || s.EndReason != EndExhausted {
		t.Fatalf("expected exhausted end, got %s %s", s.Status, s.EndReason)
	}
	if r.source.calls != 3 {
		t.Errorf("the covered library must not be queried again, got %d requests", r.source.calls)
	}

	want := []Outcome{OutcomeCorrect, OutcomeSkipped, OutcomeSkipped}
	if !reflect.DeepEqual(r.outcomes, want) {
		t.Errorf("expected outcomes %v, got %v", want, r.outcomes)
	}
}

func TestBuzzedIsObservedBeforeTimer(t *testing.T) {
	r := newRig(2)
	r.machine.Dispatch(StartGame{Config: song.DefaultConfig()})
	r.playCurrent(t)

	r.statuses = nil
	r.machine.Dispatch(Buzz{})

	if !reflect.DeepEqual(r.statuses, []Status{StatusBuzzed, StatusTimer}) {
		t.Errorf("expected buzzed then timer, got %v", r.statuses)
	}
	if r.player.pauses == 0 {
		t.Error("buzz must pause playback")
	}
}

func TestCountdownTimesOut(t *testing.T) {
	r := newRig(2)
	r.machine.Dispatch(StartGame{Config: song.GameConfig{AnswerTime: 3}})
	r.playCurrent(t)
	r.machine.Dispatch(Buzz{})

	r.clock.Advance(time.Second)
	if got := r.machine.State().TimeLeft; got != 2 {
		t.Fatalf("expected 2s left, got %d", got)
	}

	r.clock.Advance(2 * time.Second)
	s := r.machine.State()
	if s.Status != StatusReveal || s.Score != 0 {
		t.Fatalf("timeout must reveal without scoring: %+v", s)
	}
	if !reflect.DeepEqual(r.outcomes, []Outcome{OutcomeIncorrect}) {
		t.Errorf("expected an incorrect outcome, got %v", r.outcomes)
	}
	if r.clock.Pending() != 0 {
		t.Errorf("countdown must stop on reveal, %d timers left", r.clock.Pending())
	}
}

func TestValidateStopsCountdown(t *testing.T) {
	r := newRig(2)
	r.machine.Dispatch(StartGame{Config: song.GameConfig{AnswerTime: 5}})
	r.playCurrent(t)
	r.machine.Dispatch(Buzz{})
	r.machine.Dispatch(Validate{Correct: false})

	r.clock.Advance(10 * time.Second)
	if s := r.machine.State(); s.Status != StatusReveal || s.SongsPlayed != 1 {
		t.Errorf("late ticks changed the state: %+v", s)
	}
}

func TestLoadRetriesWithBackoff(t *testing.T) {
	r := newRig(2)
	r.source.failures = 3

	r.machine.Dispatch(StartGame{Config: song.DefaultConfig()})
	if r.source.calls != 1 {
		t.Fatalf("expected first attempt, got %d", r.source.calls)
	}

	r.clock.Advance(499 * time.Millisecond)
	if r.source.calls != 1 {
		t.Fatal("retried before the backoff")
	}
	r.clock.Advance(time.Millisecond)
	if r.source.calls != 2 {
		t.Fatalf("expected second attempt after 500ms, got %d", r.source.calls)
	}
	r.clock.Advance(time.Second)
	if r.source.calls != 3 {
		t.Fatalf("expected third attempt after 1s more, got %d", r.source.calls)
	}

	s := r.machine.State()
	if s.Status != StatusError || s.LoadErr == nil || !s.LoadErr.Retryable {
		t.Fatalf("expected retryable error after 3 attempts, got %+v", s)
	}

	r.machine.Dispatch(Retry{})
	if r.machine.State().Status != StatusLoading {
		t.Fatal("expected loading after retry")
	}
	r.playCurrent(t)
}

func TestUnsupportedAudioIsFatal(t *testing.T) {
	r := newRig(2)
	r.machine.Dispatch(StartGame{Config: song.DefaultConfig()})
	r.player.onError(fmt.Errorf("%w: content type %q", engine.ErrUnsupported, "text/html"))

	s := r.machine.State()
	if s.Status != StatusError || s.LoadErr.Retryable {
		t.Fatalf("expected non-retryable error, got %+v", s)
	}
	r.machine.Dispatch(Retry{})
	if r.machine.State().Status != StatusError {
		t.Error("retry must be refused for unsupported audio")
	}
}

func TestEmptyLibraryEnds(t *testing.T) {
	r := newRig(0)
	r.machine.Dispatch(StartGame{Config: song.DefaultConfig()})

	s := r.machine.State()
	if s.Status != StatusEnded || s.EndReason != EndExhausted {
		t.Errorf("expected exhausted end, got %s", s.Status)
	}
}

func TestStaleReadyIgnored(t *testing.T) {
	r := newRig(2)
	r.machine.Dispatch(StartGame{Config: song.DefaultConfig()})
	r.player.onReady("not-the-current-song")

	if r.machine.State().Status != StatusLoading {
		t.Error("readiness of another song must be ignored")
	}
}

func TestResetFromAnywhere(t *testing.T) {
	r := newRig(3)
	r.machine.Dispatch(StartGame{Config: song.DefaultConfig()})
	r.playCurrent(t)
	r.machine.Dispatch(Buzz{})

	r.machine.Dispatch(Reset{})
	if !reflect.DeepEqual(r.machine.State(), State{Status: StatusIdle}) {
		t.Errorf("expected a clean idle state, got %+v", r.machine.State())
	}
	if r.clock.Pending() != 0 {
		t.Error("reset must stop the countdown")
	}

	r.machine.Dispatch(Reset{})
	if !reflect.DeepEqual(r.machine.State(), State{Status: StatusIdle}) {
		t.Error("second reset changed the state")
	}
}

// hookSource hands out numbered songs and runs during on its first call
type hookSource struct {
	calls  int
	during func()
}

func (s *hookSource) RandomSong(ctx context.Context, exclude []string) (song.Song, error) {
	s.calls++
	if s.calls == 1 && s.during != nil {
		s.during()
	}
	return song.Song{ID: fmt.Sprintf("song-%d", s.calls)}, nil
}

func (s *hookSource) Songs(ctx context.Context) ([]song.Song, error) {
	return nil, nil
}

func TestFetchFromBeforeResetIsDropped(t *testing.T) {
	src := &hookSource{}
	player := &fakePlayer{}
	m := NewMachine(Config{
		Source: src,
		Player: player,
		Clock:  clock.NewFake(time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)),
		Spawn:  func(fn func()) { fn() },
	})
	defer m.Close()

	// The first fetch is still running when the session restarts, so its
	// result carries the same request number as the new session's fetch
	src.during = func() {
		m.Dispatch(Reset{})
		m.Dispatch(StartGame{Config: song.DefaultConfig()})
	}
	m.Dispatch(StartGame{Config: song.DefaultConfig()})

	if !reflect.DeepEqual(player.loads, []string{"song-2"}) {
		t.Fatalf("expected only the new session's song to load, got %v", player.loads)
	}
	if s := m.State(); s.Song == nil || s.Song.ID != "song-2" {
		t.Errorf("expected song-2 in the new session, got %+v", s.Song)
	}
}

func TestReentrantDispatchIsQueued(t *testing.T) {
	r := newRig(2)
	var seen []Status
	r.machine.onChange = func(s State) {
		seen = append(seen, s.Status)
		if s.Status == StatusPlaying {
			// observer reacts immediately; must run after the current transition
			r.machine.Dispatch(Buzz{})
		}
	}

	r.machine.Dispatch(StartGame{Config: song.DefaultConfig()})
	r.player.onReady(r.player.lastLoad())

	want := []Status{StatusLoading, StatusLoading, StatusPlaying, StatusBuzzed, StatusTimer}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("expected %v, got %v", want, seen)
	}
}

func TestCloseDetachesPlayer(t *testing.T) {
	r := newRig(1)
	r.machine.Close()
	if r.player.onReady != nil || r.player.onEnded != nil || r.player.onError != nil {
		t.Error("close must release the player callbacks")
	}
}
