// ABOUTME: Machine runs the solo transition function against real collaborators
// ABOUTME: Serializes actions, fetches songs with retry and drives the countdown
package game

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/julienbrs/blindtest-sub003/pkg/audio/engine"
	"github.com/julienbrs/blindtest-sub003/pkg/clock"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

// SongSource provides songs to play
type SongSource interface {
	// RandomSong returns a song outside exclude, or song.ErrNoSongs
	RandomSong(ctx context.Context, exclude []string) (song.Song, error)
	Songs(ctx context.Context) ([]song.Song, error)
}

// Player is the audio engine as seen by the machine
type Player interface {
	LoadSong(id string)
	Play()
	Pause()
	Seek(seconds float64)
	SetMaxDuration(seconds float64)
	SetOnReady(fn func(songID string))
	SetOnEnded(fn func())
	SetOnError(fn func(err error))
}

// Config holds machine configuration
type Config struct {
	Source SongSource
	Player Player
	Clock  clock.Clock

	// MaxAttempts bounds song requests before surfacing a retryable error
	MaxAttempts int
	// Backoff is the delay before the second attempt; it doubles after each failure
	Backoff time.Duration

	// Spawn runs background work. Defaults to a new goroutine.
	Spawn func(func())

	OnChange  func(State)
	OnOutcome func(Outcome)
}

// Machine is the solo game driver
type Machine struct {
	source      SongSource
	player      Player
	clock       clock.Clock
	maxAttempts int
	backoff     time.Duration
	spawn       func(func())
	onChange    func(State)
	onOutcome   func(Outcome)

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	queue      []Action
	processing bool

	// fetchCancel and the countdown are only touched while processing
	fetchCancel context.CancelFunc
	// fetchGen numbers issued fetches across sessions; State.Request restarts
	// at every Reset, so only results of liveFetch are let through
	fetchGen    uint64
	liveFetch   uint64
	tickGen     uint64
	tick        clock.Timer
}

// NewMachine creates an idle machine and registers on the player's callbacks
func NewMachine(config Config) *Machine {
	if config.Clock == nil {
		config.Clock = clock.Real
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.Backoff <= 0 {
		config.Backoff = 500 * time.Millisecond
	}
	if config.Spawn == nil {
		config.Spawn = func(fn func()) { go fn() }
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		source:      config.Source,
		player:      config.Player,
		clock:       config.Clock,
		maxAttempts: config.MaxAttempts,
		backoff:     config.Backoff,
		spawn:       config.Spawn,
		onChange:    config.OnChange,
		onOutcome:   config.OnOutcome,
		ctx:         ctx,
		cancel:      cancel,
		state:       State{Status: StatusIdle},
	}

	m.player.SetOnReady(func(id string) { m.Dispatch(SongReady{ID: id}) })
	m.player.SetOnEnded(func() { m.Dispatch(ClipEnded{}) })
	m.player.SetOnError(m.audioFailed)
	return m
}

// State returns a snapshot of the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return snapshot(m.state)
}

// Dispatch queues an action. The calling goroutine processes the queue
// unless another dispatch is already doing so.
func (m *Machine) Dispatch(a Action) {
	m.mu.Lock()
	m.queue = append(m.queue, a)
	if m.processing {
		m.mu.Unlock()
		return
	}
	m.processing = true
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.processing = false
			m.mu.Unlock()
			return
		}
		a := m.queue[0]
		m.queue = m.queue[1:]
		if r, ok := a.(fetchResult); ok {
			if r.gen != m.liveFetch {
				m.mu.Unlock()
				continue
			}
			a = r.inner
		}

		next, effects, handled := step(m.state, a)
		if !handled {
			m.mu.Unlock()
			continue
		}
		m.state = next
		if next.Status == StatusBuzzed {
			m.queue = append([]Action{settle{}}, m.queue...)
		}
		snap := snapshot(next)
		m.mu.Unlock()

		m.apply(snap, effects)
		if m.onChange != nil {
			m.onChange(snap)
		}
	}
}

// Close cancels pending work and releases the player callbacks
func (m *Machine) Close() {
	m.cancel()
	m.mu.Lock()
	m.stopTimerLocked()
	m.mu.Unlock()

	m.player.SetOnReady(nil)
	m.player.SetOnEnded(nil)
	m.player.SetOnError(nil)
	m.player.Pause()
}

func (m *Machine) apply(s State, effects []Effect) {
	for _, e := range effects {
		switch e := e.(type) {
		case RequestSong:
			m.request(e)
		case CancelRequest:
			m.cancelRequest()
		case LoadAudio:
			m.player.SetMaxDuration(e.MaxDuration)
			m.player.LoadSong(e.ID)
		case PlayFrom:
			m.player.Seek(e.Position)
			m.player.Play()
		case PauseAudio:
			m.player.Pause()
		case StartTimer:
			m.startTimer()
		case StopTimer:
			m.mu.Lock()
			m.stopTimerLocked()
			m.mu.Unlock()
		case Judged:
			if m.onOutcome != nil {
				m.onOutcome(e.Outcome)
			}
		}
	}
}

func (m *Machine) cancelRequest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchCancel != nil {
		m.fetchCancel()
		m.fetchCancel = nil
	}
	m.liveFetch = 0
}

func (m *Machine) request(r RequestSong) {
	m.cancelRequest()

	ctx, cancel := context.WithCancel(m.ctx)
	m.mu.Lock()
	m.fetchCancel = cancel
	m.fetchGen++
	gen := m.fetchGen
	m.liveFetch = gen
	m.mu.Unlock()

	m.spawn(func() { m.fetch(ctx, gen, r, 1) })
}

// fetchResult carries a song source outcome tagged with the fetch that produced it
type fetchResult struct {
	gen   uint64
	inner Action
}

func (fetchResult) action() {}

// fetch runs one attempt and schedules the next one on failure
func (m *Machine) fetch(ctx context.Context, gen uint64, r RequestSong, attempt int) {
	if ctx.Err() != nil {
		return
	}

	s, err := m.source.RandomSong(ctx, r.Exclude)
	if ctx.Err() != nil {
		return
	}

	switch {
	case err == nil:
		size := 0
		if songs, err := m.source.Songs(ctx); err == nil {
			size = len(songs)
		}
		m.Dispatch(fetchResult{gen, SongFetched{Request: r.Request, Song: s, LibrarySize: size}})

	case errors.Is(err, song.ErrNoSongs):
		m.Dispatch(fetchResult{gen, Exhausted{Request: r.Request}})

	case attempt >= m.maxAttempts:
		log.Printf("Song request failed after %d attempts: %v", attempt, err)
		m.Dispatch(fetchResult{gen, LoadFailed{Request: r.Request, Err: err, Retryable: true}})

	default:
		delay := m.backoff << (attempt - 1)
		log.Printf("Song request attempt %d failed, retrying in %v: %v", attempt, delay, err)
		m.clock.AfterFunc(delay, func() {
			m.spawn(func() { m.fetch(ctx, gen, r, attempt+1) })
		})
	}
}

// audioFailed turns engine errors into load failures for the current request
func (m *Machine) audioFailed(err error) {
	m.mu.Lock()
	req := m.state.Request
	m.mu.Unlock()

	log.Printf("Audio error: %v", err)
	m.Dispatch(LoadFailed{
		Request:   req,
		Err:       err,
		Retryable: !errors.Is(err, engine.ErrUnsupported),
	})
}

func (m *Machine) startTimer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
	m.scheduleTickLocked(m.tickGen)
}

func (m *Machine) scheduleTickLocked(gen uint64) {
	m.tick = m.clock.AfterFunc(time.Second, func() {
		m.mu.Lock()
		if gen != m.tickGen {
			m.mu.Unlock()
			return
		}
		m.scheduleTickLocked(gen)
		m.mu.Unlock()

		m.Dispatch(TickTimer{})
	})
}

func (m *Machine) stopTimerLocked() {
	m.tickGen++
	if m.tick != nil {
		m.tick.Stop()
		m.tick = nil
	}
}

func snapshot(s State) State {
	if s.Played != nil {
		played := make([]string, len(s.Played))
		copy(played, s.Played)
		s.Played = played
	}
	if s.Song != nil {
		cur := *s.Song
		s.Song = &cur
	}
	return s
}
