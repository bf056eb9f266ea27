// ABOUTME: Synchronized player that seeks the engine to the shared clip offset
// ABOUTME: Handles late joiners, future start times and once-per-load readiness
package syncplay

import (
	"log"
	"sync"
	"time"

	"github.com/julienbrs/blindtest-sub003/pkg/clock"
)

// Engine is the part of the playback engine the player drives
type Engine interface {
	LoadSong(id string)
	Play()
	Pause()
	Seek(seconds float64)
	SetVolume(volume float64)
	SetMaxDuration(seconds float64)
	SetOnReady(fn func(songID string))
	SetOnEnded(fn func())
}

// Props is the externally driven input, re-evaluated on every Update
type Props struct {
	// SongID is empty while the round song is not known yet
	SongID string
	// StartedAt is the zero time while the round is not synchronized yet
	StartedAt time.Time
	IsPlaying bool
	// MaxDuration is the clip length in seconds
	MaxDuration float64
	// StartPosition overrides the computed offset when set
	StartPosition *float64
	// Volume is applied when set, clamped to [0, 1]
	Volume *float64
}

// Config holds player configuration
type Config struct {
	Engine Engine
	Clock  clock.Clock

	// OnReady fires once per load with the loaded song id
	OnReady func(songID string)
	// OnEnded fires once per load, when the clip finished or was already over on arrival
	OnEnded func()
}

// Player follows the shared round timing
type Player struct {
	engine  Engine
	clock   clock.Clock
	onReady func(string)
	onEnded func()

	mu         sync.Mutex
	props      Props
	song       string
	requested  bool
	loaded     bool
	readyFired bool
	ended      bool
	started    time.Time // startedAt playback was started for
	playing    bool
	wait       clock.Timer
	waitFor    time.Time
	closed     bool
}

// New creates a player and takes over the engine's readiness and end handlers
func New(config Config) *Player {
	if config.Clock == nil {
		config.Clock = clock.Real
	}
	p := &Player{
		engine:  config.Engine,
		clock:   config.Clock,
		onReady: config.OnReady,
		onEnded: config.OnEnded,
	}
	p.engine.SetOnReady(p.handleReady)
	p.engine.SetOnEnded(p.handleEnded)
	return p
}

// Update replaces the props and re-evaluates what the engine should do
func (p *Player) Update(props Props) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.props = props
	ops := p.evaluateLocked()
	p.mu.Unlock()
	ops.run()
}

// Close stops playback and releases the engine handlers
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.stopWaitLocked()
	p.mu.Unlock()

	p.engine.SetOnReady(nil)
	p.engine.SetOnEnded(nil)
	p.engine.Pause()
}

// ops is the engine work decided under the lock and run after releasing it,
// so engine callbacks can re-enter the player
type ops []func()

func (o ops) run() {
	for _, fn := range o {
		fn()
	}
}

func (p *Player) evaluateLocked() ops {
	var out ops
	props := p.props

	if props.Volume != nil {
		v := clampVolume(*props.Volume)
		out = append(out, func() { p.engine.SetVolume(v) })
	}

	if props.SongID != p.song {
		p.resetLocked(props.SongID)
	}

	if props.SongID == "" {
		if p.playing {
			p.playing = false
			out = append(out, p.engine.Pause)
		}
		return out
	}

	now := p.clock.Now()

	if props.IsPlaying && !props.StartedAt.IsZero() && p.isOverLocked(now) {
		p.stopWaitLocked()
		if p.playing {
			p.playing = false
			out = append(out, p.engine.Pause)
		}
		return append(out, p.endLocked()...)
	}

	if !p.requested {
		p.requested = true
		id, limit := props.SongID, props.MaxDuration
		out = append(out, func() {
			p.engine.SetMaxDuration(limit)
			p.engine.LoadSong(id)
		})
	}

	if !props.IsPlaying {
		p.stopWaitLocked()
		if p.playing {
			p.playing = false
			p.started = time.Time{}
			out = append(out, p.engine.Pause)
		}
		return out
	}

	if props.StartedAt.IsZero() || !p.loaded || p.ended {
		return out
	}

	if props.StartedAt.After(now) {
		if p.wait == nil || !p.waitFor.Equal(props.StartedAt) {
			p.stopWaitLocked()
			p.waitFor = props.StartedAt
			p.wait = p.clock.AfterFunc(props.StartedAt.Sub(now), p.reevaluate)
		}
		return out
	}
	p.stopWaitLocked()

	if p.playing && p.started.Equal(props.StartedAt) {
		return out
	}

	offset := p.positionLocked(now)
	p.playing = true
	p.started = props.StartedAt
	log.Printf("Sync start %s at %.2fs", props.SongID, offset)
	return append(out, func() {
		p.engine.Seek(offset)
		p.engine.Play()
	})
}

// positionLocked is where playback should be at now
func (p *Player) positionLocked(now time.Time) float64 {
	limit := p.props.MaxDuration
	if p.props.StartPosition != nil {
		pos := *p.props.StartPosition
		if pos < 0 {
			return 0
		}
		if limit > 0 && pos > limit {
			return limit
		}
		return pos
	}
	return clock.Offset(p.props.StartedAt, now, limit)
}

// isOverLocked reports whether the room's clip has finished. It always uses the
// elapsed time since the shared start; StartPosition only moves the seek target.
func (p *Player) isOverLocked(now time.Time) bool {
	limit := p.props.MaxDuration
	return limit > 0 && clock.Offset(p.props.StartedAt, now, limit) >= limit
}

func (p *Player) resetLocked(song string) {
	p.stopWaitLocked()
	p.song = song
	p.requested = false
	p.loaded = false
	p.readyFired = false
	p.ended = false
	p.started = time.Time{}
}

func (p *Player) stopWaitLocked() {
	if p.wait != nil {
		p.wait.Stop()
		p.wait = nil
		p.waitFor = time.Time{}
	}
}

func (p *Player) endLocked() ops {
	if p.ended {
		return nil
	}
	p.ended = true
	p.playing = false
	cb := p.onEnded
	if cb == nil {
		return nil
	}
	return ops{cb}
}

func (p *Player) reevaluate() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.wait = nil
	p.waitFor = time.Time{}
	out := p.evaluateLocked()
	p.mu.Unlock()
	out.run()
}

func (p *Player) handleReady(songID string) {
	p.mu.Lock()
	if p.closed || songID != p.song || p.readyFired {
		p.mu.Unlock()
		return
	}
	p.loaded = true
	p.readyFired = true
	var out ops
	if cb := p.onReady; cb != nil {
		out = append(out, func() { cb(songID) })
	}
	out = append(out, p.evaluateLocked()...)
	p.mu.Unlock()
	out.run()
}

func (p *Player) handleEnded() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	out := p.endLocked()
	p.mu.Unlock()
	out.run()
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
