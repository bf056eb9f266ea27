// ABOUTME: Playback engine state, clip enforcement and latest-handler callbacks
// ABOUTME: Drops events from superseded loads using a generation counter
package engine

import (
	"net/url"
	"strings"
	"sync"

	"github.com/julienbrs/blindtest-sub003/pkg/audio/decode"
)

// ErrUnsupported marks sources the environment cannot play. Retrying will not help.
var ErrUnsupported = decode.ErrUnsupportedFormat

// Media is the backend that actually buffers and renders audio
type Media interface {
	// Open starts buffering src and reports progress to sink. It returns quickly;
	// failures after it returns go to sink.Failed.
	Open(src string, sink Sink) error
	Play() error
	Pause()
	Seek(seconds float64) error
	SetVolume(volume float64)
	// Close detaches the current source; its sink receives nothing afterwards
	Close()
}

// Sink receives the events of one opened source
type Sink interface {
	Loaded()
	TimeUpdate(seconds float64)
	Ended()
	Failed(err error)
}

// Config holds engine configuration
type Config struct {
	// BaseURL is the server root; sources are BaseURL + "/audio/{id}"
	BaseURL     string
	Media       Media
	MaxDuration float64

	OnReady func(songID string)
	OnEnded func()
	OnError func(err error)
}

// Status is a snapshot of the observable engine fields
type Status struct {
	SongID      string
	IsPlaying   bool
	IsLoaded    bool
	CurrentTime float64
	Progress    float64
}

// Engine owns one Media and plays one clip at a time
type Engine struct {
	mu      sync.Mutex
	media   Media
	baseURL string

	gen         uint64
	songID      string
	playing     bool
	loaded      bool
	completed   bool
	currentTime float64
	maxDuration float64
	closed      bool

	onReady func(string)
	onEnded func()
	onError func(error)
}

// New creates an engine
func New(config Config) *Engine {
	return &Engine{
		media:       config.Media,
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		maxDuration: config.MaxDuration,
		onReady:     config.OnReady,
		onEnded:     config.OnEnded,
		onError:     config.OnError,
	}
}

// SourceURL returns the streamed resource for a song id
func (e *Engine) SourceURL(id string) string {
	return e.baseURL + "/audio/" + url.PathEscape(id)
}

// LoadSong resets readiness and clip tracking and points the media at id
func (e *Engine) LoadSong(id string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.gen++
	e.songID = id
	e.playing = false
	e.loaded = false
	e.completed = false
	e.currentTime = 0
	sink := &loadSink{engine: e, gen: e.gen, songID: id}
	e.mu.Unlock()

	e.media.Close()
	if err := e.media.Open(e.SourceURL(id), sink); err != nil {
		sink.Failed(err)
	}
}

// Play starts or resumes playback. The state flips immediately and is
// reverted if the media refuses.
func (e *Engine) Play() {
	e.mu.Lock()
	if e.closed || e.songID == "" || e.completed {
		e.mu.Unlock()
		return
	}
	e.playing = true
	gen := e.gen
	e.mu.Unlock()

	if err := e.media.Play(); err != nil {
		e.mu.Lock()
		if e.gen != gen {
			e.mu.Unlock()
			return
		}
		e.playing = false
		cb := e.onError
		e.mu.Unlock()
		if cb != nil {
			cb(err)
		}
	}
}

// Pause halts playback
func (e *Engine) Pause() {
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
	e.media.Pause()
}

// Toggle inverts the play state
func (e *Engine) Toggle() {
	if e.IsPlaying() {
		e.Pause()
	} else {
		e.Play()
	}
}

// Seek jumps to seconds within the current source
func (e *Engine) Seek(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	e.mu.Lock()
	if e.closed || e.songID == "" {
		e.mu.Unlock()
		return
	}
	e.currentTime = seconds
	e.mu.Unlock()

	if err := e.media.Seek(seconds); err != nil {
		e.reportError(err)
	}
}

// SetVolume sets the gain, clamped to [0, 1]
func (e *Engine) SetVolume(volume float64) {
	if volume < 0 {
		volume = 0
	} else if volume > 1 {
		volume = 1
	}
	e.media.SetVolume(volume)
}

// SetMaxDuration sets the clip length in seconds; 0 disables the limit
func (e *Engine) SetMaxDuration(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	e.maxDuration = seconds
}

// SetOnReady replaces the readiness handler. The latest handler is used at fire time.
func (e *Engine) SetOnReady(fn func(songID string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onReady = fn
}

// SetOnEnded replaces the completion handler
func (e *Engine) SetOnEnded(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEnded = fn
}

// SetOnError replaces the error handler
func (e *Engine) SetOnError(fn func(err error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onError = fn
}

// IsPlaying reports the (optimistic) play state
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// IsLoaded reports whether the current source can play through
func (e *Engine) IsLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// CurrentTime returns the playback position in seconds
func (e *Engine) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTime
}

// Progress returns the clip progress percentage against the configured max duration
func (e *Engine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Progress(e.currentTime, e.maxDuration)
}

// SongID returns the id of the current load
func (e *Engine) SongID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.songID
}

// Snapshot returns all observable fields at once
func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		SongID:      e.songID,
		IsPlaying:   e.playing,
		IsLoaded:    e.loaded,
		CurrentTime: e.currentTime,
		Progress:    Progress(e.currentTime, e.maxDuration),
	}
}

// Close pauses and detaches the media. The engine ignores every call afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.gen++
	e.playing = false
	e.mu.Unlock()

	e.media.Pause()
	e.media.Close()
}

// Progress returns currentTime/maxDuration as a percentage in [0, 100].
// A zero max duration yields 0.
func Progress(currentTime, maxDuration float64) float64 {
	if maxDuration <= 0 {
		return 0
	}
	p := currentTime / maxDuration * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func (e *Engine) reportError(err error) {
	e.mu.Lock()
	cb := e.onError
	e.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// loadSink forwards media events for one generation
type loadSink struct {
	engine *Engine
	gen    uint64
	songID string
}

func (s *loadSink) Loaded() {
	e := s.engine
	e.mu.Lock()
	if e.gen != s.gen || e.loaded {
		e.mu.Unlock()
		return
	}
	e.loaded = true
	cb := e.onReady
	e.mu.Unlock()

	if cb != nil {
		cb(s.songID)
	}
}

func (s *loadSink) TimeUpdate(seconds float64) {
	e := s.engine
	e.mu.Lock()
	if e.gen != s.gen {
		e.mu.Unlock()
		return
	}
	e.currentTime = seconds
	if e.maxDuration <= 0 || seconds < e.maxDuration || e.completed {
		e.mu.Unlock()
		return
	}
	e.completed = true
	e.playing = false
	cb := e.onEnded
	e.mu.Unlock()

	e.media.Pause()
	if cb != nil {
		cb()
	}
}

func (s *loadSink) Ended() {
	e := s.engine
	e.mu.Lock()
	if e.gen != s.gen || e.completed {
		e.mu.Unlock()
		return
	}
	e.completed = true
	e.playing = false
	cb := e.onEnded
	e.mu.Unlock()

	if cb != nil {
		cb()
	}
}

func (s *loadSink) Failed(err error) {
	e := s.engine
	e.mu.Lock()
	if e.gen != s.gen {
		e.mu.Unlock()
		return
	}
	e.playing = false
	cb := e.onError
	e.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}
