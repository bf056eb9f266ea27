// ABOUTME: Streak tracker over the stream of validation outcomes
// ABOUTME: Counts consecutive correct answers and raises a timed celebration flag
package streak

import (
	"sync"
	"time"

	"github.com/julienbrs/blindtest-sub003/pkg/clock"
)

const (
	DefaultThreshold = 3
	DefaultDisplay   = 3 * time.Second
)

// Config holds tracker configuration
type Config struct {
	Threshold int           // celebrate at every multiple of this count
	Display   time.Duration // how long ShowCelebration stays true
	Clock     clock.Clock

	// OnChange is called after every change of count or celebration flag
	OnChange func(State)
}

// State is a snapshot of the tracker
type State struct {
	Count           int
	ShowCelebration bool
}

// Tracker counts a run of correct answers. It knows nothing about the game
// state machine and only observes outcomes.
type Tracker struct {
	mu     sync.Mutex
	config Config
	count  int
	show   bool
	timer  clock.Timer
	epoch  int
}

// New creates a tracker, filling defaults
func New(config Config) *Tracker {
	if config.Threshold <= 0 {
		config.Threshold = DefaultThreshold
	}
	if config.Display <= 0 {
		config.Display = DefaultDisplay
	}
	if config.Clock == nil {
		config.Clock = clock.Real
	}
	return &Tracker{config: config}
}

// RecordCorrect extends the run and celebrates on multiples of the threshold
func (t *Tracker) RecordCorrect() {
	t.mu.Lock()
	t.count++
	if t.count%t.config.Threshold == 0 {
		t.celebrateLocked()
	}
	s := t.stateLocked()
	t.mu.Unlock()
	t.notify(s)
}

// RecordIncorrect breaks the run
func (t *Tracker) RecordIncorrect() {
	t.breakRun()
}

// RecordSkip breaks the run for a round revealed without a buzz
func (t *Tracker) RecordSkip() {
	t.breakRun()
}

// Reset clears the run and any celebration in progress
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.count = 0
	t.clearLocked()
	s := t.stateLocked()
	t.mu.Unlock()
	t.notify(s)
}

// Count returns the current run length
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// ShowCelebration reports whether a celebration is on screen
func (t *Tracker) ShowCelebration() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.show
}

// State returns a snapshot
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Tracker) breakRun() {
	t.mu.Lock()
	if t.count == 0 {
		t.mu.Unlock()
		return
	}
	t.count = 0
	s := t.stateLocked()
	t.mu.Unlock()
	t.notify(s)
}

func (t *Tracker) celebrateLocked() {
	t.clearLocked()
	t.show = true
	epoch := t.epoch
	t.timer = t.config.Clock.AfterFunc(t.config.Display, func() {
		t.mu.Lock()
		if t.epoch != epoch || !t.show {
			t.mu.Unlock()
			return
		}
		t.show = false
		t.timer = nil
		s := t.stateLocked()
		t.mu.Unlock()
		t.notify(s)
	})
}

// clearLocked hides the celebration and invalidates any pending auto-clear
func (t *Tracker) clearLocked() {
	t.epoch++
	t.show = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Tracker) stateLocked() State {
	return State{Count: t.count, ShowCelebration: t.show}
}

func (t *Tracker) notify(s State) {
	if t.config.OnChange != nil {
		t.config.OnChange(s)
	}
}
