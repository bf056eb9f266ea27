// ABOUTME: Server-side round timers keyed by room, round and purpose
// ABOUTME: A fired timer re-checks the room, so stale timers are harmless no-ops
package room

import (
	"sync"
	"time"

	"github.com/julienbrs/blindtest-sub003/pkg/clock"
)

type timerKind int

const (
	timerReady timerKind = iota
	timerClip
	timerAnswer
)

func (k timerKind) String() string {
	switch k {
	case timerReady:
		return "ready"
	case timerClip:
		return "clip"
	case timerAnswer:
		return "answer"
	default:
		return "unknown"
	}
}

type timerKey struct {
	code  string
	round int
	kind  timerKind
}

type timerEntry struct {
	timer clock.Timer
}

type timers struct {
	clock clock.Clock

	mu      sync.Mutex
	pending map[timerKey]*timerEntry
	// versions holds the newest room version reconciled per room
	versions map[string]int64
}

func newTimers(c clock.Clock) *timers {
	return &timers{
		clock:    c,
		pending:  make(map[timerKey]*timerEntry),
		versions: make(map[string]int64),
	}
}

// observe records version for code and reports whether it is the newest seen
func (t *timers) observe(code string, version int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if version < t.versions[code] {
		return false
	}
	t.versions[code] = version
	return true
}

// ensure schedules fn after d unless a timer with the same key is pending
func (t *timers) ensure(key timerKey, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[key]; ok {
		return
	}
	entry := &timerEntry{}
	entry.timer = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		if t.pending[key] == entry {
			delete(t.pending, key)
		}
		t.mu.Unlock()
		fn()
	})
	t.pending[key] = entry
}

func (t *timers) cancel(key timerKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.pending[key]; ok {
		entry.timer.Stop()
		delete(t.pending, key)
	}
}

// cancelRoom stops every timer of code except those of round keep
func (t *timers) cancelRoom(code string, keep int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, entry := range t.pending {
		if key.code == code && key.round != keep {
			entry.timer.Stop()
			delete(t.pending, key)
		}
	}
}

func (t *timers) forget(code string) {
	t.cancelRoom(code, -1)
	t.mu.Lock()
	delete(t.versions, code)
	t.mu.Unlock()
}

func (t *timers) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, entry := range t.pending {
		entry.timer.Stop()
		delete(t.pending, key)
	}
}

func (t *timers) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
