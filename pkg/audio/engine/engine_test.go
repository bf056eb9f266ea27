// ABOUTME: Tests for the playback engine
// ABOUTME: Uses a scripted media backend to check clip, readiness and stale event rules
package engine

import (
	"errors"
	"sync"
	"testing"
)

type fakeMedia struct {
	mu      sync.Mutex
	sinks   []Sink
	srcs    []string
	plays   int
	pauses  int
	seeks   []float64
	closes  int
	volume  float64
	playErr error
}

func (f *fakeMedia) Open(src string, sink Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.srcs = append(f.srcs, src)
	f.sinks = append(f.sinks, sink)
	return nil
}

func (f *fakeMedia) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
	return f.playErr
}

func (f *fakeMedia) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
}

func (f *fakeMedia) Seek(seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, seconds)
	return nil
}

func (f *fakeMedia) SetVolume(volume float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = volume
}

func (f *fakeMedia) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
}

func (f *fakeMedia) sink(i int) Sink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[i]
}

func newTestEngine(max float64) (*Engine, *fakeMedia) {
	media := &fakeMedia{}
	return New(Config{BaseURL: "http://server:8927/", Media: media, MaxDuration: max}), media
}

func TestProgress(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		max     float64
		want    float64
	}{
		{"half way", 10, 20, 50},
		{"zero max", 10, 0, 0},
		{"zero max zero time", 0, 0, 0},
		{"past the end", 30, 20, 100},
		{"negative time", -1, 20, 0},
		{"negative max", 5, -2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Progress(tt.current, tt.max); got != tt.want {
				t.Errorf("Progress(%v, %v) = %v, want %v", tt.current, tt.max, got, tt.want)
			}
		})
	}
}

func TestSourceURL(t *testing.T) {
	eng, media := newTestEngine(20)
	eng.LoadSong("abc/def")

	want := "http://server:8927/audio/abc%2Fdef"
	if media.srcs[0] != want {
		t.Errorf("expected %s, got %s", want, media.srcs[0])
	}
}

func TestReadyFiresOncePerLoad(t *testing.T) {
	eng, media := newTestEngine(20)
	var ready []string
	eng.SetOnReady(func(id string) { ready = append(ready, id) })

	eng.LoadSong("a")
	media.sink(0).Loaded()
	media.sink(0).Loaded()

	if len(ready) != 1 || ready[0] != "a" {
		t.Fatalf("expected one ready for a, got %v", ready)
	}
	if !eng.IsLoaded() {
		t.Error("expected engine to be loaded")
	}

	eng.LoadSong("b")
	if eng.IsLoaded() {
		t.Error("new load must reset readiness")
	}
	media.sink(1).Loaded()
	if len(ready) != 2 || ready[1] != "b" {
		t.Errorf("expected ready for b, got %v", ready)
	}
}

func TestClipEnforcement(t *testing.T) {
	eng, media := newTestEngine(20)
	ended := 0
	eng.SetOnEnded(func() { ended++ })

	eng.LoadSong("a")
	sink := media.sink(0)
	sink.Loaded()
	eng.Play()

	sink.TimeUpdate(19.9)
	if ended != 0 || !eng.IsPlaying() {
		t.Fatal("clip must keep playing below the max duration")
	}

	pausesBefore := media.pauses
	sink.TimeUpdate(20)
	if ended != 1 {
		t.Fatalf("expected completion at max duration, got %d", ended)
	}
	if eng.IsPlaying() {
		t.Error("engine should report paused after completion")
	}
	if media.pauses != pausesBefore+1 {
		t.Error("engine should force the media to pause")
	}

	sink.TimeUpdate(21)
	sink.Ended()
	if ended != 1 {
		t.Errorf("completion must fire once per load, got %d", ended)
	}

	eng.Play()
	if eng.IsPlaying() {
		t.Error("a completed clip must not restart")
	}
}

func TestNaturalEndFiresCompletion(t *testing.T) {
	eng, media := newTestEngine(60)
	ended := 0
	eng.SetOnEnded(func() { ended++ })

	eng.LoadSong("short")
	sink := media.sink(0)
	sink.Loaded()
	eng.Play()
	sink.TimeUpdate(12)
	sink.Ended()
	sink.Ended()

	if ended != 1 {
		t.Errorf("expected one completion, got %d", ended)
	}
	if got := eng.Progress(); got != 20 {
		t.Errorf("expected progress 20, got %v", got)
	}
}

func TestStaleEventsIgnored(t *testing.T) {
	eng, media := newTestEngine(20)
	var ready []string
	ended := 0
	eng.SetOnReady(func(id string) { ready = append(ready, id) })
	eng.SetOnEnded(func() { ended++ })

	eng.LoadSong("old")
	old := media.sink(0)
	eng.LoadSong("new")

	old.Loaded()
	old.TimeUpdate(25)
	old.Ended()
	old.Failed(errors.New("boom"))

	if len(ready) != 0 || ended != 0 {
		t.Errorf("stale events leaked: ready=%v ended=%d", ready, ended)
	}
	if eng.CurrentTime() != 0 {
		t.Errorf("stale time update changed current time to %v", eng.CurrentTime())
	}
	if eng.SongID() != "new" {
		t.Errorf("expected current song new, got %s", eng.SongID())
	}
}

func TestLatestHandlerIsUsed(t *testing.T) {
	eng, media := newTestEngine(20)
	first, second := 0, 0
	eng.SetOnEnded(func() { first++ })

	eng.LoadSong("a")
	eng.SetOnEnded(func() { second++ })
	media.sink(0).Ended()

	if first != 0 || second != 1 {
		t.Errorf("expected only the latest handler, got first=%d second=%d", first, second)
	}
}

func TestOptimisticPlayReverted(t *testing.T) {
	eng, media := newTestEngine(20)
	media.playErr = errors.New("autoplay blocked")
	var gotErr error
	eng.SetOnError(func(err error) { gotErr = err })

	eng.LoadSong("a")
	eng.Play()

	if eng.IsPlaying() {
		t.Error("failed play must revert isPlaying")
	}
	if gotErr == nil {
		t.Error("expected the play failure to be reported")
	}
}

func TestToggle(t *testing.T) {
	eng, media := newTestEngine(20)
	eng.LoadSong("a")

	eng.Toggle()
	if !eng.IsPlaying() || media.plays != 1 {
		t.Fatal("expected toggle to start playback")
	}
	eng.Toggle()
	if eng.IsPlaying() {
		t.Error("expected toggle to pause")
	}
}

func TestPlayWithoutSongIsNoop(t *testing.T) {
	eng, media := newTestEngine(20)
	eng.Play()
	if eng.IsPlaying() || media.plays != 0 {
		t.Error("play without a song must do nothing")
	}
}

func TestSeekAndVolume(t *testing.T) {
	eng, media := newTestEngine(20)
	eng.LoadSong("a")
	eng.Seek(-3)
	eng.Seek(7.5)
	eng.SetVolume(4)

	if len(media.seeks) != 2 || media.seeks[0] != 0 || media.seeks[1] != 7.5 {
		t.Errorf("unexpected seeks %v", media.seeks)
	}
	if eng.CurrentTime() != 7.5 {
		t.Errorf("expected current time 7.5, got %v", eng.CurrentTime())
	}
	if media.volume != 1 {
		t.Errorf("expected volume clamped to 1, got %v", media.volume)
	}
}

func TestCloseDetaches(t *testing.T) {
	eng, media := newTestEngine(20)
	ended := 0
	eng.SetOnEnded(func() { ended++ })

	eng.LoadSong("a")
	sink := media.sink(0)
	eng.Play()
	eng.Close()

	if eng.IsPlaying() {
		t.Error("close must pause")
	}
	if media.closes < 2 {
		t.Error("close must detach the media")
	}

	sink.Ended()
	eng.Play()
	eng.LoadSong("b")
	if ended != 0 || eng.IsPlaying() || len(media.srcs) != 1 {
		t.Error("closed engine must ignore events and commands")
	}
}
