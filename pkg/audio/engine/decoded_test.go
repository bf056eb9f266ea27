// ABOUTME: Tests for the HTTP decoded media backend
// ABOUTME: Serves generated WAV files from httptest and plays them into a null output
package engine

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/julienbrs/blindtest-sub003/pkg/audio/output"
)

type recordingSink struct {
	mu      sync.Mutex
	times   []float64
	loaded  chan struct{}
	ended   chan struct{}
	failed  chan error
	endOnce sync.Once
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		loaded: make(chan struct{}, 1),
		ended:  make(chan struct{}),
		failed: make(chan error, 1),
	}
}

func (s *recordingSink) Loaded() { s.loaded <- struct{}{} }

func (s *recordingSink) TimeUpdate(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times = append(s.times, seconds)
}

func (s *recordingSink) Ended() { s.endOnce.Do(func() { close(s.ended) }) }

func (s *recordingSink) Failed(err error) { s.failed <- err }

func (s *recordingSink) lastTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.times) == 0 {
		return -1
	}
	return s.times[len(s.times)-1]
}

func wavBytes(t *testing.T, sampleRate, seconds int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	data := make([]int, sampleRate*seconds)
	for i := range data {
		data[i] = i % 100
	}
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	enc.Close()
	f.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	return b
}

func audioServer(t *testing.T, contentType string, body []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/audio/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func newUnpacedMedia() *DecodedMedia {
	return NewDecodedMedia(DecodedConfig{
		Output:         &output.Null{},
		DeviceRate:     8000,
		DeviceChannels: 2,
		UpdateInterval: time.Nanosecond,
	})
}

func TestDecodedMediaPlaysToEnd(t *testing.T) {
	server := audioServer(t, "audio/wav", wavBytes(t, 8000, 2))
	media := newUnpacedMedia()
	defer media.Close()

	sink := newRecordingSink()
	if err := media.Open(server.URL+"/audio/x", sink); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	waitFor(t, sink.loaded, "load")

	if err := media.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	waitFor(t, sink.ended, "end")

	if got := sink.lastTime(); got < 1.99 || got > 2.01 {
		t.Errorf("expected final time ~2s, got %v", got)
	}
}

func TestDecodedMediaSeekBeforeLoad(t *testing.T) {
	server := audioServer(t, "audio/wav", wavBytes(t, 8000, 3))
	media := newUnpacedMedia()
	defer media.Close()

	sink := newRecordingSink()
	media.Open(server.URL+"/audio/x", sink)
	if err := media.Seek(2.5); err != nil {
		t.Fatalf("seek before load failed: %v", err)
	}
	media.Play()

	waitFor(t, sink.loaded, "load")
	waitFor(t, sink.ended, "end")

	sink.mu.Lock()
	first := sink.times[0]
	sink.mu.Unlock()
	if first < 2.5 {
		t.Errorf("playback should start after the pending seek, first update %v", first)
	}
}

func TestDecodedMediaUnsupportedType(t *testing.T) {
	server := audioServer(t, "text/html", []byte("<html>"))
	media := newUnpacedMedia()
	defer media.Close()

	sink := newRecordingSink()
	media.Open(server.URL+"/audio/x", sink)

	select {
	case err := <-sink.failed:
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("expected ErrUnsupported, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for failure")
	}
}

func TestDecodedMediaHTTPErrorIsTransient(t *testing.T) {
	server := audioServer(t, "audio/wav", nil)
	media := newUnpacedMedia()
	defer media.Close()

	sink := newRecordingSink()
	media.Open(server.URL+"/audio/missing", sink)

	select {
	case err := <-sink.failed:
		if errors.Is(err, ErrUnsupported) {
			t.Errorf("a 404 must not be reported as unsupported: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for failure")
	}
}

func TestEngineClipOverDecodedMedia(t *testing.T) {
	server := audioServer(t, "audio/wav", wavBytes(t, 8000, 2))

	ready := make(chan struct{}, 1)
	ended := make(chan struct{}, 4)
	eng := New(Config{
		BaseURL:     server.URL,
		Media:       newUnpacedMedia(),
		MaxDuration: 0.5,
		OnReady:     func(string) { ready <- struct{}{} },
		OnEnded:     func() { ended <- struct{}{} },
	})
	defer eng.Close()

	eng.LoadSong("clip")
	waitFor(t, ready, "ready")
	eng.Play()
	waitFor(t, ended, "clip end")

	// give a straggling pump iteration time to report
	time.Sleep(50 * time.Millisecond)
	if len(ended) != 0 {
		t.Error("completion fired more than once")
	}
	if eng.IsPlaying() {
		t.Error("engine should be paused after the clip")
	}
	if eng.Progress() != 100 {
		t.Errorf("expected progress 100, got %v", eng.Progress())
	}
}
