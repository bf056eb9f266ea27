// ABOUTME: Media backend that downloads, decodes and plays a song over HTTP
// ABOUTME: Buffers the whole file, then pumps resampled PCM into an output device
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/julienbrs/blindtest-sub003/pkg/audio/decode"
	"github.com/julienbrs/blindtest-sub003/pkg/audio/output"
	"github.com/julienbrs/blindtest-sub003/pkg/audio/resample"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

// ErrNotLoaded is returned by Seek before the source finished buffering
var ErrNotLoaded = errors.New("source not loaded")

// DecodedConfig holds DecodedMedia configuration
type DecodedConfig struct {
	Client         *http.Client
	Output         output.Output
	DeviceRate     int
	DeviceChannels int
	UpdateInterval time.Duration
	ChunkFrames    int
}

// DecodedMedia renders songs fetched from the audio endpoint
type DecodedMedia struct {
	config DecodedConfig

	mu          sync.Mutex
	session     uint64
	sink        Sink
	cancelLoad  context.CancelFunc
	wantPlay    bool
	pendingSeek float64
	stop        chan struct{} // closed to stop the running pump, nil when idle

	// streamMu guards the decoder, the resampler and the position
	streamMu  sync.Mutex
	stream    decode.Stream
	resampler *resample.Resampler
	position  int64 // source frames handed to the output
}

// NewDecodedMedia creates the HTTP backed media, filling defaults
func NewDecodedMedia(config DecodedConfig) *DecodedMedia {
	if config.Client == nil {
		config.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if config.Output == nil {
		config.Output = output.NewNull()
	}
	if config.DeviceRate == 0 {
		config.DeviceRate = 44100
	}
	if config.DeviceChannels == 0 {
		config.DeviceChannels = 2
	}
	if config.UpdateInterval == 0 {
		config.UpdateInterval = 250 * time.Millisecond
	}
	if config.ChunkFrames == 0 {
		config.ChunkFrames = 2048
	}
	return &DecodedMedia{config: config}
}

// Open starts downloading src in the background
func (m *DecodedMedia) Open(src string, sink Sink) error {
	m.Close()

	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.session++
	session := m.session
	m.sink = sink
	m.cancelLoad = cancel
	m.wantPlay = false
	m.pendingSeek = 0
	m.mu.Unlock()

	go m.load(ctx, session, src, sink)
	return nil
}

func (m *DecodedMedia) load(ctx context.Context, session uint64, src string, sink Sink) {
	stream, err := m.fetch(ctx, src)
	if err != nil {
		if ctx.Err() == nil {
			sink.Failed(err)
		}
		return
	}

	out := m.config.Output
	if err := out.Open(m.config.DeviceRate, m.config.DeviceChannels); err != nil {
		stream.Close()
		sink.Failed(fmt.Errorf("%w: audio output unavailable: %v", ErrUnsupported, err))
		return
	}

	m.mu.Lock()
	if m.session != session {
		m.mu.Unlock()
		stream.Close()
		return
	}
	format := stream.Format()
	m.streamMu.Lock()
	m.stream = stream
	m.resampler = resample.New(format.SampleRate, out.SampleRate(), out.Channels())
	m.position = 0
	if m.pendingSeek > 0 {
		if err := stream.Seek(m.pendingSeek); err == nil {
			m.position = format.Frames(m.pendingSeek)
		}
	}
	m.streamMu.Unlock()
	play := m.wantPlay
	m.mu.Unlock()

	log.Printf("Loaded %s: %s %dHz %dch, %.1fs", src, format.Codec, format.SampleRate, format.Channels, stream.Duration())

	sink.Loaded()
	if play {
		m.Play()
	}
}

func (m *DecodedMedia) fetch(ctx context.Context, src string) (decode.Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid source %q: %w", src, err)
	}

	resp, err := m.config.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audio fetch failed: HTTP %d", resp.StatusCode)
	}

	format := song.FormatFromContentType(resp.Header.Get("Content-Type"))
	if format == "" {
		return nil, fmt.Errorf("%w: content type %q", ErrUnsupported, resp.Header.Get("Content-Type"))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	stream, err := decode.Open(bytes.NewReader(data), format)
	if err != nil {
		if errors.Is(err, decode.ErrUnsupportedFormat) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return stream, nil
}

// Play starts the pump, or remembers to once loading completes
func (m *DecodedMedia) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sink == nil {
		return ErrNotLoaded
	}
	m.wantPlay = true

	m.streamMu.Lock()
	loaded := m.stream != nil
	m.streamMu.Unlock()

	if !loaded || m.stop != nil {
		return nil
	}

	m.stop = make(chan struct{})
	go m.pump(m.stop, m.sink)
	return nil
}

// Pause stops the pump without waiting for it
func (m *DecodedMedia) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wantPlay = false
	m.stopPumpLocked()
}

// Seek moves the decoder; a running pump restarts from the new position
func (m *DecodedMedia) Seek(seconds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.streamMu.Lock()
	stream := m.stream
	m.streamMu.Unlock()

	if stream == nil {
		if m.sink == nil {
			return ErrNotLoaded
		}
		m.pendingSeek = seconds
		return nil
	}

	wasPlaying := m.stop != nil
	m.stopPumpLocked()

	m.streamMu.Lock()
	err := stream.Seek(seconds)
	if err == nil {
		m.position = stream.Format().Frames(seconds)
		m.resampler.Reset()
	}
	m.streamMu.Unlock()
	if err != nil {
		return err
	}

	if wasPlaying {
		m.stop = make(chan struct{})
		go m.pump(m.stop, m.sink)
	}
	return nil
}

// SetVolume forwards to the output device
func (m *DecodedMedia) SetVolume(volume float64) {
	m.config.Output.SetVolume(volume)
}

// Close cancels loading, stops playback and releases the decoder
func (m *DecodedMedia) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session++
	if m.cancelLoad != nil {
		m.cancelLoad()
		m.cancelLoad = nil
	}
	m.stopPumpLocked()
	m.sink = nil
	m.wantPlay = false

	m.streamMu.Lock()
	if m.stream != nil {
		m.stream.Close()
		m.stream = nil
	}
	m.resampler = nil
	m.position = 0
	m.streamMu.Unlock()
}

func (m *DecodedMedia) stopPumpLocked() {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

func stopped(stop chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// pump decodes chunks and writes them to the output until stopped or EOF.
// Events are emitted only while this pump is still the current one.
func (m *DecodedMedia) pump(stop chan struct{}, sink Sink) {
	out := m.config.Output
	lastUpdate := time.Now()

	for {
		m.streamMu.Lock()
		if stopped(stop) || m.stream == nil {
			m.streamMu.Unlock()
			return
		}
		format := m.stream.Format()
		buf := make([]int32, m.config.ChunkFrames*format.Channels)
		n, err := m.stream.Read(buf)
		var pcm []int32
		if n > 0 {
			pcm = resample.Remix(buf[:n], format.Channels, out.Channels())
			pcm = m.resampler.Process(pcm)
			m.position += int64(n / format.Channels)
		}
		seconds := format.Seconds(m.position)
		m.streamMu.Unlock()

		if len(pcm) > 0 {
			if werr := out.Write(pcm); werr != nil {
				if !stopped(stop) {
					sink.Failed(fmt.Errorf("audio output failed: %w", werr))
				}
				return
			}
		}

		if stopped(stop) {
			return
		}

		if err == io.EOF {
			sink.TimeUpdate(seconds)
			sink.Ended()
			m.finishPump(stop)
			return
		}
		if err != nil {
			sink.Failed(fmt.Errorf("audio decode failed: %w", err))
			m.finishPump(stop)
			return
		}

		if time.Since(lastUpdate) >= m.config.UpdateInterval {
			lastUpdate = time.Now()
			sink.TimeUpdate(seconds)
		}
	}
}

// finishPump clears the pump slot if stop still belongs to the current pump
func (m *DecodedMedia) finishPump(stop chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop == stop {
		m.stop = nil
		m.wantPlay = false
	}
}
