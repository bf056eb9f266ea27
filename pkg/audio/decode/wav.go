// ABOUTME: WAV file decoder
// ABOUTME: Wraps go-audio/wav; seeking reopens the decoder and skips forward
package decode

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/julienbrs/blindtest-sub003/pkg/audio"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

type wavStream struct {
	r        io.ReadSeeker
	decoder  *wav.Decoder
	format   audio.Format
	duration float64
	buf      *goaudio.IntBuffer
}

func newWAV(r io.ReadSeeker) (*wavStream, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("failed to decode WAV: invalid file")
	}

	duration, err := decoder.Duration()
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV duration: %w", err)
	}

	s := &wavStream{
		r: r,
		format: audio.Format{
			Codec:      song.FormatWAV,
			SampleRate: int(decoder.SampleRate),
			Channels:   int(decoder.NumChans),
			BitDepth:   int(decoder.BitDepth),
		},
		duration: duration.Seconds(),
	}
	if err := s.rewind(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *wavStream) rewind() error {
	if _, err := s.r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wav rewind failed: %w", err)
	}
	s.decoder = wav.NewDecoder(s.r)
	return nil
}

func (s *wavStream) Format() audio.Format { return s.format }

func (s *wavStream) Read(samples []int32) (int, error) {
	if s.buf == nil || cap(s.buf.Data) < len(samples) {
		s.buf = &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: s.format.Channels,
				SampleRate:  s.format.SampleRate,
			},
			Data:           make([]int, len(samples)),
			SourceBitDepth: s.format.BitDepth,
		}
	}
	s.buf.Data = s.buf.Data[:len(samples)]

	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("wav decode error: %w", err)
	}
	for i := 0; i < n; i++ {
		samples[i] = audio.ScaleTo24Bit(int32(s.buf.Data[i]), s.format.BitDepth)
	}
	if n == 0 || err != nil {
		return n, io.EOF
	}
	return n, nil
}

func (s *wavStream) Seek(seconds float64) error {
	if err := s.rewind(); err != nil {
		return err
	}
	if s.duration > 0 && seconds > s.duration {
		seconds = s.duration
	}
	return discard(s, s.format.Frames(seconds))
}

func (s *wavStream) Duration() float64 { return s.duration }

func (s *wavStream) Close() error { return nil }
