// ABOUTME: MP3 file decoder
// ABOUTME: Wraps go-mp3 with byte-accurate seeking
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/julienbrs/blindtest-sub003/pkg/audio"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

// go-mp3 always produces 16-bit stereo
const mp3BytesPerFrame = 4

type mp3Stream struct {
	decoder *mp3.Decoder
	format  audio.Format
	frames  int64 // -1 when unknown
	buf     []byte
}

func newMP3(r io.ReadSeeker) (*mp3Stream, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	frames := int64(-1)
	if length := decoder.Length(); length >= 0 {
		frames = length / mp3BytesPerFrame
	}

	return &mp3Stream{
		decoder: decoder,
		format: audio.Format{
			Codec:      song.FormatMP3,
			SampleRate: decoder.SampleRate(),
			Channels:   2,
			BitDepth:   16,
		},
		frames: frames,
	}, nil
}

func (s *mp3Stream) Format() audio.Format { return s.format }

func (s *mp3Stream) Read(samples []int32) (int, error) {
	numBytes := len(samples) * 2
	if cap(s.buf) < numBytes {
		s.buf = make([]byte, numBytes)
	}
	buf := s.buf[:numBytes]

	n, err := s.decoder.Read(buf)
	numSamples := n / 2
	for i := 0; i < numSamples; i++ {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(buf[i*2:])))
	}
	return numSamples, err
}

func (s *mp3Stream) Seek(seconds float64) error {
	frame := s.format.Frames(seconds)
	if s.frames >= 0 && frame > s.frames {
		frame = s.frames
	}
	if _, err := s.decoder.Seek(frame*mp3BytesPerFrame, io.SeekStart); err != nil {
		return fmt.Errorf("mp3 seek failed: %w", err)
	}
	return nil
}

func (s *mp3Stream) Duration() float64 {
	if s.frames < 0 {
		return 0
	}
	return s.format.Seconds(s.frames)
}

func (s *mp3Stream) Close() error { return nil }
