// ABOUTME: Ogg Opus file decoder
// ABOUTME: Wraps the libopusfile stream reader; duration comes from the last Ogg page
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/julienbrs/blindtest-sub003/pkg/audio"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
	"gopkg.in/hraban/opus.v2"
)

const (
	// Opus always decodes at 48kHz; libopusfile downmixes to the file layout,
	// which is stereo for every music file we accept
	opusSampleRate = 48000
	opusChannels   = 2

	oggTailWindow = 64 * 1024
)

type opusStream struct {
	r        io.ReadSeeker
	stream   *opus.Stream
	format   audio.Format
	duration float64
	pcm      []int16
}

func newOpus(r io.ReadSeeker) (*opusStream, error) {
	duration, err := oggDuration(r, opusSampleRate)
	if err != nil {
		return nil, err
	}

	s := &opusStream{
		r: r,
		format: audio.Format{
			Codec:      song.FormatOpus,
			SampleRate: opusSampleRate,
			Channels:   opusChannels,
			BitDepth:   16,
		},
		duration: duration,
	}
	if err := s.reopen(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *opusStream) reopen() error {
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
	if _, err := s.r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("opus rewind failed: %w", err)
	}
	stream, err := opus.NewStream(s.r)
	if err != nil {
		return fmt.Errorf("failed to decode Opus: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *opusStream) Format() audio.Format { return s.format }

func (s *opusStream) Read(samples []int32) (int, error) {
	if cap(s.pcm) < len(samples) {
		s.pcm = make([]int16, len(samples))
	}
	pcm := s.pcm[:len(samples)]

	perChannel, err := s.stream.Read(pcm)
	n := perChannel * opusChannels
	if n > len(samples) {
		n = len(samples)
	}
	for i := 0; i < n; i++ {
		samples[i] = audio.SampleFromInt16(pcm[i])
	}
	return n, err
}

func (s *opusStream) Seek(seconds float64) error {
	if err := s.reopen(); err != nil {
		return err
	}
	if s.duration > 0 && seconds > s.duration {
		seconds = s.duration
	}
	return discard(s, s.format.Frames(seconds))
}

func (s *opusStream) Duration() float64 { return s.duration }

func (s *opusStream) Close() error {
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

// oggDuration reads the granule position of the last Ogg page
func oggDuration(r io.ReadSeeker, sampleRate int) (float64, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("ogg seek failed: %w", err)
	}

	start := size - oggTailWindow
	if start < 0 {
		start = 0
	}
	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return 0, fmt.Errorf("ogg seek failed: %w", err)
	}
	tail, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("ogg read failed: %w", err)
	}

	return granuleSeconds(tail, sampleRate), nil
}

// granuleSeconds finds the last "OggS" capture pattern in tail and converts
// its granule position to seconds. Returns 0 if no page is found.
func granuleSeconds(tail []byte, sampleRate int) float64 {
	idx := bytes.LastIndex(tail, []byte("OggS"))
	if idx < 0 || len(tail) < idx+14 || sampleRate <= 0 {
		return 0
	}
	granule := binary.LittleEndian.Uint64(tail[idx+6 : idx+14])
	if granule == ^uint64(0) {
		return 0
	}
	return float64(granule) / float64(sampleRate)
}
