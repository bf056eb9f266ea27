// ABOUTME: FLAC file decoder
// ABOUTME: Wraps mewkiz/flac, interleaving frames into 24-bit range samples
package decode

import (
	"fmt"
	"io"

	"github.com/julienbrs/blindtest-sub003/pkg/audio"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
	"github.com/mewkiz/flac"
)

type flacStream struct {
	stream  *flac.Stream
	format  audio.Format
	total   uint64
	pending []int32
}

func newFLAC(r io.ReadSeeker) (*flacStream, error) {
	stream, err := flac.NewSeek(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	return &flacStream{
		stream: stream,
		format: audio.Format{
			Codec:      song.FormatFLAC,
			SampleRate: int(info.SampleRate),
			Channels:   int(info.NChannels),
			BitDepth:   int(info.BitsPerSample),
		},
		total: info.NSamples,
	}, nil
}

func (s *flacStream) Format() audio.Format { return s.format }

func (s *flacStream) Read(samples []int32) (int, error) {
	read := 0
	for read < len(samples) {
		if len(s.pending) == 0 {
			frame, err := s.stream.ParseNext()
			if err != nil {
				return read, err
			}
			s.pending = s.pending[:0]
			for i := 0; i < int(frame.BlockSize); i++ {
				for ch := 0; ch < s.format.Channels; ch++ {
					sample := frame.Subframes[ch].Samples[i]
					s.pending = append(s.pending, audio.ScaleTo24Bit(sample, s.format.BitDepth))
				}
			}
		}

		n := copy(samples[read:], s.pending)
		s.pending = s.pending[n:]
		read += n
	}
	return read, nil
}

func (s *flacStream) Seek(seconds float64) error {
	target := uint64(s.format.Frames(seconds))
	if s.total > 0 && target >= s.total {
		target = s.total - 1
	}
	if _, err := s.stream.Seek(target); err != nil {
		return fmt.Errorf("flac seek failed: %w", err)
	}
	s.pending = nil
	return nil
}

func (s *flacStream) Duration() float64 {
	return s.format.Seconds(int64(s.total))
}

func (s *flacStream) Close() error {
	return s.stream.Close()
}
