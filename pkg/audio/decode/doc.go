// ABOUTME: Seekable file decoders producing 24-bit range PCM
// ABOUTME: Package documentation for decode
// Package decode opens whole audio files (mp3, flac, wav, ogg opus) as
// seekable PCM streams with a known duration.
//
// The playback engine seeks into a clip and the library scanner only needs
// the duration, so every Stream supports both.
//
// Example:
//
//	stream, err := decode.OpenFile("song.flac")
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	stream.Seek(12.5)
//	n, err := stream.Read(samples)
package decode
