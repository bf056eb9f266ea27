// ABOUTME: Audio fundamentals shared by decoders, output and the playback engine
// ABOUTME: Package documentation for audio
// Package audio defines the PCM format description and sample conversions
// used between the file decoders and the output device.
//
// Samples travel as interleaved int32 values in 24-bit range, whatever the
// source bit depth, and are narrowed to 16-bit only at the device.
//
// Example:
//
//	format := audio.Format{Codec: "flac", SampleRate: 44100, Channels: 2, BitDepth: 16}
//	seconds := format.Seconds(framesPlayed)
package audio
