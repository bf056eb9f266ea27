// ABOUTME: Sample rate and channel layout conversion
// ABOUTME: Package documentation for resample
// Package resample adapts decoded PCM to the format the output device was
// opened with: linear interpolation between rates and simple up/down mixing
// between channel counts.
//
// Example:
//
//	r := resample.New(44100, 48000, 2)
//	out := r.Process(resample.Remix(samples, 1, 2))
package resample
