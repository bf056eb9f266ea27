// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for audio playback backends
package output

// Output represents an audio output device
type Output interface {
	// Open initializes the output device. Reopening with another format keeps
	// the first one; check SampleRate and Channels afterwards.
	Open(sampleRate, channels int) error

	// Write outputs interleaved 24-bit range samples, blocking at playback pace
	Write(samples []int32) error

	// SetVolume sets the gain in [0, 1]
	SetVolume(volume float64)

	// SampleRate and Channels report the opened device format
	SampleRate() int
	Channels() int

	// Close releases output resources
	Close() error
}
