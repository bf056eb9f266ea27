// ABOUTME: Null audio output that discards samples
// ABOUTME: Paces writes in real time so headless clients keep correct positions
package output

import (
	"sync"
	"time"
)

// Null accepts samples without a device. With Pace set, Write sleeps for the
// duration the samples would take to play.
type Null struct {
	Pace bool

	mu         sync.Mutex
	sampleRate int
	channels   int
	volume     float64
	written    int64
}

// NewNull creates a paced null output
func NewNull() *Null {
	return &Null{Pace: true, volume: 1}
}

func (n *Null) Open(sampleRate, channels int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sampleRate == 0 {
		n.sampleRate = sampleRate
		n.channels = channels
	}
	return nil
}

func (n *Null) Write(samples []int32) error {
	n.mu.Lock()
	n.written += int64(len(samples))
	rate, channels := n.sampleRate, n.channels
	n.mu.Unlock()

	if n.Pace && rate > 0 && channels > 0 {
		frames := len(samples) / channels
		time.Sleep(time.Duration(frames) * time.Second / time.Duration(rate))
	}
	return nil
}

func (n *Null) SetVolume(volume float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.volume = clampVolume(volume)
}

func (n *Null) SampleRate() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sampleRate
}

func (n *Null) Channels() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.channels
}

// Written returns the total number of samples accepted
func (n *Null) Written() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.written
}

func (n *Null) Close() error { return nil }
