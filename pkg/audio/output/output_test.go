// ABOUTME: Audio output tests
// ABOUTME: Verifies interface conformance, volume scaling and the null backend
package output

import (
	"testing"

	"github.com/julienbrs/blindtest-sub003/pkg/audio"
)

func TestImplementsOutput(t *testing.T) {
	var _ Output = (*Oto)(nil)
	var _ Output = (*Null)(nil)
}

func TestApplyVolume(t *testing.T) {
	tests := []struct {
		name     string
		sample   int32
		volume   float64
		expected int32
	}{
		{"full volume untouched", 1000, 1, 1000},
		{"half volume", 1000, 0.5, 500},
		{"muted", 1000, 0, 0},
		{"negative sample", -1000, 0.5, -500},
		{"max stays in range", audio.Max24Bit, 0.99, int32(float64(audio.Max24Bit) * 0.99)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyVolume([]int32{tt.sample}, tt.volume)
			if got[0] != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got[0])
			}
		})
	}
}

func TestClampVolume(t *testing.T) {
	if clampVolume(-0.5) != 0 {
		t.Error("negative volume should clamp to 0")
	}
	if clampVolume(1.5) != 1 {
		t.Error("volume above 1 should clamp to 1")
	}
	if clampVolume(0.3) != 0.3 {
		t.Error("in-range volume should be unchanged")
	}
}

func TestNullKeepsFirstFormat(t *testing.T) {
	n := &Null{}
	if err := n.Open(44100, 2); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	n.Open(48000, 1)

	if n.SampleRate() != 44100 || n.Channels() != 2 {
		t.Errorf("expected 44100/2, got %d/%d", n.SampleRate(), n.Channels())
	}

	n.Write(make([]int32, 10))
	n.Write(make([]int32, 6))
	if n.Written() != 16 {
		t.Errorf("expected 16 samples written, got %d", n.Written())
	}
}
