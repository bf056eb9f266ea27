// ABOUTME: Tests for audio types
// ABOUTME: Tests sample conversion and frame arithmetic
package audio

import "testing"

func TestSampleFromInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    int16
		expected int32
	}{
		{"zero", 0, 0},
		{"positive", 100, 100 << 8},
		{"negative", -100, -100 << 8},
		{"max", 32767, 32767 << 8},
		{"min", -32768, -32768 << 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleFromInt16(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestScaleTo24Bit(t *testing.T) {
	tests := []struct {
		name     string
		sample   int32
		bitDepth int
		expected int32
	}{
		{"16-bit", 100, 16, 100 << 8},
		{"8-bit", 1, 8, 1 << 16},
		{"24-bit untouched", 0x123456, 24, 0x123456},
		{"32-bit narrowed", 1 << 20, 32, 1 << 12},
		{"unknown depth untouched", 42, 0, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScaleTo24Bit(tt.sample, tt.bitDepth); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestRoundTrip16Bit(t *testing.T) {
	samples := []int16{0, 100, -100, 1000, -1000, 32767, -32768}

	for _, original := range samples {
		sample32 := SampleFromInt16(original)
		result := SampleToInt16(sample32)
		if result != original {
			t.Errorf("round-trip failed: %d -> %d -> %d", original, sample32, result)
		}
	}
}

func TestFormatSecondsAndFrames(t *testing.T) {
	f := Format{SampleRate: 44100, Channels: 2}

	if got := f.Seconds(88200); got != 2 {
		t.Errorf("expected 2s, got %v", got)
	}
	if got := f.Frames(1.5); got != 66150 {
		t.Errorf("expected 66150 frames, got %d", got)
	}
	if got := f.Frames(-1); got != 0 {
		t.Errorf("expected negative seconds to give 0 frames, got %d", got)
	}
	if got := (Format{}).Seconds(100); got != 0 {
		t.Errorf("expected 0 for unknown rate, got %v", got)
	}
}
