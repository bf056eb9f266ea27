// ABOUTME: Audio output package for playing decoded clips
// ABOUTME: Provides the Output interface, an oto device backend and a null backend
// Package output writes PCM to an audio device.
//
// Oto keeps a single device context per process, so the device is opened
// once at a fixed rate and callers resample to it.
//
// Example:
//
//	out := output.NewOto()
//	err := out.Open(44100, 2)
//	err = out.Write(samples)
package output
