// ABOUTME: Shared-timestamp clock utilities for synchronized playback
// ABOUTME: Package documentation for clock
// Package clock turns a shared round start timestamp into a local playback offset.
//
// There is no clock synchronization between clients: every client computes
// now - startedAt against its own wall clock and accepts the skew as noise.
// A few tens of milliseconds are invisible to a human buzzing in.
//
// Example:
//
//	start := clock.FromMillis(snapshot.StartedAt)
//	offset := clock.Offset(start, clock.Real.Now(), 20)
//	if offset >= 20 {
//	    // the clip is already over for this client
//	}
package clock
