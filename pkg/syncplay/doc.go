// ABOUTME: Package documentation for the synchronized player
// ABOUTME: Aligns local clip playback to a shared round start time
/*
Package syncplay drives a playback engine from a shared "started at" instant.

Every client computes its own position as now - startedAt, clamped to the clip
length, so clients hear roughly the same point of the clip at the same
wall-clock instant without a server-side audio clock. Client clock skew shows
up as bounded drift and is accepted.

	p := syncplay.New(syncplay.Config{
		Engine:  eng,
		OnReady: func(id string) { client.Ready(round) },
		OnEnded: func() { ... },
	})
	p.Update(syncplay.Props{SongID: id, StartedAt: startedAt, IsPlaying: true, MaxDuration: 20})
*/
package syncplay
