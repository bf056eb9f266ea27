// ABOUTME: Audio playback engine driving one clip at a time
// ABOUTME: Package documentation for engine
// Package engine wraps a single playback backend and turns arbitrary length
// songs into fixed length clips.
//
// The engine exposes isPlaying, currentTime, isLoaded and progress, and
// fires OnReady once per load and OnEnded once per load, either when the
// clip reaches its maximum duration or when the file ends. Each LoadSong
// starts a new generation: events still arriving for an older source are
// dropped.
//
// Example:
//
//	eng := engine.New(engine.Config{
//	    BaseURL:     "http://localhost:8927",
//	    Media:       engine.NewDecodedMedia(engine.DecodedConfig{Output: output.NewOto()}),
//	    MaxDuration: 20,
//	})
//	eng.SetOnEnded(func() { machine.Dispatch(game.ClipEnded{}) })
//	eng.LoadSong(id)
package engine
