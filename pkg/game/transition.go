// ABOUTME: Pure transition function of the solo state machine
// ABOUTME: Unlisted state and action pairs leave the state untouched
package game

// Transition computes the next state and the effects to perform.
// It never mutates s.
func Transition(s State, a Action) (State, []Effect) {
	next, effects, _ := step(s, a)
	return next, effects
}

// step is Transition plus whether the pair was handled
func step(s State, a Action) (State, []Effect, bool) {
	if _, ok := a.(Reset); ok {
		return reset(s)
	}

	switch s.Status {
	case StatusIdle, StatusEnded:
		if a, ok := a.(StartGame); ok {
			return startGame(s, a)
		}
	case StatusLoading:
		return loading(s, a)
	case StatusError:
		return failed(s, a)
	case StatusPlaying:
		return playing(s, a)
	case StatusBuzzed:
		if _, ok := a.(settle); ok {
			s.Status = StatusTimer
			return s, nil, true
		}
	case StatusTimer:
		return timer(s, a)
	case StatusReveal:
		return reveal(s, a)
	}
	return s, nil, false
}

func reset(s State) (State, []Effect, bool) {
	if s.Status == StatusIdle {
		return State{Status: StatusIdle}, nil, true
	}
	return State{Status: StatusIdle}, []Effect{CancelRequest{}, StopTimer{}, PauseAudio{}}, true
}

func startGame(s State, a StartGame) (State, []Effect, bool) {
	next := State{
		Status:  StatusLoading,
		Config:  a.Config.Normalize(),
		Request: s.Request + 1,
	}
	return next, []Effect{RequestSong{Request: next.Request}}, true
}

func loading(s State, a Action) (State, []Effect, bool) {
	switch a := a.(type) {
	case SongFetched:
		if a.Request != s.Request || s.Song != nil {
			break
		}
		fetched := a.Song
		s.Song = &fetched
		if a.LibrarySize > 0 {
			s.LibrarySize = a.LibrarySize
		}
		return s, []Effect{LoadAudio{ID: fetched.ID, MaxDuration: float64(s.Config.ClipDuration)}}, true

	case SongReady:
		if s.Song == nil || a.ID != s.Song.ID {
			break
		}
		s.Status = StatusPlaying
		return s, []Effect{PlayFrom{Position: 0}}, true

	case LoadFailed:
		if a.Request != s.Request {
			break
		}
		s.Status = StatusError
		s.Song = nil
		s.LoadErr = &LoadError{Err: a.Err, Retryable: a.Retryable}
		return s, []Effect{PauseAudio{}}, true

	case Exhausted:
		if a.Request != s.Request {
			break
		}
		s.Status = StatusEnded
		s.Song = nil
		s.EndReason = EndExhausted
		return s, nil, true
	}
	return s, nil, false
}

func failed(s State, a Action) (State, []Effect, bool) {
	switch a.(type) {
	case Retry:
		if s.LoadErr == nil || !s.LoadErr.Retryable {
			break
		}
		return request(s)
	case EndGame:
		s.Status = StatusEnded
		s.EndReason = EndQuit
		return s, nil, true
	}
	return s, nil, false
}

func playing(s State, a Action) (State, []Effect, bool) {
	switch a.(type) {
	case Buzz:
		s.Status = StatusBuzzed
		s.TimeLeft = s.Config.AnswerTime
		return s, []Effect{PauseAudio{}, StartTimer{Seconds: s.Config.AnswerTime}}, true
	case Reveal:
		s = revealed(s)
		return s, []Effect{PauseAudio{}, Judged{Outcome: OutcomeSkipped}}, true
	case ClipEnded:
		s = revealed(s)
		return s, []Effect{Judged{Outcome: OutcomeSkipped}}, true
	}
	return s, nil, false
}

func timer(s State, a Action) (State, []Effect, bool) {
	switch a := a.(type) {
	case TickTimer:
		s.TimeLeft--
		if s.TimeLeft > 0 {
			return s, nil, true
		}
		s.TimeLeft = 0
		return validate(s, false)
	case Validate:
		return validate(s, a.Correct)
	}
	return s, nil, false
}

func validate(s State, correct bool) (State, []Effect, bool) {
	outcome := OutcomeIncorrect
	if correct {
		s.Score++
		outcome = OutcomeCorrect
	}
	s = revealed(s)
	return s, []Effect{StopTimer{}, Judged{Outcome: outcome}}, true
}

func reveal(s State, a Action) (State, []Effect, bool) {
	switch a.(type) {
	case NextSong:
		if s.Exhausted() {
			s.Status = StatusEnded
			s.EndReason = EndExhausted
			return s, nil, true
		}
		s.Song = nil
		s.Revealed = false
		s.TimeLeft = 0
		return request(s)
	case EndGame:
		s.Status = StatusEnded
		s.EndReason = EndQuit
		return s, []Effect{PauseAudio{}}, true
	}
	return s, nil, false
}

// revealed moves to reveal and records the song as played
func revealed(s State) State {
	s.Status = StatusReveal
	s.Revealed = true
	if s.Song != nil && !s.HasPlayed(s.Song.ID) {
		played := make([]string, len(s.Played), len(s.Played)+1)
		copy(played, s.Played)
		s.Played = append(played, s.Song.ID)
	}
	s.SongsPlayed++
	return s
}

// request enters loading with a fresh request excluding every played song
func request(s State) (State, []Effect, bool) {
	s.Status = StatusLoading
	s.LoadErr = nil
	s.Request++
	exclude := make([]string, len(s.Played))
	copy(exclude, s.Played)
	return s, []Effect{RequestSong{Request: s.Request, Exclude: exclude}}, true
}
