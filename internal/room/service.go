// ABOUTME: Room service implementing lobby and round operations over the Store
// ABOUTME: Every operation is one atomic update of the authoritative room record
package room

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/julienbrs/blindtest-sub003/pkg/clock"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

// Library picks round songs and resolves them at reveal
type Library interface {
	RandomSong(ctx context.Context, exclude []string) (song.Song, error)
	Get(id string) (song.Song, error)
}

// Recorder receives finished rounds. Failures are logged and ignored.
type Recorder interface {
	RecordRound(ctx context.Context, code string, rec RoundRecord) error
}

// Config holds service configuration
type Config struct {
	Store   Store
	Library Library
	History Recorder
	Clock   clock.Clock

	// ReadyTimeout starts a round even if some players never loaded the clip
	ReadyTimeout time.Duration
	// StartLead is added to the start instant so every client receives it in time
	StartLead time.Duration
}

// Service runs rooms
type Service struct {
	store        Store
	library      Library
	history      Recorder
	clock        clock.Clock
	readyTimeout time.Duration
	startLead    time.Duration
	timers       *timers

	ctx    context.Context
	cancel context.CancelFunc
}

const codeLetters = "ABCDEFGHJKLMNPQRSTUVWXYZ"

// NewService creates a room service, filling defaults
func NewService(config Config) *Service {
	if config.Clock == nil {
		config.Clock = clock.Real
	}
	if config.ReadyTimeout == 0 {
		config.ReadyTimeout = 10 * time.Second
	}
	if config.StartLead == 0 {
		config.StartLead = 1500 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:        config.Store,
		library:      config.Library,
		history:      config.History,
		clock:        config.Clock,
		readyTimeout: config.ReadyTimeout,
		startLead:    config.StartLead,
		timers:       newTimers(config.Clock),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Close stops every pending round timer
func (s *Service) Close() {
	s.cancel()
	s.timers.stopAll()
}

// PendingTimers returns the number of scheduled round timers
func (s *Service) PendingTimers() int {
	return s.timers.count()
}

// Get returns the room with code
func (s *Service) Get(ctx context.Context, code string) (Room, error) {
	return s.store.Get(ctx, normalizeCode(code))
}

func (s *Service) now() int64 {
	return clock.Millis(s.clock.Now())
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func newCode() string {
	var b strings.Builder
	for i := 0; i < 4; i++ {
		b.WriteByte(codeLetters[rand.IntN(len(codeLetters))])
	}
	return b.String()
}

// commit runs fn atomically and reconciles the round timers with the result
func (s *Service) commit(ctx context.Context, code string, fn UpdateFunc) (Room, error) {
	stamped := func(r *Room) error {
		if err := fn(r); err != nil {
			return err
		}
		r.UpdatedAt = s.now()
		return nil
	}
	r, err := s.store.Update(ctx, normalizeCode(code), stamped)
	if err != nil {
		return Room{}, err
	}
	s.reconcile(r)
	return r, nil
}

// Create opens a room with its creator as host
func (s *Service) Create(ctx context.Context, nickname, avatar string, settings song.GameConfig) (Room, Player, error) {
	nickname, avatar, err := validIdentity(nickname, avatar)
	if err != nil {
		return Room{}, Player{}, err
	}
	settings = settings.Normalize()
	if err := settings.Validate(); err != nil {
		return Room{}, Player{}, err
	}

	now := s.now()
	host := Player{ID: uuid.NewString(), Nickname: nickname, Avatar: avatar, Online: true, JoinedAt: now}

	for attempt := 0; attempt < 20; attempt++ {
		r := Room{
			Code:      newCode(),
			Status:    StatusWaiting,
			Settings:  settings,
			HostID:    host.ID,
			Players:   []Player{host},
			History:   []RoundRecord{},
			Played:    []string{},
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err := s.store.Create(ctx, r)
		if errors.Is(err, ErrRoomExists) {
			continue
		}
		if err != nil {
			return Room{}, Player{}, err
		}
		log.Printf("Room %s created by %s", r.Code, nickname)
		return r, host, nil
	}
	return Room{}, Player{}, ErrRoomExists
}

// AvatarAvailable is the selection-time avatar check. Join checks again.
func (s *Service) AvatarAvailable(ctx context.Context, code, avatar string) (bool, error) {
	r, err := s.store.Get(ctx, normalizeCode(code))
	if err != nil {
		return false, err
	}
	return !r.AvatarTaken(strings.TrimSpace(avatar)), nil
}

// Join adds a new player to a waiting room
func (s *Service) Join(ctx context.Context, code, nickname, avatar string) (Room, Player, error) {
	nickname, avatar, err := validIdentity(nickname, avatar)
	if err != nil {
		return Room{}, Player{}, err
	}
	p := Player{ID: uuid.NewString(), Nickname: nickname, Avatar: avatar, Online: true}

	r, err := s.commit(ctx, code, func(r *Room) error {
		if r.Status != StatusWaiting {
			return ErrGameStarted
		}
		if len(r.Players) >= r.Settings.MaxPlayers {
			return ErrRoomFull
		}
		if r.AvatarTaken(avatar) {
			return ErrAvatarTaken
		}
		p.JoinedAt = s.now()
		r.Players = append(r.Players, p)
		return nil
	})
	if err != nil {
		return Room{}, Player{}, err
	}
	log.Printf("Room %s: %s joined", r.Code, nickname)
	return r, p, nil
}

// Rejoin brings a known player back online. Nothing else about the room changes.
func (s *Service) Rejoin(ctx context.Context, code, playerID string) (Room, error) {
	return s.commit(ctx, code, func(r *Room) error {
		p, ok := r.Player(playerID)
		if !ok {
			return ErrPlayerNotFound
		}
		if p.Online {
			return ErrUnchanged
		}
		p.Online = true
		r.migrateHost()
		return nil
	})
}

// Disconnect marks a player offline and hands the host role on if needed
func (s *Service) Disconnect(ctx context.Context, code, playerID string) (Room, error) {
	return s.commit(ctx, code, func(r *Room) error {
		p, ok := r.Player(playerID)
		if !ok || !p.Online {
			return ErrUnchanged
		}
		p.Online = false
		r.migrateHost()
		s.startIfReady(r)
		return nil
	})
}

// Leave removes a player for good. An empty room is deleted.
func (s *Service) Leave(ctx context.Context, code, playerID string) (Room, error) {
	r, err := s.commit(ctx, code, func(r *Room) error {
		if !r.removePlayer(playerID) {
			return ErrUnchanged
		}
		r.migrateHost()
		s.startIfReady(r)
		return nil
	})
	if err != nil {
		return Room{}, err
	}
	if len(r.Players) == 0 {
		if err := s.store.Delete(ctx, r.Code); err != nil {
			log.Printf("Room %s: failed to delete empty room: %v", r.Code, err)
		}
		s.timers.forget(r.Code)
		log.Printf("Room %s closed", r.Code)
	}
	return r, nil
}

// Kick removes a non-host player. Kicking someone already gone succeeds.
func (s *Service) Kick(ctx context.Context, code, hostID, targetID string) (Room, error) {
	return s.commit(ctx, code, func(r *Room) error {
		if !r.IsHost(hostID) {
			return ErrNotHost
		}
		if targetID == hostID {
			return ErrCannotKickSelf
		}
		if !r.removePlayer(targetID) {
			return ErrUnchanged
		}
		s.startIfReady(r)
		return nil
	})
}

// UpdateSettings replaces the whole settings record. The last write wins.
func (s *Service) UpdateSettings(ctx context.Context, code, playerID string, settings song.GameConfig) (Room, error) {
	settings = settings.Normalize()
	if err := settings.Validate(); err != nil {
		return Room{}, err
	}
	return s.commit(ctx, code, func(r *Room) error {
		if !r.IsHost(playerID) {
			return ErrNotHost
		}
		if r.Status != StatusWaiting {
			return ErrGameStarted
		}
		if settings.MaxPlayers < len(r.Players) {
			return fmt.Errorf("%w: %d players already joined", ErrInvalidSettings, len(r.Players))
		}
		r.Settings = settings
		return nil
	})
}

// Start begins round 1. An ended room starts over with fresh scores.
func (s *Service) Start(ctx context.Context, code, playerID string) (Room, error) {
	return s.commit(ctx, code, func(r *Room) error {
		if !r.IsHost(playerID) {
			return ErrNotHost
		}
		switch r.Status {
		case StatusPlaying:
			return ErrGameStarted
		case StatusEnded:
			for i := range r.Players {
				r.Players[i].Score = 0
			}
			r.History = []RoundRecord{}
			r.Played = []string{}
		}
		return s.startRound(ctx, r, 1)
	})
}

// MarkReady records that a player buffered the clip of round
func (s *Service) MarkReady(ctx context.Context, code, playerID string, round int) (Room, error) {
	return s.commit(ctx, code, func(r *Room) error {
		if _, ok := r.Player(playerID); !ok {
			return ErrPlayerNotFound
		}
		if r.Round == nil || r.Round.Number != round {
			return ErrStaleRound
		}
		if r.Round.Phase != PhaseLoading || r.Round.isReady(playerID) {
			return ErrUnchanged
		}
		r.Round.Ready = append(r.Round.Ready, playerID)
		s.startIfReady(r)
		return nil
	})
}

// Buzz claims the current round. The first recorded buzz wins.
func (s *Service) Buzz(ctx context.Context, code, playerID string, round int) (Room, error) {
	return s.commit(ctx, code, func(r *Room) error {
		if _, ok := r.Player(playerID); !ok {
			return ErrPlayerNotFound
		}
		if r.Round == nil || r.Round.Number != round {
			return ErrStaleRound
		}
		now := s.now()
		switch r.Round.Phase {
		case PhaseLoading:
			return ErrRoundNotStarted
		case PhaseBuzzed:
			return ErrAlreadyBuzzed
		case PhaseReveal:
			if r.Round.BuzzedBy != "" {
				return ErrAlreadyBuzzed
			}
			return ErrStaleRound
		}
		if now < r.Round.StartedAt {
			return ErrRoundNotStarted
		}
		r.Round.Phase = PhaseBuzzed
		r.Round.BuzzedBy = playerID
		r.Round.BuzzLatencyMs = now - r.Round.StartedAt
		r.Round.AnswerDeadline = now + int64(r.Settings.AnswerTime)*1000
		return nil
	})
}

// Validate is the host's verdict on the buzzer's answer
func (s *Service) Validate(ctx context.Context, code, judgeID string, round int, correct bool) (Room, error) {
	return s.judge(ctx, code, round, correct, func(r *Room) error {
		if !r.IsHost(judgeID) {
			return ErrNotHost
		}
		return nil
	})
}

// Reveal ends the current round without a buzz
func (s *Service) Reveal(ctx context.Context, code, playerID string, round int) (Room, error) {
	return s.reveal(ctx, code, round, func(r *Room) error {
		if !r.IsHost(playerID) {
			return ErrNotHost
		}
		return nil
	})
}

// Next moves from a revealed round to the following one, or ends the game
func (s *Service) Next(ctx context.Context, code, playerID string) (Room, error) {
	return s.commit(ctx, code, func(r *Room) error {
		if !r.IsHost(playerID) {
			return ErrNotHost
		}
		if r.Status != StatusPlaying || r.Round == nil || r.Round.Phase != PhaseReveal {
			return ErrInvalidPhase
		}
		if r.Settings.Rounds > 0 && r.Round.Number >= r.Settings.Rounds {
			r.Status = StatusEnded
			r.Round = nil
			return nil
		}
		return s.startRound(ctx, r, r.Round.Number+1)
	})
}

// End finishes the game early
func (s *Service) End(ctx context.Context, code, playerID string) (Room, error) {
	return s.commit(ctx, code, func(r *Room) error {
		if !r.IsHost(playerID) {
			return ErrNotHost
		}
		if r.Status == StatusEnded {
			return ErrUnchanged
		}
		r.Status = StatusEnded
		r.Round = nil
		return nil
	})
}

func (s *Service) judge(ctx context.Context, code string, round int, correct bool, allow UpdateFunc) (Room, error) {
	var rec *RoundRecord
	r, err := s.commit(ctx, code, func(r *Room) error {
		rec = nil
		if err := allow(r); err != nil {
			return err
		}
		if r.Round == nil || r.Round.Number != round {
			return ErrStaleRound
		}
		if r.Round.Phase != PhaseBuzzed {
			return ErrNoBuzz
		}
		if correct {
			if p, ok := r.Player(r.Round.BuzzedBy); ok {
				p.Score++
			}
		}
		rec = s.finishRound(r, &correct)
		return nil
	})
	if err != nil {
		return Room{}, err
	}
	s.record(r.Code, rec)
	return r, nil
}

func (s *Service) reveal(ctx context.Context, code string, round int, allow UpdateFunc) (Room, error) {
	var rec *RoundRecord
	r, err := s.commit(ctx, code, func(r *Room) error {
		rec = nil
		if err := allow(r); err != nil {
			return err
		}
		if r.Round == nil || r.Round.Number != round {
			return ErrStaleRound
		}
		switch r.Round.Phase {
		case PhaseReveal:
			return ErrUnchanged
		case PhaseBuzzed:
			return ErrInvalidPhase
		}
		rec = s.finishRound(r, nil)
		return nil
	})
	if err != nil {
		return Room{}, err
	}
	s.record(r.Code, rec)
	return r, nil
}

// startRound picks a song outside the played set. An exhausted library ends the game.
func (s *Service) startRound(ctx context.Context, r *Room, number int) error {
	picked, err := s.library.RandomSong(ctx, r.Played)
	if errors.Is(err, song.ErrNoSongs) {
		r.Status = StatusEnded
		r.Round = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to pick a song: %w", err)
	}
	r.Status = StatusPlaying
	r.Round = &Round{
		Number: number,
		SongID: picked.ID,
		Phase:  PhaseLoading,
		Ready:  []string{},
	}
	return nil
}

// startIfReady schedules the clip once every online player is ready
func (s *Service) startIfReady(r *Room) {
	if r.Round != nil && r.Round.Phase == PhaseLoading && r.allReady() {
		s.startClip(r)
	}
}

func (s *Service) startClip(r *Room) {
	r.Round.Phase = PhasePlaying
	r.Round.StartedAt = clock.Millis(s.clock.Now().Add(s.startLead))
}

// finishRound reveals the round song and appends it to the history
func (s *Service) finishRound(r *Room, correct *bool) *RoundRecord {
	round := r.Round
	round.Phase = PhaseReveal
	round.Correct = correct

	revealed, err := s.library.Get(round.SongID)
	if err != nil {
		revealed = song.Song{ID: round.SongID}
	}
	round.Song = &revealed

	rec := RoundRecord{
		Round:     round.Number,
		SongID:    revealed.ID,
		Title:     revealed.Title,
		Artist:    revealed.Artist,
		BuzzedBy:  round.BuzzedBy,
		LatencyMs: round.BuzzLatencyMs,
		Correct:   correct != nil && *correct,
	}
	if p, ok := r.Player(round.BuzzedBy); ok {
		rec.BuzzerName = p.Nickname
	}
	r.History = append(r.History, rec)
	r.Played = append(r.Played, round.SongID)
	return &rec
}

func (s *Service) record(code string, rec *RoundRecord) {
	if rec == nil || s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.history.RecordRound(ctx, code, *rec); err != nil {
		log.Printf("Room %s: failed to record round %d: %v", code, rec.Round, err)
	}
}

// reconcile makes the pending timers match the committed room
func (s *Service) reconcile(r Room) {
	if !s.timers.observe(r.Code, r.Version) {
		return
	}
	if r.Status != StatusPlaying || r.Round == nil {
		s.timers.cancelRoom(r.Code, -1)
		return
	}

	round := r.Round
	s.timers.cancelRoom(r.Code, round.Number)
	key := func(kind timerKind) timerKey {
		return timerKey{code: r.Code, round: round.Number, kind: kind}
	}
	code, number := r.Code, round.Number
	now := s.clock.Now()

	switch round.Phase {
	case PhaseLoading:
		s.timers.ensure(key(timerReady), s.readyTimeout, func() { s.readyTimedOut(code, number) })
	case PhasePlaying:
		s.timers.cancel(key(timerReady))
		end := clock.FromMillis(round.StartedAt).Add(time.Duration(r.Settings.ClipDuration) * time.Second)
		s.timers.ensure(key(timerClip), end.Sub(now), func() { s.clipEnded(code, number) })
	case PhaseBuzzed:
		s.timers.cancel(key(timerReady))
		s.timers.cancel(key(timerClip))
		deadline := clock.FromMillis(round.AnswerDeadline)
		s.timers.ensure(key(timerAnswer), deadline.Sub(now), func() { s.answerTimedOut(code, number) })
	case PhaseReveal:
		s.timers.cancelRoom(r.Code, -1)
	}
}

func (s *Service) readyTimedOut(code string, round int) {
	_, err := s.commit(s.ctx, code, func(r *Room) error {
		if r.Round == nil || r.Round.Number != round || r.Round.Phase != PhaseLoading {
			return ErrUnchanged
		}
		log.Printf("Room %s: round %d starting without %d unready players", code, round, len(r.Online())-len(r.Round.Ready))
		s.startClip(r)
		return nil
	})
	s.logTimerError(code, timerReady, err)
}

func (s *Service) clipEnded(code string, round int) {
	_, err := s.reveal(s.ctx, code, round, func(r *Room) error {
		if r.Round != nil && r.Round.Number == round && r.Round.Phase != PhasePlaying {
			return ErrUnchanged
		}
		return nil
	})
	s.logTimerError(code, timerClip, err)
}

func (s *Service) answerTimedOut(code string, round int) {
	_, err := s.judge(s.ctx, code, round, false, func(*Room) error { return nil })
	s.logTimerError(code, timerAnswer, err)
}

func (s *Service) logTimerError(code string, kind timerKind, err error) {
	if err == nil || errors.Is(err, ErrStaleRound) || errors.Is(err, ErrNoBuzz) ||
		errors.Is(err, ErrRoomNotFound) || errors.Is(err, context.Canceled) {
		return
	}
	log.Printf("Room %s: %s timer failed: %v", code, kind, err)
}

func validIdentity(nickname, avatar string) (string, string, error) {
	nickname = strings.TrimSpace(nickname)
	avatar = strings.TrimSpace(avatar)
	if nickname == "" {
		return "", "", ErrInvalidNickname
	}
	if avatar == "" {
		return "", "", ErrInvalidAvatar
	}
	return nickname, avatar, nil
}
