// ABOUTME: Best-effort round history persisted with gorm
// ABOUTME: sqlite by default, postgres when the DSN is a postgres URL
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/julienbrs/blindtest-sub003/internal/room"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultDBFile is used when no DSN is configured
const DefaultDBFile = "blindtest.sqlite3"

// Round is one finished round of a room
type Round struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	RoomCode   string `gorm:"type:varchar(8);index:idx_round_room"`
	Number     int
	SongID     string `gorm:"type:varchar(64);index:idx_round_song"`
	Title      string
	Artist     string
	BuzzedBy   string `gorm:"type:varchar(36)"`
	BuzzerName string
	LatencyMs  int64
	Correct    bool
	CreatedAt  time.Time
}

// Store writes and reads round history
type Store struct {
	DB *gorm.DB
}

// Open connects to dsn and migrates the schema
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDBFile
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true})
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating db dir: %w", err)
			}
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Round{}); err != nil {
		return nil, fmt.Errorf("migrating history: %w", err)
	}

	return &Store{DB: db}, nil
}

// RecordRound stores a finished round
func (s *Store) RecordRound(ctx context.Context, code string, rec room.RoundRecord) error {
	row := Round{
		RoomCode:   code,
		Number:     rec.Round,
		SongID:     rec.SongID,
		Title:      rec.Title,
		Artist:     rec.Artist,
		BuzzedBy:   rec.BuzzedBy,
		BuzzerName: rec.BuzzerName,
		LatencyMs:  rec.LatencyMs,
		Correct:    rec.Correct,
	}
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("recording round: %w", err)
	}
	return nil
}

// Rounds returns the recorded rounds of a room, oldest first
func (s *Store) Rounds(ctx context.Context, code string) ([]room.RoundRecord, error) {
	var rows []Round
	err := s.DB.WithContext(ctx).
		Where("room_code = ?", code).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing rounds: %w", err)
	}

	out := make([]room.RoundRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, room.RoundRecord{
			Round:      r.Number,
			SongID:     r.SongID,
			Title:      r.Title,
			Artist:     r.Artist,
			BuzzedBy:   r.BuzzedBy,
			BuzzerName: r.BuzzerName,
			LatencyMs:  r.LatencyMs,
			Correct:    r.Correct,
		})
	}
	return out, nil
}

// SongStats counts how often a song was played and found
type SongStats struct {
	SongID string `json:"song_id"`
	Played int64  `json:"played"`
	Found  int64  `json:"found"`
}

// Stats returns per-song play and success counts, most played first
func (s *Store) Stats(ctx context.Context, limit int) ([]SongStats, error) {
	var stats []SongStats
	q := s.DB.WithContext(ctx).Model(&Round{}).
		Select("song_id, count(*) as played, sum(case when correct then 1 else 0 end) as found").
		Group("song_id").
		Order("played desc, song_id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&stats).Error; err != nil {
		return nil, fmt.Errorf("computing stats: %w", err)
	}
	return stats, nil
}

// Close releases the database
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
