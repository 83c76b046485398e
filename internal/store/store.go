// Package store is the durable record of drafts. A draft row is written
// twice: at creation (Waiting) and at finalization (Complete/Stopped). Live
// state never touches the database; it lives in the session actor.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/herodraft/draft-server/internal/catalog"
	"github.com/herodraft/draft-server/internal/engine"
)

// DraftRecord is the persisted shape of one draft.
type DraftRecord struct {
	ID             string `gorm:"primaryKey;size:64" json:"id"`
	TournamentID   string `gorm:"size:64;index" json:"tournament_id"`
	Team1ID        string `gorm:"size:64" json:"team1_id"`
	Team2ID        string `gorm:"size:64" json:"team2_id"`
	Team1CaptainID string `gorm:"size:64" json:"team1_captain_id"`
	Team2CaptainID string `gorm:"size:64" json:"team2_captain_id"`

	Status      string `gorm:"size:32" json:"status"`
	CoinOutcome string `gorm:"size:16" json:"coin_outcome,omitempty"`
	CoinWinner  string `gorm:"size:16" json:"coin_winner,omitempty"`

	TurnOrder []engine.TurnStep `gorm:"serializer:json" json:"turn_order,omitempty"`
	Entries   []engine.Entry    `gorm:"serializer:json" json:"entries,omitempty"`

	StopReason string `gorm:"size:255" json:"stop_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DraftRecord) TableName() string { return "draft_records" }

// HeroRow backs the hero catalog.
type HeroRow struct {
	ID   int    `gorm:"primaryKey"`
	Name string `gorm:"size:64"`
	Role string `gorm:"size:32"`
}

func (HeroRow) TableName() string { return "heroes" }

type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing gorm handle (tests).
func NewWithDB(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&DraftRecord{}, &HeroRow{}); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Create inserts the initial Waiting row for a new draft.
func (s *Store) Create(ctx context.Context, rec *DraftRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("store: create draft %s: %w", rec.ID, err)
	}
	return nil
}

// Finalize writes the terminal fields onto the existing row. Sessions are
// immutable afterwards.
func (s *Store) Finalize(ctx context.Context, rec *DraftRecord) error {
	err := s.db.WithContext(ctx).
		Model(rec).
		Select("status", "coin_outcome", "coin_winner", "turn_order", "entries", "stop_reason", "updated_at").
		Updates(rec).Error
	if err != nil {
		return fmt.Errorf("store: finalize draft %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the persisted record, or nil when the id is unknown.
func (s *Store) Get(ctx context.Context, id string) (*DraftRecord, error) {
	var rec DraftRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get draft %s: %w", id, err)
	}
	return &rec, nil
}

// ListHeroes loads the catalog roster.
func (s *Store) ListHeroes(ctx context.Context) ([]catalog.Hero, error) {
	var rows []HeroRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list heroes: %w", err)
	}
	heroes := make([]catalog.Hero, len(rows))
	for i, r := range rows {
		heroes[i] = catalog.Hero{ID: r.ID, Name: r.Name, Role: r.Role}
	}
	return heroes, nil
}

// SeedHeroes inserts the given roster, leaving existing rows untouched.
func (s *Store) SeedHeroes(ctx context.Context, heroes []catalog.Hero) error {
	rows := make([]HeroRow, len(heroes))
	for i, h := range heroes {
		rows[i] = HeroRow{ID: h.ID, Name: h.Name, Role: h.Role}
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("store: seed heroes: %w", err)
	}
	return nil
}
