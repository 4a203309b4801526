// Package store archives fetched tick sequences in Postgres so a replay can be
// served again without asking the simulation server.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/gridiron-viewer/pkg/types"
)

var (
	ErrNotFound = errors.New("tick run not found")
	ErrExists   = errors.New("tick run already archived")
)

const uniqueViolation = "23505"

// TickRun is one play's full tick sequence, stored as a JSON blob.
type TickRun struct {
	GameID    string    `gorm:"primaryKey;size:64"`
	PlayID    string    `gorm:"primaryKey;size:64"`
	TickCount int       `gorm:"not null"`
	Ticks     []byte    `gorm:"type:jsonb;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (TickRun) TableName() string { return "tick_runs" }

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects and migrates the schema.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	s := &Store{db: db, log: logger.Named("store")}

	if err := db.WithContext(ctx).AutoMigrate(&TickRun{}); err != nil {
		return nil, multierr.Append(fmt.Errorf("migrate archive: %w", err), s.Close())
	}
	return s, nil
}

func (s *Store) SaveTicks(ctx context.Context, gameID, playID string, ticks []types.Tick) error {
	blob, err := json.Marshal(ticks)
	if err != nil {
		return fmt.Errorf("encode ticks: %w", err)
	}
	run := TickRun{GameID: gameID, PlayID: playID, TickCount: len(ticks), Ticks: blob}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrExists
		}
		return fmt.Errorf("save ticks %s/%s: %w", gameID, playID, err)
	}
	s.log.Debug("archived ticks", zap.String("game", gameID), zap.String("play", playID), zap.Int("ticks", len(ticks)))
	return nil
}

func (s *Store) LoadTicks(ctx context.Context, gameID, playID string) ([]types.Tick, error) {
	var run TickRun
	err := s.db.WithContext(ctx).
		Where("game_id = ? AND play_id = ?", gameID, playID).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ticks %s/%s: %w", gameID, playID, err)
	}

	var ticks []types.Tick
	if err := json.Unmarshal(run.Ticks, &ticks); err != nil {
		return nil, fmt.Errorf("decode ticks %s/%s: %w", gameID, playID, err)
	}
	return ticks, nil
}

// DeleteGame drops every archived run of one game.
func (s *Store) DeleteGame(ctx context.Context, gameID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("game_id = ?", gameID).Delete(&TickRun{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete game %s: %w", gameID, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
