package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrStatNotFound = errors.New("stat not found")

// DailyStat agrega pedidos expirados por dia
type DailyStat struct {
	StatDate     time.Time `json:"stat_date" db:"stat_date"`
	ExpiredCount int64     `json:"expired_count" db:"expired_count"`
	ExpiredValue int64     `json:"expired_value" db:"expired_value"`
}

// UserStat agrega pedidos abandonados por cliente
type UserStat struct {
	UserID         int64 `json:"user_id" db:"user_id"`
	AbandonedCount int64 `json:"abandoned_count" db:"abandoned_count"`
	AbandonedValue int64 `json:"abandoned_value" db:"abandoned_value"`
}

// Expiration é um registro a ser agregado
type Expiration struct {
	EventID string
	Day     time.Time
	UserID  *int64
	Value   int64
}

// Store grava os contadores com upserts aditivos (x = x + EXCLUDED.x), sem
// read-modify-write na aplicação
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// RecordExpiration aplica o evento uma única vez. Retorna false quando o
// event_id já estava na inbox
func (s *Store) RecordExpiration(ctx context.Context, rec Expiration) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin analytics transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO analytics_inbox (event_id) VALUES ($1) ON CONFLICT (event_id) DO NOTHING`,
		rec.EventID)
	if err != nil {
		return false, fmt.Errorf("failed to insert inbox record: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if inserted == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_order_stats (stat_date, expired_count, expired_value)
		VALUES ($1, 1, $2)
		ON CONFLICT (stat_date) DO UPDATE
		SET expired_count = daily_order_stats.expired_count + EXCLUDED.expired_count,
		    expired_value = daily_order_stats.expired_value + EXCLUDED.expired_value,
		    updated_at = NOW()`,
		rec.Day.Format("2006-01-02"), rec.Value)
	if err != nil {
		return false, fmt.Errorf("failed to upsert daily stats: %w", err)
	}

	if rec.UserID != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_order_stats (user_id, abandoned_count, abandoned_value)
			VALUES ($1, 1, $2)
			ON CONFLICT (user_id) DO UPDATE
			SET abandoned_count = user_order_stats.abandoned_count + EXCLUDED.abandoned_count,
			    abandoned_value = user_order_stats.abandoned_value + EXCLUDED.abandoned_value,
			    updated_at = NOW()`,
			*rec.UserID, rec.Value)
		if err != nil {
			return false, fmt.Errorf("failed to upsert user stats: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit analytics: %w", err)
	}
	return true, nil
}

func (s *Store) GetDailyStat(ctx context.Context, day time.Time) (*DailyStat, error) {
	var stat DailyStat
	err := s.db.GetContext(ctx, &stat,
		`SELECT stat_date, expired_count, expired_value FROM daily_order_stats WHERE stat_date = $1`,
		day.Format("2006-01-02"))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

// TopAbandoners lista os clientes com mais pedidos abandonados
func (s *Store) TopAbandoners(ctx context.Context, limit int) ([]UserStat, error) {
	var stats []UserStat
	err := s.db.SelectContext(ctx, &stats, `
		SELECT user_id, abandoned_count, abandoned_value
		FROM user_order_stats
		ORDER BY abandoned_count DESC, abandoned_value DESC, user_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list user stats: %w", err)
	}
	return stats, nil
}
