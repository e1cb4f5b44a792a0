package coupons

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matheusmosca/order-lifecycle/pkg/database"
)

var ErrCouponNotFound = errors.New("coupon not found")

// Coupon guarda o contador de utilizações de um cupom
type Coupon struct {
	ID        int64     `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	UsedCount int       `json:"used_count" db:"used_count"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Repository define as operações do contador de cupons
type Repository interface {
	// ReleaseUsage decrementa used_count em 1, nunca abaixo de zero
	ReleaseUsage(ctx context.Context, tx database.Tx, couponID int64) error
	GetCoupon(ctx context.Context, couponID int64) (*Coupon, error)
}

// PostgresCouponRepository implementa Repository usando PostgreSQL
type PostgresCouponRepository struct {
	db *pgxpool.Pool
}

func NewCouponRepository(db *pgxpool.Pool) *PostgresCouponRepository {
	return &PostgresCouponRepository{db: db}
}

// ReleaseUsage usa GREATEST para que um contador zerado continue em zero
func (r *PostgresCouponRepository) ReleaseUsage(ctx context.Context, tx database.Tx, couponID int64) error {
	pgTx, err := database.PgxTx(tx)
	if err != nil {
		return err
	}

	tag, err := pgTx.Exec(ctx, `
		UPDATE coupons
		SET used_count = GREATEST(used_count - 1, 0),
		    updated_at = NOW()
		WHERE id = $1
	`, couponID)
	if err != nil {
		return fmt.Errorf("failed to release coupon usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("coupon %d: %w", couponID, ErrCouponNotFound)
	}
	return nil
}

// GetCoupon busca um cupom pelo ID
func (r *PostgresCouponRepository) GetCoupon(ctx context.Context, couponID int64) (*Coupon, error) {
	var c Coupon
	err := r.db.QueryRow(ctx, `
		SELECT id, code, used_count, updated_at
		FROM coupons
		WHERE id = $1
	`, couponID).Scan(&c.ID, &c.Code, &c.UsedCount, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ReleasedCount aplica a mesma regra de piso em memória
func ReleasedCount(usedCount int) int {
	if usedCount <= 0 {
		return 0
	}
	return usedCount - 1
}
