package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

// User contém apenas os dados de contato usados nas notificações
type User struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
	Phone string `json:"phone" db:"phone"`
}

type Repository interface {
	GetUser(ctx context.Context, userID int64) (*User, error)
}

// PostgresUserRepository implementa Repository usando PostgreSQL
type PostgresUserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// GetUser busca um usuário pelo ID
func (r *PostgresUserRepository) GetUser(ctx context.Context, userID int64) (*User, error) {
	var u User
	err := r.db.QueryRow(ctx, `
		SELECT id, name, COALESCE(email, ''), COALESCE(phone, '')
		FROM users
		WHERE id = $1
	`, userID).Scan(&u.ID, &u.Name, &u.Email, &u.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
