package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/matheusmosca/order-lifecycle/pkg/config"
)

// ErrForeignTx indica que um repositório Postgres recebeu uma transação de
// outra implementação
var ErrForeignTx = errors.New("transaction was not started by the postgres store")

// Tx interface para transações; cada unidade de trabalho abre exatamente uma
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxBeginner abre transações
type TxBeginner interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// PostgresTx implementa a interface Tx sobre pgx
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback ignora transações já encerradas para permitir `defer tx.Rollback(ctx)`
// depois de um Commit bem-sucedido
func (t *PostgresTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// PgxTx extrai a transação pgx usada pelos repositórios
func PgxTx(tx Tx) (pgx.Tx, error) {
	pgTx, ok := tx.(*PostgresTx)
	if !ok {
		return nil, ErrForeignTx
	}
	return pgTx.tx, nil
}

// Postgres implementa TxBeginner usando o pool do pgx
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// BeginTx inicia uma nova transação
func (p *Postgres) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &PostgresTx{tx: tx}, nil
}

// Connect cria o pool de conexões e aguarda o banco ficar disponível
func Connect(ctx context.Context, cfg config.Database) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Wait for database to be ready
	for i := 0; i < 30; i++ {
		if err := pool.Ping(ctx); err == nil {
			log.Printf("✅ Connected to %s database with connection pool", cfg.Name)
			return pool, nil
		}
		log.Printf("⏳ Waiting for database... (%d/30)", i+1)

		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	pool.Close()
	return nil, fmt.Errorf("failed to connect to database after 30 attempts")
}

// OpenSQLX abre uma conexão database/sql (driver lib/pq) para o banco de
// relatórios
func OpenSQLX(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open analytics database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping analytics database: %w", err)
	}
	return db, nil
}
