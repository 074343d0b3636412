package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neonchat/neonchat/internal/metrics"
	"github.com/neonchat/neonchat/internal/models"
)

const pgUniqueViolation = "23505"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	alias TEXT UNIQUE NOT NULL,
	recovery_key_hash TEXT NOT NULL,
	plan TEXT NOT NULL DEFAULT 'free',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the account tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser registers an alias with its hashed recovery key.
func (s *PostgresStore) CreateUser(ctx context.Context, alias, recoveryKeyHash string) (*models.User, error) {
	defer observe(time.Now())

	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (alias, recovery_key_hash)
		VALUES ($1, $2)
		RETURNING id, alias, recovery_key_hash, plan, created_at, updated_at
	`, alias, recoveryKeyHash).Scan(
		&user.ID,
		&user.Alias,
		&user.RecoveryKeyHash,
		&user.Plan,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrAliasTaken
		}
		return nil, err
	}
	return user, nil
}

// GetUserByAlias retrieves a user by alias. Returns nil if not found.
func (s *PostgresStore) GetUserByAlias(ctx context.Context, alias string) (*models.User, error) {
	defer observe(time.Now())

	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, alias, recovery_key_hash, plan, created_at, updated_at
		FROM users WHERE alias = $1
	`, alias).Scan(
		&user.ID,
		&user.Alias,
		&user.RecoveryKeyHash,
		&user.Plan,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// SetPlan changes a user's subscription plan.
func (s *PostgresStore) SetPlan(ctx context.Context, alias, plan string) error {
	defer observe(time.Now())

	_, err := s.pool.Exec(ctx, `
		UPDATE users SET plan = $2, updated_at = NOW() WHERE alias = $1
	`, alias, plan)
	return err
}

// CountUsers returns the number of registered aliases.
func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

func observe(start time.Time) {
	metrics.StoreLatency.Observe(time.Since(start).Seconds())
}
