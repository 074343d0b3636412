package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/neonchat/neonchat/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/neonchat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/neonchat.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		alias TEXT UNIQUE NOT NULL,
		recovery_key_hash TEXT NOT NULL,
		plan TEXT NOT NULL DEFAULT 'free',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser registers an alias with its hashed recovery key.
func (s *SQLiteStore) CreateUser(ctx context.Context, alias, recoveryKeyHash string) (*models.User, error) {
	defer observe(time.Now())

	user := &models.User{
		ID:              uuid.New(),
		Alias:           alias,
		RecoveryKeyHash: recoveryKeyHash,
		Plan:            models.PlanFree,
		CreatedAt:       time.Now().UTC(),
	}
	user.UpdatedAt = user.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, alias, recovery_key_hash, plan, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, user.ID.String(), user.Alias, user.RecoveryKeyHash, user.Plan, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrAliasTaken
		}
		return nil, err
	}
	return user, nil
}

// GetUserByAlias retrieves a user by alias. Returns nil if not found.
func (s *SQLiteStore) GetUserByAlias(ctx context.Context, alias string) (*models.User, error) {
	defer observe(time.Now())

	user := &models.User{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, alias, recovery_key_hash, plan, created_at, updated_at
		FROM users WHERE alias = ?
	`, alias).Scan(
		&idStr,
		&user.Alias,
		&user.RecoveryKeyHash,
		&user.Plan,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	user.ID = id
	return user, nil
}

// SetPlan changes a user's subscription plan.
func (s *SQLiteStore) SetPlan(ctx context.Context, alias, plan string) error {
	defer observe(time.Now())

	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET plan = ?, updated_at = ? WHERE alias = ?
	`, plan, time.Now().UTC(), alias)
	return err
}

// CountUsers returns the number of registered aliases.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
