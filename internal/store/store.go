package store

import (
	"context"
	"errors"

	"github.com/neonchat/neonchat/internal/models"
)

// ErrAliasTaken is returned by CreateUser when the alias is already registered.
var ErrAliasTaken = errors.New("alias already registered")

// DataStore defines the interface for persistent storage of user accounts.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, alias, recoveryKeyHash string) (*models.User, error)
	GetUserByAlias(ctx context.Context, alias string) (*models.User, error)
	SetPlan(ctx context.Context, alias, plan string) error
	CountUsers(ctx context.Context) (int64, error)
}
