// Package storetest provides an in-memory store.DataStore for tests.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neonchat/neonchat/internal/models"
	"github.com/neonchat/neonchat/internal/store"
)

// MemoryStore keeps users in a map. Set Err to make every call fail.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*models.User
	Err   error
}

var _ store.DataStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*models.User)}
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return s.Err
}

func (s *MemoryStore) CreateUser(ctx context.Context, alias, recoveryKeyHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if _, ok := s.users[alias]; ok {
		return nil, store.ErrAliasTaken
	}
	now := time.Now().UTC()
	u := &models.User{
		ID:              uuid.New(),
		Alias:           alias,
		RecoveryKeyHash: recoveryKeyHash,
		Plan:            models.PlanFree,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.users[alias] = u
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByAlias(ctx context.Context, alias string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	u, ok := s.users[alias]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) SetPlan(ctx context.Context, alias, plan string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if u, ok := s.users[alias]; ok {
		u.Plan = plan
		u.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *MemoryStore) CountUsers(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.users)), s.Err
}
