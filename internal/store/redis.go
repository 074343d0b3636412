package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/neonchat/neonchat/internal/metrics"
	"github.com/neonchat/neonchat/internal/models"
)

const paymentSessionTTL = time.Hour

// RedisStore handles Redis operations for payment sessions and rate limiting.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client returns the underlying client, or nil for a nil store.
func (s *RedisStore) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.client.Ping(ctx).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	return err
}

// paymentKey returns the key for a payment session.
func paymentKey(txnID string) string {
	return fmt.Sprintf("payment:%s", txnID)
}

// SavePaymentSession records an issued checkout so the gateway callback can
// be matched to an alias. A missing TxnID is filled with a ULID.
func (s *RedisStore) SavePaymentSession(ctx context.Context, session *models.PaymentSession) error {
	if session.TxnID == "" {
		session.TxnID = ulid.Make().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	start := time.Now()
	err = s.client.Set(ctx, paymentKey(session.TxnID), data, paymentSessionTTL).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	return err
}

// GetPaymentSession looks up an issued checkout. Returns nil if it expired
// or never existed.
func (s *RedisStore) GetPaymentSession(ctx context.Context, txnID string) (*models.PaymentSession, error) {
	data, err := s.client.Get(ctx, paymentKey(txnID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var session models.PaymentSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}
