package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription plans.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// User is a registered alias. The recovery key is only ever stored hashed.
type User struct {
	ID              uuid.UUID `json:"id"`
	Alias           string    `json:"alias"`
	RecoveryKeyHash string    `json:"-"`
	Plan            string    `json:"plan"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
