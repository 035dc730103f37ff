package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ProfileStatusPending  = "Pending"
	ProfileStatusActive   = "Active"
	ProfileStatusDeclined = "Declined"
)

type Profile struct {
	ID        uuid.UUID `json:"id" db:"id"`
	FullName  string    `json:"full_name" db:"full_name"`
	Email     string    `json:"email" db:"email"`
	Status    string    `json:"status" db:"status"`
	AvatarURL *string   `json:"avatar_url,omitempty" db:"avatar_url"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
