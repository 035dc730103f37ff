package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Client struct {
	ID          uuid.UUID `json:"id" db:"id"`
	CompanyID   uuid.UUID `json:"company_id" db:"company_id"`
	Name        string    `json:"name" db:"name"`
	Email       string    `json:"email" db:"email"`
	CompanyName string    `json:"company_name" db:"company_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Service is a catalog entry that line items can be drafted from.
type Service struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	CompanyID   uuid.UUID       `json:"company_id" db:"company_id"`
	Name        string          `json:"name" db:"name"`
	Category    string          `json:"category" db:"category"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
