package models

import (
	"time"

	"github.com/google/uuid"
)

// Company is the tenant: every client, service and invoice belongs to one.
type Company struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	OwnerID      *uuid.UUID    `json:"owner_id,omitempty" db:"owner_id"`
	Name         string        `json:"name" db:"name"`
	Address      string        `json:"address" db:"address"`
	Email        string        `json:"email" db:"email"`
	Phone        *string       `json:"phone,omitempty" db:"phone"`
	LogoURL      *string       `json:"logo_url,omitempty" db:"logo_url"`
	BankAccounts []BankAccount `json:"bank_accounts"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

type BankAccount struct {
	ID            uuid.UUID `json:"id" db:"id"`
	CompanyID     uuid.UUID `json:"company_id" db:"company_id"`
	BankName      string    `json:"bank_name" db:"bank_name"`
	AccountName   string    `json:"account_name" db:"account_name"`
	AccountNumber string    `json:"account_number" db:"account_number"`
}

const MemberRoleOwner = "Owner"

type CompanyMember struct {
	CompanyID uuid.UUID `json:"company_id" db:"company_id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
