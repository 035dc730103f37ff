package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "Draft"
	InvoiceStatusSent    InvoiceStatus = "Sent"
	InvoiceStatusOverdue InvoiceStatus = "Overdue"
	InvoiceStatusPaid    InvoiceStatus = "Paid"
)

// Valid reports whether s is one of the known invoice statuses.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusOverdue, InvoiceStatusPaid:
		return true
	}
	return false
}

type Frequency string

const (
	FrequencyOneTime    Frequency = "one-time"
	FrequencyWeekly     Frequency = "weekly"
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencyBiannually Frequency = "biannually"
	FrequencyAnnually   Frequency = "annually"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyOneTime, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyBiannually, FrequencyAnnually:
		return true
	}
	return false
}

type InvoiceItem struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	InvoiceID   uuid.UUID       `json:"invoice_id" db:"invoice_id"`
	ServiceID   uuid.UUID       `json:"service_id" db:"service_id"`
	Description string          `json:"description" db:"description"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	Price       decimal.Decimal `json:"price" db:"price"`
}

// Amount is quantity times price, unrounded.
func (it InvoiceItem) Amount() decimal.Decimal {
	return it.Quantity.Mul(it.Price)
}

type Invoice struct {
	ID                    uuid.UUID       `json:"id" db:"id"`
	CompanyID             uuid.UUID       `json:"company_id" db:"company_id"`
	InvoiceNumber         string          `json:"invoice_number" db:"invoice_number"`
	ClientID              uuid.UUID       `json:"client_id" db:"client_id"`
	IssueDate             time.Time       `json:"issue_date" db:"issue_date"`
	DueDate               time.Time       `json:"due_date" db:"due_date"`
	Items                 []InvoiceItem   `json:"items"`
	Total                 decimal.Decimal `json:"total" db:"total"`
	Status                InvoiceStatus   `json:"status" db:"status"`
	SelectedBankAccountID *uuid.UUID      `json:"selected_bank_account_id,omitempty" db:"selected_bank_account_id"`
	ManualBankName        *string         `json:"manual_bank_name,omitempty" db:"manual_bank_name"`
	ManualAccountName     *string         `json:"manual_account_name,omitempty" db:"manual_account_name"`
	ManualAccountNumber   *string         `json:"manual_account_number,omitempty" db:"manual_account_number"`
	PaymentTerms          string          `json:"payment_terms" db:"payment_terms"`
	Frequency             Frequency       `json:"frequency" db:"frequency"`
	NextRecurrenceDate    *time.Time      `json:"next_recurrence_date,omitempty" db:"next_recurrence_date"`
	IsRecurringTemplate   bool            `json:"is_recurring_template" db:"is_recurring_template"`
	ParentInvoiceID       *uuid.UUID      `json:"parent_invoice_id,omitempty" db:"parent_invoice_id"`
	LastSentDate          *time.Time      `json:"last_sent_date,omitempty" db:"last_sent_date"`
	IsReceiptSent         bool            `json:"is_receipt_sent" db:"is_receipt_sent"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy; items and pointer fields are not shared.
func (inv *Invoice) Clone() *Invoice {
	if inv == nil {
		return nil
	}
	out := *inv
	if inv.Items != nil {
		out.Items = make([]InvoiceItem, len(inv.Items))
		copy(out.Items, inv.Items)
	}
	out.SelectedBankAccountID = cloneUUID(inv.SelectedBankAccountID)
	out.ParentInvoiceID = cloneUUID(inv.ParentInvoiceID)
	out.ManualBankName = cloneString(inv.ManualBankName)
	out.ManualAccountName = cloneString(inv.ManualAccountName)
	out.ManualAccountNumber = cloneString(inv.ManualAccountNumber)
	out.NextRecurrenceDate = cloneTime(inv.NextRecurrenceDate)
	out.LastSentDate = cloneTime(inv.LastSentDate)
	return &out
}

func cloneUUID(v *uuid.UUID) *uuid.UUID {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
