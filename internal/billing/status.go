package billing

import (
	"fmt"
	"time"

	"cravebiz/internal/apperror"
	"cravebiz/internal/models"
)

// Transition is a caller-triggered lifecycle action.
type Transition string

const (
	TransitionSend        Transition = "send"
	TransitionResend      Transition = "resend"
	TransitionMarkPaid    Transition = "mark_paid"
	TransitionSendReceipt Transition = "send_receipt"
)

// DateOnly truncates t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// IsOverdue reports whether a dispatched, unpaid invoice is past its due date.
// Drafts and templates are never overdue.
func IsOverdue(inv *models.Invoice, today time.Time) bool {
	if inv.IsRecurringTemplate {
		return false
	}
	switch inv.Status {
	case models.InvoiceStatusOverdue:
		return true
	case models.InvoiceStatusSent:
		return DateOnly(inv.DueDate).Before(DateOnly(today))
	}
	return false
}

// EffectiveStatus is the status to show for inv on the given day.
// Overdue is derived from Sent and the due date, not stored.
func EffectiveStatus(inv *models.Invoice, today time.Time) models.InvoiceStatus {
	if IsOverdue(inv, today) {
		return models.InvoiceStatusOverdue
	}
	return inv.Status
}

// NextStatus returns the stored status inv moves to under t, or a
// validation error when t is not allowed from its current status.
func NextStatus(inv *models.Invoice, t Transition) (models.InvoiceStatus, error) {
	op := "invoice." + string(t)
	if inv.IsRecurringTemplate {
		return "", apperror.Validation(op, apperror.FieldError{
			Field:   "is_recurring_template",
			Message: "recurring templates cannot be sent or paid",
		})
	}

	from := inv.Status
	switch t {
	case TransitionSend:
		if from == models.InvoiceStatusDraft {
			return models.InvoiceStatusSent, nil
		}
	case TransitionResend:
		if from == models.InvoiceStatusSent || from == models.InvoiceStatusOverdue {
			return from, nil
		}
	case TransitionMarkPaid:
		if from == models.InvoiceStatusSent || from == models.InvoiceStatusOverdue {
			return models.InvoiceStatusPaid, nil
		}
	case TransitionSendReceipt:
		if from == models.InvoiceStatusPaid {
			return from, nil
		}
	default:
		return "", apperror.Validation(op, apperror.FieldError{Field: "transition", Message: "unknown transition"})
	}

	return "", apperror.Validation(op, apperror.FieldError{
		Field:   "status",
		Message: fmt.Sprintf("cannot %s an invoice in status %s", t, from),
	})
}
