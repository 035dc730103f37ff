package billing

import (
	"fmt"

	"cravebiz/internal/apperror"
	"cravebiz/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValidateItems checks line items before totals are computed.
func ValidateItems(items []models.InvoiceItem) []apperror.FieldError {
	var errs []apperror.FieldError
	for i, it := range items {
		field := fmt.Sprintf("items[%d]", i)
		if msg, ok := CheckQuantity(it.Quantity); !ok {
			errs = append(errs, apperror.FieldError{Field: field + ".quantity", Message: msg})
		}
		switch {
		case it.Price.IsNegative():
			errs = append(errs, apperror.FieldError{Field: field + ".price", Message: "must not be negative"})
		case !it.Price.Equal(it.Price.Round(moneyPlaces)):
			errs = append(errs, apperror.FieldError{Field: field + ".price", Message: "must have at most 2 decimal places"})
		}
	}
	return errs
}

// CheckQuantity reports whether q is a positive whole number, with the
// message to show when it is not.
func CheckQuantity(q decimal.Decimal) (string, bool) {
	if !q.IsPositive() {
		return "must be greater than zero", false
	}
	if !q.Equal(q.Truncate(0)) {
		return "must be a whole number", false
	}
	return "", true
}

// ValidateInvoice checks an invoice draft or template before it is persisted.
func ValidateInvoice(op string, inv *models.Invoice) error {
	if inv == nil {
		return apperror.Validation(op, apperror.FieldError{Field: "invoice", Message: "is required"})
	}

	var errs []apperror.FieldError
	if inv.ClientID == uuid.Nil {
		errs = append(errs, apperror.FieldError{Field: "client_id", Message: "is required"})
	}
	if len(inv.Items) == 0 {
		errs = append(errs, apperror.FieldError{Field: "items", Message: "must contain at least one line"})
	}
	errs = append(errs, ValidateItems(inv.Items)...)

	if inv.IssueDate.IsZero() {
		errs = append(errs, apperror.FieldError{Field: "issue_date", Message: "is required"})
	}
	if inv.DueDate.IsZero() {
		errs = append(errs, apperror.FieldError{Field: "due_date", Message: "is required"})
	} else if DateOnly(inv.DueDate).Before(DateOnly(inv.IssueDate)) {
		errs = append(errs, apperror.FieldError{Field: "due_date", Message: "must not be before issue_date"})
	}

	if inv.Status != "" && !inv.Status.Valid() {
		errs = append(errs, apperror.FieldError{Field: "status", Message: fmt.Sprintf("unknown status %q", inv.Status)})
	}
	if inv.Frequency != "" && !inv.Frequency.Valid() {
		errs = append(errs, apperror.FieldError{Field: "frequency", Message: fmt.Sprintf("unknown frequency %q", inv.Frequency)})
	}
	if inv.IsRecurringTemplate {
		if inv.Frequency == "" || inv.Frequency == models.FrequencyOneTime {
			errs = append(errs, apperror.FieldError{Field: "frequency", Message: "a recurring template needs a repeating frequency"})
		}
		if inv.ParentInvoiceID != nil {
			errs = append(errs, apperror.FieldError{Field: "parent_invoice_id", Message: "a template cannot have a parent"})
		}
	}

	if !inv.IsRecurringTemplate && inv.ParentInvoiceID != nil &&
		inv.Frequency != "" && inv.Frequency != models.FrequencyOneTime {
		errs = append(errs, apperror.FieldError{Field: "frequency", Message: "a generated instance must be one-time"})
	}

	if inv.SelectedBankAccountID != nil && hasManualBank(inv) {
		errs = append(errs, apperror.FieldError{Field: "selected_bank_account_id", Message: "use either a saved account or manual bank details"})
	}

	if len(errs) > 0 {
		return apperror.Validation(op, errs...)
	}
	return nil
}

func hasManualBank(inv *models.Invoice) bool {
	for _, s := range []*string{inv.ManualBankName, inv.ManualAccountName, inv.ManualAccountNumber} {
		if s != nil && *s != "" {
			return true
		}
	}
	return false
}
