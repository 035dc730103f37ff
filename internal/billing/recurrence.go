package billing

import (
	"time"

	"cravebiz/internal/apperror"
	"cravebiz/internal/models"

	"github.com/google/uuid"
)

// NextRecurrenceDate returns the occurrence after current for freq.
// Time of day is dropped. Month steps clamp to the last day of the
// target month, so Jan 31 + 1 month is the last day of February.
// One-time and unknown frequencies have no next date.
func NextRecurrenceDate(current time.Time, freq models.Frequency) (time.Time, bool) {
	d := DateOnly(current)
	switch freq {
	case models.FrequencyWeekly:
		return d.AddDate(0, 0, 7), true
	case models.FrequencyMonthly:
		return addMonths(d, 1), true
	case models.FrequencyQuarterly:
		return addMonths(d, 3), true
	case models.FrequencyBiannually:
		return addMonths(d, 6), true
	case models.FrequencyAnnually:
		return addMonths(d, 12), true
	}
	return time.Time{}, false
}

func addMonths(d time.Time, n int) time.Time {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, d.Location())
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, d.Location())
}

// DaysBetween counts calendar days from a to b, ignoring DST shifts.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// DueDates lists the firing dates of template up to and including asOf,
// starting at its NextRecurrenceDate. At most limit dates are returned.
func DueDates(template *models.Invoice, asOf time.Time, limit int) []time.Time {
	if template == nil || !template.IsRecurringTemplate || template.NextRecurrenceDate == nil {
		return nil
	}
	cutoff := DateOnly(asOf)
	var dates []time.Time
	next := DateOnly(*template.NextRecurrenceDate)
	for len(dates) < limit && !next.After(cutoff) {
		dates = append(dates, next)
		n, ok := NextRecurrenceDate(next, template.Frequency)
		if !ok {
			break
		}
		next = n
	}
	return dates
}

// BuildInstance materializes the one-time invoice that template produces
// on firingDate. Items are deep-copied under fresh ids. The invoice number
// is left empty for the store to allocate.
func BuildInstance(template *models.Invoice, firingDate time.Time) (*models.Invoice, error) {
	const op = "recurrence.build_instance"
	if template == nil || !template.IsRecurringTemplate {
		return nil, apperror.Validation(op, apperror.FieldError{Field: "is_recurring_template", Message: "source invoice is not a template"})
	}
	if _, ok := NextRecurrenceDate(firingDate, template.Frequency); !ok {
		return nil, apperror.Validation(op, apperror.FieldError{Field: "frequency", Message: "template has no repeating frequency"})
	}
	if errs := ValidateItems(template.Items); len(errs) > 0 {
		return nil, apperror.Validation(op, errs...)
	}

	issue := DateOnly(firingDate)
	offset := DaysBetween(template.IssueDate, template.DueDate)
	if offset < 0 {
		offset = 0
	}

	src := template.Clone()
	parentID := template.ID
	inst := &models.Invoice{
		ID:                    uuid.New(),
		CompanyID:             src.CompanyID,
		ClientID:              src.ClientID,
		IssueDate:             issue,
		DueDate:               issue.AddDate(0, 0, offset),
		Status:                models.InvoiceStatusDraft,
		SelectedBankAccountID: src.SelectedBankAccountID,
		ManualBankName:        src.ManualBankName,
		ManualAccountName:     src.ManualAccountName,
		ManualAccountNumber:   src.ManualAccountNumber,
		PaymentTerms:          src.PaymentTerms,
		Frequency:             models.FrequencyOneTime,
		IsRecurringTemplate:   false,
		ParentInvoiceID:       &parentID,
	}

	inst.Items = make([]models.InvoiceItem, len(src.Items))
	for i, it := range src.Items {
		inst.Items[i] = models.InvoiceItem{
			ID:          uuid.New(),
			InvoiceID:   inst.ID,
			ServiceID:   it.ServiceID,
			Description: it.Description,
			Quantity:    it.Quantity,
			Price:       it.Price,
		}
	}
	ApplyTotals(inst)
	return inst, nil
}
