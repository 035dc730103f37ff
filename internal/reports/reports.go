// Package reports derives dashboard figures from a tenant snapshot.
// Recurring templates are not invoices in their own right and are left
// out of every figure.
package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cravebiz/internal/apperror"
	"cravebiz/internal/billing"
	"cravebiz/internal/models"
	"cravebiz/internal/textgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DateRange string

const (
	RangeAllTime     DateRange = "all_time"
	RangeLast30Days  DateRange = "last_30_days"
	RangeThisQuarter DateRange = "this_quarter"
	RangeThisYear    DateRange = "this_year"
)

func ParseDateRange(s string) (DateRange, error) {
	switch r := DateRange(s); r {
	case RangeAllTime, RangeLast30Days, RangeThisQuarter, RangeThisYear:
		return r, nil
	case "":
		return RangeAllTime, nil
	}
	return "", apperror.Validation("reports.range", apperror.FieldError{Field: "range", Message: fmt.Sprintf("unknown range %q", s)})
}

// Bounds returns the inclusive issue-date window of r on asOf. ok is false
// for all time.
func (r DateRange) Bounds(asOf time.Time) (start, end time.Time, ok bool) {
	end = billing.DateOnly(asOf)
	switch r {
	case RangeLast30Days:
		return end.AddDate(0, 0, -30), end, true
	case RangeThisQuarter:
		y, m, _ := end.Date()
		q := m - (m-1)%3
		return time.Date(y, q, 1, 0, 0, 0, 0, end.Location()), end, true
	case RangeThisYear:
		return time.Date(end.Year(), time.January, 1, 0, 0, 0, 0, end.Location()), end, true
	}
	return time.Time{}, time.Time{}, false
}

// Filter keeps the non-template invoices issued within r.
func Filter(invoices []*models.Invoice, r DateRange, asOf time.Time) []*models.Invoice {
	start, end, bounded := r.Bounds(asOf)
	out := make([]*models.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.IsRecurringTemplate {
			continue
		}
		if bounded {
			issue := billing.DateOnly(inv.IssueDate)
			if issue.Before(start) || issue.After(end) {
				continue
			}
		}
		out = append(out, inv)
	}
	return out
}

type Summary struct {
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	Outstanding  decimal.Decimal `json:"outstanding"`
	OverdueTotal decimal.Decimal `json:"overdue_total"`
	// Forecast is what Draft and Sent invoices not yet due would bring in.
	Forecast decimal.Decimal              `json:"forecast"`
	Counts   map[models.InvoiceStatus]int `json:"counts"`
	Invoices int                          `json:"invoices"`

	DraftToSentRate float64 `json:"draft_to_sent_rate"`
	SentToPaidRate  float64 `json:"sent_to_paid_rate"`
	PaidRate        float64 `json:"paid_rate"`
}

type ServiceRevenue struct {
	ServiceID uuid.UUID       `json:"service_id"`
	Name      string          `json:"name"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type ClientValue struct {
	ClientID     uuid.UUID       `json:"client_id"`
	CompanyName  string          `json:"company_name"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

type AgingBucket struct {
	Label  string          `json:"label"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type MonthlyAverage struct {
	Month   string          `json:"month"`
	Average decimal.Decimal `json:"average"`
	Count   int             `json:"count"`
}

type Report struct {
	TenantID               uuid.UUID        `json:"tenant_id"`
	Range                  DateRange        `json:"range"`
	AsOf                   time.Time        `json:"as_of"`
	Clients                int              `json:"clients"`
	Services               int              `json:"services"`
	Summary                Summary          `json:"summary"`
	RevenueByService       []ServiceRevenue `json:"revenue_by_service"`
	ClientLifetimeValue    []ClientValue    `json:"client_lifetime_value"`
	Aging                  []AgingBucket    `json:"aging"`
	AveragePaymentTermDays int              `json:"average_payment_term_days"`
	MonthlyAverages        []MonthlyAverage `json:"monthly_averages"`
}

// Build computes every report figure for the snapshot on asOf.
func Build(snap *models.TenantSnapshot, r DateRange, asOf time.Time) (*Report, error) {
	if snap == nil {
		return nil, apperror.Validation("reports.build", apperror.FieldError{Field: "snapshot", Message: "is required"})
	}
	today := billing.DateOnly(asOf)
	invoices := Filter(snap.Invoices, r, today)

	return &Report{
		TenantID:               snap.TenantID,
		Range:                  r,
		AsOf:                   today,
		Clients:                len(snap.Clients),
		Services:               len(snap.Services),
		Summary:                Summarize(invoices, today),
		RevenueByService:       RevenueByService(invoices, snap.Services),
		ClientLifetimeValue:    ClientLifetimeValue(invoices, snap.Clients),
		Aging:                  Aging(invoices, today),
		AveragePaymentTermDays: AveragePaymentTermDays(invoices),
		MonthlyAverages:        MonthlyAverages(invoices),
	}, nil
}

func Summarize(invoices []*models.Invoice, today time.Time) Summary {
	s := Summary{
		Counts: map[models.InvoiceStatus]int{
			models.InvoiceStatusDraft:   0,
			models.InvoiceStatusSent:    0,
			models.InvoiceStatusOverdue: 0,
			models.InvoiceStatusPaid:    0,
		},
	}
	for _, inv := range invoices {
		if inv.IsRecurringTemplate {
			continue
		}
		s.Invoices++
		status := billing.EffectiveStatus(inv, today)
		s.Counts[status]++
		switch status {
		case models.InvoiceStatusPaid:
			s.TotalRevenue = s.TotalRevenue.Add(inv.Total)
		case models.InvoiceStatusOverdue:
			s.Outstanding = s.Outstanding.Add(inv.Total)
			s.OverdueTotal = s.OverdueTotal.Add(inv.Total)
		case models.InvoiceStatusSent:
			s.Outstanding = s.Outstanding.Add(inv.Total)
		}
		if (status == models.InvoiceStatusSent || status == models.InvoiceStatusDraft) && !billing.DateOnly(inv.DueDate).Before(today) {
			s.Forecast = s.Forecast.Add(inv.Total)
		}
	}

	paid := s.Counts[models.InvoiceStatusPaid]
	left := paid + s.Counts[models.InvoiceStatusSent] + s.Counts[models.InvoiceStatusOverdue]
	s.DraftToSentRate = percent(left, s.Invoices)
	s.SentToPaidRate = percent(paid, left)
	s.PaidRate = percent(paid, s.Invoices)
	return s
}

func percent(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d) * 100
}

// RevenueByService sums paid line amounts per catalog service, highest
// first. Items whose service is gone from the catalog are not counted.
func RevenueByService(invoices []*models.Invoice, services []*models.Service) []ServiceRevenue {
	catalog := make(map[uuid.UUID]*models.Service, len(services))
	for _, svc := range services {
		catalog[svc.ID] = svc
	}

	totals := map[uuid.UUID]decimal.Decimal{}
	for _, inv := range invoices {
		if inv.IsRecurringTemplate || inv.Status != models.InvoiceStatusPaid {
			continue
		}
		for _, it := range inv.Items {
			if _, ok := catalog[it.ServiceID]; !ok {
				continue
			}
			totals[it.ServiceID] = totals[it.ServiceID].Add(it.Amount())
		}
	}

	out := make([]ServiceRevenue, 0, len(totals))
	for id, revenue := range totals {
		out = append(out, ServiceRevenue{ServiceID: id, Name: catalog[id].Name, Revenue: revenue.Round(2)})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Revenue.Cmp(out[j].Revenue); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ClientLifetimeValue sums paid invoice totals per client, highest first.
func ClientLifetimeValue(invoices []*models.Invoice, clients []*models.Client) []ClientValue {
	names := make(map[uuid.UUID]string, len(clients))
	for _, c := range clients {
		name := c.CompanyName
		if name == "" {
			name = c.Name
		}
		names[c.ID] = name
	}

	totals := map[uuid.UUID]decimal.Decimal{}
	for _, inv := range invoices {
		if inv.IsRecurringTemplate || inv.Status != models.InvoiceStatusPaid {
			continue
		}
		if _, ok := names[inv.ClientID]; !ok {
			continue
		}
		totals[inv.ClientID] = totals[inv.ClientID].Add(inv.Total)
	}

	out := make([]ClientValue, 0, len(totals))
	for id, total := range totals {
		out = append(out, ClientValue{ClientID: id, CompanyName: names[id], TotalRevenue: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalRevenue.Cmp(out[j].TotalRevenue); c != 0 {
			return c > 0
		}
		return out[i].CompanyName < out[j].CompanyName
	})
	return out
}

var agingLabels = []string{"Current", "1-30 Days", "31-60 Days", "61-90 Days", "90+ Days"}

// Aging buckets open invoices by days past due on today. Invoices not yet
// due land in Current.
func Aging(invoices []*models.Invoice, today time.Time) []AgingBucket {
	buckets := make([]AgingBucket, len(agingLabels))
	for i, label := range agingLabels {
		buckets[i] = AgingBucket{Label: label}
	}

	for _, inv := range invoices {
		status := billing.EffectiveStatus(inv, today)
		if inv.IsRecurringTemplate || (status != models.InvoiceStatusSent && status != models.InvoiceStatusOverdue) {
			continue
		}
		days := billing.DaysBetween(inv.DueDate, today)
		var i int
		switch {
		case days <= 0:
			i = 0
		case days <= 30:
			i = 1
		case days <= 60:
			i = 2
		case days <= 90:
			i = 3
		default:
			i = 4
		}
		buckets[i].Count++
		buckets[i].Amount = buckets[i].Amount.Add(inv.Total)
	}
	return buckets
}

// AveragePaymentTermDays is the mean issue-to-due span of paid invoices,
// rounded half up.
func AveragePaymentTermDays(invoices []*models.Invoice) int {
	var total, n int
	for _, inv := range invoices {
		if inv.IsRecurringTemplate || inv.Status != models.InvoiceStatusPaid {
			continue
		}
		days := billing.DaysBetween(inv.IssueDate, inv.DueDate)
		if days < 0 {
			days = -days
		}
		total += days
		n++
	}
	if n == 0 {
		return 0
	}
	return (2*total + n) / (2 * n)
}

// MonthlyAverages is the mean paid invoice total per issue month, oldest first.
func MonthlyAverages(invoices []*models.Invoice) []MonthlyAverage {
	type acc struct {
		sum   decimal.Decimal
		count int
	}
	months := map[string]*acc{}
	for _, inv := range invoices {
		if inv.IsRecurringTemplate || inv.Status != models.InvoiceStatusPaid {
			continue
		}
		key := inv.IssueDate.Format("2006-01")
		a, ok := months[key]
		if !ok {
			a = &acc{}
			months[key] = a
		}
		a.sum = a.sum.Add(inv.Total)
		a.count++
	}

	out := make([]MonthlyAverage, 0, len(months))
	for month, a := range months {
		out = append(out, MonthlyAverage{
			Month:   month,
			Average: a.sum.Div(decimal.NewFromInt(int64(a.count))).Round(2),
			Count:   a.count,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// SummarizeInvoice asks the assistant for a short analysis of one invoice
// in the snapshot. Templates get an empty summary.
func SummarizeInvoice(ctx context.Context, assistant *textgen.Assistant, snap *models.TenantSnapshot, invoiceID uuid.UUID) (string, error) {
	const op = "reports.summarize_invoice"
	if snap == nil {
		return "", apperror.NotFound(op, "invoice")
	}
	for _, inv := range snap.Invoices {
		if inv.ID != invoiceID {
			continue
		}
		client, _ := snap.ClientByID(inv.ClientID)
		return assistant.SummarizeInvoice(ctx, inv, client), nil
	}
	return "", apperror.NotFound(op, "invoice")
}
