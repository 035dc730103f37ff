package reports

import (
	"context"
	"testing"
	"time"

	"cravebiz/internal/apperror"
	"cravebiz/internal/models"
	"cravebiz/internal/textgen"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	asOf     time.Time
	acme     *models.Client
	globex   *models.Client
	design   *models.Service
	hosting  *models.Service
	snapshot *models.TenantSnapshot
}

func newFixture() fixture {
	tenant := uuid.New()
	f := fixture{
		asOf:    day(2024, 5, 15),
		acme:    &models.Client{ID: uuid.New(), CompanyID: tenant, Name: "Ada", CompanyName: "Acme Ltd"},
		globex:  &models.Client{ID: uuid.New(), CompanyID: tenant, Name: "Hank"},
		design:  &models.Service{ID: uuid.New(), CompanyID: tenant, Name: "Design"},
		hosting: &models.Service{ID: uuid.New(), CompanyID: tenant, Name: "Hosting"},
	}

	inv := func(client *models.Client, status models.InvoiceStatus, issue, due time.Time, total string, items ...models.InvoiceItem) *models.Invoice {
		return &models.Invoice{
			ID: uuid.New(), CompanyID: tenant, ClientID: client.ID,
			IssueDate: issue, DueDate: due, Status: status, Total: money(total),
			Frequency: models.FrequencyOneTime, Items: items,
		}
	}
	item := func(svc *models.Service, qty int64, price string) models.InvoiceItem {
		return models.InvoiceItem{ServiceID: svc.ID, Quantity: decimal.NewFromInt(qty), Price: money(price)}
	}

	template := inv(f.acme, models.InvoiceStatusDraft, day(2024, 5, 1), day(2024, 5, 15), "999999")
	template.IsRecurringTemplate = true
	template.Frequency = models.FrequencyMonthly

	f.snapshot = &models.TenantSnapshot{
		TenantID: tenant,
		Clients:  []*models.Client{f.acme, f.globex},
		Services: []*models.Service{f.design, f.hosting},
		Invoices: []*models.Invoice{
			// paid: 14 day and 30 day terms
			inv(f.acme, models.InvoiceStatusPaid, day(2024, 4, 1), day(2024, 4, 15), "107500", item(f.design, 1, "100000")),
			inv(f.globex, models.InvoiceStatusPaid, day(2024, 5, 1), day(2024, 5, 31), "21500", item(f.hosting, 2, "10000")),
			// sent, 45 days past due: derived overdue
			inv(f.acme, models.InvoiceStatusSent, day(2024, 3, 1), day(2024, 3, 31), "5375"),
			// sent, not yet due
			inv(f.globex, models.InvoiceStatusSent, day(2024, 5, 10), day(2024, 5, 24), "10750"),
			// stored overdue, 100 days past due
			inv(f.globex, models.InvoiceStatusOverdue, day(2024, 1, 1), day(2024, 2, 5), "1075"),
			inv(f.acme, models.InvoiceStatusDraft, day(2024, 5, 12), day(2024, 5, 26), "2150"),
			template,
		},
	}
	return f
}

func TestParseDateRange(t *testing.T) {
	r, err := ParseDateRange("")
	require.NoError(t, err)
	assert.Equal(t, RangeAllTime, r)

	r, err = ParseDateRange("this_quarter")
	require.NoError(t, err)
	assert.Equal(t, RangeThisQuarter, r)

	_, err = ParseDateRange("last_week")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestDateRange_Bounds(t *testing.T) {
	asOf := day(2024, 8, 20)
	tests := []struct {
		r     DateRange
		start time.Time
	}{
		{RangeLast30Days, day(2024, 7, 21)},
		{RangeThisQuarter, day(2024, 7, 1)},
		{RangeThisYear, day(2024, 1, 1)},
	}
	for _, tt := range tests {
		t.Run(string(tt.r), func(t *testing.T) {
			start, end, ok := tt.r.Bounds(asOf)
			assert.True(t, ok)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, asOf, end)
		})
	}

	_, _, ok := RangeAllTime.Bounds(asOf)
	assert.False(t, ok)
}

func TestFilter_ExcludesTemplatesAndOutOfRange(t *testing.T) {
	f := newFixture()

	all := Filter(f.snapshot.Invoices, RangeAllTime, f.asOf)
	assert.Len(t, all, 6)

	recent := Filter(f.snapshot.Invoices, RangeLast30Days, f.asOf)
	assert.Len(t, recent, 3)
}

func TestSummarize(t *testing.T) {
	f := newFixture()
	s := Summarize(Filter(f.snapshot.Invoices, RangeAllTime, f.asOf), f.asOf)

	assert.Equal(t, 6, s.Invoices)
	assert.True(t, money("129000").Equal(s.TotalRevenue), s.TotalRevenue.String())
	assert.True(t, money("17200").Equal(s.Outstanding), s.Outstanding.String())
	assert.True(t, money("6450").Equal(s.OverdueTotal), s.OverdueTotal.String())
	assert.True(t, money("12900").Equal(s.Forecast), s.Forecast.String())
	assert.Equal(t, 2, s.Counts[models.InvoiceStatusPaid])
	assert.Equal(t, 2, s.Counts[models.InvoiceStatusOverdue])
	assert.Equal(t, 1, s.Counts[models.InvoiceStatusSent])
	assert.Equal(t, 1, s.Counts[models.InvoiceStatusDraft])
	assert.InDelta(t, 83.33, s.DraftToSentRate, 0.01)
	assert.InDelta(t, 40.0, s.SentToPaidRate, 0.01)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, day(2024, 1, 1))

	assert.Zero(t, s.Invoices)
	assert.True(t, s.TotalRevenue.IsZero())
	assert.Zero(t, s.PaidRate)
}

func TestRevenueByService(t *testing.T) {
	f := newFixture()
	got := RevenueByService(f.snapshot.Invoices, f.snapshot.Services)

	require.Len(t, got, 2)
	assert.Equal(t, "Design", got[0].Name)
	assert.True(t, money("100000").Equal(got[0].Revenue))
	assert.Equal(t, "Hosting", got[1].Name)
	assert.True(t, money("20000").Equal(got[1].Revenue))
}

func TestClientLifetimeValue(t *testing.T) {
	f := newFixture()
	got := ClientLifetimeValue(f.snapshot.Invoices, f.snapshot.Clients)

	require.Len(t, got, 2)
	assert.Equal(t, "Acme Ltd", got[0].CompanyName)
	assert.Equal(t, "Hank", got[1].CompanyName, "falls back to the contact name")
}

func TestAging(t *testing.T) {
	f := newFixture()
	got := Aging(f.snapshot.Invoices, f.asOf)

	require.Len(t, got, 5)
	counts := map[string]int{}
	for _, b := range got {
		counts[b.Label] = b.Count
	}
	assert.Equal(t, map[string]int{
		"Current":    1,
		"1-30 Days":  0,
		"31-60 Days": 1,
		"61-90 Days": 0,
		"90+ Days":   1,
	}, counts)
	assert.True(t, money("5375").Equal(got[2].Amount))
}

func TestAveragePaymentTermDays(t *testing.T) {
	f := newFixture()

	assert.Equal(t, 22, AveragePaymentTermDays(f.snapshot.Invoices))
	assert.Zero(t, AveragePaymentTermDays(nil))
}

func TestMonthlyAverages(t *testing.T) {
	f := newFixture()
	got := MonthlyAverages(f.snapshot.Invoices)

	require.Len(t, got, 2)
	assert.Equal(t, "2024-04", got[0].Month)
	assert.Equal(t, "2024-05", got[1].Month)
	assert.True(t, money("21500").Equal(got[1].Average))
}

func TestBuild(t *testing.T) {
	f := newFixture()
	r, err := Build(f.snapshot, RangeThisYear, f.asOf)

	require.NoError(t, err)
	assert.Equal(t, f.snapshot.TenantID, r.TenantID)
	assert.Equal(t, 2, r.Clients)
	assert.Equal(t, 6, r.Summary.Invoices)

	_, err = Build(nil, RangeAllTime, f.asOf)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestSummarizeInvoice(t *testing.T) {
	f := newFixture()
	assistant := textgen.NewAssistant(nil, zerolog.Nop())

	text, err := SummarizeInvoice(context.Background(), assistant, f.snapshot, f.snapshot.Invoices[0].ID)
	require.NoError(t, err)
	assert.Equal(t, textgen.SummaryUnavailable, text)

	text, err = SummarizeInvoice(context.Background(), assistant, f.snapshot, f.snapshot.Invoices[6].ID)
	require.NoError(t, err)
	assert.Empty(t, text)

	_, err = SummarizeInvoice(context.Background(), assistant, f.snapshot, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
