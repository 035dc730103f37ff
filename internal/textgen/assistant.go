package textgen

import (
	"context"
	"fmt"
	"strings"

	"cravebiz/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	descriptionSystem = "Expert invoice writer."
	summarySystem     = "Financial Assistant."

	SummaryUnavailable = "AI summary unavailable."
)

// Assistant wraps a Generator with prompts and fallbacks. Its methods never
// fail; callers get fallback text when the model is unavailable.
type Assistant struct {
	gen Generator
	log zerolog.Logger
}

// NewAssistant returns an Assistant; a nil gen always yields fallbacks.
func NewAssistant(gen Generator, log zerolog.Logger) *Assistant {
	return &Assistant{gen: gen, log: log}
}

// DescribeService writes a one-sentence line-item description for a
// catalog service, falling back to the catalog text or the service name.
func (a *Assistant) DescribeService(ctx context.Context, svc *models.Service) string {
	fallback := strings.TrimSpace(svc.Description)
	if fallback == "" {
		fallback = svc.Name
	}
	if a == nil || a.gen == nil {
		return fallback
	}

	prompt := fmt.Sprintf("Generate a professional 1-sentence description for '%s' in the category '%s'.", svc.Name, svc.Category)
	text, err := a.gen.Generate(ctx, descriptionSystem, prompt)
	if err != nil {
		a.log.Debug().Err(err).Str("service_id", svc.ID.String()).Msg("using catalog description")
		return fallback
	}
	return text
}

// SummarizeInvoice writes a two-sentence analysis of inv. Templates get no
// summary.
func (a *Assistant) SummarizeInvoice(ctx context.Context, inv *models.Invoice, client *models.Client) string {
	if inv.IsRecurringTemplate {
		return ""
	}
	if a == nil || a.gen == nil {
		return SummaryUnavailable
	}

	name := "the client"
	if client != nil {
		name = client.CompanyName
		if name == "" {
			name = client.Name
		}
	}
	prompt := fmt.Sprintf("Invoice Summary for %s. Amount: ₦%s. Provide a concise professional analysis in 2 sentences.", name, formatAmount(inv.Total))
	text, err := a.gen.Generate(ctx, summarySystem, prompt)
	if err != nil {
		a.log.Debug().Err(err).Str("invoice_id", inv.ID.String()).Msg("invoice summary unavailable")
		return SummaryUnavailable
	}
	return text
}

// formatAmount renders d with thousands separators and two decimals.
func formatAmount(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
