package main

import (
	"fmt"

	"cravebiz/internal/apperror"
	"cravebiz/internal/logger"
	"cravebiz/internal/reports"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a tenant's derived invoicing report",
	Long: `Loads the tenant's invoices, clients and services and prints the
summary, revenue by service, client lifetime value, aging buckets and
monthly averages as JSON.

With --invoice the command prints an AI summary of that invoice instead.`,
	Example: `  cravebiz report --tenant 6f1c... --range this_quarter
  cravebiz report --tenant 6f1c... --invoice 9a02...`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("tenant", "", "Company (tenant) ID")
	reportCmd.Flags().String("range", string(reports.RangeAllTime), "all_time, last_30_days, this_quarter or this_year")
	reportCmd.Flags().String("as-of", "", "Report date (format: YYYY-MM-DD, default: today)")
	reportCmd.Flags().String("invoice", "", "Summarize this invoice instead")
	_ = reportCmd.MarkFlagRequired("tenant")
}

func runReport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("report")

	tenantID, err := uuidFlag(cmd, "tenant")
	if err != nil {
		return err
	}
	rawRange, _ := cmd.Flags().GetString("range")
	dateRange, err := reports.ParseDateRange(rawRange)
	if err != nil {
		return err
	}
	asOf, err := dateFlag(cmd, "as-of")
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.snapshots(a.workspace()).SwitchTenant(cmd.Context(), tenantID)
	if err != nil {
		return fmt.Errorf("load tenant: %s", apperror.UserMessage(err))
	}

	if raw, _ := cmd.Flags().GetString("invoice"); raw != "" {
		invoiceID, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid --invoice: %w", err)
		}
		summary, err := reports.SummarizeInvoice(cmd.Context(), a.assistant, snap, invoiceID)
		if err != nil {
			return fmt.Errorf("summarize: %s", apperror.UserMessage(err))
		}
		fmt.Println(summary)
		return nil
	}

	report, err := reports.Build(snap, dateRange, asOf)
	if err != nil {
		return err
	}
	log.Debug().
		Str("tenant_id", tenantID.String()).
		Str("range", string(dateRange)).
		Int("invoices", report.Summary.Invoices).
		Msg("report built")
	return printJSON(report)
}

func uuidFlag(cmd *cobra.Command, name string) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return id, nil
}
