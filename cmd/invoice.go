package main

import (
	"context"
	"fmt"

	"cravebiz/internal/apperror"
	"cravebiz/internal/logger"
	"cravebiz/internal/models"
	"cravebiz/internal/services"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Deliver invoices and record payments",
	Long: `Drives one invoice through its lifecycle. Delivery goes through the
dispatch relay; the invoice is only updated after the relay accepts it.`,
}

type lifecycleAction func(lc services.Lifecycle, ctx context.Context, tenantID, invoiceID uuid.UUID) (*models.Invoice, error)

func init() {
	rootCmd.AddCommand(invoiceCmd)

	actions := []struct {
		use, short string
		action     lifecycleAction
	}{
		{"send", "Send a draft invoice to its client", services.Lifecycle.Send},
		{"resend", "Send a reminder for a sent or overdue invoice", services.Lifecycle.Resend},
		{"mark-paid", "Record payment for an invoice", services.Lifecycle.MarkPaid},
		{"receipt", "Send the payment receipt for a paid invoice", services.Lifecycle.SendReceipt},
	}
	for _, a := range actions {
		sub := &cobra.Command{
			Use:   a.use,
			Short: a.short,
			RunE:  lifecycleRunE(a.action),
		}
		sub.Flags().String("tenant", "", "Company (tenant) ID")
		sub.Flags().String("id", "", "Invoice ID")
		_ = sub.MarkFlagRequired("tenant")
		_ = sub.MarkFlagRequired("id")
		invoiceCmd.AddCommand(sub)
	}
}

func lifecycleRunE(action lifecycleAction) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		log := logger.WithComponent("invoice")

		tenantID, err := uuidFlag(cmd, "tenant")
		if err != nil {
			return err
		}
		invoiceID, err := uuidFlag(cmd, "id")
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		snapshots := a.snapshots(a.workspace())
		if _, err := snapshots.SwitchTenant(cmd.Context(), tenantID); err != nil {
			return fmt.Errorf("load tenant: %s", apperror.UserMessage(err))
		}
		lc, err := a.lifecycle(snapshots)
		if err != nil {
			return err
		}

		inv, err := action(lc, cmd.Context(), tenantID, invoiceID)
		if err != nil {
			return fmt.Errorf("%s: %s", cmd.Name(), apperror.UserMessage(err))
		}
		log.Info().
			Str("invoice_id", inv.ID.String()).
			Str("status", string(inv.Status)).
			Msg("invoice updated")
		return printJSON(inv)
	}
}
