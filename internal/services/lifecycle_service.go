package services

import (
	"context"
	"errors"
	"time"

	"cravebiz/internal/apperror"
	"cravebiz/internal/billing"
	"cravebiz/internal/dispatch"
	"cravebiz/internal/models"
	"cravebiz/internal/repositories"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Lifecycle moves invoices through Draft, Sent and Paid. A transition either
// persists and updates the snapshot or leaves both untouched.
type Lifecycle interface {
	Send(ctx context.Context, tenantID, invoiceID uuid.UUID) (*models.Invoice, error)
	Resend(ctx context.Context, tenantID, invoiceID uuid.UUID) (*models.Invoice, error)
	MarkPaid(ctx context.Context, tenantID, invoiceID uuid.UUID) (*models.Invoice, error)
	SendReceipt(ctx context.Context, tenantID, invoiceID uuid.UUID) (*models.Invoice, error)
}

// SnapshotSyncer is satisfied by *tenantsync.Controller.
type SnapshotSyncer interface {
	PatchInvoice(inv *models.Invoice)
	Resync(ctx context.Context, tenantID uuid.UUID) (*models.TenantSnapshot, error)
}

type lifecycleService struct {
	invoices   repositories.InvoiceRepository
	clients    repositories.ClientRepository
	dispatcher dispatch.Dispatcher
	syncer     SnapshotSyncer
	log        zerolog.Logger
	now        func() time.Time
}

// NewLifecycleService wires the state machine. syncer may be nil when no
// snapshot is kept, as in the worker.
func NewLifecycleService(invoices repositories.InvoiceRepository, clients repositories.ClientRepository, dispatcher dispatch.Dispatcher, syncer SnapshotSyncer, log zerolog.Logger) Lifecycle {
	return &lifecycleService{
		invoices:   invoices,
		clients:    clients,
		dispatcher: dispatcher,
		syncer:     syncer,
		log:        log,
		now:        time.Now,
	}
}

func (s *lifecycleService) Send(ctx context.Context, tenantID, invoiceID uuid.UUID) (*models.Invoice, error) {
	return s.deliver(ctx, tenantID, invoiceID, billing.TransitionSend, dispatch.KindInvoice)
}

func (s *lifecycleService) Resend(ctx context.Context, tenantID, invoiceID uuid.UUID) (*models.Invoice, error) {
	return s.deliver(ctx, tenantID, invoiceID, billing.TransitionResend, dispatch.KindResend)
}

// deliver dispatches the invoice and records the send. Nothing is written
// when the relay rejects the request.
func (s *lifecycleService) deliver(ctx context.Context, tenantID, invoiceID uuid.UUID, t billing.Transition, kind dispatch.Kind) (*models.Invoice, error) {
	op := "invoice." + string(t)
	inv, err := s.load(ctx, op, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	next, err := billing.NextStatus(inv, t)
	if err != nil {
		return nil, err
	}
	client, err := s.recipient(ctx, op, inv)
	if err != nil {
		return nil, err
	}

	sentAt := s.now()
	if err := s.dispatcher.Dispatch(ctx, s.request(kind, inv, client, sentAt)); err != nil {
		s.log.Warn().Err(err).
			Str("tenant_id", tenantID.String()).
			Str("invoice_id", invoiceID.String()).
			Str("transition", string(t)).
			Msg("dispatch failed, status unchanged")
		return nil, apperror.Dispatch(op, err)
	}

	if err := s.invoices.MarkSent(ctx, tenantID, invoiceID, next, sentAt); err != nil {
		s.log.Error().Err(err).
			Str("invoice_id", invoiceID.String()).
			Msg("invoice dispatched but send not recorded")
		return nil, err
	}

	updated := inv.Clone()
	updated.Status = next
	updated.LastSentDate = &sentAt
	s.patch(updated)

	s.log.Info().
		Str("tenant_id", tenantID.String()).
		Str("invoice_number", inv.InvoiceNumber).
		Str("transition", string(t)).
		Msg("invoice dispatched")
	return updated, nil
}

func (s *lifecycleService) MarkPaid(ctx context.Context, tenantID, invoiceID uuid.UUID) (*models.Invoice, error) {
	const op = "invoice.mark_paid"
	inv, err := s.load(ctx, op, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	next, err := billing.NextStatus(inv, billing.TransitionMarkPaid)
	if err != nil {
		return nil, err
	}
	if err := s.invoices.UpdateStatus(ctx, tenantID, invoiceID, next); err != nil {
		return nil, err
	}

	updated := inv.Clone()
	updated.Status = next
	s.patch(updated)

	if s.syncer != nil {
		if _, err := s.syncer.Resync(ctx, tenantID); err != nil {
			// the payment is recorded; the patched snapshot stands until the next resync
			s.log.Warn().Err(err).Str("tenant_id", tenantID.String()).Msg("resync after payment failed")
		}
	}
	return updated, nil
}

func (s *lifecycleService) SendReceipt(ctx context.Context, tenantID, invoiceID uuid.UUID) (*models.Invoice, error) {
	const op = "invoice.send_receipt"
	inv, err := s.load(ctx, op, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if _, err := billing.NextStatus(inv, billing.TransitionSendReceipt); err != nil {
		return nil, err
	}
	client, err := s.recipient(ctx, op, inv)
	if err != nil {
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, s.request(dispatch.KindReceipt, inv, client, s.now())); err != nil {
		return nil, apperror.Dispatch(op, err)
	}
	if err := s.invoices.MarkReceiptSent(ctx, tenantID, invoiceID); err != nil {
		return nil, err
	}

	updated := inv.Clone()
	updated.IsReceiptSent = true
	s.patch(updated)
	return updated, nil
}

func (s *lifecycleService) load(ctx context.Context, op string, tenantID, invoiceID uuid.UUID) (*models.Invoice, error) {
	if err := requireTenant(op, tenantID); err != nil {
		return nil, err
	}
	inv, err := s.invoices.GetByID(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.CompanyID != tenantID {
		return nil, apperror.NotFound(op, "invoice")
	}
	return inv, nil
}

func (s *lifecycleService) recipient(ctx context.Context, op string, inv *models.Invoice) (*models.Client, error) {
	client, err := s.clients.GetByID(ctx, inv.CompanyID, inv.ClientID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.TenantScope(op, "invoice client does not belong to this company")
		}
		return nil, err
	}
	return client, nil
}

func (s *lifecycleService) request(kind dispatch.Kind, inv *models.Invoice, client *models.Client, at time.Time) dispatch.Request {
	return dispatch.Request{
		Kind:          kind,
		TenantID:      inv.CompanyID,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		ClientName:    client.Name,
		ClientEmail:   client.Email,
		Total:         inv.Total,
		DueDate:       inv.DueDate,
		RequestedAt:   at,
	}
}

func (s *lifecycleService) patch(inv *models.Invoice) {
	if s.syncer != nil {
		s.syncer.PatchInvoice(inv)
	}
}
