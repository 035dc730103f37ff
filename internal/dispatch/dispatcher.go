// Package dispatch hands invoices and receipts to the delivery relay.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindInvoice Kind = "invoice"
	KindResend  Kind = "invoice_resend"
	KindReceipt Kind = "receipt"
)

// Request is one delivery. The relay addresses the client, renders the
// document and reports back out of band.
type Request struct {
	Kind          Kind            `json:"kind"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientName    string          `json:"client_name"`
	ClientEmail   string          `json:"client_email"`
	Total         decimal.Decimal `json:"total"`
	DueDate       time.Time       `json:"due_date"`
	RequestedAt   time.Time       `json:"requested_at"`
}

// Dispatcher returns only after the relay has accepted the request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDispatcher publishes requests to the relay topic and waits for all
// in-sync replicas to acknowledge.
type KafkaDispatcher struct {
	writer  messageWriter
	timeout time.Duration
	log     zerolog.Logger
}

func NewKafkaDispatcher(brokers []string, topic string, timeout time.Duration, log zerolog.Logger) *KafkaDispatcher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    1,
	}
	return newKafkaDispatcher(writer, timeout, log)
}

func newKafkaDispatcher(writer messageWriter, timeout time.Duration, log zerolog.Logger) *KafkaDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KafkaDispatcher{writer: writer, timeout: timeout, log: log}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, req Request) error {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch request: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(req.InvoiceID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(req.Kind)},
			{Key: "tenant_id", Value: []byte(req.TenantID.String())},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		d.log.Error().Err(err).
			Str("kind", string(req.Kind)).
			Str("invoice_id", req.InvoiceID.String()).
			Msg("dispatch write failed")
		return fmt.Errorf("failed to write dispatch request: %w", err)
	}

	d.log.Info().
		Str("kind", string(req.Kind)).
		Str("invoice_id", req.InvoiceID.String()).
		Str("tenant_id", req.TenantID.String()).
		Msg("dispatch accepted by relay")
	return nil
}

func (d *KafkaDispatcher) Close() error {
	if err := d.writer.Close(); err != nil {
		return fmt.Errorf("failed to close dispatch writer: %w", err)
	}
	return nil
}
