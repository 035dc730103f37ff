package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cravebiz/internal/apperror"
	"cravebiz/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

type InvoiceRepository interface {
	// Create allocates the invoice number and writes header and items in one transaction.
	Create(ctx context.Context, invoice *models.Invoice) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error)
	ListByCompany(ctx context.Context, tenantID uuid.UUID) ([]*models.Invoice, error)
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status models.InvoiceStatus) error
	MarkSent(ctx context.Context, tenantID, id uuid.UUID, status models.InvoiceStatus, sentAt time.Time) error
	MarkReceiptSent(ctx context.Context, tenantID, id uuid.UUID) error
	// ListDueTemplates returns templates of every tenant whose next date is on or before asOf.
	ListDueTemplates(ctx context.Context, asOf time.Time) ([]*models.Invoice, error)
	// CreateInstanceAndAdvance writes a generated instance unless one already
	// exists for (parent, issue date), then moves the template's next date
	// forward. It reports whether a new instance was written.
	CreateInstanceAndAdvance(ctx context.Context, instance *models.Invoice, next time.Time) (bool, error)
	// MissingOptionalColumns lists optional columns the store does not have.
	MissingOptionalColumns(ctx context.Context) []string
}

type invoiceColumn struct {
	name     string
	optional bool
	// placeholder is selected in place of a missing optional column
	placeholder string
	cast        string
	value       func(*models.Invoice) any
}

var invoiceColumns = []invoiceColumn{
	{name: "id", value: func(i *models.Invoice) any { return i.ID }},
	{name: "company_id", value: func(i *models.Invoice) any { return i.CompanyID }},
	{name: "invoice_number", value: func(i *models.Invoice) any { return i.InvoiceNumber }},
	{name: "client_id", value: func(i *models.Invoice) any { return i.ClientID }},
	{name: "issue_date", value: func(i *models.Invoice) any { return i.IssueDate }},
	{name: "due_date", value: func(i *models.Invoice) any { return i.DueDate }},
	{name: "total", cast: "::text", value: func(i *models.Invoice) any { return i.Total }},
	{name: "status", value: func(i *models.Invoice) any { return string(i.Status) }},
	{name: "payment_terms", value: func(i *models.Invoice) any { return i.PaymentTerms }},
	{name: "frequency", value: func(i *models.Invoice) any { return string(i.Frequency) }},
	{name: "is_recurring_template", value: func(i *models.Invoice) any { return i.IsRecurringTemplate }},
	{name: "selected_bank_account_id", optional: true, placeholder: "NULL::uuid", value: func(i *models.Invoice) any { return i.SelectedBankAccountID }},
	{name: "manual_bank_name", optional: true, placeholder: "NULL::text", value: func(i *models.Invoice) any { return i.ManualBankName }},
	{name: "manual_account_name", optional: true, placeholder: "NULL::text", value: func(i *models.Invoice) any { return i.ManualAccountName }},
	{name: "manual_account_number", optional: true, placeholder: "NULL::text", value: func(i *models.Invoice) any { return i.ManualAccountNumber }},
	{name: "next_recurrence_date", optional: true, placeholder: "NULL::date", value: func(i *models.Invoice) any { return i.NextRecurrenceDate }},
	{name: "parent_invoice_id", optional: true, placeholder: "NULL::uuid", value: func(i *models.Invoice) any { return i.ParentInvoiceID }},
	{name: "last_sent_date", optional: true, placeholder: "NULL::date", value: func(i *models.Invoice) any { return i.LastSentDate }},
	{name: "is_receipt_sent", optional: true, placeholder: "FALSE", value: func(i *models.Invoice) any { return i.IsReceiptSent }},
}

// OptionalInvoiceColumns lists the invoice columns that may be absent from
// older schemas. Writes omit them when absent.
func OptionalInvoiceColumns() []string {
	var out []string
	for _, c := range invoiceColumns {
		if c.optional {
			out = append(out, c.name)
		}
	}
	return out
}

func isOptionalInvoiceColumn(name string) bool {
	for _, c := range invoiceColumns {
		if c.name == name {
			return c.optional
		}
	}
	return false
}

type invoiceRepo struct {
	db  DB
	log zerolog.Logger

	mu sync.Mutex
	// present is nil until the column lookup succeeds
	present map[string]bool
}

func NewInvoiceRepo(db DB, log zerolog.Logger) InvoiceRepository {
	return &invoiceRepo{db: db, log: log}
}

// columns returns which optional columns the store has. The first
// successful lookup is cached; later schema errors only remove entries.
func (r *invoiceRepo) columns(ctx context.Context) map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.present == nil {
		if present, err := r.loadColumns(ctx); err != nil {
			r.log.Warn().Err(err).Msg("invoice column lookup failed, assuming full schema")
		} else {
			r.present = present
		}
	}

	out := make(map[string]bool)
	for _, name := range OptionalInvoiceColumns() {
		out[name] = r.present == nil || r.present[name]
	}
	return out
}

func (r *invoiceRepo) loadColumns(ctx context.Context) (map[string]bool, error) {
	query := `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = 'invoices'
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, errors.New("invoices table not visible in information_schema")
	}

	present := make(map[string]bool)
	for _, name := range OptionalInvoiceColumns() {
		present[name] = found[name]
		if !found[name] {
			r.log.Warn().Str("column", name).Msg("optional invoice column missing from schema; it will not be stored")
		}
	}
	return present, nil
}

func (r *invoiceRepo) markMissing(col string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.present == nil {
		r.present = make(map[string]bool)
		for _, name := range OptionalInvoiceColumns() {
			r.present[name] = true
		}
	}
	r.present[col] = false
}

func (r *invoiceRepo) MissingOptionalColumns(ctx context.Context) []string {
	var missing []string
	for name, ok := range r.columns(ctx) {
		if !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// withSchemaRetry runs write with the current column set. When the store
// rejects an optional column that was included, the column is recorded as
// missing and write runs again without it. Pinned columns are never dropped.
func (r *invoiceRepo) withSchemaRetry(ctx context.Context, op string, invoiceID uuid.UUID, pinned []string, write func(present map[string]bool) error) error {
	for {
		present := r.columns(ctx)
		err := apperror.FromDB(op, write(present))
		if err == nil {
			return nil
		}

		var appErr *apperror.Error
		if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrSchemaMismatch) {
			return err
		}
		col := appErr.Column
		if col == "" || !isOptionalInvoiceColumn(col) || !present[col] || contains(pinned, col) {
			return err
		}

		r.log.Warn().
			Str("op", op).
			Str("column", col).
			Str("invoice_id", invoiceID.String()).
			Msg("store rejected optional invoice column, retrying without it")
		r.markMissing(col)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func selectInvoiceColumns(present map[string]bool) string {
	parts := make([]string, 0, len(invoiceColumns)+2)
	for _, c := range invoiceColumns {
		if c.optional && !present[c.name] {
			parts = append(parts, c.placeholder+" AS "+c.name)
			continue
		}
		parts = append(parts, c.name+c.cast)
	}
	parts = append(parts, "created_at", "updated_at")
	return strings.Join(parts, ", ")
}

func insertInvoiceStatement(present map[string]bool, inv *models.Invoice) (string, []any) {
	names := make([]string, 0, len(invoiceColumns)+2)
	marks := make([]string, 0, len(invoiceColumns)+2)
	args := make([]any, 0, len(invoiceColumns))
	for _, c := range invoiceColumns {
		if c.optional && !present[c.name] {
			continue
		}
		args = append(args, c.value(inv))
		names = append(names, c.name)
		marks = append(marks, fmt.Sprintf("$%d", len(args)))
	}
	names = append(names, "created_at", "updated_at")
	marks = append(marks, "NOW()", "NOW()")

	query := "INSERT INTO invoices (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	return query, args
}

type invoiceRow struct {
	inv       models.Invoice
	total     string
	status    string
	frequency string
}

func (s *invoiceRow) dest() []any {
	i := &s.inv
	return []any{
		&i.ID, &i.CompanyID, &i.InvoiceNumber, &i.ClientID, &i.IssueDate, &i.DueDate,
		&s.total, &s.status, &i.PaymentTerms, &s.frequency, &i.IsRecurringTemplate,
		&i.SelectedBankAccountID, &i.ManualBankName, &i.ManualAccountName, &i.ManualAccountNumber,
		&i.NextRecurrenceDate, &i.ParentInvoiceID, &i.LastSentDate, &i.IsReceiptSent,
		&i.CreatedAt, &i.UpdatedAt,
	}
}

func (s *invoiceRow) invoice() (*models.Invoice, error) {
	total, err := parseDecimal(s.total)
	if err != nil {
		return nil, fmt.Errorf("invoice %s total: %w", s.inv.ID, err)
	}
	inv := s.inv
	inv.Total = total
	inv.Status = models.InvoiceStatus(s.status)
	inv.Frequency = models.Frequency(s.frequency)
	inv.Items = []models.InvoiceItem{}
	return &inv, nil
}

func scanInvoices(rows pgx.Rows) ([]*models.Invoice, error) {
	defer rows.Close()
	var invoices []*models.Invoice
	for rows.Next() {
		var row invoiceRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, err
		}
		inv, err := row.invoice()
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

const selectItemColumns = `ii.id, ii.invoice_id, ii.service_id, ii.description, ii.quantity::text, ii.price::text`

func loadItems(ctx context.Context, q querier, query string, args ...any) (map[uuid.UUID][]models.InvoiceItem, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[uuid.UUID][]models.InvoiceItem)
	for rows.Next() {
		var (
			it         models.InvoiceItem
			serviceID  *uuid.UUID
			qty, price string
		)
		if err := rows.Scan(&it.ID, &it.InvoiceID, &serviceID, &it.Description, &qty, &price); err != nil {
			return nil, err
		}
		it.ServiceID = derefUUID(serviceID)
		if it.Quantity, err = parseDecimal(qty); err != nil {
			return nil, fmt.Errorf("item %s quantity: %w", it.ID, err)
		}
		if it.Price, err = parseDecimal(price); err != nil {
			return nil, fmt.Errorf("item %s price: %w", it.ID, err)
		}
		items[it.InvoiceID] = append(items[it.InvoiceID], it)
	}
	return items, rows.Err()
}

func attachItems(invoices []*models.Invoice, items map[uuid.UUID][]models.InvoiceItem) {
	for _, inv := range invoices {
		if its, ok := items[inv.ID]; ok {
			inv.Items = its
		}
	}
}

func insertItems(ctx context.Context, q querier, inv *models.Invoice) error {
	query := `
		INSERT INTO invoice_items (id, invoice_id, position, service_id, description, quantity, price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i := range inv.Items {
		it := &inv.Items[i]
		if _, err := q.Exec(ctx, query, it.ID, inv.ID, i, nullableUUID(it.ServiceID), it.Description, it.Quantity, it.Price); err != nil {
			return fmt.Errorf("insert item %d: %w", i, err)
		}
	}
	return nil
}

func prepareItems(inv *models.Invoice) {
	for i := range inv.Items {
		if inv.Items[i].ID == uuid.Nil {
			inv.Items[i].ID = uuid.New()
		}
		inv.Items[i].InvoiceID = inv.ID
	}
}

// nextInvoiceNumber allocates the tenant's next number for the issue month.
func nextInvoiceNumber(ctx context.Context, q querier, tenantID uuid.UUID, issueDate time.Time) (string, error) {
	yearMonth := issueDate.Format("200601")
	query := `
		INSERT INTO invoice_sequences (company_id, year_month, last_number, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (company_id, year_month)
		DO UPDATE SET last_number = invoice_sequences.last_number + 1, updated_at = NOW()
		RETURNING last_number
	`
	var seq int
	if err := q.QueryRow(ctx, query, tenantID, yearMonth).Scan(&seq); err != nil {
		return "", fmt.Errorf("allocate invoice number: %w", err)
	}
	return fmt.Sprintf("INV-%s-%06d", yearMonth, seq), nil
}

func (r *invoiceRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	const op = "invoices.create"
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	prepareItems(invoice)

	var number string
	err := r.withSchemaRetry(ctx, op, invoice.ID, nil, func(present map[string]bool) error {
		return inTx(ctx, r.db, func(tx pgx.Tx) error {
			row := *invoice
			if row.InvoiceNumber == "" {
				n, err := nextInvoiceNumber(ctx, tx, row.CompanyID, row.IssueDate)
				if err != nil {
					return err
				}
				row.InvoiceNumber = n
			}
			query, args := insertInvoiceStatement(present, &row)
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return err
			}
			if err := insertItems(ctx, tx, &row); err != nil {
				return err
			}
			number = row.InvoiceNumber
			return nil
		})
	})
	if err != nil {
		return err
	}
	invoice.InvoiceNumber = number
	return nil
}

func (r *invoiceRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error) {
	const op = "invoices.get"
	query := `SELECT ` + selectInvoiceColumns(r.columns(ctx)) + ` FROM invoices WHERE company_id = $1 AND id = $2`

	var row invoiceRow
	if err := r.db.QueryRow(ctx, query, tenantID, id).Scan(row.dest()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound(op, "invoice")
		}
		return nil, apperror.FromDB(op, err)
	}
	inv, err := row.invoice()
	if err != nil {
		return nil, apperror.FromDB(op, err)
	}

	items, err := loadItems(ctx, r.db, `
		SELECT `+selectItemColumns+`
		FROM invoice_items ii
		WHERE ii.invoice_id = $1
		ORDER BY ii.position
	`, inv.ID)
	if err != nil {
		return nil, apperror.FromDB(op, err)
	}
	attachItems([]*models.Invoice{inv}, items)
	return inv, nil
}

func (r *invoiceRepo) ListByCompany(ctx context.Context, tenantID uuid.UUID) ([]*models.Invoice, error) {
	const op = "invoices.list"
	query := `SELECT ` + selectInvoiceColumns(r.columns(ctx)) + `
		FROM invoices
		WHERE company_id = $1
		ORDER BY issue_date DESC, created_at DESC
	`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, apperror.FromDB(op, err)
	}
	invoices, err := scanInvoices(rows)
	if err != nil {
		return nil, apperror.FromDB(op, err)
	}
	if len(invoices) == 0 {
		return invoices, nil
	}

	items, err := loadItems(ctx, r.db, `
		SELECT `+selectItemColumns+`
		FROM invoice_items ii
		JOIN invoices i ON i.id = ii.invoice_id
		WHERE i.company_id = $1
		ORDER BY ii.invoice_id, ii.position
	`, tenantID)
	if err != nil {
		return nil, apperror.FromDB(op, err)
	}
	attachItems(invoices, items)
	return invoices, nil
}

func (r *invoiceRepo) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status models.InvoiceStatus) error {
	const op = "invoices.update_status"
	query := `
		UPDATE invoices
		SET status = $1, updated_at = NOW()
		WHERE company_id = $2 AND id = $3
	`
	tag, err := r.db.Exec(ctx, query, string(status), tenantID, id)
	if err != nil {
		return apperror.FromDB(op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound(op, "invoice")
	}
	return nil
}

func (r *invoiceRepo) MarkSent(ctx context.Context, tenantID, id uuid.UUID, status models.InvoiceStatus, sentAt time.Time) error {
	const op = "invoices.mark_sent"
	if !r.columns(ctx)["last_sent_date"] {
		r.log.Warn().Str("invoice_id", id.String()).Msg("last_sent_date missing from schema, storing status only")
		return r.UpdateStatus(ctx, tenantID, id, status)
	}

	query := `
		UPDATE invoices
		SET status = $1, last_sent_date = $2, updated_at = NOW()
		WHERE company_id = $3 AND id = $4
	`
	tag, err := r.db.Exec(ctx, query, string(status), sentAt, tenantID, id)
	if err != nil {
		return apperror.FromDB(op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound(op, "invoice")
	}
	return nil
}

func (r *invoiceRepo) MarkReceiptSent(ctx context.Context, tenantID, id uuid.UUID) error {
	const op = "invoices.mark_receipt_sent"
	if !r.columns(ctx)["is_receipt_sent"] {
		e := apperror.Persistence(op, apperror.CauseSchemaMismatch, nil)
		e.Column = "is_receipt_sent"
		return e
	}

	query := `
		UPDATE invoices
		SET is_receipt_sent = TRUE, updated_at = NOW()
		WHERE company_id = $1 AND id = $2
	`
	tag, err := r.db.Exec(ctx, query, tenantID, id)
	if err != nil {
		return apperror.FromDB(op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound(op, "invoice")
	}
	return nil
}

func (r *invoiceRepo) ListDueTemplates(ctx context.Context, asOf time.Time) ([]*models.Invoice, error) {
	const op = "invoices.list_due_templates"
	present := r.columns(ctx)
	if !present["next_recurrence_date"] {
		r.log.Warn().Msg("next_recurrence_date missing from schema, recurrence is disabled")
		return nil, nil
	}

	query := `SELECT ` + selectInvoiceColumns(present) + `
		FROM invoices
		WHERE is_recurring_template AND next_recurrence_date IS NOT NULL AND next_recurrence_date <= $1
		ORDER BY next_recurrence_date, id
	`
	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, apperror.FromDB(op, err)
	}
	templates, err := scanInvoices(rows)
	if err != nil {
		return nil, apperror.FromDB(op, err)
	}
	if len(templates) == 0 {
		return templates, nil
	}

	ids := make([]uuid.UUID, len(templates))
	for i, t := range templates {
		ids[i] = t.ID
	}
	items, err := loadItems(ctx, r.db, `
		SELECT `+selectItemColumns+`
		FROM invoice_items ii
		WHERE ii.invoice_id = ANY($1)
		ORDER BY ii.invoice_id, ii.position
	`, ids)
	if err != nil {
		return nil, apperror.FromDB(op, err)
	}
	attachItems(templates, items)
	return templates, nil
}

func (r *invoiceRepo) CreateInstanceAndAdvance(ctx context.Context, instance *models.Invoice, next time.Time) (bool, error) {
	const op = "invoices.create_instance"
	if instance.ParentInvoiceID == nil {
		return false, apperror.Validation(op, apperror.FieldError{Field: "parent_invoice_id", Message: "is required"})
	}
	present := r.columns(ctx)
	for _, col := range []string{"parent_invoice_id", "next_recurrence_date"} {
		if !present[col] {
			e := apperror.Persistence(op, apperror.CauseSchemaMismatch, nil)
			e.Column = col
			return false, e
		}
	}

	parentID := *instance.ParentInvoiceID
	prepareItems(instance)

	var created bool
	var number string
	pinned := []string{"parent_invoice_id", "next_recurrence_date"}
	err := r.withSchemaRetry(ctx, op, instance.ID, pinned, func(present map[string]bool) error {
		created, number = false, ""
		return inTx(ctx, r.db, func(tx pgx.Tx) error {
			var exists bool
			if err := tx.QueryRow(ctx, `
				SELECT EXISTS (SELECT 1 FROM invoices WHERE parent_invoice_id = $1 AND issue_date = $2)
			`, parentID, instance.IssueDate).Scan(&exists); err != nil {
				return err
			}

			if !exists {
				row := *instance
				n, err := nextInvoiceNumber(ctx, tx, row.CompanyID, row.IssueDate)
				if err != nil {
					return err
				}
				row.InvoiceNumber = n

				query, args := insertInvoiceStatement(present, &row)
				tag, err := tx.Exec(ctx, query+" ON CONFLICT (parent_invoice_id, issue_date) DO NOTHING", args...)
				if err != nil {
					return err
				}
				if tag.RowsAffected() == 1 {
					if err := insertItems(ctx, tx, &row); err != nil {
						return err
					}
					created, number = true, n
				}
			}

			_, err := tx.Exec(ctx, `
				UPDATE invoices
				SET next_recurrence_date = $1, updated_at = NOW()
				WHERE company_id = $2 AND id = $3 AND is_recurring_template AND next_recurrence_date <= $4
			`, next, instance.CompanyID, parentID, instance.IssueDate)
			return err
		})
	})
	if err != nil {
		return false, err
	}
	if created {
		instance.InvoiceNumber = number
	}
	return created, nil
}
