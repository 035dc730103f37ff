package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDB(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target *Error
		column string
	}{
		{
			name:   "insufficient privilege",
			err:    &pgconn.PgError{Code: "42501", Message: "permission denied for table invoices"},
			target: ErrPermissionDenied,
		},
		{
			name:   "row level security message",
			err:    &pgconn.PgError{Code: "P0001", Message: `new row violates row-level security policy for table "invoices"`},
			target: ErrPermissionDenied,
		},
		{
			name:   "undefined column",
			err:    &pgconn.PgError{Code: "42703", Message: `column "manual_bank_name" of relation "invoices" does not exist`},
			target: ErrSchemaMismatch,
			column: "manual_bank_name",
		},
		{
			name:   "gateway missing column message",
			err:    errors.New("Could not find the 'parent_invoice_id' column of 'invoices' in the schema cache"),
			target: ErrSchemaMismatch,
			column: "parent_invoice_id",
		},
		{
			name:   "no rows",
			err:    pgx.ErrNoRows,
			target: ErrNotFound,
		},
		{
			name:   "network",
			err:    errors.New("connection reset by peer"),
			target: ErrTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromDB("invoices.create", tt.err)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.ErrorIs(t, err, tt.err)

			var appErr *Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, "invoices.create", appErr.Op)
			assert.Equal(t, tt.column, appErr.Column)
		})
	}
}

func TestFromDB_PassesTypedErrorsThrough(t *testing.T) {
	orig := TenantScope("op", "client belongs to another company")
	assert.Same(t, orig, FromDB("other", orig))
	assert.NoError(t, FromDB("op", nil))
}

func TestIs_KindAndCause(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Persistence("op", CauseSchemaMismatch, errors.New("boom")))

	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.NotErrorIs(t, err, ErrPermissionDenied)
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestMissingColumn(t *testing.T) {
	col, ok := MissingColumn("Could not find the 'next_recurrence_date' column of 'invoices' in the schema cache")
	assert.True(t, ok)
	assert.Equal(t, "next_recurrence_date", col)

	col, ok = MissingColumn(`column "i.last_sent_date" does not exist`)
	assert.True(t, ok)
	assert.Equal(t, "last_sent_date", col)

	_, ok = MissingColumn("duplicate key value violates unique constraint")
	assert.False(t, ok)
}

func TestUserMessage(t *testing.T) {
	denied := FromDB("companies.update", &pgconn.PgError{Code: "42501", Message: "permission denied"})
	assert.Contains(t, UserMessage(denied), "HINT: Database permission denied")

	plain := Validation("invoices.create", FieldError{Field: "client_id", Message: "is required"})
	assert.NotContains(t, UserMessage(plain), "HINT")
	assert.Contains(t, UserMessage(plain), "client_id is required")
	assert.Empty(t, UserMessage(nil))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, StatusCode(Validation("op")))
	assert.Equal(t, http.StatusForbidden, StatusCode(TenantScope("op", "x")))
	assert.Equal(t, http.StatusNotFound, StatusCode(NotFound("op", "invoice")))
	assert.Equal(t, http.StatusBadGateway, StatusCode(Dispatch("op", errors.New("smtp"))))
	assert.Equal(t, http.StatusForbidden, StatusCode(Persistence("op", CausePermissionDenied, nil)))
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(Persistence("op", CauseTransient, nil)))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("other")))
}
