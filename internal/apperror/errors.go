package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a failure for callers that render or route it.
type Kind string

const (
	KindValidation           Kind = "validation"
	KindTenantScope          Kind = "tenant_scope"
	KindNotFound             Kind = "not_found"
	KindPersistence          Kind = "persistence"
	KindRecurrenceGeneration Kind = "recurrence_generation"
	KindDispatch             Kind = "dispatch"
)

// Cause subdivides persistence failures.
type Cause string

const (
	CauseTransient        Cause = "transient"
	CausePermissionDenied Cause = "permission_denied"
	CauseSchemaMismatch   Cause = "schema_mismatch"
)

const (
	pgCodeInsufficientPrivilege = "42501"
	pgCodeUndefinedColumn       = "42703"

	permissionHint = "(HINT: Database permission denied. Check the row-level security policies for this table.)"
)

// FieldError represents a validation error for a specific field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the typed failure returned by core operations.
type Error struct {
	Kind    Kind         `json:"kind"`
	Cause   Cause        `json:"cause,omitempty"`
	Op      string       `json:"op,omitempty"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
	// Column is the rejected column for schema mismatches, when known.
	Column string `json:"column,omitempty"`
	Err    error  `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Cause != "" {
		b.WriteString(" (")
		b.WriteString(string(e.Cause))
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind, and by Cause when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Cause == "" || t.Cause == e.Cause
}

// Sentinels for errors.Is.
var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrTenantScope          = &Error{Kind: KindTenantScope}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrPersistence          = &Error{Kind: KindPersistence}
	ErrTransient            = &Error{Kind: KindPersistence, Cause: CauseTransient}
	ErrPermissionDenied     = &Error{Kind: KindPersistence, Cause: CausePermissionDenied}
	ErrSchemaMismatch       = &Error{Kind: KindPersistence, Cause: CauseSchemaMismatch}
	ErrRecurrenceGeneration = &Error{Kind: KindRecurrenceGeneration}
	ErrDispatch             = &Error{Kind: KindDispatch}
)

func Validation(op string, fields ...FieldError) *Error {
	msg := "validation failed"
	if len(fields) == 1 {
		msg = fields[0].Field + " " + fields[0].Message
	} else if len(fields) > 1 {
		msg = fmt.Sprintf("validation failed on %d fields", len(fields))
	}
	return &Error{Kind: KindValidation, Op: op, Message: msg, Fields: fields}
}

func TenantScope(op, message string) *Error {
	return &Error{Kind: KindTenantScope, Op: op, Message: message}
}

func NotFound(op, resource string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: resource + " not found"}
}

func Dispatch(op string, err error) *Error {
	return &Error{Kind: KindDispatch, Op: op, Message: "dispatch failed", Err: err}
}

func RecurrenceGeneration(op string, err error) *Error {
	return &Error{Kind: KindRecurrenceGeneration, Op: op, Message: "instance generation failed", Err: err}
}

// Persistence wraps err as a persistence failure with an explicit cause.
func Persistence(op string, cause Cause, err error) *Error {
	return &Error{Kind: KindPersistence, Cause: cause, Op: op, Err: err}
}

var missingColumnPatterns = []*regexp.Regexp{
	regexp.MustCompile(`column "([^"]+)"(?: of relation "[^"]+")? does not exist`),
	regexp.MustCompile(`Could not find the '([^']+)' column`),
}

// MissingColumn extracts the column name from an undefined-column message.
func MissingColumn(message string) (string, bool) {
	for _, re := range missingColumnPatterns {
		if m := re.FindStringSubmatch(message); len(m) == 2 {
			name := m[1]
			if i := strings.LastIndex(name, "."); i >= 0 {
				name = name[i+1:]
			}
			return name, true
		}
	}
	return "", false
}

// FromDB converts a pgx error into a typed persistence error.
// Errors that are already typed pass through unchanged.
func FromDB(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &Error{Kind: KindNotFound, Op: op, Message: "record not found", Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgCodeInsufficientPrivilege || isRLSMessage(pgErr.Message):
			return Persistence(op, CausePermissionDenied, err)
		case pgErr.Code == pgCodeUndefinedColumn:
			e := Persistence(op, CauseSchemaMismatch, err)
			if pgErr.ColumnName != "" {
				e.Column = pgErr.ColumnName
			} else if col, ok := MissingColumn(pgErr.Message); ok {
				e.Column = col
			}
			return e
		}
	} else if col, ok := MissingColumn(err.Error()); ok {
		// gateways in front of the database only report the message
		e := Persistence(op, CauseSchemaMismatch, err)
		e.Column = col
		return e
	} else if isRLSMessage(err.Error()) {
		return Persistence(op, CausePermissionDenied, err)
	}
	return Persistence(op, CauseTransient, err)
}

func isRLSMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "row-level security") || strings.Contains(msg, "RLS")
}

// KindOf returns the Kind of err, or "" for untyped errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// UserMessage renders err for display, adding a hint for permission failures.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if errors.Is(err, ErrPermissionDenied) {
		return msg + " " + permissionHint
	}
	return msg
}

// StatusCode maps err to an HTTP status for the ops surface.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindTenantScope:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindDispatch:
		return http.StatusBadGateway
	case KindPersistence:
		if errors.Is(err, ErrPermissionDenied) {
			return http.StatusForbidden
		}
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
