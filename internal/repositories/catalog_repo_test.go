package repositories

import (
	"context"
	"testing"
	"time"

	"cravebiz/internal/apperror"
	"cravebiz/internal/models"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestClientRepo_Create(t *testing.T) {
	mock := newMockPool(t)
	repo := NewClientRepo(mock)
	tenantID := uuid.New()

	mock.ExpectExec(`INSERT INTO clients`).
		WithArgs(pgxmock.AnyArg(), tenantID, "Ada", "ada@example.com", "Engines Ltd").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	client := &models.Client{CompanyID: tenantID, Name: "Ada", Email: "ada@example.com", CompanyName: "Engines Ltd"}
	require.NoError(t, repo.Create(context.Background(), client))
	assert.NotEqual(t, uuid.Nil, client.ID)
}

func TestClientRepo_Create_RLSViolation(t *testing.T) {
	mock := newMockPool(t)
	repo := NewClientRepo(mock)

	mock.ExpectExec(`INSERT INTO clients`).
		WithArgs(anyArgs(5)...).
		WillReturnError(&pgconn.PgError{Code: "42501", Message: `new row violates row-level security policy for table "clients"`})

	err := repo.Create(context.Background(), &models.Client{CompanyID: uuid.New(), Name: "Ada"})
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
}

func TestClientRepo_GetByID_ScopedToTenant(t *testing.T) {
	mock := newMockPool(t)
	repo := NewClientRepo(mock)
	tenantID, id := uuid.New(), uuid.New()

	mock.ExpectQuery(`WHERE company_id = \$1 AND id = \$2`).
		WithArgs(tenantID, id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), tenantID, id)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestClientRepo_ListByCompany(t *testing.T) {
	mock := newMockPool(t)
	repo := NewClientRepo(mock)
	tenantID := uuid.New()

	mock.ExpectQuery(`FROM clients\s+WHERE company_id = \$1`).
		WithArgs(tenantID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "company_id", "name", "email", "company_name", "created_at"}).
			AddRow(uuid.New(), tenantID, "Ada", "ada@example.com", "Engines Ltd", time.Now()).
			AddRow(uuid.New(), tenantID, "Grace", "grace@example.com", "Compilers Inc", time.Now()))

	clients, err := repo.ListByCompany(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	for _, c := range clients {
		assert.Equal(t, tenantID, c.CompanyID)
	}
}

func TestServiceRepo_CreateAndList(t *testing.T) {
	mock := newMockPool(t)
	repo := NewServiceRepo(mock)
	tenantID := uuid.New()
	price := decimal.RequireFromString("75000.00")

	mock.ExpectExec(`INSERT INTO services`).
		WithArgs(pgxmock.AnyArg(), tenantID, "Logo design", "Design", "Primary mark", price).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`FROM services\s+WHERE company_id = \$1`).
		WithArgs(tenantID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "company_id", "name", "category", "description", "price", "created_at"}).
			AddRow(uuid.New(), tenantID, "Logo design", "Design", "Primary mark", "75000.00", time.Now()))

	svc := &models.Service{CompanyID: tenantID, Name: "Logo design", Category: "Design", Description: "Primary mark", Price: price}
	require.NoError(t, repo.Create(context.Background(), svc))

	services, err := repo.ListByCompany(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.True(t, services[0].Price.Equal(price))
}

func TestServiceRepo_GetByID_BadPrice(t *testing.T) {
	mock := newMockPool(t)
	repo := NewServiceRepo(mock)
	tenantID, id := uuid.New(), uuid.New()

	mock.ExpectQuery(`FROM services\s+WHERE company_id = \$1 AND id = \$2`).
		WithArgs(tenantID, id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "company_id", "name", "category", "description", "price", "created_at"}).
			AddRow(id, tenantID, "Logo design", "Design", "", "not-a-number", time.Now()))

	_, err := repo.GetByID(context.Background(), tenantID, id)
	assert.Error(t, err)
}

func TestProfileRepo_UpsertKeepsStoredStatus(t *testing.T) {
	mock := newMockPool(t)
	repo := NewProfileRepo(mock)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO profiles`).
		WithArgs(id, "Ada Lovelace", "ada@example.com", models.ProfileStatusPending, (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"status", "updated_at"}).AddRow(models.ProfileStatusActive, now))

	profile := &models.Profile{ID: id, FullName: "Ada Lovelace", Email: "ada@example.com", Status: models.ProfileStatusPending}
	require.NoError(t, repo.Upsert(context.Background(), profile))
	assert.Equal(t, models.ProfileStatusActive, profile.Status)
	assert.Equal(t, now, profile.UpdatedAt)
}

func TestProfileRepo_GetByID_NotFound(t *testing.T) {
	mock := newMockPool(t)
	repo := NewProfileRepo(mock)

	mock.ExpectQuery(`FROM profiles WHERE id = \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
