package services

import (
	"context"
	"io"
	"time"

	"cravebiz/internal/dispatch"
	"cravebiz/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) ListByCompany(ctx context.Context, tenantID uuid.UUID) ([]*models.Invoice, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status models.InvoiceStatus) error {
	args := m.Called(ctx, tenantID, id, status)
	return args.Error(0)
}

func (m *MockInvoiceRepository) MarkSent(ctx context.Context, tenantID, id uuid.UUID, status models.InvoiceStatus, sentAt time.Time) error {
	args := m.Called(ctx, tenantID, id, status, sentAt)
	return args.Error(0)
}

func (m *MockInvoiceRepository) MarkReceiptSent(ctx context.Context, tenantID, id uuid.UUID) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

func (m *MockInvoiceRepository) ListDueTemplates(ctx context.Context, asOf time.Time) ([]*models.Invoice, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) CreateInstanceAndAdvance(ctx context.Context, instance *models.Invoice, next time.Time) (bool, error) {
	args := m.Called(ctx, instance, next)
	return args.Bool(0), args.Error(1)
}

func (m *MockInvoiceRepository) MissingOptionalColumns(ctx context.Context) []string {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

type MockClientRepository struct {
	mock.Mock
}

func (m *MockClientRepository) Create(ctx context.Context, client *models.Client) error {
	args := m.Called(ctx, client)
	return args.Error(0)
}

func (m *MockClientRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Client, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Client), args.Error(1)
}

func (m *MockClientRepository) ListByCompany(ctx context.Context, tenantID uuid.UUID) ([]*models.Client, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Client), args.Error(1)
}

type MockServiceRepository struct {
	mock.Mock
}

func (m *MockServiceRepository) Create(ctx context.Context, service *models.Service) error {
	args := m.Called(ctx, service)
	return args.Error(0)
}

func (m *MockServiceRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Service, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Service), args.Error(1)
}

func (m *MockServiceRepository) ListByCompany(ctx context.Context, tenantID uuid.UUID) ([]*models.Service, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Service), args.Error(1)
}

type MockCompanyRepository struct {
	mock.Mock
}

func (m *MockCompanyRepository) Create(ctx context.Context, company *models.Company, ownerID uuid.UUID) error {
	args := m.Called(ctx, company, ownerID)
	return args.Error(0)
}

func (m *MockCompanyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Company), args.Error(1)
}

func (m *MockCompanyRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Company, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Company), args.Error(1)
}

func (m *MockCompanyRepository) Update(ctx context.Context, company *models.Company) error {
	args := m.Called(ctx, company)
	return args.Error(0)
}

func (m *MockCompanyRepository) UpdateLogo(ctx context.Context, id uuid.UUID, logoURL string) error {
	args := m.Called(ctx, id, logoURL)
	return args.Error(0)
}

func (m *MockCompanyRepository) IsMember(ctx context.Context, companyID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, companyID, userID)
	return args.Bool(0), args.Error(1)
}

type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) Upsert(ctx context.Context, profile *models.Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *MockProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, req dispatch.Request) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

type MockSyncer struct {
	mock.Mock
}

func (m *MockSyncer) PatchInvoice(inv *models.Invoice) {
	m.Called(inv)
}

func (m *MockSyncer) Resync(ctx context.Context, tenantID uuid.UUID) (*models.TenantSnapshot, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TenantSnapshot), args.Error(1)
}

type MockCacheService struct {
	mock.Mock
}

func (m *MockCacheService) AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, name, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockCacheService) ReleaseLock(ctx context.Context, name, token string) error {
	args := m.Called(ctx, name, token)
	return args.Error(0)
}

func (m *MockCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheService) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockCacheService) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockLogoStore struct {
	mock.Mock
}

func (m *MockLogoStore) UploadLogo(ctx context.Context, tenantID uuid.UUID, reader io.Reader, size int64, contentType string) (string, error) {
	args := m.Called(ctx, tenantID, reader, size, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockLogoStore) DeleteObject(ctx context.Context, objectName string) error {
	args := m.Called(ctx, objectName)
	return args.Error(0)
}

func (m *MockLogoStore) EnsureBucketExists(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockLogoStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	args := m.Called(ctx, system, prompt)
	return args.String(0), args.Error(1)
}
