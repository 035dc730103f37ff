package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cravebiz/internal/apperror"
	"cravebiz/internal/billing"
	"cravebiz/internal/caching"
	"cravebiz/internal/identity"
	"cravebiz/internal/models"
	"cravebiz/internal/repositories"
	"cravebiz/internal/storage"
	"cravebiz/internal/textgen"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultCompanyName    = "My Workspace"
	defaultCompanyAddress = "Nigeria"
	defaultProfileName    = "User"

	draftItemLimit  = 30
	draftItemWindow = time.Minute
)

// Workspace is the tenant-scoped entry point. Every operation takes the
// tenant explicitly and never returns or accepts another tenant's records.
type Workspace interface {
	ListCompanies(ctx context.Context, principal identity.Principal) ([]*models.Company, error)
	CreateCompany(ctx context.Context, principal identity.Principal, req *CreateCompanyRequest) (*models.Company, error)
	EnsureProfile(ctx context.Context, principal identity.Principal, fullName string) (*models.Profile, error)
	Authorize(ctx context.Context, principal identity.Principal, tenantID uuid.UUID) error

	CreateClient(ctx context.Context, tenantID uuid.UUID, client *models.Client) (*models.Client, error)
	CreateService(ctx context.Context, tenantID uuid.UUID, service *models.Service) (*models.Service, error)
	// CreateInvoice stores a Draft invoice or a recurring template. client,
	// when given, is the caller's copy of the invoice's client and is checked
	// against tenantID before anything is read or written.
	CreateInvoice(ctx context.Context, tenantID uuid.UUID, invoice *models.Invoice, client *models.Client) (*models.Invoice, error)
	GetInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*models.Invoice, error)

	FetchClients(ctx context.Context, tenantID uuid.UUID) ([]*models.Client, error)
	FetchServices(ctx context.Context, tenantID uuid.UUID) ([]*models.Service, error)
	FetchInvoices(ctx context.Context, tenantID uuid.UUID) ([]*models.Invoice, error)

	UpdateCompany(ctx context.Context, tenantID uuid.UUID, company *models.Company) error
	UpdateInvoiceStatus(ctx context.Context, tenantID, invoiceID uuid.UUID, status models.InvoiceStatus) error

	DraftItem(ctx context.Context, tenantID, serviceID uuid.UUID, quantity decimal.Decimal) (models.InvoiceItem, error)
	UploadLogo(ctx context.Context, tenantID uuid.UUID, reader io.Reader, size int64, contentType string) (string, error)
}

type CreateCompanyRequest struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Email   string  `json:"email"`
	Phone   *string `json:"phone,omitempty"`
}

// WorkspaceDeps lists the collaborators of a Workspace. Logos, Assistant and
// Cache are optional.
type WorkspaceDeps struct {
	Clients   repositories.ClientRepository
	Services  repositories.ServiceRepository
	Invoices  repositories.InvoiceRepository
	Companies repositories.CompanyRepository
	Profiles  repositories.ProfileRepository
	Logos     storage.LogoStore
	Assistant *textgen.Assistant
	Cache     caching.CacheService
}

type workspaceService struct {
	clients   repositories.ClientRepository
	services  repositories.ServiceRepository
	invoices  repositories.InvoiceRepository
	companies repositories.CompanyRepository
	profiles  repositories.ProfileRepository
	logos     storage.LogoStore
	assistant *textgen.Assistant
	cache     caching.CacheService
	log       zerolog.Logger
}

func NewWorkspaceService(deps WorkspaceDeps, log zerolog.Logger) Workspace {
	return &workspaceService{
		clients:   deps.Clients,
		services:  deps.Services,
		invoices:  deps.Invoices,
		companies: deps.Companies,
		profiles:  deps.Profiles,
		logos:     deps.Logos,
		assistant: deps.Assistant,
		cache:     deps.Cache,
		log:       log,
	}
}

func requireTenant(op string, tenantID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return apperror.Validation(op, apperror.FieldError{Field: "tenant_id", Message: "is required"})
	}
	return nil
}

func (s *workspaceService) ListCompanies(ctx context.Context, principal identity.Principal) ([]*models.Company, error) {
	return s.companies.ListForUser(ctx, principal.UserID)
}

func (s *workspaceService) CreateCompany(ctx context.Context, principal identity.Principal, req *CreateCompanyRequest) (*models.Company, error) {
	const op = "workspace.create_company"
	if principal.UserID == uuid.Nil {
		return nil, apperror.Validation(op, apperror.FieldError{Field: "user_id", Message: "is required"})
	}
	if req == nil {
		req = &CreateCompanyRequest{}
	}

	company := &models.Company{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		Address:      strings.TrimSpace(req.Address),
		Email:        strings.TrimSpace(req.Email),
		Phone:        req.Phone,
		BankAccounts: []models.BankAccount{},
	}
	if company.Name == "" {
		company.Name = defaultCompanyName
	}
	if company.Email == "" {
		company.Email = principal.Email
	}
	if company.Address == "" {
		company.Address = defaultCompanyAddress
	}

	if err := s.companies.Create(ctx, company, principal.UserID); err != nil {
		return nil, err
	}
	s.log.Info().Str("company_id", company.ID.String()).Str("user_id", principal.UserID.String()).Msg("company created")
	return company, nil
}

func (s *workspaceService) EnsureProfile(ctx context.Context, principal identity.Principal, fullName string) (*models.Profile, error) {
	const op = "workspace.ensure_profile"
	if principal.UserID == uuid.Nil {
		return nil, apperror.Validation(op, apperror.FieldError{Field: "user_id", Message: "is required"})
	}
	name := strings.TrimSpace(fullName)
	if name == "" {
		name = strings.TrimSpace(principal.Name)
	}
	if name == "" {
		name = defaultProfileName
	}

	profile := &models.Profile{
		ID:       principal.UserID,
		FullName: name,
		Email:    principal.Email,
		Status:   models.ProfileStatusActive,
	}
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *workspaceService) Authorize(ctx context.Context, principal identity.Principal, tenantID uuid.UUID) error {
	const op = "workspace.authorize"
	if err := requireTenant(op, tenantID); err != nil {
		return err
	}
	ok, err := s.companies.IsMember(ctx, tenantID, principal.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.TenantScope(op, "principal is not a member of this company")
	}
	return nil
}

func (s *workspaceService) CreateClient(ctx context.Context, tenantID uuid.UUID, client *models.Client) (*models.Client, error) {
	const op = "workspace.create_client"
	if err := requireTenant(op, tenantID); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, apperror.Validation(op, apperror.FieldError{Field: "client", Message: "is required"})
	}
	if client.CompanyID != uuid.Nil && client.CompanyID != tenantID {
		return nil, apperror.TenantScope(op, "client is stamped with another company")
	}

	var errs []apperror.FieldError
	if strings.TrimSpace(client.Name) == "" {
		errs = append(errs, apperror.FieldError{Field: "name", Message: "is required"})
	}
	if email := strings.TrimSpace(client.Email); email != "" && !strings.Contains(email, "@") {
		errs = append(errs, apperror.FieldError{Field: "email", Message: "is not a valid address"})
	}
	if len(errs) > 0 {
		return nil, apperror.Validation(op, errs...)
	}

	created := *client
	created.CompanyID = tenantID
	if err := s.clients.Create(ctx, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *workspaceService) CreateService(ctx context.Context, tenantID uuid.UUID, service *models.Service) (*models.Service, error) {
	const op = "workspace.create_service"
	if err := requireTenant(op, tenantID); err != nil {
		return nil, err
	}
	if service == nil {
		return nil, apperror.Validation(op, apperror.FieldError{Field: "service", Message: "is required"})
	}
	if service.CompanyID != uuid.Nil && service.CompanyID != tenantID {
		return nil, apperror.TenantScope(op, "service is stamped with another company")
	}

	var errs []apperror.FieldError
	if strings.TrimSpace(service.Name) == "" {
		errs = append(errs, apperror.FieldError{Field: "name", Message: "is required"})
	}
	if service.Price.IsNegative() {
		errs = append(errs, apperror.FieldError{Field: "price", Message: "must not be negative"})
	}
	if len(errs) > 0 {
		return nil, apperror.Validation(op, errs...)
	}

	created := *service
	created.CompanyID = tenantID
	created.Price = service.Price.Round(2)
	if err := s.services.Create(ctx, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *workspaceService) CreateInvoice(ctx context.Context, tenantID uuid.UUID, invoice *models.Invoice, client *models.Client) (*models.Invoice, error) {
	const op = "workspace.create_invoice"
	if err := requireTenant(op, tenantID); err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, apperror.Validation(op, apperror.FieldError{Field: "invoice", Message: "is required"})
	}
	if invoice.CompanyID != uuid.Nil && invoice.CompanyID != tenantID {
		return nil, apperror.TenantScope(op, "invoice is stamped with another company")
	}
	if client != nil {
		if client.ID != invoice.ClientID {
			return nil, apperror.Validation(op, apperror.FieldError{Field: "client_id", Message: "does not match the given client"})
		}
		if client.CompanyID != tenantID {
			return nil, apperror.TenantScope(op, "client belongs to another company")
		}
	}

	inv := invoice.Clone()
	inv.CompanyID = tenantID
	inv.ID = uuid.New()
	inv.InvoiceNumber = ""
	inv.LastSentDate = nil
	inv.IsReceiptSent = false
	inv.IssueDate = billing.DateOnly(inv.IssueDate)
	inv.DueDate = billing.DateOnly(inv.DueDate)
	if inv.Frequency == "" {
		inv.Frequency = models.FrequencyOneTime
	}
	if inv.Status == "" {
		inv.Status = models.InvoiceStatusDraft
	}
	if inv.Frequency != models.FrequencyOneTime && inv.ParentInvoiceID == nil {
		inv.IsRecurringTemplate = true
	}
	if err := billing.ValidateInvoice(op, inv); err != nil {
		return nil, err
	}
	if inv.Status != models.InvoiceStatusDraft {
		return nil, apperror.Validation(op, apperror.FieldError{Field: "status", Message: "new invoices start as Draft; use send to dispatch"})
	}
	if inv.IsRecurringTemplate {
		if inv.NextRecurrenceDate == nil {
			next, _ := billing.NextRecurrenceDate(inv.IssueDate, inv.Frequency)
			inv.NextRecurrenceDate = &next
		} else {
			next := billing.DateOnly(*inv.NextRecurrenceDate)
			inv.NextRecurrenceDate = &next
		}
	} else {
		inv.NextRecurrenceDate = nil
	}
	billing.ApplyTotals(inv)

	// the store is authoritative for client ownership
	if _, err := s.clients.GetByID(ctx, tenantID, inv.ClientID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.TenantScope(op, "client does not belong to this company")
		}
		return nil, err
	}

	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("tenant_id", tenantID.String()).
		Str("invoice_id", inv.ID.String()).
		Str("invoice_number", inv.InvoiceNumber).
		Bool("template", inv.IsRecurringTemplate).
		Msg("invoice created")
	return inv, nil
}

func (s *workspaceService) GetInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*models.Invoice, error) {
	const op = "workspace.get_invoice"
	if err := requireTenant(op, tenantID); err != nil {
		return nil, err
	}
	inv, err := s.invoices.GetByID(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.CompanyID != tenantID {
		s.log.Error().Str("tenant_id", tenantID.String()).Str("invoice_id", invoiceID.String()).Msg("store returned another tenant's invoice")
		return nil, apperror.NotFound(op, "invoice")
	}
	return inv, nil
}

func (s *workspaceService) FetchClients(ctx context.Context, tenantID uuid.UUID) ([]*models.Client, error) {
	const op = "workspace.fetch_clients"
	if err := requireTenant(op, tenantID); err != nil {
		return nil, err
	}
	all, err := s.clients.ListByCompany(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Client, 0, len(all))
	for _, c := range all {
		if c.CompanyID != tenantID {
			s.dropForeign(op, tenantID, c.ID)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *workspaceService) FetchServices(ctx context.Context, tenantID uuid.UUID) ([]*models.Service, error) {
	const op = "workspace.fetch_services"
	if err := requireTenant(op, tenantID); err != nil {
		return nil, err
	}
	all, err := s.services.ListByCompany(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Service, 0, len(all))
	for _, svc := range all {
		if svc.CompanyID != tenantID {
			s.dropForeign(op, tenantID, svc.ID)
			continue
		}
		out = append(out, svc)
	}
	return out, nil
}

func (s *workspaceService) FetchInvoices(ctx context.Context, tenantID uuid.UUID) ([]*models.Invoice, error) {
	const op = "workspace.fetch_invoices"
	if err := requireTenant(op, tenantID); err != nil {
		return nil, err
	}
	all, err := s.invoices.ListByCompany(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Invoice, 0, len(all))
	for _, inv := range all {
		if inv.CompanyID != tenantID {
			s.dropForeign(op, tenantID, inv.ID)
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (s *workspaceService) dropForeign(op string, tenantID, recordID uuid.UUID) {
	s.log.Error().
		Str("op", op).
		Str("tenant_id", tenantID.String()).
		Str("record_id", recordID.String()).
		Msg("dropping record owned by another tenant")
}

func (s *workspaceService) UpdateCompany(ctx context.Context, tenantID uuid.UUID, company *models.Company) error {
	const op = "workspace.update_company"
	if err := requireTenant(op, tenantID); err != nil {
		return err
	}
	if company == nil {
		return apperror.Validation(op, apperror.FieldError{Field: "company", Message: "is required"})
	}
	if company.ID != uuid.Nil && company.ID != tenantID {
		return apperror.TenantScope(op, "company does not match the active tenant")
	}

	var errs []apperror.FieldError
	if strings.TrimSpace(company.Name) == "" {
		errs = append(errs, apperror.FieldError{Field: "name", Message: "is required"})
	}
	accounts := make([]models.BankAccount, len(company.BankAccounts))
	for i, b := range company.BankAccounts {
		if b.CompanyID != uuid.Nil && b.CompanyID != tenantID {
			return apperror.TenantScope(op, "bank account belongs to another company")
		}
		if strings.TrimSpace(b.BankName) == "" {
			errs = append(errs, apperror.FieldError{Field: fmt.Sprintf("bank_accounts[%d].bank_name", i), Message: "is required"})
		}
		if strings.TrimSpace(b.AccountNumber) == "" {
			errs = append(errs, apperror.FieldError{Field: fmt.Sprintf("bank_accounts[%d].account_number", i), Message: "is required"})
		}
		b.CompanyID = tenantID
		accounts[i] = b
	}
	if len(errs) > 0 {
		return apperror.Validation(op, errs...)
	}

	updated := *company
	updated.ID = tenantID
	updated.BankAccounts = accounts
	if err := s.companies.Update(ctx, &updated); err != nil {
		return err
	}
	company.ID = tenantID
	company.BankAccounts = updated.BankAccounts
	return nil
}

func (s *workspaceService) UpdateInvoiceStatus(ctx context.Context, tenantID, invoiceID uuid.UUID, status models.InvoiceStatus) error {
	const op = "workspace.update_invoice_status"
	if err := requireTenant(op, tenantID); err != nil {
		return err
	}
	if !status.Valid() {
		return apperror.Validation(op, apperror.FieldError{Field: "status", Message: "unknown status " + string(status)})
	}
	// Only payment can be recorded directly; delivery goes through Lifecycle
	// and Overdue is derived.
	if status != models.InvoiceStatusPaid {
		return apperror.Validation(op, apperror.FieldError{
			Field:   "status",
			Message: fmt.Sprintf("cannot set status %s directly; use send or resend", status),
		})
	}

	inv, err := s.GetInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return err
	}
	next, err := billing.NextStatus(inv, billing.TransitionMarkPaid)
	if err != nil {
		return err
	}
	return s.invoices.UpdateStatus(ctx, tenantID, invoiceID, next)
}

func (s *workspaceService) DraftItem(ctx context.Context, tenantID, serviceID uuid.UUID, quantity decimal.Decimal) (models.InvoiceItem, error) {
	const op = "workspace.draft_item"
	if err := requireTenant(op, tenantID); err != nil {
		return models.InvoiceItem{}, err
	}
	if msg, ok := billing.CheckQuantity(quantity); !ok {
		return models.InvoiceItem{}, apperror.Validation(op, apperror.FieldError{Field: "quantity", Message: msg})
	}
	svc, err := s.services.GetByID(ctx, tenantID, serviceID)
	if err != nil {
		return models.InvoiceItem{}, err
	}

	item := models.InvoiceItem{
		ServiceID: svc.ID,
		Quantity:  quantity,
		Price:     svc.Price,
	}
	assistant := s.assistant
	if !s.allowGeneration(ctx, tenantID) {
		// nil assistant falls back to the catalog text
		assistant = nil
	}
	item.Description = assistant.DescribeService(ctx, svc)
	return item, nil
}

// allowGeneration applies the per-tenant text generation rate limit. Cache
// failures allow the call.
func (s *workspaceService) allowGeneration(ctx context.Context, tenantID uuid.UUID) bool {
	if s.cache == nil {
		return true
	}
	limited, err := s.cache.IsRateLimited(ctx, "textgen:"+tenantID.String(), draftItemLimit, draftItemWindow)
	if err != nil {
		s.log.Warn().Err(err).Msg("rate limit check failed")
		return true
	}
	return !limited
}

func (s *workspaceService) UploadLogo(ctx context.Context, tenantID uuid.UUID, reader io.Reader, size int64, contentType string) (string, error) {
	const op = "workspace.upload_logo"
	if err := requireTenant(op, tenantID); err != nil {
		return "", err
	}
	if s.logos == nil {
		return "", apperror.Validation(op, apperror.FieldError{Field: "logo", Message: "object storage is not configured"})
	}
	if size <= 0 {
		return "", apperror.Validation(op, apperror.FieldError{Field: "logo", Message: "is empty"})
	}

	url, err := s.logos.UploadLogo(ctx, tenantID, reader, size, contentType)
	if errors.Is(err, storage.ErrUnsupportedType) {
		return "", apperror.Validation(op, apperror.FieldError{Field: "content_type", Message: err.Error()})
	}
	if err != nil {
		return "", apperror.Persistence(op, apperror.CauseTransient, err)
	}
	if err := s.companies.UpdateLogo(ctx, tenantID, url); err != nil {
		s.removeOrphanLogo(ctx, tenantID, url)
		return "", err
	}
	return url, nil
}

// removeOrphanLogo deletes an uploaded logo the company row never pointed to.
func (s *workspaceService) removeOrphanLogo(ctx context.Context, tenantID uuid.UUID, url string) {
	log := s.log.With().Str("tenant_id", tenantID.String()).Str("url", url).Logger()
	name, ok := storage.ObjectNameFromURL(url)
	if !ok {
		log.Warn().Msg("logo stored but company not updated; object name unknown")
		return
	}
	if err := s.logos.DeleteObject(context.WithoutCancel(ctx), name); err != nil {
		log.Warn().Err(err).Str("object", name).Msg("logo stored but company not updated; cleanup failed")
		return
	}
	log.Info().Str("object", name).Msg("removed logo after company update failed")
}
