package repositories

import (
	"context"
	"errors"

	"cravebiz/internal/apperror"
	"cravebiz/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ServiceRepository interface {
	Create(ctx context.Context, service *models.Service) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Service, error)
	ListByCompany(ctx context.Context, tenantID uuid.UUID) ([]*models.Service, error)
}

type serviceRepo struct {
	db DB
}

func NewServiceRepo(db DB) ServiceRepository {
	return &serviceRepo{db: db}
}

func scanService(row pgx.Row) (*models.Service, error) {
	s := &models.Service{}
	var price string
	if err := row.Scan(&s.ID, &s.CompanyID, &s.Name, &s.Category, &s.Description, &price, &s.CreatedAt); err != nil {
		return nil, err
	}
	p, err := parseDecimal(price)
	if err != nil {
		return nil, err
	}
	s.Price = p
	return s, nil
}

func (r *serviceRepo) Create(ctx context.Context, service *models.Service) error {
	if service.ID == uuid.Nil {
		service.ID = uuid.New()
	}
	query := `
		INSERT INTO services (id, company_id, name, category, description, price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	_, err := r.db.Exec(ctx, query, service.ID, service.CompanyID, service.Name, service.Category, service.Description, service.Price)
	return apperror.FromDB("services.create", err)
}

func (r *serviceRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Service, error) {
	const op = "services.get"
	query := `
		SELECT id, company_id, name, category, description, price::text, created_at
		FROM services
		WHERE company_id = $1 AND id = $2
	`
	s, err := scanService(r.db.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound(op, "service")
		}
		return nil, apperror.FromDB(op, err)
	}
	return s, nil
}

func (r *serviceRepo) ListByCompany(ctx context.Context, tenantID uuid.UUID) ([]*models.Service, error) {
	const op = "services.list"
	query := `
		SELECT id, company_id, name, category, description, price::text, created_at
		FROM services
		WHERE company_id = $1
		ORDER BY category, name
	`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, apperror.FromDB(op, err)
	}
	defer rows.Close()

	services := []*models.Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, apperror.FromDB(op, err)
		}
		services = append(services, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.FromDB(op, err)
	}
	return services, nil
}
