package repositories

import (
	"context"
	"errors"

	"cravebiz/internal/apperror"
	"cravebiz/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ClientRepository interface {
	Create(ctx context.Context, client *models.Client) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Client, error)
	ListByCompany(ctx context.Context, tenantID uuid.UUID) ([]*models.Client, error)
}

type clientRepo struct {
	db DB
}

func NewClientRepo(db DB) ClientRepository {
	return &clientRepo{db: db}
}

func (r *clientRepo) Create(ctx context.Context, client *models.Client) error {
	if client.ID == uuid.Nil {
		client.ID = uuid.New()
	}
	query := `
		INSERT INTO clients (id, company_id, name, email, company_name, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := r.db.Exec(ctx, query, client.ID, client.CompanyID, client.Name, client.Email, client.CompanyName)
	return apperror.FromDB("clients.create", err)
}

func (r *clientRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Client, error) {
	const op = "clients.get"
	c := &models.Client{}
	query := `
		SELECT id, company_id, name, email, company_name, created_at
		FROM clients
		WHERE company_id = $1 AND id = $2
	`
	err := r.db.QueryRow(ctx, query, tenantID, id).Scan(&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.CompanyName, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound(op, "client")
		}
		return nil, apperror.FromDB(op, err)
	}
	return c, nil
}

func (r *clientRepo) ListByCompany(ctx context.Context, tenantID uuid.UUID) ([]*models.Client, error) {
	const op = "clients.list"
	query := `
		SELECT id, company_id, name, email, company_name, created_at
		FROM clients
		WHERE company_id = $1
		ORDER BY name
	`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, apperror.FromDB(op, err)
	}
	defer rows.Close()

	clients := []*models.Client{}
	for rows.Next() {
		c := &models.Client{}
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.CompanyName, &c.CreatedAt); err != nil {
			return nil, apperror.FromDB(op, err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.FromDB(op, err)
	}
	return clients, nil
}
