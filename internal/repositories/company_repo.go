package repositories

import (
	"context"
	"errors"

	"cravebiz/internal/apperror"
	"cravebiz/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type CompanyRepository interface {
	// Create inserts the company and makes ownerID its Owner in one transaction.
	Create(ctx context.Context, company *models.Company, ownerID uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Company, error)
	// Update writes the company details and makes its bank accounts match
	// company.BankAccounts: unlisted accounts are deleted, the rest upserted.
	// The logo is left to UpdateLogo.
	Update(ctx context.Context, company *models.Company) error
	UpdateLogo(ctx context.Context, id uuid.UUID, logoURL string) error
	IsMember(ctx context.Context, companyID, userID uuid.UUID) (bool, error)
}

type companyRepo struct {
	db DB
}

func NewCompanyRepo(db DB) CompanyRepository {
	return &companyRepo{db: db}
}

const selectCompanyColumns = `c.id, c.owner_id, c.name, c.address, c.email, c.phone, c.logo_url, c.created_at, c.updated_at`

func scanCompany(row pgx.Row) (*models.Company, error) {
	c := &models.Company{BankAccounts: []models.BankAccount{}}
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Address, &c.Email, &c.Phone, &c.LogoURL, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *companyRepo) Create(ctx context.Context, company *models.Company, ownerID uuid.UUID) error {
	const op = "companies.create"
	if company.ID == uuid.Nil {
		company.ID = uuid.New()
	}
	company.OwnerID = &ownerID

	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO companies (id, owner_id, name, address, email, phone, logo_url, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		`, company.ID, ownerID, company.Name, company.Address, company.Email, company.Phone, company.LogoURL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO company_members (company_id, user_id, role, created_at)
			VALUES ($1, $2, $3, NOW())
		`, company.ID, ownerID, models.MemberRoleOwner)
		return err
	})
	if err != nil {
		return apperror.FromDB(op, err)
	}
	if company.BankAccounts == nil {
		company.BankAccounts = []models.BankAccount{}
	}
	return nil
}

func (r *companyRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	const op = "companies.get"
	c, err := scanCompany(r.db.QueryRow(ctx, `SELECT `+selectCompanyColumns+` FROM companies c WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound(op, "company")
		}
		return nil, apperror.FromDB(op, err)
	}

	accounts, err := r.bankAccounts(ctx, `
		SELECT id, company_id, bank_name, account_name, account_number
		FROM bank_accounts
		WHERE company_id = $1
		ORDER BY bank_name, account_number
	`, id)
	if err != nil {
		return nil, apperror.FromDB(op, err)
	}
	c.BankAccounts = append(c.BankAccounts, accounts[c.ID]...)
	return c, nil
}

func (r *companyRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Company, error) {
	const op = "companies.list_for_user"
	rows, err := r.db.Query(ctx, `
		SELECT `+selectCompanyColumns+`
		FROM companies c
		JOIN company_members m ON m.company_id = c.id
		WHERE m.user_id = $1
		ORDER BY c.created_at
	`, userID)
	if err != nil {
		return nil, apperror.FromDB(op, err)
	}
	defer rows.Close()

	var companies []*models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, apperror.FromDB(op, err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.FromDB(op, err)
	}
	rows.Close()
	if len(companies) == 0 {
		return companies, nil
	}

	accounts, err := r.bankAccounts(ctx, `
		SELECT b.id, b.company_id, b.bank_name, b.account_name, b.account_number
		FROM bank_accounts b
		JOIN company_members m ON m.company_id = b.company_id
		WHERE m.user_id = $1
		ORDER BY b.company_id, b.bank_name, b.account_number
	`, userID)
	if err != nil {
		return nil, apperror.FromDB(op, err)
	}
	for _, c := range companies {
		c.BankAccounts = append(c.BankAccounts, accounts[c.ID]...)
	}
	return companies, nil
}

func (r *companyRepo) bankAccounts(ctx context.Context, query string, args ...any) (map[uuid.UUID][]models.BankAccount, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]models.BankAccount)
	for rows.Next() {
		var b models.BankAccount
		if err := rows.Scan(&b.ID, &b.CompanyID, &b.BankName, &b.AccountName, &b.AccountNumber); err != nil {
			return nil, err
		}
		out[b.CompanyID] = append(out[b.CompanyID], b)
	}
	return out, rows.Err()
}

func (r *companyRepo) Update(ctx context.Context, company *models.Company) error {
	const op = "companies.update"
	keep := make([]uuid.UUID, 0, len(company.BankAccounts))
	for i := range company.BankAccounts {
		if company.BankAccounts[i].ID == uuid.Nil {
			company.BankAccounts[i].ID = uuid.New()
		}
		company.BankAccounts[i].CompanyID = company.ID
		keep = append(keep, company.BankAccounts[i].ID)
	}

	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		// logo_url is owned by UpdateLogo
		tag, err := tx.Exec(ctx, `
			UPDATE companies
			SET name = $1, address = $2, email = $3, phone = $4, updated_at = NOW()
			WHERE id = $5
		`, company.Name, company.Address, company.Email, company.Phone, company.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperror.NotFound(op, "company")
		}

		if _, err := tx.Exec(ctx, `
			DELETE FROM bank_accounts WHERE company_id = $1 AND NOT (id = ANY($2::uuid[]))
		`, company.ID, keep); err != nil {
			return err
		}
		for _, b := range company.BankAccounts {
			tag, err := tx.Exec(ctx, `
				INSERT INTO bank_accounts (id, company_id, bank_name, account_name, account_number)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE
				SET bank_name = EXCLUDED.bank_name,
					account_name = EXCLUDED.account_name,
					account_number = EXCLUDED.account_number
				WHERE bank_accounts.company_id = EXCLUDED.company_id
			`, b.ID, company.ID, b.BankName, b.AccountName, b.AccountNumber)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return apperror.TenantScope(op, "bank account belongs to another company")
			}
		}
		return nil
	})
	return apperror.FromDB(op, err)
}

func (r *companyRepo) UpdateLogo(ctx context.Context, id uuid.UUID, logoURL string) error {
	const op = "companies.update_logo"
	tag, err := r.db.Exec(ctx, `UPDATE companies SET logo_url = $1, updated_at = NOW() WHERE id = $2`, logoURL, id)
	if err != nil {
		return apperror.FromDB(op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound(op, "company")
	}
	return nil
}

func (r *companyRepo) IsMember(ctx context.Context, companyID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM company_members WHERE company_id = $1 AND user_id = $2)
	`, companyID, userID).Scan(&ok)
	if err != nil {
		return false, apperror.FromDB("companies.is_member", err)
	}
	return ok, nil
}
