package repositories

import (
	"context"
	"errors"

	"cravebiz/internal/apperror"
	"cravebiz/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ProfileRepository interface {
	// Upsert inserts the profile or refreshes name and email; status is kept.
	Upsert(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

type profileRepo struct {
	db DB
}

func NewProfileRepo(db DB) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) Upsert(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO profiles (id, full_name, email, status, avatar_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE
		SET full_name = EXCLUDED.full_name, email = EXCLUDED.email, updated_at = NOW()
		RETURNING status, updated_at
	`
	err := r.db.QueryRow(ctx, query, profile.ID, profile.FullName, profile.Email, profile.Status, profile.AvatarURL).
		Scan(&profile.Status, &profile.UpdatedAt)
	return apperror.FromDB("profiles.upsert", err)
}

func (r *profileRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	const op = "profiles.get"
	p := &models.Profile{}
	query := `SELECT id, full_name, email, status, avatar_url, updated_at FROM profiles WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.FullName, &p.Email, &p.Status, &p.AvatarURL, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound(op, "profile")
		}
		return nil, apperror.FromDB(op, err)
	}
	return p, nil
}
