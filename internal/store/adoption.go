package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pawhouse/apiserver/types"
)

const adoptionColumns = `id, pet_name, pet_type, adopter, adoption_date, status, notes, user_id, photo_key, created_at, updated_at`

// AdoptionRepository handles persistence for adoptions.
type AdoptionRepository struct {
	db *sql.DB
}

func NewAdoptionRepository(db *sql.DB) *AdoptionRepository {
	return &AdoptionRepository{db: db}
}

func (r *AdoptionRepository) List(ctx context.Context) ([]types.Adoption, error) {
	query := `
		SELECT ` + adoptionColumns + `
		FROM adoptions
		ORDER BY seq`
	return r.query(ctx, query)
}

func (r *AdoptionRepository) ListByUser(ctx context.Context, userID string) ([]types.Adoption, error) {
	query := `
		SELECT ` + adoptionColumns + `
		FROM adoptions
		WHERE user_id = $1
		ORDER BY seq`
	return r.query(ctx, query, userID)
}

func (r *AdoptionRepository) Get(ctx context.Context, id string) (types.Adoption, error) {
	query := `
		SELECT ` + adoptionColumns + `
		FROM adoptions
		WHERE id = $1`
	return scanAdoption(r.db.QueryRowContext(ctx, query, id))
}

func (r *AdoptionRepository) Create(ctx context.Context, adoption types.Adoption) (types.Adoption, error) {
	now := time.Now().UTC()
	adoption.CreatedAt = now
	adoption.UpdatedAt = now

	const query = `
		INSERT INTO adoptions (id, pet_name, pet_type, adopter, adoption_date, status, notes, user_id, photo_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		adoption.ID,
		adoption.PetName,
		adoption.PetType,
		adoption.Adopter,
		adoption.AdoptionDate,
		string(adoption.Status),
		adoption.Notes,
		adoption.UserID,
		adoption.PhotoKey,
		adoption.CreatedAt,
		adoption.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Adoption{}, ErrConflict
		}
		return types.Adoption{}, fmt.Errorf("insert adoption: %w", err)
	}
	return adoption, nil
}

// Update applies the non-nil fields of patch in a single statement and
// returns the resulting row.
func (r *AdoptionRepository) Update(ctx context.Context, id string, patch types.AdoptionPatch) (types.Adoption, error) {
	var status, notes sql.NullString
	if patch.Status != nil {
		status = sql.NullString{String: string(*patch.Status), Valid: true}
	}
	if patch.Notes != nil {
		notes = sql.NullString{String: *patch.Notes, Valid: true}
	}

	query := `
		UPDATE adoptions
		SET status = COALESCE($1, status),
			notes = COALESCE($2, notes),
			updated_at = $3
		WHERE id = $4
		RETURNING ` + adoptionColumns
	return scanAdoption(r.db.QueryRowContext(ctx, query, status, notes, time.Now().UTC(), id))
}

func (r *AdoptionRepository) SetPhotoKey(ctx context.Context, id, key string) (types.Adoption, error) {
	query := `
		UPDATE adoptions
		SET photo_key = $1,
			updated_at = $2
		WHERE id = $3
		RETURNING ` + adoptionColumns
	return scanAdoption(r.db.QueryRowContext(ctx, query, key, time.Now().UTC(), id))
}

// Delete removes the adoption and returns the row as it was.
func (r *AdoptionRepository) Delete(ctx context.Context, id string) (types.Adoption, error) {
	query := `DELETE FROM adoptions WHERE id = $1 RETURNING ` + adoptionColumns
	return scanAdoption(r.db.QueryRowContext(ctx, query, id))
}

func (r *AdoptionRepository) query(ctx context.Context, query string, args ...any) ([]types.Adoption, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	adoptions := make([]types.Adoption, 0)
	for rows.Next() {
		adoption, err := scanAdoption(rows)
		if err != nil {
			return nil, err
		}
		adoptions = append(adoptions, adoption)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return adoptions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAdoption(row rowScanner) (types.Adoption, error) {
	var (
		adoption     types.Adoption
		adoptionDate time.Time
		status       string
	)
	err := row.Scan(
		&adoption.ID,
		&adoption.PetName,
		&adoption.PetType,
		&adoption.Adopter,
		&adoptionDate,
		&status,
		&adoption.Notes,
		&adoption.UserID,
		&adoption.PhotoKey,
		&adoption.CreatedAt,
		&adoption.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Adoption{}, ErrNotFound
		}
		return types.Adoption{}, err
	}

	adoption.AdoptionDate = adoptionDate.Format(types.AdoptionDateLayout)
	adoption.Status = types.AdoptionStatus(status)
	return adoption, nil
}
