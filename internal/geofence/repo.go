package geofence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"campusattendance/internal/store"
)

const columns = `id, name, description, latitude, longitude, radius_meters, accuracy_threshold,
	is_active, is_primary, created_by, created_at, updated_at, deleted_at`

// Repository persists geofences in Postgres.
type Repository struct {
	db store.DBTX
}

// NewRepository creates a repo over a pool or a transaction.
func NewRepository(db store.DBTX) *Repository {
	return &Repository{db: db}
}

// PrimaryActive returns the campus boundary used for marking, nil when none is configured.
func (r *Repository) PrimaryActive(ctx context.Context) (*Geofence, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+columns+`
		FROM campus_geofences
		WHERE is_primary = TRUE AND is_active = TRUE AND deleted_at IS NULL
		LIMIT 1
	`)
	return scan(row)
}

// Get returns a live geofence by id.
func (r *Repository) Get(ctx context.Context, id string) (*Geofence, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM campus_geofences WHERE id = $1 AND deleted_at IS NULL`, id)
	return scan(row)
}

// List returns all live geofences, primary first.
func (r *Repository) List(ctx context.Context) ([]Geofence, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+columns+`
		FROM campus_geofences
		WHERE deleted_at IS NULL
		ORDER BY is_primary DESC, created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Geofence
	for rows.Next() {
		g, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// ClearPrimary unsets the primary flag on every geofence except keepID.
func (r *Repository) ClearPrimary(ctx context.Context, keepID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campus_geofences SET is_primary = FALSE, updated_at = NOW()
		WHERE is_primary = TRUE AND id <> $1
	`, keepID)
	return err
}

func (r *Repository) Insert(ctx context.Context, g *Geofence) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO campus_geofences
			(id, name, description, latitude, longitude, radius_meters, accuracy_threshold, is_active, is_primary, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, g.ID, g.Name, g.Description, g.Latitude, g.Longitude, g.RadiusMeters, g.AccuracyThreshold,
		g.IsActive, g.IsPrimary, g.CreatedBy).Scan(&g.CreatedAt, &g.UpdatedAt)
}

func (r *Repository) Update(ctx context.Context, g *Geofence) error {
	return r.db.QueryRowContext(ctx, `
		UPDATE campus_geofences
		SET name = $2, description = $3, latitude = $4, longitude = $5, radius_meters = $6,
		    accuracy_threshold = $7, is_active = $8, is_primary = $9, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`, g.ID, g.Name, g.Description, g.Latitude, g.Longitude, g.RadiusMeters, g.AccuracyThreshold,
		g.IsActive, g.IsPrimary).Scan(&g.UpdatedAt)
}

// SoftDelete hides a geofence and drops its primary flag. It reports false
// when nothing matched.
func (r *Repository) SoftDelete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campus_geofences
		SET deleted_at = NOW(), is_active = FALSE, is_primary = FALSE, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (*Geofence, error) {
	var g Geofence
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.Latitude, &g.Longitude, &g.RadiusMeters,
		&g.AccuracyThreshold, &g.IsActive, &g.IsPrimary, &g.CreatedBy, &g.CreatedAt, &g.UpdatedAt, &g.DeletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}
