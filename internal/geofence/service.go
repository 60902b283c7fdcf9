package geofence

import (
	"context"
	"database/sql"

	"campusattendance/internal/apperr"
	"campusattendance/internal/store"
)

// Service is the admin-facing registry of campus boundaries.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Create stores a new geofence. When it is primary the previous primary is
// demoted in the same transaction.
func (s *Service) Create(ctx context.Context, in Input, adminID string) (*Geofence, error) {
	if err := apperr.Struct(in); err != nil {
		return nil, err
	}
	g := &Geofence{
		Name:              in.Name,
		Description:       in.Description,
		Latitude:          in.Latitude,
		Longitude:         in.Longitude,
		RadiusMeters:      in.RadiusMeters,
		AccuracyThreshold: in.AccuracyThreshold,
		IsActive:          true,
		IsPrimary:         in.IsPrimary,
		CreatedBy:         &adminID,
	}
	if g.RadiusMeters == 0 {
		g.RadiusMeters = DefaultRadiusMeters
	}
	if g.AccuracyThreshold == 0 {
		g.AccuracyThreshold = DefaultAccuracyThreshold
	}
	err := store.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		repo := NewRepository(tx)
		if g.IsPrimary {
			if err := repo.ClearPrimary(ctx, ""); err != nil {
				return err
			}
		}
		return repo.Insert(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Geofence, error) {
	g, err := NewRepository(s.db).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, apperr.NotFound("geofence")
	}
	return g, nil
}

func (s *Service) List(ctx context.Context) ([]Geofence, error) {
	return NewRepository(s.db).List(ctx)
}

// PrimaryActive returns the primary active geofence, nil when none is set.
func (s *Service) PrimaryActive(ctx context.Context) (*Geofence, error) {
	return NewRepository(s.db).PrimaryActive(ctx)
}

// Update applies p. Promoting to primary demotes the old primary atomically.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*Geofence, error) {
	if err := apperr.Struct(p); err != nil {
		return nil, err
	}
	var out *Geofence
	err := store.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		repo := NewRepository(tx)
		g, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if g == nil {
			return apperr.NotFound("geofence")
		}
		p.apply(g)
		if g.IsPrimary {
			if err := repo.ClearPrimary(ctx, g.ID); err != nil {
				return err
			}
		}
		if err := repo.Update(ctx, g); err != nil {
			return err
		}
		out = g
		return nil
	})
	return out, err
}

func (s *Service) Delete(ctx context.Context, id string) error {
	ok, err := NewRepository(s.db).SoftDelete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("geofence")
	}
	return nil
}

func (p Patch) apply(g *Geofence) {
	if p.Name != nil {
		g.Name = *p.Name
	}
	if p.Description != nil {
		g.Description = p.Description
	}
	if p.Latitude != nil {
		g.Latitude = *p.Latitude
	}
	if p.Longitude != nil {
		g.Longitude = *p.Longitude
	}
	if p.RadiusMeters != nil {
		g.RadiusMeters = *p.RadiusMeters
	}
	if p.AccuracyThreshold != nil {
		g.AccuracyThreshold = *p.AccuracyThreshold
	}
	if p.IsActive != nil {
		g.IsActive = *p.IsActive
	}
	if p.IsPrimary != nil {
		g.IsPrimary = *p.IsPrimary
	}
}
