package schedule

import (
	"context"

	"campusattendance/internal/apperr"
)

// Service is the admin-facing store of attendance windows.
type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, in Input) (*Window, error) {
	if err := apperr.Struct(in); err != nil {
		return nil, err
	}
	w := &Window{
		Name:            in.Name,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		DaysOfWeek:      in.DaysOfWeek,
		StudentCategory: in.StudentCategory,
		IsActive:        true,
	}
	if len(w.DaysOfWeek) == 0 {
		w.DaysOfWeek = DefaultDays
	}
	if in.IsActive != nil {
		w.IsActive = *in.IsActive
	}
	if err := validate(w); err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Service) List(ctx context.Context) ([]Window, error) {
	return s.repo.List(ctx)
}

// Active returns the windows considered by IsOpen and StillOpen.
func (s *Service) Active(ctx context.Context) ([]Window, error) {
	return s.repo.Active(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*Window, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, apperr.NotFound("attendance window")
	}
	return w, nil
}

func (s *Service) Update(ctx context.Context, id string, p Patch) (*Window, error) {
	if err := apperr.Struct(p); err != nil {
		return nil, err
	}
	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		w.Name = *p.Name
	}
	if p.StartTime != nil {
		w.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		w.EndTime = *p.EndTime
	}
	if p.DaysOfWeek != nil {
		w.DaysOfWeek = *p.DaysOfWeek
	}
	if p.StudentCategory != nil {
		w.StudentCategory = p.StudentCategory
		if *p.StudentCategory == "" {
			w.StudentCategory = nil
		}
	}
	if p.IsActive != nil {
		w.IsActive = *p.IsActive
	}
	if err := validate(w); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("attendance window")
	}
	return nil
}

func validate(w *Window) error {
	if w.EndTime <= w.StartTime {
		return apperr.Validation("end_time must be after start_time")
	}
	if len(w.DaysOfWeek) == 0 {
		return apperr.Validation("days_of_week must not be empty")
	}
	for _, d := range w.DaysOfWeek {
		if d < 0 || d > 6 {
			return apperr.Validation("days_of_week values must be between 0 (Monday) and 6 (Sunday)")
		}
	}
	return nil
}
