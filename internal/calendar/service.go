package calendar

import (
	"context"
	"errors"
	"fmt"

	"campusattendance/internal/apperr"
)

// Service exposes holiday administration and academic-year lookups.
type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Create adds a holiday. A date that already has an active holiday is a
// validation error.
func (s *Service) Create(ctx context.Context, in HolidayInput, adminID string) (*Holiday, error) {
	if err := apperr.Struct(in); err != nil {
		return nil, err
	}
	if in.Date.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	h := &Holiday{
		Date:        in.Date,
		Name:        in.Name,
		Description: in.Description,
		HolidayType: in.HolidayType,
		IsRecurring: in.IsRecurring,
		CreatedBy:   &adminID,
	}
	if h.HolidayType == "" {
		h.HolidayType = DefaultHolidayType
	}
	if err := s.repo.Create(ctx, h); err != nil {
		if errors.Is(err, errDuplicateDate) {
			return nil, apperr.Validation("Holiday already exists for %s", in.Date)
		}
		return nil, err
	}
	return h, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Holiday, error) {
	h, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, apperr.NotFound("holiday")
	}
	return h, nil
}

// List returns active holidays, restricted to [start, end] when both are set.
func (s *Service) List(ctx context.Context, start, end *Date) ([]Holiday, error) {
	if start != nil && end != nil {
		if end.Before(*start) {
			return nil, apperr.Validation("start_date must not be after end_date")
		}
		return s.repo.Between(ctx, *start, *end)
	}
	return s.repo.All(ctx)
}

// Between lists active holidays in the closed range.
func (s *Service) Between(ctx context.Context, start, end Date) ([]Holiday, error) {
	return s.repo.Between(ctx, start, end)
}

func (s *Service) Update(ctx context.Context, id string, p HolidayPatch) (*Holiday, error) {
	if err := apperr.Struct(p); err != nil {
		return nil, err
	}
	h, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Date != nil {
		if p.Date.IsZero() {
			return nil, apperr.Validation("date is required")
		}
		h.Date = *p.Date
	}
	if p.Name != nil {
		h.Name = *p.Name
	}
	if p.Description != nil {
		h.Description = p.Description
	}
	if p.HolidayType != nil {
		h.HolidayType = *p.HolidayType
	}
	if p.IsRecurring != nil {
		h.IsRecurring = *p.IsRecurring
	}
	if p.IsActive != nil {
		h.IsActive = *p.IsActive
	}
	if err := s.repo.Update(ctx, h); err != nil {
		if errors.Is(err, errDuplicateDate) {
			return nil, apperr.Validation("Holiday already exists for %s", h.Date)
		}
		return nil, err
	}
	return h, nil
}

// Delete soft-deletes a holiday.
func (s *Service) Delete(ctx context.Context, id string) error {
	ok, err := s.repo.Deactivate(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("holiday")
	}
	return nil
}

// ImportBulk parses text and inserts each entry as a recurring GENERAL
// holiday. Dates that already exist are reported and skipped.
func (s *Service) ImportBulk(ctx context.Context, text string, year int, adminID string) (BulkResult, error) {
	if year < 1900 || year > 2200 {
		return BulkResult{}, apperr.Validation("year must be between 1900 and 2200")
	}
	entries, errs := ParseBulk(text, year)
	res := BulkResult{Created: []BulkEntry{}, Errors: errs}
	if res.Errors == nil {
		res.Errors = []string{}
	}
	for _, e := range entries {
		h := &Holiday{
			Date:        e.Date,
			Name:        e.Name,
			HolidayType: DefaultHolidayType,
			IsRecurring: true,
			CreatedBy:   &adminID,
		}
		err := s.repo.Create(ctx, h)
		switch {
		case errors.Is(err, errDuplicateDate):
			res.Errors = append(res.Errors, fmt.Sprintf("Line %d: Holiday already exists for %s", e.Line, e.Date))
		case err != nil:
			res.Errors = append(res.Errors, fmt.Sprintf("Line %d: Failed to create - %v", e.Line, err))
		default:
			res.Created = append(res.Created, e)
		}
	}
	res.CreatedCount = len(res.Created)
	res.ErrorCount = len(res.Errors)
	return res, nil
}

// AcademicYear returns the configured range, or the Jul-Jun default around
// today when either bound is unset or unreadable.
func (s *Service) AcademicYear(ctx context.Context, today Date) (AcademicYear, error) {
	def := DefaultAcademicYear(today)
	startRaw, okStart, err := s.repo.Setting(ctx, KeyAcademicYearStart)
	if err != nil {
		return AcademicYear{}, err
	}
	endRaw, okEnd, err := s.repo.Setting(ctx, KeyAcademicYearEnd)
	if err != nil {
		return AcademicYear{}, err
	}
	if !okStart || !okEnd {
		return def, nil
	}
	start, err1 := ParseDate(startRaw)
	end, err2 := ParseDate(endRaw)
	if err1 != nil || err2 != nil {
		return def, nil
	}
	return AcademicYear{StartDate: start, EndDate: end}, nil
}

// SetAcademicYear stores a new range; start must precede end.
func (s *Service) SetAcademicYear(ctx context.Context, ay AcademicYear, adminID string) (AcademicYear, error) {
	if ay.StartDate.IsZero() || ay.EndDate.IsZero() {
		return AcademicYear{}, apperr.Validation("start_date and end_date are required")
	}
	if !ay.StartDate.Before(ay.EndDate) {
		return AcademicYear{}, apperr.Validation("Start date must be before end date")
	}
	if err := s.repo.PutSetting(ctx, KeyAcademicYearStart, ay.StartDate.String(), adminID); err != nil {
		return AcademicYear{}, err
	}
	if err := s.repo.PutSetting(ctx, KeyAcademicYearEnd, ay.EndDate.String(), adminID); err != nil {
		return AcademicYear{}, err
	}
	return ay, nil
}
