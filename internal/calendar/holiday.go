package calendar

import "time"

// Holiday is a non-working calendar day.
type Holiday struct {
	ID          string    `json:"id"`
	Date        Date      `json:"date"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	HolidayType string    `json:"holiday_type"`
	IsRecurring bool      `json:"is_recurring"`
	IsActive    bool      `json:"is_active"`
	CreatedBy   *string   `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

const DefaultHolidayType = "GENERAL"

// HolidayInput is the admin create payload.
type HolidayInput struct {
	Date        Date    `json:"date"`
	Name        string  `json:"name" validate:"required,max=200"`
	Description *string `json:"description"`
	HolidayType string  `json:"holiday_type" validate:"omitempty,max=50"`
	IsRecurring bool    `json:"is_recurring"`
}

// HolidayPatch holds the fields an update may change.
type HolidayPatch struct {
	Date        *Date   `json:"date"`
	Name        *string `json:"name" validate:"omitnil,min=1,max=200"`
	Description *string `json:"description"`
	HolidayType *string `json:"holiday_type" validate:"omitnil,max=50"`
	IsRecurring *bool   `json:"is_recurring"`
	IsActive    *bool   `json:"is_active"`
}

// BulkResult is returned by a bulk import.
type BulkResult struct {
	Created      []BulkEntry `json:"created"`
	CreatedCount int         `json:"created_count"`
	Errors       []string    `json:"errors"`
	ErrorCount   int         `json:"error_count"`
}

// AcademicYear is the configured range used as the default stats window.
type AcademicYear struct {
	StartDate Date `json:"start_date"`
	EndDate   Date `json:"end_date"`
}

// DefaultAcademicYear runs Jul 1 to Jun 30, rolling over in July.
func DefaultAcademicYear(today Date) AcademicYear {
	start := today.Year
	if today.Month < time.July {
		start--
	}
	return AcademicYear{
		StartDate: Date{Year: start, Month: time.July, Day: 1},
		EndDate:   Date{Year: start + 1, Month: time.June, Day: 30},
	}
}
