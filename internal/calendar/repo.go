package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"campusattendance/internal/store"
)

// Setting keys stored in attendance_settings.
const (
	KeyAcademicYearStart = "academic_year_start"
	KeyAcademicYearEnd   = "academic_year_end"
)

// errDuplicateDate is returned when an active holiday already owns the date.
var errDuplicateDate = errors.New("holiday date taken")

const holidayColumns = `id, date, name, description, holiday_type, is_recurring, is_active, created_by, created_at`

// Repository persists holidays and academic-year settings in Postgres.
type Repository struct {
	db store.DBTX
}

// NewRepository creates a repo over a pool or a transaction.
func NewRepository(db store.DBTX) *Repository {
	return &Repository{db: db}
}

// Create inserts h. A soft-deleted holiday on the same date is revived in
// place so the date stays unique.
func (r *Repository) Create(ctx context.Context, h *Holiday) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO holidays (id, date, name, description, holiday_type, is_recurring, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		ON CONFLICT (date) DO UPDATE
		SET name = EXCLUDED.name,
		    description = EXCLUDED.description,
		    holiday_type = EXCLUDED.holiday_type,
		    is_recurring = EXCLUDED.is_recurring,
		    is_active = TRUE,
		    created_by = EXCLUDED.created_by
		WHERE holidays.is_active = FALSE
		RETURNING id, created_at
	`, h.ID, h.Date, h.Name, h.Description, h.HolidayType, h.IsRecurring, h.CreatedBy).Scan(&h.ID, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return errDuplicateDate
	}
	if err != nil {
		return fmt.Errorf("insert holiday: %w", err)
	}
	h.IsActive = true
	return nil
}

// Get returns a holiday by id, nil when missing.
func (r *Repository) Get(ctx context.Context, id string) (*Holiday, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+holidayColumns+` FROM holidays WHERE id = $1`, id)
	return scanHoliday(row)
}

// OnDate returns the active holiday for d, nil when d is a normal day.
func (r *Repository) OnDate(ctx context.Context, d Date) (*Holiday, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+holidayColumns+` FROM holidays WHERE date = $1 AND is_active = TRUE`, d)
	return scanHoliday(row)
}

// Between lists active holidays in [start, end] ordered by date.
func (r *Repository) Between(ctx context.Context, start, end Date) ([]Holiday, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+holidayColumns+`
		FROM holidays
		WHERE date >= $1 AND date <= $2 AND is_active = TRUE
		ORDER BY date
	`, start, end)
	if err != nil {
		return nil, err
	}
	return collectHolidays(rows)
}

// All lists active holidays ordered by date.
func (r *Repository) All(ctx context.Context) ([]Holiday, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+holidayColumns+` FROM holidays WHERE is_active = TRUE ORDER BY date`)
	if err != nil {
		return nil, err
	}
	return collectHolidays(rows)
}

// Update writes every mutable column of h.
func (r *Repository) Update(ctx context.Context, h *Holiday) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE holidays
		SET date = $2, name = $3, description = $4, holiday_type = $5, is_recurring = $6, is_active = $7
		WHERE id = $1
	`, h.ID, h.Date, h.Name, h.Description, h.HolidayType, h.IsRecurring, h.IsActive)
	if store.IsUniqueViolation(err) {
		return errDuplicateDate
	}
	return err
}

// Deactivate soft-deletes a holiday. It reports false when no active row matched.
func (r *Repository) Deactivate(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE holidays SET is_active = FALSE WHERE id = $1 AND is_active = TRUE`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Setting reads one key, reporting whether it exists.
func (r *Repository) Setting(ctx context.Context, key string) (string, bool, error) {
	var val string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM attendance_settings WHERE key = $1`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// PutSetting upserts one key.
func (r *Repository) PutSetting(ctx context.Context, key, value, updatedBy string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_settings (key, value, updated_by, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = NOW()
	`, key, value, updatedBy)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHoliday(row rowScanner) (*Holiday, error) {
	var h Holiday
	if err := row.Scan(&h.ID, &h.Date, &h.Name, &h.Description, &h.HolidayType, &h.IsRecurring, &h.IsActive, &h.CreatedBy, &h.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &h, nil
}

func collectHolidays(rows *sql.Rows) ([]Holiday, error) {
	defer rows.Close()
	var out []Holiday
	for rows.Next() {
		h, err := scanHoliday(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}
