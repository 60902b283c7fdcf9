package schedule

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"campusattendance/internal/store"
)

const columns = `id, name, start_time::text, end_time::text, days_of_week, student_category, is_active, created_at`

// Repository persists attendance windows in Postgres.
type Repository struct {
	db store.DBTX
}

// NewRepository creates a repo over a pool or a transaction.
func NewRepository(db store.DBTX) *Repository {
	return &Repository{db: db}
}

// Active returns every active window. Category filtering happens in IsOpen.
func (r *Repository) Active(ctx context.Context) ([]Window, error) {
	return r.query(ctx, `SELECT `+columns+` FROM attendance_windows WHERE is_active = TRUE ORDER BY start_time`)
}

func (r *Repository) List(ctx context.Context) ([]Window, error) {
	return r.query(ctx, `SELECT `+columns+` FROM attendance_windows ORDER BY start_time`)
}

func (r *Repository) Get(ctx context.Context, id string) (*Window, error) {
	w, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM attendance_windows WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

func (r *Repository) Insert(ctx context.Context, w *Window) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_windows (id, name, start_time, end_time, days_of_week, student_category, is_active)
		VALUES ($1, $2, $3::time, $4::time, $5::jsonb, $6, $7)
		RETURNING created_at
	`, w.ID, w.Name, w.StartTime, w.EndTime, w.DaysOfWeek, w.StudentCategory, w.IsActive).Scan(&w.CreatedAt)
}

func (r *Repository) Update(ctx context.Context, w *Window) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_windows
		SET name = $2, start_time = $3::time, end_time = $4::time, days_of_week = $5::jsonb,
		    student_category = $6, is_active = $7
		WHERE id = $1
	`, w.ID, w.Name, w.StartTime, w.EndTime, w.DaysOfWeek, w.StudentCategory, w.IsActive)
	return err
}

// Delete removes a window. It reports false when nothing matched.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance_windows WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]Window, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Window
	for rows.Next() {
		w, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (*Window, error) {
	var w Window
	if err := row.Scan(&w.ID, &w.Name, &w.StartTime, &w.EndTime, &w.DaysOfWeek, &w.StudentCategory, &w.IsActive, &w.CreatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}
