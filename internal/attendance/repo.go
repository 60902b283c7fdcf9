package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"campusattendance/internal/calendar"
	"campusattendance/internal/store"
)

const (
	recordColumns = `id, student_id, attendance_date, status, location_latitude, location_longitude,
		location_accuracy, face_match_confidence, marked_at`
	attemptColumns = `a.id, a.student_id, a.attempted_at, a.success, a.failure_reason, a.failure_details,
		a.location_latitude, a.location_longitude, a.location_accuracy, a.face_match_score,
		a.captured_image_path, a.geofence_id, a.match_policy, e.url`
)

// Repository persists attendance records and attempts in Postgres.
type Repository struct {
	db store.DBTX
}

// NewRepository creates a repo over a pool or a transaction.
func NewRepository(db store.DBTX) *Repository {
	return &Repository{db: db}
}

// RecordFor returns the student's record for d, nil when none exists.
func (r *Repository) RecordFor(ctx context.Context, studentID string, d calendar.Date) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE student_id = $1 AND attendance_date = $2
	`, studentID, d)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// RecordsBetween lists the student's records in [start, end], newest first.
func (r *Repository) RecordsBetween(ctx context.Context, studentID string, start, end calendar.Date) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE student_id = $1 AND attendance_date >= $2 AND attendance_date <= $3
		ORDER BY attendance_date DESC
	`, studentID, start, end)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// RecordsOn lists every record for one day.
func (r *Repository) RecordsOn(ctx context.Context, d calendar.Date) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE attendance_date = $1
		ORDER BY marked_at
	`, d)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (r *Repository) CountStatusOn(ctx context.Context, d calendar.Date, s Status) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_records WHERE attendance_date = $1 AND status = $2
	`, d, s).Scan(&n)
	return n, err
}

// UpsertPresent moves the day to PRESENT. An existing PRESENT row is left
// untouched and reported as ErrAlreadyMarked, as is a unique violation from
// a concurrent insert.
func (r *Repository) UpsertPresent(ctx context.Context, rec *Record) error {
	if rec.ID == nil {
		id := uuid.NewString()
		rec.ID = &id
	}
	rec.Status = StatusPresent
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records
			(id, student_id, attendance_date, status, location_latitude, location_longitude,
			 location_accuracy, face_match_confidence, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (student_id, attendance_date) DO UPDATE
		SET status = EXCLUDED.status,
		    location_latitude = EXCLUDED.location_latitude,
		    location_longitude = EXCLUDED.location_longitude,
		    location_accuracy = EXCLUDED.location_accuracy,
		    face_match_confidence = EXCLUDED.face_match_confidence,
		    marked_at = EXCLUDED.marked_at
		WHERE attendance_records.status <> 'PRESENT'
		RETURNING id
	`, *rec.ID, rec.StudentID, rec.AttendanceDate, rec.Status, rec.LocationLatitude, rec.LocationLongitude,
		rec.LocationAccuracy, rec.FaceMatchConfidence, rec.MarkedAt).Scan(rec.ID)
	if errors.Is(err, sql.ErrNoRows) || store.IsUniqueViolation(err) {
		return ErrAlreadyMarked
	}
	return err
}

func (r *Repository) InsertAttempt(ctx context.Context, a *Attempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_attempts
			(id, student_id, attempted_at, success, failure_reason, failure_details, location_latitude,
			 location_longitude, location_accuracy, face_match_score, captured_image_path, geofence_id, match_policy)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, a.ID, a.StudentID, a.AttemptedAt, a.Success, a.FailureReason, a.FailureDetails, a.LocationLatitude,
		a.LocationLongitude, a.LocationAccuracy, a.FaceMatchScore, a.CapturedImagePath, a.GeofenceID, a.MatchPolicy)
	return err
}

// CountAttemptsSince counts every attempt, successful or not, at or after since.
func (r *Repository) CountAttemptsSince(ctx context.Context, studentID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_attempts WHERE student_id = $1 AND attempted_at >= $2
	`, studentID, since).Scan(&n)
	return n, err
}

// Attempts lists the student's attempts, newest first.
func (r *Repository) Attempts(ctx context.Context, studentID string, limit int) ([]Attempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+attemptColumns+`
		FROM attendance_attempts a
		LEFT JOIN attempt_evidence e ON e.attempt_id = a.id
		WHERE a.student_id = $1
		ORDER BY a.attempted_at DESC
		LIMIT $2
	`, studentID, limit)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

// FailedAttempts lists failures in the optional [from, to) range, newest first.
func (r *Repository) FailedAttempts(ctx context.Context, from, to *time.Time, limit int) ([]Attempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+attemptColumns+`
		FROM attendance_attempts a
		LEFT JOIN attempt_evidence e ON e.attempt_id = a.id
		WHERE a.success = FALSE
		  AND ($1::timestamptz IS NULL OR a.attempted_at >= $1)
		  AND ($2::timestamptz IS NULL OR a.attempted_at < $2)
		ORDER BY a.attempted_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

func (r *Repository) CountFailedBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_attempts
		WHERE success = FALSE AND attempted_at >= $1 AND attempted_at < $2
	`, from, to).Scan(&n)
	return n, err
}

// AttemptByID fetches one attempt with its evidence link, nil when missing.
func (r *Repository) AttemptByID(ctx context.Context, id string) (*Attempt, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+attemptColumns+`
		FROM attendance_attempts a
		LEFT JOIN attempt_evidence e ON e.attempt_id = a.id
		WHERE a.id = $1
	`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// SaveEvidence links an archived capture to its attempt. Re-archiving is a no-op.
func (r *Repository) SaveEvidence(ctx context.Context, ev Evidence) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attempt_evidence (attempt_id, url, public_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (attempt_id) DO NOTHING
	`, ev.AttemptID, ev.URL, ev.PublicID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var id string
	if err := row.Scan(&id, &rec.StudentID, &rec.AttendanceDate, &rec.Status, &rec.LocationLatitude,
		&rec.LocationLongitude, &rec.LocationAccuracy, &rec.FaceMatchConfidence, &rec.MarkedAt); err != nil {
		return nil, err
	}
	if !rec.Status.Valid() {
		return nil, fmt.Errorf("record %s: unknown status %q", id, rec.Status)
	}
	rec.ID = &id
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanAttempt(row rowScanner) (*Attempt, error) {
	var a Attempt
	if err := row.Scan(&a.ID, &a.StudentID, &a.AttemptedAt, &a.Success, &a.FailureReason, &a.FailureDetails,
		&a.LocationLatitude, &a.LocationLongitude, &a.LocationAccuracy, &a.FaceMatchScore,
		&a.CapturedImagePath, &a.GeofenceID, &a.MatchPolicy, &a.EvidenceURL); err != nil {
		return nil, err
	}
	if a.FailureReason != nil && !a.FailureReason.Valid() {
		return nil, fmt.Errorf("attempt %s: unknown failure reason %q", a.ID, *a.FailureReason)
	}
	return &a, nil
}

func collectAttempts(rows *sql.Rows) ([]Attempt, error) {
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
