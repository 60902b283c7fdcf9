package photo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"campusattendance/internal/store"
)

const columns = `id, student_id, file_path, filename, face_encoding, status, rejection_reason, reviewed_by, reviewed_at, created_at`

// Repository persists profile photos in Postgres.
type Repository struct {
	db store.DBTX
}

// NewRepository creates a repo over a pool or a transaction.
func NewRepository(db store.DBTX) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, p *Photo) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO profile_photos (id, student_id, file_path, filename, face_encoding, status)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		RETURNING created_at
	`, p.ID, p.StudentID, p.FilePath, p.Filename, p.FaceEncoding, p.Status).Scan(&p.CreatedAt)
}

// GetForUpdate locks the row for the rest of the transaction.
func (r *Repository) GetForUpdate(ctx context.Context, id string) (*Photo, error) {
	return scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM profile_photos WHERE id = $1 FOR UPDATE`, id))
}

// Latest returns the newest photo of any status.
func (r *Repository) Latest(ctx context.Context, studentID string) (*Photo, error) {
	return scan(r.db.QueryRowContext(ctx, `
		SELECT `+columns+` FROM profile_photos
		WHERE student_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, studentID))
}

// Approved returns the single approved photo, nil when there is none.
func (r *Repository) Approved(ctx context.Context, studentID string) (*Photo, error) {
	return scan(r.db.QueryRowContext(ctx, `
		SELECT `+columns+` FROM profile_photos
		WHERE student_id = $1 AND status = 'APPROVED'
	`, studentID))
}

// Pending lists photos awaiting review, oldest first.
func (r *Repository) Pending(ctx context.Context, offset, limit int) ([]Photo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+columns+` FROM profile_photos
		WHERE status = 'PENDING'
		ORDER BY created_at
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Photo
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *Repository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profile_photos WHERE status = 'PENDING'`).Scan(&n)
	return n, err
}

// DemoteApproved rejects the student's current approved photo, if any.
func (r *Repository) DemoteApproved(ctx context.Context, studentID, exceptID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE profile_photos SET status = 'REJECTED', rejection_reason = $3
		WHERE student_id = $1 AND status = 'APPROVED' AND id <> $2
	`, studentID, exceptID, ReasonReplaced)
	return err
}

func (r *Repository) SetReview(ctx context.Context, id string, status Status, reason *string, reviewer string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE profile_photos
		SET status = $2, rejection_reason = $3, reviewed_by = $4, reviewed_at = $5
		WHERE id = $1
	`, id, status, reason, reviewer, at)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (*Photo, error) {
	var p Photo
	err := row.Scan(&p.ID, &p.StudentID, &p.FilePath, &p.Filename, &p.FaceEncoding, &p.Status,
		&p.RejectionReason, &p.ReviewedBy, &p.ReviewedAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !p.Status.Valid() {
		return nil, fmt.Errorf("photo %s: unknown status %q", p.ID, p.Status)
	}
	return &p, nil
}
