package photo

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/benbjohnson/clock"

	"campusattendance/internal/apperr"
	"campusattendance/internal/filestore"
	"campusattendance/internal/store"
)

// FaceDetector is the part of the face service used for reference photos.
type FaceDetector interface {
	DetectFaceCount(ctx context.Context, path string) (int, error)
	ExtractEncoding(ctx context.Context, path string) ([]float64, error)
}

// FileStore persists uploads durably before they are inspected.
type FileStore interface {
	Save(ctx context.Context, dir, name string, r io.Reader) (string, error)
	Remove(path string) error
}

// Service manages the reference-photo lifecycle.
type Service struct {
	db          *sql.DB
	files       FileStore
	face        FaceDetector
	clock       clock.Clock
	faceTimeout time.Duration
}

func NewService(db *sql.DB, files FileStore, face FaceDetector, clk clock.Clock, faceTimeout time.Duration) *Service {
	if faceTimeout <= 0 {
		faceTimeout = 10 * time.Second
	}
	return &Service{db: db, files: files, face: face, clock: clk, faceTimeout: faceTimeout}
}

// Upload stores a new reference photo as PENDING. The image must contain
// exactly one face; otherwise the stored file is removed and a validation
// error is returned.
func (s *Service) Upload(ctx context.Context, studentID, filename string, body io.Reader) (*Photo, error) {
	now := s.clock.Now()
	name := fmt.Sprintf("%s_%s_%s", studentID, now.Format("20060102_150405"), filestore.SafeName(filename))
	path, err := s.files.Save(ctx, profilePhotoSubdir, name, body)
	if err != nil {
		return nil, fmt.Errorf("store profile photo: %w", err)
	}

	p, err := s.inspectAndInsert(ctx, studentID, filename, path)
	if err != nil {
		if rmErr := s.files.Remove(path); rmErr != nil {
			log.Printf("remove rejected photo %s: %v", path, rmErr)
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) inspectAndInsert(ctx context.Context, studentID, filename, path string) (*Photo, error) {
	faceCtx, cancel := context.WithTimeout(ctx, s.faceTimeout)
	defer cancel()

	count, err := s.face.DetectFaceCount(faceCtx, path)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	switch {
	case count == 0:
		return nil, apperr.Validation("No face detected in image")
	case count > 1:
		return nil, apperr.Validation("Multiple faces detected (%d). Please upload a photo with only your face.", count)
	}

	enc, err := s.face.ExtractEncoding(faceCtx, path)
	if err != nil {
		return nil, fmt.Errorf("extract encoding: %w", err)
	}

	p := &Photo{
		StudentID:    studentID,
		FilePath:     path,
		Filename:     filename,
		FaceEncoding: enc,
		Status:       StatusPending,
	}
	if err := NewRepository(s.db).Insert(ctx, p); err != nil {
		return nil, fmt.Errorf("insert profile photo: %w", err)
	}
	return p, nil
}

// Review records an admin decision. Approving demotes any earlier approved
// photo of the same student inside the same transaction.
func (s *Service) Review(ctx context.Context, photoID, reviewerID string, rv Review) (*Photo, error) {
	if err := apperr.Struct(rv); err != nil {
		return nil, err
	}
	var out *Photo
	err := store.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		repo := NewRepository(tx)
		p, err := repo.GetForUpdate(ctx, photoID)
		if err != nil {
			return err
		}
		if p == nil {
			return apperr.NotFound("profile photo")
		}
		if p.Status != StatusPending {
			return apperr.Validation(reviewedAlreadyError)
		}

		now := s.clock.Now()
		p.ReviewedBy = &reviewerID
		p.ReviewedAt = &now
		if rv.Approved {
			if err := repo.DemoteApproved(ctx, p.StudentID, p.ID); err != nil {
				return err
			}
			p.Status = StatusApproved
			p.RejectionReason = nil
		} else {
			reason := DefaultRejectReason
			if rv.Reason != nil && *rv.Reason != "" {
				reason = *rv.Reason
			}
			p.Status = StatusRejected
			p.RejectionReason = &reason
		}
		if err := repo.SetReview(ctx, p.ID, p.Status, p.RejectionReason, reviewerID, now); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// Latest returns the student's newest photo regardless of status, nil if none.
func (s *Service) Latest(ctx context.Context, studentID string) (*Photo, error) {
	return NewRepository(s.db).Latest(ctx, studentID)
}

// Pending returns one page of the review queue.
func (s *Service) Pending(ctx context.Context, offset, limit int) (Page, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	repo := NewRepository(s.db)
	photos, err := repo.Pending(ctx, offset, limit)
	if err != nil {
		return Page{}, err
	}
	total, err := repo.CountPending(ctx)
	if err != nil {
		return Page{}, err
	}
	if photos == nil {
		photos = []Photo{}
	}
	return Page{Photos: photos, Total: total}, nil
}
