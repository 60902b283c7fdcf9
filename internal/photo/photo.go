package photo

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the review state of a profile photo.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

const (
	ReasonReplaced       = "Replaced by new approved photo"
	DefaultRejectReason  = "Photo rejected by admin"
	profilePhotoSubdir   = "profile_photos"
	reviewedAlreadyError = "Photo has already been reviewed"
)

// Photo is a student's reference image for face matching.
type Photo struct {
	ID              string     `json:"id"`
	StudentID       string     `json:"student_id"`
	FilePath        string     `json:"-"`
	Filename        string     `json:"filename"`
	FaceEncoding    Encoding   `json:"-"`
	Status          Status     `json:"status"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	ReviewedBy      *string    `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Encoding is a face embedding stored as a JSON array.
type Encoding []float64

func (e *Encoding) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*e = nil
		return nil
	case []byte:
		return json.Unmarshal(v, (*[]float64)(e))
	case string:
		return json.Unmarshal([]byte(v), (*[]float64)(e))
	}
	return fmt.Errorf("cannot scan %T into Encoding", value)
}

func (e Encoding) Value() (driver.Value, error) {
	if e == nil {
		return nil, nil
	}
	b, err := json.Marshal([]float64(e))
	return string(b), err
}

// Review is an admin decision on a pending photo.
type Review struct {
	Approved bool    `json:"approved"`
	Reason   *string `json:"rejection_reason" validate:"omitnil,max=500"`
}

// Page is one page of the pending review queue.
type Page struct {
	Photos []Photo `json:"photos"`
	Total  int     `json:"total"`
}
