package attendance

import (
	"io"
	"time"

	"campusattendance/internal/calendar"
)

// Status is the state of a student's day.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
	StatusPending Status = "PENDING"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusPending:
		return true
	}
	return false
}

// FailureReason explains why a mark call did not record attendance.
type FailureReason string

const (
	ReasonOutsideCampus       FailureReason = "OUTSIDE_CAMPUS"
	ReasonGPSDisabled         FailureReason = "GPS_DISABLED"
	ReasonLowGPSAccuracy      FailureReason = "LOW_GPS_ACCURACY"
	ReasonFaceMismatch        FailureReason = "FACE_MISMATCH"
	ReasonMultipleFaces       FailureReason = "MULTIPLE_FACES"
	ReasonNoFaceDetected      FailureReason = "NO_FACE_DETECTED"
	ReasonProfileNotApproved  FailureReason = "PROFILE_NOT_APPROVED"
	ReasonOutsideTimeWindow   FailureReason = "OUTSIDE_TIME_WINDOW"
	ReasonAlreadyMarked       FailureReason = "ALREADY_MARKED"
	ReasonNonWorkingDay       FailureReason = "NON_WORKING_DAY"
	ReasonAttemptLimitReached FailureReason = "ATTEMPT_LIMIT_REACHED"
)

func (r FailureReason) Valid() bool {
	switch r {
	case ReasonOutsideCampus, ReasonGPSDisabled, ReasonLowGPSAccuracy, ReasonFaceMismatch,
		ReasonMultipleFaces, ReasonNoFaceDetected, ReasonProfileNotApproved, ReasonOutsideTimeWindow,
		ReasonAlreadyMarked, ReasonNonWorkingDay, ReasonAttemptLimitReached:
		return true
	}
	return false
}

// Location is the GPS fix sent with a mark request.
type Location struct {
	Latitude  float64 `json:"latitude" form:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" form:"longitude" validate:"gte=-180,lte=180"`
	Accuracy  float64 `json:"accuracy" form:"accuracy" validate:"gte=0"`
}

// Student identifies the caller of a mark or pre-check.
type Student struct {
	ID       string
	Category string
}

// Capture is the freshly taken selfie.
type Capture struct {
	Filename string
	Body     io.Reader
}

// Record is one student's attendance for one day. Synthesized absences have
// a nil ID.
type Record struct {
	ID                  *string       `json:"id"`
	StudentID           string        `json:"student_id"`
	AttendanceDate      calendar.Date `json:"attendance_date"`
	Status              Status        `json:"status"`
	LocationLatitude    *float64      `json:"location_latitude,omitempty"`
	LocationLongitude   *float64      `json:"location_longitude,omitempty"`
	LocationAccuracy    *float64      `json:"location_accuracy,omitempty"`
	FaceMatchConfidence *float64      `json:"face_match_confidence,omitempty"`
	MarkedAt            *time.Time    `json:"marked_at"`
}

// Attempt is the immutable audit entry written for every mark call.
type Attempt struct {
	ID                string         `json:"id"`
	StudentID         string         `json:"student_id"`
	AttemptedAt       time.Time      `json:"attempted_at"`
	Success           bool           `json:"success"`
	FailureReason     *FailureReason `json:"failure_reason,omitempty"`
	FailureDetails    *string        `json:"failure_details,omitempty"`
	LocationLatitude  *float64       `json:"location_latitude,omitempty"`
	LocationLongitude *float64       `json:"location_longitude,omitempty"`
	LocationAccuracy  *float64       `json:"location_accuracy,omitempty"`
	FaceMatchScore    *float64       `json:"face_match_score,omitempty"`
	CapturedImagePath *string        `json:"-"`
	GeofenceID        *string        `json:"geofence_id,omitempty"`
	MatchPolicy       *string        `json:"match_policy,omitempty"`
	EvidenceURL       *string        `json:"evidence_url,omitempty"`
}

// MarkResult is the outcome of a mark call. A failed verification is a
// normal result, not an error.
type MarkResult struct {
	Success          bool           `json:"success"`
	Message          string         `json:"message"`
	AttendanceStatus *Status        `json:"attendance_status,omitempty"`
	FailureReason    *FailureReason `json:"failure_reason,omitempty"`
	FaceMatchScore   *float64       `json:"face_match_score,omitempty"`
	AttemptID        string         `json:"attempt_id,omitempty"`
}

// PreCheck is the advisory answer to "can I mark now?".
type PreCheck struct {
	CanMark            bool     `json:"can_mark"`
	Blockers           []string `json:"blockers"`
	ProfileApproved    bool     `json:"profile_approved"`
	WithinTimeWindow   bool     `json:"within_time_window"`
	AlreadyMarkedToday bool     `json:"already_marked_today"`
	AttemptsToday      int      `json:"attempts_today"`
	MaxAttempts        int      `json:"max_attempts"`
}

// Evidence links an attempt to its archived capture.
type Evidence struct {
	AttemptID string
	URL       string
	PublicID  string
}
