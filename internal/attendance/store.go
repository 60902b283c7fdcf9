package attendance

import (
	"context"
	"errors"
	"time"

	"campusattendance/internal/calendar"
	"campusattendance/internal/geofence"
	"campusattendance/internal/photo"
	"campusattendance/internal/schedule"
)

// ErrAlreadyMarked is returned by UpsertPresent when the day is already PRESENT.
var ErrAlreadyMarked = errors.New("attendance already marked")

// StateReader is everything a check evaluation reads.
type StateReader interface {
	HolidayOn(ctx context.Context, d calendar.Date) (*calendar.Holiday, error)
	RecordFor(ctx context.Context, studentID string, d calendar.Date) (*Record, error)
	CountAttemptsSince(ctx context.Context, studentID string, since time.Time) (int, error)
	ActiveWindows(ctx context.Context) ([]schedule.Window, error)
	PrimaryGeofence(ctx context.Context) (*geofence.Geofence, error)
	ApprovedPhoto(ctx context.Context, studentID string) (*photo.Photo, error)
}

// Tx is a unit of work for one mark call.
type Tx interface {
	StateReader
	InsertAttempt(ctx context.Context, a *Attempt) error
	UpsertPresent(ctx context.Context, r *Record) error
}

// Store is the persistence boundary of the pipeline and the stats engine.
type Store interface {
	// View runs fn against a read-only snapshot.
	View(ctx context.Context, fn func(StateReader) error) error
	// Update runs fn in a transaction serialized per student and day.
	Update(ctx context.Context, studentID string, day calendar.Date, fn func(Tx) error) error
	// AppendAttempt writes an attempt outside any mark transaction.
	AppendAttempt(ctx context.Context, a *Attempt) error

	RecordFor(ctx context.Context, studentID string, d calendar.Date) (*Record, error)
	RecordsBetween(ctx context.Context, studentID string, start, end calendar.Date) ([]Record, error)
	RecordsOn(ctx context.Context, d calendar.Date) ([]Record, error)
	CountStatusOn(ctx context.Context, d calendar.Date, s Status) (int, error)
	Attempts(ctx context.Context, studentID string, limit int) ([]Attempt, error)
	FailedAttempts(ctx context.Context, from, to *time.Time, limit int) ([]Attempt, error)
	CountFailedBetween(ctx context.Context, from, to time.Time) (int, error)
}
