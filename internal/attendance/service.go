package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/benbjohnson/clock"

	"campusattendance/internal/apperr"
	"campusattendance/internal/calendar"
	"campusattendance/internal/filestore"
	"campusattendance/internal/photo"
	"campusattendance/internal/queue"
)

const (
	capturesSubdir     = "captures"
	detailsCancelled   = "Request cancelled before completion"
	defaultAttemptsMax = 5

	// EventAttemptRecorded is published after every committed mark call.
	EventAttemptRecorded = "attempt.recorded"
)

// FaceVerifier is the external face recognition capability.
type FaceVerifier interface {
	DetectFaceCount(ctx context.Context, path string) (int, error)
	ExtractEncoding(ctx context.Context, path string) ([]float64, error)
	// Verify compares the face in the capture with a reference embedding.
	Verify(ctx context.Context, reference []float64, capturePath string) (bool, float64, error)
}

// FileStore persists captures durably before detection runs on them.
type FileStore interface {
	Save(ctx context.Context, dir, name string, r io.Reader) (string, error)
	Remove(path string) error
}

// Publisher receives events after a mark commits.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Observer records mark outcomes.
type Observer interface {
	ObserveMark(outcome, reason string, elapsed time.Duration)
}

// Config tunes the marking pipeline.
type Config struct {
	MaxDailyAttempts int
	FaceTimeout      time.Duration
	MatchPolicy      string
	Location         *time.Location
}

// Service runs the marking pipeline and the student-facing reads around it.
type Service struct {
	store  Store
	files  FileStore
	face   FaceVerifier
	clock  clock.Clock
	cfg    Config
	events Publisher
	obs    Observer
}

func NewService(st Store, files FileStore, face FaceVerifier, clk clock.Clock, cfg Config) *Service {
	if cfg.MaxDailyAttempts <= 0 {
		cfg.MaxDailyAttempts = defaultAttemptsMax
	}
	if cfg.FaceTimeout <= 0 {
		cfg.FaceTimeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{store: st, files: files, face: face, clock: clk, cfg: cfg}
}

// WithEvents sets where attempt events are published.
func (s *Service) WithEvents(p Publisher) *Service {
	s.events = p
	return s
}

func (s *Service) WithMetrics(o Observer) *Service {
	s.obs = o
	return s
}

func (s *Service) now() time.Time {
	return s.clock.Now().In(s.cfg.Location)
}

// PreCheck evaluates the same checks as Mark without writing anything.
func (s *Service) PreCheck(ctx context.Context, student Student) (*PreCheck, error) {
	now := s.now()
	var st *dayState
	err := s.store.View(ctx, func(r StateReader) error {
		var err error
		st, err = loadState(ctx, r, student.ID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &PreCheck{
		Blockers:           []string{},
		ProfileApproved:    st.approved != nil,
		WithinTimeWindow:   st.windowOpen(student.Category),
		AlreadyMarkedToday: st.markedToday(),
		AttemptsToday:      st.attempts,
		MaxAttempts:        s.cfg.MaxDailyAttempts,
	}
	for _, b := range append(st.policy(student.Category, s.cfg.MaxDailyAttempts), st.stateGates()...) {
		out.Blockers = append(out.Blockers, b.message)
	}
	out.CanMark = len(out.Blockers) == 0
	return out, nil
}

// Mark runs the full pipeline for one capture. Every call that reaches a
// decision writes exactly one attempt. Verification failures come back as
// a result; only infrastructure problems are errors, and those leave no
// attempt or record behind.
func (s *Service) Mark(ctx context.Context, student Student, loc Location, capture Capture) (*MarkResult, error) {
	if err := apperr.Struct(loc); err != nil {
		return nil, err
	}
	started := s.clock.Now()
	now := s.now()
	today := calendar.DateOf(now)

	var (
		res         *MarkResult
		att         *Attempt
		capturePath string
	)
	err := s.store.Update(ctx, student.ID, today, func(tx Tx) error {
		att = s.newAttempt(student.ID, now, loc)
		capturePath = ""
		var err error
		res, err = s.evaluate(ctx, tx, student, now, loc, capture, att, &capturePath)
		return err
	})

	switch {
	case errors.Is(err, ErrAlreadyMarked):
		// A concurrent mark committed first.
		att.ID = ""
		att.Success = false
		res = s.failure(att, blocked{reason: ReasonAlreadyMarked, message: msgAlreadyMarked})
		if err = s.store.AppendAttempt(ctx, att); err != nil {
			s.observe(started, "error", "")
			return nil, fmt.Errorf("record attempt: %w", err)
		}
	case err != nil:
		s.abandon(ctx, att, capturePath)
		s.observe(started, "error", "")
		return nil, err
	}

	res.AttemptID = att.ID
	outcome, reason := "success", ""
	if !res.Success {
		outcome, reason = "failure", string(*res.FailureReason)
	}
	s.observe(started, outcome, reason)
	s.publish(ctx, att.ID)
	return res, nil
}

func (s *Service) evaluate(ctx context.Context, tx Tx, student Student, now time.Time, loc Location,
	capture Capture, att *Attempt, capturePath *string) (*MarkResult, error) {
	st, err := loadState(ctx, tx, student.ID, now)
	if err != nil {
		return nil, err
	}
	if b := st.policy(student.Category, s.cfg.MaxDailyAttempts); len(b) > 0 {
		return s.reject(ctx, tx, att, b[0])
	}

	if st.fence == nil {
		return s.reject(ctx, tx, att, blocked{reason: ReasonOutsideCampus, message: msgNoGeofence, details: detailsMissingFence})
	}
	att.GeofenceID = &st.fence.ID
	if b := locationGate(loc, st.fence); b != nil {
		return s.reject(ctx, tx, att, *b)
	}

	name := fmt.Sprintf("%s_%s_%s", student.ID, now.Format("20060102_150405"), filestore.SafeName(capture.Filename))
	path, err := s.files.Save(ctx, capturesSubdir, name, capture.Body)
	if err != nil {
		return nil, fmt.Errorf("store capture: %w", err)
	}
	*capturePath = path
	att.CapturedImagePath = &path

	faces, err := s.detectFaces(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	if b := faceCountGate(faces); b != nil {
		return s.reject(ctx, tx, att, *b)
	}

	if st.approved == nil {
		return s.reject(ctx, tx, att, blocked{reason: ReasonProfileNotApproved, message: msgProfileMissing, details: detailsNoReference})
	}
	matched, score, err := s.verify(ctx, st.approved, path)
	if err != nil {
		return nil, fmt.Errorf("verify face: %w", err)
	}
	att.FaceMatchScore = &score
	if !matched {
		return s.reject(ctx, tx, att, blocked{
			reason:  ReasonFaceMismatch,
			message: msgFaceMismatch,
			details: fmt.Sprintf(detailsMatchScore, score),
		})
	}

	rec := &Record{
		StudentID:           student.ID,
		AttendanceDate:      st.today,
		LocationLatitude:    att.LocationLatitude,
		LocationLongitude:   att.LocationLongitude,
		LocationAccuracy:    att.LocationAccuracy,
		FaceMatchConfidence: &score,
		MarkedAt:            &now,
	}
	if err := tx.UpsertPresent(ctx, rec); err != nil {
		return nil, err
	}
	att.Success = true
	if err := tx.InsertAttempt(ctx, att); err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}
	status := StatusPresent
	return &MarkResult{
		Success:          true,
		Message:          msgMarkedOK,
		AttendanceStatus: &status,
		FaceMatchScore:   &score,
	}, nil
}

// reject writes the failed attempt in the current transaction.
func (s *Service) reject(ctx context.Context, tx Tx, att *Attempt, b blocked) (*MarkResult, error) {
	res := s.failure(att, b)
	if err := tx.InsertAttempt(ctx, att); err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}
	return res, nil
}

func (s *Service) failure(att *Attempt, b blocked) *MarkResult {
	reason := b.reason
	att.FailureReason = &reason
	if b.details != "" {
		details := b.details
		att.FailureDetails = &details
	}
	return &MarkResult{
		Success:        false,
		Message:        b.message,
		FailureReason:  &reason,
		FaceMatchScore: att.FaceMatchScore,
	}
}

// abandon cleans up after a rolled-back mark. A cancelled request that had
// already persisted its capture still leaves an audit entry.
func (s *Service) abandon(ctx context.Context, att *Attempt, capturePath string) {
	if capturePath == "" || att == nil {
		return
	}
	if ctx.Err() == nil {
		if err := s.files.Remove(capturePath); err != nil {
			log.Printf("remove capture %s: %v", capturePath, err)
		}
		return
	}
	att.ID = ""
	att.Success = false
	att.FailureReason = nil
	details := detailsCancelled
	att.FailureDetails = &details
	if err := s.store.AppendAttempt(context.WithoutCancel(ctx), att); err != nil {
		log.Printf("record cancelled attempt for %s: %v", att.StudentID, err)
	}
}

func (s *Service) newAttempt(studentID string, now time.Time, loc Location) *Attempt {
	lat, lon, acc := loc.Latitude, loc.Longitude, loc.Accuracy
	att := &Attempt{
		StudentID:         studentID,
		AttemptedAt:       now,
		LocationLatitude:  &lat,
		LocationLongitude: &lon,
		LocationAccuracy:  &acc,
	}
	if s.cfg.MatchPolicy != "" {
		policy := s.cfg.MatchPolicy
		att.MatchPolicy = &policy
	}
	return att
}

func (s *Service) detectFaces(ctx context.Context, path string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FaceTimeout)
	defer cancel()
	return s.face.DetectFaceCount(ctx, path)
}

// verify matches the capture against the encoding stored with the approved
// photo. Photos approved before encodings were stored are encoded here.
func (s *Service) verify(ctx context.Context, ref *photo.Photo, capture string) (bool, float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FaceTimeout)
	defer cancel()
	enc := []float64(ref.FaceEncoding)
	if len(enc) == 0 {
		var err error
		if enc, err = s.face.ExtractEncoding(ctx, ref.FilePath); err != nil {
			return false, 0, fmt.Errorf("reference encoding: %w", err)
		}
	}
	return s.face.Verify(ctx, enc, capture)
}

func (s *Service) observe(started time.Time, outcome, reason string) {
	if s.obs != nil {
		s.obs.ObserveMark(outcome, reason, s.clock.Since(started))
	}
}

func (s *Service) publish(ctx context.Context, attemptID string) {
	if s.events == nil {
		return
	}
	msg := queue.Message{Type: EventAttemptRecorded, Body: []byte(attemptID)}
	if err := s.events.Publish(context.WithoutCancel(ctx), msg); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}

// Today returns the student's record for the current day, nil when unmarked.
func (s *Service) Today(ctx context.Context, studentID string) (*Record, error) {
	return s.store.RecordFor(ctx, studentID, calendar.DateOf(s.now()))
}

// Attempts lists the student's own attempt log.
func (s *Service) Attempts(ctx context.Context, studentID string, limit int) ([]Attempt, error) {
	return s.store.Attempts(ctx, studentID, clampLimit(limit, 20, 100))
}

// FailedAttempts is the admin feed of failures, optionally bounded by
// campus-local dates (inclusive).
func (s *Service) FailedAttempts(ctx context.Context, start, end *calendar.Date, limit int) ([]Attempt, error) {
	if start != nil && end != nil && start.After(*end) {
		return nil, apperr.Validation("start_date must not be after end_date")
	}
	var from, to *time.Time
	if start != nil {
		t := start.In(s.cfg.Location)
		from = &t
	}
	if end != nil {
		t := end.AddDays(1).In(s.cfg.Location)
		to = &t
	}
	return s.store.FailedAttempts(ctx, from, to, clampLimit(limit, 100, 500))
}

func clampLimit(n, def, ceiling int) int {
	if n <= 0 {
		return def
	}
	return min(n, ceiling)
}
