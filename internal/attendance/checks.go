package attendance

import (
	"context"
	"fmt"
	"time"

	"campusattendance/internal/calendar"
	"campusattendance/internal/geofence"
	"campusattendance/internal/photo"
	"campusattendance/internal/schedule"
)

const (
	msgSunday           = "Attendance is not required on Sundays"
	msgHoliday          = "Today is a holiday: %s"
	msgAlreadyMarked    = "Attendance already marked today"
	msgAttemptLimit     = "Maximum attempts (%d) reached for today"
	msgOutsideWindow    = "Outside attendance time window"
	msgNoGeofence       = "Campus geofence not configured"
	msgProfileMissing   = "Profile photo not approved"
	msgLowAccuracy      = "GPS accuracy too low. Please move to an open area."
	msgOutsideCampus    = "You are outside the campus boundary"
	msgNoFace           = "No face detected. Please ensure your face is clearly visible."
	msgMultipleFaces    = "Multiple faces detected. Only you should be in the frame."
	msgFaceMismatch     = "Face verification failed. Please try again."
	msgMarkedOK         = "Attendance marked successfully!"
	detailsAccuracy     = "GPS accuracy %vm exceeds threshold %vm"
	detailsDistance     = "Distance from campus center: %.0fm (radius: %vm)"
	detailsFaceCount    = "%d faces detected"
	detailsNoFace       = "No face detected in captured image"
	detailsMatchScore   = "Face match score: %v"
	detailsNoReference  = "No approved profile photo on file"
	detailsMissingFence = "No active primary geofence"
)

// dayState is everything the checks need about one student on one day.
type dayState struct {
	now      time.Time
	today    calendar.Date
	holiday  *calendar.Holiday
	record   *Record
	attempts int
	windows  []schedule.Window
	fence    *geofence.Geofence
	approved *photo.Photo
}

// loadState reads the student's state for the day containing now.
func loadState(ctx context.Context, r StateReader, studentID string, now time.Time) (*dayState, error) {
	st := &dayState{now: now, today: calendar.DateOf(now)}
	var err error
	if st.holiday, err = r.HolidayOn(ctx, st.today); err != nil {
		return nil, fmt.Errorf("load holiday: %w", err)
	}
	if st.record, err = r.RecordFor(ctx, studentID, st.today); err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	if st.attempts, err = r.CountAttemptsSince(ctx, studentID, st.today.In(now.Location())); err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if st.windows, err = r.ActiveWindows(ctx); err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}
	if st.fence, err = r.PrimaryGeofence(ctx); err != nil {
		return nil, fmt.Errorf("load geofence: %w", err)
	}
	if st.approved, err = r.ApprovedPhoto(ctx, studentID); err != nil {
		return nil, fmt.Errorf("load profile photo: %w", err)
	}
	return st, nil
}

// blocked is a failed check: the reason recorded on the attempt and the
// message shown to the student.
type blocked struct {
	reason  FailureReason
	message string
	details string
}

func (st *dayState) markedToday() bool {
	return st.record != nil && st.record.Status == StatusPresent
}

func (st *dayState) windowOpen(category string) bool {
	return schedule.IsOpen(st.windows, schedule.TimeOf(st.now), calendar.DayIndex(st.now.Weekday()), category)
}

// policy runs the day-level checks in order and returns every failure.
// Mark stops at the first one; pre-check reports them all.
func (st *dayState) policy(category string, maxAttempts int) []blocked {
	var out []blocked
	switch {
	case st.today.IsSunday():
		out = append(out, blocked{reason: ReasonNonWorkingDay, message: msgSunday})
	case st.holiday != nil:
		out = append(out, blocked{reason: ReasonNonWorkingDay, message: fmt.Sprintf(msgHoliday, st.holiday.Name)})
	}
	if st.markedToday() {
		out = append(out, blocked{reason: ReasonAlreadyMarked, message: msgAlreadyMarked})
	}
	if maxAttempts > 0 && st.attempts >= maxAttempts {
		out = append(out, blocked{reason: ReasonAttemptLimitReached, message: fmt.Sprintf(msgAttemptLimit, maxAttempts)})
	}
	if !st.windowOpen(category) {
		out = append(out, blocked{reason: ReasonOutsideTimeWindow, message: msgOutsideWindow})
	}
	return out
}

// stateGates are the gates answerable without a location or a capture.
func (st *dayState) stateGates() []blocked {
	var out []blocked
	if st.fence == nil {
		out = append(out, blocked{reason: ReasonOutsideCampus, message: msgNoGeofence, details: detailsMissingFence})
	}
	if st.approved == nil {
		out = append(out, blocked{reason: ReasonProfileNotApproved, message: msgProfileMissing, details: detailsNoReference})
	}
	return out
}

// locationGate checks GPS accuracy, then containment in the geofence.
func locationGate(loc Location, g *geofence.Geofence) *blocked {
	if loc.Accuracy > g.AccuracyThreshold {
		return &blocked{
			reason:  ReasonLowGPSAccuracy,
			message: msgLowAccuracy,
			details: fmt.Sprintf(detailsAccuracy, loc.Accuracy, g.AccuracyThreshold),
		}
	}
	within, dist := geofence.Contains(geofence.Point{Latitude: loc.Latitude, Longitude: loc.Longitude}, *g)
	if !within {
		return &blocked{
			reason:  ReasonOutsideCampus,
			message: msgOutsideCampus,
			details: fmt.Sprintf(detailsDistance, dist, g.RadiusMeters),
		}
	}
	return nil
}

// faceCountGate requires exactly one face in the capture.
func faceCountGate(n int) *blocked {
	switch {
	case n == 0:
		return &blocked{reason: ReasonNoFaceDetected, message: msgNoFace, details: detailsNoFace}
	case n > 1:
		return &blocked{reason: ReasonMultipleFaces, message: msgMultipleFaces, details: fmt.Sprintf(detailsFaceCount, n)}
	}
	return nil
}
