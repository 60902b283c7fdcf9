package attendance

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"campusattendance/internal/apperr"
	"campusattendance/internal/calendar"
	"campusattendance/internal/identity"
	"campusattendance/internal/schedule"
)

// Calendar supplies holidays and the academic year.
type Calendar interface {
	AcademicYear(ctx context.Context, today calendar.Date) (calendar.AcademicYear, error)
	Between(ctx context.Context, start, end calendar.Date) ([]calendar.Holiday, error)
}

// Roster lists the students expected to mark attendance.
type Roster interface {
	ActiveStudents(ctx context.Context) ([]identity.Student, error)
	CountActiveStudents(ctx context.Context) (int, error)
}

// WindowSource lists the active attendance windows.
type WindowSource interface {
	Active(ctx context.Context) ([]schedule.Window, error)
}

// Stats summarizes one student's attendance over a date range.
type Stats struct {
	StudentID     string             `json:"student_id"`
	StartDate     calendar.Date      `json:"start_date"`
	EndDate       calendar.Date      `json:"end_date"`
	WorkingDays   int                `json:"working_days"`
	PresentDays   int                `json:"present_days"`
	AbsentDays    int                `json:"absent_days"`
	Percentage    float64            `json:"attendance_percentage"`
	Holidays      []calendar.Holiday `json:"holidays"`
	HolidaysCount int                `json:"holidays_count"`
	History       []Record           `json:"history"`
}

// Dashboard is the admin headline for one day.
type Dashboard struct {
	Date           calendar.Date `json:"date"`
	TotalStudents  int           `json:"total_students"`
	PresentCount   int           `json:"present_count"`
	AbsentCount    int           `json:"absent_count"`
	FailedAttempts int           `json:"failed_attempts"`
	Percentage     float64       `json:"attendance_percentage"`
}

// StudentDay is one row of the detailed admin view.
type StudentDay struct {
	identity.Student
	Category            string     `json:"category,omitempty"`
	Status              Status     `json:"status"`
	MarkedAt            *time.Time `json:"marked_at,omitempty"`
	FaceMatchConfidence *float64   `json:"face_match_confidence,omitempty"`
}

// StatsEngine derives attendance figures from stored records. Absences are
// never stored by a batch job; they are synthesized on read.
type StatsEngine struct {
	store    Store
	calendar Calendar
	roster   Roster
	windows  WindowSource
	clock    clock.Clock
	loc      *time.Location
}

func NewStatsEngine(st Store, cal Calendar, roster Roster, windows WindowSource, clk clock.Clock, loc *time.Location) *StatsEngine {
	if loc == nil {
		loc = time.Local
	}
	return &StatsEngine{store: st, calendar: cal, roster: roster, windows: windows, clock: clk, loc: loc}
}

func (e *StatsEngine) now() time.Time {
	return e.clock.Now().In(e.loc)
}

// Stats computes a student's figures for [start, end]. With no start the
// academic year is used and end never runs past the academic year's end.
// Before a configured academic year begins the defaulted range is empty.
func (e *StatsEngine) Stats(ctx context.Context, studentID string, start, end *calendar.Date) (*Stats, error) {
	today := calendar.DateOf(e.now())
	to := today
	if end != nil {
		to = *end
	}
	var from calendar.Date
	if start != nil {
		from = *start
	} else {
		ay, err := e.calendar.AcademicYear(ctx, today)
		if err != nil {
			return nil, err
		}
		from = ay.StartDate
		if to.After(ay.EndDate) {
			to = ay.EndDate
		}
		if from.After(to) {
			st := summarize(studentID, nil, nil, from, to, today)
			return &st, nil
		}
	}
	if from.After(to) {
		return nil, apperr.Validation("start_date must not be after end_date")
	}

	records, err := e.store.RecordsBetween(ctx, studentID, from, to)
	if err != nil {
		return nil, err
	}
	holidays, err := e.calendar.Between(ctx, from, to)
	if err != nil {
		return nil, err
	}
	st := summarize(studentID, records, holidays, from, to, today)
	return &st, nil
}

// History returns the synthesized per-day list only.
func (e *StatsEngine) History(ctx context.Context, studentID string, start, end *calendar.Date) ([]Record, error) {
	st, err := e.Stats(ctx, studentID, start, end)
	if err != nil {
		return nil, err
	}
	return st.History, nil
}

// summarize is the pure part of Stats. History runs from end down to start
// with one entry per working day up to today.
func summarize(studentID string, records []Record, holidays []calendar.Holiday, start, end, today calendar.Date) Stats {
	byDate := make(map[calendar.Date]Record, len(records))
	present := 0
	for _, r := range records {
		byDate[r.AttendanceDate] = r
		if r.Status == StatusPresent {
			present++
		}
	}
	off := make(map[calendar.Date]struct{}, len(holidays))
	for _, h := range holidays {
		off[h.Date] = struct{}{}
	}

	working := 0
	history := []Record{}
	for d := end; !d.Before(start); d = d.AddDays(-1) {
		if d.IsSunday() {
			continue
		}
		if _, ok := off[d]; ok {
			continue
		}
		working++
		if r, ok := byDate[d]; ok {
			history = append(history, r)
		} else if !d.After(today) {
			history = append(history, Record{StudentID: studentID, AttendanceDate: d, Status: StatusAbsent})
		}
	}

	if holidays == nil {
		holidays = []calendar.Holiday{}
	}
	return Stats{
		StudentID:     studentID,
		StartDate:     start,
		EndDate:       end,
		WorkingDays:   working,
		PresentDays:   present,
		AbsentDays:    max(0, working-present),
		Percentage:    percentage(present, working),
		Holidays:      holidays,
		HolidaysCount: len(off),
		History:       history,
	}
}

func percentage(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*100*100) / 100
}

func (e *StatsEngine) day(d *calendar.Date) calendar.Date {
	if d != nil {
		return *d
	}
	return calendar.DateOf(e.now())
}

// Dashboard counts the day's attendance across all active students.
func (e *StatsEngine) Dashboard(ctx context.Context, date *calendar.Date) (*Dashboard, error) {
	d := e.day(date)
	total, err := e.roster.CountActiveStudents(ctx)
	if err != nil {
		return nil, err
	}
	present, err := e.store.CountStatusOn(ctx, d, StatusPresent)
	if err != nil {
		return nil, err
	}
	failed, err := e.store.CountFailedBetween(ctx, d.In(e.loc), d.AddDays(1).In(e.loc))
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Date:           d,
		TotalStudents:  total,
		PresentCount:   present,
		AbsentCount:    max(0, total-present),
		FailedAttempts: failed,
		Percentage:     percentage(present, total),
	}, nil
}

// Detailed lists every active student's status for the day. Unmarked
// students are PENDING only on the current day while a window applicable
// to them is still open.
func (e *StatsEngine) Detailed(ctx context.Context, date *calendar.Date) ([]StudentDay, error) {
	now := e.now()
	d := e.day(date)
	students, err := e.roster.ActiveStudents(ctx)
	if err != nil {
		return nil, err
	}
	records, err := e.store.RecordsOn(ctx, d)
	if err != nil {
		return nil, err
	}
	var windows []schedule.Window
	isToday := d == calendar.DateOf(now)
	if isToday {
		if windows, err = e.windows.Active(ctx); err != nil {
			return nil, err
		}
	}

	byStudent := make(map[string]Record, len(records))
	for _, r := range records {
		byStudent[r.StudentID] = r
	}
	out := make([]StudentDay, 0, len(students))
	for _, s := range students {
		row := StudentDay{Student: s, Category: s.Category, Status: StatusAbsent}
		if r, ok := byStudent[s.ID]; ok {
			row.Status = r.Status
			row.MarkedAt = r.MarkedAt
			row.FaceMatchConfidence = r.FaceMatchConfidence
		} else if isToday && schedule.StillOpen(windows, schedule.TimeOf(now), calendar.DayIndex(now.Weekday()), s.Category) {
			row.Status = StatusPending
		}
		out = append(out, row)
	}
	return out, nil
}

// RecordsForDate lists the stored records of one day.
func (e *StatsEngine) RecordsForDate(ctx context.Context, date *calendar.Date) ([]Record, error) {
	return e.store.RecordsOn(ctx, e.day(date))
}
