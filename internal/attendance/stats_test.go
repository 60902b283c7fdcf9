package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattendance/internal/apperr"
	"campusattendance/internal/calendar"
	"campusattendance/internal/identity"
	"campusattendance/internal/schedule"
)

func day(d int) calendar.Date {
	return calendar.NewDate(2025, time.January, d)
}

func present(studentID string, d calendar.Date) Record {
	id := "rec-" + d.String()
	at := d.In(time.UTC).Add(9 * time.Hour)
	return Record{ID: &id, StudentID: studentID, AttendanceDate: d, Status: StatusPresent, MarkedAt: &at}
}

func TestSummarizeWeekWithSundayAndHoliday(t *testing.T) {
	// Mon 13 .. Sun 19; Tue 14 is a holiday.
	records := []Record{present("s", day(17)), present("s", day(16)), present("s", day(15)), present("s", day(13))}
	holidays := []calendar.Holiday{{Date: day(14), Name: "Pongal", IsActive: true}}

	st := summarize("s", records, holidays, day(13), day(19), day(19))
	assert.Equal(t, 5, st.WorkingDays)
	assert.Equal(t, 4, st.PresentDays)
	assert.Equal(t, 1, st.AbsentDays)
	assert.Equal(t, 80.00, st.Percentage)
	assert.Equal(t, 1, st.HolidaysCount)

	require.Len(t, st.History, 5)
	got := make([]calendar.Date, 0, len(st.History))
	for _, r := range st.History {
		got = append(got, r.AttendanceDate)
	}
	assert.Equal(t, []calendar.Date{day(18), day(17), day(16), day(15), day(13)}, got)
	assert.Nil(t, st.History[0].ID)
	assert.Equal(t, StatusAbsent, st.History[0].Status)
	assert.NotNil(t, st.History[1].ID)
}

func TestSummarizeNeverSynthesizesFutureOrOffDays(t *testing.T) {
	holidays := []calendar.Holiday{{Date: day(14), Name: "Pongal", IsActive: true}}
	st := summarize("s", nil, holidays, day(6), day(26), day(15))

	for _, r := range st.History {
		assert.False(t, r.AttendanceDate.After(day(15)), "future entry %s", r.AttendanceDate)
		assert.False(t, r.AttendanceDate.IsSunday(), "sunday entry %s", r.AttendanceDate)
		assert.NotEqual(t, day(14), r.AttendanceDate)
		assert.Nil(t, r.ID)
	}
	// 6..15 without Sunday 12 and the 14th.
	assert.Len(t, st.History, 8)
	// 6..26 has three Sundays and one holiday.
	assert.Equal(t, 17, st.WorkingDays)
	assert.Equal(t, 17, st.AbsentDays)
	assert.Equal(t, 0.0, st.Percentage)
}

func TestSummarizeEmptyRange(t *testing.T) {
	st := summarize("s", nil, nil, day(19), day(19), day(19))
	assert.Equal(t, 0, st.WorkingDays)
	assert.Equal(t, 0.0, st.Percentage)
	assert.NotNil(t, st.History)
	assert.NotNil(t, st.Holidays)
}

func TestPercentageRounding(t *testing.T) {
	assert.Equal(t, 66.67, percentage(2, 3))
	assert.Equal(t, 33.33, percentage(1, 3))
	assert.Equal(t, 100.0, percentage(5, 5))
	assert.Equal(t, 0.0, percentage(3, 0))
}

type fakeCalendar struct {
	year     calendar.AcademicYear
	holidays []calendar.Holiday
}

func (c fakeCalendar) AcademicYear(ctx context.Context, today calendar.Date) (calendar.AcademicYear, error) {
	return c.year, nil
}

func (c fakeCalendar) Between(ctx context.Context, start, end calendar.Date) ([]calendar.Holiday, error) {
	var out []calendar.Holiday
	for _, h := range c.holidays {
		if !h.Date.Before(start) && !h.Date.After(end) {
			out = append(out, h)
		}
	}
	return out, nil
}

type fakeRoster []identity.Student

func (r fakeRoster) ActiveStudents(ctx context.Context) ([]identity.Student, error) {
	return r, nil
}

func (r fakeRoster) CountActiveStudents(ctx context.Context) (int, error) {
	return len(r), nil
}

type fakeWindows []schedule.Window

func (w fakeWindows) Active(ctx context.Context) ([]schedule.Window, error) {
	return w, nil
}

func newEngine(st *memStore, cal Calendar, roster Roster, windows WindowSource, now time.Time) *StatsEngine {
	clk := clock.NewMock()
	clk.Set(now)
	return NewStatsEngine(st, cal, roster, windows, clk, time.UTC)
}

func TestStatsDefaultsToAcademicYear(t *testing.T) {
	st := newMemStore()
	r := present("s", calendar.NewDate(2026, time.June, 29))
	st.records[recordKey("s", r.AttendanceDate)] = r
	cal := fakeCalendar{year: calendar.AcademicYear{
		StartDate: calendar.NewDate(2026, time.June, 22),
		EndDate:   calendar.NewDate(2026, time.June, 30),
	}}
	e := newEngine(st, cal, nil, nil, time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC))

	got, err := e.Stats(context.Background(), "s", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, calendar.NewDate(2026, time.June, 22), got.StartDate)
	assert.Equal(t, calendar.NewDate(2026, time.June, 30), got.EndDate)
	// 22..30 June 2026: Sunday the 28th is excluded.
	assert.Equal(t, 8, got.WorkingDays)
	assert.Equal(t, 1, got.PresentDays)
	assert.Equal(t, 12.5, got.Percentage)
}

func TestStatsBeforeAcademicYearStarts(t *testing.T) {
	cal := fakeCalendar{year: calendar.AcademicYear{
		StartDate: calendar.NewDate(2026, time.July, 1),
		EndDate:   calendar.NewDate(2027, time.June, 30),
	}}
	e := newEngine(newMemStore(), cal, nil, nil, time.Date(2026, time.June, 15, 10, 0, 0, 0, time.UTC))

	got, err := e.Stats(context.Background(), "s", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, got.WorkingDays)
	assert.Equal(t, 0, got.PresentDays)
	assert.Equal(t, 0.0, got.Percentage)
	assert.Empty(t, got.History)

	hist, err := e.History(context.Background(), "s", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestStatsExplicitEndClippedToAcademicYear(t *testing.T) {
	cal := fakeCalendar{year: calendar.AcademicYear{
		StartDate: calendar.NewDate(2025, time.July, 1),
		EndDate:   calendar.NewDate(2025, time.July, 5),
	}}
	e := newEngine(newMemStore(), cal, nil, nil, time.Date(2025, time.July, 25, 10, 0, 0, 0, time.UTC))

	end := calendar.NewDate(2025, time.July, 19)
	got, err := e.Stats(context.Background(), "s", nil, &end)
	require.NoError(t, err)
	assert.Equal(t, calendar.NewDate(2025, time.July, 5), got.EndDate)
	// Tue 1 .. Sat 5 July 2025.
	assert.Equal(t, 5, got.WorkingDays)
}

func TestStatsExplicitRange(t *testing.T) {
	st := newMemStore()
	for _, d := range []int{13, 15, 16, 17} {
		r := present("s", day(d))
		st.records[recordKey("s", r.AttendanceDate)] = r
	}
	cal := fakeCalendar{holidays: []calendar.Holiday{{Date: day(14), Name: "Pongal", IsActive: true}}}
	e := newEngine(st, cal, nil, nil, time.Date(2025, time.January, 20, 8, 0, 0, 0, time.UTC))

	start, end := day(13), day(19)
	got, err := e.Stats(context.Background(), "s", &start, &end)
	require.NoError(t, err)
	assert.Equal(t, 80.00, got.Percentage)
	require.Len(t, got.Holidays, 1)
	assert.Equal(t, "Pongal", got.Holidays[0].Name)

	hist, err := e.History(context.Background(), "s", &start, &end)
	require.NoError(t, err)
	assert.Len(t, hist, 5)

	_, err = e.Stats(context.Background(), "s", &end, &start)
	assert.True(t, apperr.IsValidation(err))
}

func TestDashboard(t *testing.T) {
	st := newMemStore()
	for _, id := range []string{"a", "b", "c"} {
		r := present(id, day(15))
		st.records[recordKey(id, r.AttendanceDate)] = r
	}
	reason := ReasonFaceMismatch
	st.attempts = []Attempt{
		{ID: "1", StudentID: "d", AttemptedAt: time.Date(2025, time.January, 15, 9, 5, 0, 0, time.UTC), FailureReason: &reason},
		{ID: "2", StudentID: "d", AttemptedAt: time.Date(2025, time.January, 15, 9, 6, 0, 0, time.UTC), FailureReason: &reason},
		{ID: "3", StudentID: "d", AttemptedAt: time.Date(2025, time.January, 14, 9, 6, 0, 0, time.UTC), FailureReason: &reason},
		{ID: "4", StudentID: "a", AttemptedAt: time.Date(2025, time.January, 15, 9, 1, 0, 0, time.UTC), Success: true},
	}
	roster := fakeRoster{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	e := newEngine(st, fakeCalendar{}, roster, nil, wednesdayMorning)

	got, err := e.Dashboard(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, day(15), got.Date)
	assert.Equal(t, 4, got.TotalStudents)
	assert.Equal(t, 3, got.PresentCount)
	assert.Equal(t, 1, got.AbsentCount)
	assert.Equal(t, 2, got.FailedAttempts)
	assert.Equal(t, 75.0, got.Percentage)
}

func TestDetailedPendingOnlyWhileWindowOpenToday(t *testing.T) {
	st := newMemStore()
	r := present("a", day(15))
	st.records[recordKey("a", r.AttendanceDate)] = r
	past := present("a", day(14))
	st.records[recordKey("a", past.AttendanceDate)] = past

	hostel := "HOSTELLER"
	windows := fakeWindows{{
		StartTime:       schedule.At(9, 0, 0),
		EndTime:         schedule.At(9, 30, 0),
		DaysOfWeek:      schedule.DefaultDays,
		StudentCategory: &hostel,
		IsActive:        true,
	}}
	roster := fakeRoster{
		{ID: "a", FullName: "Asha", Category: "HOSTELLER"},
		{ID: "b", FullName: "Bala", Category: "HOSTELLER"},
		{ID: "c", FullName: "Chitra", Category: "DAY_SCHOLAR"},
	}
	e := newEngine(st, fakeCalendar{}, roster, windows, wednesdayMorning)

	statuses := func(rows []StudentDay) map[string]Status {
		out := map[string]Status{}
		for _, row := range rows {
			out[row.ID] = row.Status
		}
		return out
	}

	rows, err := e.Detailed(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]Status{"a": StatusPresent, "b": StatusPending, "c": StatusAbsent}, statuses(rows))

	yesterday := day(14)
	rows, err = e.Detailed(context.Background(), &yesterday)
	require.NoError(t, err)
	assert.Equal(t, map[string]Status{"a": StatusPresent, "b": StatusAbsent, "c": StatusAbsent}, statuses(rows))

	late := newEngine(st, fakeCalendar{}, roster, windows, wednesdayMorning.Add(time.Hour))
	rows, err = late.Detailed(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusAbsent, statuses(rows)["b"])
}

func TestRecordsForDate(t *testing.T) {
	st := newMemStore()
	r := present("a", day(15))
	st.records[recordKey("a", r.AttendanceDate)] = r
	e := newEngine(st, fakeCalendar{}, nil, nil, wednesdayMorning)

	recs, err := e.RecordsForDate(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	other := day(16)
	recs, err = e.RecordsForDate(context.Background(), &other)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
