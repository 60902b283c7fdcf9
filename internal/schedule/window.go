package schedule

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time stored as seconds since midnight.
type TimeOfDay int

// At builds a TimeOfDay from hours, minutes and seconds.
func At(h, m, s int) TimeOfDay {
	return TimeOfDay(h*3600 + m*60 + s)
}

// TimeOf returns the wall-clock part of t in t's location.
func TimeOf(t time.Time) TimeOfDay {
	return At(t.Hour(), t.Minute(), t.Second())
}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS, ignoring fractional seconds.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOf(t), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", int(t)/3600, int(t)%3600/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t *TimeOfDay) Scan(value any) error {
	switch v := value.(type) {
	case string:
		parsed, err := ParseTimeOfDay(v)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case []byte:
		return t.Scan(string(v))
	case time.Time:
		*t = TimeOf(v)
		return nil
	}
	return fmt.Errorf("cannot scan %T into TimeOfDay", value)
}

func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}

// Days is a set of weekday indices, 0=Monday .. 6=Sunday, stored as JSONB.
type Days []int

func (d Days) Has(day int) bool {
	for _, x := range d {
		if x == day {
			return true
		}
	}
	return false
}

func (d *Days) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Days", value)
	}
	return json.Unmarshal(raw, (*[]int)(d))
}

func (d Days) Value() (driver.Value, error) {
	if d == nil {
		d = Days{}
	}
	b, err := json.Marshal([]int(d))
	return string(b), err
}

// DefaultDays is Monday through Saturday.
var DefaultDays = Days{0, 1, 2, 3, 4, 5}

// Window is a recurring period during which students may mark attendance.
type Window struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	StartTime       TimeOfDay `json:"start_time"`
	EndTime         TimeOfDay `json:"end_time"`
	DaysOfWeek      Days      `json:"days_of_week"`
	StudentCategory *string   `json:"student_category,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// AppliesTo reports whether w is active on day for a student of category.
// A window with no category applies to everyone.
func (w Window) AppliesTo(day int, category string) bool {
	if !w.IsActive || !w.DaysOfWeek.Has(day) {
		return false
	}
	return w.StudentCategory == nil || *w.StudentCategory == "" || *w.StudentCategory == category
}

// IsOpen reports whether any applicable window contains now (inclusive at
// both ends).
func IsOpen(windows []Window, now TimeOfDay, day int, category string) bool {
	for _, w := range windows {
		if w.AppliesTo(day, category) && w.StartTime <= now && now <= w.EndTime {
			return true
		}
	}
	return false
}

// StillOpen reports whether any applicable window has not yet closed today.
// Unmarked students are shown as pending while this holds.
func StillOpen(windows []Window, now TimeOfDay, day int, category string) bool {
	for _, w := range windows {
		if w.AppliesTo(day, category) && now <= w.EndTime {
			return true
		}
	}
	return false
}

// Input is the admin create payload.
type Input struct {
	Name            string    `json:"name" validate:"required,max=100"`
	StartTime       TimeOfDay `json:"start_time"`
	EndTime         TimeOfDay `json:"end_time"`
	DaysOfWeek      Days      `json:"days_of_week" validate:"omitempty,dive,gte=0,lte=6"`
	StudentCategory *string   `json:"student_category" validate:"omitnil,max=50"`
	IsActive        *bool     `json:"is_active"`
}

// Patch holds the fields an update may change.
type Patch struct {
	Name            *string    `json:"name" validate:"omitnil,min=1,max=100"`
	StartTime       *TimeOfDay `json:"start_time"`
	EndTime         *TimeOfDay `json:"end_time"`
	DaysOfWeek      *Days      `json:"days_of_week"`
	StudentCategory *string    `json:"student_category" validate:"omitnil,max=50"`
	IsActive        *bool      `json:"is_active"`
}
