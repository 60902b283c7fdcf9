package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"campusattendance/internal/calendar"
	"campusattendance/internal/geofence"
	"campusattendance/internal/photo"
	"campusattendance/internal/queue"
	"campusattendance/internal/schedule"
)

// memStore is an in-memory Store. Update buffers writes and applies them
// only when fn succeeds.
type memStore struct {
	mu       sync.Mutex
	holidays map[calendar.Date]calendar.Holiday
	records  map[string]Record
	attempts []Attempt
	windows  []schedule.Window
	fence    *geofence.Geofence
	photos   map[string]photo.Photo

	// conflict makes UpsertPresent behave as if a concurrent mark won.
	conflict bool
}

func newMemStore() *memStore {
	return &memStore{
		holidays: map[calendar.Date]calendar.Holiday{},
		records:  map[string]Record{},
		photos:   map[string]photo.Photo{},
	}
}

func recordKey(studentID string, d calendar.Date) string {
	return studentID + "|" + d.String()
}

func (m *memStore) View(ctx context.Context, fn func(StateReader) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memTx{m: m})
}

func (m *memStore) Update(ctx context.Context, studentID string, day calendar.Date, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{m: m}
	if err := fn(tx); err != nil {
		return err
	}
	m.attempts = append(m.attempts, tx.attempts...)
	for _, r := range tx.records {
		m.records[recordKey(r.StudentID, r.AttendanceDate)] = r
	}
	return nil
}

func (m *memStore) AppendAttempt(ctx context.Context, a *Attempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = fmt.Sprintf("att-%d", attemptSeq.Add(1))
	}
	m.attempts = append(m.attempts, *a)
	return nil
}

func (m *memStore) RecordFor(ctx context.Context, studentID string, d calendar.Date) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordFor(studentID, d), nil
}

func (m *memStore) recordFor(studentID string, d calendar.Date) *Record {
	if r, ok := m.records[recordKey(studentID, d)]; ok {
		return &r
	}
	return nil
}

func (m *memStore) RecordsBetween(ctx context.Context, studentID string, start, end calendar.Date) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if r.StudentID == studentID && !r.AttendanceDate.Before(start) && !r.AttendanceDate.After(end) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[j].AttendanceDate.Before(out[i].AttendanceDate) })
	return out, nil
}

func (m *memStore) RecordsOn(ctx context.Context, d calendar.Date) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if r.AttendanceDate == d {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) CountStatusOn(ctx context.Context, d calendar.Date, s Status) (int, error) {
	recs, _ := m.RecordsOn(ctx, d)
	n := 0
	for _, r := range recs {
		if r.Status == s {
			n++
		}
	}
	return n, nil
}

func (m *memStore) Attempts(ctx context.Context, studentID string, limit int) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Attempt
	for i := len(m.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		if m.attempts[i].StudentID == studentID {
			out = append(out, m.attempts[i])
		}
	}
	return out, nil
}

func (m *memStore) FailedAttempts(ctx context.Context, from, to *time.Time, limit int) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Attempt
	for i := len(m.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		a := m.attempts[i]
		if a.Success || (from != nil && a.AttemptedAt.Before(*from)) || (to != nil && !a.AttemptedAt.Before(*to)) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) CountFailedBetween(ctx context.Context, from, to time.Time) (int, error) {
	failed, _ := m.FailedAttempts(ctx, &from, &to, 1<<30)
	return len(failed), nil
}

func (m *memStore) attemptsFor(studentID string) []Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Attempt
	for _, a := range m.attempts {
		if a.StudentID == studentID {
			out = append(out, a)
		}
	}
	return out
}

// memTx reads committed state and buffers its own writes. The caller holds m.mu.
type memTx struct {
	m        *memStore
	attempts []Attempt
	records  []Record
}

func (t *memTx) HolidayOn(ctx context.Context, d calendar.Date) (*calendar.Holiday, error) {
	if h, ok := t.m.holidays[d]; ok && h.IsActive {
		return &h, nil
	}
	return nil, nil
}

func (t *memTx) RecordFor(ctx context.Context, studentID string, d calendar.Date) (*Record, error) {
	return t.m.recordFor(studentID, d), nil
}

func (t *memTx) CountAttemptsSince(ctx context.Context, studentID string, since time.Time) (int, error) {
	n := 0
	for _, a := range append(t.m.attempts, t.attempts...) {
		if a.StudentID == studentID && !a.AttemptedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) ActiveWindows(ctx context.Context) ([]schedule.Window, error) {
	return t.m.windows, nil
}

func (t *memTx) PrimaryGeofence(ctx context.Context) (*geofence.Geofence, error) {
	return t.m.fence, nil
}

func (t *memTx) ApprovedPhoto(ctx context.Context, studentID string) (*photo.Photo, error) {
	if p, ok := t.m.photos[studentID]; ok {
		return &p, nil
	}
	return nil, nil
}

func (t *memTx) InsertAttempt(ctx context.Context, a *Attempt) error {
	if a.ID == "" {
		a.ID = fmt.Sprintf("att-%d", attemptSeq.Add(1))
	}
	t.attempts = append(t.attempts, *a)
	return nil
}

func (t *memTx) UpsertPresent(ctx context.Context, r *Record) error {
	if t.m.conflict {
		return ErrAlreadyMarked
	}
	if cur := t.m.recordFor(r.StudentID, r.AttendanceDate); cur != nil && cur.Status == StatusPresent {
		return ErrAlreadyMarked
	}
	if r.ID == nil {
		id := "rec-" + recordKey(r.StudentID, r.AttendanceDate)
		r.ID = &id
	}
	r.Status = StatusPresent
	t.records = append(t.records, *r)
	return nil
}

// fakeFace answers detection and verification from fixed values. When
// hang is set, calls block until their context ends.
type fakeFace struct {
	faces    int
	matched  bool
	score    float64
	err      error
	hang     bool
	onDetect func()
	verified int
	// reference is the embedding passed to the last Verify call.
	reference []float64
	encoded   []string
}

var fakeEncoding = []float64{0.4, 0.3, 0.2}

func (f *fakeFace) DetectFaceCount(ctx context.Context, path string) (int, error) {
	if f.onDetect != nil {
		f.onDetect()
	}
	if f.hang {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return f.faces, f.err
}

func (f *fakeFace) ExtractEncoding(ctx context.Context, path string) ([]float64, error) {
	f.encoded = append(f.encoded, path)
	if f.err != nil {
		return nil, f.err
	}
	return fakeEncoding, nil
}

func (f *fakeFace) Verify(ctx context.Context, reference []float64, capturePath string) (bool, float64, error) {
	f.verified++
	f.reference = reference
	if f.hang {
		<-ctx.Done()
		return false, 0, ctx.Err()
	}
	return f.matched, f.score, f.err
}

type fakeFiles struct {
	saved   []string
	removed []string
	err     error
}

func (f *fakeFiles) Save(ctx context.Context, dir, name string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	p := dir + "/" + name
	f.saved = append(f.saved, p)
	return p, nil
}

func (f *fakeFiles) Remove(path string) error {
	f.removed = append(f.removed, path)
	return nil
}

type recordingObserver struct {
	outcomes []string
	reasons  []string
}

func (o *recordingObserver) ObserveMark(outcome, reason string, elapsed time.Duration) {
	o.outcomes = append(o.outcomes, outcome)
	o.reasons = append(o.reasons, reason)
}

type fakePublisher struct {
	msgs []queue.Message
}

func (p *fakePublisher) Publish(ctx context.Context, msg queue.Message) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

var (
	attemptSeq atomic.Int64
	errBoom    = errors.New("boom")
)
