package attendance

import (
	"context"
	"database/sql"

	"campusattendance/internal/calendar"
	"campusattendance/internal/geofence"
	"campusattendance/internal/photo"
	"campusattendance/internal/schedule"
	"campusattendance/internal/store"
)

// PGStore is the Postgres-backed Store.
type PGStore struct {
	*Repository
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{Repository: NewRepository(db), db: db}
}

func (s *PGStore) View(ctx context.Context, fn func(StateReader) error) error {
	return store.WithTx(ctx, s.db, &sql.TxOptions{ReadOnly: true}, func(tx *sql.Tx) error {
		return fn(newPGTx(tx))
	})
}

// Update takes a transaction-scoped advisory lock on (student, day) so the
// attempt count and the record check cannot race a concurrent mark.
func (s *PGStore) Update(ctx context.Context, studentID string, day calendar.Date, fn func(Tx) error) error {
	return store.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, studentID+"|"+day.String()); err != nil {
			return err
		}
		return fn(newPGTx(tx))
	})
}

func (s *PGStore) AppendAttempt(ctx context.Context, a *Attempt) error {
	return s.InsertAttempt(ctx, a)
}

type pgTx struct {
	*Repository
	holidays  *calendar.Repository
	windows   *schedule.Repository
	geofences *geofence.Repository
	photos    *photo.Repository
}

func newPGTx(tx *sql.Tx) *pgTx {
	return &pgTx{
		Repository: NewRepository(tx),
		holidays:   calendar.NewRepository(tx),
		windows:    schedule.NewRepository(tx),
		geofences:  geofence.NewRepository(tx),
		photos:     photo.NewRepository(tx),
	}
}

func (t *pgTx) HolidayOn(ctx context.Context, d calendar.Date) (*calendar.Holiday, error) {
	return t.holidays.OnDate(ctx, d)
}

func (t *pgTx) ActiveWindows(ctx context.Context) ([]schedule.Window, error) {
	return t.windows.Active(ctx)
}

func (t *pgTx) PrimaryGeofence(ctx context.Context) (*geofence.Geofence, error) {
	return t.geofences.PrimaryActive(ctx)
}

func (t *pgTx) ApprovedPhoto(ctx context.Context, studentID string) (*photo.Photo, error) {
	return t.photos.Approved(ctx, studentID)
}

var (
	_ Store = (*PGStore)(nil)
	_ Tx    = (*pgTx)(nil)
)
