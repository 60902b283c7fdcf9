package geofence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattendance/internal/apperr"
)

func TestCreatePrimaryDemotesPreviousInOneTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE campus_geofences SET is_primary = FALSE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO campus_geofences").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectCommit()

	g, err := NewService(db).Create(context.Background(), Input{
		Name:      "Main campus",
		Latitude:  12.97,
		Longitude: 77.59,
		IsPrimary: true,
	}, "admin-1")
	require.NoError(t, err)
	assert.True(t, g.IsPrimary)
	assert.EqualValues(t, DefaultRadiusMeters, g.RadiusMeters)
	assert.EqualValues(t, DefaultAccuracyThreshold, g.AccuracyThreshold)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE campus_geofences SET is_primary = FALSE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO campus_geofences").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err = NewService(db).Create(context.Background(), Input{Name: "x", IsPrimary: true}, "admin-1")
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateValidatesBounds(t *testing.T) {
	svc := NewService(nil)
	cases := []Input{
		{Name: "", Latitude: 0, Longitude: 0},
		{Name: "lat", Latitude: 91},
		{Name: "lon", Longitude: -181},
		{Name: "radius", RadiusMeters: 5},
		{Name: "radius", RadiusMeters: 10001},
		{Name: "accuracy", AccuracyThreshold: 1001},
	}
	for _, in := range cases {
		_, err := svc.Create(context.Background(), in, "admin-1")
		assert.True(t, apperr.IsValidation(err), "input %+v", in)
	}
}

func TestUpdateMissingIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM campus_geofences WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err = NewService(db).Update(context.Background(), "missing", Patch{})
	assert.True(t, apperr.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteIsSoft(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("SET deleted_at = NOW\\(\\), is_active = FALSE, is_primary = FALSE").
		WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewService(db).Delete(context.Background(), "g1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
