package photo

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattendance/internal/apperr"
)

type memFiles struct {
	saved   map[string]string
	removed []string
}

func (m *memFiles) Save(_ context.Context, dir, name string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if m.saved == nil {
		m.saved = map[string]string{}
	}
	path := dir + "/" + name
	m.saved[path] = string(b)
	return path, nil
}

func (m *memFiles) Remove(path string) error {
	m.removed = append(m.removed, path)
	delete(m.saved, path)
	return nil
}

type stubFaces struct {
	count int
	err   error
}

func (s stubFaces) DetectFaceCount(context.Context, string) (int, error) { return s.count, s.err }

func (s stubFaces) ExtractEncoding(context.Context, string) ([]float64, error) {
	return []float64{0.5, 0.5}, nil
}

func newTestService(t *testing.T, faces stubFaces) (*Service, sqlmock.Sqlmock, *memFiles, *clock.Mock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	clk := clock.NewMock()
	clk.Set(time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC))
	files := &memFiles{}
	return NewService(db, files, faces, clk, time.Second), mock, files, clk
}

var photoCols = []string{"id", "student_id", "file_path", "filename", "face_encoding", "status",
	"rejection_reason", "reviewed_by", "reviewed_at", "created_at"}

func pendingRow(id, student string) *sqlmock.Rows {
	return sqlmock.NewRows(photoCols).
		AddRow(id, student, "profile_photos/x.jpg", "x.jpg", []byte("[0.5,0.5]"), "PENDING", nil, nil, nil, time.Now())
}

func TestUploadAcceptsSingleFace(t *testing.T) {
	svc, mock, files, _ := newTestService(t, stubFaces{count: 1})
	mock.ExpectQuery("INSERT INTO profile_photos").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	p, err := svc.Upload(context.Background(), "stu-1", "me.jpg", strings.NewReader("img"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, Encoding{0.5, 0.5}, p.FaceEncoding)
	assert.Equal(t, "profile_photos/stu-1_20250310_080000_me.jpg", p.FilePath)
	assert.Contains(t, files.saved, p.FilePath)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRejectsWrongFaceCount(t *testing.T) {
	for _, n := range []int{0, 2} {
		svc, _, files, _ := newTestService(t, stubFaces{count: n})

		_, err := svc.Upload(context.Background(), "stu-1", "me.jpg", strings.NewReader("img"))
		require.Error(t, err)
		assert.True(t, apperr.IsValidation(err))
		assert.Empty(t, files.saved, "stored file is removed")
		assert.Len(t, files.removed, 1)
	}
}

func TestUploadRemovesFileWhenDetectorFails(t *testing.T) {
	svc, _, files, _ := newTestService(t, stubFaces{err: assert.AnError})

	_, err := svc.Upload(context.Background(), "stu-1", "me.jpg", strings.NewReader("img"))
	require.ErrorIs(t, err, assert.AnError)
	assert.False(t, apperr.IsValidation(err))
	assert.Empty(t, files.saved)
}

func TestReviewApproveDemotesPreviousApproved(t *testing.T) {
	svc, mock, _, _ := newTestService(t, stubFaces{count: 1})
	mock.ExpectBegin()
	mock.ExpectQuery("FROM profile_photos WHERE id = \\$1 FOR UPDATE").
		WithArgs("p2").
		WillReturnRows(pendingRow("p2", "stu-1"))
	mock.ExpectExec("UPDATE profile_photos SET status = 'REJECTED'").
		WithArgs("stu-1", "p2", ReasonReplaced).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE profile_photos\\s+SET status = \\$2").
		WithArgs("p2", StatusApproved, nil, "admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := svc.Review(context.Background(), "p2", "admin-1", Review{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, p.Status)
	assert.Nil(t, p.RejectionReason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRejectUsesDefaultReason(t *testing.T) {
	svc, mock, _, _ := newTestService(t, stubFaces{count: 1})
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(pendingRow("p1", "stu-1"))
	mock.ExpectExec("UPDATE profile_photos\\s+SET status = \\$2").
		WithArgs("p1", StatusRejected, DefaultRejectReason, "admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := svc.Review(context.Background(), "p1", "admin-1", Review{Approved: false})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, p.Status)
	assert.Equal(t, DefaultRejectReason, *p.RejectionReason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewTwiceIsValidationError(t *testing.T) {
	svc, mock, _, _ := newTestService(t, stubFaces{count: 1})
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(sqlmock.NewRows(photoCols).
		AddRow("p1", "stu-1", "f", "f", nil, "APPROVED", nil, "admin-1", time.Now(), time.Now()))
	mock.ExpectRollback()

	_, err := svc.Review(context.Background(), "p1", "admin-1", Review{Approved: true})
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	assert.Equal(t, "Photo has already been reviewed", err.Error())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewUnknownPhoto(t *testing.T) {
	svc, mock, _, _ := newTestService(t, stubFaces{count: 1})
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := svc.Review(context.Background(), "nope", "admin-1", Review{Approved: true})
	assert.True(t, apperr.IsNotFound(err))
}

func TestLatestRejectsUnknownStatus(t *testing.T) {
	svc, mock, _, _ := newTestService(t, stubFaces{count: 1})
	mock.ExpectQuery("FROM profile_photos").
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows(photoCols).
			AddRow("p1", "stu-1", "f", "f", nil, "ARCHIVED", nil, nil, nil, time.Now()))

	_, err := svc.Latest(context.Background(), "stu-1")
	assert.ErrorContains(t, err, `photo p1: unknown status "ARCHIVED"`)
}
