package handler

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"campusattendance/internal/apperr"
	"campusattendance/internal/attendance"
	"campusattendance/internal/auth"
	"campusattendance/internal/calendar"
	"campusattendance/internal/filestore"
	"campusattendance/internal/geofence"
	"campusattendance/internal/identity"
	"campusattendance/internal/photo"
	"campusattendance/internal/schedule"
)

// Marker is the marking pipeline.
type Marker interface {
	PreCheck(ctx context.Context, student attendance.Student) (*attendance.PreCheck, error)
	Mark(ctx context.Context, student attendance.Student, loc attendance.Location, capture attendance.Capture) (*attendance.MarkResult, error)
	Today(ctx context.Context, studentID string) (*attendance.Record, error)
	Attempts(ctx context.Context, studentID string, limit int) ([]attendance.Attempt, error)
	FailedAttempts(ctx context.Context, start, end *calendar.Date, limit int) ([]attendance.Attempt, error)
}

type Stats interface {
	Stats(ctx context.Context, studentID string, start, end *calendar.Date) (*attendance.Stats, error)
	History(ctx context.Context, studentID string, start, end *calendar.Date) ([]attendance.Record, error)
	Dashboard(ctx context.Context, date *calendar.Date) (*attendance.Dashboard, error)
	Detailed(ctx context.Context, date *calendar.Date) ([]attendance.StudentDay, error)
	RecordsForDate(ctx context.Context, date *calendar.Date) ([]attendance.Record, error)
}

type Photos interface {
	Upload(ctx context.Context, studentID, filename string, body io.Reader) (*photo.Photo, error)
	Latest(ctx context.Context, studentID string) (*photo.Photo, error)
	Pending(ctx context.Context, offset, limit int) (photo.Page, error)
	Review(ctx context.Context, photoID, reviewerID string, rv photo.Review) (*photo.Photo, error)
}

type Geofences interface {
	Create(ctx context.Context, in geofence.Input, adminID string) (*geofence.Geofence, error)
	Get(ctx context.Context, id string) (*geofence.Geofence, error)
	List(ctx context.Context) ([]geofence.Geofence, error)
	Update(ctx context.Context, id string, p geofence.Patch) (*geofence.Geofence, error)
	Delete(ctx context.Context, id string) error
}

type Windows interface {
	Create(ctx context.Context, in schedule.Input) (*schedule.Window, error)
	Get(ctx context.Context, id string) (*schedule.Window, error)
	List(ctx context.Context) ([]schedule.Window, error)
	Update(ctx context.Context, id string, p schedule.Patch) (*schedule.Window, error)
	Delete(ctx context.Context, id string) error
}

type Holidays interface {
	Create(ctx context.Context, in calendar.HolidayInput, adminID string) (*calendar.Holiday, error)
	Get(ctx context.Context, id string) (*calendar.Holiday, error)
	List(ctx context.Context, start, end *calendar.Date) ([]calendar.Holiday, error)
	Update(ctx context.Context, id string, p calendar.HolidayPatch) (*calendar.Holiday, error)
	Delete(ctx context.Context, id string) error
	ImportBulk(ctx context.Context, text string, year int, adminID string) (calendar.BulkResult, error)
	AcademicYear(ctx context.Context, today calendar.Date) (calendar.AcademicYear, error)
	SetAcademicYear(ctx context.Context, ay calendar.AcademicYear, adminID string) (calendar.AcademicYear, error)
}

// Handler serves the attendance HTTP API.
type Handler struct {
	Marker    Marker
	Stats     Stats
	Photos    Photos
	Geofences Geofences
	Windows   Windows
	Holidays  Holidays
	// Today returns the campus-local date.
	Today func() calendar.Date
	// Throttle runs after authentication on every route, so it can key on
	// the caller. Optional.
	Throttle gin.HandlerFunc
}

// Register mounts the student and admin routes. authn must populate auth
// claims; markLimit guards the mark endpoint and may be nil.
func (h *Handler) Register(r gin.IRouter, authn gin.HandlerFunc, markLimit gin.HandlerFunc) {
	st := r.Group("/attendance", h.guard(authn, auth.RequireRoles(identity.StudentRoles...))...)
	st.POST("/profile-photo", h.uploadProfilePhoto)
	st.GET("/profile-photo/status", h.profilePhotoStatus)
	st.GET("/pre-check", h.preCheck)
	markChain := []gin.HandlerFunc{h.mark}
	if markLimit != nil {
		markChain = append([]gin.HandlerFunc{markLimit}, markChain...)
	}
	st.POST("/mark", markChain...)
	st.GET("/today", h.today)
	st.GET("/history", h.history)
	st.GET("/attempts", h.attempts)
	st.GET("/stats", h.myStats)

	ad := r.Group("/admin/attendance", h.guard(authn, auth.RequireRoles(identity.RoleAdmin))...)
	ad.GET("/profile-photos/pending", h.pendingPhotos)
	ad.POST("/profile-photos/:id/review", h.reviewPhoto)

	ad.GET("/geofences", h.listGeofences)
	ad.POST("/geofences", h.createGeofence)
	ad.GET("/geofences/:id", h.getGeofence)
	ad.PUT("/geofences/:id", h.updateGeofence)
	ad.DELETE("/geofences/:id", h.deleteGeofence)

	ad.GET("/windows", h.listWindows)
	ad.POST("/windows", h.createWindow)
	ad.GET("/windows/:id", h.getWindow)
	ad.PUT("/windows/:id", h.updateWindow)
	ad.DELETE("/windows/:id", h.deleteWindow)

	ad.GET("/holidays", h.listHolidays)
	ad.POST("/holidays", h.createHoliday)
	ad.POST("/holidays/bulk", h.bulkHolidays)
	ad.GET("/holidays/:id", h.getHoliday)
	ad.PUT("/holidays/:id", h.updateHoliday)
	ad.DELETE("/holidays/:id", h.deleteHoliday)

	ad.GET("/settings/academic-year", h.getAcademicYear)
	ad.PUT("/settings/academic-year", h.putAcademicYear)

	ad.GET("/dashboard", h.dashboard)
	ad.GET("/detailed", h.detailed)
	ad.GET("/records", h.records)
	ad.GET("/failed-attempts", h.failedAttempts)
	ad.GET("/students/:id/stats", h.studentStats)
}

func (h *Handler) guard(authn, roles gin.HandlerFunc) []gin.HandlerFunc {
	chain := []gin.HandlerFunc{authn}
	if h.Throttle != nil {
		chain = append(chain, h.Throttle)
	}
	return append(chain, roles)
}

// respond maps service errors onto HTTP statuses.
func respond(c *gin.Context, err error) {
	switch {
	case apperr.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperr.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, filestore.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, filestore.ErrEmpty):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "face service timed out, please retry"})
	case errors.Is(err, context.Canceled):
		c.Status(http.StatusRequestTimeout)
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func caller(c *gin.Context) auth.Claims {
	claims, _ := auth.ClaimsFrom(c)
	return claims
}

func student(c *gin.Context) attendance.Student {
	claims := caller(c)
	return attendance.Student{ID: claims.Subject, Category: identity.CategoryFor(claims.Role, claims.Category)}
}

// dateQuery parses an optional YYYY-MM-DD query parameter.
func dateQuery(c *gin.Context, name string) (*calendar.Date, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	d, err := calendar.ParseDate(raw)
	if err != nil {
		return nil, apperr.Validation("%s must be a date in YYYY-MM-DD format", name)
	}
	return &d, nil
}

func dateRange(c *gin.Context) (start, end *calendar.Date, err error) {
	if start, err = dateQuery(c, "start_date"); err != nil {
		return nil, nil, err
	}
	if end, err = dateQuery(c, "end_date"); err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

func intQuery(c *gin.Context, name string, def int) int {
	if v := c.Query(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
