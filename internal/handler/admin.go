package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusattendance/internal/attendance"
	"campusattendance/internal/calendar"
	"campusattendance/internal/geofence"
	"campusattendance/internal/photo"
	"campusattendance/internal/schedule"
)

const invalidBody = "invalid request body"

func (h *Handler) pendingPhotos(c *gin.Context) {
	page, err := h.Photos.Pending(c.Request.Context(), intQuery(c, "offset", 0), intQuery(c, "limit", 50))
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) reviewPhoto(c *gin.Context) {
	var rv photo.Review
	if err := c.ShouldBindJSON(&rv); err != nil {
		badRequest(c, invalidBody)
		return
	}
	p, err := h.Photos.Review(c.Request.Context(), c.Param("id"), caller(c).Subject, rv)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) listGeofences(c *gin.Context) {
	list, err := h.Geofences.List(c.Request.Context())
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"geofences": list})
}

func (h *Handler) createGeofence(c *gin.Context) {
	var in geofence.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, invalidBody)
		return
	}
	g, err := h.Geofences.Create(c.Request.Context(), in, caller(c).Subject)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (h *Handler) getGeofence(c *gin.Context) {
	g, err := h.Geofences.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *Handler) updateGeofence(c *gin.Context) {
	var p geofence.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, invalidBody)
		return
	}
	g, err := h.Geofences.Update(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *Handler) deleteGeofence(c *gin.Context) {
	if err := h.Geofences.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listWindows(c *gin.Context) {
	list, err := h.Windows.List(c.Request.Context())
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"windows": list})
}

func (h *Handler) createWindow(c *gin.Context) {
	var in schedule.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, invalidBody)
		return
	}
	w, err := h.Windows.Create(c.Request.Context(), in)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *Handler) getWindow(c *gin.Context) {
	w, err := h.Windows.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handler) updateWindow(c *gin.Context) {
	var p schedule.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, invalidBody)
		return
	}
	w, err := h.Windows.Update(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handler) deleteWindow(c *gin.Context) {
	if err := h.Windows.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listHolidays(c *gin.Context) {
	start, end, err := dateRange(c)
	if err != nil {
		respond(c, err)
		return
	}
	list, err := h.Holidays.List(c.Request.Context(), start, end)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"holidays": list})
}

func (h *Handler) createHoliday(c *gin.Context) {
	var in calendar.HolidayInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, invalidBody)
		return
	}
	hol, err := h.Holidays.Create(c.Request.Context(), in, caller(c).Subject)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, hol)
}

func (h *Handler) bulkHolidays(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
		Year int    `json:"year"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, invalidBody)
		return
	}
	res, err := h.Holidays.ImportBulk(c.Request.Context(), req.Text, req.Year, caller(c).Subject)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) getHoliday(c *gin.Context) {
	hol, err := h.Holidays.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, hol)
}

func (h *Handler) updateHoliday(c *gin.Context) {
	var p calendar.HolidayPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, invalidBody)
		return
	}
	hol, err := h.Holidays.Update(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, hol)
}

func (h *Handler) deleteHoliday(c *gin.Context) {
	if err := h.Holidays.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getAcademicYear(c *gin.Context) {
	ay, err := h.Holidays.AcademicYear(c.Request.Context(), h.Today())
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ay)
}

func (h *Handler) putAcademicYear(c *gin.Context) {
	var ay calendar.AcademicYear
	if err := c.ShouldBindJSON(&ay); err != nil {
		badRequest(c, invalidBody)
		return
	}
	out, err := h.Holidays.SetAcademicYear(c.Request.Context(), ay, caller(c).Subject)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) dashboard(c *gin.Context) {
	d, err := dateQuery(c, "date")
	if err != nil {
		respond(c, err)
		return
	}
	out, err := h.Stats.Dashboard(c.Request.Context(), d)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) detailed(c *gin.Context) {
	d, err := dateQuery(c, "date")
	if err != nil {
		respond(c, err)
		return
	}
	rows, err := h.Stats.Detailed(c.Request.Context(), d)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": rows})
}

func (h *Handler) records(c *gin.Context) {
	d, err := dateQuery(c, "date")
	if err != nil {
		respond(c, err)
		return
	}
	recs, err := h.Stats.RecordsForDate(c.Request.Context(), d)
	if err != nil {
		respond(c, err)
		return
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (h *Handler) failedAttempts(c *gin.Context) {
	start, end, err := dateRange(c)
	if err != nil {
		respond(c, err)
		return
	}
	list, err := h.Marker.FailedAttempts(c.Request.Context(), start, end, intQuery(c, "limit", 100))
	if err != nil {
		respond(c, err)
		return
	}
	if list == nil {
		list = []attendance.Attempt{}
	}
	c.JSON(http.StatusOK, gin.H{"attempts": list})
}

func (h *Handler) studentStats(c *gin.Context) {
	h.statsFor(c, c.Param("id"))
}
