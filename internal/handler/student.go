package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusattendance/internal/attendance"
)

func (h *Handler) uploadProfilePhoto(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, "file field required")
		return
	}
	defer file.Close()

	p, err := h.Photos.Upload(c.Request.Context(), caller(c).Subject, header.Filename, file)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) profilePhotoStatus(c *gin.Context) {
	p, err := h.Photos.Latest(c.Request.Context(), caller(c).Subject)
	if err != nil {
		respond(c, err)
		return
	}
	if p == nil {
		c.JSON(http.StatusOK, gin.H{"has_photo": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"has_photo": true, "photo": p})
}

func (h *Handler) preCheck(c *gin.Context) {
	out, err := h.Marker.PreCheck(c.Request.Context(), student(c))
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// mark takes a multipart selfie plus latitude, longitude and accuracy form
// fields. A verification failure is a 200 with success=false.
func (h *Handler) mark(c *gin.Context) {
	var loc attendance.Location
	if err := c.ShouldBind(&loc); err != nil {
		badRequest(c, "latitude, longitude and accuracy are required numbers")
		return
	}
	if c.PostForm("latitude") == "" || c.PostForm("longitude") == "" || c.PostForm("accuracy") == "" {
		badRequest(c, "latitude, longitude and accuracy are required numbers")
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, "file field required")
		return
	}
	defer file.Close()

	res, err := h.Marker.Mark(c.Request.Context(), student(c), loc, attendance.Capture{Filename: header.Filename, Body: file})
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) today(c *gin.Context) {
	rec, err := h.Marker.Today(c.Request.Context(), caller(c).Subject)
	if err != nil {
		respond(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusOK, gin.H{"marked": false, "date": h.Today()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": rec.Status == attendance.StatusPresent, "date": rec.AttendanceDate, "record": rec})
}

func (h *Handler) history(c *gin.Context) {
	start, end, err := dateRange(c)
	if err != nil {
		respond(c, err)
		return
	}
	recs, err := h.Stats.History(c.Request.Context(), caller(c).Subject, start, end)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (h *Handler) attempts(c *gin.Context) {
	list, err := h.Marker.Attempts(c.Request.Context(), caller(c).Subject, intQuery(c, "limit", 20))
	if err != nil {
		respond(c, err)
		return
	}
	if list == nil {
		list = []attendance.Attempt{}
	}
	c.JSON(http.StatusOK, gin.H{"attempts": list})
}

func (h *Handler) myStats(c *gin.Context) {
	h.statsFor(c, caller(c).Subject)
}

func (h *Handler) statsFor(c *gin.Context, studentID string) {
	start, end, err := dateRange(c)
	if err != nil {
		respond(c, err)
		return
	}
	st, err := h.Stats.Stats(c.Request.Context(), studentID, start, end)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
