package httpapi

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rfidattendance/internal/attendance"
)

func (h *Handler) ingest(c *gin.Context) {
	var req attendance.ScanInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	rec, key, err := h.Attendance.Ingest(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": rec.UID, "key": key.String(), "item": rec})
}

func (h *Handler) markManual(c *gin.Context) {
	var req attendance.MarkInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	rec, key, err := h.Attendance.Mark(c.Request.Context(), actor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": rec.UID, "key": key.String(), "item": rec})
}

func (h *Handler) listBySubject(c *gin.Context) {
	h.list(c, attendance.Scope{Subject: c.Query("subject"), TimeSlot: c.Query("timeSlot")})
}

func (h *Handler) listBySlot(c *gin.Context) {
	h.list(c, attendance.Scope{TimeSlot: c.Query("timeSlot")})
}

func (h *Handler) list(c *gin.Context, scope attendance.Scope) {
	recs, err := h.Attendance.List(c.Request.Context(), actor(c), c.Query("date"), scope)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *Handler) export(c *gin.Context) {
	date := c.Query("date")
	scope := attendance.Scope{Subject: c.Query("subject"), TimeSlot: c.Query("timeSlot")}
	// Buffer so a failure can still be rendered as JSON.
	var buf bytes.Buffer
	if _, err := h.Attendance.Export(c.Request.Context(), actor(c), &buf, date, scope); err != nil {
		respondError(c, err)
		return
	}
	name := "attendance_" + date + "_" + strings.NewReplacer(" ", "_", "/", "_").Replace(scope.Subject+scope.TimeSlot) + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) dates(c *gin.Context) {
	dates, err := h.Attendance.Dates(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dates)
}

func (h *Handler) subjectsOnDate(c *gin.Context) {
	subjects, err := h.Attendance.Subjects(c.Request.Context(), c.Param("date"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, subjects)
}
