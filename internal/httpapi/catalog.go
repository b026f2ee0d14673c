package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rfidattendance/internal/apperr"
	"rfidattendance/internal/directory"
	"rfidattendance/internal/scanlog"
	"rfidattendance/internal/timetable"
	"rfidattendance/internal/validate"
)

func (h *Handler) timetable(c *gin.Context) {
	day := c.Query("day")
	if day == "" {
		day = timetable.DayFor(time.Now().In(h.Location))
	}
	entries, err := h.Timetable.Day(c.Request.Context(), day)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": day, "subjects": entries})
}

func (h *Handler) putTimetable(c *gin.Context) {
	var req struct {
		Subjects []timetable.Entry `json:"subjects" binding:"dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	entries, err := h.Timetable.Put(c.Request.Context(), c.Param("day"), req.Subjects)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": c.Param("day"), "subjects": entries})
}

func (h *Handler) subjects(c *gin.Context) {
	c.JSON(http.StatusOK, h.Users.AllSubjects(c.Request.Context()))
}

func (h *Handler) teacherSubjects(c *gin.Context) {
	subjects, err := h.Users.SubjectsForEmail(c.Request.Context(), c.Query("email"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, subjects)
}

func (h *Handler) roster(c *gin.Context) {
	accts, err := h.Users.Roster(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, accts)
}

func (h *Handler) setUserSubjects(c *gin.Context) {
	var req struct {
		Subjects []string `json:"subjects"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	acct, err := h.Users.SetSubjects(c.Request.Context(), c.Param("id"), req.Subjects)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (h *Handler) students(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"totalStudents": h.Directory.Len(), "students": h.Directory.All()})
}

func (h *Handler) student(c *gin.Context) {
	s, ok := h.Directory.Lookup(c.Param("uid"))
	if !ok {
		respondError(c, apperr.NotFound("", "no student with uid "+directory.NormalizeUID(c.Param("uid"))))
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) scans(c *gin.Context) {
	if h.Scans == nil {
		c.JSON(http.StatusOK, []scanlog.ScanEvent{})
		return
	}
	f := scanlog.Filter{Date: c.Query("date"), UnknownOnly: c.Query("unknown") == "true"}
	if f.Date != "" && !validate.Date(f.Date) {
		respondError(c, apperr.Validation("Invalid date format. Use YYYY-MM-DD"))
		return
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	events, err := h.Scans.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, apperr.Storage("list scans", err))
		return
	}
	c.JSON(http.StatusOK, events)
}
