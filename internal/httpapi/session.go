package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rfidattendance/internal/session"
)

func (h *Handler) activeClass(c *gin.Context) {
	s, err := h.Sessions.Active(c.Request.Context(), c.Query("teacherId"), c.Query("date"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) currentTeacher(c *gin.Context) {
	cur, err := h.Sessions.CurrentTeacher(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cur)
}

func (h *Handler) getSession(c *gin.Context) {
	teacherID := c.Query("teacherId")
	if id := actor(c); !id.IsAdmin() && teacherID == "" {
		teacherID = id.ID
	}
	s, err := h.Sessions.Get(c.Request.Context(), teacherID, c.Query("date"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) setSession(c *gin.Context) {
	var req session.SetInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	s, err := h.Sessions.Set(c.Request.Context(), actor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Active session set successfully", "session": s})
}

func (h *Handler) deactivateSession(c *gin.Context) {
	var req struct {
		TeacherID string `json:"teacherId"`
		Date      string `json:"date"`
	}
	// The body is optional; query parameters work for clients that cannot send one with DELETE.
	_ = c.ShouldBindJSON(&req)
	if req.TeacherID == "" {
		req.TeacherID = c.Query("teacherId")
	}
	if req.Date == "" {
		req.Date = c.Query("date")
	}
	s, err := h.Sessions.Deactivate(c.Request.Context(), actor(c), req.TeacherID, req.Date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session deactivated successfully", "session": s})
}
