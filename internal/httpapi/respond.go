package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rfidattendance/internal/apperr"
	"rfidattendance/internal/auth"
	"rfidattendance/internal/logging"
)

// respondError renders err as {"message", "code", "fields"}. Internal failures are logged and
// rendered with a generic message.
func respondError(c *gin.Context, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).Error("request failed", "error", err)
		c.AbortWithStatusJSON(status, gin.H{"message": "Internal server error"})
		return
	}
	body := gin.H{"message": err.Error()}
	var e *apperr.Error
	if errors.As(err, &e) {
		body["message"] = e.Message
		if e.Code != "" {
			body["code"] = e.Code
		}
		if len(e.Fields) > 0 {
			body["fields"] = e.Fields
		}
	}
	c.AbortWithStatusJSON(status, body)
}

// bindError turns a gin binding failure into a Validation error.
func bindError(err error) error {
	var e *apperr.Error
	if conv := apperr.FromValidator(err); errors.As(conv, &e) {
		return e
	}
	return apperr.Validation("invalid request body")
}

// actor returns the authenticated identity. Routes behind UserAuth always have one.
func actor(c *gin.Context) auth.Identity {
	claims, _ := auth.ClaimsFrom(c)
	return claims.Identity()
}
