package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rfidattendance/internal/apperr"
	"rfidattendance/internal/auth"
	"rfidattendance/internal/users"
)

type tokenResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresAt    int64         `json:"expiresAt"`
	User         users.Account `json:"user"`
}

func (h *Handler) issue(c *gin.Context, status int, acct users.Account) {
	tokens, err := h.Issuer.Issue(auth.Identity{ID: acct.ID, Email: acct.Email, Name: acct.Name, Role: acct.Role})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, tokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.AccessExp.Unix(),
		User:         acct,
	})
}

func (h *Handler) register(c *gin.Context) {
	var req users.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	acct, err := h.Users.Register(c.Request.Context(), req, claims.IsAdmin())
	if err != nil {
		respondError(c, err)
		return
	}
	h.issue(c, http.StatusCreated, acct)
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	acct, err := h.Users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	h.issue(c, http.StatusOK, acct)
}

func (h *Handler) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	claims, err := h.Issuer.ParseRefresh(req.RefreshToken)
	if err != nil {
		respondError(c, apperr.Auth("invalid refresh token"))
		return
	}
	acct, err := h.Users.Get(c.Request.Context(), claims.Subject)
	if err != nil {
		respondError(c, apperr.Auth("invalid refresh token"))
		return
	}
	h.issue(c, http.StatusOK, acct)
}

func (h *Handler) me(c *gin.Context) {
	acct, err := h.Users.Get(c.Request.Context(), actor(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}
